package logger

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var entries []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		entry := map[string]interface{}{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		entries = append(entries, entry)
	}
	return entries
}

func TestLoggerWritesStructuredEntry(t *testing.T) {
	var buf bytes.Buffer
	l, err := New("smpp", DebugLevel, &buf)
	require.NoError(t, err)

	l.Info("会话 %d 已绑定", 7)

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "info", entries[0]["level"])
	assert.Equal(t, "smpp", entries[0]["module"])
	assert.Equal(t, "会话 7 已绑定", entries[0]["message"])
	assert.Contains(t, entries[0]["caller"], "logger_test.go")
}

func TestLoggerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l, err := New("smpp", WarningLevel, &buf)
	require.NoError(t, err)

	l.Debug("hidden")
	l.Info("hidden")
	l.Warning("shown")
	l.Critical("also shown")

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 2)
	assert.Equal(t, "warn", entries[0]["level"])
	assert.Equal(t, true, entries[1]["critical"])

	l.SetLogLevel(DebugLevel)
	assert.Equal(t, DebugLevel, l.Level())
}

func TestParseLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"debug":    DebugLevel,
		"INFO":     InfoLevel,
		"warn":     WarningLevel,
		"Warning":  WarningLevel,
		"error":    ErrorLevel,
		"critical": CriticalLevel,
		"bogus":    InfoLevel,
	}
	for name, want := range tests {
		assert.Equal(t, want, ParseLevel(name), name)
	}
}

func TestInitWithConfigFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "smppd.log")

	err := InitWithConfig("smppd", LogConfig{Level: InfoLevel, Output: "file", FilePath: path, EnableTimestamp: true})
	require.NoError(t, err)
	defer SetDefault(nil)

	assert.Equal(t, InfoLevel, GetLogger().Level())
	Info("started")
	require.NoError(t, GetLogger().Close())
}

func TestInitWithConfigRequiresPath(t *testing.T) {
	err := InitWithConfig("smppd", LogConfig{Output: "file"})
	assert.Error(t, err)
}
