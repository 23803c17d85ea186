package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smppd/pkg/logger"
)

func newLoggedEngine(t *testing.T, level logger.LogLevel) (*gin.Engine, *bytes.Buffer) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	var buf bytes.Buffer
	l, err := logger.New("api-test", level, &buf)
	require.NoError(t, err)

	engine := gin.New()
	engine.Use(RequestLogger(l.Zerolog()))
	engine.GET("/api/items/:id", func(c *gin.Context) {
		if c.Param("id") == "bad" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": c.Param("id")})
	})
	engine.GET("/api/big", func(c *gin.Context) {
		c.String(http.StatusInternalServerError, strings.Repeat("x", 4*maxLoggedBody))
	})
	return engine, &buf
}

func lastEntry(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.NotEmpty(t, lines)
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[len(lines)-1]), &entry))
	return entry
}

func TestRequestLoggerFields(t *testing.T) {
	engine, buf := newLoggedEngine(t, logger.InfoLevel)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/items/7?verbose=1", nil))
	require.Equal(t, http.StatusOK, w.Code)

	entry := lastEntry(t, buf)
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "HTTP请求", entry["message"])
	assert.Equal(t, "GET", entry["method"])
	assert.Equal(t, "/api/items/:id", entry["route"])
	assert.Equal(t, "verbose=1", entry["query"])
	assert.Equal(t, float64(http.StatusOK), entry["status"])
	assert.NotContains(t, entry, "body")
}

func TestRequestLoggerErrorBody(t *testing.T) {
	engine, buf := newLoggedEngine(t, logger.InfoLevel)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/items/bad", nil))
	require.Equal(t, http.StatusBadRequest, w.Code)

	entry := lastEntry(t, buf)
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, float64(http.StatusBadRequest), entry["status"])
	assert.Contains(t, entry["body"], "invalid id")
}

func TestRequestLoggerTruncatesBody(t *testing.T) {
	engine, buf := newLoggedEngine(t, logger.InfoLevel)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/big", nil))
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, 4*maxLoggedBody, w.Body.Len())

	entry := lastEntry(t, buf)
	assert.Equal(t, "error", entry["level"])
	assert.Len(t, entry["body"], maxLoggedBody)
}

func TestRequestLoggerHonoursLevel(t *testing.T) {
	engine, buf := newLoggedEngine(t, logger.ErrorLevel)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/items/1", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, buf.String())
}
