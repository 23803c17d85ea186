package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestManager 返回已迁移的内存sqlite数据库
func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m := NewManager(&Config{Driver: DriverSQLite})
	require.NoError(t, m.Connect(context.Background()))
	t.Cleanup(func() { m.Close() })
	require.NoError(t, Migrate(context.Background(), m.DB(), m.Driver()))
	return m
}

func TestMySQLDSN(t *testing.T) {
	cfg := NewConfig()
	cfg.Password = "secret"

	dsn, err := cfg.DSN()
	require.NoError(t, err)
	assert.Contains(t, dsn, "root:secret@tcp(localhost:3306)/smppd?")
	assert.Contains(t, dsn, "parseTime=true")
	assert.Contains(t, dsn, "charset=utf8mb4")
}

func TestInvalidDriver(t *testing.T) {
	_, err := (&Config{Driver: "oracle"}).DSN()
	assert.Error(t, err)
}

func TestMigrateIsIdempotent(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, Migrate(ctx, m.DB(), m.Driver()))

	var count int
	require.NoError(t, m.DB().QueryRowContext(ctx, "SELECT COUNT(*) FROM migrations").Scan(&count))
	assert.Equal(t, len(migrations), count)

	for _, table := range []string{"accounts", "account_ips", "submitted_messages"} {
		_, err := m.DB().ExecContext(ctx, "SELECT COUNT(*) FROM "+table)
		assert.NoError(t, err, table)
	}
}

func TestManagerLifecycle(t *testing.T) {
	m := newTestManager(t)

	assert.True(t, m.CheckConnection(context.Background()))
	require.NoError(t, m.Close())
	assert.False(t, m.CheckConnection(context.Background()))
	assert.Nil(t, m.DB())
	assert.NoError(t, m.Close())
}
