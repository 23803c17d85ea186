// internal/database/migration.go
package database

import (
	"context"
	"database/sql"
	"fmt"

	"smppd/pkg/logger"
)

// Migration 数据库迁移
type Migration struct {
	ID   int
	Name string
	SQL  string
}

// migrations 按ID顺序执行，已应用的迁移记录在migrations表中
var migrations = []Migration{
	{
		ID:   1,
		Name: "create_initial_tables",
		SQL:  "", // 通过CreateTables执行
	},
	{
		ID:   2,
		Name: "add_submitted_messages_system_index",
		SQL:  "CREATE INDEX idx_submitted_messages_system ON submitted_messages (system_id)",
	},
}

// Migrate 执行数据库迁移
func Migrate(ctx context.Context, db *sql.DB, driver string) error {
	if err := createMigrationsTable(ctx, db, driver); err != nil {
		return err
	}

	for _, migration := range migrations {
		applied, err := isMigrationApplied(ctx, db, migration.ID)
		if err != nil {
			return err
		}
		if applied {
			continue
		}

		logger.Info(fmt.Sprintf("执行迁移: %s", migration.Name))

		if migration.ID == 1 {
			if err := CreateTables(ctx, db, driver); err != nil {
				return err
			}
		} else if migration.SQL != "" {
			if _, err := db.ExecContext(ctx, migration.SQL); err != nil {
				return fmt.Errorf("执行迁移%d失败: %w", migration.ID, err)
			}
		}

		if err := recordMigration(ctx, db, migration.ID, migration.Name); err != nil {
			return err
		}

		logger.Info(fmt.Sprintf("迁移完成: %s", migration.Name))
	}

	return nil
}

// createMigrationsTable 创建迁移记录表
func createMigrationsTable(ctx context.Context, db *sql.DB, driver string) error {
	query := `
		CREATE TABLE IF NOT EXISTS migrations (
			id INT NOT NULL,
			name VARCHAR(255) NOT NULL,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (id)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;
	`
	if driver == DriverSQLite {
		query = `
			CREATE TABLE IF NOT EXISTS migrations (
				id INTEGER NOT NULL PRIMARY KEY,
				name TEXT NOT NULL,
				applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
			);
		`
	}

	if _, err := db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("创建migrations表失败: %w", err)
	}

	return nil
}

// isMigrationApplied 检查迁移是否已应用
func isMigrationApplied(ctx context.Context, db *sql.DB, id int) (bool, error) {
	var count int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM migrations WHERE id = ?", id).Scan(&count); err != nil {
		return false, fmt.Errorf("检查迁移状态失败: %w", err)
	}

	return count > 0, nil
}

// recordMigration 记录迁移已应用
func recordMigration(ctx context.Context, db *sql.DB, id int, name string) error {
	if _, err := db.ExecContext(ctx, "INSERT INTO migrations (id, name) VALUES (?, ?)", id, name); err != nil {
		return fmt.Errorf("记录迁移状态失败: %w", err)
	}

	return nil
}
