// internal/database/schema.go
package database

import (
	"context"
	"database/sql"
	"fmt"

	"smppd/pkg/logger"
)

// tableDDL 每张表在不同驱动下的建表语句
type tableDDL struct {
	name   string
	mysql  string
	sqlite string
}

var tables = []tableDDL{
	{
		name: "accounts",
		mysql: `
			CREATE TABLE IF NOT EXISTS accounts (
				system_id VARCHAR(16) NOT NULL,
				password VARCHAR(255) NOT NULL,
				system_type VARCHAR(13) NOT NULL DEFAULT '',
				max_tps DOUBLE NOT NULL DEFAULT 0,
				is_active BOOLEAN DEFAULT 1,
				created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
				PRIMARY KEY (system_id)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;
		`,
		sqlite: `
			CREATE TABLE IF NOT EXISTS accounts (
				system_id TEXT NOT NULL PRIMARY KEY,
				password TEXT NOT NULL,
				system_type TEXT NOT NULL DEFAULT '',
				max_tps REAL NOT NULL DEFAULT 0,
				is_active INTEGER DEFAULT 1,
				created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
			);
		`,
	},
	{
		name: "account_ips",
		mysql: `
			CREATE TABLE IF NOT EXISTS account_ips (
				id INT AUTO_INCREMENT PRIMARY KEY,
				system_id VARCHAR(16) NOT NULL,
				ip_address VARCHAR(50) NOT NULL,
				created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
				UNIQUE KEY (system_id, ip_address)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;
		`,
		sqlite: `
			CREATE TABLE IF NOT EXISTS account_ips (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				system_id TEXT NOT NULL,
				ip_address TEXT NOT NULL,
				created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
				UNIQUE (system_id, ip_address)
			);
		`,
	},
	{
		name: "submitted_messages",
		mysql: `
			CREATE TABLE IF NOT EXISTS submitted_messages (
				message_id VARCHAR(64) NOT NULL,
				system_id VARCHAR(16) NOT NULL,
				service_type VARCHAR(6) NOT NULL DEFAULT '',
				source_addr VARCHAR(21) NOT NULL DEFAULT '',
				dest_addr VARCHAR(21) NOT NULL DEFAULT '',
				esm_class TINYINT UNSIGNED NOT NULL DEFAULT 0,
				data_coding TINYINT UNSIGNED NOT NULL DEFAULT 0,
				registered_delivery TINYINT UNSIGNED NOT NULL DEFAULT 0,
				content BLOB,
				submitted_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
				PRIMARY KEY (message_id),
				INDEX (submitted_at)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;
		`,
		sqlite: `
			CREATE TABLE IF NOT EXISTS submitted_messages (
				message_id TEXT NOT NULL PRIMARY KEY,
				system_id TEXT NOT NULL,
				service_type TEXT NOT NULL DEFAULT '',
				source_addr TEXT NOT NULL DEFAULT '',
				dest_addr TEXT NOT NULL DEFAULT '',
				esm_class INTEGER NOT NULL DEFAULT 0,
				data_coding INTEGER NOT NULL DEFAULT 0,
				registered_delivery INTEGER NOT NULL DEFAULT 0,
				content BLOB,
				submitted_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
			);
		`,
	},
}

// CreateTables 创建所有表
func CreateTables(ctx context.Context, db *sql.DB, driver string) error {
	for _, t := range tables {
		query := t.mysql
		if driver == DriverSQLite {
			query = t.sqlite
		}

		if _, err := db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("创建%s表失败: %w", t.name, err)
		}
		logger.Info(fmt.Sprintf("%s表创建或已存在", t.name))
	}

	return nil
}
