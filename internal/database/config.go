// internal/database/config.go
package database

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
)

// 支持的驱动
const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
)

// Config 数据库配置
type Config struct {
	Enabled         bool          `yaml:"enabled"`
	Driver          string        `yaml:"driver"`     // mysql 或 sqlite
	Host            string        `yaml:"host"`       // 主机地址
	Port            int           `yaml:"port"`       // 端口
	Username        string        `yaml:"username"`   // 用户名
	Password        string        `yaml:"password"`   // 密码
	Database        string        `yaml:"database"`   // 数据库名，sqlite为文件路径
	Parameters      string        `yaml:"parameters"` // 连接参数
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// NewConfig 创建数据库配置
func NewConfig() *Config {
	return &Config{
		Driver:          DriverMySQL,
		Host:            "localhost",
		Port:            3306,
		Username:        "root",
		Password:        "",
		Database:        "smppd",
		Parameters:      "charset=utf8mb4&loc=Local",
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 1 * time.Hour,
	}
}

// DSN 获取数据源名称
func (c *Config) DSN() (string, error) {
	switch c.Driver {
	case DriverSQLite:
		if c.Database == "" {
			return ":memory:", nil
		}
		return c.Database, nil

	case DriverMySQL, "":
		cfg := mysql.NewConfig()
		cfg.User = c.Username
		cfg.Passwd = c.Password
		cfg.Net = "tcp"
		cfg.Addr = net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
		cfg.DBName = c.Database
		cfg.ParseTime = true

		if c.Parameters != "" {
			values, err := url.ParseQuery(c.Parameters)
			if err != nil {
				return "", fmt.Errorf("解析连接参数失败: %w", err)
			}
			cfg.Params = make(map[string]string, len(values))
			for key := range values {
				cfg.Params[key] = values.Get(key)
			}
		}
		return cfg.FormatDSN(), nil
	}

	return "", fmt.Errorf("不支持的数据库驱动: %s", c.Driver)
}

// driverName 返回database/sql注册的驱动名
func (c *Config) driverName() string {
	if c.Driver == "" {
		return DriverMySQL
	}
	return c.Driver
}
