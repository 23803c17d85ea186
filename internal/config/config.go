// internal/config/config.go  配置文件加载
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v2"

	"smppd/internal/auth"
	"smppd/internal/database"
	"smppd/internal/server"
	"smppd/pkg/logger"
)

// 短信存储类型
const (
	MessageStoreMemory = "memory"
	MessageStoreSQL    = "sql"
)

// Config 系统配置
type Config struct {
	Version     string               `yaml:"version"`
	Log         LogConfig            `yaml:"log"`
	SMPP        *server.ServerConfig `yaml:"smpp"`
	Dispatcher  DispatcherConfig     `yaml:"dispatcher"`
	Auth        AuthConfig           `yaml:"auth"`
	Database    *database.Config     `yaml:"database"`
	Message     MessageConfig        `yaml:"message"`
	Performance PerformanceConfig    `yaml:"performance"`
	Web         WebConfig            `yaml:"web"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level   string `yaml:"level" validate:"omitempty,oneof=DEBUG INFO WARN WARNING ERROR debug info warn warning error"`
	Output  string `yaml:"output" validate:"omitempty,oneof=console file both"`
	LogFile string `yaml:"log_file" validate:"required_if=Output file,required_if=Output both"`
	Color   bool   `yaml:"color"`
}

// DispatcherConfig 消息分发器配置
type DispatcherConfig struct {
	LogContent bool `yaml:"log_content"`
}

// AuthConfig 认证配置
type AuthConfig struct {
	Accounts       []*auth.Account `yaml:"accounts" validate:"dive,required"`
	IPWhitelist    []string        `yaml:"ip_whitelist"`
	ReloadInterval time.Duration   `yaml:"reload_interval"`
}

// MessageConfig 短信存储配置
type MessageConfig struct {
	Store    string `yaml:"store" validate:"oneof=memory sql"`
	Capacity int    `yaml:"capacity" validate:"gte=0"`
}

// PerformanceConfig 限流与指标配置
type PerformanceConfig struct {
	DefaultTPS      float64       `yaml:"default_tps" validate:"gte=0"`
	MetricsInterval time.Duration `yaml:"metrics_interval"`
}

// WebConfig Web管理接口配置
type WebConfig struct {
	Enabled    bool          `yaml:"enabled"`
	ListenAddr string        `yaml:"listen_addr" validate:"required_if=Enabled true"`
	Username   string        `yaml:"username"`
	Password   string        `yaml:"password"`
	JWTSecret  string        `yaml:"jwt_secret" validate:"required_if=Enabled true"`
	TokenTTL   time.Duration `yaml:"token_ttl"`
	Debug      bool          `yaml:"debug"`
}

// Default 返回默认配置
func Default() *Config {
	config := &Config{
		Version: "1.0",
		Log: LogConfig{
			Level:  "INFO",
			Output: "console",
			Color:  true,
		},
		SMPP:     &server.ServerConfig{},
		Database: database.NewConfig(),
		Message: MessageConfig{
			Store:    MessageStoreMemory,
			Capacity: 1000,
		},
		Web: WebConfig{
			ListenAddr: "127.0.0.1:8080",
		},
	}
	config.applyDefaults()
	return config
}

// applyDefaults 为未配置的时长设置默认值
func (c *Config) applyDefaults() {
	if c.Auth.ReloadInterval <= 0 {
		c.Auth.ReloadInterval = time.Minute
	}
	if c.Performance.MetricsInterval <= 0 {
		c.Performance.MetricsInterval = time.Minute
	}
	if c.Web.TokenTTL <= 0 {
		c.Web.TokenTTL = 24 * time.Hour
	}
	if c.Database.ConnMaxLifetime <= 0 {
		c.Database.ConnMaxLifetime = time.Hour
	}
}

// LoadConfig 加载配置文件
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}
	return Parse(data)
}

// Parse 解析YAML配置，所有时长字段以秒为单位
func Parse(data []byte) (*Config, error) {
	config := Default()
	config.Database.ConnMaxLifetime = 0
	config.Auth.ReloadInterval = 0
	config.Performance.MetricsInterval = 0
	config.Web.TokenTTL = 0

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}
	if config.SMPP == nil {
		config.SMPP = &server.ServerConfig{}
	}
	if config.Database == nil {
		config.Database = database.NewConfig()
		config.Database.ConnMaxLifetime = 0
	}

	// 将时间单位从秒转换为time.Duration
	config.SMPP.ReadTimeout = config.SMPP.ReadTimeout * time.Second
	config.SMPP.WriteTimeout = config.SMPP.WriteTimeout * time.Second
	config.SMPP.HeartbeatInterval = config.SMPP.HeartbeatInterval * time.Second
	config.SMPP.IdleTimeout = config.SMPP.IdleTimeout * time.Second
	config.Database.ConnMaxLifetime = config.Database.ConnMaxLifetime * time.Second
	config.Auth.ReloadInterval = config.Auth.ReloadInterval * time.Second
	config.Performance.MetricsInterval = config.Performance.MetricsInterval * time.Second
	config.Web.TokenTTL = config.Web.TokenTTL * time.Second
	config.applyDefaults()

	if config.Message.Store == MessageStoreSQL && !config.Database.Enabled {
		return nil, fmt.Errorf("短信存储为sql时必须启用数据库")
	}

	if err := validator.New().Struct(config); err != nil {
		return nil, fmt.Errorf("配置校验失败: %w", err)
	}

	return config, nil
}

// LoggerConfig 转换为日志系统配置
func (c *Config) LoggerConfig() logger.LogConfig {
	output := c.Log.Output
	if output == "" {
		output = "console"
	}
	return logger.LogConfig{
		Level:           logger.ParseLevel(c.Log.Level),
		Output:          output,
		FilePath:        c.Log.LogFile,
		EnableCaller:    true,
		EnableTimestamp: true,
		EnableColor:     c.Log.Color,
	}
}
