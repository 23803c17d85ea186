// api/server.go
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"smppd/api/middleware"
	"smppd/api/routes"
	"smppd/pkg/logger"
)

// ServerConfig Web服务器配置
type ServerConfig struct {
	ListenAddr string        // 监听地址
	Username   string        // 管理员用户名
	Password   string        // 管理员密码
	JWTSecret  string        // 令牌签名密钥
	TokenTTL   time.Duration // 令牌有效期
	Debug      bool          // 调试模式
}

// DefaultServerConfig 默认配置
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		ListenAddr: ":8080",
		TokenTTL:   24 * time.Hour,
		Debug:      false,
	}
}

// Server Web管理服务器
type Server struct {
	config     *ServerConfig
	engine     *gin.Engine
	httpServer *http.Server
}

// NewServer 创建新的Web服务器
func NewServer(config *ServerConfig, deps routes.Dependencies) *Server {
	if config == nil {
		config = DefaultServerConfig()
	}

	// 设置Gin模式
	if config.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(middleware.Logger())
	engine.Use(gin.Recovery())

	jwt := middleware.DefaultJWTConfig()
	if config.JWTSecret != "" {
		jwt.SecretKey = config.JWTSecret
	}
	if config.TokenTTL > 0 {
		jwt.TokenExpiry = config.TokenTTL
	}
	routes.SetupRoutes(engine, deps, config.Username, config.Password, jwt)

	return &Server{
		config: config,
		engine: engine,
		httpServer: &http.Server{
			Addr:         config.ListenAddr,
			Handler:      engine,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
	}
}

// Handler 返回HTTP处理器
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start 启动Web服务器，阻塞直到Stop被调用
func (s *Server) Start() error {
	logger.Info(fmt.Sprintf("Web服务器监听于 %s", s.config.ListenAddr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("Web服务器异常退出: %w", err)
	}
	return nil
}

// Stop 停止Web服务器
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
