// api/routes/routes.go
package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"smppd/api/handlers"
	"smppd/api/middleware"
	"smppd/internal/auth"
	"smppd/internal/dispatcher"
	"smppd/internal/message"
	"smppd/internal/server"
)

// Dependencies 路由使用的服务组件，Store 和 Limits 可为nil
type Dependencies struct {
	Server        *server.Server
	Dispatcher    *dispatcher.Dispatcher
	Authenticator *auth.Authenticator
	Store         message.Store
	Limits        handlers.RateLimits
}

// SetupRoutes 设置路由
func SetupRoutes(engine *gin.Engine, deps Dependencies, username, password string, jwt middleware.JWTConfig) {
	authHandler := handlers.NewAuthHandler(username, password, jwt)
	sessionHandler := handlers.NewSessionHandler(deps.Server)
	statsHandler := handlers.NewStatsHandler(deps.Server, deps.Dispatcher)

	jwtMiddleware := middleware.JWTAuth(jwt)

	api := engine.Group("/api")
	{
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})

		// 认证API
		authGroup := api.Group("/auth")
		{
			authGroup.POST("/login", authHandler.Login)
			authGroup.POST("/logout", authHandler.Logout)
		}

		// 需要认证的API
		authorized := api.Group("/")
		authorized.Use(jwtMiddleware)
		{
			// 会话管理API
			sessions := authorized.Group("/sessions")
			{
				sessions.GET("", sessionHandler.ListSessions)
				sessions.GET("/:id", sessionHandler.GetSession)
				sessions.DELETE("/:id", sessionHandler.CloseSession)
			}

			// 统计信息API
			stats := authorized.Group("/stats")
			{
				stats.GET("", statsHandler.GetStats)
				stats.GET("/realtime", statsHandler.GetRealtimeStats)
			}

			// 账户管理API
			if deps.Authenticator != nil {
				accountHandler := handlers.NewAccountHandler(deps.Authenticator, deps.Limits)
				accounts := authorized.Group("/accounts")
				{
					accounts.GET("", accountHandler.ListAccounts)
					accounts.POST("", accountHandler.SaveAccount)
					accounts.GET("/:system_id", accountHandler.GetAccount)
					accounts.DELETE("/:system_id", accountHandler.DeleteAccount)
				}
			}

			// 短信API
			if deps.Store != nil {
				messageHandler := handlers.NewMessageHandler(deps.Store, deps.Server)
				messages := authorized.Group("/messages")
				{
					messages.GET("", messageHandler.ListMessages)
					messages.GET("/:id", messageHandler.GetMessage)
					messages.POST("/deliver", messageHandler.Deliver)
				}
			}
		}
	}
}
