// api/handlers/auth.go
package handlers

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"smppd/api/middleware"
)

// AuthHandler 管理接口登录
type AuthHandler struct {
	username string
	password string
	jwt      middleware.JWTConfig
}

// NewAuthHandler 创建认证处理器
func NewAuthHandler(username, password string, jwt middleware.JWTConfig) *AuthHandler {
	return &AuthHandler{
		username: username,
		password: password,
		jwt:      jwt,
	}
}

// LoginRequest 登录请求
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login 校验管理员账号并签发令牌
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if h.username == "" ||
		subtle.ConstantTimeCompare([]byte(req.Username), []byte(h.username)) != 1 ||
		subtle.ConstantTimeCompare([]byte(req.Password), []byte(h.password)) != 1 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "用户名或密码错误"})
		return
	}

	token, err := middleware.GenerateToken(req.Username, "admin", h.jwt.SecretKey, h.jwt.TokenExpiry)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "生成令牌失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":  token,
		"expire": time.Now().Add(h.jwt.TokenExpiry).Unix(),
		"user": gin.H{
			"username": req.Username,
			"role":     "admin",
		},
	})
}

// Logout 登出，令牌由客户端丢弃
func (h *AuthHandler) Logout(c *gin.Context) {
	c.SetCookie("jwt", "", -1, "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"message": "登出成功"})
}
