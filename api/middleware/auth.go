// api/middleware/auth.go
package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// JWTConfig JWT配置
type JWTConfig struct {
	SecretKey     string
	TokenExpiry   time.Duration
	TokenLookup   string
	TokenHeadName string
}

// DefaultJWTConfig 默认JWT配置
func DefaultJWTConfig() JWTConfig {
	return JWTConfig{
		SecretKey:     "smppd-jwt-secret-key",
		TokenExpiry:   24 * time.Hour,
		TokenLookup:   "header: Authorization, query: token, cookie: jwt",
		TokenHeadName: "Bearer",
	}
}

// JWTAuth JWT认证中间件
func JWTAuth(config ...JWTConfig) gin.HandlerFunc {
	cfg := DefaultJWTConfig()
	if len(config) > 0 {
		cfg = config[0]
	}

	return func(c *gin.Context) {
		token := extractToken(c, cfg.TokenLookup, cfg.TokenHeadName)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "未授权，需要登录",
			})
			return
		}

		claims, err := validateToken(token, cfg.SecretKey)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "无效的令牌或令牌已过期",
			})
			return
		}

		// 设置用户信息到上下文
		c.Set("username", claims.Username)
		c.Set("role", claims.Role)

		c.Next()
	}
}

// JWTClaims JWT声明
type JWTClaims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// extractToken 按 TokenLookup 的顺序提取token
func extractToken(c *gin.Context, lookup, headName string) string {
	for _, method := range strings.Split(lookup, ",") {
		parts := strings.Split(strings.TrimSpace(method), ":")
		if len(parts) != 2 {
			continue
		}

		source := strings.TrimSpace(parts[0])
		key := strings.TrimSpace(parts[1])

		switch source {
		case "header":
			token := c.GetHeader(key)
			if len(token) > len(headName)+1 && strings.EqualFold(token[:len(headName)], headName) {
				return strings.TrimSpace(token[len(headName)+1:])
			}
		case "query":
			if token := c.Query(key); token != "" {
				return token
			}
		case "cookie":
			if token, _ := c.Cookie(key); token != "" {
				return token
			}
		}
	}

	return ""
}

// validateToken 校验签名和有效期
func validateToken(tokenString, secret string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*JWTClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, errors.New("invalid token")
}

// GenerateToken 生成JWT令牌
func GenerateToken(username, role, secret string, expiry time.Duration) (string, error) {
	now := time.Now()
	claims := JWTClaims{
		Username: username,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			Subject:   username,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
