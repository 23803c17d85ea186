// api/handlers/account.go  ESME账户管理
package handlers

import (
	"errors"
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"

	"smppd/internal/auth"
)

// RateLimits 按账户设置的限流
type RateLimits interface {
	SetClientLimit(clientID string, rps float64)
	RemoveClientLimit(clientID string)
}

// AccountHandler 账户处理器
type AccountHandler struct {
	authenticator *auth.Authenticator
	limits        RateLimits
}

// NewAccountHandler 创建账户处理器，limits可为nil
func NewAccountHandler(authenticator *auth.Authenticator, limits RateLimits) *AccountHandler {
	return &AccountHandler{
		authenticator: authenticator,
		limits:        limits,
	}
}

// AccountRequest 创建或更新账户
type AccountRequest struct {
	SystemID    string   `json:"system_id" binding:"required,max=15"`
	Password    string   `json:"password" binding:"required,max=8"`
	SystemType  string   `json:"system_type" binding:"max=12"`
	MaxTPS      float64  `json:"max_tps" binding:"gte=0"`
	IPAddresses []string `json:"ip_addresses"`
}

// ListAccounts 列出所有账户，不返回密码
func (h *AccountHandler) ListAccounts(c *gin.Context) {
	accounts := make([]*auth.Account, 0, h.authenticator.Count())
	h.authenticator.Range(func(_ string, account *auth.Account) bool {
		accounts = append(accounts, account)
		return true
	})
	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].SystemID < accounts[j].SystemID
	})

	c.JSON(http.StatusOK, accounts)
}

// GetAccount 获取账户
func (h *AccountHandler) GetAccount(c *gin.Context) {
	account, ok := h.authenticator.GetAccount(c.Param("system_id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "账户不存在"})
		return
	}
	c.JSON(http.StatusOK, account)
}

// SaveAccount 创建或更新账户，密码以bcrypt哈希保存
func (h *AccountHandler) SaveAccount(c *gin.Context) {
	var req AccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	account := &auth.Account{
		SystemID:    req.SystemID,
		Password:    hash,
		SystemType:  req.SystemType,
		MaxTPS:      req.MaxTPS,
		IPAddresses: req.IPAddresses,
	}

	persisted := true
	if err := h.authenticator.SaveAccount(c.Request.Context(), account); err != nil {
		if !errors.Is(err, auth.ErrNoDatabase) {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		// 未启用数据库时只保存在内存中
		h.authenticator.RegisterAccount(account)
		persisted = false
	}

	if h.limits != nil {
		if account.MaxTPS > 0 {
			h.limits.SetClientLimit(account.SystemID, account.MaxTPS)
		} else {
			h.limits.RemoveClientLimit(account.SystemID)
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"account":   account,
		"persisted": persisted,
	})
}

// DeleteAccount 删除账户，已绑定的会话不受影响
func (h *AccountHandler) DeleteAccount(c *gin.Context) {
	systemID := c.Param("system_id")
	if _, ok := h.authenticator.GetAccount(systemID); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "账户不存在"})
		return
	}

	if err := h.authenticator.DeleteAccount(c.Request.Context(), systemID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if h.limits != nil {
		h.limits.RemoveClientLimit(systemID)
	}

	c.JSON(http.StatusOK, gin.H{"message": "账户已删除"})
}
