// api/handlers/session.go
package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"smppd/internal/server"
)

// SessionHandler 会话处理器
type SessionHandler struct {
	server *server.Server
}

// NewSessionHandler 创建会话处理器
func NewSessionHandler(server *server.Server) *SessionHandler {
	return &SessionHandler{
		server: server,
	}
}

// ListSessions 列出所有连接的会话，bound=true 时只返回已绑定的
func (h *SessionHandler) ListSessions(c *gin.Context) {
	mgr := h.server.GetSessionManager()

	response := make([]server.SessionInfo, 0, mgr.Count())
	if c.Query("bound") == "true" {
		for _, conn := range mgr.GetActiveSessions() {
			response = append(response, conn.Info())
		}
	} else {
		response = append(response, mgr.Snapshot()...)
	}

	c.JSON(http.StatusOK, response)
}

// GetSession 获取会话详情
func (h *SessionHandler) GetSession(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}

	conn, exists := h.server.GetSessionManager().Get(id)
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": "会话不存在"})
		return
	}

	c.JSON(http.StatusOK, conn.Info())
}

// CloseSession 关闭会话，已绑定的会话先发送unbind
func (h *SessionHandler) CloseSession(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}

	if err := h.server.GetSessionManager().CloseSession(id); err != nil {
		if errors.Is(err, server.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "会话不存在"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "会话已关闭"})
}

func sessionID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的会话ID"})
		return 0, false
	}
	return id, true
}
