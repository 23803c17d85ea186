// api/handlers/stats.go
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"smppd/internal/dispatcher"
	"smppd/internal/performance"
	"smppd/internal/server"
)

// StatsHandler 统计信息处理器
type StatsHandler struct {
	server     *server.Server
	dispatcher *dispatcher.Dispatcher
}

// NewStatsHandler 创建统计信息处理器
func NewStatsHandler(server *server.Server, dispatcher *dispatcher.Dispatcher) *StatsHandler {
	return &StatsHandler{
		server:     server,
		dispatcher: dispatcher,
	}
}

// GetStats 获取服务器、分发器和协议指标
func (h *StatsHandler) GetStats(c *gin.Context) {
	status := gin.H{
		"system_time": time.Now().Format(time.RFC3339),
	}

	if h.server != nil {
		status["server_status"] = h.server.GetStats()
	}
	if h.dispatcher != nil {
		status["dispatcher_status"] = h.dispatcher.GetStats()
		status["metrics"] = h.dispatcher.Metrics().Snapshot()
	}

	c.JSON(http.StatusOK, status)
}

// GetRealtimeStats 获取连接数和主机资源使用率
func (h *StatsHandler) GetRealtimeStats(c *gin.Context) {
	stats := gin.H{
		"active_connections": 0,
		"bound_sessions":     0,
		"system":             performance.CollectSystemSnapshot(c.Request.Context()),
	}

	if h.server != nil {
		serverStats := h.server.GetStats()
		stats["active_connections"] = serverStats["active_connections"]
		stats["bound_sessions"] = serverStats["bound_sessions"]
	}

	c.JSON(http.StatusOK, stats)
}
