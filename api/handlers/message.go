// api/handlers/message.go
package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"smppd/internal/message"
	"smppd/internal/protocol"
	"smppd/internal/server"
)

// MessageHandler 已接收短信查询与下发
type MessageHandler struct {
	store  message.Store
	server *server.Server
}

// NewMessageHandler 创建短信处理器
func NewMessageHandler(store message.Store, server *server.Server) *MessageHandler {
	return &MessageHandler{
		store:  store,
		server: server,
	}
}

// ListMessages 按条件查询已接收的短信
func (h *MessageHandler) ListMessages(c *gin.Context) {
	options := message.QueryOptions{
		SystemID:   c.Query("system_id"),
		SourceAddr: c.Query("source_addr"),
		DestAddr:   c.Query("dest_addr"),
		Limit:      100,
	}

	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "无效的limit"})
			return
		}
		options.Limit = n
	}
	if v := c.Query("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "无效的offset"})
			return
		}
		options.Offset = n
	}
	if v := c.Query("start"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "无效的开始时间"})
			return
		}
		options.StartTime = t
	}
	if v := c.Query("end"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "无效的结束时间"})
			return
		}
		options.EndTime = t
	}

	messages, err := h.store.Query(c.Request.Context(), options)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, messages)
}

// GetMessage 按ID查询短信
func (h *MessageHandler) GetMessage(c *gin.Context) {
	msg, err := h.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, message.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "消息不存在"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, msg)
}

// DeliverRequest 下发deliver_sm
type DeliverRequest struct {
	SystemID     string `json:"system_id" binding:"required"`
	SourceAddr   string `json:"source_addr"`
	DestAddr     string `json:"dest_addr" binding:"required"`
	DataCoding   byte   `json:"data_coding"`
	ShortMessage string `json:"short_message"`
}

// Deliver 向指定system_id的接收方向会话下发短信
func (h *MessageHandler) Deliver(c *gin.Context) {
	var req DeliverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sm := &protocol.SubmitSM{
		SourceAddr:      req.SourceAddr,
		DestinationAddr: req.DestAddr,
		DataCoding:      req.DataCoding,
	}
	if len(req.ShortMessage) > 254 {
		sm.TLVs = []protocol.TLV{{Tag: protocol.TagMessagePayload, Value: []byte(req.ShortMessage)}}
	} else {
		sm.ShortMessage = []byte(req.ShortMessage)
	}

	delivered, err := h.server.Deliver(req.SystemID, sm.Marshal())
	if err != nil {
		if errors.Is(err, server.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"delivered": delivered})
}
