// internal/message/store.go  短信接收与存储
package message

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"smppd/internal/protocol"
)

// ErrNotFound 消息不存在
var ErrNotFound = errors.New("message: not found")

// Message 已接收的短信，内容原样保存
type Message struct {
	ID                 string    `json:"message_id"`
	SystemID           string    `json:"system_id"`
	ServiceType        string    `json:"service_type"`
	SourceAddr         string    `json:"source_addr"`
	DestAddr           string    `json:"dest_addr"`
	ESMClass           byte      `json:"esm_class"`
	DataCoding         byte      `json:"data_coding"`
	RegisteredDelivery byte      `json:"registered_delivery"`
	Content            []byte    `json:"content"`
	SubmittedAt        time.Time `json:"submitted_at"`
}

// QueryOptions 查询选项
type QueryOptions struct {
	StartTime  time.Time
	EndTime    time.Time
	SystemID   string
	SourceAddr string
	DestAddr   string
	Limit      int
	Offset     int
}

// Store 短信存储，实现 dispatcher.MessageAcceptor
type Store interface {
	// Accept 保存submit_sm并返回分配的消息ID
	Accept(ctx context.Context, systemID string, sm *protocol.SubmitSM) (string, error)

	// Get 按ID查询
	Get(ctx context.Context, id string) (*Message, error)

	// Query 按条件查询，按提交时间倒序
	Query(ctx context.Context, options QueryOptions) ([]*Message, error)
}

// newMessage 由submit_sm构造消息并分配ID
func newMessage(systemID string, sm *protocol.SubmitSM) *Message {
	msg := &Message{
		ID:          uuid.NewString(),
		SystemID:    systemID,
		SubmittedAt: time.Now(),
	}
	if sm != nil {
		msg.ServiceType = sm.ServiceType
		msg.SourceAddr = sm.SourceAddr
		msg.DestAddr = sm.DestinationAddr
		msg.ESMClass = sm.ESMClass
		msg.DataCoding = sm.DataCoding
		msg.RegisteredDelivery = sm.RegisteredDelivery
		if content := sm.Content(); content != nil {
			msg.Content = append([]byte(nil), content...)
		}
	}
	return msg
}

// match 检查消息是否满足查询条件
func (o QueryOptions) match(m *Message) bool {
	if !o.StartTime.IsZero() && m.SubmittedAt.Before(o.StartTime) {
		return false
	}
	if !o.EndTime.IsZero() && m.SubmittedAt.After(o.EndTime) {
		return false
	}
	if o.SystemID != "" && m.SystemID != o.SystemID {
		return false
	}
	if o.SourceAddr != "" && m.SourceAddr != o.SourceAddr {
		return false
	}
	if o.DestAddr != "" && m.DestAddr != o.DestAddr {
		return false
	}
	return true
}
