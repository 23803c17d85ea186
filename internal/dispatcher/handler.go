// internal/dispatcher/handler.go  处理器接口
package dispatcher

import (
	"context"

	"smppd/internal/protocol"
	"smppd/internal/session"
)

// Authenticator 校验ESME的绑定凭证，需支持多个连接并发调用
type Authenticator interface {
	// Authenticate 返回是否接受该 system_id/password
	Authenticate(ctx context.Context, systemID, password string) (bool, error)
}

// MessageAcceptor 接收ESME提交的短信并分配消息ID，需支持并发调用
type MessageAcceptor interface {
	Accept(ctx context.Context, systemID string, msg *protocol.SubmitSM) (string, error)
}

// Limiter 按system_id限流
type Limiter interface {
	Allow(clientID string) bool
}

// Result 一次分发的结果
type Result struct {
	// Responses 按顺序写回的PDU
	Responses []*protocol.PDU

	// Close 写完响应后关闭连接
	Close bool
}

// HandlerFunc 命令处理函数，调用前会话状态已通过校验
type HandlerFunc func(ctx context.Context, sess *session.Session, pdu *protocol.PDU) Result

func respond(pdus ...*protocol.PDU) Result {
	return Result{Responses: pdus}
}
