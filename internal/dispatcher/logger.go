// internal/dispatcher/logger.go
package dispatcher

import (
	"fmt"

	"smppd/internal/protocol"
	"smppd/internal/session"
	"smppd/pkg/logger"
)

// traceIncoming 调试级别记录经过的所有PDU
func (d *Dispatcher) traceIncoming(sess *session.Session, pdu *protocol.PDU) {
	if logger.GetLogger().Level() > logger.DebugLevel {
		return
	}
	logger.Debug(fmt.Sprintf("消息日志 [会话=%d, 状态=%s, %s]", sess.ID, sess.State(), pdu))
}

// traceSubmit 记录短信内容，需开启 LogContent
func (d *Dispatcher) traceSubmit(sess *session.Session, sm *protocol.SubmitSM) {
	if !d.config.LogContent || sm == nil {
		return
	}
	logger.Info(fmt.Sprintf("消息日志 [会话=%d]:\n 发送方: %s\n 接收方: %s\n 内容: %s",
		sess.ID, sm.SourceAddr, sm.DestinationAddr, sm.Content()))
}
