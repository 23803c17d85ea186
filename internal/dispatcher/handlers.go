// internal/dispatcher/handlers.go  各命令处理
package dispatcher

import (
	"context"
	"fmt"

	"smppd/internal/protocol"
	"smppd/internal/session"
	"smppd/pkg/logger"
)

// handleBind 处理 bind_receiver/bind_transmitter/bind_transceiver
func (d *Dispatcher) handleBind(ctx context.Context, sess *session.Session, pdu *protocol.PDU) Result {
	role, _ := session.RoleForBind(pdu.CommandID)
	respID, _ := protocol.ResponseID(pdu.CommandID)

	req, err := protocol.ParseBindRequest(pdu.Body)
	if err != nil {
		logger.Warning(fmt.Sprintf("会话 %d 绑定请求解析失败: %v", sess.ID, err))
		return d.bindFailed(pdu)
	}

	if d.auth == nil {
		logger.Error("未配置认证器，拒绝绑定")
		return d.bindFailed(pdu)
	}

	ok, err := d.auth.Authenticate(ctx, req.SystemID, req.Password)
	if err != nil {
		logger.Error(fmt.Sprintf("会话 %d 认证 %s 出错: %v", sess.ID, req.SystemID, err))
		return d.bindFailed(pdu)
	}
	if !ok {
		logger.Warning(fmt.Sprintf("会话 %d 认证失败: system_id=%s, 地址=%s", sess.ID, req.SystemID, sess.RemoteAddr))
		return d.bindFailed(pdu)
	}

	if err := sess.Bind(role, req.SystemID); err != nil {
		logger.Warning(fmt.Sprintf("会话 %d 绑定状态切换失败: %v", sess.ID, err))
		return respond(protocol.NewGenericNack(pdu, protocol.ESME_RINVBNDSTS))
	}

	d.metrics.BindSuccess.Inc(1)
	logger.Info(fmt.Sprintf("会话 %d 绑定成功: system_id=%s, 角色=%s, 接口版本=0x%02x",
		sess.ID, req.SystemID, role, req.InterfaceVersion))

	return respond(protocol.NewResponse(pdu, respID, protocol.ESME_ROK, protocol.CString(d.config.SystemID)))
}

func (d *Dispatcher) bindFailed(pdu *protocol.PDU) Result {
	d.metrics.BindFailures.Inc(1)
	return respond(protocol.NewGenericNack(pdu, protocol.ESME_RBINDFAIL))
}

// handleSubmit 处理 submit_sm
func (d *Dispatcher) handleSubmit(ctx context.Context, sess *session.Session, pdu *protocol.PDU) Result {
	systemID := sess.SystemID()

	if d.limiter != nil && !d.limiter.Allow(systemID) {
		d.metrics.SubmitRejected.Inc(1)
		logger.Warning(fmt.Sprintf("客户端 %s 提交速率超限", systemID))
		return respond(protocol.NewResponse(pdu, protocol.SUBMIT_SM_RESP, protocol.ESME_RTHROTTLED, nil))
	}

	sm, err := protocol.ParseSubmitSM(pdu.Body)
	if err != nil {
		// 消息体不完整时仍按已解析部分接收
		logger.Debug(fmt.Sprintf("会话 %d submit_sm 消息体不完整: %v", sess.ID, err))
	}
	d.traceSubmit(sess, sm)

	if d.acceptor == nil {
		logger.Error("未配置消息接收器，拒绝提交")
		d.metrics.SubmitRejected.Inc(1)
		return respond(protocol.NewResponse(pdu, protocol.SUBMIT_SM_RESP, protocol.ESME_RSYSERR, nil))
	}

	messageID, err := d.acceptor.Accept(ctx, systemID, sm)
	if err != nil {
		logger.Error(fmt.Sprintf("客户端 %s 提交短信失败: %v", systemID, err))
		d.metrics.SubmitRejected.Inc(1)
		sess.IncrementErrors()
		return respond(protocol.NewResponse(pdu, protocol.SUBMIT_SM_RESP, protocol.ESME_RSYSERR, nil))
	}

	d.metrics.SubmitAccepted.Inc(1)
	return respond(protocol.NewResponse(pdu, protocol.SUBMIT_SM_RESP, protocol.ESME_ROK, protocol.CString(messageID)))
}

// handleDeliver ESME向接收方向发来的deliver_sm只做确认
func (d *Dispatcher) handleDeliver(_ context.Context, sess *session.Session, pdu *protocol.PDU) Result {
	logger.Debug(fmt.Sprintf("会话 %d 收到 deliver_sm, 序列号=%d", sess.ID, pdu.SequenceNumber))
	return respond(protocol.NewResponse(pdu, protocol.DELIVER_SM_RESP, protocol.ESME_ROK, protocol.CString("")))
}

// handleUnbind UNBOUND/BOUND_* -> CLOSING，写完响应后关闭连接
func (d *Dispatcher) handleUnbind(_ context.Context, sess *session.Session, pdu *protocol.PDU) Result {
	if err := sess.Unbind(); err != nil {
		return respond(protocol.NewGenericNack(pdu, protocol.ESME_RINVBNDSTS))
	}

	logger.Info(fmt.Sprintf("会话 %d (%s) 请求解绑", sess.ID, sess.SystemID()))
	return Result{
		Responses: []*protocol.PDU{protocol.NewResponse(pdu, protocol.UNBIND_RESP, protocol.ESME_ROK, nil)},
		Close:     true,
	}
}

// handleUnbindResp 服务端发起的unbind已被确认
func (d *Dispatcher) handleUnbindResp(_ context.Context, sess *session.Session, _ *protocol.PDU) Result {
	sess.Fail()
	logger.Info(fmt.Sprintf("会话 %d 已确认解绑", sess.ID))
	return Result{Close: true}
}

func (d *Dispatcher) handleEnquireLink(_ context.Context, _ *session.Session, pdu *protocol.PDU) Result {
	return respond(protocol.NewResponse(pdu, protocol.ENQUIRE_LINK_RESP, protocol.ESME_ROK, nil))
}

func (d *Dispatcher) handleGenericNack(_ context.Context, sess *session.Session, pdu *protocol.PDU) Result {
	logger.Warning(fmt.Sprintf("会话 %d 收到generic_nack: 序列号=%d, 状态=%s",
		sess.ID, pdu.SequenceNumber, protocol.StatusName(pdu.CommandStatus)))
	return Result{}
}

// consume 对服务端请求的响应，无需回复
func consume(context.Context, *session.Session, *protocol.PDU) Result {
	return Result{}
}
