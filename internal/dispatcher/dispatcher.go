// internal/dispatcher/dispatcher.go  命令分发器
package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"smppd/internal/performance"
	"smppd/internal/protocol"
	"smppd/internal/session"
	"smppd/pkg/logger"
)

// DefaultSystemID 绑定响应中返回的服务端system_id
const DefaultSystemID = "smppserver"

// Config 分发器配置
type Config struct {
	// SystemID 服务端system_id
	SystemID string

	// LogContent 是否在调试日志中输出短信内容
	LogContent bool
}

// Dispatcher 按命令ID查表分发PDU。
// 除传入的Session外不修改任何状态，可被多个连接并发使用。
type Dispatcher struct {
	config   Config
	auth     Authenticator
	acceptor MessageAcceptor
	limiter  Limiter
	metrics  *performance.Metrics

	mu       sync.RWMutex
	handlers map[uint32]HandlerFunc

	// 统计数据
	stats struct {
		dispatched uint64
		errors     uint64
		totalTime  int64
	}
}

// NewDispatcher 创建分发器，limiter与metrics可以为nil
func NewDispatcher(cfg Config, auth Authenticator, acceptor MessageAcceptor, limiter Limiter, m *performance.Metrics) *Dispatcher {
	if cfg.SystemID == "" {
		cfg.SystemID = DefaultSystemID
	}
	if m == nil {
		m = performance.NewMetrics(nil)
	}

	d := &Dispatcher{
		config:   cfg,
		auth:     auth,
		acceptor: acceptor,
		limiter:  limiter,
		metrics:  m,
	}

	d.handlers = map[uint32]HandlerFunc{
		protocol.BIND_RECEIVER:     d.handleBind,
		protocol.BIND_TRANSMITTER:  d.handleBind,
		protocol.BIND_TRANSCEIVER:  d.handleBind,
		protocol.SUBMIT_SM:         d.handleSubmit,
		protocol.DELIVER_SM:        d.handleDeliver,
		protocol.UNBIND:            d.handleUnbind,
		protocol.UNBIND_RESP:       d.handleUnbindResp,
		protocol.ENQUIRE_LINK:      d.handleEnquireLink,
		protocol.ENQUIRE_LINK_RESP: consume,
		protocol.DELIVER_SM_RESP:   consume,
		protocol.GENERIC_NACK:      d.handleGenericNack,
	}

	return d
}

// SystemID 服务端system_id
func (d *Dispatcher) SystemID() string {
	return d.config.SystemID
}

// Metrics 分发器使用的指标收集器
func (d *Dispatcher) Metrics() *performance.Metrics {
	return d.metrics
}

// RegisterHandler 注册或替换命令处理函数
func (d *Dispatcher) RegisterHandler(commandID uint32, h HandlerFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.handlers[commandID] = h
	logger.Info(fmt.Sprintf("已注册命令处理器: %s", protocol.CommandName(commandID)))
}

func (d *Dispatcher) handler(commandID uint32) (HandlerFunc, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	h, ok := d.handlers[commandID]
	return h, ok
}

// Dispatch 处理一个PDU，返回需要写回的响应。
// 所有响应的序列号都等于请求的序列号。
func (d *Dispatcher) Dispatch(ctx context.Context, sess *session.Session, pdu *protocol.PDU) (res Result) {
	start := time.Now()
	sess.IncrementReceived()
	d.metrics.RecordReceived(pdu.CommandID)
	d.traceIncoming(sess, pdu)

	defer func() {
		if r := recover(); r != nil {
			logger.Critical(fmt.Sprintf("会话 %d 处理 %s 时发生panic: %v", sess.ID, pdu, r))
			sess.Fail()
			res = Result{Close: true}
		}

		if len(res.Responses) > 0 && res.Responses[0].CommandID == protocol.GENERIC_NACK {
			atomic.AddUint64(&d.stats.errors, 1)
			sess.IncrementErrors()
			d.metrics.RecordError()
		}

		elapsed := time.Since(start)
		atomic.AddUint64(&d.stats.dispatched, 1)
		atomic.AddInt64(&d.stats.totalTime, elapsed.Nanoseconds())
		d.metrics.RecordDispatch(start)
	}()

	// 关闭中的会话不再处理任何PDU
	st := sess.State()
	if st == session.Closing || st == session.Closed {
		logger.Debug(fmt.Sprintf("会话 %d 处于 %s 状态，丢弃 %s", sess.ID, st, pdu))
		return Result{}
	}

	h, ok := d.handler(pdu.CommandID)
	if !ok {
		logger.Warning(fmt.Sprintf("会话 %d 收到未知命令: %s", sess.ID, pdu))
		return respond(protocol.NewGenericNack(pdu, protocol.ESME_RINVCMDID))
	}

	if !sess.Allows(pdu.CommandID) {
		// ESME的响应不能再用generic_nack回应
		if protocol.IsResponse(pdu.CommandID) {
			logger.Debug(fmt.Sprintf("会话 %d 在 %s 状态下忽略 %s", sess.ID, st, pdu))
			return Result{}
		}
		logger.Warning(fmt.Sprintf("会话 %d 在 %s 状态下不允许 %s", sess.ID, st, protocol.CommandName(pdu.CommandID)))
		return respond(protocol.NewGenericNack(pdu, protocol.ESME_RINVBNDSTS))
	}

	return h(ctx, sess, pdu)
}

// GetStats 获取统计信息
func (d *Dispatcher) GetStats() map[string]interface{} {
	dispatched := atomic.LoadUint64(&d.stats.dispatched)
	errors := atomic.LoadUint64(&d.stats.errors)
	totalTime := atomic.LoadInt64(&d.stats.totalTime)

	var avgTime float64
	if dispatched > 0 {
		avgTime = float64(totalTime) / float64(dispatched) / float64(time.Millisecond)
	}

	return map[string]interface{}{
		"dispatched":  dispatched,
		"errors":      errors,
		"avg_time_ms": avgTime,
	}
}
