// internal/client/esme.go  ESME客户端实现，用于测试工具和压测
package client

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"smppd/internal/protocol"
	"smppd/pkg/logger"
)

// ErrClosed 客户端已关闭
var ErrClosed = errors.New("client: closed")

// Config 客户端配置
type Config struct {
	Address         string        // 服务器地址
	SystemID        string        // 系统ID
	Password        string        // 密码
	SystemType      string        // 系统类型
	BindCommand     uint32        // 绑定命令，默认bind_transceiver
	DialTimeout     time.Duration // 连接超时
	ResponseTimeout time.Duration // 响应超时
	EnquireInterval time.Duration // 心跳间隔，0表示不发送
}

func (c *Config) applyDefaults() {
	if c.BindCommand == 0 {
		c.BindCommand = protocol.BIND_TRANSCEIVER
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.ResponseTimeout <= 0 {
		c.ResponseTimeout = 5 * time.Second
	}
}

// BindError 服务端拒绝绑定
type BindError struct {
	Status uint32
}

func (e *BindError) Error() string {
	return fmt.Sprintf("绑定失败，状态码: %s", protocol.StatusName(e.Status))
}

// ESME 已绑定的客户端连接
type ESME struct {
	config   Config
	conn     net.Conn
	serverID string
	seq      uint32

	sendMutex sync.Mutex
	pendingMu sync.Mutex
	pending   map[uint32]chan *protocol.PDU

	deliveries chan *protocol.SubmitSM
	done       chan struct{}
	closeOnce  sync.Once
	err        error

	// 统计
	stats struct {
		sentMessages     uint64
		receivedMessages uint64
		deliveries       uint64
		errors           uint64
	}
}

// Dial 建立连接并完成绑定
func Dial(ctx context.Context, config Config) (*ESME, error) {
	config.applyDefaults()

	dialer := net.Dialer{Timeout: config.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", config.Address)
	if err != nil {
		return nil, fmt.Errorf("连接失败: %w", err)
	}

	e := newESME(conn, config)
	if err := e.bind(ctx); err != nil {
		conn.Close()
		return nil, err
	}

	go e.readLoop()
	if config.EnquireInterval > 0 {
		go e.heartbeatLoop()
	}
	return e, nil
}

func newESME(conn net.Conn, config Config) *ESME {
	return &ESME{
		config:     config,
		conn:       conn,
		pending:    make(map[uint32]chan *protocol.PDU),
		deliveries: make(chan *protocol.SubmitSM, 64),
		done:       make(chan struct{}),
	}
}

// bind 发送绑定请求并同步等待响应
func (e *ESME) bind(ctx context.Context) error {
	req := &protocol.BindRequest{
		SystemID:         e.config.SystemID,
		Password:         e.config.Password,
		SystemType:       e.config.SystemType,
		InterfaceVersion: protocol.InterfaceVersion34,
	}
	if err := e.send(protocol.NewPDU(e.config.BindCommand, 0, e.nextSeq(), req.Marshal())); err != nil {
		return fmt.Errorf("发送绑定请求失败: %w", err)
	}

	deadline := time.Now().Add(e.config.ResponseTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := e.conn.SetReadDeadline(deadline); err != nil {
		return err
	}
	defer e.conn.SetReadDeadline(time.Time{})

	resp, err := readPDU(e.conn)
	if err != nil {
		return fmt.Errorf("读取绑定响应失败: %w", err)
	}
	if resp.CommandStatus != protocol.ESME_ROK {
		return &BindError{Status: resp.CommandStatus}
	}
	if want, _ := protocol.ResponseID(e.config.BindCommand); resp.CommandID != want {
		return fmt.Errorf("预期绑定响应，收到 %s", protocol.CommandName(resp.CommandID))
	}

	e.serverID = cString(resp.Body)
	logger.Info(fmt.Sprintf("成功绑定到 %s (system_id: %s)", e.config.Address, e.serverID))
	return nil
}

// ServerSystemID 服务端在绑定响应中返回的system_id
func (e *ESME) ServerSystemID() string {
	return e.serverID
}

func (e *ESME) nextSeq() uint32 {
	return atomic.AddUint32(&e.seq, 1)
}

// send 发送消息
func (e *ESME) send(p *protocol.PDU) error {
	e.sendMutex.Lock()
	defer e.sendMutex.Unlock()

	if err := e.conn.SetWriteDeadline(time.Now().Add(e.config.ResponseTimeout)); err != nil {
		return err
	}
	if _, err := e.conn.Write(protocol.Encode(p)); err != nil {
		atomic.AddUint64(&e.stats.errors, 1)
		return err
	}

	atomic.AddUint64(&e.stats.sentMessages, 1)
	return nil
}

// request 发送请求并等待相同序列号的响应
func (e *ESME) request(ctx context.Context, commandID uint32, body []byte) (*protocol.PDU, error) {
	seq := e.nextSeq()
	ch := make(chan *protocol.PDU, 1)

	e.pendingMu.Lock()
	e.pending[seq] = ch
	e.pendingMu.Unlock()
	defer func() {
		e.pendingMu.Lock()
		delete(e.pending, seq)
		e.pendingMu.Unlock()
	}()

	if err := e.send(protocol.NewPDU(commandID, 0, seq, body)); err != nil {
		return nil, err
	}

	timer := time.NewTimer(e.config.ResponseTimeout)
	defer timer.Stop()

	select {
	case resp := <-ch:
		return resp, nil
	case <-e.done:
		// 读循环在关闭前可能已投递响应
		select {
		case resp := <-ch:
			return resp, nil
		default:
			return nil, ErrClosed
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, fmt.Errorf("等待 %s 响应超时", protocol.CommandName(commandID))
	}
}

// Submit 提交短信，返回服务端分配的消息ID和命令状态
func (e *ESME) Submit(ctx context.Context, sm *protocol.SubmitSM) (string, uint32, error) {
	resp, err := e.request(ctx, protocol.SUBMIT_SM, sm.Marshal())
	if err != nil {
		return "", 0, err
	}
	return cString(resp.Body), resp.CommandStatus, nil
}

// EnquireLink 发送链路查询并等待响应
func (e *ESME) EnquireLink(ctx context.Context) error {
	resp, err := e.request(ctx, protocol.ENQUIRE_LINK, nil)
	if err != nil {
		return err
	}
	if resp.CommandStatus != protocol.ESME_ROK {
		return fmt.Errorf("链路查询失败: %s", protocol.StatusName(resp.CommandStatus))
	}
	return nil
}

// Unbind 解绑并关闭连接
func (e *ESME) Unbind(ctx context.Context) error {
	defer e.Close()

	resp, err := e.request(ctx, protocol.UNBIND, nil)
	if err != nil {
		return err
	}
	if resp.CommandStatus != protocol.ESME_ROK {
		return fmt.Errorf("解绑失败: %s", protocol.StatusName(resp.CommandStatus))
	}
	return nil
}

// Deliveries 服务端下发的短信
func (e *ESME) Deliveries() <-chan *protocol.SubmitSM {
	return e.deliveries
}

// Done 连接关闭后关闭
func (e *ESME) Done() <-chan struct{} {
	return e.done
}

// Err 读循环退出的原因
func (e *ESME) Err() error {
	<-e.done
	return e.err
}

// Close 关闭连接
func (e *ESME) Close() error {
	var err error
	e.closeOnce.Do(func() {
		err = e.conn.Close()
		close(e.done)
	})
	return err
}

// readLoop 读取消息循环
func (e *ESME) readLoop() {
	defer e.Close()

	for {
		pdu, err := readPDU(e.conn)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				e.err = err
				logger.Error(fmt.Sprintf("读取错误: %v", err))
			}
			return
		}
		atomic.AddUint64(&e.stats.receivedMessages, 1)

		if protocol.IsResponse(pdu.CommandID) {
			e.pendingMu.Lock()
			ch, ok := e.pending[pdu.SequenceNumber]
			e.pendingMu.Unlock()
			if !ok {
				logger.Debug(fmt.Sprintf("丢弃未匹配的响应 %s", pdu))
				continue
			}
			// 同一序列号的重复响应直接丢弃
			select {
			case ch <- pdu:
			default:
				logger.Warning(fmt.Sprintf("丢弃重复的响应 %s", pdu))
			}
			continue
		}

		switch pdu.CommandID {
		case protocol.DELIVER_SM:
			sm, err := protocol.ParseSubmitSM(pdu.Body)
			status := protocol.ESME_ROK
			if err != nil {
				status = protocol.ESME_RSYSERR
				logger.Error(fmt.Sprintf("解析DELIVER_SM失败: %v", err))
			} else {
				atomic.AddUint64(&e.stats.deliveries, 1)
				select {
				case e.deliveries <- sm:
				default:
					logger.Warning("下发队列已满，丢弃短信")
				}
			}
			if err := e.send(protocol.NewResponse(pdu, protocol.DELIVER_SM_RESP, status, protocol.CString(""))); err != nil {
				logger.Error(fmt.Sprintf("发送DELIVER_SM响应失败: %v", err))
			}

		case protocol.ENQUIRE_LINK:
			if err := e.send(protocol.NewResponse(pdu, protocol.ENQUIRE_LINK_RESP, protocol.ESME_ROK, nil)); err != nil {
				logger.Error(fmt.Sprintf("发送ENQUIRE_LINK响应失败: %v", err))
			}

		case protocol.UNBIND:
			logger.Info("服务端请求解绑")
			e.send(protocol.NewResponse(pdu, protocol.UNBIND_RESP, protocol.ESME_ROK, nil))
			return

		default:
			e.send(protocol.NewGenericNack(pdu, protocol.ESME_RINVCMDID))
		}
	}
}

// heartbeatLoop 定期发送链路查询，连续三次失败后断开
func (e *ESME) heartbeatLoop() {
	ticker := time.NewTicker(e.config.EnquireInterval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-e.done:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), e.config.ResponseTimeout)
			err := e.EnquireLink(ctx)
			cancel()
			if err == nil {
				failures = 0
				continue
			}
			failures++
			logger.Error(fmt.Sprintf("链路查询失败 (%d/3): %v", failures, err))
			if failures >= 3 {
				logger.Error("连续三次链路查询失败，断开连接")
				e.Close()
				return
			}
		}
	}
}

// GetStats 获取统计信息
func (e *ESME) GetStats() map[string]uint64 {
	return map[string]uint64{
		"sent_messages":     atomic.LoadUint64(&e.stats.sentMessages),
		"received_messages": atomic.LoadUint64(&e.stats.receivedMessages),
		"deliveries":        atomic.LoadUint64(&e.stats.deliveries),
		"errors":            atomic.LoadUint64(&e.stats.errors),
	}
}

// readPDU 读取一个完整的PDU
func readPDU(r io.Reader) (*protocol.PDU, error) {
	header := make([]byte, protocol.HeaderLength)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}

	length := binary.BigEndian.Uint32(header[0:4])
	if length < protocol.HeaderLength || length > protocol.DefaultMaxCommandLength {
		return nil, fmt.Errorf("消息长度异常: %d", length)
	}

	frame := make([]byte, length)
	copy(frame, header)
	if _, err := io.ReadFull(r, frame[protocol.HeaderLength:]); err != nil {
		return nil, err
	}

	pdu, _, err := protocol.Decode(frame)
	return pdu, err
}

func cString(b []byte) string {
	for i, v := range b {
		if v == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
