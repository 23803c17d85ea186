// internal/server/connection.go  单个ESME连接
package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"smppd/internal/dispatcher"
	"smppd/internal/performance"
	"smppd/internal/protocol"
	"smppd/internal/session"
	"smppd/pkg/logger"
)

// ErrConnectionClosed 连接已关闭
var ErrConnectionClosed = errors.New("server: connection closed")

// PDUHandler 处理一个解码后的PDU
type PDUHandler interface {
	Dispatch(ctx context.Context, sess *session.Session, pdu *protocol.PDU) dispatcher.Result
}

// Connection 持有一个传输连接和它的会话。
// 读循环在单个goroutine中顺序处理PDU，写操作由互斥锁串行化。
type Connection struct {
	conn    net.Conn
	sess    *session.Session
	handler PDUHandler
	codec   protocol.Codec
	config  *ServerConfig
	metrics *performance.Metrics

	ctx    context.Context
	cancel context.CancelFunc

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    chan struct{}

	heartbeatMisses int32
}

// NewConnection 创建连接，ctx取消时连接随之关闭
func NewConnection(ctx context.Context, conn net.Conn, handler PDUHandler, config *ServerConfig, m *performance.Metrics) *Connection {
	if config == nil {
		config = &ServerConfig{}
	}
	if m == nil {
		m = performance.NewMetrics(nil)
	}

	c := &Connection{
		conn:    conn,
		sess:    session.New(conn.RemoteAddr()),
		handler: handler,
		codec:   protocol.NewCodec(config.MaxCommandLength),
		config:  config,
		metrics: m,
		closed:  make(chan struct{}),
	}
	c.ctx, c.cancel = context.WithCancel(session.WithRemoteIP(ctx, conn.RemoteAddr()))
	context.AfterFunc(c.ctx, func() { c.Close() })

	return c
}

// ID 连接ID，与会话ID相同
func (c *Connection) ID() uint64 {
	return c.sess.ID
}

// Session 连接的会话
func (c *Connection) Session() *session.Session {
	return c.sess
}

// Context 连接关闭时取消
func (c *Connection) Context() context.Context {
	return c.ctx
}

// Done 连接关闭后返回的通道被关闭
func (c *Connection) Done() <-chan struct{} {
	return c.closed
}

// Serve 运行读循环直到连接关闭。对端正常断开返回nil。
func (c *Connection) Serve() error {
	defer c.Close()

	chunk := performance.ReadBufferPool.Get()
	defer performance.ReadBufferPool.Put(chunk)

	var pending bytes.Buffer
	for {
		select {
		case <-c.ctx.Done():
			return nil
		default:
		}

		if c.config.ReadTimeout > 0 {
			if err := c.conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout)); err != nil {
				return fmt.Errorf("设置读取超时失败: %w", err)
			}
		}

		n, err := c.conn.Read(chunk)
		if n > 0 {
			c.sess.UpdateActivity()
			pending.Write(chunk[:n])

			done, derr := c.drain(&pending)
			if derr != nil {
				return derr
			}
			if done {
				return nil
			}
		}

		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				// 读取超时，继续
				continue
			}
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || c.isClosed() {
				logger.Info(fmt.Sprintf("连接已断开 (会话ID: %d, 地址: %s)", c.sess.ID, c.sess.RemoteAddr))
				return nil
			}
			return fmt.Errorf("读取消息失败: %w", err)
		}
	}
}

// drain 处理缓冲区中所有完整的PDU，返回是否应关闭连接
func (c *Connection) drain(pending *bytes.Buffer) (bool, error) {
	for {
		pdu, n, err := c.codec.Decode(pending.Bytes())
		if errors.Is(err, protocol.ErrNeedMoreData) {
			return false, nil
		}
		if err != nil {
			// 帧错误无法信任序列号，不发送任何响应
			c.metrics.RecordFrameError()
			c.sess.IncrementErrors()
			c.sess.Fail()
			logger.Error(fmt.Sprintf("会话 %d 帧错误，关闭连接: %v", c.sess.ID, err))
			return true, err
		}
		pending.Next(n)

		res := c.handler.Dispatch(c.ctx, c.sess, pdu)
		for _, resp := range res.Responses {
			if err := c.WritePDU(resp); err != nil {
				c.sess.Fail()
				return true, err
			}
		}
		if res.Close {
			return true, nil
		}
	}
}

// WritePDU 编码并写出PDU，多个goroutine调用时按顺序串行写出
func (c *Connection) WritePDU(p *protocol.PDU) error {
	if c.isClosed() {
		return ErrConnectionClosed
	}
	data := c.codec.Encode(p)

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.config.WriteTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout)); err != nil {
			return fmt.Errorf("设置写入超时失败: %w", err)
		}
	}

	if _, err := c.conn.Write(data); err != nil {
		c.sess.IncrementErrors()
		c.metrics.RecordError()
		return fmt.Errorf("发送 %s 失败: %w", p, err)
	}

	c.sess.IncrementSent()
	c.metrics.RecordSent(p.CommandID)
	return nil
}

// SendEnquireLink 发送链路查询
func (c *Connection) SendEnquireLink() error {
	return c.WritePDU(protocol.NewPDU(protocol.ENQUIRE_LINK, 0, c.sess.NextSequence(), nil))
}

// SendUnbind 发送解绑请求
func (c *Connection) SendUnbind() error {
	if !c.sess.State().IsBound() {
		return session.ErrInvalidState
	}
	return c.WritePDU(protocol.NewPDU(protocol.UNBIND, 0, c.sess.NextSequence(), nil))
}

// Deliver 向接收方向的会话下发deliver_sm，返回使用的序列号
func (c *Connection) Deliver(body []byte) (uint32, error) {
	if !c.sess.CanReceive() {
		return 0, fmt.Errorf("会话 %d 状态 %s 不能接收短信: %w", c.sess.ID, c.sess.State(), session.ErrInvalidState)
	}
	seq := c.sess.NextSequence()
	if err := c.WritePDU(protocol.NewPDU(protocol.DELIVER_SM, 0, seq, body)); err != nil {
		return 0, err
	}
	return seq, nil
}

// Close 关闭连接，可重复调用
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		err = c.conn.Close()
		c.sess.Close()
		close(c.closed)
	})
	return err
}

func (c *Connection) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// heartbeatMissed 记录一次心跳失败，返回累计次数
func (c *Connection) heartbeatMissed() int {
	return int(atomic.AddInt32(&c.heartbeatMisses, 1))
}

func (c *Connection) heartbeatOK() {
	atomic.StoreInt32(&c.heartbeatMisses, 0)
}

// SessionInfo 会话快照，用于管理接口
type SessionInfo struct {
	ID           uint64    `json:"id"`
	SystemID     string    `json:"system_id"`
	RemoteAddr   string    `json:"remote_addr"`
	State        string    `json:"state"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	BoundAt      time.Time `json:"bound_at,omitempty"`
	IdleSeconds  float64   `json:"idle_seconds"`
	ReceivedPDUs uint64    `json:"received_pdus"`
	SentPDUs     uint64    `json:"sent_pdus"`
	Errors       uint64    `json:"errors"`
}

// Info 返回会话快照
func (c *Connection) Info() SessionInfo {
	stats := c.sess.Stats()
	return SessionInfo{
		ID:           c.sess.ID,
		SystemID:     c.sess.SystemID(),
		RemoteAddr:   c.sess.RemoteAddr,
		State:        c.sess.State().String(),
		Role:         c.sess.Role().String(),
		CreatedAt:    c.sess.CreatedAt,
		BoundAt:      c.sess.BoundAt(),
		IdleSeconds:  c.sess.IdleTime().Seconds(),
		ReceivedPDUs: stats.ReceivedPDUs,
		SentPDUs:     stats.SentPDUs,
		Errors:       stats.Errors,
	}
}
