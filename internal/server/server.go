// internal/server/server.go
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"smppd/internal/performance"
	"smppd/pkg/logger"
)

// 默认配置
const (
	DefaultListenAddress          = "0.0.0.0:2775"
	DefaultSystemID               = "smppserver"
	DefaultHeartbeatInterval      = 30 * time.Second
	DefaultHeartbeatMissThreshold = 3
)

// ServerConfig 服务器配置，时间字段在配置文件中以秒为单位
type ServerConfig struct {
	ListenAddress          string        `yaml:"listen_address"`
	SystemID               string        `yaml:"system_id"`
	MaxConnections         int           `yaml:"max_connections"`
	ReadTimeout            time.Duration `yaml:"read_timeout"`
	WriteTimeout           time.Duration `yaml:"write_timeout"`
	HeartbeatInterval      time.Duration `yaml:"heartbeat_interval"`
	HeartbeatMissThreshold int           `yaml:"heartbeat_miss_threshold"`
	IdleTimeout            time.Duration `yaml:"idle_timeout"`
	MaxCommandLength       int           `yaml:"max_command_length"`
}

// applyDefaults 为无效配置设置默认值
func (c *ServerConfig) applyDefaults() {
	if c.ListenAddress == "" {
		c.ListenAddress = DefaultListenAddress
		logger.Warning("监听地址为空，设置为默认值0.0.0.0:2775")
	}
	if c.SystemID == "" {
		c.SystemID = DefaultSystemID
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = DefaultHeartbeatInterval
		logger.Warning("心跳间隔配置无效(<=0)，设置为默认值30秒")
	}
	if c.HeartbeatMissThreshold <= 0 {
		c.HeartbeatMissThreshold = DefaultHeartbeatMissThreshold
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 5 * time.Second
		logger.Warning("读取超时配置无效(<=0)，设置为默认值5秒")
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
		logger.Warning("写入超时配置无效(<=0)，设置为默认值5秒")
	}
}

// AddrFilter 连接建立时检查来源IP
type AddrFilter interface {
	Check(ip net.IP) bool
}

// Option 服务器选项
type Option func(*Server)

// WithAddrFilter 设置来源地址过滤器
func WithAddrFilter(f AddrFilter) Option {
	return func(s *Server) { s.filter = f }
}

// WithMetrics 设置指标收集器
func WithMetrics(m *performance.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// Server SMPP服务器
type Server struct {
	config     *ServerConfig
	handler    PDUHandler
	filter     AddrFilter
	metrics    *performance.Metrics
	sessionMgr *SessionManager
	listener   net.Listener

	// 上下文控制
	ctx    context.Context
	cancel context.CancelFunc

	// 统计
	stats struct {
		activeConnections   int64
		totalConnections    uint64
		rejectedConnections uint64
	}

	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewServer 创建新的服务器
func NewServer(config *ServerConfig, handler PDUHandler, opts ...Option) *Server {
	if config == nil {
		config = &ServerConfig{}
	}
	s := &Server{
		config:  config,
		handler: handler,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = performance.GetMetrics()
	}
	s.sessionMgr = NewSessionManager(config.IdleTimeout)
	return s
}

// Start 监听配置的地址并启动服务
func (s *Server) Start(ctx context.Context) error {
	s.config.applyDefaults()

	listener, err := net.Listen("tcp", s.config.ListenAddress)
	if err != nil {
		return fmt.Errorf("监听失败: %w", err)
	}

	s.Serve(ctx, listener)
	return nil
}

// Serve 在已有监听器上启动服务，立即返回
func (s *Server) Serve(ctx context.Context, listener net.Listener) {
	s.config.applyDefaults()
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.listener = listener
	logger.Info(fmt.Sprintf("服务器监听于 %s", listener.Addr()))

	// 启动接受连接循环
	s.wg.Add(1)
	go s.acceptLoop()

	// 启动心跳检测
	s.wg.Add(1)
	go s.heartbeatLoop()
}

// Addr 监听地址
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop 停止服务器，向已绑定的会话发送unbind后关闭所有连接
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		if s.listener != nil {
			s.listener.Close()
		}

		s.sessionMgr.Range(func(c *Connection) bool {
			if c.Session().State().IsBound() {
				if err := c.SendUnbind(); err != nil {
					logger.Debug(fmt.Sprintf("向会话 %d 发送unbind失败: %v", c.ID(), err))
				}
			}
			return true
		})
		s.sessionMgr.Stop()

		if s.cancel != nil {
			s.cancel()
		}

		s.wg.Wait()
		logger.Info("服务器已停止")
	})
}

// acceptLoop 接受连接循环
func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		// 检查上下文是否取消
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		// 检查是否达到最大连接数
		if s.config.MaxConnections > 0 && atomic.LoadInt64(&s.stats.activeConnections) >= int64(s.config.MaxConnections) {
			time.Sleep(100 * time.Millisecond)
			continue
		}

		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || s.ctx.Err() != nil {
				return
			}

			// 其余错误视为临时错误，稍后重试
			logger.Error(fmt.Sprintf("接受连接失败: %v", err))
			time.Sleep(100 * time.Millisecond)
			continue
		}

		if !s.allowed(conn.RemoteAddr()) {
			atomic.AddUint64(&s.stats.rejectedConnections, 1)
			logger.Warning(fmt.Sprintf("拒绝来自 %s 的连接: 不在IP白名单中", conn.RemoteAddr()))
			conn.Close()
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.HandleConn(conn)
		}()
	}
}

func (s *Server) allowed(addr net.Addr) bool {
	if s.filter == nil {
		return true
	}
	tcpAddr, ok := addr.(*net.TCPAddr)
	if !ok {
		return false
	}
	return s.filter.Check(tcpAddr.IP)
}

// HandleConn 在当前goroutine中处理一个连接直到其关闭
func (s *Server) HandleConn(conn net.Conn) {
	ctx := s.ctx
	if ctx == nil {
		ctx = context.Background()
	}

	c := NewConnection(ctx, conn, s.handler, s.config, s.metrics)
	s.sessionMgr.Add(c)
	atomic.AddInt64(&s.stats.activeConnections, 1)
	atomic.AddUint64(&s.stats.totalConnections, 1)
	s.metrics.ConnectionOpened()

	logger.Info(fmt.Sprintf("新连接已建立 (会话ID: %d, 来源: %s)", c.ID(), c.Session().RemoteAddr))

	defer func() {
		s.sessionMgr.Remove(c.ID())
		atomic.AddInt64(&s.stats.activeConnections, -1)
		s.metrics.ConnectionClosed()
		logger.Info(fmt.Sprintf("会话已关闭 (ID: %d, 系统ID: %s)", c.ID(), c.Session().SystemID()))
	}()

	if err := c.Serve(); err != nil {
		logger.Error(fmt.Sprintf("会话 %d 异常结束: %v", c.ID(), err))
	}
}

// heartbeatLoop 心跳检测循环
func (s *Server) heartbeatLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.checkSessionHeartbeats()
		}
	}
}

// checkSessionHeartbeats 向空闲的已绑定会话发送enquire_link
func (s *Server) checkSessionHeartbeats() {
	s.sessionMgr.Range(func(c *Connection) bool {
		sess := c.Session()
		if !sess.State().IsBound() {
			return true
		}

		if sess.IdleTime() <= s.config.HeartbeatInterval {
			return true
		}

		if err := c.SendEnquireLink(); err != nil {
			misses := c.heartbeatMissed()
			logger.Error(fmt.Sprintf("发送心跳失败 (会话ID: %d, 系统ID: %s, 错误次数: %d/%d): %v",
				c.ID(), sess.SystemID(), misses, s.config.HeartbeatMissThreshold, err))

			// 达到最大错误次数，关闭会话
			if misses >= s.config.HeartbeatMissThreshold {
				logger.Error(fmt.Sprintf("心跳检测失败次数过多，关闭会话 (ID: %d, 系统ID: %s)",
					c.ID(), sess.SystemID()))
				c.Close()
			}
		} else {
			c.heartbeatOK()
		}

		return true
	})
}

// Deliver 向指定system_id的所有接收方向会话下发deliver_sm，返回成功数量
func (s *Server) Deliver(systemID string, body []byte) (int, error) {
	var delivered int
	var lastErr error

	for _, c := range s.sessionMgr.GetBySystemID(systemID) {
		if !c.Session().CanReceive() {
			continue
		}
		if _, err := c.Deliver(body); err != nil {
			logger.Error(fmt.Sprintf("下发短信到会话 %d 失败: %v", c.ID(), err))
			lastErr = err
			continue
		}
		delivered++
	}

	if delivered == 0 {
		if lastErr != nil {
			return 0, lastErr
		}
		return 0, fmt.Errorf("system_id %s 没有可接收的会话: %w", systemID, ErrSessionNotFound)
	}
	return delivered, nil
}

// GetSessionManager 返回服务器的会话管理器
func (s *Server) GetSessionManager() *SessionManager {
	return s.sessionMgr
}

// GetStats 获取统计信息
func (s *Server) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"active_connections":   atomic.LoadInt64(&s.stats.activeConnections),
		"total_connections":    atomic.LoadUint64(&s.stats.totalConnections),
		"rejected_connections": atomic.LoadUint64(&s.stats.rejectedConnections),
		"bound_sessions":       len(s.sessionMgr.GetActiveSessions()),
	}
}
