// internal/session/session.go  会话状态机
package session

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"smppd/internal/protocol"
)

// ErrInvalidState 当前状态下不允许该操作
var ErrInvalidState = errors.New("session: invalid bind state")

// State 会话状态
type State int

// 会话状态
const (
	Unbound State = iota
	BoundRX
	BoundTX
	BoundTRX
	Closing
	Closed
)

var stateNames = map[State]string{
	Unbound:  "UNBOUND",
	BoundRX:  "BOUND_RX",
	BoundTX:  "BOUND_TX",
	BoundTRX: "BOUND_TRX",
	Closing:  "CLOSING",
	Closed:   "CLOSED",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("STATE(%d)", int(s))
}

// IsBound 是否处于任一绑定状态
func (s State) IsBound() bool {
	return s == BoundRX || s == BoundTX || s == BoundTRX
}

// Role 绑定角色
type Role int

// 绑定角色
const (
	RoleNone Role = iota
	RoleReceiver
	RoleTransmitter
	RoleTransceiver
)

func (r Role) String() string {
	switch r {
	case RoleReceiver:
		return "receiver"
	case RoleTransmitter:
		return "transmitter"
	case RoleTransceiver:
		return "transceiver"
	default:
		return "none"
	}
}

// RoleForBind 返回绑定命令对应的角色
func RoleForBind(commandID uint32) (Role, bool) {
	switch commandID {
	case protocol.BIND_RECEIVER:
		return RoleReceiver, true
	case protocol.BIND_TRANSMITTER:
		return RoleTransmitter, true
	case protocol.BIND_TRANSCEIVER:
		return RoleTransceiver, true
	}
	return RoleNone, false
}

func (r Role) boundState() State {
	switch r {
	case RoleReceiver:
		return BoundRX
	case RoleTransmitter:
		return BoundTX
	case RoleTransceiver:
		return BoundTRX
	}
	return Unbound
}

// 全局会话ID计数器
var globalSessionID uint64

// Session 表示一个连接上的SMPP会话，只属于一个连接。
// 状态只由分发器修改，其他goroutine通过访问方法读取快照。
type Session struct {
	ID         uint64
	RemoteAddr string
	CreatedAt  time.Time

	mu       sync.RWMutex
	state    State
	role     Role
	systemID string
	boundAt  time.Time

	sequenceNum  uint32
	lastActivity int64

	// 统计信息
	receivedPDUs uint64
	sentPDUs     uint64
	errors       uint64
}

// New 创建处于UNBOUND状态的会话
func New(remote net.Addr) *Session {
	addr := ""
	if remote != nil {
		addr = remote.String()
	}
	now := time.Now()
	return &Session{
		ID:           atomic.AddUint64(&globalSessionID, 1),
		RemoteAddr:   addr,
		CreatedAt:    now,
		state:        Unbound,
		lastActivity: now.UnixNano(),
	}
}

// State 当前状态
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Role 当前绑定角色
func (s *Session) Role() Role {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.role
}

// SystemID 绑定成功后的系统ID
func (s *Session) SystemID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.systemID
}

// BoundAt 绑定时间，未绑定时为零值
func (s *Session) BoundAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.boundAt
}

// Bind UNBOUND -> BOUND_*，其他状态返回 ErrInvalidState
func (s *Session) Bind(role Role, systemID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Unbound {
		return fmt.Errorf("bind as %s in %s: %w", role, s.state, ErrInvalidState)
	}
	if role == RoleNone {
		return fmt.Errorf("bind without role: %w", ErrInvalidState)
	}

	s.state = role.boundState()
	s.role = role
	s.systemID = systemID
	s.boundAt = time.Now()
	return nil
}

// Unbind UNBOUND/BOUND_* -> CLOSING
func (s *Session) Unbind() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Unbound && !s.state.IsBound() {
		return fmt.Errorf("unbind in %s: %w", s.state, ErrInvalidState)
	}
	s.state = Closing
	return nil
}

// Fail 协议或传输错误，任意非终止状态 -> CLOSING
func (s *Session) Fail() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Closed {
		s.state = Closing
	}
}

// Close 进入终止状态，可重复调用
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = Closed
	s.role = RoleNone
}

// CanTransmit ESME可以提交短信
func (s *Session) CanTransmit() bool {
	st := s.State()
	return st == BoundTX || st == BoundTRX
}

// CanReceive ESME可以接收短信
func (s *Session) CanReceive() bool {
	st := s.State()
	return st == BoundRX || st == BoundTRX
}

// Allows 当前状态下ESME发来的命令是否合法
func (s *Session) Allows(commandID uint32) bool {
	st := s.State()
	if st == Closing || st == Closed {
		return false
	}

	switch commandID {
	case protocol.BIND_RECEIVER, protocol.BIND_TRANSMITTER, protocol.BIND_TRANSCEIVER:
		return st == Unbound
	case protocol.SUBMIT_SM:
		return st == BoundTX || st == BoundTRX
	case protocol.DELIVER_SM, protocol.DELIVER_SM_RESP:
		return st == BoundRX || st == BoundTRX
	case protocol.UNBIND:
		return true
	case protocol.UNBIND_RESP:
		return st.IsBound()
	case protocol.ENQUIRE_LINK, protocol.ENQUIRE_LINK_RESP, protocol.GENERIC_NACK:
		return true
	}
	return false
}

// NextSequence 服务器主动发起的PDU使用的序列号，跳过0
func (s *Session) NextSequence() uint32 {
	for {
		seq := atomic.AddUint32(&s.sequenceNum, 1)
		if seq != 0 {
			return seq
		}
	}
}

// UpdateActivity 更新最后活动时间
func (s *Session) UpdateActivity() {
	atomic.StoreInt64(&s.lastActivity, time.Now().UnixNano())
}

// IdleTime 获取空闲时间
func (s *Session) IdleTime() time.Duration {
	return time.Since(time.Unix(0, atomic.LoadInt64(&s.lastActivity)))
}

// IncrementReceived 增加已接收PDU计数
func (s *Session) IncrementReceived() {
	atomic.AddUint64(&s.receivedPDUs, 1)
}

// IncrementSent 增加已发送PDU计数
func (s *Session) IncrementSent() {
	atomic.AddUint64(&s.sentPDUs, 1)
}

// IncrementErrors 增加错误计数
func (s *Session) IncrementErrors() {
	atomic.AddUint64(&s.errors, 1)
}

// Stats 会话统计快照
type Stats struct {
	ReceivedPDUs uint64
	SentPDUs     uint64
	Errors       uint64
}

// Stats 返回统计快照
func (s *Session) Stats() Stats {
	return Stats{
		ReceivedPDUs: atomic.LoadUint64(&s.receivedPDUs),
		SentPDUs:     atomic.LoadUint64(&s.sentPDUs),
		Errors:       atomic.LoadUint64(&s.errors),
	}
}
