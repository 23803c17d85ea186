// internal/server/session_manager.go  连接注册表
package server

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"smppd/pkg/logger"
)

// ErrSessionNotFound 会话不存在
var ErrSessionNotFound = errors.New("server: session not found")

// SessionManager 会话管理器，记录所有存活的连接
type SessionManager struct {
	sessions      sync.Map
	idleLimit     time.Duration
	cleanupTicker *time.Ticker
	done          chan struct{}
	stopOnce      sync.Once
}

// NewSessionManager 创建会话管理器。idleLimit>0 时定期关闭空闲超过该时长的连接。
func NewSessionManager(idleLimit time.Duration) *SessionManager {
	m := &SessionManager{
		idleLimit: idleLimit,
		done:      make(chan struct{}),
	}

	if idleLimit > 0 {
		m.startCleaner(idleLimit / 2)
	}

	return m
}

// startCleaner 启动会话清理器
func (m *SessionManager) startCleaner(interval time.Duration) {
	if interval < time.Second {
		interval = time.Second
	}
	m.cleanupTicker = time.NewTicker(interval)

	go func() {
		for {
			select {
			case <-m.cleanupTicker.C:
				m.cleanupSessions()
			case <-m.done:
				m.cleanupTicker.Stop()
				return
			}
		}
	}()
}

// cleanupSessions 清理已关闭或空闲过久的连接
func (m *SessionManager) cleanupSessions() {
	m.sessions.Range(func(key, value interface{}) bool {
		c := value.(*Connection)
		idle := c.Session().IdleTime()

		if c.isClosed() || idle > m.idleLimit {
			c.Close()
			m.sessions.Delete(key)
			logger.Info(fmt.Sprintf("清理过期会话: ID=%d, SystemID=%s, 空闲时间=%v",
				c.ID(), c.Session().SystemID(), idle.Truncate(time.Second)))
		}

		return true
	})
}

// Add 添加连接
func (m *SessionManager) Add(c *Connection) {
	m.sessions.Store(c.ID(), c)
}

// Get 获取连接
func (m *SessionManager) Get(id uint64) (*Connection, bool) {
	value, ok := m.sessions.Load(id)
	if !ok {
		return nil, false
	}
	return value.(*Connection), true
}

// Remove 移除连接
func (m *SessionManager) Remove(id uint64) {
	m.sessions.Delete(id)
}

// Range 遍历所有连接
func (m *SessionManager) Range(f func(*Connection) bool) {
	m.sessions.Range(func(_, value interface{}) bool {
		return f(value.(*Connection))
	})
}

// Count 获取连接数量
func (m *SessionManager) Count() int {
	count := 0
	m.sessions.Range(func(_, _ interface{}) bool {
		count++
		return true
	})
	return count
}

// CloseAll 关闭所有连接
func (m *SessionManager) CloseAll() {
	m.sessions.Range(func(key, value interface{}) bool {
		value.(*Connection).Close()
		m.sessions.Delete(key)
		return true
	})
}

// GetBySystemID 根据系统ID获取连接
func (m *SessionManager) GetBySystemID(systemID string) []*Connection {
	var result []*Connection
	m.Range(func(c *Connection) bool {
		if c.Session().SystemID() == systemID {
			result = append(result, c)
		}
		return true
	})
	return result
}

// GetActiveSessions 获取所有已绑定的连接
func (m *SessionManager) GetActiveSessions() []*Connection {
	var active []*Connection
	m.Range(func(c *Connection) bool {
		if c.Session().State().IsBound() {
			active = append(active, c)
		}
		return true
	})
	return active
}

// Snapshot 返回所有会话快照
func (m *SessionManager) Snapshot() []SessionInfo {
	infos := make([]SessionInfo, 0)
	m.Range(func(c *Connection) bool {
		infos = append(infos, c.Info())
		return true
	})
	return infos
}

// CloseSession 关闭指定的会话
func (m *SessionManager) CloseSession(sessionID uint64) error {
	value, ok := m.sessions.LoadAndDelete(sessionID)
	if !ok {
		return fmt.Errorf("会话ID %d: %w", sessionID, ErrSessionNotFound)
	}

	c := value.(*Connection)
	if c.Session().State().IsBound() {
		// 尽量通知对端，失败不影响关闭
		_ = c.SendUnbind()
	}
	return c.Close()
}

// Stop 停止会话管理器
func (m *SessionManager) Stop() {
	m.stopOnce.Do(func() {
		close(m.done)
	})
	m.CloseAll()
}
