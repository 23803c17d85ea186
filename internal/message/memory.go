// internal/message/memory.go
package message

import (
	"context"
	"fmt"
	"sync"

	"smppd/internal/protocol"
	"smppd/pkg/logger"
)

// DefaultMemoryCapacity 内存存储默认保留的消息数
const DefaultMemoryCapacity = 1000

// MemoryStore 内存存储，超过容量时丢弃最旧的消息
type MemoryStore struct {
	capacity int
	messages []*Message
	index    map[string]*Message
	mu       sync.RWMutex
}

// NewMemoryStore 创建内存存储
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	return &MemoryStore{
		capacity: capacity,
		messages: make([]*Message, 0, capacity),
		index:    make(map[string]*Message),
	}
}

// Accept 保存消息
func (s *MemoryStore) Accept(ctx context.Context, systemID string, sm *protocol.SubmitSM) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	msg := newMessage(systemID, sm)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = append(s.messages, msg)
	s.index[msg.ID] = msg

	// 超过容量时删除最旧的
	if len(s.messages) > s.capacity {
		oldest := s.messages[0]
		delete(s.index, oldest.ID)
		s.messages[0] = nil
		s.messages = s.messages[1:]
	}

	logger.Debug(fmt.Sprintf("接收短信 %s: %s -> %s, %d字节", msg.ID, msg.SourceAddr, msg.DestAddr, len(msg.Content)))
	return msg.ID, nil
}

// Get 按ID查询
func (s *MemoryStore) Get(_ context.Context, id string) (*Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msg, ok := s.index[id]
	if !ok {
		return nil, fmt.Errorf("消息 %s: %w", id, ErrNotFound)
	}
	return msg, nil
}

// Query 查询消息，最新的在前
func (s *MemoryStore) Query(_ context.Context, options QueryOptions) ([]*Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*Message, 0)
	for i := len(s.messages) - 1; i >= 0; i-- {
		if options.match(s.messages[i]) {
			result = append(result, s.messages[i])
		}
	}

	// 应用分页
	if options.Limit > 0 {
		end := options.Offset + options.Limit
		if end > len(result) {
			end = len(result)
		}
		if options.Offset < end {
			result = result[options.Offset:end]
		} else {
			result = []*Message{}
		}
	}

	return result, nil
}

// Len 当前保存的消息数
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}
