// internal/performance/memory_pool.go
package performance

import (
	"sync"
)

// BufferPool 连接读缓冲区内存池
type BufferPool struct {
	pool sync.Pool
	size int
}

// NewBufferPool 创建固定大小的缓冲区池
func NewBufferPool(bufferSize int) *BufferPool {
	return &BufferPool{
		pool: sync.Pool{
			New: func() interface{} {
				buf := make([]byte, bufferSize)
				return &buf
			},
		},
		size: bufferSize,
	}
}

// Get 获取缓冲区
func (p *BufferPool) Get() []byte {
	return *(p.pool.Get().(*[]byte))
}

// Put 归还缓冲区，容量不足的缓冲区直接丢弃
func (p *BufferPool) Put(buf []byte) {
	if cap(buf) < p.size {
		return
	}
	buf = buf[:p.size]
	p.pool.Put(&buf)
}

// Size 缓冲区大小
func (p *BufferPool) Size() int {
	return p.size
}

// ReadBufferPool 连接读循环使用的4KB缓冲区池
var ReadBufferPool = NewBufferPool(4 * 1024)
