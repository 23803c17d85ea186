// internal/performance/limiter.go
package performance

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"

	"smppd/pkg/logger"
)

// RateLimiter 按客户端(system_id)限流
type RateLimiter struct {
	// 限流器映射
	limiters map[string]*rate.Limiter

	// 单独配置的客户端速率
	overrides map[string]float64

	// 未单独配置时的默认速率，<=0 表示不限
	defaultRPS float64

	mu      sync.Mutex
	enabled bool
}

// NewRateLimiter 创建速率限制器，defaultRPS<=0 时默认不限流
func NewRateLimiter(defaultRPS float64) *RateLimiter {
	return &RateLimiter{
		limiters:   make(map[string]*rate.Limiter),
		overrides:  make(map[string]float64),
		defaultRPS: defaultRPS,
		enabled:    true,
	}
}

func newLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// limiter 返回客户端的限流器，不存在时按配置创建
func (r *RateLimiter) limiter(clientID string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	if l, ok := r.limiters[clientID]; ok {
		return l
	}

	rps := r.defaultRPS
	if v, ok := r.overrides[clientID]; ok {
		rps = v
	}
	l := newLimiter(rps)
	r.limiters[clientID] = l
	return l
}

// SetClientLimit 设置客户端限制
func (r *RateLimiter) SetClientLimit(clientID string, rps float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.overrides[clientID] = rps
	r.limiters[clientID] = newLimiter(rps)
	logger.Info(fmt.Sprintf("为客户端 %s 设置限流: %.2f RPS", clientID, rps))
}

// RemoveClientLimit 移除客户端限制，恢复默认速率
func (r *RateLimiter) RemoveClientLimit(clientID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.overrides, clientID)
	delete(r.limiters, clientID)
	logger.Info(fmt.Sprintf("移除客户端 %s 的限流设置", clientID))
}

// Allow 检查是否允许请求
func (r *RateLimiter) Allow(clientID string) bool {
	if !r.IsEnabled() {
		return true
	}
	return r.limiter(clientID).Allow()
}

// Wait 等待直到允许请求
func (r *RateLimiter) Wait(ctx context.Context, clientID string) error {
	if !r.IsEnabled() {
		return nil
	}
	return r.limiter(clientID).Wait(ctx)
}

// SetEnabled 设置启用状态
func (r *RateLimiter) SetEnabled(enabled bool) {
	r.mu.Lock()
	r.enabled = enabled
	r.mu.Unlock()

	logger.Info(fmt.Sprintf("速率限制器状态设置为: %v", enabled))
}

// IsEnabled 检查是否启用
func (r *RateLimiter) IsEnabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.enabled
}
