// internal/auth/account.go
package auth

import (
	"context"
	"fmt"
	"time"

	"smppd/pkg/logger"
)

// AccountManager 定期从数据库重新加载账户
type AccountManager struct {
	authenticator  *Authenticator
	reloadInterval time.Duration
	onReload       func(*Authenticator)
	done           chan struct{}
}

// NewAccountManager 创建账户管理器
func NewAccountManager(authenticator *Authenticator, reloadInterval time.Duration) *AccountManager {
	if reloadInterval <= 0 {
		reloadInterval = time.Minute
	}
	return &AccountManager{
		authenticator:  authenticator,
		reloadInterval: reloadInterval,
		done:           make(chan struct{}),
	}
}

// OnReload 设置每次成功加载账户后的回调，需在Start之前调用
func (m *AccountManager) OnReload(f func(*Authenticator)) {
	m.onReload = f
}

// Start 首次加载账户并启动定期重载
func (m *AccountManager) Start(ctx context.Context) error {
	if err := m.reload(ctx); err != nil {
		return err
	}

	go m.reloadLoop(ctx)
	return nil
}

// Stop 停止账户管理器
func (m *AccountManager) Stop() {
	close(m.done)
}

// reloadLoop 定期重新加载账户，失败时保留上一次的账户
func (m *AccountManager) reloadLoop(ctx context.Context) {
	ticker := time.NewTicker(m.reloadInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := m.reload(ctx); err != nil {
				logger.Error(fmt.Sprintf("重新加载账户失败: %v", err))
			}
		case <-ctx.Done():
			return
		case <-m.done:
			return
		}
	}
}

func (m *AccountManager) reload(ctx context.Context) error {
	if err := m.authenticator.LoadAccountsFromDB(ctx); err != nil {
		return err
	}
	if m.onReload != nil {
		m.onReload(m.authenticator)
	}
	return nil
}
