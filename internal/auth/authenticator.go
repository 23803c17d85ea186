// internal/auth/authenticator.go  认证器
package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"sync"

	"smppd/internal/session"
	"smppd/pkg/logger"
)

// ErrNoDatabase 未配置数据库连接
var ErrNoDatabase = errors.New("auth: database not configured")

// Account ESME账户
type Account struct {
	SystemID   string  `yaml:"system_id" json:"system_id"`
	Password   string  `yaml:"password" json:"-"`
	SystemType string  `yaml:"system_type" json:"system_type"`
	MaxTPS     float64 `yaml:"max_tps" json:"max_tps"`

	// IPAddresses 允许的来源IP，为空时不限制
	IPAddresses []string `yaml:"ip_addresses" json:"ip_addresses"`
}

// Authenticator 认证器，账户来自配置或数据库，可被多个连接并发使用
type Authenticator struct {
	db       *sql.DB
	accounts map[string]*Account
	// static 配置文件中的账户，数据库重载时保留
	static   map[string]*Account
	mu       sync.RWMutex
}

// NewAuthenticator 创建新的认证器，db可以为nil
func NewAuthenticator(db *sql.DB) *Authenticator {
	return &Authenticator{
		db:       db,
		accounts: make(map[string]*Account),
		static:   make(map[string]*Account),
	}
}

// Range 遍历所有账户
func (a *Authenticator) Range(f func(systemID string, account *Account) bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	for systemID, account := range a.accounts {
		if !f(systemID, account) {
			break
		}
	}
}

// Count 账户数量
func (a *Authenticator) Count() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.accounts)
}

// RegisterAccount 注册账户
func (a *Authenticator) RegisterAccount(account *Account) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.accounts[account.SystemID] = account
}

// RegisterStaticAccount 注册配置文件中的账户，数据库中同名账户优先
func (a *Authenticator) RegisterStaticAccount(account *Account) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.static[account.SystemID] = account
	a.accounts[account.SystemID] = account
}

// GetAccount 获取账户信息
func (a *Authenticator) GetAccount(systemID string) (*Account, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	account, ok := a.accounts[systemID]
	return account, ok
}

// Authenticate 验证 system_id/password。
// 凭证不符返回false；只有数据访问等内部错误才返回error。
func (a *Authenticator) Authenticate(ctx context.Context, systemID, password string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	account, ok := a.GetAccount(systemID)
	if !ok {
		logger.Debug(fmt.Sprintf("未知的系统ID: %s", systemID))
		return false, nil
	}

	if !VerifyPassword(account.Password, password) {
		logger.Debug(fmt.Sprintf("账户 %s 密码错误", systemID))
		return false, nil
	}

	// 检查账户IP限制
	if clientIP := session.RemoteIPFromContext(ctx); clientIP != nil && !ipAllowed(account.IPAddresses, clientIP) {
		logger.Warning(fmt.Sprintf("账户 %s 不允许从IP %s 连接", systemID, clientIP))
		return false, nil
	}

	return true, nil
}

func ipAllowed(allowed []string, ip net.IP) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, entry := range allowed {
		if _, ipNet, err := net.ParseCIDR(entry); err == nil {
			if ipNet.Contains(ip) {
				return true
			}
			continue
		}
		if allowedIP := net.ParseIP(entry); allowedIP != nil && allowedIP.Equal(ip) {
			return true
		}
	}
	return false
}

// LoadAccountsFromDB 从 accounts/account_ips 表加载启用的账户，与配置文件账户合并后替换内存中的账户
func (a *Authenticator) LoadAccountsFromDB(ctx context.Context) error {
	if a.db == nil {
		return ErrNoDatabase
	}

	rows, err := a.db.QueryContext(ctx, `
		SELECT system_id, password, system_type, max_tps
		FROM accounts
		WHERE is_active = 1
	`)
	if err != nil {
		return fmt.Errorf("查询账户失败: %w", err)
	}

	accounts := make(map[string]*Account)
	for rows.Next() {
		var acc Account
		if err := rows.Scan(&acc.SystemID, &acc.Password, &acc.SystemType, &acc.MaxTPS); err != nil {
			rows.Close()
			return fmt.Errorf("扫描账户数据失败: %w", err)
		}
		accounts[acc.SystemID] = &acc
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("遍历账户失败: %w", err)
	}
	rows.Close()

	// 加载账户IP限制
	for _, acc := range accounts {
		ips, err := a.loadAccountIPs(ctx, acc.SystemID)
		if err != nil {
			return err
		}
		acc.IPAddresses = ips
	}

	loaded := len(accounts)

	// 原子替换账户映射
	a.mu.Lock()
	for systemID, acc := range a.static {
		if _, ok := accounts[systemID]; !ok {
			accounts[systemID] = acc
		}
	}
	a.accounts = accounts
	a.mu.Unlock()

	logger.Info(fmt.Sprintf("从数据库加载了%d个账户配置", loaded))
	return nil
}

// loadAccountIPs 加载账户的IP地址
func (a *Authenticator) loadAccountIPs(ctx context.Context, systemID string) ([]string, error) {
	rows, err := a.db.QueryContext(ctx, "SELECT ip_address FROM account_ips WHERE system_id = ?", systemID)
	if err != nil {
		return nil, fmt.Errorf("查询账户IP限制失败: %w", err)
	}
	defer rows.Close()

	var ips []string
	for rows.Next() {
		var ip string
		if err := rows.Scan(&ip); err != nil {
			return nil, fmt.Errorf("扫描IP数据失败: %w", err)
		}
		ips = append(ips, ip)
	}
	return ips, rows.Err()
}

// SaveAccount 保存账户到数据库并更新内存
func (a *Authenticator) SaveAccount(ctx context.Context, account *Account) error {
	if a.db == nil {
		return ErrNoDatabase
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开始事务失败: %w", err)
	}
	defer tx.Rollback()

	// 检查账户是否已存在
	var count int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM accounts WHERE system_id = ?", account.SystemID).Scan(&count); err != nil {
		return fmt.Errorf("检查账户是否存在失败: %w", err)
	}

	if count > 0 {
		_, err = tx.ExecContext(ctx,
			"UPDATE accounts SET password = ?, system_type = ?, max_tps = ? WHERE system_id = ?",
			account.Password, account.SystemType, account.MaxTPS, account.SystemID)
	} else {
		_, err = tx.ExecContext(ctx,
			"INSERT INTO accounts (system_id, password, system_type, max_tps, is_active) VALUES (?, ?, ?, ?, 1)",
			account.SystemID, account.Password, account.SystemType, account.MaxTPS)
	}
	if err != nil {
		return fmt.Errorf("保存账户失败: %w", err)
	}

	// 替换IP绑定
	if _, err := tx.ExecContext(ctx, "DELETE FROM account_ips WHERE system_id = ?", account.SystemID); err != nil {
		return fmt.Errorf("删除现有IP绑定失败: %w", err)
	}
	for _, ip := range account.IPAddresses {
		if _, err := tx.ExecContext(ctx, "INSERT INTO account_ips (system_id, ip_address) VALUES (?, ?)",
			account.SystemID, ip); err != nil {
			return fmt.Errorf("插入IP绑定失败: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("提交事务失败: %w", err)
	}

	a.RegisterAccount(account)
	return nil
}

// DeleteAccount 从数据库和内存中删除账户
func (a *Authenticator) DeleteAccount(ctx context.Context, systemID string) error {
	if a.db != nil {
		if _, err := a.db.ExecContext(ctx, "DELETE FROM account_ips WHERE system_id = ?", systemID); err != nil {
			return fmt.Errorf("删除账户IP失败: %w", err)
		}
		if _, err := a.db.ExecContext(ctx, "DELETE FROM accounts WHERE system_id = ?", systemID); err != nil {
			return fmt.Errorf("删除账户失败: %w", err)
		}
	}

	a.mu.Lock()
	delete(a.accounts, systemID)
	delete(a.static, systemID)
	a.mu.Unlock()

	return nil
}
