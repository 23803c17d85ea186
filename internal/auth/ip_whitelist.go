// internal/auth/ip_whitelist.go
package auth

import (
	"fmt"
	"net"
	"strings"
	"sync"
)

// IPWhitelist IP白名单，为空时允许所有IP
type IPWhitelist struct {
	cidrs []*net.IPNet
	mu    sync.RWMutex
}

// NewIPWhitelist 创建新的IP白名单
func NewIPWhitelist() *IPWhitelist {
	return &IPWhitelist{
		cidrs: make([]*net.IPNet, 0),
	}
}

// NewIPWhitelistFromList 由IP或CIDR列表创建白名单
func NewIPWhitelistFromList(entries []string) (*IPWhitelist, error) {
	w := NewIPWhitelist()
	for _, entry := range entries {
		if err := w.Add(entry); err != nil {
			return nil, err
		}
	}
	return w, nil
}

// Add 添加IP或CIDR
func (w *IPWhitelist) Add(entry string) error {
	entry = strings.TrimSpace(entry)
	if strings.Contains(entry, "/") {
		return w.AddCIDR(entry)
	}
	return w.AddIP(entry)
}

// AddCIDR 添加CIDR到白名单
func (w *IPWhitelist) AddCIDR(cidr string) error {
	_, ipNet, err := net.ParseCIDR(cidr)
	if err != nil {
		return fmt.Errorf("无效的CIDR %q: %w", cidr, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.cidrs = append(w.cidrs, ipNet)
	return nil
}

// AddIP 添加单个IP到白名单
func (w *IPWhitelist) AddIP(ip string) error {
	ipAddr := net.ParseIP(ip)
	if ipAddr == nil {
		return net.InvalidAddrError(ip)
	}

	mask := net.CIDRMask(32, 32)
	if v4 := ipAddr.To4(); v4 != nil {
		ipAddr = v4
	} else {
		mask = net.CIDRMask(128, 128)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.cidrs = append(w.cidrs, &net.IPNet{IP: ipAddr, Mask: mask})
	return nil
}

// Check 检查IP是否在白名单中
func (w *IPWhitelist) Check(ip net.IP) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if len(w.cidrs) == 0 {
		return true
	}

	for _, cidr := range w.cidrs {
		if cidr.Contains(ip) {
			return true
		}
	}
	return false
}

// Len 白名单条目数
func (w *IPWhitelist) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.cidrs)
}

// Clear 清空白名单
func (w *IPWhitelist) Clear() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.cidrs = make([]*net.IPNet, 0)
}
