package session

import (
	"context"
	"net"
)

type remoteIPKey struct{}

// WithRemoteIP 在上下文中记录ESME的来源IP
func WithRemoteIP(ctx context.Context, addr net.Addr) context.Context {
	var ip net.IP
	switch a := addr.(type) {
	case *net.TCPAddr:
		ip = a.IP
	case *net.UDPAddr:
		ip = a.IP
	}
	if ip == nil {
		return ctx
	}
	return context.WithValue(ctx, remoteIPKey{}, ip)
}

// RemoteIPFromContext 取出来源IP，未记录时返回nil
func RemoteIPFromContext(ctx context.Context) net.IP {
	ip, _ := ctx.Value(remoteIPKey{}).(net.IP)
	return ip
}
