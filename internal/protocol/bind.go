// internal/protocol/bind.go  绑定请求
package protocol

import "fmt"

// BindRequest bind_receiver/bind_transmitter/bind_transceiver 的消息体
type BindRequest struct {
	SystemID         string
	Password         string
	SystemType       string
	InterfaceVersion byte
	AddrTON          byte
	AddrNPI          byte
	AddressRange     string
}

// ParseBindRequest 解析绑定请求。system_id与password必须以NUL结尾，
// 其余字段缺失时保持零值。
func ParseBindRequest(body []byte) (*BindRequest, error) {
	r := newFieldReader(body)
	req := &BindRequest{}

	var err error
	if req.SystemID, err = r.cString(); err != nil {
		return nil, fmt.Errorf("parse system_id: %w", err)
	}
	if req.Password, err = r.cString(); err != nil {
		return nil, fmt.Errorf("parse password: %w", err)
	}

	// 以下字段按顺序尽量解析
	if req.SystemType, err = r.cString(); err != nil {
		return req, nil
	}
	if req.InterfaceVersion, err = r.byte(); err != nil {
		return req, nil
	}
	if req.AddrTON, err = r.byte(); err != nil {
		return req, nil
	}
	if req.AddrNPI, err = r.byte(); err != nil {
		return req, nil
	}
	req.AddressRange, _ = r.cString()

	return req, nil
}

// Marshal 编码绑定请求消息体
func (b *BindRequest) Marshal() []byte {
	var w fieldWriter
	w.cString(b.SystemID)
	w.cString(b.Password)
	w.cString(b.SystemType)
	w.byte(b.InterfaceVersion)
	w.byte(b.AddrTON)
	w.byte(b.AddrNPI)
	w.cString(b.AddressRange)
	return w.Bytes()
}

// IsBind 是否为三种绑定请求之一
func IsBind(commandID uint32) bool {
	switch commandID {
	case BIND_RECEIVER, BIND_TRANSMITTER, BIND_TRANSCEIVER:
		return true
	}
	return false
}
