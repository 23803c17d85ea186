// internal/protocol/header.go  # SMPP消息头部
package protocol

import (
	"encoding/binary"
	"fmt"
)

// Header 定义SMPP消息头，所有字段均为大端序
type Header struct {
	CommandLength  uint32 // 消息总长度
	CommandID      uint32 // 命令ID
	CommandStatus  uint32 // 状态码
	SequenceNumber uint32 // 序列号
}

// ParseHeader 从字节数组解析头部，不校验长度字段
func ParseHeader(data []byte) (Header, error) {
	if len(data) < HeaderLength {
		return Header{}, fmt.Errorf("header too short: %d bytes", len(data))
	}

	return Header{
		CommandLength:  binary.BigEndian.Uint32(data[0:4]),
		CommandID:      binary.BigEndian.Uint32(data[4:8]),
		CommandStatus:  binary.BigEndian.Uint32(data[8:12]),
		SequenceNumber: binary.BigEndian.Uint32(data[12:16]),
	}, nil
}

// PutHeader 将头部写入dst的前16字节
func PutHeader(dst []byte, h Header) {
	binary.BigEndian.PutUint32(dst[0:4], h.CommandLength)
	binary.BigEndian.PutUint32(dst[4:8], h.CommandID)
	binary.BigEndian.PutUint32(dst[8:12], h.CommandStatus)
	binary.BigEndian.PutUint32(dst[12:16], h.SequenceNumber)
}
