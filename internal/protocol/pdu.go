// internal/protocol/pdu.go   消息结构
package protocol

import "fmt"

// PDU 表示一个完整的SMPP协议数据单元，Body按命令解释
type PDU struct {
	CommandID      uint32
	CommandStatus  uint32
	SequenceNumber uint32
	Body           []byte
}

// NewPDU 创建新消息
func NewPDU(commandID, status, sequence uint32, body []byte) *PDU {
	return &PDU{
		CommandID:      commandID,
		CommandStatus:  status,
		SequenceNumber: sequence,
		Body:           body,
	}
}

// NewResponse 创建对req的响应，序列号原样回显
func NewResponse(req *PDU, commandID, status uint32, body []byte) *PDU {
	return NewPDU(commandID, status, req.SequenceNumber, body)
}

// NewGenericNack 创建generic_nack，序列号原样回显
func NewGenericNack(req *PDU, status uint32) *PDU {
	return NewPDU(GENERIC_NACK, status, req.SequenceNumber, nil)
}

// CommandLength 编码后的总长度
func (p *PDU) CommandLength() uint32 {
	return uint32(HeaderLength + len(p.Body))
}

// Bytes 将消息编码为字节数组
func (p *PDU) Bytes() []byte {
	return Encode(p)
}

// String 日志输出格式
func (p *PDU) String() string {
	return fmt.Sprintf("%s(seq=%d, status=%s, len=%d)",
		CommandName(p.CommandID), p.SequenceNumber, StatusName(p.CommandStatus), p.CommandLength())
}

// CString 返回以NUL结尾的C-Octet字符串
func CString(s string) []byte {
	b := make([]byte, len(s)+1)
	copy(b, s)
	return b
}
