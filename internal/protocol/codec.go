// internal/protocol/codec.go  PDU编解码
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	// ErrNeedMoreData 缓冲区不足一个完整PDU
	ErrNeedMoreData = errors.New("smpp: need more data")

	// ErrMalformedFrame 长度前缀非法
	ErrMalformedFrame = errors.New("smpp: malformed frame")
)

// FrameError 帧错误，连接必须立即关闭且不发送任何响应
type FrameError struct {
	CommandLength uint32
	Reason        string
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("smpp: malformed frame: command_length=%d: %s", e.CommandLength, e.Reason)
}

// Unwrap 使 errors.Is(err, ErrMalformedFrame) 成立
func (e *FrameError) Unwrap() error {
	return ErrMalformedFrame
}

// Codec PDU编解码器，除长度上限外不持有任何状态，可并发使用
type Codec struct {
	MaxCommandLength uint32
}

// NewCodec 创建编解码器，maxLength<=0 时使用默认上限
func NewCodec(maxLength int) Codec {
	if maxLength <= 0 {
		maxLength = DefaultMaxCommandLength
	}
	return Codec{MaxCommandLength: uint32(maxLength)}
}

var defaultCodec = NewCodec(DefaultMaxCommandLength)

// Decode 使用默认上限解码
func Decode(buf []byte) (*PDU, int, error) {
	return defaultCodec.Decode(buf)
}

// Encode 编码PDU
func Encode(p *PDU) []byte {
	return defaultCodec.Encode(p)
}

// Decode 从buf头部解码一个PDU，返回PDU及消耗的字节数。
// 数据不足时返回 ErrNeedMoreData，长度字段非法时返回 *FrameError。
func (c Codec) Decode(buf []byte) (*PDU, int, error) {
	if len(buf) < 4 {
		return nil, 0, ErrNeedMoreData
	}

	length := binary.BigEndian.Uint32(buf[0:4])
	if length < HeaderLength {
		return nil, 0, &FrameError{CommandLength: length, Reason: "shorter than header"}
	}
	if c.MaxCommandLength > 0 && length > c.MaxCommandLength {
		return nil, 0, &FrameError{CommandLength: length, Reason: fmt.Sprintf("exceeds limit %d", c.MaxCommandLength)}
	}
	if uint64(len(buf)) < uint64(length) {
		return nil, 0, ErrNeedMoreData
	}

	header, err := ParseHeader(buf)
	if err != nil {
		return nil, 0, err
	}

	// 复制消息体，调用方可以复用接收缓冲区
	var body []byte
	if length > HeaderLength {
		body = make([]byte, length-HeaderLength)
		copy(body, buf[HeaderLength:length])
	}

	return &PDU{
		CommandID:      header.CommandID,
		CommandStatus:  header.CommandStatus,
		SequenceNumber: header.SequenceNumber,
		Body:           body,
	}, int(length), nil
}

// Encode 输出16字节大端头部及原样消息体
func (c Codec) Encode(p *PDU) []byte {
	out := make([]byte, HeaderLength+len(p.Body))
	PutHeader(out, Header{
		CommandLength:  p.CommandLength(),
		CommandID:      p.CommandID,
		CommandStatus:  p.CommandStatus,
		SequenceNumber: p.SequenceNumber,
	})
	copy(out[HeaderLength:], p.Body)
	return out
}
