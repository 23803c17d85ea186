// internal/protocol/fields.go  消息体字段读写
package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
)

// ErrFieldTruncated 消息体在字段结束前耗尽
var ErrFieldTruncated = errors.New("smpp: body truncated")

// TLV 表示一个可选参数
type TLV struct {
	Tag   uint16
	Len   uint16
	Value []byte
}

// fieldReader 顺序读取消息体中的字段
type fieldReader struct {
	buf []byte
	off int
}

func newFieldReader(body []byte) *fieldReader {
	return &fieldReader{buf: body}
}

// cString 读取C-Octet字符串，截断于第一个NUL。
// 找不到NUL时返回剩余数据和 ErrFieldTruncated。
func (r *fieldReader) cString() (string, error) {
	rest := r.buf[r.off:]
	idx := bytes.IndexByte(rest, 0)
	if idx < 0 {
		r.off = len(r.buf)
		return string(rest), ErrFieldTruncated
	}
	r.off += idx + 1
	return string(rest[:idx]), nil
}

func (r *fieldReader) byte() (byte, error) {
	if r.off >= len(r.buf) {
		return 0, ErrFieldTruncated
	}
	b := r.buf[r.off]
	r.off++
	return b, nil
}

func (r *fieldReader) bytes(n int) ([]byte, error) {
	if n > len(r.buf)-r.off {
		r.off = len(r.buf)
		return nil, ErrFieldTruncated
	}
	out := r.buf[r.off : r.off+n]
	r.off += n
	return out, nil
}

func (r *fieldReader) remaining() []byte {
	return r.buf[r.off:]
}

// tlvs 读取剩余的可选参数，遇到不完整的TLV时停止
func (r *fieldReader) tlvs() ([]TLV, error) {
	var out []TLV
	for len(r.remaining()) > 0 {
		head, err := r.bytes(4)
		if err != nil {
			return out, err
		}
		tlv := TLV{
			Tag: binary.BigEndian.Uint16(head[0:2]),
			Len: binary.BigEndian.Uint16(head[2:4]),
		}
		value, err := r.bytes(int(tlv.Len))
		if err != nil {
			return out, err
		}
		tlv.Value = value
		out = append(out, tlv)
	}
	return out, nil
}

// fieldWriter 顺序写入消息体字段
type fieldWriter struct {
	buf bytes.Buffer
}

func (w *fieldWriter) cString(s string) {
	w.buf.WriteString(s)
	w.buf.WriteByte(0)
}

func (w *fieldWriter) byte(b byte) {
	w.buf.WriteByte(b)
}

func (w *fieldWriter) tlv(t TLV) {
	var head [4]byte
	binary.BigEndian.PutUint16(head[0:2], t.Tag)
	binary.BigEndian.PutUint16(head[2:4], uint16(len(t.Value)))
	w.buf.Write(head[:])
	w.buf.Write(t.Value)
}

func (w *fieldWriter) Bytes() []byte {
	return w.buf.Bytes()
}
