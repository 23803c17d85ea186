// internal/protocol/submit.go  短信提交
package protocol

import "fmt"

// TagMessagePayload message_payload 可选参数
const TagMessagePayload uint16 = 0x0424

// SubmitSM submit_sm/deliver_sm 共用的消息体结构。
// 短信内容不做任何编码转换。
type SubmitSM struct {
	ServiceType          string
	SourceAddrTON        byte
	SourceAddrNPI        byte
	SourceAddr           string
	DestAddrTON          byte
	DestAddrNPI          byte
	DestinationAddr      string
	ESMClass             byte
	ProtocolID           byte
	PriorityFlag         byte
	ScheduleDeliveryTime string
	ValidityPeriod       string
	RegisteredDelivery   byte
	ReplaceIfPresentFlag byte
	DataCoding           byte
	SMDefaultMsgID       byte
	ShortMessage         []byte
	TLVs                 []TLV

	// Raw 原始消息体
	Raw []byte
}

// ParseSubmitSM 解析submit_sm消息体。总是返回已解析的部分，
// 消息体不完整时同时返回错误。
func ParseSubmitSM(body []byte) (*SubmitSM, error) {
	r := newFieldReader(body)
	sm := &SubmitSM{Raw: body}

	steps := []func() error{
		func() (err error) { sm.ServiceType, err = r.cString(); return },
		func() (err error) { sm.SourceAddrTON, err = r.byte(); return },
		func() (err error) { sm.SourceAddrNPI, err = r.byte(); return },
		func() (err error) { sm.SourceAddr, err = r.cString(); return },
		func() (err error) { sm.DestAddrTON, err = r.byte(); return },
		func() (err error) { sm.DestAddrNPI, err = r.byte(); return },
		func() (err error) { sm.DestinationAddr, err = r.cString(); return },
		func() (err error) { sm.ESMClass, err = r.byte(); return },
		func() (err error) { sm.ProtocolID, err = r.byte(); return },
		func() (err error) { sm.PriorityFlag, err = r.byte(); return },
		func() (err error) { sm.ScheduleDeliveryTime, err = r.cString(); return },
		func() (err error) { sm.ValidityPeriod, err = r.cString(); return },
		func() (err error) { sm.RegisteredDelivery, err = r.byte(); return },
		func() (err error) { sm.ReplaceIfPresentFlag, err = r.byte(); return },
		func() (err error) { sm.DataCoding, err = r.byte(); return },
		func() (err error) { sm.SMDefaultMsgID, err = r.byte(); return },
		func() error {
			length, err := r.byte()
			if err != nil {
				return err
			}
			msg, err := r.bytes(int(length))
			sm.ShortMessage = msg
			return err
		},
		func() (err error) { sm.TLVs, err = r.tlvs(); return },
	}

	for i, step := range steps {
		if err := step(); err != nil {
			return sm, fmt.Errorf("parse submit_sm field %d: %w", i, err)
		}
	}

	return sm, nil
}

// Content 返回短信内容，short_message为空时取message_payload
func (s *SubmitSM) Content() []byte {
	if len(s.ShortMessage) > 0 {
		return s.ShortMessage
	}
	for _, tlv := range s.TLVs {
		if tlv.Tag == TagMessagePayload {
			return tlv.Value
		}
	}
	return nil
}

// Marshal 编码消息体，ShortMessage超过254字节时调用方应改用message_payload
func (s *SubmitSM) Marshal() []byte {
	var w fieldWriter
	w.cString(s.ServiceType)
	w.byte(s.SourceAddrTON)
	w.byte(s.SourceAddrNPI)
	w.cString(s.SourceAddr)
	w.byte(s.DestAddrTON)
	w.byte(s.DestAddrNPI)
	w.cString(s.DestinationAddr)
	w.byte(s.ESMClass)
	w.byte(s.ProtocolID)
	w.byte(s.PriorityFlag)
	w.cString(s.ScheduleDeliveryTime)
	w.cString(s.ValidityPeriod)
	w.byte(s.RegisteredDelivery)
	w.byte(s.ReplaceIfPresentFlag)
	w.byte(s.DataCoding)
	w.byte(s.SMDefaultMsgID)
	w.byte(byte(len(s.ShortMessage)))
	w.buf.Write(s.ShortMessage)
	for _, tlv := range s.TLVs {
		w.tlv(tlv)
	}
	return w.Bytes()
}
