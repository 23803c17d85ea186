// internal/protocol/registry.go  命令注册表
package protocol

import "fmt"

// commandNames 命令ID到名称的映射，进程启动后只读
var commandNames = map[uint32]string{
	GENERIC_NACK:          "generic_nack",
	BIND_RECEIVER:         "bind_receiver",
	BIND_RECEIVER_RESP:    "bind_receiver_resp",
	BIND_TRANSMITTER:      "bind_transmitter",
	BIND_TRANSMITTER_RESP: "bind_transmitter_resp",
	BIND_TRANSCEIVER:      "bind_transceiver",
	BIND_TRANSCEIVER_RESP: "bind_transceiver_resp",
	SUBMIT_SM:             "submit_sm",
	SUBMIT_SM_RESP:        "submit_sm_resp",
	DELIVER_SM:            "deliver_sm",
	DELIVER_SM_RESP:       "deliver_sm_resp",
	UNBIND:                "unbind",
	UNBIND_RESP:           "unbind_resp",
	ENQUIRE_LINK:          "enquire_link",
	ENQUIRE_LINK_RESP:     "enquire_link_resp",
}

// responseIDs 请求ID到响应ID的映射
var responseIDs = map[uint32]uint32{
	BIND_RECEIVER:    BIND_RECEIVER_RESP,
	BIND_TRANSMITTER: BIND_TRANSMITTER_RESP,
	BIND_TRANSCEIVER: BIND_TRANSCEIVER_RESP,
	SUBMIT_SM:        SUBMIT_SM_RESP,
	DELIVER_SM:       DELIVER_SM_RESP,
	UNBIND:           UNBIND_RESP,
	ENQUIRE_LINK:     ENQUIRE_LINK_RESP,
}

var statusNames = map[uint32]string{
	ESME_ROK:        "ESME_ROK",
	ESME_RINVMSGLEN: "ESME_RINVMSGLEN",
	ESME_RINVCMDLEN: "ESME_RINVCMDLEN",
	ESME_RINVCMDID:  "ESME_RINVCMDID",
	ESME_RALYBND:    "ESME_RALYBND",
	ESME_RSYSERR:    "ESME_RSYSERR",
	ESME_RINVBNDSTS: "ESME_RINVBNDSTS",
	ESME_RBINDFAIL:  "ESME_RBINDFAIL",
	ESME_RINVPASWD:  "ESME_RINVPASWD",
	ESME_RINVSYSID:  "ESME_RINVSYSID",
	ESME_RTHROTTLED: "ESME_RTHROTTLED",
}

// CommandName 返回命令名称，未知命令返回占位描述
func CommandName(id uint32) string {
	if name, ok := commandNames[id]; ok {
		return name
	}
	return fmt.Sprintf("unknown command (0x%08x)", id)
}

// IsKnownCommand 命令是否在注册表中
func IsKnownCommand(id uint32) bool {
	_, ok := commandNames[id]
	return ok
}

// ResponseID 返回请求对应的响应ID，不存在时ok为false
func ResponseID(requestID uint32) (uint32, bool) {
	id, ok := responseIDs[requestID]
	return id, ok
}

// IsResponse 响应命令最高位为1
func IsResponse(id uint32) bool {
	return id&ResponseMask != 0
}

// StatusName 返回状态码名称
func StatusName(status uint32) string {
	if name, ok := statusNames[status]; ok {
		return name
	}
	return fmt.Sprintf("0x%08x", status)
}
