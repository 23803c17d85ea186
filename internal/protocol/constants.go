// internal/protocol/constants.go  # 协议常量定义
package protocol

// HeaderLength PDU头部固定长度
const HeaderLength = 16

// DefaultMaxCommandLength 默认允许的最大PDU长度
const DefaultMaxCommandLength = 64 * 1024

// InterfaceVersion34 SMPP v3.4 接口版本
const InterfaceVersion34 = 0x34

// ResponseMask 响应命令ID的最高位
const ResponseMask uint32 = 0x80000000

// Command IDs
const (
	GENERIC_NACK          uint32 = 0x80000000
	BIND_RECEIVER         uint32 = 0x00000001
	BIND_RECEIVER_RESP    uint32 = 0x80000001
	BIND_TRANSMITTER      uint32 = 0x00000002
	BIND_TRANSMITTER_RESP uint32 = 0x80000002
	SUBMIT_SM             uint32 = 0x00000004
	SUBMIT_SM_RESP        uint32 = 0x80000004
	DELIVER_SM            uint32 = 0x00000005
	DELIVER_SM_RESP       uint32 = 0x80000005
	UNBIND                uint32 = 0x00000006
	UNBIND_RESP           uint32 = 0x80000006
	BIND_TRANSCEIVER      uint32 = 0x00000009
	BIND_TRANSCEIVER_RESP uint32 = 0x80000009
	ENQUIRE_LINK          uint32 = 0x00000015
	ENQUIRE_LINK_RESP     uint32 = 0x80000015
)

// Command status codes
//
// 注意: ESME_RINVBNDSTS 在线上取值0x0B，不是v3.4文档中的0x04
const (
	ESME_ROK        uint32 = 0x00000000 // No Error
	ESME_RINVMSGLEN uint32 = 0x00000001 // Message Length is invalid
	ESME_RINVCMDLEN uint32 = 0x00000002 // Command Length is invalid
	ESME_RINVCMDID  uint32 = 0x00000003 // Invalid Command ID
	ESME_RALYBND    uint32 = 0x00000005 // ESME Already in Bound State
	ESME_RSYSERR    uint32 = 0x00000008 // System Error
	ESME_RINVBNDSTS uint32 = 0x0000000B // Incorrect BIND Status for given command
	ESME_RBINDFAIL  uint32 = 0x0000000D // Bind Failed
	ESME_RINVPASWD  uint32 = 0x0000000E // Invalid Password
	ESME_RINVSYSID  uint32 = 0x0000000F // Invalid System ID
	ESME_RTHROTTLED uint32 = 0x00000058 // Throttling error
)
