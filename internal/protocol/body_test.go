package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBindRequestFull(t *testing.T) {
	want := &BindRequest{
		SystemID:         "smppuser",
		Password:         "password",
		SystemType:       "VMA",
		InterfaceVersion: InterfaceVersion34,
		AddrTON:          1,
		AddrNPI:          1,
		AddressRange:     "^123",
	}

	got, err := ParseBindRequest(want.Marshal())
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestParseBindRequestTruncatesAtFirstNul(t *testing.T) {
	got, err := ParseBindRequest([]byte("user\x00pass\x00..."))
	require.NoError(t, err)
	assert.Equal(t, "user", got.SystemID)
	assert.Equal(t, "pass", got.Password)
	assert.Equal(t, "", got.SystemType)
	assert.Zero(t, got.InterfaceVersion)
}

func TestParseBindRequestMissingPassword(t *testing.T) {
	tests := [][]byte{
		nil,
		[]byte("user"),
		[]byte("user\x00pass"),
	}
	for _, body := range tests {
		_, err := ParseBindRequest(body)
		assert.ErrorIs(t, err, ErrFieldTruncated, "%q", body)
	}
}

func TestIsBind(t *testing.T) {
	assert.True(t, IsBind(BIND_RECEIVER))
	assert.True(t, IsBind(BIND_TRANSMITTER))
	assert.True(t, IsBind(BIND_TRANSCEIVER))
	assert.False(t, IsBind(SUBMIT_SM))
}

func TestParseSubmitSM(t *testing.T) {
	want := &SubmitSM{
		ServiceType:        "CMT",
		SourceAddrTON:      5,
		SourceAddrNPI:      0,
		SourceAddr:         "ACME",
		DestAddrTON:        1,
		DestAddrNPI:        1,
		DestinationAddr:    "8613800000000",
		RegisteredDelivery: 1,
		DataCoding:         0,
		ShortMessage:       []byte("hello world"),
	}
	raw := want.Marshal()

	got, err := ParseSubmitSM(raw)
	require.NoError(t, err)
	assert.Equal(t, want.SourceAddr, got.SourceAddr)
	assert.Equal(t, want.DestinationAddr, got.DestinationAddr)
	assert.Equal(t, want.ServiceType, got.ServiceType)
	assert.Equal(t, want.RegisteredDelivery, got.RegisteredDelivery)
	assert.Equal(t, "hello world", string(got.Content()))
	assert.Empty(t, got.TLVs)
	assert.Equal(t, raw, got.Raw)
}

func TestParseSubmitSMMessagePayload(t *testing.T) {
	sm := &SubmitSM{
		SourceAddr:      "1000",
		DestinationAddr: "2000",
		TLVs:            []TLV{{Tag: TagMessagePayload, Value: []byte("long payload")}},
	}

	got, err := ParseSubmitSM(sm.Marshal())
	require.NoError(t, err)
	require.Len(t, got.TLVs, 1)
	assert.Equal(t, uint16(len("long payload")), got.TLVs[0].Len)
	assert.Equal(t, "long payload", string(got.Content()))
}

func TestParseSubmitSMTruncatedKeepsParsedFields(t *testing.T) {
	got, err := ParseSubmitSM([]byte("\x00\x01\x01123\x00"))
	assert.ErrorIs(t, err, ErrFieldTruncated)
	require.NotNil(t, got)
	assert.Equal(t, "123", got.SourceAddr)
	assert.Empty(t, got.DestinationAddr)
}
