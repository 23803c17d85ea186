package dispatcher

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smppd/internal/performance"
	"smppd/internal/protocol"
	"smppd/internal/session"
)

type fakeAuth struct {
	mu       sync.Mutex
	accounts map[string]string
	err      error
	calls    []string
}

func (a *fakeAuth) Authenticate(_ context.Context, systemID, password string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, systemID+"/"+password)
	if a.err != nil {
		return false, a.err
	}
	expected, ok := a.accounts[systemID]
	return ok && expected == password, nil
}

type fakeAcceptor struct {
	id   string
	err  error
	last *protocol.SubmitSM
	from string
}

func (a *fakeAcceptor) Accept(_ context.Context, systemID string, msg *protocol.SubmitSM) (string, error) {
	a.last = msg
	a.from = systemID
	return a.id, a.err
}

type denyLimiter struct{}

func (denyLimiter) Allow(string) bool { return false }

func newTestDispatcher(t *testing.T) (*Dispatcher, *fakeAuth, *fakeAcceptor) {
	t.Helper()
	auth := &fakeAuth{accounts: map[string]string{"user": "pass"}}
	acc := &fakeAcceptor{id: "msg-1"}
	d := NewDispatcher(Config{}, auth, acc, nil, performance.NewMetrics(nil))
	return d, auth, acc
}

func bindPDU(commandID, seq uint32, systemID, password string) *protocol.PDU {
	req := &protocol.BindRequest{
		SystemID:         systemID,
		Password:         password,
		SystemType:       "test",
		InterfaceVersion: protocol.InterfaceVersion34,
	}
	return protocol.NewPDU(commandID, 0, seq, req.Marshal())
}

func submitPDU(seq uint32) *protocol.PDU {
	sm := &protocol.SubmitSM{
		SourceAddr:      "10086",
		DestinationAddr: "13800138000",
		ShortMessage:    []byte("hello"),
	}
	return protocol.NewPDU(protocol.SUBMIT_SM, 0, seq, sm.Marshal())
}

func single(t *testing.T, res Result) *protocol.PDU {
	t.Helper()
	require.Len(t, res.Responses, 1)
	return res.Responses[0]
}

func TestUnknownCommand(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	sess := session.New(nil)

	res := d.Dispatch(context.Background(), sess, protocol.NewPDU(0x00000077, 0, 42, nil))

	resp := single(t, res)
	assert.Equal(t, protocol.GENERIC_NACK, resp.CommandID)
	assert.Equal(t, protocol.ESME_RINVCMDID, resp.CommandStatus)
	assert.Equal(t, uint32(42), resp.SequenceNumber)
	assert.False(t, res.Close)
	assert.Equal(t, session.Unbound, sess.State())
}

func TestBindTransceiverAccepted(t *testing.T) {
	d, auth, _ := newTestDispatcher(t)
	sess := session.New(nil)

	res := d.Dispatch(context.Background(), sess, bindPDU(protocol.BIND_TRANSCEIVER, 7, "user", "pass"))

	resp := single(t, res)
	assert.Equal(t, protocol.BIND_TRANSCEIVER_RESP, resp.CommandID)
	assert.Equal(t, protocol.ESME_ROK, resp.CommandStatus)
	assert.Equal(t, uint32(7), resp.SequenceNumber)
	assert.Equal(t, []byte("smppserver\x00"), resp.Body)
	assert.Equal(t, session.BoundTRX, sess.State())
	assert.Equal(t, "user", sess.SystemID())
	assert.Equal(t, []string{"user/pass"}, auth.calls)
	assert.Equal(t, int64(1), d.Metrics().BindSuccess.Count())
}

func TestBindUsesConfiguredSystemID(t *testing.T) {
	auth := &fakeAuth{accounts: map[string]string{"user": "pass"}}
	d := NewDispatcher(Config{SystemID: "gateway"}, auth, &fakeAcceptor{}, nil, nil)

	res := d.Dispatch(context.Background(), session.New(nil), bindPDU(protocol.BIND_RECEIVER, 1, "user", "pass"))

	resp := single(t, res)
	assert.Equal(t, protocol.BIND_RECEIVER_RESP, resp.CommandID)
	assert.Equal(t, []byte("gateway\x00"), resp.Body)
}

func TestBindRoles(t *testing.T) {
	tests := []struct {
		commandID uint32
		respID    uint32
		state     session.State
	}{
		{protocol.BIND_RECEIVER, protocol.BIND_RECEIVER_RESP, session.BoundRX},
		{protocol.BIND_TRANSMITTER, protocol.BIND_TRANSMITTER_RESP, session.BoundTX},
		{protocol.BIND_TRANSCEIVER, protocol.BIND_TRANSCEIVER_RESP, session.BoundTRX},
	}

	for _, tt := range tests {
		t.Run(protocol.CommandName(tt.commandID), func(t *testing.T) {
			d, _, _ := newTestDispatcher(t)
			sess := session.New(nil)

			resp := single(t, d.Dispatch(context.Background(), sess, bindPDU(tt.commandID, 3, "user", "pass")))
			assert.Equal(t, tt.respID, resp.CommandID)
			assert.Equal(t, tt.state, sess.State())
		})
	}
}

func TestBindRejected(t *testing.T) {
	tests := []struct {
		name string
		pdu  *protocol.PDU
		err  error
	}{
		{name: "wrong password", pdu: bindPDU(protocol.BIND_TRANSMITTER, 5, "user", "nope")},
		{name: "unknown user", pdu: bindPDU(protocol.BIND_TRANSMITTER, 5, "ghost", "pass")},
		{name: "authenticator error", pdu: bindPDU(protocol.BIND_TRANSMITTER, 5, "user", "pass"), err: errors.New("db down")},
		{name: "truncated body", pdu: protocol.NewPDU(protocol.BIND_TRANSMITTER, 0, 5, []byte("user"))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, auth, _ := newTestDispatcher(t)
			auth.err = tt.err
			sess := session.New(nil)

			res := d.Dispatch(context.Background(), sess, tt.pdu)

			resp := single(t, res)
			assert.Equal(t, protocol.GENERIC_NACK, resp.CommandID)
			assert.Equal(t, protocol.ESME_RBINDFAIL, resp.CommandStatus)
			assert.Equal(t, uint32(5), resp.SequenceNumber)
			assert.False(t, res.Close)
			assert.Equal(t, session.Unbound, sess.State())
			assert.Equal(t, int64(1), d.Metrics().BindFailures.Count())
		})
	}
}

func TestBindWhileBound(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	sess := session.New(nil)
	require.NoError(t, sess.Bind(session.RoleTransmitter, "user"))

	resp := single(t, d.Dispatch(context.Background(), sess, bindPDU(protocol.BIND_RECEIVER, 9, "user", "pass")))

	assert.Equal(t, protocol.GENERIC_NACK, resp.CommandID)
	assert.Equal(t, protocol.ESME_RINVBNDSTS, resp.CommandStatus)
	assert.Equal(t, uint32(9), resp.SequenceNumber)
	assert.Equal(t, session.BoundTX, sess.State())
}

func TestSubmitBeforeBind(t *testing.T) {
	d, _, acc := newTestDispatcher(t)
	sess := session.New(nil)

	resp := single(t, d.Dispatch(context.Background(), sess, submitPDU(2)))

	assert.Equal(t, protocol.GENERIC_NACK, resp.CommandID)
	assert.Equal(t, uint32(0x0000000B), resp.CommandStatus)
	assert.Equal(t, uint32(2), resp.SequenceNumber)
	assert.Equal(t, session.Unbound, sess.State())
	assert.Nil(t, acc.last)
}

func TestSubmitFromReceiver(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	sess := session.New(nil)
	require.NoError(t, sess.Bind(session.RoleReceiver, "user"))

	resp := single(t, d.Dispatch(context.Background(), sess, submitPDU(4)))

	assert.Equal(t, protocol.GENERIC_NACK, resp.CommandID)
	assert.Equal(t, protocol.ESME_RINVBNDSTS, resp.CommandStatus)
	assert.Equal(t, session.BoundRX, sess.State())
}

func TestSubmitAccepted(t *testing.T) {
	d, _, acc := newTestDispatcher(t)
	sess := session.New(nil)
	require.NoError(t, sess.Bind(session.RoleTransmitter, "user"))

	resp := single(t, d.Dispatch(context.Background(), sess, submitPDU(2)))

	assert.Equal(t, protocol.SUBMIT_SM_RESP, resp.CommandID)
	assert.Equal(t, protocol.ESME_ROK, resp.CommandStatus)
	assert.Equal(t, uint32(2), resp.SequenceNumber)
	assert.Equal(t, []byte("msg-1\x00"), resp.Body)

	require.NotNil(t, acc.last)
	assert.Equal(t, "user", acc.from)
	assert.Equal(t, "13800138000", acc.last.DestinationAddr)
	assert.Equal(t, []byte("hello"), acc.last.Content())
	assert.Equal(t, int64(1), d.Metrics().SubmitAccepted.Count())
}

func TestSubmitAcceptorError(t *testing.T) {
	d, _, acc := newTestDispatcher(t)
	acc.err = errors.New("store full")
	sess := session.New(nil)
	require.NoError(t, sess.Bind(session.RoleTransceiver, "user"))

	resp := single(t, d.Dispatch(context.Background(), sess, submitPDU(6)))

	assert.Equal(t, protocol.SUBMIT_SM_RESP, resp.CommandID)
	assert.Equal(t, protocol.ESME_RSYSERR, resp.CommandStatus)
	assert.Equal(t, uint32(6), resp.SequenceNumber)
	assert.Empty(t, resp.Body)
	assert.Equal(t, session.BoundTRX, sess.State())
}

func TestSubmitThrottled(t *testing.T) {
	acc := &fakeAcceptor{id: "x"}
	d := NewDispatcher(Config{}, &fakeAuth{}, acc, denyLimiter{}, nil)
	sess := session.New(nil)
	require.NoError(t, sess.Bind(session.RoleTransmitter, "user"))

	resp := single(t, d.Dispatch(context.Background(), sess, submitPDU(11)))

	assert.Equal(t, protocol.SUBMIT_SM_RESP, resp.CommandID)
	assert.Equal(t, protocol.ESME_RTHROTTLED, resp.CommandStatus)
	assert.Equal(t, uint32(11), resp.SequenceNumber)
	assert.Nil(t, acc.last)
}

func TestSubmitWithRateLimiter(t *testing.T) {
	acc := &fakeAcceptor{id: "x"}
	d := NewDispatcher(Config{}, &fakeAuth{}, acc, performance.NewRateLimiter(1), nil)
	sess := session.New(nil)
	require.NoError(t, sess.Bind(session.RoleTransmitter, "user"))

	first := single(t, d.Dispatch(context.Background(), sess, submitPDU(1)))
	second := single(t, d.Dispatch(context.Background(), sess, submitPDU(2)))

	assert.Equal(t, protocol.ESME_ROK, first.CommandStatus)
	assert.Equal(t, protocol.ESME_RTHROTTLED, second.CommandStatus)
}

func TestUnbind(t *testing.T) {
	for _, role := range []session.Role{session.RoleReceiver, session.RoleTransmitter, session.RoleTransceiver} {
		t.Run(role.String(), func(t *testing.T) {
			d, _, _ := newTestDispatcher(t)
			sess := session.New(nil)
			require.NoError(t, sess.Bind(role, "user"))

			res := d.Dispatch(context.Background(), sess, protocol.NewPDU(protocol.UNBIND, 0, 3, nil))

			resp := single(t, res)
			assert.Equal(t, protocol.UNBIND_RESP, resp.CommandID)
			assert.Equal(t, protocol.ESME_ROK, resp.CommandStatus)
			assert.Equal(t, uint32(3), resp.SequenceNumber)
			assert.True(t, res.Close)
			assert.Equal(t, session.Closing, sess.State())
		})
	}
}

func TestUnbindWhileUnbound(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	sess := session.New(nil)

	res := d.Dispatch(context.Background(), sess, protocol.NewPDU(protocol.UNBIND, 0, 8, nil))

	resp := single(t, res)
	assert.Equal(t, protocol.UNBIND_RESP, resp.CommandID)
	assert.Equal(t, protocol.ESME_ROK, resp.CommandStatus)
	assert.Equal(t, uint32(8), resp.SequenceNumber)
	assert.True(t, res.Close)
	assert.Equal(t, session.Closing, sess.State())
}

func TestNothingProcessedWhileClosing(t *testing.T) {
	d, _, acc := newTestDispatcher(t)
	sess := session.New(nil)
	require.NoError(t, sess.Bind(session.RoleTransmitter, "user"))
	require.NoError(t, sess.Unbind())

	for _, pdu := range []*protocol.PDU{
		submitPDU(4),
		protocol.NewPDU(protocol.ENQUIRE_LINK, 0, 5, nil),
		protocol.NewPDU(0x00000077, 0, 6, nil),
	} {
		res := d.Dispatch(context.Background(), sess, pdu)
		assert.Empty(t, res.Responses)
		assert.False(t, res.Close)
	}
	assert.Nil(t, acc.last)
}

func TestEnquireLink(t *testing.T) {
	d, _, _ := newTestDispatcher(t)

	for _, bound := range []bool{false, true} {
		sess := session.New(nil)
		if bound {
			require.NoError(t, sess.Bind(session.RoleReceiver, "user"))
		}
		resp := single(t, d.Dispatch(context.Background(), sess, protocol.NewPDU(protocol.ENQUIRE_LINK, 0, 99, nil)))
		assert.Equal(t, protocol.ENQUIRE_LINK_RESP, resp.CommandID)
		assert.Equal(t, protocol.ESME_ROK, resp.CommandStatus)
		assert.Equal(t, uint32(99), resp.SequenceNumber)
	}
}

func TestResponsesFromESMEAreConsumed(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	sess := session.New(nil)
	require.NoError(t, sess.Bind(session.RoleTransceiver, "user"))

	for _, id := range []uint32{protocol.ENQUIRE_LINK_RESP, protocol.DELIVER_SM_RESP, protocol.GENERIC_NACK} {
		res := d.Dispatch(context.Background(), sess, protocol.NewPDU(id, 0, 12, nil))
		assert.Empty(t, res.Responses, protocol.CommandName(id))
		assert.False(t, res.Close)
	}
	assert.Equal(t, session.BoundTRX, sess.State())
}

func TestDeliverSMResponseInWrongStateIgnored(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	sess := session.New(nil)
	require.NoError(t, sess.Bind(session.RoleTransmitter, "user"))

	res := d.Dispatch(context.Background(), sess, protocol.NewPDU(protocol.DELIVER_SM_RESP, 0, 1, nil))
	assert.Empty(t, res.Responses)
}

func TestUnbindRespClosesSession(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	sess := session.New(nil)
	require.NoError(t, sess.Bind(session.RoleTransmitter, "user"))

	res := d.Dispatch(context.Background(), sess, protocol.NewPDU(protocol.UNBIND_RESP, 0, 1, nil))

	assert.Empty(t, res.Responses)
	assert.True(t, res.Close)
	assert.Equal(t, session.Closing, sess.State())
}

func TestDeliverSMFromESME(t *testing.T) {
	d, _, _ := newTestDispatcher(t)

	rx := session.New(nil)
	require.NoError(t, rx.Bind(session.RoleReceiver, "user"))
	resp := single(t, d.Dispatch(context.Background(), rx, protocol.NewPDU(protocol.DELIVER_SM, 0, 21, nil)))
	assert.Equal(t, protocol.DELIVER_SM_RESP, resp.CommandID)
	assert.Equal(t, protocol.ESME_ROK, resp.CommandStatus)
	assert.Equal(t, uint32(21), resp.SequenceNumber)

	tx := session.New(nil)
	require.NoError(t, tx.Bind(session.RoleTransmitter, "user"))
	resp = single(t, d.Dispatch(context.Background(), tx, protocol.NewPDU(protocol.DELIVER_SM, 0, 22, nil)))
	assert.Equal(t, protocol.GENERIC_NACK, resp.CommandID)
	assert.Equal(t, protocol.ESME_RINVBNDSTS, resp.CommandStatus)
}

func TestHandlerPanicClosesConnection(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	d.RegisterHandler(protocol.ENQUIRE_LINK, func(context.Context, *session.Session, *protocol.PDU) Result {
		panic("boom")
	})
	sess := session.New(nil)

	res := d.Dispatch(context.Background(), sess, protocol.NewPDU(protocol.ENQUIRE_LINK, 0, 1, nil))

	assert.Empty(t, res.Responses)
	assert.True(t, res.Close)
	assert.Equal(t, session.Closing, sess.State())
}

// 所有路径上响应序列号都等于请求序列号
func TestSequenceEchoedOnEveryPath(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	seq := uint32(1000)

	pdus := []func() *protocol.PDU{
		func() *protocol.PDU { return protocol.NewPDU(0x00000077, 0, seq, nil) },
		func() *protocol.PDU { return submitPDU(seq) },
		func() *protocol.PDU { return bindPDU(protocol.BIND_TRANSMITTER, seq, "user", "bad") },
		func() *protocol.PDU { return bindPDU(protocol.BIND_TRANSMITTER, seq, "user", "pass") },
		func() *protocol.PDU { return bindPDU(protocol.BIND_RECEIVER, seq, "user", "pass") },
		func() *protocol.PDU { return submitPDU(seq) },
		func() *protocol.PDU { return protocol.NewPDU(protocol.ENQUIRE_LINK, 0, seq, nil) },
		func() *protocol.PDU { return protocol.NewPDU(protocol.DELIVER_SM, 0, seq, nil) },
		func() *protocol.PDU { return protocol.NewPDU(protocol.UNBIND, 0, seq, nil) },
	}

	sess := session.New(nil)
	for _, build := range pdus {
		seq++
		res := d.Dispatch(context.Background(), sess, build())
		for _, resp := range res.Responses {
			assert.Equal(t, seq, resp.SequenceNumber, resp.String())
		}
	}
}

func TestGetStats(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	sess := session.New(nil)

	d.Dispatch(context.Background(), sess, protocol.NewPDU(protocol.ENQUIRE_LINK, 0, 1, nil))
	d.Dispatch(context.Background(), sess, protocol.NewPDU(0x00000077, 0, 2, nil))

	stats := d.GetStats()
	assert.Equal(t, uint64(2), stats["dispatched"])
	assert.Equal(t, uint64(1), stats["errors"])
	assert.Equal(t, uint64(1), sess.Stats().Errors)
	assert.Equal(t, uint64(2), sess.Stats().ReceivedPDUs)
}
