package server

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smppd/internal/dispatcher"
	"smppd/internal/performance"
	"smppd/internal/protocol"
	"smppd/internal/session"
)

type staticAuth map[string]string

func (a staticAuth) Authenticate(_ context.Context, systemID, password string) (bool, error) {
	p, ok := a[systemID]
	return ok && p == password, nil
}

type fixedAcceptor string

func (f fixedAcceptor) Accept(context.Context, string, *protocol.SubmitSM) (string, error) {
	return string(f), nil
}

type denyAll struct{}

func (denyAll) Check(net.IP) bool { return false }

func newTestServer(opts ...Option) *Server {
	d := dispatcher.NewDispatcher(dispatcher.Config{}, staticAuth{"user": "pass"}, fixedAcceptor("id-42"), nil, performance.NewMetrics(nil))
	opts = append([]Option{WithMetrics(performance.NewMetrics(nil))}, opts...)
	return NewServer(&ServerConfig{}, d, opts...)
}

// pipeClient 通过net.Pipe连接到服务器的测试客户端
type pipeClient struct {
	t    *testing.T
	conn net.Conn
	done chan struct{}
}

func dialPipe(t *testing.T, s *Server) *pipeClient {
	t.Helper()
	clientSide, serverSide := net.Pipe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.HandleConn(serverSide)
	}()
	t.Cleanup(func() { clientSide.Close() })
	return &pipeClient{t: t, conn: clientSide, done: done}
}

func (c *pipeClient) send(p *protocol.PDU) {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetWriteDeadline(time.Now().Add(2*time.Second)))
	_, err := c.conn.Write(protocol.Encode(p))
	require.NoError(c.t, err)
}

func (c *pipeClient) read() (*protocol.PDU, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		return nil, err
	}
	header := make([]byte, protocol.HeaderLength)
	if _, err := io.ReadFull(c.conn, header); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(header[0:4])
	frame := make([]byte, length)
	copy(frame, header)
	if _, err := io.ReadFull(c.conn, frame[protocol.HeaderLength:]); err != nil {
		return nil, err
	}
	pdu, _, err := protocol.Decode(frame)
	return pdu, err
}

func (c *pipeClient) expect() *protocol.PDU {
	c.t.Helper()
	pdu, err := c.read()
	require.NoError(c.t, err)
	return pdu
}

func (c *pipeClient) waitClosed() {
	c.t.Helper()
	select {
	case <-c.done:
	case <-time.After(2 * time.Second):
		c.t.Fatal("connection was not closed")
	}
}

func bindBody(systemID, password string) []byte {
	req := &protocol.BindRequest{SystemID: systemID, Password: password, InterfaceVersion: protocol.InterfaceVersion34}
	return req.Marshal()
}

func submitBody() []byte {
	sm := &protocol.SubmitSM{SourceAddr: "10086", DestinationAddr: "13800138000", ShortMessage: []byte("hi")}
	return sm.Marshal()
}

func TestBindSubmitUnbindScenario(t *testing.T) {
	s := newTestServer()
	c := dialPipe(t, s)

	c.send(protocol.NewPDU(protocol.BIND_TRANSMITTER, 0, 1, bindBody("user", "pass")))
	resp := c.expect()
	assert.Equal(t, protocol.BIND_TRANSMITTER_RESP, resp.CommandID)
	assert.Equal(t, protocol.ESME_ROK, resp.CommandStatus)
	assert.Equal(t, uint32(1), resp.SequenceNumber)
	assert.Equal(t, []byte("smppserver\x00"), resp.Body)

	c.send(protocol.NewPDU(protocol.SUBMIT_SM, 0, 2, submitBody()))
	resp = c.expect()
	assert.Equal(t, protocol.SUBMIT_SM_RESP, resp.CommandID)
	assert.Equal(t, protocol.ESME_ROK, resp.CommandStatus)
	assert.Equal(t, uint32(2), resp.SequenceNumber)
	assert.Equal(t, []byte("id-42\x00"), resp.Body)

	c.send(protocol.NewPDU(protocol.UNBIND, 0, 3, nil))
	resp = c.expect()
	assert.Equal(t, protocol.UNBIND_RESP, resp.CommandID)
	assert.Equal(t, protocol.ESME_ROK, resp.CommandStatus)
	assert.Equal(t, uint32(3), resp.SequenceNumber)

	c.waitClosed()
	_, err := c.read()
	assert.Error(t, err)
	assert.Equal(t, 0, s.GetSessionManager().Count())
}

func TestNoPDUsProcessedAfterUnbind(t *testing.T) {
	s := newTestServer()
	c := dialPipe(t, s)

	c.send(protocol.NewPDU(protocol.BIND_TRANSCEIVER, 0, 1, bindBody("user", "pass")))
	c.expect()

	// unbind与submit_sm在同一次写入中到达
	frames := append(protocol.Encode(protocol.NewPDU(protocol.UNBIND, 0, 2, nil)),
		protocol.Encode(protocol.NewPDU(protocol.SUBMIT_SM, 0, 3, submitBody()))...)
	require.NoError(t, c.conn.SetWriteDeadline(time.Now().Add(2*time.Second)))
	_, err := c.conn.Write(frames)
	require.NoError(t, err)

	resp := c.expect()
	assert.Equal(t, protocol.UNBIND_RESP, resp.CommandID)

	_, err = c.read()
	assert.Error(t, err)
	c.waitClosed()
}

func TestShortLengthClosesWithoutResponse(t *testing.T) {
	s := newTestServer()
	c := dialPipe(t, s)

	frame := make([]byte, protocol.HeaderLength)
	binary.BigEndian.PutUint32(frame[0:4], 8)
	binary.BigEndian.PutUint32(frame[4:8], protocol.ENQUIRE_LINK)
	binary.BigEndian.PutUint32(frame[12:16], 1)
	_, err := c.conn.Write(frame)
	require.NoError(t, err)

	_, err = c.read()
	assert.True(t, errors.Is(err, io.EOF), "expected EOF, got %v", err)
	c.waitClosed()
	assert.Equal(t, int64(1), s.metrics.FrameErrors.Count())
}

func TestPDUSplitAcrossWrites(t *testing.T) {
	s := newTestServer()
	c := dialPipe(t, s)

	data := protocol.Encode(protocol.NewPDU(protocol.ENQUIRE_LINK, 0, 77, nil))
	for _, part := range [][]byte{data[:3], data[3:10], data[10:]} {
		_, err := c.conn.Write(part)
		require.NoError(t, err)
	}

	resp := c.expect()
	assert.Equal(t, protocol.ENQUIRE_LINK_RESP, resp.CommandID)
	assert.Equal(t, uint32(77), resp.SequenceNumber)
}

func TestSubmitBeforeBindKeepsConnectionOpen(t *testing.T) {
	s := newTestServer()
	c := dialPipe(t, s)

	c.send(protocol.NewPDU(protocol.SUBMIT_SM, 0, 5, submitBody()))
	resp := c.expect()
	assert.Equal(t, protocol.GENERIC_NACK, resp.CommandID)
	assert.Equal(t, protocol.ESME_RINVBNDSTS, resp.CommandStatus)
	assert.Equal(t, uint32(5), resp.SequenceNumber)

	c.send(protocol.NewPDU(protocol.BIND_TRANSMITTER, 0, 6, bindBody("user", "wrong")))
	resp = c.expect()
	assert.Equal(t, protocol.GENERIC_NACK, resp.CommandID)
	assert.Equal(t, protocol.ESME_RBINDFAIL, resp.CommandStatus)

	c.send(protocol.NewPDU(protocol.ENQUIRE_LINK, 0, 7, nil))
	resp = c.expect()
	assert.Equal(t, protocol.ENQUIRE_LINK_RESP, resp.CommandID)
	assert.Equal(t, 1, s.GetSessionManager().Count())
}

func TestHeartbeatSendsEnquireLink(t *testing.T) {
	s := newTestServer()
	c := dialPipe(t, s)

	c.send(protocol.NewPDU(protocol.BIND_RECEIVER, 0, 1, bindBody("user", "pass")))
	c.expect()

	go s.checkSessionHeartbeats()

	req := c.expect()
	assert.Equal(t, protocol.ENQUIRE_LINK, req.CommandID)
	assert.Equal(t, uint32(1), req.SequenceNumber)

	c.send(protocol.NewResponse(req, protocol.ENQUIRE_LINK_RESP, protocol.ESME_ROK, nil))

	c.send(protocol.NewPDU(protocol.ENQUIRE_LINK, 0, 2, nil))
	assert.Equal(t, protocol.ENQUIRE_LINK_RESP, c.expect().CommandID)
}

func TestDeliverToReceiver(t *testing.T) {
	s := newTestServer()
	c := dialPipe(t, s)

	c.send(protocol.NewPDU(protocol.BIND_RECEIVER, 0, 1, bindBody("user", "pass")))
	c.expect()

	result := make(chan error, 1)
	go func() {
		_, err := s.Deliver("user", submitBody())
		result <- err
	}()

	pdu := c.expect()
	assert.Equal(t, protocol.DELIVER_SM, pdu.CommandID)
	assert.Equal(t, submitBody(), pdu.Body)
	require.NoError(t, <-result)

	_, err := s.Deliver("nobody", nil)
	assert.True(t, errors.Is(err, ErrSessionNotFound))
}

func TestConnectionDeliverRequiresReceiver(t *testing.T) {
	clientSide, serverSide := net.Pipe()
	defer clientSide.Close()

	conn := NewConnection(context.Background(), serverSide, nil, nil, nil)
	defer conn.Close()
	require.NoError(t, conn.Session().Bind(session.RoleTransmitter, "user"))

	_, err := conn.Deliver([]byte("x"))
	assert.True(t, errors.Is(err, session.ErrInvalidState))
}

func TestConnectionCloseCancelsContext(t *testing.T) {
	_, serverSide := net.Pipe()
	conn := NewConnection(context.Background(), serverSide, nil, nil, nil)

	require.NoError(t, conn.Close())
	assert.NoError(t, conn.Close())

	select {
	case <-conn.Context().Done():
	case <-time.After(time.Second):
		t.Fatal("context not cancelled")
	}
	assert.Equal(t, session.Closed, conn.Session().State())
	assert.ErrorIs(t, conn.WritePDU(protocol.NewPDU(protocol.ENQUIRE_LINK, 0, 1, nil)), ErrConnectionClosed)
}

func TestParentContextClosesConnection(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	_, serverSide := net.Pipe()
	conn := NewConnection(ctx, serverSide, nil, nil, nil)

	cancel()
	select {
	case <-conn.Done():
	case <-time.After(time.Second):
		t.Fatal("connection not closed")
	}
}

func TestSessionManager(t *testing.T) {
	m := NewSessionManager(0)
	defer m.Stop()

	_, a := net.Pipe()
	_, b := net.Pipe()
	ca := NewConnection(context.Background(), a, nil, nil, nil)
	cb := NewConnection(context.Background(), b, nil, nil, nil)
	require.NoError(t, ca.Session().Bind(session.RoleReceiver, "alpha"))

	m.Add(ca)
	m.Add(cb)
	assert.Equal(t, 2, m.Count())

	got, ok := m.Get(ca.ID())
	require.True(t, ok)
	assert.Same(t, ca, got)

	assert.Len(t, m.GetBySystemID("alpha"), 1)
	assert.Len(t, m.GetActiveSessions(), 1)
	assert.Len(t, m.Snapshot(), 2)

	require.NoError(t, m.CloseSession(cb.ID()))
	assert.Equal(t, 1, m.Count())
	assert.ErrorIs(t, m.CloseSession(cb.ID()), ErrSessionNotFound)

	m.Remove(ca.ID())
	assert.Equal(t, 0, m.Count())
}

func TestServeOverTCP(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := newTestServer()
	s.Serve(context.Background(), listener)
	defer s.Stop()

	conn, err := net.Dial("tcp", listener.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	c := &pipeClient{t: t, conn: conn}

	c.send(protocol.NewPDU(protocol.BIND_TRANSCEIVER, 0, 1, bindBody("user", "pass")))
	resp := c.expect()
	assert.Equal(t, protocol.BIND_TRANSCEIVER_RESP, resp.CommandID)
	assert.Equal(t, protocol.ESME_ROK, resp.CommandStatus)

	stats := s.GetStats()
	assert.Equal(t, uint64(1), stats["total_connections"])
	assert.Equal(t, 1, stats["bound_sessions"])

	// 停止服务时向已绑定会话发送unbind
	go s.Stop()
	req := c.expect()
	assert.Equal(t, protocol.UNBIND, req.CommandID)
}

func TestAddrFilterRejects(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := newTestServer(WithAddrFilter(denyAll{}))
	s.Serve(context.Background(), listener)
	defer s.Stop()

	conn, err := net.Dial("tcp", listener.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err = conn.Read(make([]byte, 1))
	assert.ErrorIs(t, err, io.EOF)
	assert.Eventually(t, func() bool {
		return s.GetStats()["rejected_connections"] == uint64(1)
	}, time.Second, 10*time.Millisecond)
}
