package handler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JBlaschke/nsm-rs-sub000/internal/message"
	"github.com/JBlaschke/nsm-rs-sub000/internal/registry"
	"github.com/JBlaschke/nsm-rs-sub000/internal/transport"
)

type fakeEngine struct {
	enqueued []registry.HeartbeatTarget
	pings    []bool
	recorded []uint64
}

func (f *fakeEngine) Enqueue(target registry.HeartbeatTarget, ping bool, secure bool) {
	f.enqueued = append(f.enqueued, target)
	f.pings = append(f.pings, ping)
}

func (f *fakeEngine) RecordHeartbeat(key uint64) {
	f.recorded = append(f.recorded, key)
}

// fakeSession is a scripted transport.Session used to stand in for the
// far end of a MSG relay dial.
type fakeSession struct {
	sent  []message.Message
	reply message.Message
}

func (s *fakeSession) Send(m message.Message) error {
	s.sent = append(s.sent, m)
	return nil
}
func (s *fakeSession) Recv() (message.Message, error)        { return s.reply, nil }
func (s *fakeSession) SetReadDeadline(d time.Duration) error { return nil }
func (s *fakeSession) Close() error                          { return nil }

type fakeTransport struct {
	dialed  []string
	session *fakeSession
}

func (t *fakeTransport) Dial(addr string, secure bool) (transport.Session, error) {
	t.dialed = append(t.dialed, addr)
	return t.session, nil
}
func (t *fakeTransport) Listen(addr string, secure bool) (transport.AcceptStream, error) {
	panic("not used")
}

func TestHandlePubAssignsIDAndEnqueues(t *testing.T) {
	state := registry.New(60)
	eng := &fakeEngine{}
	h := New(state, eng, &fakeTransport{}, false, nil)

	p := registry.Endpoint{Key: 42, ServicePort: 9000, InterfaceAddrs: []string{"10.0.0.2"}, BindPort: 9001}
	req, err := message.New(message.PUB, p)
	require.NoError(t, err)

	resp, err := h.dispatch(req)
	require.NoError(t, err)
	assert.Equal(t, message.ACK, resp.Header)
	assert.Equal(t, "1", resp.Body)
	require.Len(t, eng.enqueued, 1)
	assert.Equal(t, uint64(1), eng.enqueued[0].ID)
	assert.False(t, eng.pings[0])
}

func TestHandleClaimPairsImmediately(t *testing.T) {
	state := registry.New(60)
	eng := &fakeEngine{}
	h := New(state, eng, &fakeTransport{}, false, nil)

	state.Add(&registry.Endpoint{Key: 42, ServicePort: 9000, ServiceAddrs: []string{"10.0.0.2"}})

	c := registry.Endpoint{Key: 42, ServicePort: -1}
	req, err := message.New(message.CLAIM, c)
	require.NoError(t, err)

	resp, err := h.dispatch(req)
	require.NoError(t, err)
	assert.Equal(t, message.ACK, resp.Header)
	require.NotEmpty(t, resp.Body)

	var pub registry.Endpoint
	require.NoError(t, message.DecodeBody(resp, &pub))
	assert.Equal(t, uint64(1), pub.ID)
}

func TestHandleClaimGivesUpAfterPollWindow(t *testing.T) {
	state := registry.New(60)
	eng := &fakeEngine{}
	h := New(state, eng, &fakeTransport{}, false, nil)
	h.SetClaimPolicy(time.Millisecond, 2)

	c := registry.Endpoint{Key: 7, ServicePort: -1}
	req, err := message.New(message.CLAIM, c)
	require.NoError(t, err)

	resp, err := h.dispatch(req)
	require.NoError(t, err)
	assert.Equal(t, message.ACK, resp.Header)
	assert.Empty(t, resp.Body)
}

func TestHandleHBEchoesAndRecordsPingKey(t *testing.T) {
	state := registry.New(60)
	eng := &fakeEngine{}
	h := New(state, eng, &fakeTransport{}, false, nil)

	resp, err := h.dispatch(message.Message{Header: message.HB, Body: "99"})
	require.NoError(t, err)
	assert.Equal(t, message.HB, resp.Header)
	assert.Equal(t, "99", resp.Body)
	assert.Equal(t, []uint64{99}, eng.recorded)
}

func TestHandleColReturnsPairedPublication(t *testing.T) {
	state := registry.New(60)
	eng := &fakeEngine{}
	h := New(state, eng, &fakeTransport{}, false, nil)

	pubID := state.Add(&registry.Endpoint{Key: 3, ServicePort: 9000})
	claimID := state.Add(&registry.Endpoint{Key: 3, ServicePort: -1})
	_, ok := state.PairClaim(claimID, 3)
	require.True(t, ok)

	resp, err := h.dispatch(message.Message{Header: message.COL, Body: "3"})
	require.NoError(t, err)
	var pub registry.Endpoint
	require.NoError(t, message.DecodeBody(resp, &pub))
	assert.Equal(t, pubID, pub.ID)
}

func TestHandleColUnpairedReturnsEmpty(t *testing.T) {
	state := registry.New(60)
	eng := &fakeEngine{}
	h := New(state, eng, &fakeTransport{}, false, nil)
	state.Add(&registry.Endpoint{Key: 3, ServicePort: -1})

	resp, err := h.dispatch(message.Message{Header: message.COL, Body: "3"})
	require.NoError(t, err)
	assert.Empty(t, resp.Body)
}

func TestHandleMsgRelaysToPublication(t *testing.T) {
	state := registry.New(60)
	eng := &fakeEngine{}
	ft := &fakeTransport{session: &fakeSession{reply: message.Message{Header: message.ACK, Body: "delivered"}}}
	h := New(state, eng, ft, false, nil)

	state.Add(&registry.Endpoint{Key: 3, ServicePort: 9000, InterfaceAddrs: []string{"10.0.0.9"}, BindPort: 9001})
	claimID := state.Add(&registry.Endpoint{Key: 3, ServicePort: -1})
	_, ok := state.PairClaim(claimID, 3)
	require.True(t, ok)

	req, err := message.New(message.MSG, `{"key":3,"text":"hello"}`)
	require.NoError(t, err)

	resp, err := h.dispatch(req)
	require.NoError(t, err)
	assert.Equal(t, message.ACK, resp.Header)
	assert.Equal(t, "delivered", resp.Body)
	require.Len(t, ft.session.sent, 1)
	assert.Equal(t, message.MSG, ft.session.sent[0].Header)
	assert.Equal(t, "hello", ft.session.sent[0].Body)
	assert.Equal(t, []string{"10.0.0.9:9001"}, ft.dialed)
}

func TestDispatchRejectsUnsolicitedAck(t *testing.T) {
	state := registry.New(60)
	eng := &fakeEngine{}
	h := New(state, eng, &fakeTransport{}, false, nil)

	_, err := h.dispatch(message.Message{Header: message.ACK, Body: ""})
	require.Error(t, err)
}
