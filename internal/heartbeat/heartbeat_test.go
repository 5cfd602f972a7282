package heartbeat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JBlaschke/nsm-rs-sub000/internal/message"
	"github.com/JBlaschke/nsm-rs-sub000/internal/queue"
	"github.com/JBlaschke/nsm-rs-sub000/internal/registry"
	"github.com/JBlaschke/nsm-rs-sub000/internal/transport"
)

type scriptedSession struct {
	reply   message.Message
	recvErr error
}

func (s *scriptedSession) Send(m message.Message) error { return nil }
func (s *scriptedSession) Recv() (message.Message, error) {
	return s.reply, s.recvErr
}
func (s *scriptedSession) SetReadDeadline(d time.Duration) error { return nil }
func (s *scriptedSession) Close() error                          { return nil }

type scriptedTransport struct {
	session *scriptedSession
	dialErr error
}

func (t *scriptedTransport) Dial(addr string, secure bool) (transport.Session, error) {
	if t.dialErr != nil {
		return nil, t.dialErr
	}
	return t.session, nil
}
func (t *scriptedTransport) Listen(addr string, secure bool) (transport.AcceptStream, error) {
	panic("not used")
}

func newTestEngine(state *registry.State, tr transport.Transport) *Engine {
	return New(state, queue.New(), tr, Config{FailThreshold: 10}, nil)
}

func TestProbeSuccessResetsFailCountAndRequeues(t *testing.T) {
	state := registry.New(60)
	id := state.Add(&registry.Endpoint{Key: 1, ServicePort: 9000})

	tr := &scriptedTransport{session: &scriptedSession{reply: message.Message{Header: message.HB}}}
	e := newTestEngine(state, tr)

	tracker := &Tracker{ID: id, DialAddr: "10.0.0.1", BindPort: 9001, FailCount: 3}
	e.probe(tracker)

	popped, ok := e.queue.Pop()
	require.True(t, ok)
	requeued := popped.(*Tracker)
	assert.Equal(t, 0, requeued.FailCount)
	assert.NotZero(t, requeued.LastOKUnix)

	_, ok = state.FindPublication(id)
	assert.True(t, ok, "endpoint should not be evicted after a success")
}

func TestProbeFailureEvictsAtThreshold(t *testing.T) {
	state := registry.New(60)
	id := state.Add(&registry.Endpoint{Key: 1, ServicePort: 9000})

	tr := &scriptedTransport{dialErr: assertErr{}}
	e := newTestEngine(state, tr)

	tracker := &Tracker{ID: id, DialAddr: "10.0.0.1", BindPort: 9001, FailCount: 9}
	e.probe(tracker)

	assert.Equal(t, 10, tracker.FailCount)
	assert.Zero(t, e.queue.Len())

	_, ok := state.FindPublication(id)
	assert.False(t, ok, "endpoint should be evicted at the fail threshold")
}

func TestProbeFailureBelowThresholdRequeues(t *testing.T) {
	state := registry.New(60)
	id := state.Add(&registry.Endpoint{Key: 1, ServicePort: 9000})

	tr := &scriptedTransport{dialErr: assertErr{}}
	e := newTestEngine(state, tr)

	tracker := &Tracker{ID: id, DialAddr: "10.0.0.1", BindPort: 9001, FailCount: 2}
	e.probe(tracker)

	assert.Equal(t, 3, tracker.FailCount)
	popped, ok := e.queue.Pop()
	require.True(t, ok)
	assert.Equal(t, id, popped.(*Tracker).ID)
}

func TestPingWatchdogEvictsStaleEntries(t *testing.T) {
	state := registry.New(60)
	id := state.Add(&registry.Endpoint{Key: 5, ServicePort: -1, Ping: true})

	e := newTestEngine(state, &scriptedTransport{})
	e.pingByKey[5] = &pingEntry{id: id, lastOKUnix: now() - 20}

	e.sweepPing()

	_, ok := state.FindClaim(id)
	assert.False(t, ok, "stale ping entry should be evicted")
	e.pingMu.Lock()
	_, tracked := e.pingByKey[5]
	e.pingMu.Unlock()
	assert.False(t, tracked)
}

func TestRecordHeartbeatRefreshesOnlyTrackedKeys(t *testing.T) {
	e := newTestEngine(registry.New(60), &scriptedTransport{})
	e.pingByKey[5] = &pingEntry{id: 1, lastOKUnix: 0}

	e.RecordHeartbeat(5)
	e.RecordHeartbeat(999) // untracked key, should be a no-op

	e.pingMu.Lock()
	defer e.pingMu.Unlock()
	assert.NotZero(t, e.pingByKey[5].lastOKUnix)
	_, untracked := e.pingByKey[999]
	assert.False(t, untracked)
}

type assertErr struct{}

func (assertErr) Error() string { return "dial failed" }
