// Package heartbeat implements the broker's liveness subsystem: a
// cooperative tick loop with a bounded worker pool that probes every
// registered endpoint at a fixed rate, accounts failures, and evicts
// endpoints that go quiet. A second, independent watchdog handles
// "ping"-mode endpoints, which originate their own heartbeats instead of
// answering probes.
package heartbeat

import (
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/JBlaschke/nsm-rs-sub000/internal/message"
	"github.com/JBlaschke/nsm-rs-sub000/internal/queue"
	"github.com/JBlaschke/nsm-rs-sub000/internal/registry"
	"github.com/JBlaschke/nsm-rs-sub000/internal/transport"
)

func joinHostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

const (
	// DefaultTickInterval is the minimum spacing between consecutive probes
	// of the same Tracker.
	DefaultTickInterval = time.Second
	// DefaultFailureInterval bounds how long a single probe waits for a
	// reply before it's counted as a failure.
	DefaultFailureInterval = 3 * time.Second
	// DefaultFailThreshold is the number of consecutive failures that
	// evicts an endpoint.
	DefaultFailThreshold = 10
	// DefaultWorkers bounds how many probes may be in flight at once.
	DefaultWorkers = 10

	// pingScanInterval is how often the ping-mode watchdog scans for
	// stale last_ok_epoch values.
	pingScanInterval = 500 * time.Millisecond
	// pingEvictAfter is how long a ping-mode endpoint may stay silent
	// before the watchdog evicts it.
	pingEvictAfter = 10 * time.Second
)

// Tracker is the broker's bookkeeping record for one probed endpoint. It
// satisfies queue.Item via QueueID so it can ride the event queue directly.
type Tracker struct {
	ID         uint64
	DialAddr   string
	BindPort   int
	RootCA     string
	Secure     bool
	FailCount  int
	LastOKUnix int64
}

func (t *Tracker) QueueID() uint64 { return t.ID }

// Engine owns the event queue and drives probes against it at a bounded
// concurrency, plus the separate ping-mode watchdog.
type Engine struct {
	state     *registry.State
	queue     *queue.Queue
	transport transport.Transport
	log       *slog.Logger

	tickInterval    time.Duration
	failureInterval time.Duration
	failThreshold   int
	sem             chan struct{}

	pingMu sync.Mutex
	// pingByKey tracks ping-mode endpoints by their rendezvous key rather
	// than their broker-assigned id: a CLAIM's ACK never tells the
	// claimant its own id (only the paired publication's Endpoint comes
	// back), but both sides already know the key, so ping-mode HB frames
	// identify themselves by key instead.
	pingByKey map[uint64]*pingEntry
}

type pingEntry struct {
	id         uint64
	lastOKUnix int64
}

// Config bundles the heartbeat engine's tunables, normally sourced from
// internal/config.
type Config struct {
	TickInterval    time.Duration
	FailureInterval time.Duration
	FailThreshold   int
	Workers         int
}

// DefaultConfig returns the engine's built-in defaults.
func DefaultConfig() Config {
	return Config{
		TickInterval:    DefaultTickInterval,
		FailureInterval: DefaultFailureInterval,
		FailThreshold:   DefaultFailThreshold,
		Workers:         DefaultWorkers,
	}
}

// New builds an Engine. log may be nil, in which case a package-level
// default logger with no handler beyond slog's text default is used —
// this is the one subsystem in the repo using log/slog instead of the
// plain log package, for per-tracker structured fields.
func New(state *registry.State, q *queue.Queue, t transport.Transport, cfg Config, log *slog.Logger) *Engine {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	if cfg.FailureInterval <= 0 {
		cfg.FailureInterval = DefaultFailureInterval
	}
	if cfg.FailThreshold <= 0 {
		cfg.FailThreshold = DefaultFailThreshold
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		state:           state,
		queue:           q,
		transport:       t,
		log:             log,
		tickInterval:    cfg.TickInterval,
		failureInterval: cfg.FailureInterval,
		failThreshold:   cfg.FailThreshold,
		sem:             make(chan struct{}, cfg.Workers),
		pingByKey:       make(map[uint64]*pingEntry),
	}
}

// Enqueue admits target for heartbeat tracking. Ping-mode targets are
// tracked by the watchdog only, keyed by their rendezvous key; the rest
// ride the probed Tracker queue.
func (e *Engine) Enqueue(target registry.HeartbeatTarget, ping bool, secure bool) {
	if ping {
		e.pingMu.Lock()
		e.pingByKey[target.Key] = &pingEntry{id: target.ID, lastOKUnix: now()}
		e.pingMu.Unlock()
		return
	}
	e.queue.Push(&Tracker{
		ID:       target.ID,
		DialAddr: target.DialAddr,
		BindPort: target.BindPort,
		RootCA:   target.RootCA,
		Secure:   secure,
	})
}

// RecordHeartbeat refreshes the last-seen time for the ping-mode endpoint
// registered under key, called by the request handler whenever it
// receives an HB frame carrying that key.
func (e *Engine) RecordHeartbeat(key uint64) {
	e.pingMu.Lock()
	defer e.pingMu.Unlock()
	if entry, tracked := e.pingByKey[key]; tracked {
		entry.lastOKUnix = now()
	}
}

// Run drives the probe loop until stop is closed or the queue is closed.
// It blocks, so callers normally invoke it in its own goroutine.
func (e *Engine) Run(stop <-chan struct{}) {
	go e.runPingWatchdog(stop)

	for {
		select {
		case <-stop:
			return
		default:
		}

		item, ok := e.queue.Pop()
		if !ok {
			return
		}
		tr := item.(*Tracker)

		e.sem <- struct{}{}
		go func() {
			defer func() { <-e.sem }()
			e.probe(tr)
		}()

		time.Sleep(e.tickInterval)
	}
}

func (e *Engine) probe(tr *Tracker) {
	addr := tr.DialAddr
	if tr.BindPort != 0 {
		addr = joinHostPort(tr.DialAddr, tr.BindPort)
	}

	sess, err := e.transport.Dial(addr, tr.Secure)
	if err != nil {
		e.fail(tr)
		return
	}
	defer sess.Close()

	if err := sess.SetReadDeadline(e.failureInterval); err != nil {
		e.fail(tr)
		return
	}

	if err := sess.Send(message.Message{Header: message.HB, Body: ""}); err != nil {
		e.fail(tr)
		return
	}

	reply, err := sess.Recv()
	if err != nil {
		e.fail(tr)
		return
	}

	switch reply.Header {
	case message.HB, message.ACK, message.NULL:
		e.succeed(tr)
	default:
		e.fail(tr)
	}
}

func (e *Engine) succeed(tr *Tracker) {
	tr.FailCount = 0
	tr.LastOKUnix = now()
	e.queue.Push(tr)
}

func (e *Engine) fail(tr *Tracker) {
	tr.FailCount++
	if tr.FailCount < e.failThreshold {
		e.queue.Push(tr)
		return
	}
	e.log.Warn("evicting endpoint after consecutive heartbeat failures", "id", tr.ID, "fail_count", tr.FailCount)
	e.state.Remove(tr.ID)
}

func (e *Engine) runPingWatchdog(stop <-chan struct{}) {
	ticker := time.NewTicker(pingScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			e.sweepPing()
		}
	}
}

func (e *Engine) sweepPing() {
	cutoff := now() - int64(pingEvictAfter.Seconds())

	e.pingMu.Lock()
	var staleIDs []uint64
	var staleKeys []uint64
	for key, entry := range e.pingByKey {
		if entry.lastOKUnix < cutoff {
			staleKeys = append(staleKeys, key)
			staleIDs = append(staleIDs, entry.id)
		}
	}
	for _, key := range staleKeys {
		delete(e.pingByKey, key)
	}
	e.pingMu.Unlock()

	for _, id := range staleIDs {
		e.log.Warn("evicting ping-mode endpoint after silence", "id", id)
		e.state.Remove(id)
	}
}

func now() int64 { return time.Now().Unix() }
