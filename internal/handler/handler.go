// Package handler implements the broker's request handler (component E):
// the dispatch table that drives the registry and heartbeat engine from
// incoming PUB/CLAIM/HB/COL/MSG frames.
package handler

import (
	"encoding/json"
	"log"
	"net"
	"strconv"
	"time"

	"github.com/JBlaschke/nsm-rs-sub000/internal/message"
	"github.com/JBlaschke/nsm-rs-sub000/internal/nsmerr"
	"github.com/JBlaschke/nsm-rs-sub000/internal/registry"
	"github.com/JBlaschke/nsm-rs-sub000/internal/transport"
)

// defaultClaimPollInterval and defaultClaimPollAttempts implement the
// CLAIM retry window: up to 6 seconds at 1 second intervals. Overridable
// via SetClaimPolicy, normally from internal/config.
const (
	defaultClaimPollInterval = time.Second
	defaultClaimPollAttempts = 6
)

// engine is the subset of *heartbeat.Engine the handler depends on. Kept
// as an interface so handler tests don't need a real heartbeat engine.
type engine interface {
	Enqueue(target registry.HeartbeatTarget, ping bool, secure bool)
	RecordHeartbeat(id uint64)
}

// relayPayload is the MSG request body: which claim's paired publication to
// forward to, and the user text to forward.
type relayPayload struct {
	Key  uint64 `json:"key"`
	Text string `json:"text"`
}

// Handler dispatches one Session's frames against a shared registry and
// heartbeat engine.
type Handler struct {
	state     *registry.State
	engine    engine
	transport transport.Transport
	secure    bool
	log       *log.Logger

	claimPollInterval time.Duration
	claimPollAttempts int
}

// New builds a Handler. transport is used only to dial the paired
// publication's heartbeat session when relaying a MSG; secure applies to
// that dial and is also passed to eng for every enqueued heartbeat target.
// eng is normally a *heartbeat.Engine.
func New(state *registry.State, eng engine, t transport.Transport, secure bool, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{
		state:             state,
		engine:            eng,
		transport:         t,
		secure:            secure,
		log:               logger,
		claimPollInterval: defaultClaimPollInterval,
		claimPollAttempts: defaultClaimPollAttempts,
	}
}

// SetClaimPolicy overrides the CLAIM retry window. Zero values leave the
// corresponding default in place.
func (h *Handler) SetClaimPolicy(interval time.Duration, attempts int) {
	if interval > 0 {
		h.claimPollInterval = interval
	}
	if attempts > 0 {
		h.claimPollAttempts = attempts
	}
}

// Serve reads and dispatches frames from sess until it errors or a frame
// violates the state machine's preconditions, at which point the session
// is closed.
func (h *Handler) Serve(sess transport.Session) {
	defer sess.Close()

	for {
		req, err := sess.Recv()
		if err != nil {
			return
		}

		resp, err := h.dispatch(req)
		if err != nil {
			h.log.Printf("handler: closing session after protocol error: %v", err)
			return
		}

		if err := sess.Send(resp); err != nil {
			return
		}
	}
}

func (h *Handler) dispatch(req message.Message) (message.Message, error) {
	switch req.Header {
	case message.PUB:
		return h.handlePub(req)
	case message.CLAIM:
		return h.handleClaim(req)
	case message.HB:
		return h.handleHB(req)
	case message.COL:
		return h.handleCol(req)
	case message.MSG:
		return h.handleMsg(req)
	default:
		return message.Message{}, nsmerr.Protocolf("unsolicited header %q", req.Header)
	}
}

func (h *Handler) handlePub(req message.Message) (message.Message, error) {
	var p registry.Endpoint
	if err := message.DecodeBody(req, &p); err != nil {
		return message.Message{}, err
	}
	if p.IsClaim() {
		return message.Message{}, nsmerr.Protocolf("PUB body has service_port < 0")
	}

	id := h.state.Add(&p)
	h.enqueueHeartbeat(&p)

	return message.New(message.ACK, strconv.FormatUint(id, 10))
}

func (h *Handler) handleClaim(req message.Message) (message.Message, error) {
	var c registry.Endpoint
	if err := message.DecodeBody(req, &c); err != nil {
		return message.Message{}, err
	}
	if !c.IsClaim() {
		return message.Message{}, nsmerr.Protocolf("CLAIM body has service_port >= 0")
	}

	id := h.state.Add(&c)
	h.enqueueHeartbeat(&c)

	var pub *registry.Endpoint
	for attempt := 0; attempt < h.claimPollAttempts; attempt++ {
		if p, ok := h.state.PairClaim(id, c.Key); ok {
			pub = p
			break
		}
		if attempt < h.claimPollAttempts-1 {
			time.Sleep(h.claimPollInterval)
		}
	}

	if pub == nil {
		return message.New(message.ACK, "")
	}
	return message.New(message.ACK, pub)
}

func (h *Handler) handleHB(req message.Message) (message.Message, error) {
	// A ping-mode participant's HB body carries its rendezvous key; a
	// heartbeat-engine probe's body is empty. ParseUint rejects the
	// latter, so RecordHeartbeat only ever fires for the former.
	if key, err := strconv.ParseUint(req.Body, 10, 64); err == nil {
		h.engine.RecordHeartbeat(key)
	}
	return message.Message{Header: message.HB, Body: req.Body}, nil
}

func (h *Handler) handleCol(req message.Message) (message.Message, error) {
	key, err := strconv.ParseUint(req.Body, 10, 64)
	if err != nil {
		return message.Message{}, nsmerr.Protocolf("COL body is not a key: %w", err)
	}

	claim, ok := h.state.FindClaimByKey(key)
	if !ok || claim.ServiceID == 0 {
		return message.New(message.ACK, "")
	}
	pub, ok := h.state.FindPublication(claim.ServiceID)
	if !ok {
		return message.New(message.ACK, "")
	}
	return message.New(message.ACK, pub)
}

func (h *Handler) handleMsg(req message.Message) (message.Message, error) {
	var payload relayPayload
	if err := json.Unmarshal([]byte(req.Body), &payload); err != nil {
		return message.Message{}, nsmerr.Protocolf("decode MSG body: %w", err)
	}

	claim, ok := h.state.FindClaimByKey(payload.Key)
	if !ok || claim.ServiceID == 0 {
		return message.New(message.ACK, "")
	}
	pub, ok := h.state.FindPublication(claim.ServiceID)
	if !ok || len(pub.InterfaceAddrs) == 0 {
		return message.New(message.ACK, "")
	}

	addr := joinAddr(pub.InterfaceAddrs[0], pub.BindPort)
	sess, err := h.transport.Dial(addr, h.secure)
	if err != nil {
		return message.Message{}, nsmerr.Transport(nsmerr.ErrUnreachable, err)
	}
	defer sess.Close()

	if err := sess.SetReadDeadline(3 * time.Second); err != nil {
		return message.Message{}, err
	}
	if err := sess.Send(message.Message{Header: message.MSG, Body: payload.Text}); err != nil {
		return message.Message{}, err
	}
	reply, err := sess.Recv()
	if err != nil {
		return message.Message{}, err
	}

	return message.New(message.ACK, reply.Body)
}

func (h *Handler) enqueueHeartbeat(e *registry.Endpoint) {
	addr := ""
	if len(e.InterfaceAddrs) > 0 {
		addr = e.InterfaceAddrs[0]
	}
	h.engine.Enqueue(registry.HeartbeatTarget{
		ID:       e.ID,
		Key:      e.Key,
		DialAddr: addr,
		BindPort: e.BindPort,
		RootCA:   e.RootCA,
	}, e.Ping, h.secure)
}

func joinAddr(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
