// Package participant implements the client-side state machines (component
// H): publish, claim, collect, send, and the heartbeat responder/originator
// that keeps a published service or claim alive against the broker.
package participant

import (
	"encoding/json"
	"log"
	"strconv"
	"time"

	"github.com/JBlaschke/nsm-rs-sub000/internal/heartbeat"
	"github.com/JBlaschke/nsm-rs-sub000/internal/message"
	"github.com/JBlaschke/nsm-rs-sub000/internal/nsmerr"
	"github.com/JBlaschke/nsm-rs-sub000/internal/registry"
	"github.com/JBlaschke/nsm-rs-sub000/internal/transport"
)

const (
	claimRetryAttempts = 5
	claimRetryInterval = time.Second
	pingGrace          = 5 * time.Second
	pingInterval       = 500 * time.Millisecond
	pingAckTimeout     = 3 * time.Second
)

// Publish registers e (service_port >= 0) with the broker at brokerAddr
// and returns the broker-assigned id.
func Publish(t transport.Transport, brokerAddr string, secure bool, e *registry.Endpoint) (uint64, error) {
	sess, err := t.Dial(brokerAddr, secure)
	if err != nil {
		return 0, err
	}
	defer sess.Close()

	req, err := message.New(message.PUB, e)
	if err != nil {
		return 0, err
	}
	if err := sess.Send(req); err != nil {
		return 0, err
	}

	resp, err := sess.Recv()
	if err != nil {
		return 0, err
	}
	if resp.Header != message.ACK {
		return 0, nsmerr.Protocolf("publish: unexpected reply header %q", resp.Header)
	}

	id, err := strconv.ParseUint(resp.Body, 10, 64)
	if err != nil {
		return 0, nsmerr.Protocolf("publish: malformed ack body %q: %w", resp.Body, err)
	}
	return id, nil
}

// Claim registers e (service_port == -1) and polls the broker for a
// pairing, retrying the whole CLAIM up to claimRetryAttempts times, 1 s
// apart, before giving up with ErrNotFound.
func Claim(t transport.Transport, brokerAddr string, secure bool, e *registry.Endpoint) (*registry.Endpoint, error) {
	for attempt := 0; attempt < claimRetryAttempts; attempt++ {
		pub, err := tryClaim(t, brokerAddr, secure, e)
		if err != nil {
			return nil, err
		}
		if pub != nil {
			return pub, nil
		}
		if attempt < claimRetryAttempts-1 {
			time.Sleep(claimRetryInterval)
		}
	}
	return nil, nsmerr.ErrNotFound
}

func tryClaim(t transport.Transport, brokerAddr string, secure bool, e *registry.Endpoint) (*registry.Endpoint, error) {
	sess, err := t.Dial(brokerAddr, secure)
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	req, err := message.New(message.CLAIM, e)
	if err != nil {
		return nil, err
	}
	if err := sess.Send(req); err != nil {
		return nil, err
	}

	resp, err := sess.Recv()
	if err != nil {
		return nil, err
	}
	if resp.Header != message.ACK {
		return nil, nsmerr.Protocolf("claim: unexpected reply header %q", resp.Header)
	}
	if resp.Body == "" {
		return nil, nil
	}

	var pub registry.Endpoint
	if err := message.DecodeBody(resp, &pub); err != nil {
		return nil, err
	}
	return &pub, nil
}

// Collect opens a session to the broker and asks it to relay the last
// observed publication payload for the claim registered under key.
func Collect(t transport.Transport, brokerAddr string, secure bool, key uint64) (string, error) {
	sess, err := t.Dial(brokerAddr, secure)
	if err != nil {
		return "", err
	}
	defer sess.Close()

	req, err := message.New(message.COL, strconv.FormatUint(key, 10))
	if err != nil {
		return "", err
	}
	if err := sess.Send(req); err != nil {
		return "", err
	}

	resp, err := sess.Recv()
	if err != nil {
		return "", err
	}
	if resp.Header != message.ACK {
		return "", nsmerr.Protocolf("collect: unexpected reply header %q", resp.Header)
	}
	return resp.Body, nil
}

// relayPayload mirrors internal/handler's MSG request body.
type relayPayload struct {
	Key  uint64 `json:"key"`
	Text string `json:"text"`
}

// Send asks the broker to relay text to the publication paired with the
// claim registered under key, returning the publication's ACK body.
func Send(t transport.Transport, brokerAddr string, secure bool, key uint64, text string) (string, error) {
	sess, err := t.Dial(brokerAddr, secure)
	if err != nil {
		return "", err
	}
	defer sess.Close()

	body, err := json.Marshal(relayPayload{Key: key, Text: text})
	if err != nil {
		return "", err
	}
	req, err := message.New(message.MSG, string(body))
	if err != nil {
		return "", err
	}
	if err := sess.Send(req); err != nil {
		return "", err
	}

	resp, err := sess.Recv()
	if err != nil {
		return "", err
	}
	if resp.Header != message.ACK {
		return "", nsmerr.Protocolf("send: unexpected reply header %q", resp.Header)
	}
	return resp.Body, nil
}

// ServeHeartbeatResponder accepts connections on ln forever and answers
// exactly one frame per connection before closing it: an HB probe gets an
// HB echo, and a MSG relayed by the broker's handler (component E's
// MSG case dials this same listener) gets acknowledged with an ACK
// carrying the same body — the publication's heartbeat session, which is
// where a relayed MSG is forwarded.
func ServeHeartbeatResponder(ln transport.AcceptStream, logger *log.Logger) {
	if logger == nil {
		logger = log.Default()
	}
	for {
		sess, err := ln.Accept()
		if err != nil {
			return
		}
		go func() {
			defer sess.Close()
			req, err := sess.Recv()
			if err != nil {
				return
			}
			switch req.Header {
			case message.HB:
				_ = sess.Send(message.Message{Header: message.HB, Body: req.Body})
			case message.MSG:
				_ = sess.Send(message.Message{Header: message.ACK, Body: req.Body})
			}
		}()
	}
}

// RunPingOriginator implements ping = true mode: after an initial grace
// period, it sends HB frames carrying the endpoint's rendezvous key to the
// broker on its own timer until stop is closed, rather than waiting to be
// probed. Key, not the broker-assigned id, is what identifies the
// heartbeat to the broker: a CLAIM's ACK never reports the claimant's own
// id, only the paired publication's Endpoint, so key is the one
// identifier both sides already share.
//
// It tracks consecutive send failures the same way heartbeat.Engine
// tracks a probed Tracker's FailCount, and once heartbeat.DefaultFailThreshold
// consecutive pings fail — this side's mirror of the broker's own probe
// eviction threshold — it closes evicted and returns, letting the caller
// shut down quietly. At pingInterval that is at least about 5 s of failed
// pings, which can be shorter than the broker's 10 s ping-mode silence
// limit.
func RunPingOriginator(t transport.Transport, brokerAddr string, secure bool, key uint64, stop <-chan struct{}, evicted chan<- struct{}, logger *log.Logger) {
	if logger == nil {
		logger = log.Default()
	}

	select {
	case <-time.After(pingGrace):
	case <-stop:
		return
	}

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	keyStr := strconv.FormatUint(key, 10)
	failCount := 0
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := sendPing(t, brokerAddr, secure, keyStr); err != nil {
				failCount++
				logger.Printf("participant: ping heartbeat failed (%d/%d): %v", failCount, heartbeat.DefaultFailThreshold, err)
				if failCount >= heartbeat.DefaultFailThreshold {
					logger.Printf("participant: broker has likely evicted this endpoint after consecutive ping failures, shutting down")
					close(evicted)
					return
				}
				continue
			}
			failCount = 0
		}
	}
}

func sendPing(t transport.Transport, brokerAddr string, secure bool, keyStr string) error {
	sess, err := t.Dial(brokerAddr, secure)
	if err != nil {
		return err
	}
	defer sess.Close()

	if err := sess.SetReadDeadline(pingAckTimeout); err != nil {
		return err
	}
	if err := sess.Send(message.Message{Header: message.HB, Body: keyStr}); err != nil {
		return err
	}
	_, err = sess.Recv()
	return err
}
