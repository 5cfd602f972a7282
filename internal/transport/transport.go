// Package transport provides the unified send/recv abstraction that the
// broker and its participants use regardless of whether the underlying
// carrier is raw TCP or HTTP(S). Request handling and the heartbeat engine
// are written once, against Session, and never see tcp.Conn or http.Request
// directly.
package transport

import (
	"time"

	"github.com/JBlaschke/nsm-rs-sub000/internal/message"
)

// Session is one logical connection to a peer, capable of exchanging
// Messages in either direction.
type Session interface {
	// Send writes one frame.
	Send(m message.Message) error
	// Recv reads the next frame, honoring the most recent SetReadDeadline.
	Recv() (message.Message, error)
	// SetReadDeadline bounds the next Recv call. A zero duration clears the
	// deadline.
	SetReadDeadline(d time.Duration) error
	// Close releases the session. A pending Recv returns ErrClosed.
	Close() error
}

// AcceptStream yields inbound Sessions as peers connect.
type AcceptStream interface {
	Accept() (Session, error)
	Close() error
	Addr() string
}

// Transport is the capability to dial out to a peer or listen for inbound
// sessions, optionally over TLS.
type Transport interface {
	Dial(addr string, secure bool) (Session, error)
	Listen(addr string, secure bool) (AcceptStream, error)
}
