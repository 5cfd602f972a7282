package transport

import (
	"crypto/tls"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/JBlaschke/nsm-rs-sub000/internal/message"
	"github.com/JBlaschke/nsm-rs-sub000/internal/nsmerr"
)

// maxFrameBytes bounds a single frame to guard against a peer sending a
// bogus length prefix and exhausting memory.
const maxFrameBytes = 16 << 20

// TCP is a Transport backed by raw TCP sockets. Each Message is one
// length-delimited frame: a 4-byte big-endian length prefix followed by the
// JSON-encoded body. Framing is explicit rather than relying on a single
// read returning a complete message, which breaks for frames that are an
// exact multiple of the read buffer size.
type TCP struct {
	tlsConfig *tls.Config
}

// NewTCP builds a TCP transport. tlsConfig may be nil if TLS is never
// requested by a caller.
func NewTCP(tlsConfig *tls.Config) *TCP {
	return &TCP{tlsConfig: tlsConfig}
}

func (t *TCP) Dial(addr string, secure bool) (Session, error) {
	if secure {
		if t.tlsConfig == nil {
			return nil, nsmerr.Transport(nsmerr.ErrTLSHandshake, fmt.Errorf("no tls config configured"))
		}
		conn, err := tls.Dial("tcp", addr, t.tlsConfig)
		if err != nil {
			return nil, nsmerr.Transport(nsmerr.ErrTLSHandshake, err)
		}
		return &tcpSession{conn: conn}, nil
	}

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, nsmerr.Transport(nsmerr.ErrUnreachable, err)
	}
	return &tcpSession{conn: conn}, nil
}

func (t *TCP) Listen(addr string, secure bool) (AcceptStream, error) {
	if secure {
		if t.tlsConfig == nil {
			return nil, nsmerr.Transport(nsmerr.ErrTLSHandshake, fmt.Errorf("no tls config configured"))
		}
		ln, err := tls.Listen("tcp", addr, t.tlsConfig)
		if err != nil {
			return nil, nsmerr.Transport(nsmerr.ErrUnreachable, err)
		}
		return &tcpAcceptStream{ln: ln}, nil
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nsmerr.Transport(nsmerr.ErrUnreachable, err)
	}
	return &tcpAcceptStream{ln: ln}, nil
}

type tcpAcceptStream struct {
	ln net.Listener
}

func (a *tcpAcceptStream) Accept() (Session, error) {
	conn, err := a.ln.Accept()
	if err != nil {
		return nil, nsmerr.Transport(nsmerr.ErrClosed, err)
	}
	return &tcpSession{conn: conn}, nil
}

func (a *tcpAcceptStream) Close() error { return a.ln.Close() }
func (a *tcpAcceptStream) Addr() string { return a.ln.Addr().String() }

type tcpSession struct {
	conn net.Conn
}

func (s *tcpSession) Send(m message.Message) error {
	body, err := message.Encode(m)
	if err != nil {
		return err
	}

	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(body)))

	if _, err := s.conn.Write(prefix[:]); err != nil {
		return nsmerr.Transport(classify(err), err)
	}
	if _, err := s.conn.Write(body); err != nil {
		return nsmerr.Transport(classify(err), err)
	}
	return nil
}

func (s *tcpSession) Recv() (message.Message, error) {
	var prefix [4]byte
	if _, err := io.ReadFull(s.conn, prefix[:]); err != nil {
		return message.Message{}, nsmerr.Transport(classify(err), err)
	}

	n := binary.BigEndian.Uint32(prefix[:])
	if n > maxFrameBytes {
		return message.Message{}, nsmerr.Protocolf("frame too large: %d bytes", n)
	}

	body := make([]byte, n)
	if _, err := io.ReadFull(s.conn, body); err != nil {
		return message.Message{}, nsmerr.Transport(classify(err), err)
	}

	return message.Decode(body)
}

func (s *tcpSession) SetReadDeadline(d time.Duration) error {
	if d <= 0 {
		return s.conn.SetReadDeadline(time.Time{})
	}
	return s.conn.SetReadDeadline(time.Now().Add(d))
}

func (s *tcpSession) Close() error { return s.conn.Close() }

// listenerFor opens the plain TCP listener an HTTP(S) server binds to.
// http.Server.Serve/ServeTLS both take a net.Listener, so the HTTP
// transport reuses this instead of asking net/http to open its own.
func listenerFor(addr string) (net.Listener, error) {
	return net.Listen("tcp", addr)
}

func classify(err error) error {
	if err == io.EOF || errors.Is(err, net.ErrClosed) {
		return nsmerr.ErrClosed
	}
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return nsmerr.ErrTimedOut
	}
	return nsmerr.ErrUnreachable
}
