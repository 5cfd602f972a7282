package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/JBlaschke/nsm-rs-sub000/internal/message"
	"github.com/JBlaschke/nsm-rs-sub000/internal/nsmerr"
)

// requestIDHeader carries a per-exchange correlation id, the HTTP
// transport's analogue of the envelope ID every cellorg message carries.
const requestIDHeader = "X-Request-Id"

// HTTP is a Transport backed by HTTP(S): POST /request_handler carries every
// non-heartbeat frame, GET /heartbeat_handler carries HB and COL. A Message
// is the entire request or response body, JSON-encoded.
type HTTP struct {
	tlsConfig *tls.Config
	client    *http.Client
}

// NewHTTP builds an HTTP transport. tlsConfig may be nil if TLS is never
// requested by a caller.
func NewHTTP(tlsConfig *tls.Config) *HTTP {
	transport := &http.Transport{TLSClientConfig: tlsConfig}
	return &HTTP{
		tlsConfig: tlsConfig,
		client:    &http.Client{Transport: transport},
	}
}

func (h *HTTP) Dial(addr string, secure bool) (Session, error) {
	scheme := "http"
	if secure {
		if h.tlsConfig == nil {
			return nil, nsmerr.Transport(nsmerr.ErrTLSHandshake, fmt.Errorf("no tls config configured"))
		}
		scheme = "https"
	}
	return &httpClientSession{
		client: h.client,
		base:   fmt.Sprintf("%s://%s", scheme, addr),
		path:   "/request_handler",
	}, nil
}

func (h *HTTP) Listen(addr string, secure bool) (AcceptStream, error) {
	router := mux.NewRouter()
	inbound := make(chan *httpExchange)

	router.HandleFunc("/request_handler", httpInboundHandler(inbound)).Methods(http.MethodPost)
	router.HandleFunc("/heartbeat_handler", httpInboundHandler(inbound)).Methods(http.MethodGet)

	server := &http.Server{Addr: addr, Handler: router}
	if secure {
		if h.tlsConfig == nil {
			return nil, nsmerr.Transport(nsmerr.ErrTLSHandshake, fmt.Errorf("no tls config configured"))
		}
		server.TLSConfig = h.tlsConfig
	}

	ln, err := listenerFor(addr)
	if err != nil {
		return nil, nsmerr.Transport(nsmerr.ErrUnreachable, err)
	}

	stream := &httpAcceptStream{
		server:  server,
		addr:    ln.Addr().String(),
		inbound: inbound,
	}

	go func() {
		var serveErr error
		if secure {
			serveErr = server.ServeTLS(ln, "", "")
		} else {
			serveErr = server.Serve(ln)
		}
		if serveErr != nil && serveErr != http.ErrServerClosed {
			stream.setServeErr(serveErr)
		}
		close(inbound)
	}()

	return stream, nil
}

// httpExchange carries one inbound request through to the Accept loop and
// back out again once the handler has produced a response frame.
type httpExchange struct {
	req  message.Message
	resp chan message.Message
}

func httpInboundHandler(inbound chan<- *httpExchange) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get(requestIDHeader)
		if reqID == "" {
			reqID = uuid.New().String()
		}
		w.Header().Set(requestIDHeader, reqID)

		data, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "read body", http.StatusBadRequest)
			return
		}

		var m message.Message
		if len(data) > 0 {
			m, err = message.Decode(data)
			if err != nil {
				http.Error(w, "malformed frame", http.StatusBadRequest)
				return
			}
		} else if r.Method == http.MethodGet {
			m = message.Message{Header: message.HB}
		}

		exch := &httpExchange{req: m, resp: make(chan message.Message, 1)}
		inbound <- exch

		select {
		case respMsg := <-exch.resp:
			body, err := message.Encode(respMsg)
			if err != nil {
				http.Error(w, "encode response", http.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write(body)
		case <-time.After(30 * time.Second):
			http.Error(w, "handler timeout", http.StatusGatewayTimeout)
		}
	}
}

type httpAcceptStream struct {
	server  *http.Server
	addr    string
	inbound chan *httpExchange

	mu       sync.Mutex
	serveErr error
}

func (a *httpAcceptStream) setServeErr(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.serveErr = err
}

func (a *httpAcceptStream) Accept() (Session, error) {
	exch, ok := <-a.inbound
	if !ok {
		a.mu.Lock()
		err := a.serveErr
		a.mu.Unlock()
		if err != nil {
			return nil, nsmerr.Transport(nsmerr.ErrUnreachable, err)
		}
		return nil, nsmerr.ErrClosed
	}
	return &httpServerSession{exch: exch}, nil
}

func (a *httpAcceptStream) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return a.server.Shutdown(ctx)
}

func (a *httpAcceptStream) Addr() string { return a.addr }

// httpServerSession represents one request/response exchange: a single
// Recv returns the inbound frame, a single Send supplies the response body.
type httpServerSession struct {
	exch *httpExchange
	sent bool
	read bool
}

func (s *httpServerSession) Recv() (message.Message, error) {
	if s.read {
		return message.Message{}, nsmerr.ErrClosed
	}
	s.read = true
	return s.exch.req, nil
}

func (s *httpServerSession) Send(m message.Message) error {
	if s.sent {
		return nsmerr.ErrClosed
	}
	s.sent = true
	s.exch.resp <- m
	return nil
}

func (s *httpServerSession) SetReadDeadline(time.Duration) error { return nil }

func (s *httpServerSession) Close() error {
	if !s.sent {
		s.exch.resp <- message.Message{Header: message.NULL}
	}
	return nil
}

// httpClientSession issues one HTTP request per Send (GET
// /heartbeat_handler for HB and COL, POST to path otherwise), expecting the
// body of the reply to be the next frame returned by Recv.
type httpClientSession struct {
	client   *http.Client
	base     string
	path     string
	deadline time.Duration

	pending *http.Response
}

func (s *httpClientSession) Send(m message.Message) error {
	body, err := message.Encode(m)
	if err != nil {
		return err
	}

	method := http.MethodPost
	path := s.path
	if m.Header == message.HB || m.Header == message.COL {
		method = http.MethodGet
		path = "/heartbeat_handler"
	}

	ctx := context.Background()
	if s.deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.deadline)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, method, s.base+path, bytes.NewReader(body))
	if err != nil {
		return nsmerr.Transport(nsmerr.ErrUnreachable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(requestIDHeader, uuid.New().String())

	resp, err := s.client.Do(req)
	if err != nil {
		return nsmerr.Transport(classifyHTTP(err), err)
	}
	s.pending = resp
	return nil
}

func (s *httpClientSession) Recv() (message.Message, error) {
	if s.pending == nil {
		return message.Message{}, nsmerr.Protocolf("recv without a pending send")
	}
	defer s.pending.Body.Close()

	data, err := io.ReadAll(s.pending.Body)
	if err != nil {
		return message.Message{}, nsmerr.Transport(nsmerr.ErrUnreachable, err)
	}
	s.pending = nil
	return message.Decode(data)
}

func (s *httpClientSession) SetReadDeadline(d time.Duration) error {
	s.deadline = d
	return nil
}

func (s *httpClientSession) Close() error { return nil }

func classifyHTTP(err error) error {
	if ctxErr, ok := err.(interface{ Timeout() bool }); ok && ctxErr.Timeout() {
		return nsmerr.ErrTimedOut
	}
	return nsmerr.ErrUnreachable
}
