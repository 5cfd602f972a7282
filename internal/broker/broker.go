// Package broker wires the registry, event queue, request handler, and
// heartbeat engine together into a running service: context.Context
// cancellation, signal.NotifyContext(SIGINT, SIGTERM), and a
// sync.WaitGroup that waits for the heartbeat engine and the accept loops
// to stop before Serve returns. Sessions already being served are not
// waited for.
package broker

import (
	"context"
	"crypto/tls"
	"log"
	"os/signal"
	"sync"
	"syscall"

	"github.com/JBlaschke/nsm-rs-sub000/internal/config"
	"github.com/JBlaschke/nsm-rs-sub000/internal/handler"
	"github.com/JBlaschke/nsm-rs-sub000/internal/heartbeat"
	"github.com/JBlaschke/nsm-rs-sub000/internal/queue"
	"github.com/JBlaschke/nsm-rs-sub000/internal/registry"
	"github.com/JBlaschke/nsm-rs-sub000/internal/transport"
)

// Options configures a Broker's listeners and TLS posture. TCPAddr is
// always bound; HTTPAddr is optional — an empty string disables the
// HTTP(S) listener.
type Options struct {
	TCPAddr   string
	HTTPAddr  string
	Secure    bool
	TLSConfig *tls.Config
	Config    config.Broker
	Logger    *log.Logger
}

// Broker owns the registry, queue, handler, and heartbeat engine and
// serves both transports against them until its context is canceled.
type Broker struct {
	opts      Options
	state     *registry.State
	queue     *queue.Queue
	engine    *heartbeat.Engine
	handler   *handler.Handler
	tcp       *transport.TCP
	http      *transport.HTTP
	log       *log.Logger
	listeners []transport.AcceptStream
	wg        sync.WaitGroup
}

// New assembles a Broker from Options. The dial-side transport used by
// both the heartbeat engine and the handler's MSG relay is always TCP:
// every participant's internal/participant.ServeHeartbeatResponder is bound
// to a TCP listener regardless of which transport a client used to
// reach the broker, so TCP is the one carrier guaranteed to reach it.
func New(opts Options) *Broker {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Config == (config.Broker{}) {
		opts.Config = config.Default()
	}

	state := registry.New(opts.Config.TimeoutSeconds)
	q := queue.New()
	tcpTransport := transport.NewTCP(opts.TLSConfig)

	engine := heartbeat.New(state, q, tcpTransport, opts.Config.HeartbeatConfig(), nil)

	h := handler.New(state, engine, tcpTransport, opts.Secure, opts.Logger)
	h.SetClaimPolicy(opts.Config.ClaimPollInterval(), opts.Config.ClaimPollAttempts())

	b := &Broker{
		opts:    opts,
		state:   state,
		queue:   q,
		engine:  engine,
		handler: h,
		tcp:     tcpTransport,
		log:     opts.Logger,
	}
	if opts.HTTPAddr != "" {
		b.http = transport.NewHTTP(opts.TLSConfig)
	}
	return b
}

// Serve binds the configured listeners and runs until ctx is canceled or
// a termination signal arrives. It returns the error if the TCP listener
// cannot be bound, and nil otherwise; an HTTP listener error is logged, not
// propagated. There is no graceful drain of in-flight sessions.
func (b *Broker) Serve(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stopCh := make(chan struct{})
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.engine.Run(stopCh)
	}()

	tcpLn, err := b.tcp.Listen(b.opts.TCPAddr, b.opts.Secure)
	if err != nil {
		return err
	}
	b.listeners = append(b.listeners, tcpLn)
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.acceptLoop(tcpLn)
	}()

	if b.http != nil {
		httpLn, err := b.http.Listen(b.opts.HTTPAddr, b.opts.Secure)
		if err != nil {
			b.log.Printf("broker: http listener disabled: %v", err)
		} else {
			b.listeners = append(b.listeners, httpLn)
			b.wg.Add(1)
			go func() {
				defer b.wg.Done()
				b.acceptLoop(httpLn)
			}()
		}
	}

	<-ctx.Done()
	close(stopCh)
	for _, ln := range b.listeners {
		ln.Close()
	}
	b.queue.Close()
	b.wg.Wait()
	return nil
}

func (b *Broker) acceptLoop(ln transport.AcceptStream) {
	for {
		sess, err := ln.Accept()
		if err != nil {
			return
		}
		go b.handler.Serve(sess)
	}
}

// State exposes the broker's registry.
func (b *Broker) State() *registry.State { return b.state }
