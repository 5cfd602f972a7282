package main

import (
	"fmt"
	"net"
	"strconv"

	"github.com/JBlaschke/nsm-rs-sub000/internal/logging"
	"github.com/JBlaschke/nsm-rs-sub000/internal/participant"
	"github.com/JBlaschke/nsm-rs-sub000/internal/transport"
)

// runLiveness keeps a published service or paired claim alive against the
// broker after registration: either a heartbeat responder listening on
// bind-port, or — when ping is set — a heartbeat originator dialing
// brokerAddr on its own timer. It blocks until the process receives
// SIGINT/SIGTERM, or, in ping mode, until the originator gives up on a
// broker that has gone silent on it — a quiet shutdown, exit code 0.
func runLiveness(f *participantFlags, dial transport.Transport, brokerAddr string, key uint64, logger *logging.Logger) error {
	if f.ping {
		stop := make(chan struct{})
		evicted := make(chan struct{})
		go participant.RunPingOriginator(dial, brokerAddr, f.useTLS, key, stop, evicted, logger.Logger)
		select {
		case <-signalChan():
		case <-evicted:
			logger.Infof("ping heartbeat lost liveness with the broker; shutting down")
		}
		close(stop)
		return nil
	}

	lt, err := f.listenTransport()
	if err != nil {
		return err
	}
	bindAddr := net.JoinHostPort("", strconv.Itoa(f.bindPort))
	ln, err := lt.Listen(bindAddr, f.useTLS)
	if err != nil {
		return fmt.Errorf("listen for heartbeats on port %d: %w", f.bindPort, err)
	}
	defer ln.Close()

	go participant.ServeHeartbeatResponder(ln, logger.Logger)
	blockUntilSignal()
	return nil
}
