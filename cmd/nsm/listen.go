package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/JBlaschke/nsm-rs-sub000/internal/broker"
	"github.com/JBlaschke/nsm-rs-sub000/internal/logging"
	"github.com/JBlaschke/nsm-rs-sub000/internal/tlsconfig"
)

// newListenCmd runs the broker itself: HOST:--bind-port is where it
// advertises its TCP listener, pairing publications with claims and
// driving the heartbeat engine. original_source/src/mode_tcp/operations.rs's
// `listen` spawns exactly this pair — the request handler server and the
// heartbeat event monitor — rather than a participant-side probe
// responder, so this is the broker's entry point, not an eighth verb.
func newListenCmd() *cobra.Command {
	f := &participantFlags{}
	cmd := &cobra.Command{
		Use:   "listen HOST",
		Short: "run the broker, pairing publications with claims",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			host := args[0]
			if f.bindPort == 0 {
				return fmt.Errorf("--bind-port is required")
			}

			var tlsCfg *tls.Config
			if f.useTLS {
				var err error
				tlsCfg, err = tlsconfig.Server(f.tlsParams())
				if err != nil {
					return err
				}
			}

			logger := logging.New()
			b := broker.New(broker.Options{
				TCPAddr:   net.JoinHostPort(host, strconv.Itoa(f.bindPort)),
				Secure:    f.useTLS,
				TLSConfig: tlsCfg,
				Logger:    logger.Logger,
			})
			return b.Serve(context.Background())
		},
	}
	addParticipantFlags(cmd, f, false, false, false, false)
	return cmd
}
