package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JBlaschke/nsm-rs-sub000/internal/logging"
	"github.com/JBlaschke/nsm-rs-sub000/internal/nsmerr"
	"github.com/JBlaschke/nsm-rs-sub000/internal/participant"
	"github.com/JBlaschke/nsm-rs-sub000/internal/registry"
)

func newClaimCmd() *cobra.Command {
	f := &participantFlags{}
	cmd := &cobra.Command{
		Use:   "claim HOST",
		Short: "claim a previously published service by key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			broker := args[0]
			if f.bindPort == 0 {
				return fmt.Errorf("--bind-port is required")
			}

			addrs, err := f.localAddrs()
			if err != nil {
				return err
			}

			e := &registry.Endpoint{
				ServicePort:    -1,
				ServiceAddrs:   addrs,
				InterfaceAddrs: addrs,
				BindPort:       f.bindPort,
				Key:            f.key,
				Ping:           f.ping,
			}

			dial, err := f.dialTransport()
			if err != nil {
				return err
			}

			pub, err := participant.Claim(dial, broker, f.useTLS, e)
			if err != nil {
				if errors.Is(err, nsmerr.ErrNotFound) {
					return fmt.Errorf("claim: no matching publication for key %d within the retry window", f.key)
				}
				return err
			}

			body, err := json.Marshal(pub)
			if err != nil {
				return err
			}
			fmt.Println(string(body))

			logger := logging.New()
			return runLiveness(f, dial, broker, f.key, logger)
		},
	}
	addParticipantFlags(cmd, f, false, true, true, false)
	return cmd
}
