package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JBlaschke/nsm-rs-sub000/internal/logging"
	"github.com/JBlaschke/nsm-rs-sub000/internal/participant"
	"github.com/JBlaschke/nsm-rs-sub000/internal/registry"
)

func newPublishCmd() *cobra.Command {
	f := &participantFlags{}
	cmd := &cobra.Command{
		Use:   "publish HOST",
		Short: "advertise a service to the broker under a rendezvous key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			broker := args[0]
			if f.bindPort == 0 {
				return fmt.Errorf("--bind-port is required")
			}
			if f.servicePort < 0 {
				return fmt.Errorf("--service-port is required and must be >= 0")
			}

			addrs, err := f.localAddrs()
			if err != nil {
				return err
			}

			e := &registry.Endpoint{
				ServicePort:    f.servicePort,
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

			id, err := participant.Publish(dial, broker, f.useTLS, e)
			if err != nil {
				return err
			}
			fmt.Println(id)

			logger := logging.New()
			return runLiveness(f, dial, broker, f.key, logger)
		},
	}
	addParticipantFlags(cmd, f, true, true, true, false)
	return cmd
}
