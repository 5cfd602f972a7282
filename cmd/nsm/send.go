package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JBlaschke/nsm-rs-sub000/internal/participant"
)

func newSendCmd() *cobra.Command {
	f := &participantFlags{}
	cmd := &cobra.Command{
		Use:   "send HOST",
		Short: "relay a message to the publication paired with a claim",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			broker := args[0]
			if f.msg == "" {
				return fmt.Errorf("--msg is required")
			}

			dial, err := f.dialTransport()
			if err != nil {
				return err
			}

			ack, err := participant.Send(dial, broker, f.useTLS, f.key, f.msg)
			if err != nil {
				return err
			}
			fmt.Println(ack)
			return nil
		},
	}
	addParticipantFlags(cmd, f, false, true, false, true)
	return cmd
}
