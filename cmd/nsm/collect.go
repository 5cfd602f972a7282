package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JBlaschke/nsm-rs-sub000/internal/participant"
)

func newCollectCmd() *cobra.Command {
	f := &participantFlags{}
	cmd := &cobra.Command{
		Use:   "collect HOST",
		Short: "print the publication payload the broker has paired with a claim",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			broker := args[0]

			dial, err := f.dialTransport()
			if err != nil {
				return err
			}

			body, err := participant.Collect(dial, broker, f.useTLS, f.key)
			if err != nil {
				return err
			}
			fmt.Println(body)
			return nil
		},
	}
	addParticipantFlags(cmd, f, false, true, false, false)
	return cmd
}
