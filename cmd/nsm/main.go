// Command nsm is the CLI front end for the connection broker and its
// participant operations: list_interfaces, list_ips, listen, claim,
// publish, collect, send.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// signalChan returns a channel that receives SIGINT or SIGTERM, matching
// the broker's own signal-driven shutdown model: there is no graceful
// drain, a process runs until it's killed (or, in ping mode, until the
// broker's silence threshold is crossed — see runLiveness).
func signalChan() <-chan os.Signal {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	return ch
}

// blockUntilSignal waits for SIGINT or SIGTERM.
func blockUntilSignal() {
	<-signalChan()
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "nsm",
		Short:         "service-mesh connection broker and participant CLI",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newListInterfacesCmd(),
		newListIPsCmd(),
		newListenCmd(),
		newClaimCmd(),
		newPublishCmd(),
		newCollectCmd(),
		newSendCmd(),
	)
	return root
}
