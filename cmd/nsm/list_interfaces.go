package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JBlaschke/nsm-rs-sub000/internal/netutil"
)

func newListInterfacesCmd() *cobra.Command {
	f := &participantFlags{}
	cmd := &cobra.Command{
		Use:   "list_interfaces",
		Short: "list local network interfaces and their addresses",
		RunE: func(cmd *cobra.Command, args []string) error {
			addrs, err := netutil.EnumerateLocalAddrs(f.ipVersionFilter(), "")
			if err != nil {
				return err
			}
			for _, a := range addrs {
				if f.verbose {
					fmt.Printf("%s\t%s\n", a.Interface, a.IP)
				} else {
					fmt.Println(a.Interface)
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&f.ipVersion, "ip-version", 0, "restrict to 4 or 6 (default: either)")
	cmd.Flags().BoolVarP(&f.verbose, "verbose", "v", false, "also print each interface's addresses")
	return cmd
}
