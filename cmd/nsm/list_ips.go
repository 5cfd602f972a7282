package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JBlaschke/nsm-rs-sub000/internal/netutil"
)

func newListIPsCmd() *cobra.Command {
	f := &participantFlags{}
	cmd := &cobra.Command{
		Use:   "list_ips",
		Short: "list local IP addresses matching a prefix",
		RunE: func(cmd *cobra.Command, args []string) error {
			addrs, err := netutil.EnumerateLocalAddrs(f.ipVersionFilter(), f.ipStart)
			if err != nil {
				return err
			}
			for _, a := range addrs {
				if f.verbose {
					fmt.Printf("%s\t%s\t%s\n", f.name, a.Interface, a.IP)
				} else {
					fmt.Println(a.IP)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&f.name, "name", "n", "", "label for this endpoint")
	cmd.Flags().StringVarP(&f.ipStart, "ip-start", "i", "", "restrict to this octet prefix")
	cmd.Flags().IntVar(&f.ipVersion, "ip-version", 0, "restrict to 4 or 6 (default: either)")
	cmd.Flags().BoolVarP(&f.verbose, "verbose", "v", false, "verbose output")
	cmd.MarkFlagRequired("name")
	return cmd
}
