package main

import (
	"crypto/tls"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/JBlaschke/nsm-rs-sub000/internal/netutil"
	"github.com/JBlaschke/nsm-rs-sub000/internal/tlsconfig"
	"github.com/JBlaschke/nsm-rs-sub000/internal/transport"
)

// participantFlags holds the options common to listen/claim/publish/
// collect/send.
type participantFlags struct {
	name        string
	ipStart     string
	ipVersion   int
	bindPort    int
	servicePort int
	key         uint64
	useTLS      bool
	rootCA      string
	ping        bool
	verbose     bool
	msg         string
}

func addParticipantFlags(cmd *cobra.Command, f *participantFlags, withServicePort, withKey, withPing, withMsg bool) {
	cmd.Flags().StringVarP(&f.name, "name", "n", "", "label for this endpoint")
	cmd.Flags().StringVarP(&f.ipStart, "ip-start", "i", "", "restrict local address selection to this octet prefix")
	cmd.Flags().IntVar(&f.ipVersion, "ip-version", 0, "restrict local address selection to 4 or 6 (default: either)")
	cmd.Flags().IntVar(&f.bindPort, "bind-port", 0, "local heartbeat listener port")
	cmd.Flags().BoolVar(&f.useTLS, "tls", false, "use TLS, consulting CERT_PATH/KEY_PATH/ROOT_PATH")
	cmd.Flags().StringVar(&f.rootCA, "root_ca", "", "root CA bundle path")
	cmd.Flags().BoolVarP(&f.verbose, "verbose", "v", false, "verbose output")

	if withServicePort {
		cmd.Flags().IntVar(&f.servicePort, "service-port", -1, "data port of the published service")
	}
	if withKey {
		cmd.Flags().Uint64Var(&f.key, "key", 0, "64-bit rendezvous key")
	}
	if withPing {
		cmd.Flags().BoolVar(&f.ping, "ping", false, "originate heartbeats instead of answering probes")
	}
	if withMsg {
		cmd.Flags().StringVar(&f.msg, "msg", "", "message body to send")
	}
}

func (f *participantFlags) ipVersionFilter() netutil.IPVersion {
	switch f.ipVersion {
	case 4:
		return netutil.IPv4
	case 6:
		return netutil.IPv6
	default:
		return netutil.AnyVersion
	}
}

// localAddrs resolves this endpoint's interface_addrs/service_addrs,
// applying the -i/--ip-version filters.
func (f *participantFlags) localAddrs() ([]string, error) {
	addrs, err := netutil.EnumerateLocalAddrs(f.ipVersionFilter(), f.ipStart)
	if err != nil {
		return nil, fmt.Errorf("enumerate local addresses: %w", err)
	}
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, a.IP)
	}
	return out, nil
}

// tlsParams builds tlsconfig.Params from the environment, consulted only
// when --tls is set.
func (f *participantFlags) tlsParams() tlsconfig.Params {
	return tlsconfig.Params{
		CertPath: os.Getenv("CERT_PATH"),
		KeyPath:  os.Getenv("KEY_PATH"),
		RootPath: firstNonEmpty(f.rootCA, os.Getenv("ROOT_PATH")),
	}
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

// dialTransport builds the TCP transport participants use to reach the
// broker, configuring TLS from --tls/--root_ca/CERT_PATH/KEY_PATH/ROOT_PATH
// when requested. The heartbeat responder is served via listenTransport.
func (f *participantFlags) dialTransport() (transport.Transport, error) {
	var cfg *tls.Config
	if f.useTLS {
		var err error
		cfg, err = tlsconfig.Client(f.tlsParams())
		if err != nil {
			return nil, err
		}
	}
	return transport.NewTCP(cfg), nil
}

// listenTransport builds the TCP transport used to serve this
// participant's own heartbeat responder listener.
func (f *participantFlags) listenTransport() (transport.Transport, error) {
	if !f.useTLS {
		return transport.NewTCP(nil), nil
	}
	cfg, err := tlsconfig.Server(f.tlsParams())
	if err != nil {
		return nil, err
	}
	return transport.NewTCP(cfg), nil
}
