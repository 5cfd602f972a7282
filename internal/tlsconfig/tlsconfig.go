// Package tlsconfig builds *tls.Config values from the cert/key/root-CA
// file paths the CLI accepts. There is no third-party TLS-config-builder
// library anywhere in the example pack (every repo that touches TLS drops
// straight to crypto/tls), so this package is stdlib-only by necessity
// rather than by default.
package tlsconfig

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"github.com/JBlaschke/nsm-rs-sub000/internal/nsmerr"
)

// Params names the three file paths the broker and its participants accept
// for TLS material: CERT_PATH, KEY_PATH, and ROOT_PATH.
type Params struct {
	CertPath string
	KeyPath  string
	RootPath string
}

// Empty reports whether none of the three paths were supplied, the signal
// that a command should run in plaintext mode.
func (p Params) Empty() bool {
	return p.CertPath == "" && p.KeyPath == "" && p.RootPath == ""
}

// Server builds a *tls.Config suitable for a broker listener: it presents
// the cert/key pair and, if RootPath is set, requires and verifies client
// certificates against it (mutual TLS).
func Server(p Params) (*tls.Config, error) {
	if p.CertPath == "" || p.KeyPath == "" {
		return nil, nsmerr.Transport(nsmerr.ErrConfig, fmt.Errorf("cert and key paths are both required for a TLS listener"))
	}

	cert, err := tls.LoadX509KeyPair(p.CertPath, p.KeyPath)
	if err != nil {
		return nil, nsmerr.Transport(nsmerr.ErrConfig, fmt.Errorf("load cert/key pair: %w", err))
	}

	cfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
		NextProtos:   []string{"h2", "http/1.1", "http/1.0"},
	}

	if p.RootPath != "" {
		pool, err := loadPool(p.RootPath)
		if err != nil {
			return nil, err
		}
		cfg.ClientCAs = pool
		cfg.ClientAuth = tls.RequireAndVerifyClientCert
	}

	return cfg, nil
}

// Client builds a *tls.Config suitable for dialing a broker. RootPath, if
// set, pins the server's CA instead of trusting the system pool. CertPath
// and KeyPath, if set, present a client certificate for mutual TLS.
func Client(p Params) (*tls.Config, error) {
	cfg := &tls.Config{
		MinVersion: tls.VersionTLS12,
		NextProtos: []string{"h2", "http/1.1", "http/1.0"},
	}

	if p.RootPath != "" {
		pool, err := loadPool(p.RootPath)
		if err != nil {
			return nil, err
		}
		cfg.RootCAs = pool
	}

	if p.CertPath != "" && p.KeyPath != "" {
		cert, err := tls.LoadX509KeyPair(p.CertPath, p.KeyPath)
		if err != nil {
			return nil, nsmerr.Transport(nsmerr.ErrConfig, fmt.Errorf("load client cert/key pair: %w", err))
		}
		cfg.Certificates = []tls.Certificate{cert}
	}

	return cfg, nil
}

func loadPool(path string) (*x509.CertPool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nsmerr.Transport(nsmerr.ErrConfig, fmt.Errorf("read root CA %q: %w", path, err))
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(data) {
		return nil, nsmerr.Transport(nsmerr.ErrConfig, fmt.Errorf("root CA %q contains no usable certificates", path))
	}
	return pool, nil
}
