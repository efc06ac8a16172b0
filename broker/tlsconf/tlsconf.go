// Package tlsconf turns the TLS flags shared by all drivers into a
// crypto/tls configuration.
package tlsconf

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
)

// Config holds TLS connection parameters
type Config struct {
	Enabled    bool
	CACert     string // Path to CA certificate file
	ClientCert string // Path to client certificate file
	ClientKey  string // Path to client key file
	Insecure   bool   // Skip certificate verification
}

// Requested reports whether any TLS setting was given
func (c Config) Requested() bool {
	return c.Enabled || c.CACert != "" || c.ClientCert != ""
}

// Build loads the certificates c refers to. A client certificate
// without a key is an error.
func (c Config) Build() (*tls.Config, error) {
	tlsConfig := &tls.Config{
		InsecureSkipVerify: c.Insecure, //nolint:gosec
	}

	if c.CACert != "" {
		pem, err := os.ReadFile(c.CACert)
		if err != nil {
			return nil, fmt.Errorf("reading CA certificate: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificate found in %s", c.CACert)
		}
		tlsConfig.RootCAs = pool
	}

	switch {
	case c.ClientCert != "" && c.ClientKey != "":
		cert, err := tls.LoadX509KeyPair(c.ClientCert, c.ClientKey)
		if err != nil {
			return nil, fmt.Errorf("loading client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	case c.ClientCert != "" || c.ClientKey != "":
		return nil, errors.New("client certificate and key must be given together")
	}

	return tlsConfig, nil
}
