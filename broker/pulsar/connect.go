// Package pulsar maps a queue to a persistent topic consumed through one
// shared subscription. Pulsar has no selectors; filtering happens in the
// client.
package pulsar

import (
	"fmt"
	"strings"
	"time"

	pulsar "github.com/apache/pulsar-client-go/pulsar"

	"github.com/makibytes/seltest/broker/tlsconf"
)

// ConnArguments holds parameters for establishing a Pulsar connection.
// Password is used as a JWT token; Pulsar has no user/password login.
type ConnArguments struct {
	Server   string
	User     string
	Password string
	TLS      TLSConfig
}

// TLSConfig holds TLS parameters for Pulsar connections.
type TLSConfig = tlsconf.Config

// QueueSubscription is the shared subscription that turns a topic into a queue
const QueueSubscription = "seltest-queue"

// Connect creates and returns a Pulsar client.
func Connect(args ConnArguments) (pulsar.Client, error) {
	opts, err := clientOptions(args)
	if err != nil {
		return nil, err
	}
	client, err := pulsar.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("connecting to Pulsar at %s: %w", args.Server, err)
	}
	return client, nil
}

// clientOptions prefers a client certificate over a token when both are given
func clientOptions(args ConnArguments) (pulsar.ClientOptions, error) {
	opts := pulsar.ClientOptions{
		URL:               args.Server,
		OperationTimeout:  30 * time.Second,
		ConnectionTimeout: 30 * time.Second,
	}

	if args.Password != "" {
		opts.Authentication = pulsar.NewAuthenticationToken(args.Password)
	}

	if args.TLS.Requested() || strings.HasPrefix(args.Server, "pulsar+ssl://") {
		tlsCfg, err := args.TLS.Build()
		if err != nil {
			return pulsar.ClientOptions{}, fmt.Errorf("building TLS config: %w", err)
		}
		opts.TLSConfig = tlsCfg
		opts.TLSTrustCertsFilePath = args.TLS.CACert
		opts.TLSAllowInsecureConnection = args.TLS.Insecure
		if args.TLS.ClientCert != "" {
			opts.Authentication = pulsar.NewAuthenticationTLS(args.TLS.ClientCert, args.TLS.ClientKey)
		}
	}
	return opts, nil
}
