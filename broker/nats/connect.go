// Package nats maps each queue to a JetStream stream with work-queue
// retention, so a message is removed once a consumer acknowledges it.
// JetStream has no selectors; filtering happens in the client.
package nats

import (
	"fmt"
	"time"

	natsclient "github.com/nats-io/nats.go"

	"github.com/makibytes/seltest/broker/tlsconf"
)

// ConnArguments holds parameters for establishing a NATS connection.
type ConnArguments struct {
	Server   string
	User     string
	Password string
	TLS      TLSConfig
}

// TLSConfig holds TLS parameters for NATS connections.
type TLSConfig = tlsconf.Config

const connectionName = "seltest"

// Connect creates and returns a NATS connection.
func Connect(args ConnArguments) (*natsclient.Conn, error) {
	opts, err := connectOptions(args)
	if err != nil {
		return nil, err
	}

	nc, err := natsclient.Connect(args.Server, opts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS server %s: %w", args.Server, err)
	}
	return nc, nil
}

// connectOptions names the connection and fails fast instead of
// reconnecting forever; a test run should not hang on a dead server.
func connectOptions(args ConnArguments) ([]natsclient.Option, error) {
	opts := []natsclient.Option{
		natsclient.Name(connectionName),
		natsclient.Timeout(10 * time.Second),
		natsclient.MaxReconnects(3),
	}
	if args.User != "" {
		opts = append(opts, natsclient.UserInfo(args.User, args.Password))
	}
	if args.TLS.Requested() {
		tlsCfg, err := args.TLS.Build()
		if err != nil {
			return nil, fmt.Errorf("building TLS config: %w", err)
		}
		opts = append(opts, natsclient.Secure(tlsCfg))
	}
	return opts, nil
}

// ConnectWithJetStream connects to NATS and returns both the connection and JetStream context.
func ConnectWithJetStream(args ConnArguments) (*natsclient.Conn, natsclient.JetStreamContext, error) {
	nc, err := Connect(args)
	if err != nil {
		return nil, nil, err
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("creating JetStream context: %w", err)
	}

	return nc, js, nil
}
