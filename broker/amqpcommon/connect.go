package amqpcommon

import (
	"context"
	"fmt"
	"strings"

	"github.com/Azure/go-amqp"
	"github.com/google/uuid"
	"github.com/makibytes/seltest/broker/tlsconf"
	"github.com/makibytes/seltest/log"
)

// ConnArguments holds common AMQP connection parameters
type ConnArguments struct {
	Server   string
	User     string
	Password string
	TLS      TLSConfig
}

// TLSConfig holds TLS connection parameters
type TLSConfig = tlsconf.Config

// Connect establishes an AMQP 1.0 connection with SASL authentication and
// opens the single session that all links of the caller share.
func Connect(ctx context.Context, args ConnArguments) (*amqp.Conn, *amqp.Session, error) {
	connOptions, err := dialOptions(args)
	if err != nil {
		return nil, nil, err
	}

	log.Verbose("connecting to %s...", args.Server)
	connection, err := amqp.Dial(ctx, args.Server, connOptions)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to %s: %w", args.Server, err)
	}

	session, err := connection.NewSession(ctx, nil)
	if err != nil {
		connection.Close()
		return nil, nil, fmt.Errorf("opening session: %w", err)
	}

	return connection, session, nil
}

// dialOptions picks SASL PLAIN when a user is given and ANONYMOUS
// otherwise. TLS is used for amqps:// URLs or when requested by flags.
func dialOptions(args ConnArguments) (*amqp.ConnOptions, error) {
	connOptions := &amqp.ConnOptions{
		ContainerID: containerID(),
		SASLType:    amqp.SASLTypeAnonymous(),
	}
	if args.User != "" {
		connOptions.SASLType = amqp.SASLTypePlain(args.User, args.Password)
	}

	if args.TLS.Requested() || strings.HasPrefix(args.Server, "amqps://") {
		tlsConfig, err := args.TLS.Build()
		if err != nil {
			return nil, fmt.Errorf("TLS configuration error: %w", err)
		}
		connOptions.TLSConfig = tlsConfig
		log.Verbose("TLS enabled")
	}
	return connOptions, nil
}

func containerID() string {
	return "seltest-" + uuid.NewString()[:8]
}

// LinkName returns a unique link name with the given role prefix.
func LinkName(role string) string {
	return "seltest-" + role + "-" + uuid.NewString()[:8]
}
