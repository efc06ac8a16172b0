package artemis

import (
	"context"

	"github.com/Azure/go-amqp"
	"github.com/makibytes/seltest/broker/amqpcommon"
	"github.com/makibytes/seltest/broker/backends"
)

// anycast makes Artemis route to a queue rather than a multicast subscription
var anycast = []string{"queue"}

// QueueAdapter adapts Artemis to the QueueBackend interface
type QueueAdapter struct {
	opts       Options
	connection *amqp.Conn
	session    *amqp.Session
}

// NewQueueAdapter creates a new Artemis queue adapter
func NewQueueAdapter(ctx context.Context, connArgs ConnArguments, opts Options) (*QueueAdapter, error) {
	connection, session, err := Connect(ctx, connArgs)
	if err != nil {
		return nil, err
	}

	return &QueueAdapter{
		opts:       opts.withDefaults(),
		connection: connection,
		session:    session,
	}, nil
}

// Send implements backends.QueueBackend
func (a *QueueAdapter) Send(ctx context.Context, opts backends.SendOptions) error {
	args := amqpcommon.SendArguments{
		Address:            a.opts.Address(opts.Queue),
		Message:            opts.Message,
		Properties:         opts.Properties,
		MessageID:          opts.MessageID,
		CorrelationID:      opts.CorrelationID,
		ContentType:        opts.ContentType,
		Priority:           uint8(opts.Priority),
		Durable:            opts.Persistent,
		TTL:                opts.TTL,
		TargetCapabilities: anycast,
	}
	if opts.ReplyTo != "" {
		args.ReplyTo = a.opts.Address(opts.ReplyTo)
	}

	return amqpcommon.SendMessage(ctx, a.session, args)
}

// Receive implements backends.QueueBackend
func (a *QueueAdapter) Receive(ctx context.Context, opts backends.ReceiveOptions) (*backends.Message, error) {
	message, err := amqpcommon.ReceiveMessage(ctx, a.session, amqpcommon.ReceiveOptions{
		Queue:              a.opts.Address(opts.Queue),
		Timeout:            opts.Timeout,
		Wait:               opts.Wait,
		Acknowledge:        opts.Acknowledge,
		SourceCapabilities: anycast,
		Selector:           opts.Selector,
	})
	if err != nil || message == nil {
		return nil, err
	}

	return amqpcommon.ToBackendMessage(message), nil
}

// SupportsSelectors implements backends.SelectorCapable; Artemis evaluates
// JMS selectors on the consumer link.
func (a *QueueAdapter) SupportsSelectors() bool { return true }

// Close implements backends.QueueBackend
func (a *QueueAdapter) Close() error {
	if a.session != nil {
		a.session.Close(context.Background())
	}
	if a.connection != nil {
		return a.connection.Close()
	}
	return nil
}
