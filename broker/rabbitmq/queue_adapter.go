package rabbitmq

import (
	"context"
	"net/url"
	"strings"

	"github.com/Azure/go-amqp"
	"github.com/makibytes/seltest/broker/amqpcommon"
	"github.com/makibytes/seltest/broker/backends"
)

// QueueAdapter adapts RabbitMQ to the QueueBackend interface using direct queue routing
type QueueAdapter struct {
	connection *amqp.Conn
	session    *amqp.Session
}

// NewQueueAdapter creates a new RabbitMQ queue adapter
func NewQueueAdapter(ctx context.Context, connArgs ConnArguments) (*QueueAdapter, error) {
	connection, session, err := Connect(ctx, connArgs)
	if err != nil {
		return nil, err
	}

	return &QueueAdapter{
		connection: connection,
		session:    session,
	}, nil
}

// queueAddress returns the AMQP 1.0 v2 address of a queue. Values that are
// already addresses, such as a reply-to read from a message, pass through.
func queueAddress(queue string) string {
	if strings.HasPrefix(queue, "/") {
		return queue
	}
	return "/queues/" + url.PathEscape(queue)
}

// Send implements backends.QueueBackend
func (a *QueueAdapter) Send(ctx context.Context, opts backends.SendOptions) error {
	args := amqpcommon.SendArguments{
		Address:       queueAddress(opts.Queue),
		Message:       opts.Message,
		Properties:    opts.Properties,
		MessageID:     opts.MessageID,
		CorrelationID: opts.CorrelationID,
		ContentType:   opts.ContentType,
		Priority:      uint8(opts.Priority),
		Durable:       opts.Persistent,
		TTL:           opts.TTL,
	}
	if opts.ReplyTo != "" {
		args.ReplyTo = queueAddress(opts.ReplyTo)
	}

	return amqpcommon.SendMessage(ctx, a.session, args)
}

// Receive implements backends.QueueBackend. RabbitMQ has no JMS selectors on
// classic or quorum queues, so opts.Selector is ignored.
func (a *QueueAdapter) Receive(ctx context.Context, opts backends.ReceiveOptions) (*backends.Message, error) {
	message, err := amqpcommon.ReceiveMessage(ctx, a.session, amqpcommon.ReceiveOptions{
		Queue:       queueAddress(opts.Queue),
		Timeout:     opts.Timeout,
		Wait:        opts.Wait,
		Acknowledge: opts.Acknowledge,
	})
	if err != nil || message == nil {
		return nil, err
	}

	return amqpcommon.ToBackendMessage(message), nil
}

// SupportsSelectors implements backends.SelectorCapable
func (a *QueueAdapter) SupportsSelectors() bool { return false }

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
