package pulsar

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	pulsar "github.com/apache/pulsar-client-go/pulsar"

	"github.com/makibytes/seltest/broker/backends"
	"github.com/makibytes/seltest/log"
)

// Property names of the message fields Pulsar has no place for
const (
	propCorrelationID = "correlation-id"
	propReplyTo       = "reply-to"
	propContentType   = "content-type"
	propTTL           = "ttl-ms"
)

// QueueAdapter adapts Pulsar to the QueueBackend interface using Shared subscriptions.
type QueueAdapter struct {
	client pulsar.Client
}

// NewQueueAdapter creates a new Pulsar queue adapter.
func NewQueueAdapter(connArgs ConnArguments) (*QueueAdapter, error) {
	client, err := Connect(connArgs)
	if err != nil {
		return nil, err
	}
	return &QueueAdapter{client: client}, nil
}

// Send implements backends.QueueBackend.
func (a *QueueAdapter) Send(ctx context.Context, opts backends.SendOptions) error {
	topic := queueTopic(opts.Queue)
	producer, err := a.client.CreateProducer(pulsar.ProducerOptions{
		Topic: topic,
	})
	if err != nil {
		return fmt.Errorf("creating producer for %s: %w", topic, err)
	}
	defer producer.Close()

	msg := &pulsar.ProducerMessage{
		Payload:    opts.Message,
		Key:        opts.MessageID,
		Properties: toProperties(opts),
	}
	if opts.TTL > 0 {
		// Pulsar expires messages per namespace; the TTL travels for display only
		msg.Properties[propTTL] = strconv.FormatInt(opts.TTL, 10)
	}

	log.Verbose("💌 sending message to %s...", topic)
	_, err = producer.Send(ctx, msg)
	return err
}

// Receive implements backends.QueueBackend. A message that is not
// acknowledged is negatively acknowledged and redelivered.
func (a *QueueAdapter) Receive(ctx context.Context, opts backends.ReceiveOptions) (*backends.Message, error) {
	topic := queueTopic(opts.Queue)
	consumer, err := a.client.Subscribe(pulsar.ConsumerOptions{
		Topic:                       topic,
		SubscriptionName:            QueueSubscription,
		Type:                        pulsar.Shared,
		SubscriptionInitialPosition: pulsar.SubscriptionPositionEarliest,
		NackRedeliveryDelay:         1 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("subscribing to %s: %w", topic, err)
	}
	defer consumer.Close()

	if !opts.Wait {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	msg, err := consumer.Receive(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, nil
		}
		return nil, err
	}

	if opts.Acknowledge {
		if err := consumer.Ack(msg); err != nil {
			return nil, fmt.Errorf("acknowledging message: %w", err)
		}
	} else {
		consumer.Nack(msg)
	}

	return pulsarToBackendMessage(msg), nil
}

// SupportsSelectors implements backends.SelectorCapable
func (a *QueueAdapter) SupportsSelectors() bool { return false }

// Close implements backends.QueueBackend.
func (a *QueueAdapter) Close() error {
	if a.client != nil {
		a.client.Close()
	}
	return nil
}

var topicNameReplacer = strings.NewReplacer("/", ".", " ", "_", "%", "_")

// queueTopic is the persistent topic in public/default backing a queue
func queueTopic(queue string) string {
	return "persistent://public/default/" + topicLocalName(queue)
}

func topicLocalName(queue string) string {
	return topicNameReplacer.Replace(queue)
}

func toProperties(opts backends.SendOptions) map[string]string {
	result := make(map[string]string, len(opts.Properties)+3)
	for k, v := range opts.Properties {
		result[k] = fmt.Sprintf("%v", v)
	}
	if opts.CorrelationID != "" {
		result[propCorrelationID] = opts.CorrelationID
	}
	if opts.ReplyTo != "" {
		result[propReplyTo] = opts.ReplyTo
	}
	if opts.ContentType != "" {
		result[propContentType] = opts.ContentType
	}
	return result
}

func pulsarToBackendMessage(msg pulsar.Message) *backends.Message {
	result := &backends.Message{
		Data:       msg.Payload(),
		Properties: make(map[string]any, len(msg.Properties())),
		MessageID:  msg.Key(),
		InternalMetadata: map[string]any{
			"Topic":           msg.Topic(),
			"PublishTime":     msg.PublishTime(),
			"RedeliveryCount": msg.RedeliveryCount(),
		},
	}
	for k, v := range msg.Properties() {
		switch k {
		case propCorrelationID:
			result.CorrelationID = v
		case propReplyTo:
			result.ReplyTo = v
		case propContentType:
			result.ContentType = v
		case propTTL:
			result.InternalMetadata["TTL"] = v
		default:
			result.Properties[k] = v
		}
	}
	return result
}
