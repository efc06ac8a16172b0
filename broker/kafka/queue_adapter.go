package kafka

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/makibytes/seltest/broker/backends"
	"github.com/makibytes/seltest/log"
)

// Header names of the message fields Kafka has no place for
const (
	headerContentType   = "content-type"
	headerCorrelationID = "correlation-id"
	headerMessageID     = "message-id"
	headerReplyTo       = "reply-to"
	headerTTL           = "ttl"
)

// QueueAdapter adapts Kafka to the QueueBackend interface
type QueueAdapter struct {
	endpoint *endpoint
	writer   *kafkago.Writer
}

// NewQueueAdapter creates a new Kafka queue adapter. Readers are created
// per receive; the writer is shared.
func NewQueueAdapter(connArgs ConnArguments) (*QueueAdapter, error) {
	ep, err := parseEndpoint(connArgs)
	if err != nil {
		return nil, err
	}
	return &QueueAdapter{
		endpoint: ep,
		writer: &kafkago.Writer{
			Addr:                   kafkago.TCP(ep.brokers...),
			Balancer:               &kafkago.LeastBytes{},
			Transport:              ep.transport(),
			RequiredAcks:           kafkago.RequireAll,
			AllowAutoTopicCreation: true,
		},
	}, nil
}

// Send implements backends.QueueBackend
func (a *QueueAdapter) Send(ctx context.Context, opts backends.SendOptions) error {
	topic := topicName(opts.Queue)
	message := kafkago.Message{
		Topic:   topic,
		Key:     []byte(opts.MessageID),
		Value:   opts.Message,
		Headers: toHeaders(opts),
	}

	log.Verbose("💌 publishing message to topic %s...", topic)
	if err := a.writer.WriteMessages(ctx, message); err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

// Receive implements backends.QueueBackend. Without Acknowledge the offset
// is not committed, so the message is delivered again.
func (a *QueueAdapter) Receive(ctx context.Context, opts backends.ReceiveOptions) (*backends.Message, error) {
	if !opts.Wait {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     a.endpoint.brokers,
		Topic:       topicName(opts.Queue),
		GroupID:     QueueGroup,
		Dialer:      a.endpoint.dialer(),
		StartOffset: kafkago.FirstOffset,
		MinBytes:    1,
		MaxBytes:    10e6, // 10MB
		MaxWait:     250 * time.Millisecond,
	})
	defer reader.Close()

	log.Verbose("📩 fetching from topic %s...", reader.Config().Topic)
	message, err := reader.FetchMessage(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to fetch message: %w", err)
	}

	if opts.Acknowledge {
		if err := reader.CommitMessages(context.WithoutCancel(ctx), message); err != nil {
			return nil, fmt.Errorf("failed to commit message: %w", err)
		}
	}

	return convertKafkaToBackendMessage(&message), nil
}

// SupportsSelectors implements backends.SelectorCapable
func (a *QueueAdapter) SupportsSelectors() bool { return false }

// Close implements backends.QueueBackend
func (a *QueueAdapter) Close() error {
	return a.writer.Close()
}

func toHeaders(opts backends.SendOptions) []kafkago.Header {
	var headers []kafkago.Header
	add := func(k, v string) {
		if v != "" {
			headers = append(headers, kafkago.Header{Key: k, Value: []byte(v)})
		}
	}
	add(headerContentType, opts.ContentType)
	add(headerCorrelationID, opts.CorrelationID)
	add(headerMessageID, opts.MessageID)
	add(headerReplyTo, opts.ReplyTo)
	if opts.TTL > 0 {
		add(headerTTL, strconv.FormatInt(opts.TTL, 10))
	}
	for k, v := range opts.Properties {
		add(k, fmt.Sprintf("%v", v))
	}
	return headers
}

func convertKafkaToBackendMessage(msg *kafkago.Message) *backends.Message {
	result := &backends.Message{
		Data:       msg.Value,
		Properties: make(map[string]any),
		InternalMetadata: map[string]any{
			"Topic":     msg.Topic,
			"Partition": msg.Partition,
			"Offset":    msg.Offset,
			"Time":      msg.Time,
		},
	}

	for _, h := range msg.Headers {
		value := string(h.Value)
		switch h.Key {
		case headerContentType:
			result.ContentType = value
		case headerCorrelationID:
			result.CorrelationID = value
		case headerMessageID:
			result.MessageID = value
		case headerReplyTo:
			result.ReplyTo = value
		case headerTTL:
			result.InternalMetadata["TTL"] = value
		default:
			result.Properties[h.Key] = value
		}
	}

	if len(msg.Key) > 0 {
		result.InternalMetadata["Key"] = string(msg.Key)
	}

	return result
}
