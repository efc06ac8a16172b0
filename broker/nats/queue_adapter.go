package nats

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	natsclient "github.com/nats-io/nats.go"

	"github.com/makibytes/seltest/broker/backends"
)

// Message metadata that has no native NATS field travels in headers
const (
	ReplyToHeader       = "Seltest-Reply-To"
	CorrelationIDHeader = "Seltest-Correlation-Id"
	ContentTypeHeader   = "Content-Type"
)

const consumerName = "seltest-consumer"

// QueueAdapter adapts NATS JetStream to the QueueBackend interface.
type QueueAdapter struct {
	nc *natsclient.Conn
	js natsclient.JetStreamContext
}

// NewQueueAdapter creates a new NATS JetStream queue adapter.
func NewQueueAdapter(connArgs ConnArguments) (*QueueAdapter, error) {
	nc, js, err := ConnectWithJetStream(connArgs)
	if err != nil {
		return nil, err
	}

	return &QueueAdapter{
		nc: nc,
		js: js,
	}, nil
}

// Send implements backends.QueueBackend.
func (a *QueueAdapter) Send(ctx context.Context, opts backends.SendOptions) error {
	if err := ensureStream(a.js, opts.Queue); err != nil {
		return err
	}

	msg := natsclient.NewMsg(queueSubject(opts.Queue))
	msg.Data = opts.Message

	if opts.MessageID != "" {
		msg.Header.Set(natsclient.MsgIdHdr, opts.MessageID)
	}
	if opts.CorrelationID != "" {
		msg.Header.Set(CorrelationIDHeader, opts.CorrelationID)
	}
	if opts.ReplyTo != "" {
		msg.Header.Set(ReplyToHeader, opts.ReplyTo)
	}
	if opts.ContentType != "" {
		msg.Header.Set(ContentTypeHeader, opts.ContentType)
	}
	for k, v := range opts.Properties {
		msg.Header.Set(k, fmt.Sprintf("%v", v))
	}

	pubOpts := []natsclient.PubOpt{natsclient.Context(ctx)}
	_, err := a.js.PublishMsg(msg, pubOpts...)
	return err
}

// Receive implements backends.QueueBackend. JetStream has no selectors, so
// opts.Selector is ignored.
func (a *QueueAdapter) Receive(ctx context.Context, opts backends.ReceiveOptions) (*backends.Message, error) {
	if err := ensureStream(a.js, opts.Queue); err != nil {
		return nil, err
	}

	sub, err := a.js.PullSubscribe(queueSubject(opts.Queue), consumerName,
		natsclient.BindStream(streamName(opts.Queue)),
	)
	if err != nil {
		return nil, fmt.Errorf("creating pull subscriber: %w", err)
	}
	defer sub.Unsubscribe() //nolint:errcheck

	var cancel context.CancelFunc
	if opts.Wait {
		ctx, cancel = context.WithCancel(ctx)
	} else {
		ctx, cancel = context.WithTimeout(ctx, receiveTimeout(opts.Timeout))
	}
	defer cancel()

	msgs, err := sub.Fetch(1, natsclient.Context(ctx))
	if err != nil {
		if errors.Is(err, natsclient.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
			return nil, nil
		}
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, nil
	}

	m := msgs[0]
	if opts.Acknowledge {
		if err := m.Ack(); err != nil {
			return nil, fmt.Errorf("acknowledging message: %w", err)
		}
	} else {
		if err := m.Nak(); err != nil {
			return nil, fmt.Errorf("nacking message: %w", err)
		}
	}

	return natsToBackendMessage(m), nil
}

// SupportsSelectors implements backends.SelectorCapable
func (a *QueueAdapter) SupportsSelectors() bool { return false }

// Close implements backends.QueueBackend.
func (a *QueueAdapter) Close() error {
	if a.nc != nil {
		a.nc.Close()
	}
	return nil
}

func ensureStream(js natsclient.JetStreamContext, queue string) error {
	_, err := js.StreamInfo(streamName(queue))
	if err == nil {
		return nil
	}
	if !errors.Is(err, natsclient.ErrStreamNotFound) {
		return fmt.Errorf("checking stream %s: %w", streamName(queue), err)
	}
	return addStream(js, queue)
}

func addStream(js natsclient.JetStreamContext, queue string) error {
	_, err := js.AddStream(&natsclient.StreamConfig{
		Name:      streamName(queue),
		Subjects:  []string{queueSubject(queue)},
		Retention: natsclient.WorkQueuePolicy,
	})
	if err != nil && !errors.Is(err, natsclient.ErrStreamNameAlreadyInUse) {
		return fmt.Errorf("creating stream %s: %w", streamName(queue), err)
	}
	return nil
}

var nameReplacer = strings.NewReplacer("-", "_", "/", "_", ".", "_", " ", "_")

// streamName returns the JetStream stream name for a queue.
func streamName(queue string) string {
	return fmt.Sprintf("SELTEST_Q_%s", strings.ToUpper(nameReplacer.Replace(queue)))
}

// queueSubject returns the NATS subject for a queue.
func queueSubject(queue string) string {
	return "seltest.queue." + strings.NewReplacer("/", ".", " ", "_").Replace(queue)
}

// receiveTimeout falls back to five seconds when no timeout was given.
func receiveTimeout(timeout time.Duration) time.Duration {
	if timeout <= 0 {
		return 5 * time.Second
	}
	return timeout
}

// natsToBackendMessage converts a NATS message to a backends.Message.
func natsToBackendMessage(msg *natsclient.Msg) *backends.Message {
	result := &backends.Message{
		Data:       msg.Data,
		Properties: make(map[string]any),
	}

	for k, vals := range msg.Header {
		if len(vals) == 0 {
			continue
		}
		switch k {
		case ReplyToHeader:
			result.ReplyTo = vals[0]
		case CorrelationIDHeader:
			result.CorrelationID = vals[0]
		case ContentTypeHeader:
			result.ContentType = vals[0]
		case natsclient.MsgIdHdr:
			result.MessageID = vals[0]
		default:
			result.Properties[k] = vals[0]
		}
	}

	return result
}
