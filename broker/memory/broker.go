// Package memory is an in-process broker with JMS selector support. It
// backs dry runs of the suite and the tests of the packages built on
// backends.QueueBackend and backends.Admin.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/makibytes/seltest/broker/backends"
	"github.com/makibytes/seltest/selector"
)

// ErrQueueNotFound is returned for operations on a queue that was never created.
var ErrQueueNotFound = errors.New("queue not found")

type queue struct {
	messages  []*backends.Message
	consumers int
	enqueued  int64
	dequeued  int64
	// closed and replaced whenever the queue changes
	changed chan struct{}
}

func newQueue() *queue {
	return &queue{changed: make(chan struct{})}
}

func (q *queue) signal() {
	close(q.changed)
	q.changed = make(chan struct{})
}

// Broker holds named queues. It is safe for concurrent use.
type Broker struct {
	mu         sync.Mutex
	queues     map[string]*queue
	autoCreate bool
}

// Option configures a Broker.
type Option func(*Broker)

// AutoCreate makes sends and receives create missing queues.
func AutoCreate() Option {
	return func(b *Broker) { b.autoCreate = true }
}

func NewBroker(opts ...Option) *Broker {
	b := &Broker{queues: make(map[string]*queue)}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// queue returns the named queue; b.mu must be held.
func (b *Broker) queue(name string) (*queue, error) {
	q, ok := b.queues[name]
	if ok {
		return q, nil
	}
	if !b.autoCreate {
		return nil, fmt.Errorf("%w: %s", ErrQueueNotFound, name)
	}
	q = newQueue()
	b.queues[name] = q
	return q, nil
}

// Queues returns the names of all queues in order.
func (b *Broker) Queues() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	names := make([]string, 0, len(b.queues))
	for name := range b.queues {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Depth returns the number of messages on a queue, or -1 when it does not exist.
func (b *Broker) Depth(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.queues[name]
	if !ok {
		return -1
	}
	return len(q.messages)
}

func (b *Broker) send(opts backends.SendOptions) error {
	msg := &backends.Message{
		Data:          append([]byte(nil), opts.Message...),
		Properties:    make(map[string]any, len(opts.Properties)),
		MessageID:     opts.MessageID,
		CorrelationID: opts.CorrelationID,
		ReplyTo:       opts.ReplyTo,
		ContentType:   opts.ContentType,
		Priority:      opts.Priority,
		Persistent:    opts.Persistent,
	}
	for k, v := range opts.Properties {
		msg.Properties[k] = v
	}
	if msg.MessageID == "" {
		msg.MessageID = "ID:" + uuid.NewString()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	q, err := b.queue(opts.Queue)
	if err != nil {
		return err
	}
	q.messages = append(q.messages, msg)
	q.enqueued++
	q.signal()
	return nil
}

func (b *Broker) receive(ctx context.Context, opts backends.ReceiveOptions) (*backends.Message, error) {
	sel, err := selector.Parse(opts.Selector)
	if err != nil {
		return nil, err
	}

	var expired <-chan time.Time
	if !opts.Wait {
		timer := time.NewTimer(opts.Timeout)
		defer timer.Stop()
		expired = timer.C
	}

	b.mu.Lock()
	q, err := b.queue(opts.Queue)
	if err != nil {
		b.mu.Unlock()
		return nil, err
	}
	q.consumers++
	defer func() {
		b.mu.Lock()
		q.consumers--
		b.mu.Unlock()
	}()

	for {
		if msg := b.take(q, sel, opts.Acknowledge); msg != nil {
			b.mu.Unlock()
			return msg, nil
		}
		changed := q.changed
		b.mu.Unlock()

		select {
		case <-changed:
		case <-expired:
			return nil, nil
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, nil
			}
			return nil, ctx.Err()
		}

		b.mu.Lock()
		if b.queues[opts.Queue] != q {
			b.mu.Unlock()
			return nil, fmt.Errorf("%w: %s", ErrQueueNotFound, opts.Queue)
		}
	}
}

// take returns a copy of the first message matching sel; b.mu must be held.
func (b *Broker) take(q *queue, sel *selector.Selector, remove bool) *backends.Message {
	for i, msg := range q.messages {
		if !sel.Matches(msg.Properties) {
			continue
		}
		if remove {
			q.messages = append(q.messages[:i], q.messages[i+1:]...)
			q.dequeued++
		}
		return clone(msg)
	}
	return nil
}

func clone(m *backends.Message) *backends.Message {
	c := *m
	c.Data = append([]byte(nil), m.Data...)
	c.Properties = make(map[string]any, len(m.Properties))
	for k, v := range m.Properties {
		c.Properties[k] = v
	}
	c.InternalMetadata = map[string]any{"Broker": "memory"}
	return &c
}

func (b *Broker) createQueue(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.queues[name]; !ok {
		b.queues[name] = newQueue()
	}
}

func (b *Broker) removeQueue(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if q, ok := b.queues[name]; ok {
		delete(b.queues, name)
		q.signal()
	}
}

func (b *Broker) purge(name string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.queues[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrQueueNotFound, name)
	}
	n := int64(len(q.messages))
	q.messages = nil
	q.signal()
	return n, nil
}

func (b *Broker) stats(name string) (*backends.QueueStats, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.queues[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrQueueNotFound, name)
	}
	return &backends.QueueStats{
		Name:          name,
		MessageCount:  int64(len(q.messages)),
		ConsumerCount: q.consumers,
		EnqueueCount:  q.enqueued,
		DequeueCount:  q.dequeued,
	}, nil
}
