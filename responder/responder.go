// Package responder stands in for the message-driven consumer under test.
// It listens on the inbound queue, answers every message that satisfies
// its selector on the message's reply-to queue and leaves the rest alone.
package responder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/makibytes/seltest/broker/backends"
	"github.com/makibytes/seltest/log"
	"github.com/makibytes/seltest/selector"
)

const (
	DefaultReplyPrefix  = "Reply to: "
	DefaultPollInterval = 500 * time.Millisecond
)

var ErrAlreadyStarted = errors.New("responder already started")

// Options configure a Responder.
type Options struct {
	Queue        string
	Selector     string
	ReplyPrefix  string
	PollInterval time.Duration
}

// Responder consumes from one queue and replies to matching messages.
//
// When the backend filters on the broker, non-matching messages stay on
// the queue for other consumers. Otherwise the selector is evaluated here
// and non-matching messages are consumed and dropped, which is only
// faithful while the responder is the queue's sole consumer.
type Responder struct {
	backend    backends.QueueBackend
	opts       Options
	sel        *selector.Selector
	brokerSide bool

	handled atomic.Int64
	dropped atomic.Int64

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New validates the selector and prepares a responder.
func New(backend backends.QueueBackend, opts Options) (*Responder, error) {
	if opts.Queue == "" {
		return nil, fmt.Errorf("responder: queue is required")
	}
	sel, err := selector.Parse(opts.Selector)
	if err != nil {
		return nil, err
	}
	if opts.ReplyPrefix == "" {
		opts.ReplyPrefix = DefaultReplyPrefix
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	return &Responder{
		backend:    backend,
		opts:       opts,
		sel:        sel,
		brokerSide: backends.SupportsSelectors(backend),
	}, nil
}

// Start runs the responder in the background until Stop is called or ctx
// is done.
func (r *Responder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done != nil {
		return ErrAlreadyStarted
	}

	ctx, r.cancel = context.WithCancel(ctx)
	done := make(chan struct{})
	r.done = done
	go func() {
		defer close(done)
		r.Serve(ctx)
	}()
	return nil
}

// Stop ends a responder started with Start and waits for it to finish.
func (r *Responder) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Handled is the number of messages answered.
func (r *Responder) Handled() int64 { return r.handled.Load() }

// Dropped is the number of messages consumed without a reply.
func (r *Responder) Dropped() int64 { return r.dropped.Load() }

// Serve consumes messages until ctx is done.
func (r *Responder) Serve(ctx context.Context) {
	where := "client"
	if r.brokerSide {
		where = "broker"
	}
	log.Verbose("👂 responding on %s where %s (evaluated by the %s)", r.opts.Queue, r.sel, where)

	for ctx.Err() == nil {
		opts := backends.ReceiveOptions{
			Queue:       r.opts.Queue,
			Timeout:     r.opts.PollInterval,
			Acknowledge: true,
		}
		if r.brokerSide {
			opts.Selector = r.opts.Selector
		}

		msg, err := r.backend.Receive(ctx, opts)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error("receiving from %s: %s", r.opts.Queue, err)
			pause(ctx, r.opts.PollInterval)
			continue
		}
		if msg == nil {
			continue
		}

		if !r.brokerSide && !r.sel.Matches(msg.Properties) {
			r.dropped.Add(1)
			log.Verbose("dropping message %s: selector does not match", msg.MessageID)
			continue
		}
		r.reply(ctx, msg)
	}
}

func (r *Responder) reply(ctx context.Context, msg *backends.Message) {
	if msg.ReplyTo == "" {
		r.dropped.Add(1)
		log.Warn("message %s has no reply-to, not answering", msg.MessageID)
		return
	}

	correlationID := msg.CorrelationID
	if correlationID == "" {
		correlationID = msg.MessageID
	}

	err := r.backend.Send(ctx, backends.SendOptions{
		Queue:         msg.ReplyTo,
		Message:       []byte(r.opts.ReplyPrefix + string(msg.Data)),
		MessageID:     uuid.NewString(),
		CorrelationID: correlationID,
		ContentType:   "text/plain",
	})
	if err != nil {
		if ctx.Err() == nil {
			log.Error("replying to %s: %s", msg.ReplyTo, err)
		}
		return
	}
	r.handled.Add(1)
	log.Verbose("💬 replied to %s on %s", msg.MessageID, msg.ReplyTo)
}

func pause(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
