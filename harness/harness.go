// Package harness is the client side of a selector test run: it sends
// selector-tagged request messages, waits for replies, purges queues
// through the broker's management interface and provisions the queues a
// run needs.
package harness

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/makibytes/seltest/broker/backends"
	"github.com/makibytes/seltest/config"
	"github.com/makibytes/seltest/log"
)

const textContentType = "text/plain"

// Settings tune message tagging and timeouts.
type Settings struct {
	// SelectorProperty is the string property the consumer's selector tests
	SelectorProperty string
	// ReceiveTimeout is used when Receive is called with a zero timeout
	ReceiveTimeout time.Duration
	// PurgeTimeout bounds each purge request/reply exchange
	PurgeTimeout time.Duration
	// TimeoutFactor scales receive timeouts, in percent
	TimeoutFactor int
}

// DefaultSettings matches config.DefaultSuite.
func DefaultSettings() Settings {
	return SettingsFromSuite(config.DefaultSuite())
}

// SettingsFromSuite takes the settings of a loaded suite.
func SettingsFromSuite(s *config.Suite) Settings {
	return Settings{
		SelectorProperty: s.SelectorProperty,
		ReceiveTimeout:   s.ReceiveTimeout,
		PurgeTimeout:     s.PurgeTimeout,
		TimeoutFactor:    s.TimeoutFactor,
	}
}

func (s Settings) withDefaults() Settings {
	d := config.DefaultSuite()
	if s.SelectorProperty == "" {
		s.SelectorProperty = d.SelectorProperty
	}
	if s.ReceiveTimeout <= 0 {
		s.ReceiveTimeout = d.ReceiveTimeout
	}
	if s.PurgeTimeout <= 0 {
		s.PurgeTimeout = d.PurgeTimeout
	}
	if s.TimeoutFactor <= 0 {
		s.TimeoutFactor = d.TimeoutFactor
	}
	return s
}

// Harness owns one messaging session and one management session for the
// duration of a run. Scenarios receive it instead of reaching for globals.
type Harness struct {
	backend   backends.QueueBackend
	admin     backends.Admin
	directory *Directory
	settings  Settings
}

// New composes a harness. A nil directory gets a fresh one.
func New(backend backends.QueueBackend, admin backends.Admin, directory *Directory, settings Settings) *Harness {
	if directory == nil {
		directory = NewDirectory()
	}
	return &Harness{
		backend:   backend,
		admin:     admin,
		directory: directory,
		settings:  settings.withDefaults(),
	}
}

func (h *Harness) Settings() Settings { return h.settings }

func (h *Harness) Directory() *Directory { return h.directory }

// Lookup resolves a lookup path to a queue.
func (h *Harness) Lookup(path string) (QueueRef, error) {
	return h.directory.Lookup(path)
}

// Send publishes text to target with the selector property set to
// selectorValue and reply-to set to replyTo.
func (h *Harness) Send(ctx context.Context, text string, target, replyTo QueueRef, selectorValue string) error {
	log.Verbose("📤 %s=%q to %s, reply to %s", h.settings.SelectorProperty, selectorValue, target.Name, replyTo.Name)
	err := h.backend.Send(ctx, backends.SendOptions{
		Queue:       target.Name,
		Message:     []byte(text),
		ContentType: textContentType,
		ReplyTo:     replyTo.Name,
		Properties: map[string]any{
			h.settings.SelectorProperty: selectorValue,
		},
	})
	if err != nil {
		return &SendError{Queue: target.Name, Err: err}
	}
	return nil
}

// Receive waits up to timeout, scaled by the timeout factor, for one
// message on from and consumes it. It returns nil and no error when
// nothing arrives in time.
func (h *Harness) Receive(ctx context.Context, from QueueRef, timeout time.Duration) (*backends.Message, error) {
	if timeout <= 0 {
		timeout = h.settings.ReceiveTimeout
	}
	timeout = AdjustTimeout(timeout, h.settings.TimeoutFactor)

	log.Verbose("📥 waiting up to %s for a message on %s", timeout, from.Name)
	msg, err := h.backend.Receive(ctx, backends.ReceiveOptions{
		Queue:       from.Name,
		Timeout:     timeout,
		Acknowledge: true,
	})
	if err != nil {
		return nil, fmt.Errorf("receiving from %s: %w", from.Name, err)
	}
	return msg, nil
}

// PurgeAll removes all messages from the named queue and returns how many
// were removed. A broker that answers with a failure is logged and
// reported as zero removed messages. A reply that does not arrive within
// the purge timeout yields a *PurgeTimeoutError.
func (h *Harness) PurgeAll(ctx context.Context, queue string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, h.settings.PurgeTimeout)
	defer cancel()

	n, err := h.admin.PurgeQueue(ctx, queue)
	switch {
	case err == nil:
		log.Verbose("🧹 purged %d message(s) from %s", n, queue)
		return n, nil
	case errors.Is(err, backends.ErrOperationFailed):
		log.Warn("purge of %s failed: %s", queue, err)
		return 0, nil
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return 0, &PurgeTimeoutError{Queue: queue, Timeout: h.settings.PurgeTimeout, Err: err}
	default:
		return 0, fmt.Errorf("purging %s: %w", queue, err)
	}
}

// PurgeQueues purges each queue in turn. Failures are logged and never
// stop the remaining purges.
func (h *Harness) PurgeQueues(ctx context.Context, refs ...QueueRef) int64 {
	var total int64
	for _, ref := range refs {
		n, err := h.PurgeAll(ctx, ref.Name)
		if err != nil {
			log.Warn("%s", err)
			continue
		}
		total += n
	}
	return total
}

// Close releases the messaging and management sessions.
func (h *Harness) Close() error {
	var errs []error
	if h.backend != nil {
		errs = append(errs, h.backend.Close())
	}
	if h.admin != nil {
		errs = append(errs, h.admin.Close())
	}
	return errors.Join(errs...)
}
