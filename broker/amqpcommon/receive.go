package amqpcommon

import (
	"context"
	"errors"
	"time"

	"github.com/Azure/go-amqp"
	"github.com/makibytes/seltest/log"
)

// ReceiveOptions configures an AMQP receive operation
type ReceiveOptions struct {
	Queue              string
	Timeout            time.Duration
	Wait               bool     // true = wait until ctx is done
	Acknowledge        bool     // true = accept (destructive), false = release (peek)
	SourceCapabilities []string // e.g. ["queue"] for Artemis ANYCAST routing
	Selector           string   // JMS-style message selector (AMQP filter)
}

// ReceiveMessage receives a single message from an AMQP 1.0 session. It
// returns a nil message without error when the timeout elapses first.
func ReceiveMessage(ctx context.Context, session *amqp.Session, opts ReceiveOptions) (*amqp.Message, error) {
	var cancel context.CancelFunc
	if opts.Wait {
		ctx, cancel = context.WithCancel(ctx)
	} else {
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
	}
	defer cancel()

	receiverOptions := &amqp.ReceiverOptions{
		Credit:             1,
		SourceCapabilities: opts.SourceCapabilities,
		SourceExpiryPolicy: amqp.ExpiryPolicyLinkDetach,
		Durability:         amqp.DurabilityNone,
		SourceDurability:   amqp.DurabilityNone,
		Name:               LinkName("recv"),
		SettlementMode:     amqp.ReceiverSettleModeFirst.Ptr(),
	}

	// Add JMS selector as AMQP source filter
	if opts.Selector != "" {
		log.Verbose("applying selector filter: %s", opts.Selector)
		receiverOptions.Filters = []amqp.LinkFilter{
			amqp.NewSelectorFilter(opts.Selector),
		}
	}

	log.Verbose("generating receiver for %s...", opts.Queue)
	receiver, err := session.NewReceiver(ctx, opts.Queue, receiverOptions)
	if err != nil {
		if isTimeout(ctx, err) {
			return nil, nil
		}
		return nil, err
	}
	defer closeLink(receiver.Close)

	log.Verbose("calling receive()...")
	message, err := receiver.Receive(ctx, nil)
	if err != nil {
		if isTimeout(ctx, err) {
			log.Verbose("no message on %s within %s", opts.Queue, opts.Timeout)
			return nil, nil
		}
		return nil, err
	}

	// Settle with a fresh context: the receive deadline may already be spent.
	settleCtx, settleCancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer settleCancel()
	if opts.Acknowledge {
		err = receiver.AcceptMessage(settleCtx, message)
	} else {
		err = receiver.ReleaseMessage(settleCtx, message)
	}
	if err != nil {
		return nil, err
	}

	return message, nil
}

func isTimeout(ctx context.Context, err error) bool {
	return errors.Is(err, context.DeadlineExceeded) && errors.Is(ctx.Err(), context.DeadlineExceeded)
}

// closeLink detaches a link without tying it to an expired operation context.
func closeLink(closeFn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := closeFn(ctx); err != nil {
		log.Verbose("closing link: %s", err)
	}
}
