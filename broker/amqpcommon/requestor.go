package amqpcommon

import (
	"context"
	"fmt"

	"github.com/Azure/go-amqp"
	"github.com/google/uuid"
	"github.com/makibytes/seltest/log"
)

// Requestor performs one-request/one-reply exchanges against a fixed
// destination. Replies arrive on a broker-generated temporary address that
// belongs to this Requestor alone, so at most one request is outstanding.
type Requestor struct {
	session  *amqp.Session
	target   string
	receiver *amqp.Receiver
}

// NewRequestor attaches a dynamic reply receiver on session
func NewRequestor(ctx context.Context, session *amqp.Session, target string) (*Requestor, error) {
	receiver, err := session.NewReceiver(ctx, "", &amqp.ReceiverOptions{
		Credit:         1,
		DynamicAddress: true,
		Name:           LinkName("reply"),
	})
	if err != nil {
		return nil, fmt.Errorf("attaching reply receiver: %w", err)
	}
	log.Verbose("requestor reply address: %s", receiver.Address())

	return &Requestor{
		session:  session,
		target:   target,
		receiver: receiver,
	}, nil
}

// ReplyAddress is the temporary address replies are delivered to
func (r *Requestor) ReplyAddress() string {
	return r.receiver.Address()
}

// Request sends msg and blocks until the correlated reply arrives or ctx is
// done. Replies carrying another correlation ID are accepted and dropped.
func (r *Requestor) Request(ctx context.Context, msg *amqp.Message) (*amqp.Message, error) {
	if msg.Properties == nil {
		msg.Properties = &amqp.MessageProperties{}
	}
	messageID := uuid.NewString()
	replyTo := r.receiver.Address()
	msg.Properties.MessageID = messageID
	msg.Properties.ReplyTo = &replyTo

	if err := sendOn(ctx, r.session, r.target, false, nil, msg); err != nil {
		return nil, fmt.Errorf("sending request to %s: %w", r.target, err)
	}

	for {
		reply, err := r.receiver.Receive(ctx, nil)
		if err != nil {
			return nil, err
		}
		if err := r.receiver.AcceptMessage(ctx, reply); err != nil {
			return nil, fmt.Errorf("accepting reply: %w", err)
		}
		if correlates(reply, messageID) {
			return reply, nil
		}
		log.Verbose("dropping uncorrelated reply on %s", replyTo)
	}
}

// Close detaches the reply receiver
func (r *Requestor) Close(ctx context.Context) error {
	return r.receiver.Close(ctx)
}

// correlates accepts replies without a correlation ID: the reply address is
// private to one outstanding request.
func correlates(reply *amqp.Message, messageID string) bool {
	if reply.Properties == nil || reply.Properties.CorrelationID == nil {
		return true
	}
	return fmt.Sprintf("%v", reply.Properties.CorrelationID) == messageID
}
