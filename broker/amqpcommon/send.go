package amqpcommon

import (
	"context"
	"time"

	"github.com/Azure/go-amqp"
	"github.com/makibytes/seltest/log"
)

// SendArguments describes a single message to publish
type SendArguments struct {
	Address            string
	Message            []byte
	ContentType        string
	CorrelationID      string
	MessageID          string
	Priority           uint8
	Durable            bool
	Properties         map[string]any
	ReplyTo            string
	Subject            string
	TTL                int64 // Time-to-live in milliseconds
	TargetCapabilities []string
}

// NewMessage builds the AMQP message for args. Empty metadata fields are left
// unset so that a consumer never sees an empty reply-to address.
func NewMessage(args SendArguments) *amqp.Message {
	message := amqp.NewMessage(args.Message)
	message.Header = &amqp.MessageHeader{
		Durable:  args.Durable,
		Priority: args.Priority,
	}
	if args.TTL > 0 {
		message.Header.TTL = time.Duration(args.TTL) * time.Millisecond
		log.Verbose("setting TTL to %d ms", args.TTL)
	}

	message.Properties = &amqp.MessageProperties{}
	if args.MessageID != "" {
		message.Properties.MessageID = args.MessageID
	}
	if args.CorrelationID != "" {
		message.Properties.CorrelationID = args.CorrelationID
	}
	if args.ContentType != "" {
		message.Properties.ContentType = &args.ContentType
	}
	if args.ReplyTo != "" {
		message.Properties.ReplyTo = &args.ReplyTo
	}
	if args.Subject != "" {
		message.Properties.Subject = &args.Subject
	}

	if len(args.Properties) > 0 {
		message.ApplicationProperties = args.Properties
	}

	return message
}

// SendMessage publishes one message over a short-lived sender link
func SendMessage(ctx context.Context, session *amqp.Session, args SendArguments) error {
	log.Verbose("constructing message...")
	message := NewMessage(args)
	return sendOn(ctx, session, args.Address, args.Durable, args.TargetCapabilities, message)
}

func sendOn(ctx context.Context, session *amqp.Session, address string, durable bool, capabilities []string, message *amqp.Message) error {
	durability := amqp.DurabilityNone
	if durable {
		durability = amqp.DurabilityUnsettledState
	}

	senderOptions := &amqp.SenderOptions{
		Name:               LinkName("send"),
		TargetDurability:   durability,
		TargetCapabilities: capabilities,
	}

	log.Verbose("generating sender for %s...", address)
	sender, err := session.NewSender(ctx, address, senderOptions)
	if err != nil {
		return err
	}
	defer closeLink(sender.Close)

	log.Verbose("sending message to %s...", address)
	return sender.Send(ctx, message, nil)
}
