package amqpcommon

import (
	"fmt"
	"maps"

	"github.com/Azure/go-amqp"
	"github.com/makibytes/seltest/broker/backends"
	"github.com/makibytes/seltest/log"
)

// Body returns the message payload whether it was sent as a data section or
// as an AMQP string value (JMS TextMessage, management replies).
func Body(msg *amqp.Message) []byte {
	if data := msg.GetData(); data != nil {
		return data
	}
	switch v := msg.Value.(type) {
	case string:
		return []byte(v)
	case []byte:
		return v
	case nil:
		return nil
	default:
		return []byte(fmt.Sprintf("%v", v))
	}
}

// messageID renders the AMQP message-id variants as text. JMS brokers
// send strings, other peers may use ulong, uuid or binary ids.
func messageID(id any) string {
	switch v := id.(type) {
	case nil:
		return ""
	case string:
		return v
	case amqp.UUID:
		return v.String()
	case []byte:
		return fmt.Sprintf("%x", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// ToBackendMessage converts a received AMQP 1.0 message. The application
// properties are copied, so the result owns its map.
func ToBackendMessage(msg *amqp.Message) *backends.Message {
	result := &backends.Message{
		Data:             Body(msg),
		Properties:       maps.Clone(msg.ApplicationProperties),
		InternalMetadata: make(map[string]any),
	}
	if result.Properties == nil {
		result.Properties = make(map[string]any)
	}

	if p := msg.Properties; p != nil {
		result.MessageID = messageID(p.MessageID)
		result.CorrelationID = messageID(p.CorrelationID)
		if p.ReplyTo != nil {
			result.ReplyTo = *p.ReplyTo
		}
		if p.ContentType != nil {
			result.ContentType = *p.ContentType
		}
		if log.IsVerbose {
			result.InternalMetadata["MessageProperties"] = fmt.Sprintf("%+v", p)
		}
	}

	if h := msg.Header; h != nil {
		result.Priority = int(h.Priority)
		result.Persistent = h.Durable
		if log.IsVerbose {
			result.InternalMetadata["Header"] = fmt.Sprintf("%+v", h)
		}
	}

	return result
}
