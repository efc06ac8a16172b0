//go:build ibmmq

package ibmmq

import (
	"encoding/hex"
	"fmt"

	"github.com/ibm-messaging/mq-golang/v5/ibmmq"
	"github.com/makibytes/seltest/log"
)

// SendArguments describes a single put to an IBM MQ queue
type SendArguments struct {
	Queue         string
	Message       []byte
	Properties    map[string]any
	CorrelationID string
	MessageID     string
	Priority      int
	Persistent    bool
	ReplyTo       string
	TTL           int64 // milliseconds
}

// SendMessage sends a message to an IBM MQ queue
func SendMessage(qMgr ibmmq.MQQueueManager, args SendArguments) error {
	mqod := ibmmq.NewMQOD()
	mqod.ObjectType = ibmmq.MQOT_Q
	mqod.ObjectName = args.Queue

	log.Verbose("📤 opening queue %s for sending...", args.Queue)
	qObject, err := qMgr.Open(mqod, ibmmq.MQOO_OUTPUT|ibmmq.MQOO_FAIL_IF_QUIESCING)
	if err != nil {
		return fmt.Errorf("opening queue %s: %w", args.Queue, err)
	}
	defer qObject.Close(0)

	pmo := ibmmq.NewMQPMO()
	pmo.Options = ibmmq.MQPMO_NO_SYNCPOINT | ibmmq.MQPMO_FAIL_IF_QUIESCING

	md := ibmmq.NewMQMD()
	md.Format = ibmmq.MQFMT_STRING
	if args.MessageID != "" {
		copy(md.MsgId, idBytes(args.MessageID))
	} else {
		pmo.Options |= ibmmq.MQPMO_NEW_MSG_ID
	}
	if args.CorrelationID != "" {
		copy(md.CorrelId, idBytes(args.CorrelationID))
	}
	if args.ReplyTo != "" {
		md.ReplyToQ = args.ReplyTo
	}

	md.Priority = 4
	if args.Priority >= 0 && args.Priority <= 9 {
		md.Priority = int32(args.Priority)
	}

	// MQMD.Expiry is in tenths of a second
	if args.TTL > 0 {
		md.Expiry = int32(args.TTL / 100)
		if md.Expiry < 1 {
			md.Expiry = 1
		}
	}

	md.Persistence = ibmmq.MQPER_NOT_PERSISTENT
	if args.Persistent {
		md.Persistence = ibmmq.MQPER_PERSISTENT
	}

	if len(args.Properties) > 0 {
		log.Verbose("📦 adding %d properties to message...", len(args.Properties))

		msgHandle, err := qMgr.CrtMH(ibmmq.NewMQCMHO())
		if err != nil {
			return fmt.Errorf("creating message handle: %w", err)
		}
		defer msgHandle.DltMH(ibmmq.NewMQDMHO())

		smpo := ibmmq.NewMQSMPO()
		pd := ibmmq.NewMQPD()
		for key, value := range args.Properties {
			if err := msgHandle.SetMP(smpo, key, pd, propertyValue(value)); err != nil {
				return fmt.Errorf("setting property %s: %w", key, err)
			}
		}
		pmo.OriginalMsgHandle = msgHandle
	}

	log.Verbose("💌 sending message to queue %s...", args.Queue)
	if err := qObject.Put(md, pmo, args.Message); err != nil {
		return fmt.Errorf("putting message on %s: %w", args.Queue, err)
	}
	return nil
}

// idBytes converts a message or correlation id into the 24 byte MQMD form.
// Ids previously rendered as hex by this package are decoded again so a
// reply can quote the request's MsgId.
func idBytes(id string) []byte {
	if len(id) == 2*ibmmq.MQ_MSG_ID_LENGTH {
		if b, err := hex.DecodeString(id); err == nil {
			return b
		}
	}
	b := []byte(id)
	if len(b) > ibmmq.MQ_MSG_ID_LENGTH {
		b = b[:ibmmq.MQ_MSG_ID_LENGTH]
	}
	return b
}

// propertyValue narrows a value to a type SetMP accepts.
func propertyValue(v any) any {
	switch t := v.(type) {
	case string, bool, int8, int16, int32, int64, float32, float64, []byte:
		return t
	case int:
		return int64(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}
