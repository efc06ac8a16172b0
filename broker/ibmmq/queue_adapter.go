//go:build ibmmq

package ibmmq

import (
	"context"
	"fmt"
	"strings"

	"github.com/ibm-messaging/mq-golang/v5/ibmmq"
	"github.com/makibytes/seltest/broker/backends"
)

// QueueAdapter adapts IBM MQ to the QueueBackend interface
type QueueAdapter struct {
	qMgr ibmmq.MQQueueManager
}

// NewQueueAdapter creates a new IBM MQ queue adapter
func NewQueueAdapter(connArgs ConnArguments) (*QueueAdapter, error) {
	qMgr, err := Connect(connArgs)
	if err != nil {
		return nil, err
	}
	return &QueueAdapter{qMgr: qMgr}, nil
}

// Send implements backends.QueueBackend
func (a *QueueAdapter) Send(ctx context.Context, opts backends.SendOptions) error {
	return SendMessage(a.qMgr, SendArguments{
		Queue:         opts.Queue,
		Message:       opts.Message,
		Properties:    opts.Properties,
		MessageID:     opts.MessageID,
		CorrelationID: opts.CorrelationID,
		ReplyTo:       opts.ReplyTo,
		Priority:      opts.Priority,
		Persistent:    opts.Persistent,
		TTL:           opts.TTL,
	})
}

// Receive implements backends.QueueBackend
func (a *QueueAdapter) Receive(ctx context.Context, opts backends.ReceiveOptions) (*backends.Message, error) {
	received, err := ReceiveMessage(ctx, a.qMgr, ReceiveArguments{
		Queue:       opts.Queue,
		Timeout:     opts.Timeout,
		Wait:        opts.Wait,
		Acknowledge: opts.Acknowledge,
		Selector:    opts.Selector,
	})
	if err != nil || received == nil {
		return nil, err
	}
	defer received.Release()

	return convertMQMDToBackendMessage(received.MD, received.Data, received.MsgHandle), nil
}

// SupportsSelectors implements backends.SelectorCapable
func (a *QueueAdapter) SupportsSelectors() bool { return true }

// Close implements backends.QueueBackend
func (a *QueueAdapter) Close() error {
	return a.qMgr.Disc()
}

func convertMQMDToBackendMessage(md *ibmmq.MQMD, data []byte, msgHandle ibmmq.MQMessageHandle) *backends.Message {
	result := &backends.Message{
		Data:             data,
		Properties:       make(map[string]any),
		InternalMetadata: make(map[string]any),
	}

	if !isZero(md.MsgId) {
		result.MessageID = fmt.Sprintf("%x", md.MsgId)
	}
	if !isZero(md.CorrelId) {
		result.CorrelationID = fmt.Sprintf("%x", md.CorrelId)
	}
	result.ReplyTo = strings.TrimSpace(md.ReplyToQ)
	result.Priority = int(md.Priority)
	result.Persistent = md.Persistence == ibmmq.MQPER_PERSISTENT

	impo := ibmmq.NewMQIMPO()
	impo.Options = ibmmq.MQIMPO_INQ_FIRST
	pd := ibmmq.NewMQPD()
	for {
		name, value, err := msgHandle.InqMP(impo, pd, "%")
		if err != nil {
			break
		}
		// user properties live in the usr folder; jms, mcd and root are MQ internal
		if strings.HasPrefix(name, "usr.") {
			result.Properties[name[4:]] = value
		} else if name != "" && !strings.Contains(name, ".") {
			result.Properties[name] = value
		}
		impo.Options = ibmmq.MQIMPO_INQ_NEXT
	}

	result.InternalMetadata["Format"] = strings.TrimSpace(md.Format)
	result.InternalMetadata["Priority"] = md.Priority
	result.InternalMetadata["Persistence"] = md.Persistence
	result.InternalMetadata["PutDate"] = md.PutDate

	return result
}

func isZero(id []byte) bool {
	for _, b := range id {
		if b != 0 {
			return false
		}
	}
	return true
}
