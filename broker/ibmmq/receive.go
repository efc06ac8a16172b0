//go:build ibmmq

package ibmmq

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ibm-messaging/mq-golang/v5/ibmmq"
	"github.com/makibytes/seltest/log"
)

const initialBufferSize = 64 * 1024

// ReceiveArguments describes a single get or browse on an IBM MQ queue
type ReceiveArguments struct {
	Queue       string
	Timeout     time.Duration
	Wait        bool
	Acknowledge bool // get = true, browse = false
	Selector    string
}

// Received is a message read from a queue together with its properties handle.
// Release must be called once the properties have been read.
type Received struct {
	MD        *ibmmq.MQMD
	Data      []byte
	MsgHandle ibmmq.MQMessageHandle
}

// Release deletes the message handle.
func (r *Received) Release() {
	r.MsgHandle.DltMH(ibmmq.NewMQDMHO())
}

// ReceiveMessage reads one message from an IBM MQ queue. The selector is
// applied by the queue manager through the selection string of the object
// descriptor. A nil result with a nil error means no message arrived in time.
func ReceiveMessage(ctx context.Context, qMgr ibmmq.MQQueueManager, args ReceiveArguments) (*Received, error) {
	mqod := ibmmq.NewMQOD()
	mqod.ObjectType = ibmmq.MQOT_Q
	mqod.ObjectName = args.Queue
	if args.Selector != "" {
		log.Verbose("applying selector: %s", args.Selector)
		mqod.SelectionString = args.Selector
	}

	var openOptions int32 = ibmmq.MQOO_FAIL_IF_QUIESCING
	if args.Acknowledge {
		openOptions |= ibmmq.MQOO_INPUT_SHARED
		log.Verbose("📥 opening queue %s for getting...", args.Queue)
	} else {
		openOptions |= ibmmq.MQOO_BROWSE
		log.Verbose("📥 opening queue %s for browsing...", args.Queue)
	}

	qObject, err := qMgr.Open(mqod, openOptions)
	if err != nil {
		return nil, fmt.Errorf("opening queue %s: %w", args.Queue, err)
	}
	defer qObject.Close(0)

	msgHandle, err := qMgr.CrtMH(ibmmq.NewMQCMHO())
	if err != nil {
		return nil, fmt.Errorf("creating message handle: %w", err)
	}

	gmo := ibmmq.NewMQGMO()
	gmo.Options = ibmmq.MQGMO_NO_SYNCPOINT | ibmmq.MQGMO_FAIL_IF_QUIESCING | ibmmq.MQGMO_WAIT | ibmmq.MQGMO_PROPERTIES_IN_HANDLE
	if !args.Acknowledge {
		gmo.Options |= ibmmq.MQGMO_BROWSE_FIRST
	}
	gmo.WaitInterval = waitInterval(ctx, args.Timeout, args.Wait)
	gmo.MsgHandle = msgHandle

	log.Verbose("📩 receiving message from queue %s...", args.Queue)
	md := ibmmq.NewMQMD()
	buffer := make([]byte, initialBufferSize)
	datalen, err := qObject.Get(md, gmo, buffer)
	if reasonIs(err, ibmmq.MQRC_TRUNCATED_MSG_FAILED) {
		buffer = make([]byte, datalen)
		md = ibmmq.NewMQMD()
		datalen, err = qObject.Get(md, gmo, buffer)
	}
	if err != nil {
		msgHandle.DltMH(ibmmq.NewMQDMHO())
		if reasonIs(err, ibmmq.MQRC_NO_MSG_AVAILABLE) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting message from %s: %w", args.Queue, err)
	}

	return &Received{MD: md, Data: buffer[:datalen], MsgHandle: msgHandle}, nil
}

// waitInterval converts the receive timeout into milliseconds, never
// exceeding the deadline of ctx.
func waitInterval(ctx context.Context, timeout time.Duration, wait bool) int32 {
	interval := timeout
	if wait {
		interval = -1
	}
	if deadline, ok := ctx.Deadline(); ok {
		remaining := time.Until(deadline)
		if remaining < 0 {
			remaining = 0
		}
		if interval < 0 || remaining < interval {
			interval = remaining
		}
	}
	if interval < 0 {
		return ibmmq.MQWI_UNLIMITED
	}
	return int32(interval / time.Millisecond)
}

func reasonIs(err error, reason int32) bool {
	var mqret *ibmmq.MQReturn
	return errors.As(err, &mqret) && mqret.MQRC == reason
}
