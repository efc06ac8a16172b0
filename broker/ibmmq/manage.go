//go:build ibmmq

package ibmmq

import (
	"context"
	"fmt"
	"time"

	"github.com/ibm-messaging/mq-golang/v5/ibmmq"
	"github.com/makibytes/seltest/broker/backends"
	"github.com/makibytes/seltest/log"
)

const (
	CommandQueue     = "SYSTEM.ADMIN.COMMAND.QUEUE"
	ReplyModelQueue  = "SYSTEM.DEFAULT.MODEL.QUEUE"
	replyQueuePrefix = "SELTEST.*"

	defaultCommandWait = 10 * time.Second
)

// CommandError reports a PCF command the command server rejected.
type CommandError struct {
	Command  int32
	CompCode int32
	Reason   int32
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("PCF command %s failed: %s (%d)",
		ibmmq.MQItoString("CMD", int(e.Command)), ibmmq.MQItoString("RC", int(e.Reason)), e.Reason)
}

func (e *CommandError) Unwrap() error { return backends.ErrOperationFailed }

// Admin implements backends.Admin by sending PCF commands to the command
// server of the queue manager and reading replies from a temporary dynamic
// queue.
type Admin struct {
	qMgr    ibmmq.MQQueueManager
	cmdQ    ibmmq.MQObject
	replyQ  ibmmq.MQObject
	replyTo string
}

// NewAdmin connects to the queue manager and opens the command and reply queues.
func NewAdmin(connArgs ConnArguments) (*Admin, error) {
	qMgr, err := Connect(connArgs)
	if err != nil {
		return nil, err
	}

	cmdOD := ibmmq.NewMQOD()
	cmdOD.ObjectType = ibmmq.MQOT_Q
	cmdOD.ObjectName = CommandQueue
	cmdQ, err := qMgr.Open(cmdOD, ibmmq.MQOO_OUTPUT|ibmmq.MQOO_FAIL_IF_QUIESCING)
	if err != nil {
		qMgr.Disc()
		return nil, fmt.Errorf("opening %s: %w", CommandQueue, err)
	}

	replyOD := ibmmq.NewMQOD()
	replyOD.ObjectType = ibmmq.MQOT_Q
	replyOD.ObjectName = ReplyModelQueue
	replyOD.DynamicQName = replyQueuePrefix
	replyQ, err := qMgr.Open(replyOD, ibmmq.MQOO_INPUT_EXCLUSIVE|ibmmq.MQOO_FAIL_IF_QUIESCING)
	if err != nil {
		cmdQ.Close(0)
		qMgr.Disc()
		return nil, fmt.Errorf("opening reply queue from %s: %w", ReplyModelQueue, err)
	}
	log.Verbose("🔧 PCF replies on %s", replyOD.ObjectName)

	return &Admin{qMgr: qMgr, cmdQ: cmdQ, replyQ: replyQ, replyTo: replyOD.ObjectName}, nil
}

// CreateQueue implements backends.Admin. An existing queue is kept as it is.
func (a *Admin) CreateQueue(ctx context.Context, spec backends.QueueSpec) error {
	persistence := int64(ibmmq.MQPER_NOT_PERSISTENT)
	if spec.Durable {
		persistence = ibmmq.MQPER_PERSISTENT
	}
	_, err := a.command(ctx, ibmmq.MQCMD_CREATE_Q,
		stringParam(ibmmq.MQCA_Q_NAME, spec.Name),
		intParam(ibmmq.MQIA_Q_TYPE, ibmmq.MQQT_LOCAL),
		intParam(ibmmq.MQIA_DEF_PERSISTENCE, persistence),
	)
	if isReason(err, ibmmq.MQRCCF_OBJECT_ALREADY_EXISTS) {
		return nil
	}
	return err
}

// RemoveQueue implements backends.Admin. A missing queue is not an error.
func (a *Admin) RemoveQueue(ctx context.Context, name string) error {
	_, err := a.command(ctx, ibmmq.MQCMD_DELETE_Q,
		stringParam(ibmmq.MQCA_Q_NAME, name),
		intParam(ibmmq.MQIA_Q_TYPE, ibmmq.MQQT_LOCAL),
		intParam(ibmmq.MQIACF_PURGE, ibmmq.MQPO_YES),
	)
	if isReason(err, ibmmq.MQRC_UNKNOWN_OBJECT_NAME) {
		return nil
	}
	return err
}

// PurgeQueue implements backends.Admin. CLEAR Q fails while another
// application has the queue open, which surfaces as MQRC_OBJECT_IN_USE.
func (a *Admin) PurgeQueue(ctx context.Context, name string) (int64, error) {
	stats, err := a.QueueStats(ctx, name)
	if err != nil {
		return 0, err
	}
	if _, err := a.command(ctx, ibmmq.MQCMD_CLEAR_Q, stringParam(ibmmq.MQCA_Q_NAME, name)); err != nil {
		return 0, err
	}
	return stats.MessageCount, nil
}

// QueueStats implements backends.StatsReader.
func (a *Admin) QueueStats(ctx context.Context, name string) (*backends.QueueStats, error) {
	params, err := a.command(ctx, ibmmq.MQCMD_INQUIRE_Q,
		stringParam(ibmmq.MQCA_Q_NAME, name),
		&ibmmq.PCFParameter{
			Type:       ibmmq.MQCFT_INTEGER_LIST,
			Parameter:  ibmmq.MQIACF_Q_ATTRS,
			Int64Value: []int64{ibmmq.MQIA_CURRENT_Q_DEPTH, ibmmq.MQIA_OPEN_INPUT_COUNT},
		},
	)
	if err != nil {
		return nil, err
	}

	stats := &backends.QueueStats{Name: name}
	for _, p := range params {
		if len(p.Int64Value) == 0 {
			continue
		}
		switch p.Parameter {
		case ibmmq.MQIA_CURRENT_Q_DEPTH:
			stats.MessageCount = p.Int64Value[0]
		case ibmmq.MQIA_OPEN_INPUT_COUNT:
			stats.ConsumerCount = int(p.Int64Value[0])
		}
	}
	return stats, nil
}

// Close implements backends.Admin. The dynamic reply queue is deleted.
func (a *Admin) Close() error {
	a.cmdQ.Close(0)
	a.replyQ.Close(ibmmq.MQCO_DELETE_PURGE)
	return a.qMgr.Disc()
}

// command sends a PCF command and collects the parameters of every reply
// message until the last one arrives.
func (a *Admin) command(ctx context.Context, command int32, params ...*ibmmq.PCFParameter) ([]*ibmmq.PCFParameter, error) {
	cfh := ibmmq.NewMQCFH()
	cfh.Command = command
	cfh.ParameterCount = int32(len(params))

	request := cfh.Bytes()
	for _, p := range params {
		request = append(request, p.Bytes()...)
	}

	md := ibmmq.NewMQMD()
	md.Format = ibmmq.MQFMT_ADMIN
	md.MsgType = ibmmq.MQMT_REQUEST
	md.ReplyToQ = a.replyTo

	pmo := ibmmq.NewMQPMO()
	pmo.Options = ibmmq.MQPMO_NO_SYNCPOINT | ibmmq.MQPMO_NEW_MSG_ID | ibmmq.MQPMO_FAIL_IF_QUIESCING

	log.Verbose("🔧 PCF %s", ibmmq.MQItoString("CMD", int(command)))
	if err := a.cmdQ.Put(md, pmo, request); err != nil {
		return nil, fmt.Errorf("putting PCF command: %w", err)
	}
	requestID := md.MsgId

	var result []*ibmmq.PCFParameter
	buffer := make([]byte, initialBufferSize)
	for {
		gmo := ibmmq.NewMQGMO()
		gmo.Options = ibmmq.MQGMO_NO_SYNCPOINT | ibmmq.MQGMO_WAIT | ibmmq.MQGMO_FAIL_IF_QUIESCING | ibmmq.MQGMO_CONVERT
		gmo.MatchOptions = ibmmq.MQMO_MATCH_CORREL_ID
		gmo.WaitInterval = waitInterval(ctx, defaultCommandWait, false)

		rmd := ibmmq.NewMQMD()
		rmd.CorrelId = requestID

		n, err := a.replyQ.Get(rmd, gmo, buffer)
		if reasonIs(err, ibmmq.MQRC_TRUNCATED_MSG_FAILED) {
			buffer = make([]byte, n)
			rmd = ibmmq.NewMQMD()
			rmd.CorrelId = requestID
			n, err = a.replyQ.Get(rmd, gmo, buffer)
		}
		if err != nil {
			if reasonIs(err, ibmmq.MQRC_NO_MSG_AVAILABLE) {
				return nil, fmt.Errorf("no reply to PCF command %s: %w",
					ibmmq.MQItoString("CMD", int(command)), context.DeadlineExceeded)
			}
			return nil, fmt.Errorf("reading PCF reply: %w", err)
		}

		reply, offset := ibmmq.ReadPCFHeader(buffer[:n])
		if reply.CompCode != ibmmq.MQCC_OK {
			return nil, &CommandError{Command: command, CompCode: reply.CompCode, Reason: reply.Reason}
		}
		for i := int32(0); i < reply.ParameterCount; i++ {
			p, length := ibmmq.ReadPCFParameter(buffer[offset:n])
			offset += length
			result = append(result, p)
		}
		if reply.Control == ibmmq.MQCFC_LAST {
			return result, nil
		}
	}
}

func stringParam(parameter int32, value string) *ibmmq.PCFParameter {
	return &ibmmq.PCFParameter{Type: ibmmq.MQCFT_STRING, Parameter: parameter, String: []string{value}}
}

func intParam(parameter int32, value int64) *ibmmq.PCFParameter {
	return &ibmmq.PCFParameter{Type: ibmmq.MQCFT_INTEGER, Parameter: parameter, Int64Value: []int64{value}}
}

func isReason(err error, reason int32) bool {
	if ce, ok := err.(*CommandError); ok {
		return ce.Reason == reason
	}
	return false
}
