package nats

import (
	"context"
	"errors"
	"fmt"

	natsclient "github.com/nats-io/nats.go"

	"github.com/makibytes/seltest/broker/backends"
)

// StreamInfo holds basic information about a JetStream stream.
type StreamInfo struct {
	Name         string
	MessageCount uint64
}

// Admin implements backends.Admin with one work-queue stream per queue.
type Admin struct {
	nc *natsclient.Conn
	js natsclient.JetStreamContext
}

// NewAdmin connects to NATS for stream management.
func NewAdmin(connArgs ConnArguments) (*Admin, error) {
	nc, js, err := ConnectWithJetStream(connArgs)
	if err != nil {
		return nil, err
	}
	return &Admin{nc: nc, js: js}, nil
}

// CreateQueue implements backends.Admin. An existing stream is kept.
func (a *Admin) CreateQueue(ctx context.Context, spec backends.QueueSpec) error {
	return addStream(a.js, spec.Name)
}

// RemoveQueue implements backends.Admin.
func (a *Admin) RemoveQueue(ctx context.Context, name string) error {
	err := a.js.DeleteStream(streamName(name), natsclient.Context(ctx))
	if err != nil && !errors.Is(err, natsclient.ErrStreamNotFound) {
		return fmt.Errorf("deleting stream %s: %w", streamName(name), err)
	}
	return nil
}

// PurgeQueue implements backends.Admin.
func (a *Admin) PurgeQueue(ctx context.Context, name string) (int64, error) {
	info, err := a.js.StreamInfo(streamName(name), natsclient.Context(ctx))
	if err != nil {
		return 0, fmt.Errorf("reading stream %s: %w", streamName(name), err)
	}
	if err := a.js.PurgeStream(streamName(name), natsclient.Context(ctx)); err != nil {
		return 0, fmt.Errorf("purging stream %s: %w", streamName(name), err)
	}
	return int64(info.State.Msgs), nil
}

// QueueStats implements backends.StatsReader.
func (a *Admin) QueueStats(ctx context.Context, name string) (*backends.QueueStats, error) {
	info, err := a.js.StreamInfo(streamName(name), natsclient.Context(ctx))
	if err != nil {
		return nil, fmt.Errorf("reading stream %s: %w", streamName(name), err)
	}
	return &backends.QueueStats{
		Name:          name,
		MessageCount:  int64(info.State.Msgs),
		ConsumerCount: info.State.Consumers,
		EnqueueCount:  int64(info.State.LastSeq),
	}, nil
}

// ListStreams returns the list of JetStream streams and their message counts.
func (a *Admin) ListStreams() []StreamInfo {
	var streams []StreamInfo
	for info := range a.js.StreamsInfo() {
		streams = append(streams, StreamInfo{
			Name:         info.Config.Name,
			MessageCount: info.State.Msgs,
		})
	}
	return streams
}

// Close implements backends.Admin.
func (a *Admin) Close() error {
	if a.nc != nil {
		a.nc.Close()
	}
	return nil
}
