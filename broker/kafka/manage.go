package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/makibytes/seltest/broker/backends"
	"github.com/makibytes/seltest/log"
)

// Admin implements backends.Admin with the Kafka admin protocol. A queue's
// backlog is the distance between the topic's end and the offsets
// committed by QueueGroup, and purging commits the group to the end.
type Admin struct {
	client *kafkago.Client
}

// NewAdmin creates an admin client for connArgs
func NewAdmin(connArgs ConnArguments) (*Admin, error) {
	ep, err := parseEndpoint(connArgs)
	if err != nil {
		return nil, err
	}
	return &Admin{client: &kafkago.Client{
		Addr:      kafkago.TCP(ep.brokers...),
		Timeout:   30 * time.Second,
		Transport: ep.transport(),
	}}, nil
}

// CreateQueue implements backends.Admin. An existing topic is not an error.
func (a *Admin) CreateQueue(ctx context.Context, spec backends.QueueSpec) error {
	topic := topicName(spec.Name)
	log.Verbose("creating topic %s...", topic)
	resp, err := a.client.CreateTopics(ctx, &kafkago.CreateTopicsRequest{
		Topics: []kafkago.TopicConfig{{
			Topic:             topic,
			NumPartitions:     1,
			ReplicationFactor: 1,
		}},
	})
	if err != nil {
		return err
	}
	if err := resp.Errors[topic]; err != nil && !errors.Is(err, kafkago.TopicAlreadyExists) {
		return fmt.Errorf("%w: creating topic %s: %v", backends.ErrOperationFailed, topic, err)
	}
	return nil
}

// RemoveQueue implements backends.Admin
func (a *Admin) RemoveQueue(ctx context.Context, name string) error {
	topic := topicName(name)
	log.Verbose("deleting topic %s...", topic)
	resp, err := a.client.DeleteTopics(ctx, &kafkago.DeleteTopicsRequest{Topics: []string{topic}})
	if err != nil {
		return err
	}
	if err := resp.Errors[topic]; err != nil {
		return fmt.Errorf("%w: deleting topic %s: %v", backends.ErrOperationFailed, topic, err)
	}
	return nil
}

// PurgeQueue implements backends.Admin. The commit is rejected while a
// member of QueueGroup is connected.
func (a *Admin) PurgeQueue(ctx context.Context, name string) (int64, error) {
	topic := topicName(name)
	positions, err := a.positions(ctx, topic)
	if err != nil {
		return 0, err
	}

	var backlog int64
	commits := make([]kafkago.OffsetCommit, 0, len(positions))
	for _, p := range positions {
		backlog += p.backlog()
		commits = append(commits, kafkago.OffsetCommit{Partition: p.partition, Offset: p.last})
	}
	if backlog == 0 {
		return 0, nil
	}

	resp, err := a.client.OffsetCommit(ctx, &kafkago.OffsetCommitRequest{
		GroupID:      QueueGroup,
		GenerationID: -1,
		Topics:       map[string][]kafkago.OffsetCommit{topic: commits},
	})
	if err != nil {
		return 0, err
	}
	for _, p := range resp.Topics[topic] {
		if p.Error != nil {
			return 0, fmt.Errorf("%w: committing %s/%d: %v", backends.ErrOperationFailed, topic, p.Partition, p.Error)
		}
	}
	return backlog, nil
}

// QueueStats implements backends.StatsReader
func (a *Admin) QueueStats(ctx context.Context, name string) (*backends.QueueStats, error) {
	topic := topicName(name)
	positions, err := a.positions(ctx, topic)
	if err != nil {
		return nil, err
	}

	stats := &backends.QueueStats{Name: name}
	for _, p := range positions {
		stats.MessageCount += p.backlog()
		stats.EnqueueCount += p.last - p.first
		stats.DequeueCount += p.consumed() - p.first
	}

	groups, err := a.client.DescribeGroups(ctx, &kafkago.DescribeGroupsRequest{GroupIDs: []string{QueueGroup}})
	if err == nil && len(groups.Groups) > 0 {
		stats.ConsumerCount = len(groups.Groups[0].Members)
	}
	return stats, nil
}

// Close implements backends.Admin
func (a *Admin) Close() error {
	return nil
}

// position is where QueueGroup stands in one partition
type position struct {
	partition int
	first     int64
	last      int64
	committed int64 // -1 when the group never committed
}

func (p position) consumed() int64 {
	if p.committed < p.first {
		return p.first
	}
	return p.committed
}

func (p position) backlog() int64 {
	return p.last - p.consumed()
}

func (a *Admin) positions(ctx context.Context, topic string) ([]position, error) {
	meta, err := a.client.Metadata(ctx, &kafkago.MetadataRequest{Topics: []string{topic}})
	if err != nil {
		return nil, err
	}
	if len(meta.Topics) == 0 {
		return nil, fmt.Errorf("%w: topic %s not found", backends.ErrOperationFailed, topic)
	}
	if err := meta.Topics[0].Error; err != nil {
		return nil, fmt.Errorf("%w: topic %s: %v", backends.ErrOperationFailed, topic, err)
	}

	var partitions []int
	var requests []kafkago.OffsetRequest
	for _, p := range meta.Topics[0].Partitions {
		partitions = append(partitions, p.ID)
		requests = append(requests, kafkago.FirstOffsetOf(p.ID), kafkago.LastOffsetOf(p.ID))
	}

	offsets, err := a.client.ListOffsets(ctx, &kafkago.ListOffsetsRequest{
		Topics: map[string][]kafkago.OffsetRequest{topic: requests},
	})
	if err != nil {
		return nil, err
	}
	committed, err := a.client.OffsetFetch(ctx, &kafkago.OffsetFetchRequest{
		GroupID: QueueGroup,
		Topics:  map[string][]int{topic: partitions},
	})
	if err != nil {
		return nil, err
	}

	byPartition := make(map[int]int64)
	for _, c := range committed.Topics[topic] {
		byPartition[c.Partition] = c.CommittedOffset
	}

	var result []position
	for _, o := range offsets.Topics[topic] {
		if o.Error != nil {
			return nil, fmt.Errorf("%w: offsets of %s/%d: %v", backends.ErrOperationFailed, topic, o.Partition, o.Error)
		}
		c, ok := byPartition[o.Partition]
		if !ok {
			c = -1
		}
		result = append(result, position{partition: o.Partition, first: o.FirstOffset, last: o.LastOffset, committed: c})
	}
	return result, nil
}
