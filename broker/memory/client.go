package memory

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/makibytes/seltest/broker/backends"
)

var errClosed = errors.New("connection closed")

// Client implements backends.QueueBackend against a Broker.
type Client struct {
	broker *Broker
	closed atomic.Bool
}

// Client opens a messaging connection to b.
func (b *Broker) Client() *Client {
	return &Client{broker: b}
}

// Send implements backends.QueueBackend
func (c *Client) Send(ctx context.Context, opts backends.SendOptions) error {
	if c.closed.Load() {
		return errClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.broker.send(opts)
}

// Receive implements backends.QueueBackend
func (c *Client) Receive(ctx context.Context, opts backends.ReceiveOptions) (*backends.Message, error) {
	if c.closed.Load() {
		return nil, errClosed
	}
	return c.broker.receive(ctx, opts)
}

// SupportsSelectors implements backends.SelectorCapable
func (c *Client) SupportsSelectors() bool { return true }

// Close implements backends.QueueBackend
func (c *Client) Close() error {
	c.closed.Store(true)
	return nil
}

// Admin implements backends.Admin and backends.StatsReader against a Broker.
type Admin struct {
	broker *Broker
	closed atomic.Bool
}

// Admin opens a management connection to b.
func (b *Broker) Admin() *Admin {
	return &Admin{broker: b}
}

// CreateQueue implements backends.Admin
func (a *Admin) CreateQueue(ctx context.Context, spec backends.QueueSpec) error {
	if a.closed.Load() {
		return errClosed
	}
	a.broker.createQueue(spec.Name)
	return nil
}

// RemoveQueue implements backends.Admin
func (a *Admin) RemoveQueue(ctx context.Context, name string) error {
	if a.closed.Load() {
		return errClosed
	}
	a.broker.removeQueue(name)
	return nil
}

// PurgeQueue implements backends.Admin
func (a *Admin) PurgeQueue(ctx context.Context, name string) (int64, error) {
	if a.closed.Load() {
		return 0, errClosed
	}
	return a.broker.purge(name)
}

// QueueStats implements backends.StatsReader
func (a *Admin) QueueStats(ctx context.Context, name string) (*backends.QueueStats, error) {
	if a.closed.Load() {
		return nil, errClosed
	}
	return a.broker.stats(name)
}

// Close implements backends.Admin
func (a *Admin) Close() error {
	a.closed.Store(true)
	return nil
}
