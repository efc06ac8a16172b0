package artemis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Azure/go-amqp"
	"github.com/makibytes/seltest/broker/amqpcommon"
	"github.com/makibytes/seltest/broker/backends"
	"github.com/makibytes/seltest/log"
)

// OperationError reports a management reply whose success flag was false
type OperationError struct {
	Resource  string
	Operation string
	Reply     string
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("management operation %s on %s failed: %s", e.Operation, e.Resource, e.Reply)
}

func (e *OperationError) Unwrap() error { return backends.ErrOperationFailed }

// Invocation is one management request: an operation or an attribute read
// on a named resource.
type Invocation struct {
	Resource  string
	Operation string
	Attribute string
	Params    []any
}

// Message encodes the invocation the way the broker's management service
// expects: resource and operation as application properties, parameters as
// a JSON array in an AMQP string value.
func (inv Invocation) Message() (*amqp.Message, error) {
	params := inv.Params
	if params == nil {
		params = []any{}
	}
	body, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encoding parameters: %w", err)
	}

	props := map[string]any{propResourceName: inv.Resource}
	if inv.Operation != "" {
		props[propOperationName] = inv.Operation
	} else {
		props[propAttribute] = inv.Attribute
	}

	return &amqp.Message{
		ApplicationProperties: props,
		Value:                 string(body),
	}, nil
}

func (inv Invocation) name() string {
	if inv.Operation != "" {
		return inv.Operation
	}
	return inv.Attribute
}

// ManagementClient talks to the broker's management address over AMQP.
// Each invocation is its own short request/reply conversation.
type ManagementClient struct {
	opts       Options
	connection *amqp.Conn
	session    *amqp.Session
}

// NewManagementClient connects to the broker for management requests
func NewManagementClient(ctx context.Context, connArgs ConnArguments, opts Options) (*ManagementClient, error) {
	connection, session, err := Connect(ctx, connArgs)
	if err != nil {
		return nil, err
	}

	return &ManagementClient{
		opts:       opts.withDefaults(),
		connection: connection,
		session:    session,
	}, nil
}

// Invoke sends inv and waits for its reply. The wait is bounded by ctx only;
// callers are expected to pass a deadline.
func (c *ManagementClient) Invoke(ctx context.Context, inv Invocation) (json.RawMessage, error) {
	request, err := inv.Message()
	if err != nil {
		return nil, err
	}

	requestor, err := amqpcommon.NewRequestor(ctx, c.session, c.opts.ManagementAddress)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := requestor.Close(context.WithoutCancel(ctx)); err != nil {
			log.Verbose("closing requestor: %s", err)
		}
	}()

	log.Verbose("invoking %s on %s", inv.name(), inv.Resource)
	reply, err := requestor.Request(ctx, request)
	if err != nil {
		return nil, err
	}

	return decodeReply(inv, reply)
}

func decodeReply(inv Invocation, reply *amqp.Message) (json.RawMessage, error) {
	body := amqpcommon.Body(reply)
	if !succeeded(reply) {
		return nil, &OperationError{
			Resource:  inv.Resource,
			Operation: inv.name(),
			Reply:     strings.TrimSpace(string(body)),
		}
	}
	return firstResult(body)
}

func succeeded(reply *amqp.Message) bool {
	switch v := reply.ApplicationProperties[propOperationSucceeded].(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(v, "true")
	default:
		return false
	}
}

// firstResult unwraps the one-element JSON array the broker returns. Empty
// bodies (void operations) yield nil.
func firstResult(body []byte) (json.RawMessage, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, nil
	}
	var results []json.RawMessage
	if err := json.Unmarshal(body, &results); err != nil {
		// Some brokers answer attribute reads with a bare value
		return json.RawMessage(body), nil
	}
	if len(results) == 0 {
		return nil, nil
	}
	return results[0], nil
}

func resultInt(raw json.RawMessage) (int64, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		var s string
		if err2 := json.Unmarshal(raw, &s); err2 != nil {
			return 0, fmt.Errorf("unexpected result %s: %w", string(raw), err)
		}
		n = json.Number(s)
	}
	if i, err := n.Int64(); err == nil {
		return i, nil
	}
	f, err := n.Float64()
	if err != nil {
		return 0, fmt.Errorf("unexpected result %s: %w", string(raw), err)
	}
	return int64(f), nil
}

// queueConfiguration is the JSON form of a queue definition accepted by
// the broker's createQueue(String, boolean) operation.
type queueConfiguration struct {
	Name        string `json:"name"`
	Address     string `json:"address"`
	RoutingType string `json:"routing-type"`
	Durable     bool   `json:"durable"`
}

// CreateQueue implements backends.Admin. The ignoreIfExists flag keeps it
// idempotent.
func (c *ManagementClient) CreateQueue(ctx context.Context, spec backends.QueueSpec) error {
	address := c.opts.Address(spec.Name)
	cfg, err := json.Marshal(queueConfiguration{
		Name:        address,
		Address:     address,
		RoutingType: "ANYCAST",
		Durable:     spec.Durable,
	})
	if err != nil {
		return err
	}
	_, err = c.Invoke(ctx, Invocation{
		Resource:  BrokerResource,
		Operation: "createQueue",
		Params:    []any{string(cfg), true},
	})
	return err
}

// RemoveQueue implements backends.Admin, dropping consumers and the address
func (c *ManagementClient) RemoveQueue(ctx context.Context, name string) error {
	_, err := c.Invoke(ctx, Invocation{
		Resource:  BrokerResource,
		Operation: "destroyQueue",
		Params:    []any{c.opts.Address(name), true, true},
	})
	return err
}

// PurgeQueue implements backends.Admin
func (c *ManagementClient) PurgeQueue(ctx context.Context, name string) (int64, error) {
	raw, err := c.Invoke(ctx, Invocation{
		Resource:  c.opts.QueueResource(name),
		Operation: "removeAllMessages",
	})
	if err != nil {
		return 0, err
	}
	return resultInt(raw)
}

// QueueStats implements backends.StatsReader
func (c *ManagementClient) QueueStats(ctx context.Context, name string) (*QueueStats, error) {
	stats := &QueueStats{Name: name}
	fields := []struct {
		attribute string
		set       func(int64)
	}{
		{"messageCount", func(v int64) { stats.MessageCount = v }},
		{"consumerCount", func(v int64) { stats.ConsumerCount = int(v) }},
		{"messagesAdded", func(v int64) { stats.EnqueueCount = v }},
		{"messagesAcknowledged", func(v int64) { stats.DequeueCount = v }},
	}
	for _, f := range fields {
		raw, err := c.Invoke(ctx, Invocation{
			Resource:  c.opts.QueueResource(name),
			Attribute: f.attribute,
		})
		if err != nil {
			return nil, err
		}
		v, err := resultInt(raw)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", f.attribute, err)
		}
		f.set(v)
	}
	return stats, nil
}

// Close implements backends.Admin
func (c *ManagementClient) Close() error {
	if c.session != nil {
		c.session.Close(context.Background())
	}
	if c.connection != nil {
		return c.connection.Close()
	}
	return nil
}
