package artemis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/makibytes/seltest/broker/backends"
	"github.com/makibytes/seltest/log"
)

// QueueStats is the common statistics type
type QueueStats = backends.QueueStats

// JolokiaArgs holds parameters for management over the Jolokia HTTP bridge
type JolokiaArgs struct {
	Server     string // AMQP server URL, used to derive URL when it is empty
	URL        string // e.g. http://localhost:8161/console/jolokia
	User       string
	Password   string
	BrokerName string
	Options    Options
}

// JolokiaAdmin implements backends.Admin through the broker's Jolokia endpoint.
// It serves brokers whose management address is not reachable over AMQP.
type JolokiaAdmin struct {
	baseURL  string
	user     string
	password string
	broker   string
	opts     Options
	client   *http.Client
}

// NewJolokiaAdmin builds an admin for args
func NewJolokiaAdmin(args JolokiaArgs) (*JolokiaAdmin, error) {
	base := args.URL
	if base == "" {
		var err error
		base, err = jolokiaURL(args.Server)
		if err != nil {
			return nil, err
		}
	}
	broker := args.BrokerName
	if broker == "" {
		broker = "0.0.0.0"
	}
	return &JolokiaAdmin{
		baseURL:  strings.TrimSuffix(base, "/"),
		user:     args.User,
		password: args.Password,
		broker:   broker,
		opts:     args.Options.withDefaults(),
		client:   &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// jolokiaURL converts the AMQP server URL to Jolokia HTTP URL
func jolokiaURL(amqpServer string) (string, error) {
	u, err := url.Parse(amqpServer)
	if err != nil {
		return "", err
	}
	host := u.Hostname()
	// Artemis management console defaults to port 8161
	return fmt.Sprintf("http://%s:8161/console/jolokia", host), nil
}

func (j *JolokiaAdmin) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	fullURL := j.baseURL + path
	log.Verbose("requesting %s %s", method, fullURL)

	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reqBody)
	if err != nil {
		return nil, err
	}
	if j.user != "" {
		req.SetBasicAuth(j.user, j.password)
	}
	req.Header.Set("Origin", j.baseURL)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := j.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("management API request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("management API returned status %d: %s", resp.StatusCode, string(body))
	}

	return body, nil
}

// jolokiaResponse is the envelope of every Jolokia reply. Jolokia reports
// MBean failures with HTTP 200 and a non-200 status field.
type jolokiaResponse struct {
	Status int             `json:"status"`
	Error  string          `json:"error"`
	Value  json.RawMessage `json:"value"`
}

func (j *JolokiaAdmin) exec(ctx context.Context, mbean, operation string, args ...any) (json.RawMessage, error) {
	if args == nil {
		args = []any{}
	}
	body, err := j.do(ctx, http.MethodPost, "/", map[string]any{
		"type":      "exec",
		"mbean":     mbean,
		"operation": operation,
		"arguments": args,
	})
	if err != nil {
		return nil, err
	}
	return decodeJolokia(body, mbean, operation)
}

func decodeJolokia(body []byte, mbean, operation string) (json.RawMessage, error) {
	var result jolokiaResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse Jolokia response: %w", err)
	}
	if result.Status != 0 && result.Status != http.StatusOK {
		return nil, &OperationError{Resource: mbean, Operation: operation, Reply: result.Error}
	}
	return result.Value, nil
}

func (j *JolokiaAdmin) brokerMBean() string {
	return fmt.Sprintf("org.apache.activemq.artemis:broker=%q", j.broker)
}

func (j *JolokiaAdmin) queueMBean(queue string) string {
	address := j.opts.Address(queue)
	return fmt.Sprintf("org.apache.activemq.artemis:broker=%q,component=addresses,address=%q,subcomponent=queues,routing-type=\"anycast\",queue=%q",
		j.broker, address, address)
}

// CreateQueue implements backends.Admin
func (j *JolokiaAdmin) CreateQueue(ctx context.Context, spec backends.QueueSpec) error {
	address := j.opts.Address(spec.Name)
	cfg, err := json.Marshal(queueConfiguration{
		Name:        address,
		Address:     address,
		RoutingType: "ANYCAST",
		Durable:     spec.Durable,
	})
	if err != nil {
		return err
	}
	_, err = j.exec(ctx, j.brokerMBean(), "createQueue(java.lang.String,boolean)", string(cfg), true)
	return err
}

// RemoveQueue implements backends.Admin
func (j *JolokiaAdmin) RemoveQueue(ctx context.Context, name string) error {
	_, err := j.exec(ctx, j.brokerMBean(), "destroyQueue(java.lang.String,boolean,boolean)", j.opts.Address(name), true, true)
	return err
}

// PurgeQueue implements backends.Admin
func (j *JolokiaAdmin) PurgeQueue(ctx context.Context, name string) (int64, error) {
	raw, err := j.exec(ctx, j.queueMBean(name), "removeAllMessages()")
	if err != nil {
		return 0, err
	}
	return resultInt(raw)
}

// QueueStats implements backends.StatsReader
func (j *JolokiaAdmin) QueueStats(ctx context.Context, name string) (*QueueStats, error) {
	body, err := j.do(ctx, http.MethodPost, "/", map[string]any{
		"type":  "read",
		"mbean": j.queueMBean(name),
	})
	if err != nil {
		return nil, err
	}
	raw, err := decodeJolokia(body, j.queueMBean(name), "read")
	if err != nil {
		return nil, err
	}

	var attrs map[string]any
	if err := json.Unmarshal(raw, &attrs); err != nil {
		return nil, fmt.Errorf("failed to parse stats response: %w", err)
	}

	stats := &QueueStats{Name: name}
	if v, ok := attrs["MessageCount"].(float64); ok {
		stats.MessageCount = int64(v)
	}
	if v, ok := attrs["ConsumerCount"].(float64); ok {
		stats.ConsumerCount = int(v)
	}
	if v, ok := attrs["MessagesAdded"].(float64); ok {
		stats.EnqueueCount = int64(v)
	}
	if v, ok := attrs["MessagesAcknowledged"].(float64); ok {
		stats.DequeueCount = int64(v)
	}

	return stats, nil
}

// Close implements backends.Admin
func (j *JolokiaAdmin) Close() error {
	j.client.CloseIdleConnections()
	return nil
}
