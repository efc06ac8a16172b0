package rabbitmq

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

// ManagementArgs holds parameters for RabbitMQ management operations
type ManagementArgs struct {
	Server   string // AMQP server URL, used to derive URL when it is empty
	URL      string // e.g. http://localhost:15672/api
	User     string
	Password string
	Vhost    string
}

// Admin implements backends.Admin over the RabbitMQ Management HTTP API
type Admin struct {
	baseURL  string
	user     string
	password string
	vhost    string
	client   *http.Client
}

// NewAdmin builds a management client for args
func NewAdmin(args ManagementArgs) (*Admin, error) {
	base := args.URL
	if base == "" {
		var err error
		base, err = managementURL(args.Server)
		if err != nil {
			return nil, err
		}
	}
	vhost := args.Vhost
	if vhost == "" {
		vhost = "/"
	}
	return &Admin{
		baseURL:  strings.TrimSuffix(base, "/"),
		user:     args.User,
		password: args.Password,
		vhost:    vhost,
		client:   &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// managementURL converts the AMQP server URL to RabbitMQ Management API URL
func managementURL(amqpServer string) (string, error) {
	u, err := url.Parse(amqpServer)
	if err != nil {
		return "", err
	}
	host := u.Hostname()
	// RabbitMQ management API defaults to port 15672
	return fmt.Sprintf("http://%s:15672/api", host), nil
}

func (a *Admin) queuePath(queue string) string {
	return fmt.Sprintf("/queues/%s/%s", url.PathEscape(a.vhost), url.PathEscape(queue))
}

func (a *Admin) request(ctx context.Context, method, path string, payload any) ([]byte, int, error) {
	fullURL := a.baseURL + path
	log.Verbose("requesting %s %s", method, fullURL)

	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, 0, err
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reqBody)
	if err != nil {
		return nil, 0, err
	}
	if a.user != "" {
		req.SetBasicAuth(a.user, a.password)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("management API request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}

	if resp.StatusCode >= 300 {
		return body, resp.StatusCode, fmt.Errorf("%w: management API returned status %d: %s",
			backends.ErrOperationFailed, resp.StatusCode, string(body))
	}

	return body, resp.StatusCode, nil
}

// CreateQueue implements backends.Admin. Declaring an existing queue with the
// same arguments succeeds.
func (a *Admin) CreateQueue(ctx context.Context, spec backends.QueueSpec) error {
	_, _, err := a.request(ctx, http.MethodPut, a.queuePath(spec.Name), map[string]any{
		"durable":     spec.Durable,
		"auto_delete": false,
	})
	return err
}

// RemoveQueue implements backends.Admin
func (a *Admin) RemoveQueue(ctx context.Context, name string) error {
	_, _, err := a.request(ctx, http.MethodDelete, a.queuePath(name), nil)
	return err
}

// PurgeQueue implements backends.Admin. The API does not report how many
// messages were removed, so the count is read just before purging.
func (a *Admin) PurgeQueue(ctx context.Context, name string) (int64, error) {
	var count int64
	if stats, err := a.QueueStats(ctx, name); err == nil {
		count = stats.MessageCount
	}

	_, _, err := a.request(ctx, http.MethodDelete, a.queuePath(name)+"/contents", nil)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// QueueStats implements backends.StatsReader
func (a *Admin) QueueStats(ctx context.Context, name string) (*backends.QueueStats, error) {
	body, _, err := a.request(ctx, http.MethodGet, a.queuePath(name), nil)
	if err != nil {
		return nil, err
	}

	var raw struct {
		Name         string `json:"name"`
		Messages     int64  `json:"messages"`
		Consumers    int    `json:"consumers"`
		MessageStats struct {
			Publish    int64 `json:"publish"`
			DeliverGet int64 `json:"deliver_get"`
		} `json:"message_stats"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse queue stats: %w", err)
	}

	return &backends.QueueStats{
		Name:          raw.Name,
		MessageCount:  raw.Messages,
		ConsumerCount: raw.Consumers,
		EnqueueCount:  raw.MessageStats.Publish,
		DequeueCount:  raw.MessageStats.DeliverGet,
	}, nil
}

// Close implements backends.Admin
func (a *Admin) Close() error {
	a.client.CloseIdleConnections()
	return nil
}
