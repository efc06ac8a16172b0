package pulsar

import (
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

// DefaultAdminPort is the HTTP port of the Pulsar admin REST API
const DefaultAdminPort = 8080

// ManagementArgs holds parameters for the admin REST API
type ManagementArgs struct {
	Server   string // broker URL, used to derive URL when it is empty
	URL      string // e.g. http://localhost:8080
	Password string // sent as bearer token when set
}

// Admin implements backends.Admin over the Pulsar admin REST API. Queues
// live in the public/default namespace.
type Admin struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewAdmin builds an admin client for args
func NewAdmin(args ManagementArgs) *Admin {
	base := args.URL
	if base == "" {
		base = buildAdminURL(args.Server, DefaultAdminPort)
	}
	return &Admin{
		baseURL: strings.TrimSuffix(base, "/"),
		token:   args.Password,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (a *Admin) topicPath(queue string) string {
	return "/admin/v2/persistent/public/default/" + topicLocalName(queue)
}

func (a *Admin) subscriptionPath(queue string) string {
	return a.topicPath(queue) + "/subscription/" + QueueSubscription
}

func (a *Admin) request(ctx context.Context, method, path string) ([]byte, int, error) {
	fullURL := a.baseURL + path
	log.Verbose("requesting %s %s", method, fullURL)

	req, err := http.NewRequestWithContext(ctx, method, fullURL, nil)
	if err != nil {
		return nil, 0, err
	}
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("querying Pulsar admin API: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	if resp.StatusCode >= 300 {
		return body, resp.StatusCode, fmt.Errorf("%w: admin API returned %d: %s",
			backends.ErrOperationFailed, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, resp.StatusCode, nil
}

// CreateQueue implements backends.Admin. It creates the topic and the
// queue subscription, so messages sent before the first receive are kept.
// Either existing already is not an error.
func (a *Admin) CreateQueue(ctx context.Context, spec backends.QueueSpec) error {
	for _, path := range []string{a.topicPath(spec.Name), a.subscriptionPath(spec.Name)} {
		if _, status, err := a.request(ctx, http.MethodPut, path); err != nil && status != http.StatusConflict {
			return err
		}
	}
	return nil
}

// RemoveQueue implements backends.Admin
func (a *Admin) RemoveQueue(ctx context.Context, name string) error {
	_, _, err := a.request(ctx, http.MethodDelete, a.topicPath(name)+"?force=true")
	return err
}

// PurgeQueue implements backends.Admin by skipping the subscription's
// whole backlog. The count is read just before skipping.
func (a *Admin) PurgeQueue(ctx context.Context, name string) (int64, error) {
	var count int64
	if stats, err := a.QueueStats(ctx, name); err == nil {
		count = stats.MessageCount
	}

	if _, _, err := a.request(ctx, http.MethodPost, a.subscriptionPath(name)+"/skip_all"); err != nil {
		return 0, err
	}
	return count, nil
}

// QueueStats implements backends.StatsReader
func (a *Admin) QueueStats(ctx context.Context, name string) (*backends.QueueStats, error) {
	body, _, err := a.request(ctx, http.MethodGet, a.topicPath(name)+"/stats")
	if err != nil {
		return nil, err
	}

	var raw struct {
		MsgInCounter  int64 `json:"msgInCounter"`
		MsgOutCounter int64 `json:"msgOutCounter"`
		Subscriptions map[string]struct {
			MsgBacklog int64             `json:"msgBacklog"`
			Consumers  []json.RawMessage `json:"consumers"`
		} `json:"subscriptions"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decoding admin response: %w", err)
	}

	sub := raw.Subscriptions[QueueSubscription]
	return &backends.QueueStats{
		Name:          name,
		MessageCount:  sub.MsgBacklog,
		ConsumerCount: len(sub.Consumers),
		EnqueueCount:  raw.MsgInCounter,
		DequeueCount:  raw.MsgOutCounter,
	}, nil
}

// Close implements backends.Admin
func (a *Admin) Close() error {
	a.client.CloseIdleConnections()
	return nil
}

// buildAdminURL derives the Pulsar admin URL from the broker URL.
// pulsar://host:6650 → http://host:8080
// pulsar+ssl://host:6651 → https://host:8443
func buildAdminURL(brokerURL string, adminPort int) string {
	u, err := url.Parse(brokerURL)
	if err != nil {
		return fmt.Sprintf("http://localhost:%d", adminPort)
	}

	scheme := "http"
	if strings.Contains(u.Scheme, "ssl") || strings.Contains(u.Scheme, "tls") {
		scheme = "https"
		if adminPort == DefaultAdminPort {
			adminPort = 8443
		}
	}

	host := u.Hostname()
	if host == "" {
		host = "localhost"
	}

	return fmt.Sprintf("%s://%s:%d", scheme, host, adminPort)
}
