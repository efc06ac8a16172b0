//go:build integration

package kafka

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"testing"
	"time"

	"github.com/makibytes/seltest/broker/backends"
	"github.com/makibytes/seltest/test/integration"
)

var testServer string

func TestMain(m *testing.M) {
	ctx := context.Background()
	broker, err := integration.StartKafka(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start Kafka: %v\n", err)
		os.Exit(1)
	}
	testServer = broker.URL

	code := m.Run()
	broker.Terminate(ctx)
	os.Exit(code)
}

func makeConnArgs() ConnArguments {
	return ConnArguments{Server: testServer}
}

func openQueue(context.Context) (*QueueAdapter, error) {
	return NewQueueAdapter(makeConnArgs())
}

func openAdmin(context.Context) (*Admin, error) {
	return NewAdmin(makeConnArgs())
}

func randomSuffix() string { return fmt.Sprintf("%d", rand.Int63()) } //nolint:gosec

func TestKafka_QueueSendReceive(t *testing.T) {
	if testing.Short() {
		t.Skip()
	}
	ctx := context.Background()
	queue := "seltest.it." + randomSuffix()
	admin := newAdmin(t)
	if err := admin.CreateQueue(ctx, backends.QueueSpec{Name: queue}); err != nil {
		t.Fatalf("CreateQueue: %v", err)
	}
	defer admin.RemoveQueue(ctx, queue) //nolint:errcheck

	adapter := newQueueAdapter(t)
	err := adapter.Send(ctx, backends.SendOptions{
		Queue:         queue,
		Message:       []byte("Say hello"),
		ReplyTo:       "seltest.it.replies",
		CorrelationID: "corr-1",
		Properties:    map[string]any{"MessageFormat": "Version 1.1"},
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	msg, err := adapter.Receive(ctx, backends.ReceiveOptions{
		Queue:       queue,
		Timeout:     30 * time.Second,
		Acknowledge: true,
	})
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if msg == nil {
		t.Fatal("expected a message, got none")
	}
	if string(msg.Data) != "Say hello" {
		t.Errorf("data = %q, want %q", msg.Data, "Say hello")
	}
	if msg.ReplyTo != "seltest.it.replies" {
		t.Errorf("reply-to = %q, want %q", msg.ReplyTo, "seltest.it.replies")
	}
	if got, _ := msg.StringProperty("MessageFormat"); got != "Version 1.1" {
		t.Errorf("MessageFormat = %q, want %q", got, "Version 1.1")
	}
}

func TestKafka_QueueReceive_Timeout(t *testing.T) {
	if testing.Short() {
		t.Skip()
	}
	ctx := context.Background()
	queue := "seltest.it." + randomSuffix()
	admin := newAdmin(t)
	if err := admin.CreateQueue(ctx, backends.QueueSpec{Name: queue}); err != nil {
		t.Fatalf("CreateQueue: %v", err)
	}
	defer admin.RemoveQueue(ctx, queue) //nolint:errcheck

	msg, err := newQueueAdapter(t).Receive(ctx, backends.ReceiveOptions{
		Queue:       queue,
		Timeout:     time.Second,
		Acknowledge: true,
	})
	if err != nil {
		t.Fatalf("expected no error on timeout, got: %v", err)
	}
	if msg != nil {
		t.Fatalf("expected no message, got %q", msg.Data)
	}
}

func TestKafka_Purge(t *testing.T) {
	if testing.Short() {
		t.Skip()
	}
	ctx := context.Background()
	queue := "seltest.it." + randomSuffix()
	admin := newAdmin(t)
	if err := admin.CreateQueue(ctx, backends.QueueSpec{Name: queue}); err != nil {
		t.Fatalf("CreateQueue: %v", err)
	}
	defer admin.RemoveQueue(ctx, queue) //nolint:errcheck

	adapter := newQueueAdapter(t)
	for i := 0; i < 3; i++ {
		if err := adapter.Send(ctx, backends.SendOptions{Queue: queue, Message: []byte("stale")}); err != nil {
			t.Fatalf("Send: %v", err)
		}
	}

	n, err := admin.PurgeQueue(ctx, queue)
	if err != nil {
		t.Fatalf("PurgeQueue: %v", err)
	}
	if n != 3 {
		t.Errorf("purged %d messages, want 3", n)
	}

	msg, err := adapter.Receive(ctx, backends.ReceiveOptions{Queue: queue, Timeout: time.Second, Acknowledge: true})
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if msg != nil {
		t.Errorf("queue not empty after purge, got %q", msg.Data)
	}
}

func TestKafka_SelectorScenarios(t *testing.T) {
	if testing.Short() {
		t.Skip()
	}
	cfg := integration.Suite("seltest.it." + randomSuffix())
	cfg.TimeoutFactor = 600

	report, err := integration.RunScenarios(context.Background(), integration.Opener{
		Queue: func(ctx context.Context) (backends.QueueBackend, error) { return openQueue(ctx) },
		Admin: func(ctx context.Context) (backends.Admin, error) { return openAdmin(ctx) },
	}, cfg)
	if err != nil {
		t.Fatalf("RunScenarios: %v", err)
	}
	for _, res := range report.Results {
		if !res.Passed() {
			t.Errorf("%s: %s %v", res.Scenario, res.Failure, res.Err)
		}
	}
}

func newQueueAdapter(t *testing.T) backends.QueueBackend {
	t.Helper()
	a, err := openQueue(context.Background())
	if err != nil {
		t.Fatalf("open queue adapter: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func newAdmin(t *testing.T) backends.Admin {
	t.Helper()
	a, err := openAdmin(context.Background())
	if err != nil {
		t.Fatalf("open admin: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}
