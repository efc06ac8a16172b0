package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/makibytes/seltest/broker/backends"
)

func newProvisioned(t *testing.T, names ...string) (*Broker, *Client, *Admin) {
	t.Helper()
	b := NewBroker()
	admin := b.Admin()
	for _, name := range names {
		require.NoError(t, admin.CreateQueue(context.Background(), backends.QueueSpec{Name: name}))
	}
	return b, b.Client(), admin
}

func TestSendReceive(t *testing.T) {
	ctx := context.Background()
	_, client, _ := newProvisioned(t, "q")

	require.NoError(t, client.Send(ctx, backends.SendOptions{
		Queue:      "q",
		Message:    []byte("hello"),
		ReplyTo:    "r",
		Properties: map[string]any{"MessageFormat": "Version 1.1"},
	}))

	msg, err := client.Receive(ctx, backends.ReceiveOptions{Queue: "q", Timeout: time.Second, Acknowledge: true})
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, "hello", string(msg.Data))
	assert.Equal(t, "r", msg.ReplyTo)
	assert.NotEmpty(t, msg.MessageID)
	v, ok := msg.StringProperty("MessageFormat")
	assert.True(t, ok)
	assert.Equal(t, "Version 1.1", v)
}

func TestReceiveTimeoutReturnsNil(t *testing.T) {
	_, client, _ := newProvisioned(t, "q")

	start := time.Now()
	msg, err := client.Receive(context.Background(), backends.ReceiveOptions{Queue: "q", Timeout: 50 * time.Millisecond})
	require.NoError(t, err)
	assert.Nil(t, msg)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestReceiveWithSelectorSkipsOtherMessages(t *testing.T) {
	ctx := context.Background()
	b, client, _ := newProvisioned(t, "q")

	for _, v := range []string{"Version 1.0", "Version 1.1"} {
		require.NoError(t, client.Send(ctx, backends.SendOptions{
			Queue:      "q",
			Message:    []byte(v),
			Properties: map[string]any{"MessageFormat": v},
		}))
	}

	msg, err := client.Receive(ctx, backends.ReceiveOptions{
		Queue:       "q",
		Timeout:     time.Second,
		Acknowledge: true,
		Selector:    "MessageFormat = 'Version 1.1'",
	})
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, "Version 1.1", string(msg.Data))
	assert.Equal(t, 1, b.Depth("q"), "non-matching message stays on the queue")
}

func TestBrowseLeavesMessage(t *testing.T) {
	ctx := context.Background()
	b, client, _ := newProvisioned(t, "q")
	require.NoError(t, client.Send(ctx, backends.SendOptions{Queue: "q", Message: []byte("x")}))

	msg, err := client.Receive(ctx, backends.ReceiveOptions{Queue: "q", Timeout: time.Second})
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, 1, b.Depth("q"))
}

func TestReceiveWakesOnSend(t *testing.T) {
	ctx := context.Background()
	_, client, _ := newProvisioned(t, "q")

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = client.Send(ctx, backends.SendOptions{Queue: "q", Message: []byte("late")})
	}()

	msg, err := client.Receive(ctx, backends.ReceiveOptions{Queue: "q", Timeout: 2 * time.Second, Acknowledge: true})
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, "late", string(msg.Data))
}

func TestReceiveCancelled(t *testing.T) {
	_, client, _ := newProvisioned(t, "q")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Receive(ctx, backends.ReceiveOptions{Queue: "q", Wait: true})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMissingQueue(t *testing.T) {
	ctx := context.Background()
	_, client, admin := newProvisioned(t)

	err := client.Send(ctx, backends.SendOptions{Queue: "nope"})
	assert.True(t, errors.Is(err, ErrQueueNotFound))

	_, err = admin.PurgeQueue(ctx, "nope")
	assert.ErrorIs(t, err, ErrQueueNotFound)
}

func TestAutoCreate(t *testing.T) {
	b := NewBroker(AutoCreate())
	require.NoError(t, b.Client().Send(context.Background(), backends.SendOptions{Queue: "fresh"}))
	assert.Equal(t, []string{"fresh"}, b.Queues())
}

func TestAdminLifecycle(t *testing.T) {
	ctx := context.Background()
	b, client, admin := newProvisioned(t, "q")

	// creating twice keeps the queue and its messages
	require.NoError(t, client.Send(ctx, backends.SendOptions{Queue: "q"}))
	require.NoError(t, admin.CreateQueue(ctx, backends.QueueSpec{Name: "q"}))
	assert.Equal(t, 1, b.Depth("q"))

	require.NoError(t, client.Send(ctx, backends.SendOptions{Queue: "q"}))
	stats, err := admin.QueueStats(ctx, "q")
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.MessageCount)
	assert.Equal(t, int64(2), stats.EnqueueCount)

	n, err := admin.PurgeQueue(ctx, "q")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, 0, b.Depth("q"))

	require.NoError(t, admin.RemoveQueue(ctx, "q"))
	assert.Equal(t, -1, b.Depth("q"))
	require.NoError(t, admin.RemoveQueue(ctx, "q"))
}

func TestClosedClient(t *testing.T) {
	_, client, admin := newProvisioned(t, "q")
	require.NoError(t, client.Close())
	require.NoError(t, admin.Close())

	assert.Error(t, client.Send(context.Background(), backends.SendOptions{Queue: "q"}))
	_, err := admin.PurgeQueue(context.Background(), "q")
	assert.Error(t, err)
}

func TestSupportsSelectors(t *testing.T) {
	assert.True(t, backends.SupportsSelectors(NewBroker().Client()))
}
