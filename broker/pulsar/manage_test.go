package pulsar

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/makibytes/seltest/broker/backends"
)

type recorded struct {
	method string
	path   string
	query  string
	auth   string
}

func fakeAdmin(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (*Admin, *[]recorded) {
	t.Helper()
	var mu sync.Mutex
	var calls []recorded
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls = append(calls, recorded{r.Method, r.URL.Path, r.URL.RawQuery, r.Header.Get("Authorization")})
		mu.Unlock()
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return NewAdmin(ManagementArgs{URL: srv.URL + "/", Password: "tok"}), &calls
}

const statsBody = `{
  "msgInCounter": 7,
  "msgOutCounter": 4,
  "subscriptions": {
    "seltest-queue": {"msgBacklog": 3, "consumers": [{}, {}]},
    "other": {"msgBacklog": 99}
  }
}`

func TestCreateQueueCreatesTopicAndSubscription(t *testing.T) {
	admin, calls := fakeAdmin(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	})

	require.NoError(t, admin.CreateQueue(context.Background(), backends.QueueSpec{Name: "ejb2x/queue"}))
	require.Len(t, *calls, 2)
	assert.Equal(t, http.MethodPut, (*calls)[0].method)
	assert.Equal(t, "/admin/v2/persistent/public/default/ejb2x.queue", (*calls)[0].path)
	assert.Equal(t, "/admin/v2/persistent/public/default/ejb2x.queue/subscription/seltest-queue", (*calls)[1].path)
	assert.Equal(t, "Bearer tok", (*calls)[0].auth)
}

func TestCreateQueueFails(t *testing.T) {
	admin, _ := fakeAdmin(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not authorized", http.StatusUnauthorized)
	})

	err := admin.CreateQueue(context.Background(), backends.QueueSpec{Name: "q"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, backends.ErrOperationFailed))
}

func TestRemoveQueueForcesDeletion(t *testing.T) {
	admin, calls := fakeAdmin(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, admin.RemoveQueue(context.Background(), "q"))
	require.Len(t, *calls, 1)
	assert.Equal(t, http.MethodDelete, (*calls)[0].method)
	assert.Equal(t, "force=true", (*calls)[0].query)
}

func TestPurgeQueueReportsBacklog(t *testing.T) {
	admin, calls := fakeAdmin(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			_, _ = w.Write([]byte(statsBody))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	n, err := admin.PurgeQueue(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	require.Len(t, *calls, 2)
	assert.Equal(t, http.MethodPost, (*calls)[1].method)
	assert.Equal(t, "/admin/v2/persistent/public/default/q/subscription/seltest-queue/skip_all", (*calls)[1].path)
}

func TestQueueStats(t *testing.T) {
	admin, _ := fakeAdmin(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(statsBody))
	})

	stats, err := admin.QueueStats(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, &backends.QueueStats{
		Name:          "q",
		MessageCount:  3,
		ConsumerCount: 2,
		EnqueueCount:  7,
		DequeueCount:  4,
	}, stats)
}

func TestBuildAdminURL(t *testing.T) {
	assert.Equal(t, "http://broker:8080", buildAdminURL("pulsar://broker:6650", DefaultAdminPort))
	assert.Equal(t, "https://broker:8443", buildAdminURL("pulsar+ssl://broker:6651", DefaultAdminPort))
	assert.Equal(t, "http://localhost:8080", buildAdminURL("", DefaultAdminPort))
}

func TestQueueTopic(t *testing.T) {
	assert.Equal(t, "persistent://public/default/ejb2x.replyQueueA", queueTopic("ejb2x/replyQueueA"))
}

func TestPropertiesRoundTripThroughSendOptions(t *testing.T) {
	props := toProperties(backends.SendOptions{
		CorrelationID: "c",
		ReplyTo:       "r",
		ContentType:   "text/plain",
		Properties:    map[string]any{"MessageFormat": "Version 1.1", "n": 3},
	})
	assert.Equal(t, map[string]string{
		"correlation-id": "c",
		"reply-to":       "r",
		"content-type":   "text/plain",
		"MessageFormat":  "Version 1.1",
		"n":              "3",
	}, props)
}
