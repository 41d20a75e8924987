package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/notifyhub/syften-relay/internal/api"
	"github.com/notifyhub/syften-relay/internal/api/handler"
	"github.com/notifyhub/syften-relay/internal/domain"
	"github.com/notifyhub/syften-relay/internal/metrics"
	"github.com/notifyhub/syften-relay/internal/queue"
	"github.com/notifyhub/syften-relay/internal/repository"
	"github.com/notifyhub/syften-relay/internal/render"
	"github.com/notifyhub/syften-relay/internal/service"
	"github.com/notifyhub/syften-relay/internal/worker"
)

const validItem = `{"backend":"Reddit","backend_sub":"r/golang","type":"post",
	"icon_url":"https://i/x.png","timestamp":"2024-03-05T10:11:12Z",
	"item_url":"https://e.g/1","author":"a","text":"hello","title":"Hi",
	"title_type":1,"filter":"f1"}`

type recordingChannel struct {
	mu   sync.Mutex
	sent []render.Notification
}

func (c *recordingChannel) Deliver(_ context.Context, _ string, n render.Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, n)
	return nil
}

func (c *recordingChannel) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, []byte, map[string]string) (string, error) {
	return "", errors.New("topic not found")
}

func (failingPublisher) Close() error { return nil }

type brokenSubscriber struct{ err error }

func (s brokenSubscriber) Receive(context.Context, queue.Handler) error { return s.err }
func (brokenSubscriber) Close() error { return nil }

type relay struct {
	router  http.Handler
	broker  *queue.MemoryBroker
	channel *recordingChannel
	repo    *repository.MockDeliveryRepository
	sub     *worker.Subscription
}

// newRelay wires the full pipeline on the in-process queue, as main does for
// RELAY_ROLE=all and QUEUE_DRIVER=memory.
func newRelay(t *testing.T, maxBody int64) *relay {
	t.Helper()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	broker := queue.NewMemoryBroker(100, 2, []time.Duration{10 * time.Millisecond})
	m.RegisterQueueDepth(broker.Depth)

	ch := &recordingChannel{}
	repo := repository.NewMockDeliveryRepository()
	dispatcher := worker.NewDispatcher(ch, "#alerts", nil, repo, zap.NewNop(), m.DispatchHooks())
	sub := worker.Start(context.Background(), broker, dispatcher, zap.NewNop())
	t.Cleanup(func() {
		sub.Stop()
		_ = broker.Close()
	})

	router := api.NewRouter(api.Deps{
		Producer:   service.NewProducer(broker, 4, m.ProducerHooks(), zap.NewNop()),
		Deliveries: repo,
		Status: handler.RelayStatus{
			Role:         "all",
			QueueDriver:  "memory",
			Depth:        broker.Depth,
			Subscription: sub,
		},
		Gatherer:     reg,
		MaxBodyBytes: maxBody,
		Logger:       zap.NewNop(),
	})

	return &relay{router: router, broker: broker, channel: ch, repo: repo, sub: sub}
}

func post(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestIngest_ValidItemIsDelivered(t *testing.T) {
	r := newRelay(t, 0)

	rec := post(t, r.router, "/syften-webhook", "["+validItem+"]")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"received":1}`, rec.Body.String())

	require.Eventually(t, func() bool { return r.channel.count() == 1 }, 2*time.Second, 5*time.Millisecond)

	n := r.channel.sent[0]
	assert.Equal(t, "Hi – https://e.g/1", n.Text)
	require.Len(t, n.Blocks, 5)
	assert.Equal(t, render.BlockActions, n.Blocks[2].Type)

	require.Eventually(t, func() bool { return len(r.repo.All()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, domain.OutcomeDelivered, r.repo.All()[0].Outcome)
}

func TestIngest_APIRouteIsEquivalent(t *testing.T) {
	r := newRelay(t, 0)

	rec := post(t, r.router, "/api/v1/items", "["+validItem+","+validItem+"]")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"received":2}`, rec.Body.String())
	require.Eventually(t, func() bool { return r.channel.count() == 2 }, 2*time.Second, 5*time.Millisecond)
}

func TestIngest_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		status   int
		wantBody string
	}{
		{name: "empty list", body: "[]", status: http.StatusBadRequest, wantBody: `{"error":"No items provided"}`},
		{name: "no body", body: "", status: http.StatusBadRequest, wantBody: `{"error":"No body provided"}`},
		{name: "invalid json", body: "[{", status: http.StatusBadRequest, wantBody: `{"error":"Invalid JSON"}`},
		{name: "not a list", body: validItem, status: http.StatusBadRequest, wantBody: `{"error":"Payload must be a list of items"}`},
		{
			name:     "invalid element",
			body:     `[` + validItem + `,{"backend":"rss","type":"post","icon_url":"x","timestamp":"2024-01-01","item_url":"u","author":"a","text":"","title":"t","title_type":"one","filter":"f"}]`,
			status:   http.StatusUnprocessableEntity,
			wantBody: `{"error":"validation failed","details":[{"index":1,"field":"title_type","message":"must be an integer"}]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRelay(t, 0)

			rec := post(t, r.router, "/syften-webhook", tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.JSONEq(t, tt.wantBody, rec.Body.String())
			assert.Equal(t, 0, r.broker.Depth(), "nothing may be published for a rejected batch")
			assert.Never(t, func() bool { return r.channel.count() > 0 }, 50*time.Millisecond, 5*time.Millisecond)
		})
	}
}

func TestIngest_BodyTooLarge(t *testing.T) {
	r := newRelay(t, 64)

	rec := post(t, r.router, "/syften-webhook", "["+validItem+"]")
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.JSONEq(t, `{"error":"Payload too large"}`, rec.Body.String())
}

func TestIngest_PublishFailure(t *testing.T) {
	router := api.NewRouter(api.Deps{
		Producer: service.NewProducer(failingPublisher{}, 2, service.ProducerHooks{}, zap.NewNop()),
		Gatherer: prometheus.NewRegistry(),
		Logger:   zap.NewNop(),
	})

	rec := post(t, router, "/syften-webhook", "["+validItem+"]")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Failed to enqueue items"}`, rec.Body.String())
}

func TestConsumer_NotJSONIsAckedWithoutDelivery(t *testing.T) {
	r := newRelay(t, 0)

	_, err := r.broker.Publish(context.Background(), []byte("not-json"), map[string]string{"filter": "f1"})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(r.repo.All()) == 1 }, 2*time.Second, 5*time.Millisecond)
	rec := r.repo.All()[0]
	assert.Equal(t, domain.OutcomeDropped, rec.Outcome)
	assert.Equal(t, "f1", rec.Filter)
	assert.Equal(t, 0, r.channel.count())

	// Acked: the message is not redelivered.
	assert.Never(t, func() bool { return len(r.repo.All()) > 1 }, 100*time.Millisecond, 10*time.Millisecond)
}

func TestHealth(t *testing.T) {
	r := newRelay(t, 0)
	for _, path := range []string{"/healthz", "/health"} {
		rec := get(t, r.router, path)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	}
}

func TestMetricsEndpoints(t *testing.T) {
	r := newRelay(t, 0)
	post(t, r.router, "/syften-webhook", "[]")

	rec := get(t, r.router, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `syften_batches_rejected_total{reason="empty_batch"} 1`)
	assert.Contains(t, rec.Body.String(), "syften_queue_depth")

	rec = get(t, r.router, "/api/v1/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	var status map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "memory", status["queue_driver"])
	assert.Equal(t, "running", status["subscription"])
	assert.EqualValues(t, 0, status["queue_depth"])
}

func TestDeliveries(t *testing.T) {
	r := newRelay(t, 0)
	post(t, r.router, "/syften-webhook", "["+validItem+"]")
	_, _ = r.broker.Publish(context.Background(), []byte("garbage"), nil)
	require.Eventually(t, func() bool { return len(r.repo.All()) == 2 }, 2*time.Second, 5*time.Millisecond)

	rec := get(t, r.router, "/api/v1/deliveries?outcome=dropped")
	require.Equal(t, http.StatusOK, rec.Code)
	var page struct {
		Data  []domain.Delivery `json:"data"`
		Count int               `json:"count"`
	}
	require.NoError(t, json.NewDecoder(bytes.NewReader(rec.Body.Bytes())).Decode(&page))
	assert.Equal(t, 1, page.Count)
	assert.Equal(t, domain.OutcomeDropped, page.Data[0].Outcome)

	for _, q := range []string{"outcome=lost", "limit=0", "limit=abc", "limit=501"} {
		rec := get(t, r.router, "/api/v1/deliveries?"+q)
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestRoutesDependOnRole(t *testing.T) {
	router := api.NewRouter(api.Deps{
		Status:   handler.RelayStatus{Role: "dispatch", QueueDriver: "pubsub"},
		Gatherer: prometheus.NewRegistry(),
		Logger:   zap.NewNop(),
	})

	assert.Equal(t, http.StatusNotFound, post(t, router, "/syften-webhook", "[]").Code)
	assert.Equal(t, http.StatusNotFound, get(t, router, "/api/v1/deliveries").Code)

	rec := get(t, router, "/api/v1/metrics")
	assert.JSONEq(t, `{"role":"dispatch","queue_driver":"pubsub","subscription":"disabled"}`, rec.Body.String())
}

func TestIngest_StaysUpAfterSubscriptionFailure(t *testing.T) {
	broker := queue.NewMemoryBroker(10, 1, nil)
	t.Cleanup(func() { _ = broker.Close() })

	sub := worker.Start(context.Background(), brokenSubscriber{err: errors.New("subscription deleted")},
		queue.HandlerFunc(func(context.Context, queue.Message) queue.Outcome { return queue.Ack }), zap.NewNop())
	select {
	case <-sub.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("subscription did not terminate")
	}

	router := api.NewRouter(api.Deps{
		Producer: service.NewProducer(broker, 1, service.ProducerHooks{}, zap.NewNop()),
		Status: handler.RelayStatus{
			Role:         "all",
			QueueDriver:  "memory",
			Subscription: sub,
		},
		Gatherer: prometheus.NewRegistry(),
		Logger:   zap.NewNop(),
	})

	rec := post(t, router, "/syften-webhook", "["+validItem+"]")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1, broker.Depth())

	rec = get(t, router, "/api/v1/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	var status map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "stopped", status["subscription"])
	assert.Contains(t, status["subscription_error"], "subscription deleted")
}
