package webhooks

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/htangden/lastbil-optimering/internal/model"
	"github.com/htangden/lastbil-optimering/internal/store"
)

type recordStore struct {
	*store.Memory
	mu    sync.Mutex
	marks []MarkRec
	fails []FailRec
}
type MarkRec struct {
	ID            string
	Success       bool
	Code, Latency int
	LastErr       string
}
type FailRec struct {
	ID            string
	Code, Latency int
	LastErr       string
}

func (r *recordStore) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	r.mu.Lock()
	r.marks = append(r.marks, MarkRec{ID: id, Success: success, Code: responseCode, Latency: latencyMs, LastErr: lastError})
	r.mu.Unlock()
	return r.Memory.MarkWebhookDelivery(ctx, id, success, nextAttemptAt, lastError, responseCode, latencyMs)
}
func (r *recordStore) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	r.mu.Lock()
	r.fails = append(r.fails, FailRec{ID: id, Code: responseCode, Latency: latencyMs, LastErr: lastError})
	r.mu.Unlock()
	return r.Memory.FailWebhookDelivery(ctx, id, lastError, responseCode, latencyMs)
}

func TestWorkerProcessOnce_SuccessAndSignature(t *testing.T) {
	var gotSig, gotType string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get("X-Signature")
		gotType = r.Header.Get("X-Event-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(200)
	}))
	defer srv.Close()

	rs := &recordStore{Memory: store.NewMemory()}
	w := NewWorker(rs, 3)
	w.HTTP = srv.Client()
	id, err := rs.Memory.EnqueueWebhook(context.Background(), "t1", "", model.EventPlanCompleted, srv.URL, "secret", []byte(`{"id":"evt1"}`))
	if err != nil || id == "" {
		t.Fatalf("enqueue failed: %v", err)
	}

	w.processOnce(context.Background())

	if gotSig == "" || gotType != model.EventPlanCompleted {
		t.Fatalf("missing signature/type headers: sig=%q type=%q", gotSig, gotType)
	}
	if !VerifyHMAC("secret", gotBody, gotSig) {
		t.Fatalf("signature does not verify against received body")
	}
	if len(rs.marks) == 0 || !rs.marks[0].Success {
		t.Fatalf("expected mark success, got: %+v", rs.marks)
	}
}

func TestWorkerProcessOnce_RetryThenFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(500) }))
	defer srv.Close()
	rs := &recordStore{Memory: store.NewMemory()}
	w := NewWorker(rs, 2)
	w.HTTP = srv.Client()
	_, _ = rs.Memory.EnqueueWebhook(context.Background(), "t1", "", model.EventPlanFailed, srv.URL, "", []byte(`{}`))

	w.processOnce(context.Background())
	if len(rs.marks) != 1 || rs.marks[0].Success || rs.marks[0].Code != 500 {
		t.Fatalf("expected one failed mark, got %+v", rs.marks)
	}
	// the retry is scheduled in the future; force it due
	for _, d := range mustList(t, rs, store.DeliveryRetry) {
		_ = rs.Memory.RetryWebhookDelivery(context.Background(), "t1", d.ID)
	}
	w.processOnce(context.Background())
	if len(rs.fails) != 1 {
		t.Fatalf("expected fail recorded after max attempts, got %+v", rs.fails)
	}
}

func mustList(t *testing.T, s store.Store, status string) []store.WebhookDelivery {
	t.Helper()
	items, err := s.ListWebhookDeliveries(context.Background(), "t1", status, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	return items
}

func TestPublisherEmit(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	_, _ = mem.CreateSubscription(ctx, model.SubscriptionRequest{TenantID: "t1", URL: "http://a", Events: []string{model.EventPlanCompleted}})
	_, _ = mem.CreateSubscription(ctx, model.SubscriptionRequest{TenantID: "t1", URL: "http://b", Events: []string{model.EventPlanFailed}})
	p := NewPublisher(mem)

	if n := p.Emit(ctx, "t1", model.EventPlanCompleted, map[string]any{"planId": "p1"}); n != 1 {
		t.Fatalf("want 1 queued delivery, got %d", n)
	}
	due, _ := mem.FetchDueWebhookDeliveries(ctx, 10)
	if len(due) != 1 || due[0].URL != "http://a" {
		t.Fatalf("unexpected deliveries: %+v", due)
	}
	var env Envelope
	if err := json.Unmarshal(due[0].Payload, &env); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if env.Type != model.EventPlanCompleted || env.TenantID != "t1" || env.ID == "" {
		t.Fatalf("unexpected envelope: %+v", env)
	}
	if n := p.Emit(ctx, "t2", model.EventPlanCompleted, nil); n != 0 {
		t.Fatalf("tenant without subscriptions queued %d", n)
	}
}

func TestNextBackoff(t *testing.T) {
	if got := nextBackoff(0); got != time.Second {
		t.Fatalf("attempt 0: %v", got)
	}
	if got := nextBackoff(3); got != 8*time.Second {
		t.Fatalf("attempt 3: %v", got)
	}
	if got := nextBackoff(50); got != 1024*time.Second {
		t.Fatalf("capped exponent: %v", got)
	}
}
