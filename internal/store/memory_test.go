package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/htangden/lastbil-optimering/internal/model"
)

func TestMemoryPlans(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	var ids []string
	for i := 0; i < 3; i++ {
		p, err := m.CreatePlan(ctx, model.Plan{TenantID: "t1", Status: model.PlanRunning})
		if err != nil || p.ID == "" {
			t.Fatalf("create: %v", err)
		}
		ids = append(ids, p.ID)
	}
	if _, err := m.CreatePlan(ctx, model.Plan{TenantID: "t2", Status: model.PlanRunning}); err != nil {
		t.Fatalf("create t2: %v", err)
	}

	page, next, _ := m.ListPlans(ctx, "t1", "", 2)
	if len(page) != 2 || next != ids[1] {
		t.Fatalf("first page: got %d items, next %q", len(page), next)
	}
	page, next, _ = m.ListPlans(ctx, "t1", next, 2)
	if len(page) != 1 || page[0].ID != ids[2] || next != "" {
		t.Fatalf("second page: %+v next %q", page, next)
	}

	if _, err := m.GetPlan(ctx, "t2", ids[0]); !errors.Is(err, ErrNotFound) {
		t.Fatalf("cross-tenant get: want ErrNotFound, got %v", err)
	}
	p, _ := m.GetPlan(ctx, "t1", ids[0])
	p.Status = model.PlanCompleted
	p.Report = "done"
	if err := m.UpdatePlan(ctx, p); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _ := m.GetPlan(ctx, "t1", ids[0])
	if got.Status != model.PlanCompleted || got.Report != "done" || got.CreatedAt != p.CreatedAt {
		t.Fatalf("update not applied: %+v", got)
	}
	if err := m.UpdatePlan(ctx, model.Plan{ID: "nope", TenantID: "t1"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("update missing: want ErrNotFound, got %v", err)
	}
}

func TestMemorySubscriptions(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	s, _ := m.CreateSubscription(ctx, model.SubscriptionRequest{TenantID: "t1", URL: "http://x", Events: []string{model.EventPlanCompleted}})
	_, _ = m.CreateSubscription(ctx, model.SubscriptionRequest{TenantID: "t1", URL: "http://y", Events: []string{model.EventPlanFailed}})

	subs, _ := m.GetSubscriptionsForEvent(ctx, "t1", model.EventPlanCompleted)
	if len(subs) != 1 || subs[0].ID != s.ID {
		t.Fatalf("event filter: %+v", subs)
	}
	if err := m.DeleteSubscription(ctx, "t1", s.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := m.DeleteSubscription(ctx, "t1", s.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete: want ErrNotFound, got %v", err)
	}
	list, next, _ := m.ListSubscriptions(ctx, "t1", "", 10)
	if len(list) != 1 || next != "" {
		t.Fatalf("list after delete: %+v", list)
	}
}

func TestMemoryWebhookQueue(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	clock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return clock }

	id, _ := m.EnqueueWebhook(ctx, "t1", "", model.EventPlanCompleted, "http://x", "s", []byte(`{}`))
	due, _ := m.FetchDueWebhookDeliveries(ctx, 10)
	if len(due) != 1 || due[0].ID != id {
		t.Fatalf("expected one due delivery, got %+v", due)
	}

	later := clock.Add(time.Minute)
	if err := m.MarkWebhookDelivery(ctx, id, false, &later, "boom", 500, 3); err != nil {
		t.Fatalf("mark: %v", err)
	}
	if due, _ := m.FetchDueWebhookDeliveries(ctx, 10); len(due) != 0 {
		t.Fatalf("retry scheduled in the future must not be due: %+v", due)
	}
	clock = later
	due, _ = m.FetchDueWebhookDeliveries(ctx, 10)
	if len(due) != 1 || due[0].Attempts != 1 || due[0].Status != DeliveryRetry {
		t.Fatalf("retry should be due: %+v", due)
	}

	if err := m.FailWebhookDelivery(ctx, id, "boom", 500, 3); err != nil {
		t.Fatalf("fail: %v", err)
	}
	failed, _ := m.ListWebhookDeliveries(ctx, "t1", DeliveryFailed, 0)
	if len(failed) != 1 {
		t.Fatalf("expected failed delivery, got %+v", failed)
	}
	if err := m.RetryWebhookDelivery(ctx, "t2", id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("cross-tenant retry: want ErrNotFound, got %v", err)
	}
	if err := m.RetryWebhookDelivery(ctx, "t1", id); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if due, _ := m.FetchDueWebhookDeliveries(ctx, 10); len(due) != 1 {
		t.Fatalf("requeued delivery should be due: %+v", due)
	}
}
