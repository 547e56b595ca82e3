//go:build postgres_integration

package store

import (
	"os"
	"testing"

	"github.com/htangden/lastbil-optimering/internal/model"
	"github.com/htangden/lastbil-optimering/internal/report"
)

func TestPostgresPlanLifecycle(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set; skipping integration test")
	}
	p, err := NewPostgres(dsn)
	if err != nil {
		t.Fatalf("NewPostgres: %v", err)
	}
	defer p.Close()
	if err := p.Ping(t.Context()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if err := p.Migrate(t.Context()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	pl, err := p.CreatePlan(t.Context(), model.Plan{TenantID: "t_it", Status: model.PlanRunning,
		Request: model.PlanRequest{Sources: []model.NodeIn{{Name: "F", Quantity: 1}}}})
	if err != nil {
		t.Fatalf("CreatePlan: %v", err)
	}
	pl.Status = model.PlanCompleted
	pl.Result = &report.Plan{Objective: 42}
	pl.Report = "OPTIMAL VALUES:\n"
	if err := p.UpdatePlan(t.Context(), pl); err != nil {
		t.Fatalf("UpdatePlan: %v", err)
	}
	got, err := p.GetPlan(t.Context(), "t_it", pl.ID)
	if err != nil {
		t.Fatalf("GetPlan: %v", err)
	}
	if got.Status != model.PlanCompleted || got.Result == nil || got.Result.Objective != 42 || got.Report == "" {
		t.Fatalf("unexpected plan: %+v", got)
	}
	if _, err := p.GetPlan(t.Context(), "other", pl.ID); err != ErrNotFound {
		t.Fatalf("cross-tenant read: want ErrNotFound, got %v", err)
	}
	if _, _, err := p.ListPlans(t.Context(), "t_it", "", 1); err != nil {
		t.Fatalf("ListPlans: %v", err)
	}
}
