package model

import (
	"time"

	"github.com/htangden/lastbil-optimering/internal/report"
)

// NodeIn is a source or sink as submitted by clients.
type NodeIn struct {
	Name     string  `json:"name"`
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
	Quantity int64   `json:"quantity"`
}

// PlanRequest asks for a facility search over the given network. Optional
// fields fall back to the service configuration.
type PlanRequest struct {
	TenantID         string   `json:"-"`
	Name             string   `json:"name,omitempty"`
	Sources          []NodeIn `json:"sources"`
	Sinks            []NodeIn `json:"sinks"`
	ConversionFactor *float64 `json:"conversionFactor,omitempty"`
	Solver           string   `json:"solver,omitempty"`
	SinkRelay        *bool    `json:"sinkRelay,omitempty"`
}

type PlanStatus string

const (
	PlanRunning    PlanStatus = "running"
	PlanCompleted  PlanStatus = "completed"
	PlanInfeasible PlanStatus = "infeasible"
	PlanFailed     PlanStatus = "failed"
)

// Done reports whether the plan has reached a terminal status.
func (s PlanStatus) Done() bool { return s != PlanRunning }

// Plan is a stored search and, once finished, its outcome. Report and LP
// are served from their own endpoints.
type Plan struct {
	ID        string       `json:"id"`
	TenantID  string       `json:"tenantId"`
	Name      string       `json:"name,omitempty"`
	Status    PlanStatus   `json:"status"`
	Request   PlanRequest  `json:"request"`
	Result    *report.Plan `json:"result,omitempty"`
	Error     string       `json:"error,omitempty"`
	Report    string       `json:"-"`
	LP        string       `json:"-"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

// PlanAccepted is returned by plan submission.
type PlanAccepted struct {
	PlanID string     `json:"planId"`
	Status PlanStatus `json:"status"`
}

// PlanList is one page of plans.
type PlanList struct {
	Items      []Plan `json:"items"`
	NextCursor string `json:"nextCursor,omitempty"`
}

// Progress is streamed to SSE and WebSocket clients while a plan runs.
type Progress struct {
	Type          string  `json:"type"`
	PlanID        string  `json:"planId"`
	Index         int     `json:"index,omitempty"`
	Total         int     `json:"total,omitempty"`
	Outcome       string  `json:"outcome,omitempty"`
	BestObjective float64 `json:"bestObjective,omitempty"`
	Status        string  `json:"status,omitempty"`
}

type SubscriptionRequest struct {
	TenantID string   `json:"tenantId"`
	URL      string   `json:"url"`
	Events   []string `json:"events"`
	Secret   string   `json:"secret"`
}

type Subscription struct {
	ID       string   `json:"id"`
	TenantID string   `json:"tenantId"`
	URL      string   `json:"url"`
	Events   []string `json:"events"`
	Secret   string   `json:"secret,omitempty"`
}

// Event types delivered to webhook subscribers.
const (
	EventPlanCompleted = "plan.completed"
	EventPlanFailed    = "plan.failed"
)
