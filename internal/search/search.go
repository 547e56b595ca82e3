// Package search finds the consolidation facility that minimises total
// transport cost. Every pair of non-empty sink and source subsets yields one
// candidate: the subsets are weighted (sinks by demand, sources by capacity
// scaled down by the conversion factor), a facility is placed at their
// weighted-distance optimum and the resulting network is solved. The plan
// without any facility is evaluated first and competes on equal terms.
package search

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/htangden/lastbil-optimering/internal/flowmodel"
	"github.com/htangden/lastbil-optimering/internal/geo"
	"github.com/htangden/lastbil-optimering/internal/locate"
	"github.com/htangden/lastbil-optimering/internal/metrics"
	"github.com/htangden/lastbil-optimering/internal/network"
	"github.com/htangden/lastbil-optimering/internal/solver"
)

var (
	// ErrNoFeasiblePlan means neither the baseline nor any candidate could
	// satisfy every sink.
	ErrNoFeasiblePlan = errors.New("search: no feasible plan")
	// ErrSearchTooLarge is returned when the instance exceeds MaxNodes.
	// It matches network.ErrConfiguration as well.
	ErrSearchTooLarge = fmt.Errorf("search: instance too large: %w", network.ErrConfiguration)
)

// MaxPerRole bounds each role so Count fits in an int even when MaxNodes
// is zero (unlimited).
const MaxPerRole = 30

// Outcome classifies one evaluated candidate.
type Outcome string

const (
	Feasible   Outcome = "feasible"
	Infeasible Outcome = "infeasible"
	Failed     Outcome = "failed"
)

// Candidate is one evaluated plan. Index 0 is the baseline, which has no
// facility; the rest follow Pairs order.
type Candidate struct {
	Index     int
	Sinks     []string
	Sources   []string
	Facility  *geo.Coord
	Location  *locate.Location
	Model     *flowmodel.Model
	Solution  *solver.Solution
	Objective float64
}

// Shipment is a non-zero flow on one edge of the winning plan.
type Shipment struct {
	From     string    `json:"from"`
	To       string    `json:"to"`
	FromAt   geo.Coord `json:"fromAt"`
	ToAt     geo.Coord `json:"toAt"`
	Trucks   int64     `json:"trucks"`
	Distance float64   `json:"distanceKm"`
	Cost     float64   `json:"cost"`
}

// Shipments lists the edges that carry trucks, in model edge order.
func (c *Candidate) Shipments() []Shipment {
	if c == nil || c.Model == nil || c.Solution == nil {
		return nil
	}
	var out []Shipment
	for i, e := range c.Model.Edges {
		n := c.Solution.Flows[i]
		if n == 0 {
			continue
		}
		out = append(out, Shipment{
			From:     c.Model.Nodes[e.From].Name,
			To:       c.Model.Nodes[e.To].Name,
			FromAt:   c.Model.Nodes[e.From].Coord,
			ToAt:     c.Model.Nodes[e.To].Coord,
			Trucks:   n,
			Distance: e.Distance,
			Cost:     float64(n) * e.Cost,
		})
	}
	return out
}

// Stats summarises a search.
type Stats struct {
	Candidates   int           `json:"candidates"`
	Evaluated    int           `json:"evaluated"`
	Feasible     int           `json:"feasible"`
	Infeasible   int           `json:"infeasible"`
	Failed       int           `json:"failed"`
	NotConverged int           `json:"notConverged"`
	Duration     time.Duration `json:"durationNs"`
}

// Result is the outcome of Search. Best.Facility is nil when no facility
// beat the baseline. Baseline is nil when the baseline was infeasible.
type Result struct {
	Best     Candidate
	Baseline *Candidate
	Stats    Stats
}

// Improved reports whether the winning plan uses a facility.
func (r *Result) Improved() bool { return r != nil && r.Best.Facility != nil }

// Event is emitted once per evaluated candidate, serialised by the driver.
type Event struct {
	Index         int
	Total         int
	Outcome       Outcome
	Objective     float64
	BestObjective float64
	BestIndex     int
	Err           error
}

// Driver runs facility searches. Configure it with New; a Driver is safe to
// reuse across searches.
type Driver struct {
	Solver           solver.Solver
	SolverName       string
	Locator          *locate.Locator
	ConversionFactor float64
	Workers          int
	MaxNodes         int
	SinkRelay        bool
	Verify           bool
	Observer         func(Event)
	Log              log.FieldLogger
}

type Option func(*Driver)

func WithSolver(name string, s solver.Solver) Option {
	return func(d *Driver) { d.Solver, d.SolverName = s, name }
}
func WithLocator(l *locate.Locator) Option { return func(d *Driver) { d.Locator = l } }
func WithConversionFactor(f float64) Option { return func(d *Driver) { d.ConversionFactor = f } }
func WithWorkers(n int) Option { return func(d *Driver) { d.Workers = n } }
func WithMaxNodes(n int) Option { return func(d *Driver) { d.MaxNodes = n } }
func WithSinkRelay(on bool) Option { return func(d *Driver) { d.SinkRelay = on } }
func WithVerify(on bool) Option { return func(d *Driver) { d.Verify = on } }
func WithObserver(fn func(Event)) Option { return func(d *Driver) { d.Observer = fn } }
func WithLogger(l log.FieldLogger) Option { return func(d *Driver) { d.Log = l } }

// New returns a Driver with the min-cost-flow solver, a default locator,
// conversion factor 10 and one worker per CPU.
func New(opts ...Option) *Driver {
	d := &Driver{
		Solver:           solver.MinCostFlow{},
		SolverName:       "ssp",
		ConversionFactor: 10,
		Workers:          runtime.GOMAXPROCS(0),
		MaxNodes:         20,
	}
	for _, o := range opts {
		o(d)
	}
	if d.Locator == nil {
		d.Locator = locate.New()
	}
	if d.Workers < 1 {
		d.Workers = 1
	}
	if d.Log == nil {
		d.Log = log.StandardLogger()
	}
	return d
}

// Search evaluates the baseline and every candidate facility and returns
// the cheapest plan. Ties keep the lowest candidate index, so the baseline
// wins any tie and the result does not depend on scheduling.
//
// A malformed instance fails immediately with an error matching
// network.ErrConfiguration. When nothing is feasible Search returns
// ErrNoFeasiblePlan together with a Result carrying only Stats.
func (d *Driver) Search(ctx context.Context, sources, sinks []network.Node) (*Result, error) {
	start := time.Now()
	if d.MaxNodes > 0 && len(sources)+len(sinks) > d.MaxNodes {
		return nil, fmt.Errorf("%w: %d nodes, limit %d", ErrSearchTooLarge, len(sources)+len(sinks), d.MaxNodes)
	}
	if len(sources) > MaxPerRole || len(sinks) > MaxPerRole {
		return nil, fmt.Errorf("%w: at most %d sources and %d sinks", ErrSearchTooLarge, MaxPerRole, MaxPerRole)
	}

	metrics.PlansInFlight.Inc()
	defer metrics.PlansInFlight.Dec()

	var opts []flowmodel.Option
	if d.SinkRelay {
		opts = append(opts, flowmodel.WithSinkRelay())
	}
	if d.Locator.Metric != nil {
		opts = append(opts, flowmodel.WithMetric(d.Locator.Metric))
	}

	total := 1 + Count(len(sinks), len(sources))
	r := &reducer{total: total, observer: d.Observer}
	logger := d.Log.WithFields(log.Fields{"sources": len(sources), "sinks": len(sinks), "candidates": total, "solver": d.SolverName})
	logger.Debug("search started")

	// baseline: a malformed instance is fatal here, before fanning out
	base, err := flowmodel.Build(sources, sinks, nil, d.ConversionFactor, opts...)
	if err != nil {
		metrics.SearchDuration.WithLabelValues("error").Observe(time.Since(start).Seconds())
		return nil, err
	}
	c := Candidate{Index: 0, Model: base}
	outcome, err := d.solve(ctx, &c)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	r.add(c, outcome, err, false)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.Workers)
	for p := range Pairs(len(sinks), len(sources)) {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			c, outcome, notConverged, err := d.evaluate(gctx, p, sources, sinks, opts)
			if gctx.Err() != nil {
				return gctx.Err()
			}
			r.add(c, outcome, err, notConverged)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		metrics.SearchDuration.WithLabelValues("error").Observe(time.Since(start).Seconds())
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := r.result()
	res.Stats.Duration = time.Since(start)
	fields := log.Fields{
		"evaluated":  res.Stats.Evaluated,
		"infeasible": res.Stats.Infeasible,
		"failed":     res.Stats.Failed,
		"elapsed":    res.Stats.Duration.String(),
	}
	if r.best == nil {
		metrics.SearchDuration.WithLabelValues("none").Observe(res.Stats.Duration.Seconds())
		logger.WithFields(fields).Warn("no feasible plan")
		return &Result{Stats: res.Stats}, ErrNoFeasiblePlan
	}
	label := "baseline"
	if res.Improved() {
		label = "improved"
		fields["facility"] = res.Best.Facility.String()
	}
	fields["objective"] = res.Best.Objective
	metrics.SearchDuration.WithLabelValues(label).Observe(res.Stats.Duration.Seconds())
	logger.WithFields(fields).Info("search finished")
	return res, nil
}

func (d *Driver) evaluate(ctx context.Context, p Pair, sources, sinks []network.Node, opts []flowmodel.Option) (Candidate, Outcome, bool, error) {
	selSinks := pick(sinks, p.SinkMask)
	selSources := pick(sources, p.SourceMask)
	c := Candidate{Index: p.Index, Sinks: names(selSinks), Sources: names(selSources)}

	points := make([]locate.WeightedPoint, 0, len(selSinks)+len(selSources))
	for _, n := range selSinks {
		points = append(points, locate.WeightedPoint{Coord: n.Coord, Weight: float64(n.Quantity)})
	}
	for _, n := range selSources {
		points = append(points, locate.WeightedPoint{Coord: n.Coord, Weight: float64(n.Quantity) / d.ConversionFactor})
	}
	loc, err := d.Locator.Locate(points)
	if err != nil {
		return c, Failed, false, err
	}
	c.Location = &loc
	at := loc.Coord
	c.Facility = &at

	facility := network.NewTransshipment(at)
	m, err := flowmodel.Build(sources, sinks, &facility, d.ConversionFactor, opts...)
	if err != nil {
		return c, Failed, !loc.Converged, err
	}
	c.Model = m
	outcome, err := d.solve(ctx, &c)
	return c, outcome, !loc.Converged, err
}

func (d *Driver) solve(ctx context.Context, c *Candidate) (Outcome, error) {
	t := time.Now()
	sol, err := d.Solver.Solve(ctx, c.Model)
	metrics.SolveDuration.WithLabelValues(d.SolverName).Observe(time.Since(t).Seconds())
	switch {
	case errors.Is(err, solver.ErrInfeasible):
		return Infeasible, err
	case err != nil:
		return Failed, err
	}
	if d.Verify {
		if err := solver.Verify(c.Model, sol); err != nil {
			return Failed, err
		}
	}
	if math.IsNaN(sol.Objective) {
		return Failed, fmt.Errorf("search: candidate %d: objective is NaN", c.Index)
	}
	c.Solution = sol
	c.Objective = sol.Objective
	return Feasible, nil
}

// reducer keeps the running best under a lock and serialises observer calls.
type reducer struct {
	mu       sync.Mutex
	total    int
	observer func(Event)
	best     *Candidate
	baseline *Candidate
	stats    Stats
}

func (r *reducer) add(c Candidate, outcome Outcome, err error, notConverged bool) {
	metrics.Candidates.WithLabelValues(string(outcome)).Inc()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats.Evaluated++
	if notConverged {
		r.stats.NotConverged++
	}
	switch outcome {
	case Feasible:
		r.stats.Feasible++
		if c.Index == 0 {
			b := c
			r.baseline = &b
		}
		if r.best == nil || c.Objective < r.best.Objective ||
			(c.Objective == r.best.Objective && c.Index < r.best.Index) {
			b := c
			r.best = &b
		}
	case Infeasible:
		r.stats.Infeasible++
	case Failed:
		r.stats.Failed++
	}
	if r.observer == nil {
		return
	}
	ev := Event{Index: c.Index, Total: r.total, Outcome: outcome, Objective: c.Objective, BestIndex: -1, BestObjective: math.Inf(1)}
	if outcome != Feasible {
		ev.Err = err
	}
	if r.best != nil {
		ev.BestIndex, ev.BestObjective = r.best.Index, r.best.Objective
	}
	r.observer(ev)
}

func (r *reducer) result() *Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := &Result{Baseline: r.baseline, Stats: r.stats}
	res.Stats.Candidates = r.total
	if r.best != nil {
		res.Best = *r.best
	}
	return res
}

func names(nodes []network.Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.Name
	}
	return out
}
