package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/htangden/lastbil-optimering/internal/flowmodel"
	"github.com/htangden/lastbil-optimering/internal/geo"
	"github.com/htangden/lastbil-optimering/internal/locate"
	"github.com/htangden/lastbil-optimering/internal/model"
	"github.com/htangden/lastbil-optimering/internal/network"
	"github.com/htangden/lastbil-optimering/internal/report"
	"github.com/htangden/lastbil-optimering/internal/search"
	"github.com/htangden/lastbil-optimering/internal/solver"
)

const (
	eventProgress  = "plan.progress"
	eventCompleted = model.EventPlanCompleted
	eventFailed    = model.EventPlanFailed
)

// driverFor builds a search driver from the service defaults overridden by
// the request.
func (s *Server) driverFor(req model.PlanRequest, observer func(search.Event)) (*search.Driver, error) {
	pc := s.Config.Planner
	factor := pc.ConversionFactor
	if req.ConversionFactor != nil {
		factor = *req.ConversionFactor
	}
	name := pc.Solver
	if req.Solver != "" {
		name = req.Solver
	}
	sv, err := solver.ByName(name)
	if err != nil {
		return nil, err
	}
	relay := pc.SinkRelay
	if req.SinkRelay != nil {
		relay = *req.SinkRelay
	}
	loc := locate.New(
		locate.WithMaxIterations(pc.Locator.MaxIterations),
		locate.WithTolerance(pc.Locator.Tolerance),
		locate.WithSimplexSize(pc.Locator.SimplexSize),
	)
	return search.New(
		search.WithSolver(name, sv),
		search.WithLocator(loc),
		search.WithConversionFactor(factor),
		search.WithWorkers(pc.Workers),
		search.WithMaxNodes(pc.MaxNodes),
		search.WithSinkRelay(relay),
		search.WithVerify(pc.VerifySolutions),
		search.WithObserver(observer),
	), nil
}

func toNodes(req model.PlanRequest) (sources, sinks []network.Node) {
	for _, n := range req.Sources {
		sources = append(sources, network.NewSource(n.Name, geo.Coord{Lat: n.Lat, Lng: n.Lng}, n.Quantity))
	}
	for _, n := range req.Sinks {
		sinks = append(sinks, network.NewSink(n.Name, geo.Coord{Lat: n.Lat, Lng: n.Lng}, n.Quantity))
	}
	return sources, sinks
}

func (s *Server) startPlan(p model.Plan) {
	s.running.Add(1)
	go func() {
		defer s.running.Done()
		s.runPlan(s.ctx, p)
	}()
}

// progressObserver forwards search events to the broker, at most about
// fifty per plan plus every improvement of the best objective.
func (s *Server) progressObserver(planID string) func(search.Event) {
	lastBest := -1
	seen := 0
	return func(ev search.Event) {
		seen++
		step := max(1, ev.Total/50)
		if ev.Index != 0 && ev.BestIndex == lastBest && seen%step != 0 && seen != ev.Total {
			return
		}
		lastBest = ev.BestIndex
		pr := model.Progress{Type: eventProgress, PlanID: planID, Index: seen, Total: ev.Total, Outcome: string(ev.Outcome)}
		if ev.BestIndex >= 0 {
			pr.BestObjective = ev.BestObjective
		}
		s.Broker.Publish(planID, newEvent(eventProgress, pr))
	}
}

func (s *Server) runPlan(ctx context.Context, p model.Plan) {
	logger := log.WithFields(log.Fields{"plan": p.ID, "tenant": p.TenantID})
	sources, sinks := toNodes(p.Request)

	var res *search.Result
	d, err := s.driverFor(p.Request, s.progressObserver(p.ID))
	if err == nil {
		res, err = d.Search(ctx, sources, sinks)
	}
	switch {
	case err == nil:
		plan := report.FromResult(res)
		p.Status = model.PlanCompleted
		p.Result = &plan
		var buf bytes.Buffer
		if werr := report.WriteText(&buf, plan); werr == nil {
			p.Report = buf.String()
		}
		buf.Reset()
		if werr := flowmodel.WriteLP(&buf, res.Best.Model); werr == nil {
			p.LP = buf.String()
		}
	case errors.Is(err, search.ErrNoFeasiblePlan):
		p.Status = model.PlanInfeasible
		p.Error = err.Error()
		st := res.Stats
		p.Report = fmt.Sprintf("NO FEASIBLE PLAN:\n%d candidates, %d infeasible, %d failed\n", st.Candidates, st.Infeasible, st.Failed)
	default:
		p.Status = model.PlanFailed
		p.Error = err.Error()
	}

	// outlives the search context so shutdown still records the outcome
	storeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if uerr := s.Store.UpdatePlan(storeCtx, p); uerr != nil {
		logger.WithError(uerr).Error("plan update failed")
	}

	final := model.Progress{PlanID: p.ID, Status: string(p.Status)}
	evType := eventCompleted
	if p.Status != model.PlanCompleted {
		evType = eventFailed
	}
	final.Type = evType
	if p.Result != nil {
		final.BestObjective = p.Result.Objective
	}
	s.Broker.Publish(p.ID, newEvent(evType, final))
	s.Pub.Emit(storeCtx, p.TenantID, evType, map[string]any{"planId": p.ID, "status": p.Status, "error": p.Error, "result": p.Result})

	fields := log.Fields{"status": p.Status}
	if err != nil {
		fields["error"] = err.Error()
	}
	logger.WithFields(fields).Info("plan finished")
}
