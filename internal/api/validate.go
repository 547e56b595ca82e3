package api

import (
	"fmt"

	"github.com/htangden/lastbil-optimering/internal/model"
	"github.com/htangden/lastbil-optimering/internal/search"
	"github.com/htangden/lastbil-optimering/internal/solver"
)

func (s *Server) validatePlanRequest(req *model.PlanRequest) error {
	if len(req.Sources) == 0 {
		return fmt.Errorf("at least one source is required")
	}
	if len(req.Sinks) == 0 {
		return fmt.Errorf("at least one sink is required")
	}
	if limit := s.Config.Planner.MaxNodes; limit > 0 && len(req.Sources)+len(req.Sinks) > limit {
		return fmt.Errorf("too many nodes: %d, limit %d", len(req.Sources)+len(req.Sinks), limit)
	}
	if len(req.Sources) > search.MaxPerRole || len(req.Sinks) > search.MaxPerRole {
		return fmt.Errorf("at most %d sources and %d sinks", search.MaxPerRole, search.MaxPerRole)
	}
	if err := validateNodes("sources", req.Sources); err != nil {
		return err
	}
	if err := validateNodes("sinks", req.Sinks); err != nil {
		return err
	}
	if req.ConversionFactor != nil && !(*req.ConversionFactor > 1) {
		return fmt.Errorf("conversionFactor must be > 1")
	}
	if req.Solver != "" {
		if _, err := solver.ByName(req.Solver); err != nil {
			return err
		}
	}
	return nil
}

func validateNodes(field string, nodes []model.NodeIn) error {
	seen := map[string]struct{}{}
	for i, n := range nodes {
		if n.Name == "" {
			return fmt.Errorf("%s[%d]: name is required", field, i)
		}
		if _, dup := seen[n.Name]; dup {
			return fmt.Errorf("%s[%d]: duplicate name %q", field, i, n.Name)
		}
		seen[n.Name] = struct{}{}
		if n.Lat < -90 || n.Lat > 90 || n.Lng < -180 || n.Lng > 180 {
			return fmt.Errorf("%s[%d]: coordinate out of range", field, i)
		}
		if n.Quantity < 0 {
			return fmt.Errorf("%s[%d]: quantity must be >= 0", field, i)
		}
	}
	return nil
}
