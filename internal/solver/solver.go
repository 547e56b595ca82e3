// Package solver turns a flowmodel.Model into an integer truck assignment.
//
// Solvers are interchangeable behind the Solver interface. The default is a
// successive-shortest-path min-cost flow: the model's constraint matrix is a
// network matrix, so an optimal flow found this way is integral and optimal
// for the integer program as well. Simplex solves the same model as a plain
// LP through gonum and checks that the vertex it lands on is integral.
package solver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/htangden/lastbil-optimering/internal/flowmodel"
)

// ErrInfeasible is returned when no assignment satisfies every constraint.
// It is an expected outcome for a candidate, not a failure of the solver.
var ErrInfeasible = errors.New("solver: infeasible")

// Solution assigns a truck count to every edge of the model it was solved for.
type Solution struct {
	Flows     []int64
	Objective float64
}

// Solver solves one model. Implementations must be safe for concurrent use
// on distinct models.
type Solver interface {
	Solve(ctx context.Context, m *flowmodel.Model) (*Solution, error)
}

// SolverFunc adapts a function to the Solver interface.
type SolverFunc func(ctx context.Context, m *flowmodel.Model) (*Solution, error)

func (f SolverFunc) Solve(ctx context.Context, m *flowmodel.Model) (*Solution, error) {
	return f(ctx, m)
}

// ByName returns the solver registered under name ("ssp" or "simplex").
func ByName(name string) (Solver, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "ssp", "mincost":
		return MinCostFlow{}, nil
	case "simplex", "lp":
		return Simplex{}, nil
	}
	return nil, fmt.Errorf("solver: unknown solver %q", name)
}
