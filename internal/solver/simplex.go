package solver

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"

	"github.com/htangden/lastbil-optimering/internal/flowmodel"
)

// Simplex solves the LP relaxation with gonum's simplex method. The model
// is totally unimodular, so an optimal basic solution is integral; anything
// else is reported as an error rather than rounded away.
type Simplex struct {
	Tolerance float64
}

func (s Simplex) Solve(ctx context.Context, m *flowmodel.Model) (*Solution, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tol := s.Tolerance
	if tol == 0 {
		tol = 1e-10
	}

	// one slack column per <= row turns every constraint into an equality
	slack := map[int]int{}
	cols := len(m.Edges)
	for i, c := range m.Constraints {
		if c.Sense == flowmodel.LessEqual {
			slack[i] = cols
			cols++
		}
	}
	rows := len(m.Constraints)
	A := mat.NewDense(rows, cols, nil)
	b := make([]float64, rows)
	for i, c := range m.Constraints {
		for _, t := range c.Terms {
			A.Set(i, t.Edge, A.At(i, t.Edge)+t.Coef)
		}
		if j, ok := slack[i]; ok {
			A.Set(i, j, 1)
		}
		b[i] = c.RHS
	}
	cost := make([]float64, cols)
	for i, e := range m.Edges {
		cost[i] = e.Cost
	}

	_, x, err := lp.Simplex(cost, A, b, tol, nil)
	switch {
	case errors.Is(err, lp.ErrInfeasible):
		return nil, ErrInfeasible
	case err != nil:
		return nil, fmt.Errorf("solver: simplex: %w", err)
	}

	sol := &Solution{Flows: make([]int64, len(m.Edges))}
	for i := range m.Edges {
		v := math.Round(x[i])
		if math.Abs(x[i]-v) > 1e-6 {
			return nil, fmt.Errorf("solver: simplex: non-integral flow %v on %s", x[i], m.Edges[i].Var)
		}
		sol.Flows[i] = int64(v)
	}
	sol.Objective = m.Objective(sol.Flows)
	return sol, nil
}
