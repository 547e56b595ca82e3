package solver

import (
	"fmt"
	"math"

	"github.com/htangden/lastbil-optimering/internal/flowmodel"
	"github.com/htangden/lastbil-optimering/internal/network"
)

// Verify checks that sol satisfies every constraint of m exactly and that
// its objective matches the recomputed cost of its flows.
func Verify(m *flowmodel.Model, sol *Solution) error {
	if sol == nil {
		return fmt.Errorf("solver: verify: nil solution")
	}
	if len(sol.Flows) != len(m.Edges) {
		return fmt.Errorf("solver: verify: %d flows for %d edges", len(sol.Flows), len(m.Edges))
	}
	for i, f := range sol.Flows {
		if f < 0 {
			return fmt.Errorf("solver: verify: negative flow %d on %s", f, m.Edges[i].Var)
		}
	}
	sum := func(edges []int) int64 {
		var total int64
		for _, e := range edges {
			total += sol.Flows[e]
		}
		return total
	}
	for i, n := range m.Nodes {
		in, out := sum(m.In(i)), sum(m.Out(i))
		switch n.Role {
		case network.Source:
			if out > n.Quantity {
				return fmt.Errorf("solver: verify: source %q ships %d over capacity %d", n.Name, out, n.Quantity)
			}
		case network.Sink:
			if in-out != n.Quantity {
				return fmt.Errorf("solver: verify: sink %q receives net %d, demand %d", n.Name, in-out, n.Quantity)
			}
		case network.Transshipment:
			if in != out {
				return fmt.Errorf("solver: verify: facility %q in %d != out %d", n.Name, in, out)
			}
		}
	}
	want := m.Objective(sol.Flows)
	if math.Abs(want-sol.Objective) > 1e-6*math.Max(1, math.Abs(want)) {
		return fmt.Errorf("solver: verify: objective %v, recomputed %v", sol.Objective, want)
	}
	return nil
}
