package solver

import (
	"context"
	"errors"
	"math"

	"github.com/htangden/lastbil-optimering/internal/flowmodel"
	"github.com/htangden/lastbil-optimering/internal/network"
)

// MinCostFlow solves a model by successive shortest augmenting paths on a
// residual network with a super source feeding every source (capacity =
// production) and every sink draining to a super sink (capacity = demand).
type MinCostFlow struct{}

var errNegativeCycle = errors.New("solver: residual network has a negative cycle")

type arc struct {
	to   int
	cap  int64
	cost float64
	edge int // model edge index, -1 for auxiliary arcs
}

type residual struct {
	arcs []arc
	adj  [][]int
}

func (r *residual) add(from, to int, cap int64, cost float64, edge int) {
	r.adj[from] = append(r.adj[from], len(r.arcs))
	r.arcs = append(r.arcs, arc{to: to, cap: cap, cost: cost, edge: edge})
	r.adj[to] = append(r.adj[to], len(r.arcs))
	r.arcs = append(r.arcs, arc{to: from, cap: 0, cost: -cost, edge: -1})
}

func (MinCostFlow) Solve(ctx context.Context, m *flowmodel.Model) (*Solution, error) {
	n := len(m.Nodes)
	src, dst := n, n+1
	demand := m.TotalDemand()

	r := &residual{adj: make([][]int, n+2)}
	for i, node := range m.Nodes {
		switch node.Role {
		case network.Source:
			if node.Quantity > 0 {
				r.add(src, i, node.Quantity, 0, -1)
			}
		case network.Sink:
			if node.Quantity > 0 {
				r.add(i, dst, node.Quantity, 0, -1)
			}
		}
	}
	edgeArc := make([]int, len(m.Edges))
	for i, e := range m.Edges {
		edgeArc[i] = len(r.arcs)
		r.add(e.From, e.To, demand, e.Cost, i)
	}

	eps := 1e-9
	for _, e := range m.Edges {
		eps = math.Max(eps, e.Cost*1e-12)
	}

	var sent int64
	dist := make([]float64, n+2)
	via := make([]int, n+2)
	for sent < demand {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !r.shortestPath(src, dist, via, eps) {
			return nil, errNegativeCycle
		}
		if via[dst] < 0 {
			return nil, ErrInfeasible
		}
		push := demand - sent
		for v := dst; v != src; v = r.arcs[via[v]^1].to {
			push = min(push, r.arcs[via[v]].cap)
		}
		for v := dst; v != src; v = r.arcs[via[v]^1].to {
			r.arcs[via[v]].cap -= push
			r.arcs[via[v]^1].cap += push
		}
		sent += push
	}

	sol := &Solution{Flows: make([]int64, len(m.Edges))}
	for i, a := range edgeArc {
		sol.Flows[i] = r.arcs[a^1].cap
	}
	sol.Objective = m.Objective(sol.Flows)
	return sol, nil
}

// shortestPath runs Bellman–Ford from src over arcs with spare capacity and
// records in via the arc used to reach each node (-1 when unreachable).
// Improvements smaller than eps are ignored so rounding noise in residual
// costs cannot keep a zero-cost cycle relaxing forever.
func (r *residual) shortestPath(src int, dist []float64, via []int, eps float64) bool {
	for i := range dist {
		dist[i] = math.Inf(1)
		via[i] = -1
	}
	dist[src] = 0
	for round := 0; round < len(dist); round++ {
		changed := false
		for u := range r.adj {
			if math.IsInf(dist[u], 1) {
				continue
			}
			for _, ai := range r.adj[u] {
				a := r.arcs[ai]
				if a.cap <= 0 {
					continue
				}
				if d := dist[u] + a.cost; d < dist[a.to]-eps {
					dist[a.to] = d
					via[a.to] = ai
					changed = true
				}
			}
		}
		if !changed {
			return true
		}
	}
	// still relaxing after |V| rounds: a negative cycle, which a valid
	// residual network never has
	return false
}
