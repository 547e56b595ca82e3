// Package flowmodel builds the integer cost-minimisation model for shipping
// goods from sources to sinks, optionally through one transshipment facility.
package flowmodel

import (
	"strings"

	"github.com/htangden/lastbil-optimering/internal/geo"
	"github.com/htangden/lastbil-optimering/internal/network"
)

// Sense is the relation between a constraint's left-hand side and RHS.
type Sense int

const (
	LessEqual Sense = iota
	Equal
)

func (s Sense) String() string {
	if s == Equal {
		return "="
	}
	return "<="
}

// Edge is a permitted route carrying a non-negative integer number of trucks.
type Edge struct {
	Var      string  `json:"var"`
	From     int     `json:"from"`
	To       int     `json:"to"`
	Distance float64 `json:"distance"`
	Cost     float64 `json:"cost"`
}

// Term is coef * edge flow.
type Term struct {
	Edge int     `json:"edge"`
	Coef float64 `json:"coef"`
}

type Constraint struct {
	Name  string  `json:"name"`
	Node  int     `json:"node"`
	Sense Sense   `json:"sense"`
	Terms []Term  `json:"terms"`
	RHS   float64 `json:"rhs"`
}

// Model is one candidate's optimisation problem. Nodes are ordered sources,
// sinks, then the facility if present. A Model is never mutated after Build.
type Model struct {
	Nodes            []network.Node
	Edges            []Edge
	Constraints      []Constraint
	ConversionFactor float64

	facility int
	out, in  [][]int
}

// Objective evaluates sum(cost * flow) for an assignment indexed like Edges.
func (m *Model) Objective(flows []int64) float64 {
	total := 0.0
	for i, e := range m.Edges {
		if i < len(flows) && flows[i] != 0 {
			total += e.Cost * float64(flows[i])
		}
	}
	return total
}

// Facility returns the transshipment node, if the model has one.
func (m *Model) Facility() (network.Node, bool) {
	if m.facility < 0 {
		return network.Node{}, false
	}
	return m.Nodes[m.facility], true
}

// FacilityIndex is the facility's position in Nodes, or -1.
func (m *Model) FacilityIndex() int { return m.facility }

// Out lists the edges leaving node i.
func (m *Model) Out(i int) []int { return m.out[i] }

// In lists the edges entering node i.
func (m *Model) In(i int) []int { return m.in[i] }

// TotalDemand sums the demand of every sink.
func (m *Model) TotalDemand() int64 {
	var total int64
	for _, n := range m.Nodes {
		if n.Role == network.Sink {
			total += n.Quantity
		}
	}
	return total
}

type options struct {
	metric    geo.Metric
	sinkRelay bool
}

type Option func(*options)

// WithMetric replaces the great-circle distance used for edge costs.
func WithMetric(m geo.Metric) Option { return func(o *options) { o.metric = m } }

// WithSinkRelay lets sinks forward trucks to other sinks at full cost.
func WithSinkRelay() Option { return func(o *options) { o.sinkRelay = true } }

// Build assembles the model. facility may be nil for the direct-only plan.
// Edges touching the facility cost distance / conversionFactor.
func Build(sources, sinks []network.Node, facility *network.Node, conversionFactor float64, opts ...Option) (*Model, error) {
	o := options{metric: geo.Distance}
	for _, fn := range opts {
		fn(&o)
	}
	if err := validate(sources, sinks, facility, conversionFactor); err != nil {
		return nil, err
	}

	m := &Model{ConversionFactor: conversionFactor, facility: -1}
	m.Nodes = make([]network.Node, 0, len(sources)+len(sinks)+1)
	m.Nodes = append(m.Nodes, sources...)
	m.Nodes = append(m.Nodes, sinks...)
	firstSink := len(sources)
	if facility != nil {
		m.facility = len(m.Nodes)
		m.Nodes = append(m.Nodes, *facility)
	}
	m.out = make([][]int, len(m.Nodes))
	m.in = make([][]int, len(m.Nodes))

	addEdge := func(from, to int) {
		d := o.metric(m.Nodes[from].Coord, m.Nodes[to].Coord)
		cost := d
		if from == m.facility || to == m.facility {
			cost = d / conversionFactor
		}
		idx := len(m.Edges)
		m.Edges = append(m.Edges, Edge{
			Var:      varName(m.Nodes[from].Name, m.Nodes[to].Name),
			From:     from,
			To:       to,
			Distance: d,
			Cost:     cost,
		})
		m.out[from] = append(m.out[from], idx)
		m.in[to] = append(m.in[to], idx)
	}

	for s := 0; s < firstSink; s++ {
		for k := firstSink; k < firstSink+len(sinks); k++ {
			addEdge(s, k)
		}
		if m.facility >= 0 {
			addEdge(s, m.facility)
		}
	}
	if m.facility >= 0 {
		for k := firstSink; k < firstSink+len(sinks); k++ {
			addEdge(m.facility, k)
		}
	}
	if o.sinkRelay {
		for k := firstSink; k < firstSink+len(sinks); k++ {
			for k2 := firstSink; k2 < firstSink+len(sinks); k2++ {
				if k != k2 {
					addEdge(k, k2)
				}
			}
		}
	}

	for i, n := range m.Nodes {
		c := Constraint{Node: i, RHS: float64(n.Quantity)}
		switch n.Role {
		case network.Source:
			c.Name = "capacity_" + sanitize(n.Name)
			c.Sense = LessEqual
			for _, e := range m.out[i] {
				c.Terms = append(c.Terms, Term{Edge: e, Coef: 1})
			}
		case network.Sink, network.Transshipment:
			c.Name = "balance_" + sanitize(n.Name)
			c.Sense = Equal
			for _, e := range m.in[i] {
				c.Terms = append(c.Terms, Term{Edge: e, Coef: 1})
			}
			for _, e := range m.out[i] {
				c.Terms = append(c.Terms, Term{Edge: e, Coef: -1})
			}
		}
		m.Constraints = append(m.Constraints, c)
	}
	return m, nil
}

func validate(sources, sinks []network.Node, facility *network.Node, factor float64) error {
	if len(sources) == 0 {
		return network.Configf("flowmodel", "no sources")
	}
	if len(sinks) == 0 {
		return network.Configf("flowmodel", "no sinks")
	}
	if !(factor > 1) {
		return network.Configf("flowmodel", "conversion factor must be > 1, got %v", factor)
	}
	check := func(nodes []network.Node, role network.Role) error {
		seen := make(map[string]struct{}, len(nodes))
		for _, n := range nodes {
			if n.Role != role {
				return network.Configf("flowmodel", "node %q has role %s, want %s", n.Name, n.Role, role)
			}
			if n.Quantity < 0 {
				return network.Configf("flowmodel", "node %q has negative quantity %d", n.Name, n.Quantity)
			}
			if _, dup := seen[n.Name]; dup {
				return network.Configf("flowmodel", "duplicate %s name %q", role, n.Name)
			}
			seen[n.Name] = struct{}{}
		}
		return nil
	}
	if err := check(sources, network.Source); err != nil {
		return err
	}
	if err := check(sinks, network.Sink); err != nil {
		return err
	}
	if facility != nil && (facility.Role != network.Transshipment || facility.Quantity != 0) {
		return network.Configf("flowmodel", "facility %q must be a transshipment node with zero quantity", facility.Name)
	}
	return nil
}

func varName(from, to string) string {
	return "trucks_" + sanitize(from) + "_" + sanitize(to)
}

// sanitize keeps names valid as CPLEX LP identifiers.
func sanitize(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "_"
	}
	return b.String()
}
