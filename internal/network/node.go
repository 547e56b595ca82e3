// Package network holds the immutable nodes a distribution plan is built from.
package network

import (
	"fmt"

	"github.com/htangden/lastbil-optimering/internal/geo"
)

// Role tags what a node does in the flow network.
type Role int

const (
	Source Role = iota + 1
	Sink
	Transshipment
)

func (r Role) String() string {
	switch r {
	case Source:
		return "source"
	case Sink:
		return "sink"
	case Transshipment:
		return "transshipment"
	}
	return fmt.Sprintf("role(%d)", int(r))
}

func (r Role) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

func (r *Role) UnmarshalText(b []byte) error {
	switch string(b) {
	case "source":
		*r = Source
	case "sink":
		*r = Sink
	case "transshipment":
		*r = Transshipment
	default:
		return fmt.Errorf("network: unknown role %q", b)
	}
	return nil
}

// Node is a point in the network. Quantity is the production capacity of a
// Source, the required demand of a Sink and always zero for a Transshipment.
type Node struct {
	Name     string    `json:"name"`
	Coord    geo.Coord `json:"coord"`
	Role     Role      `json:"role"`
	Quantity int64     `json:"quantity"`
}

func NewSource(name string, at geo.Coord, capacity int64) Node {
	return Node{Name: name, Coord: at, Role: Source, Quantity: capacity}
}

func NewSink(name string, at geo.Coord, demand int64) Node {
	return Node{Name: name, Coord: at, Role: Sink, Quantity: demand}
}

// TransshipmentName is the name given to the consolidation facility.
const TransshipmentName = "facility"

func NewTransshipment(at geo.Coord) Node {
	return Node{Name: TransshipmentName, Coord: at, Role: Transshipment}
}

// TotalQuantity sums the quantities of nodes.
func TotalQuantity(nodes []Node) int64 {
	var total int64
	for _, n := range nodes {
		total += n.Quantity
	}
	return total
}
