// Package report renders a search result for people and for machines.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/htangden/lastbil-optimering/internal/geo"
	"github.com/htangden/lastbil-optimering/internal/network"
	"github.com/htangden/lastbil-optimering/internal/search"
)

// Plan is the serialisable summary of a search.
type Plan struct {
	Objective         float64           `json:"objective"`
	BaselineObjective *float64          `json:"baselineObjective,omitempty"`
	Savings           float64           `json:"savings"`
	Facility          *geo.Coord        `json:"facility,omitempty"`
	FacilitySinks     []string          `json:"facilitySinks,omitempty"`
	FacilitySources   []string          `json:"facilitySources,omitempty"`
	Converged         *bool             `json:"locatorConverged,omitempty"`
	Shipments         []search.Shipment `json:"shipments"`
	Stats             search.Stats      `json:"stats"`
}

// FromResult summarises res.
func FromResult(res *search.Result) Plan {
	p := Plan{
		Objective: res.Best.Objective,
		Shipments: res.Best.Shipments(),
		Stats:     res.Stats,
	}
	if p.Shipments == nil {
		p.Shipments = []search.Shipment{}
	}
	if res.Baseline != nil {
		b := res.Baseline.Objective
		p.BaselineObjective = &b
		p.Savings = b - p.Objective
	}
	if res.Improved() {
		at := *res.Best.Facility
		p.Facility = &at
		p.FacilitySinks = res.Best.Sinks
		p.FacilitySources = res.Best.Sources
		if res.Best.Location != nil {
			c := res.Best.Location.Converged
			p.Converged = &c
		}
	}
	return p
}

// WriteText writes the plan in the line format operators read:
//
//	origin -> destination = trucks
//
// followed by the total distance, the facility and search statistics.
func WriteText(w io.Writer, p Plan) error {
	var b strings.Builder
	b.WriteString("OPTIMAL VALUES:\n")
	for _, s := range p.Shipments {
		fmt.Fprintf(&b, "%s -> %s = %d\n", s.From, s.To, s.Trucks)
	}
	fmt.Fprintf(&b, "\nDISTANCE DRIVEN:\n%.2f\n", p.Objective)

	b.WriteString("\nFACILITY:\n")
	if p.Facility == nil {
		b.WriteString("no facility improved on the baseline\n")
	} else {
		fmt.Fprintf(&b, "%s\n", p.Facility)
		fmt.Fprintf(&b, "anchored on sinks [%s] and sources [%s]\n", strings.Join(p.FacilitySinks, ", "), strings.Join(p.FacilitySources, ", "))
	}
	if p.BaselineObjective != nil {
		fmt.Fprintf(&b, "baseline %.2f, saved %.2f\n", *p.BaselineObjective, p.Savings)
	} else {
		b.WriteString("baseline infeasible\n")
	}

	st := p.Stats
	fmt.Fprintf(&b, "\nSEARCH:\n%d candidates, %d evaluated, %d feasible, %d infeasible, %d failed, %d not converged in %s\n",
		st.Candidates, st.Evaluated, st.Feasible, st.Infeasible, st.Failed, st.NotConverged, st.Duration.Round(time.Millisecond))
	_, err := io.WriteString(w, b.String())
	return err
}

// WriteJSON writes p as indented JSON.
func WriteJSON(w io.Writer, p Plan) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(p)
}

// GeoJSON renders the plan as a feature collection: one point per node that
// ships or receives trucks plus the facility, and one line per shipment.
func GeoJSON(p Plan) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	seen := map[string]bool{}
	point := func(name string, at geo.Coord) {
		key := name + at.String()
		if seen[key] {
			return
		}
		seen[key] = true
		f := geojson.NewFeature(at.Point())
		f.Properties["name"] = name
		fc.Append(f)
	}
	if p.Facility != nil {
		point(network.TransshipmentName, *p.Facility)
		fc.Features[0].Properties["role"] = network.Transshipment.String()
	}
	for _, s := range p.Shipments {
		point(s.From, s.FromAt)
		point(s.To, s.ToAt)
		f := geojson.NewFeature(orb.LineString{s.FromAt.Point(), s.ToAt.Point()})
		f.Properties["from"] = s.From
		f.Properties["to"] = s.To
		f.Properties["trucks"] = s.Trucks
		f.Properties["cost"] = s.Cost
		fc.Append(f)
	}
	return fc
}
