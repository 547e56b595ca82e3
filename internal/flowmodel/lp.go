package flowmodel

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
)

// WriteLP writes m in CPLEX LP format so it can be handed to an external
// MILP solver or inspected by hand.
func WriteLP(w io.Writer, m *Model) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "\\* trucks: %d nodes, %d edges *\\\n", len(m.Nodes), len(m.Edges))
	fmt.Fprintln(bw, "Minimize")
	fmt.Fprint(bw, " obj:")
	for i, e := range m.Edges {
		writeTerm(bw, i == 0, e.Cost, e.Var)
	}
	if len(m.Edges) == 0 {
		fmt.Fprint(bw, " 0")
	}
	fmt.Fprintln(bw)

	fmt.Fprintln(bw, "Subject To")
	for _, c := range m.Constraints {
		fmt.Fprintf(bw, " %s:", c.Name)
		for i, t := range c.Terms {
			writeTerm(bw, i == 0, t.Coef, m.Edges[t.Edge].Var)
		}
		if len(c.Terms) == 0 {
			fmt.Fprint(bw, " 0 "+m.Edges[0].Var)
		}
		fmt.Fprintf(bw, " %s %s\n", c.Sense, formatNum(c.RHS))
	}

	fmt.Fprintln(bw, "Bounds")
	for _, e := range m.Edges {
		fmt.Fprintf(bw, " %s >= 0\n", e.Var)
	}
	fmt.Fprintln(bw, "General")
	for _, e := range m.Edges {
		fmt.Fprintf(bw, " %s\n", e.Var)
	}
	fmt.Fprintln(bw, "End")
	return bw.Flush()
}

func writeTerm(w io.Writer, first bool, coef float64, name string) {
	sign := "+"
	if coef < 0 {
		sign = "-"
		coef = -coef
	}
	switch {
	case first && sign == "+":
		fmt.Fprintf(w, " %s %s", formatNum(coef), name)
	default:
		fmt.Fprintf(w, " %s %s %s", sign, formatNum(coef), name)
	}
}

func formatNum(v float64) string { return strconv.FormatFloat(v, 'g', 12, 64) }
