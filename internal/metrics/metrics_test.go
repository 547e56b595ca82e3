package metrics

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, name, label string) float64 {
	t.Helper()
	families, err := Registry.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, m := range f.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetValue() == label {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestRegisterDefaultIsIdempotent(t *testing.T) {
	RegisterDefault()
	RegisterDefault()

	before := counterValue(t, "planner_candidates_total", "feasible")
	Candidates.WithLabelValues("feasible").Inc()
	require.Equal(t, before+1, counterValue(t, "planner_candidates_total", "feasible"))

	families, err := Registry.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	require.True(t, names["go_goroutines"])
	require.True(t, names["planner_plans_in_flight"])
}
