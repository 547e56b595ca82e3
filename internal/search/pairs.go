package search

import "iter"

// Pair selects the anchors of one candidate facility: bit i of SinkMask
// picks sinks[i], bit j of SourceMask picks sources[j].
type Pair struct {
	Index      int
	SinkMask   uint64
	SourceMask uint64
}

// Count is the number of non-empty sink subsets times non-empty source
// subsets. Both arguments must be at most MaxPerRole.
func Count(sinks, sources int) int {
	return ((1 << sinks) - 1) * ((1 << sources) - 1)
}

// Pairs enumerates every (sink subset, source subset) pair, both non-empty,
// in a fixed order: sink subsets outer, source subsets inner, masks
// ascending. Indexes start at 1; 0 is reserved for the baseline.
func Pairs(sinks, sources int) iter.Seq[Pair] {
	return func(yield func(Pair) bool) {
		idx := 1
		for km := uint64(1); km < 1<<sinks; km++ {
			for sm := uint64(1); sm < 1<<sources; sm++ {
				if !yield(Pair{Index: idx, SinkMask: km, SourceMask: sm}) {
					return
				}
				idx++
			}
		}
	}
}

func pick[T any](all []T, mask uint64) []T {
	out := make([]T, 0, len(all))
	for i, v := range all {
		if mask&(1<<i) != 0 {
			out = append(out, v)
		}
	}
	return out
}
