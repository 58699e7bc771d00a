package trader

import (
	"math"
	"sort"

	"arena-trade-agent-go/internal/skill"
)

// Rank filters signals by confidence and orders them strongest first.
// Signals with |confidence| below threshold are dropped unless all is set.
// Equal strengths keep their input order.
func Rank(signals []skill.Signal, threshold float64, all bool) []skill.Signal {
	return rankBy(signals, skill.Signal.Strength, threshold, all)
}

func rankBy[T any](items []T, strength func(T) float64, threshold float64, all bool) []T {
	out := make([]T, 0, len(items))
	for _, it := range items {
		s := strength(it)
		if math.IsNaN(s) {
			continue
		}
		if all || s >= threshold {
			out = append(out, it)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return strength(out[i]) > strength(out[j])
	})
	return out
}
