package es

import (
	"math"
	"sort"
)

// CenteredRanks replaces rewards by their ascending 0-based rank, then
// standardizes with the closed-form moments of a discrete uniform rank
// distribution: mean (n-1)/2 and variance (n²-1)/12. Ties keep index order.
// NaN rewards rank below every number so the result stays a permutation.
func CenteredRanks(rewards []float64) []float64 {
	n := len(rewards)
	out := make([]float64, n)
	if n < 2 {
		return out
	}
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ra, rb := rewards[order[a]], rewards[order[b]]
		if math.IsNaN(ra) {
			return !math.IsNaN(rb)
		}
		return ra < rb
	})
	nf := float64(n)
	mean := (nf - 1) / 2
	std := math.Sqrt((nf*nf - 1) / 12)
	for rank, idx := range order {
		out[idx] = (float64(rank) - mean) / std
	}
	return out
}

func roundUpEven(n int) int {
	if n%2 != 0 {
		return n + 1
	}
	return n
}
