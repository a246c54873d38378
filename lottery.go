package donsched

import (
	"math"
	"math/rand/v2"
)

// draw holds a lottery over weights and returns the index of the winner, or
// -1 if no ticket is held at all. The cost is linear in len(weights) no
// matter how many tickets are held.
func draw(weights []int, r *rand.Rand) int {
	total := tickets(weights)
	if total == 0 {
		return -1
	}
	return winner(weights, r.Uint64N(total)+1)
}

// tickets sums the positive weights, saturating at math.MaxUint64.
func tickets(weights []int) uint64 {
	var total uint64
	for _, w := range weights {
		if w > 0 {
			total = addSat(total, uint64(w))
		}
	}
	return total
}

// winner returns the index of the entry holding ticket. Each entry owns the
// half-open range [lo, lo+weight), with ranges laid out in slice order
// starting at 1.
func winner(weights []int, ticket uint64) int {
	last := -1
	lo := uint64(1)
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		hi := addSat(lo, uint64(w))
		if ticket < hi {
			return i
		}
		lo, last = hi, i
	}

	// Only reachable when the total saturated; the top ticket belongs to the
	// last holder.
	return last
}

func addSat(a, b uint64) uint64 {
	if b > math.MaxUint64-a {
		return math.MaxUint64
	}
	return a + b
}
