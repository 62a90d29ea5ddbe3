package discovery

import (
	"math/rand/v2"
	"slices"
)

// Pick returns up to n elements of items drawn without replacement in random order.
//
// n >= len(items) yields a full permutation and n <= 0 yields an empty slice. items is not modified.
// A nil rng uses the global source.
func Pick[T any](rng *rand.Rand, items []T, n int) []T {
	if n <= 0 || len(items) == 0 {
		return []T{}
	}

	out := slices.Clone(items)
	Shuffle(rng, out)
	if n < len(out) {
		out = out[:n:n]
	}
	return out
}

// Shuffle permutes items in place with a Fisher-Yates shuffle.
func Shuffle[T any](rng *rand.Rand, items []T) {
	for i := len(items) - 1; i > 0; i-- {
		j := intN(rng, i+1)
		items[i], items[j] = items[j], items[i]
	}
}

func intN(rng *rand.Rand, n int) int {
	if rng == nil {
		return rand.IntN(n)
	}
	return rng.IntN(n)
}
