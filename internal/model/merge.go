package model

import (
	"sort"
)

// MergeCandles returns the union of existing and incoming keyed by timestamp
// instant, strictly ascending. existing must already be sorted and unique;
// incoming may be in any order and overlap it. On a shared timestamp the
// incoming candle replaces the existing one, and within incoming the last
// occurrence wins. Neither input is modified.
func MergeCandles(existing, incoming []Candle) []Candle {
	in := normalize(incoming)
	out := make([]Candle, 0, len(existing)+len(in))
	i, j := 0, 0
	for i < len(existing) && j < len(in) {
		switch existing[i].Timestamp.Compare(in[j].Timestamp) {
		case -1:
			out = append(out, existing[i])
			i++
		case 1:
			out = append(out, in[j])
			j++
		default:
			out = append(out, in[j])
			i++
			j++
		}
	}
	out = append(out, existing[i:]...)
	out = append(out, in[j:]...)
	return out
}

// normalize sorts a copy of cs and collapses equal timestamps to the last one seen.
func normalize(cs []Candle) []Candle {
	if len(cs) == 0 {
		return nil
	}
	sorted := make([]Candle, len(cs))
	copy(sorted, cs)
	sort.SliceStable(sorted, func(a, b int) bool {
		return sorted[a].Timestamp.Before(sorted[b].Timestamp)
	})
	out := sorted[:0]
	for _, c := range sorted {
		if n := len(out); n > 0 && out[n-1].Timestamp.Equal(c.Timestamp) {
			out[n-1] = c
			continue
		}
		out = append(out, c)
	}
	return out
}

// IsStrictlyAscending reports whether cs is sorted by timestamp without duplicates.
func IsStrictlyAscending(cs []Candle) bool {
	for i := 1; i < len(cs); i++ {
		if !cs[i-1].Timestamp.Before(cs[i].Timestamp) {
			return false
		}
	}
	return true
}
