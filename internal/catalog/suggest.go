package catalog

import (
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

type scored struct {
	key   string
	ratio float64
}

// closeMatches returns at most n candidates whose similarity ratio with
// value is at least cutoff, best first. Comparison is case-insensitive and
// the original spelling of the candidate is returned.
func closeMatches(value string, candidates []string, n int, cutoff float64) []string {
	value = normalize(value)
	if value == "" || n <= 0 {
		return nil
	}

	original := make(map[string]string, len(candidates))
	for _, c := range candidates {
		original[strings.ToLower(c)] = c
	}

	target := strings.Split(value, "")
	var hits []scored
	for key := range original {
		m := difflib.NewMatcher(strings.Split(key, ""), target)
		if m.RealQuickRatio() < cutoff || m.QuickRatio() < cutoff {
			continue
		}
		if r := m.Ratio(); r >= cutoff {
			hits = append(hits, scored{key: key, ratio: r})
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].ratio != hits[j].ratio {
			return hits[i].ratio > hits[j].ratio
		}
		return hits[i].key > hits[j].key
	})
	if len(hits) > n {
		hits = hits[:n]
	}

	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = original[h.key]
	}
	return out
}
