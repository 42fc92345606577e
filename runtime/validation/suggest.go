package validation

import (
	"fmt"
	"sort"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// findClosestMatch finds the closest name match using fuzzy matching
func findClosestMatch(target string, candidates []string) string {
	if len(candidates) == 0 {
		return ""
	}

	// Use fuzzy ranking to find best match
	ranks := fuzzy.RankFindFold(target, candidates)
	sort.Stable(ranks)
	if len(ranks) > 0 {
		// Return the best match (lowest distance)
		return ranks[0].Target
	}

	return ""
}

// didYouMean renders a suggestion suffix for a failed lookup, or "" when
// nothing in candidates is close enough. Candidates must already be in a
// deterministic order.
func didYouMean(target string, candidates []string) string {
	closest := findClosestMatch(target, candidates)
	if closest == "" {
		return ""
	}
	return fmt.Sprintf(", did you mean %q?", closest)
}

// agentNames returns the declared agent names, sorted so suggestions are
// deterministic.
func (v *validator) agentNames() []string {
	names := make([]string, 0, len(v.agents))
	for name := range v.agents {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// blockNames returns the declared block names, sorted.
func (v *validator) blockNames() []string {
	names := make([]string, 0, len(v.blocks))
	for name := range v.blocks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
