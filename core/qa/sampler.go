package qa

import (
	"math"
	"math/rand"
)

// SampleSelections computes a risk-weighted random unit selection per learner.
// A learner with n > 0 units contributes round(risk% of n) keys, floored at 1:
// even a 0% (or unparseable) risk still samples one unit. Keys are drawn from
// a uniformly random permutation of the learner's own unit keys, so there are
// never duplicates. The result fully replaces any prior selection.
func SampleSelections(rows []LearnerRow, rng *rand.Rand) SelectionMap {
	selections := make(SelectionMap, len(rows))
	for i, row := range rows {
		totalUnits := len(row.Units)
		if totalUnits == 0 {
			continue
		}

		keys := unitKeys(row.Units)
		if len(keys) == 0 {
			continue // no addressable units
		}

		risk := row.RiskPercentage.Float()
		n := int(math.Round(risk / 100 * float64(totalUnits)))
		if n < 1 {
			n = 1
		}
		if n > len(keys) {
			n = len(keys)
		}

		rng.Shuffle(len(keys), func(a, b int) {
			keys[a], keys[b] = keys[b], keys[a]
		})

		set := make(UnitSet, n)
		for _, k := range keys[:n] {
			set[k] = true
		}
		selections[LearnerKey(row.LearnerName, i)] = set
	}
	return selections
}

// unitKeys derives the ordered key list for a learner's units, skipping units
// with no derivable key and collapsing duplicate keys.
func unitKeys(units []Unit) []string {
	keys := make([]string, 0, len(units))
	seen := make(map[string]bool, len(units))
	for _, u := range units {
		k := u.Key()
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		keys = append(keys, k)
	}
	return keys
}
