package economy

import (
	"sort"
	"strings"

	"github.com/pbaille/grind/internal/domain"
)

const (
	// BaseTierMin and BaseTierMax bound the regular reward tier.
	BaseTierMin = 10
	BaseTierMax = 80
	// PremiumFloor is the minimum cost of a premium reward.
	PremiumFloor = 100

	nudgeCount = 5
	nudgeStep  = 5
)

type rewardKey struct {
	label     string
	threshold int
}

func keyOf(label string, threshold int) rewardKey {
	return rewardKey{label: strings.ToLower(strings.TrimSpace(label)), threshold: threshold}
}

// IsEquivalentTo compares the catalogs as multisets of normalized
// (label, threshold) pairs, ignoring ids, order and claimed flags.
func (c Catalog) IsEquivalentTo(other Catalog) bool {
	return sameRewardSet(c.Slots, other.Slots)
}

func sameRewardSet(a, b []domain.RewardSlot) bool {
	if len(a) != len(b) {
		return false
	}
	counts := make(map[rewardKey]int, len(a))
	for _, s := range a {
		counts[keyOf(s.Label, s.Threshold)]++
	}
	for _, s := range b {
		k := keyOf(s.Label, s.Threshold)
		if counts[k] == 0 {
			return false
		}
		counts[k]--
	}
	return true
}

// Nudge perturbs thresholds so a regenerated catalog does not look identical
// to the previous one. The first five slots move alternately by +5 and -5
// inside the base tier, later (premium) slots move up by 5 with a floor of
// PremiumFloor. The result is sorted by threshold.
func Nudge(slots []domain.RewardSlot) []domain.RewardSlot {
	out := make([]domain.RewardSlot, len(slots))
	copy(out, slots)

	for i := range out {
		t := out[i].Threshold
		if i < nudgeCount {
			delta := nudgeStep
			if i%2 == 1 {
				delta = -nudgeStep
			}
			t = domain.Clamp(t+delta, BaseTierMin, BaseTierMax)
		} else {
			t = max(PremiumFloor, t+nudgeStep)
		}
		out[i].Threshold = t
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Threshold < out[j].Threshold })
	return out
}
