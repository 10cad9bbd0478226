package economy

import (
	"sort"

	"github.com/pbaille/grind/internal/domain"
)

// DefaultLootTemplates is the built-in reward pool: eight base rewards and two premium ones.
func DefaultLootTemplates() []domain.RewardTemplate {
	return []domain.RewardTemplate{
		{Threshold: 15, Label: "Stretch + hydrate"},
		{Threshold: 20, Label: "Breathe + reset"},
		{Threshold: 25, Label: "Walk outside"},
		{Threshold: 30, Label: "Snack break"},
		{Threshold: 40, Label: "Guilt-free YouTube video"},
		{Threshold: 50, Label: "Lunch break"},
		{Threshold: 60, Label: "Learning session"},
		{Threshold: 80, Label: "Nap time"},
		{Threshold: 100, Label: "Premium treat"},
		{Threshold: 140, Label: "Extended break"},
	}
}

// LootPool returns the pool used for fallbacks and reconciliation: the user's
// override when one is set (normalized, sorted by threshold), else the built-in pool.
func LootPool(override []domain.RewardTemplate) []domain.RewardTemplate {
	src := override
	if len(src) == 0 {
		src = DefaultLootTemplates()
	}

	pool := make([]domain.RewardTemplate, 0, len(src))
	for _, t := range src {
		pool = append(pool, NormalizeTemplate(t))
	}
	if len(override) > 0 {
		sort.SliceStable(pool, func(i, j int) bool { return pool[i].Threshold < pool[j].Threshold })
	}
	return pool
}
