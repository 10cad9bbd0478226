package economy

import "github.com/pbaille/grind/internal/domain"

// Reconcile refills claimed slots from the template pool and leaves unclaimed
// slots exactly as they are.
//
// For each claimed slot, in catalog order, a template is drawn from a working
// copy of the pool: the first template with the same threshold, otherwise the
// one with the smallest absolute threshold difference (earliest in pool order
// on ties). Drawn templates leave the working pool. Once it is empty the first
// template of the original pool is reused. With an empty pool claimed slots
// are kept unchanged.
func (c Catalog) Reconcile(pool []domain.RewardTemplate) Catalog {
	if len(pool) == 0 {
		return c.clone()
	}

	working := make([]domain.RewardTemplate, len(pool))
	copy(working, pool)

	out := make([]domain.RewardSlot, 0, len(c.Slots))
	for _, s := range c.Slots {
		if !s.Claimed {
			out = append(out, s)
			continue
		}

		var picked domain.RewardTemplate
		if len(working) == 0 {
			picked = pool[0]
		} else {
			idx := nearestTemplate(working, s.Threshold)
			picked = working[idx]
			working = append(working[:idx], working[idx+1:]...)
		}
		out = append(out, slotFromTemplate(picked))
	}
	return Catalog{Slots: out}
}

func nearestTemplate(pool []domain.RewardTemplate, threshold int) int {
	for i, t := range pool {
		if t.Threshold == threshold {
			return i
		}
	}

	best := 0
	bestDiff := absInt(pool[0].Threshold - threshold)
	for i := 1; i < len(pool); i++ {
		if d := absInt(pool[i].Threshold - threshold); d < bestDiff {
			best, bestDiff = i, d
		}
	}
	return best
}

func absInt(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
