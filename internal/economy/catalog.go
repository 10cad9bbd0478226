package economy

import (
	"strings"

	"github.com/google/uuid"

	"github.com/pbaille/grind/internal/domain"
)

// DefaultLabel replaces empty reward labels.
const DefaultLabel = "Reward"

// Catalog is the ordered list of reward slots.
type Catalog struct {
	Slots []domain.RewardSlot `json:"loot"`
}

// NewCatalog builds a catalog from templates, with fresh ids and nothing claimed.
func NewCatalog(templates []domain.RewardTemplate) Catalog {
	slots := make([]domain.RewardSlot, 0, len(templates))
	for _, t := range templates {
		slots = append(slots, slotFromTemplate(t))
	}
	return Catalog{Slots: slots}
}

// Find returns the slot with the given id.
func (c Catalog) Find(id string) (domain.RewardSlot, bool) {
	for _, s := range c.Slots {
		if s.ID == id {
			return s, true
		}
	}
	return domain.RewardSlot{}, false
}

// Claim marks a slot as redeemed. The receiver is left untouched.
func (c Catalog) Claim(id string) (Catalog, error) {
	idx := -1
	for i, s := range c.Slots {
		if s.ID == id {
			idx = i
			break
		}
	}
	if idx == -1 {
		return c, ErrSlotNotFound
	}
	if c.Slots[idx].Claimed {
		return c, ErrAlreadyClaimed
	}

	out := c.clone()
	out.Slots[idx].Claimed = true
	return out, nil
}

// ReplaceAll swaps the whole catalog. Slots are normalized and get fresh ids;
// no reconciliation happens.
func ReplaceAll(slots []domain.RewardSlot) Catalog {
	out := make([]domain.RewardSlot, 0, len(slots))
	for _, s := range slots {
		out = append(out, slotFromTemplate(domain.RewardTemplate{
			Threshold:   s.Threshold,
			Label:       s.Label,
			Description: s.Description,
		}))
	}
	return Catalog{Slots: out}
}

// NormalizeTemplate clamps the threshold, defaults the label and backfills the description.
func NormalizeTemplate(t domain.RewardTemplate) domain.RewardTemplate {
	t.Threshold = domain.ClampXP(t.Threshold)
	t.Label = strings.TrimSpace(t.Label)
	if t.Label == "" {
		t.Label = DefaultLabel
	}
	t.Description = EnsureDescription(t.Label, t.Threshold, t.Description)
	return t
}

func slotFromTemplate(t domain.RewardTemplate) domain.RewardSlot {
	t = NormalizeTemplate(t)
	return domain.RewardSlot{
		ID:          uuid.NewString(),
		Threshold:   t.Threshold,
		Label:       t.Label,
		Description: t.Description,
	}
}

func (c Catalog) clone() Catalog {
	slots := make([]domain.RewardSlot, len(c.Slots))
	copy(slots, c.Slots)
	return Catalog{Slots: slots}
}

// Status describes whether a slot can be claimed right now.
type Status int

const (
	StatusClaimed Status = iota
	StatusAffordable
	StatusShort
	StatusNoPoints
)

// Affordability reports the claim status of a slot against a balance, and
// the missing points when the balance is short.
func Affordability(s domain.RewardSlot, available int) (Status, int) {
	switch {
	case s.Claimed:
		return StatusClaimed, 0
	case available >= s.Threshold:
		return StatusAffordable, 0
	case available > 0:
		return StatusShort, s.Threshold - available
	default:
		return StatusNoPoints, s.Threshold
	}
}
