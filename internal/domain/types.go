package domain

// MaxXP bounds any XP or threshold value entered by the user.
const MaxXP = 100000

// Task is an item on the active task list
type Task struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	XP        int    `json:"xp"`
	Completed bool   `json:"completed"`
	IsNew     bool   `json:"isNew,omitempty"` // awaiting XP estimation
}

// RewardSlot is a redeemable loot box in the reward catalog
type RewardSlot struct {
	ID          string `json:"id"`
	Threshold   int    `json:"threshold"`
	Label       string `json:"label"`
	Description string `json:"description"`
	Claimed     bool   `json:"claimed"`
}

// RewardTemplate is a pool entry used to (re)fill the catalog
type RewardTemplate struct {
	Threshold   int    `json:"threshold"`
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
}

// TaskTemplate is a default task without identity
type TaskTemplate struct {
	Name string `json:"name"`
	XP   int    `json:"xp"`
}

// CompletedTask records a finished task for the daily log and the history table
type CompletedTask struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	XP          int    `json:"xp"`
	DurationMs  int64  `json:"durationMs"`
	CompletedAt int64  `json:"completedAt"` // unix milliseconds
}

// ClampXP coerces n into [0, MaxXP].
func ClampXP(n int) int {
	return Clamp(n, 0, MaxXP)
}

// Clamp returns n bounded to [lo, hi].
func Clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
