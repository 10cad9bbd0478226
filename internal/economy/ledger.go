package economy

import "github.com/pbaille/grind/internal/domain"

// DefaultDailyGoal is the goal a fresh ledger starts with.
const DefaultDailyGoal = 100

// Ledger holds XP, points and streak state. Transitions return a new value
// and never modify the receiver.
type Ledger struct {
	LifetimeXP      int    `json:"lifetimeXP"`
	DailyEarnedXP   int    `json:"dailyEarnedXP"`
	PointsSpent     int    `json:"pointsSpent"`
	Streak          int    `json:"streak"`
	DailyGoal       int    `json:"dailyGoal"`
	LastResetDate   string `json:"lastReset"`
	AutoCarryStreak bool   `json:"autoCarryStreak"`
}

// NewLedger returns the ledger of a first launch on the given day.
func NewLedger(today string) Ledger {
	return Ledger{
		DailyGoal:       DefaultDailyGoal,
		LastResetDate:   today,
		AutoCarryStreak: true,
	}
}

// AvailablePoints is the spendable balance, never negative.
func (l Ledger) AvailablePoints() int {
	if l.PointsSpent >= l.LifetimeXP {
		return 0
	}
	return l.LifetimeXP - l.PointsSpent
}

// CompleteTask credits xp to both the lifetime and daily counters.
// Crediting each task instance once is the caller's job: the task must leave
// the active list in the same step.
func (l Ledger) CompleteTask(xp int) Ledger {
	xp = domain.ClampXP(xp)
	l.LifetimeXP += xp
	l.DailyEarnedXP += xp
	return l
}

// ClaimReward debits threshold points. When the balance is short the ledger
// is returned unchanged together with an *InsufficientPointsError.
func (l Ledger) ClaimReward(threshold int) (Ledger, error) {
	if threshold < 0 {
		threshold = 0
	}
	available := l.AvailablePoints()
	if available < threshold {
		return l, &InsufficientPointsError{
			Threshold: threshold,
			Available: available,
			Shortfall: threshold - available,
		}
	}
	l.PointsSpent += threshold
	return l, nil
}

// RolloverResult is the outcome of closing a day.
type RolloverResult struct {
	MetGoal bool
	Ledger  Ledger
}

// GoalMet reports whether today's XP reached a positive daily goal.
func (l Ledger) GoalMet() bool {
	return l.DailyGoal > 0 && l.DailyEarnedXP >= l.DailyGoal
}

// Rollover closes the current day: the streak is carried or reset (only when
// AutoCarryStreak is on) and the daily counter goes back to zero.
func (l Ledger) Rollover(today string) RolloverResult {
	met := l.GoalMet()
	if l.AutoCarryStreak {
		if met {
			l.Streak++
		} else {
			l.Streak = 0
		}
	}
	l.DailyEarnedXP = 0
	l.LastResetDate = today
	return RolloverResult{MetGoal: met, Ledger: l}
}

// Progress is today's XP as a fraction of the goal, clamped to [0, 1].
func (l Ledger) Progress() float64 {
	if l.DailyGoal <= 0 {
		return 0
	}
	p := float64(l.DailyEarnedXP) / float64(l.DailyGoal)
	if p > 1 {
		return 1
	}
	if p < 0 {
		return 0
	}
	return p
}

// NeedsRollover reports whether the ledger was last reset on another day.
func (l Ledger) NeedsRollover(today string) bool {
	return l.LastResetDate != today
}

// WithDailyGoal sets the goal, clamped to [1, domain.MaxXP].
func (l Ledger) WithDailyGoal(goal int) Ledger {
	l.DailyGoal = domain.Clamp(goal, 1, domain.MaxXP)
	return l
}
