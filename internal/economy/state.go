package economy

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pbaille/grind/internal/domain"
)

// DefaultTaskName is used for tasks added without a name.
const DefaultTaskName = "New task"

// State is the aggregate root of the economy: the ledger, the reward catalog,
// the active task list and today's completion log. Every transition is a pure
// function returning the next State, so a failed operation leaves no trace.
type State struct {
	Ledger            Ledger
	Catalog           Catalog
	Tasks             []domain.Task
	CompletedLog      []domain.CompletedTask
	GoalCongratsShown bool
}

// NewState returns the state of a first launch.
func NewState(today string, tasks []domain.Task) State {
	return State{
		Ledger:  NewLedger(today),
		Catalog: NewCatalog(DefaultLootTemplates()),
		Tasks:   tasks,
	}
}

// Clone returns a copy that shares no slices with s.
func (s State) Clone() State {
	return s.clone()
}

func (s State) clone() State {
	out := s
	out.Tasks = append([]domain.Task(nil), s.Tasks...)
	out.CompletedLog = append([]domain.CompletedTask(nil), s.CompletedLog...)
	out.Catalog = s.Catalog.clone()
	return out
}

func (s State) taskIndex(id string) int {
	for i, t := range s.Tasks {
		if t.ID == id {
			return i
		}
	}
	return -1
}

// AddTask appends a task awaiting XP estimation.
func (s State) AddTask(name string, xp int) (State, domain.Task) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultTaskName
	}
	t := domain.Task{ID: uuid.NewString(), Name: name, XP: domain.ClampXP(xp), IsNew: true}

	out := s.clone()
	out.Tasks = append(out.Tasks, t)
	return out, t
}

// AppendTasks adds tasks to the end of the list.
func (s State) AppendTasks(tasks []domain.Task) State {
	out := s.clone()
	for _, t := range tasks {
		t.XP = domain.ClampXP(t.XP)
		out.Tasks = append(out.Tasks, t)
	}
	return out
}

// ReplaceTasks swaps the whole active task list.
func (s State) ReplaceTasks(tasks []domain.Task) State {
	out := s.clone()
	out.Tasks = out.Tasks[:0]
	return out.AppendTasks(tasks)
}

// TaskPatch holds the editable fields of a task; nil means unchanged.
type TaskPatch struct {
	Name  *string `json:"name,omitempty"`
	XP    *int    `json:"xp,omitempty"`
	IsNew *bool   `json:"isNew,omitempty"`
}

// UpdateTask applies a patch to one task.
func (s State) UpdateTask(id string, p TaskPatch) (State, domain.Task, error) {
	idx := s.taskIndex(id)
	if idx == -1 {
		return s, domain.Task{}, ErrTaskNotFound
	}
	out := s.clone()
	t := &out.Tasks[idx]
	if p.Name != nil {
		t.Name = *p.Name
	}
	if p.XP != nil {
		t.XP = domain.ClampXP(*p.XP)
	}
	if p.IsNew != nil {
		t.IsNew = *p.IsNew
	}
	return out, *t, nil
}

// DeleteTask removes a task without crediting XP.
func (s State) DeleteTask(id string) (State, error) {
	idx := s.taskIndex(id)
	if idx == -1 {
		return s, ErrTaskNotFound
	}
	out := s.clone()
	out.Tasks = append(out.Tasks[:idx], out.Tasks[idx+1:]...)
	return out, nil
}

// CompleteResult describes a task completion.
type CompleteResult struct {
	Task      domain.Task          `json:"task"`
	Record    domain.CompletedTask `json:"record"`
	XPAwarded int                  `json:"xpAwarded"`
	// GoalReached is true only for the completion that first meets the daily
	// goal since the last rollover.
	GoalReached bool `json:"goalReached"`
}

// CompleteTask credits the task's XP, removes it from the active list and
// records it in the completion log. Both happen in the same transition, so a
// task instance is credited exactly once.
func (s State) CompleteTask(id string, durationMs int64, now time.Time) (State, CompleteResult, error) {
	idx := s.taskIndex(id)
	if idx == -1 {
		return s, CompleteResult{}, ErrTaskNotFound
	}

	out := s.clone()
	task := out.Tasks[idx]
	xp := domain.ClampXP(task.XP)
	if durationMs < 0 {
		durationMs = 0
	}

	out.Ledger = out.Ledger.CompleteTask(xp)
	out.Tasks = append(out.Tasks[:idx], out.Tasks[idx+1:]...)
	rec := domain.CompletedTask{
		ID:          uuid.NewString(),
		Name:        task.Name,
		XP:          xp,
		DurationMs:  durationMs,
		CompletedAt: now.UnixMilli(),
	}
	out.CompletedLog = append(out.CompletedLog, rec)

	res := CompleteResult{Task: task, Record: rec, XPAwarded: xp}
	if out.Ledger.GoalMet() && !out.GoalCongratsShown {
		out.GoalCongratsShown = true
		res.GoalReached = true
	}
	return out, res, nil
}

// ClaimResult describes a successful redemption.
type ClaimResult struct {
	Slot            domain.RewardSlot `json:"slot"`
	AvailablePoints int               `json:"availablePoints"`
}

// Claim redeems a reward slot: the ledger debit and the claimed flag are
// applied together or not at all.
func (s State) Claim(slotID string) (State, ClaimResult, error) {
	slot, ok := s.Catalog.Find(slotID)
	if !ok {
		return s, ClaimResult{}, ErrSlotNotFound
	}
	if slot.Claimed {
		return s, ClaimResult{}, ErrAlreadyClaimed
	}

	ledger, err := s.Ledger.ClaimReward(slot.Threshold)
	if err != nil {
		return s, ClaimResult{}, err
	}
	catalog, err := s.Catalog.Claim(slotID)
	if err != nil {
		return s, ClaimResult{}, err
	}

	out := s.clone()
	out.Ledger = ledger
	out.Catalog = catalog
	slot.Claimed = true
	return out, ClaimResult{Slot: slot, AvailablePoints: ledger.AvailablePoints()}, nil
}

// PreviewRollover reports whether closing the day now would count as meeting the goal.
func (s State) PreviewRollover() bool {
	return s.Ledger.GoalMet()
}

// DayClosed is the outcome of State.Rollover.
type DayClosed struct {
	MetGoal       bool `json:"metGoal"`
	Streak        int  `json:"streak"`
	SlotsRefilled int  `json:"slotsRefilled"`
	TasksAdded    int  `json:"tasksAdded"`
}

// Rollover closes the day. The ledger rolls over, the default tasks built for
// the new streak are prepended to the remaining ones, today's log and the
// goal-congrats flag are cleared and claimed rewards are refilled from pool.
func (s State) Rollover(today string, pool []domain.RewardTemplate, defaults func(streak int) []domain.Task) (State, DayClosed) {
	out := s.clone()

	r := out.Ledger.Rollover(today)
	out.Ledger = r.Ledger

	var fresh []domain.Task
	if defaults != nil {
		// Built from the streak after the rollover, so a missed goal yields
		// the day-one bonus.
		fresh = defaults(out.Ledger.Streak)
	}
	out.Tasks = append(fresh, out.Tasks...)
	out.CompletedLog = nil
	out.GoalCongratsShown = false

	refilled := 0
	for _, slot := range out.Catalog.Slots {
		if slot.Claimed {
			refilled++
		}
	}
	if len(pool) == 0 {
		refilled = 0
	}
	out.Catalog = out.Catalog.Reconcile(pool)

	return out, DayClosed{
		MetGoal:       r.MetGoal,
		Streak:        out.Ledger.Streak,
		SlotsRefilled: refilled,
		TasksAdded:    len(fresh),
	}
}

// ApplyLoot replaces the catalog with suggested templates. When the
// suggestion matches the current catalog, thresholds are nudged so the user
// sees a changed catalog.
func (s State) ApplyLoot(templates []domain.RewardTemplate) (State, bool) {
	next := NewCatalog(templates)
	nudged := false
	if next.IsEquivalentTo(s.Catalog) {
		next.Slots = Nudge(next.Slots)
		nudged = true
	}
	out := s.clone()
	out.Catalog = next
	return out, nudged
}

// ReplaceLoot swaps the catalog for one built from templates, without the
// equivalence check.
func (s State) ReplaceLoot(templates []domain.RewardTemplate) State {
	out := s.clone()
	out.Catalog = NewCatalog(templates)
	return out
}

// EditLoot replaces the catalog with manually edited slots.
func (s State) EditLoot(slots []domain.RewardSlot) State {
	out := s.clone()
	out.Catalog = ReplaceAll(slots)
	return out
}
