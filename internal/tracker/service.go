// Package tracker is the application service: it owns the current snapshot,
// serialises commands, persists every change and talks to the suggestion
// service.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pbaille/grind/internal/domain"
	"github.com/pbaille/grind/internal/economy"
	"github.com/pbaille/grind/internal/fetcher"
	"github.com/pbaille/grind/internal/snapshot"
	"github.com/pbaille/grind/internal/store"
	"github.com/pbaille/grind/internal/suggest"
	"github.com/pbaille/grind/internal/taskgen"
)

// DateLayout formats the day keys stored in the ledger.
const DateLayout = "2006-01-02"

// ErrStaleResponse is returned when a newer request superseded an AI response.
var ErrStaleResponse = errors.New("response superseded by a newer request")

// Suggester is the AI suggestion service.
type Suggester interface {
	GenerateTasks(ctx context.Context, todo string, minutes int) ([]suggest.TaskSuggestion, error)
	GenerateLoot(ctx context.Context, profile map[string]string, previousLabels []string) ([]domain.RewardTemplate, error)
	EstimateMinutes(ctx context.Context, taskName string) (int, error)
}

// SuggesterFactory builds a Suggester for an API key.
type SuggesterFactory func(apiKey string) (Suggester, error)

// FallbackError reports an AI failure after which a local fallback was applied.
type FallbackError struct {
	Op  string
	Err error
}

func (e *FallbackError) Error() string {
	return fmt.Sprintf("%s failed, fallback applied: %v", e.Op, e.Err)
}

func (e *FallbackError) Unwrap() error { return e.Err }

// Service runs commands against the persisted snapshot.
type Service struct {
	mu    sync.Mutex
	store *store.Store
	log   *zap.Logger
	snap  snapshot.Snapshot
	now   func() time.Time

	newSuggester SuggesterFactory
	fallbackKey  string
	fetch        func(ctx context.Context, url string) (string, error)

	taskGen suggest.Generations
	lootGen suggest.Generations
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithSuggester overrides how the AI client is built.
func WithSuggester(f SuggesterFactory) Option {
	return func(s *Service) { s.newSuggester = f }
}

// WithFallbackKey sets the API key used when none is saved in the settings.
func WithFallbackKey(key string) Option {
	return func(s *Service) { s.fallbackKey = key }
}

// WithFetcher overrides how to-do lists are fetched from a URL.
func WithFetcher(fetch func(ctx context.Context, url string) (string, error)) Option {
	return func(s *Service) { s.fetch = fetch }
}

// Open loads the saved snapshot, or first-launch defaults.
func Open(st *store.Store, opts ...Option) (*Service, error) {
	s := &Service{
		store: st,
		log:   zap.NewNop(),
		now:   time.Now,
		newSuggester: func(key string) (Suggester, error) {
			return suggest.New(key)
		},
		fetch: fetcher.FetchTodo,
	}
	for _, opt := range opts {
		opt(s)
	}

	snap, err := st.Load(snapshot.Defaults(s.today()))
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	s.snap = snap
	return s, nil
}

func (s *Service) today() string {
	return s.now().Format(DateLayout)
}

// Snapshot returns a copy of the current snapshot.
func (s *Service) Snapshot() snapshot.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.snap
	out.State = s.snap.State.Clone()
	return out
}

// State returns a copy of the current economy state.
func (s *Service) State() economy.State {
	return s.Snapshot().State
}

// NeedsRollover reports whether the day was last closed on another date.
func (s *Service) NeedsRollover() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.State.Ledger.NeedsRollover(s.today())
}

// commit persists next and swaps it in. Callers hold s.mu.
func (s *Service) commit(next snapshot.Snapshot, records ...domain.CompletedTask) error {
	if err := s.store.Save(next, records...); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	s.snap = next
	return nil
}

// supersedeLocked marks in-flight AI responses for the task list or the
// catalog as stale once a command has replaced them. Callers hold s.mu.
func (s *Service) supersedeLocked(tasks, loot bool) {
	if tasks {
		s.taskGen.Begin()
	}
	if loot {
		s.lootGen.Begin()
	}
}

func (s *Service) commitState(next economy.State, records ...domain.CompletedTask) error {
	snap := s.snap
	snap.State = next
	return s.commit(snap, records...)
}

// AddTask appends a task awaiting estimation.
func (s *Service) AddTask(name string, xp int) (domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, task := s.snap.State.AddTask(name, xp)
	if err := s.commitState(next); err != nil {
		return domain.Task{}, err
	}
	return task, nil
}

// UpdateTask edits a task.
func (s *Service) UpdateTask(id string, patch economy.TaskPatch) (domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, task, err := s.snap.State.UpdateTask(id, patch)
	if err != nil {
		return domain.Task{}, err
	}
	if err := s.commitState(next); err != nil {
		return domain.Task{}, err
	}
	return task, nil
}

// DeleteTask removes a task without credit.
func (s *Service) DeleteTask(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := s.snap.State.DeleteTask(id)
	if err != nil {
		return err
	}
	return s.commitState(next)
}

// CompleteTask credits a task and records it in the log and the history.
func (s *Service) CompleteTask(id string, spent time.Duration) (economy.CompleteResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, res, err := s.snap.State.CompleteTask(id, spent.Milliseconds(), s.now())
	if err != nil {
		return economy.CompleteResult{}, err
	}
	if err := s.commitState(next, res.Record); err != nil {
		return economy.CompleteResult{}, err
	}
	s.log.Info("task completed",
		zap.String("task", res.Task.Name),
		zap.Int("xp", res.XPAwarded),
		zap.Bool("goal_reached", res.GoalReached))
	return res, nil
}

// Claim redeems a reward slot.
func (s *Service) Claim(slotID string) (economy.ClaimResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, res, err := s.snap.State.Claim(slotID)
	if err != nil {
		return economy.ClaimResult{}, err
	}
	if err := s.commitState(next); err != nil {
		return economy.ClaimResult{}, err
	}
	s.log.Info("reward claimed",
		zap.String("reward", res.Slot.Label),
		zap.Int("cost", res.Slot.Threshold),
		zap.Int("available", res.AvailablePoints))
	return res, nil
}

// PreviewRollover reports whether closing the day now counts as meeting the goal.
func (s *Service) PreviewRollover() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.State.PreviewRollover()
}

// Rollover closes the day.
func (s *Service) Rollover() (economy.DayClosed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set := s.snap.Settings
	pool := economy.LootPool(set.DefaultLootOverride)
	defaults := func(streak int) []domain.Task {
		return taskgen.DefaultTasks(streak, set.DefaultTasksOverride)
	}

	next, closed := s.snap.State.Rollover(s.today(), pool, defaults)
	if err := s.commitState(next); err != nil {
		return economy.DayClosed{}, err
	}
	s.supersedeLocked(true, true)
	s.log.Info("day closed",
		zap.Bool("met_goal", closed.MetGoal),
		zap.Int("streak", closed.Streak),
		zap.Int("slots_refilled", closed.SlotsRefilled))
	return closed, nil
}

// EditLoot replaces the catalog with edited slots.
func (s *Service) EditLoot(slots []domain.RewardSlot) ([]domain.RewardSlot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.snap.State.EditLoot(slots)
	if err := s.commitState(next); err != nil {
		return nil, err
	}
	s.supersedeLocked(false, true)
	return next.Catalog.Slots, nil
}

// History returns recorded completions, most recent first.
func (s *Service) History(limit, offset int) ([]domain.CompletedTask, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.store.History(limit, max(0, offset))
}

// DailyTotals sums completions per day.
func (s *Service) DailyTotals(days int) ([]store.DayTotal, error) {
	if days <= 0 {
		days = 7
	}
	return s.store.DailyTotals(days)
}

// Export returns the snapshot as an indented JSON document.
func (s *Service) Export() ([]byte, error) {
	return snapshot.Export(s.Snapshot())
}

// ExportWithoutKey is Export without the saved API key.
func (s *Service) ExportWithoutKey() ([]byte, error) {
	return snapshot.ExportWithoutKey(s.Snapshot())
}

// Import merges a document over the current snapshot and reports the
// fields it had to skip.
func (s *Service) Import(data []byte) ([]snapshot.SkippedField, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, skipped, err := snapshot.Merge(s.snap, data)
	if err != nil {
		return nil, err
	}
	if err := s.commit(next); err != nil {
		return nil, err
	}
	s.supersedeLocked(true, true)
	return skipped, nil
}

// ClearAll wipes the saved state back to first-launch defaults.
func (s *Service) ClearAll(withHistory bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.Clear(withHistory); err != nil {
		return fmt.Errorf("clear: %w", err)
	}
	s.snap = snapshot.Defaults(s.today())
	s.supersedeLocked(true, true)
	return nil
}
