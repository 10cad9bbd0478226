package tracker

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pbaille/grind/internal/domain"
	"github.com/pbaille/grind/internal/economy"
	"github.com/pbaille/grind/internal/suggest"
	"github.com/pbaille/grind/internal/taskgen"
)

var (
	ErrEmptyTodo        = errors.New("to-do list is empty")
	ErrAlreadyEstimated = errors.New("task was already estimated")
)

// Source tells where generated content came from.
type Source string

const (
	SourceLocal    Source = "local"
	SourceAI       Source = "ai"
	SourceFallback Source = "fallback"
)

// GenerateRequest describes a task generation. URL, when set, replaces Todo
// with the lines fetched from that page.
type GenerateRequest struct {
	Todo    string `json:"todo"`
	URL     string `json:"url,omitempty"`
	Minutes int    `json:"minutes,omitempty"`
	UseAI   bool   `json:"useAI"`
	Append  bool   `json:"append"`
}

// GenerateResult lists the tasks that were added.
type GenerateResult struct {
	Tasks  []domain.Task `json:"tasks"`
	Source Source        `json:"source"`
}

// LootResult is the catalog after a refresh.
type LootResult struct {
	Slots  []domain.RewardSlot `json:"loot"`
	Nudged bool                `json:"nudged"`
	Source Source              `json:"source"`
}

// suggesterLocked builds the AI client from the saved key, or the fallback
// key when the saved one does not resolve. Callers hold s.mu.
func (s *Service) suggesterLocked() (Suggester, error) {
	key := suggest.ResolveKey(s.snap.Settings.OpenAIKey)
	if key == "" {
		key = s.fallbackKey
	}
	if key == "" {
		return nil, suggest.ErrNoAPIKey
	}
	return s.newSuggester(key)
}

// GenerateTasks turns a to-do list into tasks, locally or through the AI.
// When the AI call fails the local generator, fitted to the time budget, is
// used instead and a *FallbackError is returned alongside the result.
func (s *Service) GenerateTasks(ctx context.Context, req GenerateRequest) (GenerateResult, error) {
	todo := req.Todo
	if req.URL != "" {
		text, err := s.fetch(ctx, req.URL)
		if err != nil {
			return GenerateResult{}, fmt.Errorf("import %s: %w", req.URL, err)
		}
		todo = text
	}
	if strings.TrimSpace(todo) == "" {
		return GenerateResult{}, ErrEmptyTodo
	}

	if !req.UseAI {
		s.mu.Lock()
		defer s.mu.Unlock()
		res, err := s.applyTasksLocked(taskgen.FromTodo(todo), req.Append, SourceLocal)
		if err == nil {
			s.supersedeLocked(true, false)
		}
		return res, err
	}

	s.mu.Lock()
	minutes := req.Minutes
	if minutes == 0 {
		minutes = s.snap.Settings.DefaultAvailableMinutes
	}
	ai, err := s.suggesterLocked()
	s.mu.Unlock()
	if err != nil {
		return GenerateResult{}, err
	}
	minutes = taskgen.ClampMinutes(minutes)

	tok := s.taskGen.Begin()
	suggestions, aiErr := ai.GenerateTasks(ctx, todo, minutes)
	if ctx.Err() != nil {
		return GenerateResult{}, ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.taskGen.IsCurrent(tok) {
		return GenerateResult{}, ErrStaleResponse
	}

	if aiErr != nil {
		s.log.Warn("task generation failed, using local generator", zap.Error(aiErr))
		res, err := s.applyTasksLocked(taskgen.FitBudget(taskgen.FromTodo(todo), minutes), req.Append, SourceFallback)
		if err != nil {
			return res, err
		}
		return res, &FallbackError{Op: "generate tasks", Err: aiErr}
	}

	tasks := make([]domain.Task, 0, len(suggestions))
	for _, sg := range suggestions {
		tasks = append(tasks, domain.Task{ID: uuid.NewString(), Name: sg.Name, XP: sg.XP})
	}
	return s.applyTasksLocked(tasks, req.Append, SourceAI)
}

func (s *Service) applyTasksLocked(tasks []domain.Task, appendTasks bool, src Source) (GenerateResult, error) {
	var next economy.State
	if appendTasks {
		next = s.snap.State.AppendTasks(tasks)
	} else {
		next = s.snap.State.ReplaceTasks(tasks)
	}
	if err := s.commitState(next); err != nil {
		return GenerateResult{}, err
	}
	s.log.Info("tasks generated",
		zap.Int("count", len(tasks)),
		zap.String("source", string(src)),
		zap.Bool("append", appendTasks))

	out := next.Tasks[len(next.Tasks)-len(tasks):]
	return GenerateResult{Tasks: append([]domain.Task(nil), out...), Source: src}, nil
}

func (s *Service) findTaskLocked(id string) (domain.Task, bool) {
	for _, t := range s.snap.State.Tasks {
		if t.ID == id {
			return t, true
		}
	}
	return domain.Task{}, false
}

// EstimateTaskXP prices a freshly added task from the AI's minute estimate.
// Only tasks still awaiting estimation qualify. On AI failure the keyword
// estimate is applied and a *FallbackError returned with the task.
func (s *Service) EstimateTaskXP(ctx context.Context, id string) (domain.Task, error) {
	s.mu.Lock()
	task, ok := s.findTaskLocked(id)
	if !ok {
		s.mu.Unlock()
		return domain.Task{}, economy.ErrTaskNotFound
	}
	if !task.IsNew {
		s.mu.Unlock()
		return domain.Task{}, ErrAlreadyEstimated
	}
	ai, err := s.suggesterLocked()
	s.mu.Unlock()
	if err != nil {
		return domain.Task{}, err
	}

	minutes, aiErr := ai.EstimateMinutes(ctx, task.Name)
	if ctx.Err() != nil {
		return domain.Task{}, ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.findTaskLocked(id)
	if !ok || !current.IsNew || current.Name != task.Name {
		return domain.Task{}, ErrStaleResponse
	}

	xp := suggest.XPForMinutes(minutes)
	if aiErr != nil {
		xp = taskgen.EstimateXP(task.Name)
	}
	estimated := false
	next, updated, err := s.snap.State.UpdateTask(id, economy.TaskPatch{XP: &xp, IsNew: &estimated})
	if err != nil {
		return domain.Task{}, err
	}
	if err := s.commitState(next); err != nil {
		return domain.Task{}, err
	}
	if aiErr != nil {
		s.log.Warn("estimate failed, using keyword estimate", zap.Error(aiErr))
		return updated, &FallbackError{Op: "estimate task", Err: aiErr}
	}
	return updated, nil
}

// RefreshLoot asks the AI for a new reward catalog tailored to the profile.
// An equivalent suggestion is nudged. On AI failure the catalog is reset to
// the default pool and a *FallbackError returned with it.
func (s *Service) RefreshLoot(ctx context.Context) (LootResult, error) {
	s.mu.Lock()
	profile := make(map[string]string, len(s.snap.Settings.ProfileAnswers))
	for k, v := range s.snap.Settings.ProfileAnswers {
		if strings.TrimSpace(v) != "" {
			profile[k] = v
		}
	}
	labels := make([]string, 0, len(s.snap.State.Catalog.Slots))
	for _, sl := range s.snap.State.Catalog.Slots {
		labels = append(labels, sl.Label)
	}
	ai, err := s.suggesterLocked()
	s.mu.Unlock()
	if err != nil {
		return LootResult{}, err
	}

	tok := s.lootGen.Begin()
	templates, aiErr := ai.GenerateLoot(ctx, profile, labels)
	if ctx.Err() != nil {
		return LootResult{}, ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.lootGen.IsCurrent(tok) {
		return LootResult{}, ErrStaleResponse
	}

	if aiErr != nil {
		s.log.Warn("loot refresh failed, using default pool", zap.Error(aiErr))
		next := s.snap.State.ReplaceLoot(economy.LootPool(s.snap.Settings.DefaultLootOverride))
		if err := s.commitState(next); err != nil {
			return LootResult{}, err
		}
		s.supersedeLocked(false, true)
		return LootResult{Slots: next.Catalog.Slots, Source: SourceFallback},
			&FallbackError{Op: "refresh loot", Err: aiErr}
	}

	next, nudged := s.snap.State.ApplyLoot(templates)
	if err := s.commitState(next); err != nil {
		return LootResult{}, err
	}
	s.log.Info("loot refreshed", zap.Int("slots", len(next.Catalog.Slots)), zap.Bool("nudged", nudged))
	return LootResult{Slots: next.Catalog.Slots, Nudged: nudged, Source: SourceAI}, nil
}
