package tracker

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/pbaille/grind/internal/domain"
	"github.com/pbaille/grind/internal/economy"
	"github.com/pbaille/grind/internal/store"
	"github.com/pbaille/grind/internal/suggest"
	"github.com/pbaille/grind/internal/taskgen"
)

type fakeSuggester struct {
	tasks   []suggest.TaskSuggestion
	loot    []domain.RewardTemplate
	minutes int
	err     error
	during  func()
	calls   int
}

func (f *fakeSuggester) call() {
	f.calls++
	if f.during != nil {
		f.during()
	}
}

func (f *fakeSuggester) GenerateTasks(ctx context.Context, todo string, minutes int) ([]suggest.TaskSuggestion, error) {
	f.call()
	return f.tasks, f.err
}

func (f *fakeSuggester) GenerateLoot(ctx context.Context, profile map[string]string, previousLabels []string) ([]domain.RewardTemplate, error) {
	f.call()
	return f.loot, f.err
}

func (f *fakeSuggester) EstimateMinutes(ctx context.Context, taskName string) (int, error) {
	f.call()
	return f.minutes, f.err
}

type testEnv struct {
	st  *store.Store
	ai  *fakeSuggester
	now time.Time
}

func (e *testEnv) open(t *testing.T) *Service {
	t.Helper()
	svc, err := Open(e.st,
		WithClock(func() time.Time { return e.now }),
		WithFallbackKey("test-key"),
		WithSuggester(func(string) (Suggester, error) { return e.ai, nil }),
		WithFetcher(func(ctx context.Context, url string) (string, error) {
			return "Pay rent\nCall the bank", nil
		}),
	)
	if err != nil {
		t.Fatalf("open service: %v", err)
	}
	return svc
}

func newTestService(t *testing.T) (*Service, *testEnv) {
	t.Helper()
	st, err := store.New(filepath.Join(t.TempDir(), "grind.db"), nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	env := &testEnv{
		st:  st,
		ai:  &fakeSuggester{},
		now: time.Date(2026, 3, 10, 9, 0, 0, 0, time.Local),
	}
	return env.open(t), env
}

func slotByThreshold(t *testing.T, svc *Service, threshold int) domain.RewardSlot {
	t.Helper()
	for _, s := range svc.State().Catalog.Slots {
		if s.Threshold == threshold {
			return s
		}
	}
	t.Fatalf("no slot with threshold %d", threshold)
	return domain.RewardSlot{}
}

func TestCompleteAndClaimPersist(t *testing.T) {
	svc, env := newTestService(t)

	task, err := svc.AddTask("Write report", 20)
	if err != nil {
		t.Fatalf("AddTask: %v", err)
	}
	if _, err := svc.CompleteTask(task.ID, 5*time.Minute); err != nil {
		t.Fatalf("CompleteTask: %v", err)
	}
	if _, err := svc.CompleteTask(task.ID, time.Minute); !errors.Is(err, economy.ErrTaskNotFound) {
		t.Fatalf("second complete err=%v, want ErrTaskNotFound", err)
	}

	cheap := slotByThreshold(t, svc, 15)
	res, err := svc.Claim(cheap.ID)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if res.AvailablePoints != 5 {
		t.Fatalf("available=%d, want 5", res.AvailablePoints)
	}

	pricey := slotByThreshold(t, svc, 20)
	_, err = svc.Claim(pricey.ID)
	var ipe *economy.InsufficientPointsError
	if !errors.As(err, &ipe) || ipe.Shortfall != 15 {
		t.Fatalf("err=%v, want shortfall 15", err)
	}

	reopened := env.open(t)
	st := reopened.State()
	if st.Ledger.LifetimeXP != 20 || st.Ledger.PointsSpent != 15 {
		t.Fatalf("ledger=%+v", st.Ledger)
	}
	if s, _ := st.Catalog.Find(cheap.ID); !s.Claimed {
		t.Fatal("claimed slot not persisted")
	}
	if s, _ := st.Catalog.Find(pricey.ID); s.Claimed {
		t.Fatal("failed claim changed the catalog")
	}
	if len(st.CompletedLog) != 1 {
		t.Fatalf("completed log=%d, want 1", len(st.CompletedLog))
	}

	hist, err := reopened.History(0, 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(hist) != 1 || hist[0].Name != "Write report" || hist[0].DurationMs != 300000 {
		t.Fatalf("history=%+v", hist)
	}
}

func TestConcurrentClaimsNeverOverspend(t *testing.T) {
	svc, _ := newTestService(t)
	task, _ := svc.AddTask("Deep work", 25)
	if _, err := svc.CompleteTask(task.ID, 0); err != nil {
		t.Fatalf("CompleteTask: %v", err)
	}

	slot := slotByThreshold(t, svc, 15)
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Claim(slot.ID); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("wins=%d, want 1", wins)
	}
	l := svc.State().Ledger
	if l.PointsSpent != 15 || l.AvailablePoints() != 10 {
		t.Fatalf("ledger=%+v", l)
	}
}

func TestGenerateTasksLocal(t *testing.T) {
	svc, env := newTestService(t)

	res, err := svc.GenerateTasks(context.Background(), GenerateRequest{Todo: "Write docs\nPay rent"})
	if err != nil {
		t.Fatalf("GenerateTasks: %v", err)
	}
	if res.Source != SourceLocal || len(res.Tasks) == 0 {
		t.Fatalf("res=%+v", res)
	}
	if got := len(svc.State().Tasks); got != len(res.Tasks) {
		t.Fatalf("tasks=%d, want %d after replace", got, len(res.Tasks))
	}

	more, err := svc.GenerateTasks(context.Background(), GenerateRequest{Todo: "Water plants", Append: true})
	if err != nil {
		t.Fatalf("GenerateTasks append: %v", err)
	}
	if got := len(svc.State().Tasks); got != len(res.Tasks)+len(more.Tasks) {
		t.Fatalf("tasks=%d after append", got)
	}
	if env.ai.calls != 0 {
		t.Fatalf("local generation called the AI %d times", env.ai.calls)
	}

	if _, err := svc.GenerateTasks(context.Background(), GenerateRequest{Todo: "  \n"}); !errors.Is(err, ErrEmptyTodo) {
		t.Fatalf("err=%v, want ErrEmptyTodo", err)
	}
}

func TestGenerateTasksFromURL(t *testing.T) {
	svc, _ := newTestService(t)

	res, err := svc.GenerateTasks(context.Background(), GenerateRequest{URL: "https://example.com/todo"})
	if err != nil {
		t.Fatalf("GenerateTasks: %v", err)
	}
	want := taskgen.FromTodo("Pay rent\nCall the bank")
	if len(res.Tasks) != len(want) || res.Tasks[0].Name != want[0].Name {
		t.Fatalf("tasks=%+v, want names of %+v", res.Tasks, want)
	}
}

func TestGenerateTasksAI(t *testing.T) {
	svc, env := newTestService(t)
	env.ai.tasks = []suggest.TaskSuggestion{{Name: "Outline", XP: 10}, {Name: "Draft", XP: 25}}
	before := len(svc.State().Tasks)

	res, err := svc.GenerateTasks(context.Background(), GenerateRequest{Todo: "Write essay", UseAI: true, Append: true})
	if err != nil {
		t.Fatalf("GenerateTasks: %v", err)
	}
	if res.Source != SourceAI || len(res.Tasks) != 2 || res.Tasks[1].Name != "Draft" || res.Tasks[1].XP != 25 {
		t.Fatalf("res=%+v", res)
	}
	if res.Tasks[0].ID == "" || res.Tasks[0].ID == res.Tasks[1].ID {
		t.Fatal("generated tasks need distinct ids")
	}
	if got := len(svc.State().Tasks); got != before+2 {
		t.Fatalf("tasks=%d, want %d", got, before+2)
	}
}

func TestGenerateTasksFallback(t *testing.T) {
	svc, env := newTestService(t)
	env.ai.err = &suggest.APIError{Status: 500, Message: "boom"}

	res, err := svc.GenerateTasks(context.Background(), GenerateRequest{Todo: "Write docs", UseAI: true, Minutes: 240})
	var fe *FallbackError
	if !errors.As(err, &fe) {
		t.Fatalf("err=%v, want FallbackError", err)
	}
	var apiErr *suggest.APIError
	if !errors.As(err, &apiErr) || apiErr.Status != 500 {
		t.Fatalf("fallback should wrap the API error, got %v", err)
	}
	if res.Source != SourceFallback || len(res.Tasks) == 0 {
		t.Fatalf("res=%+v", res)
	}
	if got := len(svc.State().Tasks); got != len(res.Tasks) {
		t.Fatalf("fallback tasks not applied: %d", got)
	}
}

func TestGenerateTasksWithoutKey(t *testing.T) {
	st, err := store.New(filepath.Join(t.TempDir(), "grind.db"), nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()
	svc, err := Open(st)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	before := svc.State().Tasks

	_, err = svc.GenerateTasks(context.Background(), GenerateRequest{Todo: "Write docs", UseAI: true})
	if !errors.Is(err, suggest.ErrNoAPIKey) {
		t.Fatalf("err=%v, want ErrNoAPIKey", err)
	}
	if got := svc.State().Tasks; len(got) != len(before) || got[0].ID != before[0].ID {
		t.Fatal("tasks changed without an API key")
	}
}

func TestGenerateTasksStaleResponseDiscarded(t *testing.T) {
	svc, env := newTestService(t)
	env.ai.tasks = []suggest.TaskSuggestion{{Name: "Old", XP: 10}}
	env.ai.during = func() { svc.taskGen.Begin() }
	before := len(svc.State().Tasks)

	_, err := svc.GenerateTasks(context.Background(), GenerateRequest{Todo: "x", UseAI: true})
	if !errors.Is(err, ErrStaleResponse) {
		t.Fatalf("err=%v, want ErrStaleResponse", err)
	}
	if got := len(svc.State().Tasks); got != before {
		t.Fatalf("tasks=%d, want %d", got, before)
	}
}

func TestGenerateTasksLocalSupersedesAI(t *testing.T) {
	svc, env := newTestService(t)
	env.ai.tasks = []suggest.TaskSuggestion{{Name: "From AI", XP: 10}}
	env.ai.during = func() {
		if _, err := svc.GenerateTasks(context.Background(), GenerateRequest{Todo: "Local only"}); err != nil {
			t.Errorf("local GenerateTasks: %v", err)
		}
	}

	_, err := svc.GenerateTasks(context.Background(), GenerateRequest{Todo: "x", UseAI: true})
	if !errors.Is(err, ErrStaleResponse) {
		t.Fatalf("err=%v, want ErrStaleResponse", err)
	}
	tasks := svc.State().Tasks
	if len(tasks) != 1 || tasks[0].Name != "Local only" {
		t.Fatalf("tasks=%+v, want the local task only", tasks)
	}
}

func TestEditLootSupersedesRefresh(t *testing.T) {
	svc, env := newTestService(t)
	env.ai.loot = []domain.RewardTemplate{{Threshold: 33, Label: "AI reward"}}
	env.ai.during = func() {
		if _, err := svc.EditLoot([]domain.RewardSlot{{Threshold: 44, Label: "Manual"}}); err != nil {
			t.Errorf("EditLoot: %v", err)
		}
	}

	if _, err := svc.RefreshLoot(context.Background()); !errors.Is(err, ErrStaleResponse) {
		t.Fatalf("err=%v, want ErrStaleResponse", err)
	}
	slots := svc.State().Catalog.Slots
	if len(slots) != 1 || slots[0].Label != "Manual" || slots[0].Threshold != 44 {
		t.Fatalf("slots=%+v, want the manual edit", slots)
	}
}

func TestRolloverSupersedesRefresh(t *testing.T) {
	svc, env := newTestService(t)
	env.ai.loot = []domain.RewardTemplate{{Threshold: 33, Label: "AI reward"}}
	env.ai.during = func() {
		if _, err := svc.Rollover(); err != nil {
			t.Errorf("Rollover: %v", err)
		}
	}
	before := svc.State().Catalog.Slots

	if _, err := svc.RefreshLoot(context.Background()); !errors.Is(err, ErrStaleResponse) {
		t.Fatalf("err=%v, want ErrStaleResponse", err)
	}
	if got := svc.State().Catalog.Slots; len(got) != len(before) || got[0].Label == "AI reward" {
		t.Fatalf("slots=%+v, stale refresh applied", got)
	}
}

func TestEstimateTaskXP(t *testing.T) {
	svc, env := newTestService(t)
	env.ai.minutes = 25

	task, _ := svc.AddTask("Call the bank", 10)
	got, err := svc.EstimateTaskXP(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("EstimateTaskXP: %v", err)
	}
	if got.XP != 13 || got.IsNew {
		t.Fatalf("task=%+v, want xp 13 and estimated", got)
	}
	if _, err := svc.EstimateTaskXP(context.Background(), task.ID); !errors.Is(err, ErrAlreadyEstimated) {
		t.Fatalf("err=%v, want ErrAlreadyEstimated", err)
	}
	if _, err := svc.EstimateTaskXP(context.Background(), "missing"); !errors.Is(err, economy.ErrTaskNotFound) {
		t.Fatalf("err=%v, want ErrTaskNotFound", err)
	}
}

func TestEstimateTaskXPFallback(t *testing.T) {
	svc, env := newTestService(t)
	env.ai.err = &suggest.SchemaError{What: `missing "minutes"`}

	task, _ := svc.AddTask("Refactor the parser", 10)
	got, err := svc.EstimateTaskXP(context.Background(), task.ID)
	var fe *FallbackError
	if !errors.As(err, &fe) {
		t.Fatalf("err=%v, want FallbackError", err)
	}
	if want := taskgen.EstimateXP("Refactor the parser"); got.XP != want || got.IsNew {
		t.Fatalf("task=%+v, want xp %d", got, want)
	}
}

func TestEstimateTaskXPStaleWhenRenamed(t *testing.T) {
	svc, env := newTestService(t)
	env.ai.minutes = 60

	task, _ := svc.AddTask("Call the bank", 10)
	renamed := "Email the bank"
	env.ai.during = func() {
		if _, err := svc.UpdateTask(task.ID, economy.TaskPatch{Name: &renamed}); err != nil {
			t.Errorf("UpdateTask: %v", err)
		}
	}

	if _, err := svc.EstimateTaskXP(context.Background(), task.ID); !errors.Is(err, ErrStaleResponse) {
		t.Fatalf("err=%v, want ErrStaleResponse", err)
	}
	for _, tk := range svc.State().Tasks {
		if tk.ID == task.ID && (tk.XP != 10 || !tk.IsNew) {
			t.Fatalf("stale estimate applied: %+v", tk)
		}
	}
}

func TestRefreshLoot(t *testing.T) {
	svc, env := newTestService(t)
	env.ai.loot = []domain.RewardTemplate{
		{Threshold: 20, Label: "Tea"},
		{Threshold: 40, Label: "Walk"},
		{Threshold: 100, Label: "Cinema"},
	}

	res, err := svc.RefreshLoot(context.Background())
	if err != nil {
		t.Fatalf("RefreshLoot: %v", err)
	}
	if res.Nudged || res.Source != SourceAI || len(res.Slots) != 3 || res.Slots[0].Label != "Tea" {
		t.Fatalf("res=%+v", res)
	}

	again, err := svc.RefreshLoot(context.Background())
	if err != nil {
		t.Fatalf("RefreshLoot again: %v", err)
	}
	if !again.Nudged {
		t.Fatal("identical suggestion should be nudged")
	}
	if again.Slots[0].Threshold == 20 && again.Slots[1].Threshold == 40 {
		t.Fatalf("thresholds unchanged after nudge: %+v", again.Slots)
	}
}

func TestRefreshLootFallback(t *testing.T) {
	svc, env := newTestService(t)
	env.ai.err = errors.New("network down")

	slot := slotByThreshold(t, svc, 15)
	task, _ := svc.AddTask("Deep work", 25)
	_, _ = svc.CompleteTask(task.ID, 0)
	if _, err := svc.Claim(slot.ID); err != nil {
		t.Fatalf("Claim: %v", err)
	}

	res, err := svc.RefreshLoot(context.Background())
	var fe *FallbackError
	if !errors.As(err, &fe) || fe.Op != "refresh loot" {
		t.Fatalf("err=%v, want FallbackError", err)
	}
	pool := economy.DefaultLootTemplates()
	if res.Source != SourceFallback || len(res.Slots) != len(pool) {
		t.Fatalf("res=%+v", res)
	}
	for i, s := range res.Slots {
		if s.Claimed || s.Threshold != pool[i].Threshold || s.Label != pool[i].Label {
			t.Fatalf("slot %d=%+v, want %+v", i, s, pool[i])
		}
	}
	if svc.State().Ledger.PointsSpent != 15 {
		t.Fatal("fallback must not refund points")
	}
}

func TestRolloverWithSettings(t *testing.T) {
	svc, env := newTestService(t)
	goal := 20
	if _, err := svc.UpdateSettings(SettingsPatch{DailyGoal: &goal}); err != nil {
		t.Fatalf("UpdateSettings: %v", err)
	}

	task, _ := svc.AddTask("Ship feature", 20)
	res, err := svc.CompleteTask(task.ID, 0)
	if err != nil {
		t.Fatalf("CompleteTask: %v", err)
	}
	if !res.GoalReached || !svc.PreviewRollover() {
		t.Fatal("goal should be reached")
	}
	if svc.NeedsRollover() {
		t.Fatal("same day should not need a rollover")
	}

	env.now = env.now.AddDate(0, 0, 1)
	if !svc.NeedsRollover() {
		t.Fatal("next day should need a rollover")
	}
	closed, err := svc.Rollover()
	if err != nil {
		t.Fatalf("Rollover: %v", err)
	}
	if !closed.MetGoal || closed.Streak != 1 {
		t.Fatalf("closed=%+v", closed)
	}

	st := svc.State()
	if st.Ledger.DailyEarnedXP != 0 || st.Ledger.LastResetDate != "2026-03-11" || len(st.CompletedLog) != 0 {
		t.Fatalf("ledger=%+v log=%d", st.Ledger, len(st.CompletedLog))
	}
	bonus := taskgen.StreakBonusName(closed.Streak)
	found := false
	for _, tk := range st.Tasks {
		found = found || tk.Name == bonus
	}
	if !found {
		t.Fatalf("missing %q in %+v", bonus, st.Tasks)
	}
}

func TestUpdateSettingsClamps(t *testing.T) {
	svc, _ := newTestService(t)
	minutes := 5
	goal := 0
	key := "  sk-test  "
	snap, err := svc.UpdateSettings(SettingsPatch{
		DailyGoal:            &goal,
		DefaultMinutes:       &minutes,
		OpenAIKey:            &key,
		DefaultTasksOverride: &[]domain.TaskTemplate{{Name: " Plan ", XP: 200000}, {Name: " "}},
	})
	if err != nil {
		t.Fatalf("UpdateSettings: %v", err)
	}
	if snap.Settings.DefaultAvailableMinutes != taskgen.MinMinutes {
		t.Fatalf("minutes=%d, want %d", snap.Settings.DefaultAvailableMinutes, taskgen.MinMinutes)
	}
	if snap.Settings.OpenAIKey != "sk-test" {
		t.Fatalf("key=%q", snap.Settings.OpenAIKey)
	}
	if snap.State.Ledger.DailyGoal != 1 {
		t.Fatalf("goal=%d, want 1", snap.State.Ledger.DailyGoal)
	}
	o := snap.Settings.DefaultTasksOverride
	if len(o) != 1 || o[0].Name != "Plan" || o[0].XP != domain.MaxXP {
		t.Fatalf("override=%+v", o)
	}
}

func TestExportClearImport(t *testing.T) {
	svc, _ := newTestService(t)
	task, _ := svc.AddTask("Write report", 30)
	_, _ = svc.CompleteTask(task.ID, 0)

	data, err := svc.Export()
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if err := svc.ClearAll(true); err != nil {
		t.Fatalf("ClearAll: %v", err)
	}
	if svc.State().Ledger.LifetimeXP != 0 {
		t.Fatal("clear kept the ledger")
	}
	if hist, _ := svc.History(10, 0); len(hist) != 0 {
		t.Fatalf("history=%d after clear", len(hist))
	}

	skipped, err := svc.Import(data)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if len(skipped) != 0 {
		t.Fatalf("skipped=%v", skipped)
	}
	if svc.State().Ledger.LifetimeXP != 30 {
		t.Fatalf("ledger=%+v after import", svc.State().Ledger)
	}

	if _, err := svc.Import([]byte(`[1,2]`)); err == nil {
		t.Fatal("expected error for non-object import")
	}
}
