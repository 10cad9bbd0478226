package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/pbaille/grind/internal/domain"
	"github.com/pbaille/grind/internal/store"
	"github.com/pbaille/grind/internal/suggest"
	"github.com/pbaille/grind/internal/tracker"
)

type stubSuggester struct {
	loot []domain.RewardTemplate
	err  error
}

func (s stubSuggester) GenerateTasks(ctx context.Context, todo string, minutes int) ([]suggest.TaskSuggestion, error) {
	return []suggest.TaskSuggestion{{Name: "Outline", XP: 10}}, s.err
}

func (s stubSuggester) GenerateLoot(ctx context.Context, profile map[string]string, previousLabels []string) ([]domain.RewardTemplate, error) {
	return s.loot, s.err
}

func (s stubSuggester) EstimateMinutes(ctx context.Context, taskName string) (int, error) {
	return 30, s.err
}

func newTestServer(t *testing.T, ai stubSuggester, opts ...Option) (http.Handler, *tracker.Service) {
	t.Helper()
	st, err := store.New(filepath.Join(t.TempDir(), "grind.db"), nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	svc, err := tracker.Open(st,
		tracker.WithClock(func() time.Time { return time.Date(2026, 3, 10, 9, 0, 0, 0, time.Local) }),
		tracker.WithFallbackKey("test-key"),
		tracker.WithSuggester(func(string) (tracker.Suggester, error) { return ai, nil }),
	)
	if err != nil {
		t.Fatalf("open service: %v", err)
	}
	return New(svc, "", opts...).Handler(), svc
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rec.Body.String())
	}
	return v
}

func TestHealth(t *testing.T) {
	h, _ := newTestServer(t, stubSuggester{})
	rec := do(t, h, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
}

func TestTaskLifecycleAndClaim(t *testing.T) {
	h, svc := newTestServer(t, stubSuggester{})

	rec := do(t, h, http.MethodPost, "/tasks", AddTaskRequest{Name: "Write report", XP: 20})
	if rec.Code != http.StatusCreated {
		t.Fatalf("add status=%d body=%s", rec.Code, rec.Body)
	}
	task := decodeBody[domain.Task](t, rec)

	rec = do(t, h, http.MethodPost, "/tasks/"+task.ID+"/complete", CompleteRequest{DurationMs: 60000})
	if rec.Code != http.StatusOK {
		t.Fatalf("complete status=%d body=%s", rec.Code, rec.Body)
	}
	rec = do(t, h, http.MethodPost, "/tasks/"+task.ID+"/complete", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("second complete status=%d, want 404", rec.Code)
	}

	var cheap, pricey domain.RewardSlot
	for _, s := range svc.State().Catalog.Slots {
		switch s.Threshold {
		case 15:
			cheap = s
		case 50:
			pricey = s
		}
	}

	rec = do(t, h, http.MethodPost, "/loot/"+pricey.ID+"/claim", nil)
	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("claim status=%d, want 402", rec.Code)
	}
	short := decodeBody[map[string]any](t, rec)
	if short["shortfall"] != float64(30) {
		t.Fatalf("shortfall=%v, want 30", short["shortfall"])
	}

	rec = do(t, h, http.MethodPost, "/loot/"+cheap.ID+"/claim", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("claim status=%d body=%s", rec.Code, rec.Body)
	}
	rec = do(t, h, http.MethodPost, "/loot/"+cheap.ID+"/claim", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("reclaim status=%d, want 409", rec.Code)
	}
	rec = do(t, h, http.MethodPost, "/loot/nope/claim", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown slot status=%d, want 404", rec.Code)
	}

	state := decodeBody[StateResponse](t, do(t, h, http.MethodGet, "/state", nil))
	if state.AvailablePoints != 5 || state.Ledger.PointsSpent != 15 {
		t.Fatalf("state ledger=%+v available=%d", state.Ledger, state.AvailablePoints)
	}

	hist := decodeBody[map[string]json.RawMessage](t, do(t, h, http.MethodGet, "/history?limit=5", nil))
	var entries []domain.CompletedTask
	if err := json.Unmarshal(hist["history"], &entries); err != nil || len(entries) != 1 {
		t.Fatalf("history=%s err=%v", hist["history"], err)
	}
}

func TestUpdateAndDeleteTask(t *testing.T) {
	h, _ := newTestServer(t, stubSuggester{})
	task := decodeBody[domain.Task](t, do(t, h, http.MethodPost, "/tasks", AddTaskRequest{Name: "Draft", XP: 5}))

	rec := do(t, h, http.MethodPatch, "/tasks/"+task.ID, map[string]any{"xp": 12})
	if rec.Code != http.StatusOK {
		t.Fatalf("patch status=%d", rec.Code)
	}
	if got := decodeBody[domain.Task](t, rec); got.XP != 12 || got.Name != "Draft" {
		t.Fatalf("task=%+v", got)
	}

	if rec := do(t, h, http.MethodDelete, "/tasks/"+task.ID, nil); rec.Code != http.StatusNoContent {
		t.Fatalf("delete status=%d", rec.Code)
	}
	if rec := do(t, h, http.MethodDelete, "/tasks/"+task.ID, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("second delete status=%d", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, "/tasks", AddTaskRequest{Name: " "}); rec.Code != http.StatusBadRequest {
		t.Fatalf("blank name status=%d", rec.Code)
	}
}

func TestRefreshLootFallbackWarns(t *testing.T) {
	h, _ := newTestServer(t, stubSuggester{err: errors.New("offline")})

	rec := do(t, h, http.MethodPost, "/loot/refresh", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body)
	}
	res := decodeBody[LootResponse](t, rec)
	if res.Warning == "" || res.Source != tracker.SourceFallback || len(res.Slots) != 10 {
		t.Fatalf("res=%+v", res)
	}
}

func TestAIEndpointsRateLimited(t *testing.T) {
	h, _ := newTestServer(t, stubSuggester{}, WithRateLimit(0.001, 1))

	req := tracker.GenerateRequest{Todo: "Write essay", UseAI: true}
	if rec := do(t, h, http.MethodPost, "/tasks/generate", req); rec.Code != http.StatusOK {
		t.Fatalf("first status=%d body=%s", rec.Code, rec.Body)
	}
	if rec := do(t, h, http.MethodPost, "/tasks/generate", req); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second status=%d, want 429", rec.Code)
	}
	// non-AI endpoints are not limited
	if rec := do(t, h, http.MethodGet, "/state", nil); rec.Code != http.StatusOK {
		t.Fatalf("state status=%d", rec.Code)
	}
}

func TestDayRollover(t *testing.T) {
	h, _ := newTestServer(t, stubSuggester{})

	preview := decodeBody[map[string]bool](t, do(t, h, http.MethodGet, "/day/preview", nil))
	if preview["metGoal"] {
		t.Fatal("goal should not be met yet")
	}

	rec := do(t, h, http.MethodPost, "/day/rollover", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
	var closed struct {
		MetGoal bool `json:"metGoal"`
		Streak  int  `json:"streak"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&closed); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if closed.MetGoal || closed.Streak != 0 {
		t.Fatalf("closed=%+v", closed)
	}
}

func TestSettingsHideKey(t *testing.T) {
	h, _ := newTestServer(t, stubSuggester{})

	rec := do(t, h, http.MethodPatch, "/settings", map[string]any{"openaiKey": "sk-secret", "dailyGoal": 50})
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
	if bytes.Contains(rec.Body.Bytes(), []byte("sk-secret")) {
		t.Fatal("settings response leaked the API key")
	}
	view := decodeBody[SettingsView](t, rec)
	if !view.HasOpenAIKey {
		t.Fatal("hasOpenaiKey should be true")
	}
}

func TestCORSPreflight(t *testing.T) {
	h, _ := newTestServer(t, stubSuggester{}, WithAllowedOrigins("http://localhost:5173"))

	req := httptest.NewRequest(http.MethodOptions, "/tasks", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Header().Get("Access-Control-Allow-Origin") != "http://localhost:5173" {
		t.Fatalf("status=%d headers=%v", rec.Code, rec.Header())
	}
}

func TestCrossOriginRequestsRefused(t *testing.T) {
	h, svc := newTestServer(t, stubSuggester{}, WithAllowedOrigins("http://localhost:5173"))
	key := "sk-secret"
	if _, err := svc.UpdateSettings(tracker.SettingsPatch{OpenAIKey: &key}); err != nil {
		t.Fatalf("UpdateSettings: %v", err)
	}

	for _, method := range []string{http.MethodGet, http.MethodOptions} {
		req := httptest.NewRequest(method, "/export", nil)
		req.Header.Set("Origin", "https://evil.example")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusForbidden {
			t.Fatalf("%s status=%d, want 403", method, rec.Code)
		}
		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
			t.Fatalf("%s Access-Control-Allow-Origin=%q", method, got)
		}
		if bytes.Contains(rec.Body.Bytes(), []byte(key)) {
			t.Fatalf("%s response leaked the API key", method)
		}
	}

	req := httptest.NewRequest(http.MethodPost, "/import", bytes.NewBufferString(`{"dailyGoal": 999}`))
	req.Header.Set("Origin", "https://evil.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden || svc.State().Ledger.DailyGoal == 999 {
		t.Fatalf("cross-origin import: status=%d goal=%d", rec.Code, svc.State().Ledger.DailyGoal)
	}
}

func TestExportOmitsKey(t *testing.T) {
	h, svc := newTestServer(t, stubSuggester{})
	key := "sk-secret"
	if _, err := svc.UpdateSettings(tracker.SettingsPatch{OpenAIKey: &key}); err != nil {
		t.Fatalf("UpdateSettings: %v", err)
	}

	rec := do(t, h, http.MethodGet, "/export", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
	if bytes.Contains(rec.Body.Bytes(), []byte(key)) || bytes.Contains(rec.Body.Bytes(), []byte("openaiKey")) {
		t.Fatal("export leaked the API key")
	}
	imp := do(t, h, http.MethodPost, "/import", json.RawMessage(rec.Body.Bytes()))
	if imp.Code != http.StatusOK {
		t.Fatalf("import status=%d", imp.Code)
	}
	if svc.Snapshot().Settings.OpenAIKey != key {
		t.Fatal("re-importing an export dropped the saved key")
	}
}
