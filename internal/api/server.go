package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/pbaille/grind/internal/domain"
	"github.com/pbaille/grind/internal/economy"
	"github.com/pbaille/grind/internal/snapshot"
	"github.com/pbaille/grind/internal/suggest"
	"github.com/pbaille/grind/internal/tracker"
)

const maxBody = 1 << 20

// Server handles HTTP requests for the tracker API
type Server struct {
	svc     *tracker.Service
	addr    string
	log     *zap.Logger
	limiter *rate.Limiter
	origins map[string]bool
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

// WithRateLimit bounds how often the AI-backed endpoints may be called.
// A non-positive rps disables the limit.
func WithRateLimit(rps float64, burst int) Option {
	return func(s *Server) {
		if rps <= 0 {
			s.limiter = nil
			return
		}
		s.limiter = rate.NewLimiter(rate.Limit(rps), max(1, burst))
	}
}

// WithAllowedOrigins sets the browser origins allowed to call the API.
// Requests carrying any other Origin header are refused.
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) {
		for _, o := range origins {
			if o = strings.TrimRight(strings.TrimSpace(o), "/"); o != "" {
				s.origins[o] = true
			}
		}
	}
}

// New creates a new API server
func New(svc *tracker.Service, addr string, opts ...Option) *Server {
	s := &Server{
		svc:     svc,
		addr:    addr,
		log:     zap.NewNop(),
		limiter: rate.NewLimiter(1, 3),
		origins: map[string]bool{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed handler with CORS and request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.health)
	mux.HandleFunc("GET /state", s.getState)

	// Tasks
	mux.HandleFunc("POST /tasks", s.addTask)
	mux.HandleFunc("PATCH /tasks/{id}", s.updateTask)
	mux.HandleFunc("DELETE /tasks/{id}", s.deleteTask)
	mux.HandleFunc("POST /tasks/{id}/complete", s.completeTask)
	mux.HandleFunc("POST /tasks/generate", s.limited(s.generateTasks))
	mux.HandleFunc("POST /tasks/{id}/estimate", s.limited(s.estimateTask))

	// Rewards
	mux.HandleFunc("POST /loot/{id}/claim", s.claim)
	mux.HandleFunc("POST /loot/refresh", s.limited(s.refreshLoot))
	mux.HandleFunc("PUT /loot", s.editLoot)

	// Day
	mux.HandleFunc("GET /day/preview", s.previewRollover)
	mux.HandleFunc("POST /day/rollover", s.rollover)

	mux.HandleFunc("GET /history", s.history)
	mux.HandleFunc("PATCH /settings", s.updateSettings)
	mux.HandleFunc("GET /export", s.export)
	mux.HandleFunc("POST /import", s.importSnapshot)

	return s.withCORS(s.withLogging(mux))
}

// Run starts the HTTP server
func (s *Server) Run() error {
	s.log.Info("starting server", zap.String("addr", s.addr))
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv.ListenAndServe()
}

// withCORS admits requests without an Origin header (CLI clients, curl) and
// browser requests from the allowed origins only.
func (s *Server) withCORS(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			if !s.origins[origin] {
				writeError(w, http.StatusForbidden, "origin not allowed")
				return
			}
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			w.Header().Add("Vary", "Origin")
		}

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		h.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) withLogging(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h.ServeHTTP(rec, r)
		s.log.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("latency", time.Since(start)))
	})
}

func (s *Server) limited(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow() {
			writeError(w, http.StatusTooManyRequests, "too many requests")
			return
		}
		h(w, r)
	}
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// SettingsView is the public part of the settings; the API key itself is never returned.
type SettingsView struct {
	HasOpenAIKey            bool                    `json:"hasOpenaiKey"`
	DefaultAvailableMinutes int                     `json:"defaultAvailableMinutes"`
	ProfileAnswers          map[string]string       `json:"profileAnswers"`
	DefaultTasksOverride    []domain.TaskTemplate   `json:"defaultTasksOverride"`
	DefaultLootOverride     []domain.RewardTemplate `json:"defaultLootOverride"`
	DefaultAlarmEnabled     bool                    `json:"defaultAlarmEnabled"`
}

// StateResponse is the full tracker state as shown by a client.
type StateResponse struct {
	Ledger          economy.Ledger         `json:"ledger"`
	AvailablePoints int                    `json:"availablePoints"`
	Progress        float64                `json:"progress"`
	NeedsRollover   bool                   `json:"needsRollover"`
	Tasks           []domain.Task          `json:"tasks"`
	Loot            []domain.RewardSlot    `json:"loot"`
	CompletedLog    []domain.CompletedTask `json:"completedLog"`
	Settings        SettingsView           `json:"settings"`
}

func settingsView(set snapshot.Settings) SettingsView {
	return SettingsView{
		HasOpenAIKey:            set.OpenAIKey != "",
		DefaultAvailableMinutes: set.DefaultAvailableMinutes,
		ProfileAnswers:          set.ProfileAnswers,
		DefaultTasksOverride:    set.DefaultTasksOverride,
		DefaultLootOverride:     set.DefaultLootOverride,
		DefaultAlarmEnabled:     set.DefaultAlarmEnabled,
	}
}

func (s *Server) getState(w http.ResponseWriter, r *http.Request) {
	snap := s.svc.Snapshot()
	st := snap.State
	writeJSON(w, http.StatusOK, StateResponse{
		Ledger:          st.Ledger,
		AvailablePoints: st.Ledger.AvailablePoints(),
		Progress:        st.Ledger.Progress(),
		NeedsRollover:   s.svc.NeedsRollover(),
		Tasks:           orEmpty(st.Tasks),
		Loot:            orEmpty(st.Catalog.Slots),
		CompletedLog:    orEmpty(st.CompletedLog),
		Settings:        settingsView(snap.Settings),
	})
}

// AddTaskRequest is the request body for adding a task
type AddTaskRequest struct {
	Name string `json:"name"`
	XP   int    `json:"xp"`
}

func (s *Server) addTask(w http.ResponseWriter, r *http.Request) {
	var req AddTaskRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	task, err := s.svc.AddTask(req.Name, req.XP)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

func (s *Server) updateTask(w http.ResponseWriter, r *http.Request) {
	var patch economy.TaskPatch
	if !decode(w, r, &patch) {
		return
	}
	task, err := s.svc.UpdateTask(r.PathValue("id"), patch)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) deleteTask(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteTask(r.PathValue("id")); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CompleteRequest carries the time spent on a task.
type CompleteRequest struct {
	DurationMs int64 `json:"durationMs"`
}

func (s *Server) completeTask(w http.ResponseWriter, r *http.Request) {
	var req CompleteRequest
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}
	res, err := s.svc.CompleteTask(r.PathValue("id"), time.Duration(req.DurationMs)*time.Millisecond)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GenerateResponse adds the fallback warning, if any, to the generated tasks.
type GenerateResponse struct {
	tracker.GenerateResult
	Warning string `json:"warning,omitempty"`
}

func (s *Server) generateTasks(w http.ResponseWriter, r *http.Request) {
	var req tracker.GenerateRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := s.svc.GenerateTasks(r.Context(), req)
	warning, ok := fallbackWarning(err)
	if !ok {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, GenerateResponse{GenerateResult: res, Warning: warning})
}

// EstimateResponse is the re-priced task.
type EstimateResponse struct {
	Task    domain.Task `json:"task"`
	Warning string      `json:"warning,omitempty"`
}

func (s *Server) estimateTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.svc.EstimateTaskXP(r.Context(), r.PathValue("id"))
	warning, ok := fallbackWarning(err)
	if !ok {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, EstimateResponse{Task: task, Warning: warning})
}

func (s *Server) claim(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.Claim(r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// LootResponse is the catalog after a refresh.
type LootResponse struct {
	tracker.LootResult
	Warning string `json:"warning,omitempty"`
}

func (s *Server) refreshLoot(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.RefreshLoot(r.Context())
	warning, ok := fallbackWarning(err)
	if !ok {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, LootResponse{LootResult: res, Warning: warning})
}

// EditLootRequest replaces the catalog.
type EditLootRequest struct {
	Loot []domain.RewardSlot `json:"loot"`
}

func (s *Server) editLoot(w http.ResponseWriter, r *http.Request) {
	var req EditLootRequest
	if !decode(w, r, &req) {
		return
	}
	slots, err := s.svc.EditLoot(req.Loot)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"loot": orEmpty(slots)})
}

func (s *Server) previewRollover(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{
		"metGoal":       s.svc.PreviewRollover(),
		"needsRollover": s.svc.NeedsRollover(),
	})
}

func (s *Server) rollover(w http.ResponseWriter, r *http.Request) {
	closed, err := s.svc.Rollover()
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, closed)
}

func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)
	days := queryInt(r, "days", 7)

	entries, err := s.svc.History(limit, offset)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	totals, err := s.svc.DailyTotals(days)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"history": orEmpty(entries),
		"daily":   orEmpty(totals),
		"limit":   limit,
		"offset":  offset,
	})
}

func (s *Server) updateSettings(w http.ResponseWriter, r *http.Request) {
	var patch tracker.SettingsPatch
	if !decode(w, r, &patch) {
		return
	}
	snap, err := s.svc.UpdateSettings(patch)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settingsView(snap.Settings))
}

func (s *Server) export(w http.ResponseWriter, r *http.Request) {
	data, err := s.svc.ExportWithoutKey()
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="grind-export.json"`)
	_, _ = w.Write(data)
}

func (s *Server) importSnapshot(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	skipped, err := s.svc.Import(data)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	names := make([]string, 0, len(skipped))
	for _, f := range skipped {
		names = append(names, f.String())
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"skipped": names})
}

// fallbackWarning reports whether err still allows a successful response,
// returning the warning to attach.
func fallbackWarning(err error) (string, bool) {
	if err == nil {
		return "", true
	}
	var fe *tracker.FallbackError
	if errors.As(err, &fe) {
		return fe.Error(), true
	}
	return "", false
}

func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	var ipe *economy.InsufficientPointsError
	switch {
	case errors.As(err, &ipe):
		writeJSON(w, http.StatusPaymentRequired, map[string]interface{}{
			"error":     ipe.Error(),
			"threshold": ipe.Threshold,
			"available": ipe.Available,
			"shortfall": ipe.Shortfall,
		})
	case errors.Is(err, economy.ErrSlotNotFound), errors.Is(err, economy.ErrTaskNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, economy.ErrAlreadyClaimed),
		errors.Is(err, tracker.ErrAlreadyEstimated),
		errors.Is(err, tracker.ErrStaleResponse):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, suggest.ErrNoAPIKey), errors.Is(err, tracker.ErrEmptyTodo):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.log.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBody)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func queryInt(r *http.Request, key string, def int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return def
}

func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
