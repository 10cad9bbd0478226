// Package snapshot defines the persisted shape of the tracker: a flat JSON
// object with camelCase keys, loaded field by field so that old or partial
// documents still restore everything they contain.
package snapshot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/pbaille/grind/internal/domain"
	"github.com/pbaille/grind/internal/economy"
	"github.com/pbaille/grind/internal/taskgen"
)

// Settings are user preferences stored next to the economy state.
type Settings struct {
	OpenAIKey               string
	DefaultAvailableMinutes int
	ProfileAnswers          map[string]string
	DefaultTasksOverride    []domain.TaskTemplate
	DefaultLootOverride     []domain.RewardTemplate
	DefaultAlarmEnabled     bool
}

// DefaultSettings returns the preferences of a first launch.
func DefaultSettings() Settings {
	return Settings{
		DefaultAvailableMinutes: taskgen.DefaultMinutes,
		DefaultAlarmEnabled:     true,
	}
}

// Snapshot is everything that survives a restart.
type Snapshot struct {
	State    economy.State
	Settings Settings
}

// Defaults returns the snapshot of a first launch on the given day.
func Defaults(today string) Snapshot {
	return Snapshot{
		State:    economy.NewState(today, taskgen.DefaultTasks(0, nil)),
		Settings: DefaultSettings(),
	}
}

type document struct {
	Tasks                   []domain.Task           `json:"tasks"`
	DailyGoal               int                     `json:"dailyGoal"`
	Loot                    []domain.RewardSlot     `json:"loot"`
	Streak                  int                     `json:"streak"`
	LastReset               string                  `json:"lastReset"`
	AutoCarryStreak         bool                    `json:"autoCarryStreak"`
	OpenAIKey               *string                 `json:"openaiKey,omitempty"`
	DefaultAvailableMinutes int                     `json:"defaultAvailableMinutes"`
	LifetimeXP              int                     `json:"lifetimeXP"`
	PointsSpent             int                     `json:"pointsSpent"`
	DailyEarnedXP           int                     `json:"dailyEarnedXP"`
	ProfileAnswers          map[string]string       `json:"profileAnswers"`
	GoalCongratsShown       bool                    `json:"goalCongratsShown"`
	DefaultTasksOverride    []domain.TaskTemplate   `json:"defaultTasksOverride"`
	DefaultLootOverride     []domain.RewardTemplate `json:"defaultLootOverride"`
	DefaultAlarmEnabled     bool                    `json:"defaultAlarmEnabled"`
	CompletedLog            *[]domain.CompletedTask `json:"completedLog,omitempty"`
}

func toDocument(s Snapshot) document {
	st, set := s.State, s.Settings
	return document{
		Tasks:                   nonNil(st.Tasks),
		DailyGoal:               st.Ledger.DailyGoal,
		Loot:                    nonNil(st.Catalog.Slots),
		Streak:                  st.Ledger.Streak,
		LastReset:               st.Ledger.LastResetDate,
		AutoCarryStreak:         st.Ledger.AutoCarryStreak,
		OpenAIKey:               &set.OpenAIKey,
		DefaultAvailableMinutes: set.DefaultAvailableMinutes,
		LifetimeXP:              st.Ledger.LifetimeXP,
		PointsSpent:             st.Ledger.PointsSpent,
		DailyEarnedXP:           st.Ledger.DailyEarnedXP,
		ProfileAnswers:          set.ProfileAnswers,
		GoalCongratsShown:       st.GoalCongratsShown,
		DefaultTasksOverride:    set.DefaultTasksOverride,
		DefaultLootOverride:     set.DefaultLootOverride,
		DefaultAlarmEnabled:     set.DefaultAlarmEnabled,
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// Encode serializes the snapshot without the completion log, which is stored
// under its own key.
func Encode(s Snapshot) ([]byte, error) {
	b, err := json.Marshal(toDocument(s))
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return b, nil
}

// EncodeLog serializes the completion log.
func EncodeLog(log []domain.CompletedTask) ([]byte, error) {
	b, err := json.Marshal(nonNil(log))
	if err != nil {
		return nil, fmt.Errorf("encode completed log: %w", err)
	}
	return b, nil
}

// DecodeLog parses a stored completion log.
func DecodeLog(data []byte) ([]domain.CompletedTask, error) {
	var log []domain.CompletedTask
	if err := json.Unmarshal(data, &log); err != nil {
		return nil, fmt.Errorf("decode completed log: %w", err)
	}
	return log, nil
}

// Export writes the snapshot and its completion log as one indented document.
func Export(s Snapshot) ([]byte, error) {
	return export(s, toDocument(s))
}

// ExportWithoutKey is Export with the API key left out. Merging the result
// back keeps whatever key is already saved.
func ExportWithoutKey(s Snapshot) ([]byte, error) {
	doc := toDocument(s)
	doc.OpenAIKey = nil
	return export(s, doc)
}

func export(s Snapshot, doc document) ([]byte, error) {
	log := nonNil(s.State.CompletedLog)
	doc.CompletedLog = &log

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("export snapshot: %w", err)
	}
	return buf.Bytes(), nil
}

// SkippedField is a field present in a document that could not be decoded.
type SkippedField struct {
	Key string
	Err error
}

func (f SkippedField) String() string {
	return fmt.Sprintf("%s: %v", f.Key, f.Err)
}

// Merge overlays a stored document onto base. Absent or null fields keep the
// base value; a field that fails to decode is skipped and reported; unknown
// keys are ignored. Only a document that is not a JSON object is an error.
func Merge(base Snapshot, data []byte) (Snapshot, []SkippedField, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return base, nil, fmt.Errorf("decode snapshot: %w", err)
	}

	out := base
	out.State = base.State.Clone()

	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var skipped []SkippedField
	for _, k := range keys {
		apply, ok := fields[k]
		if !ok {
			continue
		}
		v := raw[k]
		if bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
			continue
		}
		if err := apply(v, &out); err != nil {
			skipped = append(skipped, SkippedField{Key: k, Err: err})
		}
	}
	return out, skipped, nil
}

type fieldFunc func(json.RawMessage, *Snapshot) error

var fields = map[string]fieldFunc{
	"tasks": func(v json.RawMessage, s *Snapshot) error {
		var tasks []domain.Task
		if err := json.Unmarshal(v, &tasks); err != nil {
			return err
		}
		for i := range tasks {
			if tasks[i].ID == "" {
				tasks[i].ID = uuid.NewString()
			}
		}
		s.State = s.State.ReplaceTasks(tasks)
		return nil
	},
	"loot": func(v json.RawMessage, s *Snapshot) error {
		var slots []domain.RewardSlot
		if err := json.Unmarshal(v, &slots); err != nil {
			return err
		}
		for i := range slots {
			if slots[i].ID == "" {
				slots[i].ID = uuid.NewString()
			}
			slots[i].Threshold = domain.ClampXP(slots[i].Threshold)
			slots[i].Description = economy.EnsureDescription(slots[i].Label, slots[i].Threshold, slots[i].Description)
		}
		s.State.Catalog = economy.Catalog{Slots: slots}
		return nil
	},
	"completedLog": func(v json.RawMessage, s *Snapshot) error {
		log, err := DecodeLog(v)
		if err != nil {
			return err
		}
		s.State.CompletedLog = log
		return nil
	},
	// A zero or negative goal is ignored, like an absent one.
	"dailyGoal": intField(func(s *Snapshot, n int) {
		if n > 0 {
			s.State.Ledger = s.State.Ledger.WithDailyGoal(n)
		}
	}),
	"streak":    intField(func(s *Snapshot, n int) { s.State.Ledger.Streak = max(0, n) }),
	"lifetimeXP": intField(func(s *Snapshot, n int) {
		s.State.Ledger.LifetimeXP = max(0, n)
	}),
	"pointsSpent": intField(func(s *Snapshot, n int) {
		s.State.Ledger.PointsSpent = max(0, n)
	}),
	"dailyEarnedXP": intField(func(s *Snapshot, n int) {
		s.State.Ledger.DailyEarnedXP = max(0, n)
	}),
	"defaultAvailableMinutes": intField(func(s *Snapshot, n int) {
		s.Settings.DefaultAvailableMinutes = taskgen.ClampMinutes(n)
	}),
	"lastReset":       stringField(func(s *Snapshot, v string) { s.State.Ledger.LastResetDate = v }),
	"openaiKey":       stringField(func(s *Snapshot, v string) { s.Settings.OpenAIKey = v }),
	"autoCarryStreak": boolField(func(s *Snapshot, v bool) { s.State.Ledger.AutoCarryStreak = v }),
	"goalCongratsShown": boolField(func(s *Snapshot, v bool) {
		s.State.GoalCongratsShown = v
	}),
	"defaultAlarmEnabled": boolField(func(s *Snapshot, v bool) { s.Settings.DefaultAlarmEnabled = v }),
	"profileAnswers": func(v json.RawMessage, s *Snapshot) error {
		var answers map[string]string
		if err := json.Unmarshal(v, &answers); err != nil {
			return err
		}
		s.Settings.ProfileAnswers = answers
		return nil
	},
	"defaultTasksOverride": func(v json.RawMessage, s *Snapshot) error {
		var tasks []domain.TaskTemplate
		if err := json.Unmarshal(v, &tasks); err != nil {
			return err
		}
		s.Settings.DefaultTasksOverride = tasks
		return nil
	},
	"defaultLootOverride": func(v json.RawMessage, s *Snapshot) error {
		var pool []domain.RewardTemplate
		if err := json.Unmarshal(v, &pool); err != nil {
			return err
		}
		s.Settings.DefaultLootOverride = pool
		return nil
	},
}

func intField(set func(*Snapshot, int)) fieldFunc {
	return func(v json.RawMessage, s *Snapshot) error {
		var n int
		if err := json.Unmarshal(v, &n); err != nil {
			return err
		}
		set(s, n)
		return nil
	}
}

func stringField(set func(*Snapshot, string)) fieldFunc {
	return func(v json.RawMessage, s *Snapshot) error {
		var str string
		if err := json.Unmarshal(v, &str); err != nil {
			return err
		}
		set(s, str)
		return nil
	}
}

func boolField(set func(*Snapshot, bool)) fieldFunc {
	return func(v json.RawMessage, s *Snapshot) error {
		var b bool
		if err := json.Unmarshal(v, &b); err != nil {
			return err
		}
		set(s, b)
		return nil
	}
}
