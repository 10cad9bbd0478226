package tracker

import (
	"strings"

	"github.com/pbaille/grind/internal/domain"
	"github.com/pbaille/grind/internal/snapshot"
	"github.com/pbaille/grind/internal/taskgen"
)

// SettingsPatch changes user preferences; nil fields are left alone.
// Empty override slices reset to the built-in defaults.
type SettingsPatch struct {
	DailyGoal            *int                     `json:"dailyGoal,omitempty"`
	AutoCarryStreak      *bool                    `json:"autoCarryStreak,omitempty"`
	DefaultMinutes       *int                     `json:"defaultAvailableMinutes,omitempty"`
	OpenAIKey            *string                  `json:"openaiKey,omitempty"`
	ProfileAnswers       map[string]string        `json:"profileAnswers,omitempty"`
	DefaultTasksOverride *[]domain.TaskTemplate   `json:"defaultTasksOverride,omitempty"`
	DefaultLootOverride  *[]domain.RewardTemplate `json:"defaultLootOverride,omitempty"`
	DefaultAlarmEnabled  *bool                    `json:"defaultAlarmEnabled,omitempty"`
}

// UpdateSettings applies a patch. Numbers are clamped, never rejected.
func (s *Service) UpdateSettings(p SettingsPatch) (snapshot.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.snap
	next.State = s.snap.State.Clone()
	set := &next.Settings

	if p.DailyGoal != nil {
		next.State.Ledger = next.State.Ledger.WithDailyGoal(*p.DailyGoal)
	}
	if p.AutoCarryStreak != nil {
		next.State.Ledger.AutoCarryStreak = *p.AutoCarryStreak
	}
	if p.DefaultMinutes != nil {
		set.DefaultAvailableMinutes = taskgen.ClampMinutes(*p.DefaultMinutes)
	}
	if p.OpenAIKey != nil {
		set.OpenAIKey = strings.TrimSpace(*p.OpenAIKey)
	}
	if p.ProfileAnswers != nil {
		set.ProfileAnswers = p.ProfileAnswers
	}
	if p.DefaultTasksOverride != nil {
		set.DefaultTasksOverride = cleanTaskTemplates(*p.DefaultTasksOverride)
	}
	if p.DefaultLootOverride != nil {
		set.DefaultLootOverride = *p.DefaultLootOverride
	}
	if p.DefaultAlarmEnabled != nil {
		set.DefaultAlarmEnabled = *p.DefaultAlarmEnabled
	}

	if err := s.commit(next); err != nil {
		return snapshot.Snapshot{}, err
	}
	return next, nil
}

func cleanTaskTemplates(in []domain.TaskTemplate) []domain.TaskTemplate {
	var out []domain.TaskTemplate
	for _, t := range in {
		name := strings.TrimSpace(t.Name)
		if name == "" {
			continue
		}
		out = append(out, domain.TaskTemplate{Name: name, XP: domain.ClampXP(t.XP)})
	}
	return out
}
