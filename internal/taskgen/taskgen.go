// Package taskgen turns a free-form to-do list into XP-rated tasks without any
// remote service, and builds the default task list for a new day.
package taskgen

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/pbaille/grind/internal/domain"
)

const (
	// MinMinutes and MaxMinutes bound the daily time budget.
	MinMinutes = 30
	MaxMinutes = 720
	// DefaultMinutes is the budget used when none is configured.
	DefaultMinutes = 240

	longLineWords = 8
)

var (
	bulletRe = regexp.MustCompile(`^[-*•]\s*`)
	seedRe   = regexp.MustCompile(`(?i)\band\b|;|,|\s->\s|/|\\|\s\|\s|\s>\s`)
)

type category struct {
	keywords []string
	steps    []string
}

// Checked in order; the first category with a keyword hit wins.
var categories = []category{
	{
		keywords: []string{"bug", "fix", "issue", "error", "crash", "defect"},
		steps:    []string{"Reproduce", "Find root cause", "Fix", "Verify & tests"},
	},
	{
		keywords: []string{"feature", "implement", "add", "build", "create"},
		steps:    []string{"Design plan", "Implement core", "Wire UI/API", "Test & polish"},
	},
	{
		keywords: []string{"refactor", "cleanup", "restructure", "reorganize"},
		steps:    []string{"Identify hotspots", "Refactor modules", "Fix regressions", "Run tests & lint"},
	},
	{
		keywords: []string{"setup", "configure", "install", "init", "bootstrap"},
		steps:    []string{"Install & config", "Verify locally", "Docs/notes"},
	},
	{
		keywords: []string{"research", "investigate", "spike", "explore"},
		steps:    []string{"Gather sources", "Summarize options", "Next steps"},
	},
}

var genericSteps = []string{"Plan steps", "Do core work", "Verify & wrap-up"}

var (
	hardKeywords = []string{
		"migrate", "database", "schema", "auth", "oauth", "deploy", "kubernetes",
		"integrate", "performance", "security", "webpack", "vite",
	}
	mediumKeywords = []string{"implement", "refactor", "optimize", "tests", "state", "api", "compose", "build"}
	easyKeywords   = []string{"docs", "typo", "styles", "ui", "copy", "format", "lint"}

	xpBuckets = [...]int{5, 8, 10, 12, 15, 18, 20, 25}
)

// SplitLines splits raw input into trimmed lines without list bullets.
func SplitLines(raw string) []string {
	var lines []string
	for _, l := range strings.Split(raw, "\n") {
		l = strings.TrimSpace(strings.TrimSuffix(l, "\r"))
		l = strings.TrimSpace(bulletRe.ReplaceAllString(l, ""))
		if l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

// Breakdown expands one to-do line into subtask labels.
func Breakdown(line string) []string {
	var seeds []string
	for _, s := range seedRe.Split(line, -1) {
		if s = strings.TrimSpace(s); s != "" {
			seeds = append(seeds, s)
		}
	}
	if len(seeds) <= 1 {
		seeds = []string{line}
	}

	joined := strings.ToLower(strings.Join(seeds, " "))
	for _, c := range categories {
		if containsAny(joined, c.keywords) {
			return prefixed(c.steps, line)
		}
	}

	if len(strings.Fields(line)) > longLineWords {
		return prefixed(genericSteps, line)
	}
	return seeds
}

// EstimateXP scores a task label by length and keywords.
func EstimateXP(label string) int {
	text := strings.ToLower(label)
	score := 1 + min(4, len(strings.Fields(text))/5)
	score += 3 * countHits(text, hardKeywords)
	score += 2 * countHits(text, mediumKeywords)
	score -= countHits(text, easyKeywords)
	score = domain.Clamp(score, 1, len(xpBuckets))
	return xpBuckets[score-1]
}

// FromTodo generates tasks for every line of a to-do list.
func FromTodo(raw string) []domain.Task {
	var tasks []domain.Task
	for _, line := range SplitLines(raw) {
		for _, label := range Breakdown(line) {
			tasks = append(tasks, domain.Task{
				ID:   uuid.NewString(),
				Name: label,
				XP:   EstimateXP(label),
			})
		}
	}
	return tasks
}

// MinutesForXP is the rough time cost of a task: two minutes per XP.
func MinutesForXP(xp int) int {
	return max(0, xp) * 2
}

// ClampMinutes bounds a daily time budget; zero means DefaultMinutes.
func ClampMinutes(minutes int) int {
	if minutes == 0 {
		return DefaultMinutes
	}
	return domain.Clamp(minutes, MinMinutes, MaxMinutes)
}

// FitBudget keeps tasks, in order, while their cumulative time fits in minutes.
// A task that does not fit is skipped and later smaller ones may still fit.
func FitBudget(tasks []domain.Task, minutes int) []domain.Task {
	var out []domain.Task
	used := 0
	for _, t := range tasks {
		m := MinutesForXP(t.XP)
		if used+m <= minutes {
			used += m
			out = append(out, t)
		}
	}
	return out
}

// DefaultTaskTemplates is the built-in starter list for a new day.
func DefaultTaskTemplates() []domain.TaskTemplate {
	return []domain.TaskTemplate{
		{Name: "Open laptop & set up environment", XP: 5},
		{Name: "Finish a tiny task (5–10 min)", XP: 5},
		{Name: "Journal your thoughts for the day", XP: 10},
	}
}

// StreakBonusName labels the bonus task for the given current streak.
func StreakBonusName(streak int) string {
	return fmt.Sprintf("Streak bonus (%d days in a row)", max(1, streak+1))
}

// DefaultTasks builds the day's starter tasks: the override when set, else the
// built-in list, followed by the streak bonus for the next target day.
func DefaultTasks(streak int, override []domain.TaskTemplate) []domain.Task {
	base := override
	if len(base) == 0 {
		base = DefaultTaskTemplates()
	}

	tasks := make([]domain.Task, 0, len(base)+1)
	for _, t := range base {
		tasks = append(tasks, domain.Task{ID: uuid.NewString(), Name: t.Name, XP: domain.ClampXP(t.XP)})
	}
	tasks = append(tasks, domain.Task{ID: uuid.NewString(), Name: StreakBonusName(streak), XP: 10})
	return tasks
}

func prefixed(steps []string, line string) []string {
	out := make([]string, len(steps))
	for i, s := range steps {
		out[i] = s + ": " + line
	}
	return out
}

func containsAny(text string, keywords []string) bool {
	return countHits(text, keywords) > 0
}

func countHits(text string, keywords []string) int {
	n := 0
	for _, k := range keywords {
		if strings.Contains(text, k) {
			n++
		}
	}
	return n
}
