package suggest

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/pbaille/grind/internal/domain"
	"github.com/pbaille/grind/internal/economy"
	"github.com/pbaille/grind/internal/taskgen"
)

const (
	taskXPMin     = 5
	taskXPMax     = 25
	taskXPDefault = 10

	baseLootCount    = 8
	premiumLootCount = 2

	minEstimate = 5
	maxEstimate = 150
)

const tasksSystemPrompt = "You are a productivity assistant. Break down a user's to-do list into small, actionable tasks " +
	"that can be completed today within the available time. Assign an XP value per task in the 5..25 range depending on " +
	"difficulty. Prefer 10-30 minute tasks. Return strictly valid JSON for " +
	`{"tasks": [{"name": string, "xp": number}]} with no extra commentary.`

const lootSystemPrompt = "You tailor break reward ideas to a user's preferences. Output strictly JSON: " +
	`{"loot":[{"threshold":number,"label":string,"description":string}]} ` +
	"with 8 base items between 10 and 80 points (ascending), PLUS 2 premium items of at least 100 points. " +
	"Each description must be a helpful, specific paragraph of at least 50 characters describing how to take that " +
	"break within the day, including mindful and time-bound guidance aligned to the point cost."

const estimateSystemPrompt = "Estimate how long a single task would take for a focused individual contributor. " +
	"Choose ONE number from {5,10,15,...,150} representing minutes. Respond strictly as JSON: " +
	`{"minutes": number}.`

// TaskSuggestion is one generated task before it gets an id.
type TaskSuggestion struct {
	Name string `json:"name"`
	XP   int    `json:"xp"`
}

// number accepts a JSON number or a numeric string, floored to an int.
// Anything else that is not null fails the decode.
type number struct {
	value int
	set   bool
}

func (n *number) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		if v, err := strconv.Atoi(strings.TrimSpace(str)); err == nil {
			n.value, n.set = v, true
		}
		return nil
	}

	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return fmt.Errorf("expected a number, got %s", s)
	}
	f = math.Max(-1e9, math.Min(1e9, f))
	n.value, n.set = int(math.Floor(f)), true
	return nil
}

func (n number) or(def int) int {
	if !n.set {
		return def
	}
	return n.value
}

type tasksReply struct {
	Tasks *[]struct {
		Name string `json:"name"`
		XP   number `json:"xp"`
	} `json:"tasks"`
}

type lootReply struct {
	Loot *[]struct {
		Threshold   number `json:"threshold"`
		Label       string `json:"label"`
		Description string `json:"description"`
	} `json:"loot"`
}

type estimateReply struct {
	Minutes *number `json:"minutes"`
}

// GenerateTasks breaks a to-do list into tasks that fit in the given minutes.
func (c *Client) GenerateTasks(ctx context.Context, todo string, minutes int) ([]TaskSuggestion, error) {
	minutes = taskgen.ClampMinutes(minutes)
	user := fmt.Sprintf("Available minutes today: %d\nTo-do list (one per line):\n%s", minutes, todo)

	content, err := c.callAPI(ctx, tasksSystemPrompt, user, 0.2)
	if err != nil {
		return nil, fmt.Errorf("generate tasks: %w", err)
	}
	return parseTasks(content, minutes)
}

func parseTasks(content string, minutes int) ([]TaskSuggestion, error) {
	var reply tasksReply
	if err := decodeContent(content, &reply); err != nil {
		return nil, err
	}
	if reply.Tasks == nil {
		return nil, &SchemaError{What: `missing "tasks" array`}
	}

	var out []TaskSuggestion
	used := 0
	for _, t := range *reply.Tasks {
		name := strings.TrimSpace(t.Name)
		if name == "" {
			name = "Task"
		}
		xp := domain.Clamp(t.XP.or(taskXPDefault), taskXPMin, taskXPMax)
		if t.XP.set && t.XP.value == 0 {
			xp = taskXPDefault
		}

		m := taskgen.MinutesForXP(xp)
		if used+m > minutes {
			continue
		}
		used += m
		out = append(out, TaskSuggestion{Name: name, XP: xp})
	}
	return out, nil
}

// GenerateLoot asks for a catalog tailored to the profile answers, or to the
// current catalog labels when no profile is set.
func (c *Client) GenerateLoot(ctx context.Context, profile map[string]string, previousLabels []string) ([]domain.RewardTemplate, error) {
	var user string
	if len(profile) > 0 {
		b, err := json.Marshal(profile)
		if err != nil {
			return nil, fmt.Errorf("marshal profile: %w", err)
		}
		user = fmt.Sprintf("User profile answers: %s.", b)
	} else {
		user = strings.Join(previousLabels, " | ")
	}

	content, err := c.callAPI(ctx, lootSystemPrompt, user, 0.4)
	if err != nil {
		return nil, fmt.Errorf("generate loot: %w", err)
	}
	return parseLoot(content)
}

func parseLoot(content string) ([]domain.RewardTemplate, error) {
	var reply lootReply
	if err := decodeContent(content, &reply); err != nil {
		return nil, err
	}
	if reply.Loot == nil {
		return nil, &SchemaError{What: `missing "loot" array`}
	}

	var base, premium []domain.RewardTemplate
	for _, x := range *reply.Loot {
		t := domain.RewardTemplate{
			Threshold:   x.Threshold.or(0),
			Label:       strings.TrimSpace(x.Label),
			Description: x.Description,
		}
		if t.Label == "" {
			t.Label = economy.DefaultLabel
		}
		switch {
		case t.Threshold >= economy.BaseTierMin && t.Threshold <= economy.BaseTierMax:
			base = append(base, t)
		case t.Threshold >= economy.PremiumFloor:
			premium = append(premium, t)
		}
	}
	return shapeLoot(base, premium), nil
}

// shapeLoot keeps the eight cheapest base rewards and the two cheapest
// premium ones, filling missing premium slots with stock rewards.
func shapeLoot(base, premium []domain.RewardTemplate) []domain.RewardTemplate {
	byThreshold := func(s []domain.RewardTemplate) {
		sort.SliceStable(s, func(i, j int) bool { return s[i].Threshold < s[j].Threshold })
	}
	byThreshold(base)
	byThreshold(premium)
	if len(base) > baseLootCount {
		base = base[:baseLootCount]
	}
	if len(premium) > premiumLootCount {
		premium = premium[:premiumLootCount]
	}

	fillers := []domain.RewardTemplate{
		{Threshold: economy.PremiumFloor, Label: "Grand Reward"},
		{Threshold: economy.PremiumFloor + 20, Label: "Epic Reward"},
	}
	for i := 0; len(premium) < premiumLootCount; i++ {
		premium = append(premium, fillers[i])
	}

	out := make([]domain.RewardTemplate, 0, len(base)+len(premium))
	for _, t := range append(base, premium...) {
		out = append(out, economy.NormalizeTemplate(t))
	}
	return out
}

// EstimateMinutes asks how long a task takes, snapped to 5-minute steps in [5, 150].
func (c *Client) EstimateMinutes(ctx context.Context, taskName string) (int, error) {
	content, err := c.callAPI(ctx, estimateSystemPrompt, "Task: "+taskName, 0.2)
	if err != nil {
		return 0, fmt.Errorf("estimate minutes: %w", err)
	}
	return parseMinutes(content)
}

func parseMinutes(content string) (int, error) {
	var reply estimateReply
	if err := decodeContent(content, &reply); err != nil {
		return 0, err
	}
	if reply.Minutes == nil {
		return 0, &SchemaError{What: `missing "minutes"`}
	}
	return SnapMinutes(reply.Minutes.or(0)), nil
}

// SnapMinutes clamps an estimate to [5, 150] and rounds it to a multiple of 5.
func SnapMinutes(m int) int {
	m = domain.Clamp(m, minEstimate, maxEstimate)
	return (m + 2) / 5 * 5
}

// XPForMinutes converts an estimate into XP: half the minutes, at least 1.
func XPForMinutes(m int) int {
	return max(1, (max(0, m)+1)/2)
}
