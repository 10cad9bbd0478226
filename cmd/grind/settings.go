package main

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pbaille/grind/internal/domain"
	"github.com/pbaille/grind/internal/snapshot"
	"github.com/pbaille/grind/internal/suggest"
	"github.com/pbaille/grind/internal/tracker"
	"github.com/pbaille/grind/internal/ui"
)

func settingsCmd() *cobra.Command {
	var (
		goal, minutes             int
		autoCarry, alarm          bool
		key                       string
		defaultTasks, defaultLoot []string
		resetTasks, resetLoot     bool
	)

	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change settings",
		Example: `  grind settings --goal 120 --minutes 300
  grind settings --default-task "Plan the day=5" --default-task "Inbox zero=10"
  grind settings --default-loot "20=Coffee" --default-loot "100=Movie night"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(false)
			if err != nil {
				return err
			}
			defer a.close()

			var p tracker.SettingsPatch
			f := cmd.Flags()
			if f.Changed("goal") {
				p.DailyGoal = &goal
			}
			if f.Changed("auto-carry") {
				p.AutoCarryStreak = &autoCarry
			}
			if f.Changed("minutes") {
				p.DefaultMinutes = &minutes
			}
			if f.Changed("key") {
				p.OpenAIKey = &key
			}
			if f.Changed("alarm") {
				p.DefaultAlarmEnabled = &alarm
			}
			if len(defaultTasks) > 0 || resetTasks {
				tasks, err := parseTaskTemplates(defaultTasks)
				if err != nil {
					return err
				}
				p.DefaultTasksOverride = &tasks
			}
			if len(defaultLoot) > 0 || resetLoot {
				loot, err := parseRewardTemplates(defaultLoot)
				if err != nil {
					return err
				}
				p.DefaultLootOverride = &loot
			}

			snap := a.svc.Snapshot()
			if f.NFlag() > 0 {
				if snap, err = a.svc.UpdateSettings(p); err != nil {
					return err
				}
			}
			printSettings(snap)
			return nil
		},
	}

	f := cmd.Flags()
	f.IntVar(&goal, "goal", 0, "daily XP goal")
	f.BoolVar(&autoCarry, "auto-carry", true, "update the streak when the day is closed")
	f.IntVar(&minutes, "minutes", 0, "default available minutes for AI generation")
	f.StringVar(&key, "key", "", "OpenAI API key (empty to remove)")
	f.BoolVar(&alarm, "alarm", true, "enable the timer alarm by default")
	f.StringArrayVar(&defaultTasks, "default-task", nil, `starter task as "name=xp" (repeatable)`)
	f.StringArrayVar(&defaultLoot, "default-loot", nil, `default reward as "threshold=label" (repeatable)`)
	f.BoolVar(&resetTasks, "reset-default-tasks", false, "use the built-in starter tasks")
	f.BoolVar(&resetLoot, "reset-default-loot", false, "use the built-in reward pool")
	return cmd
}

func printSettings(snap snapshot.Snapshot) {
	l, set := snap.State.Ledger, snap.Settings

	keyState := ui.Muted.Render("not set")
	if set.OpenAIKey != "" {
		keyState = ui.Good.Render("set")
	}

	fmt.Println(ui.Heading("", "Settings"))
	fmt.Println(ui.LabelValue("Daily goal", fmt.Sprintf("%d XP", l.DailyGoal)))
	fmt.Println(ui.LabelValue("Auto-carry streak", l.AutoCarryStreak))
	fmt.Println(ui.LabelValue("Available minutes", set.DefaultAvailableMinutes))
	fmt.Println(ui.LabelValue("Alarm", set.DefaultAlarmEnabled))
	fmt.Println(ui.LabelValue("OpenAI key", keyState))

	if len(set.DefaultTasksOverride) > 0 {
		fmt.Println(ui.H2.Render("Starter tasks"))
		for _, t := range set.DefaultTasksOverride {
			fmt.Printf("  - %s (%d XP)\n", t.Name, t.XP)
		}
	}
	if len(set.DefaultLootOverride) > 0 {
		fmt.Println(ui.H2.Render("Default rewards"))
		for _, t := range set.DefaultLootOverride {
			fmt.Printf("  - %4d  %s\n", t.Threshold, t.Label)
		}
	}
	if len(set.ProfileAnswers) > 0 {
		fmt.Println(ui.H2.Render("Profile"))
		keys := make([]string, 0, len(set.ProfileAnswers))
		for k := range set.ProfileAnswers {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Printf("  %s: %s\n", k, set.ProfileAnswers[k])
		}
	}
}

func parseTaskTemplates(specs []string) ([]domain.TaskTemplate, error) {
	out := []domain.TaskTemplate{}
	for _, s := range specs {
		name, xpStr, ok := strings.Cut(s, "=")
		xp := 10
		if ok {
			n, err := strconv.Atoi(strings.TrimSpace(xpStr))
			if err != nil {
				return nil, fmt.Errorf("invalid task %q: xp must be a number", s)
			}
			xp = n
		}
		out = append(out, domain.TaskTemplate{Name: strings.TrimSpace(name), XP: xp})
	}
	return out, nil
}

func parseRewardTemplates(specs []string) ([]domain.RewardTemplate, error) {
	out := []domain.RewardTemplate{}
	for _, s := range specs {
		thStr, label, ok := strings.Cut(s, "=")
		if !ok {
			return nil, fmt.Errorf("invalid reward %q: expected threshold=label", s)
		}
		th, err := strconv.Atoi(strings.TrimSpace(thStr))
		if err != nil {
			return nil, fmt.Errorf("invalid reward %q: threshold must be a number", s)
		}
		out = append(out, domain.RewardTemplate{Threshold: th, Label: strings.TrimSpace(label)})
	}
	return out, nil
}

func profileCmd() *cobra.Command {
	var refresh bool

	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Answer the reward questionnaire used to tailor AI rewards",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(false)
			if err != nil {
				return err
			}
			defer a.close()

			current := a.svc.Snapshot().Settings.ProfileAnswers
			answers := make(map[string]string, len(suggest.ProfileQuestions))
			for k, v := range current {
				answers[k] = v
			}

			in := bufio.NewReader(os.Stdin)
			for i, q := range suggest.ProfileQuestions {
				fmt.Printf("\n%s %s\n", ui.Key.Render(fmt.Sprintf("%d/%d", i+1, len(suggest.ProfileQuestions))), q.Prompt)
				for j, opt := range q.Options {
					fmt.Printf("  %d) %s\n", j+1, opt)
				}
				prompt := "> "
				if prev := answers[q.Key]; prev != "" {
					prompt = fmt.Sprintf("[%s] > ", prev)
				}
				fmt.Print(ui.Muted.Render(prompt))

				line, err := in.ReadString('\n')
				line = strings.TrimSpace(line)
				if n, convErr := strconv.Atoi(line); convErr == nil && n >= 1 && n <= len(q.Options) {
					answers[q.Key] = q.Options[n-1]
				} else if line != "" {
					answers[q.Key] = line
				}
				if err != nil {
					break
				}
			}

			if _, err := a.svc.UpdateSettings(tracker.SettingsPatch{ProfileAnswers: answers}); err != nil {
				return err
			}
			fmt.Println()
			fmt.Println(ui.Good.Render("Profile saved."))

			if !refresh {
				return nil
			}
			return refreshLoot(cmd, a)
		},
	}

	cmd.Flags().BoolVar(&refresh, "refresh", false, "refresh the reward catalog afterwards")
	return cmd
}
