package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pbaille/grind/internal/economy"
	"github.com/pbaille/grind/internal/fetcher"
	"github.com/pbaille/grind/internal/tracker"
	"github.com/pbaille/grind/internal/ui"
)

const aiTimeout = 2 * time.Minute

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show today's progress, tasks and rewards",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(false)
			if err != nil {
				return err
			}
			defer a.close()

			st := a.svc.State()
			l := st.Ledger

			fmt.Println(ui.Heading(ui.IconSwords, "Today"))
			fmt.Printf("%s %d / %d XP\n", ui.ProgressBar(l.Progress(), 24), l.DailyEarnedXP, l.DailyGoal)
			if l.GoalMet() {
				fmt.Println(ui.BadgeGoal)
			}
			fmt.Println(ui.LabelValue("Streak", fmt.Sprintf("%s %d", ui.IconFire, l.Streak)))
			fmt.Println(ui.LabelValue("Points", fmt.Sprintf("%d available (%d lifetime XP)", l.AvailablePoints(), l.LifetimeXP)))
			if a.svc.NeedsRollover() {
				fmt.Println(ui.Warn.Render(ui.IconLoop + " A new day started. Run 'grind reset' to close yesterday."))
			}

			fmt.Println()
			fmt.Println(ui.H2.Render("Tasks"))
			if len(st.Tasks) == 0 {
				fmt.Println(ui.Muted.Render("No tasks. Use 'grind add' or 'grind generate'."))
			}
			for i, t := range st.Tasks {
				marker := ""
				if t.IsNew {
					marker = ui.Muted.Render(" (unestimated)")
				}
				fmt.Printf("%2d. %s  %-48s %s%s\n", i+1, ui.Muted.Render(shortID(t.ID)), truncate(t.Name, 48), ui.Gold.Render(fmt.Sprintf("%d XP", t.XP)), marker)
			}

			fmt.Println()
			printLoot(st.Catalog.Slots, l.AvailablePoints())
			return nil
		},
	}
}

func addCmd() *cobra.Command {
	var xp int
	var estimate bool

	cmd := &cobra.Command{
		Use:   "add [name]",
		Short: "Add a task",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(false)
			if err != nil {
				return err
			}
			defer a.close()

			task, err := a.svc.AddTask(strings.Join(args, " "), xp)
			if err != nil {
				return err
			}
			fmt.Printf("Added task %s: %s (%d XP)\n", shortID(task.ID), task.Name, task.XP)

			if !estimate {
				return nil
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), aiTimeout)
			defer cancel()
			fmt.Print("Estimating... ")
			task, err = a.svc.EstimateTaskXP(ctx, task.ID)
			if err = reportFallback(err); err != nil {
				fmt.Println("failed")
				return err
			}
			fmt.Printf("%d XP\n", task.XP)
			return nil
		},
	}

	cmd.Flags().IntVar(&xp, "xp", 10, "task XP")
	cmd.Flags().BoolVar(&estimate, "estimate", false, "ask the AI to price the task")
	return cmd
}

func editCmd() *cobra.Command {
	var name string
	var xp int

	cmd := &cobra.Command{
		Use:   "edit [task]",
		Short: "Rename or re-price a task (by number or id prefix)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(false)
			if err != nil {
				return err
			}
			defer a.close()

			task, err := resolveTask(a.svc.State().Tasks, args[0])
			if err != nil {
				return err
			}

			var patch economy.TaskPatch
			if cmd.Flags().Changed("name") {
				patch.Name = &name
			}
			if cmd.Flags().Changed("xp") {
				patch.XP = &xp
				estimated := false
				patch.IsNew = &estimated
			}
			task, err = a.svc.UpdateTask(task.ID, patch)
			if err != nil {
				return err
			}
			fmt.Printf("Updated %s: %s (%d XP)\n", shortID(task.ID), task.Name, task.XP)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "new name")
	cmd.Flags().IntVar(&xp, "xp", 0, "new XP")
	return cmd
}

func rmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm [task]",
		Short: "Delete a task without credit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(false)
			if err != nil {
				return err
			}
			defer a.close()

			task, err := resolveTask(a.svc.State().Tasks, args[0])
			if err != nil {
				return err
			}
			if err := a.svc.DeleteTask(task.ID); err != nil {
				return err
			}
			fmt.Printf("Deleted %s\n", task.Name)
			return nil
		},
	}
}

func doneCmd() *cobra.Command {
	var spent time.Duration

	cmd := &cobra.Command{
		Use:   "done [task]",
		Short: "Complete a task and earn its XP",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(false)
			if err != nil {
				return err
			}
			defer a.close()

			task, err := resolveTask(a.svc.State().Tasks, args[0])
			if err != nil {
				return err
			}
			res, err := a.svc.CompleteTask(task.ID, spent)
			if err != nil {
				return err
			}

			l := a.svc.State().Ledger
			fmt.Printf("%s %s  %s\n", ui.IconDone, res.Task.Name, ui.Good.Render(fmt.Sprintf("+%d XP", res.XPAwarded)))
			fmt.Printf("%s %d / %d XP, %d points available\n", ui.ProgressBar(l.Progress(), 24), l.DailyEarnedXP, l.DailyGoal, l.AvailablePoints())
			if res.GoalReached {
				fmt.Println(ui.IconTrophy + " " + ui.BadgeGoal)
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&spent, "spent", 0, "time spent, e.g. 25m")
	return cmd
}

func estimateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "estimate [task]",
		Short: "Ask the AI to price a newly added task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(false)
			if err != nil {
				return err
			}
			defer a.close()

			task, err := resolveTask(a.svc.State().Tasks, args[0])
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), aiTimeout)
			defer cancel()
			task, err = a.svc.EstimateTaskXP(ctx, task.ID)
			if err = reportFallback(err); err != nil {
				return err
			}
			fmt.Printf("%s %s: %d XP\n", ui.IconBolt, task.Name, task.XP)
			return nil
		},
	}
}

func generateCmd() *cobra.Command {
	var req tracker.GenerateRequest

	cmd := &cobra.Command{
		Use:   "generate [todo lines...]",
		Short: "Generate tasks from a to-do list (args, --url or stdin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 && req.URL == "" && fetcher.IsURL(args[0]) {
				req.URL = args[0]
				args = args[1:]
			}
			req.Todo = strings.Join(args, "\n")
			if req.Todo == "" && req.URL == "" {
				data, err := io.ReadAll(os.Stdin)
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				req.Todo = string(data)
			}

			a, err := openApp(false)
			if err != nil {
				return err
			}
			defer a.close()

			ctx, cancel := context.WithTimeout(cmd.Context(), aiTimeout)
			defer cancel()
			res, err := a.svc.GenerateTasks(ctx, req)
			if err = reportFallback(err); err != nil {
				return err
			}

			verb := "Replaced tasks with"
			if req.Append {
				verb = "Added"
			}
			fmt.Printf("%s %d tasks (%s):\n", verb, len(res.Tasks), res.Source)
			for _, t := range res.Tasks {
				fmt.Printf("  + %-48s %s\n", truncate(t.Name, 48), ui.Gold.Render(fmt.Sprintf("%d XP", t.XP)))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&req.UseAI, "ai", false, "use the AI instead of the local generator")
	cmd.Flags().StringVar(&req.URL, "url", "", "fetch the to-do list from a web page")
	cmd.Flags().BoolVar(&req.Append, "append", false, "append instead of replacing the task list")
	cmd.Flags().IntVar(&req.Minutes, "minutes", 0, "time available today (AI only, default from settings)")
	return cmd
}
