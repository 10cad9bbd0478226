package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pbaille/grind/internal/domain"
	"github.com/pbaille/grind/internal/economy"
	"github.com/pbaille/grind/internal/ui"
)

func printLoot(slots []domain.RewardSlot, available int) {
	fmt.Println(ui.H2.Render(ui.IconGift + " Rewards"))
	for i, s := range slots {
		status, missing := economy.Affordability(s, available)
		fmt.Printf("%2d. %s  %4d pts  %-32s %s\n", i+1, ui.Muted.Render(shortID(s.ID)), s.Threshold, truncate(s.Label, 32), ui.SlotStatus(status, missing))
	}
}

func claimCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "claim [reward]",
		Short: "Spend points on a reward (by number or id prefix)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(false)
			if err != nil {
				return err
			}
			defer a.close()

			slot, err := resolveSlot(a.svc.State().Catalog.Slots, args[0])
			if err != nil {
				return err
			}
			res, err := a.svc.Claim(slot.ID)
			var ipe *economy.InsufficientPointsError
			if errors.As(err, &ipe) {
				fmt.Printf("%s %s costs %d points, you have %d: %s\n",
					ui.IconLock, slot.Label, ipe.Threshold, ipe.Available, ui.Warn.Render(fmt.Sprintf("%d more needed", ipe.Shortfall)))
				return nil
			}
			if err != nil {
				return err
			}

			fmt.Printf("%s Enjoy: %s\n", ui.IconGift, ui.Gold.Render(res.Slot.Label))
			if res.Slot.Description != "" {
				fmt.Println(ui.Muted.Render(res.Slot.Description))
			}
			fmt.Println(ui.LabelValue("Points left", res.AvailablePoints))
			return nil
		},
	}
}

func lootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "loot",
		Short: "List the reward catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(false)
			if err != nil {
				return err
			}
			defer a.close()

			st := a.svc.State()
			printLoot(st.Catalog.Slots, st.Ledger.AvailablePoints())
			return nil
		},
	}

	cmd.AddCommand(lootRefreshCmd())
	cmd.AddCommand(lootEditCmd())
	return cmd
}

func lootRefreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Ask the AI for a new reward catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(false)
			if err != nil {
				return err
			}
			defer a.close()
			return refreshLoot(cmd, a)
		},
	}
}

func refreshLoot(cmd *cobra.Command, a *app) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), aiTimeout)
	defer cancel()

	fmt.Println(ui.Muted.Render("Asking for new rewards..."))
	res, err := a.svc.RefreshLoot(ctx)
	if err = reportFallback(err); err != nil {
		return err
	}
	if res.Nudged {
		fmt.Println(ui.Muted.Render("Same rewards suggested, prices shuffled."))
	}
	printLoot(res.Slots, a.svc.State().Ledger.AvailablePoints())
	return nil
}

func lootEditCmd() *cobra.Command {
	var label, description string
	var threshold int
	var unclaim bool

	cmd := &cobra.Command{
		Use:   "edit [reward]",
		Short: "Edit one reward of the catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(false)
			if err != nil {
				return err
			}
			defer a.close()

			slots := a.svc.State().Catalog.Slots
			target, err := resolveSlot(slots, args[0])
			if err != nil {
				return err
			}
			for i := range slots {
				if slots[i].ID != target.ID {
					continue
				}
				if cmd.Flags().Changed("label") {
					slots[i].Label = label
				}
				if cmd.Flags().Changed("threshold") {
					slots[i].Threshold = threshold
				}
				if cmd.Flags().Changed("description") {
					slots[i].Description = description
				}
				if unclaim {
					slots[i].Claimed = false
				}
			}

			updated, err := a.svc.EditLoot(slots)
			if err != nil {
				return err
			}
			printLoot(updated, a.svc.State().Ledger.AvailablePoints())
			return nil
		},
	}

	cmd.Flags().StringVar(&label, "label", "", "reward label")
	cmd.Flags().IntVar(&threshold, "threshold", 0, "cost in points")
	cmd.Flags().StringVar(&description, "description", "", "reward description")
	cmd.Flags().BoolVar(&unclaim, "unclaim", false, "make a claimed reward available again")
	return cmd
}

func resetCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Close the day: update the streak, refill rewards, add starter tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(false)
			if err != nil {
				return err
			}
			defer a.close()

			met := a.svc.PreviewRollover()
			if !yes {
				outcome := ui.Good.Render("goal met, streak continues")
				if !met {
					outcome = ui.Warn.Render("goal not met")
				}
				if !confirm(fmt.Sprintf("Close the day (%s)?", outcome)) {
					fmt.Println("Cancelled.")
					return nil
				}
			}

			closed, err := a.svc.Rollover()
			if err != nil {
				return err
			}
			fmt.Println(ui.Heading(ui.IconLoop, "New day"))
			fmt.Println(ui.LabelValue("Streak", fmt.Sprintf("%s %d", ui.IconFire, closed.Streak)))
			fmt.Println(ui.LabelValue("Rewards refilled", closed.SlotsRefilled))
			fmt.Println(ui.LabelValue("Starter tasks", closed.TasksAdded))
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip confirmation")
	return cmd
}

func confirm(question string) bool {
	fmt.Printf("%s [y/N] ", question)
	line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
