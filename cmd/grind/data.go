package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pbaille/grind/internal/api"
	"github.com/pbaille/grind/internal/config"
	"github.com/pbaille/grind/internal/ui"
)

func historyCmd() *cobra.Command {
	var limit, days int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show completed tasks and daily totals",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(false)
			if err != nil {
				return err
			}
			defer a.close()

			totals, err := a.svc.DailyTotals(days)
			if err != nil {
				return err
			}
			fmt.Println(ui.Heading(ui.IconScroll, "Daily totals"))
			if len(totals) == 0 {
				fmt.Println(ui.Muted.Render("Nothing completed yet."))
			}
			for _, d := range totals {
				fmt.Printf("  %s  %3d tasks  %s\n", d.Date, d.Tasks, ui.Gold.Render(fmt.Sprintf("%d XP", d.XP)))
			}

			entries, err := a.svc.History(limit, 0)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				return nil
			}
			fmt.Println()
			fmt.Println(ui.H2.Render("Recent"))
			for _, e := range entries {
				at := time.UnixMilli(e.CompletedAt).Format("2006-01-02 15:04")
				spent := ""
				if e.DurationMs > 0 {
					spent = ui.Muted.Render(" in " + (time.Duration(e.DurationMs) * time.Millisecond).Round(time.Second).String())
				}
				fmt.Printf("  %s  %-40s +%d XP%s\n", ui.Muted.Render(at), truncate(e.Name, 40), e.XP, spent)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of completions to show")
	cmd.Flags().IntVar(&days, "days", 7, "number of days to total")
	return cmd
}

func exportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export [file]",
		Short: "Write the saved state as JSON (stdout when no file is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(false)
			if err != nil {
				return err
			}
			defer a.close()

			data, err := a.svc.Export()
			if err != nil {
				return err
			}
			if len(args) == 0 {
				_, err = os.Stdout.Write(append(data, '\n'))
				return err
			}
			if err := os.WriteFile(args[0], data, 0o600); err != nil {
				return fmt.Errorf("write export: %w", err)
			}
			fmt.Printf("Exported to %s\n", args[0])
			return nil
		},
	}
}

func importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import [file]",
		Short: "Merge a JSON export into the saved state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read import: %w", err)
			}

			a, err := openApp(false)
			if err != nil {
				return err
			}
			defer a.close()

			skipped, err := a.svc.Import(data)
			if err != nil {
				return err
			}
			for _, f := range skipped {
				fmt.Println(ui.Warn.Render(ui.IconWarn + " skipped " + f.String()))
			}
			fmt.Printf("Imported %s\n", args[0])
			return nil
		},
	}
}

func clearCmd() *cobra.Command {
	var withHistory, yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Erase all saved state and start over",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes && !confirm("Erase tasks, points, streak and rewards?") {
				fmt.Println("Cancelled.")
				return nil
			}

			a, err := openApp(false)
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.svc.ClearAll(withHistory); err != nil {
				return err
			}
			fmt.Println("Cleared.")
			return nil
		},
	}

	cmd.Flags().BoolVar(&withHistory, "history", false, "also erase the completion history")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip confirmation")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the REST API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(true)
			if err != nil {
				return err
			}
			// Note: don't close the store as the server runs indefinitely

			if addr == "" {
				addr = a.cfg.API.Addr
			}
			server := api.New(a.svc, addr,
				api.WithLogger(a.log),
				api.WithRateLimit(a.cfg.API.RatePerSecond, a.cfg.API.Burst),
				api.WithAllowedOrigins(a.cfg.API.AllowedOrigins...))
			if err := server.Run(); err != nil {
				a.log.Error("server stopped", zap.Error(err))
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "", "server address (default from config)")
	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := cfgPath
			if path == "" {
				path = config.Path()
			}
			if err := config.WriteDefault(path); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			key := ui.Muted.Render("not set")
			if cfg.OpenAI.APIKey != "" {
				key = ui.Good.Render("set")
			}
			fmt.Println(ui.LabelValue("db_path", cfg.DBPath))
			fmt.Println(ui.LabelValue("openai.model", cfg.OpenAI.Model))
			fmt.Println(ui.LabelValue("openai.base_url", cfg.OpenAI.BaseURL))
			fmt.Println(ui.LabelValue("openai.timeout", cfg.OpenAI.TimeoutDuration()))
			fmt.Println(ui.LabelValue("openai.api_key", key))
			fmt.Println(ui.LabelValue("api.addr", cfg.API.Addr))
			fmt.Println(ui.LabelValue("api.rate_per_second", cfg.API.RatePerSecond))
			fmt.Println(ui.LabelValue("api.burst", cfg.API.Burst))
			fmt.Println(ui.LabelValue("api.allowed_origins", strings.Join(cfg.API.AllowedOrigins, ", ")))
			fmt.Println(ui.LabelValue("log.debug", cfg.Log.Debug))
			return nil
		},
	})
	return cmd
}
