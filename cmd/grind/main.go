package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pbaille/grind/internal/config"
	"github.com/pbaille/grind/internal/domain"
	"github.com/pbaille/grind/internal/logging"
	"github.com/pbaille/grind/internal/store"
	"github.com/pbaille/grind/internal/suggest"
	"github.com/pbaille/grind/internal/tracker"
	"github.com/pbaille/grind/internal/ui"
)

var (
	dbPath  string
	cfgPath string
	debug   bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "grind",
		Short:         "Daily XP tracker with a reward shop",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database path (default from config, ~/.grind/grind.db)")
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file (default ~/.grind/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "verbose logging")

	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(addCmd())
	rootCmd.AddCommand(editCmd())
	rootCmd.AddCommand(rmCmd())
	rootCmd.AddCommand(doneCmd())
	rootCmd.AddCommand(estimateCmd())
	rootCmd.AddCommand(generateCmd())
	rootCmd.AddCommand(claimCmd())
	rootCmd.AddCommand(lootCmd())
	rootCmd.AddCommand(resetCmd())
	rootCmd.AddCommand(settingsCmd())
	rootCmd.AddCommand(profileCmd())
	rootCmd.AddCommand(historyCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(clearCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(configCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, ui.Error(err))
		os.Exit(1)
	}
}

// app bundles what a command needs; close releases the store.
type app struct {
	cfg   *config.Config
	log   *zap.Logger
	store *store.Store
	svc   *tracker.Service
}

func (a *app) close() {
	_ = a.store.Close()
	_ = a.log.Sync()
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	if debug {
		cfg.Log.Debug = true
	}
	return cfg, nil
}

func openApp(server bool) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	newLogger := logging.New
	if server {
		newLogger = logging.ForServer
	}
	log, err := newLogger(cfg.Log.Debug)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	st, err := store.New(cfg.DBPath, log)
	if err != nil {
		return nil, err
	}

	ai := cfg.OpenAI
	svc, err := tracker.Open(st,
		tracker.WithLogger(log),
		tracker.WithFallbackKey(ai.APIKey),
		tracker.WithSuggester(func(key string) (tracker.Suggester, error) {
			return suggest.New(key,
				suggest.WithModel(ai.Model),
				suggest.WithBaseURL(ai.BaseURL),
				suggest.WithTimeout(ai.TimeoutDuration()))
		}),
	)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	return &app{cfg: cfg, log: log, store: st, svc: svc}, nil
}

// reportFallback prints an AI fallback as a warning and swallows it.
func reportFallback(err error) error {
	var fe *tracker.FallbackError
	if errors.As(err, &fe) {
		fmt.Println(ui.Warn.Render(ui.IconWarn + " AI unavailable, used local fallback: " + fe.Err.Error()))
		return nil
	}
	return err
}

// resolveTask finds a task by 1-based position or id prefix.
func resolveTask(tasks []domain.Task, ref string) (domain.Task, error) {
	if n, err := strconv.Atoi(ref); err == nil && n >= 1 && n <= len(tasks) {
		return tasks[n-1], nil
	}
	var found []domain.Task
	for _, t := range tasks {
		if strings.HasPrefix(t.ID, ref) {
			found = append(found, t)
		}
	}
	switch len(found) {
	case 0:
		return domain.Task{}, fmt.Errorf("task not found: %s", ref)
	case 1:
		return found[0], nil
	default:
		return domain.Task{}, fmt.Errorf("ambiguous task id: %s", ref)
	}
}

// resolveSlot finds a reward slot by 1-based position or id prefix.
func resolveSlot(slots []domain.RewardSlot, ref string) (domain.RewardSlot, error) {
	if n, err := strconv.Atoi(ref); err == nil && n >= 1 && n <= len(slots) {
		return slots[n-1], nil
	}
	var found []domain.RewardSlot
	for _, s := range slots {
		if strings.HasPrefix(s.ID, ref) {
			found = append(found, s)
		}
	}
	switch len(found) {
	case 0:
		return domain.RewardSlot{}, fmt.Errorf("reward not found: %s", ref)
	case 1:
		return found[0], nil
	default:
		return domain.RewardSlot{}, fmt.Errorf("ambiguous reward id: %s", ref)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, max int) string {
	// Replace newlines with spaces for display
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
