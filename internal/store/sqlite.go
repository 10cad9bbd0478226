package store

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/pbaille/grind/internal/domain"
	"github.com/pbaille/grind/internal/snapshot"
)

//go:embed schema.sql
var schema string

const (
	stateKey = "state:v1"
	logKey   = "completedLog:v1"
)

// Store handles database operations
type Store struct {
	db  *sql.DB
	log *zap.Logger
}

// New opens (and creates if needed) the database at dbPath
func New(dbPath string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One writer keeps the snapshot and the history in step.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &Store{db: db, log: log}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Load restores the saved snapshot over base. A missing snapshot returns
// base; a malformed one is logged and base is used instead.
func (s *Store) Load(base snapshot.Snapshot) (snapshot.Snapshot, error) {
	raw, err := s.get(stateKey)
	if err != nil {
		return base, err
	}
	out := base
	if raw != nil {
		merged, skipped, err := snapshot.Merge(base, raw)
		if err != nil {
			s.log.Warn("failed to load saved state, using defaults", zap.Error(err))
		} else {
			out = merged
		}
		for _, f := range skipped {
			s.log.Warn("skipped saved field", zap.String("field", f.Key), zap.Error(f.Err))
		}
	}

	rawLog, err := s.get(logKey)
	if err != nil {
		return base, err
	}
	if rawLog != nil {
		completed, err := snapshot.DecodeLog(rawLog)
		if err != nil {
			s.log.Warn("failed to load completed log", zap.Error(err))
		} else {
			out.State.CompletedLog = completed
		}
	}
	return out, nil
}

// Save writes the snapshot, its completion log and any new completion records
// in a single transaction.
func (s *Store) Save(snap snapshot.Snapshot, completions ...domain.CompletedTask) error {
	state, err := snapshot.Encode(snap)
	if err != nil {
		return err
	}
	completedLog, err := snapshot.EncodeLog(snap.State.CompletedLog)
	if err != nil {
		return err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	for key, value := range map[string][]byte{stateKey: state, logKey: completedLog} {
		_, err := tx.Exec(
			"INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at",
			key, string(value), now,
		)
		if err != nil {
			return fmt.Errorf("save %s: %w", key, err)
		}
	}

	for _, c := range completions {
		_, err := tx.Exec(
			"INSERT OR IGNORE INTO completions (id, name, xp, duration_ms, completed_at) VALUES (?, ?, ?, ?, ?)",
			c.ID, c.Name, c.XP, c.DurationMs, c.CompletedAt,
		)
		if err != nil {
			return fmt.Errorf("insert completion: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Clear removes the saved snapshot, and the history too when withHistory is set.
func (s *Store) Clear(withHistory bool) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM kv WHERE key IN (?, ?)", stateKey, logKey); err != nil {
		return fmt.Errorf("clear state: %w", err)
	}
	if withHistory {
		if _, err := tx.Exec("DELETE FROM completions"); err != nil {
			return fmt.Errorf("clear history: %w", err)
		}
	}
	return tx.Commit()
}

// History returns recorded completions, most recent first
func (s *Store) History(limit, offset int) ([]domain.CompletedTask, error) {
	rows, err := s.db.Query(
		"SELECT id, name, xp, duration_ms, completed_at FROM completions ORDER BY completed_at DESC LIMIT ? OFFSET ?",
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list completions: %w", err)
	}
	defer rows.Close()

	var out []domain.CompletedTask
	for rows.Next() {
		var c domain.CompletedTask
		if err := rows.Scan(&c.ID, &c.Name, &c.XP, &c.DurationMs, &c.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan completion: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// DayTotal aggregates the completions of one calendar day.
type DayTotal struct {
	Date  string `json:"date"`
	Tasks int    `json:"tasks"`
	XP    int    `json:"xp"`
}

// DailyTotals sums completions per local day for the last days days.
func (s *Store) DailyTotals(days int) ([]DayTotal, error) {
	rows, err := s.db.Query(`
		SELECT date(completed_at / 1000, 'unixepoch', 'localtime') AS day, COUNT(*), SUM(xp)
		FROM completions
		GROUP BY day
		ORDER BY day DESC
		LIMIT ?
	`, days)
	if err != nil {
		return nil, fmt.Errorf("daily totals: %w", err)
	}
	defer rows.Close()

	var out []DayTotal
	for rows.Next() {
		var d DayTotal
		if err := rows.Scan(&d.Date, &d.Tasks, &d.XP); err != nil {
			return nil, fmt.Errorf("scan day total: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) get(key string) ([]byte, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM kv WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return []byte(value), nil
}
