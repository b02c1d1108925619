package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/gkobilansky/moment-meter/internal/engine"
	"github.com/gkobilansky/moment-meter/internal/logging"
	"github.com/gkobilansky/moment-meter/internal/store"
)

// withStore opens the database, executes the function, and handles cleanup.
func withStore(fn func(*store.SQLiteStore) error) error {
	s, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer s.Close()

	return fn(s)
}

// withEngine replays the database into a fresh engine. Anything the function
// changes (tests, funnels) is written back before the database closes.
func withEngine(fn func(*engine.Engine) error) error {
	return withStore(func(s *store.SQLiteStore) error {
		log, err := newLogger()
		if err != nil {
			return err
		}
		defer log.Sync()

		e := engine.New(engine.WithLogger(log))
		if _, err := store.Replay(context.Background(), s, e); err != nil {
			return fmt.Errorf("failed to load database: %w", err)
		}
		e.Subscribe(store.Persister(s, log))
		defer e.Close()

		return fn(e)
	})
}

func newLogger() (*zap.Logger, error) {
	return logging.New(logLvl, logFmt)
}

// getTokenFilePath returns the path to the token file
func getTokenFilePath() string {
	if cfg.TokenFile != "" {
		return cfg.TokenFile
	}
	// Store token file alongside the database
	dir := filepath.Dir(dbPath)
	return filepath.Join(dir, ".moment-meter-token")
}

// parseDate accepts RFC 3339 or a plain date. Empty means unbounded.
func parseDate(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: use YYYY-MM-DD or RFC 3339", v)
	}
	return t, nil
}

// parseEndDate is parseDate for an inclusive end: a plain date runs to the
// last instant of that day.
func parseEndDate(v string) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, v); err == nil {
		return t.AddDate(0, 0, 1).Add(-time.Nanosecond), nil
	}
	return parseDate(v)
}

func formatNumber(n int) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	if n < 1000000 {
		return fmt.Sprintf("%d,%03d", n/1000, n%1000)
	}
	return fmt.Sprintf("%d,%03d,%03d", n/1000000, (n/1000)%1000, n%1000)
}

// formatPercent formats a rate that is already in percent.
func formatPercent(rate float64) string {
	if rate == 0 {
		return "0%"
	}
	return fmt.Sprintf("%.2f%%", rate)
}
