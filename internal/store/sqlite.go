package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/gkobilansky/moment-meter/internal/engine"
	"github.com/gkobilansky/moment-meter/internal/events"
)

var ErrNotFound = errors.New("not found")

type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS interactions (
    id TEXT PRIMARY KEY,
    moment_id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    session_id TEXT NOT NULL,
    type TEXT NOT NULL,
    value REAL,
    metadata TEXT NOT NULL,
    occurred_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_interactions_moment ON interactions(moment_id);
CREATE INDEX IF NOT EXISTS idx_interactions_user ON interactions(user_id);

CREATE TABLE IF NOT EXISTS outcomes (
    id TEXT PRIMARY KEY,
    moment_id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    decision_id TEXT NOT NULL,
    type TEXT NOT NULL,
    value REAL NOT NULL,
    conversion_path TEXT,
    time_to_conversion INTEGER,
    occurred_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_outcomes_moment ON outcomes(moment_id);

CREATE TABLE IF NOT EXISTS ab_tests (
    id TEXT PRIMARY KEY,
    version INTEGER NOT NULL,
    state TEXT NOT NULL,
    snapshot TEXT NOT NULL,
    created_at TEXT NOT NULL,
    updated_at INTEGER NOT NULL DEFAULT (unixepoch())
);

CREATE TABLE IF NOT EXISTS funnels (
    id TEXT PRIMARY KEY,
    steps TEXT NOT NULL,
    defined_at TEXT NOT NULL
);
`

func Open(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Apply schema
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveInteraction(ctx context.Context, i events.Interaction) (string, error) {
	metadataJSON, err := json.Marshal(i.Metadata)
	if err != nil {
		return "", fmt.Errorf("failed to marshal metadata: %w", err)
	}

	var value sql.NullFloat64
	if i.Value != nil {
		value = sql.NullFloat64{Float64: *i.Value, Valid: true}
	}

	id := ulid.Make().String()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO interactions (id, moment_id, user_id, session_id, type, value, metadata, occurred_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, i.MomentID, i.UserID, i.SessionID, string(i.Type), value, string(metadataJSON), formatTime(i.Timestamp),
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert interaction: %w", err)
	}

	return id, nil
}

func (s *SQLiteStore) SaveOutcome(ctx context.Context, o events.Outcome) (string, error) {
	var pathJSON []byte
	if len(o.ConversionPath) > 0 {
		var err error
		pathJSON, err = json.Marshal(o.ConversionPath)
		if err != nil {
			return "", fmt.Errorf("failed to marshal conversion path: %w", err)
		}
	}

	var ttc sql.NullInt64
	if o.TimeToConversion != nil {
		ttc = sql.NullInt64{Int64: int64(*o.TimeToConversion), Valid: true}
	}

	id := ulid.Make().String()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO outcomes (id, moment_id, user_id, decision_id, type, value, conversion_path, time_to_conversion, occurred_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, o.MomentID, o.UserID, o.DecisionID, string(o.Type), o.Value, nullableString(pathJSON), ttc, formatTime(o.Timestamp),
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert outcome: %w", err)
	}

	return id, nil
}

// ListInteractions returns every interaction in insertion order.
func (s *SQLiteStore) ListInteractions(ctx context.Context) ([]events.Interaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT moment_id, user_id, session_id, type, value, metadata, occurred_at
		 FROM interactions ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list interactions: %w", err)
	}
	defer rows.Close()

	var out []events.Interaction
	for rows.Next() {
		var i events.Interaction
		var typ, metadataJSON, occurredAt string
		var value sql.NullFloat64

		if err := rows.Scan(&i.MomentID, &i.UserID, &i.SessionID, &typ, &value, &metadataJSON, &occurredAt); err != nil {
			return nil, fmt.Errorf("failed to scan interaction: %w", err)
		}

		i.Type = events.InteractionType(typ)
		if value.Valid {
			i.Value = events.Float(value.Float64)
		}
		if err := json.Unmarshal([]byte(metadataJSON), &i.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
		if i.Timestamp, err = parseTime(occurredAt); err != nil {
			return nil, err
		}

		out = append(out, i)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read interactions: %w", err)
	}
	return out, nil
}

// ListOutcomes returns every outcome in insertion order.
func (s *SQLiteStore) ListOutcomes(ctx context.Context) ([]events.Outcome, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT moment_id, user_id, decision_id, type, value, conversion_path, time_to_conversion, occurred_at
		 FROM outcomes ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list outcomes: %w", err)
	}
	defer rows.Close()

	var out []events.Outcome
	for rows.Next() {
		var o events.Outcome
		var typ, occurredAt string
		var pathJSON sql.NullString
		var ttc sql.NullInt64

		if err := rows.Scan(&o.MomentID, &o.UserID, &o.DecisionID, &typ, &o.Value, &pathJSON, &ttc, &occurredAt); err != nil {
			return nil, fmt.Errorf("failed to scan outcome: %w", err)
		}

		o.Type = events.OutcomeType(typ)
		if pathJSON.Valid && pathJSON.String != "" {
			if err := json.Unmarshal([]byte(pathJSON.String), &o.ConversionPath); err != nil {
				return nil, fmt.Errorf("failed to unmarshal conversion path: %w", err)
			}
		}
		if ttc.Valid {
			d := time.Duration(ttc.Int64)
			o.TimeToConversion = &d
		}
		if o.Timestamp, err = parseTime(occurredAt); err != nil {
			return nil, err
		}

		out = append(out, o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read outcomes: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) MomentCounts(ctx context.Context) ([]MomentCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT moment_id, SUM(interactions), SUM(outcomes) FROM (
			SELECT moment_id, COUNT(*) AS interactions, 0 AS outcomes FROM interactions GROUP BY moment_id
			UNION ALL
			SELECT moment_id, 0, COUNT(*) FROM outcomes GROUP BY moment_id
		)
		GROUP BY moment_id
		ORDER BY moment_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to count moments: %w", err)
	}
	defer rows.Close()

	var counts []MomentCount
	for rows.Next() {
		var c MomentCount
		if err := rows.Scan(&c.MomentID, &c.Interactions, &c.Outcomes); err != nil {
			return nil, fmt.Errorf("failed to scan moment count: %w", err)
		}
		counts = append(counts, c)
	}

	return counts, rows.Err()
}

// SaveTest upserts the latest snapshot of a test. An older version never
// replaces a newer one, except a freshly created test restarting at 1.
func (s *SQLiteStore) SaveTest(ctx context.Context, t engine.ABTest) error {
	snapshot, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to marshal test: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO ab_tests (id, version, state, snapshot, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		     version = excluded.version,
		     state = excluded.state,
		     snapshot = excluded.snapshot,
		     created_at = excluded.created_at,
		     updated_at = excluded.updated_at
		 WHERE excluded.version >= ab_tests.version OR excluded.state = 'created'`,
		t.ID, t.Version, string(t.State), string(snapshot), formatTime(t.CreatedAt), time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to save test: %w", err)
	}

	return nil
}

func (s *SQLiteStore) GetTest(ctx context.Context, id string) (*engine.ABTest, error) {
	var snapshot string
	err := s.db.QueryRowContext(ctx, `SELECT snapshot FROM ab_tests WHERE id = ?`, id).Scan(&snapshot)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get test: %w", err)
	}

	var t engine.ABTest
	if err := json.Unmarshal([]byte(snapshot), &t); err != nil {
		return nil, fmt.Errorf("failed to unmarshal test: %w", err)
	}

	return &t, nil
}

func (s *SQLiteStore) ListTests(ctx context.Context) ([]engine.ABTest, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT snapshot FROM ab_tests ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tests: %w", err)
	}
	defer rows.Close()

	var tests []engine.ABTest
	for rows.Next() {
		var snapshot string
		if err := rows.Scan(&snapshot); err != nil {
			return nil, fmt.Errorf("failed to scan test: %w", err)
		}

		var t engine.ABTest
		if err := json.Unmarshal([]byte(snapshot), &t); err != nil {
			return nil, fmt.Errorf("failed to unmarshal test: %w", err)
		}
		tests = append(tests, t)
	}

	return tests, rows.Err()
}

func (s *SQLiteStore) SaveFunnel(ctx context.Context, def engine.FunnelDefinition) error {
	stepsJSON, err := json.Marshal(def.Steps)
	if err != nil {
		return fmt.Errorf("failed to marshal steps: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO funnels (id, steps, defined_at) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET steps = excluded.steps, defined_at = excluded.defined_at`,
		def.ID, string(stepsJSON), formatTime(def.DefinedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save funnel: %w", err)
	}

	return nil
}

func (s *SQLiteStore) ListFunnels(ctx context.Context) ([]engine.FunnelDefinition, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, steps, defined_at FROM funnels ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list funnels: %w", err)
	}
	defer rows.Close()

	var defs []engine.FunnelDefinition
	for rows.Next() {
		var def engine.FunnelDefinition
		var stepsJSON, definedAt string
		if err := rows.Scan(&def.ID, &stepsJSON, &definedAt); err != nil {
			return nil, fmt.Errorf("failed to scan funnel: %w", err)
		}
		if err := json.Unmarshal([]byte(stepsJSON), &def.Steps); err != nil {
			return nil, fmt.Errorf("failed to unmarshal steps: %w", err)
		}
		if def.DefinedAt, err = parseTime(definedAt); err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}

	return defs, rows.Err()
}

// DB returns the underlying database connection for health checks
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp %q: %w", s, err)
	}
	return t, nil
}

func nullableString(b []byte) sql.NullString {
	if len(b) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}
