package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/relaycli/relay/internal/model"

	_ "modernc.org/sqlite"
)

const schemaVersion = 2

// SQLiteStore implements Store using a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// New opens (or creates) a SQLite database at dbPath. It auto-creates the
// parent directory (e.g. ~/.relay/) and runs schema migrations.
func New(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Single connection for WAL mode simplicity.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER NOT NULL
	)`); err != nil {
		return fmt.Errorf("create version table: %w", err)
	}

	var ver int
	err := s.db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&ver)
	if err == sql.ErrNoRows {
		ver = 0
	} else if err != nil {
		return fmt.Errorf("read version: %w", err)
	}

	if ver < 1 {
		if err := s.migrateV1(); err != nil {
			return err
		}
	}
	if ver < 2 {
		if err := s.migrateV2(); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) migrateV1() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS capabilities (
			tool                 TEXT PRIMARY KEY,
			vendor               TEXT,
			pattern              TEXT NOT NULL,
			prompt_flag          TEXT,
			non_interactive_flag TEXT,
			subcommands          TEXT,
			examples             TEXT,
			source_version       TEXT NOT NULL,
			analyzed_at          TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS failures (
			tool           TEXT PRIMARY KEY,
			last_failure   TEXT NOT NULL,
			cooldown_until TEXT NOT NULL
		)`,
		`INSERT OR REPLACE INTO schema_version (version) VALUES (1)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate v1: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) migrateV2() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS attempts (
			id          TEXT PRIMARY KEY,
			tool        TEXT NOT NULL,
			format      TEXT NOT NULL,
			args        TEXT,
			ok          INTEGER NOT NULL DEFAULT 0,
			exit_code   INTEGER NOT NULL DEFAULT 0,
			reason      TEXT,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			timestamp   TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_attempts_tool ON attempts(tool)`,
		`CREATE INDEX IF NOT EXISTS idx_attempts_timestamp ON attempts(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_attempts_ok ON attempts(ok)`,
		`UPDATE schema_version SET version = 2`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate v2: %w", err)
		}
	}
	return nil
}

// GetCapability returns the record for tool, or nil if none exists.
func (s *SQLiteStore) GetCapability(ctx context.Context, tool string) (*model.CapabilityRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT tool, vendor, pattern, prompt_flag, non_interactive_flag, subcommands, examples, source_version, analyzed_at
		 FROM capabilities WHERE tool = ?`, tool)
	rec, err := scanCapability(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get capability: %w", err)
	}
	return rec, nil
}

// PutCapability replaces the record for rec.Tool entirely.
func (s *SQLiteStore) PutCapability(ctx context.Context, rec model.CapabilityRecord) error {
	if rec.Tool == "" {
		return fmt.Errorf("put capability: empty tool name")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO capabilities
		 (tool, vendor, pattern, prompt_flag, non_interactive_flag, subcommands, examples, source_version, analyzed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Tool,
		nullableString(rec.Vendor),
		string(rec.Pattern),
		nullableString(rec.PromptFlag),
		nullableString(rec.NonInteractiveFlag),
		jsonList(rec.Subcommands),
		jsonList(rec.Examples),
		rec.SourceVersion,
		rec.AnalyzedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("put capability: %w", err)
	}
	return nil
}

// ListCapabilities returns all stored records ordered by tool name.
func (s *SQLiteStore) ListCapabilities(ctx context.Context) ([]model.CapabilityRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT tool, vendor, pattern, prompt_flag, non_interactive_flag, subcommands, examples, source_version, analyzed_at
		 FROM capabilities ORDER BY tool`)
	if err != nil {
		return nil, fmt.Errorf("list capabilities: %w", err)
	}
	defer rows.Close()

	var recs []model.CapabilityRecord
	for rows.Next() {
		rec, err := scanCapability(rows)
		if err != nil {
			return nil, fmt.Errorf("scan capability: %w", err)
		}
		recs = append(recs, *rec)
	}
	return recs, rows.Err()
}

// scanner abstracts sql.Row and sql.Rows for scanCapability.
type scanner interface {
	Scan(dest ...any) error
}

func scanCapability(row scanner) (*model.CapabilityRecord, error) {
	var rec model.CapabilityRecord
	var vendor, promptFlag, nonInteractive, subs, examples sql.NullString
	var pattern, analyzedAt string
	if err := row.Scan(&rec.Tool, &vendor, &pattern, &promptFlag, &nonInteractive, &subs, &examples, &rec.SourceVersion, &analyzedAt); err != nil {
		return nil, err
	}
	rec.Vendor = vendor.String
	rec.Pattern = model.ExecutionPattern(pattern)
	rec.PromptFlag = promptFlag.String
	rec.NonInteractiveFlag = nonInteractive.String
	if subs.Valid && subs.String != "" {
		if err := json.Unmarshal([]byte(subs.String), &rec.Subcommands); err != nil {
			return nil, fmt.Errorf("parse subcommands: %w", err)
		}
	}
	if examples.Valid && examples.String != "" {
		if err := json.Unmarshal([]byte(examples.String), &rec.Examples); err != nil {
			return nil, fmt.Errorf("parse examples: %w", err)
		}
	}
	t, err := time.Parse(time.RFC3339Nano, analyzedAt)
	if err != nil {
		return nil, fmt.Errorf("parse analyzed_at %q: %w", analyzedAt, err)
	}
	rec.AnalyzedAt = t
	return &rec, nil
}

// GetFailure returns the failure record for tool, or nil if none exists.
func (s *SQLiteStore) GetFailure(ctx context.Context, tool string) (*model.FailureRecord, error) {
	var rec model.FailureRecord
	var lastFailure, cooldownUntil string
	err := s.db.QueryRowContext(ctx,
		`SELECT tool, last_failure, cooldown_until FROM failures WHERE tool = ?`, tool,
	).Scan(&rec.Tool, &lastFailure, &cooldownUntil)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get failure: %w", err)
	}
	rec.LastFailure, _ = time.Parse(time.RFC3339Nano, lastFailure)
	rec.CooldownUntil, _ = time.Parse(time.RFC3339Nano, cooldownUntil)
	return &rec, nil
}

// PutFailure creates or refreshes the failure record for rec.Tool.
func (s *SQLiteStore) PutFailure(ctx context.Context, rec model.FailureRecord) error {
	if rec.Tool == "" {
		return fmt.Errorf("put failure: empty tool name")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO failures (tool, last_failure, cooldown_until) VALUES (?, ?, ?)`,
		rec.Tool,
		rec.LastFailure.UTC().Format(time.RFC3339Nano),
		rec.CooldownUntil.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("put failure: %w", err)
	}
	return nil
}

// RecordAttempt persists one invocation attempt.
func (s *SQLiteStore) RecordAttempt(ctx context.Context, a model.Attempt) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO attempts (id, tool, format, args, ok, exit_code, reason, duration_ms, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID,
		a.Tool,
		a.Format,
		jsonList(a.Args),
		boolToInt(a.OK),
		a.ExitCode,
		nullableString(a.Reason),
		a.DurationMS,
		a.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}
	return nil
}

// ListAttempts returns attempts matching opts, newest first.
func (s *SQLiteStore) ListAttempts(ctx context.Context, opts AttemptOpts) ([]model.Attempt, error) {
	query := `SELECT id, tool, format, args, ok, exit_code, reason, duration_ms, timestamp FROM attempts WHERE 1=1`
	var args []any

	if !opts.Since.IsZero() {
		query += " AND timestamp >= ?"
		args = append(args, opts.Since.UTC().Format(time.RFC3339Nano))
	}
	if opts.Tool != "" {
		query += " AND tool = ?"
		args = append(args, opts.Tool)
	}
	if opts.FailOnly {
		query += " AND ok = 0"
	}
	query += " ORDER BY timestamp DESC"
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	var attempts []model.Attempt
	for rows.Next() {
		var a model.Attempt
		var argsJSON, reason sql.NullString
		var ok int
		var ts string
		if err := rows.Scan(&a.ID, &a.Tool, &a.Format, &argsJSON, &ok, &a.ExitCode, &reason, &a.DurationMS, &ts); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		a.OK = ok != 0
		a.Reason = reason.String
		if argsJSON.Valid && argsJSON.String != "" {
			if err := json.Unmarshal([]byte(argsJSON.String), &a.Args); err != nil {
				return nil, fmt.Errorf("parse attempt args: %w", err)
			}
		}
		t, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("parse timestamp %q: %w", ts, err)
		}
		a.Timestamp = t
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// Stats returns summary statistics about stored relay data.
func (s *SQLiteStore) Stats(ctx context.Context) (Stats, error) {
	var st Stats

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM capabilities").Scan(&st.Capabilities); err != nil {
		return st, fmt.Errorf("count capabilities: %w", err)
	}

	now := time.Now().UTC()
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM failures WHERE cooldown_until > ?",
		now.Format(time.RFC3339Nano)).Scan(&st.ActiveFailures); err != nil {
		return st, fmt.Errorf("count active failures: %w", err)
	}

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM attempts").Scan(&st.TotalAttempts); err != nil {
		return st, fmt.Errorf("count attempts: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM attempts WHERE ok = 0").Scan(&st.RejectedCount); err != nil {
		return st, fmt.Errorf("count rejected: %w", err)
	}

	// Top tools by attempt count (top 5).
	rows, err := s.db.QueryContext(ctx,
		"SELECT tool, COUNT(*) as cnt FROM attempts GROUP BY tool ORDER BY cnt DESC LIMIT 5")
	if err != nil {
		return st, fmt.Errorf("top tools: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var nc NameCount
		if err := rows.Scan(&nc.Name, &nc.Count); err != nil {
			return st, fmt.Errorf("scan top tool: %w", err)
		}
		st.TopTools = append(st.TopTools, nc)
	}
	if err := rows.Err(); err != nil {
		return st, err
	}

	// Date range.
	if st.TotalAttempts > 0 {
		var earliest, latest string
		if err := s.db.QueryRowContext(ctx,
			"SELECT MIN(timestamp), MAX(timestamp) FROM attempts").Scan(&earliest, &latest); err != nil {
			return st, fmt.Errorf("date range: %w", err)
		}
		st.Earliest, _ = time.Parse(time.RFC3339Nano, earliest)
		st.Latest, _ = time.Parse(time.RFC3339Nano, latest)
	}

	// Time-window counts.
	for _, w := range []struct {
		dur time.Duration
		dst *int
	}{
		{24 * time.Hour, &st.Last24h},
		{7 * 24 * time.Hour, &st.Last7d},
	} {
		since := now.Add(-w.dur).Format(time.RFC3339Nano)
		if err := s.db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM attempts WHERE timestamp >= ?", since).Scan(w.dst); err != nil {
			return st, fmt.Errorf("count since %v: %w", w.dur, err)
		}
	}

	return st, nil
}

// Close releases the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// nullableString returns nil for empty strings, otherwise the string value.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// jsonList returns nil for empty slices, otherwise the JSON encoding.
func jsonList(list []string) any {
	if len(list) == 0 {
		return nil
	}
	b, err := json.Marshal(list)
	if err != nil {
		return nil
	}
	return string(b)
}
