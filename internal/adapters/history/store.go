// Package history records batch runs and their item outcomes in SQLite.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/devbush/vdraft/internal/domain"
	"github.com/devbush/vdraft/internal/ports"
)

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// ErrRunNotFound is returned when a run id has no record.
var ErrRunNotFound = errors.New("run not found")

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id          TEXT PRIMARY KEY,
    started_at  TEXT NOT NULL,
    finished_at TEXT,
    total       INTEGER NOT NULL,
    succeeded   INTEGER NOT NULL DEFAULT 0,
    failed      INTEGER NOT NULL DEFAULT 0,
    concurrency INTEGER NOT NULL DEFAULT 1
);
CREATE TABLE IF NOT EXISTS items (
    run_id       TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    item_index   INTEGER NOT NULL,
    url          TEXT NOT NULL,
    success      INTEGER NOT NULL,
    stage        TEXT,
    kind         TEXT,
    message      TEXT,
    title        TEXT,
    attempts     INTEGER NOT NULL DEFAULT 0,
    cached       INTEGER NOT NULL DEFAULT 0,
    elapsed_ms   INTEGER NOT NULL DEFAULT 0,
    output_files TEXT,
    PRIMARY KEY (run_id, item_index)
);
CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
`

const runColumns = "id, started_at, finished_at, total, succeeded, failed, concurrency"

// Store implements ports.HistoryStore.
type Store struct {
	db   *sql.DB
	path string
}

// Open creates or opens the history database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("ensure history directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// one writer; concurrent workers queue on the pool instead of the file lock
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) BeginRun(ctx context.Context, run ports.RunRecord) error {
	_, err := s.execWithRetry(ctx,
		`INSERT INTO runs (id, started_at, total, concurrency) VALUES (?, ?, ?, ?)`,
		run.ID,
		formatTime(run.StartedAt),
		run.Total,
		run.Concurrency,
	)
	if err != nil {
		return fmt.Errorf("begin run: %w", err)
	}
	return nil
}

func (s *Store) RecordItem(ctx context.Context, runID string, result domain.ItemResult) error {
	var (
		stage, kind, message, title string
		outputs                     []string
		attempts                    int
	)
	if result.Error != nil {
		stage = string(result.Error.Stage)
		kind = string(result.Error.Kind)
		message = result.Error.Message
	}
	if result.Artifacts != nil {
		title = result.Artifacts.Title
		outputs = result.Artifacts.OutputFiles
	}
	for _, n := range result.Attempts {
		attempts += n
	}

	var outputsJSON any
	if len(outputs) > 0 {
		data, err := json.Marshal(outputs)
		if err != nil {
			return fmt.Errorf("marshal output files: %w", err)
		}
		outputsJSON = string(data)
	}

	_, err := s.execWithRetry(ctx,
		`INSERT OR REPLACE INTO items (
            run_id, item_index, url, success, stage, kind, message, title,
            attempts, cached, elapsed_ms, output_files
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID,
		result.Item.Index,
		result.Item.URL,
		boolInt(result.Success),
		nullableString(stage),
		nullableString(kind),
		nullableString(message),
		nullableString(title),
		attempts,
		boolInt(result.Cached),
		result.Elapsed.Milliseconds(),
		outputsJSON,
	)
	if err != nil {
		return fmt.Errorf("record item %d: %w", result.Item.Index, err)
	}
	return nil
}

func (s *Store) FinishRun(ctx context.Context, runID string, report *domain.BatchReport) error {
	if report == nil {
		return errors.New("finish run: report is nil")
	}
	finished := report.StartedAt.Add(report.Elapsed)
	res, err := s.execWithRetry(ctx,
		`UPDATE runs SET finished_at = ?, succeeded = ?, failed = ? WHERE id = ?`,
		formatTime(finished),
		report.Succeeded,
		report.Failed,
		runID,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("finish run %s: %w", runID, ErrRunNotFound)
	}
	return nil
}

func (s *Store) ListRuns(ctx context.Context, limit int) ([]ports.RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []ports.RunRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetRun fetches one run by id, accepting a unique id prefix.
func (s *Store) GetRun(ctx context.Context, idOrPrefix string) (*ports.RunRecord, error) {
	idOrPrefix = strings.TrimSpace(idOrPrefix)
	if idOrPrefix == "" {
		return nil, ErrRunNotFound
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs WHERE id LIKE ? || '%' ORDER BY started_at DESC LIMIT 2`, idOrPrefix)
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	defer rows.Close()

	var found []ports.RunRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		found = append(found, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	switch len(found) {
	case 0:
		return nil, fmt.Errorf("%s: %w", idOrPrefix, ErrRunNotFound)
	case 1:
		return &found[0], nil
	default:
		return nil, fmt.Errorf("run id prefix %q is ambiguous", idOrPrefix)
	}
}

func scanRun(scanner interface{ Scan(dest ...any) error }) (ports.RunRecord, error) {
	var (
		run         ports.RunRecord
		startedRaw  string
		finishedRaw sql.NullString
	)
	if err := scanner.Scan(&run.ID, &startedRaw, &finishedRaw, &run.Total, &run.Succeeded, &run.Failed, &run.Concurrency); err != nil {
		return run, fmt.Errorf("scan run: %w", err)
	}
	if started, err := parseTime(startedRaw); err == nil {
		run.StartedAt = started
	}
	if finishedRaw.Valid {
		if finished, err := parseTime(finishedRaw.String); err == nil {
			run.FinishedAt = finished
		}
	}
	return run, nil
}

func (s *Store) RunItems(ctx context.Context, runID string) ([]ports.ItemRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, item_index, url, success, stage, kind, message, title,
                attempts, cached, elapsed_ms, output_files
         FROM items WHERE run_id = ? ORDER BY item_index`, runID)
	if err != nil {
		return nil, fmt.Errorf("run items: %w", err)
	}
	defer rows.Close()

	var items []ports.ItemRecord
	for rows.Next() {
		var (
			rec                         ports.ItemRecord
			success, cached             int
			elapsedMS                   int64
			stage, kind, message, title sql.NullString
			outputs                     sql.NullString
		)
		if err := rows.Scan(&rec.RunID, &rec.Index, &rec.URL, &success, &stage, &kind, &message, &title,
			&rec.Attempts, &cached, &elapsedMS, &outputs); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		rec.Success = success != 0
		rec.Cached = cached != 0
		rec.Elapsed = time.Duration(elapsedMS) * time.Millisecond
		rec.Stage = stage.String
		rec.Kind = kind.String
		rec.Message = message.String
		rec.Title = title.String
		if outputs.Valid && outputs.String != "" {
			if err := json.Unmarshal([]byte(outputs.String), &rec.OutputFiles); err != nil {
				return nil, fmt.Errorf("decode output files: %w", err)
			}
		}
		items = append(items, rec)
	}
	return items, rows.Err()
}

// Prune deletes runs that started before cutoff and returns how many went.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM runs WHERE started_at < ?`, formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) execWithRetry(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	var (
		res     sql.Result
		execErr error
	)
	if err := retryOnBusy(ctx, func() error {
		res, execErr = s.db.ExecContext(ctx, query, args...)
		return execErr
	}); err != nil {
		return nil, err
	}
	return res, nil
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

// timestamps are fixed width so text ordering matches time ordering
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(raw string) (time.Time, error) {
	return time.Parse(timeLayout, raw)
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var _ ports.HistoryStore = (*Store)(nil)
