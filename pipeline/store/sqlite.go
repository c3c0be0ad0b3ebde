package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a SQLite implementation of Store[S].
//
// It stores checkpoint records in a single-file database. Designed for:
//   - Local runs requiring persistence across restarts
//   - Development and testing with zero setup
//   - Prototyping before migrating to a shared database
//
// SQLiteStore uses WAL mode for concurrent reads and wraps each Append in a
// transaction so the sequence check and insert are atomic.
//
// Type parameter S is the state type to persist (must be JSON-serializable).
type SQLiteStore[S any] struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
	path   string
}

// NewSQLiteStore creates a new SQLite-backed store.
//
// The path parameter specifies the database file location:
//   - "./runs.db" - file in current directory
//   - ":memory:" - in-memory database (data lost on close)
//
// The store automatically creates the database file and schema, enables WAL
// mode, and configures a busy timeout.
//
// Example:
//
//	st, err := store.NewSQLiteStore[State]("./runs.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer st.Close()
func NewSQLiteStore[S any](path string) (*SQLiteStore[S], error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite connection: %w", err)
	}

	// SQLite supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	s := &SQLiteStore[S]{
		db:   db,
		path: path,
	}

	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return s, nil
}

// createTables creates the database schema if it doesn't exist.
func (s *SQLiteStore[S]) createTables(ctx context.Context) error {
	recordsTable := `
		CREATE TABLE IF NOT EXISTS pipeline_records (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			step_id TEXT NOT NULL,
			status TEXT NOT NULL,
			state TEXT NOT NULL,
			checksum TEXT NOT NULL,
			pending TEXT,
			halt TEXT,
			saved_at TIMESTAMP NOT NULL,
			UNIQUE(run_id, seq)
		)
	`
	if _, err := s.db.ExecContext(ctx, recordsTable); err != nil {
		return fmt.Errorf("failed to create pipeline_records table: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, "CREATE INDEX IF NOT EXISTS idx_records_run_seq ON pipeline_records(run_id, seq)"); err != nil {
		return fmt.Errorf("failed to create idx_records_run_seq: %w", err)
	}

	return nil
}

// Append persists a new checkpoint record (implements Store interface).
//
// The sequence check and insert run in one transaction, so a competing writer
// fails with ErrSequence instead of silently interleaving records.
func (s *SQLiteStore[S]) Append(ctx context.Context, rec Record[S]) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return fmt.Errorf("store is closed")
	}
	s.mu.RUnlock()

	if err := rec.validate(); err != nil {
		return err
	}

	stateJSON, err := json.Marshal(rec.State)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	rec.Checksum = checksum(stateJSON)

	pendingJSON, haltJSON, err := encodeAttachments(rec.Pending, rec.Halt)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var last int
	err = tx.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(seq), 0) FROM pipeline_records WHERE run_id = ?", rec.RunID,
	).Scan(&last)
	if err != nil {
		return fmt.Errorf("failed to read latest seq: %w", err)
	}
	if rec.Seq != last+1 {
		err = fmt.Errorf("%w: run %s has seq %d, got %d", ErrSequence, rec.RunID, last, rec.Seq)
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO pipeline_records (run_id, seq, step_id, status, state, checksum, pending, halt, saved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.RunID,
		rec.Seq,
		rec.StepID,
		string(rec.Status),
		string(stateJSON),
		rec.Checksum,
		pendingJSON,
		haltJSON,
		rec.SavedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to insert record: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Latest retrieves the most recent record for a run (implements Store interface).
func (s *SQLiteStore[S]) Latest(ctx context.Context, runID string) (Record[S], error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		var zero Record[S]
		return zero, fmt.Errorf("store is closed")
	}
	s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT run_id, seq, step_id, status, state, checksum, pending, halt, saved_at
		FROM pipeline_records
		WHERE run_id = ?
		ORDER BY seq DESC
		LIMIT 1
	`, runID)

	rec, err := scanRecord[S](row)
	if errors.Is(err, sql.ErrNoRows) {
		var zero Record[S]
		return zero, ErrNotFound
	}
	if err != nil {
		var zero Record[S]
		return zero, err
	}
	return rec, nil
}

// History retrieves all records for a run ordered by seq ascending
// (implements Store interface).
func (s *SQLiteStore[S]) History(ctx context.Context, runID string) ([]Record[S], error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, fmt.Errorf("store is closed")
	}
	s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, seq, step_id, status, state, checksum, pending, halt, saved_at
		FROM pipeline_records
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []Record[S]
	for rows.Next() {
		rec, err := scanRecord[S](rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating record rows: %w", err)
	}

	if len(records) == 0 {
		return nil, ErrNotFound
	}
	return records, nil
}

// Runs summarizes all known runs, most recently updated first (implements
// Store interface).
func (s *SQLiteStore[S]) Runs(ctx context.Context) ([]RunInfo, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, fmt.Errorf("store is closed")
	}
	s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT r.run_id, r.seq, r.step_id, r.status, r.saved_at
		FROM pipeline_records r
		JOIN (
			SELECT run_id, MAX(seq) AS max_seq
			FROM pipeline_records
			GROUP BY run_id
		) latest ON r.run_id = latest.run_id AND r.seq = latest.max_seq
		ORDER BY r.saved_at DESC, r.run_id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	infos := make([]RunInfo, 0)
	for rows.Next() {
		var (
			info       RunInfo
			status     string
			savedAtStr string
		)
		if err := rows.Scan(&info.RunID, &info.Seq, &info.StepID, &status, &savedAtStr); err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		info.Status = RunStatus(status)
		info.SavedAt, err = time.Parse(time.RFC3339Nano, savedAtStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse saved_at: %w", err)
		}
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating run rows: %w", err)
	}

	return infos, nil
}

// Close closes the database connection.
//
// After Close, all operations return an error. Double-close is a no-op.
func (s *SQLiteStore[S]) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	return s.db.Close()
}

// Ping verifies the database connection is alive.
func (s *SQLiteStore[S]) Ping(ctx context.Context) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return fmt.Errorf("store is closed")
	}
	s.mu.RUnlock()

	return s.db.PingContext(ctx)
}

// Path returns the database file path.
func (s *SQLiteStore[S]) Path() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.path
}

// scanner abstracts sql.Row and sql.Rows for record decoding.
type scanner interface {
	Scan(dest ...any) error
}

// scanRecord decodes one pipeline_records row and verifies the state against
// its recorded checksum.
//
// Verification re-marshals the decoded state rather than hashing the raw
// column bytes: MySQL's JSON column type normalizes whitespace and key order,
// so only the content is stable across backends.
func scanRecord[S any](row scanner) (Record[S], error) {
	var (
		rec         Record[S]
		status      string
		stateJSON   string
		pendingJSON sql.NullString
		haltJSON    sql.NullString
		savedAtStr  string
	)

	err := row.Scan(
		&rec.RunID,
		&rec.Seq,
		&rec.StepID,
		&status,
		&stateJSON,
		&rec.Checksum,
		&pendingJSON,
		&haltJSON,
		&savedAtStr,
	)
	if err != nil {
		var zero Record[S]
		return zero, err
	}
	rec.Status = RunStatus(status)

	if err := json.Unmarshal([]byte(stateJSON), &rec.State); err != nil {
		var zero Record[S]
		return zero, fmt.Errorf("%w: run %s seq %d: %v", ErrCorrupted, rec.RunID, rec.Seq, err)
	}

	verify, err := json.Marshal(rec.State)
	if err != nil {
		var zero Record[S]
		return zero, fmt.Errorf("failed to marshal state for verification: %w", err)
	}
	if checksum(verify) != rec.Checksum {
		var zero Record[S]
		return zero, fmt.Errorf("%w: run %s seq %d", ErrCorrupted, rec.RunID, rec.Seq)
	}

	if pendingJSON.Valid && pendingJSON.String != "" {
		rec.Pending = &PendingReview{}
		if err := json.Unmarshal([]byte(pendingJSON.String), rec.Pending); err != nil {
			var zero Record[S]
			return zero, fmt.Errorf("failed to unmarshal pending review: %w", err)
		}
	}

	if haltJSON.Valid && haltJSON.String != "" {
		rec.Halt = &Halt{}
		if err := json.Unmarshal([]byte(haltJSON.String), rec.Halt); err != nil {
			var zero Record[S]
			return zero, fmt.Errorf("failed to unmarshal halt: %w", err)
		}
	}

	rec.SavedAt, err = time.Parse(time.RFC3339Nano, savedAtStr)
	if err != nil {
		var zero Record[S]
		return zero, fmt.Errorf("failed to parse saved_at: %w", err)
	}

	return rec, nil
}

// encodeAttachments serializes the optional pending review and halt for
// nullable columns.
func encodeAttachments(pending *PendingReview, halt *Halt) (sql.NullString, sql.NullString, error) {
	var pendingJSON, haltJSON sql.NullString

	if pending != nil {
		data, err := json.Marshal(pending)
		if err != nil {
			return pendingJSON, haltJSON, fmt.Errorf("failed to marshal pending review: %w", err)
		}
		pendingJSON = sql.NullString{String: string(data), Valid: true}
	}

	if halt != nil {
		data, err := json.Marshal(halt)
		if err != nil {
			return pendingJSON, haltJSON, fmt.Errorf("failed to marshal halt: %w", err)
		}
		haltJSON = sql.NullString{String: string(data), Valid: true}
	}

	return pendingJSON, haltJSON, nil
}
