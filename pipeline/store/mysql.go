package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLStore is a MySQL/MariaDB implementation of Store[S].
//
// Designed for:
//   - Production runs requiring durable persistence
//   - Shared history across multiple operator machines
//   - Audit trails over complete run histories
//
// MySQLStore uses connection pooling, and wraps each Append in a transaction
// with a row lock on the run's latest record so concurrent writers cannot
// interleave sequence numbers.
//
// Type parameter S is the state type to persist (must be JSON-serializable).
type MySQLStore[S any] struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewMySQLStore creates a new MySQL-backed store.
//
// The DSN (Data Source Name) format is:
//
//	[username[:password]@][protocol[(address)]]/dbname[?param1=value1&...]
//
// Never hardcode credentials; read the DSN from the environment:
//
//	dsn := os.Getenv("SURVEYFLOW_MYSQL_DSN")
//	st, err := store.NewMySQLStore[State](dsn)
//
// The store automatically creates required tables and configures the
// connection pool.
func NewMySQLStore[S any](dsn string) (*MySQLStore[S], error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL connection: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	s := &MySQLStore[S]{db: db}

	if err := s.createTables(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return s, nil
}

// createTables creates the database schema if it doesn't exist.
func (m *MySQLStore[S]) createTables(ctx context.Context) error {
	recordsTable := `
		CREATE TABLE IF NOT EXISTS pipeline_records (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			run_id VARCHAR(255) NOT NULL,
			seq INT NOT NULL,
			step_id VARCHAR(255) NOT NULL,
			status VARCHAR(32) NOT NULL,
			state JSON NOT NULL,
			checksum CHAR(64) NOT NULL,
			pending JSON NULL,
			halt JSON NULL,
			saved_at VARCHAR(64) NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			INDEX idx_run_id (run_id),
			UNIQUE KEY unique_run_seq (run_id, seq)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci
	`

	if _, err := m.db.ExecContext(ctx, recordsTable); err != nil {
		return fmt.Errorf("failed to create pipeline_records table: %w", err)
	}

	return nil
}

// Append persists a new checkpoint record (implements Store interface).
//
// The run's latest record is locked FOR UPDATE while the sequence number is
// verified, so a competing writer observes ErrSequence rather than a torn
// history.
func (m *MySQLStore[S]) Append(ctx context.Context, rec Record[S]) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return fmt.Errorf("store is closed")
	}
	m.mu.RUnlock()

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

	tx, err := m.db.BeginTx(ctx, nil)
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
		"SELECT COALESCE(MAX(seq), 0) FROM pipeline_records WHERE run_id = ? FOR UPDATE", rec.RunID,
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
		stateJSON,
		rec.Checksum,
		nullableJSON(pendingJSON),
		nullableJSON(haltJSON),
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
func (m *MySQLStore[S]) Latest(ctx context.Context, runID string) (Record[S], error) {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		var zero Record[S]
		return zero, fmt.Errorf("store is closed")
	}
	m.mu.RUnlock()

	row := m.db.QueryRowContext(ctx, `
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
func (m *MySQLStore[S]) History(ctx context.Context, runID string) ([]Record[S], error) {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return nil, fmt.Errorf("store is closed")
	}
	m.mu.RUnlock()

	rows, err := m.db.QueryContext(ctx, `
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
func (m *MySQLStore[S]) Runs(ctx context.Context) ([]RunInfo, error) {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return nil, fmt.Errorf("store is closed")
	}
	m.mu.RUnlock()

	rows, err := m.db.QueryContext(ctx, `
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
func (m *MySQLStore[S]) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}

	m.closed = true
	return m.db.Close()
}

// Ping verifies the database connection is alive.
func (m *MySQLStore[S]) Ping(ctx context.Context) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return fmt.Errorf("store is closed")
	}
	m.mu.RUnlock()

	return m.db.PingContext(ctx)
}

// nullableJSON converts an optional serialized column to a driver value,
// writing SQL NULL when absent.
func nullableJSON(v sql.NullString) any {
	if !v.Valid {
		return nil
	}
	return v.String
}
