package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// MemStore is an in-memory implementation of Store[S].
//
// Designed for:
//   - Testing and development
//   - Single-process runs where persistence isn't required
//
// MemStore is thread-safe. Records are held in memory only and lost when the
// process exits; use SQLiteStore or MySQLStore when runs must survive a
// restart.
//
// Type parameter S is the state type to persist.
type MemStore[S any] struct {
	mu      sync.RWMutex
	records map[string][]Record[S] // runID -> records ordered by seq
}

// NewMemStore creates a new in-memory store.
func NewMemStore[S any]() *MemStore[S] {
	return &MemStore[S]{
		records: make(map[string][]Record[S]),
	}
}

// Append persists a new checkpoint record.
//
// The state is serialized once to compute the checksum, which also surfaces
// non-serializable state at save time instead of at first resume.
func (m *MemStore[S]) Append(_ context.Context, rec Record[S]) error {
	if err := rec.validate(); err != nil {
		return err
	}

	data, err := json.Marshal(rec.State)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	rec.Checksum = checksum(data)

	m.mu.Lock()
	defer m.mu.Unlock()

	history := m.records[rec.RunID]
	last := 0
	if len(history) > 0 {
		last = history[len(history)-1].Seq
	}
	if rec.Seq != last+1 {
		return fmt.Errorf("%w: run %s has seq %d, got %d", ErrSequence, rec.RunID, last, rec.Seq)
	}

	m.records[rec.RunID] = append(history, rec)
	return nil
}

// Latest retrieves the most recent record for a run.
func (m *MemStore[S]) Latest(_ context.Context, runID string) (Record[S], error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	history, exists := m.records[runID]
	if !exists || len(history) == 0 {
		var zero Record[S]
		return zero, ErrNotFound
	}

	return history[len(history)-1], nil
}

// History retrieves the full record history for a run, ordered by seq.
func (m *MemStore[S]) History(_ context.Context, runID string) ([]Record[S], error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	history, exists := m.records[runID]
	if !exists || len(history) == 0 {
		return nil, ErrNotFound
	}

	// Return a copy to prevent external modification.
	out := make([]Record[S], len(history))
	copy(out, history)
	return out, nil
}

// Runs summarizes all known runs, most recently updated first.
func (m *MemStore[S]) Runs(_ context.Context) ([]RunInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	infos := make([]RunInfo, 0, len(m.records))
	for runID, history := range m.records {
		if len(history) == 0 {
			continue
		}
		last := history[len(history)-1]
		infos = append(infos, RunInfo{
			RunID:   runID,
			Status:  last.Status,
			StepID:  last.StepID,
			Seq:     last.Seq,
			SavedAt: last.SavedAt,
		})
	}

	sort.Slice(infos, func(i, j int) bool {
		if infos[i].SavedAt.Equal(infos[j].SavedAt) {
			return infos[i].RunID < infos[j].RunID
		}
		return infos[i].SavedAt.After(infos[j].SavedAt)
	})

	return infos, nil
}
