package pipeline

import (
	"encoding/json"
	"fmt"
)

// deepCopy creates a deep copy of state S using a JSON round-trip.
//
// The engine hands each step a private copy of the state so that a handler
// can never mutate the checkpointed value behind the store's back. The same
// round-trip defines what the store persists, so any state that survives
// deepCopy also survives a save/load cycle.
//
// Limitations:
//   - unexported struct fields are not copied
//   - channels, functions, and other non-JSON types fail
func deepCopy[S any](state S) (S, error) {
	var zero S

	data, err := json.Marshal(state)
	if err != nil {
		return zero, fmt.Errorf("failed to marshal state: %w", err)
	}

	var copied S
	if err := json.Unmarshal(data, &copied); err != nil {
		return zero, fmt.Errorf("failed to unmarshal state: %w", err)
	}

	return copied, nil
}
