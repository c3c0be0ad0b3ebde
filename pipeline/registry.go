package pipeline

// Registry is the ordered, closed step table for a pipeline.
//
// Steps are registered in execution order during setup. Sealing the registry
// freezes the table; a sealed registry is immutable and safe for concurrent
// reads. The engine seals the registry on first Run.
//
// The registration order doubles as the default route: a step whose router
// returns "" advances to the step registered immediately after it.
type Registry[S any] struct {
	steps  []Step[S]
	index  map[string]int
	sealed bool
}

// NewRegistry creates an empty step registry.
func NewRegistry[S any]() *Registry[S] {
	return &Registry[S]{
		index: make(map[string]int),
	}
}

// Register appends a step to the table.
//
// Returns error if:
//   - the registry is already sealed
//   - the step ID is empty or duplicates an earlier registration
//   - the step has no Run handler
//   - a review step lacks ApplyDecision, or a non-review step carries one
func (r *Registry[S]) Register(step Step[S]) error {
	if r.sealed {
		return &EngineError{
			Message: "cannot register step on sealed registry: " + step.ID,
			Code:    "REGISTRY_SEALED",
		}
	}
	if step.ID == "" {
		return &EngineError{Message: "step ID cannot be empty"}
	}
	if step.Run == nil {
		return &EngineError{
			Message: "step has no handler: " + step.ID,
			Code:    "NIL_HANDLER",
		}
	}
	if step.Role == RoleReview && step.ApplyDecision == nil {
		return &EngineError{
			Message: "review step must set ApplyDecision: " + step.ID,
			Code:    "MISSING_APPLY_DECISION",
		}
	}
	if step.Role != RoleReview && step.ApplyDecision != nil {
		return &EngineError{
			Message: "only review steps may set ApplyDecision: " + step.ID,
			Code:    "UNEXPECTED_APPLY_DECISION",
		}
	}
	if _, exists := r.index[step.ID]; exists {
		return &EngineError{
			Message: "duplicate step ID: " + step.ID,
			Code:    "DUPLICATE_STEP",
		}
	}

	r.index[step.ID] = len(r.steps)
	r.steps = append(r.steps, step)
	return nil
}

// Seal freezes the table. Registration after Seal fails. Sealing an empty
// registry is an error. Seal is idempotent.
func (r *Registry[S]) Seal() error {
	if len(r.steps) == 0 {
		return &EngineError{
			Message: "cannot seal empty registry",
			Code:    "EMPTY_REGISTRY",
		}
	}
	r.sealed = true
	return nil
}

// Sealed reports whether the table is frozen.
func (r *Registry[S]) Sealed() bool {
	return r.sealed
}

// Lookup returns the step with the given id.
func (r *Registry[S]) Lookup(id string) (Step[S], bool) {
	i, ok := r.index[id]
	if !ok {
		var zero Step[S]
		return zero, false
	}
	return r.steps[i], true
}

// First returns the entry step of the pipeline.
func (r *Registry[S]) First() (Step[S], bool) {
	if len(r.steps) == 0 {
		var zero Step[S]
		return zero, false
	}
	return r.steps[0], true
}

// Successor returns the id of the step registered immediately after id, or
// End when id is the final step. Unknown ids also return End; the engine
// validates ids before routing.
func (r *Registry[S]) Successor(id string) string {
	i, ok := r.index[id]
	if !ok || i+1 >= len(r.steps) {
		return End
	}
	return r.steps[i+1].ID
}

// Position returns the 1-based position of id in the table, for progress
// reporting.
func (r *Registry[S]) Position(id string) (int, bool) {
	i, ok := r.index[id]
	if !ok {
		return 0, false
	}
	return i + 1, true
}

// Len returns the number of registered steps.
func (r *Registry[S]) Len() int {
	return len(r.steps)
}

// IDs returns the step ids in registration order.
func (r *Registry[S]) IDs() []string {
	ids := make([]string, len(r.steps))
	for i, s := range r.steps {
		ids[i] = s.ID
	}
	return ids
}
