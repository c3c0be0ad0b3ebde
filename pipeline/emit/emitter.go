package emit

// Emitter receives observability events from pipeline execution.
//
// Implementations should be:
//   - Non-blocking: avoid slowing down run execution
//   - Thread-safe: may be called from multiple runs concurrently
//   - Resilient: handle backend failures without crashing the run
//
// Emit should not panic; errors should be handled internally.
type Emitter interface {
	Emit(event Event)
}
