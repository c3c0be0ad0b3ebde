package emit

import "sync"

// BufferedEmitter implements Emitter by storing events in memory, organized
// by run.
//
// Intended for tests and post-run inspection. All events are retained until
// cleared, so it is not suitable for unbounded production use.
type BufferedEmitter struct {
	mu     sync.RWMutex
	events map[string][]Event // runID -> events in emission order
}

// NewBufferedEmitter creates a BufferedEmitter.
func NewBufferedEmitter() *BufferedEmitter {
	return &BufferedEmitter{
		events: make(map[string][]Event),
	}
}

// Emit stores an event in the buffer.
func (b *BufferedEmitter) Emit(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.events[event.RunID] = append(b.events[event.RunID], event)
}

// History returns all events for a run in emission order. The returned slice
// is a copy.
func (b *BufferedEmitter) History(runID string) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	events := b.events[runID]
	result := make([]Event, len(events))
	copy(result, events)
	return result
}

// ByMsg returns a run's events matching the given message, in emission order.
func (b *BufferedEmitter) ByMsg(runID, msg string) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var result []Event
	for _, event := range b.events[runID] {
		if event.Msg == msg {
			result = append(result, event)
		}
	}
	return result
}

// Clear removes stored events for a run, or all events when runID is empty.
func (b *BufferedEmitter) Clear(runID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if runID == "" {
		b.events = make(map[string][]Event)
		return
	}
	delete(b.events, runID)
}
