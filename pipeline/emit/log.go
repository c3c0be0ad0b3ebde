package emit

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
)

// LogEmitter implements Emitter by writing structured output to a writer.
//
// Supports two output modes:
//   - Text mode (default): human-readable key=value lines
//   - JSON mode: one JSON object per line (JSONL)
//
// Example text output:
//
//	[step_completed] run=run-001 seq=3 step=validate_recoding
//
// Example JSON output:
//
//	{"run_id":"run-001","seq":3,"step_id":"validate_recoding","msg":"step_completed","meta":null}
type LogEmitter struct {
	mu       sync.Mutex
	writer   io.Writer
	jsonMode bool
}

// NewLogEmitter creates a LogEmitter writing to the given writer, or to
// stdout when writer is nil.
func NewLogEmitter(writer io.Writer, jsonMode bool) *LogEmitter {
	if writer == nil {
		writer = os.Stdout
	}
	return &LogEmitter{
		writer:   writer,
		jsonMode: jsonMode,
	}
}

// Emit writes an event to the configured writer.
func (l *LogEmitter) Emit(event Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.jsonMode {
		l.emitJSON(event)
		return
	}
	l.emitText(event)
}

func (l *LogEmitter) emitJSON(event Event) {
	data, err := json.Marshal(struct {
		RunID  string                 `json:"run_id"`
		Seq    int                    `json:"seq"`
		StepID string                 `json:"step_id"`
		Msg    string                 `json:"msg"`
		Meta   map[string]interface{} `json:"meta"`
	}{
		RunID:  event.RunID,
		Seq:    event.Seq,
		StepID: event.StepID,
		Msg:    event.Msg,
		Meta:   event.Meta,
	})
	if err != nil {
		fmt.Fprintf(l.writer, "{\"error\":\"failed to marshal event: %v\"}\n", err)
		return
	}

	fmt.Fprintf(l.writer, "%s\n", data)
}

func (l *LogEmitter) emitText(event Event) {
	fmt.Fprintf(l.writer, "[%s] run=%s seq=%d step=%s",
		event.Msg, event.RunID, event.Seq, event.StepID)

	if len(event.Meta) > 0 {
		if metaJSON, err := json.Marshal(event.Meta); err == nil {
			fmt.Fprintf(l.writer, " meta=%s", metaJSON)
		} else {
			fmt.Fprintf(l.writer, " meta=%v", event.Meta)
		}
	}

	fmt.Fprint(l.writer, "\n")
}
