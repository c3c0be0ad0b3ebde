package emit

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"testing"
)

func TestLogEmitter_Text(t *testing.T) {
	t.Run("basic line", func(t *testing.T) {
		var buf bytes.Buffer
		e := NewLogEmitter(&buf, false)

		e.Emit(Event{RunID: "run-1", Seq: 3, StepID: "validate_recoding", Msg: MsgStepCompleted})

		want := "[step_completed] run=run-1 seq=3 step=validate_recoding\n"
		if got := buf.String(); got != want {
			t.Errorf("output = %q, want %q", got, want)
		}
	})

	t.Run("meta appended as json", func(t *testing.T) {
		var buf bytes.Buffer
		e := NewLogEmitter(&buf, false)

		e.Emit(Event{
			RunID: "run-1", Seq: 5, StepID: "review_recoding", Msg: MsgRunSuspended,
			Meta: map[string]interface{}{"artifact": "recoding"},
		})

		got := buf.String()
		if !strings.HasPrefix(got, "[run_suspended] run=run-1 seq=5 step=review_recoding") {
			t.Errorf("output = %q", got)
		}
		if !strings.Contains(got, ` meta={"artifact":"recoding"}`) {
			t.Errorf("output lacks meta: %q", got)
		}
	})

	t.Run("empty meta omitted", func(t *testing.T) {
		var buf bytes.Buffer
		e := NewLogEmitter(&buf, false)

		e.Emit(Event{RunID: "run-1", Seq: 1, StepID: "a", Msg: MsgStepCompleted,
			Meta: map[string]interface{}{}})

		if strings.Contains(buf.String(), "meta=") {
			t.Errorf("empty meta rendered: %q", buf.String())
		}
	})
}

func TestLogEmitter_JSON(t *testing.T) {
	var buf bytes.Buffer
	e := NewLogEmitter(&buf, true)

	e.Emit(Event{
		RunID: "run-1", Seq: 2, StepID: "generate_recoding", Msg: MsgStepRetrying,
		Meta: map[string]interface{}{"attempt": 1, "error": "model: chat: timeout"},
	})

	line := strings.TrimSuffix(buf.String(), "\n")
	if strings.Contains(line, "\n") {
		t.Fatalf("emitted more than one line: %q", buf.String())
	}

	var decoded struct {
		RunID  string                 `json:"run_id"`
		Seq    int                    `json:"seq"`
		StepID string                 `json:"step_id"`
		Msg    string                 `json:"msg"`
		Meta   map[string]interface{} `json:"meta"`
	}
	if err := json.Unmarshal([]byte(line), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v\n%q", err, line)
	}
	if decoded.RunID != "run-1" || decoded.Seq != 2 || decoded.StepID != "generate_recoding" {
		t.Errorf("decoded = %+v", decoded)
	}
	if decoded.Msg != MsgStepRetrying {
		t.Errorf("msg = %q", decoded.Msg)
	}
	if decoded.Meta["error"] != "model: chat: timeout" {
		t.Errorf("meta = %v", decoded.Meta)
	}
}

func TestNewLogEmitter_NilWriter(t *testing.T) {
	e := NewLogEmitter(nil, false)
	if e.writer != os.Stdout {
		t.Error("nil writer should default to stdout")
	}
}

func TestNullEmitter(t *testing.T) {
	e := NewNullEmitter()
	// Must accept any event without effect.
	e.Emit(Event{RunID: "run-1", Msg: MsgRunStarted})
	e.Emit(Event{})
}
