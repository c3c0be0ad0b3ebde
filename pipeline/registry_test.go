package pipeline

import (
	"context"
	"errors"
	"testing"
)

func noopStep(id string) Step[testState] {
	return Step[testState]{
		ID:   id,
		Role: RolePlain,
		Run: func(_ context.Context, s testState) Result[testState] {
			return Result[testState]{State: s}
		},
	}
}

func assertEngineCode(t *testing.T, err error, code string) {
	t.Helper()
	var engErr *EngineError
	if !errors.As(err, &engErr) {
		t.Fatalf("error = %v, want *EngineError", err)
	}
	if engErr.Code != code {
		t.Errorf("error code = %q, want %q", engErr.Code, code)
	}
}

func TestRegistry_Register(t *testing.T) {
	t.Run("registers steps in order", func(t *testing.T) {
		r := NewRegistry[testState]()
		for _, id := range []string{"a", "b", "c"} {
			if err := r.Register(noopStep(id)); err != nil {
				t.Fatalf("Register(%s) failed: %v", id, err)
			}
		}
		if r.Len() != 3 {
			t.Errorf("Len = %d, want 3", r.Len())
		}
		ids := r.IDs()
		want := []string{"a", "b", "c"}
		for i, id := range want {
			if ids[i] != id {
				t.Errorf("IDs[%d] = %q, want %q", i, ids[i], id)
			}
		}
	})

	t.Run("rejects empty id", func(t *testing.T) {
		r := NewRegistry[testState]()
		if err := r.Register(noopStep("")); err == nil {
			t.Error("Register accepted empty step ID")
		}
	})

	t.Run("rejects nil handler", func(t *testing.T) {
		r := NewRegistry[testState]()
		err := r.Register(Step[testState]{ID: "a", Role: RolePlain})
		assertEngineCode(t, err, "NIL_HANDLER")
	})

	t.Run("rejects duplicate id", func(t *testing.T) {
		r := NewRegistry[testState]()
		if err := r.Register(noopStep("a")); err != nil {
			t.Fatalf("Register failed: %v", err)
		}
		assertEngineCode(t, r.Register(noopStep("a")), "DUPLICATE_STEP")
	})

	t.Run("review step requires ApplyDecision", func(t *testing.T) {
		r := NewRegistry[testState]()
		step := noopStep("review_a")
		step.Role = RoleReview
		assertEngineCode(t, r.Register(step), "MISSING_APPLY_DECISION")

		step.ApplyDecision = func(s testState, _ ReviewDecision) testState { return s }
		if err := r.Register(step); err != nil {
			t.Errorf("Register(review with ApplyDecision) failed: %v", err)
		}
	})

	t.Run("plain step rejects ApplyDecision", func(t *testing.T) {
		r := NewRegistry[testState]()
		step := noopStep("a")
		step.ApplyDecision = func(s testState, _ ReviewDecision) testState { return s }
		assertEngineCode(t, r.Register(step), "UNEXPECTED_APPLY_DECISION")
	})

	t.Run("rejects registration after seal", func(t *testing.T) {
		r := NewRegistry[testState]()
		if err := r.Register(noopStep("a")); err != nil {
			t.Fatalf("Register failed: %v", err)
		}
		if err := r.Seal(); err != nil {
			t.Fatalf("Seal failed: %v", err)
		}
		assertEngineCode(t, r.Register(noopStep("b")), "REGISTRY_SEALED")
	})
}

func TestRegistry_Seal(t *testing.T) {
	t.Run("empty registry cannot seal", func(t *testing.T) {
		r := NewRegistry[testState]()
		assertEngineCode(t, r.Seal(), "EMPTY_REGISTRY")
		if r.Sealed() {
			t.Error("registry sealed after failed Seal")
		}
	})

	t.Run("seal is idempotent", func(t *testing.T) {
		r := NewRegistry[testState]()
		if err := r.Register(noopStep("a")); err != nil {
			t.Fatalf("Register failed: %v", err)
		}
		if err := r.Seal(); err != nil {
			t.Fatalf("Seal failed: %v", err)
		}
		if err := r.Seal(); err != nil {
			t.Errorf("second Seal failed: %v", err)
		}
		if !r.Sealed() {
			t.Error("Sealed() = false after Seal")
		}
	})
}

func TestRegistry_Lookup(t *testing.T) {
	r := NewRegistry[testState]()
	for _, id := range []string{"a", "b"} {
		if err := r.Register(noopStep(id)); err != nil {
			t.Fatalf("Register failed: %v", err)
		}
	}

	step, ok := r.Lookup("b")
	if !ok {
		t.Fatal("Lookup(b) not found")
	}
	if step.ID != "b" {
		t.Errorf("Lookup(b).ID = %q", step.ID)
	}
	if _, ok := r.Lookup("missing"); ok {
		t.Error("Lookup(missing) reported found")
	}
}

func TestRegistry_Routing(t *testing.T) {
	r := NewRegistry[testState]()
	for _, id := range []string{"a", "b", "c"} {
		if err := r.Register(noopStep(id)); err != nil {
			t.Fatalf("Register failed: %v", err)
		}
	}

	t.Run("first", func(t *testing.T) {
		step, ok := r.First()
		if !ok || step.ID != "a" {
			t.Errorf("First = %q, %t, want a, true", step.ID, ok)
		}
		empty := NewRegistry[testState]()
		if _, ok := empty.First(); ok {
			t.Error("First on empty registry reported a step")
		}
	})

	t.Run("successor follows registration order", func(t *testing.T) {
		if got := r.Successor("a"); got != "b" {
			t.Errorf("Successor(a) = %q, want b", got)
		}
		if got := r.Successor("b"); got != "c" {
			t.Errorf("Successor(b) = %q, want c", got)
		}
	})

	t.Run("last step routes to End", func(t *testing.T) {
		if got := r.Successor("c"); got != End {
			t.Errorf("Successor(c) = %q, want %q", got, End)
		}
	})

	t.Run("unknown id routes to End", func(t *testing.T) {
		if got := r.Successor("missing"); got != End {
			t.Errorf("Successor(missing) = %q, want %q", got, End)
		}
	})

	t.Run("position is 1-based", func(t *testing.T) {
		pos, ok := r.Position("a")
		if !ok || pos != 1 {
			t.Errorf("Position(a) = %d, %t, want 1, true", pos, ok)
		}
		pos, ok = r.Position("c")
		if !ok || pos != 3 {
			t.Errorf("Position(c) = %d, %t, want 3, true", pos, ok)
		}
		if _, ok := r.Position("missing"); ok {
			t.Error("Position(missing) reported found")
		}
	})
}
