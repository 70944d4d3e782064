package pipeline

import (
	"context"
	"errors"
	"testing"
)

func TestGuardrailBudget(t *testing.T) {
	g := NewGuardrail(1)
	ctx := context.Background()

	calls, err := g.RecordCall(ctx, PhasePlan)
	if err != nil || calls != 1 {
		t.Fatalf("RecordCall() = (%d, %v), want (1, nil)", calls, err)
	}
	if _, err := g.RecordCall(ctx, PhasePlan); !errors.Is(err, ErrBudgetExceeded) {
		t.Fatalf("second RecordCall = %v, want ErrBudgetExceeded", err)
	}
	if got := g.CallCount(); got != 1 {
		t.Errorf("CallCount() = %d, want 1", got)
	}
	if got := g.CallsRemaining(); got != 0 {
		t.Errorf("CallsRemaining() = %d, want 0", got)
	}
}

func TestGuardrailRetryBudget(t *testing.T) {
	g := NewGuardrail(2)
	ctx := context.Background()

	for i := 1; i <= 2; i++ {
		calls, err := g.RecordCall(ctx, PhasePlan)
		if err != nil || calls != i {
			t.Fatalf("call %d: RecordCall() = (%d, %v)", i, calls, err)
		}
	}
	if _, err := g.RecordCall(ctx, PhasePlan); !errors.Is(err, ErrBudgetExceeded) {
		t.Fatalf("third RecordCall = %v, want ErrBudgetExceeded", err)
	}
}

func TestGuardrailDefaultBudget(t *testing.T) {
	g := NewGuardrail(0)
	if got := g.CallsRemaining(); got != 1 {
		t.Fatalf("CallsRemaining() = %d, want 1", got)
	}
}

func TestGuardrailBlockedPhase(t *testing.T) {
	g := NewGuardrail(5)
	ctx := context.Background()

	blocked, release := g.BlockPhase(ctx, PhaseExecute)
	if got := BlockedPhase(blocked); got != PhaseExecute {
		t.Fatalf("BlockedPhase() = %q, want %q", got, PhaseExecute)
	}
	if err := AssertAllowed(blocked); !errors.Is(err, ErrCallBlocked) {
		t.Fatalf("AssertAllowed(execute ctx) = %v, want ErrCallBlocked", err)
	}
	if _, err := g.RecordCall(blocked, PhaseExecute); !errors.Is(err, ErrCallBlocked) {
		t.Fatalf("RecordCall(execute ctx) = %v, want ErrCallBlocked", err)
	}
	if g.CallCount() != 0 {
		t.Error("a blocked call must not consume budget")
	}

	// The parent context never carries the block.
	if err := AssertAllowed(ctx); err != nil {
		t.Fatalf("AssertAllowed(parent) = %v, want nil", err)
	}

	if got := g.CurrentPhase(); got != PhaseExecute {
		t.Errorf("CurrentPhase() = %q, want %q", got, PhaseExecute)
	}
	release()
	if got := g.CurrentPhase(); got != Phase("") {
		t.Errorf("CurrentPhase() after release = %q, want empty", got)
	}

	// Once the phase is released, calls through an unblocked context
	// count against the budget again instead of failing closed.
	if calls, err := g.RecordCall(ctx, PhaseReport); err != nil || calls != 1 {
		t.Errorf("RecordCall after release = (%d, %v), want (1, nil)", calls, err)
	}
}

// A blocked context reaches arbitrarily deep call stacks, so a check
// made several frames down still fails closed.
func TestGuardrailBlockedDeepInCallStack(t *testing.T) {
	g := NewGuardrail(5)
	blocked, release := g.BlockPhase(context.Background(), PhaseVerify)
	defer release()

	var deepest func(ctx context.Context, depth int) error
	deepest = func(ctx context.Context, depth int) error {
		if depth == 0 {
			_, err := g.RecordCall(ctx, PhaseVerify)
			return err
		}
		return deepest(ctx, depth-1)
	}

	if err := deepest(blocked, 4); !errors.Is(err, ErrCallBlocked) {
		t.Fatalf("deep RecordCall = %v, want ErrCallBlocked", err)
	}
}

func TestGuardrailPlanPhaseAllowed(t *testing.T) {
	ctx := context.WithValue(context.Background(), phaseKey{}, PhasePlan)
	if err := AssertAllowed(ctx); err != nil {
		t.Fatalf("AssertAllowed(plan ctx) = %v, want nil", err)
	}
}

func TestGuardrailNestedRelease(t *testing.T) {
	g := NewGuardrail(1)
	ctx := context.Background()

	_, releaseOuter := g.BlockPhase(ctx, PhaseExecute)
	_, releaseInner := g.BlockPhase(ctx, PhaseVerify)

	if got := g.CurrentPhase(); got != PhaseVerify {
		t.Fatalf("CurrentPhase() = %q, want %q", got, PhaseVerify)
	}
	releaseInner()
	if got := g.CurrentPhase(); got != PhaseExecute {
		t.Fatalf("CurrentPhase() after inner release = %q, want %q", got, PhaseExecute)
	}
	releaseOuter()
	if got := g.CurrentPhase(); got != Phase("") {
		t.Fatalf("CurrentPhase() after outer release = %q, want empty", got)
	}
}
