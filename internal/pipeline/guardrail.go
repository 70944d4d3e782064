package pipeline

import (
	"context"
	"fmt"
	"sync"
)

// Budget defaults.
const (
	defaultBudget = 1
	retryBudget   = 2
)

// phaseKey carries the blocked phase through a context.
type phaseKey struct{}

// Guardrail bounds advisory calls for a single user intent and blocks
// them entirely during deterministic phases.
//
// Each run owns its guardrail; there is no process-wide state. The
// blocked phase travels in the context so a call attempted from
// arbitrarily deep inside an execute or verify phase still fails
// closed.
type Guardrail struct {
	mu      sync.Mutex
	calls   int
	budget  int
	current Phase
}

// NewGuardrail creates a guardrail with the given call budget.
// budget <= 0 uses the default of one call per intent.
func NewGuardrail(budget int) *Guardrail {
	if budget <= 0 {
		budget = defaultBudget
	}
	return &Guardrail{budget: budget}
}

// BlockPhase marks a phase as advisory-free. It returns a derived
// context carrying the phase and a release function restoring the
// guardrail's previous phase. The parent context stays unblocked.
func (g *Guardrail) BlockPhase(ctx context.Context, phase Phase) (context.Context, func()) {
	g.mu.Lock()
	prev := g.current
	g.current = phase
	g.mu.Unlock()

	release := func() {
		g.mu.Lock()
		g.current = prev
		g.mu.Unlock()
	}
	return context.WithValue(ctx, phaseKey{}, phase), release
}

// BlockedPhase returns the phase carried by ctx, or "" when none.
func BlockedPhase(ctx context.Context) Phase {
	if p, ok := ctx.Value(phaseKey{}).(Phase); ok {
		return p
	}
	return ""
}

// AssertAllowed returns ErrCallBlocked when ctx carries the execute or
// verify phase. Any code path that would reach an advisory model calls
// this first.
func AssertAllowed(ctx context.Context) error {
	switch phase := BlockedPhase(ctx); phase {
	case PhaseExecute, PhaseVerify:
		return fmt.Errorf("%w: advisory calls are not permitted during the %s phase", ErrCallBlocked, phase)
	default:
		return nil
	}
}

// RecordCall charges one advisory call against the budget, returning
// the running count. It fails with ErrCallBlocked when ctx carries a
// blocked phase and with ErrBudgetExceeded once the budget is spent.
func (g *Guardrail) RecordCall(ctx context.Context, phase Phase) (int, error) {
	if err := AssertAllowed(ctx); err != nil {
		return 0, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.calls >= g.budget {
		return g.calls, fmt.Errorf("%w: call %d in %s phase exceeds budget of %d",
			ErrBudgetExceeded, g.calls+1, phase, g.budget)
	}
	g.calls++
	return g.calls, nil
}

// CallCount returns the number of advisory calls recorded so far.
func (g *Guardrail) CallCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

// CallsRemaining returns how many advisory calls the budget still allows.
func (g *Guardrail) CallsRemaining() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	remaining := g.budget - g.calls
	if remaining < 0 {
		return 0
	}
	return remaining
}

// CurrentPhase returns the phase most recently blocked on this
// guardrail, for status reporting. The authoritative check is the
// context, not this value.
func (g *Guardrail) CurrentPhase() Phase {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.current
}
