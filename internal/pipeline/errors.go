package pipeline

import "errors"

// Domain errors for the pipeline package.
//
// ErrBudgetExceeded and ErrCallBlocked are guardrail violations: unlike
// environmental failures, which are absorbed into per-step results,
// they always propagate to the caller because they indicate an
// orchestration bug.
var (
	// ErrInvalidPlan is returned when plan validation fails.
	ErrInvalidPlan = errors.New("pipeline: invalid plan")

	// ErrBudgetExceeded is returned when an advisory call would exceed
	// the per-intent budget.
	ErrBudgetExceeded = errors.New("pipeline: advisory call budget exceeded")

	// ErrCallBlocked is returned when an advisory call is attempted
	// during a blocked phase.
	ErrCallBlocked = errors.New("pipeline: advisory call blocked")

	// ErrRunNotFound is returned when a run ID does not exist in the
	// run store.
	ErrRunNotFound = errors.New("pipeline: run not found")
)
