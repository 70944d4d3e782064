package recovery

import "errors"

// Sentinel errors for recovery operations.
// Use errors.Is() to check for these in calling code.
var (
	// ErrRecoveryExhausted indicates the bounded recovery budget is spent.
	// The workstation is presumed down until an operator restarts it; this
	// error always propagates to the caller rather than being retried.
	ErrRecoveryExhausted = errors.New("recovery: attempts exhausted")

	// ErrNoSnapshot indicates no session snapshot has been persisted yet.
	ErrNoSnapshot = errors.New("recovery: no session snapshot stored")
)
