package session

import "errors"

// Error taxonomy (spec §7). Capability-level failures (BranchExecutionError,
// UnretryableFailure) are absorbed by the state machine and never surface on
// the first attempt; the rest propagate to the caller.
var (
	ErrTransactionNotExist       = errors.New("transaction not exist")
	ErrGlobalTransactionNotActive = errors.New("global transaction not active")
	ErrLockConflict              = errors.New("lock conflict")
	ErrUnretryableFailure        = errors.New("unretryable branch failure")
	ErrStore                     = errors.New("session store error")
	ErrConsensus                 = errors.New("consensus error")
)
