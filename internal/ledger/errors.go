package ledger

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidState is returned when a state-changing operation targets a fund that is not open
	ErrInvalidState = errors.New("fund is not in a state that allows this operation")

	// ErrNoActiveAllocations is returned when closing a fund without non-cancelled allocations
	ErrNoActiveAllocations = errors.New("fund has no active allocations")

	// ErrInconsistentCohort marks a client cohort whose basis sums to zero during a distribution
	ErrInconsistentCohort = errors.New("client cohort has zero basis")

	// ErrConcurrentModification is returned on lock or version conflicts on the fund row
	ErrConcurrentModification = errors.New("fund was modified concurrently")

	// ErrNotFound is returned when a referenced record does not exist
	ErrNotFound = errors.New("record not found")

	// ErrInvalidAmount is returned for negative or otherwise unusable amounts
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInvalidPeriod is returned when a closure period ends before it starts
	ErrInvalidPeriod = errors.New("invalid closure period")

	// ErrNoPayments is returned when a fund is created without completed payments
	ErrNoPayments = errors.New("no completed payments to build the fund from")

	// ErrInvalidTransition is returned for a disallowed allocation status change
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrInvalidPosition is returned when a position violates the client/company invariants
	ErrInvalidPosition = errors.New("invalid earning position")

	// ErrDuplicate is returned when a unique constraint rejects a write
	ErrDuplicate = errors.New("record already exists")

	// ErrInvalidRequest is returned for malformed operator input
	ErrInvalidRequest = errors.New("invalid request")
)

// FundStateError reports which operation was refused for which fund status.
type FundStateError struct {
	FundID int64
	Status string
	Op     string
}

func (e *FundStateError) Error() string {
	return fmt.Sprintf("%s refused: fund %d is %s", e.Op, e.FundID, e.Status)
}

func (e *FundStateError) Unwrap() error {
	return ErrInvalidState
}

// NewFundStateError builds a FundStateError
func NewFundStateError(fundID int64, status, op string) error {
	return &FundStateError{FundID: fundID, Status: status, Op: op}
}
