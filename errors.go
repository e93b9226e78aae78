package sagaflow

import "fmt"

// TransactionError wraps a failure raised by a Request's transaction
// Capability.
type TransactionError struct {
	error
}

// Unwrap exposes the %w-wrapped cause to errors.Is/errors.As. Embedding
// error alone only promotes Error() string, not Unwrap() error.
func (e *TransactionError) Unwrap() error { return e.error }

// TransactionFailed wraps the cause of a transaction's failure.
func TransactionFailed(requestID string, cause error) error {
	return &TransactionError{fmt.Errorf("transaction %q failed: %w", requestID, cause)}
}

// CompensationError wraps a failure raised by a Request's compensation
// Capability.
type CompensationError struct {
	error
}

// Unwrap exposes the %w-wrapped cause to errors.Is/errors.As.
func (e *CompensationError) Unwrap() error { return e.error }

// CompensationFailed wraps the cause of a compensation's failure.
func CompensationFailed(requestID string, cause error) error {
	return &CompensationError{fmt.Errorf("compensation %q failed: %w", requestID, cause)}
}

// StorageError wraps a failure to append an envelope to the EventStore.
// It is always fatal to the saga run.
type StorageError struct {
	error
}

// Unwrap exposes the %w-wrapped cause to errors.Is/errors.As.
func (e *StorageError) Unwrap() error { return e.error }

// StorageFailed wraps the cause of an EventStore.Append failure.
func StorageFailed(cause error) error {
	return &StorageError{fmt.Errorf("event store append failed: %w", cause)}
}

// DAGInvariantError is raised synchronously at construction time, before
// any event is appended, when a Dag violates single-root/single-leaf/
// acyclicity.
type DAGInvariantError struct {
	error
}

// Unwrap exposes the %w-wrapped cause to errors.Is/errors.As.
func (e *DAGInvariantError) Unwrap() error { return e.error }

// DAGInvariantViolation wraps a description of the violated invariant.
func DAGInvariantViolation(reason string) error {
	return &DAGInvariantError{fmt.Errorf("dag invariant violated: %s", reason)}
}

// ReplayInconsistencyError is raised when an event log contradicts the
// Dag it is being replayed against: an unknown request id, or an
// impossible state transition such as CompensationEnded without a prior
// TransactionEnded.
type ReplayInconsistencyError struct {
	error
}

// Unwrap exposes the %w-wrapped cause to errors.Is/errors.As.
func (e *ReplayInconsistencyError) Unwrap() error { return e.error }

// ReplayInconsistent wraps a description of the inconsistency found while
// replaying the log.
func ReplayInconsistent(reason string) error {
	return &ReplayInconsistencyError{fmt.Errorf("replay inconsistency: %s", reason)}
}
