package ledger

import "errors"

// ErrUnavailable indicates a transport or node-level failure. Transient;
// safe to retry reads, never safe to blindly retry writes.
var ErrUnavailable = errors.New("ledger node unavailable")

// ErrNotFound indicates the queried digest or object is unknown to the node.
var ErrNotFound = errors.New("not found on ledger")

// ErrRejected indicates the ledger's contract logic refused a write.
// Use errors.Is against this sentinel; the node's reason string is carried
// by RejectedError.
var ErrRejected = errors.New("transaction rejected by ledger")

// RejectedError wraps ErrRejected with the node's reason, unmodified.
type RejectedError struct {
	Reason string
}

func (e *RejectedError) Error() string {
	return "transaction rejected by ledger: " + e.Reason
}

func (e *RejectedError) Unwrap() error { return ErrRejected }
