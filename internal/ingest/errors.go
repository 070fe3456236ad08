package ingest

import "fmt"

// Reason classifies why a delivery was rejected.
type Reason int

const (
	// ReasonSignature means the signature header was missing or wrong,
	// or no shared secret is configured.
	ReasonSignature Reason = iota + 1
	// ReasonMalformed means the body is not a single valid JSON value.
	ReasonMalformed
	// ReasonTooLarge means the body exceeded the size limit.
	ReasonTooLarge
)

func (r Reason) String() string {
	switch r {
	case ReasonSignature:
		return "signature"
	case ReasonMalformed:
		return "malformed"
	case ReasonTooLarge:
		return "too_large"
	default:
		return "unknown"
	}
}

// RejectError is returned by Receive when a delivery is refused before
// anything is written to the log.
type RejectError struct {
	Reason Reason
	Err    error
}

// Error implements the error interface.
func (e *RejectError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("rejected (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("rejected (%s)", e.Reason)
}

// Unwrap returns the underlying error.
func (e *RejectError) Unwrap() error {
	return e.Err
}

func reject(reason Reason, err error) *RejectError {
	return &RejectError{Reason: reason, Err: err}
}
