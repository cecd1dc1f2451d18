package media

import (
	"errors"
	"fmt"
)

// Reason tags why a source could not be acquired.
type Reason string

const (
	ReasonNetwork     Reason = "network"
	ReasonTimeout     Reason = "timeout"
	ReasonEmpty       Reason = "empty"
	ReasonCorrupt     Reason = "corrupt"
	ReasonTooLong     Reason = "too_long"
	ReasonTooLarge    Reason = "too_large"
	ReasonUnsupported Reason = "unsupported"
)

// AcquisitionError reports a source that was skipped. It is never fatal to a run.
type AcquisitionError struct {
	Locator string
	Reason  Reason
	Err     error
}

func (e *AcquisitionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("acquire %s: %s", e.Locator, e.Reason)
	}
	return fmt.Sprintf("acquire %s: %s: %v", e.Locator, e.Reason, e.Err)
}

func (e *AcquisitionError) Unwrap() error { return e.Err }

func acquisitionError(locator string, reason Reason, err error) *AcquisitionError {
	return &AcquisitionError{Locator: locator, Reason: reason, Err: err}
}

// IsAcquisition reports whether err is or wraps an AcquisitionError.
func IsAcquisition(err error) bool {
	var ae *AcquisitionError
	return errors.As(err, &ae)
}

// ReasonOf returns the reason tag of a wrapped AcquisitionError, or "".
func ReasonOf(err error) Reason {
	var ae *AcquisitionError
	if errors.As(err, &ae) {
		return ae.Reason
	}
	return ""
}
