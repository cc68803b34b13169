// Package errs defines the error values shared by the qcpack packages.
//
// Structural failures (a missing or unreadable archive) are returned as wrapped
// sentinel errors and abort the processing of a whole archive. Per-record
// failures are reported as *RecordError and abort only the record being decoded.
// Declared-versus-observed count mismatches are reported as *IntegrityWarning;
// they never abort processing and are collected for diagnostics.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrArchiveNotFound is returned when the bundle path does not exist.
	ErrArchiveNotFound = errors.New("archive not found")
	// ErrArchiveCorrupt is returned when the bundle container cannot be opened.
	ErrArchiveCorrupt = errors.New("archive corrupt")
	// ErrMalformedBinaryPayload is returned when a base64 or binary array does not match its declared length.
	ErrMalformedBinaryPayload = errors.New("malformed binary payload")
	// ErrScanDataTruncated is returned when the scan payload is shorter than the offset table declares.
	ErrScanDataTruncated = errors.New("scan data truncated")
	// ErrIntegrity marks declared-versus-observed count mismatches.
	ErrIntegrity = errors.New("integrity mismatch")

	ErrMalformedDescriptor = errors.New("malformed descriptor")
	ErrMissingCompanion    = errors.New("missing raw data companion")
	ErrUnknownStorageID    = errors.New("unknown storage id")
	ErrLengthMismatch      = errors.New("time and value lengths differ")
	ErrComponentNotFound   = errors.New("component not found")
	ErrComponentExists     = errors.New("component already registered")
	ErrInvalidComponent    = errors.New("invalid component name")
	ErrInvalidPayload      = errors.New("invalid payload")
	ErrInvalidPrecision    = errors.New("invalid rounding precision")
	ErrUnknownChannel      = errors.New("unknown channel")
	ErrNonFiniteSample     = errors.New("non-finite sample")
)

// IntegrityWarning records a declared count that disagrees with the observed one.
type IntegrityWarning struct {
	Subject  string
	Source   string
	Declared int
	Observed int
}

func (w *IntegrityWarning) Error() string {
	if w.Source == "" {
		return fmt.Sprintf("%s: declared %d, observed %d", w.Subject, w.Declared, w.Observed)
	}

	return fmt.Sprintf("%s: %s: declared %d, observed %d", w.Source, w.Subject, w.Declared, w.Observed)
}

// Is reports ErrIntegrity so callers can classify warnings with errors.Is.
func (w *IntegrityWarning) Is(target error) bool {
	return target == ErrIntegrity
}

// NewIntegrityWarning creates an IntegrityWarning.
func NewIntegrityWarning(source, subject string, declared, observed int) *IntegrityWarning {
	return &IntegrityWarning{Source: source, Subject: subject, Declared: declared, Observed: observed}
}

// RecordError reports a failure confined to a single peak row or scan.
type RecordError struct {
	Source string // descriptor the record came from
	Record string // e.g. "row 12" or "scan 431"
	Err    error
}

func (e *RecordError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("%s: %v", e.Record, e.Err)
	}

	return fmt.Sprintf("%s: %s: %v", e.Source, e.Record, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

// NewRecordError creates a RecordError.
func NewRecordError(source, record string, err error) *RecordError {
	return &RecordError{Source: source, Record: record, Err: err}
}

// IsWarning reports whether err is a non-fatal diagnostic, either an integrity
// mismatch or a record-level failure.
func IsWarning(err error) bool {
	if err == nil {
		return false
	}

	var recErr *RecordError

	return errors.Is(err, ErrIntegrity) || errors.As(err, &recErr)
}
