package core

import (
	"errors"
	"fmt"
)

// Ingestion error kinds. Use errors.Is on an *IngestError to test the kind.
var (
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrEmptyFile         = errors.New("empty file")
	ErrMissingColumns    = errors.New("missing required columns")
	ErrDecodeFailure     = errors.New("decode failure")
)

// ErrIngestInProgress is returned when an upload arrives while another is
// still being ingested and the wait budget is exhausted (or zero).
var ErrIngestInProgress = errors.New("too many uploads: another file is still being processed")

// Messages surfaced verbatim to the user.
const (
	msgUnsupportedFormat = "unsupported format: use .xlsx, .xls or .csv"
	msgEmptyFile         = "file is empty or has no valid data"
)

// IngestError is a fatal ingestion failure. Its message is meant for the user;
// the underlying cause, if any, is available through errors.Unwrap.
type IngestError struct {
	kind    error
	cause   error
	msg     string
	Missing []string // set for ErrMissingColumns
}

func (e *IngestError) Error() string {
	return e.msg
}

// Unwrap exposes both the kind sentinel and the technical cause.
func (e *IngestError) Unwrap() []error {
	if e.cause == nil {
		return []error{e.kind}
	}
	return []error{e.kind, e.cause}
}

// Kind returns the sentinel describing this failure.
func (e *IngestError) Kind() error {
	return e.kind
}

// Code returns the support code for this failure.
func (e *IngestError) Code() string {
	return MapError(e.kind).Code
}

func unsupportedFormat(ext string) *IngestError {
	return &IngestError{
		kind:  ErrUnsupportedFormat,
		cause: fmt.Errorf("extension %q", ext),
		msg:   msgUnsupportedFormat,
	}
}

func emptyFile() *IngestError {
	return &IngestError{kind: ErrEmptyFile, msg: msgEmptyFile}
}

func decodeFailure(format string, cause error) *IngestError {
	return &IngestError{
		kind:  ErrDecodeFailure,
		cause: cause,
		msg:   fmt.Sprintf("error processing %s file: %v", format, cause),
	}
}
