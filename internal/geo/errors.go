package geo

import (
	"errors"
	"fmt"
)

// Sentinels for errors.Is. The typed errors below unwrap to them.
var (
	ErrDatasetOpen       = errors.New("dataset open error")
	ErrRead              = errors.New("feature read error")
	ErrDataQuality       = errors.New("data quality error")
	ErrReaderClosed      = errors.New("batch reader is closed")
	ErrInvalidBatchSize  = errors.New("batch size must be a positive integer")
	ErrUnsupportedFormat = errors.New("unsupported dataset format")
	ErrLayerNotFound     = errors.New("layer not found")
)

// DatasetOpenError is returned by Open when the path cannot be read, the format
// is not recognised, or the requested layer is absent. No session exists.
type DatasetOpenError struct {
	Path  string
	Layer string
	Err   error
}

func (e *DatasetOpenError) Error() string {
	if e.Layer != "" {
		return fmt.Sprintf("cannot open dataset '%s' (layer '%s'): %v", e.Path, e.Layer, e.Err)
	}
	return fmt.Sprintf("cannot open dataset '%s': %v", e.Path, e.Err)
}

func (e *DatasetOpenError) Unwrap() []error {
	return []error{ErrDatasetOpen, e.Err}
}

// ReadError reports an unreadable feature. The session that produced it is
// closed; batches returned before it stay valid.
type ReadError struct {
	Path   string
	Layer  string
	Offset int64
	Err    error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("failed to read feature at offset %d of '%s' (layer '%s'): %v", e.Offset, e.Path, e.Layer, e.Err)
}

func (e *ReadError) Unwrap() []error {
	return []error{ErrRead, e.Err}
}

// DataQualityIssue records a required destination field that has no value on
// one feature. Issues travel inside Batch.Issues and never stop iteration.
type DataQualityIssue struct {
	Offset       int64
	Field        string
	SourceColumn string
	// Missing is true when the source column does not exist on the feature;
	// false means it exists but holds null.
	Missing bool
}

func (i DataQualityIssue) Error() string {
	state := "is null"
	if i.Missing {
		state = "is missing"
	}
	return fmt.Sprintf("feature %d: required field '%s' (source column '%s') %s", i.Offset, i.Field, i.SourceColumn, state)
}

func (i DataQualityIssue) Unwrap() error {
	return ErrDataQuality
}
