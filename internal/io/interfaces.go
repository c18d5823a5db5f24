package io

import (
	"geo-ingest/internal/geo"
)

// BatchWriter defines the interface for sinks that receive normalized feature batches.
type BatchWriter interface {
	// Write appends the records of one batch to the destination. Batches arrive in
	// dataset order; a writer may buffer them until Close.
	Write(batch *geo.Batch) error

	// Close flushes buffered data and releases files or connections.
	// Implementations should be idempotent (safe to call multiple times).
	Close() error
}

// IssueWriter defines the interface for recording data-quality issues found while reading.
type IssueWriter interface {
	// Write records a single issue.
	Write(issue geo.DataQualityIssue) error

	// Close ensures any buffered data is flushed and resources (like files) are released.
	// Implementations should be idempotent.
	Close() error
}
