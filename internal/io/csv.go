package io

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"unicode/utf8"

	"geo-ingest/internal/geo"
	"geo-ingest/internal/logging"
)

// ensureDir creates the parent directory of a file path when needed.
func ensureDir(filePath string) error {
	dir := filepath.Dir(filePath)
	if dir != "." && dir != "" {
		return os.MkdirAll(dir, 0755)
	}
	return nil
}

// CSVWriter implements BatchWriter for delimited text files. One row per
// feature; the header is the batch field list followed by the geometry column.
type CSVWriter struct {
	Delimiter      rune // Field delimiter to use for writing.
	filePath       string
	geometryColumn string
	encode         geometryEncoder
	mu             sync.Mutex
	file           *os.File
	writer         *csv.Writer
	headers        []string // Determined from the first batch
	rows           int
	closed         bool
}

// NewCSVWriter creates a CSVWriter, deferring file opening until the first Write call.
func NewCSVWriter(filePath, delimiter, geometryFormat, geometryColumn string) (*CSVWriter, error) {
	var delim rune = ','
	if delimiter != "" {
		if utf8.RuneCountInString(delimiter) != 1 {
			return nil, fmt.Errorf("invalid delimiter '%s': must be a single character", delimiter)
		}
		delim = []rune(delimiter)[0]
	}
	enc, err := newGeometryEncoder(geometryFormat)
	if err != nil {
		return nil, err
	}
	return &CSVWriter{
		Delimiter:      delim,
		filePath:       filePath,
		geometryColumn: geometryColumn,
		encode:         enc,
	}, nil
}

// open creates (or truncates) the output file. Caller holds the lock.
func (cw *CSVWriter) open() error {
	logging.Logf(logging.Debug, "CSVWriter opening file: %s (Delimiter: '%c')", cw.filePath, cw.Delimiter)
	if err := ensureDir(cw.filePath); err != nil {
		return fmt.Errorf("CSVWriter failed to create directory for '%s': %w", cw.filePath, err)
	}
	f, err := os.Create(cw.filePath)
	if err != nil {
		return fmt.Errorf("CSVWriter failed to create file '%s': %w", cw.filePath, err)
	}
	cw.file = f
	cw.writer = csv.NewWriter(f)
	cw.writer.Comma = cw.Delimiter
	return nil
}

// Write appends the rows of one batch. The header is written with the first
// batch; later batches must carry the same field list.
// Data is buffered; call Close() to ensure all data is written and the file is closed.
func (cw *CSVWriter) Write(batch *geo.Batch) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	if cw.closed {
		return errors.New("CSVWriter: write called on closed writer")
	}
	if cw.writer == nil {
		if err := cw.open(); err != nil {
			return err
		}
	}
	if batch == nil || batch.Len() == 0 {
		logging.Logf(logging.Debug, "CSVWriter: Write called with 0 records; no data written in this call")
		return nil
	}

	if cw.headers == nil {
		cw.headers = tableHeaders(batch.Fields, cw.geometryColumn)
		logging.Logf(logging.Debug, "CSVWriter headers: %v", cw.headers)
		if err := cw.writer.Write(cw.headers); err != nil {
			return fmt.Errorf("CSVWriter failed to write header to '%s': %w", cw.filePath, err)
		}
	} else if len(batch.Fields) != len(cw.headers)-1 {
		return fmt.Errorf("CSVWriter: batch at offset %d has %d fields, header has %d", batch.Offset, len(batch.Fields), len(cw.headers)-1)
	}

	for i, rec := range batch.Records {
		row := make([]string, len(cw.headers))
		for j, field := range batch.Fields {
			row[j] = cellString(rec.Get(field))
		}
		geom, err := cw.encode(rec.Geometry)
		if err != nil {
			return fmt.Errorf("CSVWriter failed to encode geometry of feature %d: %w", batch.Offset+int64(i), err)
		}
		row[len(row)-1] = geom
		if err := cw.writer.Write(row); err != nil {
			return fmt.Errorf("CSVWriter failed to write feature %d to '%s': %w", batch.Offset+int64(i), cw.filePath, err)
		}
	}
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("CSVWriter error after writing batch at offset %d to '%s': %w", batch.Offset, cw.filePath, err)
	}
	cw.rows += batch.Len()
	logging.Logf(logging.Debug, "CSVWriter buffered %d records for %s", batch.Len(), cw.filePath)
	return nil
}

// Close flushes any buffered data to the underlying file and closes it.
// The file is created even when no batch was written. Safe to call multiple times.
func (cw *CSVWriter) Close() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	if cw.closed {
		return nil
	}
	cw.closed = true
	if cw.writer == nil {
		if err := cw.open(); err != nil {
			return err
		}
	}

	var firstErr error
	cw.writer.Flush()
	if errFlush := cw.writer.Error(); errFlush != nil {
		firstErr = fmt.Errorf("CSVWriter flush error on close for '%s': %w", cw.filePath, errFlush)
		logging.Logf(logging.Error, "%v", firstErr)
	}
	if errClose := cw.file.Close(); errClose != nil {
		closeErr := fmt.Errorf("CSVWriter file close error for '%s': %w", cw.filePath, errClose)
		logging.Logf(logging.Error, "%v", closeErr)
		if firstErr == nil {
			firstErr = closeErr
		}
	}
	cw.file = nil
	cw.writer = nil

	if firstErr == nil {
		logging.Logf(logging.Debug, "CSVWriter closed successfully: %s (%d rows)", cw.filePath, cw.rows)
	}
	return firstErr
}

// --- Issue Writer ---

var issueHeaders = []string{"offset", "field", "source_column", "problem", "message"}

// CSVIssueWriter implements IssueWriter, appending data-quality issues to a CSV file.
type CSVIssueWriter struct {
	filePath      string
	writer        *csv.Writer
	file          *os.File
	mu            sync.Mutex
	headerWritten bool
	closed        bool
}

// NewCSVIssueWriter opens the issue file in append mode, creating it if needed.
func NewCSVIssueWriter(filePath string) (*CSVIssueWriter, error) {
	if err := ensureDir(filePath); err != nil {
		return nil, fmt.Errorf("CSVIssueWriter failed to create directory for '%s': %w", filePath, err)
	}
	f, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("CSVIssueWriter failed to open/create file '%s': %w", filePath, err)
	}
	return &CSVIssueWriter{
		filePath: filePath,
		file:     f,
		writer:   csv.NewWriter(f),
	}, nil
}

// Write appends one issue. The header is written only if the file is empty.
func (iw *CSVIssueWriter) Write(issue geo.DataQualityIssue) error {
	iw.mu.Lock()
	defer iw.mu.Unlock()

	if iw.closed {
		return errors.New("CSVIssueWriter: write called on closed writer")
	}

	if !iw.headerWritten {
		fileInfo, err := iw.file.Stat()
		if err != nil || fileInfo.Size() == 0 {
			if err := iw.writer.Write(issueHeaders); err != nil {
				return fmt.Errorf("CSVIssueWriter failed to write header to '%s': %w", iw.filePath, err)
			}
		}
		iw.headerWritten = true
	}

	problem := "null"
	if issue.Missing {
		problem = "missing"
	}
	row := []string{
		strconv.FormatInt(issue.Offset, 10),
		issue.Field,
		issue.SourceColumn,
		problem,
		issue.Error(),
	}
	if err := iw.writer.Write(row); err != nil {
		return fmt.Errorf("CSVIssueWriter failed to write issue row to '%s': %w", iw.filePath, err)
	}
	// Flush after each write so issues survive a halted run.
	iw.writer.Flush()
	if err := iw.writer.Error(); err != nil {
		return fmt.Errorf("CSVIssueWriter error after flushing issue row to '%s': %w", iw.filePath, err)
	}
	return nil
}

// Close flushes and closes the issue file. Safe to call multiple times.
func (iw *CSVIssueWriter) Close() error {
	iw.mu.Lock()
	defer iw.mu.Unlock()

	if iw.closed {
		return nil
	}
	iw.closed = true

	var firstErr error
	iw.writer.Flush()
	if errFlush := iw.writer.Error(); errFlush != nil {
		firstErr = fmt.Errorf("CSVIssueWriter flush error on close for '%s': %w", iw.filePath, errFlush)
		logging.Logf(logging.Error, "%v", firstErr)
	}
	if errClose := iw.file.Close(); errClose != nil {
		closeErr := fmt.Errorf("CSVIssueWriter file close error for '%s': %w", iw.filePath, errClose)
		logging.Logf(logging.Error, "%v", closeErr)
		if firstErr == nil {
			firstErr = closeErr
		}
	}
	iw.file = nil
	iw.writer = nil
	return firstErr
}
