package geo

import (
	"errors"
	"io"
	"sort"
	"sync"

	"geo-ingest/internal/logging"
	"geo-ingest/internal/mapping"
)

// DefaultBatchSize is used by callers that do not configure one.
const DefaultBatchSize = 2000

// Options tune a reading session.
type Options struct {
	// BatchSize is the maximum number of features per batch. Must be > 0.
	BatchSize int
	// Layer selects a layer by name. Empty picks the only layer, or the
	// first one with a warning when the dataset has several.
	Layer string
}

type sessionState int

const (
	stateOpen sessionState = iota
	stateExhausted
	stateClosed
)

// BatchReader iterates one layer of a dataset in fixed-size batches,
// projecting every feature through a ColumnMapping. It is safe for use by
// multiple goroutines, but batches are handed out strictly in order.
type BatchReader struct {
	mu sync.Mutex

	path      string
	format    Format
	layer     string
	columns   []string
	src       layerSource
	mapping   *mapping.ColumnMapping
	fields    []string
	batchSize int

	offset int64
	state  sessionState
}

// Open validates the mapping, opens the dataset at path and positions the
// session before the first feature. On error no session is created and the
// returned reader is nil. Mapping problems are returned as
// *mapping.ConfigurationError; dataset problems as *DatasetOpenError.
func Open(path string, m *mapping.ColumnMapping, opts Options) (*BatchReader, error) {
	if err := m.Check(); err != nil {
		return nil, err
	}
	if opts.BatchSize <= 0 {
		return nil, ErrInvalidBatchSize
	}

	format, err := DetectFormat(path)
	if err != nil {
		return nil, &DatasetOpenError{Path: path, Layer: opts.Layer, Err: err}
	}
	src, err := openSourceFunc(path, format, opts.Layer, opts.BatchSize)
	if err != nil {
		return nil, &DatasetOpenError{Path: path, Layer: opts.Layer, Err: err}
	}

	r := &BatchReader{
		path:      path,
		format:    format,
		layer:     src.name(),
		columns:   sortedCopy(src.columns()),
		src:       src,
		mapping:   m,
		fields:    m.DestinationFields(),
		batchSize: opts.BatchSize,
	}
	r.warnUnknownColumns()
	logging.Logf(logging.Info, "Opened %s dataset '%s', layer '%s' (batch size %d, %d mapped fields)",
		format, path, r.layer, opts.BatchSize, len(r.fields))
	return r, nil
}

// warnUnknownColumns flags mapped source columns the layer schema lacks. Such
// destinations read as null on every feature.
func (r *BatchReader) warnUnknownColumns() {
	if r.columns == nil {
		return
	}
	present := make(map[string]bool, len(r.columns))
	for _, c := range r.columns {
		present[c] = true
	}
	for _, dest := range r.fields {
		src, _ := r.mapping.Source(dest)
		if !present[src] {
			logging.Logf(logging.Warning, "Source column '%s' (destination '%s') is not in layer '%s'", src, dest, r.layer)
		}
	}
}

// NextBatch returns the next batch of up to BatchSize features. It returns
// (nil, io.EOF) once the layer is exhausted, on every call thereafter. A
// *ReadError ends the session; later calls return ErrReaderClosed.
func (r *BatchReader) NextBatch() (*Batch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.state {
	case stateClosed:
		return nil, ErrReaderClosed
	case stateExhausted:
		return nil, io.EOF
	}

	batch := &Batch{
		Offset:  r.offset,
		Records: make([]Record, 0, r.batchSize),
		Fields:  append([]string(nil), r.fields...),
	}
	for len(batch.Records) < r.batchSize {
		f, err := r.src.next()
		if errors.Is(err, io.EOF) {
			r.state = stateExhausted
			break
		}
		if err != nil {
			readErr := &ReadError{Path: r.path, Layer: r.layer, Offset: batch.End(), Err: err}
			logging.Logf(logging.Error, "%v", readErr)
			r.closeLocked()
			return nil, readErr
		}
		rec, issues := r.project(batch.End(), f)
		batch.Records = append(batch.Records, rec)
		batch.Issues = append(batch.Issues, issues...)
	}

	if len(batch.Records) == 0 {
		logging.Logf(logging.Debug, "Layer '%s' exhausted after %d features", r.layer, r.offset)
		r.closeSource()
		return nil, io.EOF
	}
	r.offset = batch.End()
	if r.state == stateExhausted {
		r.closeSource()
	}
	logging.Logf(logging.Debug, "Read batch at offset %d: %d features, %d issues", batch.Offset, batch.Len(), len(batch.Issues))
	return batch, nil
}

// project renames the mapped attributes of f and checks required fields.
// Unmapped source columns are dropped.
func (r *BatchReader) project(offset int64, f feature) (Record, []DataQualityIssue) {
	rec := Record{Geometry: f.geometry, Attributes: make(map[string]Value, len(r.fields))}
	var issues []DataQualityIssue
	for _, dest := range r.fields {
		src, _ := r.mapping.Source(dest)
		v, present := f.attrs[src]
		rec.Attributes[dest] = v
		if v.IsNull() && r.mapping.IsRequired(dest) {
			issues = append(issues, DataQualityIssue{
				Offset:       offset,
				Field:        dest,
				SourceColumn: src,
				Missing:      !present,
			})
		}
	}
	return rec, issues
}

// Close releases the dataset. It is safe to call more than once.
func (r *BatchReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == stateClosed {
		return nil
	}
	return r.closeLocked()
}

func (r *BatchReader) closeLocked() error {
	r.state = stateClosed
	return r.closeSource()
}

func (r *BatchReader) closeSource() error {
	if r.src == nil {
		return nil
	}
	err := r.src.Close()
	r.src = nil
	return err
}

// Layer is the name of the layer being read.
func (r *BatchReader) Layer() string {
	return r.layer
}

func (r *BatchReader) Format() Format {
	return r.format
}

// SourceColumns is the sorted attribute schema of the layer, or nil for
// schemaless formats such as GeoJSON.
func (r *BatchReader) SourceColumns() []string {
	return append([]string(nil), r.columns...)
}

// Offset is the number of features returned so far.
func (r *BatchReader) Offset() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.offset
}

func sortedCopy(in []string) []string {
	if in == nil {
		return nil
	}
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}
