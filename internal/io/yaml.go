package io

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"sync"

	"geo-ingest/internal/geo"
	"geo-ingest/internal/logging"

	"gopkg.in/yaml.v3"
)

// YAMLWriter implements BatchWriter for YAML files. Each batch is appended as
// a fragment of one top-level sequence of feature maps.
type YAMLWriter struct {
	filePath       string
	geometryColumn string
	encode         geometryEncoder
	mu             sync.Mutex
	file           *os.File
	buf            *bufio.Writer
	count          int
	closed         bool
}

// NewYAMLWriter creates a YAMLWriter that renders geometry in the given format.
func NewYAMLWriter(filePath, geometryFormat, geometryColumn string) (*YAMLWriter, error) {
	enc, err := newGeometryEncoder(geometryFormat)
	if err != nil {
		return nil, err
	}
	return &YAMLWriter{filePath: filePath, geometryColumn: geometryColumn, encode: enc}, nil
}

func (yw *YAMLWriter) open() error {
	if err := ensureDir(yw.filePath); err != nil {
		return fmt.Errorf("YAMLWriter failed to create directory for '%s': %w", yw.filePath, err)
	}
	f, err := os.Create(yw.filePath)
	if err != nil {
		return fmt.Errorf("YAMLWriter failed to create file '%s': %w", yw.filePath, err)
	}
	yw.file = f
	yw.buf = bufio.NewWriter(f)
	return nil
}

// Write encodes one batch as YAML sequence items.
func (yw *YAMLWriter) Write(batch *geo.Batch) error {
	yw.mu.Lock()
	defer yw.mu.Unlock()

	if yw.closed {
		return errors.New("YAMLWriter: write called on closed writer")
	}
	if yw.file == nil {
		if err := yw.open(); err != nil {
			return err
		}
	}
	if batch == nil || batch.Len() == 0 {
		return nil
	}

	items := make([]map[string]interface{}, 0, batch.Len())
	for i, rec := range batch.Records {
		item := make(map[string]interface{}, len(batch.Fields)+1)
		for _, field := range batch.Fields {
			item[field] = cellValue(rec.Get(field))
		}
		geom, err := yw.encode(rec.Geometry)
		if err != nil {
			return fmt.Errorf("YAMLWriter failed to encode geometry of feature %d: %w", batch.Offset+int64(i), err)
		}
		if rec.Geometry != nil {
			item[yw.geometryColumn] = geom
		} else {
			item[yw.geometryColumn] = nil
		}
		items = append(items, item)
	}

	// A fresh encoder per batch avoids "---" document separators between fragments.
	encoder := yaml.NewEncoder(yw.buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(items); err != nil {
		return fmt.Errorf("YAMLWriter failed to marshal batch at offset %d: %w", batch.Offset, err)
	}
	if err := encoder.Close(); err != nil {
		return fmt.Errorf("YAMLWriter failed to marshal batch at offset %d: %w", batch.Offset, err)
	}
	yw.count += batch.Len()
	logging.Logf(logging.Debug, "YAMLWriter wrote %d records to %s", batch.Len(), yw.filePath)
	return nil
}

// Close flushes and closes the file, writing an empty sequence when no record
// was written. Safe to call multiple times.
func (yw *YAMLWriter) Close() error {
	yw.mu.Lock()
	defer yw.mu.Unlock()

	if yw.closed {
		return nil
	}
	yw.closed = true
	if yw.file == nil {
		if err := yw.open(); err != nil {
			return err
		}
	}

	var firstErr error
	if yw.count == 0 {
		_, firstErr = yw.buf.WriteString("[]\n")
	}
	if firstErr == nil {
		firstErr = yw.buf.Flush()
	}
	if firstErr != nil {
		firstErr = fmt.Errorf("YAMLWriter flush error on close for '%s': %w", yw.filePath, firstErr)
		logging.Logf(logging.Error, "%v", firstErr)
	}
	if errClose := yw.file.Close(); errClose != nil && firstErr == nil {
		firstErr = fmt.Errorf("YAMLWriter file close error for '%s': %w", yw.filePath, errClose)
	}
	yw.file = nil
	yw.buf = nil
	return firstErr
}
