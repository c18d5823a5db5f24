package io

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"geo-ingest/internal/geo"
	"geo-ingest/internal/logging"

	"github.com/twpayne/go-geom/encoding/geojson"
)

// geoJSONFeature keeps a null geometry as JSON null.
type geoJSONFeature struct {
	Type       string                 `json:"type"`
	Geometry   json.RawMessage        `json:"geometry"`
	Properties map[string]interface{} `json:"properties"`
}

// GeoJSONWriter implements BatchWriter by streaming a FeatureCollection,
// one feature per line, so memory stays bounded by the batch size.
type GeoJSONWriter struct {
	filePath string
	mu       sync.Mutex
	file     *os.File
	buf      *bufio.Writer
	count    int
	closed   bool
}

// NewGeoJSONWriter creates a GeoJSONWriter; the file is created on first use.
func NewGeoJSONWriter(filePath string) *GeoJSONWriter {
	return &GeoJSONWriter{filePath: filePath}
}

func (gw *GeoJSONWriter) open() error {
	if err := ensureDir(gw.filePath); err != nil {
		return fmt.Errorf("GeoJSONWriter failed to create directory for '%s': %w", gw.filePath, err)
	}
	f, err := os.Create(gw.filePath)
	if err != nil {
		return fmt.Errorf("GeoJSONWriter failed to create file '%s': %w", gw.filePath, err)
	}
	gw.file = f
	gw.buf = bufio.NewWriter(f)
	_, err = gw.buf.WriteString(`{"type":"FeatureCollection","features":[`)
	return err
}

// Write appends the features of one batch to the collection.
func (gw *GeoJSONWriter) Write(batch *geo.Batch) error {
	gw.mu.Lock()
	defer gw.mu.Unlock()

	if gw.closed {
		return errors.New("GeoJSONWriter: write called on closed writer")
	}
	if gw.file == nil {
		if err := gw.open(); err != nil {
			return err
		}
	}
	if batch == nil {
		return nil
	}

	for i, rec := range batch.Records {
		f := geoJSONFeature{Type: "Feature", Properties: make(map[string]interface{}, len(batch.Fields))}
		if rec.Geometry != nil {
			g, err := geojson.Marshal(rec.Geometry)
			if err != nil {
				return fmt.Errorf("GeoJSONWriter failed to encode geometry of feature %d: %w", batch.Offset+int64(i), err)
			}
			f.Geometry = g
		}
		for _, field := range batch.Fields {
			f.Properties[field] = cellValue(rec.Get(field))
		}
		data, err := json.Marshal(f)
		if err != nil {
			return fmt.Errorf("GeoJSONWriter failed to marshal feature %d: %w", batch.Offset+int64(i), err)
		}
		sep := "\n"
		if gw.count > 0 {
			sep = ",\n"
		}
		if _, err := gw.buf.WriteString(sep); err != nil {
			return fmt.Errorf("GeoJSONWriter failed to write '%s': %w", gw.filePath, err)
		}
		if _, err := gw.buf.Write(data); err != nil {
			return fmt.Errorf("GeoJSONWriter failed to write '%s': %w", gw.filePath, err)
		}
		gw.count++
	}
	logging.Logf(logging.Debug, "GeoJSONWriter wrote %d features to %s", batch.Len(), gw.filePath)
	return nil
}

// Close terminates the collection and closes the file. An empty collection is
// written when no batch arrived. Safe to call multiple times.
func (gw *GeoJSONWriter) Close() error {
	gw.mu.Lock()
	defer gw.mu.Unlock()

	if gw.closed {
		return nil
	}
	gw.closed = true
	if gw.file == nil {
		if err := gw.open(); err != nil {
			return err
		}
	}

	_, firstErr := gw.buf.WriteString("\n]}\n")
	if firstErr == nil {
		firstErr = gw.buf.Flush()
	}
	if firstErr != nil {
		firstErr = fmt.Errorf("GeoJSONWriter flush error on close for '%s': %w", gw.filePath, firstErr)
		logging.Logf(logging.Error, "%v", firstErr)
	}
	if errClose := gw.file.Close(); errClose != nil && firstErr == nil {
		firstErr = fmt.Errorf("GeoJSONWriter file close error for '%s': %w", gw.filePath, errClose)
	}
	gw.file = nil
	gw.buf = nil
	if firstErr == nil {
		logging.Logf(logging.Debug, "GeoJSONWriter closed successfully: %s (%d features)", gw.filePath, gw.count)
	}
	return firstErr
}
