package io

import (
	"fmt"
	"strings"

	"geo-ingest/internal/config"
	"geo-ingest/internal/geo"
	"geo-ingest/internal/logging"
)

// NewBatchWriter creates and returns an appropriate BatchWriter based on the destination configuration.
// filePath is the expanded output path for file sinks; dbConnStr is used by "postgres".
func NewBatchWriter(cfg config.DestinationConfig, filePath, dbConnStr string) (BatchWriter, error) {
	destType := strings.ToLower(cfg.Type)
	logging.Logf(logging.Debug, "Creating batch writer for type: %s", destType)

	switch destType {
	case config.DestinationTypePostgres:
		if dbConnStr == "" {
			return nil, fmt.Errorf("database connection string (-db or DB_CREDENTIALS) is required for destination type 'postgres'")
		}
		if cfg.TargetTable == "" {
			return nil, fmt.Errorf("target_table is required in destination config for type 'postgres'")
		}
		writer, err := NewPostgresWriter(dbConnStr, cfg.TargetTable, cfg.Loader, cfg.GeometryFormat, cfg.GeometryColumn)
		if err != nil {
			return nil, fmt.Errorf("failed to create PostgreSQL writer: %w", err)
		}
		return writer, nil
	case config.DestinationTypeCSV:
		writer, err := NewCSVWriter(filePath, cfg.Delimiter, cfg.GeometryFormat, cfg.GeometryColumn)
		if err != nil {
			return nil, fmt.Errorf("failed to create CSV writer: %w", err)
		}
		return writer, nil
	case config.DestinationTypeXLSX:
		writer, err := NewXLSXWriter(filePath, cfg.SheetName, cfg.GeometryFormat, cfg.GeometryColumn)
		if err != nil {
			return nil, fmt.Errorf("failed to create XLSX writer: %w", err)
		}
		return writer, nil
	case config.DestinationTypeYAML:
		writer, err := NewYAMLWriter(filePath, cfg.GeometryFormat, cfg.GeometryColumn)
		if err != nil {
			return nil, fmt.Errorf("failed to create YAML writer: %w", err)
		}
		return writer, nil
	case config.DestinationTypeGeoJSON:
		return NewGeoJSONWriter(filePath), nil
	case config.DestinationTypeNone, "":
		return &DiscardWriter{}, nil
	default:
		return nil, fmt.Errorf("unsupported destination type '%s'", cfg.Type)
	}
}

// DiscardWriter implements BatchWriter for validate-only runs; it counts what it receives.
type DiscardWriter struct {
	Records int64
}

// Write counts the batch records and drops them.
func (dw *DiscardWriter) Write(batch *geo.Batch) error {
	if batch != nil {
		dw.Records += int64(batch.Len())
	}
	return nil
}

// Close is a no-op.
func (dw *DiscardWriter) Close() error {
	return nil
}
