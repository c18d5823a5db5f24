package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadConfig reads, parses, and validates the YAML configuration file.
// It applies defaults before returning the validated configuration.
func LoadConfig(filename string) (*IngestConfig, error) {
	fileBytes, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", filename, err)
	}

	var config IngestConfig
	if err := yaml.Unmarshal(fileBytes, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML in '%s': %w", filename, err)
	}

	applyDefaults(&config)

	if err := ValidateConfig(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

// applyDefaults sets default values for optional configuration fields.
func applyDefaults(cfg *IngestConfig) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLogLevel
	}
	if cfg.Source.BatchSize == 0 {
		cfg.Source.BatchSize = DefaultBatchSize
	}
	if cfg.Destination.Type == "" {
		cfg.Destination.Type = DefaultDestinationType
	}
	cfg.Destination.Type = strings.ToLower(cfg.Destination.Type)

	if cfg.DataQuality == nil {
		cfg.DataQuality = &DataQualityConfig{Mode: DefaultDataQualityMode}
	} else if cfg.DataQuality.Mode == "" {
		cfg.DataQuality.Mode = DefaultDataQualityMode
	}

	applyFormatDefaults(&cfg.Destination)
}

// applyFormatDefaults sets defaults for format-specific destination options.
func applyFormatDefaults(dest *DestinationConfig) {
	switch dest.Type {
	case DestinationTypeCSV:
		if dest.Delimiter == "" {
			dest.Delimiter = DefaultCSVDelimiter
		}
	case DestinationTypeXLSX:
		if dest.SheetName == "" {
			dest.SheetName = DefaultSheetName
		}
	}
	if dest.Type != DestinationTypeNone && dest.Type != DestinationTypeGeoJSON {
		if dest.GeometryFormat == "" {
			dest.GeometryFormat = DefaultGeometryFormat
		}
		if dest.GeometryColumn == "" {
			dest.GeometryColumn = DefaultGeometryColumn
		}
	}
}
