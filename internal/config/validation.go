package config

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"geo-ingest/internal/logging"

	"github.com/Knetic/govaluate"
)

// Define known valid enum values for configuration fields.
var (
	knownLogLevels        = []string{"none", "error", "warn", "warning", "info", "debug"}
	knownDestinationTypes = []string{DestinationTypeCSV, DestinationTypeGeoJSON, DestinationTypeYAML, DestinationTypeXLSX, DestinationTypePostgres, DestinationTypeNone}
	knownLoaderModes      = []string{"", LoaderModeSQL}
	knownGeometryFormats  = []string{GeometryFormatWKT, GeometryFormatWKBHex, GeometryFormatGeoJSON}
	knownDataQualityModes = []string{DataQualityModeReport, DataQualityModeHalt}
)

// isValidEnumValue checks if a value is present in a list of allowed string values (case-insensitive).
func isValidEnumValue(value string, allowedValues []string) bool {
	lowerValue := strings.ToLower(value)
	for _, allowed := range allowedValues {
		if lowerValue == strings.ToLower(allowed) {
			return true
		}
	}
	return false
}

// ValidateConfig performs validation of the entire ingest configuration and
// reports every problem found in a single error.
func ValidateConfig(cfg *IngestConfig) error {
	var allErrors []string

	if !isValidEnumValue(cfg.Logging.Level, knownLogLevels) {
		allErrors = append(allErrors, fmt.Sprintf("- Config.Logging.Level: invalid log level '%s', must be one of %v", cfg.Logging.Level, knownLogLevels))
	}

	allErrors = append(allErrors, validateSourceConfig("Config.Source", &cfg.Source)...)
	allErrors = append(allErrors, validateMappingConfig("Config.Mapping", &cfg.Mapping)...)
	allErrors = append(allErrors, validateDestinationConfig("Config.Destination", &cfg.Destination)...)

	if cfg.Filter != "" {
		if _, err := govaluate.NewEvaluableExpression(cfg.Filter); err != nil {
			allErrors = append(allErrors, fmt.Sprintf("- Config.Filter: invalid expression syntax: %v", err))
		}
	}

	if cfg.DataQuality != nil {
		if !isValidEnumValue(cfg.DataQuality.Mode, knownDataQualityModes) {
			allErrors = append(allErrors, fmt.Sprintf("- Config.DataQuality.Mode: invalid mode '%s', must be one of %v", cfg.DataQuality.Mode, knownDataQualityModes))
		}
	}

	if len(allErrors) > 0 {
		return fmt.Errorf("configuration validation failed:\n%s", strings.Join(allErrors, "\n"))
	}
	logging.Logf(logging.Debug, "Configuration validation successful.")
	return nil
}

// validateSourceConfig validates the Source section of the configuration.
func validateSourceConfig(prefix string, cfg *SourceConfig) []string {
	var errs []string
	if cfg.Path == "" {
		errs = append(errs, fmt.Sprintf("- %s.Path: is required", prefix))
	}
	if cfg.BatchSize < 0 {
		errs = append(errs, fmt.Sprintf("- %s.BatchSize: must be positive, got %d", prefix, cfg.BatchSize))
	}
	return errs
}

// validateMappingConfig checks that exactly one way of supplying the column mapping is used.
// Duplicate inputs and required-field coverage are checked later, when the mapping is built.
func validateMappingConfig(prefix string, cfg *MappingConfig) []string {
	var errs []string
	hasRegistry := cfg.File != "" || cfg.Producer != ""
	hasInline := len(cfg.Columns) > 0

	switch {
	case hasRegistry && hasInline:
		errs = append(errs, fmt.Sprintf("- %s: 'columns' cannot be combined with 'file'/'producer'", prefix))
	case hasInline:
		for dest, src := range cfg.Columns {
			if strings.TrimSpace(dest) == "" {
				errs = append(errs, fmt.Sprintf("- %s.Columns: destination field name cannot be empty", prefix))
			}
			if strings.TrimSpace(src) == "" {
				errs = append(errs, fmt.Sprintf("- %s.Columns[%s]: source column cannot be empty", prefix, dest))
			}
		}
		if cfg.Version != 0 {
			logging.Logf(logging.Warning, "Validation: %s.Version is specified but will be ignored for an inline mapping", prefix)
		}
	case hasRegistry:
		if cfg.File == "" {
			errs = append(errs, fmt.Sprintf("- %s.File: is required when a producer is named", prefix))
		}
		if cfg.Producer == "" {
			errs = append(errs, fmt.Sprintf("- %s.Producer: is required when a registry file is given", prefix))
		}
		if cfg.Version < 0 {
			errs = append(errs, fmt.Sprintf("- %s.Version: cannot be negative", prefix))
		}
		if len(cfg.RequiredFields) > 0 {
			logging.Logf(logging.Warning, "Validation: %s.RequiredFields is specified but will be ignored; the registry supplies required fields", prefix)
		}
	default:
		errs = append(errs, fmt.Sprintf("- %s: either 'file' and 'producer' or inline 'columns' is required", prefix))
	}
	return errs
}

// validateDestinationConfig validates the Destination section of the configuration.
func validateDestinationConfig(prefix string, cfg *DestinationConfig) []string {
	var errs []string
	if cfg.Type == "" {
		errs = append(errs, fmt.Sprintf("- %s.Type: is required", prefix))
	} else if !isValidEnumValue(cfg.Type, knownDestinationTypes) {
		// Stop further destination validation if type is invalid
		errs = append(errs, fmt.Sprintf("- %s.Type: invalid destination type '%s', must be one of %v", prefix, cfg.Type, knownDestinationTypes))
		return errs
	}

	lcType := strings.ToLower(cfg.Type)
	switch lcType {
	case DestinationTypeNone:
		if cfg.File != "" || cfg.TargetTable != "" {
			logging.Logf(logging.Warning, "Validation: %s.File/TargetTable are ignored for destination type 'none'", prefix)
		}
		return errs
	case DestinationTypePostgres:
		if cfg.TargetTable == "" {
			errs = append(errs, fmt.Sprintf("- %s.TargetTable: is required for destination type 'postgres'", prefix))
		}
		if cfg.File != "" {
			logging.Logf(logging.Warning, "Validation: %s.File is specified but will be ignored for destination type 'postgres'", prefix)
		}
		if cfg.Loader != nil {
			errs = append(errs, validateLoaderConfig(prefix+".Loader", cfg.Loader)...)
		}
	default: // file based
		if cfg.File == "" {
			errs = append(errs, fmt.Sprintf("- %s.File: is required for destination type '%s'", prefix, cfg.Type))
		}
		if cfg.TargetTable != "" {
			logging.Logf(logging.Warning, "Validation: %s.TargetTable is specified but will be ignored for destination type '%s'", prefix, cfg.Type)
		}
		if cfg.Loader != nil {
			logging.Logf(logging.Warning, "Validation: %s.Loader is specified but will be ignored for destination type '%s'", prefix, cfg.Type)
		}
	}

	// Format-specific checks
	switch lcType {
	case DestinationTypeCSV:
		if err := validateSingleRuneString(cfg.Delimiter, fmt.Sprintf("%s.Delimiter", prefix), false); err != nil {
			errs = append(errs, err.Error())
		}
	case DestinationTypeXLSX:
		if err := validateSheetName(cfg.SheetName, fmt.Sprintf("%s.SheetName", prefix)); err != nil {
			errs = append(errs, err.Error())
		}
	}

	if lcType == DestinationTypeGeoJSON {
		if cfg.GeometryFormat != "" {
			logging.Logf(logging.Warning, "Validation: %s.GeometryFormat is ignored for destination type 'geojson'", prefix)
		}
	} else if !isValidEnumValue(cfg.GeometryFormat, knownGeometryFormats) {
		errs = append(errs, fmt.Sprintf("- %s.GeometryFormat: invalid geometry format '%s', must be one of %v", prefix, cfg.GeometryFormat, knownGeometryFormats))
	}
	return errs
}

// validateLoaderConfig validates the PostgreSQL Loader settings.
func validateLoaderConfig(prefix string, cfg *LoaderConfig) []string {
	var errs []string
	lcMode := strings.ToLower(cfg.Mode)
	if !isValidEnumValue(lcMode, knownLoaderModes) {
		errs = append(errs, fmt.Sprintf("- %s.Mode: invalid loader mode '%s', must be '%s' or empty (for COPY)", prefix, cfg.Mode, LoaderModeSQL))
	}
	if lcMode == LoaderModeSQL {
		if strings.TrimSpace(cfg.Command) == "" {
			errs = append(errs, fmt.Sprintf("- %s.Command: is required when loader mode is 'sql'", prefix))
		}
	} else if cfg.Command != "" {
		logging.Logf(logging.Warning, "Validation: %s.Command is specified but will be ignored when loader mode is not 'sql'", prefix)
	}
	for i, cmd := range cfg.Preload {
		if strings.TrimSpace(cmd) == "" {
			errs = append(errs, fmt.Sprintf("- %s.Preload[%d]: command cannot be empty", prefix, i))
		}
	}
	for i, cmd := range cfg.Postload {
		if strings.TrimSpace(cmd) == "" {
			errs = append(errs, fmt.Sprintf("- %s.Postload[%d]: command cannot be empty", prefix, i))
		}
	}
	return errs
}

// validateSingleRuneString checks if a string consists of exactly one rune.
func validateSingleRuneString(s, fieldName string, allowEmpty bool) error {
	if s == "" {
		if !allowEmpty {
			return fmt.Errorf("- %s: cannot be empty", fieldName)
		}
		return nil
	}
	if utf8.RuneCountInString(s) != 1 {
		return fmt.Errorf("- %s: %s must be a single character", fieldName, strconv.Quote(s))
	}
	return nil
}

// validateSheetName checks if an Excel sheet name is valid according to Excel limitations.
func validateSheetName(sheetName, fieldName string) error {
	if sheetName == "" {
		return fmt.Errorf("- %s: sheet name cannot be empty", fieldName)
	}
	if utf8.RuneCountInString(sheetName) > 31 {
		return fmt.Errorf("- %s: '%s' exceeds maximum length of 31 characters", fieldName, sheetName)
	}
	if strings.ContainsAny(sheetName, `:\/?*[]`) {
		return fmt.Errorf("- %s: '%s' contains invalid characters (: \\ / ? * [ ])", fieldName, sheetName)
	}
	if strings.HasPrefix(sheetName, "'") || strings.HasSuffix(sheetName, "'") {
		return fmt.Errorf("- %s: '%s' cannot start or end with a single quote", fieldName, sheetName)
	}
	return nil
}
