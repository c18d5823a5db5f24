package config

// Define constants for configuration keys, types, modes etc.
const (
	DestinationTypeCSV      = "csv"
	DestinationTypeGeoJSON  = "geojson"
	DestinationTypeYAML     = "yaml"
	DestinationTypeXLSX     = "xlsx"
	DestinationTypePostgres = "postgres"
	DestinationTypeNone     = "none" // Read and validate only

	LoaderModeSQL = "sql" // For custom SQL loading in Postgres

	GeometryFormatWKT     = "wkt"
	GeometryFormatWKBHex  = "wkb_hex"
	GeometryFormatGeoJSON = "geojson"

	DataQualityModeReport = "report" // Record issues and keep writing features
	DataQualityModeHalt   = "halt"   // Stop the run on the first issue

	DefaultLogLevel        = "info"
	DefaultBatchSize       = 2000
	DefaultDestinationType = DestinationTypeNone
	DefaultCSVDelimiter    = ","
	DefaultSheetName       = "Features"
	DefaultGeometryFormat  = GeometryFormatWKT
	DefaultGeometryColumn  = "geometry"
	DefaultDataQualityMode = DataQualityModeReport
)

// IngestConfig defines the overall structure of the run configuration YAML file.
type IngestConfig struct {
	// Logging configuration specifies the verbosity level.
	Logging LoggingConfig `yaml:"logging"`
	// Source identifies the dataset to read and how to batch it.
	Source SourceConfig `yaml:"source"`
	// Mapping selects the producer column map, either from a registry file or inline.
	Mapping MappingConfig `yaml:"mapping"`
	// Destination defines where the normalized batches are written.
	Destination DestinationConfig `yaml:"destination"`
	// Filter is an optional govaluate expression over destination field names.
	// Features for which it evaluates to false are not written.
	// Example: "STATE == 'IL' && Add_Number > 0"
	Filter string `yaml:"filter,omitempty"`
	// DataQuality controls how features with missing required values are handled.
	DataQuality *DataQualityConfig `yaml:"dataQuality,omitempty"`
}

// LoggingConfig holds settings related to logging verbosity.
type LoggingConfig struct {
	// Level defines the logging detail (e.g., "none", "error", "warn", "info", "debug").
	// Defaults to "info".
	Level string `yaml:"level"`
}

// SourceConfig details the input dataset.
type SourceConfig struct {
	// Path to a shapefile (.shp), a directory of shapefiles, a zipped shapefile,
	// a GeoPackage (.gpkg) or a GeoJSON file. Environment variables are expanded. Required.
	Path string `yaml:"path"`
	// Layer to read. Optional; see the reader for the selection rule.
	Layer string `yaml:"layer,omitempty"`
	// BatchSize is the maximum number of features per batch. Defaults to 2000.
	BatchSize int `yaml:"batchSize,omitempty"`
}

// MappingConfig selects the column mapping. Either File+Producer or Columns must be set.
type MappingConfig struct {
	// File is the producer registry YAML. Environment variables are expanded.
	File string `yaml:"file,omitempty"`
	// Producer name to look up in the registry (case-insensitive).
	Producer string `yaml:"producer,omitempty"`
	// Version of the producer map. 0 selects the latest.
	Version int `yaml:"version,omitempty"`
	// RequiredFields for an inline mapping.
	RequiredFields []string `yaml:"requiredFields,omitempty"`
	// Columns is an inline destination -> source column mapping.
	Columns map[string]string `yaml:"columns,omitempty"`
}

// DestinationConfig details the output destination properties.
type DestinationConfig struct {
	// Type of sink: "csv", "geojson", "yaml", "xlsx", "postgres" or "none". Defaults to "none".
	Type string `yaml:"type"`
	// TargetTable for "postgres". Required for "postgres".
	TargetTable string `yaml:"target_table,omitempty"`
	// File is the output path for file sinks. Environment variables are expanded.
	File string `yaml:"file,omitempty"`
	// Loader provides custom SQL loading for "postgres".
	Loader *LoaderConfig `yaml:"loader,omitempty"`

	// --- Format Specific Options ---
	// CSV Delimiter character (default: ","). Use '\t' for tab.
	Delimiter string `yaml:"delimiter,omitempty"`
	// XLSX Sheet name to write to. Defaults to "Features".
	SheetName string `yaml:"sheetName,omitempty"`
	// GeometryFormat for tabular sinks (csv, yaml, xlsx, postgres): "wkt", "wkb_hex" or "geojson".
	GeometryFormat string `yaml:"geometryFormat,omitempty"`
	// GeometryColumn names the geometry column in tabular sinks. Defaults to "geometry".
	GeometryColumn string `yaml:"geometryColumn,omitempty"`
}

// LoaderConfig holds settings specific to PostgreSQL loading mechanisms.
type LoaderConfig struct {
	// Mode specifies the loading strategy. "sql" runs Command once per feature,
	// one transaction per batch. Empty uses COPY.
	Mode string `yaml:"mode,omitempty"`
	// Command is the custom SQL command. Placeholders $1, $2, ... follow the
	// sorted destination field names, with the geometry column last.
	Command string `yaml:"command,omitempty"`
	// Preload lists SQL commands executed once before the first batch (e.g., TRUNCATE).
	Preload []string `yaml:"preload,omitempty"`
	// Postload lists SQL commands executed once after the last batch (e.g., ANALYZE).
	Postload []string `yaml:"postload,omitempty"`
}

// DataQualityConfig defines how data-quality issues are managed.
type DataQualityConfig struct {
	// Mode is "report" (default) or "halt".
	Mode string `yaml:"mode"`
	// IssueFile is an optional CSV path; issues are appended to it. Environment variables are expanded.
	IssueFile string `yaml:"issueFile,omitempty"`
}
