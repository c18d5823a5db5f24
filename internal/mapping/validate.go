package mapping

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Sentinel errors for configuration problems. Both kinds wrap ErrConfiguration.
var (
	ErrConfiguration        = errors.New("column mapping configuration error")
	ErrDuplicateInputs      = fmt.Errorf("%w: duplicate inputs", ErrConfiguration)
	ErrMissingRequiredField = fmt.Errorf("%w: missing required field", ErrConfiguration)
)

// ConfigurationErrorKind distinguishes the configuration checks.
type ConfigurationErrorKind int

const (
	DuplicateInputs ConfigurationErrorKind = iota + 1
	MissingRequiredField
)

func (k ConfigurationErrorKind) String() string {
	switch k {
	case DuplicateInputs:
		return "duplicate-inputs"
	case MissingRequiredField:
		return "missing-required-field"
	default:
		return "unknown"
	}
}

// ConfigurationError reports a problem detected in a ColumnMapping before any
// dataset is read. Error() returns Message verbatim.
type ConfigurationError struct {
	Kind    ConfigurationErrorKind
	Message string
	// Fields lists the offending destination fields: one group per duplicated
	// source column for DuplicateInputs, a single group for MissingRequiredField.
	Fields [][]string
}

func (e *ConfigurationError) Error() string {
	return e.Message
}

// Unwrap lets errors.Is match the kind sentinel (and through it ErrConfiguration).
func (e *ConfigurationError) Unwrap() error {
	switch e.Kind {
	case DuplicateInputs:
		return ErrDuplicateInputs
	case MissingRequiredField:
		return ErrMissingRequiredField
	default:
		return ErrConfiguration
	}
}

func nilMappingError() error {
	return &ConfigurationError{Kind: MissingRequiredField, Message: "column mapping is nil"}
}

const (
	duplicateInputsPrefix = "Duplicate inputs found for destination fields: "
	missingRequiredPrefix = "Required destination fields missing from column mapping: "
)

// Validate fails when two or more destination fields read the same source
// column. Groups are rendered "A & B" with names sorted, ordered by their first
// name and joined with ", ". Required fields play no part in this check.
func (m *ColumnMapping) Validate() error {
	if m == nil {
		return nilMappingError()
	}
	bySource := make(map[string][]string)
	for dest, src := range m.fields {
		bySource[src] = append(bySource[src], dest)
	}

	var groups [][]string
	for _, dests := range bySource {
		if len(dests) < 2 {
			continue
		}
		sort.Strings(dests)
		groups = append(groups, dests)
	}
	if len(groups) == 0 {
		return nil
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i][0] < groups[j][0] })

	rendered := make([]string, len(groups))
	for i, g := range groups {
		rendered[i] = strings.Join(g, " & ")
	}
	return &ConfigurationError{
		Kind:    DuplicateInputs,
		Message: duplicateInputsPrefix + strings.Join(rendered, ", "),
		Fields:  groups,
	}
}

// ValidateRequired fails when a required destination field has no source
// column in the field mapping.
func (m *ColumnMapping) ValidateRequired() error {
	if m == nil {
		return nilMappingError()
	}
	var missing []string
	for _, name := range m.required {
		if src, ok := m.fields[name]; !ok || src == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return &ConfigurationError{
		Kind:    MissingRequiredField,
		Message: missingRequiredPrefix + strings.Join(missing, ", "),
		Fields:  [][]string{missing},
	}
}

// Check runs Validate and then ValidateRequired, returning the first failure.
// Readers call this before touching a dataset.
func (m *ColumnMapping) Check() error {
	if err := m.Validate(); err != nil {
		return err
	}
	return m.ValidateRequired()
}
