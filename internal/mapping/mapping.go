package mapping

import (
	"sort"
)

// ColumnMapping describes how a producer's source columns are renamed into
// destination fields. Both sets are fixed at construction; accessors hand out
// copies so a mapping can be shared read-only across reader sessions.
type ColumnMapping struct {
	required []string          // Sorted, de-duplicated destination names.
	fields   map[string]string // Destination field -> source column.
}

// New builds a ColumnMapping. The inputs are copied; later changes to the
// caller's slice or map do not affect the mapping. No validation happens here:
// call Validate / ValidateRequired (or Check) before reading.
func New(requiredFields []string, fieldMapping map[string]string) *ColumnMapping {
	seen := make(map[string]struct{}, len(requiredFields))
	required := make([]string, 0, len(requiredFields))
	for _, name := range requiredFields {
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		required = append(required, name)
	}
	sort.Strings(required)

	fields := make(map[string]string, len(fieldMapping))
	for dest, src := range fieldMapping {
		fields[dest] = src
	}
	return &ColumnMapping{required: required, fields: fields}
}

// RequiredFields returns the sorted required destination field names.
func (m *ColumnMapping) RequiredFields() []string {
	out := make([]string, len(m.required))
	copy(out, m.required)
	return out
}

// FieldMapping returns a copy of the destination -> source map.
func (m *ColumnMapping) FieldMapping() map[string]string {
	out := make(map[string]string, len(m.fields))
	for dest, src := range m.fields {
		out[dest] = src
	}
	return out
}

// DestinationFields returns the destination field names in sorted order.
func (m *ColumnMapping) DestinationFields() []string {
	out := make([]string, 0, len(m.fields))
	for dest := range m.fields {
		out = append(out, dest)
	}
	sort.Strings(out)
	return out
}

// Source returns the source column mapped to dest.
func (m *ColumnMapping) Source(dest string) (string, bool) {
	src, ok := m.fields[dest]
	return src, ok
}

// IsRequired reports whether dest must be present and non-null on every feature.
func (m *ColumnMapping) IsRequired(dest string) bool {
	i := sort.SearchStrings(m.required, dest)
	return i < len(m.required) && m.required[i] == dest
}

// Len is the number of destination fields.
func (m *ColumnMapping) Len() int {
	return len(m.fields)
}
