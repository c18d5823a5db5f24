package mapping

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"geo-ingest/internal/logging"

	"gopkg.in/yaml.v3"
)

// ErrProducerNotFound is returned when a registry has no entry for a producer/version.
var ErrProducerNotFound = errors.New("producer column map not found")

// Definition is one versioned producer column map as stored in the registry file.
type Definition struct {
	// Name of the data producer. Required.
	Name string `yaml:"name"`
	// Version of this producer's map. Must be positive and unique per producer.
	Version int `yaml:"version"`
	// RequiredFields overrides the registry defaults when set.
	RequiredFields []string `yaml:"data_required_fields,omitempty"`
	// ColumnMapping maps destination field -> source column. Required.
	ColumnMapping map[string]string `yaml:"data_column_mapping"`
}

// RegistryDefaults apply to every definition that does not override them.
type RegistryDefaults struct {
	RequiredFields []string `yaml:"data_required_fields,omitempty"`
}

// registryFile is the on-disk layout.
type registryFile struct {
	Defaults  RegistryDefaults `yaml:"defaults"`
	Producers []Definition     `yaml:"producers"`
}

// Registry holds the versioned producer column maps loaded from YAML.
type Registry struct {
	defaults RegistryDefaults
	byKey    map[string]Definition // "name@version"
	latest   map[string]int
}

func registryKey(name string, version int) string {
	return fmt.Sprintf("%s@%d", strings.ToLower(name), version)
}

// LoadRegistry reads and parses a producer registry file.
func LoadRegistry(filename string) (*Registry, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read column map registry '%s': %w", filename, err)
	}
	reg, err := ParseRegistry(data)
	if err != nil {
		return nil, fmt.Errorf("invalid column map registry '%s': %w", filename, err)
	}
	logging.Logf(logging.Debug, "Loaded %d producer column maps from %s", len(reg.byKey), filename)
	return reg, nil
}

// ParseRegistry decodes registry YAML and checks the structural rules: every
// entry has a name, a positive version, a non-empty column mapping, and no
// (name, version) pair repeats. Mapping content is not validated here; that is
// Check's job when a map is actually used.
func ParseRegistry(data []byte) (*Registry, error) {
	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	reg := &Registry{
		defaults: file.Defaults,
		byKey:    make(map[string]Definition, len(file.Producers)),
		latest:   make(map[string]int),
	}
	var errs []string
	for i, def := range file.Producers {
		prefix := fmt.Sprintf("producers[%d]", i)
		if strings.TrimSpace(def.Name) == "" {
			errs = append(errs, fmt.Sprintf("- %s.name: is required", prefix))
			continue
		}
		if def.Version <= 0 {
			errs = append(errs, fmt.Sprintf("- %s.version: must be a positive integer (got %d)", prefix, def.Version))
			continue
		}
		if len(def.ColumnMapping) == 0 {
			errs = append(errs, fmt.Sprintf("- %s.data_column_mapping: is required for producer '%s'", prefix, def.Name))
			continue
		}
		key := registryKey(def.Name, def.Version)
		if _, dup := reg.byKey[key]; dup {
			errs = append(errs, fmt.Sprintf("- %s: duplicate entry for producer '%s' version %d", prefix, def.Name, def.Version))
			continue
		}
		reg.byKey[key] = def
		lname := strings.ToLower(def.Name)
		if def.Version > reg.latest[lname] {
			reg.latest[lname] = def.Version
		}
	}
	if len(errs) > 0 {
		return nil, errors.New(strings.Join(errs, "\n"))
	}
	return reg, nil
}

// Get returns the column mapping for a producer and version. Version 0 selects
// the latest version. Producer names match case-insensitively.
func (r *Registry) Get(name string, version int) (*ColumnMapping, error) {
	def, err := r.Definition(name, version)
	if err != nil {
		return nil, err
	}
	required := def.RequiredFields
	if len(required) == 0 {
		required = r.defaults.RequiredFields
	}
	return New(required, def.ColumnMapping), nil
}

// Definition returns the raw registry entry (before defaults are applied).
func (r *Registry) Definition(name string, version int) (Definition, error) {
	if version == 0 {
		v, ok := r.latest[strings.ToLower(name)]
		if !ok {
			return Definition{}, fmt.Errorf("%w: producer '%s'", ErrProducerNotFound, name)
		}
		version = v
	}
	def, ok := r.byKey[registryKey(name, version)]
	if !ok {
		return Definition{}, fmt.Errorf("%w: producer '%s' version %d", ErrProducerNotFound, name, version)
	}
	return def, nil
}

// Producers lists "name@version" keys in sorted order.
func (r *Registry) Producers() []string {
	out := make([]string, 0, len(r.byKey))
	for _, def := range r.byKey {
		out = append(out, fmt.Sprintf("%s@%d", def.Name, def.Version))
	}
	sort.Strings(out)
	return out
}

// DefaultRequiredFields returns the registry-wide required fields.
func (r *Registry) DefaultRequiredFields() []string {
	out := make([]string, len(r.defaults.RequiredFields))
	copy(out, r.defaults.RequiredFields)
	return out
}
