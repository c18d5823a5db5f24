package mapping

import (
	"errors"
	"reflect"
	"testing"
)

func TestValidate(t *testing.T) {
	testCases := []struct {
		name       string
		fields     map[string]string
		required   []string
		wantErr    bool
		wantErrMsg string
		wantGroups [][]string
	}{
		{
			name: "Two duplicate groups",
			fields: map[string]string{
				"COL_2": "SRC_A", "COL_13": "SRC_A",
				"COL_5": "SRC_B", "COL_6": "SRC_B",
				"COL_0": "ID",
			},
			wantErr:    true,
			wantErrMsg: "Duplicate inputs found for destination fields: COL_13 & COL_2, COL_5 & COL_6",
			wantGroups: [][]string{{"COL_13", "COL_2"}, {"COL_5", "COL_6"}},
		},
		{
			name:       "Three fields share one source",
			fields:     map[string]string{"c": "X", "a": "X", "b": "X", "d": "Y"},
			wantErr:    true,
			wantErrMsg: "Duplicate inputs found for destination fields: a & b & c",
			wantGroups: [][]string{{"a", "b", "c"}},
		},
		{
			name:       "Groups ordered by first field name",
			fields:     map[string]string{"zeta": "S1", "alpha": "S1", "beta": "S2", "mid": "S2"},
			wantErr:    true,
			wantErrMsg: "Duplicate inputs found for destination fields: alpha & zeta, beta & mid",
			wantGroups: [][]string{{"alpha", "zeta"}, {"beta", "mid"}},
		},
		{
			name:    "No duplicates",
			fields:  map[string]string{"COL_0": "ID", "COL_1": "STCOFIPS"},
			wantErr: false,
		},
		{
			name:     "No duplicates ignores missing required fields",
			fields:   map[string]string{"COL_0": "ID"},
			required: []string{"COL_0", "NOT_MAPPED"},
			wantErr:  false,
		},
		{
			name:    "Empty mapping",
			fields:  map[string]string{},
			wantErr: false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			m := New(tc.required, tc.fields)
			err := m.Validate()
			if !tc.wantErr {
				if err != nil {
					t.Fatalf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() error = nil, want %q", tc.wantErrMsg)
			}
			if err.Error() != tc.wantErrMsg {
				t.Errorf("Validate() error = %q, want %q", err.Error(), tc.wantErrMsg)
			}
			if !errors.Is(err, ErrDuplicateInputs) || !errors.Is(err, ErrConfiguration) {
				t.Errorf("Validate() error %v does not wrap ErrDuplicateInputs/ErrConfiguration", err)
			}
			var cfgErr *ConfigurationError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("Validate() error type = %T, want *ConfigurationError", err)
			}
			if cfgErr.Kind != DuplicateInputs {
				t.Errorf("Kind = %v, want %v", cfgErr.Kind, DuplicateInputs)
			}
			if !reflect.DeepEqual(cfgErr.Fields, tc.wantGroups) {
				t.Errorf("Fields = %v, want %v", cfgErr.Fields, tc.wantGroups)
			}
		})
	}
}

func TestValidate_Deterministic(t *testing.T) {
	fields := map[string]string{}
	for _, name := range []string{"f1", "f2", "f3", "f4", "f5", "f6", "f7", "f8"} {
		fields[name] = "S" + string(name[1]%3+'0')
	}
	m := New(nil, fields)
	first := m.Validate()
	if first == nil {
		t.Fatal("Validate() = nil, want duplicate error")
	}
	for i := 0; i < 20; i++ {
		if got := m.Validate(); got.Error() != first.Error() {
			t.Fatalf("Validate() run %d = %q, want %q", i, got, first)
		}
	}
}

func TestValidateRequired(t *testing.T) {
	m := New([]string{"B", "A", "C", "A"}, map[string]string{"A": "src_a", "C": ""})
	err := m.ValidateRequired()
	if err == nil {
		t.Fatal("ValidateRequired() = nil, want error")
	}
	want := "Required destination fields missing from column mapping: B, C"
	if err.Error() != want {
		t.Errorf("ValidateRequired() = %q, want %q", err.Error(), want)
	}
	if !errors.Is(err, ErrMissingRequiredField) {
		t.Errorf("error does not wrap ErrMissingRequiredField")
	}
	if errors.Is(err, ErrDuplicateInputs) {
		t.Errorf("missing-required error must not match ErrDuplicateInputs")
	}

	ok := New([]string{"A"}, map[string]string{"A": "src_a", "B": "src_a"})
	if err := ok.ValidateRequired(); err != nil {
		t.Errorf("ValidateRequired() with duplicates but all required present = %v, want nil", err)
	}
}

func TestCheck(t *testing.T) {
	t.Run("Duplicates reported first", func(t *testing.T) {
		m := New([]string{"missing"}, map[string]string{"a": "X", "b": "X"})
		err := m.Check()
		if !errors.Is(err, ErrDuplicateInputs) {
			t.Fatalf("Check() = %v, want duplicate inputs error", err)
		}
	})
	t.Run("Missing required without duplicates", func(t *testing.T) {
		m := New([]string{"missing"}, map[string]string{"a": "X"})
		if err := m.Check(); !errors.Is(err, ErrMissingRequiredField) {
			t.Fatalf("Check() = %v, want missing required error", err)
		}
	})
	t.Run("Valid", func(t *testing.T) {
		m := New([]string{"a"}, map[string]string{"a": "X", "b": "Y"})
		if err := m.Check(); err != nil {
			t.Fatalf("Check() = %v, want nil", err)
		}
	})
	t.Run("Nil mapping", func(t *testing.T) {
		var m *ColumnMapping
		if err := m.Check(); !errors.Is(err, ErrConfiguration) {
			t.Fatalf("Check() on nil = %v, want configuration error", err)
		}
	})
}

func TestNilMapping(t *testing.T) {
	var m *ColumnMapping
	testCases := []struct {
		name  string
		check func() error
	}{
		{"Validate", m.Validate},
		{"ValidateRequired", m.ValidateRequired},
		{"Check", m.Check},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.check()
			if !errors.Is(err, ErrConfiguration) {
				t.Fatalf("%s() on nil mapping = %v, want configuration error", tc.name, err)
			}
			if err.Error() != "column mapping is nil" {
				t.Errorf("%s() message = %q", tc.name, err.Error())
			}
		})
	}
}

func TestColumnMapping_Immutable(t *testing.T) {
	required := []string{"A"}
	fields := map[string]string{"A": "src_a"}
	m := New(required, fields)

	required[0] = "Z"
	fields["A"] = "changed"
	fields["B"] = "new"

	if got := m.RequiredFields(); !reflect.DeepEqual(got, []string{"A"}) {
		t.Errorf("RequiredFields() = %v, want [A]", got)
	}
	if src, _ := m.Source("A"); src != "src_a" {
		t.Errorf("Source(A) = %q, want src_a", src)
	}
	if m.Len() != 1 {
		t.Errorf("Len() = %d, want 1", m.Len())
	}

	out := m.FieldMapping()
	out["A"] = "mutated"
	if src, _ := m.Source("A"); src != "src_a" {
		t.Errorf("FieldMapping() copy leaked mutation: Source(A) = %q", src)
	}
	if !m.IsRequired("A") || m.IsRequired("B") {
		t.Errorf("IsRequired mismatch")
	}
	if got := m.DestinationFields(); !reflect.DeepEqual(got, []string{"A"}) {
		t.Errorf("DestinationFields() = %v", got)
	}
}
