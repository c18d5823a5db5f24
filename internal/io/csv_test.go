package io

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"geo-ingest/internal/geo"

	"github.com/google/go-cmp/cmp"
)

func readCSV(t *testing.T, path string, delim rune) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Failed to open %s: %v", path, err)
	}
	defer f.Close()
	r := csv.NewReader(f)
	r.Comma = delim
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		t.Fatalf("Failed to parse %s: %v", path, err)
	}
	return rows
}

func TestNewCSVWriter(t *testing.T) {
	testCases := []struct {
		name      string
		delimiter string
		format    string
		wantDelim rune
		wantErr   bool
	}{
		{"default delimiter", "", "wkt", ',', false},
		{"pipe", "|", "wkb_hex", '|', false},
		{"tab", "\t", "geojson", '\t', false},
		{"multi-char delimiter", "||", "wkt", 0, true},
		{"bad geometry format", ",", "kml", 0, true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w, err := NewCSVWriter("out.csv", tc.delimiter, tc.format, "geometry")
			if (err != nil) != tc.wantErr {
				t.Fatalf("NewCSVWriter() error = %v, wantErr %v", err, tc.wantErr)
			}
			if err == nil && w.Delimiter != tc.wantDelim {
				t.Errorf("Delimiter = %q, want %q", w.Delimiter, tc.wantDelim)
			}
		})
	}
}

func TestCSVWriter_WriteAndClose(t *testing.T) {
	line := mustWKT(t, sampleLine)
	point := mustWKT(t, samplePoint)
	want := [][]string{
		{"Add_Number", "St_Name", "Updated", "Verified", "wkt"},
		{"120", "Main, North", "2021-03-04", "true", point},
		{"", "Oak", "", "false", ""},
		{"7", "Elm", "2021-03-04", "", line},
	}

	for _, delim := range []string{",", ";"} {
		t.Run("delimiter "+delim, func(t *testing.T) {
			path := outputPath(t, "features.csv")
			w, err := NewCSVWriter(path, delim, "wkt", "wkt")
			if err != nil {
				t.Fatalf("NewCSVWriter() error: %v", err)
			}
			writeAll(t, w, sampleBatches())

			got := readCSV(t, path, []rune(delim)[0])
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("CSV content mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCSVWriter_EmptyAndClosed(t *testing.T) {
	path := outputPath(t, "empty.csv")
	w, err := NewCSVWriter(path, ",", "wkt", "geometry")
	if err != nil {
		t.Fatalf("NewCSVWriter() error: %v", err)
	}
	if err := w.Write(&geo.Batch{Fields: sampleFields}); err != nil {
		t.Fatalf("Write(empty) error: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close() error: %v", err)
	}
	if content := readFile(t, path); content != "" {
		t.Errorf("empty run wrote %q, want empty file", content)
	}
	if err := w.Write(sampleBatches()[0]); err == nil || !strings.Contains(err.Error(), "closed writer") {
		t.Errorf("Write after Close error = %v, want closed writer error", err)
	}
}

func TestCSVWriter_CloseWithoutWrite(t *testing.T) {
	path := outputPath(t, "never.csv")
	w, err := NewCSVWriter(path, ",", "wkt", "geometry")
	if err != nil {
		t.Fatalf("NewCSVWriter() error: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("Close() did not create the output file: %v", err)
	}
}

func TestCSVWriter_FieldMismatch(t *testing.T) {
	w, err := NewCSVWriter(outputPath(t, "mismatch.csv"), ",", "wkt", "geometry")
	if err != nil {
		t.Fatalf("NewCSVWriter() error: %v", err)
	}
	defer w.Close()
	if err := w.Write(sampleBatches()[0]); err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	other := &geo.Batch{Offset: 2, Fields: []string{"ID"}, Records: []geo.Record{{Attributes: map[string]geo.Value{"ID": geo.Integer(1)}}}}
	if err := w.Write(other); err == nil {
		t.Errorf("Write() with a different field list should fail")
	}
}

// --- Issue Writer ---

func TestCSVIssueWriter_WriteAndClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "issues.csv")
	issues := []geo.DataQualityIssue{
		{Offset: 3, Field: "Add_Number", SourceColumn: "COL_4"},
		{Offset: 9, Field: "St_Name", SourceColumn: "COL_12", Missing: true},
	}

	// Two runs append to the same file; the header is written once.
	for run := 0; run < 2; run++ {
		w, err := NewCSVIssueWriter(path)
		if err != nil {
			t.Fatalf("NewCSVIssueWriter() error: %v", err)
		}
		for _, issue := range issues {
			if err := w.Write(issue); err != nil {
				t.Fatalf("Write() error: %v", err)
			}
		}
		if err := w.Close(); err != nil {
			t.Fatalf("Close() error: %v", err)
		}
		if err := w.Close(); err != nil {
			t.Errorf("second Close() error: %v", err)
		}
		if err := w.Write(issues[0]); err == nil {
			t.Errorf("Write after Close should fail")
		}
	}

	rows := readCSV(t, path, ',')
	if len(rows) != 5 {
		t.Fatalf("got %d rows, want header + 4 issues:\n%v", len(rows), rows)
	}
	if diff := cmp.Diff(issueHeaders, rows[0]); diff != "" {
		t.Errorf("header mismatch (-want +got):\n%s", diff)
	}
	wantRow := []string{"9", "St_Name", "COL_12", "missing", "feature 9: required field 'St_Name' (source column 'COL_12') is missing"}
	if diff := cmp.Diff(wantRow, rows[2]); diff != "" {
		t.Errorf("issue row mismatch (-want +got):\n%s", diff)
	}
	if rows[1][3] != "null" {
		t.Errorf("problem = %q, want null", rows[1][3])
	}
}

func TestNewCSVIssueWriter_BadPath(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, nil, 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewCSVIssueWriter(filepath.Join(blocker, "issues.csv")); err == nil {
		t.Errorf("NewCSVIssueWriter() under a regular file should fail")
	}
}
