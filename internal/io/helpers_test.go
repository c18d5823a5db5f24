package io

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"geo-ingest/internal/geo"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkt"
	"gopkg.in/yaml.v3"
)

var (
	samplePoint = geom.NewPointFlat(geom.XY, []float64{-88.25, 40.11})
	sampleLine  = geom.NewLineStringFlat(geom.XY, []float64{0, 0, 1, 1})
)

// sampleFields is the sorted destination field list used by sink tests.
var sampleFields = []string{"Add_Number", "St_Name", "Updated", "Verified"}

// sampleBatches returns two batches (offsets 0 and 2) covering every value kind
// the sinks render, a null value and a feature without geometry.
func sampleBatches() []*geo.Batch {
	day := time.Date(2021, 3, 4, 0, 0, 0, 0, time.UTC)
	return []*geo.Batch{
		{
			Offset: 0,
			Fields: sampleFields,
			Records: []geo.Record{
				{Geometry: samplePoint, Attributes: map[string]geo.Value{
					"Add_Number": geo.Integer(120), "St_Name": geo.Text("Main, North"),
					"Updated": geo.Date(day), "Verified": geo.Boolean(true),
				}},
				{Geometry: nil, Attributes: map[string]geo.Value{
					"Add_Number": geo.Null(), "St_Name": geo.Text("Oak"),
					"Updated": geo.Null(), "Verified": geo.Boolean(false),
				}},
			},
		},
		{
			Offset: 2,
			Fields: sampleFields,
			Records: []geo.Record{
				{Geometry: sampleLine, Attributes: map[string]geo.Value{
					"Add_Number": geo.Integer(7), "St_Name": geo.Text("Elm"),
					"Updated": geo.Date(day), "Verified": geo.Null(),
				}},
			},
		},
	}
}

// writeAll writes every batch and closes the writer, failing the test on error.
func writeAll(t *testing.T, w BatchWriter, batches []*geo.Batch) {
	t.Helper()
	for _, b := range batches {
		if err := w.Write(b); err != nil {
			t.Fatalf("Write(offset %d) error: %v", b.Offset, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
}

// outputPath returns a path inside a fresh temp dir, in a subdirectory that
// does not exist yet so writers must create it.
func outputPath(t *testing.T, name string) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "out", name)
}

func mustWKT(t *testing.T, g geom.T) string {
	t.Helper()
	s, err := wkt.Marshal(g)
	if err != nil {
		t.Fatalf("wkt.Marshal() error: %v", err)
	}
	return s
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read output file %s: %v", path, err)
	}
	return string(data)
}

// compareRecordsDeep compares decoded rows, printing both sides as YAML on mismatch.
func compareRecordsDeep(t *testing.T, got, want []map[string]interface{}) bool {
	t.Helper()
	if !reflect.DeepEqual(got, want) {
		gotYAML, _ := yaml.Marshal(got)
		wantYAML, _ := yaml.Marshal(want)
		t.Errorf("Record mismatch (order matters):\n--- GOT ---\n%s\n--- WANT ---\n%s", string(gotYAML), string(wantYAML))
		return false
	}
	return true
}
