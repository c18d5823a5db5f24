package io

import (
	"encoding/json"
	"testing"

	"geo-ingest/internal/geo"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
)

type decodedFeature struct {
	Geometry   json.RawMessage        `json:"geometry"`
	Properties map[string]interface{} `json:"properties"`
}

type decodedCollection struct {
	Type     string           `json:"type"`
	Features []decodedFeature `json:"features"`
}

func decodeCollection(t *testing.T, path string) decodedCollection {
	t.Helper()
	var fc decodedCollection
	if err := json.Unmarshal([]byte(readFile(t, path)), &fc); err != nil || fc.Type != "FeatureCollection" {
		t.Fatalf("output is not a FeatureCollection: %v", err)
	}
	return fc
}

func decodeGeometry(t *testing.T, raw json.RawMessage) geom.T {
	t.Helper()
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var g geom.T
	if err := geojson.Unmarshal(raw, &g); err != nil {
		t.Fatalf("geometry %s does not decode: %v", raw, err)
	}
	return g
}

func TestGeoJSONWriter_Write(t *testing.T) {
	path := outputPath(t, "features.geojson")
	w := NewGeoJSONWriter(path)
	writeAll(t, w, sampleBatches())

	fc := decodeCollection(t, path)
	if len(fc.Features) != 3 {
		t.Fatalf("got %d features, want 3", len(fc.Features))
	}

	first := fc.Features[0]
	if g := decodeGeometry(t, first.Geometry); !geo.GeometryEqual(g, samplePoint) {
		t.Errorf("feature 0 geometry = %s", first.Geometry)
	}
	if first.Properties["Add_Number"] != float64(120) || first.Properties["Updated"] != "2021-03-04" || first.Properties["Verified"] != true {
		t.Errorf("feature 0 properties = %v", first.Properties)
	}
	if g := decodeGeometry(t, fc.Features[1].Geometry); g != nil {
		t.Errorf("feature 1 geometry = %s, want null", fc.Features[1].Geometry)
	}
	if v, ok := fc.Features[1].Properties["Add_Number"]; !ok || v != nil {
		t.Errorf("null attribute should be present as null, got %v (present %v)", v, ok)
	}
	if g := decodeGeometry(t, fc.Features[2].Geometry); !geo.GeometryEqual(g, sampleLine) {
		t.Errorf("feature 2 geometry = %s", fc.Features[2].Geometry)
	}
	for _, f := range fc.Features {
		if len(f.Properties) != len(sampleFields) {
			t.Errorf("properties %v should hold exactly the destination fields", f.Properties)
		}
	}
}

func TestGeoJSONWriter_KeepsZ(t *testing.T) {
	path := outputPath(t, "z.geojson")
	w := NewGeoJSONWriter(path)
	pt := geom.NewPointFlat(geom.XYZ, []float64{-88.15, 41.77, 212.5})
	writeAll(t, w, []*geo.Batch{{
		Fields:  []string{"Add_Number"},
		Records: []geo.Record{{Geometry: pt, Attributes: map[string]geo.Value{"Add_Number": geo.Integer(1)}}},
	}})

	fc := decodeCollection(t, path)
	if len(fc.Features) != 1 {
		t.Fatalf("got %d features, want 1", len(fc.Features))
	}
	if g := decodeGeometry(t, fc.Features[0].Geometry); !geo.GeometryEqual(g, pt) {
		t.Errorf("geometry = %s, want XYZ point", fc.Features[0].Geometry)
	}
}

func TestGeoJSONWriter_Empty(t *testing.T) {
	path := outputPath(t, "empty.geojson")
	w := NewGeoJSONWriter(path)
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	fc := decodeCollection(t, path)
	if len(fc.Features) != 0 {
		t.Errorf("got %d features, want 0", len(fc.Features))
	}
	if err := w.Write(sampleBatches()[0]); err == nil {
		t.Errorf("Write after Close should fail")
	}
}
