//go:build gdal

package geo

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/twpayne/go-geom"
)

// The OGR source is driver-agnostic, so a GeoJSON file stands in for a
// geodatabase fixture.
func TestOGRSource_KeepsZAndTypes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "points.geojson")
	doc := `{"type":"FeatureCollection","features":[
{"type":"Feature","geometry":{"type":"Point","coordinates":[-88.15,41.77,212.5]},"properties":{"Add_Number":120,"St_Name":"Main"}},
{"type":"Feature","geometry":{"type":"Point","coordinates":[-88.16,41.78,210]},"properties":{"Add_Number":null,"St_Name":"Oak"}}
]}`
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatal(err)
	}
	ds, err := openOGRDataset(path)
	if err != nil {
		t.Fatalf("openOGRDataset() error: %v", err)
	}
	src, err := newOGRSource(ds, path, "")
	if err != nil {
		ds.Close()
		t.Fatalf("newOGRSource() error: %v", err)
	}
	defer src.Close()

	if got := src.columns(); len(got) != 2 || got[0] != "Add_Number" || got[1] != "St_Name" {
		t.Errorf("columns() = %v", got)
	}
	first, err := src.next()
	if err != nil {
		t.Fatalf("next() error: %v", err)
	}
	want := geom.NewPointFlat(geom.XYZ, []float64{-88.15, 41.77, 212.5})
	if !GeometryEqual(first.geometry, want) {
		t.Errorf("geometry = %#v, want %#v", first.geometry, want)
	}
	if !first.attrs["Add_Number"].Equal(Integer(120)) || !first.attrs["St_Name"].Equal(Text("Main")) {
		t.Errorf("attrs = %v", first.attrs)
	}
	second, err := src.next()
	if err != nil {
		t.Fatalf("next() error: %v", err)
	}
	if !second.attrs["Add_Number"].IsNull() {
		t.Errorf("null property read as %v", second.attrs["Add_Number"])
	}
	if _, err := src.next(); !errors.Is(err, io.EOF) {
		t.Errorf("next() at end = %v, want io.EOF", err)
	}
}
