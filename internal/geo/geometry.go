package geo

import (
	"encoding/binary"
	"fmt"
	"math"
	"reflect"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
	"github.com/twpayne/go-geom/encoding/wkb"
)

// EWKB type flags. ISO WKB encodes dimensions in the type code instead.
const (
	ewkbZ    = 0x80000000
	ewkbM    = 0x40000000
	ewkbSRID = 0x20000000
)

// decodeWKB decodes ISO WKB or PostGIS EWKB. Z and M ordinates are kept in
// the geometry layout.
func decodeWKB(b []byte) (geom.T, error) {
	if len(b) < 5 {
		return nil, fmt.Errorf("wkb: %d bytes is too short", len(b))
	}
	var order binary.ByteOrder = binary.LittleEndian
	switch b[0] {
	case 0:
		order = binary.BigEndian
	case 1:
	default:
		return nil, fmt.Errorf("wkb: invalid byte order %d", b[0])
	}
	if order.Uint32(b[1:5])&(ewkbZ|ewkbM|ewkbSRID) != 0 {
		return ewkb.Unmarshal(b)
	}
	return wkb.Unmarshal(b)
}

// GeometryEqual reports whether a and b have the same type, layout and
// coordinates. Two nil geometries are equal.
func GeometryEqual(a, b geom.T) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if reflect.TypeOf(a) != reflect.TypeOf(b) || a.Layout() != b.Layout() {
		return false
	}
	if ac, ok := a.(*geom.GeometryCollection); ok {
		bc := b.(*geom.GeometryCollection)
		ag, bg := ac.Geoms(), bc.Geoms()
		if len(ag) != len(bg) {
			return false
		}
		for i := range ag {
			if !GeometryEqual(ag[i], bg[i]) {
				return false
			}
		}
		return true
	}
	if !floatsEqual(a.FlatCoords(), b.FlatCoords()) || !intsEqual(a.Ends(), b.Ends()) {
		return false
	}
	ae, be := a.Endss(), b.Endss()
	if len(ae) != len(be) {
		return false
	}
	for i := range ae {
		if !intsEqual(ae[i], be[i]) {
			return false
		}
	}
	return true
}

// floatsEqual treats NaN as equal to NaN; empty points are stored that way.
func floatsEqual(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] && !(math.IsNaN(a[i]) && math.IsNaN(b[i])) {
			return false
		}
	}
	return true
}

func intsEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
