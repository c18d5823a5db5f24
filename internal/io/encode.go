package io

import (
	"encoding/binary"
	"fmt"
	"strings"

	"geo-ingest/internal/config"
	"geo-ingest/internal/geo"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"github.com/twpayne/go-geom/encoding/wkbhex"
	"github.com/twpayne/go-geom/encoding/wkt"
)

// geometryEncoder renders a geometry as a single tabular cell. A nil geometry
// encodes to the empty string. Z and M ordinates are written when present.
type geometryEncoder func(g geom.T) (string, error)

// newGeometryEncoder returns the encoder for a configured geometry format.
func newGeometryEncoder(format string) (geometryEncoder, error) {
	switch strings.ToLower(format) {
	case "", config.GeometryFormatWKT:
		return encodeWKT, nil
	case config.GeometryFormatWKBHex:
		return encodeWKBHex, nil
	case config.GeometryFormatGeoJSON:
		return encodeGeoJSON, nil
	default:
		return nil, fmt.Errorf("unsupported geometry format '%s'", format)
	}
}

func encodeWKT(g geom.T) (string, error) {
	if g == nil {
		return "", nil
	}
	return wkt.Marshal(g)
}

// encodeWKBHex writes little-endian ISO WKB, the form PostGIS accepts as text.
func encodeWKBHex(g geom.T) (string, error) {
	if g == nil {
		return "", nil
	}
	return wkbhex.Encode(g, binary.LittleEndian)
}

func encodeGeoJSON(g geom.T) (string, error) {
	if g == nil {
		return "", nil
	}
	b, err := geojson.Marshal(g)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// cellValue converts a Value into a plain value for row-oriented sinks.
// Dates and binary values are rendered as text; null becomes nil.
func cellValue(v geo.Value) interface{} {
	switch v.Kind() {
	case geo.KindNull:
		return nil
	case geo.KindDate, geo.KindBytes:
		return v.String()
	default:
		return v.Interface()
	}
}

// cellString renders a Value for text-only sinks such as CSV.
func cellString(v geo.Value) string {
	if v.IsNull() {
		return ""
	}
	return v.String()
}

// tableHeaders returns the batch fields followed by the geometry column.
func tableHeaders(fields []string, geometryColumn string) []string {
	headers := make([]string, 0, len(fields)+1)
	headers = append(headers, fields...)
	return append(headers, geometryColumn)
}
