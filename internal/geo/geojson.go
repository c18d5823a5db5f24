package geo

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
)

// geoJSONSource streams the "features" array of a FeatureCollection with a
// token decoder, so the document is never held in memory as a whole.
type geoJSONSource struct {
	layer string
	file  *os.File
	dec   *json.Decoder
	done  bool
}

type rawFeature struct {
	Geometry   json.RawMessage        `json:"geometry"`
	Properties map[string]interface{} `json:"properties"`
}

func openGeoJSON(path, layer string) (layerSource, error) {
	name := layerNameFromPath(path)
	if _, err := chooseLayer(path, []string{name}, layer); err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bufio.NewReader(f))
	dec.UseNumber()
	src := &geoJSONSource{layer: name, file: f, dec: dec}
	if err := src.seekFeatures(); err != nil {
		f.Close()
		return nil, err
	}
	return src, nil
}

// seekFeatures advances the decoder to the first element of "features".
func (s *geoJSONSource) seekFeatures() error {
	if err := expectDelim(s.dec, '{'); err != nil {
		return fmt.Errorf("not a GeoJSON FeatureCollection: %w", err)
	}
	for s.dec.More() {
		tok, err := s.dec.Token()
		if err != nil {
			return err
		}
		key, _ := tok.(string)
		if key == "features" {
			if err := expectDelim(s.dec, '['); err != nil {
				return fmt.Errorf("\"features\" is not an array: %w", err)
			}
			return nil
		}
		var skip json.RawMessage
		if err := s.dec.Decode(&skip); err != nil {
			return err
		}
		if key == "type" && !bytes.Equal(bytes.TrimSpace(skip), []byte(`"FeatureCollection"`)) {
			return fmt.Errorf("unsupported GeoJSON type %s", skip)
		}
	}
	return fmt.Errorf("GeoJSON document has no \"features\" member")
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("expected '%v', found %v", want, tok)
	}
	return nil
}

func (s *geoJSONSource) name() string      { return s.layer }
func (s *geoJSONSource) columns() []string { return nil }

func (s *geoJSONSource) next() (feature, error) {
	if s.done || !s.dec.More() {
		s.done = true
		return feature{}, io.EOF
	}
	var raw rawFeature
	if err := s.dec.Decode(&raw); err != nil {
		return feature{}, fmt.Errorf("decoding feature: %w", err)
	}

	// The layout follows the coordinate arity, so a third ordinate is kept as Z.
	var g geom.T
	if trimmed := bytes.TrimSpace(raw.Geometry); len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
		if err := geojson.Unmarshal(trimmed, &g); err != nil {
			return feature{}, fmt.Errorf("decoding geometry: %w", err)
		}
	}

	attrs := make(map[string]Value, len(raw.Properties))
	for k, v := range raw.Properties {
		val, err := jsonValue(v)
		if err != nil {
			return feature{}, fmt.Errorf("property '%s': %w", k, err)
		}
		attrs[k] = val
	}
	return feature{geometry: g, attrs: attrs}, nil
}

func (s *geoJSONSource) Close() error {
	return s.file.Close()
}

// jsonValue maps a decoded property. Integral numbers become Integer, other
// numbers Float; objects and arrays are kept as their JSON text.
func jsonValue(v interface{}) (Value, error) {
	switch x := v.(type) {
	case nil:
		return Null(), nil
	case string:
		return Text(x), nil
	case bool:
		return Boolean(x), nil
	case json.Number:
		if !strings.ContainsAny(x.String(), ".eE") {
			if i, err := x.Int64(); err == nil {
				return Integer(i), nil
			}
		}
		f, err := x.Float64()
		if err != nil {
			return Value{}, err
		}
		return Float(f), nil
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return Value{}, err
		}
		return Text(string(b)), nil
	}
}
