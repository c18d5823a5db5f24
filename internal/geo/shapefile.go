package geo

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jonas-p/go-shp"
	"github.com/twpayne/go-geom"
)

type shapefileSource struct {
	layer   string
	reader  shp.SequentialReader
	tap     *rowTap
	fields  []shp.Field
	names   []string
	offsets []int
	closers []io.Closer
}

// rowTap keeps the last DBF record read through it. go-shp trims both ends of
// every attribute, so character fields are cut from this copy instead.
type rowTap struct {
	io.ReadCloser
	size int
	row  []byte
}

func (t *rowTap) Read(p []byte) (int, error) {
	n, err := t.ReadCloser.Read(p)
	if t.size > 0 && n > 0 {
		t.row = append(t.row, p[:n]...)
		if over := len(t.row) - t.size; over > 0 {
			copy(t.row, t.row[over:])
			t.row = t.row[:t.size]
		}
	}
	return n, err
}

func shapefileLayers(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{layerNameFromPath(path)}, nil
	}
	files, err := shapefilesInDir(path)
	if err != nil {
		return nil, err
	}
	layers := make([]string, len(files))
	for i, f := range files {
		layers[i] = layerNameFromPath(f)
	}
	return layers, nil
}

func openShapefile(path, layer string) (layerSource, error) {
	layers, err := shapefileLayers(path)
	if err != nil {
		return nil, err
	}
	chosen, err := chooseLayer(path, layers, layer)
	if err != nil {
		return nil, err
	}
	shpPath := path
	if info, _ := os.Stat(path); info != nil && info.IsDir() {
		files, _ := shapefilesInDir(path)
		for _, f := range files {
			if layerNameFromPath(f) == chosen {
				shpPath = filepath.Join(path, f)
				break
			}
		}
	}

	dbfPath, err := siblingWithExt(shpPath, ".dbf")
	if err != nil {
		return nil, err
	}
	shpFile, err := os.Open(shpPath)
	if err != nil {
		return nil, err
	}
	dbfFile, err := os.Open(dbfPath)
	if err != nil {
		shpFile.Close()
		return nil, err
	}
	return newShapefileSource(chosen, shpFile, dbfFile)
}

func shapefileZipLayers(path string) ([]string, error) {
	z, err := zip.OpenReader(path)
	if err != nil {
		return nil, err
	}
	defer z.Close()
	var layers []string
	for _, f := range z.File {
		if strings.EqualFold(filepath.Ext(f.Name), ".shp") {
			layers = append(layers, layerNameFromPath(f.Name))
		}
	}
	sort.Strings(layers)
	return layers, nil
}

func openShapefileZip(path, layer string) (layerSource, error) {
	layers, err := shapefileZipLayers(path)
	if err != nil {
		return nil, err
	}
	chosen, err := chooseLayer(path, layers, layer)
	if err != nil {
		return nil, err
	}
	z, err := zip.OpenReader(path)
	if err != nil {
		return nil, err
	}
	var shpEntry, dbfEntry *zip.File
	for _, f := range z.File {
		if layerNameFromPath(f.Name) != chosen {
			continue
		}
		switch strings.ToLower(filepath.Ext(f.Name)) {
		case ".shp":
			shpEntry = f
		case ".dbf":
			dbfEntry = f
		}
	}
	if shpEntry == nil || dbfEntry == nil {
		z.Close()
		return nil, fmt.Errorf("archive is missing the .shp or .dbf member for layer '%s'", chosen)
	}
	shpRC, err := shpEntry.Open()
	if err != nil {
		z.Close()
		return nil, err
	}
	dbfRC, err := dbfEntry.Open()
	if err != nil {
		shpRC.Close()
		z.Close()
		return nil, err
	}
	return newShapefileSource(chosen, shpRC, dbfRC, z)
}

func newShapefileSource(layer string, shpRC, dbfRC io.ReadCloser, extra ...io.Closer) (layerSource, error) {
	tap := &rowTap{ReadCloser: dbfRC}
	sr := shp.SequentialReaderFromExt(shpRC, tap)
	src := &shapefileSource{
		layer:   layer,
		reader:  sr,
		tap:     tap,
		closers: extra,
	}
	if err := sr.Err(); err != nil {
		src.Close()
		return nil, fmt.Errorf("invalid shapefile headers: %w", err)
	}
	src.fields = sr.Fields()
	src.names = make([]string, len(src.fields))
	src.offsets = make([]int, len(src.fields))
	pos := 1 // deletion flag
	for i, f := range src.fields {
		src.names[i] = dbfFieldName(f)
		src.offsets[i] = pos
		pos += int(f.Size)
	}
	tap.size = pos
	return src, nil
}

func (s *shapefileSource) name() string      { return s.layer }
func (s *shapefileSource) columns() []string { return s.names }

func (s *shapefileSource) next() (feature, error) {
	if !s.reader.Next() {
		if err := s.reader.Err(); err != nil && !errors.Is(err, io.EOF) {
			return feature{}, err
		}
		return feature{}, io.EOF
	}
	_, shape := s.reader.Shape()
	g, err := shapeToGeometry(shape)
	if err != nil {
		return feature{}, err
	}
	attrs := make(map[string]Value, len(s.fields))
	for i, f := range s.fields {
		raw := s.reader.Attribute(i)
		if f.Fieldtype == 'C' && len(s.tap.row) == s.tap.size {
			raw = string(s.tap.row[s.offsets[i] : s.offsets[i]+int(f.Size)])
		}
		v, err := parseDBFValue(f, raw)
		if err != nil {
			return feature{}, fmt.Errorf("column '%s': %w", s.names[i], err)
		}
		attrs[s.names[i]] = v
	}
	return feature{geometry: g, attrs: attrs}, nil
}

func (s *shapefileSource) Close() error {
	var firstErr error
	if s.reader != nil {
		firstErr = s.reader.Close()
	}
	for _, c := range s.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func siblingWithExt(shpPath, ext string) (string, error) {
	base := strings.TrimSuffix(shpPath, filepath.Ext(shpPath))
	for _, candidate := range []string{base + ext, base + strings.ToUpper(ext)} {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("shapefile '%s' has no companion %s file", shpPath, ext)
}

func dbfFieldName(f shp.Field) string {
	return strings.TrimRight(string(f.Name[:]), "\x00 ")
}

// parseDBFValue converts a raw fixed-width DBF cell to a typed Value. Blank
// cells are null for every field type. Character cells are padded on the
// right only, so their leading spaces are kept.
func parseDBFValue(f shp.Field, raw string) (Value, error) {
	text := strings.TrimRight(raw, " \x00")
	if text == "" {
		return Null(), nil
	}
	if f.Fieldtype == 'C' {
		return Text(text), nil
	}
	s := strings.TrimLeft(text, " ")
	switch f.Fieldtype {
	case 'N', 'F':
		if strings.Trim(s, "*") == "" {
			return Null(), nil
		}
		if f.Fieldtype == 'N' && f.Precision == 0 {
			if i, err := strconv.ParseInt(s, 10, 64); err == nil {
				return Integer(i), nil
			}
		}
		fl, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Value{}, fmt.Errorf("invalid numeric value '%s'", s)
		}
		return Float(fl), nil
	case 'D':
		if s == "00000000" {
			return Null(), nil
		}
		t, err := time.Parse("20060102", s)
		if err != nil {
			return Value{}, fmt.Errorf("invalid date value '%s'", s)
		}
		return Date(t), nil
	case 'L':
		switch s {
		case "T", "t", "Y", "y":
			return Boolean(true), nil
		case "F", "f", "N", "n":
			return Boolean(false), nil
		case "?":
			return Null(), nil
		default:
			return Value{}, fmt.Errorf("invalid logical value '%s'", s)
		}
	default:
		return Text(s), nil
	}
}

// shpNoData is the shapefile threshold below which a measure means "no data".
const shpNoData = -1e38

// shapeToGeometry maps a shapefile record to go-geom. Z shapes keep Z, plus M
// when any measure is set; M shapes keep M. Null shapes map to a nil geometry.
func shapeToGeometry(s shp.Shape) (geom.T, error) {
	switch g := s.(type) {
	case nil, *shp.Null:
		return nil, nil
	case *shp.Point:
		return geom.NewPointFlat(geom.XY, []float64{g.X, g.Y}), nil
	case *shp.PointZ:
		if g.M > shpNoData {
			return geom.NewPointFlat(geom.XYZM, []float64{g.X, g.Y, g.Z, g.M}), nil
		}
		return geom.NewPointFlat(geom.XYZ, []float64{g.X, g.Y, g.Z}), nil
	case *shp.PointM:
		return geom.NewPointFlat(geom.XYM, []float64{g.X, g.Y, g.M}), nil
	case *shp.MultiPoint:
		return multiPoint(geom.XY, g.Points, nil, nil)
	case *shp.MultiPointZ:
		return multiPoint(zLayout(g.MArray), g.Points, g.ZArray, g.MArray)
	case *shp.MultiPointM:
		return multiPoint(geom.XYM, g.Points, nil, g.MArray)
	case *shp.PolyLine:
		return lineGeometry(geom.XY, g.Parts, g.Points, nil, nil)
	case *shp.PolyLineZ:
		return lineGeometry(zLayout(g.MArray), g.Parts, g.Points, g.ZArray, g.MArray)
	case *shp.PolyLineM:
		return lineGeometry(geom.XYM, g.Parts, g.Points, nil, g.MArray)
	case *shp.Polygon:
		return polygonGeometry(geom.XY, g.Parts, g.Points, nil, nil)
	case *shp.PolygonZ:
		return polygonGeometry(zLayout(g.MArray), g.Parts, g.Points, g.ZArray, g.MArray)
	case *shp.PolygonM:
		return polygonGeometry(geom.XYM, g.Parts, g.Points, nil, g.MArray)
	default:
		return nil, fmt.Errorf("unsupported shape type %T", s)
	}
}

// zLayout drops the M dimension of a Z shape when every measure is no-data.
func zLayout(m []float64) geom.Layout {
	for _, v := range m {
		if v > shpNoData {
			return geom.XYZM
		}
	}
	return geom.XYZ
}

// ordinates interleaves the XY points with the Z and M arrays the layout uses.
func ordinates(layout geom.Layout, pts []shp.Point, z, m []float64) ([]float64, error) {
	hasZ := layout == geom.XYZ || layout == geom.XYZM
	hasM := layout == geom.XYM || layout == geom.XYZM
	if (hasZ && len(z) != len(pts)) || (hasM && len(m) != len(pts)) {
		return nil, fmt.Errorf("corrupt shape: %d points with %d z and %d m values", len(pts), len(z), len(m))
	}
	flat := make([]float64, 0, len(pts)*layout.Stride())
	for i, p := range pts {
		flat = append(flat, p.X, p.Y)
		if hasZ {
			flat = append(flat, z[i])
		}
		if hasM {
			flat = append(flat, m[i])
		}
	}
	return flat, nil
}

func multiPoint(layout geom.Layout, pts []shp.Point, z, m []float64) (geom.T, error) {
	flat, err := ordinates(layout, pts, z, m)
	if err != nil {
		return nil, err
	}
	return geom.NewMultiPointFlat(layout, flat), nil
}

// splitParts cuts the flat coordinates at the part start indices.
func splitParts(layout geom.Layout, parts []int32, flat []float64) ([][]float64, error) {
	stride := layout.Stride()
	n := int32(len(flat) / stride)
	out := make([][]float64, 0, len(parts))
	for i, start := range parts {
		end := n
		if i+1 < len(parts) {
			end = parts[i+1]
		}
		if start < 0 || start > end || end > n {
			return nil, fmt.Errorf("corrupt part index %d (points %d)", start, n)
		}
		out = append(out, flat[int(start)*stride:int(end)*stride])
	}
	return out, nil
}

func lineGeometry(layout geom.Layout, parts []int32, pts []shp.Point, z, m []float64) (geom.T, error) {
	flat, err := ordinates(layout, pts, z, m)
	if err != nil {
		return nil, err
	}
	split, err := splitParts(layout, parts, flat)
	if err != nil {
		return nil, err
	}
	if len(split) == 1 {
		return geom.NewLineStringFlat(layout, split[0]), nil
	}
	var all []float64
	ends := make([]int, 0, len(split))
	for _, part := range split {
		all = append(all, part...)
		ends = append(ends, len(all))
	}
	return geom.NewMultiLineStringFlat(layout, all, ends), nil
}

// polygonGeometry groups rings into polygons. Clockwise rings are shells and
// counter-clockwise rings are holes of the preceding shell.
func polygonGeometry(layout geom.Layout, parts []int32, pts []shp.Point, z, m []float64) (geom.T, error) {
	flat, err := ordinates(layout, pts, z, m)
	if err != nil {
		return nil, err
	}
	split, err := splitParts(layout, parts, flat)
	if err != nil {
		return nil, err
	}
	stride := layout.Stride()
	var polys [][][]float64
	for _, ring := range split {
		if len(polys) == 0 || signedArea(ring, stride) < 0 {
			polys = append(polys, [][]float64{ring})
			continue
		}
		last := len(polys) - 1
		polys[last] = append(polys[last], ring)
	}

	var all []float64
	endss := make([][]int, 0, len(polys))
	for _, poly := range polys {
		ends := make([]int, 0, len(poly))
		for _, ring := range poly {
			all = append(all, ring...)
			ends = append(ends, len(all))
		}
		endss = append(endss, ends)
	}
	if len(polys) == 1 {
		return geom.NewPolygonFlat(layout, all, endss[0]), nil
	}
	return geom.NewMultiPolygonFlat(layout, all, endss), nil
}

// signedArea is twice the planar area of a ring; negative when clockwise.
func signedArea(ring []float64, stride int) float64 {
	var sum float64
	for i := 0; i+stride < len(ring); i += stride {
		sum += ring[i]*ring[i+stride+1] - ring[i+stride]*ring[i+1]
	}
	return sum
}
