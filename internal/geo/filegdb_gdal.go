//go:build gdal

package geo

import (
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/airbusgeo/godal"
	"github.com/twpayne/go-geom"
)

var registerGDAL sync.Once

// ogrSource reads one layer through GDAL/OGR. FileGDB has no random access by
// key, so the OGR cursor stays open for the whole session.
type ogrSource struct {
	ds     *godal.Dataset
	layer  godal.Layer
	table  string
	names  []string
	peeked *godal.Feature
}

func openOGRDataset(path string) (*godal.Dataset, error) {
	registerGDAL.Do(godal.RegisterAll)
	return godal.Open(path, godal.VectorOnly())
}

func ogrLayerNames(ds *godal.Dataset) []string {
	var names []string
	for _, l := range ds.Layers() {
		names = append(names, l.Name())
	}
	return names
}

func fileGDBLayers(path string) ([]string, error) {
	ds, err := openOGRDataset(path)
	if err != nil {
		return nil, err
	}
	defer ds.Close()
	return ogrLayerNames(ds), nil
}

func openFileGDB(path, layer string) (layerSource, error) {
	ds, err := openOGRDataset(path)
	if err != nil {
		return nil, err
	}
	src, err := newOGRSource(ds, path, layer)
	if err != nil {
		ds.Close()
		return nil, err
	}
	return src, nil
}

func newOGRSource(ds *godal.Dataset, path, requested string) (*ogrSource, error) {
	chosen, err := chooseLayer(path, ogrLayerNames(ds), requested)
	if err != nil {
		return nil, err
	}
	src := &ogrSource{ds: ds, table: chosen}
	for _, l := range ds.Layers() {
		if l.Name() == chosen {
			src.layer = l
			break
		}
	}
	src.layer.ResetReading()

	// The attribute schema is taken from the first feature.
	if f := src.layer.NextFeature(); f != nil {
		src.peeked = f
		for name := range f.Fields() {
			src.names = append(src.names, name)
		}
		sort.Strings(src.names)
	}
	return src, nil
}

func (s *ogrSource) name() string      { return s.table }
func (s *ogrSource) columns() []string { return s.names }

func (s *ogrSource) next() (feature, error) {
	f := s.peeked
	s.peeked = nil
	if f == nil {
		f = s.layer.NextFeature()
	}
	if f == nil {
		return feature{}, io.EOF
	}
	defer f.Close()

	var g geom.T
	if og := f.Geometry(); og != nil {
		b, err := og.WKB()
		og.Close()
		if err != nil {
			return feature{}, fmt.Errorf("exporting geometry: %w", err)
		}
		if g, err = decodeWKB(b); err != nil {
			return feature{}, fmt.Errorf("decoding geometry: %w", err)
		}
	}

	fields := f.Fields()
	attrs := make(map[string]Value, len(fields))
	for name, fld := range fields {
		attrs[name] = ogrValue(fld)
	}
	return feature{geometry: g, attrs: attrs}, nil
}

func (s *ogrSource) Close() error {
	if s.peeked != nil {
		s.peeked.Close()
		s.peeked = nil
	}
	return s.ds.Close()
}

// ogrValue maps an OGR field. List types are rendered as text.
func ogrValue(fld godal.Field) Value {
	if !fld.IsSet() {
		return Null()
	}
	switch fld.Type() {
	case godal.FTInt, godal.FTInt64:
		return Integer(fld.Int())
	case godal.FTReal:
		return Float(fld.Float())
	case godal.FTString:
		return Text(fld.String())
	case godal.FTDate, godal.FTDateTime, godal.FTTime:
		if t := fld.DateTime(); t != nil {
			return Date(*t)
		}
		return Null()
	case godal.FTBinary:
		return Bytes(fld.Bytes())
	default:
		return Text(fld.String())
	}
}
