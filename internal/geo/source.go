package geo

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"geo-ingest/internal/logging"

	"github.com/twpayne/go-geom"
)

// Format names a supported on-disk dataset layout.
type Format string

const (
	FormatShapefile    Format = "shapefile"
	FormatShapefileZip Format = "shapefile-zip"
	FormatGeoPackage   Format = "geopackage"
	FormatGeoJSON      Format = "geojson"
	FormatFileGDB      Format = "filegdb"
)

// feature is a raw feature as a driver yields it, keyed by source column.
type feature struct {
	geometry geom.T
	attrs    map[string]Value
}

// layerSource is a forward-only cursor over the features of one layer.
type layerSource interface {
	// name of the layer being read.
	name() string
	// columns is the fixed attribute schema, or nil when the format has none.
	columns() []string
	// next returns the next feature, or io.EOF once the layer is exhausted.
	next() (feature, error)
	Close() error
}

// openSourceFunc allows tests to substitute the driver layer.
var openSourceFunc = openSource

func openSource(path string, format Format, layer string, pageSize int) (layerSource, error) {
	switch format {
	case FormatShapefile:
		return openShapefile(path, layer)
	case FormatShapefileZip:
		return openShapefileZip(path, layer)
	case FormatGeoPackage:
		return openGeoPackage(path, layer, pageSize)
	case FormatGeoJSON:
		return openGeoJSON(path, layer)
	case FormatFileGDB:
		return openFileGDB(path, layer)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

// DetectFormat classifies path by its extension or, for directories, by the
// shapefiles it contains.
func DetectFormat(path string) (Format, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	ext := strings.ToLower(filepath.Ext(path))
	if info.IsDir() {
		if ext == ".gdb" {
			return FormatFileGDB, nil
		}
		shps, err := shapefilesInDir(path)
		if err != nil {
			return "", err
		}
		if len(shps) == 0 {
			return "", fmt.Errorf("%w: directory contains no .shp files", ErrUnsupportedFormat)
		}
		return FormatShapefile, nil
	}
	switch ext {
	case ".shp":
		return FormatShapefile, nil
	case ".zip":
		return FormatShapefileZip, nil
	case ".gpkg":
		return FormatGeoPackage, nil
	case ".geojson", ".json":
		return FormatGeoJSON, nil
	default:
		return "", fmt.Errorf("%w: unrecognised extension '%s'", ErrUnsupportedFormat, ext)
	}
}

// Layers lists the layer names of the dataset at path in storage order.
func Layers(path string) ([]string, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, &DatasetOpenError{Path: path, Err: err}
	}
	var layers []string
	switch format {
	case FormatShapefile:
		layers, err = shapefileLayers(path)
	case FormatShapefileZip:
		layers, err = shapefileZipLayers(path)
	case FormatGeoPackage:
		layers, err = geoPackageLayers(path)
	case FormatGeoJSON:
		layers = []string{layerNameFromPath(path)}
	case FormatFileGDB:
		layers, err = fileGDBLayers(path)
	}
	if err != nil {
		return nil, &DatasetOpenError{Path: path, Err: err}
	}
	return layers, nil
}

// chooseLayer applies the layer selection rule: the requested name when given,
// the only layer when there is one, otherwise the first with a warning.
func chooseLayer(path string, available []string, requested string) (string, error) {
	if len(available) == 0 {
		return "", fmt.Errorf("%w: dataset has no feature layers", ErrLayerNotFound)
	}
	if requested != "" {
		for _, l := range available {
			if l == requested {
				return l, nil
			}
		}
		for _, l := range available {
			if strings.EqualFold(l, requested) {
				return l, nil
			}
		}
		return "", fmt.Errorf("%w: '%s' (available: %s)", ErrLayerNotFound, requested, strings.Join(available, ", "))
	}
	if len(available) > 1 {
		logging.Logf(logging.Warning, "Dataset '%s' has %d layers and none was requested; reading '%s'", path, len(available), available[0])
	}
	return available[0], nil
}

func shapefilesInDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".shp") {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}

func layerNameFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
