//go:build !gdal

package geo

import (
	"fmt"
)

var errFileGDBUnavailable = fmt.Errorf("%w: FileGDB support requires a build with the gdal tag", ErrUnsupportedFormat)

func fileGDBLayers(path string) ([]string, error) {
	return nil, errFileGDBUnavailable
}

func openFileGDB(path, layer string) (layerSource, error) {
	return nil, errFileGDBUnavailable
}
