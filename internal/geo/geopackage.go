package geo

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/twpayne/go-geom"
	_ "modernc.org/sqlite"
)

var errInvalidGeoPackageGeometry = errors.New("invalid GeoPackage geometry blob")

type gpkgColumn struct {
	name     string
	declType string
}

// geoPackageSource pages through a feature table by primary key, one page per
// batch, so no cursor stays open between NextBatch calls.
type geoPackageSource struct {
	db       *sql.DB
	table    string
	key      string
	geomCol  string
	cols     []gpkgColumn
	names    []string
	pageSize int

	lastKey int64
	started bool
	page    []gpkgRow
	pos     int
	done    bool
}

type gpkgRow struct {
	key  int64
	geom []byte
	vals []interface{}
}

func openGeoPackageDB(path string) (*sql.DB, error) {
	// sqlite would create a missing file.
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA query_only = 1"); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func listGeoPackageLayers(db *sql.DB) ([]string, error) {
	rows, err := db.Query("SELECT table_name FROM gpkg_contents WHERE data_type = 'features' ORDER BY rowid")
	if err != nil {
		return nil, fmt.Errorf("not a GeoPackage: %w", err)
	}
	defer rows.Close()
	var layers []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		layers = append(layers, name)
	}
	return layers, rows.Err()
}

func geoPackageLayers(path string) ([]string, error) {
	db, err := openGeoPackageDB(path)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	return listGeoPackageLayers(db)
}

func openGeoPackage(path, layer string, pageSize int) (layerSource, error) {
	db, err := openGeoPackageDB(path)
	if err != nil {
		return nil, err
	}
	src, err := newGeoPackageSource(db, path, layer, pageSize)
	if err != nil {
		db.Close()
		return nil, err
	}
	return src, nil
}

func newGeoPackageSource(db *sql.DB, path, layer string, pageSize int) (*geoPackageSource, error) {
	layers, err := listGeoPackageLayers(db)
	if err != nil {
		return nil, err
	}
	table, err := chooseLayer(path, layers, layer)
	if err != nil {
		return nil, err
	}

	var geomCol string
	err = db.QueryRow("SELECT column_name FROM gpkg_geometry_columns WHERE table_name = ?", table).Scan(&geomCol)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("reading geometry column of '%s': %w", table, err)
	}

	rows, err := db.Query("SELECT name, type, pk FROM pragma_table_info(?) ORDER BY cid", table)
	if err != nil {
		return nil, fmt.Errorf("reading schema of '%s': %w", table, err)
	}
	defer rows.Close()

	src := &geoPackageSource{db: db, table: table, geomCol: geomCol, pageSize: pageSize}
	for rows.Next() {
		var name, declType string
		var pk int
		if err := rows.Scan(&name, &declType, &pk); err != nil {
			return nil, err
		}
		switch {
		case pk == 1 && strings.EqualFold(declType, "INTEGER"):
			src.key = name
		case strings.EqualFold(name, geomCol):
		default:
			src.cols = append(src.cols, gpkgColumn{name: name, declType: strings.ToUpper(declType)})
			src.names = append(src.names, name)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if src.key == "" {
		src.key = "rowid"
	}
	if src.pageSize <= 0 {
		src.pageSize = 1
	}
	return src, nil
}

func (s *geoPackageSource) name() string      { return s.table }
func (s *geoPackageSource) columns() []string { return s.names }

func (s *geoPackageSource) next() (feature, error) {
	if s.pos >= len(s.page) {
		if s.done {
			return feature{}, io.EOF
		}
		if err := s.fetchPage(); err != nil {
			return feature{}, err
		}
		if len(s.page) == 0 {
			return feature{}, io.EOF
		}
	}
	row := s.page[s.pos]
	s.pos++

	var g geom.T
	if len(row.geom) > 0 {
		var err error
		if g, err = decodeGeoPackageGeometry(row.geom); err != nil {
			return feature{}, fmt.Errorf("feature id %d: %w", row.key, err)
		}
	}
	attrs := make(map[string]Value, len(s.cols))
	for i, c := range s.cols {
		v, err := sqliteValue(c.declType, row.vals[i])
		if err != nil {
			return feature{}, fmt.Errorf("feature id %d, column '%s': %w", row.key, c.name, err)
		}
		attrs[c.name] = v
	}
	return feature{geometry: g, attrs: attrs}, nil
}

func (s *geoPackageSource) fetchPage() error {
	selectCols := make([]string, 0, len(s.cols)+2)
	selectCols = append(selectCols, quoteIdent(s.key))
	if s.geomCol != "" {
		selectCols = append(selectCols, quoteIdent(s.geomCol))
	} else {
		selectCols = append(selectCols, "NULL")
	}
	for _, c := range s.cols {
		selectCols = append(selectCols, quoteIdent(c.name))
	}
	// Keys may be zero or negative, so the first page has no lower bound.
	where, args := "", []interface{}{s.pageSize}
	if s.started {
		where = fmt.Sprintf(" WHERE %s > ?", quoteIdent(s.key))
		args = []interface{}{s.lastKey, s.pageSize}
	}
	query := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY %s LIMIT ?",
		strings.Join(selectCols, ", "), quoteIdent(s.table), where, quoteIdent(s.key))

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return fmt.Errorf("querying '%s': %w", s.table, err)
	}
	defer rows.Close()

	s.page = s.page[:0]
	s.pos = 0
	for rows.Next() {
		r := gpkgRow{vals: make([]interface{}, len(s.cols))}
		dest := make([]interface{}, 0, len(s.cols)+2)
		dest = append(dest, &r.key, &r.geom)
		for i := range r.vals {
			dest = append(dest, &r.vals[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return fmt.Errorf("scanning '%s': %w", s.table, err)
		}
		s.page = append(s.page, r)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating '%s': %w", s.table, err)
	}
	if len(s.page) < s.pageSize {
		s.done = true
	}
	if len(s.page) > 0 {
		s.lastKey = s.page[len(s.page)-1].key
		s.started = true
	}
	return nil
}

func (s *geoPackageSource) Close() error {
	return s.db.Close()
}

func quoteIdent(name string) string {
	if name == "rowid" {
		return name
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// decodeGeoPackageGeometry strips the GeoPackage binary header (magic, version,
// flags, srs id, optional envelope) and decodes the WKB body with its Z and M
// ordinates.
func decodeGeoPackageGeometry(b []byte) (geom.T, error) {
	if len(b) < 8 || b[0] != 'G' || b[1] != 'P' {
		return nil, errInvalidGeoPackageGeometry
	}
	flags := b[3]
	var envLen int
	switch (flags >> 1) & 0x07 {
	case 0:
		envLen = 0
	case 1:
		envLen = 32
	case 2, 3:
		envLen = 48
	case 4:
		envLen = 64
	default:
		return nil, fmt.Errorf("%w: envelope indicator %d", errInvalidGeoPackageGeometry, (flags>>1)&0x07)
	}
	start := 8 + envLen
	if len(b) < start {
		return nil, fmt.Errorf("%w: truncated header", errInvalidGeoPackageGeometry)
	}
	g, err := decodeWKB(b[start:])
	if err != nil {
		if flags&0x10 != 0 {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", errInvalidGeoPackageGeometry, err)
	}
	return g, nil
}

var sqliteTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000Z",
	"2006-01-02 15:04:05",
	time.DateOnly,
}

// sqliteValue converts a scanned column to a Value, using the declared column
// type to recover booleans and dates that SQLite stores as integers and text.
func sqliteValue(declType string, v interface{}) (Value, error) {
	switch x := v.(type) {
	case nil:
		return Null(), nil
	case int64:
		if declType == "BOOLEAN" {
			return Boolean(x != 0), nil
		}
		return Integer(x), nil
	case float64:
		return Float(x), nil
	case bool:
		return Boolean(x), nil
	case []byte:
		if strings.Contains(declType, "TEXT") {
			return Text(string(x)), nil
		}
		return Bytes(x), nil
	case time.Time:
		return Date(x), nil
	case string:
		if declType == "DATE" || declType == "DATETIME" {
			for _, layout := range sqliteTimeLayouts {
				if t, err := time.Parse(layout, x); err == nil {
					return Date(t), nil
				}
			}
			return Value{}, fmt.Errorf("invalid %s value '%s'", strings.ToLower(declType), x)
		}
		return Text(x), nil
	default:
		return Value{}, fmt.Errorf("unsupported column value type %T", v)
	}
}
