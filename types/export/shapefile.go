package export

import (
	"archive/zip"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/jonas-p/go-shp"
)

// wgs84PRJ is the ESRI WKT for EPSG:4326.
const wgs84PRJ = `GEOGCS["GCS_WGS_1984",DATUM["D_WGS_1984",SPHEROID["WGS_1984",6378137.0,298.257223563]],PRIMEM["Greenwich",0.0],UNIT["Degree",0.0174532925199433]]`

// dBase field names are limited to 10 bytes.
const dbfNameLen = 10

// DBFFieldNames truncates column names to dBase length, keeping them unique.
// The result is parallel to columns.
func DBFFieldNames(columns []string) []string {
	names := make([]string, len(columns))
	seen := map[string]bool{}
	for i, c := range columns {
		name := c
		if len(name) > dbfNameLen {
			name = name[:dbfNameLen]
		}
		for n := 1; seen[name]; n++ {
			suffix := "_" + strconv.Itoa(n)
			base := c
			if len(base) > dbfNameLen-len(suffix) {
				base = base[:dbfNameLen-len(suffix)]
			}
			name = base + suffix
		}
		seen[name] = true
		names[i] = name
	}
	return names
}

// WriteShapefileZip writes a zip archive holding <basename>.shp, .shx, .dbf and .prj,
// one polyline shape per feature. Columns name the attribute table, in order,
// after the leading id column.
func WriteShapefileZip(w io.Writer, basename string, features []Feature, columns []string) error {
	dir, err := os.MkdirTemp("", "stravad-shp")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)

	base := filepath.Join(dir, basename)
	if err := writeShapefile(base, features, columns); err != nil {
		return err
	}
	if err := os.WriteFile(base+".prj", []byte(wgs84PRJ), 0644); err != nil {
		return err
	}

	// go-shp v0.1.1 names the table <base>dbf, without the dot.
	dbf := base + ".dbf"
	if _, err := os.Stat(dbf); err != nil {
		dbf = base + "dbf"
	}

	zw := zip.NewWriter(w)
	for _, f := range []struct{ path, name string }{
		{base + ".shp", basename + ".shp"},
		{base + ".shx", basename + ".shx"},
		{dbf, basename + ".dbf"},
		{base + ".prj", basename + ".prj"},
	} {
		if err := addZipFile(zw, f.path, f.name); err != nil {
			return err
		}
	}
	return zw.Close()
}

func addZipFile(zw *zip.Writer, path, name string) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()
	dst, err := zw.Create(name)
	if err != nil {
		return err
	}
	_, err = io.Copy(dst, src)
	return err
}

func writeShapefile(base string, features []Feature, columns []string) error {
	sw, err := shp.Create(base+".shp", shp.POLYLINE)
	if err != nil {
		return fmt.Errorf("create shapefile: %w", err)
	}
	closed := false
	defer func() {
		if !closed {
			sw.Close()
		}
	}()

	columns = append([]string{"id"}, columns...)
	names := DBFFieldNames(columns)
	fields := make([]shp.Field, len(columns))
	for i, c := range columns {
		fields[i] = dbfField(names[i], columnValues(features, c))
	}
	if err := sw.SetFields(fields); err != nil {
		return err
	}

	for _, f := range features {
		points := make([]shp.Point, len(f.Geometry))
		for i, pt := range f.Geometry {
			points[i] = shp.Point{X: pt.Lon(), Y: pt.Lat()}
		}
		row := int(sw.Write(shp.NewPolyLine([][]shp.Point{points})))
		for i, c := range columns {
			var v any = int64(f.ID)
			if c != "id" {
				v = f.Properties[c]
			}
			if err := sw.WriteAttribute(row, i, dbfValue(fields[i], v)); err != nil {
				return fmt.Errorf("write %s for %s: %w", c, f.ID, err)
			}
		}
	}
	sw.Close()
	closed = true
	return nil
}

func columnValues(features []Feature, column string) []any {
	values := make([]any, 0, len(features))
	for _, f := range features {
		if column == "id" {
			values = append(values, int64(f.ID))
			continue
		}
		values = append(values, f.Properties[column])
	}
	return values
}

// dbfField picks a field type from the column's values:
// integers are N, other numbers F, everything else C.
func dbfField(name string, values []any) shp.Field {
	numeric, integral := false, true
	for _, v := range values {
		switch x := v.(type) {
		case nil:
			continue
		case int, int64:
			numeric = true
		case float64:
			numeric = true
			integral = integral && x == math.Trunc(x)
		case json.Number:
			if _, err := x.Int64(); err != nil {
				if _, err := x.Float64(); err != nil {
					return stringField(name, values)
				}
				integral = false
			}
			numeric = true
		case bool:
			numeric = true
		default:
			return stringField(name, values)
		}
	}
	if !numeric {
		return stringField(name, values)
	}
	if integral {
		return shp.NumberField(name, 18)
	}
	return shp.FloatField(name, 24, 6)
}

func stringField(name string, values []any) shp.Field {
	size := 1
	for _, v := range values {
		if s := stringValue(v); len(s) > size {
			size = len(s)
		}
	}
	if size > 254 {
		size = 254
	}
	return shp.StringField(name, uint8(size))
}

func stringValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	}
	b, _ := json.Marshal(v)
	return string(b)
}

// dbfValue formats v as a blank-padded dBase cell for field f:
// numbers right-aligned, text left-aligned. Null values are blank.
func dbfValue(f shp.Field, v any) string {
	var s string
	switch f.Fieldtype {
	case 'N':
		if n, ok := toFloat(v); ok {
			s = strconv.FormatInt(int64(n), 10)
		}
	case 'F':
		if n, ok := toFloat(v); ok {
			s = strconv.FormatFloat(n, 'f', int(f.Precision), 64)
		}
	default:
		s = stringValue(v)
	}
	size := int(f.Size)
	if len(s) > size {
		// Cut on a rune boundary so the cell stays valid UTF-8.
		cut := size
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut]
	}
	pad := strings.Repeat(" ", size-len(s))
	if f.Fieldtype == 'C' {
		return s + pad
	}
	return pad + s
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int64:
		return float64(x), true
	case int:
		return float64(x), true
	case float64:
		return x, true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	case json.Number:
		n, err := x.Float64()
		return n, err == nil
	}
	return 0, false
}
