package export

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/rotblauer/stravad/types/polyline"
	"github.com/tidwall/gjson"
)

func testFeatures() []Feature {
	return []Feature{
		{
			ID: 9,
			Properties: map[string]any{
				"name":             "Morning Ride",
				"distance":         json.Number("12345.6"),
				"elapsed_time":     json.Number("3600"),
				"start_date_local": int64(1682926200),
			},
			Geometry: orb.LineString{{-114.0, 46.8}, {-114.1, 46.9}},
		},
		{
			ID: 10,
			Properties: map[string]any{
				"name":             "Evening Run",
				"distance":         json.Number("5000"),
				"elapsed_time":     json.Number("1500"),
				"start_date_local": int64(1682962200),
			},
			Geometry: orb.LineString{{-113.0, 46.0}, {-113.5, 45.5}, {-113.2, 45.9}},
		},
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{
		"json": FormatJSON, "GeoJSON": FormatGeoJSON, "shp.zip": FormatShapefile, "shapefile": FormatShapefile,
	} {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Errorf("%q: have %q %v want %q", in, got, err, want)
		}
	}
	if _, err := ParseFormat("kml"); err == nil {
		t.Error("expected error for kml")
	}
}

func TestWriteJSON(t *testing.T) {
	buf := bytes.Buffer{}
	if err := WriteJSON(&buf, testFeatures(), polyline.DefaultPrecision); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if strings.Index(out, `"9"`) > strings.Index(out, `"10"`) {
		t.Errorf("keys not in feature order: %s", out)
	}
	res := gjson.Parse(out)
	if res.Get("9.name").String() != "Morning Ride" {
		t.Errorf("have %s", res.Get("9").Raw)
	}
	if res.Get("10.distance").Float() != 5000 {
		t.Errorf("have %s", res.Get("10").Raw)
	}
	ls, err := polyline.Decode(res.Get("10.polyline").String(), polyline.DefaultPrecision)
	if err != nil {
		t.Fatal(err)
	}
	if len(ls) != 3 {
		t.Errorf("have %d points want 3", len(ls))
	}
	if strings.Contains(out, "LINESTRING") {
		t.Error("WKT leaked into JSON export")
	}
}

func TestWriteJSON_Empty(t *testing.T) {
	buf := bytes.Buffer{}
	if err := WriteJSON(&buf, nil, polyline.DefaultPrecision); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "{}" {
		t.Errorf("have %q", buf.String())
	}
}

func TestWriteGeoJSON(t *testing.T) {
	buf := bytes.Buffer{}
	if err := WriteGeoJSON(&buf, testFeatures()); err != nil {
		t.Fatal(err)
	}
	res := gjson.ParseBytes(buf.Bytes())
	if res.Get("type").String() != "FeatureCollection" {
		t.Fatalf("have %s", res.Get("type").Raw)
	}
	if n := res.Get("features.#").Int(); n != 2 {
		t.Fatalf("have %d features", n)
	}
	f := res.Get("features.1")
	if f.Get("geometry.type").String() != "LineString" {
		t.Errorf("have geometry %s", f.Get("geometry").Raw)
	}
	if f.Get("properties.id").Int() != 10 || f.Get("id").Int() != 10 {
		t.Errorf("have ids %s %s", f.Get("properties.id").Raw, f.Get("id").Raw)
	}
	if f.Get("properties.start_date_local").Int() != 1682962200 {
		t.Errorf("have start_date_local %s", f.Get("properties.start_date_local").Raw)
	}
	bbox := f.Get("bbox").Array()
	if len(bbox) != 4 || bbox[0].Float() != -113.5 || bbox[1].Float() != 45.5 || bbox[2].Float() != -113.0 || bbox[3].Float() != 46.0 {
		t.Errorf("have bbox %s", f.Get("bbox").Raw)
	}
}

func TestDBFFieldNames(t *testing.T) {
	got := DBFFieldNames([]string{"id", "total_elevation_gain", "start_date", "start_date_local", "start_date_local"})
	want := []string{"id", "total_elev", "start_date", "start_da_1", "start_da_2"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("%d: have %q want %q", i, got[i], want[i])
		}
		if len(got[i]) > 10 {
			t.Errorf("%q longer than 10", got[i])
		}
	}
}

func TestDBFValue_TruncatesOnRuneBoundary(t *testing.T) {
	f := shp.StringField("name", 11)
	got := dbfValue(f, strings.Repeat("é", 200))
	if len(got) != 11 {
		t.Errorf("have %d bytes want 11", len(got))
	}
	if !utf8.ValidString(got) {
		t.Errorf("split a rune: %q", got)
	}
	if want := strings.Repeat("é", 5) + " "; got != want {
		t.Errorf("have %q want %q", got, want)
	}
}

func TestWriteShapefileZip(t *testing.T) {
	columns := []string{"name", "distance", "elapsed_time", "start_date_local"}
	buf := bytes.Buffer{}
	if err := WriteShapefileZip(&buf, "activities", testFeatures(), columns); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "activities.shp.zip")
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}

	zr, err := shp.OpenZip(path)
	if err != nil {
		t.Fatal(err)
	}
	defer zr.Close()

	fields := zr.Fields()
	wantFields := []string{"id", "name", "distance", "elapsed_ti", "start_date"}
	if len(fields) != len(wantFields) {
		t.Fatalf("have %d fields want %d", len(fields), len(wantFields))
	}
	for i, f := range fields {
		if f.String() != wantFields[i] {
			t.Errorf("field %d: have %q want %q", i, f.String(), wantFields[i])
		}
	}

	rows := 0
	for zr.Next() {
		n, shape := zr.Shape()
		line, ok := shape.(*shp.PolyLine)
		if !ok {
			t.Fatalf("have shape %T", shape)
		}
		want := testFeatures()[n]
		if int(line.NumPoints) != len(want.Geometry) {
			t.Errorf("row %d: have %d points want %d", n, line.NumPoints, len(want.Geometry))
		}
		if line.Points[0].X != want.Geometry[0].Lon() || line.Points[0].Y != want.Geometry[0].Lat() {
			t.Errorf("row %d: have first point %v", n, line.Points[0])
		}
		if got := zr.Attribute(0); got != want.ID.String() {
			t.Errorf("row %d: have id %q", n, got)
		}
		if got := zr.Attribute(1); got != want.Properties["name"] {
			t.Errorf("row %d: have name %q", n, got)
		}
		rows++
	}
	if err := zr.Err(); err != nil {
		t.Fatal(err)
	}
	if rows != 2 {
		t.Errorf("have %d rows want 2", rows)
	}
}
