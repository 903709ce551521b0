// Package export encodes projected activities for the web map front-end.
package export

import (
	"fmt"
	"strings"

	"github.com/paulmach/orb"
	"github.com/rotblauer/stravad/conceptual"
)

type Format string

const (
	FormatJSON      Format = "json"
	FormatGeoJSON   Format = "geojson"
	FormatShapefile Format = "shapefile"
)

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatJSON, FormatGeoJSON, FormatShapefile:
		return f, nil
	case "shp", "shp.zip":
		return FormatShapefile, nil
	}
	return "", fmt.Errorf("unknown export format %q", s)
}

func (f Format) ContentType() string {
	switch f {
	case FormatGeoJSON:
		return "application/geo+json"
	case FormatShapefile:
		return "application/zip"
	}
	return "application/json"
}

func (f Format) Extension() string {
	switch f {
	case FormatGeoJSON:
		return ".geojson"
	case FormatShapefile:
		return ".shp.zip"
	}
	return ".json"
}

// DefaultColumns are the properties the map front-end reads.
var DefaultColumns = []string{
	"name",
	"type",
	"sport_type",
	"distance",
	"total_elevation_gain",
	"elapsed_time",
	"start_date_local",
}

// Feature is one exported activity: its id, projected properties, and simplified geometry.
type Feature struct {
	ID         conceptual.ActivityID
	Properties map[string]any
	Geometry   orb.LineString
}
