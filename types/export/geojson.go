package export

import (
	"encoding/json"
	"io"

	"github.com/paulmach/orb/geojson"
)

// FeatureCollection builds one LineString feature per activity.
// Each feature carries its id as a property and a bbox.
func FeatureCollection(features []Feature) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, f := range features {
		gf := geojson.NewFeature(f.Geometry)
		gf.ID = int64(f.ID)
		gf.BBox = geojson.NewBBox(f.Geometry.Bound())
		for k, v := range f.Properties {
			gf.Properties[k] = v
		}
		gf.Properties["id"] = int64(f.ID)
		fc.Append(gf)
	}
	return fc
}

func WriteGeoJSON(w io.Writer, features []Feature) error {
	return json.NewEncoder(w).Encode(FeatureCollection(features))
}
