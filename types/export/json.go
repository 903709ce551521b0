package export

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/rotblauer/stravad/types/polyline"
)

// WriteJSON writes an object keyed by decimal id, in feature order.
// Each value holds the properties plus the geometry as an encoded "polyline".
func WriteJSON(w io.Writer, features []Feature, precision int) error {
	buf := bytes.Buffer{}
	buf.WriteByte('{')
	for i, f := range features {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, _ := json.Marshal(f.ID.String())
		buf.Write(key)
		buf.WriteByte(':')

		value := make(map[string]any, len(f.Properties)+1)
		for k, v := range f.Properties {
			value[k] = v
		}
		value["polyline"] = polyline.Encode(f.Geometry, precision)
		b, err := json.Marshal(value)
		if err != nil {
			return err
		}
		buf.Write(b)
	}
	buf.WriteByte('}')
	_, err := buf.WriteTo(w)
	return err
}
