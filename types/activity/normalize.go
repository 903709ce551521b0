package activity

import (
	"errors"
	"fmt"

	"github.com/rotblauer/stravad/conceptual"
	"github.com/rotblauer/stravad/types/polyline"
)

var ErrMissingID = errors.New("activity has no id")

type NormalizeOptions struct {
	// IncludeAthlete keeps the owning athlete's id on the record.
	IncludeAthlete bool
	// Precision is the decimal precision of the summary polyline.
	Precision int
}

func DefaultNormalizeOptions() NormalizeOptions {
	return NormalizeOptions{
		IncludeAthlete: true,
		Precision:      polyline.DefaultPrecision,
	}
}

// Normalize flattens a raw Strava activity into a storable Record.
//
// The embedded athlete becomes AthleteID (or is dropped, per opts).
// The summary polyline, if any, becomes the Geometry.
// The map and the start/end coordinates are consumed and discarded,
// and the id becomes the record's key.
//
// A polyline that fails to decode does not fail normalization:
// the record is returned with no geometry together with the
// *polyline.FormatError, which callers should log and otherwise ignore.
// Any other error means no usable record.
func Normalize(raw Raw, opts NormalizeOptions) (Record, error) {
	if raw.ID <= 0 {
		return Record{}, ErrMissingID
	}
	rec := Record{
		ID:      conceptual.ActivityID(raw.ID),
		Summary: raw.Summary,
	}
	if opts.IncludeAthlete && raw.Athlete != nil {
		rec.AthleteID = conceptual.AthleteID(raw.Athlete.ID)
	}
	if raw.Map == nil || raw.Map.SummaryPolyline == "" {
		return rec, nil
	}
	ls, err := polyline.Decode(raw.Map.SummaryPolyline, opts.Precision)
	if err != nil {
		return rec, fmt.Errorf("activity %d: %w", raw.ID, err)
	}
	if len(ls) > 0 {
		rec.Geometry = ls
	}
	return rec, nil
}
