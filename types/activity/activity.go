package activity

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/rotblauer/stravad/conceptual"
)

// Summary holds the activity fields that pass through normalization unchanged.
// Field names follow the Strava SummaryActivity/DetailedActivity JSON.
type Summary struct {
	Name               string    `json:"name"`
	Type               string    `json:"type"`
	SportType          string    `json:"sport_type"`
	Description        string    `json:"description,omitempty"`
	Distance           float64   `json:"distance"`
	MovingTime         int64     `json:"moving_time"`
	ElapsedTime        int64     `json:"elapsed_time"`
	TotalElevationGain float64   `json:"total_elevation_gain"`
	StartDate          time.Time `json:"start_date"`
	StartDateLocal     time.Time `json:"start_date_local"`
	Timezone           string    `json:"timezone,omitempty"`

	AverageSpeed     float64  `json:"average_speed"`
	MaxSpeed         float64  `json:"max_speed"`
	ElevHigh         *float64 `json:"elev_high,omitempty"`
	ElevLow          *float64 `json:"elev_low,omitempty"`
	AverageHeartrate *float64 `json:"average_heartrate,omitempty"`
	MaxHeartrate     *float64 `json:"max_heartrate,omitempty"`
	Calories         *float64 `json:"calories,omitempty"`

	KudosCount       int  `json:"kudos_count"`
	AchievementCount int  `json:"achievement_count"`
	Trainer          bool `json:"trainer"`
	Commute          bool `json:"commute"`
	Manual           bool `json:"manual"`
	Private          bool `json:"private"`

	GearID      string `json:"gear_id,omitempty"`
	WorkoutType *int   `json:"workout_type,omitempty"`
}

// MetaAthlete is the athlete reference Strava embeds in an activity.
type MetaAthlete struct {
	ID int64 `json:"id"`
}

// PolylineMap is the map container Strava embeds in an activity.
type PolylineMap struct {
	ID              string `json:"id"`
	SummaryPolyline string `json:"summary_polyline"`
	Polyline        string `json:"polyline,omitempty"`
}

// Raw is an activity as Strava returns it.
// The pointer and slice fields are nil when the embedded object was absent,
// eg. Map for an activity fetched with a reduced resource_state.
type Raw struct {
	ID          int64        `json:"id"`
	Athlete     *MetaAthlete `json:"athlete,omitempty"`
	Map         *PolylineMap `json:"map,omitempty"`
	StartLatLng []float64    `json:"start_latlng,omitempty"`
	EndLatLng   []float64    `json:"end_latlng,omitempty"`
	Summary
}

// Record is a normalized activity, as stored.
// ID is the store key and is never part of the stored body.
// Geometry is nil for activities without a route, eg. trainer rides.
type Record struct {
	ID        conceptual.ActivityID `json:"-"`
	AthleteID conceptual.AthleteID  `json:"athlete_id,omitempty"`
	Summary
	Geometry orb.LineString `json:"-"`
}

// HasGeometry reports whether the record has a route with at least one point.
func (r Record) HasGeometry() bool {
	return len(r.Geometry) > 0
}

// WKT returns the storage form of the geometry, or nil when absent.
func (r Record) WKT() *string {
	if !r.HasGeometry() {
		return nil
	}
	s := wkt.MarshalString(r.Geometry)
	return &s
}

// ParseWKT parses a stored LINESTRING.
func ParseWKT(s string) (orb.LineString, error) {
	ls, err := wkt.UnmarshalLineString(s)
	if err != nil {
		return nil, fmt.Errorf("parse geometry: %w", err)
	}
	return ls, nil
}

type plainRecord Record

// MarshalJSON encodes the stored body, with geometry as WKT or null.
func (r Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		plainRecord
		Geometry *string `json:"geometry"`
	}{plainRecord(r), r.WKT()})
}

// UnmarshalJSON decodes a stored body. Records written by older versions
// carry the owner as a bare "athlete" id; it is read as athlete_id.
func (r *Record) UnmarshalJSON(data []byte) error {
	aux := struct {
		*plainRecord
		Geometry      *string `json:"geometry"`
		LegacyAthlete *int64  `json:"athlete"`
	}{plainRecord: (*plainRecord)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if r.AthleteID == 0 && aux.LegacyAthlete != nil {
		r.AthleteID = conceptual.AthleteID(*aux.LegacyAthlete)
	}
	r.Geometry = nil
	if aux.Geometry != nil && *aux.Geometry != "" {
		ls, err := ParseWKT(*aux.Geometry)
		if err != nil {
			return err
		}
		r.Geometry = ls
	}
	return nil
}

// Properties returns the record body as a generic map, without geometry.
// Keys are the JSON field names; numbers are json.Number.
func (r Record) Properties() (map[string]any, error) {
	b, err := json.Marshal(plainRecord(r))
	if err != nil {
		return nil, err
	}
	props := map[string]any{}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&props); err != nil {
		return nil, err
	}
	return props, nil
}

// FieldNames lists the JSON names of every body field a Record can carry.
func FieldNames() []string {
	props, _ := Record{
		AthleteID: 1,
		Summary: Summary{
			Description:      "-",
			ElevHigh:         new(float64),
			ElevLow:          new(float64),
			AverageHeartrate: new(float64),
			MaxHeartrate:     new(float64),
			Calories:         new(float64),
			Timezone:         "-",
			GearID:           "-",
			WorkoutType:      new(int),
		},
	}.Properties()
	names := make([]string, 0, len(props))
	for k := range props {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
