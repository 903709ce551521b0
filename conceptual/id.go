package conceptual

import (
	"fmt"
	"strconv"
)

// ActivityID is the Strava activity id, also the record store key.
type ActivityID int64

func (a ActivityID) String() string {
	return strconv.FormatInt(int64(a), 10)
}

// Key is the store key for the activity: its decimal id.
func (a ActivityID) Key() []byte {
	return []byte(a.String())
}

func (a ActivityID) IsEmpty() bool {
	return a <= 0
}

func ParseActivityID(s string) (ActivityID, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid activity id %q: %w", s, err)
	}
	return ActivityID(v), nil
}

// AthleteID is the Strava athlete (owner) id.
type AthleteID int64

func (a AthleteID) String() string {
	return strconv.FormatInt(int64(a), 10)
}

func (a AthleteID) IsEmpty() bool {
	return a <= 0
}

func ParseAthleteID(s string) (AthleteID, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid athlete id %q: %w", s, err)
	}
	return AthleteID(v), nil
}
