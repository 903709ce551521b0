package params

import (
	"os"
	"path/filepath"
)

var DefaultDatadirRoot = func() string {
	home, err := os.UserHomeDir()
	if err != nil {
		panic(err)
	}
	return filepath.Join(home, ".stravad")
}()

const (
	ActivitiesDBName = "activities.db"
	SecretsDBName    = "secrets.db"
)

var ActivitiesBucket = []byte("activities")
var SecretsBucket = []byte("secrets")

// DefaultAthleteID is the athlete exported when a request does not name one.
var DefaultAthleteID int64 = 6824046
