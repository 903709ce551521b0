package params

import "os"

const (
	// ToleranceFine is used for the polyline JSON export.
	ToleranceFine = 0.0001
	// ToleranceCoarse is used for the GeoJSON and shapefile overview exports.
	ToleranceCoarse = 0.0005
)

type ExportConfig struct {
	DefaultAthleteID int64
	FineTolerance    float64
	CoarseTolerance  float64
}

func DefaultExportConfig() *ExportConfig {
	return &ExportConfig{
		DefaultAthleteID: DefaultAthleteID,
		FineTolerance:    ToleranceFine,
		CoarseTolerance:  ToleranceCoarse,
	}
}

// AWS_BUCKETNAME is the fallback bucket exports are published to.
var AWS_BUCKETNAME = os.Getenv("AWS_BUCKETNAME")
