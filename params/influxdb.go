package params

import "os"

var (
	INFLUXDB_URL    = os.Getenv("INFLUXDB_URL")
	INFLUXDB_TOKEN  = os.Getenv("INFLUXDB_TOKEN")
	INFLUXDB_ORG    = os.Getenv("INFLUXDB_ORG")
	INFLUXDB_BUCKET = os.Getenv("INFLUXDB_BUCKET")
)

type InfluxDBConfig struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

func DefaultInfluxDBConfig() *InfluxDBConfig {
	return &InfluxDBConfig{
		URL:    INFLUXDB_URL,
		Token:  INFLUXDB_TOKEN,
		Org:    INFLUXDB_ORG,
		Bucket: INFLUXDB_BUCKET,
	}
}

// Enabled is true when enough is configured to write points.
func (c *InfluxDBConfig) Enabled() bool {
	return c != nil && c.URL != "" && c.Bucket != ""
}
