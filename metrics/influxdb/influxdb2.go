package influxdb

import (
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/rotblauer/stravad/params"
	"github.com/rotblauer/stravad/types/activity"
)

// ExportActivities posts one point per activity to an InfluxDB Write API,
// timestamped at the activity start.
// The Write API will buffer and flush. The last error encountered is returned.
func ExportActivities(config *params.InfluxDBConfig, records []activity.Record) error {
	opts := influxdb2.DefaultOptions()
	opts.SetPrecision(time.Second)
	client := influxdb2.NewClientWithOptions(config.URL, config.Token, opts)
	writeAPI := client.WriteAPI(config.Org, config.Bucket)

	// Errors must be requested before any writes, and drained,
	// or the writer will block.
	// https://github.com/influxdata/influxdb-client-go?tab=readme-ov-file#reading-async-errors
	errorsCh := writeAPI.Errors()
	var err error
	wait := sync.WaitGroup{}
	wait.Add(1)
	go func() {
		defer wait.Done()
		for e := range errorsCh {
			if e != nil {
				err = e
			}
		}
	}()

	for _, rec := range records {
		writeAPI.WritePoint(activityPoint(rec))
	}
	writeAPI.Flush()
	client.Close()
	wait.Wait()
	return err
}

func activityPoint(rec activity.Record) *write.Point {
	p := influxdb2.NewPointWithMeasurement("activity").
		SetTime(rec.StartDate).
		AddTag("athlete", rec.AthleteID.String()).
		AddTag("type", rec.Type).
		AddTag("sport_type", rec.SportType).
		AddField("id", int64(rec.ID)).
		AddField("distance", rec.Distance).
		AddField("moving_time", rec.MovingTime).
		AddField("elapsed_time", rec.ElapsedTime).
		AddField("total_elevation_gain", rec.TotalElevationGain).
		AddField("average_speed", rec.AverageSpeed).
		AddField("max_speed", rec.MaxSpeed).
		AddField("points", len(rec.Geometry))

	if rec.AverageHeartrate != nil {
		p.AddField("average_heartrate", *rec.AverageHeartrate)
	}
	if rec.MaxHeartrate != nil {
		p.AddField("max_heartrate", *rec.MaxHeartrate)
	}
	if rec.Calories != nil {
		p.AddField("calories", *rec.Calories)
	}
	if rec.Trainer {
		p.AddField("trainer", 1)
	}
	if rec.Commute {
		p.AddField("commute", 1)
	}
	return p
}
