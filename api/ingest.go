package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rotblauer/stravad/catdb/cache"
	"github.com/rotblauer/stravad/catdb/flat"
	"github.com/rotblauer/stravad/catdb/store"
	"github.com/rotblauer/stravad/conceptual"
	"github.com/rotblauer/stravad/events"
	"github.com/rotblauer/stravad/metrics/influxdb"
	"github.com/rotblauer/stravad/params"
	"github.com/rotblauer/stravad/secrets"
	"github.com/rotblauer/stravad/strava"
	"github.com/rotblauer/stravad/types/activity"
	"github.com/rotblauer/stravad/types/polyline"
)

// ActivitySource fetches activities from Strava. *strava.Client implements it.
type ActivitySource interface {
	GetActivity(ctx context.Context, accessToken string, id conceptual.ActivityID) (activity.Raw, error)
	ListAthleteActivities(ctx context.Context, accessToken string, page, perPage int) ([]activity.Raw, error)
}

// Credentials provides access tokens. *secrets.Rotator implements it.
type Credentials interface {
	AccessToken(ctx context.Context, athleteID conceptual.AthleteID) (string, error)
	Refresh(ctx context.Context, athleteID conceptual.AthleteID) (string, error)
}

// Ingester fetches, normalizes and stores activities.
type Ingester struct {
	Source      ActivitySource
	Credentials Credentials
	Store       store.Store

	Strava    *params.StravaConfig
	InfluxDB  *params.InfluxDBConfig
	Normalize activity.NormalizeOptions
	// Archive, if set, keeps the raw activities fetched from Strava.
	Archive *flat.Flat

	dedupe       func(webhookDelivery) bool
	forgetDedupe func(webhookDelivery)
	logger       *slog.Logger
}

// webhookDelivery identifies a webhook delivery; Strava retries deliver it again.
type webhookDelivery struct {
	ObjectID   int64
	OwnerID    int64
	AspectType string
	EventTime  int64
}

func NewIngester(source ActivitySource, creds Credentials, s store.Store, config *params.Config) *Ingester {
	pass, forget := cache.NewDedupePassLRUFunc[webhookDelivery](params.WebhookDedupeSize)
	var archive *flat.Flat
	if config.Store != nil && config.Store.ArchiveDir != "" {
		archive = flat.NewFlatWithRoot(config.Store.ArchiveDir)
	}
	return &Ingester{
		Source:       source,
		Credentials:  creds,
		Store:        s,
		Strava:       config.Strava,
		InfluxDB:     config.InfluxDB,
		Normalize:    activity.DefaultNormalizeOptions(),
		Archive:      archive,
		dedupe:       pass,
		forgetDedupe: forget,
		logger:       slog.With("d", "ingest"),
	}
}

// withAccessToken calls fn with the athlete's access token.
// If Strava rejects the token, credentials are refreshed once and fn retried.
func (in *Ingester) withAccessToken(ctx context.Context, athleteID conceptual.AthleteID, fn func(token string) error) error {
	token, err := in.Credentials.AccessToken(ctx, athleteID)
	if err != nil {
		return err
	}
	err = fn(token)
	if !strava.IsUnauthorized(err) {
		return err
	}
	in.logger.Warn("Access token rejected, refreshing", "athlete", athleteID)
	cache.DeleteAccessToken(athleteID)
	token, err = in.Credentials.Refresh(ctx, athleteID)
	if err != nil {
		return err
	}
	return fn(token)
}

// HandleWebhookEvent stores the activity named by an activity create or update event.
// Other events return ErrIgnoredEvent; repeated deliveries return ErrDuplicateDelivery.
func (in *Ingester) HandleWebhookEvent(ctx context.Context, ev strava.WebhookEvent) (activity.Record, error) {
	if !ev.IsActivityUpsert() {
		return activity.Record{}, ErrIgnoredEvent
	}
	delivery := webhookDelivery{ev.ObjectID, ev.OwnerID, ev.AspectType, ev.EventTime}
	if !in.dedupe(delivery) {
		return activity.Record{}, ErrDuplicateDelivery
	}

	athleteID := conceptual.AthleteID(ev.OwnerID)
	id := conceptual.ActivityID(ev.ObjectID)
	var raw activity.Raw
	err := in.withAccessToken(ctx, athleteID, func(token string) error {
		var err error
		raw, err = in.Source.GetActivity(ctx, token, id)
		return err
	})
	if err != nil {
		// Strava redelivers failed events; let the retry through.
		in.forgetDedupe(delivery)
		return activity.Record{}, err
	}
	in.archiveRaw(athleteID, []activity.Raw{raw})
	rec, err := in.IngestRaw(ctx, raw)
	if err != nil {
		in.forgetDedupe(delivery)
		return activity.Record{}, err
	}
	in.exportMetrics([]activity.Record{rec})
	return rec, nil
}

// IngestRaw normalizes and upserts one activity, then emits it on events.StoredActivityFeed.
// A malformed polyline is logged and the activity stored without geometry.
func (in *Ingester) IngestRaw(ctx context.Context, raw activity.Raw) (activity.Record, error) {
	rec, _, err := in.ingest(ctx, raw)
	return rec, err
}

func (in *Ingester) ingest(ctx context.Context, raw activity.Raw) (rec activity.Record, geometryWarning bool, err error) {
	rec, err = activity.Normalize(raw, in.Normalize)
	if errors.Is(err, polyline.ErrFormat) {
		geometryWarning = true
		in.logger.Warn("Storing activity without geometry", "id", rec.ID, "error", err)
	} else if err != nil {
		return activity.Record{}, false, err
	}
	if err := in.Store.Upsert(ctx, rec.ID, rec); err != nil {
		return activity.Record{}, geometryWarning, fmt.Errorf("upsert %s: %w", rec.ID, err)
	}
	in.logger.Info("Stored activity", "id", rec.ID, "athlete", rec.AthleteID,
		"type", rec.Type, "name", rec.Name, "points", len(rec.Geometry))
	events.StoredActivityFeed.Send(rec)
	return rec, geometryWarning, nil
}

// BackfillSummary reports a backfill run.
type BackfillSummary struct {
	Pages            int
	PagesFailed      int
	Stored           int
	RecordsFailed    int
	GeometryWarnings int
	Elapsed          time.Duration
}

func (s BackfillSummary) String() string {
	return fmt.Sprintf("pages=%d pages.failed=%d stored=%s records.failed=%d geometry.warnings=%d elapsed=%s",
		s.Pages, s.PagesFailed, humanize.Comma(int64(s.Stored)), s.RecordsFailed, s.GeometryWarnings, s.Elapsed.Round(time.Millisecond))
}

// Backfill pages through the athlete's activities, storing each.
// A failing page or record is logged and skipped. An empty page ends the run.
// Credential failures end the run with an error.
func (in *Ingester) Backfill(ctx context.Context, athleteID conceptual.AthleteID) (BackfillSummary, error) {
	start := time.Now()
	summary := BackfillSummary{}

	for page := 1; page <= in.Strava.MaxPages; page++ {
		if err := ctx.Err(); err != nil {
			summary.Elapsed = time.Since(start)
			return summary, err
		}
		var raws []activity.Raw
		err := in.withAccessToken(ctx, athleteID, func(token string) error {
			var err error
			raws, err = in.Source.ListAthleteActivities(ctx, token, page, in.Strava.PerPage)
			return err
		})
		summary.Pages++
		var ce *secrets.CredentialError
		if errors.As(err, &ce) {
			summary.Elapsed = time.Since(start)
			return summary, err
		}
		var ue *strava.UpstreamAPIError
		if errors.As(err, &ue) {
			summary.PagesFailed++
			in.logger.Error("Backfill page failed, skipping", "page", page, "error", err)
			continue
		}
		if err != nil {
			summary.Elapsed = time.Since(start)
			return summary, err
		}
		if len(raws) == 0 {
			in.logger.Info("Backfill reached an empty page", "page", page)
			break
		}

		for i := range raws {
			if raws[i].Athlete == nil {
				raws[i].Athlete = &activity.MetaAthlete{ID: int64(athleteID)}
			}
		}
		in.archiveRaw(athleteID, raws)

		stored := make([]activity.Record, 0, len(raws))
		for _, raw := range raws {
			rec, warned, err := in.ingest(ctx, raw)
			if warned {
				summary.GeometryWarnings++
			}
			if err != nil {
				summary.RecordsFailed++
				in.logger.Error("Backfill record failed, skipping", "id", raw.ID, "error", err)
				continue
			}
			stored = append(stored, rec)
		}
		summary.Stored += len(stored)
		in.exportMetrics(stored)
		in.logger.Info("Backfill page", "page", page, "activities", len(raws), "stored", len(stored))
	}
	summary.Elapsed = time.Since(start)
	in.logger.Info("Backfill complete", "athlete", athleteID, "summary", summary.String())
	return summary, nil
}

// archiveRaw appends raws to the athlete's archive. Failures are logged only.
func (in *Ingester) archiveRaw(athleteID conceptual.AthleteID, raws []activity.Raw) {
	if in.Archive == nil {
		return
	}
	if err := flat.AppendJSONLines(in.Archive.ForAthlete(athleteID), flat.RawActivitiesFileName, raws); err != nil {
		in.logger.Error("Failed to archive raw activities", "athlete", athleteID, "error", err)
	}
}

func (in *Ingester) exportMetrics(records []activity.Record) {
	if !in.InfluxDB.Enabled() || len(records) == 0 {
		return
	}
	if err := influxdb.ExportActivities(in.InfluxDB, records); err != nil {
		in.logger.Error("Failed to export activity metrics", "error", err)
	}
}
