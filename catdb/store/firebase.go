package store

import (
	"context"
	"encoding/json"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/db"
	"github.com/rotblauer/stravad/conceptual"
	"github.com/rotblauer/stravad/params"
	"github.com/rotblauer/stravad/types/activity"
	"google.golang.org/api/option"
)

// Firebase stores records in a Firebase realtime database,
// as children of Ref keyed by decimal id.
// GetByAthlete queries on athlete_id and on the legacy athlete child,
// both of which should be indexed (".indexOn": ["athlete_id", "athlete"])
// in the database rules.
type Firebase struct {
	Ref *db.Ref
}

func OpenFirebase(ctx context.Context, config *params.StoreConfig) (*Firebase, error) {
	var opts []option.ClientOption
	if config.FirebaseCredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(config.FirebaseCredentialsFile))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{DatabaseURL: config.FirebaseDatabaseURL}, opts...)
	if err != nil {
		return nil, fmt.Errorf("firebase app: %w", err)
	}
	client, err := app.Database(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase database: %w", err)
	}
	path := config.FirebaseRef
	if path == "" {
		path = "/"
	}
	return &Firebase{Ref: client.NewRef(path)}, nil
}

func (f *Firebase) Upsert(ctx context.Context, id conceptual.ActivityID, rec activity.Record) error {
	if id.IsEmpty() {
		return fmt.Errorf("upsert: invalid id %d", id)
	}
	rec.ID = id
	// Set replaces the whole child, so fields absent from rec do not linger.
	if err := f.Ref.Child(id.String()).Set(ctx, rec); err != nil {
		return fmt.Errorf("firebase set %s: %w", id, err)
	}
	return nil
}

func (f *Firebase) GetAll(ctx context.Context) (map[conceptual.ActivityID]activity.Record, error) {
	raw := map[string]json.RawMessage{}
	if err := f.Ref.Get(ctx, &raw); err != nil {
		return nil, fmt.Errorf("firebase get: %w", err)
	}
	return decodeSnapshot(raw), nil
}

func (f *Firebase) GetByAthlete(ctx context.Context, athlete conceptual.AthleteID) ([]activity.Record, error) {
	var snapshots []map[string]json.RawMessage
	for _, child := range []string{"athlete_id", "athlete"} {
		raw := map[string]json.RawMessage{}
		q := f.Ref.OrderByChild(child).EqualTo(int64(athlete))
		if err := q.Get(ctx, &raw); err != nil {
			return nil, fmt.Errorf("firebase query %s %s: %w", child, athlete, err)
		}
		snapshots = append(snapshots, raw)
	}
	return athleteRecords(athlete, snapshots...), nil
}

// Close is a no-op; the Firebase client holds no closable resources.
func (f *Firebase) Close() error {
	return nil
}
