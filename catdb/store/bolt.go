package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/rotblauer/stravad/conceptual"
	"github.com/rotblauer/stravad/params"
	"github.com/rotblauer/stravad/types/activity"
	"go.etcd.io/bbolt"
)

// Bolt stores records in a local bbolt file, one bucket, keyed by decimal id.
type Bolt struct {
	DB *bbolt.DB
}

// OpenBolt opens (creating if needed) the database at path.
// A writable bbolt file is exclusively locked by its process.
func OpenBolt(path string) (*Bolt, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0770); err != nil {
		return nil, err
	}
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(params.ActivitiesBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Bolt{DB: db}, nil
}

func (b *Bolt) Upsert(ctx context.Context, id conceptual.ActivityID, rec activity.Record) error {
	if id.IsEmpty() {
		return fmt.Errorf("upsert: invalid id %d", id)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	rec.ID = id
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return b.DB.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(params.ActivitiesBucket).Put(id.Key(), data)
	})
}

func (b *Bolt) GetAll(ctx context.Context) (map[conceptual.ActivityID]activity.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := map[conceptual.ActivityID]activity.Record{}
	err := b.DB.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(params.ActivitiesBucket).ForEach(func(k, v []byte) error {
			rec, err := decodeRecord(string(k), v)
			if err != nil {
				slog.Warn("Skipping stored record", "key", string(k), "error", err)
				return nil
			}
			out[rec.ID] = rec
			return nil
		})
	})
	return out, err
}

func (b *Bolt) GetByAthlete(ctx context.Context, athlete conceptual.AthleteID) ([]activity.Record, error) {
	all, err := b.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	out := []activity.Record{}
	for _, rec := range all {
		if rec.AthleteID == athlete {
			out = append(out, rec)
		}
	}
	sortByID(out)
	return out, nil
}

func (b *Bolt) Close() error {
	return b.DB.Close()
}
