// Package store persists normalized activity records keyed by activity id.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"github.com/rotblauer/stravad/conceptual"
	"github.com/rotblauer/stravad/params"
	"github.com/rotblauer/stravad/types/activity"
)

// Store is a flat key-value store of activity records.
// Implementations must be safe for concurrent use.
type Store interface {
	// Upsert creates or fully overwrites the record at id.
	Upsert(ctx context.Context, id conceptual.ActivityID, rec activity.Record) error
	// GetAll reads a snapshot of every record. It may be expensive.
	GetAll(ctx context.Context) (map[conceptual.ActivityID]activity.Record, error)
	// GetByAthlete returns the records owned by athlete, ordered by id.
	GetByAthlete(ctx context.Context, athlete conceptual.AthleteID) ([]activity.Record, error)
	Close() error
}

// Open opens the backend named by config.
func Open(ctx context.Context, config *params.StoreConfig) (Store, error) {
	if config == nil {
		config = params.DefaultStoreConfig()
	}
	switch config.Backend {
	case params.BackendBolt, "":
		return OpenBolt(config.Path)
	case params.BackendFirebase:
		return OpenFirebase(ctx, config)
	default:
		return nil, fmt.Errorf("unknown store backend %q", config.Backend)
	}
}

// Sorted returns the snapshot's records ordered by id.
func Sorted(all map[conceptual.ActivityID]activity.Record) []activity.Record {
	out := make([]activity.Record, 0, len(all))
	for _, rec := range all {
		out = append(out, rec)
	}
	sortByID(out)
	return out
}

func sortByID(recs []activity.Record) {
	sort.Slice(recs, func(i, j int) bool {
		return recs[i].ID < recs[j].ID
	})
}

// decodeSnapshot decodes a flat id -> body mapping.
// Entries with non-numeric keys or undecodable bodies are logged and skipped.
func decodeSnapshot(raw map[string]json.RawMessage) map[conceptual.ActivityID]activity.Record {
	out := make(map[conceptual.ActivityID]activity.Record, len(raw))
	for k, body := range raw {
		rec, err := decodeRecord(k, body)
		if err != nil {
			slog.Warn("Skipping stored record", "key", k, "error", err)
			continue
		}
		out[rec.ID] = rec
	}
	return out
}

// athleteRecords merges query snapshots and keeps the records owned by athlete,
// ordered by id. A key present in more than one snapshot is decoded once.
func athleteRecords(athlete conceptual.AthleteID, snapshots ...map[string]json.RawMessage) []activity.Record {
	merged := map[string]json.RawMessage{}
	for _, snap := range snapshots {
		for k, body := range snap {
			merged[k] = body
		}
	}
	out := []activity.Record{}
	for _, rec := range decodeSnapshot(merged) {
		if rec.AthleteID == athlete {
			out = append(out, rec)
		}
	}
	sortByID(out)
	return out
}

func decodeRecord(key string, body []byte) (activity.Record, error) {
	id, err := conceptual.ParseActivityID(key)
	if err != nil {
		return activity.Record{}, err
	}
	rec := activity.Record{}
	if err := json.Unmarshal(body, &rec); err != nil {
		return activity.Record{}, fmt.Errorf("decode record %s: %w", key, err)
	}
	rec.ID = id
	return rec, nil
}
