package cmd

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rotblauer/stravad/api"
	"github.com/rotblauer/stravad/catdb/store"
	"github.com/rotblauer/stravad/common"
	"github.com/rotblauer/stravad/params"
	"github.com/rotblauer/stravad/stream"
	"github.com/rotblauer/stravad/testing/testdata"
	"github.com/rotblauer/stravad/types/activity"
)

func TestImportActivities(t *testing.T) {
	defer common.SlogResetLevel(slog.LevelError)()
	s, err := store.OpenBolt(filepath.Join(t.TempDir(), params.ActivitiesDBName))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	config := params.DefaultConfig()
	config.InfluxDB = &params.InfluxDBConfig{}
	in := api.NewIngester(nil, nil, s, config)

	lines := strings.Join([]string{
		testdata.RawActivityJSON(1, 42, "Ride", ""),
		`{"name": "no id"}`,
		testdata.RawActivityJSON(2, 42, "Run", ""),
		testdata.TrainerActivityJSON,
	}, "\n")

	ctx := context.Background()
	stored, failed := importActivities(ctx, in, stream.NDJSON[activity.Raw](ctx, strings.NewReader(lines)), 2)
	if stored != 3 || failed != 1 {
		t.Errorf("have stored=%d failed=%d want 3, 1", stored, failed)
	}
	all, err := s.GetAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Errorf("have %d stored records want 3", len(all))
	}
}
