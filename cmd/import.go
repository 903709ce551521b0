package cmd

import (
	"context"
	"io"
	"log"
	"log/slog"
	"os"

	"github.com/rotblauer/stravad/api"
	"github.com/rotblauer/stravad/catdb/flat"
	"github.com/rotblauer/stravad/common"
	"github.com/rotblauer/stravad/conceptual"
	"github.com/rotblauer/stravad/stream"
	"github.com/rotblauer/stravad/types/activity"
	"github.com/spf13/cobra"
)

var optImportBatchSize int
var optImportArchiveAthlete int64

// importCmd represents the import command
var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import Strava activities from stdin",
	Long: `Activities are decoded as JSON lines from stdin, in the shape Strava returns
them from GET /activities/{id} or GET /athlete/activities, then normalized and upserted.
Strava is not contacted. Lines that are not activities are logged and skipped.

With --archive, activities are replayed from the athlete's raw archive
under store.archive_dir instead of stdin.

Examples:

  jq -c '.[]' activities-page-1.json | stravad import
  stravad import --archive 6824046 --store firebase
`,
	PreRun: setDefaultSlog,
	Run: func(cmd *cobra.Command, args []string) {
		config := mustConfig()
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() {
			sig := <-common.Interrupted()
			slog.Warn("Received signal, stopping import", "signal", sig)
			cancel()
		}()

		a, err := openApp(ctx, config)
		if err != nil {
			log.Fatalln(err)
		}
		defer a.Close()

		var in io.Reader = os.Stdin
		if optImportArchiveAthlete > 0 {
			if config.Store.ArchiveDir == "" {
				log.Fatalln("--archive requires store.archive_dir")
			}
			athlete := conceptual.AthleteID(optImportArchiveAthlete)
			r, err := flat.NewFlatWithRoot(config.Store.ArchiveDir).ForAthlete(athlete).NamedGZReader(flat.RawActivitiesFileName)
			if err != nil {
				log.Fatalln(err)
			}
			defer r.Close()
			in = r.Reader()
			// Replayed activities are already archived.
			a.ingester.Archive = nil
		}

		stored, failed := importActivities(ctx, a.ingester, stream.NDJSON[activity.Raw](ctx, in), optImportBatchSize)
		slog.Info("Import done", "stored", stored, "failed", failed)
	},
}

func importActivities(ctx context.Context, in *api.Ingester, raws <-chan activity.Raw, batchSize int) (stored, failed int) {
	if batchSize < 1 {
		batchSize = 1
	}
	for batch := range stream.Batch(ctx, batchSize, raws) {
		for _, raw := range batch {
			if _, err := in.IngestRaw(ctx, raw); err != nil {
				slog.Error("Failed to import activity", "id", raw.ID, "error", err)
				failed++
				continue
			}
			stored++
		}
		slog.Info("Imported batch", "size", len(batch), "stored", stored, "failed", failed)
	}
	return stored, failed
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.PersistentFlags().IntVar(&optImportBatchSize, "batch-size", 100, "activities per progress batch")
	importCmd.PersistentFlags().Int64Var(&optImportArchiveAthlete, "archive", 0, "replay this athlete's raw archive instead of stdin")
}
