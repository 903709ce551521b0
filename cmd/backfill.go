package cmd

import (
	"context"
	"log"
	"log/slog"

	"github.com/rotblauer/stravad/common"
	"github.com/rotblauer/stravad/conceptual"
	"github.com/spf13/cobra"
)

var optBackfillAthlete int64

// backfillCmd represents the backfill command
var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Fetch and store an athlete's activity history",
	Long: `Pages through GET /athlete/activities with the athlete's access token,
normalizing and upserting every activity.

A failing page is logged and skipped; the first empty page ends the run.
Credentials are refreshed once if Strava rejects the access token.

Examples:

  stravad backfill --athlete 6824046
  STRAVAD_STRAVA_MAX_PAGES=5 stravad backfill
`,
	PreRun: setDefaultSlog,
	Run: func(cmd *cobra.Command, args []string) {
		config := mustConfig()
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() {
			sig := <-common.Interrupted()
			slog.Warn("Received signal, stopping backfill", "signal", sig)
			cancel()
		}()

		a, err := openApp(ctx, config)
		if err != nil {
			log.Fatalln(err)
		}
		defer a.Close()

		athlete := conceptual.AthleteID(optBackfillAthlete)
		if athlete.IsEmpty() {
			athlete = conceptual.AthleteID(config.Export.DefaultAthleteID)
		}
		summary, err := a.ingester.Backfill(ctx, athlete)
		slog.Info("Backfill done", "athlete", athlete, "summary", summary.String())
		if err != nil {
			log.Fatalln(err)
		}
	},
}

func init() {
	rootCmd.AddCommand(backfillCmd)

	pFlags := backfillCmd.PersistentFlags()
	pFlags.Int64Var(&optBackfillAthlete, "athlete", 0, "athlete id (default athlete.default)")
	pFlags.Int("max-pages", 150, "maximum pages to fetch")
	pFlags.Int("per-page", 30, "activities per page")
	bindFlag(pFlags, "strava.max_pages", "max-pages")
	bindFlag(pFlags, "strava.per_page", "per-page")
}
