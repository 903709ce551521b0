package cmd

import (
	"context"
	"log"
	"log/slog"

	"github.com/rotblauer/stravad/conceptual"
	"github.com/rotblauer/stravad/secrets"
	"github.com/spf13/cobra"
)

var optRefreshAthlete int64

// refreshCmd represents the refresh command
var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Rotate an athlete's Strava access and refresh tokens",
	Long: `Exchanges the athlete's current refresh token for a new token pair,
adds both as new secret versions, and only then destroys the old versions.

If anything fails before both new versions are stored, nothing is destroyed.
`,
	PreRun: setDefaultSlog,
	Run: func(cmd *cobra.Command, args []string) {
		config := mustConfig()
		ctx := context.Background()
		a, err := openApp(ctx, config)
		if err != nil {
			log.Fatalln(err)
		}
		defer a.Close()

		athlete := conceptual.AthleteID(optRefreshAthlete)
		if athlete.IsEmpty() {
			athlete = conceptual.AthleteID(config.Export.DefaultAthleteID)
		}
		if _, err := a.rotator.Refresh(ctx, athlete); err != nil {
			log.Fatalln(err)
		}
		slog.Info("Refreshed credentials", "athlete", athlete)
	},
}

// secretsSetCmd adds a secret version, eg. to seed the client credentials
// and an athlete's first refresh token into the bbolt backend.
var secretsSetCmd = &cobra.Command{
	Use:   "set-secret NAME VALUE",
	Short: "Add a version of a secret",
	Long: `Adds a new version of the named secret.

Names used by stravad:

  strava_client_id
  strava_client_secret
  strava_access_token_<athlete>
  strava_refresh_token_<athlete>
`,
	Args:   cobra.ExactArgs(2),
	PreRun: setDefaultSlog,
	Run: func(cmd *cobra.Command, args []string) {
		config := mustConfig()
		ctx := context.Background()
		sec, err := secrets.Open(ctx, config.Secrets)
		if err != nil {
			log.Fatalln(err)
		}
		defer sec.Close()

		version, err := sec.Add(ctx, args[0], args[1])
		if err != nil {
			log.Fatalln(err)
		}
		slog.Info("Added secret version", "name", args[0], "version", version)
	},
}

func init() {
	rootCmd.AddCommand(refreshCmd)
	rootCmd.AddCommand(secretsSetCmd)

	refreshCmd.PersistentFlags().Int64Var(&optRefreshAthlete, "athlete", 0, "athlete id (default athlete.default)")
}
