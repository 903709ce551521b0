package cmd

import (
	"context"
	"log"
	"log/slog"
	"time"

	"github.com/rotblauer/stravad/common"
	"github.com/rotblauer/stravad/daemon/webd"
	"github.com/spf13/cobra"
)

// webdCmd represents the serve command
var webdCmd = &cobra.Command{
	Use:   "webd",
	Short: "Start the webserver",
	Long: `Serves the Strava webhook, backfill trigger, exports and a websocket
of stored activities.

Endpoints:

  GET  /webhook          subscription handshake (echoes hub.challenge)
  POST /webhook          activity create/update events
  POST /backfill         backfill ?athlete=, requires backfill.token if set
  GET  /export[.json]    polyline JSON keyed by activity id
  GET  /export.geojson   GeoJSON FeatureCollection
  GET  /export.shp.zip   zipped shapefile
  GET  /socket           websocket of stored activities
  GET  /ping, /status
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

		server := webd.NewWebDaemon(config.Web, config.Export, a.ingester, a.store)
		if err := server.Start(); err != nil {
			log.Fatalln(err)
		}

		sig := <-common.Interrupted()
		slog.Warn("Received signal", "signal", sig)
		stopCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := server.Stop(stopCtx); err != nil {
			slog.Error("Failed to stop web daemon", "error", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(webdCmd)

	pFlags := webdCmd.PersistentFlags()
	pFlags.String("address", "localhost:3000", "HTTP address to listen on")
	pFlags.String("verify-token", "", "Strava webhook subscription verify token")
	bindFlag(pFlags, "web.address", "address")
	bindFlag(pFlags, "webhook.verify_token", "verify-token")
}
