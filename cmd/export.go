package cmd

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/rotblauer/stravad/api"
	"github.com/rotblauer/stravad/catdb/store"
	"github.com/rotblauer/stravad/conceptual"
	"github.com/rotblauer/stravad/types/export"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	optExportFormat    string
	optExportAthlete   int64
	optExportAll       bool
	optExportType      string
	optExportColumns   string
	optExportTolerance float64
	optExportDates     string
	optExportOut       string
	optExportS3Key     string
)

// exportCmd represents the export command
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export stored activities as JSON, GeoJSON or a zipped shapefile",
	Long: `Reads the stored activities, keeps those of the athlete (and type) asked for,
simplifies each route and writes them in the requested format.

Output goes to --out (default stdout), or to S3 when --s3-bucket or aws.bucket is set
together with --s3-key.

Examples:

  stravad export --format geojson --type Ride > rides.geojson
  stravad export --format shapefile --out activities.shp.zip
  stravad export --format json --s3-bucket my-maps --s3-key strava/activities.json
`,
	PreRun: setDefaultSlog,
	Run: func(cmd *cobra.Command, args []string) {
		config := mustConfig()
		ctx := context.Background()

		format, err := export.ParseFormat(optExportFormat)
		if err != nil {
			log.Fatalln(err)
		}
		opts := api.DefaultExportOptions(config.Export, format)
		if !optExportAll {
			athlete := conceptual.AthleteID(optExportAthlete)
			if athlete.IsEmpty() {
				athlete = conceptual.AthleteID(config.Export.DefaultAthleteID)
			}
			opts.AthleteID = &athlete
		}
		opts.Type = optExportType
		if optExportColumns != "" {
			opts.Columns = strings.Split(optExportColumns, ",")
		}
		if optExportTolerance >= 0 {
			opts.Tolerance = optExportTolerance
		}
		switch d := api.DateFormat(optExportDates); d {
		case "", api.DateFormatISO, api.DateFormatEpoch:
			opts.DateFormat = d
		default:
			log.Fatalf("invalid --dates %q: want iso or epoch", optExportDates)
		}

		s, err := store.Open(ctx, config.Store)
		if err != nil {
			log.Fatalln(err)
		}
		defer s.Close()

		res, err := api.ExportFromStore(ctx, s, opts)
		if err != nil {
			log.Fatalln(err)
		}
		buf := bytes.Buffer{}
		if err := res.Write(&buf); err != nil {
			log.Fatalln(err)
		}
		slog.Info("Exported", "format", format, "features", len(res.Features),
			"size", humanize.Bytes(uint64(buf.Len())))

		if bucket := viper.GetString("aws.bucket"); bucket != "" && optExportS3Key != "" {
			location, err := api.PublishS3(ctx, bucket, optExportS3Key, format.ContentType(), &buf)
			if err != nil {
				log.Fatalln(err)
			}
			slog.Info("Published", "location", location)
			return
		}
		if err := writeOut(optExportOut, &buf); err != nil {
			log.Fatalln(err)
		}
	},
}

func writeOut(path string, r io.Reader) error {
	if path == "" || path == "-" {
		_, err := io.Copy(os.Stdout, r)
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

func init() {
	rootCmd.AddCommand(exportCmd)

	pFlags := exportCmd.PersistentFlags()
	pFlags.StringVar(&optExportFormat, "format", "json", "output format (json, geojson, shapefile)")
	pFlags.Int64Var(&optExportAthlete, "athlete", 0, "athlete id (default athlete.default)")
	pFlags.BoolVar(&optExportAll, "all", false, "export every athlete's activities")
	pFlags.StringVar(&optExportType, "type", "", "keep only activities of this type, eg. Ride")
	pFlags.StringVar(&optExportColumns, "columns", "", "comma-separated properties to keep")
	pFlags.Float64Var(&optExportTolerance, "tolerance", -1, "simplification tolerance in degrees (default per format)")
	pFlags.StringVar(&optExportDates, "dates", "", "start_date_local format (iso, epoch)")
	pFlags.StringVar(&optExportOut, "out", "-", "output file")
	pFlags.String("s3-bucket", "", "S3 bucket to publish to (default aws.bucket)")
	pFlags.StringVar(&optExportS3Key, "s3-key", "", "S3 key to publish to")
	bindFlag(pFlags, "aws.bucket", "s3-bucket")
}
