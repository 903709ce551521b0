package api

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"

	"github.com/rotblauer/stravad/catdb/store"
	"github.com/rotblauer/stravad/conceptual"
	"github.com/rotblauer/stravad/geo/simplify"
	"github.com/rotblauer/stravad/params"
	"github.com/rotblauer/stravad/stream"
	"github.com/rotblauer/stravad/types/activity"
	"github.com/rotblauer/stravad/types/export"
	"github.com/rotblauer/stravad/types/polyline"
)

type DateFormat string

const (
	DateFormatISO   DateFormat = "iso"
	DateFormatEpoch DateFormat = "epoch"
)

type ExportOptions struct {
	// AthleteID, if set, keeps only that athlete's activities.
	AthleteID *conceptual.AthleteID
	// Type, if set, keeps only activities with exactly this type.
	Type string
	// Columns are the properties to keep. Nil means export.DefaultColumns.
	Columns []string
	// Tolerance is the simplification tolerance in degrees.
	// Non-positive keeps every point.
	Tolerance float64
	Format    export.Format
	// DateFormat applies to start_date_local. Empty means ISO for JSON
	// and epoch seconds for the geo formats.
	DateFormat DateFormat
}

// DefaultExportOptions returns options for format with its default tolerance.
func DefaultExportOptions(config *params.ExportConfig, format export.Format) ExportOptions {
	opts := ExportOptions{Format: format, Tolerance: config.CoarseTolerance}
	if format == export.FormatJSON {
		opts.Tolerance = config.FineTolerance
	}
	return opts
}

// ExportResult holds the projected features, ordered by id.
type ExportResult struct {
	Format   export.Format
	Columns  []string
	Features []export.Feature
}

// Write encodes the result in its format.
func (r *ExportResult) Write(w io.Writer) error {
	switch r.Format {
	case export.FormatGeoJSON:
		return export.WriteGeoJSON(w, r.Features)
	case export.FormatShapefile:
		return export.WriteShapefileZip(w, "activities", r.Features, r.Columns)
	}
	return export.WriteJSON(w, r.Features, polyline.DefaultPrecision)
}

func (opts ExportOptions) columns() ([]string, error) {
	if opts.Columns == nil {
		return export.DefaultColumns, nil
	}
	known := activity.FieldNames()
	out := make([]string, 0, len(opts.Columns))
	for _, c := range opts.Columns {
		c = strings.TrimSpace(c)
		if c == "" || c == "id" || c == "geometry" || c == "polyline" || slices.Contains(out, c) {
			continue
		}
		if _, found := slices.BinarySearch(known, c); !found {
			return nil, &ValidationError{Field: "columns", Reason: fmt.Sprintf("unknown column %q", c)}
		}
		out = append(out, c)
	}
	return out, nil
}

func (opts ExportOptions) dateFormat() DateFormat {
	if opts.DateFormat != "" {
		return opts.DateFormat
	}
	if opts.Format == export.FormatJSON || opts.Format == "" {
		return DateFormatISO
	}
	return DateFormatEpoch
}

// Export filters, simplifies and projects records.
// Records without geometry, or whose simplified geometry is empty, are dropped.
// The input is not modified.
func Export(ctx context.Context, records []activity.Record, opts ExportOptions) (*ExportResult, error) {
	columns, err := opts.columns()
	if err != nil {
		return nil, err
	}
	if opts.Format == "" {
		opts.Format = export.FormatJSON
	}
	dates := opts.dateFormat()

	sorted := slices.Clone(records)
	slices.SortFunc(sorted, func(a, b activity.Record) int {
		return cmp.Compare(a.ID, b.ID)
	})

	keep := func(rec activity.Record) bool {
		if !rec.HasGeometry() {
			return false
		}
		if opts.AthleteID != nil && rec.AthleteID != *opts.AthleteID {
			return false
		}
		return opts.Type == "" || rec.Type == opts.Type
	}
	simplified := func(rec activity.Record) activity.Record {
		rec.Geometry = simplify.Simplify(rec.Geometry, opts.Tolerance)
		return rec
	}
	nonEmpty := func(rec activity.Record) bool {
		return !simplify.Empty(rec.Geometry)
	}
	project := func(rec activity.Record) export.Feature {
		return projectRecord(rec, columns, dates)
	}

	features := stream.Collect(ctx,
		stream.Transform(ctx, project,
			stream.Filter(ctx, nonEmpty,
				stream.Transform(ctx, simplified,
					stream.Filter(ctx, keep,
						stream.Slice(ctx, sorted))))))
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &ExportResult{Format: opts.Format, Columns: columns, Features: features}, nil
}

func projectRecord(rec activity.Record, columns []string, dates DateFormat) export.Feature {
	props, err := rec.Properties()
	if err != nil {
		slog.Warn("Failed to read activity properties", "id", rec.ID, "error", err)
		props = map[string]any{}
	}
	projected := make(map[string]any, len(columns))
	for _, c := range columns {
		projected[c] = props[c]
	}
	if _, ok := projected["start_date_local"]; ok && dates == DateFormatEpoch {
		projected["start_date_local"] = rec.StartDateLocal.Unix()
	}
	return export.Feature{ID: rec.ID, Properties: projected, Geometry: rec.Geometry}
}

// ExportFromStore reads the snapshot export needs from s and exports it.
func ExportFromStore(ctx context.Context, s store.Store, opts ExportOptions) (*ExportResult, error) {
	var records []activity.Record
	if opts.AthleteID != nil {
		recs, err := s.GetByAthlete(ctx, *opts.AthleteID)
		if err != nil {
			return nil, err
		}
		records = recs
	} else {
		all, err := s.GetAll(ctx)
		if err != nil {
			return nil, err
		}
		records = store.Sorted(all)
	}
	return Export(ctx, records, opts)
}
