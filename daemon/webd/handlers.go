package webd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rotblauer/stravad/api"
	"github.com/rotblauer/stravad/conceptual"
	"github.com/rotblauer/stravad/params"
	"github.com/rotblauer/stravad/secrets"
	"github.com/rotblauer/stravad/strava"
	"github.com/rotblauer/stravad/types/activity"
	"github.com/rotblauer/stravad/types/export"
	"github.com/rotblauer/stravad/types/polyline"
)

// maxWebhookBody bounds webhook POST bodies; Strava events are a few hundred bytes.
const maxWebhookBody = 64 << 10

func pingPong(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("pong"))
}

func writeJSONError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

type backfillReport struct {
	AthleteID conceptual.AthleteID `json:"athlete_id"`
	Finished  time.Time            `json:"finished"`
	Summary   api.BackfillSummary  `json:"summary"`
	Error     string               `json:"error,omitempty"`
}

type webDaemonStatus struct {
	StartedAt       time.Time               `json:"started_at"`
	Uptime          string                  `json:"uptime"`
	Config          *params.WebDaemonConfig `json:"config"`
	WSOpen          bool                    `json:"ws_open"`
	WSConns         int                     `json:"ws_conns"`
	BackfillRunning bool                    `json:"backfill_running"`
	LastBackfill    *backfillReport         `json:"last_backfill,omitempty"`
}

func (s *WebDaemon) statusReport(w http.ResponseWriter, r *http.Request) {
	config := *s.Config
	if config.WebhookVerifyToken != "" {
		config.WebhookVerifyToken = "***REDACTED***"
	}
	if config.BackfillToken != "" {
		config.BackfillToken = "***REDACTED***"
	}
	st := webDaemonStatus{
		StartedAt:       s.started,
		Uptime:          humanize.RelTime(s.started, time.Now(), "", ""),
		Config:          &config,
		WSOpen:          !s.melodyInstance.IsClosed(),
		WSConns:         s.melodyInstance.Len(),
		BackfillRunning: s.backfillRunning.Load(),
		LastBackfill:    s.lastBackfill.Load(),
	}
	j, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		s.logger.Error("Failed to marshal status", "error", err)
		http.Error(w, "Failed to marshal status", http.StatusInternalServerError)
		return
	}
	if _, err := w.Write(j); err != nil {
		s.logger.Error("Failed to write response", "error", err)
	}
}

// handleWebhookChallenge answers the subscription validation request
// by echoing hub.challenge.
// https://developers.strava.com/docs/webhooks/#subscription-validation-request
func (s *WebDaemon) handleWebhookChallenge(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if s.Config.WebhookVerifyToken != "" && q.Get("hub.verify_token") != s.Config.WebhookVerifyToken {
		s.logger.Warn("Webhook verify token mismatch", "remote", r.RemoteAddr)
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	challenge := q.Get("hub.challenge")
	if challenge == "" {
		writeJSONError(w, http.StatusBadRequest, &api.ValidationError{Field: "hub.challenge", Reason: "required"})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"hub.challenge": challenge})
}

// handleWebhookEvent receives a Strava push event.
// Anything but an activity create or update is acknowledged with "Error",
// so that Strava does not retry it.
func (s *WebDaemon) handleWebhookEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	ev, err := api.ParseWebhookEvent(body)
	if err != nil {
		s.logger.Warn("Rejected webhook event", "error", err)
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	s.logger.Info("Webhook event", "object_type", ev.ObjectType, "aspect_type", ev.AspectType,
		"object_id", ev.ObjectID, "owner_id", ev.OwnerID)

	rec, err := s.Ingester.HandleWebhookEvent(r.Context(), ev)

	var ce *secrets.CredentialError
	var ue *strava.UpstreamAPIError
	switch {
	case err == nil:
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(activityJSON(rec))
	case errors.Is(err, api.ErrIgnoredEvent):
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("Error"))
	case errors.Is(err, api.ErrDuplicateDelivery):
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "duplicate"})
	case errors.As(err, &ce):
		s.logger.Error("Webhook credentials failed", "owner_id", ev.OwnerID, "error", err)
		writeJSONError(w, http.StatusInternalServerError, err)
	case errors.As(err, &ue):
		s.logger.Error("Webhook upstream failed", "object_id", ev.ObjectID, "error", err)
		writeJSONError(w, http.StatusBadGateway, err)
	default:
		s.logger.Error("Webhook ingest failed", "object_id", ev.ObjectID, "error", err)
		writeJSONError(w, http.StatusInternalServerError, err)
	}
}

// activityJSON is the wire form of a stored activity for clients:
// the stored body with its id, and the route as a polyline instead of WKT.
func activityJSON(rec activity.Record) map[string]any {
	props, err := rec.Properties()
	if err != nil {
		props = map[string]any{}
	}
	props["id"] = int64(rec.ID)
	props["polyline"] = nil
	if rec.HasGeometry() {
		props["polyline"] = polyline.Encode(rec.Geometry, polyline.DefaultPrecision)
	}
	return props
}

func (s *WebDaemon) requestAthlete(r *http.Request) (conceptual.AthleteID, error) {
	v := r.URL.Query().Get("athlete")
	if v == "" {
		return conceptual.AthleteID(s.Export.DefaultAthleteID), nil
	}
	id, err := conceptual.ParseAthleteID(v)
	if err != nil || id.IsEmpty() {
		return 0, &api.ValidationError{Field: "athlete", Reason: fmt.Sprintf("%q is not an athlete id", v)}
	}
	return id, nil
}

// handleBackfill starts a backfill for the requested athlete in the background.
func (s *WebDaemon) handleBackfill(w http.ResponseWriter, r *http.Request) {
	athleteID, err := s.requestAthlete(r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	if !s.backfillRunning.CompareAndSwap(false, true) {
		writeJSONError(w, http.StatusConflict, errors.New("a backfill is already running"))
		return
	}
	go func() {
		defer s.backfillRunning.Store(false)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() {
			select {
			case <-s.quit:
				cancel()
			case <-ctx.Done():
			}
		}()
		summary, err := s.Ingester.Backfill(ctx, athleteID)
		report := &backfillReport{AthleteID: athleteID, Finished: time.Now(), Summary: summary}
		if err != nil {
			report.Error = err.Error()
			s.logger.Error("Backfill failed", "athlete", athleteID, "error", err)
		}
		s.lastBackfill.Store(report)
	}()
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]any{"status": "started", "athlete_id": athleteID})
}

func (s *WebDaemon) exportOptions(r *http.Request, format export.Format) (api.ExportOptions, error) {
	opts := api.DefaultExportOptions(s.Export, format)
	athleteID, err := s.requestAthlete(r)
	if err != nil {
		return opts, err
	}
	opts.AthleteID = &athleteID

	q := r.URL.Query()
	opts.Type = q.Get("type")
	if v := q.Get("columns"); v != "" {
		opts.Columns = strings.Split(v, ",")
	}
	if v := q.Get("tolerance"); v != "" {
		tol, err := strconv.ParseFloat(v, 64)
		if err != nil || tol < 0 {
			return opts, &api.ValidationError{Field: "tolerance", Reason: fmt.Sprintf("%q is not a non-negative number", v)}
		}
		opts.Tolerance = tol
	}
	switch v := api.DateFormat(q.Get("dates")); v {
	case "":
	case api.DateFormatISO, api.DateFormatEpoch:
		opts.DateFormat = v
	default:
		return opts, &api.ValidationError{Field: "dates", Reason: fmt.Sprintf("%q is not iso or epoch", v)}
	}
	return opts, nil
}

func (s *WebDaemon) handleExport(format export.Format) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		opts, err := s.exportOptions(r, format)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, err)
			return
		}
		res, err := api.ExportFromStore(r.Context(), s.Store, opts)
		var ve *api.ValidationError
		if errors.As(err, &ve) {
			writeJSONError(w, http.StatusBadRequest, err)
			return
		}
		if err != nil {
			s.logger.Error("Export failed", "error", err)
			writeJSONError(w, http.StatusInternalServerError, err)
			return
		}

		// Encode fully before writing, so a failure can still be reported.
		buf := bytes.Buffer{}
		if err := res.Write(&buf); err != nil {
			s.logger.Error("Export encoding failed", "format", format, "error", err)
			writeJSONError(w, http.StatusInternalServerError, err)
			return
		}
		w.Header().Set("Content-Type", format.ContentType())
		if format == export.FormatShapefile {
			w.Header().Set("Content-Disposition", `attachment; filename="activities`+format.Extension()+`"`)
		}
		s.logger.Debug("Export", "format", format, "features", len(res.Features), "size", humanize.Bytes(uint64(buf.Len())))
		if _, err := buf.WriteTo(w); err != nil {
			s.logger.Warn("Failed to write export", "error", err)
		}
	}
}
