package webd

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/olahol/melody"
	"github.com/rotblauer/stravad/api"
	"github.com/rotblauer/stravad/catdb/store"
	"github.com/rotblauer/stravad/params"
	"github.com/rotblauer/stravad/types/export"
)

type WebDaemon struct {
	Config   *params.WebDaemonConfig
	Export   *params.ExportConfig
	Ingester *api.Ingester
	Store    store.Store

	logger         *slog.Logger
	melodyInstance *melody.Melody
	started        time.Time
	listener       net.Listener
	server         *http.Server
	quit           chan struct{}
	quitOnce       sync.Once

	backfillRunning atomic.Bool
	lastBackfill    atomic.Pointer[backfillReport]
}

func NewWebDaemon(config *params.WebDaemonConfig, exportConfig *params.ExportConfig, ingester *api.Ingester, s store.Store) *WebDaemon {
	if config == nil {
		config = params.DefaultWebDaemonConfig()
	}
	if exportConfig == nil {
		exportConfig = params.DefaultExportConfig()
	}
	return &WebDaemon{
		Config:   config,
		Export:   exportConfig,
		Ingester: ingester,
		Store:    s,
		logger:   slog.With("d", "web"),
		started:  time.Now(),
		quit:     make(chan struct{}),
	}
}

// Start listens on the configured address and serves in the background.
func (s *WebDaemon) Start() error {
	l, err := net.Listen(s.Config.Network, s.Config.Address)
	if err != nil {
		return err
	}
	s.listener = l
	s.server = &http.Server{
		Handler:           s.NewRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting web daemon", "network", s.Config.Network, "address", l.Addr().String())
	go func() {
		if err := s.server.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Web daemon stopped", "error", err)
		}
	}()
	return nil
}

// Addr is the address the daemon is listening on, once started.
func (s *WebDaemon) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop closes websocket sessions and gracefully shuts down the server.
func (s *WebDaemon) Stop(ctx context.Context) error {
	s.quitOnce.Do(func() { close(s.quit) })
	if s.melodyInstance != nil && !s.melodyInstance.IsClosed() {
		_ = s.melodyInstance.Close()
	}
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *WebDaemon) NewRouter() *mux.Router {
	router := mux.NewRouter().StrictSlash(false)
	router.Use(s.loggingMiddleware)

	// Handle websocket.
	s.initMelody()
	router.Path("/socket").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = s.melodyInstance.HandleRequest(w, r)
	})

	apiRoutes := router.NewRoute().Subrouter()

	// All API routes use permissive CORS settings; the map front-end is served elsewhere.
	apiRoutes.Use(permissiveCorsMiddleware)

	// /ping is a simple server healthcheck endpoint
	apiRoutes.Path("/ping").HandlerFunc(pingPong)

	// Strava webhook subscription handshake and event delivery.
	apiRoutes.Path("/webhook").HandlerFunc(s.handleWebhookChallenge).Methods(http.MethodGet)
	apiRoutes.Path("/webhook").HandlerFunc(s.handleWebhookEvent).Methods(http.MethodPost)

	apiRoutes.Path("/export.shp.zip").HandlerFunc(s.handleExport(export.FormatShapefile)).Methods(http.MethodGet)

	apiJSONRoutes := apiRoutes.NewRoute().Subrouter()
	apiJSONRoutes.Use(contentTypeMiddlewareFunc("application/json"))

	apiJSONRoutes.Path("/status").HandlerFunc(s.statusReport).Methods(http.MethodGet)
	apiJSONRoutes.Path("/export").HandlerFunc(s.handleExport(export.FormatJSON)).Methods(http.MethodGet)
	apiJSONRoutes.Path("/export.json").HandlerFunc(s.handleExport(export.FormatJSON)).Methods(http.MethodGet)
	apiJSONRoutes.Path("/export.geojson").HandlerFunc(s.handleExport(export.FormatGeoJSON)).Methods(http.MethodGet)

	authenticatedAPIRoutes := apiJSONRoutes.NewRoute().Subrouter()
	authenticatedAPIRoutes.Use(tokenAuthenticationMiddleware(s.Config.BackfillToken))
	authenticatedAPIRoutes.Path("/backfill").HandlerFunc(s.handleBackfill).Methods(http.MethodPost)

	return router
}
