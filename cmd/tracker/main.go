package main

import (
	"context"
	"encoding/json"
	goerrors "errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/lancelop89/shorts-tracker/internal/config"
	"github.com/lancelop89/shorts-tracker/internal/discovery"
	"github.com/lancelop89/shorts-tracker/internal/errors"
	"github.com/lancelop89/shorts-tracker/internal/logger"
	"github.com/lancelop89/shorts-tracker/internal/metrics"
	"github.com/lancelop89/shorts-tracker/internal/retry"
	"github.com/lancelop89/shorts-tracker/internal/scheduler"
	"github.com/lancelop89/shorts-tracker/internal/storage"
	"github.com/lancelop89/shorts-tracker/internal/tracker"
	"github.com/lancelop89/shorts-tracker/internal/window"
	"github.com/lancelop89/shorts-tracker/internal/youtube"
)

var ( // These variables are set at build time
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// runner is the part of the reconciler the HTTP surface needs.
type runner interface {
	RunOnce(ctx context.Context, trigger tracker.Trigger) (*tracker.RunSummary, error)
}

// snapshotReader serves the read-only store view.
type snapshotReader interface {
	ReadAll(ctx context.Context) (*storage.Snapshot, error)
}

type app struct {
	runner     runner
	store      snapshotReader
	metrics    *metrics.Metrics
	log        *logger.Logger
	runTimeout time.Duration
}

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to configuration file")
	flag.Parse()

	log := logger.New()
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal("Failed to load configuration", err, nil)
	}
	log = logger.NewWithConfig(cfg.Logging.Level, cfg.Logging.Format)
	defer log.Sync()
	retry.SetLogger(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.NewMetrics()

	ytClient, err := youtube.NewClient(ctx, cfg.YouTube.APIKey,
		youtube.WithRequestTimeout(cfg.YouTube.RequestTimeout),
		youtube.WithMetrics(m),
	)
	if err != nil {
		log.Fatal("Error creating YouTube client", err, nil)
	}

	store, err := storage.NewStore(ctx, storage.Options{
		Backend: cfg.Storage.Backend,
		Sheets: storage.SheetsOptions{
			SpreadsheetID:   cfg.Storage.Sheets.SpreadsheetID,
			SheetName:       cfg.Storage.Sheets.SheetName,
			CredentialsFile: cfg.Storage.Sheets.CredentialsFile,
		},
		BigQuery: storage.BigQueryOptions{
			ProjectID: cfg.GCP.ProjectID,
			DatasetID: cfg.Storage.BigQuery.DatasetID,
			TableID:   cfg.Storage.BigQuery.TableID,
			Location:  cfg.Storage.BigQuery.Location,
		},
		BoltPath:   cfg.Storage.Bolt.Path,
		SQLitePath: cfg.Storage.SQLite.Path,
	})
	if err != nil {
		log.Fatal("Error creating store", err, map[string]string{"backend": cfg.Storage.Backend})
	}
	defer store.Close()
	store = storage.Instrument(store, m, cfg.Storage.Backend)

	retryCfg := retry.SingleRetry(cfg.YouTube.RetryDelay)
	engine := discovery.NewEngine(ytClient, window.NewResolver(nil), discovery.Options{
		IsolateChannelFailures: cfg.Discovery.IsolateChannelFailures,
		Retry:                  retryCfg,
		Metrics:                m,
	}, log)

	reconciler, err := tracker.NewReconciler(tracker.Config{
		Store:      store,
		Discoverer: engine,
		Counters:   ytClient,
		Channels:   cfg.GetEnabledChannelIDs(),
		Retry:      retryCfg,
		Logger:     log,
		Metrics:    m,
	})
	if err != nil {
		log.Fatal("Error creating reconciler", err, nil)
	}

	a := &app{
		runner:     reconciler,
		store:      store,
		metrics:    m,
		log:        log,
		runTimeout: cfg.App.RunTimeout,
	}

	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		sched, err = scheduler.New(a.scheduledRun,
			scheduler.WithSpec(cfg.Scheduler.Spec),
			scheduler.WithLogger(log),
		)
		if err != nil {
			log.Fatal("Error creating scheduler", err, nil)
		}
		sched.Start(ctx)
	}

	srv := &http.Server{
		Addr:           ":" + cfg.Server.Port,
		Handler:        a.routes(),
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	idleConnsClosed := make(chan struct{})
	go func() {
		<-ctx.Done()
		log.Info("Shutting down server...", nil)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if sched != nil {
			select {
			case <-sched.Stop().Done():
			case <-shutdownCtx.Done():
				log.Warning("Scheduled run still in flight at shutdown", shutdownCtx.Err(), nil)
			}
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("Server shutdown error", err, nil)
		}
		close(idleConnsClosed)
	}()

	log.Info(fmt.Sprintf("Starting server on port %s", cfg.Server.Port), map[string]string{
		"environment": cfg.App.Environment,
		"backend":     cfg.Storage.Backend,
		"channels":    fmt.Sprintf("%d", len(cfg.GetEnabledChannelIDs())),
		"scheduler":   fmt.Sprintf("%t", cfg.Scheduler.Enabled),
	})

	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatal("Server failed to start", err, nil)
	}

	<-idleConnsClosed
	log.Info("Server stopped", nil)
}

func (a *app) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Post("/run", a.runHandler)
	r.Get("/samples", a.samplesHandler)
	r.Get("/healthz", healthzHandler)
	r.Get("/info", infoHandler)
	if a.metrics != nil {
		r.Method(http.MethodGet, "/metrics", a.metrics.Handler())
	}
	return r
}

func (a *app) runContext(parent context.Context) (context.Context, context.CancelFunc) {
	if a.runTimeout > 0 {
		return context.WithTimeout(parent, a.runTimeout)
	}
	return context.WithCancel(parent)
}

// scheduledRun is the hourly job.
func (a *app) scheduledRun(ctx context.Context) {
	ctx, cancel := a.runContext(ctx)
	defer cancel()

	summary, err := a.runner.RunOnce(ctx, tracker.TriggerScheduled)
	if err != nil {
		if goerrors.Is(err, tracker.ErrRunInProgress) {
			return
		}
		a.log.Error("Scheduled run failed", err, nil)
		return
	}
	a.log.Info("Scheduled run finished", map[string]string{
		"appended":   fmt.Sprintf("%d", summary.Appended),
		"duplicates": fmt.Sprintf("%d", summary.Duplicates),
		"tracked":    fmt.Sprintf("%d", summary.Tracked),
	})
}

func (a *app) runHandler(w http.ResponseWriter, r *http.Request) {
	// The run outlives a disconnected client.
	ctx, cancel := a.runContext(context.WithoutCancel(r.Context()))
	defer cancel()

	summary, err := a.runner.RunOnce(ctx, tracker.TriggerManual)
	switch {
	case goerrors.Is(err, tracker.ErrRunInProgress):
		writeJSON(w, http.StatusConflict, map[string]string{"status": "busy", "error": err.Error()})
		return
	case err != nil:
		labels := map[string]string{}
		if errType, ok := errors.GetType(err); ok {
			labels["error_type"] = string(errType)
		}
		a.log.Error("Manual run failed", err, labels)
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"status":  "error",
			"error":   err.Error(),
			"summary": summary,
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "success",
		"summary": summary,
	})
}

func (a *app) samplesHandler(w http.ResponseWriter, r *http.Request) {
	snapshot, err := a.store.ReadAll(r.Context())
	if err != nil {
		a.log.Error("Error reading store", err, nil)
		http.Error(w, "Failed to read store", http.StatusInternalServerError)
		return
	}
	if snapshot == nil {
		snapshot = &storage.Snapshot{}
	}
	if snapshot.Rows == nil {
		snapshot.Rows = []storage.Row{}
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func healthzHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func infoHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	info := map[string]string{
		"version":   version,
		"commit":    commit,
		"buildTime": buildTime,
		"goVersion": runtime.Version(),
		"os":        runtime.GOOS,
		"arch":      runtime.GOARCH,
	}
	json.NewEncoder(w).Encode(info)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
