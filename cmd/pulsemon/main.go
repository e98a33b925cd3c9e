// pulsemon is the monitoring daemon: it runs the polling loops, serves the
// operational dashboards, and exposes the slot optimizer to the booking
// platform's API layer.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/tourwise/pulse/pkg/alerts"
	"github.com/tourwise/pulse/pkg/config"
	"github.com/tourwise/pulse/pkg/logging"
	"github.com/tourwise/pulse/pkg/metrics"
	"github.com/tourwise/pulse/pkg/monitor"
	"github.com/tourwise/pulse/pkg/probes"
	"github.com/tourwise/pulse/pkg/scheduling"
)

const (
	metricCacheTTL  = 5 * time.Minute
	shutdownTimeout = 15 * time.Second
)

func main() {
	configPath := flag.String("config", "", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewStructuredLogger(cfg.Logging)
	logger.Info("starting pulsemon",
		"ops_addr", cfg.Ops.ListenAddr,
		"redis_enabled", cfg.Redis.Enabled,
		"database_enabled", cfg.Database.Enabled,
		"external_services", len(cfg.ExternalServices))

	if err := run(cfg, *configPath, logger); err != nil {
		logger.ErrorErr("pulsemon exited with error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, configPath string, logger *logging.StructuredLogger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Durable cache is optional; an unreachable backend degrades to
	// memory-only operation.
	var cache metrics.Cache
	if cfg.Redis.Enabled {
		rc, err := metrics.NewRedisCache(cfg.Redis.RedisCacheConfig, logger)
		if err != nil {
			logger.Warn("redis unavailable, running memory-only", "error", err.Error())
		} else {
			cache = rc
		}
	}

	storeOpts := []metrics.StoreOption{}
	if cache != nil {
		storeOpts = append(storeOpts, metrics.WithCache(cache, metricCacheTTL))
	}
	store := metrics.NewStore(logger, storeOpts...)

	opts := monitor.Options{
		Resources: probes.NewResourceProbe(logger),
		Cache:     cache,
		Logger:    logger,
	}

	for _, target := range cfg.ExternalServices {
		opts.ServiceProbes = append(opts.ServiceProbes,
			probes.NewHTTPProbe(target.Name, target.URL, cfg.ProbeTimeout, logger))
	}

	var db *sql.DB
	if cfg.Database.Enabled {
		var err error
		db, err = sql.Open("postgres", cfg.Database.DSN)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()

		opts.DatabaseProbe = probes.NewDBProbe("database", db.PingContext, cfg.ProbeTimeout, logger)
		opts.CallAnalytics = monitor.NewSQLCallAnalyticsSource(db, logger)
		opts.SchedulingStats = monitor.NewSQLSchedulingAnalyticsSource(db, logger)
	}

	if cfg.Alerting.WebhookURL != "" {
		opts.AlertSink = alerts.NewWebhookSink(cfg.Alerting.WebhookURL, cfg.Alerting.Timeout, logger)
	}

	svc := monitor.NewService(cfg, store, opts)

	roster := scheduling.NewStaticRoster(rosterAgents(cfg))
	var history scheduling.AppointmentHistory
	if db != nil {
		history = scheduling.NewSQLAppointmentHistory(db)
	}
	optimizer := scheduling.NewSlotOptimizer(
		scheduling.NewTimezoneResolver(logger), roster, history,
		cfg.Scheduling.OpenHour, cfg.Scheduling.CloseHour, logger)

	// Configuration edits are picked up without a restart; only log level
	// and threshold changes apply live, everything else needs a restart.
	if configPath != "" {
		watcher, err := config.NewWatcher(configPath, logger, func(next *config.Config) {
			svc.SetThresholds(next.Thresholds)
			logger.Info("configuration reloaded", "thresholds", len(next.Thresholds))
		})
		if err != nil {
			logger.Warn("config watcher unavailable", "error", err.Error())
		} else {
			watcher.Start(ctx)
			defer watcher.Stop()
		}
	}

	svc.Start(ctx)
	defer svc.Stop()

	server := &http.Server{
		Addr:    cfg.Ops.ListenAddr,
		Handler: newRouter(svc, optimizer),
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("ops server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutdown requested")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func rosterAgents(cfg *config.Config) []scheduling.Agent {
	agents := make([]scheduling.Agent, 0, len(cfg.Scheduling.Agents))
	for _, a := range cfg.Scheduling.Agents {
		agents = append(agents, scheduling.Agent{
			ID:              a.ID,
			Specializations: a.Specializations,
			DailyCapacity:   a.DailyCapacity,
		})
	}
	return agents
}

func newRouter(svc *monitor.Service, optimizer *scheduling.SlotOptimizer) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)

	r.Handle("/metrics", promhttp.HandlerFor(svc.Exporter().Gatherer(), promhttp.HandlerOpts{}))

	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/dashboard", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, svc.SystemHealthDashboard())
	}).Methods(http.MethodGet)

	api.HandleFunc("/dashboard/calls", func(w http.ResponseWriter, req *http.Request) {
		snap, ok := svc.CallAnalyticsDashboard(req.Context())
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "no call analytics snapshot available"})
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}).Methods(http.MethodGet)

	api.HandleFunc("/dashboard/scheduling", func(w http.ResponseWriter, req *http.Request) {
		snap, ok := svc.SchedulingAnalyticsDashboard(req.Context())
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "no scheduling analytics snapshot available"})
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}).Methods(http.MethodGet)

	api.HandleFunc("/alerts", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, svc.RecentAlerts(queryLimit(req, 10)))
	}).Methods(http.MethodGet)

	api.HandleFunc("/metrics/custom", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Name        string            `json:"name"`
			Value       float64           `json:"value"`
			Kind        string            `json:"kind"`
			Labels      map[string]string `json:"labels"`
			Description string            `json:"description"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		if err := svc.RecordCustomMetric(body.Name, body.Value, metrics.Kind(body.Kind), body.Labels, body.Description); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}).Methods(http.MethodPost)

	api.HandleFunc("/metrics/custom/{name}", func(w http.ResponseWriter, req *http.Request) {
		name := mux.Vars(req)["name"]
		writeJSON(w, http.StatusOK, svc.CustomMetrics(name, queryLimit(req, 100)))
	}).Methods(http.MethodGet)

	api.HandleFunc("/appointments/slots", func(w http.ResponseWriter, req *http.Request) {
		var reqBody scheduling.AppointmentRequest
		if err := json.NewDecoder(req.Body).Decode(&reqBody); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		slots, err := optimizer.FindSlots(req.Context(), reqBody)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, slots)
	}).Methods(http.MethodPost)

	api.HandleFunc("/appointments/from-call", func(w http.ResponseWriter, req *http.Request) {
		var call scheduling.CallSummary
		if err := json.NewDecoder(req.Body).Decode(&call); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		slot, ok := optimizer.ScheduleFromCall(req.Context(), call)
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "no suitable slot found"})
			return
		}
		writeJSON(w, http.StatusOK, slot)
	}).Methods(http.MethodPost)

	return r
}

func queryLimit(req *http.Request, fallback int) int {
	raw := req.URL.Query().Get("limit")
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
