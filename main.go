// Crime catalog sync job
// ----------------------
//
// Incrementally mirrors a public crime-incident dataset from a CKAN-style
// open-data catalog into Postgres:
//   • watermark-based incremental fetch (paginated datastore_search)
//   • normalization into the crimes schema, with per-record drop accounting
//   • bulk dedup against the store, append-only batched inserts
//   • a JSON run-report document overwritten after every cycle
//   • optional recurring scheduler (fixed interval and/or daily at HH:MM)
//   • embedded /metrics (Prometheus), /status and /debug/pprof/*
//
// Configuration is primarily via environment variables (flags can override,
// CONFIG_FILE points at an optional YAML file):
//   MODE, API_BASE, RESOURCE_ID, PAGE_SIZE, PG_DSN, PG_SCHEMA, STATUS_FILE,
//   SYNC_EVERY, SYNC_DAILY_AT, HTTP_ADDR, JSON_LOGS, LOG_FILE, ...
//
// Without PG_DSN the job runs against an in-memory store, and with
// CATALOG_ADAPTER=mock it is fully offline-safe for demos.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"crime-data-sync/catalog"
	"crime-data-sync/updater"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

func main() {
	cfg := parseFlags()
	log := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	adapter, err := buildAdapter(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("catalog adapter init failed")
	}

	reports := updater.NewReportStore(cfg.statusFile, log.With().Str("component", "reports").Logger())

	switch cfg.mode {
	case "status":
		runStatus(reports)
		return
	case "healthcheck":
		runHealthcheck(ctx, adapter, log)
		return
	}

	store, cleanup, err := buildStore(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("store init failed")
	}
	defer cleanup()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	metrics := updater.NewMetrics(registry)

	upd, err := updater.NewUpdater(updater.UpdaterOptions{
		Catalog:         adapter,
		Store:           store,
		Reports:         reports,
		Metrics:         metrics,
		Logger:          log.With().Str("component", "updater").Logger(),
		WatermarkBuffer: cfg.watermarkBuffer,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("updater init failed")
	}

	startHTTP(cfg.httpAddr, registry, reports, log)

	switch cfg.mode {
	case "once":
		rep := upd.RunOnce(ctx)
		fmt.Printf("success=%t fetched=%d cleaned=%d inserted=%d skipped=%d duration=%s\n",
			rep.Success, rep.RecordsFetched, rep.RecordsCleaned, rep.RecordsInserted, rep.RecordsSkipped, rep.Duration)
		if !rep.Success {
			os.Exit(1)
		}
	case "daemon":
		runDaemon(ctx, cfg, upd, log)
	}
}

func newLogger(cfg config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.TimeFieldFormat = time.RFC3339

	var console io.Writer = os.Stdout
	if !cfg.jsonLogs {
		console = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	writer := console
	if cfg.logFile != "" {
		f, err := os.OpenFile(cfg.logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			fmt.Fprintln(os.Stderr, "log file:", err)
			os.Exit(2)
		}
		writer = zerolog.MultiLevelWriter(console, f)
	}
	return zerolog.New(writer).Level(level).With().Timestamp().Logger()
}

func buildAdapter(cfg config, log zerolog.Logger) (catalog.CatalogAdapter, error) {
	switch cfg.adapter {
	case "mock":
		return catalog.NewMock(catalog.MockOptions{
			Logger: log.With().Str("component", "catalog-mock").Logger(),
		}), nil
	case "ckan":
		return catalog.NewClient(catalog.ClientOptions{
			BaseURL:    cfg.apiBase,
			ResourceID: cfg.resourceID,
			DateField:  cfg.dateField,
			PageSize:   cfg.pageSize,
			Timeout:    cfg.httpTimeout,
			Logger:     log.With().Str("component", "catalog").Logger(),
		})
	default:
		return nil, fmt.Errorf("unknown catalog adapter %q", cfg.adapter)
	}
}

func buildStore(ctx context.Context, cfg config, log zerolog.Logger) (updater.CrimeStore, func(), error) {
	if cfg.pgDSN == "" {
		log.Warn().Msg("no PG_DSN set; using in-memory store (records are not durable)")
		return updater.NewMemStore(), func() {}, nil
	}
	pg, err := updater.NewPGStore(ctx, updater.PGStoreOptions{
		DSN:        cfg.pgDSN,
		Schema:     cfg.pgSchema,
		BatchSize:  cfg.pgBatch,
		MaxConns:   cfg.pgMaxConns,
		ViaBouncer: cfg.pgViaBouncer,
		Logger:     log.With().Str("component", "store").Logger(),
	})
	if err != nil {
		return nil, nil, err
	}
	if err := pg.EnsureSchema(ctx); err != nil {
		pg.Close()
		return nil, nil, err
	}
	return pg, pg.Close, nil
}

func runDaemon(ctx context.Context, cfg config, upd *updater.Updater, log zerolog.Logger) {
	sched, err := updater.NewScheduler(updater.SchedulerOptions{
		Updater: upd,
		Every:   cfg.every,
		DailyAt: cfg.dailyAt,
		Logger:  log.With().Str("component", "scheduler").Logger(),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("scheduler init failed")
	}
	sched.Start(ctx)

	// Kick off one cycle immediately rather than waiting a full interval.
	if _, ok := upd.TryRunOnce(ctx); !ok {
		log.Warn().Msg("startup cycle skipped")
	}

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")
	sched.Stop()
}

func runHealthcheck(ctx context.Context, adapter catalog.CatalogAdapter, log zerolog.Logger) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	md, err := adapter.Metadata(ctx)
	if err != nil {
		log.Error().Err(err).Msg("metadata probe failed")
		os.Exit(1)
	}
	total, err := adapter.TotalRecords(ctx)
	if err != nil {
		log.Error().Err(err).Msg("record count probe failed")
		os.Exit(1)
	}
	fmt.Printf("healthcheck=ok dataset=%q last_modified=%s upstream_total=%d\n", md.Name, md.LastModified, total)
}

func runStatus(reports *updater.ReportStore) {
	rep, err := reports.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "status:", err)
		os.Exit(1)
	}
	if rep == nil {
		fmt.Println("no run recorded yet")
		return
	}
	out, _ := json.MarshalIndent(rep, "", "  ")
	fmt.Println(string(out))
}

// startHTTP serves Prometheus metrics, the last run report and pprof.
func startHTTP(addr string, registry *prometheus.Registry, reports *updater.ReportStore, log zerolog.Logger) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		rep, err := reports.Load()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if rep == nil {
			http.Error(w, "no run recorded yet", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(rep)
	})

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "ok")
	})

	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Error().Err(err).Str("addr", addr).Msg("http server stopped")
		}
	}()
	log.Info().Str("addr", addr).Msg("http server listening")
}
