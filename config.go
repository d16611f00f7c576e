package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ───────── Environment helpers ─────────

func envString(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	switch strings.ToLower(v) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return def
	}
}

func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

// ───────── Config ─────────

type config struct {
	mode string // once | daemon | healthcheck | status

	// Catalog
	adapter     string // ckan | mock
	apiBase     string
	resourceID  string
	dateField   string
	pageSize    int
	httpTimeout time.Duration

	// Sync
	watermarkBuffer time.Duration
	statusFile      string

	// Schedule
	every   time.Duration
	dailyAt string

	// DB (optional; in-memory store when unset)
	pgDSN        string
	pgSchema     string
	pgBatch      int
	pgMaxConns   int
	pgViaBouncer bool

	// HTTP (metrics, pprof, status)
	httpAddr string

	// Logging
	jsonLogs bool
	logFile  string
	logLevel string
}

// fileConfig is the optional YAML config file shape (CONFIG_FILE). Values act
// as defaults; environment variables and flags override them.
type fileConfig struct {
	Catalog struct {
		Adapter    string `yaml:"adapter"`
		BaseURL    string `yaml:"base_url"`
		ResourceID string `yaml:"resource_id"`
		DateField  string `yaml:"date_field"`
		PageSize   int    `yaml:"page_size"`
		TimeoutSec int    `yaml:"timeout_seconds"`
	} `yaml:"catalog"`

	Sync struct {
		WatermarkBufferHours int    `yaml:"watermark_buffer_hours"`
		StatusFile           string `yaml:"status_file"`
	} `yaml:"sync"`

	Schedule struct {
		Every   string `yaml:"every"`
		DailyAt string `yaml:"daily_at"`
	} `yaml:"schedule"`

	Postgres struct {
		DSN        string `yaml:"dsn"`
		Schema     string `yaml:"schema"`
		BatchSize  int    `yaml:"batch_size"`
		MaxConns   int    `yaml:"max_conns"`
		ViaBouncer bool   `yaml:"via_bouncer"`
	} `yaml:"postgres"`

	HTTP struct {
		Addr string `yaml:"addr"`
	} `yaml:"http"`

	Logging struct {
		JSON  bool   `yaml:"json"`
		File  string `yaml:"file"`
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

func loadFileConfig(path string) (fileConfig, error) {
	var fc fileConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return fc, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fc, fmt.Errorf("parse config file: %w", err)
	}
	return fc, nil
}

// parseFlags resolves configuration with the precedence config file < env <
// flags. The file path itself comes from CONFIG_FILE.
func parseFlags() config {
	var fc fileConfig
	if path := envString("CONFIG_FILE", ""); path != "" {
		loaded, err := loadFileConfig(path)
		if err != nil {
			fmt.Fprintln(os.Stderr, "config:", err)
			os.Exit(2)
		}
		fc = loaded
	}

	pick := func(fileVal, builtin string) string {
		if fileVal != "" {
			return fileVal
		}
		return builtin
	}
	pickInt := func(fileVal, builtin int) int {
		if fileVal != 0 {
			return fileVal
		}
		return builtin
	}

	defEvery := 4 * time.Hour
	if fc.Schedule.Every != "" {
		if d, err := time.ParseDuration(fc.Schedule.Every); err == nil {
			defEvery = d
		}
	}
	defTimeout := time.Duration(pickInt(fc.Catalog.TimeoutSec, 120)) * time.Second
	defBuffer := time.Duration(pickInt(fc.Sync.WatermarkBufferHours, 24)) * time.Hour

	var cfg config
	flag.StringVar(&cfg.mode, "mode", envString("MODE", "once"),
		"Run mode: once | daemon | healthcheck | status. Env: MODE")

	flag.StringVar(&cfg.adapter, "catalog-adapter", envString("CATALOG_ADAPTER", pick(fc.Catalog.Adapter, "ckan")),
		"Catalog adapter: ckan | mock. Env: CATALOG_ADAPTER")
	flag.StringVar(&cfg.apiBase, "api-base", envString("API_BASE", pick(fc.Catalog.BaseURL, "https://www.phoenixopendata.com/api/3/action")),
		"Catalog API action base URL. Env: API_BASE")
	flag.StringVar(&cfg.resourceID, "resource-id", envString("RESOURCE_ID", pick(fc.Catalog.ResourceID, "0ce3411a-2fc6-4302-a33f-167f68608a20")),
		"Catalog resource id for the crime dataset. Env: RESOURCE_ID")
	flag.StringVar(&cfg.dateField, "date-field", envString("DATE_FIELD", pick(fc.Catalog.DateField, "OCCURRED ON")),
		"Upstream column used for incremental date filters. Env: DATE_FIELD")
	flag.IntVar(&cfg.pageSize, "page-size", envInt("PAGE_SIZE", pickInt(fc.Catalog.PageSize, 10000)),
		"Records per catalog page (upstream caps at 32000). Env: PAGE_SIZE")
	flag.DurationVar(&cfg.httpTimeout, "http-timeout", envDuration("HTTP_TIMEOUT", defTimeout),
		"Per-request catalog timeout. Env: HTTP_TIMEOUT")

	flag.DurationVar(&cfg.watermarkBuffer, "watermark-buffer", envDuration("WATERMARK_BUFFER", defBuffer),
		"Lookback subtracted from the stored high-water mark. Env: WATERMARK_BUFFER")
	flag.StringVar(&cfg.statusFile, "status-file", envString("STATUS_FILE", pick(fc.Sync.StatusFile, "run_status.json")),
		"Path of the JSON run-report document. Env: STATUS_FILE")

	flag.DurationVar(&cfg.every, "every", envDuration("SYNC_EVERY", defEvery),
		"Daemon: interval between cycles (0 disables). Env: SYNC_EVERY")
	flag.StringVar(&cfg.dailyAt, "daily-at", envString("SYNC_DAILY_AT", pick(fc.Schedule.DailyAt, "11:30")),
		"Daemon: additional daily HH:MM trigger (empty disables). Env: SYNC_DAILY_AT")

	flag.StringVar(&cfg.pgDSN, "pg-dsn", envString("PG_DSN", fc.Postgres.DSN),
		"Postgres DSN; empty runs with the in-memory store. Env: PG_DSN")
	flag.StringVar(&cfg.pgSchema, "pg-schema", envString("PG_SCHEMA", pick(fc.Postgres.Schema, "public")),
		"Target Postgres schema. Env: PG_SCHEMA")
	flag.IntVar(&cfg.pgBatch, "pg-batch", envInt("PG_BATCH", pickInt(fc.Postgres.BatchSize, 200)),
		"DB insert batch size. Env: PG_BATCH")
	flag.IntVar(&cfg.pgMaxConns, "pg-max-conns", envInt("PG_MAX_CONNS", pickInt(fc.Postgres.MaxConns, 2)),
		"DB max connections. Env: PG_MAX_CONNS")
	flag.BoolVar(&cfg.pgViaBouncer, "pg-via-bouncer", envBool("PG_VIA_BOUNCER", fc.Postgres.ViaBouncer),
		"Use simple protocol for PgBouncer txn pooling. Env: PG_VIA_BOUNCER")

	flag.StringVar(&cfg.httpAddr, "http", envString("HTTP_ADDR", fc.HTTP.Addr),
		"Serve /metrics, /status and /debug/pprof/* on this address, e.g. :6060. Env: HTTP_ADDR")

	flag.BoolVar(&cfg.jsonLogs, "json-logs", envBool("JSON_LOGS", fc.Logging.JSON),
		"Emit JSON log lines instead of console output. Env: JSON_LOGS")
	flag.StringVar(&cfg.logFile, "log-file", envString("LOG_FILE", fc.Logging.File),
		"Also append JSON log lines to this file. Env: LOG_FILE")
	flag.StringVar(&cfg.logLevel, "log-level", envString("LOG_LEVEL", pick(fc.Logging.Level, "info")),
		"Log level: debug | info | warn | error. Env: LOG_LEVEL")

	flag.Parse()

	if cfg.pageSize <= 0 {
		cfg.pageSize = 10000
	}
	if cfg.watermarkBuffer < 0 {
		cfg.watermarkBuffer = 0
	}
	switch cfg.mode {
	case "once", "daemon", "healthcheck", "status":
	default:
		fmt.Fprintf(os.Stderr, "unknown mode %q (want once|daemon|healthcheck|status)\n", cfg.mode)
		os.Exit(2)
	}
	if cfg.mode == "daemon" && cfg.every <= 0 && cfg.dailyAt == "" {
		fmt.Fprintln(os.Stderr, "daemon mode needs --every and/or --daily-at")
		os.Exit(2)
	}

	return cfg
}
