// Command wayfinder serves campus guided navigation: the route catalog, navigation
// sessions and the exam ledger.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/ensam-campus/wayfinder/internal/api"
	"github.com/ensam-campus/wayfinder/internal/asset"
	"github.com/ensam-campus/wayfinder/internal/catalog"
	"github.com/ensam-campus/wayfinder/internal/config"
	"github.com/ensam-campus/wayfinder/internal/exams"
	"github.com/ensam-campus/wayfinder/internal/lockfile"
	"github.com/ensam-campus/wayfinder/internal/qr"
	"github.com/ensam-campus/wayfinder/internal/session"
	"github.com/ensam-campus/wayfinder/internal/store"
	"github.com/ensam-campus/wayfinder/internal/util"
	"github.com/joho/godotenv"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for wayfinder state data
	DefaultStateDir = "/var/lib/wayfinder"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "wayfinder.db"
	// staticPrefix is where the API serves the static asset directory.
	staticPrefix = "/assets/"
)

func main() {
	// Load environment configuration
	cfg := loadEnvironmentConfig()
	initializeLogger(cfg.LogLevel)

	flags, err := parseCommandLineFlags(flag.CommandLine, os.Args[1:], cfg)
	if err != nil {
		slog.Error("Failed to parse flags", "error", err)
		os.Exit(2)
	}

	if flags.printQR != "" {
		if err := printRouteQR(os.Stdout, flags); err != nil {
			slog.Error("Failed to print route QR code", "error", err)
			os.Exit(1)
		}
		return
	}

	if err := run(flags); err != nil {
		slog.Error("wayfinder failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("wayfinder exited successfully")
}

// run wires every component and serves until SIGINT or SIGTERM.
func run(flags Flags) error {
	lock, err := lockfile.AcquireLock(flags.stateDir, flags.apiAddr)
	if err != nil {
		return err
	}
	defer lock.Release()

	if err := ensureDirectoriesExist(flags); err != nil {
		return err
	}

	tuning, err := config.Load(flags.tuningFile)
	if err != nil {
		return err
	}

	st, err := store.New(buildStoreOptions(flags)...)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	catalogOpts := []catalog.Option{catalog.WithGenderedIDs(tuning.GenderedIDs)}
	cat, directory, roster, err := loadData(ctx, flags, catalogOpts)
	if err != nil {
		return err
	}

	manager := session.NewManager(cat, buildSessionOptions(flags, tuning, st)...)
	server := api.NewServer(buildAPIOptions(flags, manager, st, directory, roster, catalogOpts)...)

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-done
		slog.Info("shutdown signal received", "signal", sig.String())
		cancel()
	}()

	slog.Info("Bootstrapping wayfinder",
		"routes", cat.Len(),
		"dropped", cat.Dropped(),
		"categories", len(directory.Categories),
		"exam_assignments", roster.Len(),
		"api_addr", flags.apiAddr)
	return server.Run(ctx)
}

// Config holds environment configuration
type Config struct {
	StateDir      string
	DatabaseDSN   string
	InMemory      bool
	APIAddr       string
	CatalogSource string
	Directory     string
	ExamsSource   string
	AssetBaseURL  string
	StaticDir     string
	PublicURL     string
	TuningFile    string
	LogLevel      string
}

// Flags holds command line flag values
type Flags struct {
	stateDir      string
	dbDSN         string
	inMemory      bool
	apiAddr       string
	catalogSource string
	directory     string
	examsSource   string
	assetBaseURL  string
	staticDir     string
	publicURL     string
	tuningFile    string
	printQR       string
	qrOutput      string
}

// initializeLogger sets up structured logging at the configured level, debug by default
func initializeLogger(level string) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(level)}))
	slog.SetDefault(logger)
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelDebug
	}
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		StateDir:      util.EnvOr("WAYFINDER_STATE_DIR", DefaultStateDir),
		InMemory:      util.ParseBoolEnv("WAYFINDER_IN_MEMORY", false),
		APIAddr:       os.Getenv("API_ADDR"),
		CatalogSource: os.Getenv("WAYFINDER_CATALOG"),
		Directory:     os.Getenv("WAYFINDER_DIRECTORY"),
		ExamsSource:   os.Getenv("WAYFINDER_EXAMS"),
		AssetBaseURL:  os.Getenv("WAYFINDER_ASSET_BASE_URL"),
		StaticDir:     os.Getenv("WAYFINDER_STATIC_DIR"),
		PublicURL:     os.Getenv("WAYFINDER_PUBLIC_URL"),
		TuningFile:    os.Getenv("WAYFINDER_TUNING_FILE"),
		LogLevel:      os.Getenv("WAYFINDER_LOG_LEVEL"),
	}

	dsn, from := util.FirstEnv("WAYFINDER_DB_DSN", "DATABASE_URL")
	config.DatabaseDSN = dsn
	if from == "DATABASE_URL" {
		slog.Debug("Using DATABASE_URL as WAYFINDER_DB_DSN", "dsn_set", true)
	}
	if config.DatabaseDSN == "" {
		config.DatabaseDSN = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseDSN)
	}
	if config.APIAddr == "" {
		config.APIAddr = api.DefaultAddr
	}

	slog.Debug("environment variables loaded",
		"WAYFINDER_STATE_DIR", config.StateDir,
		"WAYFINDER_DB_DSN_SET", config.DatabaseDSN != "",
		"WAYFINDER_IN_MEMORY", config.InMemory,
		"API_ADDR", config.APIAddr,
		"WAYFINDER_CATALOG", config.CatalogSource,
		"WAYFINDER_STATIC_DIR", config.StaticDir,
		"WAYFINDER_TUNING_FILE", config.TuningFile)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(fs *flag.FlagSet, args []string, config Config) (Flags, error) {
	var flags Flags
	fs.StringVar(&flags.stateDir, "state-dir", config.StateDir, "state directory for wayfinder data (overrides $WAYFINDER_STATE_DIR)")
	fs.StringVar(&flags.dbDSN, "db-dsn", config.DatabaseDSN, "journey and attendance database DSN, SQLite path or Postgres URL (overrides $WAYFINDER_DB_DSN or $DATABASE_URL)")
	fs.BoolVar(&flags.inMemory, "in-memory", config.InMemory, "keep journeys and attendance in memory only (overrides $WAYFINDER_IN_MEMORY)")
	fs.StringVar(&flags.apiAddr, "api-addr", config.APIAddr, "API server address (overrides $API_ADDR)")
	fs.StringVar(&flags.catalogSource, "catalog", config.CatalogSource, "path catalog file or URL (overrides $WAYFINDER_CATALOG)")
	fs.StringVar(&flags.directory, "directory", config.Directory, "destination directory file or URL (overrides $WAYFINDER_DIRECTORY)")
	fs.StringVar(&flags.examsSource, "exams", config.ExamsSource, "exam assignments file or URL (overrides $WAYFINDER_EXAMS)")
	fs.StringVar(&flags.assetBaseURL, "asset-base-url", config.AssetBaseURL, "prefix of step image paths (overrides $WAYFINDER_ASSET_BASE_URL)")
	fs.StringVar(&flags.staticDir, "static-dir", config.StaticDir, "serve step images and videos from this directory under /assets/ (overrides $WAYFINDER_STATIC_DIR)")
	fs.StringVar(&flags.publicURL, "public-url", config.PublicURL, "public base URL encoded in route QR codes (overrides $WAYFINDER_PUBLIC_URL)")
	fs.StringVar(&flags.tuningFile, "tuning", config.TuningFile, "engine tuning file, yaml, json or toml (overrides $WAYFINDER_TUNING_FILE)")
	fs.StringVar(&flags.printQR, "print-qr", "", "print the QR code of a route id and exit")
	fs.StringVar(&flags.qrOutput, "qr-output", "", "with -print-qr, write the QR code to this file instead of stdout")

	if err := fs.Parse(args); err != nil {
		return Flags{}, err
	}

	slog.Debug("flags parsed",
		"stateDir", flags.stateDir,
		"dbDSN_set", flags.dbDSN != "",
		"inMemory", flags.inMemory,
		"apiAddr", flags.apiAddr,
		"catalog", flags.catalogSource,
		"staticDir", flags.staticDir,
		"printQR", flags.printQR)

	// Follow a moved state directory when the DSN is still the default SQLite file
	if flags.dbDSN == config.DatabaseDSN && config.DatabaseDSN == filepath.Join(config.StateDir, DefaultDBFileName) && flags.stateDir != config.StateDir {
		flags.dbDSN = filepath.Join(flags.stateDir, DefaultDBFileName)
		slog.Debug("Updated dbDSN based on state directory", "old_state_dir", config.StateDir, "new_state_dir", flags.stateDir)
	}
	return flags, nil
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	if flags.inMemory || flags.dbDSN == "" || store.DetectDSNType(flags.dbDSN) == "postgres" {
		return nil
	}
	dir := filepath.Dir(strings.TrimPrefix(flags.dbDSN, "file:"))
	if err := os.MkdirAll(dir, 0755); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return fmt.Errorf("failed to create database directory %s: %w", dir, err)
	}
	return nil
}

// loadData reads the catalog, the destination directory and the exam roster. Only the
// catalog is required to be readable when configured.
func loadData(ctx context.Context, flags Flags, catalogOpts []catalog.Option) (*catalog.Catalog, *catalog.Directory, *exams.Roster, error) {
	cat := catalog.New(nil, catalogOpts...)
	if flags.catalogSource != "" {
		loaded, err := catalog.Load(ctx, flags.catalogSource, catalogOpts...)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to load catalog: %w", err)
		}
		cat = loaded
	} else {
		slog.Warn("No catalog configured, every route will be a miss")
	}

	directory := &catalog.Directory{}
	if flags.directory != "" {
		d, err := catalog.LoadDirectory(ctx, flags.directory, catalogOpts...)
		if err != nil {
			slog.Warn("Destination directory unavailable, discovery listing will be empty", "error", err)
		} else {
			directory = d
			if missing := directory.Unreachable(cat); len(missing) > 0 {
				slog.Warn("Destinations without a usable route", "count", len(missing))
			}
		}
	}

	roster := exams.New(nil)
	if flags.examsSource != "" {
		r, err := exams.Load(ctx, flags.examsSource, catalogOpts...)
		if err != nil {
			slog.Warn("Exam roster unavailable, lookups will miss", "error", err)
		} else {
			roster = r
		}
	}
	return cat, directory, roster, nil
}

// buildStoreOptions constructs store configuration options
func buildStoreOptions(flags Flags) []store.Option {
	var storeOpts []store.Option
	if flags.inMemory || flags.dbDSN == "" {
		slog.Debug("No database DSN provided, will use in-memory store")
		return nil
	}
	if store.DetectDSNType(flags.dbDSN) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store", "dsn_type", "postgresql", "dsn_set", true)
		storeOpts = append(storeOpts, store.WithPostgresDSN(flags.dbDSN))
	} else {
		slog.Debug("Detected SQLite DSN, configuring SQLite store", "dsn_type", "sqlite", "db_path", flags.dbDSN)
		storeOpts = append(storeOpts, store.WithSQLiteDSN(flags.dbDSN))
	}
	return storeOpts
}

// buildSessionOptions constructs session manager options. Step images served from the
// local static directory are checked on disk instead of over HTTP.
func buildSessionOptions(flags Flags, tuning config.Tuning, st store.Store) []session.Option {
	opts := []session.Option{
		session.WithTuning(tuning),
		session.WithRecorder(st),
	}
	if flags.assetBaseURL != "" {
		opts = append(opts, session.WithAssetBaseURL(flags.assetBaseURL))
	} else if flags.staticDir != "" {
		opts = append(opts, session.WithProber(staticProber(flags.staticDir)))
	}
	return opts
}

// staticProber resolves /assets/ URLs against dir.
func staticProber(dir string) asset.Prober {
	files := asset.FileProber{Root: dir}
	return asset.ProberFunc(func(ctx context.Context, url string) error {
		if !strings.HasPrefix(url, staticPrefix) {
			return fmt.Errorf("%w: %s is outside %s", asset.ErrProbeRejected, url, staticPrefix)
		}
		return files.Probe(ctx, strings.TrimPrefix(url, staticPrefix))
	})
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(flags Flags, m *session.Manager, st store.Store, d *catalog.Directory, r *exams.Roster, catalogOpts []catalog.Option) []api.Option {
	apiOpts := []api.Option{
		api.WithManager(m),
		api.WithStore(st),
		api.WithDirectory(d),
		api.WithRoster(r),
	}
	if flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(flags.apiAddr))
	}
	if flags.catalogSource != "" {
		apiOpts = append(apiOpts, api.WithCatalogSource(flags.catalogSource, catalogOpts...))
	}
	if flags.staticDir != "" {
		apiOpts = append(apiOpts, api.WithStaticDir(flags.staticDir))
	}
	if flags.publicURL != "" {
		apiOpts = append(apiOpts, api.WithPublicBaseURL(flags.publicURL))
	}
	return apiOpts
}

// printRouteQR writes the QR code of the route named by -print-qr.
func printRouteQR(w io.Writer, flags Flags) error {
	link, err := qr.RouteURL(flags.publicURL, flags.printQR)
	if err != nil {
		if errors.Is(err, qr.ErrEmptyBase) {
			return fmt.Errorf("set -public-url or $WAYFINDER_PUBLIC_URL: %w", err)
		}
		return err
	}
	if flags.qrOutput != "" {
		return qr.WriteFile(flags.qrOutput, link)
	}
	fmt.Fprintln(w, link)
	qr.Write(w, link)
	return nil
}
