package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"

	"github.com/user/mediavault/internal/api"
	"github.com/user/mediavault/internal/ingest"
	"github.com/user/mediavault/internal/lockfile"
	"github.com/user/mediavault/internal/media"
	"github.com/user/mediavault/internal/platform"
	"github.com/user/mediavault/internal/router"
	"github.com/user/mediavault/internal/store"
	"github.com/user/mediavault/internal/summary"
	"github.com/user/mediavault/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for mediavault state data
	DefaultStateDir = "/var/lib/mediavault"
	// DefaultDedupLogName is the default append-only dedup log filename
	DefaultDedupLogName = "processed.log"
	// DefaultStorageRootName is the default media storage subdirectory
	DefaultStorageRootName = "media"
	// StaleClaimThreshold is how old an unfinalized claim must be before
	// startup recovery releases it
	StaleClaimThreshold = 5 * time.Minute
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	if err := run(flags); err != nil {
		slog.Error("mediavault failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("mediavault exited successfully")
}

// Config holds environment configuration
type Config struct {
	StateDir    string
	StorageRoot string
	DedupDSN    string
	APIAddr     string
	SummaryTime string
}

// Flags holds command line flag values
type Flags struct {
	stateDir    *string
	storageRoot *string
	dedupDSN    *string
	apiAddr     *string
	summaryTime *string
}

// initializeLogger sets up structured logging on stderr
func initializeLogger() {
	level := slog.LevelInfo
	if util.ParseBoolEnv("MEDIAVAULT_DEBUG", false) {
		level = slog.LevelDebug
	}
	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.TimeOnly,
	}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	config := Config{
		StateDir:    os.Getenv("MEDIAVAULT_STATE_DIR"),
		StorageRoot: os.Getenv("MEDIAVAULT_STORAGE_ROOT"),
		DedupDSN:    os.Getenv("DEDUP_DB_DSN"),
		APIAddr:     os.Getenv("API_ADDR"),
		SummaryTime: os.Getenv("SUMMARY_TIME"),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No MEDIAVAULT_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}
	if config.StorageRoot == "" {
		config.StorageRoot = filepath.Join(config.StateDir, DefaultStorageRootName)
	}

	slog.Debug("environment variables loaded",
		"MEDIAVAULT_STATE_DIR", config.StateDir,
		"MEDIAVAULT_STORAGE_ROOT", config.StorageRoot,
		"DEDUP_DB_DSN_SET", config.DedupDSN != "",
		"API_ADDR", config.APIAddr,
		"SUMMARY_TIME", config.SummaryTime)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir:    flag.String("state-dir", config.StateDir, "state directory for mediavault data (overrides $MEDIAVAULT_STATE_DIR)"),
		storageRoot: flag.String("storage-root", config.StorageRoot, "root directory for persisted media (overrides $MEDIAVAULT_STORAGE_ROOT)"),
		dedupDSN:    flag.String("dedup-dsn", config.DedupDSN, "dedup store DSN: empty for append-only file log, a file path for SQLite, or a postgres:// URL (overrides $DEDUP_DB_DSN)"),
		apiAddr:     flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		summaryTime: flag.String("summary-time", config.SummaryTime, "daily summary trigger time, HH:MM local (overrides $SUMMARY_TIME)"),
	}
	flag.Parse()
	return flags
}

// buildDedupStore selects the dedup backend from the DSN shape. An empty DSN
// means the append-only file log in the state directory.
func buildDedupStore(flags Flags) (store.DedupRepo, error) {
	dsn := *flags.dedupDSN
	if dsn == "" {
		logPath := filepath.Join(*flags.stateDir, DefaultDedupLogName)
		slog.Info("Using append-only dedup log", "path", logPath)
		return store.NewFileStore(logPath)
	}

	if store.DetectDSNType(dsn) == "postgres" {
		slog.Info("Using PostgreSQL dedup store")
		st, err := store.NewPostgresStore(store.WithPostgresDSN(dsn))
		if err != nil {
			return nil, err
		}
		recoverStaleClaims(st.ReleaseStale)
		return st, nil
	}

	slog.Info("Using SQLite dedup store", "path", dsn)
	st, err := store.NewSQLiteStore(store.WithSQLiteDSN(dsn))
	if err != nil {
		return nil, err
	}
	recoverStaleClaims(st.ReleaseStale)
	return st, nil
}

// recoverStaleClaims releases claims left behind by a crashed process so
// their ids can be retried on redelivery.
func recoverStaleClaims(release func(time.Time) (int64, error)) {
	n, err := release(time.Now().Add(-StaleClaimThreshold))
	if err != nil {
		slog.Error("Failed to release stale claims", "error", err)
		return
	}
	if n > 0 {
		slog.Info("Released stale claims from previous run", "count", n)
	}
}

func run(flags Flags) error {
	slog.Info("Bootstrapping mediavault",
		"state_dir", *flags.stateDir, "storage_root", *flags.storageRoot)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// One instance per state directory; a second process sharing the dedup
	// log would defeat claim atomicity.
	lock, err := lockfile.AcquireLock(*flags.stateDir)
	if err != nil {
		return err
	}
	defer lock.Release()

	dedup, err := buildDedupStore(flags)
	if err != nil {
		return err
	}
	defer func() {
		if err := dedup.Close(); err != nil {
			slog.Error("closing dedup store", "error", err)
		}
	}()

	fetchTimeout := util.ParseDurationEnv("FETCH_TIMEOUT", platform.DefaultFetchTimeout)
	client, err := platform.NewClient(platform.WithFetchTimeout(fetchTimeout))
	if err != nil {
		return err
	}

	persister := media.NewPersister(*flags.storageRoot)

	ingestor := ingest.NewIngestor(dedup, client, persister)
	ingestor.FetchTimeout = fetchTimeout

	rt := router.NewRouter(ingestor)

	summaries := summary.NewWriter(*flags.storageRoot, persister)
	scheduler := summary.NewScheduler(summaries)
	if err := scheduler.Start(*flags.summaryTime); err != nil {
		return err
	}
	defer scheduler.Stop()

	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	server := api.NewServer(client, rt, summaries, apiOpts...)

	return server.Run(ctx)
}
