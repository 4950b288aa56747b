package internal

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/DrGermanius/buyback/internal/ingest"
)

const (
	RunAddress           = "RUN_ADDRESS"
	DatabaseURI          = "DATABASE_URI"
	UploadsDir           = "UPLOADS_DIR"
	MetadataPath         = "METADATA_PATH"
	WatchStrategy        = "WATCH_STRATEGY"
	WatchProcessExisting = "WATCH_PROCESS_EXISTING"
	BatchWindow          = "BATCH_WINDOW"
	PollInterval         = "POLL_INTERVAL"
	StableTimeout        = "STABLE_TIMEOUT"
	MaxRows              = "MAX_ROWS"
	Timezone             = "TIMEZONE"
	MetricsAddress       = "METRICS_ADDRESS"
	JWTSecret            = "JWT_SECRET"
	LogLevel             = "LOG_LEVEL"
)

const (
	defaultRunAddress     = "localhost:8080"
	defaultUploadsDir     = "./uploads"
	defaultMetadataPath   = "./fileMetadata.json"
	defaultMetricsAddress = "localhost:9090"
	defaultMaxRows        = 200000
	defaultTimezone       = "Local"
	defaultJWTSecret      = "secret"
	defaultLogLevel       = "info"
)

const (
	host     = "localhost"
	port     = 5432
	user     = "postgres"
	password = "12345"
	database = "buyback"
)

type Config struct {
	RunAddress     string
	DatabaseURI    string
	MetricsAddress string
	JWTSecret      string
	LogLevel       string

	UploadsDir      string
	MetadataPath    string
	Strategy        ingest.Strategy
	ProcessExisting bool
	BatchWindow     time.Duration
	PollInterval    time.Duration
	StableTimeout   time.Duration
	MaxRows         int
	Location        *time.Location
}

// NewConfig reads flags whose defaults come from the environment. A .env file
// in the working directory is loaded first when present.
func NewConfig() (*Config, error) {
	return parseConfig(flag.CommandLine, os.Args[1:])
}

func parseConfig(fs *flag.FlagSet, args []string) (*Config, error) {
	_ = godotenv.Load()

	c := new(Config)

	defaultConn := fmt.Sprintf("host=%s port=%d user=%s "+
		"password=%s dbname=%s sslmode=disable",
		host, port, user, password, database)

	var (
		strategy, tz                    string
		batchWindow, pollEvery, timeout string
		processExisting, maxRows        string
	)

	fs.StringVar(&c.RunAddress, "a", setEnvOrDefault(RunAddress, defaultRunAddress), "host to listen on")
	fs.StringVar(&c.DatabaseURI, "d", setEnvOrDefault(DatabaseURI, defaultConn), "postgres connection path")
	fs.StringVar(&c.UploadsDir, "u", setEnvOrDefault(UploadsDir, defaultUploadsDir), "watched uploads directory")
	fs.StringVar(&c.MetadataPath, "m", setEnvOrDefault(MetadataPath, defaultMetadataPath), "first-seen metadata file")
	fs.StringVar(&strategy, "s", setEnvOrDefault(WatchStrategy, string(ingest.StrategyBatched)), "watch strategy: immediate or batched")
	fs.StringVar(&processExisting, "e", setEnvOrDefault(WatchProcessExisting, "false"), "process files already in the uploads directory")
	fs.StringVar(&tz, "z", setEnvOrDefault(Timezone, defaultTimezone), "timezone for calendar dates")

	batchWindow = setEnvOrDefault(BatchWindow, ingest.DefaultBatchWindow.String())
	pollEvery = setEnvOrDefault(PollInterval, ingest.DefaultPollInterval.String())
	timeout = setEnvOrDefault(StableTimeout, "0s")
	maxRows = setEnvOrDefault(MaxRows, strconv.Itoa(defaultMaxRows))
	c.MetricsAddress = setEnvOrDefault(MetricsAddress, defaultMetricsAddress)
	c.JWTSecret = setEnvOrDefault(JWTSecret, defaultJWTSecret)
	c.LogLevel = setEnvOrDefault(LogLevel, defaultLogLevel)

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	var err error
	c.Strategy = ingest.Strategy(strategy)
	if c.Strategy != ingest.StrategyImmediate && c.Strategy != ingest.StrategyBatched {
		return nil, fmt.Errorf("%s: unknown strategy %q", WatchStrategy, strategy)
	}
	if c.ProcessExisting, err = strconv.ParseBool(processExisting); err != nil {
		return nil, fmt.Errorf("%s: %w", WatchProcessExisting, err)
	}
	if c.BatchWindow, err = time.ParseDuration(batchWindow); err != nil {
		return nil, fmt.Errorf("%s: %w", BatchWindow, err)
	}
	if c.PollInterval, err = time.ParseDuration(pollEvery); err != nil {
		return nil, fmt.Errorf("%s: %w", PollInterval, err)
	}
	if c.StableTimeout, err = time.ParseDuration(timeout); err != nil {
		return nil, fmt.Errorf("%s: %w", StableTimeout, err)
	}
	if c.MaxRows, err = strconv.Atoi(maxRows); err != nil || c.MaxRows < 0 {
		return nil, fmt.Errorf("%s: invalid row limit %q", MaxRows, maxRows)
	}
	if c.Location, err = time.LoadLocation(tz); err != nil {
		return nil, fmt.Errorf("%s: %w", Timezone, err)
	}
	return c, nil
}

func (c *Config) WatcherConfig() ingest.WatcherConfig {
	return ingest.WatcherConfig{
		Dir:             c.UploadsDir,
		Strategy:        c.Strategy,
		ProcessExisting: c.ProcessExisting,
		PollInterval:    c.PollInterval,
		StableTimeout:   c.StableTimeout,
		BatchWindow:     c.BatchWindow,
	}
}

func setEnvOrDefault(env, def string) string {
	res, e := os.LookupEnv(env)
	if !e {
		res = def
	}
	return res
}
