// Package config loads runtime settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"g711enhance/pkg/bitstream"
	"g711enhance/pkg/g711"
	"g711enhance/pkg/media"
)

// Config holds every setting the CLI and the spool watcher read.
type Config struct {
	Law          string
	Format       string
	Concealment  bool
	PostFilter   bool
	NoiseGate    bool
	NoiseShaping bool
	MaxGapFrames int

	LogLevel  string
	LogFormat string

	MetricsEnabled bool
	MetricsAddr    string

	TracingEndpoint string
	TracingInsecure bool

	SpoolDir      string
	SpoolOutDir   string
	StatsSchedule string
}

// Load reads the first .env file found in the working directory or its
// parents, then the environment. Variables already set win over the file.
func Load(logger *logrus.Logger) (*Config, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if path, ok := findEnvFile(); ok {
		if err := godotenv.Load(path); err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
		logger.WithField("file", path).Debug("Loaded environment file")
	}
	return FromEnv()
}

// FromEnv reads the configuration from environment variables only.
func FromEnv() (*Config, error) {
	var errs []error
	boolVar := func(key string, def bool) bool {
		v, err := getEnvBool(key, def)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}
	intVar := func(key string, def int) int {
		v, err := getEnvInt(key, def)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}

	cfg := &Config{
		Law:          getEnv("G711_LAW", "A"),
		Format:       getEnv("G711_FORMAT", "g192"),
		Concealment:  boolVar("G711_FERC", true),
		PostFilter:   boolVar("G711_POSTFILTER", true),
		NoiseGate:    boolVar("G711_NOISE_GATE", true),
		NoiseShaping: boolVar("G711_NOISE_SHAPING", true),
		MaxGapFrames: intVar("G711_MAX_GAP_FRAMES", media.DefaultMaxGapFrames),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),

		MetricsEnabled: boolVar("METRICS_ENABLED", false),
		MetricsAddr:    getEnv("METRICS_ADDR", ":9090"),

		TracingEndpoint: getEnv("TRACING_ENDPOINT", ""),
		TracingInsecure: boolVar("TRACING_INSECURE", true),

		SpoolDir:      getEnv("SPOOL_DIR", ""),
		SpoolOutDir:   getEnv("SPOOL_OUT_DIR", ""),
		StatsSchedule: getEnv("STATS_SCHEDULE", "@every 1m"),
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

// Validate checks values that cannot be used as given.
func (c *Config) Validate() error {
	var errs []error
	if _, err := g711.ParseLaw(c.Law); err != nil {
		errs = append(errs, fmt.Errorf("G711_LAW: %w", err))
	}
	if _, err := bitstream.ParseFormat(c.Format); err != nil {
		errs = append(errs, fmt.Errorf("G711_FORMAT: %w", err))
	}
	if c.MaxGapFrames <= 0 {
		errs = append(errs, fmt.Errorf("G711_MAX_GAP_FRAMES must be positive, got %d", c.MaxGapFrames))
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("LOG_LEVEL: %w", err))
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.LogFormat))
	}
	if c.MetricsEnabled && c.MetricsAddr == "" {
		errs = append(errs, errors.New("METRICS_ADDR is required when metrics are enabled"))
	}
	if _, err := cron.ParseStandard(c.StatsSchedule); err != nil {
		errs = append(errs, fmt.Errorf("STATS_SCHEDULE: %w", err))
	}
	if c.SpoolDir != "" && c.SpoolDir == c.SpoolOutDir {
		errs = append(errs, errors.New("SPOOL_OUT_DIR must differ from SPOOL_DIR"))
	}
	return errors.Join(errs...)
}

// ParsedLaw returns the configured law. Call Validate first.
func (c *Config) ParsedLaw() g711.Law {
	law, err := g711.ParseLaw(c.Law)
	if err != nil {
		return g711.ALaw
	}
	return law
}

// BitstreamFormat returns the configured file format. Call Validate first.
func (c *Config) BitstreamFormat() bitstream.Format {
	f, err := bitstream.ParseFormat(c.Format)
	if err != nil {
		return bitstream.G192
	}
	return f
}

func (c *Config) DecoderOptions() g711.Options {
	return g711.Options{
		NoiseGate:   c.NoiseGate,
		Concealment: c.Concealment,
		PostFilter:  c.PostFilter,
	}
}

// NewLogger builds a logger with the configured level and format.
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	ConfigureLogger(logger, c.LogLevel, c.LogFormat)
	return logger
}

// ConfigureLogger applies a level and a format to an existing logger.
// Unknown values leave the current setting.
func ConfigureLogger(logger *logrus.Logger, level, format string) {
	if lvl, err := logrus.ParseLevel(level); err == nil {
		logger.SetLevel(lvl)
	}
	switch strings.ToLower(format) {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	case "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}

// findEnvFile looks for .env from the working directory up to the first
// directory holding go.mod.
func findEnvFile() (string, bool) {
	dir, err := os.Getwd()
	if err != nil {
		return "", false
	}
	for {
		candidate := filepath.Join(dir, ".env")
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true
		}
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return "", false
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(v)
	}
	return def
}

func getEnvBool(key string, def bool) (bool, error) {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return def, fmt.Errorf("%s: invalid boolean %q", key, v)
	}
	return b, nil
}

func getEnvInt(key string, def int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def, fmt.Errorf("%s: invalid integer %q", key, v)
	}
	return n, nil
}
