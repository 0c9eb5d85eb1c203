package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// SyncOptions holds the science-facing knobs of a synchronization run.
// They ship as a YAML file shared by the server and the CLI.
type SyncOptions struct {
	EntryDelimiter    string   `yaml:"entry_delimiter"`
	KVDelimiter       string   `yaml:"kv_delimiter"`
	DepthKey          string   `yaml:"depth_key"`
	ConditionPatterns []string `yaml:"condition_patterns"`
	EDFSignal         string   `yaml:"edf_signal"`
}

// DefaultSyncOptions returns the conventional experiment-log settings.
func DefaultSyncOptions() SyncOptions {
	return SyncOptions{
		EntryDelimiter: "\n",
		KVDelimiter:    ":",
		DepthKey:       "Level",
	}
}

// LoadSyncOptions reads a YAML options file, filling unset fields with
// the defaults.
func LoadSyncOptions(path string) (SyncOptions, error) {
	opts := DefaultSyncOptions()
	data, err := os.ReadFile(path)
	if err != nil {
		return opts, err
	}
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return opts, fmt.Errorf("parse sync options: %w", err)
	}
	if opts.EntryDelimiter == "" {
		opts.EntryDelimiter = "\n"
	}
	if opts.KVDelimiter == "" {
		opts.KVDelimiter = ":"
	}
	if opts.DepthKey == "" {
		opts.DepthKey = "Level"
	}
	return opts, nil
}

type Config struct {
	Port string

	// Auth
	APIKey string

	// Worker pool
	WorkerCount  int
	MaxQueueSize int

	// Upload limits
	MaxUploadBytes int64

	// Job state
	JobTTL time.Duration

	// Result persistence
	ResultsDir string

	// Sync options file (optional)
	SyncOptionsFile string
	Sync            SyncOptions
}

func Load() Config {
	cfg := Config{
		Port: envOr("PORT", "8091"),

		APIKey: os.Getenv("EPOCHSYNC_API_KEY"),

		WorkerCount:  envInt("WORKER_COUNT", 4),
		MaxQueueSize: envInt("MAX_QUEUE_SIZE", 100),

		MaxUploadBytes: envInt64("MAX_UPLOAD_BYTES", 209715200), // 200MB, EDF recordings are large

		JobTTL: envDuration("JOB_TTL", 1*time.Hour),

		ResultsDir: envOr("RESULTS_DIR", "results"),

		SyncOptionsFile: os.Getenv("SYNC_OPTIONS_FILE"),
		Sync:            DefaultSyncOptions(),
	}

	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 4
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = 100
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 209715200
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = 1 * time.Hour
	}

	return cfg
}

func (c Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("EPOCHSYNC_API_KEY is required")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
