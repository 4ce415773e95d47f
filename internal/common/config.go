package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config is the Metrics Calculation Service's process-scoped, immutable
// configuration struct (spec §6, Design Notes "global configuration... is a
// process-scoped immutable config struct"). It is loaded once at startup and
// threaded explicitly into every component constructor.
type Config struct {
	Server  ServerConfig  `toml:"server"`
	Logging LoggingConfig `toml:"logging"`
	Cluster ClusterConfig `toml:"cluster"`
	Storage StorageConfig `toml:"storage"`
	Export  ExportConfig  `toml:"export"`
	Service ServiceConfig `toml:"service"`
	Debug   DebugConfig   `toml:"debug"`
}

// ServerConfig configures the HTTP/WebSocket listener.
type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

// LoggingConfig configures Arbor, matching the teacher's logging shape.
type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Format     string   `toml:"format"`      // "json" or "text"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // time.Format layout for log lines
}

// ClusterConfig describes the Cluster Manager's elastic worker pool (spec
// §4.3) and the environment it provisions workers into.
type ClusterConfig struct {
	Namespace        string `toml:"namespace"`
	ServiceAccount   string `toml:"service_account"`
	Name             string `toml:"name"`
	ImageRepository  string `toml:"image_repository"`
	ImageTag         string `toml:"image_tag"`
	SchedulerMemory  string `toml:"scheduler_memory"` // e.g. "2Gi"
	WorkerMemory     string `toml:"worker_memory"`    // e.g. "4Gi"
	WorkerThreads    int    `toml:"worker_threads"`
	PoolType         string `toml:"pool_type"` // e.g. "local", "kubernetes"
	ScratchPath      string `toml:"scratch_path"`
	MinWorkers       int    `toml:"min_workers"`
	MaxWorkers       int    `toml:"max_workers"`
	TaskRetries      int    `toml:"task_retries"`
	ScaleCheckPeriod string `toml:"scale_check_period"` // duration string; not read by the Cluster Manager, whose scale checks are throttled to one per second
}

// StorageConfig describes the object store backing staged exports (spec
// §4.2) and the warehouse backend backing the Import Adapter (spec §4.5).
type StorageConfig struct {
	Object  ObjectStoreConfig `toml:"object"`
	Backend string            `toml:"backend"` // "badger" (default) or "sqlite"
	Badger  BadgerConfig      `toml:"badger"`
	SQLite  SQLiteConfig      `toml:"sqlite"`
}

// ObjectStoreConfig configures the staged-export object store.
type ObjectStoreConfig struct {
	Bucket          string `toml:"bucket"`
	AccessKeyID     string `toml:"access_key_id"`
	SecretAccessKey string `toml:"secret_access_key"`
}

// BadgerConfig configures the default local warehouse-native backend.
type BadgerConfig struct {
	Path string `toml:"path"`
}

// SQLiteConfig configures the alternate warehouse-native backend.
type SQLiteConfig struct {
	Path string `toml:"path"`
}

// ExportConfig describes the staged-export backend the Export Cache talks
// to when materializing a dependency (spec §4.2).
type ExportConfig struct {
	Host    string `toml:"host"`
	Port    int    `toml:"port"`
	User    string `toml:"user"`
	Catalog string `toml:"catalog"`
	Schema  string `toml:"schema"`
}

// ServiceConfig holds the remaining service-level knobs spec §6 names.
type ServiceConfig struct {
	ResultPathPrefix string `toml:"result_path_prefix"`
}

// DebugConfig mirrors the original's AppConfig debug toggles. Setting All
// cascades to the individual toggles via ApplyDebugDefaults.
type DebugConfig struct {
	All                bool `toml:"all"`
	WithEmbeddedEngine bool `toml:"with_embedded_engine"`
	Cache              bool `toml:"cache"`
	Cluster            bool `toml:"cluster"`
	ClusterNoShutdown  bool `toml:"cluster_no_shutdown"`
}

// ApplyDebugDefaults cascades debug_all to the individual debug toggles,
// matching the original's AppConfig.handle_debugging.
func (c *Config) ApplyDebugDefaults() {
	if c.Debug.All {
		c.Debug.WithEmbeddedEngine = true
		c.Debug.Cache = true
		c.Debug.Cluster = true
	}
}

// NewDefaultConfig returns a Config with production-sane defaults.
// Technical parameters are hardcoded here; only user-facing settings are
// meant to be overridden via mcs.toml.
func NewDefaultConfig() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Port: 8090,
			Host: "localhost",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     []string{"stdout", "file"},
			TimeFormat: "15:04:05.000",
		},
		Cluster: ClusterConfig{
			Namespace:        "metrics",
			ServiceAccount:   "metrics-worker",
			Name:             "metrics-cluster",
			ImageRepository:  "ghcr.io/example/metrics-worker",
			ImageTag:         "latest",
			SchedulerMemory:  "2Gi",
			WorkerMemory:     "4Gi",
			WorkerThreads:    4,
			PoolType:         "local",
			ScratchPath:      "./data/scratch",
			MinWorkers:       1,
			MaxWorkers:       8,
			TaskRetries:      3,
			ScaleCheckPeriod: "5s",
		},
		Storage: StorageConfig{
			Object: ObjectStoreConfig{
				Bucket: "metrics-exports",
			},
			Backend: "badger",
			Badger: BadgerConfig{
				Path: "./data/warehouse",
			},
			SQLite: SQLiteConfig{
				Path: "./data/warehouse.db",
			},
		},
		Export: ExportConfig{
			Host:    "localhost",
			Port:    5432,
			User:    "metrics",
			Catalog: "metrics_catalog",
			Schema:  "staged",
		},
		Service: ServiceConfig{
			ResultPathPrefix: "results",
		},
	}
	cfg.ApplyDebugDefaults()
	return cfg
}

// LoadFromFiles loads configuration with priority:
// defaults -> file1 -> file2 -> ... -> env (METRICS_ prefixed) -> CLI.
// Later files override earlier files.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)
	config.ApplyDebugDefaults()

	return config, nil
}

// applyEnvOverrides applies METRICS_-prefixed environment variable
// overrides, matching spec §6's "environment-prefixed configuration".
func applyEnvOverrides(config *Config) {
	if port := os.Getenv("METRICS_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("METRICS_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if level := os.Getenv("METRICS_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if format := os.Getenv("METRICS_LOG_FORMAT"); format != "" {
		config.Logging.Format = format
	}
	if output := os.Getenv("METRICS_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	if ns := os.Getenv("METRICS_CLUSTER_NAMESPACE"); ns != "" {
		config.Cluster.Namespace = ns
	}
	if img := os.Getenv("METRICS_CLUSTER_IMAGE_TAG"); img != "" {
		config.Cluster.ImageTag = img
	}
	if min := os.Getenv("METRICS_CLUSTER_MIN_WORKERS"); min != "" {
		if m, err := strconv.Atoi(min); err == nil {
			config.Cluster.MinWorkers = m
		}
	}
	if max := os.Getenv("METRICS_CLUSTER_MAX_WORKERS"); max != "" {
		if m, err := strconv.Atoi(max); err == nil {
			config.Cluster.MaxWorkers = m
		}
	}
	if retries := os.Getenv("METRICS_CLUSTER_TASK_RETRIES"); retries != "" {
		if r, err := strconv.Atoi(retries); err == nil {
			config.Cluster.TaskRetries = r
		}
	}
	if period := os.Getenv("METRICS_CLUSTER_SCALE_CHECK_PERIOD"); period != "" {
		if _, err := time.ParseDuration(period); err == nil {
			config.Cluster.ScaleCheckPeriod = period
		}
	}

	if bucket := os.Getenv("METRICS_STORAGE_BUCKET"); bucket != "" {
		config.Storage.Object.Bucket = bucket
	}
	if key := os.Getenv("METRICS_STORAGE_ACCESS_KEY_ID"); key != "" {
		config.Storage.Object.AccessKeyID = key
	}
	if secret := os.Getenv("METRICS_STORAGE_SECRET_ACCESS_KEY"); secret != "" {
		config.Storage.Object.SecretAccessKey = secret
	}
	if backend := os.Getenv("METRICS_STORAGE_BACKEND"); backend != "" {
		config.Storage.Backend = backend
	}
	if path := os.Getenv("METRICS_STORAGE_BADGER_PATH"); path != "" {
		config.Storage.Badger.Path = path
	}
	if path := os.Getenv("METRICS_STORAGE_SQLITE_PATH"); path != "" {
		config.Storage.SQLite.Path = path
	}

	if host := os.Getenv("METRICS_EXPORT_HOST"); host != "" {
		config.Export.Host = host
	}
	if port := os.Getenv("METRICS_EXPORT_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Export.Port = p
		}
	}
	if user := os.Getenv("METRICS_EXPORT_USER"); user != "" {
		config.Export.User = user
	}
	if catalog := os.Getenv("METRICS_EXPORT_CATALOG"); catalog != "" {
		config.Export.Catalog = catalog
	}
	if schema := os.Getenv("METRICS_EXPORT_SCHEMA"); schema != "" {
		config.Export.Schema = schema
	}

	if prefix := os.Getenv("METRICS_RESULT_PATH_PREFIX"); prefix != "" {
		config.Service.ResultPathPrefix = prefix
	}

	if debugAll := os.Getenv("METRICS_DEBUG_ALL"); debugAll != "" {
		if d, err := strconv.ParseBool(debugAll); err == nil {
			config.Debug.All = d
		}
	}
	if debugCache := os.Getenv("METRICS_DEBUG_CACHE"); debugCache != "" {
		if d, err := strconv.ParseBool(debugCache); err == nil {
			config.Debug.Cache = d
		}
	}
	if debugCluster := os.Getenv("METRICS_DEBUG_CLUSTER"); debugCluster != "" {
		if d, err := strconv.ParseBool(debugCluster); err == nil {
			config.Debug.Cluster = d
		}
	}
	if noShutdown := os.Getenv("METRICS_DEBUG_CLUSTER_NO_SHUTDOWN"); noShutdown != "" {
		if d, err := strconv.ParseBool(noShutdown); err == nil {
			config.Debug.ClusterNoShutdown = d
		}
	}
}

// ApplyFlagOverrides applies command-line flag overrides, the highest
// priority tier in the load order.
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}
