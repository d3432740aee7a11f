// Package config centralizes how eFolder Express reads its settings and
// exposes them as strongly typed Go values. Values come from built-in
// defaults, then an optional YAML file named by EFOLDER_CONFIG, then
// environment variables (a .env file in the working directory is loaded
// first when present).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Dispatcher and backend names accepted by Validate.
const (
	DispatcherInProcess = "inprocess"
	DispatcherAsynq     = "asynq"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	BlobLocal  = "local"
	BlobMemory = "memory"
	BlobS3     = "s3"
)

// Config represents runtime configuration for the service. The yaml tags name
// the keys accepted in the optional config file.
type Config struct {
	Address   string `yaml:"address"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	DatabaseDriver string `yaml:"database_driver"`
	DatabaseURL    string `yaml:"database_url"`
	SQLitePath     string `yaml:"sqlite_path"`

	Dispatcher    string `yaml:"dispatcher"`
	Workers       int    `yaml:"workers"`
	QueueCapacity int    `yaml:"queue_capacity"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`

	BlobBackend  string `yaml:"blob_backend"`
	LocalBlobDir string `yaml:"local_blob_dir"`
	S3Endpoint   string `yaml:"s3_endpoint"`
	S3AccessKey  string `yaml:"s3_access_key"`
	S3SecretKey  string `yaml:"s3_secret_key"`
	S3Bucket     string `yaml:"s3_bucket"`
	S3Region     string `yaml:"s3_region"`
	S3UseSSL     bool   `yaml:"s3_use_ssl"`

	EncryptionKeys []string `yaml:"encryption_keys"`

	RecordsCommand string        `yaml:"records_command"`
	RecordsArgs    []string      `yaml:"records_args"`
	RecordsDir     string        `yaml:"records_dir"`
	Demo           bool          `yaml:"demo"`
	ShutdownGrace  time.Duration `yaml:"shutdown_grace"`
	ArchiveDir     string        `yaml:"archive_dir"`
}

const (
	defaultAddress       = ":8080"
	defaultLogLevel      = "info"
	defaultLogFormat     = "json"
	defaultDriver        = DriverSQLite
	defaultSQLitePath    = "efolder.db"
	defaultDispatcher    = DispatcherInProcess
	defaultWorkers       = 8
	defaultQueueCapacity = 256
	defaultRedisAddr     = "localhost:6379"
	defaultBlobBackend   = BlobLocal
	defaultLocalBlobDir  = "data/blobs"
	defaultS3Bucket      = "efolder-documents"
	defaultS3Region      = "us-east-1"
	defaultShutdownGrace = 10 * time.Second
)

// Load reads configuration falling back to defaults. Missing optional files
// are not an error; malformed ones are.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	cfg := Defaults()
	if path := readEnv("EFOLDER_CONFIG", ""); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		Address:        defaultAddress,
		LogLevel:       defaultLogLevel,
		LogFormat:      defaultLogFormat,
		DatabaseDriver: defaultDriver,
		SQLitePath:     defaultSQLitePath,
		Dispatcher:     defaultDispatcher,
		Workers:        defaultWorkers,
		QueueCapacity:  defaultQueueCapacity,
		RedisAddr:      defaultRedisAddr,
		BlobBackend:    defaultBlobBackend,
		LocalBlobDir:   defaultLocalBlobDir,
		S3Bucket:       defaultS3Bucket,
		S3Region:       defaultS3Region,
		ShutdownGrace:  defaultShutdownGrace,
		ArchiveDir:     os.TempDir(),
	}
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Address = readEnv("EFOLDER_ADDRESS", c.Address)
	c.LogLevel = readEnv("EFOLDER_LOG_LEVEL", c.LogLevel)
	c.LogFormat = readEnv("EFOLDER_LOG_FORMAT", c.LogFormat)
	c.DatabaseDriver = readEnv("EFOLDER_DATABASE_DRIVER", c.DatabaseDriver)
	c.DatabaseURL = readEnv("EFOLDER_DATABASE_URL", c.DatabaseURL)
	c.SQLitePath = readEnv("EFOLDER_SQLITE_PATH", c.SQLitePath)
	c.Dispatcher = readEnv("EFOLDER_DISPATCHER", c.Dispatcher)
	c.Workers = parseInt("EFOLDER_WORKERS", c.Workers)
	c.QueueCapacity = parseInt("EFOLDER_QUEUE_CAPACITY", c.QueueCapacity)
	c.RedisAddr = readEnv("EFOLDER_REDIS_ADDR", c.RedisAddr)
	c.RedisPassword = readEnv("EFOLDER_REDIS_PASSWORD", c.RedisPassword)
	c.RedisDB = parseInt("EFOLDER_REDIS_DB", c.RedisDB)
	c.BlobBackend = readEnv("EFOLDER_BLOB_BACKEND", c.BlobBackend)
	c.LocalBlobDir = readEnv("EFOLDER_LOCAL_BLOB_DIR", c.LocalBlobDir)
	c.S3Endpoint = readEnv("EFOLDER_S3_ENDPOINT", c.S3Endpoint)
	c.S3AccessKey = readEnv("EFOLDER_S3_ACCESS_KEY", c.S3AccessKey)
	c.S3SecretKey = readEnv("EFOLDER_S3_SECRET_KEY", c.S3SecretKey)
	c.S3Bucket = readEnv("EFOLDER_S3_BUCKET", c.S3Bucket)
	c.S3Region = readEnv("EFOLDER_S3_REGION", c.S3Region)
	c.S3UseSSL = parseBool("EFOLDER_S3_USE_SSL", c.S3UseSSL)
	c.EncryptionKeys = parseList("EFOLDER_ENCRYPTION_KEYS", c.EncryptionKeys)
	c.RecordsCommand = readEnv("EFOLDER_RECORDS_COMMAND", c.RecordsCommand)
	c.RecordsArgs = parseList("EFOLDER_RECORDS_ARGS", c.RecordsArgs)
	c.RecordsDir = readEnv("EFOLDER_RECORDS_DIR", c.RecordsDir)
	c.Demo = parseBool("EFOLDER_DEMO", c.Demo)
	c.ShutdownGrace = parseDuration("EFOLDER_SHUTDOWN_GRACE", c.ShutdownGrace)
	c.ArchiveDir = readEnv("EFOLDER_ARCHIVE_DIR", c.ArchiveDir)
}

// Validate checks enumerated values and the settings each backend needs.
func (c *Config) Validate() error {
	var errs []error
	if c.Workers <= 0 {
		errs = append(errs, fmt.Errorf("workers must be positive, got %d", c.Workers))
	}
	if c.QueueCapacity < 0 {
		errs = append(errs, fmt.Errorf("queue_capacity must not be negative, got %d", c.QueueCapacity))
	}
	switch c.DatabaseDriver {
	case DriverPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("database_url is required for the postgres driver"))
		}
	case DriverSQLite:
		if c.SQLitePath == "" {
			errs = append(errs, errors.New("sqlite_path is required for the sqlite driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown database_driver %q", c.DatabaseDriver))
	}
	switch c.Dispatcher {
	case DispatcherInProcess, DispatcherAsynq:
	default:
		errs = append(errs, fmt.Errorf("unknown dispatcher %q", c.Dispatcher))
	}
	switch c.BlobBackend {
	case BlobLocal:
		if c.LocalBlobDir == "" {
			errs = append(errs, errors.New("local_blob_dir is required for the local blob backend"))
		}
	case BlobMemory:
	case BlobS3:
		if c.S3Endpoint == "" || c.S3Bucket == "" {
			errs = append(errs, errors.New("s3_endpoint and s3_bucket are required for the s3 blob backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown blob_backend %q", c.BlobBackend))
	}
	if len(c.EncryptionKeys) == 0 {
		errs = append(errs, errors.New("at least one encryption key is required (EFOLDER_ENCRYPTION_KEYS)"))
	}
	if !c.Demo && c.RecordsCommand == "" {
		errs = append(errs, errors.New("records_command is required unless demo mode is enabled"))
	}
	return errors.Join(errs...)
}

func readEnv(key, def string) string {
	// LookupEnv returns (value, true) when the variable is present, mirroring
	// Go's pattern of providing extra information via multiple return values.
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func parseList(key string, def []string) []string {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return def
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func parseInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return def
}

func parseBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return def
}

func parseDuration(key string, def time.Duration) time.Duration {
	// time.ParseDuration understands inputs like "5m" or "30s".
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			return parsed
		}
	}
	return def
}
