package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// Supported store backends
const (
	StoreRedis      = "redis"
	StoreDynamoDB   = "dynamodb"
	StoreMongoDB    = "mongodb"
	StoreS3         = "s3"
	StoreFilesystem = "filesystem"
)

// Config holds all configuration for the pastebin service
type Config struct {
	Port            int           `json:"port"`
	URL             string        `json:"url"`
	IDLength        int           `json:"id_length"`
	MaxContentBytes int64         `json:"max_content_bytes"`
	StoreType       string        `json:"store_type"`
	StoreTimeout    time.Duration `json:"store_timeout"`

	RedisURL               string `json:"redis_url"`
	RedisAddr              string `json:"redis_addr"`
	RedisPassword          string `json:"-"`
	RedisDB                int    `json:"redis_db"`
	RedisNonAtomicFallback bool   `json:"redis_nonatomic_fallback"`

	DynamoDBTable    string `json:"dynamodb_table"`
	DynamoDBRegion   string `json:"dynamodb_region"`
	DynamoDBEndpoint string `json:"dynamodb_endpoint"`

	MongoDBURI        string `json:"-"`
	MongoDBDatabase   string `json:"mongodb_database"`
	MongoDBCollection string `json:"mongodb_collection"`

	S3Bucket       string `json:"s3_bucket"`
	S3Prefix       string `json:"s3_prefix"`
	S3Region       string `json:"s3_region"`
	S3Endpoint     string `json:"s3_endpoint"`
	S3UsePathStyle bool   `json:"s3_use_path_style"`

	DataDir string `json:"data_dir"`

	TestMode      bool   `json:"test_mode"`
	EnableMetrics bool   `json:"enable_metrics"`
	LogLevel      string `json:"log_level"`
	LogFormat     string `json:"log_format"`
	LogFile       string `json:"log_file"`

	Version    string `json:"version"`
	BuildTime  string `json:"build_time"`
	CommitHash string `json:"commit_hash"`
}

// LoadConfig builds the configuration from PASTEBIN_* environment variables
// and command-line flags; flags win. args excludes the program name.
func LoadConfig(args []string) (*Config, error) {
	cfg := &Config{}
	fs := flag.NewFlagSet("pastebin", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.IntVar(&cfg.Port, "port", getEnvInt("PASTEBIN_PORT", 8080), "Port to listen on")
	fs.StringVar(&cfg.URL, "url", getEnvString("PASTEBIN_URL", ""), "Base URL for paste links (derived from the request when empty)")
	fs.IntVar(&cfg.IDLength, "id-length", getEnvInt("PASTEBIN_ID_LENGTH", 21), "Length of generated paste ids")
	fs.Int64Var(&cfg.MaxContentBytes, "max-content-bytes", getEnvInt64("PASTEBIN_MAX_CONTENT_BYTES", 1<<20), "Maximum request body size in bytes")
	fs.StringVar(&cfg.StoreType, "store", getEnvString("PASTEBIN_STORE", StoreRedis), "Record store: redis, dynamodb, mongodb, s3, filesystem")
	fs.DurationVar(&cfg.StoreTimeout, "store-timeout", getEnvDuration("PASTEBIN_STORE_TIMEOUT", 5*time.Second), "Timeout for each store call")

	fs.StringVar(&cfg.RedisURL, "redis-url", getEnvString("PASTEBIN_REDIS_URL", ""), "Redis URL (redis:// or rediss://)")
	fs.StringVar(&cfg.RedisAddr, "redis-addr", getEnvString("PASTEBIN_REDIS_ADDR", "localhost:6379"), "Redis host:port when no URL is given")
	fs.StringVar(&cfg.RedisPassword, "redis-password", getEnvString("PASTEBIN_REDIS_PASSWORD", ""), "Redis password")
	fs.IntVar(&cfg.RedisDB, "redis-db", getEnvInt("PASTEBIN_REDIS_DB", 0), "Redis database number")
	fs.BoolVar(&cfg.RedisNonAtomicFallback, "redis-nonatomic-fallback", getEnvBool("PASTEBIN_REDIS_NONATOMIC_FALLBACK", false), "Allow non-atomic view increments when Redis refuses scripts")

	fs.StringVar(&cfg.DynamoDBTable, "dynamodb-table", getEnvString("PASTEBIN_DYNAMODB_TABLE", "pastebin"), "DynamoDB table name")
	fs.StringVar(&cfg.DynamoDBRegion, "dynamodb-region", getEnvString("PASTEBIN_DYNAMODB_REGION", ""), "DynamoDB region (AWS default chain when empty)")
	fs.StringVar(&cfg.DynamoDBEndpoint, "dynamodb-endpoint", getEnvString("PASTEBIN_DYNAMODB_ENDPOINT", ""), "DynamoDB endpoint override")

	fs.StringVar(&cfg.MongoDBURI, "mongodb-uri", getEnvString("PASTEBIN_MONGODB_URI", "mongodb://localhost:27017"), "MongoDB connection URI")
	fs.StringVar(&cfg.MongoDBDatabase, "mongodb-database", getEnvString("PASTEBIN_MONGODB_DATABASE", "pastebin"), "MongoDB database")
	fs.StringVar(&cfg.MongoDBCollection, "mongodb-collection", getEnvString("PASTEBIN_MONGODB_COLLECTION", "pastes"), "MongoDB collection")

	fs.StringVar(&cfg.S3Bucket, "s3-bucket", getEnvString("PASTEBIN_S3_BUCKET", ""), "S3 bucket")
	fs.StringVar(&cfg.S3Prefix, "s3-prefix", getEnvString("PASTEBIN_S3_PREFIX", ""), "S3 key prefix")
	fs.StringVar(&cfg.S3Region, "s3-region", getEnvString("PASTEBIN_S3_REGION", ""), "S3 region (AWS default chain when empty)")
	fs.StringVar(&cfg.S3Endpoint, "s3-endpoint", getEnvString("PASTEBIN_S3_ENDPOINT", ""), "S3 endpoint override")
	fs.BoolVar(&cfg.S3UsePathStyle, "s3-path-style", getEnvBool("PASTEBIN_S3_PATH_STYLE", false), "Use path-style S3 addressing")

	fs.StringVar(&cfg.DataDir, "data-dir", getEnvString("PASTEBIN_DATA_DIR", "./data"), "Directory for the filesystem store")

	fs.BoolVar(&cfg.TestMode, "test-mode", getEnvBool("PASTEBIN_TEST_MODE", os.Getenv("TEST_MODE") == "1"), "Honour the X-Test-Now-Ms request header")
	fs.BoolVar(&cfg.EnableMetrics, "metrics", getEnvBool("PASTEBIN_METRICS", true), "Expose Prometheus metrics on /metrics")
	fs.StringVar(&cfg.LogLevel, "log-level", getEnvString("PASTEBIN_LOG_LEVEL", "info"), "Log level: debug, info, warn, error")
	fs.StringVar(&cfg.LogFormat, "log-format", getEnvString("PASTEBIN_LOG_FORMAT", "text"), "Log format: text or json")
	fs.StringVar(&cfg.LogFile, "log-file", getEnvString("PASTEBIN_LOG_FILE", ""), "Write logs to this file instead of stderr")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}

	cfg.StoreType = strings.ToLower(strings.TrimSpace(cfg.StoreType))
	cfg.URL = strings.TrimRight(cfg.URL, "/")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.IDLength < 8 || c.IDLength > 64 {
		return fmt.Errorf("id length must be between 8 and 64: %d", c.IDLength)
	}
	if c.MaxContentBytes < 1024 {
		return fmt.Errorf("max content bytes must be at least 1KB: %d", c.MaxContentBytes)
	}
	if c.StoreTimeout <= 0 {
		return fmt.Errorf("store timeout must be positive: %v", c.StoreTimeout)
	}

	switch c.StoreType {
	case StoreRedis:
		if c.RedisURL == "" && c.RedisAddr == "" {
			return errors.New("redis store requires a url or an address")
		}
	case StoreDynamoDB:
		if c.DynamoDBTable == "" {
			return errors.New("dynamodb store requires a table")
		}
	case StoreMongoDB:
		if c.MongoDBURI == "" {
			return errors.New("mongodb store requires a uri")
		}
	case StoreS3:
		if c.S3Bucket == "" {
			return errors.New("s3 store requires a bucket")
		}
	case StoreFilesystem:
		if c.DataDir == "" {
			return errors.New("filesystem store requires a data dir")
		}
	default:
		return fmt.Errorf("invalid store type: %s (valid: redis, dynamodb, mongodb, s3, filesystem)", c.StoreType)
	}

	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format: %s", c.LogFormat)
	}
	return nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
