// Package config provides application configuration loaded from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Mode determines whether commands use fixture collaborators or the real shop and feed.
type Mode string

const (
	ModeStub       Mode = "stub"
	ModeProduction Mode = "production"
)

// FeedSource selects where feed files are read from.
type FeedSource string

const (
	SourceDir FeedSource = "dir"
	SourceFTP FeedSource = "ftp"
	SourceS3  FeedSource = "s3"
)

// Config holds all application configuration.
type Config struct {
	Mode        Mode
	FixturesDir string
	LogLevel    string
	OTelEnabled bool

	// Shopify Admin API.
	ShopName    string
	ShopToken   string
	ShopVersion string

	// Feed retrieval.
	FeedSource   FeedSource
	FeedDir      string
	FTPHost      string
	FTPUser      string
	FTPPassword  string
	FTPDirectory string
	S3Bucket     string
	S3Prefix     string

	// AWS credentials for S3 feeds and CloudWatch.
	AWSRegion           string
	AWSProfile          string
	CrossAccountRole    string
	ExternalID          string
	CloudWatchNamespace string

	// Audit tuning.
	SKUBatchSize      int
	MutationChunkSize int
	FetchConcurrency  int
	BulkPollInterval  time.Duration
	DBPath            string

	// Approval policy.
	AutoFixKinds         string
	MaxAutoPriceDeltaPct float64

	// Temporal.
	TemporalAddress   string
	TemporalNamespace string
	WorkerQueues      string

	// API server settings.
	APIPort      string
	CORSOrigins  []string
	OIDCIssuer   string
	OIDCAudience string
}

// OIDCEnabled reports whether bearer tokens are verified on the API.
func (c Config) OIDCEnabled() bool {
	return c.OIDCIssuer != ""
}

// LoadFromEnv reads configuration from environment variables with sensible defaults.
func LoadFromEnv() (Config, error) {
	cfg := Config{
		Mode:                Mode(envOr("AUDIT_MODE", "stub")),
		FixturesDir:         os.Getenv("FIXTURES_DIR"),
		LogLevel:            envOr("LOG_LEVEL", "info"),
		ShopName:            ShopName(os.Getenv("SHOPIFY_SHOP_NAME")),
		ShopToken:           os.Getenv("SHOPIFY_API_ACCESS_TOKEN"),
		ShopVersion:         envOr("SHOPIFY_API_VERSION", "2024-07"),
		FeedSource:          FeedSource(envOr("FEED_SOURCE", "dir")),
		FeedDir:             envOr("FEED_DIR", "."),
		FTPHost:             os.Getenv("FTP_HOST"),
		FTPUser:             os.Getenv("FTP_USER"),
		FTPPassword:         os.Getenv("FTP_PASSWORD"),
		FTPDirectory:        envOr("FTP_DIRECTORY", "/Gamma_Product_Files/Shopify_Files/"),
		S3Bucket:            os.Getenv("FEED_S3_BUCKET"),
		S3Prefix:            os.Getenv("FEED_S3_PREFIX"),
		AWSRegion:           envOr("AWS_REGION", "us-east-1"),
		AWSProfile:          os.Getenv("AWS_PROFILE"),
		CrossAccountRole:    os.Getenv("AUDIT_CROSS_ACCOUNT_ROLE"),
		ExternalID:          os.Getenv("AUDIT_CROSS_ACCOUNT_EXTERNAL_ID"),
		CloudWatchNamespace: os.Getenv("AUDIT_CLOUDWATCH_NAMESPACE"),
		DBPath:              envOr("AUDIT_DB_PATH", "audit.db"),
		AutoFixKinds:        os.Getenv("AUDIT_AUTO_FIX_KINDS"),
		TemporalAddress:     envOr("TEMPORAL_ADDRESS", "localhost:7233"),
		TemporalNamespace:   envOr("TEMPORAL_NAMESPACE", "default"),
		WorkerQueues:        os.Getenv("AUDIT_WORKER_QUEUES"),
		APIPort:             envOr("AUDIT_API_PORT", "8080"),
		CORSOrigins:         parseCORSOrigins(os.Getenv("AUDIT_CORS_ORIGINS")),
		OIDCIssuer:          os.Getenv("OIDC_ISSUER_URL"),
		OIDCAudience:        os.Getenv("OIDC_AUDIENCE"),
	}

	var err error
	if cfg.OTelEnabled, err = envBool("OTEL_ENABLED", false); err != nil {
		return Config{}, err
	}
	if cfg.SKUBatchSize, err = envInt("AUDIT_SKU_BATCH_SIZE", 50); err != nil {
		return Config{}, err
	}
	if cfg.MutationChunkSize, err = envInt("AUDIT_MUTATION_CHUNK_SIZE", 50); err != nil {
		return Config{}, err
	}
	if cfg.FetchConcurrency, err = envInt("AUDIT_FETCH_CONCURRENCY", 4); err != nil {
		return Config{}, err
	}
	if cfg.BulkPollInterval, err = envDuration("AUDIT_BULK_POLL_INTERVAL", 5*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.MaxAutoPriceDeltaPct, err = envFloat("AUDIT_MAX_AUTO_PRICE_DELTA_PCT", 0); err != nil {
		return Config{}, err
	}

	if cfg.Mode != ModeStub && cfg.Mode != ModeProduction {
		return Config{}, fmt.Errorf("config: invalid AUDIT_MODE %q (must be stub or production)", cfg.Mode)
	}
	switch cfg.FeedSource {
	case SourceDir:
	case SourceFTP:
		if cfg.FTPHost == "" {
			return Config{}, fmt.Errorf("config: FTP_HOST required when FEED_SOURCE=ftp")
		}
	case SourceS3:
		if cfg.S3Bucket == "" {
			return Config{}, fmt.Errorf("config: FEED_S3_BUCKET required when FEED_SOURCE=s3")
		}
	default:
		return Config{}, fmt.Errorf("config: invalid FEED_SOURCE %q (must be dir, ftp or s3)", cfg.FeedSource)
	}

	if cfg.Mode == ModeProduction {
		if cfg.ShopName == "" {
			return Config{}, fmt.Errorf("config: SHOPIFY_SHOP_NAME required in production mode")
		}
		if cfg.ShopToken == "" {
			return Config{}, fmt.Errorf("config: SHOPIFY_API_ACCESS_TOKEN required in production mode")
		}
	}

	return cfg, nil
}

// ShopName strips scheme and the myshopify.com suffix from a shop name.
func ShopName(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "https://")
	s = strings.TrimPrefix(s, "http://")
	s = strings.TrimSuffix(s, "/")
	return strings.TrimSuffix(s, ".myshopify.com")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("config: %s must be a positive integer, got %q", key, v)
	}
	return n, nil
}

func envFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		return 0, fmt.Errorf("config: %s must be a non-negative number, got %q", key, v)
	}
	return f, nil
}

func envBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("config: %s must be a boolean, got %q", key, v)
	}
	return b, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("config: %s must be a positive duration, got %q", key, v)
	}
	return d, nil
}

func parseCORSOrigins(raw string) []string {
	if raw == "" {
		return []string{"*"}
	}
	var origins []string
	for _, o := range strings.Split(raw, ",") {
		if t := strings.TrimSpace(o); t != "" {
			origins = append(origins, t)
		}
	}
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}
