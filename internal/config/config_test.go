package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"AUDIT_MODE", "FIXTURES_DIR", "LOG_LEVEL", "OTEL_ENABLED",
	"SHOPIFY_SHOP_NAME", "SHOPIFY_API_ACCESS_TOKEN", "SHOPIFY_API_VERSION",
	"FEED_SOURCE", "FEED_DIR", "FTP_HOST", "FTP_USER", "FTP_PASSWORD", "FTP_DIRECTORY",
	"FEED_S3_BUCKET", "FEED_S3_PREFIX", "AWS_REGION", "AWS_PROFILE",
	"AUDIT_CROSS_ACCOUNT_ROLE", "AUDIT_CLOUDWATCH_NAMESPACE",
	"AUDIT_SKU_BATCH_SIZE", "AUDIT_MUTATION_CHUNK_SIZE", "AUDIT_FETCH_CONCURRENCY",
	"AUDIT_BULK_POLL_INTERVAL", "AUDIT_DB_PATH", "AUDIT_AUTO_FIX_KINDS",
	"AUDIT_MAX_AUTO_PRICE_DELTA_PCT", "TEMPORAL_ADDRESS", "TEMPORAL_NAMESPACE",
	"AUDIT_API_PORT", "AUDIT_CORS_ORIGINS", "OIDC_ISSUER_URL", "OIDC_AUDIENCE",
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, ModeStub, cfg.Mode)
	assert.Equal(t, "us-east-1", cfg.AWSRegion)
	assert.Equal(t, "2024-07", cfg.ShopVersion)
	assert.Equal(t, SourceDir, cfg.FeedSource)
	assert.Equal(t, "/Gamma_Product_Files/Shopify_Files/", cfg.FTPDirectory)
	assert.Equal(t, 50, cfg.SKUBatchSize)
	assert.Equal(t, 50, cfg.MutationChunkSize)
	assert.Equal(t, 4, cfg.FetchConcurrency)
	assert.Equal(t, 5*time.Second, cfg.BulkPollInterval)
	assert.Equal(t, "audit.db", cfg.DBPath)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.False(t, cfg.OTelEnabled)
	assert.False(t, cfg.OIDCEnabled())
	assert.Zero(t, cfg.MaxAutoPriceDeltaPct)
}

func TestLoadFromEnv_ProductionValid(t *testing.T) {
	clearEnv(t)
	t.Setenv("AUDIT_MODE", "production")
	t.Setenv("SHOPIFY_SHOP_NAME", "https://syncshop.myshopify.com")
	t.Setenv("SHOPIFY_API_ACCESS_TOKEN", "shpat_x")
	t.Setenv("AUDIT_BULK_POLL_INTERVAL", "250ms")
	t.Setenv("AUDIT_CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, ModeProduction, cfg.Mode)
	assert.Equal(t, "syncshop", cfg.ShopName)
	assert.Equal(t, 250*time.Millisecond, cfg.BulkPollInterval)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
}

func TestLoadFromEnv_ProductionMissingRequired(t *testing.T) {
	clearEnv(t)
	t.Setenv("AUDIT_MODE", "production")

	_, err := LoadFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SHOPIFY_SHOP_NAME")

	t.Setenv("SHOPIFY_SHOP_NAME", "syncshop")
	_, err = LoadFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SHOPIFY_API_ACCESS_TOKEN")
}

func TestLoadFromEnv_FeedSources(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{name: "ftp needs host", env: map[string]string{"FEED_SOURCE": "ftp"}, wantErr: "FTP_HOST"},
		{name: "ftp ok", env: map[string]string{"FEED_SOURCE": "ftp", "FTP_HOST": "ftp.example.com:21"}},
		{name: "s3 needs bucket", env: map[string]string{"FEED_SOURCE": "s3"}, wantErr: "FEED_S3_BUCKET"},
		{name: "s3 ok", env: map[string]string{"FEED_SOURCE": "s3", "FEED_S3_BUCKET": "feeds"}},
		{name: "unknown source", env: map[string]string{"FEED_SOURCE": "gopher"}, wantErr: "invalid FEED_SOURCE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadFromEnv()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadFromEnv_BadNumbers(t *testing.T) {
	for key, val := range map[string]string{
		"AUDIT_SKU_BATCH_SIZE":           "0",
		"AUDIT_FETCH_CONCURRENCY":        "many",
		"AUDIT_BULK_POLL_INTERVAL":       "soon",
		"AUDIT_MAX_AUTO_PRICE_DELTA_PCT": "-5",
		"OTEL_ENABLED":                   "maybe",
	} {
		t.Run(key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(key, val)
			_, err := LoadFromEnv()
			require.Error(t, err)
			assert.Contains(t, err.Error(), key)
		})
	}
}

func TestLoadFromEnv_InvalidMode(t *testing.T) {
	clearEnv(t)
	t.Setenv("AUDIT_MODE", "invalid")

	_, err := LoadFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid AUDIT_MODE")
}

func TestShopName(t *testing.T) {
	for in, want := range map[string]string{
		"syncshop":                        "syncshop",
		"syncshop.myshopify.com":          "syncshop",
		"https://syncshop.myshopify.com/": "syncshop",
		" http://syncshop.myshopify.com ": "syncshop",
	} {
		assert.Equal(t, want, ShopName(in), in)
	}
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range envKeys {
		// t.Setenv restores the original value on cleanup; Unsetenv makes the key absent.
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}
