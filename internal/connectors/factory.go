// Package connectors assembles the feed source, the shop and the summary
// publisher for one configuration.
package connectors

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"

	"github.com/syncshop/catalog-audit/internal/audit"
	"github.com/syncshop/catalog-audit/internal/config"
	awsauth "github.com/syncshop/catalog-audit/internal/connectors/aws"
	"github.com/syncshop/catalog-audit/internal/connectors/aws/cloudwatch"
	"github.com/syncshop/catalog-audit/internal/connectors/shopify"
	"github.com/syncshop/catalog-audit/internal/dispatch"
	"github.com/syncshop/catalog-audit/internal/feed"
	"github.com/syncshop/catalog-audit/internal/ratelimit"
	"github.com/syncshop/catalog-audit/internal/testutil"
)

// Shop reads catalog snapshots and executes mutations.
// Implemented by shopify.Client and testutil.StubShop.
type Shop interface {
	audit.Platform
	dispatch.Executor
}

// Set is everything an audit needs from the outside world.
type Set struct {
	Feeds feed.Source
	Shop  Shop
	// Publisher is nil when CloudWatch export is disabled.
	Publisher *cloudwatch.Publisher
}

// Build wires the collaborators for cfg. Stub mode reads the shop and feeds
// from the fixtures directory; production mode talks to Shopify and the
// configured feed source.
func Build(ctx context.Context, cfg config.Config, logger *slog.Logger) (Set, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Mode != config.ModeProduction {
		return buildStub(cfg)
	}

	var (
		awsCfg    aws.Config
		awsLoaded bool
	)
	loadAWS := func() (aws.Config, error) {
		if awsLoaded {
			return awsCfg, nil
		}
		c, err := awsauth.Load(ctx, awsauth.Options{
			Region:     cfg.AWSRegion,
			Profile:    cfg.AWSProfile,
			RoleARN:    cfg.CrossAccountRole,
			ExternalID: cfg.ExternalID,
		})
		if err != nil {
			return aws.Config{}, fmt.Errorf("connectors: %w", err)
		}
		awsCfg, awsLoaded = c, true
		return c, nil
	}

	var set Set
	switch cfg.FeedSource {
	case config.SourceFTP:
		set.Feeds = feed.NewFTPSource(cfg.FTPHost, cfg.FTPUser, cfg.FTPPassword, cfg.FTPDirectory, logger)
	case config.SourceS3:
		c, err := loadAWS()
		if err != nil {
			return Set{}, err
		}
		set.Feeds = feed.NewS3Source(c, cfg.S3Bucket, cfg.S3Prefix)
	default:
		set.Feeds = feed.NewDirSource(cfg.FeedDir)
	}

	set.Shop = shopify.New(cfg.ShopName, cfg.ShopToken, cfg.ShopVersion,
		shopify.WithLogger(logger),
		shopify.WithLimiter(ratelimit.NewServiceLimiter(ratelimit.DefaultServiceRates())),
		shopify.WithBatchSize(cfg.SKUBatchSize),
		shopify.WithConcurrency(cfg.FetchConcurrency),
		shopify.WithPollInterval(cfg.BulkPollInterval),
		shopify.WithBulkInventory(true),
	)

	if cfg.CloudWatchNamespace != "" {
		c, err := loadAWS()
		if err != nil {
			return Set{}, err
		}
		set.Publisher = cloudwatch.New(c, cfg.CloudWatchNamespace)
	}
	return set, nil
}

func buildStub(cfg config.Config) (Set, error) {
	dir := cfg.FixturesDir
	if dir == "" {
		dir = testutil.FixturesDir()
	}
	shop, err := testutil.LoadStubShop(filepath.Join(dir, "shop.yaml"))
	if err != nil {
		return Set{}, fmt.Errorf("connectors: %w", err)
	}
	return Set{
		Feeds: feed.NewDirSource(filepath.Join(dir, "feeds")),
		Shop:  shop,
	}, nil
}
