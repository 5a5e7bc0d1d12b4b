package connectors

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syncshop/catalog-audit/internal/config"
	"github.com/syncshop/catalog-audit/internal/connectors/shopify"
	"github.com/syncshop/catalog-audit/internal/testutil"
)

func TestBuild_Stub(t *testing.T) {
	set, err := Build(context.Background(), config.Config{Mode: config.ModeStub}, nil)
	require.NoError(t, err)

	assert.IsType(t, &testutil.StubShop{}, set.Shop)
	assert.Nil(t, set.Publisher)

	files, err := set.Feeds.ListFiles(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Clearance_May.csv", "regular.csv"}, files)
}

func TestBuild_StubBadFixtures(t *testing.T) {
	_, err := Build(context.Background(), config.Config{Mode: config.ModeStub, FixturesDir: t.TempDir()}, nil)
	assert.ErrorContains(t, err, "connectors: testutil: read shop fixture")
}

func TestBuild_ProductionDirFeed(t *testing.T) {
	set, err := Build(context.Background(), config.Config{
		Mode:        config.ModeProduction,
		ShopName:    "syncshop",
		ShopToken:   "shpat_test",
		ShopVersion: shopify.DefaultAPIVersion,
		FeedSource:  config.SourceDir,
		FeedDir:     testutil.FeedDir(),
	}, nil)
	require.NoError(t, err)

	assert.IsType(t, &shopify.Client{}, set.Shop)
	assert.Nil(t, set.Publisher, "no namespace, no export")

	files, err := set.Feeds.ListFiles(context.Background())
	require.NoError(t, err)
	assert.Len(t, files, 2)
}

func TestBuild_BadRole(t *testing.T) {
	_, err := Build(context.Background(), config.Config{
		Mode:             config.ModeProduction,
		FeedSource:       config.SourceS3,
		S3Bucket:         "feeds",
		CrossAccountRole: "not-an-arn",
	}, nil)
	assert.ErrorContains(t, err, "connectors:")
}
