package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syncshop/catalog-audit/internal/connectors/shopify"
	"github.com/syncshop/catalog-audit/internal/creation"
	"github.com/syncshop/catalog-audit/internal/dispatch"
	"github.com/syncshop/catalog-audit/internal/domain"
	"github.com/syncshop/catalog-audit/internal/feed"
	"github.com/syncshop/catalog-audit/internal/testutil"
)

func fixtureRunner(t *testing.T) (*Runner, *testutil.StubShop) {
	t.Helper()
	shop := testutil.MustLoadStubShop()
	return NewRunner(feed.NewDirSource(testutil.FeedDir()), shop, nil, nil), shop
}

func kindsByKey(s domain.AuditSession) map[string][]domain.DiscrepancyKind {
	out := make(map[string][]domain.DiscrepancyKind)
	for _, r := range s.Discrepancies {
		out[r.Key] = append(out[r.Key], r.Kind)
	}
	return out
}

func TestRun_ClearanceFeedSync(t *testing.T) {
	r, _ := fixtureRunner(t)

	s, err := r.Run(context.Background(), Request{File: "Clearance_May.csv"})
	require.NoError(t, err)

	assert.True(t, s.ClearanceFeed)
	assert.Equal(t, domain.FetchSync, s.Mode)
	assert.Equal(t, 3, s.SourceRows)
	assert.Equal(t, 2, s.Matched)
	assert.Equal(t, []string{"Warehouse", "Storefront"}, s.Locations)
	assert.Contains(t, s.FeedColumns, "sku")

	byKey := kindsByKey(s)
	assert.Equal(t, []domain.DiscrepancyKind{domain.KindIncorrectTemplate}, byKey["abc"])
	assert.ElementsMatch(t, []domain.DiscrepancyKind{domain.KindPrice, domain.KindH1InDescription}, byKey["def"])
	assert.NotContains(t, byKey, "xyz")
	// the sync path cannot see catalog rows outside the feed
	assert.NotContains(t, byKey, "old-1")
	assert.Empty(t, s.ExcessiveMedia)

	require.Len(t, s.Missing, 1)
	assert.Equal(t, "XYZ", s.Missing[0].Row.SKU)
	assert.Equal(t, "Product XYZ", s.Missing[0].Row.Field("title"))

	rec, ok := s.Record("abc/incorrect_template_suffix")
	require.True(t, ok)
	assert.Equal(t, "clearance", rec.CSVValue)
	assert.Equal(t, "default", rec.ShopifyValue)
	assert.Equal(t, map[string]int{"Warehouse": 3, "Storefront": 1}, rec.LocationQty)
}

func TestRun_ClearanceFeedBulkFindsStaleAndMedia(t *testing.T) {
	r, _ := fixtureRunner(t)

	s, err := r.Run(context.Background(), Request{File: "Clearance_May.csv", Mode: domain.FetchBulk})
	require.NoError(t, err)

	byKey := kindsByKey(s)
	assert.Equal(t, []domain.DiscrepancyKind{domain.KindStaleClearanceTag}, byKey["old-1"])
	assert.NotContains(t, byKey, "cap-1")

	require.Len(t, s.ExcessiveMedia, 1)
	assert.Equal(t, "def-mug", s.ExcessiveMedia[0].Handle)
}

func TestRun_RegularFeedFlagsStickySale(t *testing.T) {
	r, _ := fixtureRunner(t)

	s, err := r.Run(context.Background(), Request{File: "regular.csv", Mode: domain.FetchBulk})
	require.NoError(t, err)

	assert.False(t, s.ClearanceFeed)
	byKey := kindsByKey(s)
	assert.Equal(t, []domain.DiscrepancyKind{domain.KindStickySale}, byKey["cap-1"])
	assert.Contains(t, byKey["abc"], domain.KindStickySale)
	assert.NotContains(t, byKey, "old-1", "stale scan runs for clearance feeds only")
}

func TestRun_FixThenReauditIsClean(t *testing.T) {
	r, shop := fixtureRunner(t)
	ctx := context.Background()

	s, err := r.Run(ctx, Request{File: "Clearance_May.csv", Mode: domain.FetchBulk})
	require.NoError(t, err)

	res := dispatch.New(shop).Dispatch(ctx, s.Discrepancies)
	s = s.ApplyDispatch(res.Attempted, res.Failures)
	require.Len(t, s.Discrepancies, 1)
	assert.Equal(t, domain.KindStaleClearanceTag, s.Discrepancies[0].Kind)
	assert.Equal(t, dispatch.ManualReviewMessage, s.Discrepancies[0].ErrorLog)

	cr := creation.NewCreator(shop, nil, nil).Create(ctx, s.Missing, nil)
	s = s.ApplyCreation(cr.Created(), cr.Failures())
	assert.Empty(t, s.Missing)

	again, err := r.Run(ctx, Request{File: "Clearance_May.csv", Mode: domain.FetchBulk})
	require.NoError(t, err)
	assert.Equal(t, map[string][]domain.DiscrepancyKind{"old-1": {domain.KindStaleClearanceTag}}, kindsByKey(again))
	assert.Empty(t, again.Missing)
}

func TestRun_RejectedPriceStaysWithError(t *testing.T) {
	r, shop := fixtureRunner(t)
	shop.Reject = map[string]string{"DEF": "Price must be positive"}
	ctx := context.Background()

	s, err := r.Run(ctx, Request{File: "Clearance_May.csv"})
	require.NoError(t, err)

	res := dispatch.New(shop).Dispatch(ctx, s.SelectKinds(domain.KindPrice))
	s = s.ApplyDispatch(res.Attempted, res.Failures)

	rec, ok := s.Record("def/price")
	require.True(t, ok)
	assert.Equal(t, "Price must be positive", rec.ErrorLog)
}

func TestRun_FeedErrorsAbort(t *testing.T) {
	shop := testutil.MustLoadStubShop()
	src := testutil.NewMemorySource(map[string]string{
		"empty.csv":   "",
		"nosku.csv":   "SKU,Price\n,10\n",
		"header.csv":  "SKU,Price\n",
		"present.csv": "SKU,Price\nABC,10\n",
	})
	r := NewRunner(src, shop, nil, nil)
	ctx := context.Background()

	_, err := r.Run(ctx, Request{File: "missing.csv"})
	assert.ErrorContains(t, err, "audit: fetch feed")
	_, err = r.Run(ctx, Request{File: "empty.csv"})
	assert.ErrorContains(t, err, "empty file")
	_, err = r.Run(ctx, Request{File: "header.csv"})
	assert.ErrorContains(t, err, "no data rows")
	_, err = r.Run(ctx, Request{File: "nosku.csv"})
	assert.ErrorContains(t, err, "no rows with a sku")
	_, err = r.Run(ctx, Request{File: "present.csv", Mode: "stream"})
	assert.ErrorContains(t, err, "invalid mode")
}

type failingPlatform struct{ testutil.StubShop }

func (f *failingPlatform) FetchByKeys(context.Context, []string) (shopify.Snapshot, error) {
	return shopify.Snapshot{}, errors.New("shopify: unexpected status 401: invalid token")
}

func (f *failingPlatform) Locations(context.Context) ([]shopify.Location, error) {
	return nil, errors.New("unreachable")
}

func TestRun_PlatformErrorAborts(t *testing.T) {
	src := testutil.NewMemorySource(map[string]string{"f.csv": "SKU,Price\nABC,10\n"})
	r := NewRunner(src, &failingPlatform{}, nil, nil)

	_, err := r.Run(context.Background(), Request{File: "f.csv"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "audit: fetch platform")
	assert.Contains(t, err.Error(), "invalid token")
}

func TestFiles(t *testing.T) {
	r, _ := fixtureRunner(t)
	files, err := r.Files(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Clearance_May.csv", "regular.csv"}, files)
}
