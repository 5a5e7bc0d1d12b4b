package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syncshop/catalog-audit/internal/domain"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func session(feed string, createdAt string, ids ...string) domain.AuditSession {
	s := domain.NewAuditSession(feed, false, domain.FetchSync)
	s.CreatedAt = createdAt
	for _, id := range ids {
		s.Discrepancies = append(s.Discrepancies, domain.DiscrepancyRecord{
			ID: id, Key: id, Kind: domain.KindPrice,
			ShopifyPrice: decimal.NewNullDecimal(decimal.RequireFromString("14.00")),
			Price:        &domain.PricePayload{Field: domain.PriceFieldPrice, Target: decimal.NewNullDecimal(decimal.NewFromInt(12))},
		})
	}
	return s
}

func TestSaveAndLoad(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)

	in := session("Clearance_May.csv", "2026-05-01T10:00:00Z", "abc/price", "def/price")
	in.Missing = []domain.CreationCandidate{{Row: domain.SourceRow{Key: "xyz", SKU: "XYZ"}}}
	in.Locations = []string{"Warehouse"}
	require.NoError(t, s.SaveSession(ctx, in))

	got, err := s.LoadSession(ctx, in.ID)
	require.NoError(t, err)
	assert.Equal(t, in.ID, got.ID)
	require.Len(t, got.Discrepancies, 2)
	assert.True(t, got.Discrepancies[0].ShopifyPrice.Valid)
	assert.Equal(t, "12", got.Discrepancies[0].Price.Target.Decimal.String())
	assert.Equal(t, []string{"Warehouse"}, got.Locations)
	assert.Len(t, got.Missing, 1)
}

func TestSaveReplacesWorkingSet(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)

	in := session("feed.csv", "2026-05-01T10:00:00Z", "a", "b")
	require.NoError(t, s.SaveSession(ctx, in))

	next := in.ApplyDispatch([]string{"a"}, nil)
	require.NoError(t, s.SaveSession(ctx, next))

	got, err := s.LoadSession(ctx, in.ID)
	require.NoError(t, err)
	require.Len(t, got.Discrepancies, 1)
	assert.Equal(t, "b", got.Discrepancies[0].ID)

	list, err := s.ListSessions(ctx, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 1, list[0].Discrepancies)
}

func TestLoadUnknown(t *testing.T) {
	_, err := openTemp(t).LoadSession(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveRejectsInvalidSession(t *testing.T) {
	s := session("feed.csv", "2026-05-01T10:00:00Z", "x", "x")
	err := openTemp(t).SaveSession(context.Background(), s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestListAndLatest(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)

	_, err := s.Latest(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	older := session("a.csv", "2026-05-01T10:00:00Z")
	newer := session("b.csv", "2026-05-02T10:00:00Z", "k")
	require.NoError(t, s.SaveSession(ctx, newer))
	require.NoError(t, s.SaveSession(ctx, older))

	list, err := s.ListSessions(ctx, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "b.csv", list[0].FeedFile)
	assert.Equal(t, domain.FetchSync, list[0].Mode)
	assert.Equal(t, "a.csv", list[1].FeedFile)

	limited, err := s.ListSessions(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	latest, err := s.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, newer.ID, latest.ID)

	require.NoError(t, s.DeleteSession(ctx, newer.ID))
	latest, err = s.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, older.ID, latest.ID)
}
