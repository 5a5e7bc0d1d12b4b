// Package audit runs one reconciliation of a feed file against the platform
// and produces an AuditSession.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/syncshop/catalog-audit/internal/connectors/shopify"
	"github.com/syncshop/catalog-audit/internal/domain"
	"github.com/syncshop/catalog-audit/internal/engine"
	"github.com/syncshop/catalog-audit/internal/feed"
	"github.com/syncshop/catalog-audit/internal/normalize"
	"github.com/syncshop/catalog-audit/internal/observability"
)

// Platform is the read side of the platform connector.
type Platform interface {
	FetchByKeys(ctx context.Context, skus []string) (shopify.Snapshot, error)
	FetchBulkSnapshot(ctx context.Context, keys map[string]struct{}) (shopify.Snapshot, error)
	Locations(ctx context.Context) ([]shopify.Location, error)
}

// Request selects the feed file and fetch mode.
type Request struct {
	File string           `json:"file"`
	Mode domain.FetchMode `json:"mode"`
}

// Runner wires the feed source, platform and rule engine together.
type Runner struct {
	feeds    feed.Source
	platform Platform
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// NewRunner creates a Runner. logger and metrics may be nil.
func NewRunner(feeds feed.Source, platform Platform, logger *slog.Logger, metrics *observability.Metrics) *Runner {
	return &Runner{
		feeds:    feeds,
		platform: platform,
		logger:   observability.Component(logger, "audit"),
		metrics:  metrics,
	}
}

// Files lists the feed files available to audit.
func (r *Runner) Files(ctx context.Context) ([]string, error) {
	names, err := r.feeds.ListFiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("audit: list feeds: %w", err)
	}
	return names, nil
}

// Run audits one feed file. A feed or platform fetch failure aborts the run
// and no session is produced.
func (r *Runner) Run(ctx context.Context, req Request) (domain.AuditSession, error) {
	start := time.Now()
	if req.Mode == "" {
		req.Mode = domain.FetchSync
	}
	if !req.Mode.Valid() {
		return domain.AuditSession{}, fmt.Errorf("audit: invalid mode %q", req.Mode)
	}

	table, err := r.feeds.Fetch(ctx, req.File)
	if err != nil {
		return domain.AuditSession{}, fmt.Errorf("audit: fetch feed: %w", err)
	}
	rows, warnings := normalize.SourceRows(table)
	if len(rows) == 0 {
		return domain.AuditSession{}, fmt.Errorf("audit: feed %q has no rows with a sku", req.File)
	}
	clearance := feed.IsClearance(req.File)
	r.logger.Info("feed loaded", "file", req.File, "rows", len(rows), "clearance", clearance, "encoding", table.Encoding)

	snap, err := r.fetch(ctx, req.Mode, rows)
	if err != nil {
		return domain.AuditSession{}, fmt.Errorf("audit: fetch platform: %w", err)
	}

	out := engine.Reconcile(engine.Input{
		ClearanceFeed:   clearance,
		Source:          rows,
		Platform:        snap.Rows,
		StaleCandidates: snap.StaleCandidates,
	})

	s := domain.NewAuditSession(req.File, clearance, req.Mode)
	s.FeedColumns = table.Columns
	s.Locations = r.locations(ctx, snap)
	s.Discrepancies = out.Discrepancies
	s.Missing = out.Missing
	s.ExcessiveMedia = snap.ExcessiveMedia
	s.Warnings = append(warnings, snap.Warnings...)
	s.SourceRows = len(rows)
	s.Matched = out.Join.Matched

	if err := domain.ValidateSession(s); err != nil {
		return domain.AuditSession{}, fmt.Errorf("audit: %w", err)
	}

	byKind := make(map[string]int)
	for k, n := range s.KindCounts() {
		byKind[string(k)] = n
	}
	r.metrics.RecordDiscrepancies(ctx, byKind)
	r.metrics.RecordRun(ctx, time.Since(start), string(req.Mode))
	r.logger.Info("audit complete",
		"session_id", s.ID,
		"matched", s.Matched,
		"discrepancies", len(s.Discrepancies),
		"stale", len(out.Stale),
		"missing", len(s.Missing),
		"excessive_media", len(s.ExcessiveMedia),
		"warnings", len(s.Warnings),
		"duration", time.Since(start).String(),
	)
	return s, nil
}

func (r *Runner) fetch(ctx context.Context, mode domain.FetchMode, rows []domain.SourceRow) (shopify.Snapshot, error) {
	if mode == domain.FetchBulk {
		return r.platform.FetchBulkSnapshot(ctx, shopify.SourceKeys(rows))
	}
	skus := make([]string, len(rows))
	for i, row := range rows {
		skus[i] = row.SKU
	}
	return r.platform.FetchByKeys(ctx, skus)
}

// locations prefers the shop's location list and falls back to the names
// seen on fetched rows.
func (r *Runner) locations(ctx context.Context, snap shopify.Snapshot) []string {
	locs, err := r.platform.Locations(ctx)
	if err == nil && len(locs) > 0 {
		names := make([]string, len(locs))
		for i, l := range locs {
			names[i] = l.Name
		}
		return names
	}
	if err != nil {
		r.logger.Warn("listing locations failed; using names from fetched rows", "error", err)
	}
	seen := make(map[string]struct{})
	for _, rows := range [][]domain.PlatformRow{snap.Rows, snap.StaleCandidates} {
		for _, row := range rows {
			for name := range row.LocationQty {
				seen[name] = struct{}{}
			}
		}
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
