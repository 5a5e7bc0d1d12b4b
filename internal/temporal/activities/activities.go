package activities

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"go.temporal.io/sdk/activity"

	"github.com/syncshop/catalog-audit/internal/audit"
	"github.com/syncshop/catalog-audit/internal/connectors/shopify"
	"github.com/syncshop/catalog-audit/internal/creation"
	"github.com/syncshop/catalog-audit/internal/dispatch"
	"github.com/syncshop/catalog-audit/internal/domain"
	"github.com/syncshop/catalog-audit/internal/observability"
	"github.com/syncshop/catalog-audit/internal/policy"
	"github.com/syncshop/catalog-audit/internal/ratelimit"
	"github.com/syncshop/catalog-audit/internal/verifier"
)

// Auditor runs audits and lists feed files. Implemented by audit.Runner.
type Auditor interface {
	Files(ctx context.Context) ([]string, error)
	Run(ctx context.Context, req audit.Request) (domain.AuditSession, error)
}

// SessionStore persists sessions between activities. Implemented by store.Store.
type SessionStore interface {
	SaveSession(ctx context.Context, s domain.AuditSession) error
	LoadSession(ctx context.Context, id string) (domain.AuditSession, error)
}

// Refetcher reloads platform rows for verification.
type Refetcher interface {
	FetchByKeys(ctx context.Context, skus []string) (shopify.Snapshot, error)
}

// SummaryPublisher exports session summaries. Implemented by the CloudWatch publisher.
type SummaryPublisher interface {
	PublishSummary(ctx context.Context, s domain.Summary) error
}

// Activities holds the dependencies for all Temporal activities.
// Each method is registered as a Temporal activity.
type Activities struct {
	Shop      string
	Auditor   Auditor
	Store     SessionStore
	Shopify   dispatch.Executor
	Platform  Refetcher
	Publisher SummaryPublisher        // nil = no summary export
	Budget    *ratelimit.ActionBudget // nil = no budget enforcement
	Metrics   *observability.Metrics
	Logger    *slog.Logger
	ChunkSize int
}

func (a *Activities) logger() *slog.Logger {
	return observability.Component(a.Logger, "activities")
}

// checkBudget enforces per-shop activity budgets when configured.
func (a *Activities) checkBudget(ctx context.Context, activityName string) error {
	a.Metrics.RecordActivity(ctx, activityName)
	if a.Budget == nil {
		return nil
	}
	return a.Budget.Take(a.Shop, activityName)
}

// ListFeedFiles lists the audit-able feed files.
func (a *Activities) ListFeedFiles(ctx context.Context) (ListFeedFilesOutput, error) {
	if err := a.checkBudget(ctx, "ListFeedFiles"); err != nil {
		return ListFeedFilesOutput{}, err
	}
	files, err := a.Auditor.Files(ctx)
	if err != nil {
		return ListFeedFilesOutput{}, fmt.Errorf("list feeds activity: %w", err)
	}
	return ListFeedFilesOutput{Files: files}, nil
}

// RunAudit runs one audit, stores the session and exports its summary.
// The policy is evaluated here so the workflow only sees the outcome.
func (a *Activities) RunAudit(ctx context.Context, in RunAuditInput) (RunAuditOutput, error) {
	if err := a.checkBudget(ctx, "RunAudit"); err != nil {
		return RunAuditOutput{}, err
	}
	sess, err := a.Auditor.Run(ctx, audit.Request{File: in.File, Mode: in.Mode})
	if err != nil {
		return RunAuditOutput{}, fmt.Errorf("audit activity: %w", err)
	}
	if err := a.Store.SaveSession(ctx, sess); err != nil {
		return RunAuditOutput{}, fmt.Errorf("audit activity: %w", err)
	}

	sum := sess.Summary()
	if a.Publisher != nil {
		if err := a.Publisher.PublishSummary(ctx, sum); err != nil {
			a.logger().Warn("summary export failed", "session", sess.ID, "error", err)
		}
	}

	outcome := PolicyOutcome{Approval: domain.ApprovalPending, Details: "missing products require operator selection"}
	if len(sess.Discrepancies) > 0 {
		d := in.Policy.engine().Decide(sess.Discrepancies)
		outcome = PolicyOutcome{Approval: d.Approval, Details: d.Details, AutoApproved: len(d.AutoApproved)}
	}
	return RunAuditOutput{SessionID: sess.ID, Summary: sum, Decision: outcome}, nil
}

// ApplyCorrections resolves the selection against the stored session,
// dispatches it and stores the updated session.
// Dispatch failures are reported per record; only safety, load and save
// failures are activity errors.
func (a *Activities) ApplyCorrections(ctx context.Context, in ApplyCorrectionsInput) (ApplyCorrectionsOutput, error) {
	if err := a.checkBudget(ctx, "ApplyCorrections"); err != nil {
		return ApplyCorrectionsOutput{}, err
	}
	sess, err := a.Store.LoadSession(ctx, in.SessionID)
	if err != nil {
		return ApplyCorrectionsOutput{}, fmt.Errorf("apply corrections activity: %w", err)
	}

	records, unknown := resolveSelection(sess, in.Policy, in.Selection)
	if len(unknown) > 0 {
		a.logger().Warn("selection names unknown records", "session", in.SessionID, "unknown", unknown)
	}
	if err := policy.EnforceDispatchSafety(in.Approval, records); err != nil {
		return ApplyCorrectionsOutput{}, fmt.Errorf("apply corrections activity: %w", err)
	}

	d := dispatch.New(a.Shopify,
		dispatch.WithChunkSize(a.ChunkSize),
		dispatch.WithLogger(a.Logger),
		dispatch.WithMetrics(a.Metrics),
	)
	res := d.Dispatch(ctx, records)

	next := sess.ApplyDispatch(res.Attempted, res.Failures)
	if err := a.Store.SaveSession(ctx, next); err != nil {
		return ApplyCorrectionsOutput{}, fmt.Errorf("apply corrections activity: %w", err)
	}
	return ApplyCorrectionsOutput{
		Attempted: len(res.Attempted),
		Succeeded: len(res.Succeeded()),
		Failed:    len(res.Failures),
		Failures:  firstN(res.Failures),
		Unknown:   unknown,
		Remaining: len(next.Discrepancies),
	}, nil
}

// resolveSelection returns the selected records in session order and the
// requested ids the session does not hold.
func resolveSelection(sess domain.AuditSession, cfg PolicyConfig, sel Selection) ([]domain.DiscrepancyRecord, []string) {
	chosen := make(map[string]bool, len(sel.RecordIDs))
	for _, id := range sel.RecordIDs {
		chosen[id] = true
	}
	eng := cfg.engine()

	var out []domain.DiscrepancyRecord
	seen := make(map[string]bool, len(sess.Discrepancies))
	for _, r := range sess.Discrepancies {
		seen[r.ID] = true
		if chosen[r.ID] || (sel.FixAll && r.Kind.Correctable()) || (sel.Policy && eng.Allows(r)) {
			out = append(out, r)
		}
	}

	var unknown []string
	for _, id := range sel.RecordIDs {
		if !seen[id] {
			unknown = append(unknown, id)
		}
	}
	return out, unknown
}

// firstN keeps the maxReported smallest keys of m.
func firstN[V any](m map[string]V) map[string]V {
	if len(m) <= maxReported {
		return m
	}
	out := make(map[string]V, maxReported)
	for _, k := range slices.Sorted(maps.Keys(m))[:maxReported] {
		out[k] = m[k]
	}
	return out
}

// CreateProducts creates the selected missing products and stores the updated session.
// Progress is recorded as a heartbeat after each product group.
func (a *Activities) CreateProducts(ctx context.Context, in CreateProductsInput) (CreateProductsOutput, error) {
	if err := a.checkBudget(ctx, "CreateProducts"); err != nil {
		return CreateProductsOutput{}, err
	}
	if !in.Approval.Dispatchable() {
		return CreateProductsOutput{}, fmt.Errorf("create products activity: approval status is %s", in.Approval)
	}
	sess, err := a.Store.LoadSession(ctx, in.SessionID)
	if err != nil {
		return CreateProductsOutput{}, fmt.Errorf("create products activity: %w", err)
	}

	cands := sess.SelectMissing(in.Keys)
	c := creation.NewCreator(a.Shopify, a.Logger, a.Metrics)
	res := c.Create(ctx, cands, func(done, total int) {
		if activity.IsActivity(ctx) {
			activity.RecordHeartbeat(ctx, CreationProgress{Done: done, Total: total})
		}
	})

	created := res.Created()
	failures := res.Failures()
	next := sess.ApplyCreation(created, failures)
	if err := a.Store.SaveSession(ctx, next); err != nil {
		return CreateProductsOutput{}, fmt.Errorf("create products activity: %w", err)
	}

	out := CreateProductsOutput{
		Groups:    len(res.Groups),
		Failed:    len(failures),
		Failures:  firstN(failures),
		Remaining: len(next.Missing),
	}
	for _, cand := range cands {
		if !created[cand.Row.Key] {
			continue
		}
		out.CreatedCount++
		if len(out.Created) < maxReported {
			out.Created = append(out.Created, cand.Row.Key)
		}
	}
	if len(in.Keys) > 0 {
		known := make(map[string]bool, len(cands))
		for _, cand := range cands {
			known[cand.Row.Key] = true
		}
		for _, k := range in.Keys {
			if !known[k] {
				out.Unknown = append(out.Unknown, k)
			}
		}
	}
	return out, nil
}

// VerifyCorrections re-fetches the applied SKUs and checks every record landed.
// Records are loaded from the stored session.
func (a *Activities) VerifyCorrections(ctx context.Context, in VerifyCorrectionsInput) (VerifyCorrectionsOutput, error) {
	if err := a.checkBudget(ctx, "VerifyCorrections"); err != nil {
		return VerifyCorrectionsOutput{}, err
	}
	sess, err := a.Store.LoadSession(ctx, in.SessionID)
	if err != nil {
		return VerifyCorrectionsOutput{}, fmt.Errorf("verify activity: %w", err)
	}

	records := sess.Applied
	if len(in.RecordIDs) > 0 {
		want := make(map[string]bool, len(in.RecordIDs))
		for _, id := range in.RecordIDs {
			want[id] = true
		}
		records = nil
		for _, r := range sess.Applied {
			if want[r.ID] {
				records = append(records, r)
			}
		}
	}

	var skus []string
	for _, r := range records {
		skus = append(skus, r.SKU)
	}
	snap, err := a.Platform.FetchByKeys(ctx, skus)
	if err != nil {
		return VerifyCorrectionsOutput{}, fmt.Errorf("verify activity: %w", err)
	}
	res := verifier.Verify(records, snap.Rows)
	a.logger().Info("verification complete",
		"session", in.SessionID,
		"confirmed", len(res.Confirmed),
		"mismatches", len(res.Mismatches),
		"not_found", len(res.NotFound),
	)

	out := VerifyCorrectionsOutput{
		VerifiedAt:     res.VerifiedAt,
		Checked:        len(records),
		Confirmed:      len(res.Confirmed),
		MismatchCount:  len(res.Mismatches),
		Mismatches:     res.Mismatches,
		NotFound:       len(res.NotFound),
		Skipped:        len(res.Skipped),
		Recommendation: res.Recommendation,
	}
	if len(out.Mismatches) > maxReported {
		out.Mismatches = out.Mismatches[:maxReported]
	}
	return out, nil
}
