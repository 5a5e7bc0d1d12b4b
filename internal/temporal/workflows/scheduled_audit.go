package workflows

import (
	"fmt"
	"strings"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/syncshop/catalog-audit/internal/domain"
	"github.com/syncshop/catalog-audit/internal/temporal/activities"
)

// ScheduledAuditInput configures a scheduled sweep over the feed source.
// Empty Files audits every listed feed file.
type ScheduledAuditInput struct {
	Files            []string                 `json:"files,omitempty"`
	Mode             domain.FetchMode         `json:"mode"`
	AutoFixKinds     []domain.DiscrepancyKind `json:"auto_fix_kinds,omitempty"`
	MaxPriceDeltaPct float64                  `json:"max_price_delta_pct,omitempty"`
}

// ScheduledAuditResult summarizes the sweep outcome.
type ScheduledAuditResult struct {
	FilesAudited int                          `json:"files_audited"`
	Reasons      map[string]TerminationReason `json:"reasons"`
	Failed       []string                     `json:"failed,omitempty"`
}

// ScheduledAuditWorkflow runs one child AuditWorkflow per feed file and waits
// for all of them. Each child keeps its own approval gate.
func ScheduledAuditWorkflow(ctx workflow.Context, input ScheduledAuditInput) (ScheduledAuditResult, error) {
	logger := workflow.GetLogger(ctx)
	result := ScheduledAuditResult{Reasons: make(map[string]TerminationReason)}

	actCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 3,
		},
	})

	files := input.Files
	if len(files) == 0 {
		var listed activities.ListFeedFilesOutput
		if err := workflow.ExecuteActivity(actCtx, "ListFeedFiles").Get(ctx, &listed); err != nil {
			return result, fmt.Errorf("list feed files: %w", err)
		}
		files = listed.Files
	}
	logger.Info("scheduled audit", "files", len(files), "mode", input.Mode)

	parent := workflow.GetInfo(ctx).WorkflowExecution.ID
	futures := make([]workflow.ChildWorkflowFuture, len(files))
	for i, file := range files {
		childCtx := workflow.WithChildOptions(ctx, workflow.ChildWorkflowOptions{
			WorkflowID: fmt.Sprintf("%s-%s", parent, childSuffix(file)),
		})
		futures[i] = workflow.ExecuteChildWorkflow(childCtx, AuditWorkflow, AuditInput{
			File:             file,
			Mode:             input.Mode,
			AutoFixKinds:     input.AutoFixKinds,
			MaxPriceDeltaPct: input.MaxPriceDeltaPct,
		})
	}

	for i, f := range futures {
		var child WorkflowResult
		if err := f.Get(ctx, &child); err != nil {
			logger.Warn("child workflow failed", "file", files[i], "error", err)
			result.Failed = append(result.Failed, files[i])
			continue
		}
		result.FilesAudited++
		result.Reasons[files[i]] = child.Reason
		logger.Info("child workflow completed", "file", files[i], "reason", child.Reason)
	}
	return result, nil
}

// childSuffix makes a feed file name safe for a workflow id.
func childSuffix(file string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		}
		return '-'
	}, file)
}
