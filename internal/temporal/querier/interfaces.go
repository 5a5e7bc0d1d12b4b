package querier

import (
	"context"

	"github.com/syncshop/catalog-audit/internal/temporal/activities"
	"github.com/syncshop/catalog-audit/internal/temporal/workflows"
)

// WorkflowQuerier starts audits, reads workflow state and submits approvals.
// Used by the HTTP API, the MCP server and the CLI.
type WorkflowQuerier interface {
	StartAudit(ctx context.Context, input workflows.AuditInput) (WorkflowSummary, error)
	ListWorkflows(ctx context.Context, opts ListOptions) ([]WorkflowSummary, error)
	GetWorkflowState(ctx context.Context, workflowID string) (*workflows.WorkflowResult, error)
	DescribeWorkflow(ctx context.Context, workflowID string) (*WorkflowDescription, error)
	SubmitApproval(ctx context.Context, workflowID string, resp activities.ApprovalResponse) (string, error)
}
