package querier

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	enumspb "go.temporal.io/api/enums/v1"
	workflowpb "go.temporal.io/api/workflow/v1"
	"go.temporal.io/api/workflowservice/v1"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/converter"

	"github.com/syncshop/catalog-audit/internal/temporal/activities"
	"github.com/syncshop/catalog-audit/internal/temporal/versioning"
	"github.com/syncshop/catalog-audit/internal/temporal/workflows"
)

// TemporalQuerier implements WorkflowQuerier using a Temporal client.
type TemporalQuerier struct {
	client client.Client
	newID  func() string
}

// New creates a TemporalQuerier.
func New(c client.Client) *TemporalQuerier {
	return &TemporalQuerier{client: c, newID: uuid.NewString}
}

// AuditWorkflowID names an audit workflow for a feed file.
func AuditWorkflowID(file, suffix string) string {
	name := strings.ToLower(strings.TrimSuffix(file, ".csv"))
	name = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			return r
		}
		return '-'
	}, name)
	return fmt.Sprintf("audit-%s-%s", name, suffix)
}

// StartAudit starts an AuditWorkflow on the audit queue.
func (q *TemporalQuerier) StartAudit(ctx context.Context, input workflows.AuditInput) (WorkflowSummary, error) {
	if input.File == "" {
		return WorkflowSummary{}, fmt.Errorf("start audit: file is required")
	}
	opts := client.StartWorkflowOptions{
		ID:        AuditWorkflowID(input.File, q.newID()),
		TaskQueue: versioning.QueueAudit,
	}
	run, err := q.client.ExecuteWorkflow(ctx, opts, workflows.AuditWorkflow, input)
	if err != nil {
		return WorkflowSummary{}, fmt.Errorf("start audit: %w", err)
	}
	return WorkflowSummary{
		WorkflowID: run.GetID(),
		RunID:      run.GetRunID(),
		Type:       "AuditWorkflow",
		Status:     enumspb.WORKFLOW_EXECUTION_STATUS_RUNNING.String(),
		TaskQueue:  versioning.QueueAudit,
	}, nil
}

// ListQuery builds the visibility query for opts.
func ListQuery(opts ListOptions) string {
	var parts []string
	if opts.TaskQueue != "" {
		parts = append(parts, fmt.Sprintf("TaskQueue = %q", opts.TaskQueue))
	}
	if opts.WorkflowType != "" {
		parts = append(parts, fmt.Sprintf("WorkflowType = %q", opts.WorkflowType))
	}
	if opts.StatusFilter != "" {
		parts = append(parts, fmt.Sprintf("ExecutionStatus = %q", opts.StatusFilter))
	}
	return strings.Join(parts, " AND ")
}

// ListWorkflows lists workflow executions using Temporal's visibility API.
func (q *TemporalQuerier) ListWorkflows(ctx context.Context, opts ListOptions) ([]WorkflowSummary, error) {
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	resp, err := q.client.ListWorkflow(ctx, &workflowservice.ListWorkflowExecutionsRequest{
		Query:    ListQuery(opts),
		PageSize: int32(pageSize),
	})
	if err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}

	var summaries []WorkflowSummary
	for _, exec := range resp.Executions {
		s := WorkflowSummary{
			WorkflowID: exec.Execution.WorkflowId,
			RunID:      exec.Execution.RunId,
			Status:     exec.Status.String(),
			StartTime:  exec.StartTime.AsTime(),
			TaskQueue:  exec.TaskQueue,
		}
		if exec.Type != nil {
			s.Type = exec.Type.Name
		}
		if exec.CloseTime != nil {
			s.CloseTime = exec.CloseTime.AsTime()
		}
		summaries = append(summaries, s)
	}
	return summaries, nil
}

// GetWorkflowState returns the current workflow result.
// For completed workflows, extracts the result directly.
// For running workflows, uses the Query handler and leaves Reason empty.
func (q *TemporalQuerier) GetWorkflowState(ctx context.Context, workflowID string) (*workflows.WorkflowResult, error) {
	desc, err := q.client.DescribeWorkflowExecution(ctx, workflowID, "")
	if err != nil {
		return nil, fmt.Errorf("describe workflow: %w", err)
	}

	switch status := desc.WorkflowExecutionInfo.Status; status {
	case enumspb.WORKFLOW_EXECUTION_STATUS_COMPLETED:
		run := q.client.GetWorkflow(ctx, workflowID, "")
		var result workflows.WorkflowResult
		if err := run.Get(ctx, &result); err != nil {
			return nil, fmt.Errorf("get workflow result: %w", err)
		}
		return &result, nil

	case enumspb.WORKFLOW_EXECUTION_STATUS_RUNNING:
		resp, err := q.client.QueryWorkflow(ctx, workflowID, "", workflows.QueryNameState)
		if err != nil {
			return nil, fmt.Errorf("query workflow state: %w", err)
		}
		var state workflows.AuditState
		if err := resp.Get(&state); err != nil {
			return nil, fmt.Errorf("decode query result: %w", err)
		}
		state.Progress = creationProgress(desc.GetPendingActivities())
		return &workflows.WorkflowResult{State: state}, nil

	default:
		return nil, fmt.Errorf("workflow %s has status %s, cannot read state", workflowID, status)
	}
}

// DescribeWorkflow returns detailed information about a workflow execution.
func (q *TemporalQuerier) DescribeWorkflow(ctx context.Context, workflowID string) (*WorkflowDescription, error) {
	desc, err := q.client.DescribeWorkflowExecution(ctx, workflowID, "")
	if err != nil {
		return nil, fmt.Errorf("describe workflow: %w", err)
	}

	info := desc.WorkflowExecutionInfo
	wd := &WorkflowDescription{
		WorkflowSummary: WorkflowSummary{
			WorkflowID: info.Execution.WorkflowId,
			RunID:      info.Execution.RunId,
			Status:     info.Status.String(),
			StartTime:  info.StartTime.AsTime(),
			TaskQueue:  info.TaskQueue,
		},
	}
	if info.Type != nil {
		wd.Type = info.Type.Name
	}
	if info.CloseTime != nil {
		wd.CloseTime = info.CloseTime.AsTime()
	}
	return wd, nil
}

// creationProgress reads the latest CreateProducts heartbeat, if any.
func creationProgress(pending []*workflowpb.PendingActivityInfo) *activities.CreationProgress {
	for _, pa := range pending {
		if pa.GetActivityType().GetName() != "CreateProducts" || pa.GetHeartbeatDetails() == nil {
			continue
		}
		var p activities.CreationProgress
		if err := converter.GetDefaultDataConverter().FromPayloads(pa.GetHeartbeatDetails(), &p); err != nil {
			return nil
		}
		return &p
	}
	return nil
}

// SubmitApproval sends an approval/denial Update to a running workflow.
func (q *TemporalQuerier) SubmitApproval(ctx context.Context, workflowID string, resp activities.ApprovalResponse) (string, error) {
	handle, err := q.client.UpdateWorkflow(ctx, client.UpdateWorkflowOptions{
		WorkflowID:   workflowID,
		UpdateName:   workflows.UpdateNameApproval,
		Args:         []any{resp},
		WaitForStage: client.WorkflowUpdateStageCompleted,
	})
	if err != nil {
		return "", fmt.Errorf("submit approval: %w", err)
	}

	var result string
	if err := handle.Get(ctx, &result); err != nil {
		return "", fmt.Errorf("get approval result: %w", err)
	}
	return result, nil
}
