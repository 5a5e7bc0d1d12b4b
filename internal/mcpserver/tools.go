// Package mcpserver exposes catalog audit workflows via MCP tools.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/syncshop/catalog-audit/internal/domain"
	"github.com/syncshop/catalog-audit/internal/temporal/activities"
	"github.com/syncshop/catalog-audit/internal/temporal/querier"
	"github.com/syncshop/catalog-audit/internal/temporal/versioning"
	"github.com/syncshop/catalog-audit/internal/temporal/workflows"
)

// Defaults are the policy settings applied to audits started from a tool call.
type Defaults struct {
	AutoFixKinds     []domain.DiscrepancyKind
	MaxPriceDeltaPct float64
}

// RegisterTools registers all audit MCP tools on the given server.
func RegisterTools(server *mcp.Server, q querier.WorkflowQuerier, d Defaults) {
	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "list_audits",
			Description: "List recent catalog audit workflows with their status",
		},
		listAuditsHandler(q),
	)

	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "get_audit_state",
			Description: "Get phase, summary, policy decision and outcome of one audit workflow",
		},
		getAuditStateHandler(q),
	)

	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "start_audit",
			Description: "Start an audit of one feed file (mode sync or bulk)",
		},
		startAuditHandler(q, d),
	)

	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "approve_corrections",
			Description: "Approve corrections for a waiting audit: record ids, fix_all, and optionally missing products to create",
		},
		approveHandler(q),
	)

	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "deny_corrections",
			Description: "Deny every pending correction of a waiting audit",
		},
		denyHandler(q),
	)
}

type listAuditsInput struct {
	Status string `json:"status,omitempty"`
}

func listAuditsHandler(q querier.WorkflowQuerier) mcp.ToolHandlerFor[listAuditsInput, any] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input listAuditsInput) (*mcp.CallToolResult, any, error) {
		opts := querier.ListOptions{TaskQueue: versioning.QueueAudit, WorkflowType: "AuditWorkflow"}
		if input.Status != "" {
			opts.StatusFilter = input.Status
		}

		audits, err := q.ListWorkflows(ctx, opts)
		if err != nil {
			return nil, nil, fmt.Errorf("list_audits: %w", err)
		}

		return textResult(audits)
	}
}

type workflowIDInput struct {
	WorkflowID string `json:"workflow_id"`
}

func getAuditStateHandler(q querier.WorkflowQuerier) mcp.ToolHandlerFor[workflowIDInput, any] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input workflowIDInput) (*mcp.CallToolResult, any, error) {
		if input.WorkflowID == "" {
			return errorResult("workflow_id is required"), nil, nil
		}

		result, err := q.GetWorkflowState(ctx, input.WorkflowID)
		if err != nil {
			return nil, nil, fmt.Errorf("get_audit_state: %w", err)
		}

		return textResult(result)
	}
}

type startAuditInput struct {
	File string `json:"file"`
	Mode string `json:"mode,omitempty"`
}

func startAuditHandler(q querier.WorkflowQuerier, d Defaults) mcp.ToolHandlerFor[startAuditInput, any] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input startAuditInput) (*mcp.CallToolResult, any, error) {
		if input.File == "" {
			return errorResult("file is required"), nil, nil
		}
		mode := domain.FetchMode(input.Mode)
		if mode == "" {
			mode = domain.FetchSync
		}
		if !mode.Valid() {
			return errorResult(fmt.Sprintf("mode must be sync or bulk, got %q", input.Mode)), nil, nil
		}

		started, err := q.StartAudit(ctx, workflows.AuditInput{
			File:             input.File,
			Mode:             mode,
			AutoFixKinds:     d.AutoFixKinds,
			MaxPriceDeltaPct: d.MaxPriceDeltaPct,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("start_audit: %w", err)
		}

		return textResult(started)
	}
}

type approveInput struct {
	WorkflowID string   `json:"workflow_id"`
	By         string   `json:"by"`
	RecordIDs  []string `json:"record_ids,omitempty"`
	FixAll     bool     `json:"fix_all,omitempty"`
	CreateAll  bool     `json:"create_all,omitempty"`
	CreateKeys []string `json:"create_keys,omitempty"`
}

func approveHandler(q querier.WorkflowQuerier) mcp.ToolHandlerFor[approveInput, any] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input approveInput) (*mcp.CallToolResult, any, error) {
		if input.WorkflowID == "" || input.By == "" {
			return errorResult("workflow_id and by are required"), nil, nil
		}

		resp := activities.ApprovalResponse{
			Approved:   true,
			By:         input.By,
			RecordIDs:  input.RecordIDs,
			FixAll:     input.FixAll,
			CreateAll:  input.CreateAll,
			CreateKeys: input.CreateKeys,
		}
		result, err := q.SubmitApproval(ctx, input.WorkflowID, resp)
		if err != nil {
			return nil, nil, fmt.Errorf("approve_corrections: %w", err)
		}

		return textResult(map[string]string{"result": result})
	}
}

type denyInput struct {
	WorkflowID string `json:"workflow_id"`
	By         string `json:"by"`
	Reason     string `json:"reason,omitempty"`
}

func denyHandler(q querier.WorkflowQuerier) mcp.ToolHandlerFor[denyInput, any] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input denyInput) (*mcp.CallToolResult, any, error) {
		if input.WorkflowID == "" || input.By == "" {
			return errorResult("workflow_id and by are required"), nil, nil
		}

		resp := activities.ApprovalResponse{Approved: false, By: input.By, Reason: input.Reason}
		result, err := q.SubmitApproval(ctx, input.WorkflowID, resp)
		if err != nil {
			return nil, nil, fmt.Errorf("deny_corrections: %w", err)
		}

		return textResult(map[string]string{"result": result})
	}
}

func textResult(v any) (*mcp.CallToolResult, any, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, nil, fmt.Errorf("marshal result: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(data)},
		},
	}, nil, nil
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: msg},
		},
		IsError: true,
	}
}
