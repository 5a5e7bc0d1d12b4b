// Package workflows defines the Temporal workflow functions.
package workflows

import (
	"fmt"
	"strings"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/syncshop/catalog-audit/internal/domain"
	"github.com/syncshop/catalog-audit/internal/temporal/activities"
	"github.com/syncshop/catalog-audit/internal/temporal/versioning"
)

// UpdateNameApproval is the Temporal Update handler name for operator approval.
const UpdateNameApproval = "approval"

// QueryNameState is the Temporal query handler name returning AuditState.
const QueryNameState = "state"

// HILTimeout is how long the workflow waits for operator approval.
const HILTimeout = 24 * time.Hour

// TerminationReason describes why the workflow ended.
type TerminationReason string

const (
	ReasonCompleted        TerminationReason = "completed"
	ReasonNoDiscrepancies  TerminationReason = "no_discrepancies"
	ReasonHumanDenied      TerminationReason = "human_denied"
	ReasonApprovalTimedOut TerminationReason = "approval_timed_out"
	ReasonAuditError       TerminationReason = "audit_error"
	ReasonDispatchError    TerminationReason = "dispatch_error"
	ReasonCreationError    TerminationReason = "creation_error"
	ReasonVerifyError      TerminationReason = "verify_error"
)

// Workflow phases reported by the state query.
const (
	PhaseAuditing  = "auditing"
	PhaseApproval  = "awaiting_approval"
	PhaseCorrect   = "correcting"
	PhaseCreate    = "creating"
	PhaseVerify    = "verifying"
	PhaseCompleted = "completed"
)

// AuditInput is the input to the audit workflow.
type AuditInput struct {
	File             string                   `json:"file"`
	Mode             domain.FetchMode         `json:"mode"`
	AutoFixKinds     []domain.DiscrepancyKind `json:"auto_fix_kinds,omitempty"`
	MaxPriceDeltaPct float64                  `json:"max_price_delta_pct,omitempty"`
	// ApprovalTimeout overrides HILTimeout when positive.
	ApprovalTimeout time.Duration `json:"approval_timeout,omitempty"`
}

// AuditState is what the state query returns while the workflow runs.
// Progress is never set by the workflow; readers fill it from the
// CreateProducts heartbeat.
type AuditState struct {
	Phase        string                              `json:"phase"`
	File         string                              `json:"file"`
	SessionID    string                              `json:"session_id,omitempty"`
	Summary      *domain.Summary                     `json:"summary,omitempty"`
	Decision     *activities.PolicyOutcome           `json:"decision,omitempty"`
	Approval     domain.ApprovalStatus               `json:"approval,omitempty"`
	ApprovedBy   string                              `json:"approved_by,omitempty"`
	Corrections  *activities.ApplyCorrectionsOutput  `json:"corrections,omitempty"`
	Creation     *activities.CreateProductsOutput    `json:"creation,omitempty"`
	Progress     *activities.CreationProgress        `json:"progress,omitempty"`
	Verification *activities.VerifyCorrectionsOutput `json:"verification,omitempty"`
	Error        string                              `json:"error,omitempty"`
}

// WorkflowResult is the output of the audit workflow.
// The workflow returns this on all paths; only infra failures produce
// workflow-level errors.
type WorkflowResult struct {
	State  AuditState        `json:"state"`
	Reason TerminationReason `json:"reason"`
}

// selection is what an approval (or the policy alone) cleared for dispatch.
type selection struct {
	approval    domain.ApprovalStatus
	by          string
	corrections activities.Selection
	create      bool
	createKeys  []string
}

// AuditWorkflow audits one feed file and applies the approved corrections.
//
//	audit -> policy -> approval gate -> corrections -> creation -> verify -> END
//
// Each step may short-circuit to END via early returns.
// Records stay in the session store; history only carries ids and counts.
func AuditWorkflow(ctx workflow.Context, input AuditInput) (WorkflowResult, error) {
	logger := workflow.GetLogger(ctx)
	state := AuditState{Phase: PhaseAuditing, File: input.File}

	if err := workflow.SetQueryHandler(ctx, QueryNameState, func() (AuditState, error) {
		return state, nil
	}); err != nil {
		return WorkflowResult{}, fmt.Errorf("register state query: %w", err)
	}

	// Reads may retry; writes never do.
	readCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Minute,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 3},
	})
	writeCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		TaskQueue:           versioning.QueueExec,
		StartToCloseTimeout: 30 * time.Minute,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	})

	end := func(reason TerminationReason, err error) (WorkflowResult, error) {
		if err != nil {
			state.Error = err.Error()
		}
		return WorkflowResult{State: state, Reason: reason}, nil
	}

	// ------------------------------------------------------------------
	// Audit
	// ------------------------------------------------------------------
	var auditOut activities.RunAuditOutput
	pol := activities.PolicyConfig{AutoFixKinds: input.AutoFixKinds, MaxPriceDeltaPct: input.MaxPriceDeltaPct}
	err := workflow.ExecuteActivity(readCtx, "RunAudit", activities.RunAuditInput{
		File:   input.File,
		Mode:   input.Mode,
		Policy: pol,
	}).Get(ctx, &auditOut)
	if err != nil {
		return end(ReasonAuditError, fmt.Errorf("audit failed: %w", err))
	}
	state.SessionID = auditOut.SessionID
	state.Summary = &auditOut.Summary
	missing := auditOut.Summary.Missing
	logger.Info("audit complete", "session", auditOut.SessionID,
		"discrepancies", auditOut.Summary.Discrepancies, "missing", missing)

	if auditOut.Summary.Discrepancies == 0 && missing == 0 {
		return end(ReasonNoDiscrepancies, nil)
	}

	// ------------------------------------------------------------------
	// Approval gate: policy decision + optional operator approval
	// ------------------------------------------------------------------
	state.Phase = PhaseApproval
	decision := auditOut.Decision
	state.Decision = &decision
	policyOnly := selection{
		approval:    domain.ApprovalAutoApproved,
		corrections: activities.Selection{Policy: true},
	}

	var sel selection
	if decision.Approval == domain.ApprovalAutoApproved && missing == 0 {
		logger.Info("auto-approved by policy", "records", decision.AutoApproved)
		sel = policyOnly
	} else {
		state.Approval = domain.ApprovalPending
		timeout := HILTimeout
		if input.ApprovalTimeout > 0 {
			timeout = input.ApprovalTimeout
		}
		resp, status, err := waitForApproval(ctx, timeout)
		if err != nil {
			return WorkflowResult{}, fmt.Errorf("approval gate: %w", err)
		}

		switch status {
		case domain.ApprovalDenied:
			state.Approval = status
			state.ApprovedBy = resp.By
			return end(ReasonHumanDenied, nil)
		case domain.ApprovalTimedOut:
			state.Approval = status
			if decision.AutoApproved == 0 {
				return end(ReasonApprovalTimedOut, nil)
			}
			logger.Info("approval timed out; applying policy-approved records", "records", decision.AutoApproved)
			sel = policyOnly
		default:
			sel = operatorSelection(decision, resp)
		}
	}
	if state.Approval != domain.ApprovalTimedOut {
		state.Approval = sel.approval
	}
	state.ApprovedBy = sel.by

	// ------------------------------------------------------------------
	// Corrections (no retries for safety)
	// ------------------------------------------------------------------
	var corrected activities.ApplyCorrectionsOutput
	if !sel.corrections.Empty() {
		state.Phase = PhaseCorrect
		err = workflow.ExecuteActivity(writeCtx, "ApplyCorrections", activities.ApplyCorrectionsInput{
			SessionID: auditOut.SessionID,
			Approval:  sel.approval,
			Policy:    pol,
			Selection: sel.corrections,
		}).Get(ctx, &corrected)
		if err != nil {
			return end(ReasonDispatchError, fmt.Errorf("corrections failed: %w", err))
		}
		state.Corrections = &corrected
		logger.Info("corrections applied", "attempted", corrected.Attempted, "failed", corrected.Failed)
	}

	// ------------------------------------------------------------------
	// Creation
	// ------------------------------------------------------------------
	if sel.create && missing > 0 {
		state.Phase = PhaseCreate
		var created activities.CreateProductsOutput
		err = workflow.ExecuteActivity(writeCtx, "CreateProducts", activities.CreateProductsInput{
			SessionID: auditOut.SessionID,
			Approval:  sel.approval,
			Keys:      sel.createKeys,
		}).Get(ctx, &created)
		if err != nil {
			return end(ReasonCreationError, fmt.Errorf("creation failed: %w", err))
		}
		state.Creation = &created
		logger.Info("products created", "created", created.CreatedCount, "failed", created.Failed)
	}

	// ------------------------------------------------------------------
	// Verifier: re-read what was reported as applied
	// ------------------------------------------------------------------
	if corrected.Succeeded > 0 {
		state.Phase = PhaseVerify
		var verifyOut activities.VerifyCorrectionsOutput
		err = workflow.ExecuteActivity(readCtx, "VerifyCorrections", activities.VerifyCorrectionsInput{
			SessionID: auditOut.SessionID,
		}).Get(ctx, &verifyOut)
		if err != nil {
			return end(ReasonVerifyError, fmt.Errorf("verification failed: %w", err))
		}
		state.Verification = &verifyOut
		logger.Info("verification complete", "recommendation", verifyOut.Recommendation)
	}

	state.Phase = PhaseCompleted
	return end(ReasonCompleted, nil)
}

// operatorSelection merges the policy-approved records into the operator's choice.
func operatorSelection(decision activities.PolicyOutcome, resp activities.ApprovalResponse) selection {
	sel := selection{
		approval: domain.ApprovalApproved,
		by:       resp.By,
		corrections: activities.Selection{
			Policy:    decision.AutoApproved > 0,
			RecordIDs: resp.RecordIDs,
			FixAll:    resp.FixAll,
		},
		create:     resp.CreateAll || len(resp.CreateKeys) > 0,
		createKeys: resp.CreateKeys,
	}
	if resp.CreateAll {
		sel.createKeys = nil
	}
	return sel
}

// waitForApproval registers a Temporal Update handler and waits for either an
// operator decision or the timeout, whichever comes first.
// Record ids are checked for shape here; the activities resolve them against
// the stored session and report the ones it does not hold.
func waitForApproval(ctx workflow.Context, timeout time.Duration) (activities.ApprovalResponse, domain.ApprovalStatus, error) {
	logger := workflow.GetLogger(ctx)

	var (
		resp      activities.ApprovalResponse
		result    domain.ApprovalStatus
		responded bool
	)

	err := workflow.SetUpdateHandlerWithOptions(
		ctx,
		UpdateNameApproval,
		func(ctx workflow.Context, r activities.ApprovalResponse) (string, error) {
			if responded {
				return "", fmt.Errorf("approval already received")
			}
			responded = true
			resp = r
			if r.Approved {
				result = domain.ApprovalApproved
				logger.Info("operator approved", "by", r.By, "records", len(r.RecordIDs), "fix_all", r.FixAll)
			} else {
				result = domain.ApprovalDenied
				logger.Info("operator denied", "by", r.By, "reason", r.Reason)
			}
			return string(result), nil
		},
		workflow.UpdateHandlerOptions{
			Validator: func(r activities.ApprovalResponse) error {
				if r.By == "" {
					return fmt.Errorf("approval 'by' field is required")
				}
				if responded {
					return fmt.Errorf("approval already received")
				}
				for _, id := range r.RecordIDs {
					if err := checkRecordID(id); err != nil {
						return err
					}
				}
				for _, k := range r.CreateKeys {
					if strings.TrimSpace(k) == "" {
						return fmt.Errorf("empty missing product key")
					}
				}
				return nil
			},
		},
	)
	if err != nil {
		return resp, "", fmt.Errorf("register approval handler: %w", err)
	}

	ok, err := workflow.AwaitWithTimeout(ctx, timeout, func() bool { return responded })
	if err != nil {
		return resp, "", fmt.Errorf("await approval: %w", err)
	}
	if !ok {
		logger.Info("approval timed out", "timeout", timeout)
		return resp, domain.ApprovalTimedOut, nil
	}
	return resp, result, nil
}

// checkRecordID accepts ids of the form "{key}/{kind}" with an optional "#n".
func checkRecordID(id string) error {
	i := strings.LastIndex(id, "/")
	if i <= 0 {
		return fmt.Errorf("malformed record id %q", id)
	}
	kind, _, _ := strings.Cut(id[i+1:], "#")
	if !domain.DiscrepancyKind(kind).Valid() {
		return fmt.Errorf("unknown discrepancy kind in record id %q", id)
	}
	return nil
}
