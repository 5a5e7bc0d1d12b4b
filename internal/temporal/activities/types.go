// Package activities defines the Temporal activity I/O structs and the
// Activities implementation that bridges Temporal's serialization boundary
// to the pure-logic packages in internal/.
package activities

import (
	"github.com/syncshop/catalog-audit/internal/domain"
	"github.com/syncshop/catalog-audit/internal/policy"
	"github.com/syncshop/catalog-audit/internal/verifier"
)

// ListFeedFilesOutput is the activity output for feed discovery.
type ListFeedFilesOutput struct {
	Files []string `json:"files"`
}

// PolicyConfig carries the auto-fix policy the activities evaluate
// against the stored session.
type PolicyConfig struct {
	AutoFixKinds     []domain.DiscrepancyKind `json:"auto_fix_kinds,omitempty"`
	MaxPriceDeltaPct float64                  `json:"max_price_delta_pct,omitempty"`
}

func (c PolicyConfig) engine() *policy.Engine {
	return policy.NewEngine(c.AutoFixKinds, c.MaxPriceDeltaPct)
}

// RunAuditInput is the activity input for one audit run.
type RunAuditInput struct {
	File   string           `json:"file"`
	Mode   domain.FetchMode `json:"mode"`
	Policy PolicyConfig     `json:"policy"`
}

// PolicyOutcome is the policy decision reduced to what the workflow
// branches on. Record ids stay in the stored session.
type PolicyOutcome struct {
	Approval     domain.ApprovalStatus `json:"approval"`
	Details      string                `json:"details"`
	AutoApproved int                   `json:"auto_approved"`
}

// RunAuditOutput carries the stored session id, its summary and the policy
// outcome. Records never cross the history boundary; later activities load
// them from the store.
type RunAuditOutput struct {
	SessionID string         `json:"session_id"`
	Summary   domain.Summary `json:"summary"`
	Decision  PolicyOutcome  `json:"decision"`
}

// Selection names the corrections cleared for dispatch. ApplyCorrections
// resolves it against the stored session.
type Selection struct {
	// Policy selects every record the policy allows.
	Policy    bool     `json:"policy,omitempty"`
	RecordIDs []string `json:"record_ids,omitempty"`
	// FixAll selects every correctable record.
	FixAll bool `json:"fix_all,omitempty"`
}

// Empty reports whether the selection names nothing.
func (s Selection) Empty() bool {
	return !s.Policy && !s.FixAll && len(s.RecordIDs) == 0
}

// ApplyCorrectionsInput is the activity input for correction dispatch.
type ApplyCorrectionsInput struct {
	SessionID string                `json:"session_id"`
	Approval  domain.ApprovalStatus `json:"approval"`
	Policy    PolicyConfig          `json:"policy"`
	Selection Selection             `json:"selection"`
}

// maxReported caps the per-record detail an activity returns. The session
// keeps the full picture.
const maxReported = 25

// ApplyCorrectionsOutput is the activity output from correction dispatch.
// Failures holds at most maxReported entries; Failed is the full count.
type ApplyCorrectionsOutput struct {
	Attempted int                       `json:"attempted"`
	Succeeded int                       `json:"succeeded"`
	Failed    int                       `json:"failed"`
	Failures  map[string]domain.Failure `json:"failures,omitempty"`
	Unknown   []string                  `json:"unknown,omitempty"`
	Remaining int                       `json:"remaining"`
}

// CreateProductsInput is the activity input for product creation.
// Empty Keys creates every missing product in the session.
type CreateProductsInput struct {
	SessionID string                `json:"session_id"`
	Approval  domain.ApprovalStatus `json:"approval"`
	Keys      []string              `json:"keys,omitempty"`
}

// CreateProductsOutput is the activity output from product creation.
// Created and Failures hold at most maxReported entries each.
type CreateProductsOutput struct {
	Groups       int               `json:"groups"`
	CreatedCount int               `json:"created_count"`
	Created      []string          `json:"created"`
	Failed       int               `json:"failed"`
	Failures     map[string]string `json:"failures,omitempty"`
	Unknown      []string          `json:"unknown,omitempty"`
	Remaining    int               `json:"remaining"`
}

// CreationProgress is the heartbeat detail CreateProducts records after
// each product group.
type CreationProgress struct {
	Done  int `json:"done"`
	Total int `json:"total"`
}

// VerifyCorrectionsInput names a session whose applied records are re-checked.
// Empty RecordIDs verifies every applied record.
type VerifyCorrectionsInput struct {
	SessionID string   `json:"session_id"`
	RecordIDs []string `json:"record_ids,omitempty"`
}

// VerifyCorrectionsOutput is the activity output from verification.
// Mismatches holds at most maxReported entries.
type VerifyCorrectionsOutput struct {
	VerifiedAt     string                  `json:"verified_at"`
	Checked        int                     `json:"checked"`
	Confirmed      int                     `json:"confirmed"`
	MismatchCount  int                     `json:"mismatch_count"`
	Mismatches     []verifier.Mismatch     `json:"mismatches,omitempty"`
	NotFound       int                     `json:"not_found"`
	Skipped        int                     `json:"skipped"`
	Recommendation verifier.Recommendation `json:"recommendation"`
}

// ApprovalResponse is sent via the Temporal Update handler for operator approval.
// RecordIDs selects corrections; FixAll selects every correctable record.
// Policy-approved records are always included.
// CreateAll or CreateKeys selects missing products to create.
type ApprovalResponse struct {
	Approved   bool     `json:"approved"`
	By         string   `json:"by"`
	Reason     string   `json:"reason,omitempty"`
	RecordIDs  []string `json:"record_ids,omitempty"`
	FixAll     bool     `json:"fix_all,omitempty"`
	CreateAll  bool     `json:"create_all,omitempty"`
	CreateKeys []string `json:"create_keys,omitempty"`
}
