// Package policy decides which discrepancies may be corrected without an
// operator and gates every dispatch on an approval status.
package policy

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/syncshop/catalog-audit/internal/domain"
)

// Decision captures the approval outcome and a human-readable explanation.
// AutoApproved lists the record ids the policy approved on its own, in
// session order. It is non-empty only when Approval is auto_approved or pending.
type Decision struct {
	Approval     domain.ApprovalStatus `json:"approval"`
	Details      string                `json:"details"`
	AutoApproved []string              `json:"auto_approved,omitempty"`
}

// Engine approves records whose kind is in AutoFixKinds. Price-class records
// additionally need a relative change of at most MaxPriceDeltaPct percent.
// The zero Engine approves nothing.
type Engine struct {
	AutoFixKinds     map[domain.DiscrepancyKind]bool
	MaxPriceDeltaPct decimal.Decimal
}

// NewEngine builds an engine from a kind list and a percentage ceiling.
func NewEngine(kinds []domain.DiscrepancyKind, maxPriceDeltaPct float64) *Engine {
	e := &Engine{
		AutoFixKinds:     make(map[domain.DiscrepancyKind]bool, len(kinds)),
		MaxPriceDeltaPct: decimal.NewFromFloat(maxPriceDeltaPct),
	}
	for _, k := range kinds {
		e.AutoFixKinds[k] = true
	}
	return e
}

// ParseKinds parses a comma separated kind list, rejecting unknown kinds.
func ParseKinds(s string) ([]domain.DiscrepancyKind, error) {
	var out []domain.DiscrepancyKind
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		k := domain.DiscrepancyKind(part)
		if !k.Valid() {
			return nil, fmt.Errorf("unknown discrepancy kind: %q", part)
		}
		out = append(out, k)
	}
	return out, nil
}

// Allows reports whether a single record may be corrected without an operator.
func (e *Engine) Allows(r domain.DiscrepancyRecord) bool {
	if !e.AutoFixKinds[r.Kind] {
		return false
	}
	class, err := r.Kind.Class()
	if err != nil {
		return false
	}
	switch class {
	case domain.ClassManual:
		return false
	case domain.ClassPrice:
		delta, ok := PriceDeltaPct(r)
		return ok && delta.LessThanOrEqual(e.MaxPriceDeltaPct) && e.MaxPriceDeltaPct.IsPositive()
	}
	return true
}

// PriceDeltaPct returns |target - current| / current * 100 for a price-class
// record. ok is false when either side is absent or the current value is zero.
func PriceDeltaPct(r domain.DiscrepancyRecord) (decimal.Decimal, bool) {
	if r.Price == nil || !r.Price.Target.Valid {
		return decimal.Zero, false
	}
	current := r.ShopifyPrice
	if r.Price.Field == domain.PriceFieldCompareAt {
		current = r.ShopifyCompareAt
	}
	if !current.Valid || current.Decimal.IsZero() {
		return decimal.Zero, false
	}
	diff := r.Price.Target.Decimal.Sub(current.Decimal).Abs()
	return diff.Div(current.Decimal.Abs()).Mul(decimal.NewFromInt(100)), true
}

// Decide evaluates the working discrepancy set.
//
// Rules:
//  1. No records → denied ("no discrepancies").
//  2. Every record allowed → auto-approved.
//  3. Otherwise → pending; allowed records are listed in AutoApproved.
func (e *Engine) Decide(records []domain.DiscrepancyRecord) Decision {
	if len(records) == 0 {
		return Decision{Approval: domain.ApprovalDenied, Details: "no discrepancies"}
	}

	var auto []string
	for _, r := range records {
		if e.Allows(r) {
			auto = append(auto, r.ID)
		}
	}

	if len(auto) == len(records) {
		return Decision{
			Approval:     domain.ApprovalAutoApproved,
			Details:      fmt.Sprintf("auto-approved; %d record(s) within policy", len(auto)),
			AutoApproved: auto,
		}
	}
	return Decision{
		Approval:     domain.ApprovalPending,
		Details:      fmt.Sprintf("requires operator selection; %d of %d record(s) within policy", len(auto), len(records)),
		AutoApproved: auto,
	}
}

// EnforceDispatchSafety is a hard gate invoked before any correction is sent.
// It returns a non-nil error if:
//   - The approval status is not approved or auto_approved.
//   - Any record has an unknown kind.
//   - Any price record targets a negative value.
func EnforceDispatchSafety(approval domain.ApprovalStatus, records []domain.DiscrepancyRecord) error {
	if !approval.Dispatchable() {
		return fmt.Errorf("cannot dispatch: approval status is %s", approval)
	}
	for _, r := range records {
		if !r.Kind.Valid() {
			return fmt.Errorf("refuse to dispatch %s: unknown kind %q", r.ID, r.Kind)
		}
		if r.Price != nil && r.Price.Target.Valid && r.Price.Target.Decimal.IsNegative() {
			return fmt.Errorf("refuse to dispatch %s: negative %s %s", r.ID, r.Price.Field, r.Price.Target.Decimal)
		}
	}
	return nil
}
