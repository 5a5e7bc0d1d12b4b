package domain

import "fmt"

// DiscrepancyKind identifies one rule finding. Values are the report's "field" column.
type DiscrepancyKind string

const (
	KindPrice                  DiscrepancyKind = "price"
	KindCompareAtPrice         DiscrepancyKind = "compare_at_price"
	KindStickySale             DiscrepancyKind = "sticky_sale"
	KindIncorrectTemplate      DiscrepancyKind = "incorrect_template_suffix"
	KindMissingOversizeTag     DiscrepancyKind = "missing_oversize_tag"
	KindClearancePriceMismatch DiscrepancyKind = "clearance_price_mismatch"
	KindMissingClearanceTag    DiscrepancyKind = "missing_clearance_tag"
	KindH1InDescription        DiscrepancyKind = "h1_in_description"
	KindStaleClearanceTag      DiscrepancyKind = "stale_clearance_tag"
)

// AllKinds lists every discrepancy kind in report order.
func AllKinds() []DiscrepancyKind {
	return []DiscrepancyKind{
		KindPrice, KindCompareAtPrice, KindStickySale, KindIncorrectTemplate,
		KindMissingOversizeTag, KindClearancePriceMismatch, KindMissingClearanceTag,
		KindH1InDescription, KindStaleClearanceTag,
	}
}

func (k DiscrepancyKind) Valid() bool {
	_, ok := kindClass[k]
	return ok
}

// CorrectionClass decides how a corrected record reaches the platform.
type CorrectionClass string

const (
	// ClassPrice corrections are grouped per product into one bulk variant update.
	ClassPrice CorrectionClass = "price"
	// ClassAttribute corrections are chunked into aliased multi-operation requests.
	ClassAttribute CorrectionClass = "attribute"
	// ClassManual corrections are never sent.
	ClassManual CorrectionClass = "manual"
)

var kindClass = map[DiscrepancyKind]CorrectionClass{
	KindPrice:                  ClassPrice,
	KindCompareAtPrice:         ClassPrice,
	KindStickySale:             ClassPrice,
	KindIncorrectTemplate:      ClassAttribute,
	KindMissingOversizeTag:     ClassAttribute,
	KindClearancePriceMismatch: ClassAttribute,
	KindMissingClearanceTag:    ClassAttribute,
	KindH1InDescription:        ClassAttribute,
	KindStaleClearanceTag:      ClassManual,
}

// Class returns the correction class, or an error for unknown kinds.
func (k DiscrepancyKind) Class() (CorrectionClass, error) {
	c, ok := kindClass[k]
	if !ok {
		return "", fmt.Errorf("unknown discrepancy kind: %q", k)
	}
	return c, nil
}

// Correctable reports whether records of this kind are ever sent to the platform.
func (k DiscrepancyKind) Correctable() bool {
	c, ok := kindClass[k]
	return ok && c != ClassManual
}

// FetchMode selects how the platform snapshot is retrieved.
type FetchMode string

const (
	FetchSync FetchMode = "sync"
	FetchBulk FetchMode = "bulk"
)

func (m FetchMode) Valid() bool {
	switch m {
	case FetchSync, FetchBulk:
		return true
	}
	return false
}

// RowState is the join classification of a JoinedRow.
type RowState string

const (
	StateMatched           RowState = "matched"
	StateMissingDownstream RowState = "missing_downstream"
	StatePlatformOnly      RowState = "platform_only"
)

// FailureKind classifies why a correction or creation did not land.
type FailureKind string

const (
	FailureTransport FailureKind = "transport"
	FailureRemote    FailureKind = "remote"
	FailureManual    FailureKind = "manual"
	FailureInvalid   FailureKind = "invalid"
)

func (f FailureKind) Valid() bool {
	switch f {
	case FailureTransport, FailureRemote, FailureManual, FailureInvalid:
		return true
	}
	return false
}

// ApprovalStatus tracks operator approval of a discrepancy set.
type ApprovalStatus string

const (
	ApprovalPending      ApprovalStatus = "pending"
	ApprovalApproved     ApprovalStatus = "approved"
	ApprovalDenied       ApprovalStatus = "denied"
	ApprovalAutoApproved ApprovalStatus = "auto_approved"
	ApprovalTimedOut     ApprovalStatus = "timed_out"
)

func (a ApprovalStatus) Valid() bool {
	switch a {
	case ApprovalPending, ApprovalApproved, ApprovalDenied, ApprovalAutoApproved, ApprovalTimedOut:
		return true
	}
	return false
}

// Dispatchable reports whether corrections may be sent under this status.
func (a ApprovalStatus) Dispatchable() bool {
	return a == ApprovalApproved || a == ApprovalAutoApproved
}
