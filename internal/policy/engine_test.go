package policy

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/syncshop/catalog-audit/internal/domain"
)

func nd(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

func priceRecord(id, current, target string) domain.DiscrepancyRecord {
	return domain.DiscrepancyRecord{
		ID:           id,
		Kind:         domain.KindPrice,
		ShopifyPrice: nd(current),
		Price:        &domain.PricePayload{Field: domain.PriceFieldPrice, Target: nd(target)},
	}
}

func record(id string, kind domain.DiscrepancyKind) domain.DiscrepancyRecord {
	return domain.DiscrepancyRecord{ID: id, Kind: kind}
}

func TestDecide(t *testing.T) {
	t.Parallel()
	engine := NewEngine([]domain.DiscrepancyKind{
		domain.KindIncorrectTemplate, domain.KindPrice, domain.KindStaleClearanceTag,
	}, 10)

	tests := []struct {
		name    string
		records []domain.DiscrepancyRecord
		want    domain.ApprovalStatus
		auto    int
		details string
	}{
		{
			name:    "empty set denied",
			want:    domain.ApprovalDenied,
			details: "no discrepancies",
		},
		{
			name:    "template only auto-approved",
			records: []domain.DiscrepancyRecord{record("a", domain.KindIncorrectTemplate)},
			want:    domain.ApprovalAutoApproved,
			auto:    1,
		},
		{
			name:    "price within ceiling auto-approved",
			records: []domain.DiscrepancyRecord{priceRecord("a", "20.00", "18.00")},
			want:    domain.ApprovalAutoApproved,
			auto:    1,
		},
		{
			name:    "price beyond ceiling pending",
			records: []domain.DiscrepancyRecord{priceRecord("a", "20.00", "12.00")},
			want:    domain.ApprovalPending,
		},
		{
			name:    "kind outside set pending",
			records: []domain.DiscrepancyRecord{record("a", domain.KindH1InDescription)},
			want:    domain.ApprovalPending,
		},
		{
			name:    "manual kind never auto-approved",
			records: []domain.DiscrepancyRecord{record("a", domain.KindStaleClearanceTag)},
			want:    domain.ApprovalPending,
		},
		{
			name: "mixed set pending with partial auto list",
			records: []domain.DiscrepancyRecord{
				record("a", domain.KindIncorrectTemplate),
				record("b", domain.KindH1InDescription),
			},
			want: domain.ApprovalPending,
			auto: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d := engine.Decide(tt.records)
			if d.Approval != tt.want {
				t.Errorf("Decide() approval = %q, want %q", d.Approval, tt.want)
			}
			if len(d.AutoApproved) != tt.auto {
				t.Errorf("Decide() auto-approved = %v, want %d ids", d.AutoApproved, tt.auto)
			}
			if tt.details != "" && d.Details != tt.details {
				t.Errorf("Decide() details = %q, want %q", d.Details, tt.details)
			}
		})
	}
}

func TestZeroEngineApprovesNothing(t *testing.T) {
	t.Parallel()
	var e Engine
	d := e.Decide([]domain.DiscrepancyRecord{record("a", domain.KindIncorrectTemplate)})
	if d.Approval != domain.ApprovalPending || len(d.AutoApproved) != 0 {
		t.Errorf("zero engine decision = %+v", d)
	}
}

func TestZeroCeilingNeverApprovesPrice(t *testing.T) {
	t.Parallel()
	e := NewEngine([]domain.DiscrepancyKind{domain.KindPrice}, 0)
	if e.Allows(priceRecord("a", "20.00", "20.00")) {
		t.Error("price record allowed with zero ceiling")
	}
}

func TestPriceDeltaPct(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		rec    domain.DiscrepancyRecord
		want   string
		wantOK bool
	}{
		{name: "decrease", rec: priceRecord("a", "20.00", "15.00"), want: "25", wantOK: true},
		{name: "increase", rec: priceRecord("a", "10.00", "11.00"), want: "10", wantOK: true},
		{name: "zero current", rec: priceRecord("a", "0", "5"), wantOK: false},
		{
			name: "compare-at uses compare-at side",
			rec: domain.DiscrepancyRecord{
				Kind:             domain.KindCompareAtPrice,
				ShopifyPrice:     nd("1.00"),
				ShopifyCompareAt: nd("40.00"),
				Price:            &domain.PricePayload{Field: domain.PriceFieldCompareAt, Target: nd("30.00")},
			},
			want: "25", wantOK: true,
		},
		{
			name: "clearing target",
			rec: domain.DiscrepancyRecord{
				Kind:             domain.KindStickySale,
				ShopifyCompareAt: nd("40.00"),
				Price:            &domain.PricePayload{Field: domain.PriceFieldCompareAt},
			},
			wantOK: false,
		},
		{name: "no payload", rec: record("a", domain.KindPrice), wantOK: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := PriceDeltaPct(tt.rec)
			if ok != tt.wantOK {
				t.Fatalf("PriceDeltaPct() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("PriceDeltaPct() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestParseKinds(t *testing.T) {
	t.Parallel()
	got, err := ParseKinds(" incorrect_template_suffix, ,h1_in_description")
	if err != nil {
		t.Fatalf("ParseKinds() error: %v", err)
	}
	if len(got) != 2 || got[0] != domain.KindIncorrectTemplate || got[1] != domain.KindH1InDescription {
		t.Errorf("ParseKinds() = %v", got)
	}
	if _, err := ParseKinds("price,bogus"); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestEnforceDispatchSafety(t *testing.T) {
	t.Parallel()
	ok := priceRecord("a", "20.00", "18.00")
	negative := priceRecord("b", "20.00", "-1")

	tests := []struct {
		name     string
		approval domain.ApprovalStatus
		records  []domain.DiscrepancyRecord
		wantErr  bool
	}{
		{name: "approved passes", approval: domain.ApprovalApproved, records: []domain.DiscrepancyRecord{ok}},
		{name: "auto_approved passes", approval: domain.ApprovalAutoApproved, records: []domain.DiscrepancyRecord{ok}},
		{name: "pending blocked", approval: domain.ApprovalPending, records: []domain.DiscrepancyRecord{ok}, wantErr: true},
		{name: "denied blocked", approval: domain.ApprovalDenied, records: []domain.DiscrepancyRecord{ok}, wantErr: true},
		{name: "timed out blocked", approval: domain.ApprovalTimedOut, records: []domain.DiscrepancyRecord{ok}, wantErr: true},
		{name: "negative target blocked", approval: domain.ApprovalApproved, records: []domain.DiscrepancyRecord{negative}, wantErr: true},
		{name: "unknown kind blocked", approval: domain.ApprovalApproved, records: []domain.DiscrepancyRecord{record("c", "bogus")}, wantErr: true},
		{name: "manual record passes gate", approval: domain.ApprovalApproved, records: []domain.DiscrepancyRecord{record("d", domain.KindStaleClearanceTag)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := EnforceDispatchSafety(tt.approval, tt.records)
			if (err != nil) != tt.wantErr {
				t.Errorf("EnforceDispatchSafety() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
