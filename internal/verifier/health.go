// Package verifier confirms that dispatched corrections landed by re-checking
// each record against a fresh platform fetch.
package verifier

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/syncshop/catalog-audit/internal/domain"
	"github.com/syncshop/catalog-audit/internal/engine"
	"github.com/syncshop/catalog-audit/internal/normalize"
)

// Recommendation is the follow-up suggested after verification.
type Recommendation string

const (
	// RecommendClose means every checked record now matches its target.
	RecommendClose Recommendation = "close"
	// RecommendReaudit means at least one record did not land or could not be found.
	RecommendReaudit Recommendation = "reaudit"
)

// Mismatch is a record whose platform value still differs from the target.
type Mismatch struct {
	ID       string                 `json:"id"`
	Kind     domain.DiscrepancyKind `json:"kind"`
	Expected string                 `json:"expected"`
	Actual   string                 `json:"actual"`
}

// Result summarises one verification pass.
type Result struct {
	VerifiedAt     string         `json:"verified_at"`
	Confirmed      []string       `json:"confirmed"`
	Mismatches     []Mismatch     `json:"mismatches,omitempty"`
	NotFound       []string       `json:"not_found,omitempty"`
	Skipped        []string       `json:"skipped,omitempty"`
	Recommendation Recommendation `json:"recommendation"`
}

// Verify checks every record against rows. Records are matched by key first
// and by product id for product-level corrections. Manual records are skipped.
func Verify(records []domain.DiscrepancyRecord, rows []domain.PlatformRow) Result {
	byKey := make(map[string]domain.PlatformRow, len(rows))
	byProduct := make(map[string]domain.PlatformRow, len(rows))
	for _, r := range rows {
		byKey[r.Key] = r
		if _, ok := byProduct[r.ProductID]; !ok {
			byProduct[r.ProductID] = r
		}
	}

	res := Result{VerifiedAt: time.Now().UTC().Format(time.RFC3339)}
	for _, rec := range records {
		class, err := rec.Kind.Class()
		if err != nil || class == domain.ClassManual {
			res.Skipped = append(res.Skipped, rec.ID)
			continue
		}

		row, ok := byKey[rec.Key]
		if !ok && class == domain.ClassAttribute {
			row, ok = byProduct[rec.ProductID]
		}
		if !ok {
			res.NotFound = append(res.NotFound, rec.ID)
			continue
		}

		if m := check(rec, row); m != nil {
			res.Mismatches = append(res.Mismatches, *m)
			continue
		}
		res.Confirmed = append(res.Confirmed, rec.ID)
	}

	res.Recommendation = RecommendClose
	if len(res.Mismatches) > 0 || len(res.NotFound) > 0 {
		res.Recommendation = RecommendReaudit
	}
	return res
}

func check(rec domain.DiscrepancyRecord, row domain.PlatformRow) *Mismatch {
	mismatch := func(expected, actual string) *Mismatch {
		return &Mismatch{ID: rec.ID, Kind: rec.Kind, Expected: expected, Actual: actual}
	}

	switch {
	case rec.Price != nil:
		actual := row.Price
		if rec.Price.Field == domain.PriceFieldCompareAt {
			actual = row.CompareAt
		}
		if !priceLanded(rec.Price.Target, actual) {
			return mismatch(fmt.Sprintf("%s=%s", rec.Price.Field, describe(rec.Price.Target)), describe(actual))
		}

	case rec.Tag != nil:
		for _, t := range rec.Tag.Add {
			if !normalize.HasTag(row.Tags, strings.ToLower(t)) {
				return mismatch("tag "+t+" present", normalize.SortedTags(row.Tags))
			}
		}
		for _, t := range rec.Tag.Remove {
			if normalize.HasTag(row.Tags, strings.ToLower(t)) {
				return mismatch("tag "+t+" absent", normalize.SortedTags(row.Tags))
			}
		}
		if rec.Tag.ClearTemplate && engine.NormalizeTemplate(row.TemplateSuffix) != engine.TemplateDefault {
			return mismatch(engine.DisplayExpected(engine.TemplateDefault), engine.DisplayActual(row.TemplateSuffix))
		}

	case rec.Template != nil:
		want := engine.NormalizeTemplate(rec.Template.Suffix)
		if engine.NormalizeTemplate(row.TemplateSuffix) != want {
			return mismatch(engine.DisplayExpected(want), engine.DisplayActual(row.TemplateSuffix))
		}

	case rec.Description != nil:
		if engine.HasHeading(row.DescriptionHTML) {
			return mismatch("no level-1 heading", "level-1 heading present")
		}

	default:
		return mismatch("a correction payload", "none")
	}
	return nil
}

// priceLanded treats a zero actual as cleared when the target is absent.
func priceLanded(target, actual decimal.NullDecimal) bool {
	if !target.Valid {
		return !actual.Valid || actual.Decimal.IsZero()
	}
	return actual.Valid && actual.Decimal.Equal(target.Decimal)
}

func describe(v decimal.NullDecimal) string {
	if !v.Valid {
		return "cleared"
	}
	return normalize.FormatPrice(v)
}
