package normalize

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/syncshop/catalog-audit/internal/domain"
	"github.com/syncshop/catalog-audit/internal/feed"
)

// SourceRows converts a parsed feed into typed rows. Rows without a SKU are
// skipped; every neutralized value is reported as a warning.
func SourceRows(t feed.Table) ([]domain.SourceRow, []domain.Warning) {
	var rows []domain.SourceRow
	var warns []domain.Warning
	for _, pw := range t.Warnings {
		warns = append(warns, domain.Warning{Source: "feed", Line: pw.Line, Message: pw.Message})
	}

	for _, rec := range t.Records {
		sku := Text(rec.Get("sku"))
		if sku == "" {
			warns = append(warns, domain.Warning{Source: "feed", Line: rec.Line, Message: "row has no sku; skipped"})
			continue
		}
		price := sourcePrice(rec, "price", &warns)
		compareAt := sourcePrice(rec, "compareAtPrice", &warns)

		var inv *int
		if raw := rec.Get("inventory"); raw != "" {
			q, ok := Quantity(raw)
			if !ok {
				warns = append(warns, domain.Warning{Source: "feed", Line: rec.Line, Field: "inventory", Value: raw, Message: "not a number; treated as absent"})
			}
			inv = q
		}

		fields := make(map[string]string, len(t.Columns))
		for _, c := range t.Columns {
			fields[c] = rec.Get(c)
		}
		rows = append(rows, domain.SourceRow{
			Line:      rec.Line,
			SKU:       sku,
			Key:       Key(sku),
			Handle:    Text(rec.Get("handle")),
			Price:     price,
			CompareAt: compareAt,
			Tags:      Tags(rec.Get("tags")),
			RawTags:   Text(rec.Get("tags")),
			Template:  Text(rec.Get("templateSuffix")),
			Inventory: inv,
			Fields:    fields,
		})
	}
	return rows, warns
}

func sourcePrice(rec feed.Record, col string, warns *[]domain.Warning) decimal.NullDecimal {
	raw := rec.Get(col)
	v, ok := Price(raw)
	if !ok {
		*warns = append(*warns, domain.Warning{
			Source:  "feed",
			Line:    rec.Line,
			Field:   col,
			Value:   raw,
			Message: "not a number; treated as absent",
		})
	}
	return v
}

// PlatformPrice parses a platform-reported price, recording a warning
// against the variant key when it is malformed.
func PlatformPrice(key, field, raw string, warns *[]domain.Warning) decimal.NullDecimal {
	v, ok := Price(raw)
	if !ok {
		*warns = append(*warns, domain.Warning{
			Source:  "platform",
			Key:     key,
			Field:   field,
			Value:   raw,
			Message: fmt.Sprintf("unparseable %s; treated as absent", field),
		})
	}
	return v
}
