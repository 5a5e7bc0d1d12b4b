package engine

import (
	"github.com/shopspring/decimal"

	"github.com/syncshop/catalog-audit/internal/domain"
	"github.com/syncshop/catalog-audit/internal/normalize"
)

func dec(s string) decimal.NullDecimal {
	if s == "" {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

func srcRow(sku, price, compareAt, tags string) domain.SourceRow {
	return domain.SourceRow{
		SKU:       sku,
		Key:       normalize.Key(sku),
		Price:     dec(price),
		CompareAt: dec(compareAt),
		Tags:      normalize.Tags(tags),
		RawTags:   tags,
		Fields:    map[string]string{"sku": sku, "tags": tags},
	}
}

func platRow(sku, price, compareAt, tags, template string) domain.PlatformRow {
	return domain.PlatformRow{
		SKU:            sku,
		Key:            normalize.Key(sku),
		VariantID:      "gid://shopify/ProductVariant/" + sku,
		ProductID:      "gid://shopify/Product/" + sku,
		Handle:         "handle-" + sku,
		Price:          dec(price),
		CompareAt:      dec(compareAt),
		Tags:           normalize.Tags(tags),
		RawTags:        tags,
		TemplateSuffix: template,
	}
}

func qty(n int) *int { return &n }

func kinds(records []domain.DiscrepancyRecord) []domain.DiscrepancyKind {
	out := make([]domain.DiscrepancyKind, 0, len(records))
	for _, r := range records {
		out = append(out, r.Kind)
	}
	return out
}
