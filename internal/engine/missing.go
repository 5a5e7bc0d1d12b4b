package engine

import (
	"strings"

	"github.com/syncshop/catalog-audit/internal/domain"
)

// MissingProducts turns source-only rows into creation candidates. Columns
// are carried verbatim except two fallbacks: a blank type takes product_type
// then category, and a blank title becomes "Product {sku}".
func MissingProducts(rows []domain.JoinedRow) []domain.CreationCandidate {
	out := make([]domain.CreationCandidate, 0, len(rows))
	for _, j := range rows {
		if j.State() != domain.StateMissingDownstream {
			continue
		}
		src := *j.Source
		fields := make(map[string]string, len(src.Fields))
		for k, v := range src.Fields {
			fields[k] = v
		}
		if blank(fields["type"]) {
			if !blank(fields["product_type"]) {
				fields["type"] = fields["product_type"]
			} else {
				fields["type"] = fields["category"]
			}
		}
		if blank(fields["title"]) {
			fields["title"] = "Product " + src.SKU
		}
		src.Fields = fields
		out = append(out, domain.CreationCandidate{Row: src})
	}
	return out
}

func blank(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "nan", "null", "none":
		return true
	}
	return false
}
