package engine

import (
	"strings"

	"github.com/syncshop/catalog-audit/internal/domain"
	"github.com/syncshop/catalog-audit/internal/normalize"
)

const (
	TemplateDefault   = ""
	TemplateClearance = "clearance"
	TemplateHeavy     = "heavy-products"

	defaultTemplateLabel = "Default Template"

	TagOversize   = "oversize"
	TagOverweight = "overweight"
	TagClearance  = "clearance"
)

// NormalizeTemplate lowercases a template suffix and maps every spelling of
// the default template to "".
func NormalizeTemplate(raw string) string {
	t := strings.ToLower(strings.TrimSpace(raw))
	switch t {
	case "", "none", "nan", "null", "default", "default template":
		return TemplateDefault
	}
	return t
}

// DisplayExpected renders an expected template for reports.
func DisplayExpected(t string) string {
	if t == TemplateDefault {
		return defaultTemplateLabel
	}
	return t
}

// DisplayActual renders the platform template as recorded, labelling blank or
// null spellings as the default template.
func DisplayActual(raw string) string {
	s := strings.TrimSpace(raw)
	switch strings.ToLower(s) {
	case "", "none", "nan", "null":
		return defaultTemplateLabel
	}
	return s
}

// IsOversize reports whether either side tags the row oversize or overweight.
func IsOversize(src domain.SourceRow, p domain.PlatformRow) bool {
	return normalize.HasTag(p.Tags, TagOversize, TagOverweight) ||
		normalize.HasTag(src.Tags, TagOversize, TagOverweight)
}

// HasRealDiscount compares list price against price, using the feed's pair
// when both are present and the platform's pair otherwise.
func HasRealDiscount(src domain.SourceRow, p domain.PlatformRow) bool {
	if src.CompareAt.Valid && src.Price.Valid {
		return src.CompareAt.Decimal.GreaterThan(src.Price.Decimal)
	}
	if p.CompareAt.Valid && p.Price.Valid {
		return p.CompareAt.Decimal.GreaterThan(p.Price.Decimal)
	}
	return false
}

// ExpectedTemplate picks the template by priority:
// oversize, then platform clearance tag with a real discount, then a
// discounted non-oversize row in a clearance feed, then default.
func ExpectedTemplate(src domain.SourceRow, p domain.PlatformRow, clearanceFeed bool) string {
	oversize := IsOversize(src, p)
	discount := HasRealDiscount(src, p)
	switch {
	case oversize:
		return TemplateHeavy
	case normalize.HasTag(p.Tags, TagClearance) && discount:
		return TemplateClearance
	case clearanceFeed && discount:
		return TemplateClearance
	}
	return TemplateDefault
}
