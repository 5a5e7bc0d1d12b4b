package engine

import (
	"regexp"

	"github.com/shopspring/decimal"

	"github.com/syncshop/catalog-audit/internal/domain"
	"github.com/syncshop/catalog-audit/internal/normalize"
)

var (
	h1Open    = regexp.MustCompile(`(?i)<h1\b[^>]*>`)
	h1OpenCap = regexp.MustCompile(`(?i)<h1(\b[^>]*)>`)
	h1Close   = regexp.MustCompile(`(?i)</h1>`)
)

const (
	stickySaleExpected   = "N/A (Should be null or equal to price)"
	oversizeExpected     = "oversize or overweight"
	clearanceRegular     = "Regular Price (No Clearance)"
	clearanceMarked      = "Marked as Clearance"
	clearanceTagExpected = "Clearance"
	headingExpected      = "Uses H2 Tags"
	headingActual        = "Contains H1 Tag"
	noTags               = "None"
)

// Pair is the input to every rule check: one matched row plus the run context.
type Pair struct {
	Source        domain.SourceRow
	Platform      domain.PlatformRow
	ClearanceFeed bool
	// GroupDiscount is true when any sibling in the source handle group is discounted.
	GroupDiscount bool
}

func (p Pair) record(kind domain.DiscrepancyKind, csvValue, shopifyValue string) domain.DiscrepancyRecord {
	return domain.NewDiscrepancy(kind, p.Source, p.Platform, p.ClearanceFeed, csvValue, shopifyValue)
}

// Check evaluates one rule and returns at most one record.
type Check func(Pair) *domain.DiscrepancyRecord

// Checks is the ordered rule set. Every check is evaluated for every pair.
var Checks = []Check{
	CheckPrice,
	CheckPromotionalPrice,
	CheckTemplate,
	CheckOversizeTag,
	CheckClearanceTag,
	CheckHeading,
}

// Evaluate runs every check against a matched pair.
func Evaluate(p Pair) []domain.DiscrepancyRecord {
	var out []domain.DiscrepancyRecord
	for _, check := range Checks {
		if r := check(p); r != nil {
			out = append(out, *r)
		}
	}
	return out
}

func differ(a, b decimal.NullDecimal) bool {
	return a.Valid && b.Valid && !a.Decimal.Equal(b.Decimal)
}

// CheckPrice flags a feed price that differs from the platform price.
func CheckPrice(p Pair) *domain.DiscrepancyRecord {
	if !differ(p.Source.Price, p.Platform.Price) {
		return nil
	}
	r := p.record(domain.KindPrice, normalize.FormatPrice(p.Source.Price), normalize.FormatPrice(p.Platform.Price))
	r.Price = &domain.PricePayload{Field: domain.PriceFieldPrice, Target: p.Source.Price}
	return &r
}

// CheckPromotionalPrice compares list prices on clearance feeds and flags
// leftover platform list prices on every other feed.
func CheckPromotionalPrice(p Pair) *domain.DiscrepancyRecord {
	if p.ClearanceFeed {
		if !differ(p.Source.CompareAt, p.Platform.CompareAt) {
			return nil
		}
		r := p.record(domain.KindCompareAtPrice, normalize.FormatPrice(p.Source.CompareAt), normalize.FormatPrice(p.Platform.CompareAt))
		r.Price = &domain.PricePayload{Field: domain.PriceFieldCompareAt, Target: p.Source.CompareAt}
		return &r
	}
	ca := p.Platform.CompareAt
	if !ca.Valid {
		return nil
	}
	if p.Platform.Price.Valid && ca.Decimal.Equal(p.Platform.Price.Decimal) {
		return nil
	}
	r := p.record(domain.KindStickySale, stickySaleExpected, normalize.FormatPrice(ca))
	r.Price = &domain.PricePayload{Field: domain.PriceFieldCompareAt}
	return &r
}

// CheckTemplate flags a platform template that differs from the expected one.
func CheckTemplate(p Pair) *domain.DiscrepancyRecord {
	expected := ExpectedTemplate(p.Source, p.Platform, p.ClearanceFeed)
	if NormalizeTemplate(p.Platform.TemplateSuffix) == expected {
		return nil
	}
	r := p.record(domain.KindIncorrectTemplate, DisplayExpected(expected), DisplayActual(p.Platform.TemplateSuffix))
	r.Template = &domain.TemplatePayload{Suffix: expected}
	return &r
}

// CheckOversizeTag flags oversize rows whose platform tags carry neither
// oversize nor overweight.
func CheckOversizeTag(p Pair) *domain.DiscrepancyRecord {
	if !IsOversize(p.Source, p.Platform) || normalize.HasTag(p.Platform.Tags, TagOversize, TagOverweight) {
		return nil
	}
	r := p.record(domain.KindMissingOversizeTag, oversizeExpected, normalize.SortedTags(p.Platform.Tags))
	r.Tag = &domain.TagPayload{Add: []string{TagOversize}}
	return &r
}

// CheckClearanceTag applies the clearance-feed tag consistency rules.
// A row at list price with no discounted sibling must not look like
// clearance on the platform; a discounted row must carry the clearance tag.
func CheckClearanceTag(p Pair) *domain.DiscrepancyRecord {
	if !p.ClearanceFeed {
		return nil
	}
	src := p.Source
	atListPrice := src.CompareAt.Valid && src.Price.Valid && src.Price.Decimal.Equal(src.CompareAt.Decimal)
	if atListPrice {
		if p.GroupDiscount {
			return nil
		}
		tagged := normalize.HasTag(p.Platform.Tags, TagClearance)
		if !tagged && NormalizeTemplate(p.Platform.TemplateSuffix) != TemplateClearance {
			return nil
		}
		r := p.record(domain.KindClearancePriceMismatch, clearanceRegular, clearanceMarked)
		r.Tag = &domain.TagPayload{Remove: []string{TagClearance}, ClearTemplate: true}
		return &r
	}
	if !HasRealDiscount(src, p.Platform) || normalize.HasTag(p.Platform.Tags, TagClearance) {
		return nil
	}
	actual := p.Platform.RawTags
	if actual == "" {
		actual = noTags
	}
	r := p.record(domain.KindMissingClearanceTag, clearanceTagExpected, actual)
	r.Tag = &domain.TagPayload{Add: []string{TagClearance}}
	return &r
}

// CheckHeading flags level-1 headings in the platform description and
// carries the description with every h1 rewritten to h2.
func CheckHeading(p Pair) *domain.DiscrepancyRecord {
	html := p.Platform.DescriptionHTML
	if !HasHeading(html) {
		return nil
	}
	r := p.record(domain.KindH1InDescription, headingExpected, headingActual)
	r.Description = &domain.DescriptionPayload{HTML: DemoteHeadings(html)}
	return &r
}

// DemoteHeadings rewrites <h1 ...> and </h1> to h2, keeping attributes and content.
func DemoteHeadings(html string) string {
	out := h1OpenCap.ReplaceAllString(html, "<h2$1>")
	return h1Close.ReplaceAllString(out, "</h2>")
}

// HasHeading reports whether html contains a level-1 heading.
func HasHeading(html string) bool {
	return h1Open.MatchString(html)
}
