// Package dispatch turns approved discrepancy records into remote
// corrections and maps every remote failure back to the record it came from.
package dispatch

import (
	"fmt"
	"strings"

	"github.com/syncshop/catalog-audit/internal/domain"
	"github.com/syncshop/catalog-audit/internal/normalize"
)

// DefaultChunkSize bounds how many attribute corrections share one request.
const DefaultChunkSize = 50

// ManualReviewMessage is the failure text for records that are never sent.
const ManualReviewMessage = "Manual review required"

// PriceGroup is every price-class record targeting one product, in
// submission order. Position i of Records is position i of the variants list.
type PriceGroup struct {
	ProductID string
	Records   []domain.DiscrepancyRecord
}

// subOp is one aliased operation of a composite attribute request.
type subOp struct {
	alias string
	decls []string
	body  string
	vars  map[string]any
}

// attributeOp is one record and the sub-operations that correct it.
type attributeOp struct {
	record domain.DiscrepancyRecord
	ops    []subOp
}

// Plan partitions records by correction class.
type Plan struct {
	Price     []PriceGroup
	Attribute [][]attributeOp
	Manual    []domain.DiscrepancyRecord
	Invalid   map[string]domain.Failure
	Order     []string
}

type priceInput func(r domain.DiscrepancyRecord) map[string]any

type attributeBuilder func(i int, r domain.DiscrepancyRecord) []subOp

// priceInputs and attributeBuilders together cover every non-manual kind.
var priceInputs = map[domain.DiscrepancyKind]priceInput{
	domain.KindPrice:          setPriceField,
	domain.KindCompareAtPrice: setPriceField,
	domain.KindStickySale:     setPriceField,
}

var attributeBuilders = map[domain.DiscrepancyKind]attributeBuilder{
	domain.KindMissingOversizeTag:     addTags,
	domain.KindMissingClearanceTag:    addTags,
	domain.KindClearancePriceMismatch: removeTagsClearTemplate,
	domain.KindIncorrectTemplate:      setTemplate,
	domain.KindH1InDescription:        setDescription,
}

// NewPlan validates and partitions records. Records that fail validation
// are not sent and come back as invalid failures.
func NewPlan(records []domain.DiscrepancyRecord, chunkSize int) Plan {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	p := Plan{Invalid: make(map[string]domain.Failure)}
	groupIdx := make(map[string]int)
	var attrs []domain.DiscrepancyRecord

	for _, r := range records {
		p.Order = append(p.Order, r.ID)
		if err := domain.ValidateDiscrepancy(r); err != nil {
			p.Invalid[r.ID] = domain.Failure{Kind: domain.FailureInvalid, Message: err.Error()}
			continue
		}
		class, _ := r.Kind.Class()
		switch class {
		case domain.ClassPrice:
			i, ok := groupIdx[r.ProductID]
			if !ok {
				i = len(p.Price)
				groupIdx[r.ProductID] = i
				p.Price = append(p.Price, PriceGroup{ProductID: r.ProductID})
			}
			p.Price[i].Records = append(p.Price[i].Records, r)
		case domain.ClassAttribute:
			attrs = append(attrs, r)
		case domain.ClassManual:
			p.Manual = append(p.Manual, r)
		}
	}

	for start := 0; start < len(attrs); start += chunkSize {
		end := min(start+chunkSize, len(attrs))
		chunk := make([]attributeOp, 0, end-start)
		for i, r := range attrs[start:end] {
			chunk = append(chunk, attributeOp{record: r, ops: attributeBuilders[r.Kind](i, r)})
		}
		p.Attribute = append(p.Attribute, chunk)
	}
	return p
}

const priceMutation = `mutation UpdateVariantPrices($productId: ID!, $variants: [ProductVariantsBulkInput!]!) {
  productVariantsBulkUpdate(productId: $productId, variants: $variants) {
    userErrors { field message }
  }
}`

// variables builds the bulk variant update input for the group.
func (g PriceGroup) variables() map[string]any {
	variants := make([]map[string]any, len(g.Records))
	for i, r := range g.Records {
		variants[i] = priceInputs[r.Kind](r)
	}
	return map[string]any{"productId": g.ProductID, "variants": variants}
}

func setPriceField(r domain.DiscrepancyRecord) map[string]any {
	in := map[string]any{"id": r.VariantID}
	if r.Price.Target.Valid {
		in[r.Price.Field] = normalize.FormatPrice(r.Price.Target)
	} else {
		in[r.Price.Field] = nil
	}
	return in
}

const userErrorsSelection = "{ userErrors { field message } }"

func alias(i int, part string) string {
	if part == "" {
		return fmt.Sprintf("mut_%d", i)
	}
	return fmt.Sprintf("mut_%d_%s", i, part)
}

func addTags(i int, r domain.DiscrepancyRecord) []subOp {
	a := alias(i, "")
	return []subOp{{
		alias: a,
		decls: []string{fmt.Sprintf("$%s_id: ID!", a), fmt.Sprintf("$%s_tags: [String!]!", a)},
		body:  fmt.Sprintf("%s: tagsAdd(id: $%s_id, tags: $%s_tags) %s", a, a, a, userErrorsSelection),
		vars:  map[string]any{a + "_id": r.ProductID, a + "_tags": r.Tag.Add},
	}}
}

func removeTagsClearTemplate(i int, r domain.DiscrepancyRecord) []subOp {
	tag := alias(i, "tag")
	ops := []subOp{{
		alias: tag,
		decls: []string{fmt.Sprintf("$%s_id: ID!", tag), fmt.Sprintf("$%s_tags: [String!]!", tag)},
		body:  fmt.Sprintf("%s: tagsRemove(id: $%s_id, tags: $%s_tags) %s", tag, tag, tag, userErrorsSelection),
		vars:  map[string]any{tag + "_id": r.ProductID, tag + "_tags": r.Tag.Remove},
	}}
	if r.Tag.ClearTemplate {
		ops = append(ops, productUpdate(alias(i, "suffix"), map[string]any{"id": r.ProductID, "templateSuffix": ""}))
	}
	return ops
}

func setTemplate(i int, r domain.DiscrepancyRecord) []subOp {
	return []subOp{productUpdate(alias(i, ""), map[string]any{"id": r.ProductID, "templateSuffix": r.Template.Suffix})}
}

func setDescription(i int, r domain.DiscrepancyRecord) []subOp {
	return []subOp{productUpdate(alias(i, ""), map[string]any{"id": r.ProductID, "descriptionHtml": r.Description.HTML})}
}

func productUpdate(a string, input map[string]any) subOp {
	return subOp{
		alias: a,
		decls: []string{fmt.Sprintf("$%s_input: ProductInput!", a)},
		body:  fmt.Sprintf("%s: productUpdate(input: $%s_input) %s", a, a, userErrorsSelection),
		vars:  map[string]any{a + "_input": input},
	}
}

// composite renders one chunk as a single aliased mutation and returns the
// alias to record ID mapping.
func composite(chunk []attributeOp) (string, map[string]any, map[string]string) {
	var (
		decls   []string
		bodies  []string
		vars    = make(map[string]any)
		aliases = make(map[string]string)
	)
	for _, op := range chunk {
		for _, s := range op.ops {
			decls = append(decls, s.decls...)
			bodies = append(bodies, "  "+s.body)
			for k, v := range s.vars {
				vars[k] = v
			}
			aliases[s.alias] = op.record.ID
		}
	}
	q := fmt.Sprintf("mutation CatalogCorrections(%s) {\n%s\n}", strings.Join(decls, ", "), strings.Join(bodies, "\n"))
	return q, vars, aliases
}
