// Package creation creates platform products for feed rows that have no
// platform counterpart, one product per handle group.
package creation

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/syncshop/catalog-audit/internal/connectors/shopify"
	"github.com/syncshop/catalog-audit/internal/domain"
	"github.com/syncshop/catalog-audit/internal/normalize"
	"github.com/syncshop/catalog-audit/internal/observability"
)

// DefaultVendor is used when the first row of a group has no vendor.
const DefaultVendor = "SyncShop"

// Executor is the single mutation transport.
type Executor interface {
	Execute(ctx context.Context, query string, vars map[string]any) (*shopify.Response, error)
}

// Progress is called after each group with the 1-based group index.
type Progress func(done, total int)

// GroupResult is the outcome for one product. A failure applies to every
// candidate in the group.
type GroupResult struct {
	GroupKey  string   `json:"group_key"`
	Keys      []string `json:"keys"`
	OK        bool     `json:"ok"`
	ProductID string   `json:"product_id,omitempty"`
	Message   string   `json:"message,omitempty"`
}

// Result is the outcome of one creation run.
type Result struct {
	Groups []GroupResult `json:"groups"`
}

// Created maps candidate key to true for every created row.
func (r Result) Created() map[string]bool {
	out := make(map[string]bool)
	for _, g := range r.Groups {
		if g.OK {
			for _, k := range g.Keys {
				out[k] = true
			}
		}
	}
	return out
}

// Failures maps candidate key to the failure message of its group.
func (r Result) Failures() map[string]string {
	out := make(map[string]string)
	for _, g := range r.Groups {
		if !g.OK {
			for _, k := range g.Keys {
				out[k] = g.Message
			}
		}
	}
	return out
}

// GroupKey is the candidate's handle, or its SKU when the handle is blank.
func GroupKey(c domain.CreationCandidate) string {
	if h := normalize.Text(c.Row.Handle); h != "" {
		return h
	}
	if h := normalize.Text(c.Row.Field("handle")); h != "" {
		return h
	}
	return strings.TrimSpace(c.Row.SKU)
}

// Group collects candidates into aggregates sorted by group key. Rows keep
// their input order within a group.
func Group(cands []domain.CreationCandidate) []domain.NewAggregate {
	idx := make(map[string]int)
	var out []domain.NewAggregate
	for _, c := range cands {
		k := GroupKey(c)
		i, ok := idx[k]
		if !ok {
			i = len(out)
			idx[k] = i
			out = append(out, domain.NewAggregate{GroupKey: k})
		}
		out[i].Candidates = append(out[i].Candidates, c)
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].GroupKey < out[b].GroupKey })
	return out
}

const createMutation = `mutation productCreate($input: ProductInput!, $media: [CreateMediaInput!]) {
  productCreate(input: $input, media: $media) {
    product { id }
    userErrors { field message }
  }
}`

var knownUnits = map[string]bool{"POUNDS": true, "OUNCES": true, "KILOGRAMS": true, "GRAMS": true}

// WeightUnit maps a free-form unit to the platform vocabulary.
func WeightUnit(raw string) string {
	u := strings.ToUpper(strings.TrimSpace(raw))
	if knownUnits[u] {
		return u
	}
	l := strings.ToLower(u)
	switch {
	case strings.Contains(l, "lb"):
		return "POUNDS"
	case strings.Contains(l, "kg"):
		return "KILOGRAMS"
	case strings.Contains(l, "g"):
		return "GRAMS"
	}
	return "POUNDS"
}

func variantInput(row domain.SourceRow) map[string]any {
	v := map[string]any{
		"sku":   row.SKU,
		"price": "0.00",
	}
	if row.Price.Valid {
		v["price"] = normalize.FormatPrice(row.Price)
	}
	if row.CompareAt.Valid {
		v["compareAtPrice"] = normalize.FormatPrice(row.CompareAt)
	}
	if b := normalize.Text(row.Field("barcode")); b != "" {
		v["barcode"] = b
	}
	weight := normalize.Text(row.Field("grams"))
	if weight == "" {
		weight = normalize.Text(row.Field("weight"))
	}
	if weight != "" {
		if w, err := strconv.ParseFloat(weight, 64); err == nil {
			v["weight"] = w
			v["weightUnit"] = WeightUnit(row.Field("weightUnit"))
		}
	}
	var opts []string
	for i := 1; i <= 3; i++ {
		if val := normalize.Text(row.Field(fmt.Sprintf("option%d_value", i))); val != "" {
			opts = append(opts, val)
		}
	}
	if len(opts) > 0 {
		v["options"] = opts
	}
	return v
}

// ProductInput builds the create input. Parent attributes come from the
// first candidate; every candidate becomes a variant.
func ProductInput(agg domain.NewAggregate) map[string]any {
	first := agg.Candidates[0].Row
	title := normalize.Text(first.Field("title"))
	if title == "" {
		title = agg.GroupKey
	}
	vendor := normalize.Text(first.Field("vendor"))
	if vendor == "" {
		vendor = DefaultVendor
	}

	variants := make([]map[string]any, len(agg.Candidates))
	for i, c := range agg.Candidates {
		variants[i] = variantInput(c.Row)
	}
	in := map[string]any{
		"title":    title,
		"vendor":   vendor,
		"status":   "ACTIVE",
		"tags":     normalize.Text(first.Field("tags")),
		"variants": variants,
	}

	var options []map[string]any
	for i := 1; i <= 3; i++ {
		if name := normalize.Text(first.Field(fmt.Sprintf("option%d_name", i))); name != "" {
			options = append(options, map[string]any{"name": name, "position": len(options) + 1})
		}
	}
	if len(options) > 0 {
		in["productOptions"] = options
	}
	if body := normalize.Text(first.Field("body_html")); body != "" {
		in["descriptionHtml"] = body
	}
	seo := map[string]any{}
	if t := normalize.Text(first.Field("seo_title")); t != "" {
		seo["title"] = t
	}
	if d := normalize.Text(first.Field("seo_description")); d != "" {
		seo["description"] = d
	}
	if len(seo) > 0 {
		in["seo"] = seo
	}
	if s := normalize.Text(first.Field("templateSuffix")); s != "" {
		in["templateSuffix"] = s
	}
	if pt := normalize.Text(first.Field("type")); pt != "" {
		in["productType"] = pt
	}
	return in
}

// Creator issues one product creation per group, sequentially.
type Creator struct {
	exec    Executor
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewCreator creates a Creator. logger and metrics may be nil.
func NewCreator(exec Executor, logger *slog.Logger, metrics *observability.Metrics) *Creator {
	return &Creator{exec: exec, logger: observability.Component(logger, "creation"), metrics: metrics}
}

type createData struct {
	ProductCreate *struct {
		Product *struct {
			ID string `json:"id"`
		} `json:"product"`
		UserErrors []shopify.UserError `json:"userErrors"`
	} `json:"productCreate"`
}

// Create creates one product per group. It does not fail as a whole.
func (c *Creator) Create(ctx context.Context, cands []domain.CreationCandidate, progress Progress) Result {
	groups := Group(cands)
	res := Result{Groups: make([]GroupResult, 0, len(groups))}
	for i, agg := range groups {
		gr := c.createOne(ctx, agg)
		c.metrics.RecordCreation(ctx, gr.OK)
		if !gr.OK {
			c.logger.Warn("product creation failed", "group", agg.GroupKey, "variants", len(agg.Candidates), "error", gr.Message)
		}
		res.Groups = append(res.Groups, gr)
		if progress != nil {
			progress(i+1, len(groups))
		}
	}
	c.logger.Info("creation finished", "groups", len(groups), "candidates", len(cands))
	return res
}

func (c *Creator) createOne(ctx context.Context, agg domain.NewAggregate) GroupResult {
	gr := GroupResult{GroupKey: agg.GroupKey}
	for _, cand := range agg.Candidates {
		gr.Keys = append(gr.Keys, cand.Row.Key)
	}

	resp, err := c.exec.Execute(ctx, createMutation, map[string]any{"input": ProductInput(agg)})
	if err != nil {
		gr.Message = err.Error()
		return gr
	}
	if gerr, ok := resp.Err().(shopify.GraphQLErrors); ok {
		gr.Message = gerr.Messages("; ")
		return gr
	}
	var data createData
	if err := resp.Decode(&data); err != nil {
		gr.Message = err.Error()
		return gr
	}
	if data.ProductCreate == nil {
		gr.Message = "no result for productCreate"
		return gr
	}
	if ue := data.ProductCreate.UserErrors; len(ue) > 0 {
		msgs := make([]string, len(ue))
		for i, u := range ue {
			msgs[i] = u.Message
		}
		gr.Message = strings.Join(msgs, ", ")
		return gr
	}
	gr.OK = true
	if data.ProductCreate.Product != nil {
		gr.ProductID = data.ProductCreate.Product.ID
	}
	return gr
}
