package dispatch

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/syncshop/catalog-audit/internal/connectors/shopify"
	"github.com/syncshop/catalog-audit/internal/domain"
	"github.com/syncshop/catalog-audit/internal/observability"
)

// Executor is the single mutation transport.
type Executor interface {
	Execute(ctx context.Context, query string, vars map[string]any) (*shopify.Response, error)
}

// Result reports what was attempted and which records did not land.
// An attempted record absent from Failures succeeded.
type Result struct {
	Attempted []string                  `json:"attempted"`
	Failures  map[string]domain.Failure `json:"failures"`
}

// Messages flattens failures to record ID -> message.
func (r Result) Messages() map[string]string {
	out := make(map[string]string, len(r.Failures))
	for id, f := range r.Failures {
		out[id] = f.Message
	}
	return out
}

// Succeeded lists attempted records without a failure, in attempt order.
func (r Result) Succeeded() []string {
	var out []string
	for _, id := range r.Attempted {
		if _, failed := r.Failures[id]; !failed {
			out = append(out, id)
		}
	}
	return out
}

// Dispatcher sends corrections group by group, sequentially.
type Dispatcher struct {
	exec      Executor
	chunkSize int
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithChunkSize sets the attribute-class chunk size.
func WithChunkSize(n int) Option { return func(d *Dispatcher) { d.chunkSize = n } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(d *Dispatcher) { d.logger = l } }

// WithMetrics records outcomes per class.
func WithMetrics(m *observability.Metrics) Option { return func(d *Dispatcher) { d.metrics = m } }

// New creates a Dispatcher over exec.
func New(exec Executor, opts ...Option) *Dispatcher {
	d := &Dispatcher{exec: exec, chunkSize: DefaultChunkSize}
	for _, o := range opts {
		o(d)
	}
	d.logger = observability.Component(d.logger, "dispatch")
	return d
}

// errorLog accumulates per-record messages. The first failure kind recorded
// for a record is kept.
type errorLog struct {
	kinds map[string]domain.FailureKind
	msgs  map[string]*strings.Builder
}

func newErrorLog() *errorLog {
	return &errorLog{kinds: make(map[string]domain.FailureKind), msgs: make(map[string]*strings.Builder)}
}

func (l *errorLog) add(id string, kind domain.FailureKind, msg string) {
	b, ok := l.msgs[id]
	if !ok {
		b = &strings.Builder{}
		l.msgs[id] = b
		l.kinds[id] = kind
	}
	b.WriteString(msg)
	b.WriteString(" | ")
}

func (l *errorLog) addAll(records []domain.DiscrepancyRecord, kind domain.FailureKind, msg string) {
	for _, r := range records {
		l.add(r.ID, kind, msg)
	}
}

func (l *errorLog) count(records []domain.DiscrepancyRecord) int {
	n := 0
	for _, r := range records {
		if _, ok := l.msgs[r.ID]; ok {
			n++
		}
	}
	return n
}

// Dispatch corrects records and never fails as a whole: transport and
// remote errors are attributed to the records of the affected group.
func (d *Dispatcher) Dispatch(ctx context.Context, records []domain.DiscrepancyRecord) Result {
	plan := NewPlan(records, d.chunkSize)
	log := newErrorLog()

	for _, g := range plan.Price {
		d.dispatchPrice(ctx, g, log)
	}
	for i, chunk := range plan.Attribute {
		d.dispatchChunk(ctx, i, chunk, log)
	}
	for _, r := range plan.Manual {
		log.add(r.ID, domain.FailureManual, ManualReviewMessage)
	}

	res := Result{Attempted: plan.Order, Failures: make(map[string]domain.Failure, len(log.msgs)+len(plan.Invalid))}
	for id, f := range plan.Invalid {
		res.Failures[id] = f
	}
	for id, b := range log.msgs {
		res.Failures[id] = domain.Failure{Kind: log.kinds[id], Message: strings.TrimRight(b.String(), " |")}
	}
	d.logger.Info("dispatch finished",
		"records", len(records),
		"price_groups", len(plan.Price),
		"attribute_chunks", len(plan.Attribute),
		"manual", len(plan.Manual),
		"failures", len(res.Failures),
	)
	return res
}

type bulkUpdateData struct {
	ProductVariantsBulkUpdate *struct {
		UserErrors []shopify.UserError `json:"userErrors"`
	} `json:"productVariantsBulkUpdate"`
}

func (d *Dispatcher) dispatchPrice(ctx context.Context, g PriceGroup, log *errorLog) {
	defer func() {
		failed := log.count(g.Records)
		d.metrics.RecordDispatch(ctx, string(domain.ClassPrice), len(g.Records)-failed, failed)
	}()

	resp, err := d.exec.Execute(ctx, priceMutation, g.variables())
	if err != nil {
		d.logger.Warn("price group transport failure", "product_id", g.ProductID, "error", err)
		log.addAll(g.Records, domain.FailureTransport, err.Error())
		return
	}
	if gerr, ok := resp.Err().(shopify.GraphQLErrors); ok {
		log.addAll(g.Records, domain.FailureRemote, gerr.Messages("; "))
		return
	}
	var data bulkUpdateData
	if err := resp.Decode(&data); err != nil {
		log.addAll(g.Records, domain.FailureRemote, err.Error())
		return
	}
	if data.ProductVariantsBulkUpdate == nil {
		log.addAll(g.Records, domain.FailureRemote, "no result for productVariantsBulkUpdate")
		return
	}
	for _, ue := range data.ProductVariantsBulkUpdate.UserErrors {
		if i, ok := variantPosition(ue, len(g.Records)); ok {
			log.add(g.Records[i].ID, domain.FailureRemote, ue.Message)
			continue
		}
		log.addAll(g.Records, domain.FailureRemote, ue.Message)
	}
}

// variantPosition extracts N from a ["variants", N, ...] field path.
func variantPosition(ue shopify.UserError, n int) (int, bool) {
	path := ue.FieldPath()
	if len(path) < 2 || path[0] != "variants" {
		return 0, false
	}
	i, err := strconv.Atoi(path[1])
	if err != nil || i < 0 || i >= n {
		return 0, false
	}
	return i, true
}

type aliasResult struct {
	UserErrors []shopify.UserError `json:"userErrors"`
}

func (d *Dispatcher) dispatchChunk(ctx context.Context, n int, chunk []attributeOp, log *errorLog) {
	records := make([]domain.DiscrepancyRecord, len(chunk))
	for i, op := range chunk {
		records[i] = op.record
	}
	defer func() {
		failed := log.count(records)
		d.metrics.RecordDispatch(ctx, string(domain.ClassAttribute), len(records)-failed, failed)
	}()

	query, vars, aliases := composite(chunk)
	resp, err := d.exec.Execute(ctx, query, vars)
	if err != nil {
		d.logger.Warn("attribute chunk transport failure", "chunk", n, "records", len(records), "error", err)
		log.addAll(records, domain.FailureTransport, err.Error())
		return
	}
	if gerr, ok := resp.Err().(shopify.GraphQLErrors); ok {
		log.addAll(records, domain.FailureRemote, gerr.Messages("; "))
		return
	}
	var data map[string]*aliasResult
	if err := resp.Decode(&data); err != nil {
		log.addAll(records, domain.FailureRemote, err.Error())
		return
	}
	for _, op := range chunk {
		for _, s := range op.ops {
			id := aliases[s.alias]
			res, ok := data[s.alias]
			if !ok || res == nil {
				log.add(id, domain.FailureRemote, "no result for "+s.alias)
				continue
			}
			if len(res.UserErrors) == 0 {
				continue
			}
			msgs := make([]string, len(res.UserErrors))
			for i, ue := range res.UserErrors {
				msgs[i] = ue.Message
			}
			log.add(id, domain.FailureRemote, strings.Join(msgs, ", "))
		}
	}
}
