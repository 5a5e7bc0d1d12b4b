package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func nowUTC() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// SourceRow is one line of the authoritative feed after normalization.
type SourceRow struct {
	Line int    `json:"line"`
	SKU  string `json:"sku"`
	// Key is the trimmed, case-folded SKU used for joining.
	Key    string `json:"key"`
	Handle string `json:"handle"`

	Price     decimal.NullDecimal `json:"price"`
	CompareAt decimal.NullDecimal `json:"compare_at_price"`
	Tags      []string            `json:"tags"`
	RawTags   string              `json:"raw_tags"`
	Template  string              `json:"template_suffix"`
	Inventory *int                `json:"inventory,omitempty"`

	// Fields holds every feed column under its canonical name, verbatim.
	Fields map[string]string `json:"fields"`
}

// Field returns a canonical column value, or "" when absent.
func (r SourceRow) Field(name string) string {
	return r.Fields[name]
}

// PlatformRow is one variant as currently recorded on the platform.
type PlatformRow struct {
	SKU             string `json:"sku"`
	Key             string `json:"key"`
	VariantID       string `json:"variant_id"`
	ProductID       string `json:"product_id"`
	InventoryItemID string `json:"inventory_item_id"`
	Handle          string `json:"handle"`
	Title           string `json:"title"`

	Price           decimal.NullDecimal `json:"price"`
	CompareAt       decimal.NullDecimal `json:"compare_at_price"`
	Tags            []string            `json:"tags"`
	RawTags         string              `json:"raw_tags"`
	TemplateSuffix  string              `json:"template_suffix"`
	DescriptionHTML string              `json:"description_html"`

	InventoryQuantity *int           `json:"inventory_quantity,omitempty"`
	LocationQty       map[string]int `json:"location_qty,omitempty"`
}

// JoinedRow is one outer-join result for a business key.
type JoinedRow struct {
	Key      string       `json:"key"`
	Source   *SourceRow   `json:"source,omitempty"`
	Platform *PlatformRow `json:"platform,omitempty"`
}

// State classifies the row. A row with neither side is never produced by the join.
func (j JoinedRow) State() RowState {
	switch {
	case j.Source != nil && j.Platform != nil:
		return StateMatched
	case j.Source != nil:
		return StateMissingDownstream
	default:
		return StatePlatformOnly
	}
}

// PricePayload sets one variant price field. An invalid Target clears the field.
type PricePayload struct {
	Field  string              `json:"field"`
	Target decimal.NullDecimal `json:"target"`
}

const (
	PriceFieldPrice     = "price"
	PriceFieldCompareAt = "compareAtPrice"
)

// TagPayload adds or removes product tags. ClearTemplate also resets the template suffix.
type TagPayload struct {
	Add           []string `json:"add,omitempty"`
	Remove        []string `json:"remove,omitempty"`
	ClearTemplate bool     `json:"clear_template,omitempty"`
}

// TemplatePayload sets the product template suffix; "" is the default template.
type TemplatePayload struct {
	Suffix string `json:"suffix"`
}

// DescriptionPayload overwrites the product description.
type DescriptionPayload struct {
	HTML string `json:"html"`
}

// DiscrepancyRecord is one flagged issue on one matched row, or a stale flag.
// Exactly one payload is set for correctable kinds; manual kinds carry none.
type DiscrepancyRecord struct {
	ID     string          `json:"id"`
	Key    string          `json:"key"`
	SKU    string          `json:"sku"`
	Handle string          `json:"handle"`
	Kind   DiscrepancyKind `json:"field"`

	CSVValue     string `json:"csv_value"`
	ShopifyValue string `json:"shopify_value"`

	VariantID        string              `json:"variant_id"`
	ProductID        string              `json:"product_id"`
	InventoryItemID  string              `json:"inventory_item_id"`
	ShopifyPrice     decimal.NullDecimal `json:"shopify_price"`
	ShopifyCompareAt decimal.NullDecimal `json:"shopify_compare_at_price"`
	IsClearanceFile  bool                `json:"is_clearance_file"`
	LocationQty      map[string]int      `json:"location_qty,omitempty"`

	ErrorLog string `json:"error_log"`

	Price       *PricePayload       `json:"price_fix,omitempty"`
	Tag         *TagPayload         `json:"tag_fix,omitempty"`
	Template    *TemplatePayload    `json:"template_fix,omitempty"`
	Description *DescriptionPayload `json:"description_fix,omitempty"`
}

// NewDiscrepancy fills the common header from a matched platform row.
func NewDiscrepancy(kind DiscrepancyKind, src SourceRow, p PlatformRow, clearanceFeed bool, csvValue, shopifyValue string) DiscrepancyRecord {
	handle := src.Handle
	if handle == "" {
		handle = p.Handle
	}
	return DiscrepancyRecord{
		Key:              p.Key,
		SKU:              src.SKU,
		Handle:           handle,
		Kind:             kind,
		CSVValue:         csvValue,
		ShopifyValue:     shopifyValue,
		VariantID:        p.VariantID,
		ProductID:        p.ProductID,
		InventoryItemID:  p.InventoryItemID,
		ShopifyPrice:     p.Price,
		ShopifyCompareAt: p.CompareAt,
		IsClearanceFile:  clearanceFeed,
		LocationQty:      p.LocationQty,
	}
}

// StaleFlag is a platform row still carrying the clearance tag with stock on hand
// while missing from the clearance feed.
type StaleFlag struct {
	Platform PlatformRow `json:"platform"`
}

const (
	staleExpected = "Not in Clearance file"
	staleActual   = "Has Clearance tag"
)

// Record converts the flag into a manual-only discrepancy.
func (f StaleFlag) Record() DiscrepancyRecord {
	p := f.Platform
	return DiscrepancyRecord{
		Key:              p.Key,
		SKU:              p.SKU,
		Handle:           p.Handle,
		Kind:             KindStaleClearanceTag,
		CSVValue:         staleExpected,
		ShopifyValue:     staleActual,
		VariantID:        p.VariantID,
		ProductID:        p.ProductID,
		InventoryItemID:  p.InventoryItemID,
		ShopifyPrice:     p.Price,
		ShopifyCompareAt: p.CompareAt,
		IsClearanceFile:  true,
		LocationQty:      p.LocationQty,
	}
}

// CreationCandidate is a source row with no platform counterpart.
type CreationCandidate struct {
	Row      SourceRow `json:"row"`
	ErrorLog string    `json:"error_log"`
}

// NewAggregate is one product to be created from N>=1 candidates.
type NewAggregate struct {
	GroupKey   string              `json:"group_key"`
	Candidates []CreationCandidate `json:"candidates"`
}

// ExcessiveMedia is a product with more media items than variants.
type ExcessiveMedia struct {
	ProductID    string `json:"product_id"`
	Handle       string `json:"handle"`
	Title        string `json:"title"`
	MediaCount   int    `json:"media_count"`
	VariantCount int    `json:"variant_count"`
}

// Warning records a local data problem that was neutralized rather than raised.
type Warning struct {
	Source  string `json:"source"`
	Line    int    `json:"line,omitempty"`
	Key     string `json:"key,omitempty"`
	Field   string `json:"field,omitempty"`
	Value   string `json:"value,omitempty"`
	Message string `json:"message"`
}

func (w Warning) String() string {
	switch {
	case w.Line > 0 && w.Field != "":
		return fmt.Sprintf("%s line %d: %s %q: %s", w.Source, w.Line, w.Field, w.Value, w.Message)
	case w.Line > 0:
		return fmt.Sprintf("%s line %d: %s", w.Source, w.Line, w.Message)
	case w.Key != "":
		return fmt.Sprintf("%s %s: %s %q: %s", w.Source, w.Key, w.Field, w.Value, w.Message)
	}
	return fmt.Sprintf("%s: %s", w.Source, w.Message)
}

// Failure is a structured correction or creation failure.
type Failure struct {
	Kind    FailureKind `json:"kind"`
	Message string      `json:"message"`
}

// AuditSession is the result of one audit run.
// Methods never mutate the receiver; they return an updated copy.
type AuditSession struct {
	ID            string    `json:"id"`
	CreatedAt     string    `json:"created_at"`
	FeedFile      string    `json:"feed_file"`
	ClearanceFeed bool      `json:"clearance_feed"`
	Mode          FetchMode `json:"mode"`

	FeedColumns []string `json:"feed_columns"`
	Locations   []string `json:"locations"`

	Discrepancies  []DiscrepancyRecord `json:"discrepancies"`
	Missing        []CreationCandidate `json:"missing"`
	ExcessiveMedia []ExcessiveMedia    `json:"excessive_media"`
	Warnings       []Warning           `json:"warnings"`

	// Applied holds the records dispatched without error, kept for verification.
	Applied []DiscrepancyRecord `json:"applied,omitempty"`

	SourceRows int `json:"source_rows"`
	Matched    int `json:"matched"`
}

// NewAuditSession creates an empty session with a generated ID.
func NewAuditSession(feedFile string, clearanceFeed bool, mode FetchMode) AuditSession {
	return AuditSession{
		ID:            uuid.NewString(),
		CreatedAt:     nowUTC(),
		FeedFile:      feedFile,
		ClearanceFeed: clearanceFeed,
		Mode:          mode,
	}
}

// Select returns the records with the given IDs in session order.
// Unknown IDs are ignored.
func (s AuditSession) Select(ids []string) []DiscrepancyRecord {
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	var out []DiscrepancyRecord
	for _, r := range s.Discrepancies {
		if _, ok := want[r.ID]; ok {
			out = append(out, r)
		}
	}
	return out
}

// SelectKinds returns the records of the given kinds in session order.
func (s AuditSession) SelectKinds(kinds ...DiscrepancyKind) []DiscrepancyRecord {
	var out []DiscrepancyRecord
	for _, r := range s.Discrepancies {
		for _, k := range kinds {
			if r.Kind == k {
				out = append(out, r)
				break
			}
		}
	}
	return out
}

// Record looks up a discrepancy by ID.
func (s AuditSession) Record(id string) (DiscrepancyRecord, bool) {
	for _, r := range s.Discrepancies {
		if r.ID == id {
			return r, true
		}
	}
	return DiscrepancyRecord{}, false
}

// ApplyDispatch moves attempted records that did not fail to Applied and
// annotates the ones that did. Records that were not attempted are left untouched.
func (s AuditSession) ApplyDispatch(attempted []string, failures map[string]Failure) AuditSession {
	tried := make(map[string]struct{}, len(attempted))
	for _, id := range attempted {
		tried[id] = struct{}{}
	}
	out := s
	out.Discrepancies = make([]DiscrepancyRecord, 0, len(s.Discrepancies))
	out.Applied = append([]DiscrepancyRecord(nil), s.Applied...)
	for _, r := range s.Discrepancies {
		if f, failed := failures[r.ID]; failed {
			r.ErrorLog = f.Message
			out.Discrepancies = append(out.Discrepancies, r)
			continue
		}
		if _, ok := tried[r.ID]; ok {
			out.Applied = append(out.Applied, r)
			continue
		}
		out.Discrepancies = append(out.Discrepancies, r)
	}
	return out
}

// ApplyCreation removes created candidates and annotates failed ones.
// Both maps are keyed by candidate Key.
func (s AuditSession) ApplyCreation(created map[string]bool, failures map[string]string) AuditSession {
	out := s
	out.Missing = make([]CreationCandidate, 0, len(s.Missing))
	for _, c := range s.Missing {
		if msg, failed := failures[c.Row.Key]; failed {
			c.ErrorLog = msg
			out.Missing = append(out.Missing, c)
			continue
		}
		if created[c.Row.Key] {
			continue
		}
		out.Missing = append(out.Missing, c)
	}
	return out
}

// SelectMissing returns candidates whose key is in keys, or all when keys is empty.
func (s AuditSession) SelectMissing(keys []string) []CreationCandidate {
	if len(keys) == 0 {
		return append([]CreationCandidate(nil), s.Missing...)
	}
	want := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		want[k] = struct{}{}
	}
	var out []CreationCandidate
	for _, c := range s.Missing {
		if _, ok := want[c.Row.Key]; ok {
			out = append(out, c)
		}
	}
	return out
}

// KindCounts tallies discrepancies per kind.
func (s AuditSession) KindCounts() map[DiscrepancyKind]int {
	out := make(map[DiscrepancyKind]int)
	for _, r := range s.Discrepancies {
		out[r.Kind]++
	}
	return out
}

// Summary is a compact view of a session for listings and workflow state.
type Summary struct {
	SessionID      string                  `json:"session_id"`
	FeedFile       string                  `json:"feed_file"`
	ClearanceFeed  bool                    `json:"clearance_feed"`
	Mode           FetchMode               `json:"mode"`
	CreatedAt      string                  `json:"created_at"`
	SourceRows     int                     `json:"source_rows"`
	Matched        int                     `json:"matched"`
	Discrepancies  int                     `json:"discrepancies"`
	ByKind         map[DiscrepancyKind]int `json:"by_kind"`
	Missing        int                     `json:"missing"`
	ExcessiveMedia int                     `json:"excessive_media"`
	Warnings       int                     `json:"warnings"`
}

func (s AuditSession) Summary() Summary {
	return Summary{
		SessionID:      s.ID,
		FeedFile:       s.FeedFile,
		ClearanceFeed:  s.ClearanceFeed,
		Mode:           s.Mode,
		CreatedAt:      s.CreatedAt,
		SourceRows:     s.SourceRows,
		Matched:        s.Matched,
		Discrepancies:  len(s.Discrepancies),
		ByKind:         s.KindCounts(),
		Missing:        len(s.Missing),
		ExcessiveMedia: len(s.ExcessiveMedia),
		Warnings:       len(s.Warnings),
	}
}
