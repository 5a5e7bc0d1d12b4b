package shopify

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/syncshop/catalog-audit/internal/domain"
)

const bulkRunMutation = `mutation RunCatalogExport($query: String!) {
  bulkOperationRunQuery(query: $query) {
    bulkOperation { id status }
    userErrors { field message }
  }
}`

const currentBulkQuery = `query CurrentBulkOperation {
  currentBulkOperation { id status errorCode objectCount url }
}`

const bulkVariantFields = `id sku price compareAtPrice inventoryQuantity inventoryItem { id%s }`

const bulkInventoryLevels = ` inventoryLevels { edges { node { location { name } quantities(names: ["available"]) { name quantity } } } }`

// BulkExportQuery is the catalog export run as a bulk operation.
func BulkExportQuery(withInventory bool) string {
	levels := ""
	if withInventory {
		levels = bulkInventoryLevels
	}
	return `{ products { edges { node { id handle title tags templateSuffix descriptionHtml mediaCount { count } ` +
		`variants { edges { node { ` + fmt.Sprintf(bulkVariantFields, levels) + ` } } } } } } }`
}

type bulkOperation struct {
	ID          string  `json:"id"`
	Status      string  `json:"status"`
	ErrorCode   *string `json:"errorCode"`
	ObjectCount string  `json:"objectCount"`
	URL         *string `json:"url"`
}

// FetchBulkSnapshot exports the whole catalog through a bulk operation and
// keeps the variants whose key is in keys. Everything else becomes a stale
// candidate. Excessive media is computed over every product in the export.
func (c *Client) FetchBulkSnapshot(ctx context.Context, keys map[string]struct{}) (Snapshot, error) {
	if err := c.startBulk(ctx); err != nil {
		return Snapshot{}, err
	}
	op, err := c.waitBulk(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	snap := Snapshot{Mode: domain.FetchBulk}
	if op.URL == nil || *op.URL == "" {
		c.logger.Info("bulk export completed without data", "operation", op.ID)
		return snap, nil
	}

	export, err := c.downloadExport(ctx, *op.URL)
	if err != nil {
		return Snapshot{}, err
	}
	snap.Warnings = export.warnings
	snap.ExcessiveMedia = export.excessiveMedia()
	for _, row := range export.rows() {
		if _, ok := keys[row.Key]; ok {
			snap.Rows = append(snap.Rows, row)
			continue
		}
		snap.StaleCandidates = append(snap.StaleCandidates, row)
	}
	c.logger.Info("bulk export decoded",
		"operation", op.ID,
		"products", len(export.products),
		"rows", len(snap.Rows),
		"stale_candidates", len(snap.StaleCandidates),
	)
	return snap, nil
}

func (c *Client) startBulk(ctx context.Context) error {
	resp, err := c.Execute(ctx, bulkRunMutation, map[string]any{"query": BulkExportQuery(c.bulkInventory)})
	if err != nil {
		return err
	}
	if err := resp.Err(); err != nil {
		return err
	}
	var out struct {
		BulkOperationRunQuery struct {
			UserErrors []UserError `json:"userErrors"`
		} `json:"bulkOperationRunQuery"`
	}
	if err := resp.Decode(&out); err != nil {
		return err
	}
	ue := out.BulkOperationRunQuery.UserErrors
	if len(ue) == 0 {
		return nil
	}
	for _, u := range ue {
		if !strings.Contains(strings.ToLower(u.Message), "already in progress") {
			return &UserErrors{Action: "bulkOperationRunQuery", Errors: ue}
		}
	}
	c.logger.Warn("bulk operation already running; waiting on it")
	return nil
}

func (c *Client) waitBulk(ctx context.Context) (bulkOperation, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	for {
		var out struct {
			CurrentBulkOperation *bulkOperation `json:"currentBulkOperation"`
		}
		if err := c.query(ctx, currentBulkQuery, nil, &out); err != nil {
			return bulkOperation{}, err
		}
		op := out.CurrentBulkOperation
		if op == nil {
			return bulkOperation{}, fmt.Errorf("shopify: no current bulk operation")
		}
		switch op.Status {
		case "COMPLETED":
			return *op, nil
		case "FAILED", "CANCELED", "EXPIRED":
			return bulkOperation{}, &BulkOperationError{ID: op.ID, Status: op.Status, ErrorCode: str(op.ErrorCode)}
		}
		c.logger.Debug("bulk operation pending", "operation", op.ID, "status", op.Status, "objects", op.ObjectCount)

		select {
		case <-ctx.Done():
			return bulkOperation{}, fmt.Errorf("shopify: waiting for bulk operation: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

func (c *Client) downloadExport(ctx context.Context, url string) (*bulkExport, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("shopify: build export request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("shopify: download export: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("shopify: download export: unexpected status %d", resp.StatusCode)
	}
	return decodeExport(resp.Body)
}

// bulkLine is the union of the three object shapes in the export.
type bulkLine struct {
	ID       string `json:"id"`
	ParentID string `json:"__parentId"`

	productNode
	variantFields
	InventoryItem *struct {
		ID string `json:"id"`
	} `json:"inventoryItem"`

	Location *struct {
		Name string `json:"name"`
	} `json:"location"`
	Quantities []quantityNode `json:"quantities"`
}

type bulkVariant struct {
	fields  variantFields
	itemID  string
	product string
	levels  []inventoryLevelNode
}

type bulkExport struct {
	products     map[string]*productNode
	productOrder []string
	variants     map[string]*bulkVariant
	variantOrder []string
	variantCount map[string]int
	warnings     []domain.Warning
}

func decodeExport(r io.Reader) (*bulkExport, error) {
	ex := &bulkExport{
		products:     make(map[string]*productNode),
		variants:     make(map[string]*bulkVariant),
		variantCount: make(map[string]int),
	}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 1<<20), 64<<20)
	line := 0
	for sc.Scan() {
		line++
		raw := strings.TrimSpace(sc.Text())
		if raw == "" {
			continue
		}
		var l bulkLine
		if err := json.Unmarshal([]byte(raw), &l); err != nil {
			return nil, fmt.Errorf("shopify: export line %d: %w", line, err)
		}

		switch {
		case l.ParentID == "":
			p := l.productNode
			p.ID = l.ID
			ex.products[p.ID] = &p
			ex.productOrder = append(ex.productOrder, p.ID)
		case l.Location != nil:
			v, ok := ex.variants[l.ParentID]
			if !ok {
				ex.warnings = append(ex.warnings, domain.Warning{
					Source:  "platform",
					Line:    line,
					Message: fmt.Sprintf("inventory level for unknown variant %s", l.ParentID),
				})
				continue
			}
			lvl := inventoryLevelNode{Quantities: l.Quantities}
			lvl.Location.Name = l.Location.Name
			v.levels = append(v.levels, lvl)
		default:
			f := l.variantFields
			f.ID = l.ID
			v := &bulkVariant{fields: f, product: l.ParentID}
			if l.InventoryItem != nil {
				v.itemID = l.InventoryItem.ID
			}
			ex.variants[f.ID] = v
			ex.variantOrder = append(ex.variantOrder, f.ID)
			ex.variantCount[l.ParentID]++
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("shopify: read export: %w", err)
	}
	return ex, nil
}

func (ex *bulkExport) rows() []domain.PlatformRow {
	out := make([]domain.PlatformRow, 0, len(ex.variantOrder))
	for _, id := range ex.variantOrder {
		v := ex.variants[id]
		var product productNode
		if p, ok := ex.products[v.product]; ok {
			product = *p
		}
		out = append(out, platformRow(v.fields, v.itemID, product, v.levels, &ex.warnings))
	}
	return out
}

func (ex *bulkExport) excessiveMedia() []domain.ExcessiveMedia {
	var out []domain.ExcessiveMedia
	for _, id := range ex.productOrder {
		p := ex.products[id]
		if p.MediaCount == nil {
			continue
		}
		variants := ex.variantCount[id]
		if p.MediaCount.Count > variants {
			out = append(out, domain.ExcessiveMedia{
				ProductID:    p.ID,
				Handle:       p.Handle,
				Title:        p.Title,
				MediaCount:   p.MediaCount.Count,
				VariantCount: variants,
			})
		}
	}
	return out
}

// SourceKeys collects the set of source keys for FetchBulkSnapshot.
func SourceKeys(rows []domain.SourceRow) map[string]struct{} {
	out := make(map[string]struct{}, len(rows))
	for _, r := range rows {
		out[r.Key] = struct{}{}
	}
	return out
}
