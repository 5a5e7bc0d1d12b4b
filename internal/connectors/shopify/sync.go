package shopify

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/syncshop/catalog-audit/internal/domain"
)

const variantsBySKUQuery = `query VariantsBySKU($query: String!, $cursor: String) {
  productVariants(first: 250, query: $query, after: $cursor) {
    pageInfo { hasNextPage endCursor }
    edges {
      node {
        id
        sku
        price
        compareAtPrice
        inventoryQuantity
        inventoryItem {
          id
          inventoryLevels(first: 10) {
            edges {
              node {
                location { name }
                quantities(names: ["available"]) { name quantity }
              }
            }
          }
        }
        product { id handle title tags templateSuffix descriptionHtml }
      }
    }
  }
}`

type variantsPage struct {
	ProductVariants struct {
		PageInfo struct {
			HasNextPage bool   `json:"hasNextPage"`
			EndCursor   string `json:"endCursor"`
		} `json:"pageInfo"`
		Edges []struct {
			Node syncVariant `json:"node"`
		} `json:"edges"`
	} `json:"productVariants"`
}

type syncVariant struct {
	variantFields
	InventoryItem *struct {
		ID              string `json:"id"`
		InventoryLevels struct {
			Edges []struct {
				Node inventoryLevelNode `json:"node"`
			} `json:"edges"`
		} `json:"inventoryLevels"`
	} `json:"inventoryItem"`
	Product *productNode `json:"product"`
}

// SKUSearch builds a variant search string matching any of the SKUs.
func SKUSearch(skus []string) string {
	parts := make([]string, len(skus))
	for i, s := range skus {
		s = strings.ReplaceAll(s, `\`, `\\`)
		s = strings.ReplaceAll(s, `"`, `\"`)
		parts[i] = fmt.Sprintf(`sku:"%s"`, s)
	}
	return strings.Join(parts, " OR ")
}

func batches(skus []string, size int) [][]string {
	var out [][]string
	for start := 0; start < len(skus); start += size {
		end := min(start+size, len(skus))
		out = append(out, skus[start:end])
	}
	return out
}

func uniqueSKUs(skus []string) []string {
	seen := make(map[string]struct{}, len(skus))
	out := make([]string, 0, len(skus))
	for _, s := range skus {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// FetchByKeys looks up the variants for the given SKUs with targeted search
// queries. Batches run concurrently; any batch failure aborts the fetch.
func (c *Client) FetchByKeys(ctx context.Context, skus []string) (Snapshot, error) {
	groups := batches(uniqueSKUs(skus), c.batchSize)
	results := make([][]domain.PlatformRow, len(groups))
	warnings := make([][]domain.Warning, len(groups))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, batch := range groups {
		g.Go(func() error {
			rows, warns, err := c.fetchBatch(gctx, batch)
			if err != nil {
				return fmt.Errorf("shopify: fetch batch %d/%d: %w", i+1, len(groups), err)
			}
			results[i] = rows
			warnings[i] = warns
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Snapshot{}, err
	}

	snap := Snapshot{Mode: domain.FetchSync}
	for i := range groups {
		snap.Rows = append(snap.Rows, results[i]...)
		snap.Warnings = append(snap.Warnings, warnings[i]...)
	}
	c.logger.Info("fetched variants by sku", "skus", len(skus), "batches", len(groups), "rows", len(snap.Rows))
	return snap, nil
}

func (c *Client) fetchBatch(ctx context.Context, skus []string) ([]domain.PlatformRow, []domain.Warning, error) {
	var (
		rows   []domain.PlatformRow
		warns  []domain.Warning
		cursor *string
	)
	search := SKUSearch(skus)
	for {
		vars := map[string]any{"query": search}
		if cursor != nil {
			vars["cursor"] = *cursor
		}
		var page variantsPage
		if err := c.query(ctx, variantsBySKUQuery, vars, &page); err != nil {
			return nil, nil, err
		}
		for _, e := range page.ProductVariants.Edges {
			rows = append(rows, e.Node.row(&warns))
		}
		info := page.ProductVariants.PageInfo
		if !info.HasNextPage || info.EndCursor == "" {
			return rows, warns, nil
		}
		next := info.EndCursor
		cursor = &next
	}
}

func (v syncVariant) row(warns *[]domain.Warning) domain.PlatformRow {
	var (
		product productNode
		itemID  string
		levels  []inventoryLevelNode
	)
	if v.Product != nil {
		product = *v.Product
	}
	if v.InventoryItem != nil {
		itemID = v.InventoryItem.ID
		for _, e := range v.InventoryItem.InventoryLevels.Edges {
			levels = append(levels, e.Node)
		}
	}
	return platformRow(v.variantFields, itemID, product, levels, warns)
}
