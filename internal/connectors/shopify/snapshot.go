package shopify

import (
	"strings"

	"github.com/syncshop/catalog-audit/internal/domain"
	"github.com/syncshop/catalog-audit/internal/normalize"
)

// Snapshot is the platform view of the catalog for one audit.
type Snapshot struct {
	Mode domain.FetchMode
	// Rows are the variants whose key was requested.
	Rows []domain.PlatformRow
	// StaleCandidates are variants seen but not requested (bulk mode only).
	StaleCandidates []domain.PlatformRow
	// ExcessiveMedia is computed over the whole catalog (bulk mode only).
	ExcessiveMedia []domain.ExcessiveMedia
	Warnings       []domain.Warning
}

type productNode struct {
	ID              string      `json:"id"`
	Handle          string      `json:"handle"`
	Title           string      `json:"title"`
	Tags            []string    `json:"tags"`
	TemplateSuffix  *string     `json:"templateSuffix"`
	DescriptionHTML string      `json:"descriptionHtml"`
	MediaCount      *countValue `json:"mediaCount,omitempty"`
}

type countValue struct {
	Count int `json:"count"`
}

type quantityNode struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

type inventoryLevelNode struct {
	Location struct {
		Name string `json:"name"`
	} `json:"location"`
	Quantities []quantityNode `json:"quantities"`
}

func (l inventoryLevelNode) available() int {
	for _, q := range l.Quantities {
		if q.Name == "available" {
			return q.Quantity
		}
	}
	return 0
}

type variantFields struct {
	ID                string  `json:"id"`
	SKU               *string `json:"sku"`
	Price             *string `json:"price"`
	CompareAtPrice    *string `json:"compareAtPrice"`
	InventoryQuantity *int    `json:"inventoryQuantity"`
}

func str(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// platformRow flattens a variant, its product and its inventory levels.
func platformRow(v variantFields, itemID string, p productNode, levels []inventoryLevelNode, warns *[]domain.Warning) domain.PlatformRow {
	sku := strings.TrimSpace(str(v.SKU))
	key := normalize.Key(sku)
	raw := strings.Join(p.Tags, ", ")
	row := domain.PlatformRow{
		SKU:               sku,
		Key:               key,
		VariantID:         v.ID,
		ProductID:         p.ID,
		InventoryItemID:   itemID,
		Handle:            p.Handle,
		Title:             p.Title,
		Price:             normalize.PlatformPrice(key, "price", str(v.Price), warns),
		CompareAt:         normalize.PlatformPrice(key, "compare_at_price", str(v.CompareAtPrice), warns),
		Tags:              normalize.Tags(raw),
		RawTags:           raw,
		TemplateSuffix:    str(p.TemplateSuffix),
		DescriptionHTML:   p.DescriptionHTML,
		InventoryQuantity: v.InventoryQuantity,
	}
	if len(levels) > 0 {
		row.LocationQty = make(map[string]int, len(levels))
		for _, l := range levels {
			row.LocationQty[l.Location.Name] += l.available()
		}
	}
	return row
}
