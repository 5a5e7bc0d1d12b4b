package engine

import (
	"strings"

	"github.com/syncshop/catalog-audit/internal/domain"
)

// ScanStale flags platform rows tagged clearance with stock on hand whose key
// is not in the feed. Tags are compared with all spaces removed.
func ScanStale(candidates []domain.PlatformRow, sourceKeys map[string]struct{}) []domain.StaleFlag {
	var out []domain.StaleFlag
	for _, p := range candidates {
		if !hasCompactTag(p.RawTags, TagClearance) {
			continue
		}
		if p.InventoryQuantity == nil || *p.InventoryQuantity <= 0 {
			continue
		}
		if _, inFeed := sourceKeys[p.Key]; inFeed {
			continue
		}
		out = append(out, domain.StaleFlag{Platform: p})
	}
	return out
}

func hasCompactTag(raw, want string) bool {
	compact := strings.ReplaceAll(strings.ToLower(raw), " ", "")
	for _, t := range strings.Split(compact, ",") {
		if t == want {
			return true
		}
	}
	return false
}
