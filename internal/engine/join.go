// Package engine reconciles feed rows against platform rows: it joins them on
// business key, evaluates the discrepancy rules, scans for stale clearance
// tags and lists products missing from the platform.
package engine

import "github.com/syncshop/catalog-audit/internal/domain"

// JoinResult partitions the full outer join of both sides.
type JoinResult struct {
	Matched      []domain.JoinedRow `json:"matched"`
	SourceOnly   []domain.JoinedRow `json:"source_only"`
	PlatformOnly []domain.JoinedRow `json:"platform_only"`
	Stats        JoinStats          `json:"stats"`
}

// JoinStats counts the join outcome.
type JoinStats struct {
	SourceRows   int `json:"source_rows"`
	PlatformRows int `json:"platform_rows"`
	Matched      int `json:"matched"`
	SourceOnly   int `json:"source_only"`
	PlatformOnly int `json:"platform_only"`
}

// Join performs a full outer join on normalized key. A key present several
// times on either side yields every pairing for that key. Matched and
// source-only rows follow source order; platform-only rows follow platform order.
func Join(source []domain.SourceRow, platform []domain.PlatformRow) JoinResult {
	byKey := make(map[string][]int, len(platform))
	for i, p := range platform {
		byKey[p.Key] = append(byKey[p.Key], i)
	}

	res := JoinResult{Stats: JoinStats{SourceRows: len(source), PlatformRows: len(platform)}}
	seen := make(map[string]bool, len(source))
	for i := range source {
		s := &source[i]
		seen[s.Key] = true
		idx, ok := byKey[s.Key]
		if !ok {
			res.SourceOnly = append(res.SourceOnly, domain.JoinedRow{Key: s.Key, Source: s})
			continue
		}
		for _, j := range idx {
			res.Matched = append(res.Matched, domain.JoinedRow{Key: s.Key, Source: s, Platform: &platform[j]})
		}
	}
	for i := range platform {
		p := &platform[i]
		if !seen[p.Key] {
			res.PlatformOnly = append(res.PlatformOnly, domain.JoinedRow{Key: p.Key, Platform: p})
		}
	}

	res.Stats.Matched = len(res.Matched)
	res.Stats.SourceOnly = len(res.SourceOnly)
	res.Stats.PlatformOnly = len(res.PlatformOnly)
	return res
}
