package engine

import (
	"fmt"

	"github.com/syncshop/catalog-audit/internal/domain"
)

// Input is one reconciliation run over two immutable snapshots.
type Input struct {
	ClearanceFeed bool
	Source        []domain.SourceRow
	Platform      []domain.PlatformRow
	// StaleCandidates are platform rows outside the requested keys. Only the
	// bulk snapshot can supply them.
	StaleCandidates []domain.PlatformRow
}

// Output is the reconciliation result. Stale flags are already included in
// Discrepancies as manual-only records.
type Output struct {
	Discrepancies []domain.DiscrepancyRecord
	Missing       []domain.CreationCandidate
	Stale         []domain.StaleFlag
	Join          JoinStats
}

// Reconcile is a pure function of its input: the same snapshots always yield
// the same records with the same IDs.
func Reconcile(in Input) Output {
	joined := Join(in.Source, in.Platform)
	discounts := GroupDiscounts(joined.Matched)

	var records []domain.DiscrepancyRecord
	for _, j := range joined.Matched {
		records = append(records, Evaluate(Pair{
			Source:        *j.Source,
			Platform:      *j.Platform,
			ClearanceFeed: in.ClearanceFeed,
			GroupDiscount: discounts[groupKey(*j.Source)],
		})...)
	}

	var stale []domain.StaleFlag
	if in.ClearanceFeed {
		keys := make(map[string]struct{}, len(in.Source))
		for _, s := range in.Source {
			keys[s.Key] = struct{}{}
		}
		candidates := make([]domain.PlatformRow, 0, len(joined.PlatformOnly)+len(in.StaleCandidates))
		for _, j := range joined.PlatformOnly {
			candidates = append(candidates, *j.Platform)
		}
		candidates = append(candidates, in.StaleCandidates...)
		stale = ScanStale(candidates, keys)
		for _, f := range stale {
			records = append(records, f.Record())
		}
	}

	AssignIDs(records)
	return Output{
		Discrepancies: records,
		Missing:       MissingProducts(joined.SourceOnly),
		Stale:         stale,
		Join:          joined.Stats,
	}
}

func groupKey(s domain.SourceRow) string {
	if s.Handle != "" {
		return "h:" + s.Handle
	}
	return "k:" + s.Key
}

// GroupDiscounts marks every source handle group in which at least one
// matched row is priced below its list price. Rows without a handle form
// their own group.
func GroupDiscounts(matched []domain.JoinedRow) map[string]bool {
	out := make(map[string]bool)
	for _, j := range matched {
		s := j.Source
		k := groupKey(*s)
		if s.CompareAt.Valid && s.Price.Valid && s.Price.Decimal.LessThan(s.CompareAt.Decimal) {
			out[k] = true
		} else if _, ok := out[k]; !ok {
			out[k] = false
		}
	}
	return out
}

// AssignIDs gives each record the ID "{key}/{kind}", appending "#n" for the
// nth repeat of the same pair.
func AssignIDs(records []domain.DiscrepancyRecord) {
	seen := make(map[string]int, len(records))
	for i := range records {
		base := records[i].Key + "/" + string(records[i].Kind)
		seen[base]++
		if n := seen[base]; n > 1 {
			records[i].ID = fmt.Sprintf("%s#%d", base, n)
		} else {
			records[i].ID = base
		}
	}
}
