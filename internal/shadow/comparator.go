package shadow

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/syncshop/catalog-audit/internal/domain"
	"github.com/syncshop/catalog-audit/internal/normalize"
)

// Fingerprints reduces a session's discrepancies to their comparable identity.
func Fingerprints(s domain.AuditSession) []Fingerprint {
	out := make([]Fingerprint, 0, len(s.Discrepancies))
	for _, r := range s.Discrepancies {
		out = append(out, Fingerprint{Key: r.Key, Kind: string(r.Kind), CSVValue: r.CSVValue, ShopifyValue: r.ShopifyValue})
	}
	return out
}

// Compare compares two sessions section by section.
func Compare(left, right domain.AuditSession) *ComparisonResult {
	var missingL, missingR, mediaL, mediaR []string
	for _, c := range left.Missing {
		missingL = append(missingL, c.Row.Key)
	}
	for _, c := range right.Missing {
		missingR = append(missingR, c.Row.Key)
	}
	for _, m := range left.ExcessiveMedia {
		mediaL = append(mediaL, m.ProductID)
	}
	for _, m := range right.ExcessiveMedia {
		mediaR = append(mediaR, m.ProductID)
	}

	return result(
		compareSection("discrepancies", stringify(Fingerprints(left)), stringify(Fingerprints(right))),
		compareSection("missing", missingL, missingR),
		compareSection("excessive_media", mediaL, mediaR),
	)
}

// CompareReports compares two discrepancy CSV exports.
func CompareReports(left, right io.Reader) (*ComparisonResult, error) {
	l, err := ReadReport(left)
	if err != nil {
		return nil, fmt.Errorf("parse left report: %w", err)
	}
	r, err := ReadReport(right)
	if err != nil {
		return nil, fmt.Errorf("parse right report: %w", err)
	}
	return result(compareSection("discrepancies", stringify(l), stringify(r))), nil
}

// ReadReport parses a discrepancy CSV export. Only the sku, field, csv_value
// and shopify_value columns are read; the key is the normalized sku.
func ReadReport(r io.Reader) ([]Fingerprint, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("empty report")
	}
	if err != nil {
		return nil, err
	}

	idx := map[string]int{}
	for i, h := range header {
		idx[strings.TrimSpace(h)] = i
	}
	for _, col := range []string{"sku", "field", "csv_value", "shopify_value"} {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("report has no %q column", col)
		}
	}
	get := func(row []string, col string) string {
		if i := idx[col]; i < len(row) {
			return row[i]
		}
		return ""
	}

	var out []Fingerprint
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		out = append(out, Fingerprint{
			Key:          normalize.Key(get(row, "sku")),
			Kind:         get(row, "field"),
			CSVValue:     get(row, "csv_value"),
			ShopifyValue: get(row, "shopify_value"),
		})
	}
	return out, nil
}

func stringify(fps []Fingerprint) []string {
	out := make([]string, len(fps))
	for i, f := range fps {
		out[i] = f.String()
	}
	return out
}

// compareSection treats both sides as multisets.
func compareSection(name string, left, right []string) SectionComparison {
	counts := make(map[string]int, len(left))
	for _, v := range left {
		counts[v]++
	}
	for _, v := range right {
		counts[v]--
	}

	sc := SectionComparison{Section: name, Left: len(left), Right: len(right)}
	for v, n := range counts {
		for ; n > 0; n-- {
			sc.LeftOnly = append(sc.LeftOnly, v)
		}
		for ; n < 0; n++ {
			sc.RightOnly = append(sc.RightOnly, v)
		}
	}
	sort.Strings(sc.LeftOnly)
	sort.Strings(sc.RightOnly)
	sc.Match = len(sc.LeftOnly) == 0 && len(sc.RightOnly) == 0
	return sc
}

func result(sections ...SectionComparison) *ComparisonResult {
	res := &ComparisonResult{Sections: sections, AllMatch: true}
	var divergent []string
	for _, s := range sections {
		if !s.Match {
			res.AllMatch = false
			divergent = append(divergent, s.Section)
		}
	}
	res.Summary = "all sections match"
	if !res.AllMatch {
		res.Summary = fmt.Sprintf("divergence in: %s", strings.Join(divergent, ", "))
	}
	return res
}
