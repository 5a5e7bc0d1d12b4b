// Package normalize coerces raw feed and platform values into typed,
// comparable form. Malformed values become absent plus a warning; absent
// is never treated as zero.
package normalize

import (
	"sort"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
)

// Key trims and case-folds a business key.
func Key(raw string) string {
	return cases.Fold().String(strings.TrimSpace(raw))
}

// nullish values are treated as absent without a warning.
func nullish(s string) bool {
	switch strings.ToLower(s) {
	case "", "nan", "null", "none", "<na>":
		return true
	}
	return false
}

// Price parses a price-like value after stripping currency symbols and
// thousands separators. ok is false when a non-blank value could not be
// parsed; the returned value is then absent.
func Price(raw string) (v decimal.NullDecimal, ok bool) {
	s := strings.TrimSpace(raw)
	if nullish(s) {
		return decimal.NullDecimal{}, true
	}
	s = strings.Map(func(r rune) rune {
		if r == ',' || unicode.IsSpace(r) || unicode.Is(unicode.Sc, r) {
			return -1
		}
		return r
	}, s)
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}, false
	}
	return decimal.NewNullDecimal(d), true
}

// Quantity parses an on-hand quantity. Fractional values are truncated.
func Quantity(raw string) (v *int, ok bool) {
	s := strings.TrimSpace(raw)
	if nullish(s) {
		return nil, true
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(s, ",", ""))
	if err != nil {
		return nil, false
	}
	n := int(d.IntPart())
	return &n, true
}

// Tags splits a comma-separated tag string into trimmed lowercase tags.
func Tags(raw string) []string {
	if nullish(strings.TrimSpace(raw)) {
		return nil
	}
	var out []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// HasTag reports whether a normalized tag set contains any of the given tags.
func HasTag(tags []string, want ...string) bool {
	for _, t := range tags {
		for _, w := range want {
			if t == w {
				return true
			}
		}
	}
	return false
}

// SortedTags returns a sorted copy joined with ", ", or "None" when empty.
func SortedTags(tags []string) string {
	if len(tags) == 0 {
		return "None"
	}
	c := append([]string(nil), tags...)
	sort.Strings(c)
	return strings.Join(c, ", ")
}

// Text trims a free-form value and maps null spellings to "".
func Text(raw string) string {
	s := strings.TrimSpace(raw)
	if nullish(s) {
		return ""
	}
	return s
}

// FormatPrice renders a present price with two decimals, or "" when absent.
func FormatPrice(v decimal.NullDecimal) string {
	if !v.Valid {
		return ""
	}
	return v.Decimal.StringFixed(2)
}
