// Package feed retrieves the authoritative product feed and parses it into
// a table of canonical columns.
package feed

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Table is a parsed feed: every cell a string, columns under canonical names.
type Table struct {
	Name     string
	Encoding string
	Columns  []string
	Records  []Record
	Warnings []ParseWarning
}

// Record is one data line. Line is 1-indexed with the header on line 1.
type Record struct {
	Line   int
	Fields map[string]string
}

// Get returns the value of a column, or "" when the column is blank or absent.
func (r Record) Get(col string) string {
	return r.Fields[col]
}

// ParseWarning is a non-fatal problem found while reading the file.
type ParseWarning struct {
	Line    int    `json:"line"`
	Message string `json:"message"`
}

// renames maps human-readable feed headers to canonical names, in priority
// order. When two headers map to the same target the first one present wins.
var renames = []struct{ from, to string }{
	{"SKU", "sku"},
	{"Handle", "handle"},
	{"Title", "title"},
	{"Vendor", "vendor"},
	{"Body (HTML)", "body_html"},
	{"Type", "type"},
	{"Product Type", "product_type"},
	{"Category", "category"},
	{"Tags", "tags"},
	{"Price", "price"},
	{"Compare At Price", "compareAtPrice"},
	{"Cost Per Item", "cost"},
	{"Variant Inventory Qty", "inventory"},
	{"Variant Grams", "grams"},
	{"Weight", "weight"},
	{"Variant Weight", "weight"},
	{"Variant Weight Unit", "weightUnit"},
	{"Variant Barcode", "barcode"},
	{"Variant Image", "image"},
	{"Option1 Name", "option1_name"},
	{"Option1 Value", "option1_value"},
	{"Option2 Name", "option2_name"},
	{"Option2 Value", "option2_value"},
	{"Option3 Name", "option3_name"},
	{"Option3 Value", "option3_value"},
	{"SEO Title", "seo_title"},
	{"SEO Description", "seo_description"},
	{"Template Suffix", "templateSuffix"},
}

// CanonicalColumns lists every canonical column name once, in rename order.
func CanonicalColumns() []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range renames {
		if !seen[r.to] {
			seen[r.to] = true
			out = append(out, r.to)
		}
	}
	return out
}

// IsClearance reports whether a feed file name marks a clearance feed.
func IsClearance(name string) bool {
	return strings.Contains(strings.ToLower(name), "clearance")
}

// Parse decodes and parses raw feed bytes. Rows with a mismatched column
// count are padded or truncated with a warning; unreadable rows are skipped
// with a warning. An empty file or a file without data rows is an error.
func Parse(name string, data []byte) (Table, error) {
	decoded, enc, err := decode(data)
	if err != nil {
		return Table{}, fmt.Errorf("feed: decode %q: %w", name, err)
	}

	reader := csv.NewReader(bytes.NewReader(decoded))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	headers, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Table{}, fmt.Errorf("feed: %q: empty file: no header row found", name)
		}
		return Table{}, fmt.Errorf("feed: %q: read header: %w", name, err)
	}
	for i, h := range headers {
		headers[i] = strings.TrimSpace(h)
	}
	columns := renameColumns(headers)

	t := Table{Name: name, Encoding: enc}
	line := 1
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			t.Warnings = append(t.Warnings, ParseWarning{Line: line, Message: fmt.Sprintf("parse error: %v", err)})
			continue
		}
		if isBlankRow(row) {
			continue
		}
		switch {
		case len(row) < len(headers):
			t.Warnings = append(t.Warnings, ParseWarning{
				Line:    line,
				Message: fmt.Sprintf("row has %d columns, expected %d; padding with empty values", len(row), len(headers)),
			})
			padded := make([]string, len(headers))
			copy(padded, row)
			row = padded
		case len(row) > len(headers):
			t.Warnings = append(t.Warnings, ParseWarning{
				Line:    line,
				Message: fmt.Sprintf("row has %d columns, expected %d; truncating extra columns", len(row), len(headers)),
			})
			row = row[:len(headers)]
		}

		fields := make(map[string]string, len(columns))
		for i, col := range columns {
			if _, dup := fields[col]; dup {
				continue
			}
			fields[col] = row[i]
		}
		t.Records = append(t.Records, Record{Line: line, Fields: fields})
	}

	if len(t.Records) == 0 {
		return Table{}, fmt.Errorf("feed: %q: file contains no data rows", name)
	}

	// Canonical columns absent from the file are synthesized blank.
	t.Columns = columnsWithCanonical(columns)
	return t, nil
}

func renameColumns(headers []string) []string {
	present := make(map[string]bool, len(headers))
	for _, h := range headers {
		present[h] = true
	}
	actual := make(map[string]string)
	taken := make(map[string]bool)
	for _, r := range renames {
		if present[r.from] && !taken[r.to] {
			actual[r.from] = r.to
			taken[r.to] = true
		}
	}
	out := make([]string, len(headers))
	for i, h := range headers {
		if to, ok := actual[h]; ok {
			out[i] = to
		} else {
			out[i] = h
		}
	}
	return out
}

func columnsWithCanonical(columns []string) []string {
	seen := make(map[string]bool, len(columns))
	out := make([]string, 0, len(columns))
	for _, c := range columns {
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	for _, c := range CanonicalColumns() {
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}

func isBlankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// decode strips a UTF-8/UTF-16 BOM and converts to UTF-8. Input that is not
// valid UTF-8 after that is read as Windows-1252, the usual spreadsheet export.
func decode(data []byte) ([]byte, string, error) {
	if len(data) == 0 {
		return data, "utf-8", nil
	}
	enc := "utf-8"
	switch {
	case bytes.HasPrefix(data, []byte{0xEF, 0xBB, 0xBF}):
		enc = "utf-8-bom"
	case bytes.HasPrefix(data, []byte{0xFF, 0xFE}):
		enc = "utf-16le"
	case bytes.HasPrefix(data, []byte{0xFE, 0xFF}):
		enc = "utf-16be"
	}
	if enc != "utf-8" {
		out, _, err := transform.Bytes(unicode.BOMOverride(unicode.UTF8.NewDecoder()), data)
		if err != nil {
			return nil, "", err
		}
		return out, enc, nil
	}
	if utf8.Valid(data) {
		return data, enc, nil
	}
	out, _, err := transform.Bytes(charmap.Windows1252.NewDecoder(), data)
	if err != nil {
		return nil, "", err
	}
	return out, "windows-1252", nil
}
