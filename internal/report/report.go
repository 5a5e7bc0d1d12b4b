// Package report renders audit sessions as delimited text and workbooks.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"

	"github.com/syncshop/catalog-audit/internal/domain"
	"github.com/syncshop/catalog-audit/internal/feed"
	"github.com/syncshop/catalog-audit/internal/normalize"
)

// Table is one exportable sheet.
type Table struct {
	Name   string
	Header []string
	Rows   [][]string
}

var (
	discrepancyColumns = []string{"sku", "handle", "field", "csv_value", "shopify_value"}
	internalColumns    = []string{"variant_id", "product_id", "inventory_item_id", "shopify_price", "shopify_compare_at_price", "is_clearance_file"}
	mediaColumns       = []string{"product_id", "handle", "title", "media_count", "variant_count"}
)

// QtyColumn names the per-location quantity column.
func QtyColumn(location string) string {
	return location + " Qty"
}

// Discrepancies renders the working discrepancy set. full adds the internal
// platform identifiers after error_log.
func Discrepancies(s domain.AuditSession, full bool) Table {
	t := Table{Name: "Discrepancies"}
	t.Header = append(t.Header, discrepancyColumns...)
	for _, loc := range s.Locations {
		t.Header = append(t.Header, QtyColumn(loc))
	}
	t.Header = append(t.Header, "error_log")
	if full {
		t.Header = append(t.Header, internalColumns...)
	}

	for _, r := range s.Discrepancies {
		row := []string{r.SKU, r.Handle, string(r.Kind), r.CSVValue, r.ShopifyValue}
		for _, loc := range s.Locations {
			qty := ""
			if r.LocationQty != nil {
				qty = strconv.Itoa(r.LocationQty[loc])
			}
			row = append(row, qty)
		}
		row = append(row, r.ErrorLog)
		if full {
			row = append(row,
				r.VariantID,
				r.ProductID,
				r.InventoryItemID,
				normalize.FormatPrice(r.ShopifyPrice),
				normalize.FormatPrice(r.ShopifyCompareAt),
				strconv.FormatBool(r.IsClearanceFile),
			)
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

// Missing renders creation candidates in feed column order.
func Missing(s domain.AuditSession) Table {
	cols := s.FeedColumns
	if len(cols) == 0 {
		cols = feed.CanonicalColumns()
	}
	t := Table{Name: "Missing Products", Header: append(append([]string(nil), cols...), "error_log")}
	for _, c := range s.Missing {
		row := make([]string, 0, len(cols)+1)
		for _, col := range cols {
			row = append(row, c.Row.Field(col))
		}
		t.Rows = append(t.Rows, append(row, c.ErrorLog))
	}
	return t
}

// ExcessiveMedia renders products with more media than variants.
func ExcessiveMedia(s domain.AuditSession) Table {
	t := Table{Name: "Excessive Media", Header: mediaColumns}
	for _, m := range s.ExcessiveMedia {
		t.Rows = append(t.Rows, []string{m.ProductID, m.Handle, m.Title, strconv.Itoa(m.MediaCount), strconv.Itoa(m.VariantCount)})
	}
	return t
}

// WriteCSV writes the header row then every row, UTF-8.
func WriteCSV(w io.Writer, t Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Header); err != nil {
		return fmt.Errorf("report: write %s header: %w", t.Name, err)
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		return fmt.Errorf("report: write %s rows: %w", t.Name, err)
	}
	return nil
}

// WriteXLSX writes one sheet per table.
func WriteXLSX(w io.Writer, tables ...Table) error {
	f := excelize.NewFile()
	defer f.Close()

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#D9E1F2"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("report: header style: %w", err)
	}

	for i, t := range tables {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", t.Name); err != nil {
				return fmt.Errorf("report: name sheet %s: %w", t.Name, err)
			}
		} else if _, err := f.NewSheet(t.Name); err != nil {
			return fmt.Errorf("report: add sheet %s: %w", t.Name, err)
		}

		if err := writeSheetRow(f, t.Name, 1, t.Header); err != nil {
			return err
		}
		if len(t.Header) > 0 {
			last, _ := excelize.CoordinatesToCellName(len(t.Header), 1)
			if err := f.SetCellStyle(t.Name, "A1", last, headerStyle); err != nil {
				return fmt.Errorf("report: style %s: %w", t.Name, err)
			}
		}
		for r, row := range t.Rows {
			if err := writeSheetRow(f, t.Name, r+2, row); err != nil {
				return err
			}
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("report: write workbook: %w", err)
	}
	return nil
}

func writeSheetRow(f *excelize.File, sheet string, n int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, n)
	if err != nil {
		return fmt.Errorf("report: %s row %d: %w", sheet, n, err)
	}
	row := make([]any, len(values))
	for i, v := range values {
		row[i] = v
	}
	if err := f.SetSheetRow(sheet, cell, &row); err != nil {
		return fmt.Errorf("report: %s row %d: %w", sheet, n, err)
	}
	return nil
}
