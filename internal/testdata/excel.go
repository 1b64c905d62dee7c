// Package testdata loads data-driven scenario inputs from workbooks and JSON
// fixtures.
package testdata

import (
	"fmt"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/xuri/excelize/v2"
)

// LoadExcel reads sheet from the workbook at path. The first row is the
// header; every following non-empty row becomes a map keyed by header cell.
// Cells missing at the end of a row are returned as "". An empty sheet name
// selects the first sheet.
func LoadExcel(path, sheet string) ([]map[string]string, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("failed to expand path %s: %w", path, err)
	}

	f, err := excelize.OpenFile(expanded)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook %s: %w", path, err)
	}
	defer f.Close()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("workbook %s has no sheets", path)
		}
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q of %s: %w", sheet, path, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("sheet %q of %s has no header row", sheet, path)
	}

	header := make([]string, len(rows[0]))
	for i, cell := range rows[0] {
		header[i] = strings.TrimSpace(cell)
		if header[i] == "" {
			return nil, fmt.Errorf("sheet %q of %s: header column %d is empty", sheet, path, i+1)
		}
	}

	records := make([]map[string]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if blank(row) {
			continue
		}
		rec := make(map[string]string, len(header))
		for i, key := range header {
			if i < len(row) {
				rec[key] = row[i]
			} else {
				rec[key] = ""
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

func blank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
