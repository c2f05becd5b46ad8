package parser

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// ReadSpreadsheet reads the rows of a workbook sheet. An empty sheet name
// selects the first sheet. Cells are returned as displayed, so dates and
// amounts keep the text form the user sees.
func ReadSpreadsheet(r io.Reader, sheet string) ([]Record, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, ErrEmptyFile
		}
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}

	records := make([]Record, 0, len(rows))
	for i, cells := range rows {
		records = append(records, Record{Row: i + 1, Cells: cells})
	}
	if len(records) == 0 {
		return nil, ErrEmptyFile
	}
	return records, nil
}

// SheetNames lists the sheets of a workbook.
func SheetNames(r io.Reader) ([]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()
	return f.GetSheetList(), nil
}
