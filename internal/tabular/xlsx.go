package tabular

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"
)

// DecodeXLSX parses the first sheet of an Excel workbook into a table. The
// first row is the header; type inference matches DecodeCSV.
func DecodeXLSX(data []byte, tableName string) (*Table, error) {
	workbook, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer func() { _ = workbook.Close() }()

	sheets := workbook.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	rows, err := workbook.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("sheet %q is empty", sheets[0])
	}

	return tableFromRecords(tableName, rows[0], rows[1:])
}
