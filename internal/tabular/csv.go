package tabular

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// DecodeCSV parses CSV input into a table. The first record is the header.
// Column types are inferred per column: INTEGER when every non-empty cell
// parses as an integer, REAL when every non-empty cell parses as a number,
// TEXT otherwise.
func DecodeCSV(r io.Reader, tableName string) (*Table, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("csv input is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	var records [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv record: %w", err)
		}
		records = append(records, record)
	}

	return tableFromRecords(tableName, header, records)
}

// tableFromRecords infers per-column types over string records and builds
// the table. Short records are padded with empty (NULL) cells.
func tableFromRecords(tableName string, header []string, records [][]string) (*Table, error) {
	if len(header) == 0 {
		return nil, fmt.Errorf("header has no columns")
	}
	names := dedupeNames(header)

	columns := make([]Column, len(names))
	for i, name := range names {
		columns[i] = Column{Name: name, Type: inferColumnType(records, i)}
	}

	table := &Table{Name: SanitizeIdentifier(tableName), Columns: columns, Rows: make([][]any, 0, len(records))}
	for _, record := range records {
		row := make([]any, len(columns))
		for i := range columns {
			raw := ""
			if i < len(record) {
				raw = strings.TrimSpace(record[i])
			}
			if raw == "" {
				row[i] = nil
				continue
			}
			cell, err := coerceCell(raw, columns[i].Type)
			if err != nil {
				return nil, fmt.Errorf("coerce cell: %w", err)
			}
			row[i] = cell
		}
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}

func dedupeNames(header []string) []string {
	names := make([]string, len(header))
	seen := map[string]int{}
	for i, raw := range header {
		name := SanitizeIdentifier(raw)
		if count := seen[name]; count > 0 {
			name = fmt.Sprintf("%s_%d", name, count+1)
		}
		seen[SanitizeIdentifier(raw)]++
		names[i] = name
	}
	return names
}

func inferColumnType(records [][]string, index int) ColumnType {
	sawValue := false
	allInteger := true
	allReal := true
	for _, record := range records {
		if index >= len(record) {
			continue
		}
		raw := strings.TrimSpace(record[index])
		if raw == "" {
			continue
		}
		sawValue = true
		if _, err := strconv.ParseInt(raw, 10, 64); err != nil {
			allInteger = false
		}
		if _, err := strconv.ParseFloat(raw, 64); err != nil {
			allReal = false
		}
	}
	switch {
	case !sawValue:
		return TypeText
	case allInteger:
		return TypeInteger
	case allReal:
		return TypeReal
	default:
		return TypeText
	}
}
