package tabular

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/parquet-go/parquet-go"
)

// Parquet group schemas order fields alphabetically, so the original column
// order travels in file metadata.
const columnOrderKey = "tablechat.column_order"

// EncodeParquet serializes a table into a single parquet file. All columns
// are optional so NULL cells survive the round trip.
func EncodeParquet(table *Table) ([]byte, error) {
	if table == nil || len(table.Columns) == 0 {
		return nil, fmt.Errorf("table with columns is required")
	}

	group := parquet.Group{}
	for _, column := range table.Columns {
		group[column.Name] = parquet.Optional(columnNode(column.Type))
	}
	schema := parquet.NewSchema(table.Name, group)

	names := make([]string, len(table.Columns))
	for i, column := range table.Columns {
		names[i] = column.Name
	}

	// Leaf indexes follow the schema's alphabetical field order.
	leafIndex := map[string]int{}
	for i, field := range schema.Fields() {
		leafIndex[field.Name()] = i
	}

	buf := bytes.NewBuffer(nil)
	writer := parquet.NewWriter(buf, schema, parquet.KeyValueMetadata(columnOrderKey, strings.Join(names, ",")))

	for _, row := range table.Rows {
		values := make([]parquet.Value, len(table.Columns))
		for i, cell := range row {
			idx := leafIndex[table.Columns[i].Name]
			values[idx] = cellValue(cell, idx)
		}
		if _, err := writer.WriteRows([]parquet.Row{values}); err != nil {
			return nil, fmt.Errorf("write parquet row: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeParquet reads a parquet file produced by EncodeParquet (or any flat
// parquet file) back into a table. The caller fills in Name when the file
// name carries it.
func DecodeParquet(data []byte) (*Table, error) {
	file, err := parquet.OpenFile(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open parquet file: %w", err)
	}

	columns, order, err := fileColumns(file)
	if err != nil {
		return nil, err
	}

	table := &Table{Columns: columns, Rows: [][]any{}}
	for _, rowGroup := range file.RowGroups() {
		rows := rowGroup.Rows()
		buf := make([]parquet.Row, 64)
		for {
			n, readErr := rows.ReadRows(buf)
			for _, parquetRow := range buf[:n] {
				row := make([]any, len(columns))
				for _, value := range parquetRow {
					position, ok := order[value.Column()]
					if !ok {
						continue
					}
					row[position] = decodeValue(value)
				}
				table.Rows = append(table.Rows, row)
			}
			if readErr != nil {
				if errors.Is(readErr, io.EOF) {
					break
				}
				_ = rows.Close()
				return nil, fmt.Errorf("read parquet rows: %w", readErr)
			}
			if n == 0 {
				break
			}
		}
		if err := rows.Close(); err != nil {
			return nil, fmt.Errorf("close parquet rows: %w", err)
		}
	}
	return table, nil
}

// ReadParquetInfo returns the column layout and row count of a parquet file
// without decoding its rows.
func ReadParquetInfo(data []byte) ([]Column, int64, error) {
	file, err := parquet.OpenFile(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, 0, fmt.Errorf("open parquet file: %w", err)
	}
	columns, _, err := fileColumns(file)
	if err != nil {
		return nil, 0, err
	}
	var rowCount int64
	for _, rowGroup := range file.RowGroups() {
		rowCount += rowGroup.NumRows()
	}
	return columns, rowCount, nil
}

// fileColumns derives the logical column list in original order plus a map
// from leaf column index to position in that list.
func fileColumns(file *parquet.File) ([]Column, map[int]int, error) {
	fields := file.Schema().Fields()
	if len(fields) == 0 {
		return nil, nil, fmt.Errorf("parquet file has no columns")
	}

	byName := map[string]Column{}
	leafByName := map[string]int{}
	for i, field := range fields {
		if !field.Leaf() {
			return nil, nil, fmt.Errorf("nested parquet column %q is not supported", field.Name())
		}
		byName[field.Name()] = Column{Name: field.Name(), Type: kindToType(field.Type().Kind())}
		leafByName[field.Name()] = i
	}

	names := make([]string, 0, len(fields))
	if raw, ok := file.Lookup(columnOrderKey); ok {
		for _, name := range strings.Split(raw, ",") {
			if _, known := byName[name]; known {
				names = append(names, name)
			}
		}
	}
	if len(names) != len(fields) {
		names = names[:0]
		for _, field := range fields {
			names = append(names, field.Name())
		}
		sort.Strings(names)
	}

	columns := make([]Column, len(names))
	order := map[int]int{}
	for position, name := range names {
		columns[position] = byName[name]
		order[leafByName[name]] = position
	}
	return columns, order, nil
}

func columnNode(columnType ColumnType) parquet.Node {
	switch columnType {
	case TypeInteger:
		return parquet.Int(64)
	case TypeReal:
		return parquet.Leaf(parquet.DoubleType)
	default:
		return parquet.String()
	}
}

func cellValue(cell any, columnIndex int) parquet.Value {
	if cell == nil {
		return parquet.ValueOf(nil).Level(0, 0, columnIndex)
	}
	switch typed := cell.(type) {
	case int64:
		return parquet.Int64Value(typed).Level(0, 1, columnIndex)
	case float64:
		return parquet.DoubleValue(typed).Level(0, 1, columnIndex)
	case string:
		return parquet.ByteArrayValue([]byte(typed)).Level(0, 1, columnIndex)
	default:
		return parquet.ByteArrayValue([]byte(fmt.Sprint(typed))).Level(0, 1, columnIndex)
	}
}

func decodeValue(value parquet.Value) any {
	if value.IsNull() {
		return nil
	}
	switch value.Kind() {
	case parquet.Int32:
		return int64(value.Int32())
	case parquet.Int64:
		return value.Int64()
	case parquet.Float:
		return float64(value.Float())
	case parquet.Double:
		return value.Double()
	case parquet.Boolean:
		if value.Boolean() {
			return int64(1)
		}
		return int64(0)
	default:
		return value.String()
	}
}

func kindToType(kind parquet.Kind) ColumnType {
	switch kind {
	case parquet.Int32, parquet.Int64, parquet.Boolean:
		return TypeInteger
	case parquet.Float, parquet.Double:
		return TypeReal
	default:
		return TypeText
	}
}
