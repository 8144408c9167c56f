package tabular

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ColumnType is the storage type of a dataset column. The three types mirror
// what SQL type affinities collapse to for chat-scale data.
type ColumnType string

const (
	TypeInteger ColumnType = "INTEGER"
	TypeReal    ColumnType = "REAL"
	TypeText    ColumnType = "TEXT"
)

type Column struct {
	Name string
	Type ColumnType
}

// Table is an in-memory tabular dataset. Row cells are nil, int64, float64
// or string depending on the column type.
type Table struct {
	Name    string
	Columns []Column
	Rows    [][]any
}

var identifierPattern = regexp.MustCompile(`[^a-zA-Z0-9_]`)

// SanitizeIdentifier rewrites a raw header or table name into a safe SQL
// identifier. Unsupported characters become underscores.
func SanitizeIdentifier(value string) string {
	cleaned := identifierPattern.ReplaceAllString(strings.TrimSpace(value), "_")
	if cleaned == "" {
		return "col"
	}
	if cleaned[0] >= '0' && cleaned[0] <= '9' {
		cleaned = "_" + cleaned
	}
	return cleaned
}

// ParseColumnDefinition interprets a free-form column definition such as
// "age INTEGER" or "name TEXT NOT NULL". The first token is the column name,
// the remainder decides the type.
func ParseColumnDefinition(definition string) (Column, error) {
	fields := strings.Fields(definition)
	if len(fields) == 0 {
		return Column{}, fmt.Errorf("column definition is empty")
	}
	column := Column{Name: SanitizeIdentifier(fields[0]), Type: TypeText}
	rest := strings.ToUpper(strings.Join(fields[1:], " "))
	switch {
	case strings.Contains(rest, "INT"):
		column.Type = TypeInteger
	case strings.Contains(rest, "REAL"), strings.Contains(rest, "FLOA"),
		strings.Contains(rest, "DOUB"), strings.Contains(rest, "NUMERIC"),
		strings.Contains(rest, "DECIMAL"):
		column.Type = TypeReal
	}
	return column, nil
}

// NewEmptyTable builds a zero-row table with the given columns.
func NewEmptyTable(name string, columns []Column) (*Table, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("at least one column is required")
	}
	seen := map[string]bool{}
	for _, column := range columns {
		if seen[column.Name] {
			return nil, fmt.Errorf("duplicate column %q", column.Name)
		}
		seen[column.Name] = true
	}
	return &Table{Name: SanitizeIdentifier(name), Columns: columns, Rows: [][]any{}}, nil
}

// AppendRow coerces raw string values to the column types and appends them.
// Empty strings become NULL cells.
func (t *Table) AppendRow(values []string) error {
	if len(values) != len(t.Columns) {
		return fmt.Errorf("expected %d values, got %d", len(t.Columns), len(values))
	}
	row := make([]any, len(values))
	for i, raw := range values {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			row[i] = nil
			continue
		}
		cell, err := coerceCell(raw, t.Columns[i].Type)
		if err != nil {
			return fmt.Errorf("column %q: %w", t.Columns[i].Name, err)
		}
		row[i] = cell
	}
	t.Rows = append(t.Rows, row)
	return nil
}

func coerceCell(raw string, columnType ColumnType) (any, error) {
	switch columnType {
	case TypeInteger:
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("value %q is not an integer", raw)
		}
		return parsed, nil
	case TypeReal:
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("value %q is not a number", raw)
		}
		return parsed, nil
	default:
		return raw, nil
	}
}
