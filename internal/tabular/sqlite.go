package tabular

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// ExtractSQLite reads every user table from a SQLite database file and
// returns them as in-memory tables. Internal sqlite_* tables are skipped.
func ExtractSQLite(ctx context.Context, path string) ([]*Table, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?mode=ro", path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	defer func() { _ = db.Close() }()

	names, err := listSQLiteTables(ctx, db)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("sqlite database has no tables")
	}

	tables := make([]*Table, 0, len(names))
	for _, name := range names {
		table, err := readSQLiteTable(ctx, db, name)
		if err != nil {
			return nil, fmt.Errorf("read table %q: %w", name, err)
		}
		tables = append(tables, table)
	}
	return tables, nil
}

func listSQLiteTables(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list sqlite tables: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate table names: %w", err)
	}
	return names, nil
}

func readSQLiteTable(ctx context.Context, db *sql.DB, name string) (*Table, error) {
	columns, err := sqliteColumns(ctx, db, name)
	if err != nil {
		return nil, err
	}

	table := &Table{Name: SanitizeIdentifier(name), Columns: columns, Rows: [][]any{}}

	rows, err := db.QueryContext(ctx, fmt.Sprintf(`SELECT * FROM %s`, quoteSQLiteIdent(name)))
	if err != nil {
		return nil, fmt.Errorf("select rows: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		row := make([]any, len(columns))
		for i, value := range values {
			row[i] = normalizeSQLiteValue(value, columns[i].Type)
		}
		table.Rows = append(table.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return table, nil
}

func sqliteColumns(ctx context.Context, db *sql.DB, name string) ([]Column, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info(%s)`, quoteSQLiteIdent(name)))
	if err != nil {
		return nil, fmt.Errorf("table info: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var columns []Column
	for rows.Next() {
		var (
			cid          int
			columnName   string
			declaredType string
			notNull      int
			defaultValue sql.NullString
			primaryKey   int
		)
		if err := rows.Scan(&cid, &columnName, &declaredType, &notNull, &defaultValue, &primaryKey); err != nil {
			return nil, fmt.Errorf("scan column info: %w", err)
		}
		columns = append(columns, Column{
			Name: SanitizeIdentifier(columnName),
			Type: sqliteAffinity(declaredType),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate column info: %w", err)
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("table has no columns")
	}
	return columns, nil
}

// sqliteAffinity collapses a declared SQLite type to one of the three
// storage types, following SQLite's affinity rules.
func sqliteAffinity(declared string) ColumnType {
	upper := strings.ToUpper(declared)
	switch {
	case strings.Contains(upper, "INT"):
		return TypeInteger
	case strings.Contains(upper, "REAL"), strings.Contains(upper, "FLOA"),
		strings.Contains(upper, "DOUB"), strings.Contains(upper, "NUMERIC"),
		strings.Contains(upper, "DECIMAL"):
		return TypeReal
	default:
		return TypeText
	}
}

// normalizeSQLiteValue coerces a dynamically typed SQLite cell to the
// declared column type. SQLite lets any storage class appear in any column,
// so a TEXT column can legally hold integers and the parquet leaf still
// needs a string.
func normalizeSQLiteValue(value any, columnType ColumnType) any {
	switch typed := value.(type) {
	case nil:
		return nil
	case []byte:
		value = string(typed)
	case bool:
		if typed {
			value = int64(1)
		} else {
			value = int64(0)
		}
	}

	switch columnType {
	case TypeInteger:
		switch typed := value.(type) {
		case int64:
			return typed
		case float64:
			return int64(typed)
		case string:
			if parsed, err := strconv.ParseInt(strings.TrimSpace(typed), 10, 64); err == nil {
				return parsed
			}
			return nil
		}
	case TypeReal:
		switch typed := value.(type) {
		case int64:
			return float64(typed)
		case float64:
			return typed
		case string:
			if parsed, err := strconv.ParseFloat(strings.TrimSpace(typed), 64); err == nil {
				return parsed
			}
			return nil
		}
	default:
		switch typed := value.(type) {
		case string:
			return typed
		case int64:
			return strconv.FormatInt(typed, 10)
		case float64:
			return strconv.FormatFloat(typed, 'g', -1, 64)
		}
	}
	return fmt.Sprint(value)
}

func quoteSQLiteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}
