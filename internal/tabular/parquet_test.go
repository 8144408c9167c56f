package tabular

import (
	"reflect"
	"testing"
)

func petsTable() *Table {
	return &Table{
		Name: "pets",
		Columns: []Column{
			{Name: "name", Type: TypeText},
			{Name: "age", Type: TypeInteger},
			{Name: "weight", Type: TypeReal},
		},
		Rows: [][]any{
			{"rex", int64(4), 12.5},
			{"muffin", int64(2), 3.1},
			{"tweety", nil, nil},
		},
	}
}

func TestParquetRoundTripPreservesColumnOrderAndNulls(t *testing.T) {
	data, err := EncodeParquet(petsTable())
	if err != nil {
		t.Fatalf("EncodeParquet() error = %v", err)
	}

	decoded, err := DecodeParquet(data)
	if err != nil {
		t.Fatalf("DecodeParquet() error = %v", err)
	}

	wantColumns := []Column{
		{Name: "name", Type: TypeText},
		{Name: "age", Type: TypeInteger},
		{Name: "weight", Type: TypeReal},
	}
	if !reflect.DeepEqual(decoded.Columns, wantColumns) {
		t.Fatalf("Columns = %+v, want %+v", decoded.Columns, wantColumns)
	}

	if len(decoded.Rows) != 3 {
		t.Fatalf("rows = %d", len(decoded.Rows))
	}
	if !reflect.DeepEqual(decoded.Rows[0], []any{"rex", int64(4), 12.5}) {
		t.Fatalf("row 0 = %#v", decoded.Rows[0])
	}
	if decoded.Rows[2][1] != nil || decoded.Rows[2][2] != nil {
		t.Fatalf("row 2 nulls lost: %#v", decoded.Rows[2])
	}
}

func TestReadParquetInfo(t *testing.T) {
	data, err := EncodeParquet(petsTable())
	if err != nil {
		t.Fatalf("EncodeParquet() error = %v", err)
	}

	columns, rowCount, err := ReadParquetInfo(data)
	if err != nil {
		t.Fatalf("ReadParquetInfo() error = %v", err)
	}
	if rowCount != 3 {
		t.Fatalf("rowCount = %d", rowCount)
	}
	if len(columns) != 3 || columns[0].Name != "name" {
		t.Fatalf("columns = %+v", columns)
	}
}

func TestEncodeParquetEmptyTable(t *testing.T) {
	table, err := NewEmptyTable("pets", []Column{{Name: "name", Type: TypeText}})
	if err != nil {
		t.Fatalf("NewEmptyTable() error = %v", err)
	}
	data, err := EncodeParquet(table)
	if err != nil {
		t.Fatalf("EncodeParquet() error = %v", err)
	}
	decoded, err := DecodeParquet(data)
	if err != nil {
		t.Fatalf("DecodeParquet() error = %v", err)
	}
	if len(decoded.Rows) != 0 {
		t.Fatalf("rows = %d", len(decoded.Rows))
	}
}

func TestDecodeParquetRejectsGarbage(t *testing.T) {
	if _, err := DecodeParquet([]byte("not a parquet file")); err == nil {
		t.Fatal("expected error for invalid input")
	}
}
