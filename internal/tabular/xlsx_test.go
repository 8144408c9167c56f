package tabular

import (
	"bytes"
	"testing"

	"github.com/xuri/excelize/v2"
)

func buildWorkbook(t *testing.T, rows [][]any) []byte {
	t.Helper()
	workbook := excelize.NewFile()
	sheet := workbook.GetSheetName(0)
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("cell name: %v", err)
		}
		if err := workbook.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatalf("set row: %v", err)
		}
	}
	var buf bytes.Buffer
	if err := workbook.Write(&buf); err != nil {
		t.Fatalf("write workbook: %v", err)
	}
	return buf.Bytes()
}

func TestDecodeXLSX(t *testing.T) {
	data := buildWorkbook(t, [][]any{
		{"pet name", "age", "weight"},
		{"rex", 4, 12.5},
		{"muffin", 2, 3.2},
	})

	table, err := DecodeXLSX(data, "pets")
	if err != nil {
		t.Fatalf("DecodeXLSX failed: %v", err)
	}
	if table.Name != "pets" {
		t.Fatalf("Name = %q", table.Name)
	}
	wantColumns := []Column{
		{Name: "pet_name", Type: TypeText},
		{Name: "age", Type: TypeInteger},
		{Name: "weight", Type: TypeReal},
	}
	if len(table.Columns) != len(wantColumns) {
		t.Fatalf("columns = %v", table.Columns)
	}
	for i, want := range wantColumns {
		if table.Columns[i] != want {
			t.Fatalf("column %d = %v, want %v", i, table.Columns[i], want)
		}
	}
	if len(table.Rows) != 2 {
		t.Fatalf("rows = %d", len(table.Rows))
	}
	if table.Rows[0][0] != "rex" || table.Rows[0][1] != int64(4) || table.Rows[0][2] != 12.5 {
		t.Fatalf("first row = %v", table.Rows[0])
	}
}

func TestDecodeXLSXPadsShortRows(t *testing.T) {
	data := buildWorkbook(t, [][]any{
		{"name", "tag"},
		{"rex", "good"},
		{"muffin"},
	})

	table, err := DecodeXLSX(data, "pets")
	if err != nil {
		t.Fatalf("DecodeXLSX failed: %v", err)
	}
	if len(table.Rows) != 2 {
		t.Fatalf("rows = %d", len(table.Rows))
	}
	if table.Rows[1][1] != nil {
		t.Fatalf("missing cell should be NULL, got %v", table.Rows[1][1])
	}
}

func TestDecodeXLSXRejectsGarbage(t *testing.T) {
	if _, err := DecodeXLSX([]byte("not a workbook"), "pets"); err == nil {
		t.Fatal("expected error for non-xlsx input")
	}
}
