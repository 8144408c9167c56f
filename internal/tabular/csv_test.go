package tabular

import (
	"strings"
	"testing"
)

func TestDecodeCSVInfersColumnTypes(t *testing.T) {
	input := "name,age,weight,notes\nrex,4,12.5,good boy\nmuffin,2,3.1,\n"
	table, err := DecodeCSV(strings.NewReader(input), "pets")
	if err != nil {
		t.Fatalf("DecodeCSV() error = %v", err)
	}
	if table.Name != "pets" {
		t.Fatalf("Name = %q", table.Name)
	}

	wantTypes := []ColumnType{TypeText, TypeInteger, TypeReal, TypeText}
	for i, want := range wantTypes {
		if table.Columns[i].Type != want {
			t.Fatalf("column %d type = %q, want %q", i, table.Columns[i].Type, want)
		}
	}

	if len(table.Rows) != 2 {
		t.Fatalf("rows = %d", len(table.Rows))
	}
	if table.Rows[0][1] != int64(4) {
		t.Fatalf("age cell = %#v", table.Rows[0][1])
	}
	if table.Rows[0][2] != 12.5 {
		t.Fatalf("weight cell = %#v", table.Rows[0][2])
	}
	if table.Rows[1][3] != nil {
		t.Fatalf("empty cell = %#v, want nil", table.Rows[1][3])
	}
}

func TestDecodeCSVSanitizesHeaders(t *testing.T) {
	input := "pet name,2nd owner,pet name\nrex,alice,rexy\n"
	table, err := DecodeCSV(strings.NewReader(input), "my pets!")
	if err != nil {
		t.Fatalf("DecodeCSV() error = %v", err)
	}
	if table.Name != "my_pets_" {
		t.Fatalf("Name = %q", table.Name)
	}
	if table.Columns[0].Name != "pet_name" {
		t.Fatalf("column 0 = %q", table.Columns[0].Name)
	}
	if table.Columns[1].Name != "_2nd_owner" {
		t.Fatalf("column 1 = %q", table.Columns[1].Name)
	}
	if table.Columns[2].Name != "pet_name_2" {
		t.Fatalf("column 2 = %q", table.Columns[2].Name)
	}
}

func TestDecodeCSVRejectsEmptyInput(t *testing.T) {
	if _, err := DecodeCSV(strings.NewReader(""), "empty"); err == nil {
		t.Fatal("expected error for empty input")
	}
}

func TestDecodeCSVIntegerColumnWithBlankCells(t *testing.T) {
	input := "id,tag\n1,a\n,b\n3,c\n"
	table, err := DecodeCSV(strings.NewReader(input), "ids")
	if err != nil {
		t.Fatalf("DecodeCSV() error = %v", err)
	}
	if table.Columns[0].Type != TypeInteger {
		t.Fatalf("type = %q", table.Columns[0].Type)
	}
	if table.Rows[1][0] != nil {
		t.Fatalf("blank cell = %#v", table.Rows[1][0])
	}
}
