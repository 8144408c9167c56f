package storage

import "testing"

func TestBuildTableFilePath(t *testing.T) {
	key, err := BuildTableFilePath("user-42", "5f0c1b9e", "pets")
	if err != nil {
		t.Fatalf("BuildTableFilePath() error = %v", err)
	}
	want := "datasets/user-42/5f0c1b9e/pets.parquet"
	if key != want {
		t.Fatalf("BuildTableFilePath() = %q, want %q", key, want)
	}
}

func TestBuildDatasetPrefix(t *testing.T) {
	prefix, err := BuildDatasetPrefix("user-42", "5f0c1b9e")
	if err != nil {
		t.Fatalf("BuildDatasetPrefix() error = %v", err)
	}
	if prefix != "datasets/user-42/5f0c1b9e" {
		t.Fatalf("BuildDatasetPrefix() = %q", prefix)
	}
}

func TestBuildPathRejectsInvalidComponent(t *testing.T) {
	if _, err := BuildTableFilePath("../oops", "5f0c1b9e", "pets"); err == nil {
		t.Fatal("expected invalid component error")
	}
	if _, err := BuildTableFilePath("user-42", "5f0c1b9e", "pe/ts"); err == nil {
		t.Fatal("expected invalid table name error")
	}
}

func TestTableNameFromKey(t *testing.T) {
	cases := []struct {
		key  string
		name string
		ok   bool
	}{
		{"datasets/user-42/5f0c1b9e/pets.parquet", "pets", true},
		{"datasets/user-42/5f0c1b9e/.parquet", "", false},
		{"datasets/user-42/5f0c1b9e/notes.txt", "", false},
	}
	for _, tc := range cases {
		name, ok := TableNameFromKey(tc.key)
		if ok != tc.ok || name != tc.name {
			t.Fatalf("TableNameFromKey(%q) = %q, %v; want %q, %v", tc.key, name, ok, tc.name, tc.ok)
		}
	}
}
