package render

import (
	"fmt"
	"strings"
	"testing"

	"github.com/tablechat/tablechat/internal/i18n"
	"github.com/tablechat/tablechat/internal/query"
	"github.com/tablechat/tablechat/internal/translate"
)

func numberedResult(rowCount int) query.Result {
	result := query.Result{Columns: []string{"name", "score"}}
	for i := 0; i < rowCount; i++ {
		result.Rows = append(result.Rows, []any{fmt.Sprintf("row-%d", i+1), float64(i) + 0.5})
	}
	return result
}

func TestRenderEmptyResult(t *testing.T) {
	renderer := NewRenderer(nil)
	payload := renderer.Render(query.Result{Columns: []string{"name"}}, translate.ShapeFullTable, "pets", i18n.English)
	if payload.Kind != KindText {
		t.Fatalf("Kind = %q", payload.Kind)
	}
	if payload.Text != i18n.For(i18n.English).NoResults {
		t.Fatalf("Text = %q", payload.Text)
	}
}

func TestRenderFullTableBoundary(t *testing.T) {
	renderer := NewRenderer(nil)

	inline := renderer.Render(numberedResult(20), translate.ShapeFullTable, "pets", i18n.English)
	if inline.Kind != KindText {
		t.Fatalf("20 rows: Kind = %q, want text", inline.Kind)
	}
	if !strings.Contains(inline.Text, "row-20") {
		t.Fatalf("20 rows: last row missing from %q", inline.Text)
	}
	if inline.Export != nil {
		t.Fatal("20 rows: unexpected export")
	}

	exported := renderer.Render(numberedResult(21), translate.ShapeFullTable, "pets", i18n.English)
	if exported.Kind != KindTableWithExport {
		t.Fatalf("21 rows: Kind = %q, want table with export", exported.Kind)
	}
	if !strings.Contains(exported.Text, "row-10") || strings.Contains(exported.Text, "row-11") {
		t.Fatalf("21 rows: sample should hold exactly 10 rows: %q", exported.Text)
	}
	if exported.ExportName != "pets.csv" {
		t.Fatalf("ExportName = %q", exported.ExportName)
	}
	lines := strings.Split(strings.TrimSpace(string(exported.Export)), "\n")
	if len(lines) != 22 {
		t.Fatalf("export lines = %d, want header + 21 rows", len(lines))
	}
	if lines[0] != "name,score" {
		t.Fatalf("export header = %q", lines[0])
	}
}

func TestRenderLimitedTable(t *testing.T) {
	renderer := NewRenderer(nil)
	payload := renderer.Render(numberedResult(5), translate.ShapeLimitedTable, "pets", i18n.English)
	if payload.Kind != KindText {
		t.Fatalf("Kind = %q", payload.Kind)
	}
	if !strings.HasPrefix(payload.Text, "```") {
		t.Fatalf("expected fenced table, got %q", payload.Text)
	}
}

func TestRenderScalar(t *testing.T) {
	renderer := NewRenderer(nil)
	cases := []struct {
		value any
		want  string
	}{
		{42.5, "42.50"},
		{int64(7), "7.00"},
		{"hello", "hello"},
	}
	for _, tc := range cases {
		result := query.Result{Columns: []string{"value"}, Rows: [][]any{{tc.value}}}
		payload := renderer.Render(result, translate.ShapeAIGenerated, "pets", i18n.English)
		if payload.Kind != KindText || payload.Text != tc.want {
			t.Fatalf("scalar %#v rendered as (%q, %q)", tc.value, payload.Kind, payload.Text)
		}
	}
}

func TestRenderBarChartForSmallNumericResult(t *testing.T) {
	renderer := NewRenderer(nil)
	payload := renderer.Render(numberedResult(3), translate.ShapeAIGenerated, "pets", i18n.English)
	if payload.Kind != KindChart {
		t.Fatalf("Kind = %q, want chart", payload.Kind)
	}
	if len(payload.Image) == 0 {
		t.Fatal("chart image is empty")
	}
	if !strings.Contains(payload.Text, "score: mean") {
		t.Fatalf("caption = %q", payload.Text)
	}
	if strings.Contains(payload.Text, "```") {
		t.Fatalf("3 rows should not attach a sample table: %q", payload.Text)
	}
}

func TestRenderHistogramWithSampleForLargeResult(t *testing.T) {
	renderer := NewRenderer(nil)
	payload := renderer.Render(numberedResult(30), translate.ShapeAIGenerated, "pets", i18n.English)
	if payload.Kind != KindChart {
		t.Fatalf("Kind = %q, want chart", payload.Kind)
	}
	if len(payload.Image) == 0 {
		t.Fatal("chart image is empty")
	}
	if !strings.Contains(payload.Text, "Found 30 records") {
		t.Fatalf("caption = %q", payload.Text)
	}
	if !strings.Contains(payload.Text, "```") {
		t.Fatalf("30 rows should attach a 5-row sample: %q", payload.Text)
	}
	if !strings.Contains(payload.Text, "row-5") || strings.Contains(payload.Text, "row-6") {
		t.Fatalf("sample should hold exactly 5 rows: %q", payload.Text)
	}
}

func TestRenderChartsEqualValuedSeries(t *testing.T) {
	renderer := NewRenderer(nil)

	flat := query.Result{Columns: []string{"name", "count"}}
	for i := 0; i < 4; i++ {
		flat.Rows = append(flat.Rows, []any{fmt.Sprintf("row-%d", i+1), float64(2)})
	}
	payload := renderer.Render(flat, translate.ShapeAIGenerated, "pets", i18n.English)
	if payload.Kind != KindChart {
		t.Fatalf("equal bars: Kind = %q, want chart", payload.Kind)
	}
	if len(payload.Image) == 0 {
		t.Fatal("equal bars: chart image is empty")
	}

	uniform := query.Result{Columns: []string{"name", "count"}}
	for i := 0; i < 30; i++ {
		uniform.Rows = append(uniform.Rows, []any{fmt.Sprintf("row-%d", i+1), float64(i)})
	}
	payload = renderer.Render(uniform, translate.ShapeAIGenerated, "pets", i18n.English)
	if payload.Kind != KindChart {
		t.Fatalf("uniform histogram: Kind = %q, want chart", payload.Kind)
	}
	if len(payload.Image) == 0 {
		t.Fatal("uniform histogram: chart image is empty")
	}
}

func TestRenderNonNumericFallsBackToTable(t *testing.T) {
	renderer := NewRenderer(nil)
	result := query.Result{
		Columns: []string{"name", "owner"},
		Rows:    [][]any{{"rex", "alice"}, {"muffin", "bob"}},
	}
	payload := renderer.Render(result, translate.ShapeAIGenerated, "pets", i18n.English)
	if payload.Kind != KindText {
		t.Fatalf("Kind = %q", payload.Kind)
	}
	if !strings.HasPrefix(payload.Text, "Query results:") {
		t.Fatalf("Text = %q", payload.Text)
	}
	if !strings.Contains(payload.Text, "muffin") {
		t.Fatalf("Text = %q", payload.Text)
	}
}

func TestRenderIsIdempotentOnClassification(t *testing.T) {
	renderer := NewRenderer(nil)
	result := numberedResult(21)
	first := renderer.Render(result, translate.ShapeFullTable, "pets", i18n.English)
	second := renderer.Render(result, translate.ShapeFullTable, "pets", i18n.English)
	if first.Kind != second.Kind {
		t.Fatalf("kinds differ: %q vs %q", first.Kind, second.Kind)
	}
	if first.Text != second.Text {
		t.Fatal("texts differ between renders")
	}
}

func TestRenderDegradesToRawDump(t *testing.T) {
	renderer := NewRenderer(nil)
	result := query.Result{Columns: nil, Rows: [][]any{{"orphan"}}}
	payload := renderer.Render(result, translate.ShapeFullTable, "pets", i18n.English)
	if payload.Kind != KindText {
		t.Fatalf("Kind = %q", payload.Kind)
	}
	if !strings.Contains(payload.Text, "orphan") {
		t.Fatalf("raw dump lost the row: %q", payload.Text)
	}
}

func TestRenderLocalizesCaptions(t *testing.T) {
	renderer := NewRenderer(nil)
	payload := renderer.Render(numberedResult(3), translate.ShapeFullTable, "pets", i18n.Russian)
	if !strings.Contains(payload.Text, "Показаны все данные (3 записей):") {
		t.Fatalf("Text = %q", payload.Text)
	}
}
