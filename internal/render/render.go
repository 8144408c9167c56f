package render

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/tablechat/tablechat/internal/i18n"
	"github.com/tablechat/tablechat/internal/observability"
	"github.com/tablechat/tablechat/internal/query"
	"github.com/tablechat/tablechat/internal/translate"
)

type Kind string

const (
	KindText            Kind = "text"
	KindChart           Kind = "chart"
	KindTableWithExport Kind = "table_with_export"
)

// Payload is the user-facing rendering of a query result. Text is always
// set; Image carries a PNG chart for KindChart; Export carries a CSV file
// for KindTableWithExport.
type Payload struct {
	Kind       Kind
	Text       string
	Image      []byte
	ExportName string
	Export     []byte
}

const (
	fullTableInlineLimit = 20
	sampleRows           = 10
	barChartRowLimit     = 15
	chartSampleRows      = 5
	chartSampleThreshold = 10
)

type Renderer struct {
	Logger *slog.Logger
}

func NewRenderer(logger *slog.Logger) *Renderer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Renderer{Logger: logger}
}

// Render classifies a query result by its plan shape and produces the final
// payload. It never fails: any formatting or chart error degrades to a raw
// text dump.
func (r *Renderer) Render(result query.Result, shape translate.Shape, tableName string, lang i18n.Language) Payload {
	payload, err := r.render(result, shape, tableName, lang)
	if err != nil {
		r.Logger.Warn("rendering degraded to raw dump", "error", err, "table", tableName)
		observability.ObserveRender(string(KindText), true)
		return Payload{Kind: KindText, Text: rawDump(result)}
	}
	observability.ObserveRender(string(payload.Kind), false)
	return payload
}

func (r *Renderer) render(result query.Result, shape translate.Shape, tableName string, lang i18n.Language) (Payload, error) {
	msgs := i18n.For(lang)
	rowCount := len(result.Rows)

	if rowCount == 0 {
		return Payload{Kind: KindText, Text: msgs.NoResults}, nil
	}

	switch shape {
	case translate.ShapeFullTable:
		if rowCount <= fullTableInlineLimit {
			grid, err := formatTable(result.Columns, result.Rows)
			if err != nil {
				return Payload{}, err
			}
			return Payload{Kind: KindText, Text: fmt.Sprintf(msgs.ShowingAllData, rowCount) + "\n" + grid}, nil
		}
		grid, err := formatTable(result.Columns, result.Rows[:sampleRows])
		if err != nil {
			return Payload{}, err
		}
		export, err := exportCSV(result.Columns, result.Rows)
		if err != nil {
			return Payload{}, err
		}
		return Payload{
			Kind:       KindTableWithExport,
			Text:       fmt.Sprintf(msgs.ShowingSample, sampleRows) + "\n" + grid,
			ExportName: exportFileName(tableName),
			Export:     export,
		}, nil
	case translate.ShapeLimitedTable:
		grid, err := formatTable(result.Columns, result.Rows)
		if err != nil {
			return Payload{}, err
		}
		return Payload{Kind: KindText, Text: grid}, nil
	}

	if rowCount == 1 && len(result.Columns) == 1 {
		return Payload{Kind: KindText, Text: formatScalar(result.Rows[0][0])}, nil
	}

	numeric := numericColumns(result)
	if len(numeric) > 0 && rowCount > 1 {
		return r.renderChart(result, numeric, lang)
	}

	grid, err := formatTable(result.Columns, result.Rows)
	if err != nil {
		return Payload{}, err
	}
	return Payload{Kind: KindText, Text: msgs.ResultsTitle + ":\n" + grid}, nil
}

func (r *Renderer) renderChart(result query.Result, numeric []int, lang i18n.Language) (Payload, error) {
	msgs := i18n.For(lang)
	rowCount := len(result.Rows)

	var png []byte
	var err error
	if rowCount <= barChartRowLimit {
		png, err = barChartPNG(result, numeric[0])
	} else {
		png, err = histogramPNG(result, numeric[0])
	}
	if err != nil {
		return Payload{}, fmt.Errorf("build chart: %w", err)
	}

	caption := fmt.Sprintf(msgs.StatsSummary, rowCount, statsSummary(result, numeric))
	text := caption
	if rowCount > chartSampleThreshold {
		sample, err := formatTable(result.Columns, result.Rows[:chartSampleRows])
		if err != nil {
			return Payload{}, err
		}
		text = caption + "\n" + sample
	}
	return Payload{Kind: KindChart, Text: text, Image: png}, nil
}

// statsSummary lists mean and max of every numeric column.
func statsSummary(result query.Result, numeric []int) string {
	parts := make([]string, 0, len(numeric))
	for _, index := range numeric {
		var sum, max float64
		count := 0
		for _, row := range result.Rows {
			value, ok := toFloat(row[index])
			if !ok {
				continue
			}
			if count == 0 || value > max {
				max = value
			}
			sum += value
			count++
		}
		if count == 0 {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: mean %.2f, max %.2f", result.Columns[index], sum/float64(count), max))
	}
	return strings.Join(parts, "; ")
}

// numericColumns returns indexes of columns whose non-null cells are all
// numeric, with at least one value present.
func numericColumns(result query.Result) []int {
	var numeric []int
	for index := range result.Columns {
		sawValue := false
		allNumeric := true
		for _, row := range result.Rows {
			if row[index] == nil {
				continue
			}
			if _, ok := toFloat(row[index]); !ok {
				allNumeric = false
				break
			}
			sawValue = true
		}
		if sawValue && allNumeric {
			numeric = append(numeric, index)
		}
	}
	return numeric
}

func toFloat(value any) (float64, bool) {
	switch typed := value.(type) {
	case int:
		return float64(typed), true
	case int32:
		return float64(typed), true
	case int64:
		return float64(typed), true
	case float32:
		return float64(typed), true
	case float64:
		return typed, true
	default:
		return 0, false
	}
}

func formatScalar(value any) string {
	if number, ok := toFloat(value); ok {
		return fmt.Sprintf("%.2f", number)
	}
	return formatValue(value)
}

func formatValue(value any) string {
	switch typed := value.(type) {
	case nil:
		return ""
	case string:
		return typed
	case int64:
		return strconv.FormatInt(typed, 10)
	case int32:
		return strconv.FormatInt(int64(typed), 10)
	case float64:
		return strconv.FormatFloat(typed, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(typed), 'g', -1, 32)
	default:
		return fmt.Sprint(typed)
	}
}

func formatTable(columns []string, rows [][]any) (string, error) {
	if len(columns) == 0 {
		return "", fmt.Errorf("result has no columns")
	}
	buf := bytes.NewBuffer(nil)
	table := tablewriter.NewWriter(buf)
	table.SetHeader(columns)
	for _, row := range rows {
		cells := make([]string, len(row))
		for i, value := range row {
			cells[i] = formatValue(value)
		}
		table.Append(cells)
	}
	table.Render()
	return "```\n" + buf.String() + "```", nil
}

func exportCSV(columns []string, rows [][]any) ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	writer := csv.NewWriter(buf)
	if err := writer.Write(columns); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	for _, row := range rows {
		record := make([]string, len(row))
		for i, value := range row {
			record[i] = formatValue(value)
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("write csv record: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

func exportFileName(tableName string) string {
	name := strings.TrimSpace(tableName)
	if name == "" {
		name = "results"
	}
	return name + ".csv"
}

// rawDump is the last-resort rendering when formatting itself fails.
func rawDump(result query.Result) string {
	var b strings.Builder
	b.WriteString(strings.Join(result.Columns, " | "))
	b.WriteString("\n")
	for _, row := range result.Rows {
		cells := make([]string, len(row))
		for i, value := range row {
			cells[i] = fmt.Sprint(value)
		}
		b.WriteString(strings.Join(cells, " | "))
		b.WriteString("\n")
	}
	return b.String()
}
