package render

import (
	"bytes"
	"fmt"
	"strconv"

	chart "github.com/wcharczuk/go-chart/v2"

	"github.com/tablechat/tablechat/internal/query"
)

const (
	chartWidth    = 800
	chartHeight   = 400
	histogramBins = 20
	binsPerRows   = 5
)

// barChartPNG draws one bar per row, keyed by row index, from the first
// numeric column.
func barChartPNG(result query.Result, columnIndex int) ([]byte, error) {
	bars := make([]chart.Value, 0, len(result.Rows))
	for i, row := range result.Rows {
		value, ok := toFloat(row[columnIndex])
		if !ok {
			value = 0
		}
		bars = append(bars, chart.Value{Label: strconv.Itoa(i + 1), Value: value})
	}
	return renderBars(result.Columns[columnIndex], bars)
}

// histogramPNG buckets the first numeric column into min(20, rows/5) bins
// (at least one) and draws the bin counts.
func histogramPNG(result query.Result, columnIndex int) ([]byte, error) {
	values := make([]float64, 0, len(result.Rows))
	for _, row := range result.Rows {
		if value, ok := toFloat(row[columnIndex]); ok {
			values = append(values, value)
		}
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("no numeric values in column %q", result.Columns[columnIndex])
	}

	binCount := len(result.Rows) / binsPerRows
	if binCount > histogramBins {
		binCount = histogramBins
	}
	if binCount < 1 {
		binCount = 1
	}

	low, high := values[0], values[0]
	for _, value := range values[1:] {
		if value < low {
			low = value
		}
		if value > high {
			high = value
		}
	}
	width := (high - low) / float64(binCount)
	if width == 0 {
		width = 1
	}

	counts := make([]int, binCount)
	for _, value := range values {
		bin := int((value - low) / width)
		if bin >= binCount {
			bin = binCount - 1
		}
		counts[bin]++
	}

	bars := make([]chart.Value, binCount)
	for i, count := range counts {
		bars[i] = chart.Value{
			Label: fmt.Sprintf("%.1f", low+width*float64(i)),
			Value: float64(count),
		}
	}
	return renderBars(result.Columns[columnIndex], bars)
}

// renderBars draws the bar set with an explicit zero-based y range. go-chart
// refuses an implicit range when every bar carries the same value, which is
// routine for uniform histograms.
func renderBars(title string, bars []chart.Value) ([]byte, error) {
	if len(bars) == 0 {
		return nil, fmt.Errorf("no bars to render")
	}
	maxValue := bars[0].Value
	for _, bar := range bars[1:] {
		if bar.Value > maxValue {
			maxValue = bar.Value
		}
	}
	if maxValue <= 0 {
		maxValue = 1
	}

	graph := chart.BarChart{
		Title:    title,
		Width:    chartWidth,
		Height:   chartHeight,
		BarWidth: chartWidth / (2 * len(bars)),
		Bars:     bars,
		YAxis: chart.YAxis{
			Range: &chart.ContinuousRange{Min: 0, Max: maxValue},
		},
	}
	buf := bytes.NewBuffer(nil)
	if err := graph.Render(chart.PNG, buf); err != nil {
		return nil, fmt.Errorf("render bar chart: %w", err)
	}
	return buf.Bytes(), nil
}
