// Package chart renders normalized charts in the terminal and exports them
// as SVG or PNG images.
//
// Terminal renderers, chosen by visual type:
//
//   - Bar: horizontal bars, one per category (bar, horizontal_bar)
//   - Stacked: segmented bars, one segment per series (stacked_bar)
//   - Plot: line plot via asciigraph (line, area, double_bar_dual_axis)
//   - Shares: pie and donut slices as percentage bars
//   - Gauge: a single progress bar
//   - List: bulleted items
package chart

import (
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/guptarohit/asciigraph"

	"github.com/derickschaefer/kpiboard/internal/model"
)

// Options controls terminal rendering.
type Options struct {
	// Width is the total character width available for the chart.
	// If 0, auto-detects from $COLUMNS, falls back to 80.
	Width int
	// Height is the number of plot rows for line charts. If 0, defaults to 12.
	Height int
	// Color enables ANSI series colours in line plots.
	Color bool
}

// Render draws c as visual to w.
func Render(w io.Writer, c *model.NormalizedChart, visual model.ChartType, opts Options) error {
	if c == nil {
		return fmt.Errorf("chart: nil chart")
	}
	if visual == "" {
		visual = c.Type
	}
	if opts.Width <= 0 {
		opts.Width = termWidth()
	}
	if opts.Height <= 0 {
		opts.Height = 12
	}

	switch visual {
	case model.ChartList:
		return List(w, c)
	case model.ChartPie, model.ChartDonut:
		return Shares(w, c, opts)
	case model.ChartBar, model.ChartHorizontal:
		return Bar(w, c, opts)
	case model.ChartStacked:
		return Stacked(w, c, opts)
	case model.ChartLine, model.ChartArea, model.ChartDualAxis:
		return Plot(w, c, visual, opts)
	case model.ChartGauge:
		return Gauge(w, c, opts)
	default:
		return fmt.Errorf("chart %q: no terminal renderer for %q", c.Title, visual)
	}
}

func empty(c *model.NormalizedChart) bool {
	return len(c.Categories) == 0 || len(c.Series) == 0
}

// ─── Bar ─────────────────────────────────────────────────────────────────────

// Bar renders one horizontal bar per category. Multi-series charts print a
// block per series. Negative values extend left of a zero line.
//
// Output example:
//
//	Top Cities
//	NYC  40.0  ████████████████████
//	LA   25.0  ████████████
func Bar(w io.Writer, c *model.NormalizedChart, opts Options) error {
	fmt.Fprintln(w, c.Title)
	if empty(c) {
		fmt.Fprintln(w, "  (no data)")
		return nil
	}
	for i, s := range c.Series {
		if len(c.Series) > 1 {
			if i > 0 {
				fmt.Fprintln(w)
			}
			fmt.Fprintf(w, "  %s\n", s.Name)
		}
		writeBars(w, c.Categories, s.Values, opts.Width)
	}
	return nil
}

func writeBars(w io.Writer, labels []string, values []float64, totalWidth int) {
	minVal, maxVal := values[0], values[0]
	for _, v := range values[1:] {
		minVal = math.Min(minVal, v)
		maxVal = math.Max(maxVal, v)
	}
	// Bars grow from zero unless every value is negative.
	if minVal > 0 {
		minVal = 0
	}

	labelWidth := 0
	for _, l := range labels {
		if n := len([]rune(l)); n > labelWidth {
			labelWidth = n
		}
	}
	valWidth := 0
	for _, v := range values {
		if l := len(formatFloat(v)); l > valWidth {
			valWidth = l
		}
	}

	barAreaWidth := totalWidth - labelWidth - valWidth - 4
	if barAreaWidth < 4 {
		barAreaWidth = 4
	}

	valRange := maxVal - minVal
	if valRange == 0 {
		valRange = 1
	}

	hasNeg := minVal < 0
	var zeroPos int
	if hasNeg {
		zeroPos = int(math.Round((-minVal / valRange) * float64(barAreaWidth-1)))
	}

	for i, v := range values {
		var bar string
		if hasNeg {
			bar = buildBiBar(v, minVal, maxVal, barAreaWidth, zeroPos)
		} else {
			barLen := int(math.Round((v - minVal) / valRange * float64(barAreaWidth)))
			if barLen < 1 && v > 0 {
				barLen = 1
			}
			if barLen > barAreaWidth {
				barLen = barAreaWidth
			}
			bar = strings.Repeat("█", barLen)
		}
		fmt.Fprintf(w, "%s  %*s  %s\n", padRight(labels[i], labelWidth), valWidth, formatFloat(v), bar)
	}
}

// buildBiBar renders a bar that may extend left (negative) or right (positive)
// from a zero baseline at zeroPos within a field of width barAreaWidth.
func buildBiBar(val, minVal, maxVal float64, barAreaWidth, zeroPos int) string {
	valRange := maxVal - minVal
	buf := []rune(strings.Repeat(" ", barAreaWidth))

	if zeroPos >= 0 && zeroPos < barAreaWidth {
		buf[zeroPos] = '│'
	}

	if val >= 0 {
		end := zeroPos + int(math.Round(val/valRange*float64(barAreaWidth-1)))
		for i := zeroPos + 1; i <= end && i < barAreaWidth; i++ {
			buf[i] = '█'
		}
	} else {
		start := zeroPos - int(math.Round((-val)/valRange*float64(barAreaWidth-1)))
		if start < 0 {
			start = 0
		}
		for i := start; i < zeroPos && i < barAreaWidth; i++ {
			buf[i] = '█'
		}
	}

	return string(buf)
}

// ─── Stacked ──────────────────────────────────────────────────────────────────

var segmentRunes = []rune{'█', '▓', '▒', '░'}

// Stacked renders one bar per category made of one segment per series,
// scaled to the largest category total. Negative values count as zero.
func Stacked(w io.Writer, c *model.NormalizedChart, opts Options) error {
	fmt.Fprintln(w, c.Title)
	if empty(c) {
		fmt.Fprintln(w, "  (no data)")
		return nil
	}

	totals := make([]float64, len(c.Categories))
	for _, s := range c.Series {
		for i, v := range s.Values {
			totals[i] += math.Max(v, 0)
		}
	}
	maxTotal := 0.0
	labelWidth, valWidth := 0, 0
	for i, t := range totals {
		maxTotal = math.Max(maxTotal, t)
		if n := len([]rune(c.Categories[i])); n > labelWidth {
			labelWidth = n
		}
		if n := len(formatFloat(t)); n > valWidth {
			valWidth = n
		}
	}
	if maxTotal == 0 {
		maxTotal = 1
	}
	barAreaWidth := opts.Width - labelWidth - valWidth - 4
	if barAreaWidth < 4 {
		barAreaWidth = 4
	}

	for i, cat := range c.Categories {
		var sb strings.Builder
		for si, s := range c.Series {
			n := int(math.Round(math.Max(s.Values[i], 0) / maxTotal * float64(barAreaWidth)))
			sb.WriteString(strings.Repeat(string(segmentRunes[si%len(segmentRunes)]), n))
		}
		fmt.Fprintf(w, "%s  %*s  %s\n", padRight(cat, labelWidth), valWidth, formatFloat(totals[i]), sb.String())
	}

	legend := make([]string, len(c.Series))
	for si, s := range c.Series {
		legend[si] = string(segmentRunes[si%len(segmentRunes)]) + " " + s.Name
	}
	fmt.Fprintf(w, "%s\n", strings.Join(legend, "   "))
	return nil
}

// ─── Plot ─────────────────────────────────────────────────────────────────────

var seriesColors = []asciigraph.AnsiColor{
	asciigraph.Blue, asciigraph.Green, asciigraph.Yellow,
	asciigraph.Red, asciigraph.Magenta, asciigraph.Cyan,
}

// Plot renders series as an asciigraph line plot. Dual-axis charts get one
// plot per value axis so each keeps its own scale.
func Plot(w io.Writer, c *model.NormalizedChart, visual model.ChartType, opts Options) error {
	if empty(c) {
		fmt.Fprintf(w, "%s\n  (no data)\n", c.Title)
		return nil
	}

	groups := [][]model.Series{c.Series}
	if visual == model.ChartDualAxis {
		byAxis := map[int][]model.Series{}
		maxAxis := 0
		for _, s := range c.Series {
			byAxis[s.AxisIndex] = append(byAxis[s.AxisIndex], s)
			if s.AxisIndex > maxAxis {
				maxAxis = s.AxisIndex
			}
		}
		groups = groups[:0]
		for i := 0; i <= maxAxis; i++ {
			if len(byAxis[i]) > 0 {
				groups = append(groups, byAxis[i])
			}
		}
	}

	fmt.Fprintln(w, c.Title)
	for gi, group := range groups {
		if gi > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintln(w, plotGroup(c, group, opts))
	}
	return nil
}

func plotGroup(c *model.NormalizedChart, group []model.Series, opts Options) string {
	data := make([][]float64, len(group))
	names := make([]string, len(group))
	for i, s := range group {
		vals := s.Values
		// asciigraph needs two points to draw a line.
		if len(vals) == 1 {
			vals = []float64{vals[0], vals[0]}
		}
		data[i] = vals
		names[i] = s.Name
	}

	plotWidth := opts.Width - 12
	if plotWidth < 10 {
		plotWidth = 10
	}
	caption := categoryRange(c.Categories)
	if len(group) > 1 || len(c.Series) > 1 {
		caption = strings.Join(names, ", ") + "  " + caption
	}

	options := []asciigraph.Option{
		asciigraph.Height(opts.Height),
		asciigraph.Width(plotWidth),
		asciigraph.Caption(caption),
	}
	if opts.Color {
		colors := make([]asciigraph.AnsiColor, len(group))
		for i := range group {
			colors[i] = seriesColors[i%len(seriesColors)]
		}
		options = append(options, asciigraph.SeriesColors(colors...))
	}
	return asciigraph.PlotMany(data, options...)
}

func categoryRange(cats []string) string {
	switch len(cats) {
	case 0:
		return ""
	case 1:
		return cats[0]
	}
	return cats[0] + " to " + cats[len(cats)-1]
}

// ─── Shares ───────────────────────────────────────────────────────────────────

// Shares renders pie and donut charts as one percentage bar per slice.
func Shares(w io.Writer, c *model.NormalizedChart, opts Options) error {
	fmt.Fprintln(w, c.Title)
	if empty(c) {
		fmt.Fprintln(w, "  (no data)")
		return nil
	}
	values := c.Series[0].Values
	total := 0.0
	for _, v := range values {
		total += math.Max(v, 0)
	}
	if total == 0 {
		total = 1
	}

	labelWidth := 0
	for _, l := range c.Categories {
		if n := len([]rune(l)); n > labelWidth {
			labelWidth = n
		}
	}
	barAreaWidth := opts.Width - labelWidth - 10
	if barAreaWidth < 4 {
		barAreaWidth = 4
	}
	for i, cat := range c.Categories {
		share := math.Max(values[i], 0) / total
		n := int(math.Round(share * float64(barAreaWidth)))
		fmt.Fprintf(w, "%s  %5.1f%%  %s\n", padRight(cat, labelWidth), share*100, strings.Repeat("█", n))
	}
	return nil
}

// ─── Gauge ────────────────────────────────────────────────────────────────────

// Gauge renders a 0..1 fraction as a percentage progress bar.
func Gauge(w io.Writer, c *model.NormalizedChart, opts Options) error {
	fmt.Fprintln(w, c.Title)
	if len(c.Series) == 0 || len(c.Series[0].Values) == 0 {
		fmt.Fprintln(w, "  (no data)")
		return nil
	}
	frac := c.Series[0].Values[0]
	clamped := math.Min(math.Max(frac, 0), 1)

	width := opts.Width - 12
	if width < 10 {
		width = 10
	}
	filled := int(math.Round(clamped * float64(width)))
	fmt.Fprintf(w, "[%s%s] %s%%\n",
		strings.Repeat("█", filled),
		strings.Repeat("░", width-filled),
		strconv.FormatFloat(math.Round(frac*10000)/100, 'f', -1, 64),
	)
	return nil
}

// ─── List ─────────────────────────────────────────────────────────────────────

// List renders list items, one per line.
func List(w io.Writer, c *model.NormalizedChart) error {
	fmt.Fprintln(w, c.Title)
	if len(c.ListItems) == 0 {
		fmt.Fprintln(w, "  (no items)")
		return nil
	}
	for _, li := range c.ListItems {
		if li.Time != "" {
			fmt.Fprintf(w, "  • %s  %s\n", li.Time, li.String())
			continue
		}
		fmt.Fprintf(w, "  • %s\n", li.String())
	}
	return nil
}

// ─── Utilities ────────────────────────────────────────────────────────────────

// formatFloat formats a float for axis labels: no unnecessary trailing zeros,
// at least one decimal place, compact notation for large/small numbers.
func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return "."
	}
	abs := math.Abs(v)
	var s string
	switch {
	case abs == 0:
		return "0"
	case abs >= 1e6:
		s = strconv.FormatFloat(v/1e6, 'f', 1, 64) + "M"
	case abs >= 1e3:
		s = strconv.FormatFloat(v/1e3, 'f', 1, 64) + "K"
	case abs >= 100:
		s = strconv.FormatFloat(v, 'f', 1, 64)
	case abs >= 1:
		s = strconv.FormatFloat(v, 'f', 2, 64)
	default:
		s = strconv.FormatFloat(v, 'f', 4, 64)
	}
	if strings.Contains(s, ".") && !strings.Contains(s, "M") && !strings.Contains(s, "K") {
		s = strings.TrimRight(s, "0")
		if strings.HasSuffix(s, ".") {
			s += "0"
		}
	}
	return s
}

func padRight(s string, width int) string {
	if n := len([]rune(s)); n < width {
		return s + strings.Repeat(" ", width-n)
	}
	return s
}

// termWidth returns the terminal width from $COLUMNS, defaulting to 80.
func termWidth() int {
	if cols := os.Getenv("COLUMNS"); cols != "" {
		if n, err := strconv.Atoi(cols); err == nil && n > 20 {
			return n
		}
	}
	return 80
}
