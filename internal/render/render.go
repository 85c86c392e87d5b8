// Package render converts Result values into human-readable or machine-parseable
// output. Each format is a separate function; the top-level Render dispatcher
// selects based on the format string.
package render

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/derickschaefer/kpiboard/internal/analyze"
	"github.com/derickschaefer/kpiboard/internal/chart"
	"github.com/derickschaefer/kpiboard/internal/controller"
	"github.com/derickschaefer/kpiboard/internal/format"
	"github.com/derickschaefer/kpiboard/internal/model"
)

// Format constants matching --format flag values.
const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatJSONL = "jsonl"
	FormatCSV   = "csv"
	FormatTSV   = "tsv"
	FormatMD    = "md"
)

// Formats lists every accepted --format value.
var Formats = []string{FormatTable, FormatJSON, FormatJSONL, FormatCSV, FormatTSV, FormatMD}

// Render writes result to w in the specified format.
func Render(w io.Writer, result *model.Result, format string) error {
	switch format {
	case FormatJSON:
		return renderJSON(w, result)
	case FormatJSONL:
		return renderJSONL(w, result)
	case FormatCSV:
		return renderDelimited(w, result, ',')
	case FormatTSV:
		return renderDelimited(w, result, '\t')
	case FormatMD:
		return renderMarkdown(w, result)
	default:
		return renderTable(w, result)
	}
}

// RenderTo writes to stdout by default; if path is non-empty, writes to file.
func RenderTo(path string, result *model.Result, format string) error {
	if path == "" {
		return Render(os.Stdout, result, format)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	defer f.Close()
	return Render(f, result, format)
}

// ─── JSON ─────────────────────────────────────────────────────────────────────

func renderJSON(w io.Writer, result *model.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// ─── JSONL ────────────────────────────────────────────────────────────────────

// jsonlRow is one line of a page: a metric card or a chart.
type jsonlRow struct {
	Page    string      `json:"page"`
	Kind    string      `json:"kind"`
	Title   string      `json:"title"`
	Value   string      `json:"value,omitempty"`
	Diff    *float64    `json:"diff,omitempty"`
	Type    string      `json:"type,omitempty"`
	Payload interface{} `json:"payload,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func renderJSONL(w io.Writer, result *model.Result) error {
	enc := json.NewEncoder(w)
	switch result.Kind {
	case model.KindPage:
		v, ok := result.Data.(controller.View)
		if !ok {
			return enc.Encode(result.Data)
		}
		for _, m := range v.Metrics {
			if err := enc.Encode(jsonlRow{
				Page: v.Page.Name, Kind: "metric", Title: m.Title, Value: m.Value, Diff: m.Raw.Diff,
			}); err != nil {
				return err
			}
		}
		for _, c := range v.Charts {
			row := jsonlRow{Page: v.Page.Name, Kind: "chart", Title: c.Title, Type: string(c.Type), Error: c.Error}
			if c.Chart != nil {
				row.Payload = c.Chart
			}
			if err := enc.Encode(row); err != nil {
				return err
			}
		}
		return nil
	case model.KindPages:
		pages, ok := result.Data.([]controller.Page)
		if !ok {
			return enc.Encode(result.Data)
		}
		for _, p := range pages {
			if err := enc.Encode(p); err != nil {
				return err
			}
		}
		return nil
	default:
		return enc.Encode(result.Data)
	}
}

// ─── Table ────────────────────────────────────────────────────────────────────

func renderTable(w io.Writer, result *model.Result) error {
	switch result.Kind {
	case model.KindPage:
		v, ok := result.Data.(controller.View)
		if !ok {
			return fmt.Errorf("unexpected data type for page")
		}
		return renderPageTable(w, v)
	case model.KindPages:
		pages, ok := result.Data.([]controller.Page)
		if !ok {
			return fmt.Errorf("unexpected data type for pages")
		}
		return renderPagesTable(w, pages)
	case model.KindChart:
		cv, ok := result.Data.(controller.ChartView)
		if !ok {
			return fmt.Errorf("unexpected data type for chart")
		}
		return renderChartText(w, cv)
	case model.KindOptions:
		cv, ok := result.Data.(controller.ChartView)
		if !ok {
			return fmt.Errorf("unexpected data type for options")
		}
		return renderOption(w, cv)
	case model.KindInsight:
		ir, ok := result.Data.(model.InsightReport)
		if !ok {
			return fmt.Errorf("unexpected data type for insight")
		}
		fmt.Fprintf(w, "%s\n\n%s\n\n", ir.Chart, ir.Insight)
		fmt.Fprintf(w, "Points remaining: %d\n", ir.Points)
		return nil
	case model.KindFilter:
		fr, ok := result.Data.(model.FilterReport)
		if !ok {
			return fmt.Errorf("unexpected data type for filter")
		}
		return renderFieldTable(w, filterRows(fr))
	case model.KindPoints:
		pr, ok := result.Data.(model.PointsReport)
		if !ok {
			return fmt.Errorf("unexpected data type for points")
		}
		return renderFieldTable(w, [][]string{
			{"Points", strconv.Itoa(pr.Points)},
			{"Insights available", strconv.FormatBool(pr.Available)},
		})
	case model.KindUpload:
		ur, ok := result.Data.(model.UploadReport)
		if !ok {
			return fmt.Errorf("unexpected data type for upload")
		}
		rows := [][]string{
			{"Page", ur.Page},
			{"File", ur.File},
			{"Metrics", strconv.Itoa(ur.Metrics)},
			{"Charts", strconv.Itoa(ur.Charts)},
		}
		if len(ur.Ignored) > 0 {
			rows = append(rows, []string{"Ignored", strings.Join(ur.Ignored, ", ")})
		}
		return renderFieldTable(w, rows)
	default:
		// Fallback: JSON
		return renderJSON(w, result)
	}
}

func newTable(w io.Writer, header []string) *tablewriter.Table {
	tw := tablewriter.NewWriter(w)
	tw.SetHeader(header)
	tw.SetBorder(true)
	tw.SetRowLine(false)
	tw.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	tw.SetAlignment(tablewriter.ALIGN_LEFT)
	tw.SetAutoWrapText(false)
	return tw
}

func renderPageTable(w io.Writer, v controller.View) error {
	fmt.Fprintf(w, "%s  [%s]  %s\n", v.Page.Title, v.Filter, v.Status)
	if v.Stale && !v.FetchedAt.IsZero() {
		fmt.Fprintf(w, "cached %s\n", v.FetchedAt.Local().Format("2006-01-02 15:04"))
	}
	if v.Notice != "" {
		fmt.Fprintf(w, "%s\n", v.Notice)
	}
	fmt.Fprintln(w)

	if len(v.Metrics) > 0 {
		tw := newTable(w, []string{"METRIC", "VALUE", "CHANGE"})
		tw.SetColumnAlignment([]int{
			tablewriter.ALIGN_LEFT,
			tablewriter.ALIGN_RIGHT,
			tablewriter.ALIGN_LEFT,
		})
		for _, m := range v.Metrics {
			tw.Append([]string{m.Title, m.Value, changeCell(m)})
		}
		tw.Render()
	}

	if len(v.Charts) > 0 {
		tw := newTable(w, []string{"CHART", "TYPE", "POINTS", "STATUS"})
		for _, c := range v.Charts {
			tw.Append([]string{c.Title, string(c.Type), chartSize(c), chartStatus(c)})
		}
		tw.Render()
	}

	if v.Insight != "" {
		fmt.Fprintf(w, "\n%s\n", v.Insight)
	}
	return nil
}

func changeCell(m controller.MetricView) string {
	if m.Diff == "" {
		return ""
	}
	if m.Positive {
		return "▲ " + m.Diff
	}
	return "▼ " + m.Diff
}

func chartSize(c controller.ChartView) string {
	switch {
	case c.Chart == nil:
		return ""
	case len(c.Items) > 0:
		return strconv.Itoa(len(c.Items))
	default:
		return strconv.Itoa(len(c.Chart.Categories))
	}
}

func chartStatus(c controller.ChartView) string {
	switch {
	case c.Error != "":
		return c.Error
	case c.Drill:
		return "drill"
	case c.Drillable:
		return "drillable → " + c.NextChart
	}
	return "ok"
}

func renderPagesTable(w io.Writer, pages []controller.Page) error {
	tw := newTable(w, []string{"PAGE", "TITLE", "ENDPOINT", "FILTERED"})
	for _, p := range pages {
		tw.Append([]string{p.Name, p.Title, p.Endpoint, strconv.FormatBool(p.Filtered)})
	}
	tw.Render()
	return nil
}

func renderFieldTable(w io.Writer, rows [][]string) error {
	tw := newTable(w, []string{"FIELD", "VALUE"})
	tw.SetColWidth(80)
	for _, r := range rows {
		tw.Append(r)
	}
	tw.Render()
	return nil
}

func filterRows(fr model.FilterReport) [][]string {
	rows := [][]string{
		{"Page", fr.Page},
		{"Preset", fr.Preset},
	}
	if fr.Start != "" || fr.End != "" {
		rows = append(rows, []string{"Start", fr.Start}, []string{"End", fr.End})
	}
	rows = append(rows,
		[]string{"Complete", strconv.FormatBool(fr.Complete)},
		[]string{"Sent as", fr.Wire},
	)
	return rows
}

// renderChartText draws a chart in the terminal, followed by its statistics
// and insight.
func renderChartText(w io.Writer, cv controller.ChartView) error {
	if cv.Error != "" {
		fmt.Fprintf(w, "%s\n  %s\n", cv.Title, cv.Error)
		return nil
	}
	if err := chart.Render(w, cv.Chart, cv.Type, chart.Options{}); err != nil {
		return err
	}
	if stats := analyze.Chart(cv.Chart); len(stats) > 0 && cv.Type != model.ChartGauge {
		fmt.Fprintln(w)
		renderStatsTable(w, stats)
	}
	if e := cv.Extra; e != nil {
		fmt.Fprintf(w, "\nvalue %s  avg %s  z %s  p %s\n",
			format.Stat(e.Value), format.Stat(e.HistoricalAvg), format.Stat(e.ZScore), format.Stat(e.PValue))
	}
	if cv.Insight.Text != "" {
		fmt.Fprintf(w, "\n%s\n", cv.Insight.Text)
	}
	return nil
}

func renderStatsTable(w io.Writer, stats []analyze.Summary) {
	tw := newTable(w, []string{"SERIES", "MIN", "MAX", "MEAN", "CHANGE", "TREND"})
	for _, st := range stats {
		if st.Count == st.Missing {
			tw.Append([]string{st.Series, "", "", "", "", ""})
			continue
		}
		change := format.Stat(st.Change)
		if st.ChangePct != nil {
			change += fmt.Sprintf(" (%+.1f%%)", *st.ChangePct)
		}
		tw.Append([]string{
			st.Series,
			format.Stat(st.Min) + atCategory(st.MinAt),
			format.Stat(st.Max) + atCategory(st.MaxAt),
			format.Stat(st.Mean),
			change,
			trendArrow(st.Trend),
		})
	}
	tw.Render()
}

func atCategory(c string) string {
	if c == "" {
		return ""
	}
	return " @ " + c
}

func trendArrow(t string) string {
	switch t {
	case "up":
		return "↗ up"
	case "down":
		return "↘ down"
	case "flat":
		return "→ flat"
	}
	return ""
}

func renderOption(w io.Writer, cv controller.ChartView) error {
	if cv.Error != "" {
		return fmt.Errorf("%s: %s", cv.Title, cv.Error)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if cv.Option == nil {
		return enc.Encode(map[string]interface{}{"title": cv.Title, "type": cv.Type, "items": cv.Items})
	}
	return enc.Encode(cv.Option)
}

// ─── CSV / TSV ────────────────────────────────────────────────────────────────

func renderDelimited(w io.Writer, result *model.Result, sep rune) error {
	cw := csv.NewWriter(w)
	cw.Comma = sep

	switch result.Kind {
	case model.KindPage:
		v, ok := result.Data.(controller.View)
		if !ok {
			return fmt.Errorf("unexpected data type for page")
		}
		_ = cw.Write([]string{"page", "filter", "metric", "value", "diff"})
		for _, m := range v.Metrics {
			diff := ""
			if m.Raw.Diff != nil {
				diff = formatValue(*m.Raw.Diff)
			}
			_ = cw.Write([]string{v.Page.Name, v.Filter.Key(), m.Title, m.Value, diff})
		}
	case model.KindChart:
		cv, ok := result.Data.(controller.ChartView)
		if !ok {
			return fmt.Errorf("unexpected data type for chart")
		}
		for _, row := range chartRows(cv) {
			_ = cw.Write(row)
		}
	case model.KindPages:
		pages, ok := result.Data.([]controller.Page)
		if !ok {
			return fmt.Errorf("unexpected data type for pages")
		}
		_ = cw.Write([]string{"name", "title", "endpoint", "filtered"})
		for _, p := range pages {
			_ = cw.Write([]string{p.Name, p.Title, p.Endpoint, strconv.FormatBool(p.Filtered)})
		}
	default:
		// Fallback: serialize as JSON on a single line
		b, _ := json.Marshal(result.Data)
		_ = cw.Write([]string{string(b)})
	}

	cw.Flush()
	return cw.Error()
}

// chartRows flattens a chart into a header plus one row per category, one
// column per series. List charts produce a single "item" column.
func chartRows(cv controller.ChartView) [][]string {
	if cv.Chart == nil {
		return [][]string{{"title", "error"}, {cv.Title, cv.Error}}
	}
	if len(cv.Items) > 0 || cv.Type == model.ChartList {
		rows := [][]string{{"item"}}
		for _, it := range cv.Items {
			rows = append(rows, []string{it})
		}
		return rows
	}
	c := cv.Chart
	header := []string{"category"}
	for _, s := range c.Series {
		header = append(header, s.Name)
	}
	rows := [][]string{header}
	for i, cat := range c.Categories {
		row := []string{cat}
		for _, s := range c.Series {
			row = append(row, formatValue(s.Values[i]))
		}
		rows = append(rows, row)
	}
	return rows
}

// ─── Markdown ─────────────────────────────────────────────────────────────────

func renderMarkdown(w io.Writer, result *model.Result) error {
	switch result.Kind {
	case model.KindPage:
		v, ok := result.Data.(controller.View)
		if !ok {
			return renderJSON(w, result)
		}
		fmt.Fprintf(w, "## %s (%s)\n\n", mdEscape(v.Page.Title), mdEscape(v.Filter.String()))
		fmt.Fprintf(w, "| METRIC | VALUE | CHANGE |\n|--------|-------|--------|\n")
		for _, m := range v.Metrics {
			fmt.Fprintf(w, "| %s | %s | %s |\n", mdEscape(m.Title), mdEscape(m.Value), mdEscape(changeCell(m)))
		}
		for _, c := range v.Charts {
			fmt.Fprintf(w, "\n### %s\n\n", mdEscape(c.Title))
			writeMarkdownRows(w, chartRows(c))
		}
		return nil
	case model.KindChart:
		cv, ok := result.Data.(controller.ChartView)
		if !ok {
			return renderJSON(w, result)
		}
		fmt.Fprintf(w, "### %s\n\n", mdEscape(cv.Title))
		writeMarkdownRows(w, chartRows(cv))
		return nil
	case model.KindPages:
		pages, ok := result.Data.([]controller.Page)
		if !ok {
			return renderJSON(w, result)
		}
		fmt.Fprintf(w, "| PAGE | TITLE | ENDPOINT |\n|------|-------|----------|\n")
		for _, p := range pages {
			fmt.Fprintf(w, "| %s | %s | %s |\n", p.Name, mdEscape(p.Title), p.Endpoint)
		}
		return nil
	default:
		return renderJSON(w, result)
	}
}

func writeMarkdownRows(w io.Writer, rows [][]string) {
	if len(rows) == 0 {
		return
	}
	cells := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		cells[i] = strings.ToUpper(mdEscape(h))
	}
	fmt.Fprintf(w, "| %s |\n", strings.Join(cells, " | "))
	fmt.Fprintf(w, "|%s\n", strings.Repeat("----|", len(cells)))
	for _, r := range rows[1:] {
		for i := range r {
			r[i] = mdEscape(r[i])
		}
		fmt.Fprintf(w, "| %s |\n", strings.Join(r, " | "))
	}
}

// ─── Warnings / Stats Footer ─────────────────────────────────────────────────

// PrintFooter writes warnings and stats to w when verbose mode is on.
func PrintFooter(w io.Writer, result *model.Result, verbose bool) {
	for _, warn := range result.Warnings {
		fmt.Fprintf(w, "⚠  %s\n", warn)
	}
	if verbose {
		src := "live"
		if result.Stats.CacheHit {
			src = "cache"
		}
		fmt.Fprintf(w, "\n[%s • %d items • %dms • %s]\n",
			result.GeneratedAt.Format(time.RFC3339),
			result.Stats.Items,
			result.Stats.DurationMs,
			src,
		)
	}
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// formatValue formats a chart value for export.
// Always shows at least one decimal place (e.g. 4.0, not 4).
// Trims unnecessary trailing zeros beyond the first (e.g. 3.400000 → 3.4).
func formatValue(v float64) string {
	s := strings.TrimRight(fmt.Sprintf("%.6f", v), "0")
	if strings.HasSuffix(s, ".") {
		s += "0"
	}
	return s
}

func mdEscape(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	s = strings.ReplaceAll(s, "\n", " ")
	return s
}
