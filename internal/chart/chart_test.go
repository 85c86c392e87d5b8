package chart_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/derickschaefer/kpiboard/internal/chart"
	"github.com/derickschaefer/kpiboard/internal/model"
)

// ─── Helpers ──────────────────────────────────────────────────────────────────

// single builds a one-series chart from alternating (label, value) pairs.
func single(title string, pairs ...interface{}) *model.NormalizedChart {
	c := &model.NormalizedChart{Title: title, Type: model.ChartBar}
	var vals []float64
	for i := 0; i < len(pairs)-1; i += 2 {
		c.Categories = append(c.Categories, pairs[i].(string))
		vals = append(vals, pairs[i+1].(float64))
	}
	c.Series = []model.Series{{Name: title, Values: vals}}
	return c
}

func render(t *testing.T, c *model.NormalizedChart, visual model.ChartType) string {
	t.Helper()
	var buf bytes.Buffer
	if err := chart.Render(&buf, c, visual, chart.Options{Width: 60, Height: 6}); err != nil {
		t.Fatalf("Render(%s) returned error: %v", visual, err)
	}
	return buf.String()
}

func lines(s string) []string {
	return strings.Split(strings.TrimRight(s, "\n"), "\n")
}

// ─── Bar ──────────────────────────────────────────────────────────────────────

func TestBarBasic(t *testing.T) {
	out := render(t, single("Top Cities", "NYC", 40.0, "LA", 25.0, "SF", 10.0), model.ChartBar)

	ls := lines(out)
	if len(ls) != 4 {
		t.Fatalf("expected 4 lines (1 header + 3 bars), got %d:\n%s", len(ls), out)
	}
	if ls[0] != "Top Cities" {
		t.Errorf("header: expected %q, got %q", "Top Cities", ls[0])
	}
	for _, line := range ls[1:] {
		if !strings.Contains(line, "█") {
			t.Errorf("bar line missing block character: %q", line)
		}
	}
	if strings.Count(ls[1], "█") <= strings.Count(ls[3], "█") {
		t.Errorf("largest value should draw the longest bar:\n%s", out)
	}
}

func TestBarDefaultsToDeclaredType(t *testing.T) {
	c := single("Sales", "Q1", 1.0, "Q2", 2.0)
	var buf bytes.Buffer
	if err := chart.Render(&buf, c, "", chart.Options{Width: 40}); err != nil {
		t.Fatalf("Render returned error: %v", err)
	}
	if !strings.Contains(buf.String(), "█") {
		t.Errorf("expected a bar rendering, got:\n%s", buf.String())
	}
}

func TestBarNegativeValues(t *testing.T) {
	out := render(t, single("Growth", "Jan", -5.0, "Feb", 3.0, "Mar", 8.0), model.ChartHorizontal)
	if !strings.Contains(out, "│") {
		t.Error("bidirectional bar missing zero-line │ character")
	}
	neg := lines(out)[1]
	if !strings.Contains(neg, "█") {
		t.Errorf("negative bar missing block characters: %q", neg)
	}
}

func TestBarFlatSeries(t *testing.T) {
	out := render(t, single("Flat", "a", 5.0, "b", 5.0), model.ChartBar)
	if len(lines(out)) != 3 {
		t.Errorf("expected 3 lines, got:\n%s", out)
	}
}

func TestBarMultiSeries(t *testing.T) {
	c := &model.NormalizedChart{
		Title:      "Fees",
		Categories: []string{"Stripe", "PayPal"},
		Series: []model.Series{
			{Name: "2023", Values: []float64{10, 20}},
			{Name: "2024", Values: []float64{15, 18}},
		},
	}
	out := render(t, c, model.ChartBar)
	if !strings.Contains(out, "2023") || !strings.Contains(out, "2024") {
		t.Errorf("expected a block per series, got:\n%s", out)
	}
}

func TestBarEmpty(t *testing.T) {
	out := render(t, &model.NormalizedChart{Title: "Nothing"}, model.ChartBar)
	if !strings.Contains(out, "(no data)") {
		t.Errorf("expected no-data marker, got:\n%s", out)
	}
}

// ─── Stacked ──────────────────────────────────────────────────────────────────

func TestStackedLegend(t *testing.T) {
	c := &model.NormalizedChart{
		Title:      "Channels",
		Categories: []string{"Jan", "Feb"},
		Series: []model.Series{
			{Name: "web", Values: []float64{3, 4}},
			{Name: "store", Values: []float64{1, 2}},
		},
	}
	out := render(t, c, model.ChartStacked)
	if !strings.Contains(out, "█ web") || !strings.Contains(out, "▓ store") {
		t.Errorf("legend missing series names:\n%s", out)
	}
	if !strings.Contains(lines(out)[2], "6") {
		t.Errorf("Feb row should show its total 6.0: %q", lines(out)[2])
	}
}

// ─── Plot ─────────────────────────────────────────────────────────────────────

func TestPlotBasic(t *testing.T) {
	c := single("Revenue", "Jan", 1.0, "Feb", 3.0, "Mar", 2.0, "Apr", 5.0)
	out := render(t, c, model.ChartLine)

	if lines(out)[0] != "Revenue" {
		t.Errorf("header: expected %q, got %q", "Revenue", lines(out)[0])
	}
	if !strings.Contains(out, "Jan to Apr") {
		t.Error("caption missing category range")
	}
	if !strings.Contains(out, "┤") {
		t.Error("output missing y axis")
	}
}

func TestPlotSinglePoint(t *testing.T) {
	out := render(t, single("One", "Jan", 4.0), model.ChartArea)
	if !strings.Contains(out, "Jan") {
		t.Errorf("expected caption with the only category, got:\n%s", out)
	}
}

func TestPlotDualAxisSplitsAxes(t *testing.T) {
	c := &model.NormalizedChart{
		Title:      "Volume vs Rate",
		Categories: []string{"Jan", "Feb", "Mar"},
		Series: []model.Series{
			{Name: "volume", Values: []float64{1000, 1200, 900}},
			{Name: "rate", Values: []float64{0.1, 0.2, 0.15}, AxisIndex: 1},
		},
	}
	out := render(t, c, model.ChartDualAxis)
	if strings.Count(out, "Jan to Mar") != 2 {
		t.Errorf("expected one plot per axis, got:\n%s", out)
	}
}

// ─── Shares, Gauge, List ──────────────────────────────────────────────────────

func TestSharesPercentages(t *testing.T) {
	out := render(t, single("Mix", "card", 3.0, "cash", 1.0), model.ChartPie)
	if !strings.Contains(out, "75.0%") || !strings.Contains(out, "25.0%") {
		t.Errorf("expected 75/25 split, got:\n%s", out)
	}
}

func TestGauge(t *testing.T) {
	c := &model.NormalizedChart{
		Title:      "Fraud Rate",
		Categories: []string{"Fraud Rate"},
		Series:     []model.Series{{Name: "Fraud Rate", Values: []float64{0.25}}},
	}
	out := render(t, c, model.ChartGauge)
	if !strings.Contains(out, "25%") {
		t.Errorf("expected 25%%, got:\n%s", out)
	}
	if !strings.Contains(out, "░") {
		t.Errorf("expected an unfilled remainder, got:\n%s", out)
	}
}

func TestList(t *testing.T) {
	c := &model.NormalizedChart{
		Title: "Activity",
		Type:  model.ChartList,
		ListItems: []model.ListItem{
			{Text: "plain"},
			{Type: "alert", Message: "spike", Time: "10:00"},
		},
	}
	out := render(t, c, model.ChartList)
	if !strings.Contains(out, "• plain") {
		t.Errorf("missing plain item:\n%s", out)
	}
	if !strings.Contains(out, "10:00  [alert] spike") {
		t.Errorf("missing event item:\n%s", out)
	}
}

func TestRenderUnknownType(t *testing.T) {
	var buf bytes.Buffer
	err := chart.Render(&buf, single("x", "a", 1.0), "sparkline", chart.Options{})
	if err == nil {
		t.Fatal("expected error for unknown type, got nil")
	}
}

func TestRenderNil(t *testing.T) {
	if err := chart.Render(&bytes.Buffer{}, nil, model.ChartBar, chart.Options{}); err == nil {
		t.Error("expected error for nil chart")
	}
}

func TestWidthFromEnv(t *testing.T) {
	t.Setenv("COLUMNS", "120")
	var buf bytes.Buffer
	if err := chart.Render(&buf, single("Wide", "a", 1.0), model.ChartBar, chart.Options{}); err != nil {
		t.Fatalf("Render returned error: %v", err)
	}
	bar := lines(buf.String())[1]
	if n := strings.Count(bar, "█"); n < 100 {
		t.Errorf("expected a bar filling COLUMNS=120, got %d blocks", n)
	}
}
