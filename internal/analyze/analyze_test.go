package analyze_test

import (
	"errors"
	"math"
	"testing"

	"github.com/derickschaefer/kpiboard/internal/analyze"
	"github.com/derickschaefer/kpiboard/internal/model"
)

func approxEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

// ─── Summarize ────────────────────────────────────────────────────────────────

func TestSummarizeBasicCounts(t *testing.T) {
	s := analyze.Summarize("Revenue", []float64{1, 2, math.NaN(), 4, 5}, nil)

	if s.Series != "Revenue" {
		t.Errorf("Series: expected Revenue, got %q", s.Series)
	}
	if s.Count != 5 {
		t.Errorf("Count: expected 5, got %d", s.Count)
	}
	if s.Missing != 1 {
		t.Errorf("Missing: expected 1, got %d", s.Missing)
	}
}

func TestSummarizeMeanAndStd(t *testing.T) {
	s := analyze.Summarize("x", []float64{2, 4, 4, 4, 5, 5, 7, 9}, nil)
	if !approxEqual(s.Mean, 5.0, 1e-9) {
		t.Errorf("Mean: expected 5.0, got %g", s.Mean)
	}
	// Sample std of this set is sqrt(32/7).
	if !approxEqual(s.Std, math.Sqrt(32.0/7.0), 1e-9) {
		t.Errorf("Std: expected %g, got %g", math.Sqrt(32.0/7.0), s.Std)
	}
}

func TestSummarizeMinMaxCategories(t *testing.T) {
	s := analyze.Summarize("Sales",
		[]float64{30, 10, 50, 20},
		[]string{"Jan", "Feb", "Mar", "Apr"})
	if s.Min != 10 || s.Max != 50 {
		t.Errorf("Min/Max: expected 10/50, got %g/%g", s.Min, s.Max)
	}
	if s.MinAt != "Feb" || s.MaxAt != "Mar" {
		t.Errorf("MinAt/MaxAt: expected Feb/Mar, got %q/%q", s.MinAt, s.MaxAt)
	}
}

func TestSummarizeCategoriesLengthMismatch(t *testing.T) {
	s := analyze.Summarize("x", []float64{1, 2, 3}, []string{"a"})
	if s.MinAt != "" || s.MaxAt != "" {
		t.Errorf("expected no category names on mismatch, got %q/%q", s.MinAt, s.MaxAt)
	}
}

func TestSummarizePercentiles(t *testing.T) {
	s := analyze.Summarize("x", []float64{1, 2, 3, 4, 5}, nil)
	if !approxEqual(s.Median, 3, 1e-9) {
		t.Errorf("Median: expected 3, got %g", s.Median)
	}
	if !approxEqual(s.P25, 2, 1e-9) || !approxEqual(s.P75, 4, 1e-9) {
		t.Errorf("P25/P75: expected 2/4, got %g/%g", s.P25, s.P75)
	}

	even := analyze.Summarize("x", []float64{4, 1, 3, 2}, nil)
	if !approxEqual(even.Median, 2.5, 1e-9) {
		t.Errorf("even Median: expected 2.5, got %g", even.Median)
	}
}

func TestSummarizeFirstLastSkipMissing(t *testing.T) {
	s := analyze.Summarize("x", []float64{math.NaN(), 10, 20, math.Inf(1)}, nil)
	if s.First != 10 || s.Last != 20 {
		t.Errorf("First/Last: expected 10/20, got %g/%g", s.First, s.Last)
	}
	if s.Missing != 2 {
		t.Errorf("Missing: expected 2, got %d", s.Missing)
	}
}

func TestSummarizeChange(t *testing.T) {
	s := analyze.Summarize("x", []float64{100, 90, 125}, nil)
	if !approxEqual(s.Change, 25, 1e-9) {
		t.Errorf("Change: expected 25, got %g", s.Change)
	}
	if s.ChangePct == nil || !approxEqual(*s.ChangePct, 25, 1e-9) {
		t.Errorf("ChangePct: expected 25, got %v", s.ChangePct)
	}
}

func TestSummarizeChangeZeroFirst(t *testing.T) {
	s := analyze.Summarize("x", []float64{0, 5}, nil)
	if s.ChangePct != nil {
		t.Errorf("ChangePct should be nil when the first value is zero, got %g", *s.ChangePct)
	}
}

func TestSummarizeNoFiniteValues(t *testing.T) {
	for _, vals := range [][]float64{nil, {math.NaN(), math.NaN()}} {
		s := analyze.Summarize("x", vals, nil)
		if s.Mean != 0 || s.Min != 0 || s.Max != 0 || s.Trend != "" {
			t.Errorf("expected zero statistics for %v, got %+v", vals, s)
		}
		if s.Missing != len(vals) {
			t.Errorf("Missing: expected %d, got %d", len(vals), s.Missing)
		}
	}
}

func TestSummarizeSingleValue(t *testing.T) {
	s := analyze.Summarize("Gauge", []float64{72}, nil)
	if s.Std != 0 {
		t.Errorf("Std of one value: expected 0, got %g", s.Std)
	}
	if s.Median != 72 || s.Min != 72 || s.Max != 72 {
		t.Errorf("single value statistics wrong: %+v", s)
	}
	if s.Trend != "" {
		t.Errorf("one point has no trend, got %q", s.Trend)
	}
}

func TestChartSummarizesEverySeries(t *testing.T) {
	c := &model.NormalizedChart{
		Categories: []string{"Q1", "Q2", "Q3"},
		Series: []model.Series{
			{Name: "Revenue", Values: []float64{10, 20, 30}},
			{Name: "Cost", Values: []float64{30, 20, 10}},
		},
	}
	got := analyze.Chart(c)
	if len(got) != 2 {
		t.Fatalf("expected 2 summaries, got %d", len(got))
	}
	if got[0].Trend != "up" || got[1].Trend != "down" {
		t.Errorf("trends: expected up/down, got %s/%s", got[0].Trend, got[1].Trend)
	}
	if got[1].MaxAt != "Q1" {
		t.Errorf("Cost MaxAt: expected Q1, got %q", got[1].MaxAt)
	}

	list := &model.NormalizedChart{ListItems: []model.ListItem{{Text: "a"}}}
	if analyze.Chart(list) != nil || analyze.Chart(nil) != nil {
		t.Error("list and nil charts should have no summaries")
	}
}

// ─── Trend ────────────────────────────────────────────────────────────────────

func TestTrendLinearUpward(t *testing.T) {
	tr, err := analyze.Trend([]float64{1, 2, 3, 4, 5}, analyze.TrendLinear)
	if err != nil {
		t.Fatalf("Trend: %v", err)
	}
	if !approxEqual(tr.Slope, 1, 1e-9) || !approxEqual(tr.Intercept, 1, 1e-9) {
		t.Errorf("expected slope 1 intercept 1, got %g %g", tr.Slope, tr.Intercept)
	}
	if !approxEqual(tr.R2, 1, 1e-9) {
		t.Errorf("R2 of a perfect line: expected 1, got %g", tr.R2)
	}
	if tr.Direction != "up" {
		t.Errorf("Direction: expected up, got %q", tr.Direction)
	}
}

func TestTrendLinearDownward(t *testing.T) {
	tr, err := analyze.Trend([]float64{50, 40, 30, 20}, analyze.TrendLinear)
	if err != nil {
		t.Fatalf("Trend: %v", err)
	}
	if tr.Direction != "down" {
		t.Errorf("Direction: expected down, got %q", tr.Direction)
	}
}

func TestTrendFlatRelativeToScale(t *testing.T) {
	// A one-unit rise over a mean of ~10,000 is flat.
	tr, err := analyze.Trend([]float64{10000, 10000.5, 10001}, analyze.TrendLinear)
	if err != nil {
		t.Fatalf("Trend: %v", err)
	}
	if tr.Direction != "flat" {
		t.Errorf("Direction: expected flat, got %q", tr.Direction)
	}
}

func TestTrendKeepsGapPositions(t *testing.T) {
	// Index 1 is missing; the remaining points still lie on y = 2x.
	tr, err := analyze.Trend([]float64{0, math.NaN(), 4, 6}, analyze.TrendLinear)
	if err != nil {
		t.Fatalf("Trend: %v", err)
	}
	if !approxEqual(tr.Slope, 2, 1e-9) {
		t.Errorf("Slope: expected 2, got %g", tr.Slope)
	}
}

func TestTrendTooFewPoints(t *testing.T) {
	for _, vals := range [][]float64{nil, {1}, {1, math.NaN()}} {
		if _, err := analyze.Trend(vals, analyze.TrendLinear); !errors.Is(err, analyze.ErrTooFewPoints) {
			t.Errorf("%v: expected ErrTooFewPoints, got %v", vals, err)
		}
	}
}

func TestTrendTheilSenResistsOutlier(t *testing.T) {
	vals := []float64{1, 2, 3, 4, 100, 6, 7}
	ts, err := analyze.Trend(vals, analyze.TrendTheilSen)
	if err != nil {
		t.Fatalf("Trend: %v", err)
	}
	if ts.Method != analyze.TrendTheilSen {
		t.Errorf("Method: expected theil-sen, got %q", ts.Method)
	}
	if !approxEqual(ts.Slope, 1, 1e-9) {
		t.Errorf("Theil-Sen slope: expected 1, got %g", ts.Slope)
	}
	ols, _ := analyze.Trend(vals, analyze.TrendLinear)
	if approxEqual(ols.Slope, 1, 1e-3) {
		t.Errorf("OLS slope should be pulled by the outlier, got %g", ols.Slope)
	}
}

func TestChartTrendMethod(t *testing.T) {
	// One collapse at the end drags the OLS slope down; the median of the
	// pairwise slopes stays at zero.
	c := &model.NormalizedChart{
		Categories: []string{"Q1", "Q2", "Q3", "Q4", "Q5"},
		Series:     []model.Series{{Name: "Orders", Values: []float64{10, 10, 10, 10, -100}}},
	}
	linear := analyze.Chart(c)
	if linear[0].Trend != "down" || linear[0].TrendMethod != analyze.TrendLinear {
		t.Errorf("linear: expected down/linear, got %s/%s", linear[0].Trend, linear[0].TrendMethod)
	}
	robust := analyze.ChartTrend(c, analyze.TrendTheilSen)
	if robust[0].Trend != "flat" || robust[0].TrendMethod != analyze.TrendTheilSen {
		t.Errorf("theil-sen: expected flat/theil-sen, got %s/%s", robust[0].Trend, robust[0].TrendMethod)
	}
}

func TestParseTrendMethod(t *testing.T) {
	for in, want := range map[string]analyze.TrendMethod{
		"": analyze.TrendLinear, "Linear": analyze.TrendLinear,
		"theil-sen": analyze.TrendTheilSen, "TheilSen": analyze.TrendTheilSen,
	} {
		got, err := analyze.ParseTrendMethod(in)
		if err != nil || got != want {
			t.Errorf("%q: expected %s, got %s (%v)", in, want, got, err)
		}
	}
	if _, err := analyze.ParseTrendMethod("loess"); err == nil {
		t.Error("expected an error for an unknown method")
	}
}
