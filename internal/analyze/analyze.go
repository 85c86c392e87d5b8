// Package analyze computes descriptive statistics and trend direction for
// the series of a normalized chart. All functions are pure; no I/O.
package analyze

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/derickschaefer/kpiboard/internal/model"
)

// ─── Summary ──────────────────────────────────────────────────────────────────

// Summary holds descriptive statistics for one chart series. Statistics of
// a series with no finite values are zero; Count and Missing tell them apart.
type Summary struct {
	Series    string   `json:"series"`
	Count     int      `json:"count"`   // points, one per category
	Missing   int      `json:"missing"` // NaN or Inf points
	Mean      float64  `json:"mean"`
	Std       float64  `json:"std"`
	Min       float64  `json:"min"`
	P25       float64  `json:"p25"`
	Median    float64  `json:"median"`
	P75       float64  `json:"p75"`
	Max       float64  `json:"max"`
	First     float64  `json:"first"` // first finite value
	Last      float64  `json:"last"`  // last finite value
	Change    float64  `json:"change"`
	ChangePct *float64 `json:"change_pct,omitempty"` // nil when First is zero
	MinAt     string   `json:"min_at,omitempty"`     // category of the minimum
	MaxAt     string   `json:"max_at,omitempty"`     // category of the maximum
	Trend     string   `json:"trend,omitempty"`      // up, down or flat; empty below two points

	TrendMethod TrendMethod `json:"trend_method,omitempty"`
}

// Chart summarizes every series of c in order with a linear trend. List
// charts have no series and return nil.
func Chart(c *model.NormalizedChart) []Summary {
	return ChartTrend(c, TrendLinear)
}

// ChartTrend is Chart with the trend fitted by method.
func ChartTrend(c *model.NormalizedChart, method TrendMethod) []Summary {
	if c == nil || len(c.Series) == 0 {
		return nil
	}
	out := make([]Summary, len(c.Series))
	for i, s := range c.Series {
		out[i] = summarize(s.Name, s.Values, c.Categories, method)
	}
	return out
}

// Summarize computes statistics over values. categories, when it has one
// entry per value, names the points where the minimum and maximum occur.
func Summarize(name string, values []float64, categories []string) Summary {
	return summarize(name, values, categories, TrendLinear)
}

func summarize(name string, values []float64, categories []string, method TrendMethod) Summary {
	s := Summary{Series: name, Count: len(values)}

	var vals []float64
	minIdx, maxIdx := -1, -1
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			s.Missing++
			continue
		}
		if minIdx < 0 || v < values[minIdx] {
			minIdx = i
		}
		if maxIdx < 0 || v > values[maxIdx] {
			maxIdx = i
		}
		vals = append(vals, v)
	}
	if len(vals) == 0 {
		return s
	}

	// Sort for percentile computation
	sorted := make([]float64, len(vals))
	copy(sorted, vals)
	sort.Float64s(sorted)

	s.Min = sorted[0]
	s.Max = sorted[len(sorted)-1]
	s.Mean = sumF(vals) / float64(len(vals))
	s.Std = stddevF(vals, s.Mean)
	s.Median = percentile(sorted, 50)
	s.P25 = percentile(sorted, 25)
	s.P75 = percentile(sorted, 75)
	if len(categories) == len(values) {
		s.MinAt = categories[minIdx]
		s.MaxAt = categories[maxIdx]
	}

	s.First = vals[0]
	s.Last = vals[len(vals)-1]
	s.Change = s.Last - s.First
	if s.First != 0 {
		pct := s.Change / math.Abs(s.First) * 100
		s.ChangePct = &pct
	}

	if tr, err := Trend(values, method); err == nil {
		s.Trend = tr.Direction
		s.TrendMethod = tr.Method
	}
	return s
}

// ─── Trend ────────────────────────────────────────────────────────────────────

// TrendMethod selects the regression algorithm.
type TrendMethod string

const (
	TrendLinear   TrendMethod = "linear"
	TrendTheilSen TrendMethod = "theil-sen"
)

// ParseTrendMethod accepts "linear", "theil-sen" or empty for linear.
func ParseTrendMethod(s string) (TrendMethod, error) {
	switch m := TrendMethod(strings.ToLower(strings.TrimSpace(s))); m {
	case "", TrendLinear:
		return TrendLinear, nil
	case TrendTheilSen, "theilsen":
		return TrendTheilSen, nil
	default:
		return "", fmt.Errorf("unknown trend method %q: expected linear|theil-sen", s)
	}
}

// flatTolerance is the per-point slope, relative to the mean magnitude,
// below which a trend is reported as flat.
const flatTolerance = 0.005

// ErrTooFewPoints is returned by Trend when fewer than two finite values
// remain.
var ErrTooFewPoints = errors.New("trend: need at least 2 finite values")

// TrendResult holds the output of a trend analysis.
type TrendResult struct {
	Method    TrendMethod `json:"method"`
	Slope     float64     `json:"slope"` // units per category step
	Intercept float64     `json:"intercept"`
	R2        float64     `json:"r2"`
	Direction string      `json:"direction"` // "up", "down", "flat"
}

// Trend fits a trend to values. X is the category index, so gaps from
// missing values keep their position. NaN and Inf values are excluded.
func Trend(values []float64, method TrendMethod) (TrendResult, error) {
	tr := TrendResult{Method: method}

	var pts []point
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		pts = append(pts, point{float64(i), v})
	}
	if len(pts) < 2 {
		return tr, ErrTooFewPoints
	}

	switch method {
	case TrendTheilSen:
		tr.Slope = theilSenSlope(pts)
		// Use OLS intercept with Theil-Sen slope
		xMean := meanPts(pts, func(p point) float64 { return p.x })
		yMean := meanPts(pts, func(p point) float64 { return p.y })
		tr.Intercept = yMean - tr.Slope*xMean
	default: // linear OLS
		tr.Method = TrendLinear
		tr.Slope, tr.Intercept = olsRegress(pts)
	}
	tr.R2 = r2(pts, tr.Slope, tr.Intercept)

	scale := math.Abs(meanPts(pts, func(p point) float64 { return p.y }))
	if scale == 0 {
		scale = 1
	}
	switch rel := tr.Slope / scale; {
	case rel > flatTolerance:
		tr.Direction = "up"
	case rel < -flatTolerance:
		tr.Direction = "down"
	default:
		tr.Direction = "flat"
	}
	return tr, nil
}

// ─── Math helpers ─────────────────────────────────────────────────────────────

func sumF(vals []float64) float64 {
	var s float64
	for _, v := range vals {
		s += v
	}
	return s
}

func stddevF(vals []float64, m float64) float64 {
	if len(vals) < 2 {
		return 0
	}
	var sq float64
	for _, v := range vals {
		d := v - m
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(vals)-1))
}

func percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	idx := p / 100 * float64(n-1)
	lo := int(idx)
	hi := lo + 1
	if hi >= n {
		return sorted[n-1]
	}
	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

type point struct{ x, y float64 }

func olsRegress(pts []point) (slope, intercept float64) {
	n := float64(len(pts))
	var xSum, ySum, xySum, x2Sum float64
	for _, p := range pts {
		xSum += p.x
		ySum += p.y
		xySum += p.x * p.y
		x2Sum += p.x * p.x
	}
	denom := n*x2Sum - xSum*xSum
	if denom == 0 {
		return 0, ySum / n
	}
	slope = (n*xySum - xSum*ySum) / denom
	intercept = (ySum - slope*xSum) / n
	return
}

func theilSenSlope(pts []point) float64 {
	var slopes []float64
	for i := 0; i < len(pts); i++ {
		for j := i + 1; j < len(pts); j++ {
			dx := pts[j].x - pts[i].x
			if dx == 0 {
				continue
			}
			slopes = append(slopes, (pts[j].y-pts[i].y)/dx)
		}
	}
	if len(slopes) == 0 {
		return 0
	}
	sort.Float64s(slopes)
	return percentile(slopes, 50)
}

func r2(pts []point, slope, intercept float64) float64 {
	var yMean float64
	for _, p := range pts {
		yMean += p.y
	}
	yMean /= float64(len(pts))

	var ssTot, ssRes float64
	for _, p := range pts {
		pred := slope*p.x + intercept
		ssTot += (p.y - yMean) * (p.y - yMean)
		ssRes += (p.y - pred) * (p.y - pred)
	}
	if ssTot == 0 {
		return 1
	}
	return 1 - ssRes/ssTot
}

func meanPts(pts []point, f func(point) float64) float64 {
	var s float64
	for _, p := range pts {
		s += f(p)
	}
	return s / float64(len(pts))
}
