// Package builder maps a NormalizedChart plus a visual type onto an
// ECharts-compatible Option. Builders are pure: no I/O, no shared state, and
// the input chart is never modified.
package builder

import (
	"errors"
	"fmt"
	"math"

	"github.com/derickschaefer/kpiboard/internal/model"
)

var (
	// ErrNotChart is returned for list charts, which render as plain items.
	ErrNotChart = errors.New("list charts have no chart option")
	// ErrUnknownType is returned for visual types with no builder.
	ErrUnknownType = errors.New("unknown visual type")
)

// Palette is assigned to series by index, never by name, so repeated renders
// keep the same colours.
var Palette = []string{
	"#4F46E5", "#10B981", "#F59E0B", "#EF4444", "#8B5CF6",
	"#06B6D4", "#EC4899", "#84CC16", "#F97316", "#6366F1",
}

// ColorFor returns the palette colour for series index i.
func ColorFor(i int) string {
	return Palette[i%len(Palette)]
}

// Build returns the option for chart rendered as visual. Empty categories or
// series produce a valid option with no data.
func Build(chart *model.NormalizedChart, visual model.ChartType) (*Option, error) {
	if chart == nil {
		return nil, fmt.Errorf("build: nil chart")
	}
	switch visual {
	case model.ChartPie, model.ChartDonut:
		return buildPie(chart, visual == model.ChartDonut), nil
	case model.ChartBar, model.ChartHorizontal, model.ChartStacked:
		return buildBar(chart, visual), nil
	case model.ChartLine, model.ChartArea:
		return buildLine(chart, visual == model.ChartArea), nil
	case model.ChartDualAxis:
		return buildDualAxis(chart), nil
	case model.ChartGauge:
		return buildGauge(chart), nil
	case model.ChartList:
		return nil, fmt.Errorf("build %q: %w", chart.Title, ErrNotChart)
	default:
		return nil, fmt.Errorf("build %q as %q: %w", chart.Title, visual, ErrUnknownType)
	}
}

func base(chart *model.NormalizedChart, trigger string) *Option {
	return &Option{
		Title:   Title{Text: chart.Title, Left: "center"},
		Tooltip: Tooltip{Trigger: trigger},
		Series:  []Series{},
	}
}

func legendFor(chart *model.NormalizedChart) *Legend {
	if len(chart.Series) < 2 {
		return nil
	}
	names := make([]string, len(chart.Series))
	for i, s := range chart.Series {
		names[i] = s.Name
	}
	return &Legend{Data: names}
}

func colors(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = ColorFor(i)
	}
	return out
}

func categoryAxis(chart *model.NormalizedChart) Axis {
	return Axis{Type: "category", Data: append([]string{}, chart.Categories...)}
}

func values(s model.Series) []float64 {
	return append([]float64{}, s.Values...)
}

// ─── Pie / Donut ──────────────────────────────────────────────────────────────

func buildPie(chart *model.NormalizedChart, donut bool) *Option {
	opt := base(chart, "item")
	opt.Tooltip.Formatter = "{b}: {c} ({d}%)"
	opt.Legend = &Legend{Data: append([]string{}, chart.Categories...)}
	opt.Color = colors(len(chart.Categories))

	data := make([]PieDatum, 0, len(chart.Categories))
	if len(chart.Series) > 0 {
		for i, name := range chart.Categories {
			data = append(data, PieDatum{Name: name, Value: chart.Series[0].Values[i]})
		}
	}

	s := Series{
		Name:   chart.Title,
		Type:   "pie",
		Data:   data,
		Radius: []string{"0%", "70%"},
		Center: []string{"50%", "50%"},
		Label:  &Label{Show: true, Formatter: "{b}: {d}%"},
	}
	if donut {
		s.Radius = []string{"45%", "70%"}
		s.Label = &Label{Show: false, Position: "center"}
		s.Emphasis = &Emphasis{Label: &Label{Show: true, FontSize: 18, FontWeight: "bold"}}
		s.ItemStyle = &ItemStyle{BorderRadius: 6}
	}
	opt.Series = append(opt.Series, s)
	return opt
}

// ─── Bar / Horizontal / Stacked ───────────────────────────────────────────────

func buildBar(chart *model.NormalizedChart, visual model.ChartType) *Option {
	opt := base(chart, "axis")
	opt.Legend = legendFor(chart)
	opt.Grid = &Grid{Left: "3%", Right: "4%", Bottom: "3%", ContainLabel: true}
	opt.Color = colors(len(chart.Series))

	cat, val := categoryAxis(chart), Axis{Type: "value"}
	if visual == model.ChartHorizontal {
		opt.XAxis, opt.YAxis = []Axis{val}, []Axis{cat}
	} else {
		opt.XAxis, opt.YAxis = []Axis{cat}, []Axis{val}
	}

	for i, s := range chart.Series {
		bs := Series{
			Name:      s.Name,
			Type:      "bar",
			Data:      values(s),
			ItemStyle: &ItemStyle{Color: ColorFor(i)},
		}
		if visual == model.ChartStacked {
			bs.Stack = "total"
			bs.Emphasis = &Emphasis{Focus: "series"}
		}
		opt.Series = append(opt.Series, bs)
	}
	return opt
}

// ─── Line / Area ──────────────────────────────────────────────────────────────

func buildLine(chart *model.NormalizedChart, area bool) *Option {
	opt := base(chart, "axis")
	opt.Legend = legendFor(chart)
	opt.Grid = &Grid{Left: "3%", Right: "4%", Bottom: "3%", ContainLabel: true}
	opt.XAxis = []Axis{categoryAxis(chart)}
	opt.YAxis = []Axis{{Type: "value"}}
	opt.Color = colors(len(chart.Series))

	for i, s := range chart.Series {
		ls := Series{
			Name:      s.Name,
			Type:      "line",
			Data:      values(s),
			Smooth:    true,
			ItemStyle: &ItemStyle{Color: ColorFor(i)},
		}
		if area {
			ls.AreaStyle = &AreaStyle{Opacity: 0.3}
		}
		opt.Series = append(opt.Series, ls)
	}
	return opt
}

// ─── Dual Axis ────────────────────────────────────────────────────────────────

func buildDualAxis(chart *model.NormalizedChart) *Option {
	opt := base(chart, "axis")
	opt.Legend = legendFor(chart)
	opt.Grid = &Grid{Left: "3%", Right: "4%", Bottom: "3%", ContainLabel: true}
	opt.XAxis = []Axis{categoryAxis(chart)}
	opt.Color = colors(len(chart.Series))

	if len(chart.Axes) > 0 {
		for _, a := range chart.Axes {
			typ := a.Type
			if typ == "" {
				typ = "value"
			}
			opt.YAxis = append(opt.YAxis, Axis{
				Type:     typ,
				Name:     a.Name,
				Min:      a.Min,
				Max:      a.Max,
				Position: a.Position,
			})
		}
	} else {
		opt.YAxis = []Axis{
			{Type: "value", Position: "left"},
			{Type: "value", Position: "right"},
		}
	}

	for i, s := range chart.Series {
		kind := s.Kind
		if kind == "" {
			kind = "bar"
		}
		idx := s.AxisIndex
		if idx < 0 || idx >= len(opt.YAxis) {
			idx = 0
		}
		opt.Series = append(opt.Series, Series{
			Name:       s.Name,
			Type:       kind,
			Data:       values(s),
			YAxisIndex: idx,
			ItemStyle:  &ItemStyle{Color: ColorFor(i)},
		})
	}
	return opt
}

// ─── Gauge ────────────────────────────────────────────────────────────────────

func buildGauge(chart *model.NormalizedChart) *Option {
	opt := base(chart, "item")
	lo, hi := 0.0, 100.0

	var data []GaugeDatum
	if len(chart.Series) > 0 && len(chart.Series[0].Values) > 0 {
		pct := math.Round(chart.Series[0].Values[0]*10000) / 100
		data = []GaugeDatum{{Name: chart.Title, Value: pct}}
	} else {
		data = []GaugeDatum{}
	}

	opt.Series = append(opt.Series, Series{
		Name:     chart.Title,
		Type:     "gauge",
		Data:     data,
		Min:      &lo,
		Max:      &hi,
		Progress: &Progress{Show: true, Width: 12},
		Detail:   &Detail{Formatter: "{value}%", FontSize: 20},
	})
	return opt
}
