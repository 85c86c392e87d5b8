package chart

import (
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strings"

	gochart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/derickschaefer/kpiboard/internal/model"
)

// ─── Image Export ─────────────────────────────────────────────────────────────

// ImageFormat selects the encoder used by Export.
type ImageFormat string

const (
	SVG ImageFormat = "svg"
	PNG ImageFormat = "png"
)

// FormatFromPath picks the image format from a file extension.
func FormatFromPath(path string) (ImageFormat, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".svg":
		return SVG, nil
	case ".png":
		return PNG, nil
	}
	return "", fmt.Errorf("unsupported image extension %q (use .svg or .png)", filepath.Ext(path))
}

// ExportOptions sizes the exported image in pixels.
type ExportOptions struct {
	Width  int
	Height int
}

// palette mirrors the dashboard's series colours.
var palette = []string{"4F46E5", "10B981", "F59E0B", "EF4444", "8B5CF6", "06B6D4"}

func paletteColor(i int) drawing.Color {
	return drawing.ColorFromHex(palette[i%len(palette)])
}

// Export writes c as an image of the given visual type. List charts have no
// image form.
func Export(w io.Writer, c *model.NormalizedChart, visual model.ChartType, format ImageFormat, opts ExportOptions) error {
	if c == nil {
		return fmt.Errorf("export: nil chart")
	}
	if visual == "" {
		visual = c.Type
	}
	if opts.Width <= 0 {
		opts.Width = 1024
	}
	if opts.Height <= 0 {
		opts.Height = 512
	}
	provider := gochart.SVG
	if format == PNG {
		provider = gochart.PNG
	}

	if visual == model.ChartList {
		return fmt.Errorf("export %q: list charts cannot be exported as images", c.Title)
	}
	if empty(c) {
		return fmt.Errorf("export %q: chart has no data", c.Title)
	}

	var err error
	switch visual {
	case model.ChartPie, model.ChartDonut:
		err = exportPie(w, c, provider, opts)
	case model.ChartGauge:
		err = exportGauge(w, c, provider, opts)
	case model.ChartStacked:
		err = exportStacked(w, c, provider, opts)
	case model.ChartBar, model.ChartHorizontal:
		err = exportBar(w, c, provider, opts)
	case model.ChartLine, model.ChartArea, model.ChartDualAxis:
		err = exportLine(w, c, visual, provider, opts)
	default:
		return fmt.Errorf("export %q: unsupported chart type %q", c.Title, visual)
	}
	if err != nil {
		return fmt.Errorf("export %q: %w", c.Title, err)
	}
	return nil
}

func exportPie(w io.Writer, c *model.NormalizedChart, rp gochart.RendererProvider, opts ExportOptions) error {
	values := make([]gochart.Value, 0, len(c.Categories))
	for i, cat := range c.Categories {
		v := c.Series[0].Values[i]
		if v <= 0 {
			continue
		}
		values = append(values, gochart.Value{
			Label: cat,
			Value: v,
			Style: gochart.Style{FillColor: paletteColor(i), StrokeColor: drawing.ColorWhite},
		})
	}
	if len(values) == 0 {
		return fmt.Errorf("no positive slices")
	}
	pie := gochart.PieChart{
		Title:  c.Title,
		Width:  opts.Width,
		Height: opts.Height,
		Values: values,
	}
	return pie.Render(rp, w)
}

func exportGauge(w io.Writer, c *model.NormalizedChart, rp gochart.RendererProvider, opts ExportOptions) error {
	frac := math.Min(math.Max(c.Series[0].Values[0], 0), 1)
	pct := math.Round(frac * 100)
	values := []gochart.Value{{
		Label: fmt.Sprintf("%.0f%%", pct),
		Value: math.Max(frac, 1e-9),
		Style: gochart.Style{FillColor: paletteColor(0)},
	}}
	if frac < 1 {
		values = append(values, gochart.Value{
			Value: 1 - frac,
			Style: gochart.Style{FillColor: drawing.ColorFromHex("E5E7EB")},
		})
	}
	pie := gochart.PieChart{
		Title:  c.Title,
		Width:  opts.Width,
		Height: opts.Height,
		Values: values,
	}
	return pie.Render(rp, w)
}

// exportBar draws one bar per category. Multi-series charts get one bar per
// category and series, labelled "category / series".
func exportBar(w io.Writer, c *model.NormalizedChart, rp gochart.RendererProvider, opts ExportOptions) error {
	var bars []gochart.Value
	for i, cat := range c.Categories {
		for si, s := range c.Series {
			label := cat
			if len(c.Series) > 1 {
				label = cat + " / " + s.Name
			}
			bars = append(bars, gochart.Value{
				Label: label,
				Value: s.Values[i],
				Style: gochart.Style{FillColor: paletteColor(si), StrokeColor: paletteColor(si)},
			})
		}
	}
	barWidth := opts.Width / (2*len(bars) + 1)
	if barWidth < 4 {
		barWidth = 4
	}
	bc := gochart.BarChart{
		Title:    c.Title,
		Width:    opts.Width,
		Height:   opts.Height,
		BarWidth: barWidth,
		Background: gochart.Style{
			Padding: gochart.Box{Top: 40, Left: 10, Right: 10, Bottom: 10},
		},
		Bars: bars,
	}
	return bc.Render(rp, w)
}

func exportStacked(w io.Writer, c *model.NormalizedChart, rp gochart.RendererProvider, opts ExportOptions) error {
	bars := make([]gochart.StackedBar, len(c.Categories))
	for i, cat := range c.Categories {
		values := make([]gochart.Value, len(c.Series))
		for si, s := range c.Series {
			values[si] = gochart.Value{
				Label: s.Name,
				Value: math.Max(s.Values[i], 0),
				Style: gochart.Style{FillColor: paletteColor(si), StrokeColor: paletteColor(si)},
			}
		}
		bars[i] = gochart.StackedBar{Name: cat, Values: values}
	}
	sbc := gochart.StackedBarChart{
		Title:  c.Title,
		Width:  opts.Width,
		Height: opts.Height,
		Background: gochart.Style{
			Padding: gochart.Box{Top: 40},
		},
		Bars: bars,
	}
	return sbc.Render(rp, w)
}

// exportLine plots series over category positions. Series on axis 1 of a
// dual-axis chart use the secondary y axis.
func exportLine(w io.Writer, c *model.NormalizedChart, visual model.ChartType, rp gochart.RendererProvider, opts ExportOptions) error {
	n := len(c.Categories)
	xs := make([]float64, n)
	ticks := make([]gochart.Tick, n)
	for i, cat := range c.Categories {
		xs[i] = float64(i)
		ticks[i] = gochart.Tick{Value: float64(i), Label: cat}
	}
	// A continuous series needs two points.
	if n == 1 {
		xs = []float64{0, 1}
	}

	series := make([]gochart.Series, 0, len(c.Series))
	hasSecondary := false
	for si, s := range c.Series {
		ys := s.Values
		if n == 1 {
			ys = []float64{ys[0], ys[0]}
		}
		style := gochart.Style{
			StrokeColor: paletteColor(si),
			StrokeWidth: 2,
			DotWidth:    3,
			DotColor:    paletteColor(si),
		}
		if visual == model.ChartArea {
			style.FillColor = paletteColor(si).WithAlpha(64)
		}
		cs := gochart.ContinuousSeries{
			Name:    s.Name,
			XValues: xs,
			YValues: ys,
			Style:   style,
		}
		if visual == model.ChartDualAxis && s.AxisIndex > 0 {
			cs.YAxis = gochart.YAxisSecondary
			hasSecondary = true
		}
		series = append(series, cs)
	}

	ch := gochart.Chart{
		Title:  c.Title,
		Width:  opts.Width,
		Height: opts.Height,
		Background: gochart.Style{
			Padding: gochart.Box{Top: 40, Left: 20, Right: 20, Bottom: 20},
		},
		XAxis: gochart.XAxis{
			Ticks: ticks,
			Range: &gochart.ContinuousRange{Min: 0, Max: math.Max(float64(n-1), 1)},
		},
		YAxis:  gochart.YAxis{Name: axisName(c, 0)},
		Series: series,
	}
	if hasSecondary {
		ch.YAxisSecondary = gochart.YAxis{Name: axisName(c, 1)}
	}
	if len(series) > 1 {
		ch.Elements = []gochart.Renderable{gochart.Legend(&ch)}
	}
	return ch.Render(rp, w)
}

func axisName(c *model.NormalizedChart, i int) string {
	if i < len(c.Axes) {
		return c.Axes[i].Name
	}
	return ""
}
