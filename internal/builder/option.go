package builder

import "github.com/derickschaefer/kpiboard/internal/model"

// Option is an ECharts-compatible chart option. Zero-valued fields are
// omitted from JSON so the front end applies its own defaults.
type Option struct {
	Title   Title    `json:"title"`
	Tooltip Tooltip  `json:"tooltip"`
	Legend  *Legend  `json:"legend,omitempty"`
	Grid    *Grid    `json:"grid,omitempty"`
	XAxis   []Axis   `json:"xAxis,omitempty"`
	YAxis   []Axis   `json:"yAxis,omitempty"`
	Series  []Series `json:"series"`
	Color   []string `json:"color,omitempty"`
}

type Title struct {
	Text string `json:"text"`
	Left string `json:"left,omitempty"`
}

type Tooltip struct {
	Trigger   string `json:"trigger"`
	Formatter string `json:"formatter,omitempty"`
}

type Legend struct {
	Data   []string `json:"data,omitempty"`
	Bottom int      `json:"bottom"`
}

type Grid struct {
	Left         string `json:"left"`
	Right        string `json:"right"`
	Bottom       string `json:"bottom"`
	ContainLabel bool   `json:"containLabel"`
}

type Axis struct {
	Type      string     `json:"type"`
	Name      string     `json:"name,omitempty"`
	Data      []string   `json:"data,omitempty"`
	Min       *float64   `json:"min,omitempty"`
	Max       *float64   `json:"max,omitempty"`
	Position  string     `json:"position,omitempty"`
	AxisLabel *AxisLabel `json:"axisLabel,omitempty"`
}

type AxisLabel struct {
	Formatter string `json:"formatter,omitempty"`
	Rotate    int    `json:"rotate,omitempty"`
}

// Series is one ECharts series. Data holds []float64 for axis charts,
// []PieDatum for pie/donut and []GaugeDatum for gauges.
type Series struct {
	Name       string     `json:"name"`
	Type       string     `json:"type"`
	Data       any        `json:"data"`
	Stack      string     `json:"stack,omitempty"`
	Smooth     bool       `json:"smooth,omitempty"`
	AreaStyle  *AreaStyle `json:"areaStyle,omitempty"`
	YAxisIndex int        `json:"yAxisIndex,omitempty"`
	Radius     []string   `json:"radius,omitempty"`
	Center     []string   `json:"center,omitempty"`
	Label      *Label     `json:"label,omitempty"`
	Emphasis   *Emphasis  `json:"emphasis,omitempty"`
	ItemStyle  *ItemStyle `json:"itemStyle,omitempty"`
	Min        *float64   `json:"min,omitempty"`
	Max        *float64   `json:"max,omitempty"`
	Progress   *Progress  `json:"progress,omitempty"`
	Detail     *Detail    `json:"detail,omitempty"`
}

type AreaStyle struct {
	Opacity float64 `json:"opacity"`
}

type Label struct {
	Show       bool   `json:"show"`
	Position   string `json:"position,omitempty"`
	Formatter  string `json:"formatter,omitempty"`
	FontSize   int    `json:"fontSize,omitempty"`
	FontWeight string `json:"fontWeight,omitempty"`
}

type Emphasis struct {
	Label *Label `json:"label,omitempty"`
	Focus string `json:"focus,omitempty"`
}

type ItemStyle struct {
	Color        string `json:"color,omitempty"`
	BorderRadius int    `json:"borderRadius,omitempty"`
}

type Progress struct {
	Show  bool `json:"show"`
	Width int  `json:"width,omitempty"`
}

type Detail struct {
	Formatter string `json:"formatter"`
	FontSize  int    `json:"fontSize,omitempty"`
}

// PieDatum is one pie or donut slice.
type PieDatum struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// GaugeDatum is the single gauge reading, in percent.
type GaugeDatum struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// Visual returns the visual type to build for c: the override when set,
// otherwise the server-declared type.
func Visual(c *model.NormalizedChart, override model.ChartType) model.ChartType {
	if override != "" {
		return override
	}
	return c.Type
}
