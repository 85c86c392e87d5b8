// Package model defines the canonical data types used throughout kpiboard.
// Wire types mirror the dashboard backend's JSON; NormalizedChart is the one
// internal chart shape every renderer consumes; Result is the envelope that
// every command returns.
package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// ─── Chart Types ──────────────────────────────────────────────────────────────

// ChartType is a server-declared or user-selected visual type.
type ChartType string

const (
	ChartPie        ChartType = "pie"
	ChartDonut      ChartType = "donut"
	ChartBar        ChartType = "bar"
	ChartHorizontal ChartType = "horizontal_bar"
	ChartLine       ChartType = "line"
	ChartArea       ChartType = "area"
	ChartList       ChartType = "list"
	ChartGauge      ChartType = "gauge"
	ChartStacked    ChartType = "stacked_bar"
	ChartDualAxis   ChartType = "double_bar_dual_axis"
)

// ChartTypes lists every known type in display order.
var ChartTypes = []ChartType{
	ChartPie, ChartDonut, ChartBar, ChartHorizontal, ChartLine, ChartArea,
	ChartList, ChartGauge, ChartStacked, ChartDualAxis,
}

// ParseChartType returns the ChartType named by s.
func ParseChartType(s string) (ChartType, error) {
	for _, t := range ChartTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown chart type %q", s)
}

// ─── Metrics ──────────────────────────────────────────────────────────────────

// Value is a metric value: either a number or a preformatted string.
type Value struct {
	Num   float64
	Str   string
	IsNum bool
}

// Number returns a numeric Value.
func Number(v float64) Value { return Value{Num: v, IsNum: true} }

// Text returns a string Value.
func Text(s string) Value { return Value{Str: s} }

func (v Value) MarshalJSON() ([]byte, error) {
	if v.IsNum {
		return []byte(strconv.FormatFloat(v.Num, 'f', -1, 64)), nil
	}
	return json.Marshal(v.Str)
}

func (v *Value) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*v = Value{}
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*v = Text(s)
		return nil
	}
	f, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return fmt.Errorf("metric value %s: %w", b, err)
	}
	*v = Number(f)
	return nil
}

// MetricCard is one KPI card.
type MetricCard struct {
	Title   string   `json:"title"`
	Value   Value    `json:"value"`
	Diff    *float64 `json:"diff,omitempty"`
	Insight string   `json:"insight,omitempty"`
	ZScore  *float64 `json:"z_score,omitempty"`
	PValue  *float64 `json:"p_value,omitempty"`
}

// ─── Chart Descriptors ────────────────────────────────────────────────────────

// ExtraMetrics are the statistical annotations the backend attaches to a chart.
type ExtraMetrics struct {
	Value         float64 `json:"value"`
	HistoricalAvg float64 `json:"historical_avg"`
	ZScore        float64 `json:"z_score"`
	PValue        float64 `json:"p_value"`
}

// ChartDescriptor is a chart exactly as the backend sent it. The polymorphic
// payload fields stay raw so a cached response round-trips unchanged; the
// normalize package resolves them.
type ChartDescriptor struct {
	Title        string          `json:"title"`
	Type         ChartType       `json:"type"`
	X            json.RawMessage `json:"x,omitempty"`
	Y            json.RawMessage `json:"y,omitempty"`
	Data         json.RawMessage `json:"data,omitempty"`
	Series       json.RawMessage `json:"series,omitempty"`
	YAxis        json.RawMessage `json:"yAxis,omitempty"`
	Value        json.RawMessage `json:"value,omitempty"`
	ExtraMetrics *ExtraMetrics   `json:"extra_metrics,omitempty"`
	Insight      string          `json:"insight,omitempty"`

	// Drill-down descriptors only.
	ChartKey  string `json:"chartKey,omitempty"`
	Drillable bool   `json:"drillable,omitempty"`
	NextChart string `json:"nextChart,omitempty"`
}

// Dashboard is the body of every page endpoint.
type Dashboard struct {
	Metrics []MetricCard      `json:"metrics"`
	Charts  []ChartDescriptor `json:"charts"`
	Insight string            `json:"insight,omitempty"`
}

// CachedResponse is the last successful Dashboard for a page.
type CachedResponse struct {
	Page      string    `json:"page"`
	Filter    string    `json:"filter"`
	FetchedAt time.Time `json:"fetched_at"`
	Dashboard Dashboard `json:"dashboard"`
}

// ─── Normalized Charts ────────────────────────────────────────────────────────

// ListItem is one entry of a list chart: a bare string or an activity event.
type ListItem struct {
	Text    string `json:"-"`
	Type    string `json:"type,omitempty"`
	Message string `json:"message,omitempty"`
	Time    string `json:"time,omitempty"`
}

// String returns the display text of the item.
func (li ListItem) String() string {
	if li.Message == "" {
		return li.Text
	}
	if li.Type == "" {
		return li.Message
	}
	return "[" + li.Type + "] " + li.Message
}

func (li ListItem) MarshalJSON() ([]byte, error) {
	if li.Message == "" && li.Type == "" && li.Time == "" {
		return json.Marshal(li.Text)
	}
	type event ListItem
	return json.Marshal(event(li))
}

func (li *ListItem) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		*li = ListItem{}
		return json.Unmarshal(b, &li.Text)
	}
	type event ListItem
	var e event
	if err := json.Unmarshal(b, &e); err != nil {
		return err
	}
	*li = ListItem(e)
	return nil
}

// AxisDef is a value-axis definition supplied by the backend for dual-axis charts.
type AxisDef struct {
	Name     string   `json:"name,omitempty"`
	Type     string   `json:"type,omitempty"`
	Min      *float64 `json:"min,omitempty"`
	Max      *float64 `json:"max,omitempty"`
	Position string   `json:"position,omitempty"`
}

// Series is one named value sequence aligned with NormalizedChart.Categories.
type Series struct {
	Name      string    `json:"name"`
	Values    []float64 `json:"values"`
	AxisIndex int       `json:"axis_index,omitempty"`
	Kind      string    `json:"kind,omitempty"` // per-series render hint (bar, line)
}

// NormalizedChart is the single internal chart model. For every series,
// len(Values) == len(Categories).
type NormalizedChart struct {
	Title      string        `json:"title"`
	Type       ChartType     `json:"type"`
	Categories []string      `json:"categories"`
	Series     []Series      `json:"series"`
	ListItems  []ListItem    `json:"list_items,omitempty"`
	Axes       []AxisDef     `json:"axes,omitempty"`
	Extra      *ExtraMetrics `json:"extra_metrics,omitempty"`
}

// ─── Insights, Uploads, Drill-down ────────────────────────────────────────────

// TokenUsage reports the generation cost of an insight.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Insight is the body of an insights endpoint.
type Insight struct {
	ChartID    string      `json:"chart_id"`
	Insight    string      `json:"insight"`
	TokenUsage *TokenUsage `json:"token_usage,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// UploadResult is the body of POST /upload.
type UploadResult struct {
	Success bool            `json:"success"`
	KPIs    json.RawMessage `json:"kpis,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// ─── Result Envelope ─────────────────────────────────────────────────────────

// ResultStats carries performance and cache metadata for a command result.
type ResultStats struct {
	CacheHit   bool  `json:"cache_hit"`
	DurationMs int64 `json:"duration_ms"`
	Items      int   `json:"items"`
}

// Result is the uniform envelope returned by every command.
// The Data field holds the typed payload; Kind identifies what is in it.
// Renderers switch on Kind to format output appropriately.
type Result struct {
	Kind        string      `json:"kind"`
	GeneratedAt time.Time   `json:"generated_at"`
	Command     string      `json:"command"`
	Data        interface{} `json:"data"`
	Warnings    []string    `json:"warnings,omitempty"`
	Stats       ResultStats `json:"stats"`
}

// Kind constants for Result.Kind.
const (
	KindPage    = "page"
	KindPages   = "pages"
	KindChart   = "chart"
	KindOptions = "options"
	KindInsight = "insight"
	KindFilter  = "filter"
	KindPoints  = "points"
	KindUpload  = "upload"
)

// ─── Command Payloads ─────────────────────────────────────────────────────────

// InsightReport is the payload of KindInsight results.
type InsightReport struct {
	Page    string      `json:"page"`
	Chart   string      `json:"chart"`
	Insight string      `json:"insight"`
	Usage   *TokenUsage `json:"token_usage,omitempty"`
	Points  int         `json:"points_remaining"`
}

// PointsReport is the payload of KindPoints results.
type PointsReport struct {
	Points    int  `json:"points"`
	Available bool `json:"available"`
}

// FilterReport is the payload of KindFilter results.
type FilterReport struct {
	Page     string `json:"page"`
	Preset   string `json:"preset"`
	Start    string `json:"start,omitempty"`
	End      string `json:"end,omitempty"`
	Complete bool   `json:"complete"`
	Wire     string `json:"wire"`
}

// UploadReport is the payload of KindUpload results.
type UploadReport struct {
	Page    string   `json:"page"`
	File    string   `json:"file"`
	Metrics int      `json:"metrics"`
	Charts  int      `json:"charts"`
	Ignored []string `json:"ignored,omitempty"`
}
