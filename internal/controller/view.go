package controller

import (
	"time"

	"github.com/derickschaefer/kpiboard/internal/builder"
	"github.com/derickschaefer/kpiboard/internal/filter"
	"github.com/derickschaefer/kpiboard/internal/format"
	"github.com/derickschaefer/kpiboard/internal/model"
)

// MetricView is a display-ready KPI card.
type MetricView struct {
	Title    string           `json:"title"`
	Value    string           `json:"value"`
	Diff     string           `json:"diff,omitempty"`
	Positive bool             `json:"positive"`
	Insight  string           `json:"insight,omitempty"`
	Raw      model.MetricCard `json:"raw"`
}

// ChartView is a display-ready chart: a built option, list items, or an
// error placeholder.
type ChartView struct {
	Title     string                 `json:"title"`
	Type      model.ChartType        `json:"type"`
	Declared  model.ChartType        `json:"declared_type"`
	Drill     bool                   `json:"drill,omitempty"`
	Chart     *model.NormalizedChart `json:"chart,omitempty"`
	Option    *builder.Option        `json:"option,omitempty"`
	Items     []string               `json:"items,omitempty"`
	Extra     *model.ExtraMetrics    `json:"extra_metrics,omitempty"`
	Insight   InsightState           `json:"insight"`
	ChartKey  string                 `json:"chart_key,omitempty"`
	Drillable bool                   `json:"drillable,omitempty"`
	NextChart string                 `json:"next_chart,omitempty"`
	Err       error                  `json:"-"`
	Error     string                 `json:"error,omitempty"`
}

// View is a snapshot of everything a renderer needs.
type View struct {
	Page      Page             `json:"page"`
	Status    Status           `json:"status"`
	Filter    filter.Selection `json:"filter"`
	Stale     bool             `json:"stale"`
	FetchedAt time.Time        `json:"fetched_at"`
	Metrics   []MetricView     `json:"metrics"`
	Charts    []ChartView      `json:"charts"`
	Insight   string           `json:"insight,omitempty"`
	Notice    string           `json:"notice,omitempty"`
	Ignored   []string         `json:"ignored,omitempty"` // upload keys that were not KPIs
	Points    int              `json:"points"`
}

// View builds the current snapshot.
func (c *Controller) View() View {
	v := View{
		Page:      c.page,
		Status:    c.status,
		Filter:    c.selection(),
		Stale:     c.stale,
		FetchedAt: c.fetchedAt,
		Metrics:   []MetricView{},
		Charts:    []ChartView{},
		Notice:    c.notice,
		Ignored:   c.ignored,
		Points:    c.quota.Points(),
	}
	if c.dash != nil {
		v.Insight = c.dash.Insight
		for _, m := range c.dash.Metrics {
			v.Metrics = append(v.Metrics, metricView(m))
		}
	}
	for _, cs := range c.charts {
		v.Charts = append(v.Charts, c.chartView(cs))
	}
	for _, cs := range c.drills {
		v.Charts = append(v.Charts, c.chartView(cs))
	}
	return v
}

// Chart returns the view of one chart by title.
func (c *Controller) Chart(title string) (ChartView, bool) {
	cs := c.find(title)
	if cs == nil {
		return ChartView{}, false
	}
	return c.chartView(*cs), true
}

func metricView(m model.MetricCard) MetricView {
	mv := MetricView{
		Title:   m.Title,
		Value:   format.Metric(m.Title, m.Value),
		Insight: m.Insight,
		Raw:     m,
	}
	if m.Diff != nil {
		mv.Diff = format.Diff(*m.Diff)
		mv.Positive = format.Positive(*m.Diff)
	}
	return mv
}

func (c *Controller) chartView(cs chartState) ChartView {
	cv := ChartView{
		Title:     cs.desc.Title,
		Type:      cs.desc.Type,
		Declared:  cs.desc.Type,
		Drill:     cs.drill,
		Extra:     cs.desc.ExtraMetrics,
		ChartKey:  cs.desc.ChartKey,
		Drillable: cs.desc.Drillable,
		NextChart: cs.desc.NextChart,
	}
	if st, ok := c.insights[cs.desc.Title]; ok {
		cv.Insight = *st
		if st.Err != nil {
			cv.Insight.Error = st.Err.Error()
		}
	}
	if cs.err != nil {
		cv.Err = cs.err
		cv.Error = "Chart unavailable: " + cs.err.Error()
		return cv
	}

	cv.Chart = cs.chart
	cv.Type = builder.Visual(cs.chart, c.overrides[cs.desc.Title])
	if cv.Type == model.ChartList {
		cv.Items = make([]string, len(cs.chart.ListItems))
		for i, li := range cs.chart.ListItems {
			cv.Items[i] = li.String()
		}
		return cv
	}
	opt, err := builder.Build(cs.chart, cv.Type)
	if err != nil {
		cv.Err = err
		cv.Error = "Chart unavailable: " + err.Error()
		return cv
	}
	cv.Option = opt
	return cv
}
