// Package kpi turns the flat KPI map returned by POST /upload into a
// Dashboard the rest of the pipeline understands.
//
// The upload endpoint returns scalars ("fraud_rate": 0.0123) next to paired
// columns ("top_cities": {"labels": [...], "values": [...]}). Scalars become
// metric cards; paired columns become bar charts, or line charts when the
// label column is a day or month.
package kpi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/derickschaefer/kpiboard/internal/model"
	"github.com/derickschaefer/kpiboard/internal/util"
)

// labelKeys and valueKeys are tried in order when pairing columns.
var (
	labelKeys = []string{"labels", "cities", "day", "month", "names", "categories"}
	valueKeys = []string{"values", "count", "growth_rates", "fraud_rates", "counts"}
	timeKeys  = map[string]bool{"day": true, "month": true}
)

// FromUpload returns the dashboard carried by an upload's kpis field. A body
// that already has metrics or charts is decoded as-is; a flat map is derived.
func FromUpload(raw json.RawMessage) (*model.Dashboard, []string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return &model.Dashboard{Metrics: []model.MetricCard{}, Charts: []model.ChartDescriptor{}}, nil, nil
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, nil, fmt.Errorf("upload kpis: %w: %v", model.ErrMalformedResponse, err)
	}
	if _, ok := m["metrics"]; ok {
		return decodeDashboard(raw)
	}
	if _, ok := m["charts"]; ok {
		return decodeDashboard(raw)
	}
	d, skipped := Derive(m)
	return d, skipped, nil
}

func decodeDashboard(raw json.RawMessage) (*model.Dashboard, []string, error) {
	var d model.Dashboard
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, nil, fmt.Errorf("upload dashboard: %w: %v", model.ErrMalformedResponse, err)
	}
	return &d, nil, nil
}

// Derive builds a dashboard from a flat KPI map. Keys are processed in sorted
// order so the output is stable. Keys whose shape is not recognised are
// returned in skipped.
func Derive(raw map[string]json.RawMessage) (*model.Dashboard, []string) {
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	d := &model.Dashboard{Metrics: []model.MetricCard{}, Charts: []model.ChartDescriptor{}}
	var skipped []string
	for _, k := range keys {
		v := bytes.TrimSpace(raw[k])
		if len(v) == 0 || bytes.Equal(v, []byte("null")) {
			skipped = append(skipped, k)
			continue
		}
		switch v[0] {
		case '{':
			c, ok := pairedChart(k, v)
			if !ok {
				skipped = append(skipped, k)
				continue
			}
			d.Charts = append(d.Charts, c)
		case '[':
			skipped = append(skipped, k)
		default:
			var val model.Value
			if err := json.Unmarshal(v, &val); err != nil {
				skipped = append(skipped, k)
				continue
			}
			d.Metrics = append(d.Metrics, model.MetricCard{Title: util.Humanize(k), Value: val})
		}
	}
	return d, skipped
}

func pairedChart(key string, v json.RawMessage) (model.ChartDescriptor, bool) {
	var cols map[string]json.RawMessage
	if err := json.Unmarshal(v, &cols); err != nil {
		return model.ChartDescriptor{}, false
	}
	lk, ok := firstKey(cols, labelKeys)
	if !ok {
		return model.ChartDescriptor{}, false
	}
	vk, ok := firstKey(cols, valueKeys)
	if !ok {
		return model.ChartDescriptor{}, false
	}
	typ := model.ChartBar
	if timeKeys[lk] {
		typ = model.ChartLine
	}
	return model.ChartDescriptor{
		Title: util.Humanize(key),
		Type:  typ,
		X:     cols[lk],
		Y:     cols[vk],
	}, true
}

func firstKey(cols map[string]json.RawMessage, candidates []string) (string, bool) {
	for _, k := range candidates {
		if _, ok := cols[k]; ok {
			return k, true
		}
	}
	return "", false
}
