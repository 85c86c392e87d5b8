// Package normalize turns the backend's heterogeneous chart descriptors into
// the single model.NormalizedChart shape. The payload shape is resolved once,
// into a tagged union, and never inspected again downstream.
package normalize

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/derickschaefer/kpiboard/internal/model"
)

// ─── Payload union ────────────────────────────────────────────────────────────

// Payload is one of AxisSeriesPayload, CategoricalPayload,
// MultiSeriesPayload, ListPayload or GaugePayload.
type Payload interface {
	payload()
}

// AxisSeriesPayload is {x: [label], y: [number]}.
type AxisSeriesPayload struct {
	X []string
	Y []float64
}

// CategoricalPayload is {data: [{name, value}]}.
type CategoricalPayload struct {
	Names  []string
	Values []float64
}

// MultiSeriesPayload is {y|x: [category], series: [{name, data}]} with
// optional dual-axis definitions.
type MultiSeriesPayload struct {
	Categories []string
	Series     []model.Series
	Axes       []model.AxisDef
}

// ListPayload is {data: [string | {type, message, time}]}.
type ListPayload struct {
	Items []model.ListItem
}

// GaugePayload is {value: number}, a fraction in 0..1.
type GaugePayload struct {
	Value float64
}

func (AxisSeriesPayload) payload()  {}
func (CategoricalPayload) payload() {}
func (MultiSeriesPayload) payload() {}
func (ListPayload) payload()        {}
func (GaugePayload) payload()       {}

// ─── Resolve ──────────────────────────────────────────────────────────────────

type rawSeries struct {
	Name       string    `json:"name"`
	Type       string    `json:"type"`
	Data       []float64 `json:"data"`
	YAxisIndex int       `json:"yAxisIndex"`
}

type rawDatum struct {
	Name  json.RawMessage `json:"name"`
	Value *float64        `json:"value"`
}

// Resolve identifies the payload shape of d. The order is fixed: list type,
// then series, then {name,value} data, then x/y, then a scalar value.
func Resolve(d model.ChartDescriptor) (Payload, error) {
	if d.Type == model.ChartList {
		if !present(d.Data) {
			return ListPayload{}, nil
		}
		var items []model.ListItem
		if err := json.Unmarshal(d.Data, &items); err != nil {
			return nil, malformed(d, "list data: %v", err)
		}
		return ListPayload{Items: items}, nil
	}

	if present(d.Series) {
		return resolveMulti(d)
	}

	if present(d.Data) {
		var data []rawDatum
		if err := json.Unmarshal(d.Data, &data); err != nil {
			return nil, malformed(d, "data: %v", err)
		}
		p := CategoricalPayload{
			Names:  make([]string, 0, len(data)),
			Values: make([]float64, 0, len(data)),
		}
		for i, dt := range data {
			if dt.Value == nil {
				return nil, malformed(d, "data[%d] has no value", i)
			}
			name, err := label(dt.Name)
			if err != nil {
				return nil, malformed(d, "data[%d].name: %v", i, err)
			}
			p.Names = append(p.Names, name)
			p.Values = append(p.Values, *dt.Value)
		}
		return p, nil
	}

	if present(d.X) && present(d.Y) {
		x, err := labels(d.X)
		if err != nil {
			return nil, malformed(d, "x: %v", err)
		}
		var y []float64
		if err := json.Unmarshal(d.Y, &y); err != nil {
			return nil, malformed(d, "y: %v", err)
		}
		return AxisSeriesPayload{X: x, Y: y}, nil
	}

	if present(d.Value) {
		var v float64
		if err := json.Unmarshal(d.Value, &v); err != nil {
			return nil, malformed(d, "value: %v", err)
		}
		return GaugePayload{Value: v}, nil
	}

	return nil, malformed(d, "no recognised payload shape")
}

func resolveMulti(d model.ChartDescriptor) (Payload, error) {
	var rs []rawSeries
	if err := json.Unmarshal(d.Series, &rs); err != nil {
		return nil, malformed(d, "series: %v", err)
	}

	// Categories come from y when it holds labels (horizontal layouts),
	// otherwise from x.
	var cats []string
	var err error
	switch {
	case present(d.Y) && isLabelArray(d.Y):
		cats, err = labels(d.Y)
	case present(d.X):
		cats, err = labels(d.X)
	default:
		return nil, malformed(d, "series without category axis")
	}
	if err != nil {
		return nil, malformed(d, "categories: %v", err)
	}

	p := MultiSeriesPayload{Categories: cats, Series: make([]model.Series, len(rs))}
	for i, s := range rs {
		p.Series[i] = model.Series{
			Name:      s.Name,
			Values:    s.Data,
			AxisIndex: s.YAxisIndex,
			Kind:      s.Type,
		}
	}
	if present(d.YAxis) {
		if err := json.Unmarshal(d.YAxis, &p.Axes); err != nil {
			return nil, malformed(d, "yAxis: %v", err)
		}
	}
	return p, nil
}

// ─── Normalize ────────────────────────────────────────────────────────────────

// Normalize resolves d and maps it onto a NormalizedChart. Any mismatch
// between category count and a series length is ErrMalformedResponse.
func Normalize(d model.ChartDescriptor) (*model.NormalizedChart, error) {
	p, err := Resolve(d)
	if err != nil {
		return nil, err
	}

	nc := &model.NormalizedChart{
		Title:      d.Title,
		Type:       d.Type,
		Categories: []string{},
		Series:     []model.Series{},
		Extra:      d.ExtraMetrics,
	}

	switch p := p.(type) {
	case ListPayload:
		nc.ListItems = append([]model.ListItem{}, p.Items...)
		return nc, nil
	case CategoricalPayload:
		nc.Categories = append(nc.Categories, p.Names...)
		nc.Series = []model.Series{{Name: d.Title, Values: append([]float64{}, p.Values...)}}
	case AxisSeriesPayload:
		nc.Categories = append(nc.Categories, p.X...)
		nc.Series = []model.Series{{Name: d.Title, Values: append([]float64{}, p.Y...)}}
	case MultiSeriesPayload:
		nc.Categories = append(nc.Categories, p.Categories...)
		for _, s := range p.Series {
			s.Values = append([]float64{}, s.Values...)
			nc.Series = append(nc.Series, s)
		}
		if len(p.Axes) > 0 {
			nc.Axes = append([]model.AxisDef{}, p.Axes...)
		}
	case GaugePayload:
		nc.Categories = []string{d.Title}
		nc.Series = []model.Series{{Name: d.Title, Values: []float64{p.Value}}}
	}

	for _, s := range nc.Series {
		if len(s.Values) != len(nc.Categories) {
			return nil, malformed(d, "series %q has %d values for %d categories",
				s.Name, len(s.Values), len(nc.Categories))
		}
	}
	return nc, nil
}

// ─── Helpers ──────────────────────────────────────────────────────────────────

func malformed(d model.ChartDescriptor, format string, args ...any) error {
	return fmt.Errorf("chart %q (%s): %s: %w", d.Title, d.Type, fmt.Sprintf(format, args...), model.ErrMalformedResponse)
}

// present reports whether a raw field was sent with a non-null value.
func present(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && !bytes.Equal(raw, []byte("null"))
}

// isLabelArray reports whether raw is an array whose first element is a string.
func isLabelArray(raw json.RawMessage) bool {
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil || len(elems) == 0 {
		return false
	}
	first := bytes.TrimSpace(elems[0])
	return len(first) > 0 && first[0] == '"'
}

// labels decodes an array of strings or numbers into display labels.
func labels(raw json.RawMessage) ([]string, error) {
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil, err
	}
	out := make([]string, len(elems))
	for i, e := range elems {
		s, err := label(e)
		if err != nil {
			return nil, fmt.Errorf("[%d]: %w", i, err)
		}
		out[i] = s
	}
	return out, nil
}

func label(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		err := json.Unmarshal(raw, &s)
		return s, err
	}
	f, err := strconv.ParseFloat(string(raw), 64)
	if err != nil {
		return "", fmt.Errorf("label %s is neither string nor number", raw)
	}
	return strconv.FormatFloat(f, 'f', -1, 64), nil
}
