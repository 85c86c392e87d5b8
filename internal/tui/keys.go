package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	NextPage   key.Binding
	PrevPage   key.Binding
	NextChart  key.Binding
	PrevChart  key.Binding
	Filter     key.Binding
	Custom     key.Binding
	Reset      key.Binding
	Refresh    key.Binding
	ChartType  key.Binding
	Insight    key.Binding
	Quit       key.Binding
	Confirm    key.Binding
	CancelEdit key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		NextPage: key.NewBinding(
			key.WithKeys("tab", "l", "right"),
			key.WithHelp("tab", "next page"),
		),
		PrevPage: key.NewBinding(
			key.WithKeys("shift+tab", "h", "left"),
			key.WithHelp("shift+tab", "prev page"),
		),
		NextChart: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("j", "next chart"),
		),
		PrevChart: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("k", "prev chart"),
		),
		Filter: key.NewBinding(
			key.WithKeys("f"),
			key.WithHelp("f", "next filter"),
		),
		Custom: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "custom range"),
		),
		Reset: key.NewBinding(
			key.WithKeys("x"),
			key.WithHelp("x", "reset filter"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "refresh"),
		),
		ChartType: key.NewBinding(
			key.WithKeys("t"),
			key.WithHelp("t", "chart type"),
		),
		Insight: key.NewBinding(
			key.WithKeys("i"),
			key.WithHelp("i", "insight"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
		Confirm: key.NewBinding(
			key.WithKeys("enter"),
		),
		CancelEdit: key.NewBinding(
			key.WithKeys("esc"),
		),
	}
}

func (k keyMap) help() []key.Binding {
	return []key.Binding{
		k.NextPage, k.NextChart, k.Filter, k.Custom, k.Reset,
		k.Refresh, k.ChartType, k.Insight, k.Quit,
	}
}
