// Package tui is the interactive terminal dashboard. It hosts one page
// controller at a time and adapts its Cmd/Msg protocol to Bubble Tea.
package tui

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/derickschaefer/kpiboard/internal/chart"
	"github.com/derickschaefer/kpiboard/internal/controller"
	"github.com/derickschaefer/kpiboard/internal/filter"
	"github.com/derickschaefer/kpiboard/internal/model"
	"github.com/derickschaefer/kpiboard/internal/util"
)

// Opener builds the controller for a page name.
type Opener func(page string) (*controller.Controller, error)

// Options configures New.
type Options struct {
	Pages   []controller.Page
	Open    Opener
	Start   string        // initial page name; defaults to the first page
	Refresh time.Duration // auto-refresh interval; 0 disables
}

// ctrlMsg carries a controller message tagged with the generation of the
// controller that produced it, so messages from a closed page are dropped.
type ctrlMsg struct {
	gen int
	msg controller.Msg
}

// Model is the Bubble Tea model.
type Model struct {
	opts     Options
	ctrl     *controller.Controller
	gen      int
	page     int
	selected int

	keys    keyMap
	spinner spinner.Model
	input   textinput.Model
	editing bool

	width  int
	height int
	err    error
}

// New opens the start page.
func New(opts Options) (*Model, error) {
	if len(opts.Pages) == 0 {
		return nil, errors.New("tui: no pages")
	}
	if opts.Open == nil {
		return nil, errors.New("tui: opener is required")
	}
	page := 0
	for i, p := range opts.Pages {
		if strings.EqualFold(p.Name, opts.Start) {
			page = i
		}
	}
	c, err := opts.Open(opts.Pages[page].Name)
	if err != nil {
		return nil, err
	}

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(colorPrimary)

	in := textinput.New()
	in.Placeholder = "2024-01-01 2024-01-31"
	in.CharLimit = 21
	in.Prompt = "custom range › "

	return &Model{
		opts:    opts,
		ctrl:    c,
		page:    page,
		keys:    defaultKeyMap(),
		spinner: s,
		input:   in,
		width:   100,
		height:  40,
	}, nil
}

// Run starts the program and blocks until the user quits or ctx ends.
func Run(ctx context.Context, opts Options) error {
	m, err := New(opts)
	if err != nil {
		return err
	}
	defer func() { m.ctrl.Close() }()
	_, err = tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

// Controller returns the active page controller.
func (m *Model) Controller() *controller.Controller { return m.ctrl }

// adapt converts a controller Cmd into a tea.Cmd bound to the current
// controller generation.
func (m *Model) adapt(cmd controller.Cmd) tea.Cmd {
	return adaptGen(m.gen, cmd)
}

func adaptGen(gen int, cmd controller.Cmd) tea.Cmd {
	if cmd == nil {
		return nil
	}
	return func() tea.Msg {
		switch msg := cmd().(type) {
		case nil:
			return nil
		case controller.BatchMsg:
			cmds := make([]tea.Cmd, len(msg))
			for i, c := range msg {
				cmds[i] = adaptGen(gen, c)
			}
			return tea.BatchMsg(cmds)
		default:
			return ctrlMsg{gen: gen, msg: msg}
		}
	}
}

// Init mounts the first page.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.mount())
}

func (m *Model) mount() tea.Cmd {
	return tea.Batch(m.adapt(m.ctrl.Init()), m.adapt(m.ctrl.Tick(m.opts.Refresh)))
}

// Update handles messages.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case ctrlMsg:
		if msg.gen != m.gen {
			return m, nil
		}
		return m, m.adapt(m.ctrl.Update(msg.msg))

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if m.editing {
			return m, m.handleEditKey(msg)
		}
		return m, m.handleKey(msg)
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	m.err = nil
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.ctrl.Close()
		return tea.Quit
	case key.Matches(msg, m.keys.NextPage):
		return m.switchTo((m.page + 1) % len(m.opts.Pages))
	case key.Matches(msg, m.keys.PrevPage):
		return m.switchTo((m.page - 1 + len(m.opts.Pages)) % len(m.opts.Pages))
	case key.Matches(msg, m.keys.NextChart):
		if n := len(m.ctrl.View().Charts); n > 0 {
			m.selected = (m.selected + 1) % n
		}
	case key.Matches(msg, m.keys.PrevChart):
		if n := len(m.ctrl.View().Charts); n > 0 {
			m.selected = (m.selected - 1 + n) % n
		}
	case key.Matches(msg, m.keys.Refresh):
		return m.adapt(m.ctrl.Refresh())
	case key.Matches(msg, m.keys.Filter):
		return m.act(m.ctrl.SelectPreset(nextPreset(m.ctrl.Selection().Preset)))
	case key.Matches(msg, m.keys.Reset):
		return m.act(m.ctrl.ResetFilter())
	case key.Matches(msg, m.keys.Custom):
		if !m.ctrl.Page().Filtered {
			m.err = fmt.Errorf("%s does not take a filter", m.ctrl.Page().Title)
			return nil
		}
		m.editing = true
		m.input.SetValue("")
		return m.input.Focus()
	case key.Matches(msg, m.keys.ChartType):
		cv, ok := m.selectedChart()
		if !ok {
			return nil
		}
		m.err = m.ctrl.SetChartType(cv.Title, nextType(cv))
	case key.Matches(msg, m.keys.Insight):
		cv, ok := m.selectedChart()
		if !ok {
			return nil
		}
		return m.act(m.ctrl.RequestInsight(cv.Title))
	}
	return nil
}

func (m *Model) handleEditKey(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, m.keys.CancelEdit):
		m.editing = false
		m.input.Blur()
		return nil
	case key.Matches(msg, m.keys.Confirm):
		m.editing = false
		m.input.Blur()
		return m.applyCustom(m.input.Value())
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return cmd
}

// applyCustom parses "START END" and sets the custom range.
func (m *Model) applyCustom(text string) tea.Cmd {
	fields := strings.Fields(text)
	if len(fields) != 2 {
		m.err = errors.New("enter two dates: YYYY-MM-DD YYYY-MM-DD")
		return nil
	}
	start, err := util.ParseDate(fields[0])
	if err != nil {
		m.err = err
		return nil
	}
	end, err := util.ParseDate(fields[1])
	if err != nil {
		m.err = err
		return nil
	}
	var cmds []tea.Cmd
	for _, step := range []func() (controller.Cmd, error){
		func() (controller.Cmd, error) { return m.ctrl.SelectPreset(filter.Custom) },
		func() (controller.Cmd, error) { return m.ctrl.SetCustomStart(start) },
		func() (controller.Cmd, error) { return m.ctrl.SetCustomEnd(end) },
	} {
		cmd, err := step()
		if err != nil {
			m.err = err
			return tea.Batch(cmds...)
		}
		cmds = append(cmds, m.adapt(cmd))
	}
	return tea.Batch(cmds...)
}

func (m *Model) act(cmd controller.Cmd, err error) tea.Cmd {
	if err != nil {
		m.err = err
		return nil
	}
	return m.adapt(cmd)
}

func (m *Model) switchTo(i int) tea.Cmd {
	if i == m.page {
		return nil
	}
	c, err := m.opts.Open(m.opts.Pages[i].Name)
	if err != nil {
		m.err = err
		return nil
	}
	m.ctrl.Close()
	m.ctrl = c
	m.gen++
	m.page = i
	m.selected = 0
	return m.mount()
}

func (m *Model) selectedChart() (controller.ChartView, bool) {
	charts := m.ctrl.View().Charts
	if len(charts) == 0 {
		return controller.ChartView{}, false
	}
	if m.selected >= len(charts) {
		m.selected = len(charts) - 1
	}
	return charts[m.selected], true
}

func nextPreset(p filter.Preset) filter.Preset {
	// Custom is entered through the date prompt.
	presets := filter.Presets[:len(filter.Presets)-1]
	for i, q := range presets {
		if q == p {
			return presets[(i+1)%len(presets)]
		}
	}
	return presets[0]
}

// nextType cycles through the types a chart may be shown as, ending back
// at the declared type.
func nextType(cv controller.ChartView) model.ChartType {
	if cv.Declared == model.ChartList {
		return ""
	}
	var types []model.ChartType
	for _, t := range model.ChartTypes {
		if t != model.ChartList {
			types = append(types, t)
		}
	}
	for i, t := range types {
		if t == cv.Type {
			next := types[(i+1)%len(types)]
			if next == cv.Declared {
				return ""
			}
			return next
		}
	}
	return ""
}

// ─── View ─────────────────────────────────────────────────────────────────────

// View renders the screen.
func (m *Model) View() string {
	v := m.ctrl.View()
	var b strings.Builder

	b.WriteString(m.tabs())
	b.WriteString("\n\n")
	b.WriteString(m.statusLine(v))
	b.WriteString("\n")
	if v.Notice != "" {
		b.WriteString(noticeStyle.Render(v.Notice) + "\n")
	}
	if m.err != nil {
		b.WriteString(errorStyle.Render(m.err.Error()) + "\n")
	}
	if m.editing {
		b.WriteString(m.input.View() + "\n")
	}
	b.WriteString("\n")

	if cards := m.cards(v.Metrics); cards != "" {
		b.WriteString(cards + "\n\n")
	}
	if v.Insight != "" {
		b.WriteString(mutedStyle.Render(v.Insight) + "\n\n")
	}
	b.WriteString(m.charts(v.Charts))
	b.WriteString("\n")
	b.WriteString(m.help())

	return clip(b.String(), m.width)
}

func (m *Model) tabs() string {
	parts := make([]string, len(m.opts.Pages))
	for i, p := range m.opts.Pages {
		if i == m.page {
			parts[i] = activeTabStyle.Render(p.Title)
		} else {
			parts[i] = tabStyle.Render(p.Title)
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

func (m *Model) statusLine(v controller.View) string {
	parts := []string{titleStyle.Render(v.Filter.String())}
	switch v.Status {
	case controller.StatusLoading:
		parts = append(parts, m.spinner.View()+" loading")
	case controller.StatusFailed:
		parts = append(parts, errorStyle.Render("failed"))
	}
	if v.Stale && !v.FetchedAt.IsZero() {
		parts = append(parts, mutedStyle.Render("cached "+v.FetchedAt.Local().Format("15:04")))
	}
	parts = append(parts, mutedStyle.Render(fmt.Sprintf("%d insight points", v.Points)))
	return strings.Join(parts, "  ")
}

func (m *Model) cards(metrics []controller.MetricView) string {
	if len(metrics) == 0 {
		return ""
	}
	perRow := m.width / (lipgloss.Width(cardStyle.Render("")) + 1)
	if perRow < 1 {
		perRow = 1
	}
	var rows []string
	for start := 0; start < len(metrics); start += perRow {
		end := start + perRow
		if end > len(metrics) {
			end = len(metrics)
		}
		var row []string
		for _, mv := range metrics[start:end] {
			row = append(row, card(mv))
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, row...))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func card(mv controller.MetricView) string {
	lines := []string{cardTitleStyle.Render(mv.Title), cardValueStyle.Render(mv.Value)}
	if mv.Diff != "" {
		if mv.Positive {
			lines = append(lines, upStyle.Render("▲ "+mv.Diff))
		} else {
			lines = append(lines, downStyle.Render("▼ "+mv.Diff))
		}
	}
	return cardStyle.Render(strings.Join(lines, "\n"))
}

func (m *Model) charts(charts []controller.ChartView) string {
	if len(charts) == 0 {
		return mutedStyle.Render("No charts") + "\n"
	}
	if m.selected >= len(charts) {
		m.selected = len(charts) - 1
	}
	var b strings.Builder
	for i, cv := range charts {
		marker, style := "  ", mutedStyle
		if i == m.selected {
			marker, style = "› ", selectedStyle
		}
		label := cv.Title
		if cv.Type != cv.Declared {
			label += " (" + string(cv.Type) + ")"
		}
		b.WriteString(style.Render(marker+label) + "\n")
	}
	b.WriteString("\n")

	cv := charts[m.selected]
	switch {
	case cv.Error != "":
		b.WriteString(errorStyle.Render(cv.Error) + "\n")
	case cv.Chart != nil:
		var buf bytes.Buffer
		if err := chart.Render(&buf, cv.Chart, cv.Type, chart.Options{Width: m.width - 2, Height: 10, Color: true}); err != nil {
			b.WriteString(errorStyle.Render(err.Error()) + "\n")
		} else {
			b.WriteString(buf.String())
		}
	}
	switch {
	case cv.Insight.Loading:
		b.WriteString("\n" + m.spinner.View() + " generating insight\n")
	case cv.Insight.Error != "":
		b.WriteString("\n" + errorStyle.Render(cv.Insight.Error) + "\n")
	case cv.Insight.Text != "":
		b.WriteString("\n" + cv.Insight.Text + "\n")
	}
	return b.String()
}

func (m *Model) help() string {
	var parts []string
	for _, k := range m.keys.help() {
		h := k.Help()
		parts = append(parts, h.Key+" "+h.Desc)
	}
	return mutedStyle.Render(strings.Join(parts, " • "))
}

// clip truncates every line to width, keeping ANSI styling intact.
func clip(s string, width int) string {
	if width <= 0 {
		return s
	}
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = ansi.Truncate(l, width, "…")
	}
	return strings.Join(lines, "\n")
}
