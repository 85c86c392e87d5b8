// Package controller drives one dashboard page through mount, filter
// changes, refreshes, insights, uploads and drill-downs.
//
// A Controller is an Elm-style state machine. Operations never block: they
// mutate state and return a Cmd, a function that performs the I/O off the
// caller's goroutine and returns a Msg. Feeding that Msg back through Update
// applies the result. All mutation happens on whichever single goroutine
// calls Init, Update and the operations; Loop and Settle are the two drivers.
//
// Every dashboard fetch is tagged with a sequence number and the filter key
// it was issued for. A response is applied only while its filter key is
// still current and no newer response has been applied.
package controller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/derickschaefer/kpiboard/internal/cache"
	"github.com/derickschaefer/kpiboard/internal/client"
	"github.com/derickschaefer/kpiboard/internal/filter"
	"github.com/derickschaefer/kpiboard/internal/kpi"
	"github.com/derickschaefer/kpiboard/internal/model"
	"github.com/derickschaefer/kpiboard/internal/normalize"
	"github.com/derickschaefer/kpiboard/internal/store"
	"github.com/derickschaefer/kpiboard/internal/util"
)

// ─── Commands & Messages ──────────────────────────────────────────────────────

// Msg is the result of a Cmd.
type Msg interface{}

// Cmd performs I/O and reports back with a Msg. A nil Cmd does nothing.
type Cmd func() Msg

// BatchMsg asks the driver to run several Cmds concurrently.
type BatchMsg []Cmd

// Batch combines cmds, dropping nils.
func Batch(cmds ...Cmd) Cmd {
	var valid []Cmd
	for _, c := range cmds {
		if c != nil {
			valid = append(valid, c)
		}
	}
	switch len(valid) {
	case 0:
		return nil
	case 1:
		return valid[0]
	}
	return func() Msg { return BatchMsg(valid) }
}

type fetchedMsg struct {
	seq  int
	key  string
	dash *model.Dashboard
	err  error
}

type insightMsg struct {
	title   string
	key     string
	insight *model.Insight
	err     error
}

type uploadedMsg struct {
	name    string
	dash    *model.Dashboard
	skipped []string
	err     error
}

type drilledMsg struct {
	desc *model.ChartDescriptor
	err  error
}

type tickMsg struct {
	interval time.Duration
}

// ─── Status ───────────────────────────────────────────────────────────────────

// Status is the page lifecycle state.
type Status int

const (
	StatusMounted Status = iota
	StatusLoading
	StatusReady
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusMounted:
		return "mounted"
	case StatusLoading:
		return "loading"
	case StatusReady:
		return "ready"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	for _, st := range []Status{StatusMounted, StatusLoading, StatusReady, StatusFailed} {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown status %q", b)
}

// ─── Controller ───────────────────────────────────────────────────────────────

// Backend is the subset of the data fetch client a page needs.
type Backend interface {
	FetchDashboard(ctx context.Context, endpoint string, sel filter.Selection) (*model.Dashboard, error)
	FetchInsight(ctx context.Context, endpoint, chartTitle string, sel filter.Selection) (*model.Insight, error)
	UploadFile(ctx context.Context, name string, r io.Reader) (*model.UploadResult, error)
	FetchDrill(ctx context.Context, q client.DrillQuery) (*model.ChartDescriptor, error)
}

// Options configures New.
type Options struct {
	Page    Page
	Backend Backend
	// Store is the shared store; the controller namespaces it to the page.
	Store store.KV
	// Quota is shared across pages. Nil gives the page a private quota.
	Quota *Quota
	Now   func() time.Time
}

type chartState struct {
	desc  model.ChartDescriptor
	chart *model.NormalizedChart
	err   error
	drill bool
}

// Controller holds one page's state.
type Controller struct {
	ctx     context.Context
	cancel  context.CancelFunc
	page    Page
	backend Backend
	filter  *filter.State
	cache   *cache.Page
	quota   *Quota
	now     func() time.Time

	status    Status
	seq       int
	applied   int
	dash      *model.Dashboard
	charts    []chartState
	drills    []chartState
	overrides map[string]model.ChartType
	insights  map[string]*InsightState
	notice    string
	ignored   []string
	stale     bool
	fetchedAt time.Time
	closed    bool
	// reserved counts insight points taken for requests whose reply has
	// not been applied yet.
	reserved int
}

const needDates = "Select a start and end date to load data."

// New creates a controller and restores the page's persisted filter.
func New(ctx context.Context, opts Options) (*Controller, error) {
	if opts.Backend == nil {
		return nil, errors.New("controller: backend is required")
	}
	if opts.Store == nil {
		return nil, errors.New("controller: store is required")
	}
	if opts.Page.Name == "" {
		return nil, errors.New("controller: page is required")
	}
	quota := opts.Quota
	if quota == nil {
		q, err := NewQuota(store.NewMemory(), DefaultPoints)
		if err != nil {
			return nil, err
		}
		quota = q
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	kv := store.Namespace(opts.Store, opts.Page.Name)
	fs := filter.New(kv)
	if err := fs.Restore(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	return &Controller{
		ctx:       ctx,
		cancel:    cancel,
		page:      opts.Page,
		backend:   opts.Backend,
		filter:    fs,
		cache:     cache.New(kv, opts.Page.Name),
		quota:     quota,
		now:       now,
		overrides: make(map[string]model.ChartType),
		insights:  make(map[string]*InsightState),
	}, nil
}

// Page returns the page this controller drives.
func (c *Controller) Page() Page { return c.page }

// Status returns the lifecycle state.
func (c *Controller) Status() Status { return c.status }

// Selection returns the filter the next fetch will use.
func (c *Controller) Selection() filter.Selection { return c.selection() }

// Quota returns the insight quota.
func (c *Controller) Quota() *Quota { return c.quota }

func (c *Controller) selection() filter.Selection {
	if !c.page.Filtered {
		return filter.Selection{Preset: filter.Default}
	}
	return c.filter.Selection()
}

// Init renders the cached response, if any, and starts the first fetch.
func (c *Controller) Init() Cmd {
	cr, ok, err := c.cache.Load()
	if err != nil {
		slog.Warn("reading cached page", "page", c.page.Name, "err", err)
	} else if ok {
		c.apply(&cr.Dashboard)
		c.stale = true
		c.fetchedAt = cr.FetchedAt
	}
	if !c.selection().Complete() {
		c.notice = needDates
		c.idle()
		return nil
	}
	return c.fetch()
}

// Refresh refetches with the current filter.
func (c *Controller) Refresh() Cmd {
	if c.closed || !c.selection().Complete() {
		return nil
	}
	return c.fetch()
}

// Tick returns a Cmd that fires a refresh after interval and re-arms itself.
func (c *Controller) Tick(interval time.Duration) Cmd {
	if interval <= 0 || c.closed {
		return nil
	}
	ctx := c.ctx
	return func() Msg {
		t := time.NewTimer(interval)
		defer t.Stop()
		select {
		case <-t.C:
			return tickMsg{interval: interval}
		case <-ctx.Done():
			return nil
		}
	}
}

// Close cancels in-flight requests. Later messages are ignored.
func (c *Controller) Close() {
	if c.closed {
		return
	}
	c.closed = true
	c.cancel()
	for ; c.reserved > 0; c.reserved-- {
		c.refund()
	}
}

// idle leaves Loading when no fetch is outstanding.
func (c *Controller) idle() {
	if c.dash != nil {
		c.status = StatusReady
	} else {
		c.status = StatusMounted
	}
}

func (c *Controller) fetch() Cmd {
	c.seq++
	seq, sel := c.seq, c.selection()
	c.status = StatusLoading
	ctx, backend, endpoint := c.ctx, c.backend, c.page.Endpoint
	return func() Msg {
		d, err := backend.FetchDashboard(ctx, endpoint, sel)
		return fetchedMsg{seq: seq, key: sel.Key(), dash: d, err: err}
	}
}

// Update applies msg and returns any follow-up Cmd.
func (c *Controller) Update(msg Msg) Cmd {
	if c.closed {
		return nil
	}
	switch m := msg.(type) {
	case fetchedMsg:
		c.onFetched(m)
	case insightMsg:
		c.onInsight(m)
	case uploadedMsg:
		c.onUploaded(m)
	case drilledMsg:
		c.onDrilled(m)
	case tickMsg:
		return Batch(c.Refresh(), c.Tick(m.interval))
	}
	return nil
}

func (c *Controller) onFetched(m fetchedMsg) {
	if m.key != c.selection().Key() || m.seq < c.applied {
		slog.Debug("discarding stale response", "page", c.page.Name, "seq", m.seq, "filter", m.key)
		return
	}
	if m.err != nil {
		if errors.Is(m.err, context.Canceled) {
			return
		}
		slog.Debug("page fetch failed", "page", c.page.Name, "seq", m.seq, "err", m.err)
		c.notice = "Could not load data: " + m.err.Error()
		if m.seq == c.seq {
			c.status = StatusFailed
		}
		return
	}

	c.applied = m.seq
	c.apply(m.dash)
	c.stale = false
	c.notice = ""
	c.ignored = nil
	c.fetchedAt = c.now()
	if err := c.cache.Save(m.key, m.dash); err != nil {
		slog.Warn("caching page", "page", c.page.Name, "err", err)
	}
	if m.seq == c.seq {
		c.status = StatusReady
	}
}

// apply replaces the page content. Each chart is normalized on its own so one
// malformed descriptor leaves its siblings intact.
func (c *Controller) apply(d *model.Dashboard) {
	if d == nil {
		d = &model.Dashboard{}
	}
	c.dash = d
	c.charts = make([]chartState, 0, len(d.Charts))
	for _, desc := range d.Charts {
		n, err := normalize.Normalize(desc)
		if err != nil {
			slog.Debug("chart unavailable", "page", c.page.Name, "chart", desc.Title, "err", err)
		}
		c.charts = append(c.charts, chartState{desc: desc, chart: n, err: err})
	}
}

// ─── Filter ───────────────────────────────────────────────────────────────────

func (c *Controller) requireFilter() error {
	if !c.page.Filtered {
		return fmt.Errorf("page %q does not take a filter", c.page.Name)
	}
	return nil
}

// SelectPreset changes the filter and returns the fetch it makes due.
func (c *Controller) SelectPreset(p filter.Preset) (Cmd, error) {
	if err := c.requireFilter(); err != nil {
		return nil, err
	}
	due, err := c.filter.Select(p)
	if err != nil {
		return nil, err
	}
	return c.afterFilterChange(due), nil
}

// SetCustomStart sets the custom start date. A fetch is due once both
// dates are present.
func (c *Controller) SetCustomStart(d time.Time) (Cmd, error) {
	if err := c.requireFilter(); err != nil {
		return nil, err
	}
	due, err := c.filter.SetCustomStart(d)
	if err != nil {
		return nil, err
	}
	return c.afterFilterChange(due), nil
}

// SetCustomEnd sets the custom end date.
func (c *Controller) SetCustomEnd(d time.Time) (Cmd, error) {
	if err := c.requireFilter(); err != nil {
		return nil, err
	}
	due, err := c.filter.SetCustomEnd(d)
	if err != nil {
		return nil, err
	}
	return c.afterFilterChange(due), nil
}

// ResetFilter returns to the default preset and refetches.
func (c *Controller) ResetFilter() (Cmd, error) {
	if err := c.requireFilter(); err != nil {
		return nil, err
	}
	if err := c.filter.Reset(); err != nil {
		return nil, err
	}
	return c.afterFilterChange(true), nil
}

// Apply sets the whole filter without fetching. One-shot drivers call it
// before Init. Dates left empty keep their persisted values.
func (c *Controller) Apply(sel filter.Selection) error {
	if err := sel.Validate(); err != nil {
		return err
	}
	if !c.page.Filtered {
		if sel != (filter.Selection{Preset: filter.Default}) {
			return c.requireFilter()
		}
		return nil
	}
	if _, err := c.filter.Select(sel.Preset); err != nil {
		return err
	}
	for _, d := range []struct {
		v   string
		set func(time.Time) (bool, error)
	}{{sel.Start, c.filter.SetCustomStart}, {sel.End, c.filter.SetCustomEnd}} {
		if d.v == "" {
			continue
		}
		t, err := util.ParseDate(d.v)
		if err != nil {
			return err
		}
		if _, err := d.set(t); err != nil {
			return err
		}
	}
	c.insights = make(map[string]*InsightState)
	return nil
}

func (c *Controller) afterFilterChange(due bool) Cmd {
	// Insights describe the previous window.
	c.insights = make(map[string]*InsightState)
	if !due {
		c.notice = needDates
		c.idle()
		return nil
	}
	c.notice = ""
	return c.fetch()
}

// ─── Chart types ──────────────────────────────────────────────────────────────

func (c *Controller) find(title string) *chartState {
	for i := range c.charts {
		if c.charts[i].desc.Title == title {
			return &c.charts[i]
		}
	}
	for i := range c.drills {
		if c.drills[i].desc.Title == title {
			return &c.drills[i]
		}
	}
	return nil
}

// SetChartType shows the chart titled title as t. An empty t restores the
// server-declared type. No request is made.
func (c *Controller) SetChartType(title string, t model.ChartType) error {
	cs := c.find(title)
	if cs == nil {
		return fmt.Errorf("no chart titled %q on %s", title, c.page.Name)
	}
	if t == "" {
		delete(c.overrides, title)
		return nil
	}
	if _, err := model.ParseChartType(string(t)); err != nil {
		return err
	}
	if (cs.desc.Type == model.ChartList) != (t == model.ChartList) {
		return fmt.Errorf("chart %q cannot be shown as %s", title, t)
	}
	c.overrides[title] = t
	return nil
}

// ─── Insights ─────────────────────────────────────────────────────────────────

// RequestInsight asks the backend for commentary on one chart. It refuses
// without a request when the quota is spent or the chart is already loading.
func (c *Controller) RequestInsight(title string) (Cmd, error) {
	if c.closed {
		return nil, errors.New("controller closed")
	}
	if c.find(title) == nil {
		return nil, fmt.Errorf("no chart titled %q on %s", title, c.page.Name)
	}
	st, ok := c.insights[title]
	if ok && st.Loading {
		return nil, model.ErrInsightInFlight
	}
	if err := c.quota.Reserve(); err != nil {
		return nil, err
	}
	c.reserved++
	if !ok {
		st = &InsightState{}
		c.insights[title] = st
	}
	st.Loading = true
	st.Err = nil

	sel := c.selection()
	ctx, backend, endpoint := c.ctx, c.backend, c.page.Endpoint
	return func() Msg {
		in, err := backend.FetchInsight(ctx, endpoint, title, sel)
		return insightMsg{title: title, key: sel.Key(), insight: in, err: err}
	}, nil
}

func (c *Controller) onInsight(m insightMsg) {
	c.reserved--
	st, ok := c.insights[m.title]
	if !ok || !st.Loading || m.key != c.selection().Key() {
		c.refund()
		return
	}
	st.Loading = false
	if m.err != nil {
		st.Err = m.err
		c.refund()
		return
	}
	st.Text = sanitize(m.insight.Insight)
}

func (c *Controller) refund() {
	if err := c.quota.Refund(); err != nil {
		slog.Warn("refunding insight point", "page", c.page.Name, "err", err)
	}
}

// ─── Upload ───────────────────────────────────────────────────────────────────

// Upload sends a file to the backend and, on success, replaces the page
// content with the returned KPIs. open is called on the Cmd goroutine.
func (c *Controller) Upload(name string, open func() (io.ReadCloser, error)) Cmd {
	if c.closed {
		return nil
	}
	ctx, backend := c.ctx, c.backend
	return func() Msg {
		f, err := open()
		if err != nil {
			return uploadedMsg{name: name, err: err}
		}
		defer f.Close()
		res, err := backend.UploadFile(ctx, name, f)
		if err != nil {
			return uploadedMsg{name: name, err: err}
		}
		d, skipped, err := kpi.FromUpload(res.KPIs)
		return uploadedMsg{name: name, dash: d, skipped: skipped, err: err}
	}
}

func (c *Controller) onUploaded(m uploadedMsg) {
	if m.err != nil {
		c.notice = m.err.Error()
		return
	}
	// Supersede any fetch still in flight.
	c.seq++
	c.applied = c.seq
	c.apply(m.dash)
	c.stale = false
	c.fetchedAt = c.now()
	c.status = StatusReady
	c.notice = "Uploaded " + m.name
	c.ignored = m.skipped
	if len(m.skipped) > 0 {
		c.notice += " (ignored: " + strings.Join(m.skipped, ", ") + ")"
	}
	if err := c.cache.Save(c.selection().Key(), m.dash); err != nil {
		slog.Warn("caching upload", "page", c.page.Name, "err", err)
	}
}

// ─── Drill-down ───────────────────────────────────────────────────────────────

// Drill fetches a drill-down chart with the page's filter and adds it to the
// page. A drill with the same title replaces the previous one.
func (c *Controller) Drill(q client.DrillQuery) Cmd {
	if c.closed {
		return nil
	}
	q.Filter = c.selection()
	ctx, backend := c.ctx, c.backend
	return func() Msg {
		d, err := backend.FetchDrill(ctx, q)
		return drilledMsg{desc: d, err: err}
	}
}

func (c *Controller) onDrilled(m drilledMsg) {
	if m.err != nil {
		c.notice = "Drill-down failed: " + m.err.Error()
		return
	}
	n, err := normalize.Normalize(*m.desc)
	cs := chartState{desc: *m.desc, chart: n, err: err, drill: true}
	for i := range c.drills {
		if c.drills[i].desc.Title == m.desc.Title {
			c.drills[i] = cs
			return
		}
	}
	c.drills = append(c.drills, cs)
}
