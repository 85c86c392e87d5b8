package controller_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/derickschaefer/kpiboard/internal/cache"
	"github.com/derickschaefer/kpiboard/internal/client"
	"github.com/derickschaefer/kpiboard/internal/controller"
	"github.com/derickschaefer/kpiboard/internal/filter"
	"github.com/derickschaefer/kpiboard/internal/model"
	"github.com/derickschaefer/kpiboard/internal/store"
)

// ─── Fake backend ─────────────────────────────────────────────────────────────

type fakeBackend struct {
	mu sync.Mutex

	dashboard func(call int, sel filter.Selection) (*model.Dashboard, error)
	fetches   []filter.Selection

	insight      *model.Insight
	insightErr   error
	insightCalls int

	upload     *model.UploadResult
	uploadErr  error
	uploadBody string

	drill    *model.ChartDescriptor
	drillErr error
}

func (f *fakeBackend) FetchDashboard(_ context.Context, _ string, sel filter.Selection) (*model.Dashboard, error) {
	f.mu.Lock()
	f.fetches = append(f.fetches, sel)
	call := len(f.fetches)
	fn := f.dashboard
	f.mu.Unlock()
	if fn == nil {
		return volumeDashboard(1250000), nil
	}
	return fn(call, sel)
}

func (f *fakeBackend) FetchInsight(_ context.Context, _, _ string, _ filter.Selection) (*model.Insight, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.insightCalls++
	return f.insight, f.insightErr
}

func (f *fakeBackend) UploadFile(_ context.Context, _ string, r io.Reader) (*model.UploadResult, error) {
	b, _ := io.ReadAll(r)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploadBody = string(b)
	return f.upload, f.uploadErr
}

func (f *fakeBackend) FetchDrill(_ context.Context, _ client.DrillQuery) (*model.ChartDescriptor, error) {
	return f.drill, f.drillErr
}

func (f *fakeBackend) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.fetches)
}

// ─── Fixtures ─────────────────────────────────────────────────────────────────

func diff(v float64) *float64 { return &v }

func volumeDashboard(volume float64) *model.Dashboard {
	return &model.Dashboard{
		Metrics: []model.MetricCard{
			{Title: "Total Transaction Volume", Value: model.Number(volume), Diff: diff(4.2)},
			{Title: "Fraud Rate", Value: model.Text("0.8%"), Diff: diff(-1.5)},
		},
		Charts: []model.ChartDescriptor{
			{
				Title: "Top Cities",
				Type:  model.ChartPie,
				Data:  json.RawMessage(`[{"name":"NYC","value":40},{"name":"LA","value":25}]`),
			},
			{
				Title: "Recent Activity",
				Type:  model.ChartList,
				Data:  json.RawMessage(`["Login spike", {"time":"09:00","type":"alert","message":"Chargeback filed"}]`),
			},
		},
	}
}

func newController(t *testing.T, fb *fakeBackend, kv store.KV, page string) *controller.Controller {
	t.Helper()
	p, err := controller.NewRegistry(nil).Lookup(page)
	require.NoError(t, err)
	c, err := controller.New(context.Background(), controller.Options{Page: p, Backend: fb, Store: kv})
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func metricValue(v controller.View, title string) string {
	for _, m := range v.Metrics {
		if m.Title == title {
			return m.Value
		}
	}
	return ""
}

func chartByTitle(t *testing.T, v controller.View, title string) controller.ChartView {
	t.Helper()
	for _, c := range v.Charts {
		if c.Title == title {
			return c
		}
	}
	t.Fatalf("no chart %q in view", title)
	return controller.ChartView{}
}

// ─── Mount & fetch ────────────────────────────────────────────────────────────

func TestMountFetchesFormatsAndCaches(t *testing.T) {
	fb := &fakeBackend{}
	kv := store.NewMemory()
	c := newController(t, fb, kv, "financial")

	assert.Equal(t, controller.StatusMounted, c.Status())
	cmd := c.Init()
	require.NotNil(t, cmd)
	assert.Equal(t, controller.StatusLoading, c.Status())
	controller.Settle(c, cmd)

	v := c.View()
	assert.Equal(t, controller.StatusReady, v.Status)
	assert.False(t, v.Stale)
	require.Len(t, v.Metrics, 2)
	assert.Equal(t, "$1,250,000", v.Metrics[0].Value)
	assert.Equal(t, "+4.2% vs previous", v.Metrics[0].Diff)
	assert.True(t, v.Metrics[0].Positive)
	assert.Equal(t, "0.8%", v.Metrics[1].Value)
	assert.False(t, v.Metrics[1].Positive)

	pie := chartByTitle(t, v, "Top Cities")
	require.NotNil(t, pie.Option)
	assert.Equal(t, "pie", pie.Option.Series[0].Type)

	list := chartByTitle(t, v, "Recent Activity")
	assert.Nil(t, list.Option)
	assert.Equal(t, []string{"Login spike", "[alert] Chargeback filed"}, list.Items)

	_, ok, _ := kv.Get("financial_data")
	assert.True(t, ok)
	require.Len(t, fb.fetches, 1)
	assert.Equal(t, filter.Selection{Preset: filter.YTD}, fb.fetches[0])
}

func TestCacheHitRendersBeforeFetch(t *testing.T) {
	kv := store.NewMemory()
	pc := cache.New(store.Namespace(kv, "risk"), "risk")
	require.NoError(t, pc.Save("ytd", volumeDashboard(10)))

	fb := &fakeBackend{dashboard: func(int, filter.Selection) (*model.Dashboard, error) {
		return volumeDashboard(20), nil
	}}
	c := newController(t, fb, kv, "risk")

	cmd := c.Init()
	v := c.View()
	assert.True(t, v.Stale)
	assert.Equal(t, "$10", metricValue(v, "Total Transaction Volume"))
	assert.Equal(t, 0, fb.fetchCount())

	controller.Settle(c, cmd)
	v = c.View()
	assert.False(t, v.Stale)
	assert.Equal(t, "$20", metricValue(v, "Total Transaction Volume"))
}

func TestResponseForOldFilterIsDiscarded(t *testing.T) {
	fb := &fakeBackend{dashboard: func(_ int, sel filter.Selection) (*model.Dashboard, error) {
		if sel.Preset == filter.YTD {
			return volumeDashboard(1), nil
		}
		return volumeDashboard(2), nil
	}}
	c := newController(t, fb, store.NewMemory(), "dashboard")

	ytd := c.Init()
	mtd, err := c.SelectPreset(filter.MTD)
	require.NoError(t, err)
	require.NotNil(t, mtd)

	// The MTD response arrives first, then the slow YTD one.
	c.Update(mtd())
	c.Update(ytd())

	v := c.View()
	assert.Equal(t, "$2", metricValue(v, "Total Transaction Volume"))
	assert.Equal(t, controller.StatusReady, v.Status)
	assert.Equal(t, filter.MTD, v.Filter.Preset)
}

func TestOlderSequenceIsDiscarded(t *testing.T) {
	fb := &fakeBackend{dashboard: func(call int, _ filter.Selection) (*model.Dashboard, error) {
		return volumeDashboard(float64(call)), nil
	}}
	c := newController(t, fb, store.NewMemory(), "dashboard")

	first := c.Init()
	second := c.Refresh()

	c.Update(second()) // call 1
	assert.Equal(t, controller.StatusReady, c.Status())
	c.Update(first()) // call 2, but issued earlier

	assert.Equal(t, "$1", metricValue(c.View(), "Total Transaction Volume"))
}

func TestLoadingUntilLatestArrives(t *testing.T) {
	c := newController(t, &fakeBackend{}, store.NewMemory(), "dashboard")
	first := c.Init()
	second := c.Refresh()

	c.Update(first())
	assert.Equal(t, controller.StatusLoading, c.Status())
	c.Update(second())
	assert.Equal(t, controller.StatusReady, c.Status())
}

// ─── Filter ───────────────────────────────────────────────────────────────────

func TestCustomRangeWaitsForBothDates(t *testing.T) {
	fb := &fakeBackend{}
	c := newController(t, fb, store.NewMemory(), "dashboard")
	controller.Settle(c, c.Init())

	cmd, err := c.SelectPreset(filter.Custom)
	require.NoError(t, err)
	assert.Nil(t, cmd)
	assert.NotEmpty(t, c.View().Notice)

	cmd, err = c.SetCustomStart(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Nil(t, cmd)

	cmd, err = c.SetCustomEnd(time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NotNil(t, cmd)
	controller.Settle(c, cmd)

	require.Equal(t, 2, fb.fetchCount())
	assert.Equal(t, filter.Selection{Preset: filter.Custom, Start: "2024-01-01", End: "2024-01-31"}, fb.fetches[1])
	assert.Empty(t, c.View().Notice)
}

func TestIncompleteCustomAtMountDoesNotFetch(t *testing.T) {
	kv := store.NewMemory()
	require.NoError(t, kv.Put("dashboard_filter", "custom"))
	fb := &fakeBackend{}
	c := newController(t, fb, kv, "dashboard")

	assert.Nil(t, c.Init())
	assert.Equal(t, 0, fb.fetchCount())
	assert.Equal(t, controller.StatusMounted, c.Status())
	assert.Nil(t, c.Refresh())
}

func TestCachedMountWithIncompleteCustomIsReady(t *testing.T) {
	fb := &fakeBackend{}
	kv := store.NewMemory()
	c := newController(t, fb, kv, "financial")
	controller.Settle(c, c.Init())
	_, err := c.SelectPreset(filter.Custom)
	require.NoError(t, err)
	_, err = c.SetCustomStart(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	again := newController(t, fb, kv, "financial")
	assert.Nil(t, again.Init())
	v := again.View()
	assert.Equal(t, controller.StatusReady, v.Status)
	assert.True(t, v.Stale)
	assert.Equal(t, "$1,250,000", metricValue(v, "Total Transaction Volume"))
	assert.NotEmpty(t, v.Notice)
	assert.Equal(t, 1, fb.fetchCount())
}

func TestIncompleteCustomDuringFetchStopsLoading(t *testing.T) {
	fb := &fakeBackend{}
	c := newController(t, fb, store.NewMemory(), "financial")
	controller.Settle(c, c.Init())

	inFlight := c.Refresh()
	require.NotNil(t, inFlight)
	assert.Equal(t, controller.StatusLoading, c.Status())

	cmd, err := c.SelectPreset(filter.Custom)
	require.NoError(t, err)
	assert.Nil(t, cmd)
	assert.Equal(t, controller.StatusReady, c.Status())

	// The YTD reply no longer matches the filter and changes nothing.
	c.Update(inFlight())
	assert.Equal(t, controller.StatusReady, c.Status())

	empty := newController(t, fb, store.NewMemory(), "financial")
	pending := empty.Init()
	require.NotNil(t, pending)
	_, err = empty.SelectPreset(filter.Custom)
	require.NoError(t, err)
	assert.Equal(t, controller.StatusMounted, empty.Status())
}

func TestResetFilterRefetchesDefault(t *testing.T) {
	fb := &fakeBackend{}
	kv := store.NewMemory()
	c := newController(t, fb, kv, "dashboard")
	controller.Settle(c, c.Init())
	cmd, _ := c.SelectPreset(filter.Weekly)
	controller.Settle(c, cmd)

	cmd, err := c.ResetFilter()
	require.NoError(t, err)
	controller.Settle(c, cmd)
	assert.Equal(t, filter.YTD, fb.fetches[len(fb.fetches)-1].Preset)
	_, ok, _ := kv.Get("dashboard_filter")
	assert.False(t, ok)
}

func TestUnfilteredPageRejectsFilter(t *testing.T) {
	fb := &fakeBackend{}
	c := newController(t, fb, store.NewMemory(), "demographic")
	controller.Settle(c, c.Init())
	_, err := c.SelectPreset(filter.Weekly)
	assert.Error(t, err)
	assert.Equal(t, filter.Default, fb.fetches[0].Preset)
}

func TestApplySetsFilterBeforeMount(t *testing.T) {
	fb := &fakeBackend{}
	kv := store.NewMemory()
	c := newController(t, fb, kv, "risk")
	require.NoError(t, c.Apply(filter.Selection{Preset: filter.Custom, Start: "2024-01-01", End: "2024-01-31"}))
	assert.Equal(t, 0, fb.fetchCount())

	controller.Settle(c, c.Init())
	require.Equal(t, 1, fb.fetchCount())
	assert.Equal(t, "2024-01-31", fb.fetches[0].End)
	v, _, _ := kv.Get("risk_end")
	assert.Equal(t, "2024-01-31", v)

	assert.Error(t, c.Apply(filter.Selection{Preset: filter.Weekly, Start: "2024-01-01"}))

	demo := newController(t, fb, kv, "demographic")
	assert.NoError(t, demo.Apply(filter.Selection{Preset: filter.Default}))
	assert.Error(t, demo.Apply(filter.Selection{Preset: filter.Weekly}))
}

// ─── Failures ─────────────────────────────────────────────────────────────────

func TestNetworkFailureKeepsPreviousData(t *testing.T) {
	fail := false
	fb := &fakeBackend{dashboard: func(int, filter.Selection) (*model.Dashboard, error) {
		if fail {
			return nil, fmt.Errorf("dashboard: %w: connection refused", model.ErrNetworkFailure)
		}
		return volumeDashboard(1250000), nil
	}}
	c := newController(t, fb, store.NewMemory(), "dashboard")
	controller.Settle(c, c.Init())

	fail = true
	controller.Settle(c, c.Refresh())

	v := c.View()
	assert.Equal(t, controller.StatusFailed, v.Status)
	assert.Contains(t, v.Notice, "connection refused")
	assert.Equal(t, "$1,250,000", metricValue(v, "Total Transaction Volume"))
	assert.Len(t, v.Charts, 2)
}

func TestMalformedChartIsIsolated(t *testing.T) {
	fb := &fakeBackend{dashboard: func(int, filter.Selection) (*model.Dashboard, error) {
		return &model.Dashboard{Charts: []model.ChartDescriptor{
			{Title: "Broken", Type: model.ChartBar, X: json.RawMessage(`["a","b"]`), Y: json.RawMessage(`[1]`)},
			{Title: "Fine", Type: model.ChartBar, X: json.RawMessage(`["a"]`), Y: json.RawMessage(`[1]`)},
		}}, nil
	}}
	c := newController(t, fb, store.NewMemory(), "dashboard")
	controller.Settle(c, c.Init())

	v := c.View()
	assert.Equal(t, controller.StatusReady, v.Status)
	broken := chartByTitle(t, v, "Broken")
	assert.ErrorIs(t, broken.Err, model.ErrMalformedResponse)
	assert.NotEmpty(t, broken.Error)
	assert.Nil(t, broken.Option)
	assert.NotNil(t, chartByTitle(t, v, "Fine").Option)
}

// ─── Chart type ───────────────────────────────────────────────────────────────

func TestSetChartTypeDoesNotFetch(t *testing.T) {
	fb := &fakeBackend{}
	c := newController(t, fb, store.NewMemory(), "dashboard")
	controller.Settle(c, c.Init())
	before := fb.fetchCount()

	require.NoError(t, c.SetChartType("Top Cities", model.ChartLine))
	assert.Equal(t, before, fb.fetchCount())

	cv := chartByTitle(t, c.View(), "Top Cities")
	assert.Equal(t, model.ChartLine, cv.Type)
	assert.Equal(t, model.ChartPie, cv.Declared)
	assert.Equal(t, "line", cv.Option.Series[0].Type)
	assert.Equal(t, []string{"NYC", "LA"}, cv.Option.XAxis[0].Data)

	require.NoError(t, c.SetChartType("Top Cities", ""))
	assert.Equal(t, model.ChartPie, chartByTitle(t, c.View(), "Top Cities").Type)
}

func TestSetChartTypeRejectsBadRequests(t *testing.T) {
	c := newController(t, &fakeBackend{}, store.NewMemory(), "dashboard")
	controller.Settle(c, c.Init())

	assert.Error(t, c.SetChartType("Missing", model.ChartBar))
	assert.Error(t, c.SetChartType("Top Cities", model.ChartType("radar")))
	assert.Error(t, c.SetChartType("Recent Activity", model.ChartBar))
	assert.Error(t, c.SetChartType("Top Cities", model.ChartList))
}

// ─── Insights ─────────────────────────────────────────────────────────────────

func TestInsightRefusedWithoutPoints(t *testing.T) {
	fb := &fakeBackend{insight: &model.Insight{Insight: "x"}}
	kv := store.NewMemory()
	q, err := controller.NewQuota(kv, 0)
	require.NoError(t, err)

	p, _ := controller.NewRegistry(nil).Lookup("dashboard")
	c, err := controller.New(context.Background(), controller.Options{Page: p, Backend: fb, Store: kv, Quota: q})
	require.NoError(t, err)
	defer c.Close()
	controller.Settle(c, c.Init())

	cmd, err := c.RequestInsight("Top Cities")
	assert.ErrorIs(t, err, model.ErrQuotaExhausted)
	assert.Nil(t, cmd)
	assert.Equal(t, 0, fb.insightCalls)
	assert.False(t, chartByTitle(t, c.View(), "Top Cities").Insight.Loading)
}

func TestInsightSpendsOnlyOnSuccess(t *testing.T) {
	fb := &fakeBackend{insightErr: fmt.Errorf("insight: %w", model.ErrNetworkFailure)}
	kv := store.NewMemory()
	q, _ := controller.NewQuota(kv, 2)
	p, _ := controller.NewRegistry(nil).Lookup("dashboard")
	c, err := controller.New(context.Background(), controller.Options{Page: p, Backend: fb, Store: kv, Quota: q})
	require.NoError(t, err)
	defer c.Close()
	controller.Settle(c, c.Init())

	cmd, err := c.RequestInsight("Top Cities")
	require.NoError(t, err)
	assert.True(t, chartByTitle(t, c.View(), "Top Cities").Insight.Loading)

	_, err = c.RequestInsight("Top Cities")
	assert.ErrorIs(t, err, model.ErrInsightInFlight)

	controller.Settle(c, cmd)
	st := chartByTitle(t, c.View(), "Top Cities").Insight
	assert.False(t, st.Loading)
	assert.ErrorIs(t, st.Err, model.ErrNetworkFailure)
	assert.Equal(t, 2, q.Points())

	fb.insightErr = nil
	fb.insight = &model.Insight{ChartID: "Top Cities", Insight: "<b>NYC</b> leads &amp; grows<script>alert(1)</script>"}
	cmd, err = c.RequestInsight("Top Cities")
	require.NoError(t, err)
	controller.Settle(c, cmd)

	st = chartByTitle(t, c.View(), "Top Cities").Insight
	assert.Equal(t, "NYC leads & grows", st.Text)
	assert.Equal(t, 1, q.Points())
	raw, _, _ := kv.Get(controller.PointsKey)
	assert.Equal(t, "1", raw)
}

func TestInsightReservesPointUntilReply(t *testing.T) {
	fb := &fakeBackend{insightErr: fmt.Errorf("insight: %w", model.ErrNetworkFailure)}
	kv := store.NewMemory()
	q, _ := controller.NewQuota(kv, 1)
	p, _ := controller.NewRegistry(nil).Lookup("dashboard")
	first, err := controller.New(context.Background(), controller.Options{Page: p, Backend: fb, Store: kv, Quota: q})
	require.NoError(t, err)
	defer first.Close()
	second, err := controller.New(context.Background(), controller.Options{Page: p, Backend: fb, Store: kv, Quota: q})
	require.NoError(t, err)
	defer second.Close()
	controller.Settle(first, first.Init())
	controller.Settle(second, second.Init())

	cmd, err := first.RequestInsight("Top Cities")
	require.NoError(t, err)
	assert.Equal(t, 0, q.Points())

	// The point is already taken, so a page sharing the quota is refused.
	refused, err := second.RequestInsight("Top Cities")
	assert.ErrorIs(t, err, model.ErrQuotaExhausted)
	assert.Nil(t, refused)
	assert.False(t, chartByTitle(t, second.View(), "Top Cities").Insight.Loading)

	controller.Settle(first, cmd)
	assert.Equal(t, 1, q.Points(), "a failed insight gives its point back")
	assert.Equal(t, 1, fb.insightCalls)
}

func TestCloseRefundsPendingInsight(t *testing.T) {
	fb := &fakeBackend{insight: &model.Insight{Insight: "late"}}
	kv := store.NewMemory()
	q, _ := controller.NewQuota(kv, 2)
	p, _ := controller.NewRegistry(nil).Lookup("dashboard")
	c, err := controller.New(context.Background(), controller.Options{Page: p, Backend: fb, Store: kv, Quota: q})
	require.NoError(t, err)
	controller.Settle(c, c.Init())

	cmd, err := c.RequestInsight("Top Cities")
	require.NoError(t, err)
	assert.Equal(t, 1, q.Points())

	c.Close()
	c.Close()
	c.Update(cmd())
	assert.Equal(t, 2, q.Points())
}

func TestInsightDroppedAfterFilterChange(t *testing.T) {
	fb := &fakeBackend{insight: &model.Insight{Insight: "old window"}}
	kv := store.NewMemory()
	q, _ := controller.NewQuota(kv, 3)
	p, _ := controller.NewRegistry(nil).Lookup("dashboard")
	c, err := controller.New(context.Background(), controller.Options{Page: p, Backend: fb, Store: kv, Quota: q})
	require.NoError(t, err)
	defer c.Close()
	controller.Settle(c, c.Init())

	cmd, err := c.RequestInsight("Top Cities")
	require.NoError(t, err)
	_, err = c.SelectPreset(filter.Weekly)
	require.NoError(t, err)
	c.Update(cmd())

	assert.Empty(t, chartByTitle(t, c.View(), "Top Cities").Insight.Text)
	assert.Equal(t, 3, q.Points())
}

// ─── Upload & drill ───────────────────────────────────────────────────────────

func opener(body string) func() (io.ReadCloser, error) {
	return func() (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader(body)), nil
	}
}

func TestUploadAppliesDerivedKPIs(t *testing.T) {
	fb := &fakeBackend{upload: &model.UploadResult{
		Success: true,
		KPIs:    json.RawMessage(`{"transaction_volume": 1200, "top_cities": {"labels": ["NYC"], "values": [7]}}`),
	}}
	kv := store.NewMemory()
	c := newController(t, fb, kv, "dashboard")
	controller.Settle(c, c.Init())

	controller.Settle(c, c.Upload("tx.csv", opener("id\n1\n")))
	v := c.View()
	assert.Equal(t, "id\n1\n", fb.uploadBody)
	assert.Equal(t, "$1,200", metricValue(v, "Transaction Volume"))
	require.Len(t, v.Charts, 1)
	assert.Equal(t, "Top Cities", v.Charts[0].Title)
	assert.Contains(t, v.Notice, "tx.csv")

	cr, ok, err := cache.New(store.Namespace(kv, "dashboard"), "dashboard").Load()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, cr.Dashboard.Metrics, 1)
}

func TestUploadSupersedesInFlightFetch(t *testing.T) {
	fb := &fakeBackend{upload: &model.UploadResult{Success: true, KPIs: json.RawMessage(`{"transaction_volume": 5}`)}}
	c := newController(t, fb, store.NewMemory(), "dashboard")
	fetch := c.Init()

	controller.Settle(c, c.Upload("tx.csv", opener("x")))
	c.Update(fetch())
	assert.Equal(t, "$5", metricValue(c.View(), "Transaction Volume"))
}

func TestUploadRejectedKeepsContent(t *testing.T) {
	fb := &fakeBackend{uploadErr: fmt.Errorf("upload tx.xlsx: Only CSV files are supported: %w", model.ErrUploadRejected)}
	c := newController(t, fb, store.NewMemory(), "dashboard")
	controller.Settle(c, c.Init())

	controller.Settle(c, c.Upload("tx.xlsx", opener("x")))
	v := c.View()
	assert.Contains(t, v.Notice, "Only CSV files are supported")
	assert.Equal(t, "$1,250,000", metricValue(v, "Total Transaction Volume"))
}

func TestDrillAddsChart(t *testing.T) {
	fb := &fakeBackend{drill: &model.ChartDescriptor{
		ChartKey: "payment_methods", Title: "Visa by City", Type: model.ChartPie,
		Data: json.RawMessage(`[{"name":"NYC","value":10}]`),
	}}
	c := newController(t, fb, store.NewMemory(), "dashboard")
	controller.Settle(c, c.Init())

	q := client.DrillQuery{ChartKey: "payment_methods", Dimension: "city"}
	controller.Settle(c, c.Drill(q))
	controller.Settle(c, c.Drill(q))

	v := c.View()
	require.Len(t, v.Charts, 3)
	drill := chartByTitle(t, v, "Visa by City")
	assert.True(t, drill.Drill)
	assert.NotNil(t, drill.Option)
}

// ─── Lifecycle ────────────────────────────────────────────────────────────────

func TestCloseIgnoresLateMessages(t *testing.T) {
	c := newController(t, &fakeBackend{}, store.NewMemory(), "dashboard")
	cmd := c.Init()
	c.Close()
	c.Update(cmd())

	v := c.View()
	assert.Empty(t, v.Metrics)
	assert.Equal(t, controller.StatusLoading, v.Status)
	assert.Nil(t, c.Refresh())
}

func TestLoopAppliesActionsOnOneGoroutine(t *testing.T) {
	fb := &fakeBackend{dashboard: func(_ int, sel filter.Selection) (*model.Dashboard, error) {
		if sel.Preset == filter.Weekly {
			return volumeDashboard(7), nil
		}
		return volumeDashboard(1), nil
	}}
	c := newController(t, fb, store.NewMemory(), "dashboard")

	var mu sync.Mutex
	var last controller.View
	loop := controller.NewLoop(c, func(v controller.View) {
		mu.Lock()
		last = v
		mu.Unlock()
	})
	latest := func() controller.View {
		mu.Lock()
		defer mu.Unlock()
		return last
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	require.Eventually(t, func() bool { return latest().Status == controller.StatusReady }, time.Second, 5*time.Millisecond)

	require.True(t, loop.Send(func(c *controller.Controller) controller.Cmd {
		cmd, _ := c.SelectPreset(filter.Weekly)
		return cmd
	}))
	require.Eventually(t, func() bool {
		v := latest()
		return v.Status == controller.StatusReady && metricValue(v, "Total Transaction Volume") == "$7"
	}, time.Second, 5*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.False(t, loop.Send(func(*controller.Controller) controller.Cmd { return nil }))
}

func TestTickRefreshes(t *testing.T) {
	fb := &fakeBackend{}
	c := newController(t, fb, store.NewMemory(), "dashboard")
	loop := controller.NewLoop(c, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = loop.Run(ctx, c.Tick(10*time.Millisecond)) }()

	require.Eventually(t, func() bool { return fb.fetchCount() >= 3 }, 2*time.Second, 5*time.Millisecond)
}

// ─── Registry & quota ─────────────────────────────────────────────────────────

func TestRegistry(t *testing.T) {
	r := controller.NewRegistry(map[string]string{"risk": "/v2/risk/", "ops2": "ops-v2"})
	p, err := r.Lookup("RISK")
	require.NoError(t, err)
	assert.Equal(t, "v2/risk", p.Endpoint)

	p, err = r.Lookup("financial")
	require.NoError(t, err)
	assert.Equal(t, "financial-performance", p.Endpoint)

	p, err = r.Lookup("ops2")
	require.NoError(t, err)
	assert.Equal(t, "ops-v2", p.Endpoint)

	_, err = r.Lookup("nope")
	assert.Error(t, err)
	assert.Len(t, r.All(), len(controller.Pages)+1)
}

func TestQuotaPersists(t *testing.T) {
	kv := store.NewMemory()
	q, err := controller.NewQuota(kv, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, q.Points())
	require.NoError(t, q.Reserve())

	again, err := controller.NewQuota(kv, 5)
	require.NoError(t, err)
	assert.Equal(t, 4, again.Points())

	require.NoError(t, again.Set(0))
	assert.ErrorIs(t, again.Reserve(), model.ErrQuotaExhausted)
	assert.Equal(t, 0, again.Points())
	assert.Error(t, again.Set(-1))

	require.NoError(t, again.Refund())
	raw, _, _ := kv.Get(controller.PointsKey)
	assert.Equal(t, "1", raw)
}

func TestQuotaReserveIsAtomic(t *testing.T) {
	q, err := controller.NewQuota(store.NewMemory(), 3)
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	granted := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if q.Reserve() == nil {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 3, granted)
	assert.Equal(t, 0, q.Points())
}
