package cmd

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/derickschaefer/kpiboard/internal/controller"
	"github.com/derickschaefer/kpiboard/internal/filter"
)

func TestOutputWriterDefault(t *testing.T) {
	globalFlags.Out = ""
	w, closeFn, err := outputWriter(os.Stdout)
	if err != nil {
		t.Fatalf("outputWriter default: %v", err)
	}
	if w != os.Stdout {
		t.Fatalf("expected stdout writer passthrough")
	}
	if err := closeFn(); err != nil {
		t.Fatalf("default closer should be nil error, got: %v", err)
	}
}

func TestOutputWriterFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "out.txt")
	globalFlags.Out = p
	t.Cleanup(func() { globalFlags.Out = "" })

	w, closeFn, err := outputWriter(os.Stdout)
	if err != nil {
		t.Fatalf("outputWriter file: %v", err)
	}
	if w == os.Stdout {
		t.Fatalf("expected file writer, got stdout")
	}
	if err := closeFn(); err != nil {
		t.Fatalf("closing output writer: %v", err)
	}
	if _, err := os.Stat(p); err != nil {
		t.Fatalf("expected output file to exist: %v", err)
	}
}

// ─── Filter flags ─────────────────────────────────────────────────────────────

func TestFilterFlagsSelection(t *testing.T) {
	sel, err := filterFlags{}.selection()
	if err != nil || sel != nil {
		t.Fatalf("no flags should keep the persisted filter, got %v, %v", sel, err)
	}

	sel, err = filterFlags{Preset: "Weekly"}.selection()
	if err != nil {
		t.Fatalf("weekly: %v", err)
	}
	if sel.Preset != filter.Weekly {
		t.Errorf("expected weekly, got %q", sel.Preset)
	}

	sel, err = filterFlags{Preset: "custom", Start: "2024-01-01", End: "2024-03-31"}.selection()
	if err != nil {
		t.Fatalf("custom: %v", err)
	}
	if sel.Key() != "custom:2024-01-01..2024-03-31" {
		t.Errorf("unexpected key %q", sel.Key())
	}

	sel, err = filterFlags{Preset: "custom", End: "2024-03-31"}.selection()
	if err != nil {
		t.Fatalf("half-open custom should be accepted: %v", err)
	}
	if sel.Complete() {
		t.Error("a custom range with one date is not complete")
	}
}

func TestFilterFlagsRejects(t *testing.T) {
	cases := map[string]filterFlags{
		"dates without filter": {Start: "2024-01-01"},
		"dates with preset":    {Preset: "weekly", Start: "2024-01-01"},
		"unknown preset":       {Preset: "fortnightly"},
		"bad date":             {Preset: "custom", Start: "01/02/2024"},
	}
	for name, f := range cases {
		if _, err := f.selection(); err == nil {
			t.Errorf("%s: expected an error", name)
		}
	}
}

// ─── Page helpers ─────────────────────────────────────────────────────────────

func TestLoadError(t *testing.T) {
	page := controller.Page{Name: "risk"}
	withData := []controller.MetricView{{Title: "Fraud Rate"}}

	cases := []struct {
		name    string
		view    controller.View
		noCache bool
		wantErr bool
	}{
		{"ready", controller.View{Page: page, Status: controller.StatusReady}, false, false},
		{"failed with cache", controller.View{Page: page, Status: controller.StatusFailed, Metrics: withData, Notice: "boom"}, false, false},
		{"failed with cache, no-cache", controller.View{Page: page, Status: controller.StatusFailed, Metrics: withData, Notice: "boom"}, true, true},
		{"failed without cache", controller.View{Page: page, Status: controller.StatusFailed, Notice: "boom"}, false, true},
		{"waiting for dates", controller.View{Page: page, Status: controller.StatusMounted, Notice: "Select a start and end date to load data."}, false, true},
	}
	for _, tc := range cases {
		err := loadError(tc.view, tc.noCache)
		if (err != nil) != tc.wantErr {
			t.Errorf("%s: expected error=%v, got %v", tc.name, tc.wantErr, err)
		}
		if err != nil && !strings.HasPrefix(err.Error(), "risk: ") {
			t.Errorf("%s: error should name the page, got %q", tc.name, err)
		}
	}
}

func TestStaleWarnings(t *testing.T) {
	if w := staleWarnings(controller.View{}); w != nil {
		t.Errorf("fresh view should have no warnings, got %v", w)
	}
	w := staleWarnings(controller.View{
		Stale:     true,
		FetchedAt: time.Date(2024, 5, 1, 9, 30, 0, 0, time.Local),
		Notice:    "Could not load data: timeout",
	})
	if len(w) != 1 || !strings.Contains(w[0], "2024-05-01 09:30") || !strings.Contains(w[0], "timeout") {
		t.Errorf("unexpected warning %v", w)
	}
}

func TestParseTypeOverride(t *testing.T) {
	title, visual, err := parseTypeOverride("Revenue = Cost=bar")
	if err != nil {
		t.Fatalf("parseTypeOverride: %v", err)
	}
	if title != "Revenue = Cost" || visual != "bar" {
		t.Errorf("expected title %q and type bar, got %q %q", "Revenue = Cost", title, visual)
	}
	for _, bad := range []string{"Revenue", "=bar", "Revenue="} {
		if _, _, err := parseTypeOverride(bad); err == nil {
			t.Errorf("%q: expected an error", bad)
		}
	}
}

func TestChartTitleJoinsArgs(t *testing.T) {
	if got := chartTitle([]string{"Revenue", "Trend"}); got != "Revenue Trend" {
		t.Errorf("expected %q, got %q", "Revenue Trend", got)
	}
}

// ─── Command tree ─────────────────────────────────────────────────────────────

func TestSubcommandRouting(t *testing.T) {
	pairs := [][]string{
		{"page", "list"}, {"page", "show"}, {"page", "watch"},
		{"filter", "show"}, {"filter", "set"}, {"filter", "reset"},
		{"points", "show"}, {"points", "set"},
		{"cache", "stats"}, {"cache", "list"}, {"cache", "clear"}, {"cache", "compact"},
		{"config", "init"}, {"config", "show"},
		{"insight"}, {"upload"}, {"kpis"}, {"drill"}, {"chart"}, {"options"},
		{"serve"}, {"view"}, {"version"}, {"completion"},
	}
	for _, pair := range pairs {
		c, _, err := rootCmd.Find(pair)
		if err != nil || c == rootCmd {
			t.Errorf("%v: not registered (%v)", pair, err)
			continue
		}
		if c.Name() != pair[len(pair)-1] {
			t.Errorf("%v: resolved to %q", pair, c.Name())
		}
	}
}

// ─── End to end ───────────────────────────────────────────────────────────────

const financialBody = `{
	"metrics": [{"title": "Total Revenue", "value": 5000, "diff": 2.5}],
	"charts": [{"title": "Revenue Trend", "type": "line", "x": ["Jan","Feb","Mar"], "y": [1,3,2]}]
}`

func newBackend(t *testing.T, fail bool) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/financial-performance", func(w http.ResponseWriter, r *http.Request) {
		if fail {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		io.WriteString(w, financialBody)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// runCLI executes the command tree with a fresh in-memory store and
// returns stdout.
func runCLI(t *testing.T, baseURL string, args ...string) (string, error) {
	t.Helper()
	globalFlags = struct {
		Config      string
		BaseURL     string
		Format      string
		Out         string
		Store       string
		NoCache     bool
		Timeout     string
		Concurrency int
		Rate        float64
		Quiet       bool
		Verbose     bool
		Debug       bool
	}{}
	pageShowFilter, pageShowAll, pageShowTypes = filterFlags{}, false, nil

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(append([]string{"--store", "memory", "--base-url", baseURL + "/", "--rate", "1000"}, args...))
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestPageShowJSON(t *testing.T) {
	srv := newBackend(t, false)
	out, err := runCLI(t, srv.URL, "page", "show", "financial", "--format", "json")
	if err != nil {
		t.Fatalf("page show: %v", err)
	}

	var res struct {
		Kind string          `json:"kind"`
		Data controller.View `json:"data"`
	}
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decoding output: %v\n%s", err, out)
	}
	if res.Kind != "page" {
		t.Errorf("kind: expected page, got %q", res.Kind)
	}
	if len(res.Data.Metrics) != 1 || res.Data.Metrics[0].Value != "$5,000" {
		t.Errorf("unexpected metrics %+v", res.Data.Metrics)
	}
	if len(res.Data.Charts) != 1 || res.Data.Charts[0].Option == nil {
		t.Errorf("expected one built chart, got %+v", res.Data.Charts)
	}
}

func TestPageShowTypeOverride(t *testing.T) {
	srv := newBackend(t, false)
	out, err := runCLI(t, srv.URL, "page", "show", "financial", "--type", "revenue trend=bar", "--format", "jsonl")
	if err != nil {
		t.Fatalf("page show: %v", err)
	}
	if !strings.Contains(out, `"type":"bar"`) {
		t.Errorf("expected the chart as a bar, got:\n%s", out)
	}
}

func TestPageShowBackendFailure(t *testing.T) {
	srv := newBackend(t, true)
	_, err := runCLI(t, srv.URL, "page", "show", "financial")
	if err == nil {
		t.Fatal("expected an error when the backend fails and nothing is cached")
	}
	if !strings.Contains(err.Error(), "financial") {
		t.Errorf("error should name the page, got %q", err)
	}
}

func TestPageShowUnknownPage(t *testing.T) {
	srv := newBackend(t, false)
	if _, err := runCLI(t, srv.URL, "page", "show", "nope"); err == nil {
		t.Fatal("expected an unknown page error")
	}
}
