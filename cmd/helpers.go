package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"golang.org/x/sync/errgroup"

	"github.com/derickschaefer/kpiboard/internal/app"
	"github.com/derickschaefer/kpiboard/internal/controller"
	"github.com/derickschaefer/kpiboard/internal/filter"
	"github.com/derickschaefer/kpiboard/internal/model"
	"github.com/derickschaefer/kpiboard/internal/render"
	"github.com/derickschaefer/kpiboard/internal/util"
)

// resolveFormat returns the effective format string, falling back to "table".
func resolveFormat(cfgFormat string) string {
	if globalFlags.Format != "" {
		return globalFlags.Format
	}
	if cfgFormat != "" {
		return cfgFormat
	}
	return render.FormatTable
}

// outputWriter returns the --out file when set, otherwise def. The returned
// close function is always safe to call.
func outputWriter(def io.Writer) (io.Writer, func() error, error) {
	if globalFlags.Out == "" {
		return def, func() error { return nil }, nil
	}
	f, err := os.Create(globalFlags.Out)
	if err != nil {
		return nil, nil, fmt.Errorf("creating output file: %w", err)
	}
	return f, f.Close, nil
}

// emit renders result to --out or w, then the footer to stderr.
func emit(w io.Writer, deps *app.Deps, result *model.Result) error {
	if deps.Config.Quiet {
		return nil
	}
	out, closeFn, err := outputWriter(w)
	if err != nil {
		return err
	}
	if err := render.Render(out, result, resolveFormat(deps.Config.Format)); err != nil {
		_ = closeFn()
		return err
	}
	if err := closeFn(); err != nil {
		return err
	}
	render.PrintFooter(os.Stderr, result, deps.Config.Verbose)
	return nil
}

// printSimpleTable renders a simple table with headers using tablewriter.
// The add callback is called with row values as variadic strings.
func printSimpleTable(w io.Writer, headers []string, fill func(add func(...string))) {
	tw := tablewriter.NewWriter(w)
	tw.SetHeader(headers)
	tw.SetBorder(true)
	tw.SetRowLine(false)
	tw.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	tw.SetAlignment(tablewriter.ALIGN_LEFT)
	tw.SetAutoWrapText(false)

	fill(func(cols ...string) {
		tw.Append(cols)
	})
	tw.Render()
}

// buildResult wraps a payload in a Result envelope.
func buildResult(kind, command string, data interface{}, items int, started time.Time) *model.Result {
	return &model.Result{
		Kind:        kind,
		GeneratedAt: time.Now(),
		Command:     command,
		Data:        data,
		Stats: model.ResultStats{
			Items:      items,
			DurationMs: time.Since(started).Milliseconds(),
		},
	}
}

// ─── Filter Flags ─────────────────────────────────────────────────────────────

// filterFlags are the --filter/--start/--end flags shared by page commands.
type filterFlags struct {
	Preset string
	Start  string
	End    string
}

// selection returns the requested filter, or nil when no flag was given so
// the page's persisted filter is used.
func (f filterFlags) selection() (*filter.Selection, error) {
	if f.Preset == "" {
		if f.Start != "" || f.End != "" {
			return nil, errors.New("--start and --end require --filter custom")
		}
		return nil, nil
	}
	p, err := filter.ParsePreset(f.Preset)
	if err != nil {
		return nil, err
	}
	sel := filter.Selection{Preset: p}
	for _, d := range []struct {
		dst *string
		raw string
	}{{&sel.Start, f.Start}, {&sel.End, f.End}} {
		if d.raw == "" {
			continue
		}
		t, err := util.ParseDate(d.raw)
		if err != nil {
			return nil, err
		}
		*d.dst = util.FormatDate(t)
	}
	if err := sel.Validate(); err != nil {
		return nil, err
	}
	return &sel, nil
}

// ─── Page Loading ─────────────────────────────────────────────────────────────

// openPage returns a settled controller for page. sel, when non-nil, is
// applied and persisted before the first fetch. The caller closes it.
func openPage(ctx context.Context, deps *app.Deps, page string, sel *filter.Selection) (*controller.Controller, error) {
	c, err := deps.Controller(ctx, page)
	if err != nil {
		return nil, err
	}
	if sel != nil {
		if err := c.Apply(*sel); err != nil {
			c.Close()
			return nil, err
		}
	}
	controller.Settle(c, c.Init())
	if err := loadError(c.View(), deps.Config.NoCache); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

// loadError reports a page that has nothing to show. A failed fetch with a
// cached response falls back to the cache unless noCache is set.
func loadError(v controller.View, noCache bool) error {
	hasData := len(v.Metrics) > 0 || len(v.Charts) > 0
	switch v.Status {
	case controller.StatusReady:
		return nil
	case controller.StatusFailed:
		if hasData && !noCache {
			return nil
		}
	default:
		if hasData && !noCache && v.Notice == "" {
			return nil
		}
	}
	if v.Notice == "" {
		return fmt.Errorf("%s: no data", v.Page.Name)
	}
	return fmt.Errorf("%s: %s", v.Page.Name, v.Notice)
}

// staleWarnings explains a view served from the cache.
func staleWarnings(v controller.View) []string {
	if !v.Stale {
		return nil
	}
	msg := "showing cached data"
	if !v.FetchedAt.IsZero() {
		msg += " from " + v.FetchedAt.Local().Format("2006-01-02 15:04")
	}
	if v.Notice != "" {
		msg += " (" + v.Notice + ")"
	}
	return []string{msg}
}

// loadPages settles several pages in parallel, bounded by the configured
// concurrency. Per-page failures become warnings.
func loadPages(ctx context.Context, deps *app.Deps, names []string, sel *filter.Selection) ([]controller.View, []string) {
	views := make([]*controller.View, len(names))
	errs := make([]error, len(names))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(deps.Config.Concurrency)
	for i, name := range names {
		g.Go(func() error {
			s := sel
			if s != nil {
				if p, err := deps.Pages.Lookup(name); err == nil && !p.Filtered {
					s = nil
				}
			}
			c, err := openPage(ctx, deps, name, s)
			if err != nil {
				errs[i] = err
				return nil
			}
			defer c.Close()
			v := c.View()
			views[i] = &v
			return nil
		})
	}
	_ = g.Wait()

	var out []controller.View
	var warnings []string
	for i := range names {
		if errs[i] != nil {
			warnings = append(warnings, errs[i].Error())
			continue
		}
		out = append(out, *views[i])
		warnings = append(warnings, staleWarnings(*views[i])...)
	}
	return out, warnings
}

// pageNames returns every page name in menu order.
func pageNames(deps *app.Deps) []string {
	pages := deps.Pages.All()
	names := make([]string, len(pages))
	for i, p := range pages {
		names[i] = p.Name
	}
	return names
}

// chartTitle joins the remaining args so titles need no shell quoting.
func chartTitle(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// requireChart looks up a chart by title, case-insensitively.
func requireChart(c *controller.Controller, title string) (controller.ChartView, error) {
	if cv, ok := c.Chart(title); ok {
		return cv, nil
	}
	var titles []string
	for _, cv := range c.View().Charts {
		if strings.EqualFold(cv.Title, title) {
			return cv, nil
		}
		titles = append(titles, cv.Title)
	}
	return controller.ChartView{}, fmt.Errorf("no chart titled %q on %s\n\nCharts: %s",
		title, c.Page().Name, strings.Join(titles, ", "))
}
