// Package client implements the HTTP client for the KPI dashboard backend.
// All methods are context-aware and share one rate limiter. Failed requests
// are not retried: the caller keeps its last good data and decides what to do.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/derickschaefer/kpiboard/internal/filter"
	"github.com/derickschaefer/kpiboard/internal/model"
)

const (
	defaultBaseURL = "http://localhost:8000/"
	userAgent      = "kpiboard/1.0"
	maxErrorBody   = 512
)

// Client is the dashboard backend HTTP client.
type Client struct {
	baseURL    string
	casing     filter.Casing
	httpClient *http.Client
	limiter    *rate.Limiter
	debug      bool
}

// Options configures NewClient. Zero values fall back to defaults.
type Options struct {
	BaseURL    string
	Timeout    time.Duration
	RatePerSec float64
	Casing     filter.Casing
	Debug      bool
}

// NewClient creates a Client. Every request is bounded by opts.Timeout.
func NewClient(opts Options) *Client {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	ratePerSec := opts.RatePerSec
	if ratePerSec <= 0 {
		ratePerSec = 5
	}
	burst := int(ratePerSec)
	if burst < 1 {
		burst = 1
	}
	casing := opts.Casing
	if casing == "" {
		casing = filter.CasingServer
	}
	return &Client{
		baseURL: baseURL,
		casing:  casing,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), burst),
		debug:   opts.Debug,
	}
}

// BaseURL returns the normalized backend root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ─── Dashboards ───────────────────────────────────────────────────────────────

// filterParams encodes sel as filter_type plus start/end for complete custom ranges.
func (c *Client) filterParams(sel filter.Selection) url.Values {
	params := url.Values{}
	params.Set("filter_type", sel.Preset.Wire(c.casing))
	if sel.Preset == filter.Custom && sel.Complete() {
		params.Set("start", sel.Start)
		params.Set("end", sel.End)
	}
	return params
}

// FetchDashboard fetches metrics and charts for a page endpoint.
func (c *Client) FetchDashboard(ctx context.Context, endpoint string, sel filter.Selection) (*model.Dashboard, error) {
	var d model.Dashboard
	if err := c.get(ctx, "api/"+endpoint, c.filterParams(sel), &d); err != nil {
		return nil, fmt.Errorf("dashboard %s: %w", endpoint, err)
	}
	return &d, nil
}

// GenerateKPIs calls the legacy /generate_kpis entry point.
func (c *Client) GenerateKPIs(ctx context.Context) (*model.Dashboard, error) {
	var d model.Dashboard
	if err := c.get(ctx, "generate_kpis", url.Values{}, &d); err != nil {
		return nil, fmt.Errorf("generate kpis: %w", err)
	}
	return &d, nil
}

// ─── Insights ─────────────────────────────────────────────────────────────────

// FetchInsight requests generated commentary for one chart.
// A 200 response carrying an "error" field is still a failure.
func (c *Client) FetchInsight(ctx context.Context, endpoint, chartTitle string, sel filter.Selection) (*model.Insight, error) {
	params := c.filterParams(sel)
	params.Set("chart_id", chartTitle)

	var in model.Insight
	if err := c.get(ctx, "api/"+endpoint+"/insights", params, &in); err != nil {
		return nil, fmt.Errorf("insight %q: %w", chartTitle, err)
	}
	if in.Error != "" {
		return nil, fmt.Errorf("insight %q: %s: %w", chartTitle, in.Error, model.ErrNetworkFailure)
	}
	return &in, nil
}

// ─── Upload ───────────────────────────────────────────────────────────────────

// UploadFile posts r as a single-file multipart body (field "file").
// success=false is returned as ErrUploadRejected carrying the backend message.
func (c *Client) UploadFile(ctx context.Context, name string, r io.Reader) (*model.UploadResult, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return nil, fmt.Errorf("building upload: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("building upload: %w", err)
	}

	var res model.UploadResult
	if err := c.do(ctx, http.MethodPost, "upload", nil, &body, mw.FormDataContentType(), &res); err != nil {
		return nil, fmt.Errorf("upload %s: %w", name, err)
	}
	if !res.Success {
		msg := res.Error
		if msg == "" {
			msg = "backend reported failure"
		}
		return nil, fmt.Errorf("upload %s: %s: %w", name, msg, model.ErrUploadRejected)
	}
	return &res, nil
}

// ─── Drill-down ───────────────────────────────────────────────────────────────

// Drill levels accepted by /api/drill.
const (
	DrillLevel1 = "DRILL_LVL1"
	DrillLevel2 = "DRILL_LVL2"
)

// DrillQuery holds the parameters of a drill-down request.
type DrillQuery struct {
	ChartKey    string
	Level       string
	Dimension   string
	Dimension1  string
	ParentValue string
	BaseValue   string
	Filter      filter.Selection
}

// FetchDrill fetches a drill-down chart descriptor.
func (c *Client) FetchDrill(ctx context.Context, q DrillQuery) (*model.ChartDescriptor, error) {
	if q.ChartKey == "" || q.Dimension == "" {
		return nil, errors.New("drill: chart key and dimension are required")
	}
	level := q.Level
	if level == "" {
		level = DrillLevel1
	}
	if level == DrillLevel2 && q.ParentValue == "" {
		return nil, errors.New("drill: parent value is required for level 2")
	}

	params := url.Values{}
	params.Set("chartKey", q.ChartKey)
	params.Set("level", level)
	params.Set("dimension", q.Dimension)
	for k, v := range map[string]string{
		"dimension1":  q.Dimension1,
		"parentValue": q.ParentValue,
		"baseValue":   q.BaseValue,
	} {
		if v != "" {
			params.Set(k, v)
		}
	}
	if q.Filter.Preset != "" {
		params.Set("filterType", q.Filter.Preset.Wire(c.casing))
		if q.Filter.Preset == filter.Custom && q.Filter.Complete() {
			params.Set("custom_start", q.Filter.Start)
			params.Set("custom_end", q.Filter.End)
		}
	}

	var d model.ChartDescriptor
	if err := c.get(ctx, "api/drill", params, &d); err != nil {
		return nil, fmt.Errorf("drill %s: %w", q.ChartKey, err)
	}
	return &d, nil
}

// ─── Low-level HTTP ───────────────────────────────────────────────────────────

// get performs a GET request against the backend.
func (c *Client) get(ctx context.Context, endpoint string, params url.Values, out interface{}) error {
	return c.do(ctx, http.MethodGet, endpoint, params, nil, "", out)
}

// do issues one request. Transport errors and non-2xx statuses wrap
// ErrNetworkFailure; undecodable bodies wrap ErrMalformedResponse.
func (c *Client) do(ctx context.Context, method, endpoint string, params url.Values, body io.Reader, contentType string, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %v", model.ErrNetworkFailure, err)
	}

	reqURL := c.baseURL + endpoint
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}
	reqID := uuid.NewString()

	if c.debug {
		slog.Debug("backend request", "method", method, "url", reqURL, "request_id", reqID)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Request-ID", reqID)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrNetworkFailure, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: reading body: %v", model.ErrNetworkFailure, err)
	}

	if c.debug {
		slog.Debug("backend response", "status", resp.StatusCode, "bytes", len(data),
			"elapsed", time.Since(start), "request_id", reqID)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: HTTP %d: %s", model.ErrNetworkFailure, resp.StatusCode, errorDetail(data))
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: decoding response: %v", model.ErrMalformedResponse, err)
	}
	return nil
}

// errorDetail extracts FastAPI's {"detail": ...} or {"error": ...} message,
// falling back to the truncated body.
func errorDetail(body []byte) string {
	var apiErr struct {
		Detail json.RawMessage `json:"detail"`
		Error  string          `json:"error"`
	}
	if json.Unmarshal(body, &apiErr) == nil {
		if apiErr.Error != "" {
			return apiErr.Error
		}
		var s string
		if json.Unmarshal(apiErr.Detail, &s) == nil && s != "" {
			return s
		}
		if len(apiErr.Detail) > 0 {
			return string(apiErr.Detail)
		}
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > maxErrorBody {
		msg = msg[:maxErrorBody] + "…"
	}
	return msg
}
