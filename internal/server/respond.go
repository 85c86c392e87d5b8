package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/derickschaefer/kpiboard/internal/analyze"
	"github.com/derickschaefer/kpiboard/internal/builder"
	"github.com/derickschaefer/kpiboard/internal/chart"
	"github.com/derickschaefer/kpiboard/internal/controller"
	"github.com/derickschaefer/kpiboard/internal/model"
)

// ─── Chart handlers ───────────────────────────────────────────────────────────

// chartView finds the titled chart on the request's page and, when a type
// query parameter is given, rebuilds its option for that type.
func (s *Server) chartView(r *http.Request) (controller.ChartView, error) {
	v, err := s.view(r)
	if err != nil {
		return controller.ChartView{}, err
	}
	title := chi.URLParam(r, "title")
	if t, err := url.PathUnescape(title); err == nil {
		title = t
	}
	for _, cv := range v.Charts {
		if cv.Title != title {
			continue
		}
		raw := r.URL.Query().Get("type")
		if raw == "" || cv.Chart == nil {
			return cv, nil
		}
		t, err := model.ParseChartType(raw)
		if err != nil {
			return cv, badRequest(err)
		}
		if (cv.Declared == model.ChartList) != (t == model.ChartList) {
			return cv, badRequest(fmt.Errorf("chart %q cannot be shown as %s", title, t))
		}
		cv.Type = t
		if t != model.ChartList {
			opt, err := builder.Build(cv.Chart, t)
			if err != nil {
				return cv, badRequest(err)
			}
			cv.Option = opt
		}
		return cv, nil
	}
	return controller.ChartView{}, notFound(fmt.Errorf("no chart titled %q on %s", title, v.Page.Name))
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	cv, err := s.chartView(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cv)
}

func (s *Server) handleChartStats(w http.ResponseWriter, r *http.Request) {
	cv, err := s.chartView(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if cv.Chart == nil {
		s.problem(w, r, http.StatusUnprocessableEntity, errors.New(cv.Error))
		return
	}
	method, err := analyze.ParseTrendMethod(r.URL.Query().Get("method"))
	if err != nil {
		s.fail(w, r, badRequest(err))
		return
	}
	stats := analyze.ChartTrend(cv.Chart, method)
	if stats == nil {
		stats = []analyze.Summary{}
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleChartImage(w http.ResponseWriter, r *http.Request) {
	cv, err := s.chartView(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if cv.Chart == nil {
		s.problem(w, r, http.StatusUnprocessableEntity, errors.New(cv.Error))
		return
	}
	format := chart.SVG
	contentType := "image/svg+xml"
	if r.URL.Query().Get("format") == "png" {
		format, contentType = chart.PNG, "image/png"
	}

	var buf bytes.Buffer
	if err := chart.Export(&buf, cv.Chart, cv.Type, format, chart.ExportOptions{}); err != nil {
		s.problem(w, r, http.StatusUnprocessableEntity, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// ─── Responses ────────────────────────────────────────────────────────────────

// problemDetail is an RFC 7807 error body.
type problemDetail struct {
	Title     string `json:"title"`
	Status    int    `json:"status"`
	Detail    string `json:"detail,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

type statusError struct {
	status int
	err    error
}

func (e *statusError) Error() string { return e.err.Error() }
func (e *statusError) Unwrap() error { return e.err }

func badRequest(err error) error { return &statusError{status: http.StatusBadRequest, err: err} }
func notFound(err error) error   { return &statusError{status: http.StatusNotFound, err: err} }

// statusFor maps the error taxonomy to HTTP status codes.
func statusFor(err error) int {
	var se *statusError
	switch {
	case errors.As(err, &se):
		return se.status
	case errors.Is(err, model.ErrUnknownPage):
		return http.StatusNotFound
	case errors.Is(err, model.ErrQuotaExhausted):
		return http.StatusTooManyRequests
	case errors.Is(err, model.ErrInsightInFlight):
		return http.StatusConflict
	case errors.Is(err, model.ErrUploadRejected):
		return http.StatusUnprocessableEntity
	case errors.Is(err, model.ErrNetworkFailure), errors.Is(err, model.ErrMalformedResponse):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	s.problem(w, r, statusFor(err), err)
}

func (s *Server) problem(w http.ResponseWriter, r *http.Request, status int, err error) {
	if status >= 500 {
		s.log.Error("request failed", "path", r.URL.Path, "status", status, "err", err)
	}
	writeJSON(w, status, problemDetail{
		Title:     http.StatusText(status),
		Status:    status,
		Detail:    err.Error(),
		RequestID: middleware.GetReqID(r.Context()),
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
