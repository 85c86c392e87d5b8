// Package server exposes dashboard pages over HTTP as JSON, with chart
// options and rendered chart images. Each request drives a short-lived page
// controller; concurrent requests for the same page and filter share one
// backend fetch.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/unrolled/secure"
	"golang.org/x/sync/singleflight"

	"github.com/derickschaefer/kpiboard/internal/controller"
	"github.com/derickschaefer/kpiboard/internal/filter"
	"github.com/derickschaefer/kpiboard/internal/model"
	"github.com/derickschaefer/kpiboard/internal/store"
)

// Options configures New.
type Options struct {
	Pages   *controller.Registry
	Backend controller.Backend
	Store   store.KV
	Quota   *controller.Quota
	Logger  *slog.Logger
	// Timeout bounds each request, including the backend fetch. Default 30s.
	Timeout time.Duration
	// RateLimit is requests per minute per client IP. 0 disables limiting.
	RateLimit int
	// MaxUpload caps upload bodies in bytes. Default 10 MiB.
	MaxUpload int64
}

// Server serves the page API.
type Server struct {
	opts   Options
	log    *slog.Logger
	group  singleflight.Group
	router chi.Router
}

// New builds the router and middleware chain.
func New(opts Options) *Server {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxUpload <= 0 {
		opts.MaxUpload = 10 << 20
	}
	if opts.Pages == nil {
		opts.Pages = controller.NewRegistry(nil)
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	s := &Server{opts: opts, log: log}
	s.router = s.routes()
	return s
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down: %w", err)
		}
		return nil
	}
}

// ─── Routes ───────────────────────────────────────────────────────────────────

func (s *Server) routes() chi.Router {
	secureMiddleware := secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ReferrerPolicy:        "strict-origin-when-cross-origin",
		ContentSecurityPolicy: "default-src 'self'",
	})

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.opts.Timeout))
	r.Use(secureMiddleware.Handler)
	if s.opts.RateLimit > 0 {
		r.Use(httprate.Limit(s.opts.RateLimit, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/pages", s.handlePages)
		r.Get("/points", s.handlePoints)
		r.Route("/pages/{page}", func(r chi.Router) {
			r.Get("/", s.handlePage)
			r.Get("/charts/{title}", s.handleChart)
			r.Get("/charts/{title}/image", s.handleChartImage)
			r.Get("/charts/{title}/stats", s.handleChartStats)
			r.Post("/insights", s.handleInsight)
			r.Post("/upload", s.handleUpload)
		})
	})
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// ─── Page loading ─────────────────────────────────────────────────────────────

// selectionFromQuery reads filter, start and end. ok is false when the
// request names no filter, in which case the persisted one is used.
func selectionFromQuery(r *http.Request) (sel filter.Selection, ok bool, err error) {
	q := r.URL.Query()
	raw := q.Get("filter")
	if raw == "" {
		if q.Get("start") != "" || q.Get("end") != "" {
			return sel, false, errors.New("start and end require filter=custom")
		}
		return sel, false, nil
	}
	p, err := filter.ParsePreset(raw)
	if err != nil {
		return sel, false, err
	}
	sel = filter.Selection{Preset: p, Start: q.Get("start"), End: q.Get("end")}
	if err := sel.Validate(); err != nil {
		return sel, false, err
	}
	return sel, true, nil
}

// open builds a controller for the named page, applies the request's filter
// and settles the first fetch.
func (s *Server) open(ctx context.Context, name string, sel filter.Selection, hasSel bool) (*controller.Controller, error) {
	page, err := s.opts.Pages.Lookup(name)
	if err != nil {
		return nil, err
	}
	c, err := controller.New(ctx, controller.Options{
		Page:    page,
		Backend: s.opts.Backend,
		Store:   s.opts.Store,
		Quota:   s.opts.Quota,
	})
	if err != nil {
		return nil, err
	}
	if hasSel {
		if err := c.Apply(sel); err != nil {
			c.Close()
			return nil, err
		}
	}
	controller.Settle(c, c.Init())
	return c, nil
}

// view returns the settled view of a page. Identical concurrent requests
// share one controller run.
func (s *Server) view(r *http.Request) (controller.View, error) {
	name := strings.ToLower(chi.URLParam(r, "page"))
	sel, hasSel, err := selectionFromQuery(r)
	if err != nil {
		return controller.View{}, badRequest(err)
	}
	key := name + "|" + sel.Key()

	// The shared run must outlive whichever caller started it.
	base := context.WithoutCancel(r.Context())
	ch := s.group.DoChan(key, func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(base, s.opts.Timeout)
		defer cancel()
		c, err := s.open(ctx, name, sel, hasSel)
		if err != nil {
			return nil, err
		}
		defer c.Close()
		return c.View(), nil
	})
	select {
	case <-r.Context().Done():
		return controller.View{}, r.Context().Err()
	case res := <-ch:
		if res.Err != nil {
			return controller.View{}, res.Err
		}
		return res.Val.(controller.View), nil
	}
}

// ─── Handlers ─────────────────────────────────────────────────────────────────

func (s *Server) handlePages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.opts.Pages.All())
}

func (s *Server) handlePoints(w http.ResponseWriter, r *http.Request) {
	if s.opts.Quota == nil {
		s.problem(w, r, http.StatusNotFound, errors.New("no shared insight quota"))
		return
	}
	writeJSON(w, http.StatusOK, model.PointsReport{
		Points:    s.opts.Quota.Points(),
		Available: s.opts.Quota.Available(),
	})
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	v, err := s.view(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if v.Status == controller.StatusFailed && len(v.Metrics) == 0 && len(v.Charts) == 0 {
		s.problem(w, r, http.StatusBadGateway, errors.New(v.Notice))
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleInsight(w http.ResponseWriter, r *http.Request) {
	title := r.URL.Query().Get("chart")
	if title == "" {
		s.problem(w, r, http.StatusBadRequest, errors.New("chart is required"))
		return
	}
	sel, hasSel, err := selectionFromQuery(r)
	if err != nil {
		s.fail(w, r, badRequest(err))
		return
	}
	c, err := s.open(r.Context(), chi.URLParam(r, "page"), sel, hasSel)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	defer c.Close()
	if _, ok := c.Chart(title); !ok {
		s.fail(w, r, notFound(fmt.Errorf("no chart titled %q on %s", title, c.Page().Name)))
		return
	}

	cmd, err := c.RequestInsight(title)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	controller.Settle(c, cmd)
	cv, _ := c.Chart(title)
	if cv.Insight.Err != nil {
		s.fail(w, r, cv.Insight.Err)
		return
	}
	writeJSON(w, http.StatusOK, model.InsightReport{
		Page:    c.Page().Name,
		Chart:   title,
		Insight: cv.Insight.Text,
		Points:  c.Quota().Points(),
	})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUpload)
	file, header, err := r.FormFile("file")
	if err != nil {
		s.problem(w, r, http.StatusBadRequest, fmt.Errorf("reading upload: %w", err))
		return
	}
	defer file.Close()

	page, err := s.opts.Pages.Lookup(chi.URLParam(r, "page"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	c, err := controller.New(r.Context(), controller.Options{
		Page:    page,
		Backend: s.opts.Backend,
		Store:   s.opts.Store,
		Quota:   s.opts.Quota,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	defer c.Close()

	// The multipart file is closed by the deferred call above.
	controller.Settle(c, c.Upload(header.Filename, func() (io.ReadCloser, error) {
		return io.NopCloser(file), nil
	}))
	if c.Status() != controller.StatusReady {
		s.problem(w, r, http.StatusUnprocessableEntity, errors.New(c.View().Notice))
		return
	}
	writeJSON(w, http.StatusOK, c.View())
}
