package server

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/yuin/goldmark"
	"go.uber.org/zap"

	"github.com/TobiSchelling/dailyreport/internal/dataset"
	"github.com/TobiSchelling/dailyreport/internal/pipeline"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

var md = goldmark.New()

// A built report is reused for this long before the next request rebuilds it.
const cacheTTL = time.Minute

// Builder computes a report without sending it.
type Builder interface {
	Build(ctx context.Context, today time.Time) *pipeline.Result
}

// Server previews the report that would be sent today.
type Server struct {
	builder  Builder
	gatherer prometheus.Gatherer
	loc      *time.Location
	now      func() time.Time
	log      *zap.SugaredLogger
	pages    map[string]*template.Template
	mux      *http.ServeMux

	mu    sync.Mutex
	cache map[string]cached
}

type cached struct {
	result *pipeline.Result
	at     time.Time
}

// New creates a new Server. gatherer may be nil to disable /metrics.
func New(b Builder, gatherer prometheus.Gatherer, loc *time.Location, log *zap.SugaredLogger) (*Server, error) {
	funcMap := template.FuncMap{
		"markdown":   renderMarkdown,
		"displayDay": dataset.DisplayDay,
		"change":     formatChange,
	}

	base, err := template.New("base.html").Funcs(funcMap).ParseFS(templateFS, "templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("parsing base template: %w", err)
	}

	pageNames := []string{"index.html", "error.html"}
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		clone, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("cloning base for %s: %w", name, err)
		}
		_, err = clone.ParseFS(templateFS, "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", name, err)
		}
		pages[name] = clone
	}

	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	s := &Server{
		builder:  b,
		gatherer: gatherer,
		loc:      loc,
		now:      time.Now,
		log:      log,
		pages:    pages,
		mux:      http.NewServeMux(),
		cache:    make(map[string]cached),
	}
	s.routes()
	return s, nil
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	staticSub, _ := fs.Sub(staticFS, "static")
	s.mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticSub))))

	s.mux.HandleFunc("/", s.handleIndex)
	s.mux.HandleFunc("/chart.png", s.handleChart)
	s.mux.HandleFunc("/health", s.handleHealth)
	if s.gatherer != nil {
		s.mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	today, err := s.today(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	res := s.build(r.Context(), today, r.URL.Query().Get("refresh") != "")

	data := map[string]any{
		"Window": res.Window,
		"Steps":  res.Steps,
		"Date":   r.URL.Query().Get("date"),
	}
	if err := res.Err(); err != nil {
		data["Error"] = err.Error()
		s.render(w, http.StatusInternalServerError, "error.html", data)
		return
	}
	data["Report"] = res.Output.Markdown
	data["KPIs"] = res.Output.Delta.KPIs()
	data["Chart"] = res.Output.Chart.Name
	s.render(w, http.StatusOK, "index.html", data)
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	today, err := s.today(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	res := s.build(r.Context(), today, false)
	if err := res.Err(); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", res.Output.Chart.Name))
	w.Write(res.Output.Chart.PNG)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintln(w, "ok")
}

// today is the run date: ?date=YYYY-MM-DD or the current day in the
// configured timezone.
func (s *Server) today(r *http.Request) (time.Time, error) {
	if v := r.URL.Query().Get("date"); v != "" {
		d, err := dataset.ParseDay(v)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid date %q", v)
		}
		return d, nil
	}
	return dataset.Day(s.now().In(s.loc)), nil
}

func (s *Server) build(ctx context.Context, today time.Time, refresh bool) *pipeline.Result {
	key := today.Format(dataset.DateLayout)

	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.cache[key]; ok && !refresh && s.now().Sub(c.at) < cacheTTL {
		return c.result
	}
	res := s.builder.Build(ctx, today)
	if res.Err() == nil {
		s.cache[key] = cached{result: res, at: s.now()}
	} else {
		delete(s.cache, key)
	}
	return res
}

func (s *Server) render(w http.ResponseWriter, status int, name string, data any) {
	tmpl, ok := s.pages[name]
	if !ok {
		s.log.Errorf("Template %s not found", name)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "base.html", data); err != nil {
		s.log.Errorf("Error rendering template %s: %v", name, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

func renderMarkdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(buf.String()) //nolint: gosec
}

func formatChange(v float64) string {
	return fmt.Sprintf("%+.2f%%", v)
}

// Serve starts the HTTP server on the given port and shuts it down when ctx
// is done.
func Serve(ctx context.Context, srv *Server, port int) error {
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	hs := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		srv.log.Infof("Server listening on http://%s", addr)
		errc <- hs.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := hs.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
