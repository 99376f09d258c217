// Package api serves an evaluation service over HTTP.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"tailscale.com/tsweb"

	"github.com/banshee-data/interactive.eval/internal/connector"
	"github.com/banshee-data/interactive.eval/internal/evaluation"
	"github.com/banshee-data/interactive.eval/internal/fault"
	"github.com/banshee-data/interactive.eval/internal/httputil"
	"github.com/banshee-data/interactive.eval/internal/mask"
	"github.com/banshee-data/interactive.eval/internal/monitoring"
	"github.com/banshee-data/interactive.eval/internal/report"
	"github.com/banshee-data/interactive.eval/internal/storage"
	"github.com/banshee-data/interactive.eval/internal/version"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// maxBodySize bounds a posted prediction batch.
const maxBodySize = 256 << 20

// ServerName is reported by the healthcheck.
const ServerName = "interactive-eval"

// Server exposes one evaluation service. Submissions are processed one at a
// time.
type Server struct {
	svc   *evaluation.Service
	store *storage.Store
	users map[string]bool
	admin bool

	mu sync.Mutex
}

// Option configures a Server.
type Option func(*Server)

// WithUserKeys restricts the server to the given user keys. Without it any
// non-empty key is accepted.
func WithUserKeys(keys ...string) Option {
	return func(s *Server) {
		s.users = make(map[string]bool, len(keys))
		for _, k := range keys {
			s.users[k] = true
		}
	}
}

// WithAdmin mounts the database browser and backup under /debug/.
func WithAdmin() Option {
	return func(s *Server) { s.admin = true }
}

func NewServer(svc *evaluation.Service, store *storage.Store, opts ...Option) *Server {
	s := &Server{svc: svc, store: store}
	for _, o := range opts {
		o(s)
	}
	return s
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Opsf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

// ServeMux returns the routes of the server.
func (s *Server) ServeMux() (*http.ServeMux, error) {
	mux := http.NewServeMux()
	mux.HandleFunc(connector.PathHealthcheck, s.healthcheck)
	mux.HandleFunc(connector.PathSamples, s.authenticated(s.samples))
	mux.HandleFunc(connector.PathScribbles, s.authenticated(s.seedScribble))
	mux.HandleFunc(connector.PathInteraction, s.authenticated(s.interaction))
	mux.HandleFunc(connector.PathReport, s.authenticated(s.report))
	mux.HandleFunc(connector.PathFinish, s.authenticated(s.finish))
	mux.HandleFunc("/api/sessions", s.authenticated(s.sessions))
	mux.HandleFunc("/api/evaluation/chart", s.authenticated(s.chart))
	if s.admin {
		debug := tsweb.Debugger(mux)
		if err := s.store.AttachAdminRoutes(debug); err != nil {
			return nil, err
		}
		debug.Handle("report", "Curves of every session", http.HandlerFunc(s.debugReport))
	}
	return mux, nil
}

// caller identifies the user and session of a request.
type caller struct {
	user, session string
}

type handler func(w http.ResponseWriter, r *http.Request, c caller)

func (s *Server) authenticated(h handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := caller{
			user:    r.Header.Get(connector.HeaderUserKey),
			session: r.Header.Get(connector.HeaderSessionKey),
		}
		switch {
		case c.user == "":
			httputil.WriteFault(w, fault.Errorf(fault.ErrSetup, "missing %s header", connector.HeaderUserKey))
			return
		case s.users != nil && !s.users[c.user]:
			httputil.WriteFault(w, fault.Errorf(fault.ErrSetup, "unknown user key"))
			return
		case c.session == "":
			httputil.WriteFault(w, fault.Errorf(fault.ErrSetup, "missing %s header", connector.HeaderSessionKey))
			return
		}
		h(w, r, c)
	}
}

func (s *Server) healthcheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, connector.HealthResponse{Status: "ok", Name: ServerName, Version: version.Version})
}

func (s *Server) samples(w http.ResponseWriter, r *http.Request, c caller) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	cfg := s.svc.Config()
	if err := s.store.RecordSession(r.Context(), c.session, c.user, cfg.Subset); err != nil {
		httputil.WriteFault(w, err)
		return
	}
	monitoring.Opsf("session %s started by %s", c.session, c.user)
	httputil.WriteJSONOK(w, connector.NewSamplesResponse(s.svc.Samples(), cfg.MaxTime, cfg.MaxInteractions))
}

// seedScribble serves /api/dataset/scribbles/{sequence}/{idx}.
func (s *Server) seedScribble(w http.ResponseWriter, r *http.Request, _ caller) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, connector.PathScribbles), "/")
	if len(parts) != 2 || parts[0] == "" {
		httputil.NotFound(w, "expected /api/dataset/scribbles/{sequence}/{index}")
		return
	}
	idx, err := strconv.Atoi(parts[1])
	if err != nil {
		httputil.WriteFault(w, fault.Errorf(fault.ErrInvalidInput, "invalid scribble index %q", parts[1]))
		return
	}
	sc, err := s.svc.SeedScribble(parts[0], idx)
	if err != nil {
		httputil.WriteFault(w, err)
		return
	}
	httputil.WriteJSONOK(w, sc)
}

func (s *Server) interaction(w http.ResponseWriter, r *http.Request, c caller) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	var req connector.InteractionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&req); err != nil {
		httputil.WriteFault(w, fault.Errorf(fault.ErrInvalidInput, "invalid interaction body: %v", err))
		return
	}
	if req.PredMasks == nil {
		httputil.WriteFault(w, fault.Errorf(fault.ErrInvalidInput, "missing pred_masks"))
		return
	}
	pred, err := mask.DecodeBatch(req.PredMasks)
	if err != nil {
		httputil.WriteFault(w, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	next, err := s.svc.PostPredictedMasks(r.Context(), evaluation.Submission{
		SessionID:   c.session,
		Sequence:    req.Sequence,
		ScribbleIdx: req.ScribbleIdx,
		Pred:        pred,
		Timing:      req.Timing,
		Interaction: req.Interaction,
		Candidates:  req.Candidates,
	})
	if err != nil {
		httputil.WriteFault(w, err)
		return
	}
	httputil.WriteJSONOK(w, next)
}

func (s *Server) report(w http.ResponseWriter, r *http.Request, c caller) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	rows, err := s.svc.Report(r.Context(), c.session)
	if err != nil {
		httputil.WriteFault(w, err)
		return
	}
	httputil.WriteJSONOK(w, rows)
}

func (s *Server) finish(w http.ResponseWriter, r *http.Request, c caller) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	sum, err := s.svc.Summarize(r.Context(), c.session)
	if err != nil {
		httputil.WriteFault(w, err)
		return
	}
	if err := s.store.FinishSession(r.Context(), c.session); err != nil {
		httputil.WriteFault(w, err)
		return
	}
	monitoring.Opsf("session %s finished: auc %.3f, %s@%gs %.3f",
		c.session, sum.AUC, sum.MetricAtThreshold.Metric, sum.MetricAtThreshold.Threshold, sum.MetricAtThreshold.Value)
	httputil.WriteJSONOK(w, sum)
}

// sessions lists the caller's sessions on GET and forgets the current one on
// DELETE.
func (s *Server) sessions(w http.ResponseWriter, r *http.Request, c caller) {
	switch r.Method {
	case http.MethodGet:
		list, err := s.store.Sessions(r.Context(), c.user)
		if err != nil {
			httputil.WriteFault(w, err)
			return
		}
		httputil.WriteJSONOK(w, list)
	case http.MethodDelete:
		if err := s.store.DeleteSession(r.Context(), c.session); err != nil {
			httputil.WriteFault(w, err)
			return
		}
		monitoring.Opsf("session %s deleted by %s", c.session, c.user)
		httputil.WriteJSONOK(w, map[string]string{"deleted": c.session})
	default:
		httputil.MethodNotAllowed(w)
	}
}

// chart renders the current session's curve as an HTML page.
func (s *Server) chart(w http.ResponseWriter, r *http.Request, c caller) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	sum, err := s.svc.Summarize(r.Context(), c.session)
	if err != nil {
		httputil.WriteFault(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	curves := []report.NamedCurve{{Name: c.session, Curve: sum.Curve}}
	if err := report.ChartHTML(w, "Interactive evaluation", curves); err != nil {
		monitoring.Opsf("failed to render chart: %v", err)
	}
}

// debugReport charts the curve of every session with results.
func (s *Server) debugReport(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.Sessions(r.Context(), "")
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	var curves []report.NamedCurve
	for _, ses := range list {
		sum, err := s.svc.Summarize(r.Context(), ses.ID)
		if err != nil {
			monitoring.Diagf("skipping session %s in debug report: %v", ses.ID, err)
			continue
		}
		curves = append(curves, report.NamedCurve{Name: ses.UserKey + "/" + ses.ID, Curve: sum.Curve})
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := report.ChartHTML(w, "Interactive evaluation sessions", curves); err != nil {
		monitoring.Opsf("failed to render debug report: %v", err)
	}
}
