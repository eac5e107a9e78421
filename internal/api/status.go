package api

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/edfinlab/spendtrends/internal/metrics"
	"github.com/edfinlab/spendtrends/internal/models"
	"github.com/edfinlab/spendtrends/internal/utils"
)

// ResultStore keeps the newest successful run and the outcome of the newest
// attempt for the status API.
type ResultStore struct {
	mu        sync.RWMutex
	result    *models.RunResult
	artifacts []string
	last      utils.RunSample
	attempted bool
	history   *utils.RunHistory
}

// NewResultStore creates an empty store. history may be nil.
func NewResultStore(history *utils.RunHistory) *ResultStore {
	if history == nil {
		history = utils.NewRunHistory(0)
	}
	return &ResultStore{history: history}
}

// RunCompleted records a finished run. Failed runs keep the previous result.
func (s *ResultStore) RunCompleted(sample utils.RunSample, result *models.RunResult, artifacts []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = sample
	s.attempted = true
	if result != nil {
		s.result = result
		s.artifacts = append([]string(nil), artifacts...)
	}
}

// Latest returns the newest successful result.
func (s *ResultStore) Latest() (*models.RunResult, []string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.result, s.artifacts, s.result != nil
}

// LastAttempt returns the newest run sample, successful or not.
func (s *ResultStore) LastAttempt() (utils.RunSample, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last, s.attempted
}

// History returns the run history backing /v1/runs.
func (s *ResultStore) History() *utils.RunHistory {
	return s.history
}

type healthResponse struct {
	Status      string           `json:"status"`
	LastAttempt *utils.RunSample `json:"lastAttempt,omitempty"`
}

type runsResponse struct {
	Runs        []utils.RunSample `json:"runs"`
	P95Duration time.Duration     `json:"p95Duration"`
}

type summaryResponse struct {
	RunID        string                `json:"runId"`
	FinishedAt   time.Time             `json:"finishedAt"`
	Records      int                   `json:"records"`
	Institutions int                   `json:"institutions"`
	Years        []int                 `json:"years"`
	BaseYear     int                   `json:"baseYear"`
	Artifacts    []string              `json:"artifacts"`
	Trends       []models.TrendSummary `json:"trends"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewStatusRouter serves the watch-mode HTTP surface: health, Prometheus
// metrics, and read-only views of the newest results.
func NewStatusRouter(store *ResultStore, gatherer prometheus.Gatherer) http.Handler {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	h := &statusHandler{store: store}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.health)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Route("/v1", func(r chi.Router) {
		r.Get("/runs", h.runs)
		r.Get("/summary", h.summary)
		r.Get("/series", h.series)
		r.Get("/corrections", h.corrections)
		r.Get("/diagnostics", h.diagnostics)
	})
	return r
}

type statusHandler struct {
	store *ResultStore
}

func (h *statusHandler) health(w http.ResponseWriter, r *http.Request) {
	sample, ok := h.store.LastAttempt()
	if !ok {
		render.Status(r, http.StatusServiceUnavailable)
		render.JSON(w, r, healthResponse{Status: "starting"})
		return
	}
	resp := healthResponse{Status: "ok", LastAttempt: &sample}
	if sample.Outcome == metrics.OutcomeError {
		resp.Status = "failing"
		render.Status(r, http.StatusServiceUnavailable)
	}
	render.JSON(w, r, resp)
}

func (h *statusHandler) runs(w http.ResponseWriter, r *http.Request) {
	history := h.store.History()
	runs := history.Recent()
	if limit, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && limit > 0 && limit < len(runs) {
		runs = runs[len(runs)-limit:]
	}
	render.JSON(w, r, runsResponse{Runs: runs, P95Duration: history.Percentile(95)})
}

// latest writes 404 and returns false when no run has succeeded yet.
func (h *statusHandler) latest(w http.ResponseWriter, r *http.Request) (*models.RunResult, []string, bool) {
	result, artifacts, ok := h.store.Latest()
	if !ok {
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, errorResponse{Error: "no successful run yet"})
	}
	return result, artifacts, ok
}

func (h *statusHandler) summary(w http.ResponseWriter, r *http.Request) {
	result, artifacts, ok := h.latest(w, r)
	if !ok {
		return
	}
	trends := result.Trends
	if metric := r.URL.Query().Get("metric"); metric != "" {
		trends = nil
		for _, t := range result.Trends {
			if t.Metric == metric {
				trends = append(trends, t)
			}
		}
	}
	render.JSON(w, r, summaryResponse{
		RunID:        result.RunID,
		FinishedAt:   result.FinishedAt,
		Records:      result.Records,
		Institutions: result.Institutions,
		Years:        result.Years,
		BaseYear:     result.BaseYear,
		Artifacts:    artifacts,
		Trends:       trends,
	})
}

func (h *statusHandler) series(w http.ResponseWriter, r *http.Request) {
	result, _, ok := h.latest(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	metric, group := q.Get("metric"), q.Get("group")
	out := make([]models.YearlySeries, 0, len(result.Series))
	for _, s := range result.Series {
		if metric != "" && s.Metric != metric {
			continue
		}
		if group != "" && s.Group != group {
			continue
		}
		out = append(out, s)
	}
	render.JSON(w, r, out)
}

func (h *statusHandler) corrections(w http.ResponseWriter, r *http.Request) {
	result, _, ok := h.latest(w, r)
	if !ok {
		return
	}
	out := result.Corrections
	if out == nil {
		out = []models.Correction{}
	}
	render.JSON(w, r, out)
}

func (h *statusHandler) diagnostics(w http.ResponseWriter, r *http.Request) {
	result, _, ok := h.latest(w, r)
	if !ok {
		return
	}
	kind := models.DiagnosticKind(r.URL.Query().Get("kind"))
	out := make([]models.Diagnostic, 0, len(result.Diagnostics))
	for _, d := range result.Diagnostics {
		if kind == "" || d.Kind == kind {
			out = append(out, d)
		}
	}
	render.JSON(w, r, out)
}
