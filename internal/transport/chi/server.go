package chi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/bassam-ai/bassam/internal/domain"
	"github.com/bassam-ai/bassam/internal/logger"
	healthuc "github.com/bassam-ai/bassam/internal/usecase/health"
	usageuc "github.com/bassam-ai/bassam/internal/usecase/usage"
)

const maxBodyBytes = 64 << 10

// Error codes returned in ErrorResponse.Code.
const (
	CodeBadRequest   = "bad_request"
	CodeUnauthorized = "unauthorized"
	CodeInternal     = "internal_error"
)

// Answerer resolves queries.
type Answerer interface {
	Answer(ctx context.Context, q domain.Query) domain.Answer
	People(ctx context.Context, name string) ([]domain.Source, error)
}

// HealthChecker aggregates component health.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}

// UsageReporter builds the usage report.
type UsageReporter interface {
	GetReport(ctx context.Context) (usageuc.Report, error)
}

// Server holds the HTTP handlers.
type Server struct {
	answers Answerer
	health  HealthChecker
	usage   UsageReporter
	logger  *zap.Logger
}

// NewServer creates an HTTP API server.
func NewServer(answers Answerer, health HealthChecker, usage UsageReporter, logger *zap.Logger) *Server {
	return &Server{answers: answers, health: health, usage: usage, logger: logger}
}

// Routes registers every endpoint on r.
func (s *Server) Routes(r chi.Router) {
	r.Post("/search", s.Search)
	r.Post("/people", s.People)
	r.Post("/api/omni", s.Omni)
	r.Get("/api/usage", s.Usage)
	r.Get("/healthz", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
}

// ErrorResponse is the body of every 4xx/5xx reply.
type ErrorResponse struct {
	OK      bool   `json:"ok"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SearchRequest is the body of POST /search.
type SearchRequest struct {
	Q          string `json:"q"`
	WantPrices bool   `json:"want_prices,omitempty"`
	SessionID  string `json:"session_id,omitempty"`
	Provider   string `json:"provider,omitempty"`
	MaxTokens  int    `json:"max_tokens,omitempty"`
}

// SearchResponse is the reply of POST /search.
type SearchResponse struct {
	OK        bool            `json:"ok"`
	LatencyMs int64           `json:"latency_ms"`
	Answer    string          `json:"answer"`
	Sources   []domain.Source `json:"sources"`
	Route     domain.Route    `json:"route"`
	Provider  string          `json:"provider,omitempty"`
	FromCache bool            `json:"from_cache"`
}

// Search handles POST /search.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Q) == "" {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "q is required")
		return
	}
	if req.MaxTokens < 0 {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "max_tokens must not be negative")
		return
	}

	ctx, usage := domain.NewContextWithUsage(r.Context())
	ans := s.answers.Answer(ctx, domain.Query{
		RawText:   req.Q,
		SessionID: req.SessionID,
		Options:   domain.Options{WantPrices: req.WantPrices, ForceProvider: req.Provider, MaxTokens: req.MaxTokens},
	})

	sources := ans.Sources
	if sources == nil {
		sources = []domain.Source{}
	}
	setUpstreamHeaders(w, usage)
	writeJSON(w, http.StatusOK, SearchResponse{
		OK:        ans.Success,
		LatencyMs: ans.Latency.Milliseconds(),
		Answer:    ans.Text,
		Sources:   sources,
		Route:     ans.Route,
		Provider:  ans.Provider,
		FromCache: ans.FromCache,
	})
}

// PeopleRequest is the body of POST /people.
type PeopleRequest struct {
	Name string `json:"name"`
}

// PeopleResponse is the reply of POST /people.
type PeopleResponse struct {
	OK      bool            `json:"ok"`
	Sources []domain.Source `json:"sources"`
}

// People handles POST /people. Search failures answer ok=false with no sources.
func (s *Server) People(w http.ResponseWriter, r *http.Request) {
	var req PeopleRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "name is required")
		return
	}

	ctx, usage := domain.NewContextWithUsage(r.Context())
	sources, err := s.answers.People(ctx, req.Name)
	setUpstreamHeaders(w, usage)
	if err != nil {
		logger.FromContext(ctx, s.logger).Warn("People search failed", zap.Error(err))
		writeJSON(w, http.StatusOK, PeopleResponse{OK: false, Sources: []domain.Source{}})
		return
	}
	if sources == nil {
		sources = []domain.Source{}
	}
	writeJSON(w, http.StatusOK, PeopleResponse{OK: true, Sources: sources})
}

// OmniRequest is the body of POST /api/omni.
type OmniRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
}

// OmniResponse is the reply of POST /api/omni.
type OmniResponse struct {
	OK     bool   `json:"ok"`
	Answer string `json:"answer"`
}

// Omni handles POST /api/omni.
func (s *Server) Omni(w http.ResponseWriter, r *http.Request) {
	var req OmniRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "message is required")
		return
	}

	ctx, usage := domain.NewContextWithUsage(r.Context())
	ans := s.answers.Answer(ctx, domain.Query{RawText: req.Message, SessionID: req.SessionID})
	setUpstreamHeaders(w, usage)
	writeJSON(w, http.StatusOK, OmniResponse{OK: ans.Success, Answer: ans.Text})
}

// HealthResponse is the reply of GET /healthz.
type HealthResponse struct {
	Status    healthuc.Status                 `json:"status"`
	Checks    map[string]healthuc.CheckResult `json:"checks"`
	Providers []string                        `json:"providers"`
}

// HealthCheck handles GET /healthz.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}
	providers := report.Providers
	if providers == nil {
		providers = []string{}
	}
	writeJSON(w, httpStatus, HealthResponse{Status: report.Status, Checks: report.Checks, Providers: providers})
}

// UsageResponse is the reply of GET /api/usage.
type UsageResponse struct {
	OK bool `json:"ok"`
	usageuc.Report
	LogsError string `json:"logs_error,omitempty"`
}

// Usage handles GET /api/usage.
func (s *Server) Usage(w http.ResponseWriter, r *http.Request) {
	report, err := s.usage.GetReport(r.Context())
	resp := UsageResponse{OK: true, Report: report}
	if err != nil {
		logger.FromContext(r.Context(), s.logger).Warn("Usage logs unavailable", zap.Error(err))
		resp.LogsError = "usage logs unavailable"
	}
	writeJSON(w, http.StatusOK, resp)
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		msg := "invalid request body"
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			msg = "request body too large"
		case errors.Is(err, io.EOF):
			msg = "request body is empty"
		}
		writeError(w, http.StatusBadRequest, CodeBadRequest, msg)
		return false
	}
	return true
}

func setUpstreamHeaders(w http.ResponseWriter, usage *domain.UpstreamUsage) {
	if usage == nil {
		return
	}
	w.Header().Set("X-Upstream-Calls", strconv.Itoa(usage.Total()))
	if usage.TotalTokens > 0 {
		w.Header().Set("X-LLM-Tokens", strconv.Itoa(usage.TotalTokens))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}
