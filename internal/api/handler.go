package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/nidhogg/secgraph/internal/agent"
	"github.com/nidhogg/secgraph/internal/enrich"
	"github.com/nidhogg/secgraph/internal/finding"
	"github.com/nidhogg/secgraph/internal/graph"
	"github.com/nidhogg/secgraph/internal/ingest"
	"github.com/nidhogg/secgraph/internal/provider"
	"github.com/nidhogg/secgraph/internal/semantic"
)

// ChatRunner executes one conversational turn.
type ChatRunner interface {
	RunChat(ctx context.Context, history []provider.Message) (*agent.Result, error)
}

// Enricher runs a full relationship inference pass over the graph.
type Enricher interface {
	Run(ctx context.Context) (*enrich.Report, error)
}

// Ingester loads scanner findings into the graph.
type Ingester interface {
	Run(ctx context.Context, records []finding.Record) *ingest.Report
}

// Populator backfills embeddings onto findings that lack one.
type Populator interface {
	Run(ctx context.Context) (*ingest.PopulateReport, error)
}

// Searcher ranks findings by similarity to a free-text query.
type Searcher interface {
	Search(ctx context.Context, query string) ([]semantic.ScoredFinding, error)
}

// GraphReader exposes the read-side graph operations the API serves.
type GraphReader interface {
	Export(ctx context.Context) (*graph.GraphExport, error)
	Ping(ctx context.Context) error
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	chat      ChatRunner
	enricher  Enricher
	ingester  Ingester
	populator Populator
	searcher  Searcher
	graph     GraphReader
	logger    *zap.Logger
}

// NewHandler creates a new API handler.
func NewHandler(
	chat ChatRunner,
	enricher Enricher,
	ingester Ingester,
	populator Populator,
	searcher Searcher,
	graphReader GraphReader,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		chat:      chat,
		enricher:  enricher,
		ingester:  ingester,
		populator: populator,
		searcher:  searcher,
		graph:     graphReader,
		logger:    logger,
	}
}

// Router builds the chi router with all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.healthCheck)
		r.Post("/chat", h.chatTurn)
		r.Post("/findings", h.ingestFindings)
		r.Post("/enrich", h.runEnrichment)
		r.Post("/embeddings", h.populateEmbeddings)
		r.Get("/search", h.searchFindings)
		r.Get("/graph", h.exportGraph)
	})

	return r
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if err := h.graph.Ping(r.Context()); err != nil {
		status = "degraded"
		code = http.StatusServiceUnavailable
		h.logger.Warn("graph health check failed", zap.Error(err))
	}
	writeJSON(w, code, map[string]string{"status": status})
}

type chatRequest struct {
	Message string             `json:"message"`
	History []provider.Message `json:"history,omitempty"`
}

type chatResponse struct {
	Answer    string   `json:"answer"`
	Reasoning []string `json:"reasoning"`
}

func (h *Handler) chatTurn(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if req.Message == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "message is required"})
		return
	}

	history := append(req.History, provider.Message{Role: "user", Content: req.Message})
	result, err := h.chat.RunChat(r.Context(), history)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{Answer: result.Answer, Reasoning: result.Reasoning})
}

type ingestRequest struct {
	Findings []finding.Record `json:"findings"`
}

func (h *Handler) ingestFindings(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if len(req.Findings) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "findings are required"})
		return
	}
	report := h.ingester.Run(r.Context(), req.Findings)
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) runEnrichment(w http.ResponseWriter, r *http.Request) {
	report, err := h.enricher.Run(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) populateEmbeddings(w http.ResponseWriter, r *http.Request) {
	report, err := h.populator.Run(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, report)
}

type searchResult struct {
	FindingID  string  `json:"finding_id"`
	VulnTitle  string  `json:"vuln_title"`
	Severity   string  `json:"severity"`
	Similarity float64 `json:"similarity"`
}

func (h *Handler) searchFindings(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query parameter q is required"})
		return
	}

	scored, err := h.searcher.Search(r.Context(), query)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	limit := 20
	if len(scored) < limit {
		limit = len(scored)
	}
	results := make([]searchResult, 0, limit)
	for _, s := range scored[:limit] {
		results = append(results, searchResult{
			FindingID:  s.FindingID,
			VulnTitle:  s.VulnTitle,
			Severity:   s.VulnSeverity,
			Similarity: s.Similarity,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"query": query, "results": results})
}

func (h *Handler) exportGraph(w http.ResponseWriter, r *http.Request) {
	export, err := h.graph.Export(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, export)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
