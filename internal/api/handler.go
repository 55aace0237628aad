package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kalambet/asave/internal/pipeline"
	"github.com/kalambet/asave/internal/retrieval"
	"github.com/kalambet/asave/internal/rules"
	"github.com/kalambet/asave/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

const (
	defaultSearchLimit = 5
	maxSearchLimit     = 50
)

// Analyzer is the analysis surface the API drives. *pipeline.Service
// satisfies it.
type Analyzer interface {
	InitializeComponents(ctx context.Context, fasDocID, ssDocID string) bool
	Session() *pipeline.Session
	RunOrchestration(ctx context.Context, sectionText, fasLabel string) pipeline.Result
	MineRules(ctx context.Context, ssDocIDs []string, outputDir string) pipeline.BatchReport
	Search(ctx context.Context, docID, query string, k int) ([]retrieval.Snippet, error)
}

// DocumentStore lists documents and queues indexing jobs.
// *storage.Store satisfies it.
type DocumentStore interface {
	ListDocuments() ([]storage.Document, error)
	GetDocument(id string) (storage.Document, error)
	EnqueueJob(job storage.Job) error
	JobCounts() (map[string]int, error)
}

type AppDeps struct {
	Service   Analyzer
	Store     DocumentStore
	Token     string
	RulesPath string // explicit rules used by validation
	RulesDir  string // output directory for mined rules
	// Resolve maps a document name to a file path and rejects names the
	// server may not read; nil keeps names as is.
	Resolve func(name string) (string, error)
	Logger  *zap.Logger
}

// NewHandler returns the HTTP API. /health is public; every other route
// requires the bearer token when one is configured.
func NewHandler(deps AppDeps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Resolve == nil {
		deps.Resolve = func(name string) (string, error) { return name, nil }
	}

	r := chi.NewRouter()
	r.Get("/health", handleHealth(deps))

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Get("/session", handleGetSession(deps))
		r.Post("/session", handleLoadSession(deps))
		r.Post("/analyze", handleAnalyze(deps))
		r.Post("/mine", handleMine(deps))
		r.Get("/search", handleSearch(deps))
		r.Get("/rules", handleRules(deps))

		r.Get("/documents", handleListDocuments(deps))
		r.Get("/documents/{id}", handleGetDocument(deps))
		r.Post("/documents", handleIndexDocument(deps))
	})

	return r
}

func handleHealth(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := map[string]any{
			"status":  "ok",
			"session": deps.Service.Session() != nil,
		}
		if counts, err := deps.Store.JobCounts(); err != nil {
			deps.Logger.Warn("counting jobs", zap.Error(err))
		} else {
			body["jobs"] = counts
		}
		writeJSON(w, http.StatusOK, body)
	}
}

type sessionRequest struct {
	FASDocument string `json:"fas_document"`
	SSDocument  string `json:"ss_document"`
}

func handleLoadSession(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req sessionRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.FASDocument == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "fas_document is required")
			return
		}
		if !checkDocuments(w, deps, req.FASDocument, req.SSDocument) {
			return
		}
		if !deps.Service.InitializeComponents(r.Context(), req.FASDocument, req.SSDocument) {
			httpError(w, http.StatusUnprocessableEntity, "api_error", "could not load FAS document %q", req.FASDocument)
			return
		}
		writeJSON(w, http.StatusOK, deps.Service.Session())
	}
}

func handleGetSession(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := deps.Service.Session()
		if sess == nil {
			httpError(w, http.StatusNotFound, "not_found", "no standards loaded")
			return
		}
		writeJSON(w, http.StatusOK, sess)
	}
}

type analyzeRequest struct {
	Text     string `json:"text"`
	FASLabel string `json:"fas_label"`
}

func handleAnalyze(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req analyzeRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Text) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "text is required")
			return
		}
		if deps.Service.Session() == nil {
			httpError(w, http.StatusConflict, "invalid_request_error", "no standards loaded; POST /session first")
			return
		}
		res := deps.Service.RunOrchestration(r.Context(), req.Text, req.FASLabel)
		deps.Logger.Info("section analyzed",
			zap.String("stage", string(res.Stage)),
			zap.Bool("halted", res.Halted()),
			zap.Int64("duration_ms", res.DurationMs),
		)
		writeJSON(w, http.StatusOK, res)
	}
}

type mineRequest struct {
	Documents []string `json:"documents"`
}

type mineResponse struct {
	OK     bool                 `json:"ok"`
	Report pipeline.BatchReport `json:"report"`
}

func handleMine(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req mineRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if len(req.Documents) == 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "documents is required and must not be empty")
			return
		}
		if !checkDocuments(w, deps, req.Documents...) {
			return
		}
		report := deps.Service.MineRules(r.Context(), req.Documents, deps.RulesDir)
		writeJSON(w, http.StatusOK, mineResponse{OK: report.OK(), Report: report})
	}
}

func handleSearch(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doc := r.URL.Query().Get("document")
		query := r.URL.Query().Get("q")
		if doc == "" || strings.TrimSpace(query) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "document and q are required")
			return
		}
		k := parseIntParam(r, "k", defaultSearchLimit, maxSearchLimit)
		snippets, err := deps.Service.Search(r.Context(), doc, query, k)
		if err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "search failed: %v", err)
			return
		}
		if snippets == nil {
			snippets = []retrieval.Snippet{}
		}
		writeJSON(w, http.StatusOK, snippets)
	}
}

// handleRules serves the explicit rule set, or the combined mined rules with
// ?source=mined.
func handleRules(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var (
			rs     []rules.ComplianceRule
			err    error
			source = deps.RulesPath
		)
		if r.URL.Query().Get("source") == "mined" {
			store := rules.NewStore(deps.RulesDir)
			source = store.Dir()
			rs, err = store.LoadCombined()
		} else {
			rs, err = rules.LoadFile(source)
		}
		if errors.Is(err, rules.ErrNoRules) {
			httpError(w, http.StatusNotFound, "not_found", "no rules found at %s", source)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load rules: %v", err)
			return
		}
		if rs == nil {
			rs = []rules.ComplianceRule{}
		}
		writeJSON(w, http.StatusOK, rs)
	}
}

// checkDocuments rejects the request with 400 if any non-empty name does not
// resolve to a readable document location.
func checkDocuments(w http.ResponseWriter, deps AppDeps, names ...string) bool {
	for _, name := range names {
		if name == "" {
			continue
		}
		if _, err := deps.Resolve(name); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "document %q: %v", name, err)
			return false
		}
	}
	return true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v <= 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
