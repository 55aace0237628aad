package api

import (
	"errors"
	"net/http"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kalambet/asave/internal/ingest"
	"github.com/kalambet/asave/internal/storage"
)

type IndexRequest struct {
	DocumentID string `json:"document_id"`
	Path       string `json:"path"`
}

func handleIndexDocument(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req IndexRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Path == "" && req.DocumentID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "at least one of document_id or path is required")
			return
		}
		if req.DocumentID == "" {
			req.DocumentID = ingest.DocumentID(req.Path)
		}
		path := req.Path
		if path == "" {
			path = req.DocumentID
		}
		path, err := deps.Resolve(path)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "document %q: %v", req.DocumentID, err)
			return
		}
		if !ingest.Supported(path) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "unsupported document type %q", filepath.Ext(path))
			return
		}

		jobID, err := ingest.EnqueueIndex(deps.Store, req.DocumentID, path)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to enqueue job: %v", err)
			return
		}
		deps.Logger.Info("index job queued", zap.String("document", req.DocumentID), zap.String("job", jobID))

		writeJSON(w, http.StatusAccepted, map[string]string{
			"document_id": req.DocumentID,
			"job_id":      jobID,
			"status":      "queued",
		})
	}
}

func handleListDocuments(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		docs, err := deps.Store.ListDocuments()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list documents: %v", err)
			return
		}
		if docs == nil {
			docs = []storage.Document{}
		}
		writeJSON(w, http.StatusOK, docs)
	}
}

func handleGetDocument(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		doc, err := deps.Store.GetDocument(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "document not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get document: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, doc)
	}
}
