package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/source"
)

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req models.AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Debug("ask request",
		zap.String("conversation_id", req.ConversationID),
		zap.Int("web_results", len(req.WebResults)))
	resp, err := s.assistant.Ask(r.Context(), req)
	if err != nil {
		s.logger.Error("ask failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

type searchRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k,omitempty"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Query == "" {
		s.respondError(w, http.StatusBadRequest, "query is required")
		return
	}
	s.logger.Debug("search request", zap.String("query", req.Query), zap.Int("top_k", req.TopK))
	results, err := s.engine.Search(r.Context(), req.Query, req.TopK)
	if err != nil {
		s.logger.Error("search failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"query":   req.Query,
		"results": results,
	})
}

// handleIngestDocuments indexes documents supplied in the body, or the
// whole configured document directory when the body is empty.
func (s *Server) handleIngestDocuments(w http.ResponseWriter, r *http.Request) {
	var docs []models.DocumentInput
	if err := json.NewDecoder(r.Body).Decode(&docs); err != nil && !errors.Is(err, io.EOF) {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	fromSource := len(docs) == 0
	if fromSource {
		loaded, err := s.source.Load(r.Context())
		if err != nil {
			s.logger.Error("document load failed", zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		docs = loaded
	}
	report, err := s.ingestor.IngestDocuments(r.Context(), docs)
	if err != nil {
		s.logger.Error("document ingestion failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if fromSource && report.FailedBatches == 0 {
		if confirmer, ok := s.source.(source.IndexConfirmer); ok {
			if err := confirmer.MarkIndexed(r.Context()); err != nil {
				s.logger.Warn("failed to record file states", zap.Error(err))
			}
		}
	}
	s.respondJSON(w, http.StatusOK, report)
}

func (s *Server) handleIngestWeb(w http.ResponseWriter, r *http.Request) {
	var results []models.WebResult
	if err := json.NewDecoder(r.Body).Decode(&results); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	report, err := s.ingestor.IngestWebResults(r.Context(), results)
	if err != nil {
		s.logger.Error("web ingestion failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, report)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	count, err := s.index.Count(ctx)
	if err != nil {
		s.logger.Error("status: count failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	sample, err := s.index.Scroll(ctx, 10)
	if err != nil {
		s.logger.Error("status: scroll failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"collection": s.index.Collection(),
		"points":     count,
		"sample":     sample,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
