package httpapi

import (
	"context"
	"net/http"

	"github.com/atlas-ai/knowledge-core/internal/apperr"
	"github.com/atlas-ai/knowledge-core/internal/model"
)

// SourceDeleter removes a knowledge source's payload and status rows.
type SourceDeleter interface {
	DeleteURL(ctx context.Context, agentID, normalizedURL string) error
	DeleteFile(ctx context.Context, agentID, fileName string) error
	DeleteCustomText(ctx context.Context, agentID, alias string) error
	DeleteQAPair(ctx context.Context, agentID, alias string) error
	DeleteStatus(ctx context.Context, agentID string, kt model.KnowledgeType, source string) error
}

// VectorDeleter removes every indexed point for a source, in both collections.
type VectorDeleter interface {
	DeleteSource(ctx context.Context, agentID string, kt model.KnowledgeType, source string) error
}

type DeleteDeps struct {
	Sources SourceDeleter
	Vectors VectorDeleter
}

type deleteResult struct {
	Source string `json:"source"`
	Error  string `json:"error,omitempty"`
}

type deleteResponse struct {
	Success bool           `json:"success"`
	Errors  []deleteResult `json:"errors,omitempty"`
}

// removeSources deletes every named source's payload row, status row, and
// indexed vector points, for a single knowledge type. A single source's
// failure never aborts the rest of the batch — each is recorded in the
// response's errors array instead.
func removeSources(ctx context.Context, deps DeleteDeps, agentID string, kt model.KnowledgeType, sources []string) []deleteResult {
	var failures []deleteResult
	for _, source := range sources {
		if err := deps.Vectors.DeleteSource(ctx, agentID, kt, source); err != nil {
			failures = append(failures, deleteResult{Source: source, Error: err.Error()})
			continue
		}

		var err error
		switch kt {
		case model.KnowledgeTypeURL:
			err = deps.Sources.DeleteURL(ctx, agentID, source)
		case model.KnowledgeTypeFile:
			err = deps.Sources.DeleteFile(ctx, agentID, source)
		case model.KnowledgeTypeCustomText:
			err = deps.Sources.DeleteCustomText(ctx, agentID, source)
		case model.KnowledgeTypeCustomQA:
			err = deps.Sources.DeleteQAPair(ctx, agentID, source)
		}
		if err != nil {
			failures = append(failures, deleteResult{Source: source, Error: err.Error()})
			continue
		}

		if err := deps.Sources.DeleteStatus(ctx, agentID, kt, source); err != nil {
			failures = append(failures, deleteResult{Source: source, Error: err.Error()})
		}
	}
	return failures
}

type batchDeleteRequest struct {
	AgentID string   `json:"agent_id"`
	Sources []string `json:"sources"`
}

func decodeBatchDelete(r *http.Request) (batchDeleteRequest, error) {
	var req batchDeleteRequest
	if err := decodeJSON(r, &req); err != nil {
		return req, err
	}
	if req.AgentID == "" {
		return req, apperr.Validation("agent_id is required")
	}
	if len(req.Sources) == 0 {
		return req, apperr.Validation("sources must be non-empty")
	}
	return req, nil
}

// RemoveLinks deletes one or more url sources (remove-agent-links).
func RemoveLinks(deps DeleteDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := decodeBatchDelete(r)
		if err != nil {
			writeError(w, err)
			return
		}
		failures := removeSources(r.Context(), deps, req.AgentID, model.KnowledgeTypeURL, req.Sources)
		writeJSON(w, http.StatusOK, deleteResponse{Success: len(failures) == 0, Errors: failures})
	}
}

// DeleteFiles deletes one or more file sources (delete-agent-files).
func DeleteFiles(deps DeleteDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := decodeBatchDelete(r)
		if err != nil {
			writeError(w, err)
			return
		}
		failures := removeSources(r.Context(), deps, req.AgentID, model.KnowledgeTypeFile, req.Sources)
		writeJSON(w, http.StatusOK, deleteResponse{Success: len(failures) == 0, Errors: failures})
	}
}

type deleteCustomDataRequest struct {
	AgentID     string   `json:"agent_id"`
	CustomTexts []string `json:"custom_texts,omitempty"`
	QAPairs     []string `json:"qa_pairs,omitempty"`
}

// DeleteCustomData deletes custom-text and/or Q&A sources in one call
// (delete-agent-custom-data).
func DeleteCustomData(deps DeleteDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req deleteCustomDataRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}
		if req.AgentID == "" {
			writeError(w, apperr.Validation("agent_id is required"))
			return
		}
		if len(req.CustomTexts) == 0 && len(req.QAPairs) == 0 {
			writeError(w, apperr.Validation("custom_texts or qa_pairs must be non-empty"))
			return
		}

		var failures []deleteResult
		failures = append(failures, removeSources(r.Context(), deps, req.AgentID, model.KnowledgeTypeCustomText, req.CustomTexts)...)
		failures = append(failures, removeSources(r.Context(), deps, req.AgentID, model.KnowledgeTypeCustomQA, req.QAPairs)...)

		writeJSON(w, http.StatusOK, deleteResponse{Success: len(failures) == 0, Errors: failures})
	}
}
