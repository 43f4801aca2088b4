package httpapi

import (
	"context"
	"net/http"

	"github.com/atlas-ai/knowledge-core/internal/apperr"
	"github.com/atlas-ai/knowledge-core/internal/model"
)

const defaultPageLimit = 50

type URLLister interface {
	ListURLs(ctx context.Context, agentID string, after *model.CursorToken, limit int) ([]*model.URLSource, *model.CursorToken, error)
}

type FileLister interface {
	ListFiles(ctx context.Context, agentID string, after *model.CursorToken, limit int) ([]*model.FileSource, *model.CursorToken, error)
}

type CustomTextLister interface {
	ListCustomTexts(ctx context.Context, agentID string, after *model.CursorToken, limit int) ([]*model.CustomTextSource, *model.CursorToken, error)
}

type QAPairLister interface {
	ListQAPairs(ctx context.Context, agentID string, after *model.CursorToken, limit int) ([]*model.QAPairSource, *model.CursorToken, error)
}

type pageResponse struct {
	Items      any    `json:"items"`
	NextCursor string `json:"next_cursor,omitempty"`
}

// parseListQuery reads agent_id and cursor from the query string, common to
// every get-agent-* listing endpoint.
func parseListQuery(r *http.Request) (agentID string, after *model.CursorToken, err error) {
	agentID = r.URL.Query().Get("agent_id")
	if agentID == "" {
		return "", nil, apperr.Validation("agent_id is required")
	}
	after, err = decodeCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		return "", nil, apperr.Validation("%v", err)
	}
	return agentID, after, nil
}

func ListURLs(lister URLLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agentID, after, err := parseListQuery(r)
		if err != nil {
			writeError(w, err)
			return
		}
		items, next, err := lister.ListURLs(r.Context(), agentID, after, defaultPageLimit)
		if err != nil {
			writeError(w, apperr.Internal(err, "httpapi.ListURLs"))
			return
		}
		writeJSON(w, http.StatusOK, pageResponse{Items: items, NextCursor: encodeCursor(next)})
	}
}

func ListFiles(lister FileLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agentID, after, err := parseListQuery(r)
		if err != nil {
			writeError(w, err)
			return
		}
		items, next, err := lister.ListFiles(r.Context(), agentID, after, defaultPageLimit)
		if err != nil {
			writeError(w, apperr.Internal(err, "httpapi.ListFiles"))
			return
		}
		writeJSON(w, http.StatusOK, pageResponse{Items: items, NextCursor: encodeCursor(next)})
	}
}

func ListCustomTexts(lister CustomTextLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agentID, after, err := parseListQuery(r)
		if err != nil {
			writeError(w, err)
			return
		}
		items, next, err := lister.ListCustomTexts(r.Context(), agentID, after, defaultPageLimit)
		if err != nil {
			writeError(w, apperr.Internal(err, "httpapi.ListCustomTexts"))
			return
		}
		writeJSON(w, http.StatusOK, pageResponse{Items: items, NextCursor: encodeCursor(next)})
	}
}

func ListQAPairs(lister QAPairLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agentID, after, err := parseListQuery(r)
		if err != nil {
			writeError(w, err)
			return
		}
		items, next, err := lister.ListQAPairs(r.Context(), agentID, after, defaultPageLimit)
		if err != nil {
			writeError(w, apperr.Internal(err, "httpapi.ListQAPairs"))
			return
		}
		writeJSON(w, http.StatusOK, pageResponse{Items: items, NextCursor: encodeCursor(next)})
	}
}
