package httpapi

import (
	"context"
	"net/http"

	"github.com/atlas-ai/knowledge-core/internal/apperr"
)

// ConversationRotator starts a fresh conversation for a session.
type ConversationRotator interface {
	RotateConversation(ctx context.Context, agentID, chatSessionID string) (string, error)
}

type rotateConversationRequest struct {
	AgentID       string `json:"agent_id"`
	ChatSessionID string `json:"chat_session_id"`
}

type rotateConversationResponse struct {
	ConversationID string `json:"conversation_id"`
}

// RotateConversationID clears a session's visible thread by starting a new
// conversation_id, without touching the session or its history.
func RotateConversationID(rotator ConversationRotator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req rotateConversationRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}
		if req.AgentID == "" || req.ChatSessionID == "" {
			writeError(w, apperr.Validation("agent_id and chat_session_id are required"))
			return
		}

		conversationID, err := rotator.RotateConversation(r.Context(), req.AgentID, req.ChatSessionID)
		if err != nil {
			writeError(w, mapStoreErr(err, "session %s", req.ChatSessionID))
			return
		}

		writeJSON(w, http.StatusOK, rotateConversationResponse{ConversationID: conversationID})
	}
}
