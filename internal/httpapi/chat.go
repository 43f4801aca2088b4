package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/atlas-ai/knowledge-core/internal/apperr"
	"github.com/atlas-ai/knowledge-core/internal/orchestrate"
)

// ChatTurn is the subset of *orchestrate.Turn the chat handler needs:
// either stream or complete a prepared turn.
type ChatTurn interface {
	Complete(ctx context.Context, temperature *float64) (string, error)
	Stream(ctx context.Context) (<-chan string, <-chan error)
}

// ChatOrchestrator prepares a chat turn for a given agent/session/message.
type ChatOrchestrator interface {
	Prepare(ctx context.Context, agentID, chatSessionID, userMessage string) (ChatTurn, error)
}

type ChatDeps struct {
	Orchestrator ChatOrchestrator
}

// OrchestratorAdapter adapts *orchestrate.Orchestrator's concrete *Turn
// return value to the ChatOrchestrator interface the handler depends on.
type OrchestratorAdapter struct {
	*orchestrate.Orchestrator
}

func (a OrchestratorAdapter) Prepare(ctx context.Context, agentID, chatSessionID, userMessage string) (ChatTurn, error) {
	return a.Orchestrator.Prepare(ctx, agentID, chatSessionID, userMessage)
}

type chatRequest struct {
	AgentID       string `json:"agent_id"`
	ChatSessionID string `json:"chat_session_id,omitempty"`
	Message       string `json:"message"`
	Stream        bool   `json:"stream,omitempty"`
}

// chatFrame is the wire format for both SSE chunks and the single
// non-streaming reply: intermediate frames set done=false and omit the
// terminal fields.
type chatFrame struct {
	Chunk        string `json:"chunk"`
	Done         bool   `json:"done"`
	FullResponse string `json:"full_response,omitempty"`
	MessageID    string `json:"message_id,omitempty"`
	CreatedAt    string `json:"created_at,omitempty"`
	Role         string `json:"role,omitempty"`
}

// Chat handles query-agent / atlas-visitor-message: it answers either as a
// single JSON reply or as a stream of SSE frames depending on the request's
// stream flag.
func Chat(deps ChatDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}
		if req.AgentID == "" || req.Message == "" {
			writeError(w, apperr.Validation("agent_id and message are required"))
			return
		}
		if req.ChatSessionID == "" {
			req.ChatSessionID = uuid.NewString()
		}

		turn, err := deps.Orchestrator.Prepare(r.Context(), req.AgentID, req.ChatSessionID, req.Message)
		if err != nil {
			writeError(w, apperr.Upstream(err, "httpapi.Chat: prepare turn"))
			return
		}

		if req.Stream {
			streamChat(w, r, turn)
			return
		}
		completeChat(w, r, turn)
	}
}

func completeChat(w http.ResponseWriter, r *http.Request, turn ChatTurn) {
	answer, err := turn.Complete(r.Context(), nil)
	if err != nil {
		writeError(w, apperr.Upstream(err, "httpapi.Chat: generate reply"))
		return
	}
	writeJSON(w, http.StatusOK, terminalFrame(answer))
}

func streamChat(w http.ResponseWriter, r *http.Request, turn ChatTurn) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, apperr.Internal(nil, "httpapi.Chat: streaming unsupported by this response writer"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	text, errc := turn.Stream(r.Context())
	var full string
	for chunk := range text {
		full += chunk
		writeSSEFrame(w, chatFrame{Chunk: chunk, Done: false})
		flusher.Flush()
	}

	if err, ok := <-errc; ok && err != nil {
		writeSSEFrame(w, chatFrame{Chunk: "Sorry, something went wrong. Please try again.", Done: true})
		flusher.Flush()
		return
	}

	writeSSEFrame(w, terminalFrame(full))
	flusher.Flush()
}

func writeSSEFrame(w http.ResponseWriter, frame chatFrame) {
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
}

func terminalFrame(fullResponse string) chatFrame {
	return chatFrame{
		Chunk:        "",
		Done:         true,
		FullResponse: fullResponse,
		MessageID:    uuid.NewString(),
		CreatedAt:    time.Now().UTC().Format(time.RFC3339),
		Role:         "agent",
	}
}
