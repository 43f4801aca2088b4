package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/atlas-ai/knowledge-core/internal/store"
)

type fakeRotator struct {
	conversationID string
	err            error
}

func (f fakeRotator) RotateConversation(ctx context.Context, agentID, chatSessionID string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.conversationID, nil
}

func TestRotateConversationID_ReturnsNewConversationID(t *testing.T) {
	handler := RotateConversationID(fakeRotator{conversationID: "conv-2"})

	body, _ := json.Marshal(rotateConversationRequest{AgentID: "a1", ChatSessionID: "s1"})
	req := httptest.NewRequest(http.MethodPost, "/rotate-conversation-id", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp rotateConversationResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.ConversationID != "conv-2" {
		t.Fatalf("conversation_id = %q", resp.ConversationID)
	}
}

func TestRotateConversationID_MissingFieldsRejected(t *testing.T) {
	handler := RotateConversationID(fakeRotator{})

	body, _ := json.Marshal(rotateConversationRequest{AgentID: "a1"})
	req := httptest.NewRequest(http.MethodPost, "/rotate-conversation-id", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestRotateConversationID_UnknownSessionReturnsNotFound(t *testing.T) {
	handler := RotateConversationID(fakeRotator{err: store.ErrNotFound})

	body, _ := json.Marshal(rotateConversationRequest{AgentID: "a1", ChatSessionID: "missing"})
	req := httptest.NewRequest(http.MethodPost, "/rotate-conversation-id", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}
