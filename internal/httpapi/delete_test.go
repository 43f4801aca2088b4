package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/atlas-ai/knowledge-core/internal/model"
)

type fakeSourceDeleter struct {
	failSource string
	deleted    []string
}

func (f *fakeSourceDeleter) DeleteURL(ctx context.Context, agentID, normalizedURL string) error {
	f.deleted = append(f.deleted, normalizedURL)
	return nil
}

func (f *fakeSourceDeleter) DeleteFile(ctx context.Context, agentID, fileName string) error {
	f.deleted = append(f.deleted, fileName)
	return nil
}

func (f *fakeSourceDeleter) DeleteCustomText(ctx context.Context, agentID, alias string) error {
	f.deleted = append(f.deleted, alias)
	return nil
}

func (f *fakeSourceDeleter) DeleteQAPair(ctx context.Context, agentID, alias string) error {
	f.deleted = append(f.deleted, alias)
	return nil
}

func (f *fakeSourceDeleter) DeleteStatus(ctx context.Context, agentID string, kt model.KnowledgeType, source string) error {
	return nil
}

type fakeVectorDeleter struct {
	failSource string
}

func (f fakeVectorDeleter) DeleteSource(ctx context.Context, agentID string, kt model.KnowledgeType, source string) error {
	if source == f.failSource {
		return errUpstreamForTest
	}
	return nil
}

func TestRemoveLinks_DeletesEveryURL(t *testing.T) {
	sources := &fakeSourceDeleter{}
	deps := DeleteDeps{Sources: sources, Vectors: fakeVectorDeleter{}}

	body, _ := json.Marshal(batchDeleteRequest{AgentID: "a1", Sources: []string{"https://example.com/a", "https://example.com/b"}})
	req := httptest.NewRequest(http.MethodPost, "/remove-agent-links", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	RemoveLinks(deps)(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp deleteResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if !resp.Success || len(sources.deleted) != 2 {
		t.Fatalf("resp = %+v, deleted = %v", resp, sources.deleted)
	}
}

func TestRemoveLinks_PartialFailureReportedPerSource(t *testing.T) {
	sources := &fakeSourceDeleter{}
	deps := DeleteDeps{Sources: sources, Vectors: fakeVectorDeleter{failSource: "https://example.com/bad"}}

	body, _ := json.Marshal(batchDeleteRequest{AgentID: "a1", Sources: []string{"https://example.com/good", "https://example.com/bad"}})
	req := httptest.NewRequest(http.MethodPost, "/remove-agent-links", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	RemoveLinks(deps)(rec, req)

	var resp deleteResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Success {
		t.Fatal("expected success=false when one source fails")
	}
	if len(resp.Errors) != 1 || resp.Errors[0].Source != "https://example.com/bad" {
		t.Fatalf("errors = %+v", resp.Errors)
	}
	if len(sources.deleted) != 1 {
		t.Fatalf("expected the good source to still be deleted, got %v", sources.deleted)
	}
}

func TestDeleteCustomData_RequiresAtLeastOneList(t *testing.T) {
	deps := DeleteDeps{Sources: &fakeSourceDeleter{}, Vectors: fakeVectorDeleter{}}

	body, _ := json.Marshal(deleteCustomDataRequest{AgentID: "a1"})
	req := httptest.NewRequest(http.MethodPost, "/delete-agent-custom-data", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	DeleteCustomData(deps)(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestDeleteCustomData_DeletesBothTextsAndQAPairs(t *testing.T) {
	sources := &fakeSourceDeleter{}
	deps := DeleteDeps{Sources: sources, Vectors: fakeVectorDeleter{}}

	body, _ := json.Marshal(deleteCustomDataRequest{AgentID: "a1", CustomTexts: []string{"faq"}, QAPairs: []string{"pricing"}})
	req := httptest.NewRequest(http.MethodPost, "/delete-agent-custom-data", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	DeleteCustomData(deps)(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(sources.deleted) != 2 {
		t.Fatalf("expected 2 deletions, got %v", sources.deleted)
	}
}
