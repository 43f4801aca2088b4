// Package ingest dispatches and consumes asynchronous reindex requests over
// Pub/Sub: an HTTP handler enqueues a request and returns immediately, and
// the worker binary drains the subscription and drives the indexer.
package ingest

import (
	"encoding/json"
	"fmt"

	"github.com/atlas-ai/knowledge-core/internal/model"
)

// Request is the wire payload published to the ingest topic. Text carries
// the already-extracted text so the worker never needs to re-fetch or
// re-parse the source; the HTTP handler's background ingestion does that
// work before dispatching and records fetch failures on the source row.
type Request struct {
	AgentID       string             `json:"agentId"`
	KnowledgeType model.KnowledgeType `json:"knowledgeType"`
	Source        string             `json:"source"`
	Text          string             `json:"text"`

	// Populated only for KnowledgeTypeURL.
	BaseURL string `json:"baseUrl,omitempty"`

	// Populated only for KnowledgeTypeCustomQA.
	Question string `json:"question,omitempty"`
	Answer   string `json:"answer,omitempty"`
}

func (r Request) Validate() error {
	if r.AgentID == "" {
		return fmt.Errorf("ingest.Request: agentId is required")
	}
	if r.Source == "" {
		return fmt.Errorf("ingest.Request: source is required")
	}
	switch r.KnowledgeType {
	case model.KnowledgeTypeURL, model.KnowledgeTypeFile, model.KnowledgeTypeCustomText, model.KnowledgeTypeCustomQA:
	default:
		return fmt.Errorf("ingest.Request: unknown knowledge type %q", r.KnowledgeType)
	}
	return nil
}

func (r Request) Marshal() ([]byte, error) {
	return json.Marshal(r)
}

func Unmarshal(data []byte) (Request, error) {
	var r Request
	if err := json.Unmarshal(data, &r); err != nil {
		return Request{}, fmt.Errorf("ingest.Unmarshal: %w", err)
	}
	return r, r.Validate()
}
