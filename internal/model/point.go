package model

import "time"

// PageType classifies a catalog entry.
type PageType string

const (
	PageTypeProduct PageType = "product"
	PageTypeContent PageType = "content"
)

// KBPoint is a knowledge-base vector-store point: one chunk of text from any
// knowledge source, embedded on its TextContent.
type KBPoint struct {
	ID              string        `json:"id"`
	AgentID         string        `json:"agentId"`
	KnowledgeSource string        `json:"knowledgeSource"`
	KnowledgeType   KnowledgeType `json:"knowledgeType"`
	TextIndex       int           `json:"textIndex"`
	TextContent     string        `json:"textContent"`
	PageType        PageType      `json:"pageType,omitempty"`
	CreatedAt       time.Time     `json:"createdAt"`

	// Vector is populated only on write; search results carry it back via
	// Embedding when the caller asks for it explicitly (rare — normally
	// payload-only results are returned).
	Vector []float32 `json:"-"`
}

// CatalogEntry is a web-catalog vector-store point: one per URL, embedded on
// its Summary rather than its raw text.
type CatalogEntry struct {
	ID              string   `json:"id"`
	AgentID         string   `json:"agentId"`
	KnowledgeSource string   `json:"knowledgeSource"`
	URL             string   `json:"url"`
	PageType        PageType `json:"pageType"`
	Summary         string   `json:"summary"`
	ProductName     *string  `json:"productName,omitempty"`
	ProductID       *string  `json:"productId,omitempty"`
	Category        *string  `json:"category,omitempty"`
	Price           *float64 `json:"price,omitempty"`
	Currency        *string  `json:"currency,omitempty"`
	IsAvailable     *bool    `json:"isAvailable,omitempty"`

	Vector []float32 `json:"-"`
}

// ScoredPoint pairs a point's payload with its similarity score and id, as
// returned by a vector-store search.
type ScoredPoint struct {
	ID      string
	Score   float32
	Payload map[string]any
}
