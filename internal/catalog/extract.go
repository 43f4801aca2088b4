// Package catalog extracts structured per-page metadata (product vs content
// classification, summary, price, availability) from fetched page text, so
// the web-catalog vector collection can be searched and filtered cheaply
// without re-reading full chunk text.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
)

// Extractor produces a catalog Metadata record from a page's text via an
// LLM structured-output call.
type Extractor interface {
	ExtractJSON(ctx context.Context, systemPrompt, userPrompt string, out any) error
}

// Metadata is the structured result of classifying one fetched page.
type Metadata struct {
	PageType    string   `json:"pageType"`
	Summary     string   `json:"summary"`
	ProductName *string  `json:"productName,omitempty"`
	ProductID   *string  `json:"productId,omitempty"`
	Category    *string  `json:"category,omitempty"`
	Price       *float64 `json:"price,omitempty"`
	Currency    *string  `json:"currency,omitempty"`
	IsAvailable *bool    `json:"isAvailable,omitempty"`
}

const systemPrompt = `You classify a web page's extracted text for a product/content catalog.
Respond with ONLY a JSON object, no markdown fences, matching exactly:
{"pageType":"product"|"content","summary":"<=300 chars","productName":string|null,"productId":string|null,"category":string|null,"price":number|null,"currency":string|null,"isAvailable":boolean|null}
Use "product" only when the page describes a single purchasable item with a price or SKU. Otherwise use "content".`

// Service wraps an Extractor with the prompt and output contract this
// service needs.
type Service struct {
	extractor Extractor
}

func NewService(extractor Extractor) *Service {
	return &Service{extractor: extractor}
}

// Extract classifies one page's text, truncated to a safe prompt length. A
// classification failure is not fatal to the caller: the page is still
// eligible for knowledge-base indexing, just not catalog routing, so this
// returns (nil, nil) rather than an error.
func (s *Service) Extract(ctx context.Context, url, text string) (*Metadata, error) {
	const maxChars = 6000
	if len(text) > maxChars {
		text = text[:maxChars]
	}

	userPrompt := fmt.Sprintf("URL: %s\n\nPage text:\n%s", url, text)

	var m Metadata
	if err := s.extractor.ExtractJSON(ctx, systemPrompt, userPrompt, &m); err != nil {
		slog.Warn("catalog.Extract: classification failed, skipping catalog routing", "url", url, "error", err)
		return nil, nil
	}
	if m.PageType != "product" && m.PageType != "content" {
		m.PageType = "content"
	}
	return &m, nil
}
