package gcpclient

import "time"

// SignedURLOptions parameterizes a Cloud Storage signed URL.
type SignedURLOptions struct {
	Method      string
	Expires     time.Time
	ContentType string
}

// DocumentAIResponse is the normalized result of a Document AI OCR pass.
type DocumentAIResponse struct {
	Text     string
	Pages    int
	Entities []Entity
}

// Entity is a single Document AI extracted entity.
type Entity struct {
	Type       string
	Content    string
	Confidence float64
}

// ParseResult is the normalized result of a plain-text file extraction.
type ParseResult struct {
	Text  string
	Pages int
}
