package fetch

import (
	"context"
	"fmt"
	"strings"

	"github.com/atlas-ai/knowledge-core/internal/gcpclient"
)

// DocumentExtractor drives the async Document AI OCR pipeline for PDFs and
// other scanned/complex documents.
type DocumentExtractor interface {
	ProcessDocument(ctx context.Context, processor, gcsURI, mimeType string) (*gcpclient.DocumentAIResponse, error)
}

// PlainTextExtractor handles files whose bytes are already text (.txt, .md, .csv).
type PlainTextExtractor interface {
	Extract(ctx context.Context, gcsURI string) (*gcpclient.ParseResult, error)
}

// FileExtractor dispatches a knowledge-source file to the right backend by
// extension, mirroring the file-path description in the ingestion contract:
// PDFs go through Document AI's async OCR; everything else is read as text.
type FileExtractor struct {
	docAI     DocumentExtractor
	plainText PlainTextExtractor
	processor string
}

func NewFileExtractor(docAI DocumentExtractor, plainText PlainTextExtractor, processor string) *FileExtractor {
	return &FileExtractor{docAI: docAI, plainText: plainText, processor: processor}
}

// Extract returns the plain-text content of a GCS object, picking the
// extraction path by the file's extension.
func (f *FileExtractor) Extract(ctx context.Context, gcsURI, fileName string) (string, error) {
	ext := ""
	if idx := strings.LastIndex(fileName, "."); idx >= 0 {
		ext = strings.ToLower(fileName[idx+1:])
	}

	switch ext {
	case "pdf":
		resp, err := f.docAI.ProcessDocument(ctx, f.processor, gcsURI, "application/pdf")
		if err != nil {
			return "", fmt.Errorf("fetch.FileExtractor.Extract: document ai: %w", err)
		}
		return resp.Text, nil
	default:
		resp, err := f.plainText.Extract(ctx, gcsURI)
		if err != nil {
			return "", fmt.Errorf("fetch.FileExtractor.Extract: plain text: %w", err)
		}
		return resp.Text, nil
	}
}
