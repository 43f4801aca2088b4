package llm

import (
	"context"
	"fmt"
)

// Embedder produces vectors for document chunks (asymmetric
// RETRIEVAL_DOCUMENT task type) and for queries (RETRIEVAL_QUERY).
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbeddingService is the facade the indexer and retriever depend on. It
// wraps an Embedder and batches large inputs to stay under Vertex AI's
// per-request instance cap.
type EmbeddingService struct {
	adapter   Embedder
	batchSize int
}

func NewEmbeddingService(adapter Embedder) *EmbeddingService {
	return &EmbeddingService{adapter: adapter, batchSize: 64}
}

// EmbedChunks embeds document chunks in batches, preserving input order.
func (s *EmbeddingService) EmbedChunks(ctx context.Context, texts []string) ([][]float32, error) {
	return s.embedInBatches(ctx, texts, s.adapter.EmbedTexts)
}

// EmbedQuery embeds a single search query.
func (s *EmbeddingService) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := s.adapter.Embed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("llm.EmbedQuery: %w", err)
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("llm.EmbedQuery: empty response")
	}
	return vecs[0], nil
}

func (s *EmbeddingService) embedInBatches(ctx context.Context, texts []string, embed func(context.Context, []string) ([][]float32, error)) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += s.batchSize {
		end := start + s.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		vecs, err := embed(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("llm.embedInBatches: batch %d-%d: %w", start, end, err)
		}
		out = append(out, vecs...)
	}
	return out, nil
}
