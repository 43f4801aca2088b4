// Package index drives the batched delete-then-upsert ingestion protocol:
// given a knowledge source's raw text, chunk it, embed the chunks, and
// atomically replace whatever points previously existed for that source.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/atlas-ai/knowledge-core/internal/catalog"
	"github.com/atlas-ai/knowledge-core/internal/chunk"
	"github.com/atlas-ai/knowledge-core/internal/llm"
	"github.com/atlas-ai/knowledge-core/internal/model"
	"github.com/atlas-ai/knowledge-core/internal/vectordb"
)

// VectorStore is the subset of vectordb.Client the indexer needs.
type VectorStore interface {
	Upsert(ctx context.Context, collection string, points []vectordb.Point) error
	Delete(ctx context.Context, collection string, filter vectordb.Filter) error
}

// Embedder is the subset of llm.EmbeddingService the indexer needs.
type Embedder interface {
	EmbedChunks(ctx context.Context, texts []string) ([][]float32, error)
}

// CatalogExtractor is the subset of catalog.Service the indexer needs.
type CatalogExtractor interface {
	Extract(ctx context.Context, url, text string) (*catalog.Metadata, error)
}

// Indexer owns the per-agent re-indexing protocol across both vector
// collections.
type Indexer struct {
	vdb     VectorStore
	embed   Embedder
	catalog CatalogExtractor
	chunkSz int
	overlap int

	mu       sync.Mutex
	inFlight map[string]struct{}
}

func New(vdb VectorStore, embed Embedder, cat CatalogExtractor, chunkSize, overlap int) *Indexer {
	if chunkSize <= 0 {
		chunkSize = chunk.DefaultSize
	}
	if overlap <= 0 {
		overlap = chunk.DefaultOverlap
	}
	return &Indexer{
		vdb:      vdb,
		embed:    embed,
		catalog:  cat,
		chunkSz:  chunkSize,
		overlap:  overlap,
		inFlight: make(map[string]struct{}),
	}
}

func lockKey(agentID string, kt model.KnowledgeType, source string) string {
	return fmt.Sprintf("%s|%s|%s", agentID, kt, source)
}

// acquire prevents two concurrent re-indexes of the same source from
// interleaving their delete-then-upsert passes; it returns false if another
// re-index is already running, in which case the caller should skip.
func (ix *Indexer) acquire(key string) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if _, busy := ix.inFlight[key]; busy {
		return false
	}
	ix.inFlight[key] = struct{}{}
	return true
}

func (ix *Indexer) release(key string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	delete(ix.inFlight, key)
}

// IndexURL chunks and embeds a fetched page's text into the knowledge-base
// collection, and classifies+embeds its summary into the catalog
// collection. URL sources use random point ids and a filter-delete pass
// first, since the chunk count changes across re-crawls.
func (ix *Indexer) IndexURL(ctx context.Context, agentID, normalizedURL, text string) error {
	key := lockKey(agentID, model.KnowledgeTypeURL, normalizedURL)
	if !ix.acquire(key) {
		return fmt.Errorf("index.IndexURL: re-index already in progress for %s", normalizedURL)
	}
	defer ix.release(key)

	chunks := chunk.Text(text, ix.chunkSz, ix.overlap)
	var vectors [][]float32
	if len(chunks) > 0 {
		var err error
		if vectors, err = ix.embed.EmbedChunks(ctx, chunks); err != nil {
			return fmt.Errorf("index.IndexURL: embed: %w", err)
		}
	}

	if err := ix.vdb.Delete(ctx, vectordb.CollectionKnowledgeBase, vectordb.Filter{
		"agent_id": agentID, "knowledge_source": normalizedURL,
	}); err != nil {
		return fmt.Errorf("index.IndexURL: clear kb: %w", err)
	}

	if len(chunks) > 0 {
		now := time.Now().UTC()
		points := make([]vectordb.Point, len(chunks))
		for i, c := range chunks {
			points[i] = vectordb.Point{
				ID:     randomID(),
				Vector: vectors[i],
				Payload: map[string]any{
					"agent_id":         agentID,
					"knowledge_source": normalizedURL,
					"knowledge_type":   string(model.KnowledgeTypeURL),
					"text_index":       i,
					"text_content":     c,
					"created_at":       now.Format(time.RFC3339),
				},
			}
		}
		if err := ix.vdb.Upsert(ctx, vectordb.CollectionKnowledgeBase, points); err != nil {
			return fmt.Errorf("index.IndexURL: upsert kb: %w", err)
		}
	}

	if ix.catalog != nil {
		// Catalog routing is best-effort: the URL's KB chunks are already
		// committed above, so a catalog failure here must not mark the whole
		// source failed. Log and move on.
		if err := ix.indexCatalogEntry(ctx, agentID, normalizedURL, text); err != nil {
			slog.Warn("index.IndexURL: catalog indexing failed, knowledge-base chunks still committed", "agent_id", agentID, "url", normalizedURL, "error", err)
		}
	}

	return nil
}

func (ix *Indexer) indexCatalogEntry(ctx context.Context, agentID, normalizedURL, text string) error {
	meta, err := ix.catalog.Extract(ctx, normalizedURL, text)
	if err != nil {
		return fmt.Errorf("extract metadata: %w", err)
	}
	if meta == nil {
		// Classification declined to produce metadata; the page stays
		// knowledge-base only.
		return nil
	}

	vecs, err := ix.embed.EmbedChunks(ctx, []string{meta.Summary})
	if err != nil {
		return fmt.Errorf("embed summary: %w", err)
	}

	payload := map[string]any{
		"agent_id":         agentID,
		"knowledge_source":  normalizedURL,
		"url":               normalizedURL,
		"page_type":         meta.PageType,
		"summary":           meta.Summary,
	}
	if meta.ProductName != nil {
		payload["product_name"] = *meta.ProductName
	}
	if meta.ProductID != nil {
		payload["product_id"] = *meta.ProductID
	}
	if meta.Category != nil {
		payload["category"] = *meta.Category
	}
	if meta.Price != nil {
		payload["price"] = *meta.Price
	}
	if meta.Currency != nil {
		payload["currency"] = *meta.Currency
	}
	if meta.IsAvailable != nil {
		payload["is_available"] = *meta.IsAvailable
	}

	// Belt-and-braces filter-delete before upsert: the point id is already
	// deterministic on (agent_id, catalog, url), but this keeps re-indexing
	// idempotent even if the payload schema changes underneath it.
	if err := ix.vdb.Delete(ctx, vectordb.CollectionWebCatalog, vectordb.Filter{
		"agent_id": agentID, "url": normalizedURL,
	}); err != nil {
		return fmt.Errorf("clear catalog entry: %w", err)
	}

	point := vectordb.Point{
		ID:      deterministicID(agentID, "catalog", normalizedURL),
		Vector:  vecs[0],
		Payload: payload,
	}
	return ix.vdb.Upsert(ctx, vectordb.CollectionWebCatalog, []vectordb.Point{point})
}

// IndexFile chunks and embeds extracted file text into the knowledge-base
// collection only. Files use deterministic chunk ids; every existing point
// of the file is filter-deleted before the upsert, so no stale trailing
// chunks remain when the content shrinks.
func (ix *Indexer) IndexFile(ctx context.Context, agentID, fileName, text string) error {
	return ix.indexPlainKB(ctx, agentID, model.KnowledgeTypeFile, fileName, text)
}

// IndexCustomText chunks and embeds author-supplied text into the
// knowledge-base collection.
func (ix *Indexer) IndexCustomText(ctx context.Context, agentID, alias, text string) error {
	return ix.indexPlainKB(ctx, agentID, model.KnowledgeTypeCustomText, alias, text)
}

// IndexQAPair embeds a single question+answer pair as one knowledge-base
// point; Q&A pairs are short enough to never need chunking.
func (ix *Indexer) IndexQAPair(ctx context.Context, agentID, alias, question, answer string) error {
	key := lockKey(agentID, model.KnowledgeTypeCustomQA, alias)
	if !ix.acquire(key) {
		return fmt.Errorf("index.IndexQAPair: re-index already in progress for %s", alias)
	}
	defer ix.release(key)

	text := fmt.Sprintf("Q: %s\nA: %s", question, answer)
	vecs, err := ix.embed.EmbedChunks(ctx, []string{text})
	if err != nil {
		return fmt.Errorf("index.IndexQAPair: embed: %w", err)
	}

	point := vectordb.Point{
		ID:     deterministicID(agentID, string(model.KnowledgeTypeCustomQA), alias),
		Vector: vecs[0],
		Payload: map[string]any{
			"agent_id":         agentID,
			"knowledge_source": alias,
			"knowledge_type":   string(model.KnowledgeTypeCustomQA),
			"text_index":       0,
			"text_content":     text,
			"created_at":       time.Now().UTC().Format(time.RFC3339),
		},
	}
	return ix.vdb.Upsert(ctx, vectordb.CollectionKnowledgeBase, []vectordb.Point{point})
}

func (ix *Indexer) indexPlainKB(ctx context.Context, agentID string, kt model.KnowledgeType, source, text string) error {
	key := lockKey(agentID, kt, source)
	if !ix.acquire(key) {
		return fmt.Errorf("index.indexPlainKB: re-index already in progress for %s", source)
	}
	defer ix.release(key)

	chunks := chunk.Text(text, ix.chunkSz, ix.overlap)
	var vectors [][]float32
	if len(chunks) > 0 {
		var err error
		if vectors, err = ix.embed.EmbedChunks(ctx, chunks); err != nil {
			return fmt.Errorf("index.indexPlainKB: embed: %w", err)
		}
	}

	if err := ix.vdb.Delete(ctx, vectordb.CollectionKnowledgeBase, vectordb.Filter{
		"agent_id": agentID, "knowledge_source": source, "knowledge_type": string(kt),
	}); err != nil {
		return fmt.Errorf("index.indexPlainKB: clear: %w", err)
	}
	if len(chunks) == 0 {
		return nil
	}

	now := time.Now().UTC()
	points := make([]vectordb.Point, len(chunks))
	for i, c := range chunks {
		points[i] = vectordb.Point{
			ID:     deterministicID(agentID, string(kt), source, fmt.Sprintf("%d", i)),
			Vector: vectors[i],
			Payload: map[string]any{
				"agent_id":         agentID,
				"knowledge_source": source,
				"knowledge_type":   string(kt),
				"text_index":       i,
				"text_content":     c,
				"created_at":       now.Format(time.RFC3339),
			},
		}
	}
	return ix.vdb.Upsert(ctx, vectordb.CollectionKnowledgeBase, points)
}

// DeleteSource removes every point belonging to a source from both
// collections. Safe to call even if the source was never indexed.
func (ix *Indexer) DeleteSource(ctx context.Context, agentID string, kt model.KnowledgeType, source string) error {
	if err := ix.vdb.Delete(ctx, vectordb.CollectionKnowledgeBase, vectordb.Filter{
		"agent_id": agentID, "knowledge_source": source,
	}); err != nil {
		return fmt.Errorf("index.DeleteSource: kb: %w", err)
	}
	if kt == model.KnowledgeTypeURL {
		if err := ix.vdb.Delete(ctx, vectordb.CollectionWebCatalog, vectordb.Filter{
			"agent_id": agentID, "knowledge_source": source,
		}); err != nil {
			return fmt.Errorf("index.DeleteSource: catalog: %w", err)
		}
	}
	return nil
}
