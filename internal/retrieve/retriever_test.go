package retrieve

import (
	"context"
	"strings"
	"testing"

	"github.com/atlas-ai/knowledge-core/internal/vectordb"
)

type fakeSearcher struct {
	catalog []vectordb.ScoredPoint
	direct  []vectordb.ScoredPoint
	biased  []vectordb.ScoredPoint
}

func (f *fakeSearcher) Search(ctx context.Context, collection string, vector []float32, filter vectordb.QueryFilter, limit uint64) ([]vectordb.ScoredPoint, error) {
	if collection == vectordb.CollectionWebCatalog {
		return f.catalog, nil
	}
	// The source-biased search is the only caller whose filter isn't a bare
	// vectordb.Filter (it comes from Filter.WithIn, an unexported type).
	if _, plain := filter.(vectordb.Filter); !plain {
		return f.biased, nil
	}
	return f.direct, nil
}

type fakeQueryEmbedder struct{}

func (fakeQueryEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 2, 3}, nil
}

func catalogPoint(id string, score float32, source, summary, productName string, price float64) vectordb.ScoredPoint {
	return vectordb.ScoredPoint{
		ID:    id,
		Score: score,
		Payload: map[string]any{
			"knowledge_source": source,
			"page_type":        "product",
			"summary":          summary,
			"product_name":     productName,
			"price":            price,
		},
	}
}

func kbPointPayload(id string, score float32, source string, textIndex int, text string) vectordb.ScoredPoint {
	return vectordb.ScoredPoint{
		ID:    id,
		Score: score,
		Payload: map[string]any{
			"knowledge_source": source,
			"knowledge_type":   "url",
			"text_index":       textIndex,
			"text_content":     text,
		},
	}
}

func TestRetriever_Retrieve_NoDuplicateSources(t *testing.T) {
	searcher := &fakeSearcher{
		catalog: []vectordb.ScoredPoint{catalogPoint("cat1", 0.9, "https://shop/widget", "A widget.", "Widget", 9.99)},
		direct: []vectordb.ScoredPoint{
			kbPointPayload("d1", 0.5, "https://shop/widget", 0, "widget chunk 0"),
			kbPointPayload("d2", 0.6, "https://other.com", 0, "other chunk"),
		},
		biased: []vectordb.ScoredPoint{
			kbPointPayload("b1", 0.8, "https://shop/widget", 1, "widget chunk 1"),
		},
	}

	r := New(searcher, fakeQueryEmbedder{})
	results, err := r.Retrieve(context.Background(), "agent1", "how much is the widget?", 10)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}

	seen := make(map[string]bool)
	for _, res := range results {
		if seen[res.KnowledgeSource] {
			t.Errorf("duplicate knowledge_source %q in results", res.KnowledgeSource)
		}
		seen[res.KnowledgeSource] = true
	}
}

func TestRetriever_Retrieve_ScoresMonotoneNonIncreasing(t *testing.T) {
	searcher := &fakeSearcher{
		direct: []vectordb.ScoredPoint{
			kbPointPayload("d1", 0.3, "https://a", 0, "a"),
			kbPointPayload("d2", 0.9, "https://b", 0, "b"),
			kbPointPayload("d3", 0.6, "https://c", 0, "c"),
		},
	}

	r := New(searcher, fakeQueryEmbedder{})
	results, err := r.Retrieve(context.Background(), "agent1", "query", 10)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	for i := 1; i < len(results); i++ {
		if results[i].Score > results[i-1].Score {
			t.Errorf("scores not monotone non-increasing at index %d: %v then %v", i, results[i-1].Score, results[i].Score)
		}
	}
}

func TestRetriever_Retrieve_CatalogOnlySourceHasNilTextContent(t *testing.T) {
	searcher := &fakeSearcher{
		catalog: []vectordb.ScoredPoint{catalogPoint("cat1", 0.9, "https://shop/widget", "A widget.", "Widget", 9.99)},
	}

	r := New(searcher, fakeQueryEmbedder{})
	results, err := r.Retrieve(context.Background(), "agent1", "widget", 10)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if results[0].Summary == "" {
		t.Error("catalog-only card should have a non-empty summary")
	}
	if results[0].TextContent != "" {
		t.Errorf("catalog-only card should have no text_content, got %q", results[0].TextContent)
	}
}

func TestRetriever_Retrieve_KBOnlySourceHasNoCatalogFields(t *testing.T) {
	searcher := &fakeSearcher{
		direct: []vectordb.ScoredPoint{kbPointPayload("d1", 0.7, "https://plain.com/page", 0, "plain content")},
	}

	r := New(searcher, fakeQueryEmbedder{})
	results, err := r.Retrieve(context.Background(), "agent1", "query", 10)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if results[0].Summary != "" {
		t.Errorf("KB-only card should have no summary, got %q", results[0].Summary)
	}
	if results[0].TextContent == "" {
		t.Error("KB-only card should have non-empty text_content")
	}
}

func TestRetriever_Retrieve_ProductFieldsReachTheCard(t *testing.T) {
	searcher := &fakeSearcher{
		catalog: []vectordb.ScoredPoint{catalogPoint("cat1", 0.95, "https://shop/widget", "A great widget.", "Widget", 9.99)},
		direct:  []vectordb.ScoredPoint{kbPointPayload("d1", 0.5, "https://shop/widget", 0, "The widget costs $9.99.")},
	}

	r := New(searcher, fakeQueryEmbedder{})
	results, err := r.Retrieve(context.Background(), "agent1", "how much is the widget?", 10)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	top := results[0]
	if top.ProductName == nil || *top.ProductName != "Widget" {
		t.Errorf("ProductName = %v, want Widget", top.ProductName)
	}
	if top.Price == nil || *top.Price != 9.99 {
		t.Errorf("Price = %v, want 9.99", top.Price)
	}
	if !strings.Contains(top.TextContent, "[Chunk 0]") {
		t.Errorf("text content should carry the chunk-index marker, got %q", top.TextContent)
	}
}

func TestGroupKBHits_ConcatenatesInTextIndexOrder(t *testing.T) {
	chunks := []kbChunk{
		{source: "s", textIndex: 1, score: 0.5, text: "second"},
		{source: "s", textIndex: 0, score: 0.9, text: "first"},
	}
	groups := groupKBHits(chunks)
	g, ok := groups["s"]
	if !ok {
		t.Fatal("expected a group for source s")
	}
	if g.score != 0.9 {
		t.Errorf("group score = %v, want max 0.9", g.score)
	}
	want := "[Chunk 0]\nfirst\n\n[Chunk 1]\nsecond"
	if g.text != want {
		t.Errorf("group text = %q, want %q", g.text, want)
	}
}

func TestDedupeKBHits_KeepsHigherScoreOnCollision(t *testing.T) {
	hits := []vectordb.ScoredPoint{
		kbPointPayload("a", 0.3, "https://x", 0, "low"),
		kbPointPayload("b", 0.8, "https://x", 0, "high"),
	}
	chunks := dedupeKBHits(hits)
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1 after dedup", len(chunks))
	}
	if chunks[0].score != 0.8 || chunks[0].text != "high" {
		t.Errorf("dedup kept the wrong chunk: %+v", chunks[0])
	}
}
