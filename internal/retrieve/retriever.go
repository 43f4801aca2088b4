// Package retrieve implements the query-time retrieval engine: it fuses a
// catalog-biased search (find relevant pages first, then search their
// chunks) with a direct knowledge-base search, then dedups, groups, and
// ranks the result into per-source cards.
package retrieve

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/atlas-ai/knowledge-core/internal/vectordb"
)

const (
	catalogTopK      = 10
	sourceBiasedTopK = 15
	directTopK       = 15
)

// Searcher is the subset of vectordb.Client the retriever needs.
type Searcher interface {
	Search(ctx context.Context, collection string, vector []float32, filter vectordb.QueryFilter, limit uint64) ([]vectordb.ScoredPoint, error)
}

// QueryEmbedder embeds a single search query.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Retriever fuses catalog-biased and direct knowledge-base search.
type Retriever struct {
	vdb   Searcher
	embed QueryEmbedder
}

func New(vdb Searcher, embed QueryEmbedder) *Retriever {
	return &Retriever{vdb: vdb, embed: embed}
}

// Result is a single source card, ready to format into a prompt. Fields
// with a zero value mean that side (catalog or knowledge-base) contributed
// nothing for this source: a catalog-only card has Summary set and
// TextContent empty, and vice versa.
type Result struct {
	KnowledgeSource string
	KnowledgeType   string
	Score           float32

	PageType    string
	Summary     string
	ProductName *string
	ProductID   *string
	Category    *string
	Price       *float64
	Currency    *string
	IsAvailable *bool

	TextContent string
}

// Retrieve returns the top topK source cards relevant to query for agentID.
func (r *Retriever) Retrieve(ctx context.Context, agentID, query string, topK int) ([]Result, error) {
	if topK <= 0 {
		topK = directTopK
	}

	vector, err := r.embed.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("retrieve.Retrieve: embed query: %w", err)
	}

	catalogHits, err := r.vdb.Search(ctx, vectordb.CollectionWebCatalog, vector, vectordb.Filter{"agent_id": agentID}, catalogTopK)
	if err != nil {
		return nil, fmt.Errorf("retrieve.Retrieve: catalog search: %w", err)
	}
	catalogSources := orderedSources(catalogHits)

	var biasedHits, directHits []vectordb.ScoredPoint
	g, gctx := errgroup.WithContext(ctx)
	if len(catalogSources) > 0 {
		g.Go(func() error {
			hits, err := r.vdb.Search(gctx, vectordb.CollectionKnowledgeBase, vector,
				vectordb.Filter{"agent_id": agentID}.WithIn("knowledge_source", catalogSources), sourceBiasedTopK)
			if err != nil {
				return fmt.Errorf("source-biased search: %w", err)
			}
			biasedHits = hits
			return nil
		})
	}
	g.Go(func() error {
		hits, err := r.vdb.Search(gctx, vectordb.CollectionKnowledgeBase, vector, vectordb.Filter{"agent_id": agentID}, directTopK)
		if err != nil {
			return fmt.Errorf("direct search: %w", err)
		}
		directHits = hits
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("retrieve.Retrieve: %w", err)
	}

	kbGroups := groupKBHits(dedupeKBHits(append(biasedHits, directHits...)))
	merged := mergeSourceCards(kbGroups, catalogHits)

	sort.Slice(merged, func(i, j int) bool { return merged[i].Score > merged[j].Score })
	if len(merged) > topK {
		merged = merged[:topK]
	}
	return merged, nil
}

// orderedSources returns the distinct knowledge_source values of hits, in
// the order they first appear (hits are already ranked by score).
func orderedSources(hits []vectordb.ScoredPoint) []string {
	seen := make(map[string]struct{}, len(hits))
	var out []string
	for _, h := range hits {
		src, _ := h.Payload["knowledge_source"].(string)
		if src == "" {
			continue
		}
		if _, ok := seen[src]; ok {
			continue
		}
		seen[src] = struct{}{}
		out = append(out, src)
	}
	return out
}

type kbChunk struct {
	source        string
	knowledgeType string
	textIndex     int
	score         float32
	text          string
}

// dedupeKBHits collapses the union of two KB searches by
// (knowledge_source, text_index), keeping the higher score on collision.
func dedupeKBHits(hits []vectordb.ScoredPoint) []kbChunk {
	best := make(map[string]kbChunk, len(hits))
	order := make([]string, 0, len(hits))
	for _, h := range hits {
		source, _ := h.Payload["knowledge_source"].(string)
		if source == "" {
			continue
		}
		idx, ok := textIndexOf(h.Payload)
		if !ok {
			continue
		}
		text, _ := h.Payload["text_content"].(string)
		knowledgeType, _ := h.Payload["knowledge_type"].(string)
		key := fmt.Sprintf("%s|%d", source, idx)

		c := kbChunk{source: source, knowledgeType: knowledgeType, textIndex: idx, score: h.Score, text: text}
		existing, dup := best[key]
		if !dup {
			order = append(order, key)
			best[key] = c
			continue
		}
		if c.score > existing.score {
			best[key] = c
		}
	}

	out := make([]kbChunk, 0, len(order))
	for _, key := range order {
		out = append(out, best[key])
	}
	return out
}

// textIndexOf extracts an integer text_index from a payload regardless of
// which concrete numeric type the vector store round-tripped it as.
func textIndexOf(payload map[string]any) (int, bool) {
	switch v := payload["text_index"].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

type kbGroup struct {
	score         float32
	text          string
	knowledgeType string
}

// groupKBHits groups deduplicated chunks by knowledge_source: the group
// score is the max across its chunks, and its text is the chunks
// concatenated in text_index order.
func groupKBHits(chunks []kbChunk) map[string]kbGroup {
	bySource := make(map[string][]kbChunk)
	for _, c := range chunks {
		bySource[c.source] = append(bySource[c.source], c)
	}

	groups := make(map[string]kbGroup, len(bySource))
	for source, cs := range bySource {
		sort.Slice(cs, func(i, j int) bool { return cs[i].textIndex < cs[j].textIndex })

		var maxScore float32
		parts := make([]string, 0, len(cs))
		for _, c := range cs {
			if c.score > maxScore {
				maxScore = c.score
			}
			parts = append(parts, fmt.Sprintf("[Chunk %d]\n%s", c.textIndex, c.text))
		}
		groups[source] = kbGroup{score: maxScore, text: strings.Join(parts, "\n\n"), knowledgeType: cs[0].knowledgeType}
	}
	return groups
}

// mergeSourceCards unions every knowledge_source seen in either the grouped
// KB results or the catalog hits into one card carrying whichever fields
// that source contributed.
func mergeSourceCards(kbGroups map[string]kbGroup, catalogHits []vectordb.ScoredPoint) []Result {
	cards := make(map[string]*Result)
	order := make([]string, 0, len(kbGroups)+len(catalogHits))

	ensure := func(source string) *Result {
		if r, ok := cards[source]; ok {
			return r
		}
		r := &Result{KnowledgeSource: source}
		cards[source] = r
		order = append(order, source)
		return r
	}

	for _, h := range catalogHits {
		source, _ := h.Payload["knowledge_source"].(string)
		if source == "" {
			continue
		}
		card := ensure(source)
		if h.Score > card.Score {
			card.Score = h.Score
		}
		// Catalog entries only ever exist for URL sources.
		card.KnowledgeType = "url"
		applyCatalogPayload(card, h.Payload)
	}

	for source, g := range kbGroups {
		card := ensure(source)
		if g.score > card.Score {
			card.Score = g.score
		}
		card.TextContent = g.text
		if g.knowledgeType != "" {
			card.KnowledgeType = g.knowledgeType
		}
	}

	out := make([]Result, 0, len(order))
	for _, source := range order {
		out = append(out, *cards[source])
	}
	return out
}

func applyCatalogPayload(card *Result, payload map[string]any) {
	if v, ok := payload["page_type"].(string); ok {
		card.PageType = v
	}
	if v, ok := payload["summary"].(string); ok {
		card.Summary = v
	}
	if v, ok := payload["product_name"].(string); ok {
		card.ProductName = &v
	}
	if v, ok := payload["product_id"].(string); ok {
		card.ProductID = &v
	}
	if v, ok := payload["category"].(string); ok {
		card.Category = &v
	}
	if v, ok := numericValue(payload["price"]); ok {
		card.Price = &v
	}
	if v, ok := payload["currency"].(string); ok {
		card.Currency = &v
	}
	if v, ok := payload["is_available"].(bool); ok {
		card.IsAvailable = &v
	}
}

func numericValue(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}
