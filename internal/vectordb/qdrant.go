// Package vectordb wraps the Qdrant client used for both the knowledge-base
// collection (per-chunk points) and the web-catalog collection (per-URL
// summary points).
package vectordb

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"
)

const (
	CollectionKnowledgeBase = "agent_knowledge_base"
	CollectionWebCatalog    = "agent_web_catalog"
)

// Client wraps the Qdrant gRPC client with the two fixed collections this
// service uses.
type Client struct {
	conn       *qdrant.Client
	collection map[string]uint64 // name -> vector size, once ensured
}

// Config parameterizes a Qdrant connection.
type Config struct {
	Host   string
	Port   int
	APIKey string
	UseTLS bool
}

// New dials Qdrant and returns a Client. It does not create collections —
// call EnsureCollections for that.
func New(cfg Config) (*Client, error) {
	qc, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("vectordb.New: %w", err)
	}
	return &Client{conn: qc, collection: map[string]uint64{}}, nil
}

// EnsureCollections creates both collections (if absent) with the given
// vector size, and payload indexes on the fields every search filters by.
func (c *Client) EnsureCollections(ctx context.Context, vectorSize uint64) error {
	for _, name := range []string{CollectionKnowledgeBase, CollectionWebCatalog} {
		if err := c.ensureCollection(ctx, name, vectorSize); err != nil {
			return fmt.Errorf("vectordb.EnsureCollections: %s: %w", name, err)
		}
	}
	return nil
}

func (c *Client) ensureCollection(ctx context.Context, name string, vectorSize uint64) error {
	exists, err := c.conn.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("collection exists check: %w", err)
	}
	if !exists {
		err = c.conn.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: name,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     vectorSize,
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return fmt.Errorf("create collection: %w", err)
		}
	}

	for _, field := range []string{"agent_id", "knowledge_source", "knowledge_type"} {
		_, err := c.conn.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: name,
			FieldName:      field,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
		})
		if err != nil {
			// Index-already-exists is not fatal; every other error is.
			if !isAlreadyExists(err) {
				return fmt.Errorf("create field index %s: %w", field, err)
			}
		}
	}
	return nil
}

func isAlreadyExists(err error) bool {
	msg := err.Error()
	return contains(msg, "already exists")
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}

// Point is a generic vector-store point: an id, a vector, and an arbitrary
// JSON-ish payload.
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]any
}

// Upsert writes points to a collection, replacing any existing point with
// the same id.
func (c *Client) Upsert(ctx context.Context, collection string, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	qpoints := make([]*qdrant.PointStruct, 0, len(points))
	for _, p := range points {
		qpoints = append(qpoints, &qdrant.PointStruct{
			Id:      qdrant.NewID(p.ID),
			Vectors: qdrant.NewVectors(p.Vector...),
			Payload: qdrant.NewValueMap(p.Payload),
		})
	}
	_, err := c.conn.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Points:         qpoints,
	})
	if err != nil {
		return fmt.Errorf("vectordb.Upsert: %w", err)
	}
	return nil
}

// Filter is a flat AND of keyword-match conditions, matching the
// {filter:{must:[{key,match:{value}}]}} wire shape this service's search
// contract exposes.
type Filter map[string]string

// FilterIn is an additional AND'd condition matching any one of a field's
// values (Qdrant's MatchKeywords), for filters like
// knowledge_source IN (catalog_sources...).
type FilterIn map[string][]string

func (f Filter) toQdrant() *qdrant.Filter {
	return mergeFilters(f, nil)
}

// WithIn returns a combined filter carrying both f's equality conditions
// and an additional "field is one of values" condition.
func (f Filter) WithIn(field string, values []string) inFilter {
	return inFilter{eq: f, in: FilterIn{field: values}}
}

type inFilter struct {
	eq Filter
	in FilterIn
}

func (f inFilter) toQdrant() *qdrant.Filter {
	return mergeFilters(f.eq, f.in)
}

func mergeFilters(eq Filter, in FilterIn) *qdrant.Filter {
	if len(eq) == 0 && len(in) == 0 {
		return nil
	}
	conds := make([]*qdrant.Condition, 0, len(eq)+len(in))
	for k, v := range eq {
		conds = append(conds, qdrant.NewMatch(k, v))
	}
	for k, vs := range in {
		if len(vs) == 0 {
			continue
		}
		conds = append(conds, qdrant.NewMatchKeywords(k, vs...))
	}
	if len(conds) == 0 {
		return nil
	}
	return &qdrant.Filter{Must: conds}
}

// QueryFilter is anything that lowers to a Qdrant filter; Filter and the
// value returned by Filter.WithIn both satisfy it.
type QueryFilter interface {
	toQdrant() *qdrant.Filter
}

// Search runs a kNN vector search under an optional filter, returning the
// top `limit` points with payload attached.
func (c *Client) Search(ctx context.Context, collection string, vector []float32, filter QueryFilter, limit uint64) ([]ScoredPoint, error) {
	resp, err := c.conn.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(vector...),
		Filter:         filter.toQdrant(),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("vectordb.Search: %w", err)
	}

	out := make([]ScoredPoint, 0, len(resp))
	for _, pt := range resp {
		out = append(out, ScoredPoint{
			ID:      idToString(pt.Id),
			Score:   pt.Score,
			Payload: payloadToMap(pt.Payload),
		})
	}
	return out, nil
}

// Delete removes every point matching filter from a collection.
func (c *Client) Delete(ctx context.Context, collection string, filter Filter) error {
	qf := filter.toQdrant()
	if qf == nil {
		return fmt.Errorf("vectordb.Delete: refusing to delete with an empty filter")
	}
	_, err := c.conn.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collection,
		Points:         qdrant.NewPointsSelectorFilter(qf),
	})
	if err != nil {
		return fmt.Errorf("vectordb.Delete: %w", err)
	}
	return nil
}

// ScoredPoint is a search result: id, similarity score, and payload.
type ScoredPoint struct {
	ID      string
	Score   float32
	Payload map[string]any
}

func idToString(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	switch v := id.PointIdOptions.(type) {
	case *qdrant.PointId_Uuid:
		return v.Uuid
	case *qdrant.PointId_Num:
		return fmt.Sprintf("%d", v.Num)
	default:
		return ""
	}
}

func payloadToMap(payload map[string]*qdrant.Value) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		out[k] = valueToAny(v)
	}
	return out
}

func valueToAny(v *qdrant.Value) any {
	if v == nil {
		return nil
	}
	switch kind := v.Kind.(type) {
	case *qdrant.Value_StringValue:
		return kind.StringValue
	case *qdrant.Value_IntegerValue:
		return kind.IntegerValue
	case *qdrant.Value_DoubleValue:
		return kind.DoubleValue
	case *qdrant.Value_BoolValue:
		return kind.BoolValue
	default:
		return nil
	}
}

// Close releases the underlying gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
