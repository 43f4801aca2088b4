package httpapi

import (
	"context"

	"github.com/atlas-ai/knowledge-core/internal/fetch"
)

// BatchURLFetcher adapts fetch.FetchBatch, a free function, to the
// URLFetcher interface so it can be wired into BuildDeps.
type BatchURLFetcher struct {
	Browser *fetch.BrowserFetcher
}

func (f BatchURLFetcher) FetchBatch(ctx context.Context, urls []string, concurrency int) []fetch.URLResult {
	return fetch.FetchBatch(ctx, f.Browser, urls, concurrency)
}
