package fetch

import (
	"context"
	"sync"
)

// URLResult is the outcome of fetching a single URL: either text+links, or
// an error that does not abort the rest of the batch.
type URLResult struct {
	URL   string
	Text  string
	Links []string
	Err   error
}

// FetchBatch fetches each URL concurrently, capped at concurrency in-flight
// requests at a time, and returns one result per input URL in input order.
// A single URL's failure never aborts the others.
func FetchBatch(ctx context.Context, browser *BrowserFetcher, urls []string, concurrency int) []URLResult {
	if concurrency <= 0 {
		concurrency = 5
	}

	results := make([]URLResult, len(urls))
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for i, u := range urls {
		wg.Add(1)
		go func(i int, rawURL string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			results[i] = fetchOne(ctx, browser, rawURL)
		}(i, u)
	}
	wg.Wait()

	return results
}

func fetchOne(ctx context.Context, browser *BrowserFetcher, rawURL string) URLResult {
	normalized, err := NormalizeURL(rawURL)
	if err != nil {
		return URLResult{URL: rawURL, Err: err}
	}

	page, err := browser.Fetch(ctx, normalized)
	if err != nil {
		return URLResult{URL: normalized, Err: err}
	}

	text, err := ExtractText(page.HTML, normalized)
	if err != nil {
		return URLResult{URL: normalized, Err: err}
	}
	hrefs, err := ExtractHrefs(page.HTML, normalized)
	if err != nil {
		return URLResult{URL: normalized, Err: err}
	}

	links := append([]string{normalized}, hrefs...)
	return URLResult{URL: normalized, Text: text, Links: Dedup(links)}
}
