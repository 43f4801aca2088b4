package fetch

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
)

// Page is the rendered result of fetching a URL: its final HTML and title.
type Page struct {
	HTML  string
	Title string
}

// BrowserFetcher fetches URLs with a headless Chromium instance, waiting for
// the body to be ready plus a short fixed settle delay before the DOM is
// captured. Each call gets its own tab off a shared browser allocator.
type BrowserFetcher struct {
	allocCtx context.Context
	cancel   context.CancelFunc
	timeout  time.Duration
}

// NewBrowserFetcher starts the shared headless Chromium allocator.
func NewBrowserFetcher(timeout time.Duration) (*BrowserFetcher, error) {
	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(),
		append(chromedp.DefaultExecAllocatorOptions[:], chromedp.Flag("headless", true))...)
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &BrowserFetcher{allocCtx: allocCtx, cancel: cancel, timeout: timeout}, nil
}

// Fetch navigates to url and returns the rendered HTML and title. It waits
// for the body element to be ready and then a fixed 500ms; it does not
// observe network activity, so requests still pending after that window
// are not reflected in the captured HTML.
func (f *BrowserFetcher) Fetch(ctx context.Context, targetURL string) (*Page, error) {
	tabCtx, cancel := chromedp.NewContext(f.allocCtx)
	defer cancel()

	tabCtx, timeoutCancel := context.WithTimeout(tabCtx, f.timeout)
	defer timeoutCancel()

	var html, title string
	err := chromedp.Run(tabCtx,
		chromedp.Navigate(targetURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(500*time.Millisecond), // settle window for late XHRs, approximating networkidle
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
		chromedp.Title(&title),
	)
	if err != nil {
		return nil, fmt.Errorf("fetch.BrowserFetcher.Fetch %q: %w", targetURL, err)
	}

	return &Page{HTML: html, Title: title}, nil
}

// Close releases the shared browser allocator.
func (f *BrowserFetcher) Close() {
	f.cancel()
}
