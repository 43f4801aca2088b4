// Package fetch retrieves raw content for a knowledge source: rendered HTML
// for URLs (via a headless browser, since most target sites are
// JS-rendered), and downloaded bytes for files.
package fetch

import (
	"fmt"
	"net/url"
	"strings"
)

// NormalizeURL lowercases the host, strips a leading "www.", defaults to
// https when no scheme is given, forces a non-empty path, and drops any
// fragment. It rejects schemes other than http/https.
func NormalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("fetch.NormalizeURL: empty URL")
	}

	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("fetch.NormalizeURL: parse %q: %w", raw, err)
	}

	switch u.Scheme {
	case "http", "https":
	default:
		return "", fmt.Errorf("fetch.NormalizeURL: unsupported scheme %q", u.Scheme)
	}

	host := strings.ToLower(u.Host)
	host = strings.TrimPrefix(host, "www.")
	u.Host = host
	u.Fragment = ""
	if u.Path == "" {
		u.Path = "/"
	}

	return u.String(), nil
}

// Filters drops non-http(s) schemes and a denylist of domains the agent
// should never crawl (ad networks, auth/login endpoints, etc).
type Filters struct {
	DeniedDomains []string
}

// Filter removes URLs that are empty, invalid, or match a denied domain.
func (f Filters) Filter(urls []string) []string {
	out := make([]string, 0, len(urls))
	for _, raw := range urls {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil {
			continue
		}
		if u.Scheme != "" && u.Scheme != "http" && u.Scheme != "https" {
			continue
		}
		denied := false
		for _, d := range f.DeniedDomains {
			if strings.Contains(strings.ToLower(u.Host), strings.ToLower(d)) {
				denied = true
				break
			}
		}
		if denied {
			continue
		}
		out = append(out, raw)
	}
	return out
}

// Dedup preserves first-seen order while removing duplicate URLs.
func Dedup(urls []string) []string {
	seen := make(map[string]struct{}, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}
