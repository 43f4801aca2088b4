package fetch

import (
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var dropTags = map[string]bool{
	"script": true, "style": true, "meta": true, "link": true, "noscript": true, "head": true,
}

// ExtractText walks the parsed DOM, concatenating visible text with spaces
// and appending " [absolute-href]" after the text of every anchor, so the
// link target survives into the flattened text a chunker later splits.
func ExtractText(rawHTML, baseURL string) (string, error) {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return "", err
	}

	base, _ := url.Parse(baseURL)

	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && dropTags[n.Data] {
			return
		}
		if n.Type == html.TextNode {
			t := strings.TrimSpace(n.Data)
			if t != "" {
				b.WriteString(t)
				b.WriteString(" ")
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && n.Data == "a" {
			if href := attr(n, "href"); href != "" {
				if resolved := resolve(base, href); resolved != "" {
					b.WriteString("[")
					b.WriteString(resolved)
					b.WriteString("] ")
				}
			}
		}
	}
	walk(doc)

	return collapseWhitespace(b.String()), nil
}

var whitespaceRun = regexp.MustCompile(`\s+`)

func collapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
}

// ExtractHrefs collects every absolute href from a, link, and area tags,
// resolved against baseURL, deduplicated in first-seen order.
func ExtractHrefs(rawHTML, baseURL string) ([]string, error) {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return nil, err
	}
	base, _ := url.Parse(baseURL)

	var hrefs []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "a" || n.Data == "link" || n.Data == "area") {
			if href := attr(n, "href"); href != "" {
				if resolved := resolve(base, href); resolved != "" {
					hrefs = append(hrefs, resolved)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return Dedup(hrefs), nil
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

func resolve(base *url.URL, href string) string {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	if base == nil {
		if ref.IsAbs() {
			return ref.String()
		}
		return ""
	}
	return base.ResolveReference(ref).String()
}
