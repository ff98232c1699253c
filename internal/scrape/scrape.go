// Package scrape fetches a web page and reduces it to readable text.
package scrape

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/net/html"
)

// MaxBodyBytes caps how much of a page is read.
const MaxBodyBytes = 2 << 20

// Page is the extracted content of a website.
type Page struct {
	URL         string `json:"url"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Text        string `json:"text"`
}

type Scraper struct {
	httpClient *http.Client
	maxChars   int
}

// New returns a scraper whose extracted text is cut to maxChars runes.
func New(maxChars int) *Scraper {
	if maxChars <= 0 {
		maxChars = 4000
	}
	return &Scraper{
		httpClient: &http.Client{
			Timeout:   15 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		maxChars: maxChars,
	}
}

// Fetch downloads rawURL and extracts its title, meta description and
// visible text.
func (s *Scraper) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	target := normalizeURL(rawURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "CompeteIQ/1.0 (+https://competeiq.app)")
	req.Header.Set("Accept", "text/html")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("fetch %s: status %d", target, resp.StatusCode)
	}

	page, err := Extract(io.LimitReader(resp.Body, MaxBodyBytes))
	if err != nil {
		return nil, err
	}
	page.URL = target
	page.Text = truncate(page.Text, s.maxChars)
	return page, nil
}

// Extract parses an HTML document.
func Extract(r io.Reader) (*Page, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}

	page := &Page{}
	var text strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "svg", "iframe", "template":
				return
			case "title":
				if page.Title == "" && n.FirstChild != nil {
					page.Title = strings.TrimSpace(n.FirstChild.Data)
				}
				return
			case "meta":
				if isDescription(n) && page.Description == "" {
					page.Description = strings.TrimSpace(attr(n, "content"))
				}
			}
		}
		if n.Type == html.TextNode {
			if t := strings.Join(strings.Fields(n.Data), " "); t != "" {
				if text.Len() > 0 {
					text.WriteByte(' ')
				}
				text.WriteString(t)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	page.Text = text.String()
	return page, nil
}

func isDescription(n *html.Node) bool {
	name := strings.ToLower(attr(n, "name"))
	prop := strings.ToLower(attr(n, "property"))
	return name == "description" || prop == "og:description"
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func normalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = "https://" + raw
	}
	return raw
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
