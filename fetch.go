package linkeeper

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/net/html"

	"github.com/linkeeper/linkeeper/models"
)

// fetchTimeout bounds a single page fetch.
const fetchTimeout = 10 * time.Second

// userAgents is the fixed pool rotated across page fetches to reduce
// rate-limiting by picky hosts.
var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64; rv:125.0) Gecko/20100101 Firefox/125.0",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
	"Mozilla/5.0 (compatible; LinKeeper/1.0; +https://linkeeper.app)",
}

// Fetcher extracts best-effort page metadata from arbitrary URLs. It is the
// fallback path for URLs that no platform API covers.
type Fetcher struct {
	client   *http.Client
	archiver *Archiver // optional; replaces the raw image URL with a storage key
	uaIndex  atomic.Uint64
}

// NewFetcher creates a generic metadata fetcher. archiver may be nil, in
// which case discovered image URLs are dropped rather than persisted raw.
func NewFetcher(archiver *Archiver) *Fetcher {
	return &Fetcher{
		client: &http.Client{
			Timeout:   fetchTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		archiver: archiver,
	}
}

// FetchMetadata fetches and parses targetURL and extracts title, description
// and preview image. It never fails: any network, HTTP or parse problem
// yields empty fields so the link can still be saved.
func (f *Fetcher) FetchMetadata(ctx context.Context, targetURL string) models.Metadata {
	meta := models.Metadata{Tags: []string{}}

	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		slog.Warn("metadata fetch: bad request", "url", targetURL, "error", err)
		return meta
	}
	f.setBrowserHeaders(req)

	resp, err := f.client.Do(req)
	if err != nil {
		slog.Warn("metadata fetch failed", "url", targetURL, "error", err)
		return meta
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		slog.Warn("metadata fetch: non-2xx response", "url", targetURL, "status", resp.StatusCode)
		return meta
	}

	doc, err := html.Parse(resp.Body)
	if err != nil {
		slog.Warn("metadata fetch: html parse failed", "url", targetURL, "error", err)
		return meta
	}

	meta.Title = extractTitle(doc)
	meta.Description = extractDescription(doc)

	imageURL := extractImageURL(doc)
	if imageURL != "" && f.archiver != nil {
		// Persist a copy; the record stores the storage key, never the raw URL.
		meta.Image = f.archiver.Archive(ctx, imageURL, targetURL)
	}

	return meta
}

// setBrowserHeaders applies a realistic header set, rotating the user agent
// from the fixed pool per request.
func (f *Fetcher) setBrowserHeaders(req *http.Request) {
	ua := userAgents[f.uaIndex.Add(1)%uint64(len(userAgents))]
	req.Header.Set("User-Agent", ua)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
}

// metaContent walks the document once and records the content of every meta
// tag keyed by its property/name attribute (lowercased, first wins).
func metaContent(n *html.Node) map[string]string {
	found := map[string]string{}

	var f func(*html.Node)
	f = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "meta" {
			var property, name, content string
			for _, attr := range n.Attr {
				switch attr.Key {
				case "property":
					property = strings.ToLower(attr.Val)
				case "name":
					name = strings.ToLower(attr.Val)
				case "content":
					content = attr.Val
				}
			}
			if content != "" {
				for _, key := range []string{property, name} {
					if key != "" {
						if _, ok := found[key]; !ok {
							found[key] = content
						}
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			f(c)
		}
	}
	f(n)

	return found
}

// extractTitle extracts the page title.
// Priority: og:title > twitter:title > title meta > <title> text.
func extractTitle(doc *html.Node) string {
	meta := metaContent(doc)
	for _, key := range []string{"og:title", "twitter:title", "title"} {
		if v := strings.TrimSpace(meta[key]); v != "" {
			return v
		}
	}
	return strings.TrimSpace(titleText(doc))
}

// titleText returns the text content of the document's <title> element.
func titleText(n *html.Node) string {
	if n.Type == html.ElementNode && n.Data == "title" && n.FirstChild != nil {
		return n.FirstChild.Data
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if t := titleText(c); t != "" {
			return t
		}
	}
	return ""
}

// extractDescription extracts the page description.
// Priority: og:description > twitter:description > description meta.
func extractDescription(doc *html.Node) string {
	meta := metaContent(doc)
	for _, key := range []string{"og:description", "twitter:description", "description"} {
		if v := strings.TrimSpace(meta[key]); v != "" {
			return v
		}
	}
	return ""
}

// extractImageURL extracts the preview image URL from social meta tags.
// Priority: og:image > og:image:url > og:image:secure_url > twitter:image.
func extractImageURL(doc *html.Node) string {
	meta := metaContent(doc)
	for _, key := range []string{"og:image", "og:image:url", "og:image:secure_url", "twitter:image"} {
		if v := strings.TrimSpace(meta[key]); v != "" {
			return v
		}
	}
	return ""
}
