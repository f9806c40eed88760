package crawler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/0xcro3dile/ragtutor/internal/domain/entities"
	"github.com/0xcro3dile/ragtutor/internal/domain/ports"
)

const (
	maxPageBytes = 2 << 20
	userAgent    = "Mozilla/5.0 (compatible; ragtutor/1.0)"
)

var (
	multiNewlinePattern = regexp.MustCompile(`\n{3,}`)
	multiSpacePattern   = regexp.MustCompile(`[ \t]{2,}`)
)

// HTMLFetcher implements ports.WebFetcher by downloading a page directly
// and extracting its readable text. Used when no crawl API is configured.
type HTMLFetcher struct {
	client *http.Client
}

var _ ports.WebFetcher = (*HTMLFetcher)(nil)

// NewHTMLFetcher creates a fetcher. A nil client gets a 30s default.
func NewHTMLFetcher(client *http.Client) *HTMLFetcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTMLFetcher{client: client}
}

// Crawl fetches url and extracts title, meta description and visible text.
func (f *HTMLFetcher) Crawl(ctx context.Context, url string) (entities.WebPage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return entities.WebPage{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,text/plain;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return entities.WebPage{}, fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return entities.WebPage{}, fmt.Errorf("%w: HTTP %d", ErrCrawlFailed, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return entities.WebPage{}, fmt.Errorf("reading response: %w", err)
	}

	var page entities.WebPage
	if strings.Contains(resp.Header.Get("Content-Type"), "text/plain") {
		page.Content = cleanText(string(body))
	} else {
		page, err = extractPage(string(body))
		if err != nil {
			return entities.WebPage{}, fmt.Errorf("%w: parsing html: %v", ErrCrawlFailed, err)
		}
	}

	if page.Content == "" {
		return entities.WebPage{}, fmt.Errorf("%w: empty content", ErrCrawlFailed)
	}
	return page, nil
}

func extractPage(doc string) (entities.WebPage, error) {
	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return entities.WebPage{}, err
	}

	var page entities.WebPage
	var sb strings.Builder
	walk(root, &page, &sb, 0)
	page.Title = strings.TrimSpace(page.Title)
	page.Content = cleanText(sb.String())
	return page, nil
}

func walk(n *html.Node, page *entities.WebPage, sb *strings.Builder, depth int) {
	if depth > 100 {
		return
	}

	switch n.Type {
	case html.TextNode:
		if text := strings.TrimSpace(n.Data); text != "" {
			sb.WriteString(text)
			sb.WriteString(" ")
		}
		return
	case html.ElementNode:
		switch n.Data {
		case "script", "style", "noscript", "iframe", "svg", "nav", "footer", "template":
			return
		case "title":
			if page.Title == "" {
				page.Title = textContent(n)
			}
			return
		case "meta":
			name := strings.ToLower(attr(n, "name"))
			if name == "" {
				name = strings.ToLower(attr(n, "property"))
			}
			if (name == "description" || name == "og:description") && page.Description == "" {
				page.Description = strings.TrimSpace(attr(n, "content"))
			}
			return
		case "p", "div", "section", "article", "h1", "h2", "h3", "h4", "h5", "h6", "li", "tr", "pre", "blockquote":
			sb.WriteString("\n\n")
		case "br":
			sb.WriteString("\n")
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, page, sb, depth+1)
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var collect func(*html.Node)
	collect = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(n)
	return strings.Join(strings.Fields(sb.String()), " ")
}

func cleanText(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(multiSpacePattern.ReplaceAllString(line, " "))
	}
	s = strings.Join(lines, "\n")
	s = multiNewlinePattern.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
