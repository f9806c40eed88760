// Package crawler provides ports.WebFetcher adapters.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"

	"github.com/0xcro3dile/ragtutor/internal/domain/entities"
	"github.com/0xcro3dile/ragtutor/internal/domain/ports"
)

// DefaultFirecrawlURL is the hosted Firecrawl API.
const DefaultFirecrawlURL = "https://api.firecrawl.dev"

// ErrCrawlFailed is returned when a page could not be turned into content.
var ErrCrawlFailed = errors.New("crawl failed")

// FirecrawlClient implements ports.WebFetcher on the Firecrawl scrape API.
type FirecrawlClient struct {
	client *resty.Client
}

var _ ports.WebFetcher = (*FirecrawlClient)(nil)

// NewFirecrawlClient creates a client authenticated with apiKey.
// Per-request deadlines come from the caller's context.
func NewFirecrawlClient(baseURL, apiKey string) *FirecrawlClient {
	if baseURL == "" {
		baseURL = DefaultFirecrawlURL
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetAuthToken(apiKey)
	return &FirecrawlClient{client: client}
}

type scrapeRequest struct {
	URL             string   `json:"url"`
	Formats         []string `json:"formats"`
	OnlyMainContent bool     `json:"onlyMainContent"`
}

type scrapeResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Data    struct {
		Markdown string `json:"markdown"`
		Metadata struct {
			Title       string `json:"title"`
			Description string `json:"description"`
		} `json:"metadata"`
	} `json:"data"`
}

// Crawl scrapes url and returns its main content as markdown.
func (c *FirecrawlClient) Crawl(ctx context.Context, url string) (entities.WebPage, error) {
	var out scrapeResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(scrapeRequest{
			URL:             url,
			Formats:         []string{"markdown"},
			OnlyMainContent: true,
		}).
		SetResult(&out).
		Post("/v1/scrape")
	if err != nil {
		return entities.WebPage{}, fmt.Errorf("calling firecrawl: %w", err)
	}

	if resp.StatusCode() < http.StatusOK || resp.StatusCode() >= http.StatusMultipleChoices {
		return entities.WebPage{}, fmt.Errorf("%w: status %d: %s", ErrCrawlFailed, resp.StatusCode(), strings.TrimSpace(resp.String()))
	}
	if !out.Success {
		msg := out.Error
		if msg == "" {
			msg = "unsuccessful scrape"
		}
		return entities.WebPage{}, fmt.Errorf("%w: %s", ErrCrawlFailed, msg)
	}
	if strings.TrimSpace(out.Data.Markdown) == "" {
		return entities.WebPage{}, fmt.Errorf("%w: empty content", ErrCrawlFailed)
	}

	return entities.WebPage{
		Title:       out.Data.Metadata.Title,
		Content:     out.Data.Markdown,
		Description: out.Data.Metadata.Description,
	}, nil
}
