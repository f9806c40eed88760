package entities

import (
	"errors"
	"fmt"
	"strings"
)

// Tool names exposed to the model.
const (
	ToolRetrieveChunks = "retrieve_chunks"
	ToolSearchWeb      = "search_web"
	ToolCrawlAndLearn  = "crawl_and_learn"
)

var (
	// ErrUnknownTool is returned for a tool name outside the declared set.
	ErrUnknownTool = errors.New("unknown tool")

	// ErrInvalidToolArgs is returned when a required argument is missing or mistyped.
	ErrInvalidToolArgs = errors.New("invalid tool arguments")
)

// ToolCall is a parsed, typed tool request. The set of variants is closed.
type ToolCall interface {
	ToolName() string
	Args() map[string]any
	isToolCall()
}

// RetrieveChunksCall searches the local knowledge store.
type RetrieveChunksCall struct {
	Query string
}

// SearchWebCall runs a live web search.
type SearchWebCall struct {
	Query string
}

// CrawlAndLearnCall crawls a page and stores it as web knowledge.
type CrawlAndLearnCall struct {
	URL string
	Tag string
}

func (RetrieveChunksCall) ToolName() string { return ToolRetrieveChunks }
func (SearchWebCall) ToolName() string      { return ToolSearchWeb }
func (CrawlAndLearnCall) ToolName() string  { return ToolCrawlAndLearn }

func (c RetrieveChunksCall) Args() map[string]any { return map[string]any{"query": c.Query} }
func (c SearchWebCall) Args() map[string]any      { return map[string]any{"query": c.Query} }

func (c CrawlAndLearnCall) Args() map[string]any {
	args := map[string]any{"url": c.URL}
	if c.Tag != "" {
		args["tag"] = c.Tag
	}
	return args
}

func (RetrieveChunksCall) isToolCall() {}
func (SearchWebCall) isToolCall()      {}
func (CrawlAndLearnCall) isToolCall()  {}

// ParseToolCall converts a raw model function call into a typed ToolCall.
func ParseToolCall(name string, args map[string]any) (ToolCall, error) {
	switch name {
	case ToolRetrieveChunks:
		q, err := requiredString(args, "query")
		if err != nil {
			return nil, err
		}
		return RetrieveChunksCall{Query: q}, nil
	case ToolSearchWeb:
		q, err := requiredString(args, "query")
		if err != nil {
			return nil, err
		}
		return SearchWebCall{Query: q}, nil
	case ToolCrawlAndLearn:
		u, err := requiredString(args, "url")
		if err != nil {
			return nil, err
		}
		tag, _ := args["tag"].(string)
		return CrawlAndLearnCall{URL: u, Tag: strings.TrimSpace(tag)}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
}

func requiredString(args map[string]any, key string) (string, error) {
	v, ok := args[key].(string)
	if !ok || strings.TrimSpace(v) == "" {
		return "", fmt.Errorf("%w: %q is required", ErrInvalidToolArgs, key)
	}
	return strings.TrimSpace(v), nil
}

// ToolResult is the typed outcome of a tool call. Payload is what the model sees.
type ToolResult interface {
	Payload() map[string]any
	isToolResult()
}

// NoResultsSentinel is returned to the model when retrieval finds nothing.
const NoResultsSentinel = "No relevant chunks found in local memory."

// RetrieveChunksResult holds retrieval hits, already strategy-transformed.
type RetrieveChunksResult struct {
	Chunks []KnowledgeChunk
}

func (r RetrieveChunksResult) Payload() map[string]any {
	if len(r.Chunks) == 0 {
		return map[string]any{"results": []any{NoResultsSentinel}}
	}
	results := make([]any, len(r.Chunks))
	for i, c := range r.Chunks {
		results[i] = map[string]any{
			"id":      c.ID,
			"title":   c.Title,
			"content": c.Content,
			"lesson":  c.Lesson,
			"score":   c.Score,
		}
	}
	return map[string]any{"results": results}
}

// SearchWebResult is a grounded web-search summary.
type SearchWebResult struct {
	Summary string
	Sources []GroundingSource
}

func (r SearchWebResult) Payload() map[string]any {
	sources := make([]any, len(r.Sources))
	for i, s := range r.Sources {
		sources[i] = map[string]any{"title": s.Title, "url": s.URL}
	}
	return map[string]any{"result": r.Summary, "sources": sources}
}

// Crawl statuses.
const (
	CrawlStatusSuccess = "success"
	CrawlStatusKnown   = "already_known"
)

// CrawlAndLearnResult reports an ingestion.
type CrawlAndLearnResult struct {
	Status  string
	Message string
	Title   string
	ChunkID string
}

func (r CrawlAndLearnResult) Payload() map[string]any {
	return map[string]any{"status": r.Status, "message": r.Message, "title": r.Title}
}

// ToolDisabledResult tells the model a capability is switched off so it can plan around it.
type ToolDisabledResult struct {
	Tool   string
	Reason string
}

func (r ToolDisabledResult) Payload() map[string]any {
	reason := r.Reason
	if reason == "" {
		reason = "disabled"
	}
	return map[string]any{
		"error":   reason,
		"message": fmt.Sprintf("The %s tool is %s in the current configuration. Continue without it.", r.Tool, reason),
	}
}

// ToolErrorResult carries a failure that is reported to the model rather than ending the turn.
type ToolErrorResult struct {
	Message string
}

func (r ToolErrorResult) Payload() map[string]any {
	return map[string]any{"error": r.Message}
}

func (RetrieveChunksResult) isToolResult() {}
func (SearchWebResult) isToolResult()      {}
func (CrawlAndLearnResult) isToolResult()  {}
func (ToolDisabledResult) isToolResult()   {}
func (ToolErrorResult) isToolResult()      {}
