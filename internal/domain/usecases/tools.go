package usecases

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/0xcro3dile/ragtutor/internal/domain/entities"
	"github.com/0xcro3dile/ragtutor/internal/domain/ports"
)

var (
	retrieveChunksDecl = ports.ToolDeclaration{
		Name:        entities.ToolRetrieveChunks,
		Description: "Search the course knowledge base (local memory) for chunks relevant to a query. Always try this first.",
		Parameters: []ports.ToolParameter{
			{Name: "query", Description: "Keywords or a short phrase to search for.", Required: true},
		},
	}
	searchWebDecl = ports.ToolDeclaration{
		Name:        entities.ToolSearchWeb,
		Description: "Search the live web for recent or missing information. Use only when local memory has nothing relevant.",
		Parameters: []ports.ToolParameter{
			{Name: "query", Description: "The web search query.", Required: true},
		},
	}
	crawlAndLearnDecl = ports.ToolDeclaration{
		Name:        entities.ToolCrawlAndLearn,
		Description: "Crawl a web page and store its content in local memory so it can be retrieved later.",
		Parameters: []ports.ToolParameter{
			{Name: "url", Description: "Absolute URL of the page to learn.", Required: true},
			{Name: "tag", Description: "Optional topic tag for the learned content."},
		},
	}
)

// DefaultSearchTimeout bounds a single search_web call.
const DefaultSearchTimeout = 30 * time.Second

// ToolDispatcher routes typed tool calls to their implementations.
type ToolDispatcher struct {
	store         ports.KnowledgeStore
	searcher      ports.WebSearcher
	learner       *LearnUseCase
	searchTimeout time.Duration
	logger        *zap.Logger
}

// NewToolDispatcher creates a dispatcher. searcher may be nil when the model
// provider has no search grounding. A non-positive searchTimeout uses the default.
func NewToolDispatcher(store ports.KnowledgeStore, searcher ports.WebSearcher, learner *LearnUseCase, searchTimeout time.Duration, logger *zap.Logger) *ToolDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if searchTimeout <= 0 {
		searchTimeout = DefaultSearchTimeout
	}
	return &ToolDispatcher{
		store:         store,
		searcher:      searcher,
		learner:       learner,
		searchTimeout: searchTimeout,
		logger:        logger,
	}
}

// Declarations lists the tools exposed for cfg. retrieve_chunks is always present.
func (d *ToolDispatcher) Declarations(cfg entities.AgentConfiguration) []ports.ToolDeclaration {
	decls := []ports.ToolDeclaration{retrieveChunksDecl}
	if cfg.ToolsEnabled.WebSearch {
		decls = append(decls, searchWebDecl)
	}
	if cfg.ToolsEnabled.DeepResearch {
		decls = append(decls, crawlAndLearnDecl)
	}
	return decls
}

// DispatchNamed parses a raw function call and dispatches it.
func (d *ToolDispatcher) DispatchNamed(ctx context.Context, cfg entities.AgentConfiguration, name string, args map[string]any) (entities.ToolResult, error) {
	call, err := entities.ParseToolCall(name, args)
	if err != nil {
		return nil, err
	}
	return d.Dispatch(ctx, cfg, call)
}

// Dispatch executes call under cfg, the configuration the turn started with.
// Returned errors are transport failures; disabled tools and empty results are results.
func (d *ToolDispatcher) Dispatch(ctx context.Context, cfg entities.AgentConfiguration, call entities.ToolCall) (entities.ToolResult, error) {
	switch c := call.(type) {
	case entities.RetrieveChunksCall:
		chunks := d.store.Search(ctx, c.Query, cfg.TopK, cfg.RetrievalStrategy, cfg.MinRelevanceScore)
		return entities.RetrieveChunksResult{Chunks: chunks}, nil

	case entities.SearchWebCall:
		if !cfg.ToolsEnabled.WebSearch {
			return entities.ToolDisabledResult{Tool: entities.ToolSearchWeb}, nil
		}
		if d.searcher == nil {
			return entities.ToolDisabledResult{Tool: entities.ToolSearchWeb, Reason: "unavailable"}, nil
		}
		searchCtx, cancel := context.WithTimeout(ctx, d.searchTimeout)
		defer cancel()
		res, err := d.searcher.Search(searchCtx, c.Query)
		if err != nil {
			return nil, fmt.Errorf("web search: %w", err)
		}
		return res, nil

	case entities.CrawlAndLearnCall:
		if !cfg.ToolsEnabled.DeepResearch {
			return entities.ToolDisabledResult{Tool: entities.ToolCrawlAndLearn}, nil
		}
		if d.learner == nil {
			return entities.ToolDisabledResult{Tool: entities.ToolCrawlAndLearn, Reason: "unavailable"}, nil
		}
		res, err := d.learner.Learn(ctx, c.URL, c.Tag)
		if err != nil {
			return nil, err
		}
		return res, nil

	default:
		return nil, fmt.Errorf("%w: %T", entities.ErrUnknownTool, call)
	}
}
