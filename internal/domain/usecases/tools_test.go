package usecases

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xcro3dile/ragtutor/internal/adapters/vectordb"
	"github.com/0xcro3dile/ragtutor/internal/domain/entities"
)

func newDispatcher(t *testing.T, searcher *mockSearcher, fetcher *mockFetcher, searchTimeout time.Duration) (*ToolDispatcher, *vectordb.InMemoryStore) {
	t.Helper()
	store := vectordb.NewInMemoryStore(vectordb.WithJitter(vectordb.NoJitter))
	store.Seed(courseChunks())

	var learner *LearnUseCase
	if fetcher != nil {
		learner = NewLearnUseCase(fetcher, store, 0, nil)
	}
	if searcher == nil {
		return NewToolDispatcher(store, nil, learner, searchTimeout, nil), store
	}
	return NewToolDispatcher(store, searcher, learner, searchTimeout, nil), store
}

func mustPreset(t *testing.T, name string) entities.AgentConfiguration {
	t.Helper()
	cfg, err := Preset(name)
	require.NoError(t, err)
	return cfg
}

func TestToolDispatcher_Declarations(t *testing.T) {
	d, _ := newDispatcher(t, nil, nil, 0)

	names := func(cfg entities.AgentConfiguration) []string {
		var out []string
		for _, decl := range d.Declarations(cfg) {
			out = append(out, decl.Name)
		}
		return out
	}

	assert.Equal(t, []string{"retrieve_chunks"}, names(mustPreset(t, PresetJunior)))
	assert.Equal(t, []string{"retrieve_chunks", "search_web"}, names(mustPreset(t, PresetSenior)))
	assert.Equal(t, []string{"retrieve_chunks", "search_web", "crawl_and_learn"}, names(mustPreset(t, PresetSuperego)))
}

func TestToolDispatcher_RetrieveUsesGivenConfig(t *testing.T) {
	d, _ := newDispatcher(t, nil, nil, 0)
	ctx := context.Background()
	cfg := mustPreset(t, PresetJunior)

	res, err := d.Dispatch(ctx, cfg, entities.RetrieveChunksCall{Query: "contextual retrieval"})
	require.NoError(t, err)
	chunks := res.(entities.RetrieveChunksResult).Chunks
	require.Len(t, chunks, 1)
	assert.Equal(t, "Prepend a short chunk-specific context to each chunk before indexing.", chunks[0].Content)

	cfg.RetrievalStrategy = entities.StrategyContextual
	res, err = d.Dispatch(ctx, cfg, entities.RetrieveChunksCall{Query: "contextual retrieval"})
	require.NoError(t, err)
	content := res.(entities.RetrieveChunksResult).Chunks[0].Content
	assert.Contains(t, content, "situating each chunk")
	assert.Contains(t, content, "Prepend a short chunk-specific context")
}

func TestToolDispatcher_TagOnlyMatchSurfacesUnderEveryPreset(t *testing.T) {
	d, _ := newDispatcher(t, nil, nil, 0)

	for _, name := range PresetNames() {
		t.Run(name, func(t *testing.T) {
			res, err := d.Dispatch(context.Background(), mustPreset(t, name), entities.RetrieveChunksCall{Query: "anthropic"})
			require.NoError(t, err)
			chunks := res.(entities.RetrieveChunksResult).Chunks
			require.Len(t, chunks, 1)
			assert.Equal(t, "L5-01", chunks[0].ID)
		})
	}
}

func TestToolDispatcher_RetrieveNoResultsSentinel(t *testing.T) {
	d, _ := newDispatcher(t, nil, nil, 0)

	res, err := d.DispatchNamed(context.Background(), mustPreset(t, PresetSenior), entities.ToolRetrieveChunks, map[string]any{"query": "quantum knitting"})
	require.NoError(t, err)
	assert.Equal(t, []any{entities.NoResultsSentinel}, res.Payload()["results"])
}

func TestToolDispatcher_SearchWeb(t *testing.T) {
	searcher := &mockSearcher{result: entities.SearchWebResult{
		Summary: "summary",
		Sources: []entities.GroundingSource{{Title: "t", URL: "https://u"}},
	}}
	d, _ := newDispatcher(t, searcher, nil, 0)
	ctx := context.Background()
	cfg := mustPreset(t, PresetSenior)

	res, err := d.Dispatch(ctx, cfg, entities.SearchWebCall{Query: "q"})
	require.NoError(t, err)
	assert.Equal(t, "summary", res.Payload()["result"])
	assert.Equal(t, 1, searcher.calls)

	cfg.ToolsEnabled.WebSearch = false
	res, err = d.Dispatch(ctx, cfg, entities.SearchWebCall{Query: "q"})
	require.NoError(t, err)
	assert.Equal(t, "disabled", res.Payload()["error"])
	assert.Equal(t, 1, searcher.calls, "disabled search must not reach the searcher")
}

func TestToolDispatcher_SearchWebIsBoundedByTimeout(t *testing.T) {
	searcher := &mockSearcher{searchFn: func(ctx context.Context, query string) (entities.SearchWebResult, error) {
		<-ctx.Done()
		return entities.SearchWebResult{}, ctx.Err()
	}}
	d, _ := newDispatcher(t, searcher, nil, 20*time.Millisecond)

	done := make(chan error, 1)
	go func() {
		_, err := d.Dispatch(context.Background(), mustPreset(t, PresetSenior), entities.SearchWebCall{Query: "q"})
		done <- err
	}()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(2 * time.Second):
		t.Fatal("search_web did not honor its timeout")
	}
}

func TestToolDispatcher_SearchWebUnavailableWithoutSearcher(t *testing.T) {
	d, _ := newDispatcher(t, nil, nil, 0)

	res, err := d.Dispatch(context.Background(), mustPreset(t, PresetSenior), entities.SearchWebCall{Query: "q"})
	require.NoError(t, err)
	assert.Equal(t, "unavailable", res.Payload()["error"])
}

func TestToolDispatcher_SearchWebTransportError(t *testing.T) {
	searcher := &mockSearcher{err: errors.New("dial tcp: i/o timeout")}
	d, _ := newDispatcher(t, searcher, nil, 0)

	_, err := d.Dispatch(context.Background(), mustPreset(t, PresetSenior), entities.SearchWebCall{Query: "q"})
	assert.ErrorContains(t, err, "i/o timeout")
}

func TestToolDispatcher_CrawlDisabled(t *testing.T) {
	fetcher := &mockFetcher{pages: map[string]entities.WebPage{}}
	d, _ := newDispatcher(t, nil, fetcher, 0)

	res, err := d.Dispatch(context.Background(), mustPreset(t, PresetSenior), entities.CrawlAndLearnCall{URL: "https://example.com"})
	require.NoError(t, err)
	assert.Equal(t, "disabled", res.Payload()["error"])
	assert.Zero(t, fetcher.calls)
}

func TestToolDispatcher_UnknownTool(t *testing.T) {
	d, _ := newDispatcher(t, nil, nil, 0)
	cfg := mustPreset(t, PresetSenior)

	_, err := d.DispatchNamed(context.Background(), cfg, "summon_demon", nil)
	assert.ErrorIs(t, err, entities.ErrUnknownTool)

	_, err = d.DispatchNamed(context.Background(), cfg, entities.ToolSearchWeb, map[string]any{})
	assert.ErrorIs(t, err, entities.ErrInvalidToolArgs)
}
