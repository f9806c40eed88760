package vectordb

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xcro3dile/ragtutor/internal/domain/entities"
)

func fixtureChunks() []entities.KnowledgeChunk {
	return []entities.KnowledgeChunk{
		{
			ID:             "L1-01",
			Lesson:         "Lesson 1",
			Title:          "What is RAG?",
			Content:        "Retrieval-Augmented Generation grounds answers in documents.",
			Context:        "Introductory lesson on retrieval.",
			ParentDocument: "RAG combines a retriever with a generator. The long form.",
			Type:           entities.ChunkConcept,
			Tags:           []string{"rag", "basics"},
		},
		{
			ID:      "L2-01",
			Lesson:  "Lesson 2",
			Title:   "Chunking strategies",
			Content: "Split documents into overlapping windows.",
			Type:    entities.ChunkTechnique,
			Tags:    []string{"chunking"},
		},
		{
			ID:      "L5-01",
			Lesson:  "Lesson 5",
			Title:   "Contextual Retrieval",
			Content: "Prepend chunk-specific context before embedding.",
			Context: "Anthropic technique for reducing retrieval failures.",
			Type:    entities.ChunkTechnique,
			Tags:    []string{"contextual", "retrieval"},
		},
	}
}

func newFixtureStore(t *testing.T, opts ...Option) *InMemoryStore {
	t.Helper()
	store := NewInMemoryStore(append([]Option{WithJitter(NoJitter)}, opts...)...)
	require.Len(t, store.Seed(fixtureChunks()), 3)
	return store
}

func TestInMemoryStore_SearchScoresTitleContentAndTags(t *testing.T) {
	store := newFixtureStore(t)

	results := store.Search(context.Background(), "contextual", 5, entities.StrategyNaive, 0)
	require.Len(t, results, 1)
	assert.Equal(t, "L5-01", results[0].ID)
	// title + tag
	assert.InDelta(t, 0.7, results[0].Score, 1e-9)
}

func TestInMemoryStore_TagMatchRequiresQueryInTag(t *testing.T) {
	store := newFixtureStore(t)
	ctx := context.Background()

	// "leverage" contains the tag "rag" but no tag contains "leverage"
	assert.Empty(t, store.Search(ctx, "leverage", 5, entities.StrategyNaive, 0))

	basics := store.Search(ctx, "basic", 5, entities.StrategyNaive, 0)
	require.Len(t, basics, 1)
	assert.Equal(t, "L1-01", basics[0].ID)
	assert.InDelta(t, 0.2, basics[0].Score, 1e-9)
}

func TestInMemoryStore_SearchIsCaseInsensitive(t *testing.T) {
	store := newFixtureStore(t)

	results := store.Search(context.Background(), "RAG", 5, entities.StrategyNaive, 0)
	require.NotEmpty(t, results)
	assert.Equal(t, "L1-01", results[0].ID)
}

func TestInMemoryStore_SearchDeterministicWithoutJitter(t *testing.T) {
	store := newFixtureStore(t)
	ctx := context.Background()

	first := store.Search(ctx, "retrieval", 5, entities.StrategyNaive, 0)
	for i := 0; i < 10; i++ {
		again := store.Search(ctx, "retrieval", 5, entities.StrategyNaive, 0)
		assert.Equal(t, first, again)
	}
}

func TestInMemoryStore_SearchNeverReturnsZeroSignal(t *testing.T) {
	store := newFixtureStore(t, WithJitter(func() float64 { return MaxJitter - 1e-9 }))

	results := store.Search(context.Background(), "kubernetes", 5, entities.StrategyNaive, 0)
	assert.Empty(t, results)
	assert.NotNil(t, results)
}

func TestInMemoryStore_SearchHonorsTopKAndMinScore(t *testing.T) {
	store := newFixtureStore(t)
	ctx := context.Background()

	// "retrieval" hits L1-01 content, L5-01 title and tag
	all := store.Search(ctx, "retrieval", 5, entities.StrategyNaive, 0)
	require.Len(t, all, 2)
	assert.Equal(t, "L5-01", all[0].ID)

	top := store.Search(ctx, "retrieval", 1, entities.StrategyNaive, 0)
	require.Len(t, top, 1)
	assert.Equal(t, "L5-01", top[0].ID)

	strict := store.Search(ctx, "retrieval", 5, entities.StrategyNaive, 0.5)
	require.Len(t, strict, 1)
	assert.Equal(t, "L5-01", strict[0].ID)
}

func TestInMemoryStore_StrategySelectsField(t *testing.T) {
	store := newFixtureStore(t)
	ctx := context.Background()

	naive := store.Search(ctx, "rag", 1, entities.StrategyNaive, 0)
	require.Len(t, naive, 1)
	assert.Equal(t, "Retrieval-Augmented Generation grounds answers in documents.", naive[0].Content)

	parent := store.Search(ctx, "rag", 1, entities.StrategyParentDoc, 0)
	require.Len(t, parent, 1)
	assert.Equal(t, "RAG combines a retriever with a generator. The long form.", parent[0].Content)

	contextual := store.Search(ctx, "rag", 1, entities.StrategyContextual, 0)
	require.Len(t, contextual, 1)
	assert.Equal(t, "Introductory lesson on retrieval.\n\nRetrieval-Augmented Generation grounds answers in documents.", contextual[0].Content)

	// Missing parent document falls back to content
	chunking := store.Search(ctx, "chunking", 1, entities.StrategyParentDoc, 0)
	require.Len(t, chunking, 1)
	assert.Equal(t, "Split documents into overlapping windows.", chunking[0].Content)
}

func TestInMemoryStore_SearchDoesNotMutateStoredChunks(t *testing.T) {
	store := newFixtureStore(t)

	store.Search(context.Background(), "rag", 1, entities.StrategyParentDoc, 0)

	stored, ok := store.Get("L1-01")
	require.True(t, ok)
	assert.Equal(t, "Retrieval-Augmented Generation grounds answers in documents.", stored.Content)
	assert.Zero(t, stored.Score)
}

func TestInMemoryStore_AddAssignsFreshID(t *testing.T) {
	store := newFixtureStore(t)
	ctx := context.Background()

	added := store.Add(ctx, entities.KnowledgeChunk{
		ID:    "caller-supplied",
		Title: "Reranking",
		Type:  entities.ChunkWebKnowledge,
		Tags:  []string{"web"},
	})
	assert.NotEqual(t, "caller-supplied", added.ID)
	assert.Equal(t, 4, store.Len())

	results := store.Search(ctx, "reranking", 5, entities.StrategyNaive, 0)
	require.Len(t, results, 1)
	assert.Equal(t, added.ID, results[0].ID)
}

func TestInMemoryStore_SeedSkipsExistingIDs(t *testing.T) {
	store := newFixtureStore(t)

	assert.Empty(t, store.Seed(fixtureChunks()))
	assert.Equal(t, 3, store.Len())
}

func TestInMemoryStore_WebKnowledgeIsCapped(t *testing.T) {
	store := newFixtureStore(t, WithWebCapacity(2))
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		c := store.Add(ctx, entities.KnowledgeChunk{
			Title:     fmt.Sprintf("page %d", i),
			Type:      entities.ChunkWebKnowledge,
			SourceURL: fmt.Sprintf("https://example.com/%d", i),
		})
		ids = append(ids, c.ID)
	}

	assert.Equal(t, 2, store.WebLen())
	assert.Equal(t, 5, store.Len())
	_, ok := store.Get(ids[0])
	assert.False(t, ok, "oldest web chunk should be evicted")
	_, ok = store.Get("L1-01")
	assert.True(t, ok, "seed chunks are never evicted")
}

func TestInMemoryStore_FindByURL(t *testing.T) {
	store := newFixtureStore(t)
	added := store.Add(context.Background(), entities.KnowledgeChunk{
		Title:     "Docs",
		Type:      entities.ChunkWebKnowledge,
		SourceURL: "https://example.com/docs",
	})

	found, ok := store.FindByURL("https://example.com/docs")
	require.True(t, ok)
	assert.Equal(t, added.ID, found.ID)

	_, ok = store.FindByURL("https://example.com/other")
	assert.False(t, ok)
}

func TestInMemoryStore_Remove(t *testing.T) {
	store := newFixtureStore(t)

	assert.True(t, store.Remove("L2-01"))
	assert.False(t, store.Remove("L2-01"))
	assert.Equal(t, 2, store.Len())
}

func TestSeededJitterIsReproducible(t *testing.T) {
	a := SeededJitter(42)
	b := SeededJitter(42)
	for i := 0; i < 5; i++ {
		va, vb := a(), b()
		assert.Equal(t, va, vb)
		assert.GreaterOrEqual(t, va, 0.0)
		assert.Less(t, va, MaxJitter)
	}
}
