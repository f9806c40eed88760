// Package vectordb provides knowledge store adapters.
// The in-memory store implements ports.KnowledgeStore; SQLiteStore persists learned chunks.
package vectordb

import (
	"context"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/0xcro3dile/ragtutor/internal/domain/entities"
	"github.com/0xcro3dile/ragtutor/internal/domain/ports"
)

// Scoring weights for lexical matching.
const (
	titleWeight   = 0.5
	contentWeight = 0.3
	tagWeight     = 0.2

	// MaxJitter bounds the random tie-breaker added to every score.
	MaxJitter = 0.1

	// scoreFloor is the minimum total score a hit must exceed.
	scoreFloor = 0.1

	// DefaultWebCapacity caps learned web knowledge.
	DefaultWebCapacity = 256
)

// JitterFunc returns a value in [0, MaxJitter).
type JitterFunc func() float64

// DefaultJitter draws from the global source.
func DefaultJitter() float64 {
	return rand.Float64() * MaxJitter
}

// SeededJitter returns a reproducible jitter source.
func SeededJitter(seed uint64) JitterFunc {
	var mu sync.Mutex
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	return func() float64 {
		mu.Lock()
		defer mu.Unlock()
		return r.Float64() * MaxJitter
	}
}

// NoJitter disables jitter.
func NoJitter() float64 { return 0 }

// InMemoryStore keeps curated chunks forever and learned web chunks in an LRU.
type InMemoryStore struct {
	mu      sync.RWMutex
	static  map[string]entities.KnowledgeChunk // seed and file-loaded chunks
	web     *lru.Cache[string, entities.KnowledgeChunk]
	webCap  int
	persist ports.KnowledgePersister
	jitter  JitterFunc
	logger  *zap.Logger
}

// Option configures an InMemoryStore.
type Option func(*InMemoryStore)

// WithJitter overrides the jitter source.
func WithJitter(j JitterFunc) Option {
	return func(s *InMemoryStore) { s.jitter = j }
}

// WithWebCapacity sets how many learned chunks are kept.
func WithWebCapacity(n int) Option {
	return func(s *InMemoryStore) {
		if n > 0 {
			s.webCap = n
		}
	}
}

// WithPersister mirrors learned chunks into durable storage.
func WithPersister(p ports.KnowledgePersister) Option {
	return func(s *InMemoryStore) { s.persist = p }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *InMemoryStore) { s.logger = l }
}

// NewInMemoryStore creates an empty knowledge store.
func NewInMemoryStore(opts ...Option) *InMemoryStore {
	s := &InMemoryStore{
		static: make(map[string]entities.KnowledgeChunk),
		webCap: DefaultWebCapacity,
		jitter: DefaultJitter,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	// lru.New only fails for a non-positive size, which WithWebCapacity rejects.
	s.web, _ = lru.New[string, entities.KnowledgeChunk](s.webCap)
	return s
}

var _ ports.KnowledgeStore = (*InMemoryStore)(nil)

type scored struct {
	chunk entities.KnowledgeChunk
	score float64
}

// Search scores every chunk against the query and returns the best topK.
func (s *InMemoryStore) Search(ctx context.Context, query string, topK int, strategy entities.RetrievalStrategy, minScore float64) []entities.KnowledgeChunk {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" || topK < 1 {
		return []entities.KnowledgeChunk{}
	}

	threshold := scoreFloor
	if minScore > threshold {
		threshold = minScore
	}

	s.mu.RLock()
	var results []scored
	visit := func(c entities.KnowledgeChunk) {
		signal := matchScore(c, q)
		if signal == 0 {
			return
		}
		total := signal + s.jitter()
		if total <= scoreFloor || total < threshold {
			return
		}
		results = append(results, scored{chunk: c, score: total})
	}
	for _, c := range s.static {
		visit(c)
	}
	for _, c := range s.web.Values() {
		visit(c)
	}
	s.mu.RUnlock()

	// Sort by score descending, ID ascending for stable ties
	sort.Slice(results, func(i, j int) bool {
		if results[i].score != results[j].score {
			return results[i].score > results[j].score
		}
		return results[i].chunk.ID < results[j].chunk.ID
	})

	if len(results) > topK {
		results = results[:topK]
	}

	out := make([]entities.KnowledgeChunk, len(results))
	for i, r := range results {
		c := r.chunk
		c.Content = presentContent(c, strategy)
		c.Score = r.score
		out[i] = c
		if c.Type == entities.ChunkWebKnowledge {
			s.web.Get(c.ID) // mark as recently used
		}
	}
	return out
}

// matchScore sums the lexical signal without jitter. q must be lowercase.
func matchScore(c entities.KnowledgeChunk, q string) float64 {
	var score float64
	if strings.Contains(strings.ToLower(c.Title), q) {
		score += titleWeight
	}
	if strings.Contains(strings.ToLower(c.Content), q) {
		score += contentWeight
	}
	for _, tag := range c.Tags {
		if strings.Contains(strings.ToLower(tag), q) {
			score += tagWeight
			break
		}
	}
	return score
}

// presentContent picks the text surfaced for a hit.
func presentContent(c entities.KnowledgeChunk, strategy entities.RetrievalStrategy) string {
	switch strategy {
	case entities.StrategyParentDoc:
		if c.ParentDocument != "" {
			return c.ParentDocument
		}
	case entities.StrategyContextual:
		if c.Context != "" {
			return c.Context + "\n\n" + c.Content
		}
	}
	return c.Content
}

// Add stores chunk under a fresh ID and returns the stored copy.
func (s *InMemoryStore) Add(ctx context.Context, chunk entities.KnowledgeChunk) entities.KnowledgeChunk {
	chunk.ID = uuid.NewString()
	chunk.Score = 0
	chunk.Tags = append([]string(nil), chunk.Tags...)

	s.mu.Lock()
	evicted, didEvict := s.insert(chunk)
	s.mu.Unlock()

	if s.persist != nil && chunk.Type == entities.ChunkWebKnowledge {
		if didEvict {
			if err := s.persist.Delete(ctx, evicted.ID); err != nil {
				s.logger.Warn("failed to delete evicted chunk", zap.String("id", evicted.ID), zap.Error(err))
			}
		}
		if err := s.persist.Save(ctx, chunk); err != nil {
			s.logger.Warn("failed to persist chunk", zap.String("id", chunk.ID), zap.Error(err))
		}
	}
	return chunk
}

// insert places chunk in the right tier. Caller holds s.mu.
func (s *InMemoryStore) insert(chunk entities.KnowledgeChunk) (entities.KnowledgeChunk, bool) {
	if chunk.Type != entities.ChunkWebKnowledge {
		s.static[chunk.ID] = chunk
		return entities.KnowledgeChunk{}, false
	}

	var evicted entities.KnowledgeChunk
	var didEvict bool
	if s.web.Len() >= s.webCap {
		_, evicted, didEvict = s.web.RemoveOldest()
		if didEvict {
			s.logger.Debug("evicted web knowledge", zap.String("id", evicted.ID), zap.String("url", evicted.SourceURL))
		}
	}
	s.web.Add(chunk.ID, chunk)
	return evicted, didEvict
}

// Seed inserts chunks keeping their IDs and returns the IDs it added.
// Chunks whose ID is already present are skipped.
func (s *InMemoryStore) Seed(chunks []entities.KnowledgeChunk) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var added []string
	for _, c := range chunks {
		if c.ID == "" || s.hasLocked(c.ID) {
			continue
		}
		c.Score = 0
		s.insert(c)
		added = append(added, c.ID)
	}
	return added
}

// Restore loads persisted web knowledge, oldest first. Rows beyond capacity are
// dropped from the persister as well.
func (s *InMemoryStore) Restore(ctx context.Context) (int, error) {
	if s.persist == nil {
		return 0, nil
	}
	chunks, err := s.persist.LoadAll(ctx)
	if err != nil {
		return 0, err
	}
	if overflow := len(chunks) - s.webCap; overflow > 0 {
		for _, c := range chunks[:overflow] {
			if err := s.persist.Delete(ctx, c.ID); err != nil {
				s.logger.Warn("failed to drop overflow chunk", zap.String("id", c.ID), zap.Error(err))
			}
		}
		chunks = chunks[overflow:]
	}
	return len(s.Seed(chunks)), nil
}

func (s *InMemoryStore) hasLocked(id string) bool {
	if _, ok := s.static[id]; ok {
		return true
	}
	return s.web.Contains(id)
}

// FindByURL returns a learned chunk crawled from url.
func (s *InMemoryStore) FindByURL(url string) (entities.KnowledgeChunk, bool) {
	if url == "" {
		return entities.KnowledgeChunk{}, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.web.Values() {
		if c.SourceURL == url {
			return c, true
		}
	}
	for _, c := range s.static {
		if c.SourceURL == url {
			return c, true
		}
	}
	return entities.KnowledgeChunk{}, false
}

// Get returns a chunk by ID.
func (s *InMemoryStore) Get(id string) (entities.KnowledgeChunk, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if c, ok := s.static[id]; ok {
		return c, true
	}
	return s.web.Peek(id)
}

// Remove deletes a chunk by ID.
func (s *InMemoryStore) Remove(id string) bool {
	s.mu.Lock()
	if _, ok := s.static[id]; ok {
		delete(s.static, id)
		s.mu.Unlock()
		return true
	}
	removed := s.web.Remove(id)
	s.mu.Unlock()

	if removed && s.persist != nil {
		if err := s.persist.Delete(context.Background(), id); err != nil {
			s.logger.Warn("failed to delete chunk", zap.String("id", id), zap.Error(err))
		}
	}
	return removed
}

// Len returns the number of stored chunks.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.static) + s.web.Len()
}

// WebLen returns the number of learned web chunks.
func (s *InMemoryStore) WebLen() int {
	return s.web.Len()
}
