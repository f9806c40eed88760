package usecases

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/0xcro3dile/ragtutor/internal/domain/entities"
	"github.com/0xcro3dile/ragtutor/internal/domain/ports"
)

const (
	// MaxLearnedContent bounds the characters kept from a crawled page.
	MaxLearnedContent = 2000

	// DefaultCrawlTimeout bounds a single crawl.
	DefaultCrawlTimeout = 15 * time.Second

	defaultLearnTag = "web"
	learnedLesson   = "Web Research"
)

// ErrNoFetcher is returned when crawling is requested without a fetcher.
var ErrNoFetcher = errors.New("no web fetcher configured")

// LearnUseCase crawls a page and stores it as web knowledge.
type LearnUseCase struct {
	fetcher ports.WebFetcher
	store   ports.KnowledgeStore
	timeout time.Duration
	logger  *zap.Logger
}

// NewLearnUseCase creates a LearnUseCase with injected dependencies.
func NewLearnUseCase(fetcher ports.WebFetcher, store ports.KnowledgeStore, timeout time.Duration, logger *zap.Logger) *LearnUseCase {
	if timeout <= 0 {
		timeout = DefaultCrawlTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LearnUseCase{
		fetcher: fetcher,
		store:   store,
		timeout: timeout,
		logger:  logger,
	}
}

// Learn ingests url unless it is already known. Crawl failures are returned as errors.
func (uc *LearnUseCase) Learn(ctx context.Context, url, tag string) (entities.CrawlAndLearnResult, error) {
	if existing, ok := uc.store.FindByURL(url); ok {
		return entities.CrawlAndLearnResult{
			Status:  entities.CrawlStatusKnown,
			Message: fmt.Sprintf("Already learned %q; use retrieve_chunks to read it.", existing.Title),
			Title:   existing.Title,
			ChunkID: existing.ID,
		}, nil
	}
	if uc.fetcher == nil {
		return entities.CrawlAndLearnResult{}, ErrNoFetcher
	}

	crawlCtx, cancel := context.WithTimeout(ctx, uc.timeout)
	defer cancel()

	page, err := uc.fetcher.Crawl(crawlCtx, url)
	if err != nil {
		return entities.CrawlAndLearnResult{}, fmt.Errorf("crawling %s: %w", url, err)
	}

	if tag = strings.TrimSpace(tag); tag == "" {
		tag = defaultLearnTag
	}
	title := strings.TrimSpace(page.Title)
	if title == "" {
		title = url
	}

	chunk := uc.store.Add(ctx, entities.KnowledgeChunk{
		Lesson:    learnedLesson,
		Title:     title,
		Content:   truncateRunes(strings.TrimSpace(page.Content), MaxLearnedContent),
		Context:   strings.TrimSpace(page.Description),
		Type:      entities.ChunkWebKnowledge,
		Tags:      []string{tag},
		SourceURL: url,
	})

	uc.logger.Info("learned web page",
		zap.String("url", url),
		zap.String("title", title),
		zap.String("chunk_id", chunk.ID),
	)

	return entities.CrawlAndLearnResult{
		Status:  entities.CrawlStatusSuccess,
		Message: fmt.Sprintf("Learned %q and added it to local memory under tag %q.", title, tag),
		Title:   title,
		ChunkID: chunk.ID,
	}, nil
}

// truncateRunes cuts s to at most n characters without splitting a rune.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// KnowledgeSyncUseCase keeps the store in step with knowledge files on disk.
type KnowledgeSyncUseCase struct {
	loader ports.KnowledgeLoader
	store  ports.KnowledgeStore
	logger *zap.Logger

	mu     sync.Mutex
	byFile map[string][]string // path -> chunk IDs
}

// NewKnowledgeSyncUseCase creates a KnowledgeSyncUseCase.
func NewKnowledgeSyncUseCase(loader ports.KnowledgeLoader, store ports.KnowledgeStore, logger *zap.Logger) *KnowledgeSyncUseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KnowledgeSyncUseCase{
		loader: loader,
		store:  store,
		logger: logger,
		byFile: make(map[string][]string),
	}
}

// Supports reports whether the loader handles path.
func (uc *KnowledgeSyncUseCase) Supports(path string) bool {
	lower := strings.ToLower(path)
	for _, ext := range uc.loader.SupportedExtensions() {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// LoadFile (re)loads all chunks from path, replacing what it contributed before.
func (uc *KnowledgeSyncUseCase) LoadFile(ctx context.Context, path string) (int, error) {
	chunks, err := uc.loader.Load(ctx, path)
	if err != nil {
		return 0, fmt.Errorf("loading %s: %w", path, err)
	}

	uc.mu.Lock()
	defer uc.mu.Unlock()

	uc.removeLocked(path)
	added := uc.store.Seed(chunks)
	uc.byFile[path] = added
	if len(added) < len(chunks) {
		uc.logger.Warn("skipped duplicate chunk ids",
			zap.String("path", path),
			zap.Int("skipped", len(chunks)-len(added)),
		)
	}
	return len(added), nil
}

// LoadDir loads every supported file directly under dir. Files that fail
// to load are logged and skipped.
func (uc *KnowledgeSyncUseCase) LoadDir(ctx context.Context, dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("reading %s: %w", dir, err)
	}
	total := 0
	for _, e := range entries {
		path := filepath.Join(dir, e.Name())
		if e.IsDir() || !uc.Supports(path) {
			continue
		}
		n, err := uc.LoadFile(ctx, path)
		if err != nil {
			uc.logger.Warn("skipping knowledge file", zap.String("path", path), zap.Error(err))
			continue
		}
		total += n
	}
	return total, nil
}

// RemoveFile drops every chunk that path contributed.
func (uc *KnowledgeSyncUseCase) RemoveFile(path string) int {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	return uc.removeLocked(path)
}

func (uc *KnowledgeSyncUseCase) removeLocked(path string) int {
	removed := 0
	for _, id := range uc.byFile[path] {
		if uc.store.Remove(id) {
			removed++
		}
	}
	delete(uc.byFile, path)
	return removed
}

// HandleEvent applies one file system change.
func (uc *KnowledgeSyncUseCase) HandleEvent(ctx context.Context, ev ports.FileEvent) {
	if !uc.Supports(ev.Path) {
		return
	}
	switch ev.Operation {
	case ports.FileCreated, ports.FileModified:
		n, err := uc.LoadFile(ctx, ev.Path)
		if err != nil {
			uc.logger.Error("knowledge sync failed", zap.String("path", ev.Path), zap.Error(err))
			return
		}
		uc.logger.Info("knowledge file loaded", zap.String("path", ev.Path), zap.Int("chunks", n))
	case ports.FileDeleted:
		n := uc.RemoveFile(ev.Path)
		uc.logger.Info("knowledge file removed", zap.String("path", ev.Path), zap.Int("chunks", n))
	}
}

// Run consumes events until ctx is done or the channel closes.
func (uc *KnowledgeSyncUseCase) Run(ctx context.Context, events <-chan ports.FileEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			uc.HandleEvent(ctx, ev)
		}
	}
}
