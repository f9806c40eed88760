// Package ports defines interfaces for external dependencies.
// Usecases depend on these abstractions; adapters implement them.
package ports

import (
	"context"

	"github.com/0xcro3dile/ragtutor/internal/domain/entities"
)

// ModelClient opens conversational sessions with a tool-calling language model.
type ModelClient interface {
	// CreateSession starts a chat whose system instruction and tools are fixed for its lifetime.
	CreateSession(ctx context.Context, cfg SessionConfig) (ChatSession, error)
}

// SessionConfig is frozen into a session when it is created.
type SessionConfig struct {
	SystemInstruction string
	Tools             []ToolDeclaration
	Temperature       float32
}

// ToolDeclaration describes a callable tool to the model.
type ToolDeclaration struct {
	Name        string
	Description string
	Parameters  []ToolParameter
}

// ToolParameter is a single string-typed argument of a tool.
type ToolParameter struct {
	Name        string
	Description string
	Required    bool
}

// ChatSession is a live multi-turn conversation. Implementations keep the history.
type ChatSession interface {
	Send(ctx context.Context, msg Message) (ModelResponse, error)
}

// Message is either user text or one or more function responses.
type Message struct {
	Text              string
	FunctionResponses []FunctionResponse
}

// UserText builds a text message.
func UserText(text string) Message {
	return Message{Text: text}
}

// FunctionResponse returns a tool result to the model.
type FunctionResponse struct {
	ID       string
	Name     string
	Response map[string]any
}

// FunctionCall is a tool invocation requested by the model.
type FunctionCall struct {
	ID   string
	Name string
	Args map[string]any
}

// ModelResponse is one model reply.
type ModelResponse struct {
	Text          string
	FunctionCalls []FunctionCall
	Sources       []entities.GroundingSource
	Tokens        int32
}

// WebSearcher performs a grounded live web search.
type WebSearcher interface {
	Search(ctx context.Context, query string) (entities.SearchWebResult, error)
}

// WebFetcher crawls a URL into clean text.
type WebFetcher interface {
	Crawl(ctx context.Context, url string) (entities.WebPage, error)
}

// KnowledgeStore is the searchable knowledge base.
type KnowledgeStore interface {
	// Search scores every chunk against query and returns at most topK hits
	// whose Content has been transformed by strategy.
	Search(ctx context.Context, query string, topK int, strategy entities.RetrievalStrategy, minScore float64) []entities.KnowledgeChunk

	// Add stores a new chunk under a fresh ID and returns it.
	Add(ctx context.Context, chunk entities.KnowledgeChunk) entities.KnowledgeChunk

	// FindByURL returns a stored chunk crawled from url.
	FindByURL(url string) (entities.KnowledgeChunk, bool)

	// Seed inserts chunks with their existing IDs, skipping any already present,
	// and returns the IDs it added.
	Seed(chunks []entities.KnowledgeChunk) []string

	// Remove deletes a chunk by ID.
	Remove(id string) bool

	// Len returns the number of stored chunks.
	Len() int
}

// KnowledgePersister durably stores learned chunks.
type KnowledgePersister interface {
	Save(ctx context.Context, chunk entities.KnowledgeChunk) error
	Delete(ctx context.Context, id string) error
	LoadAll(ctx context.Context) ([]entities.KnowledgeChunk, error)
	Close() error
}

// KnowledgeLoader reads knowledge chunks from a file.
type KnowledgeLoader interface {
	Load(ctx context.Context, path string) ([]entities.KnowledgeChunk, error)

	// SupportedExtensions returns file extensions this loader handles.
	SupportedExtensions() []string
}

// FileWatcher monitors a directory for changes.
type FileWatcher interface {
	// Watch starts monitoring the directory and emits events.
	Watch(ctx context.Context, dir string) (<-chan FileEvent, error)

	// Stop stops the watcher.
	Stop() error
}

// FileEvent represents a file system change.
type FileEvent struct {
	Path      string
	Operation FileOperation
}

// FileOperation is the type of file change.
type FileOperation int

const (
	FileCreated FileOperation = iota
	FileModified
	FileDeleted
)

// TurnOutcome is how an agent turn ended.
type TurnOutcome string

const (
	OutcomeAnswered    TurnOutcome = "answered"
	OutcomeHalted      TurnOutcome = "halted"
	OutcomeFailed      TurnOutcome = "failed"
	OutcomeConfigError TurnOutcome = "config_error"
)

// LoopObserver receives loop events for metrics.
type LoopObserver interface {
	ToolExecuted(tool string, latencyMs int64, err error)
	TurnFinished(outcome TurnOutcome, steps int, latencyMs int64)
}

// NopObserver discards all events.
type NopObserver struct{}

func (NopObserver) ToolExecuted(string, int64, error)    {}
func (NopObserver) TurnFinished(TurnOutcome, int, int64) {}
