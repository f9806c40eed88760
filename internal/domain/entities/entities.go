// Package entities contains core business entities.
// These are the enterprise business rules - pure domain objects with no external dependencies.
package entities

import (
	"errors"
	"fmt"
	"time"
)

// ChunkType classifies a knowledge chunk.
type ChunkType string

const (
	ChunkConcept      ChunkType = "concept"
	ChunkTechnique    ChunkType = "technique"
	ChunkArchitecture ChunkType = "architecture"
	ChunkWebKnowledge ChunkType = "web_knowledge"
)

// KnowledgeChunk represents one retrievable fact.
// Score is only set on chunks returned from a search and is never stored.
type KnowledgeChunk struct {
	ID             string    `json:"id" yaml:"id"`
	Lesson         string    `json:"lesson" yaml:"lesson"`
	Title          string    `json:"title" yaml:"title"`
	Content        string    `json:"content" yaml:"content"`
	Context        string    `json:"context,omitempty" yaml:"context"`
	ParentDocument string    `json:"parentDocument,omitempty" yaml:"parent_document"`
	Type           ChunkType `json:"type" yaml:"type"`
	Tags           []string  `json:"tags" yaml:"tags"`
	SourceURL      string    `json:"sourceUrl,omitempty" yaml:"source_url"`
	Score          float64   `json:"score,omitempty" yaml:"-"`
}

// WebPage is the normalized result of crawling a URL.
type WebPage struct {
	Title       string
	Content     string
	Description string
}

// GroundingSource is a citation returned alongside a web-search answer.
type GroundingSource struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// RetrievalStrategy selects which text field of a hit is surfaced.
type RetrievalStrategy string

const (
	StrategyNaive      RetrievalStrategy = "naive"
	StrategyParentDoc  RetrievalStrategy = "parent-doc"
	StrategyContextual RetrievalStrategy = "contextual"
)

// ResponseStyle shapes the assistant's answers.
type ResponseStyle string

const (
	StyleConcise  ResponseStyle = "concise"
	StyleDetailed ResponseStyle = "detailed"
	StyleBullets  ResponseStyle = "bullet-points"
	StyleSocratic ResponseStyle = "socratic"
)

// ToolsEnabled flags the optional external tools.
type ToolsEnabled struct {
	WebSearch    bool `json:"webSearch"`
	DeepResearch bool `json:"deepResearch"`
}

// AgentConfiguration is the user-adjustable agent state.
type AgentConfiguration struct {
	Persona           string            `json:"persona"`
	ResponseStyle     ResponseStyle     `json:"responseStyle"`
	RetrievalStrategy RetrievalStrategy `json:"retrievalStrategy"`
	TopK              int               `json:"topK"`
	MinRelevanceScore float64           `json:"minRelevanceScore"`
	MaxSteps          int               `json:"maxSteps"`
	ToolsEnabled      ToolsEnabled      `json:"toolsEnabled"`
}

// ErrInvalidConfig is returned when a configuration violates its invariants.
var ErrInvalidConfig = errors.New("invalid agent configuration")

// Validate checks enums and the step/topK bounds.
func (c AgentConfiguration) Validate() error {
	switch c.ResponseStyle {
	case StyleConcise, StyleDetailed, StyleBullets, StyleSocratic:
	default:
		return fmt.Errorf("%w: unknown response style %q", ErrInvalidConfig, c.ResponseStyle)
	}
	switch c.RetrievalStrategy {
	case StrategyNaive, StrategyParentDoc, StrategyContextual:
	default:
		return fmt.Errorf("%w: unknown retrieval strategy %q", ErrInvalidConfig, c.RetrievalStrategy)
	}
	if c.TopK < 1 {
		return fmt.Errorf("%w: topK must be >= 1, got %d", ErrInvalidConfig, c.TopK)
	}
	if c.MaxSteps < 1 {
		return fmt.Errorf("%w: maxSteps must be >= 1, got %d", ErrInvalidConfig, c.MaxSteps)
	}
	return nil
}

// ToolsPatch is a partial update of ToolsEnabled.
type ToolsPatch struct {
	WebSearch    *bool `json:"webSearch,omitempty"`
	DeepResearch *bool `json:"deepResearch,omitempty"`
}

// ConfigPatch is a partial update of AgentConfiguration. Nil fields are left unchanged.
type ConfigPatch struct {
	Persona           *string            `json:"persona,omitempty"`
	ResponseStyle     *ResponseStyle     `json:"responseStyle,omitempty"`
	RetrievalStrategy *RetrievalStrategy `json:"retrievalStrategy,omitempty"`
	TopK              *int               `json:"topK,omitempty"`
	MinRelevanceScore *float64           `json:"minRelevanceScore,omitempty"`
	MaxSteps          *int               `json:"maxSteps,omitempty"`
	ToolsEnabled      *ToolsPatch        `json:"toolsEnabled,omitempty"`
}

// Apply returns c with the patch merged in.
func (p ConfigPatch) Apply(c AgentConfiguration) AgentConfiguration {
	if p.Persona != nil {
		c.Persona = *p.Persona
	}
	if p.ResponseStyle != nil {
		c.ResponseStyle = *p.ResponseStyle
	}
	if p.RetrievalStrategy != nil {
		c.RetrievalStrategy = *p.RetrievalStrategy
	}
	if p.TopK != nil {
		c.TopK = *p.TopK
	}
	if p.MinRelevanceScore != nil {
		c.MinRelevanceScore = *p.MinRelevanceScore
	}
	if p.MaxSteps != nil {
		c.MaxSteps = *p.MaxSteps
	}
	if p.ToolsEnabled != nil {
		if p.ToolsEnabled.WebSearch != nil {
			c.ToolsEnabled.WebSearch = *p.ToolsEnabled.WebSearch
		}
		if p.ToolsEnabled.DeepResearch != nil {
			c.ToolsEnabled.DeepResearch = *p.ToolsEnabled.DeepResearch
		}
	}
	return c
}

// StepType classifies a trace step.
type StepType string

const (
	StepInput         StepType = "input"
	StepReasoning     StepType = "reasoning"
	StepToolExecution StepType = "tool_execution"
	StepToolResult    StepType = "tool_result"
	StepOutput        StepType = "output"
	StepError         StepType = "error"
)

// TraceStep is one immutable record of the loop's progress.
type TraceStep struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Type      StepType       `json:"type"`
	Content   string         `json:"content"`
	LatencyMs *int64         `json:"latencyMs,omitempty"`
	Tokens    *int32         `json:"tokens,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// MetaHalted marks the reasoning step that ends a turn at the step budget.
const MetaHalted = "halted"

// IsTerminal reports whether the step ends a turn.
func (s TraceStep) IsTerminal() bool {
	switch s.Type {
	case StepOutput, StepError:
		return true
	case StepReasoning:
		halted, _ := s.Metadata[MetaHalted].(bool)
		return halted
	}
	return false
}

// Role of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatMessage represents a conversation turn shown to the user.
type ChatMessage struct {
	ID        string            `json:"id"`
	Role      Role              `json:"role"`
	Content   string            `json:"content"`
	IsError   bool              `json:"isError,omitempty"`
	Sources   []GroundingSource `json:"sources,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// ActiveNode is the coarse status indicator polled by the UI.
type ActiveNode string

const (
	NodeUser          ActiveNode = "user"
	NodeAgent         ActiveNode = "agent"
	NodeRetriever     ActiveNode = "retriever"
	NodeVectorDB      ActiveNode = "vector_db"
	NodeSummarizer    ActiveNode = "summarizer"
	NodeObservability ActiveNode = "observability"
)
