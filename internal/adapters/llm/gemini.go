package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/0xcro3dile/ragtutor/internal/domain/entities"
	"github.com/0xcro3dile/ragtutor/internal/domain/ports"
)

// DefaultGeminiModel is used when no model is configured.
const DefaultGeminiModel = "gemini-2.5-flash"

// GeminiAdapter implements ports.ModelClient and ports.WebSearcher on the Gemini API.
type GeminiAdapter struct {
	client *genai.Client
	model  string
	logger *zap.Logger
}

var (
	_ ports.ModelClient = (*GeminiAdapter)(nil)
	_ ports.WebSearcher = (*GeminiAdapter)(nil)
)

// NewGeminiAdapter creates a Gemini client. An empty key is a configuration error.
func NewGeminiAdapter(ctx context.Context, apiKey, model string, logger *zap.Logger) (*GeminiAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("gemini API key is required")
	}
	if model == "" {
		model = DefaultGeminiModel
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	return &GeminiAdapter{client: client, model: model, logger: logger}, nil
}

// Model returns the configured model name.
func (a *GeminiAdapter) Model() string { return a.model }

// CreateSession starts a multi-turn chat with tools and system instruction fixed.
func (a *GeminiAdapter) CreateSession(ctx context.Context, cfg ports.SessionConfig) (ports.ChatSession, error) {
	chat, err := a.client.Chats.Create(ctx, a.model, chatConfig(cfg), nil)
	if err != nil {
		return nil, fmt.Errorf("creating chat: %w", err)
	}
	return &geminiSession{chat: chat}, nil
}

func chatConfig(cfg ports.SessionConfig) *genai.GenerateContentConfig {
	gc := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(cfg.Temperature),
	}
	if cfg.SystemInstruction != "" {
		gc.SystemInstruction = genai.NewContentFromText(cfg.SystemInstruction, genai.RoleUser)
	}
	if len(cfg.Tools) > 0 {
		gc.Tools = []*genai.Tool{{FunctionDeclarations: functionDeclarations(cfg.Tools)}}
	}
	return gc
}

func functionDeclarations(tools []ports.ToolDeclaration) []*genai.FunctionDeclaration {
	decls := make([]*genai.FunctionDeclaration, len(tools))
	for i, t := range tools {
		props := make(map[string]*genai.Schema, len(t.Parameters))
		var required []string
		for _, p := range t.Parameters {
			props[p.Name] = &genai.Schema{Type: genai.TypeString, Description: p.Description}
			if p.Required {
				required = append(required, p.Name)
			}
		}
		decls[i] = &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters: &genai.Schema{
				Type:       genai.TypeObject,
				Properties: props,
				Required:   required,
			},
		}
	}
	return decls
}

type geminiSession struct {
	chat *genai.Chat
}

func (s *geminiSession) Send(ctx context.Context, msg ports.Message) (ports.ModelResponse, error) {
	resp, err := s.chat.SendMessage(ctx, messageParts(msg)...)
	if err != nil {
		return ports.ModelResponse{}, err
	}
	return fromGenerateResponse(resp), nil
}

func messageParts(msg ports.Message) []genai.Part {
	if len(msg.FunctionResponses) == 0 {
		return []genai.Part{*genai.NewPartFromText(msg.Text)}
	}
	parts := make([]genai.Part, 0, len(msg.FunctionResponses))
	for _, fr := range msg.FunctionResponses {
		p := genai.NewPartFromFunctionResponse(fr.Name, fr.Response)
		p.FunctionResponse.ID = fr.ID
		parts = append(parts, *p)
	}
	return parts
}

func fromGenerateResponse(resp *genai.GenerateContentResponse) ports.ModelResponse {
	if resp == nil {
		return ports.ModelResponse{}
	}
	out := ports.ModelResponse{
		Text:    resp.Text(),
		Sources: groundingSources(resp),
	}
	for _, fc := range resp.FunctionCalls() {
		if fc == nil {
			continue
		}
		out.FunctionCalls = append(out.FunctionCalls, ports.FunctionCall{
			ID:   fc.ID,
			Name: fc.Name,
			Args: fc.Args,
		})
	}
	if resp.UsageMetadata != nil {
		out.Tokens = resp.UsageMetadata.TotalTokenCount
	}
	return out
}

func groundingSources(resp *genai.GenerateContentResponse) []entities.GroundingSource {
	if len(resp.Candidates) == 0 || resp.Candidates[0] == nil || resp.Candidates[0].GroundingMetadata == nil {
		return nil
	}
	var sources []entities.GroundingSource
	seen := make(map[string]bool)
	for _, gc := range resp.Candidates[0].GroundingMetadata.GroundingChunks {
		if gc == nil || gc.Web == nil || gc.Web.URI == "" || seen[gc.Web.URI] {
			continue
		}
		seen[gc.Web.URI] = true
		title := gc.Web.Title
		if title == "" {
			title = gc.Web.URI
		}
		sources = append(sources, entities.GroundingSource{Title: title, URL: gc.Web.URI})
	}
	return sources
}

// Search runs a one-shot generation grounded with Google Search.
func (a *GeminiAdapter) Search(ctx context.Context, query string) (entities.SearchWebResult, error) {
	query = strings.TrimSpace(query)
	resp, err := a.client.Models.GenerateContent(ctx, a.model, genai.Text(query), &genai.GenerateContentConfig{
		Tools: []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}},
	})
	if err != nil {
		return entities.SearchWebResult{}, fmt.Errorf("grounded search: %w", err)
	}

	result := entities.SearchWebResult{
		Summary: resp.Text(),
		Sources: groundingSources(resp),
	}
	a.logger.Debug("web search",
		zap.String("query", query),
		zap.Int("sources", len(result.Sources)),
	)
	return result, nil
}
