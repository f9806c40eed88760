// Package llm provides model adapters implementing ports.ModelClient.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/0xcro3dile/ragtutor/internal/domain/ports"
)

// OllamaAdapter implements ports.ModelClient using Ollama's chat API with tools.
type OllamaAdapter struct {
	baseURL string
	model   string
	client  *http.Client
}

var _ ports.ModelClient = (*OllamaAdapter)(nil)

// NewOllamaAdapter creates a new Ollama chat adapter.
func NewOllamaAdapter(baseURL, model string) *OllamaAdapter {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "llama3.2"
	}
	return &OllamaAdapter{
		baseURL: baseURL,
		model:   model,
		client: &http.Client{
			Timeout: 300 * time.Second, // Local models can be slow
		},
	}
}

// ollamaMessage is one entry of the chat history.
type ollamaMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	ToolCalls []ollamaToolCall `json:"tool_calls,omitempty"`
	ToolName  string           `json:"tool_name,omitempty"`
}

type ollamaToolCall struct {
	Function ollamaFunctionCall `json:"function"`
}

type ollamaFunctionCall struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

type ollamaTool struct {
	Type     string         `json:"type"`
	Function ollamaFunction `json:"function"`
}

type ollamaFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ollamaChatRequest is the Ollama chat API request.
type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Tools    []ollamaTool    `json:"tools,omitempty"`
	Stream   bool            `json:"stream"`
	Options  map[string]any  `json:"options,omitempty"`
}

// ollamaChatResponse is the Ollama chat API response.
type ollamaChatResponse struct {
	Message         ollamaMessage `json:"message"`
	Done            bool          `json:"done"`
	PromptEvalCount int32         `json:"prompt_eval_count"`
	EvalCount       int32         `json:"eval_count"`
}

// CreateSession starts a conversation. No request is made until the first Send.
func (a *OllamaAdapter) CreateSession(ctx context.Context, cfg ports.SessionConfig) (ports.ChatSession, error) {
	s := &ollamaSession{
		adapter:     a,
		tools:       ollamaTools(cfg.Tools),
		temperature: cfg.Temperature,
	}
	if cfg.SystemInstruction != "" {
		s.history = append(s.history, ollamaMessage{Role: "system", Content: cfg.SystemInstruction})
	}
	return s, nil
}

func ollamaTools(decls []ports.ToolDeclaration) []ollamaTool {
	tools := make([]ollamaTool, len(decls))
	for i, d := range decls {
		props := make(map[string]any, len(d.Parameters))
		required := []string{}
		for _, p := range d.Parameters {
			props[p.Name] = map[string]any{"type": "string", "description": p.Description}
			if p.Required {
				required = append(required, p.Name)
			}
		}
		tools[i] = ollamaTool{
			Type: "function",
			Function: ollamaFunction{
				Name:        d.Name,
				Description: d.Description,
				Parameters: map[string]any{
					"type":       "object",
					"properties": props,
					"required":   required,
				},
			},
		}
	}
	return tools
}

// ollamaSession keeps the history client-side; Ollama is stateless.
type ollamaSession struct {
	adapter     *OllamaAdapter
	tools       []ollamaTool
	temperature float32

	mu      sync.Mutex
	history []ollamaMessage
	calls   int
}

func (s *ollamaSession) Send(ctx context.Context, msg ports.Message) (ports.ModelResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending := append([]ollamaMessage(nil), s.history...)
	if len(msg.FunctionResponses) == 0 {
		pending = append(pending, ollamaMessage{Role: "user", Content: msg.Text})
	}
	for _, fr := range msg.FunctionResponses {
		content, err := json.Marshal(fr.Response)
		if err != nil {
			return ports.ModelResponse{}, fmt.Errorf("encoding tool result: %w", err)
		}
		pending = append(pending, ollamaMessage{Role: "tool", Content: string(content), ToolName: fr.Name})
	}

	reqBody := ollamaChatRequest{
		Model:    s.adapter.model,
		Messages: pending,
		Tools:    s.tools,
		Stream:   false,
		Options:  map[string]any{"temperature": s.temperature},
	}
	chatResp, err := s.adapter.chat(ctx, reqBody)
	if err != nil {
		return ports.ModelResponse{}, err
	}

	// History only advances on success
	s.history = append(pending, chatResp.Message)

	out := ports.ModelResponse{
		Text:   chatResp.Message.Content,
		Tokens: chatResp.PromptEvalCount + chatResp.EvalCount,
	}
	for _, tc := range chatResp.Message.ToolCalls {
		s.calls++
		out.FunctionCalls = append(out.FunctionCalls, ports.FunctionCall{
			ID:   fmt.Sprintf("ollama-call-%d", s.calls),
			Name: tc.Function.Name,
			Args: tc.Function.Arguments,
		})
	}
	return out, nil
}

func (a *OllamaAdapter) chat(ctx context.Context, reqBody ollamaChatRequest) (*ollamaChatResponse, error) {
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/api/chat", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling Ollama: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("Ollama returned status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	var chatResp ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return &chatResp, nil
}
