package usecases

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/0xcro3dile/ragtutor/internal/domain/entities"
	"github.com/0xcro3dile/ragtutor/internal/domain/ports"
)

var (
	// ErrTurnInProgress is returned when a message arrives while a turn is running.
	ErrTurnInProgress = errors.New("a turn is already in progress")

	// ErrEmptyMessage is returned for blank user input.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrMissingCredential marks a model client that could not be configured.
	ErrMissingCredential = errors.New("missing model API key")
)

const (
	// DefaultModelTimeout bounds a single model call.
	DefaultModelTimeout = 30 * time.Second

	// DefaultTemperature is used when none is configured.
	DefaultTemperature float32 = 0.7
)

const (
	missingKeyMessage = "The assistant is not configured: missing model API key. Set GEMINI_API_KEY (or MODEL_PROVIDER=ollama) and restart the server."
	authErrorMessage  = "The model rejected the API key (invalid, expired or revoked). Rotate the credential in GEMINI_API_KEY and try again."
	timeoutMessage    = "The request timed out before the assistant could finish. Please try again."
	skippedToolReply  = "Only one tool call is executed per step. Request it again if it is still needed."
)

var authErrorPatterns = []string{
	"api key not valid",
	"api_key_invalid",
	"permission_denied",
	"401",
	"403",
	"expired",
	"unauthenticated",
}

// AgentDeps are the collaborators of an Agent.
type AgentDeps struct {
	Model        ports.ModelClient // nil means no credential was configured
	Tools        *ToolDispatcher
	Config       *ConfigStore
	Trace        *TraceRecorder
	Observer     ports.LoopObserver
	Logger       *zap.Logger
	Temperature  float32 // passed to every session as is
	ModelTimeout time.Duration
}

// Agent runs the tool-use loop for one conversation.
type Agent struct {
	model        ports.ModelClient
	tools        *ToolDispatcher
	config       *ConfigStore
	trace        *TraceRecorder
	observer     ports.LoopObserver
	logger       *zap.Logger
	temperature  float32
	modelTimeout time.Duration

	turn sync.Mutex // held for the whole turn

	mu         sync.RWMutex
	session    SessionState
	messages   []entities.ChatMessage
	activeNode entities.ActiveNode
	machine    *turnMachine // current or last turn
}

// NewAgent wires an agent and subscribes it to configuration changes.
func NewAgent(deps AgentDeps) *Agent {
	if deps.Trace == nil {
		deps.Trace = NewTraceRecorder()
	}
	if deps.Observer == nil {
		deps.Observer = ports.NopObserver{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.ModelTimeout <= 0 {
		deps.ModelTimeout = DefaultModelTimeout
	}

	a := &Agent{
		model:        deps.Model,
		tools:        deps.Tools,
		config:       deps.Config,
		trace:        deps.Trace,
		observer:     deps.Observer,
		logger:       deps.Logger,
		temperature:  deps.Temperature,
		modelTimeout: deps.ModelTimeout,
		activeNode:   entities.NodeUser,
	}
	deps.Config.Subscribe(func(change ConfigChange) {
		a.applySessionEvent(SessionEvent{Kind: EventConfigChanged, Change: change})
	})
	return a
}

// Messages returns a copy of the conversation.
func (a *Agent) Messages() []entities.ChatMessage {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]entities.ChatMessage, len(a.messages))
	copy(out, a.messages)
	return out
}

// Trace returns the steps of the current or last turn.
func (a *Agent) Trace() []entities.TraceStep {
	return a.trace.Steps()
}

// ActiveNode returns the component currently working.
func (a *Agent) ActiveNode() entities.ActiveNode {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.activeNode
}

// Phase returns the state machine phase of the current or last turn.
func (a *Agent) Phase() string {
	a.mu.RLock()
	m := a.machine
	a.mu.RUnlock()
	if m == nil {
		return StateIdle
	}
	return m.current()
}

// Busy reports whether a turn is running.
func (a *Agent) Busy() bool {
	if a.turn.TryLock() {
		a.turn.Unlock()
		return false
	}
	return true
}

// HasSession reports whether a live session exists.
func (a *Agent) HasSession() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.session.IsActive()
}

// Reset drops the conversation, trace and session.
func (a *Agent) Reset() error {
	if !a.turn.TryLock() {
		return ErrTurnInProgress
	}
	defer a.turn.Unlock()

	a.trace.Clear()
	a.mu.Lock()
	a.messages = nil
	a.session = Absent
	a.activeNode = entities.NodeUser
	a.machine = nil
	a.mu.Unlock()
	return nil
}

// turnState is the per-turn bookkeeping.
type turnState struct {
	machine *turnMachine
	session SessionState
	cfg     entities.AgentConfiguration
	started time.Time
	steps   int
	sources []entities.GroundingSource
}

// SendMessage runs one full turn and returns the assistant message that ended it.
// Model and tool failures end the turn with an error message rather than an error;
// only rejected input is returned as an error.
func (a *Agent) SendMessage(ctx context.Context, text string) (entities.ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return entities.ChatMessage{}, ErrEmptyMessage
	}
	if !a.turn.TryLock() {
		return entities.ChatMessage{}, ErrTurnInProgress
	}
	defer a.turn.Unlock()
	defer a.setActiveNode(entities.NodeObservability)

	ts := &turnState{
		machine: newTurnMachine(a.logger),
		started: time.Now(),
	}
	a.mu.Lock()
	a.machine = ts.machine
	a.mu.Unlock()

	a.trace.Clear()
	a.trace.Record(entities.TraceStep{Name: "User Input", Type: entities.StepInput, Content: text})
	a.appendMessage(entities.RoleUser, text, false, nil)
	a.setActiveNode(entities.NodeUser)

	if a.model == nil {
		a.trace.Record(entities.TraceStep{
			Name:    "Configuration Error",
			Type:    entities.StepError,
			Content: ErrMissingCredential.Error(),
		})
		a.settle(ctx, ts, EventFailed)
		a.observer.TurnFinished(ports.OutcomeConfigError, 0, time.Since(ts.started).Milliseconds())
		return a.appendMessage(entities.RoleAssistant, missingKeyMessage, true, nil), nil
	}

	session, cfg, err := a.ensureSession(ctx)
	if err != nil {
		return a.fail(ctx, ts, fmt.Errorf("creating session: %w", err)), nil
	}
	ts.session = session
	ts.cfg = cfg

	if err := ts.machine.fire(ctx, EventStart); err != nil {
		return a.fail(ctx, ts, err), nil
	}
	a.setActiveNode(entities.NodeAgent)
	resp, latency, err := a.send(ctx, session.Chat(), ports.UserText(text))
	if err != nil {
		return a.fail(ctx, ts, err), nil
	}

	for {
		if err := ts.machine.fire(ctx, EventModelResponded); err != nil {
			return a.fail(ctx, ts, err), nil
		}
		ts.sources = mergeSources(ts.sources, resp.Sources)

		if len(resp.FunctionCalls) == 0 {
			if err := ts.machine.fire(ctx, EventAnswered); err != nil {
				return a.fail(ctx, ts, err), nil
			}
			return a.answer(ts, resp, latency), nil
		}

		call := resp.FunctionCalls[0]
		a.recordReasoning(resp, latency)

		ts.steps++
		if ts.steps > cfg.MaxSteps {
			if err := ts.machine.fire(ctx, EventHalted); err != nil {
				return a.fail(ctx, ts, err), nil
			}
			return a.halt(ts, resp), nil
		}

		if err := ts.machine.fire(ctx, EventToolRequested); err != nil {
			return a.fail(ctx, ts, err), nil
		}
		payload, err := a.executeTool(ctx, ts, call)
		if err != nil {
			return a.fail(ctx, ts, err), nil
		}
		if err := ts.machine.fire(ctx, EventToolCompleted); err != nil {
			return a.fail(ctx, ts, err), nil
		}

		responses := []ports.FunctionResponse{{ID: call.ID, Name: call.Name, Response: payload}}
		for _, extra := range resp.FunctionCalls[1:] {
			responses = append(responses, ports.FunctionResponse{
				ID:       extra.ID,
				Name:     extra.Name,
				Response: map[string]any{"status": "skipped", "message": skippedToolReply},
			})
		}

		a.setActiveNode(entities.NodeAgent)
		resp, latency, err = a.send(ctx, session.Chat(), ports.Message{FunctionResponses: responses})
		if err != nil {
			return a.fail(ctx, ts, err), nil
		}
	}
}

// ensureSession returns the live session, creating one from the current configuration if absent.
// The session lock is held across creation so a concurrent config change lands after it.
func (a *Agent) ensureSession(ctx context.Context) (SessionState, entities.AgentConfiguration, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	cfg := a.config.Get()
	if a.session.IsActive() {
		return a.session, cfg, nil
	}

	sc := ports.SessionConfig{
		SystemInstruction: BuildSystemInstruction(cfg),
		Tools:             a.tools.Declarations(cfg),
		Temperature:       a.temperature,
	}
	chat, err := a.model.CreateSession(ctx, sc)
	if err != nil {
		return Absent, cfg, err
	}
	a.session = Active(chat, sc)
	a.logger.Info("chat session created",
		zap.String("style", string(cfg.ResponseStyle)),
		zap.Int("tools", len(sc.Tools)),
	)
	return a.session, cfg, nil
}

func (a *Agent) applySessionEvent(ev SessionEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	next := NextSessionState(a.session, ev)
	if a.session.IsActive() && !next.IsActive() {
		a.logger.Info("chat session invalidated", zap.Int("event", int(ev.Kind)))
	}
	a.session = next
}

// send calls the model with the per-call timeout.
func (a *Agent) send(ctx context.Context, chat ports.ChatSession, msg ports.Message) (ports.ModelResponse, int64, error) {
	callCtx, cancel := context.WithTimeout(ctx, a.modelTimeout)
	defer cancel()

	start := time.Now()
	resp, err := chat.Send(callCtx, msg)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return ports.ModelResponse{}, latency, fmt.Errorf("model call: %w", err)
	}
	return resp, latency, nil
}

func (a *Agent) recordReasoning(resp ports.ModelResponse, latency int64) {
	names := make([]string, len(resp.FunctionCalls))
	for i, fc := range resp.FunctionCalls {
		names[i] = fc.Name
	}

	content := strings.TrimSpace(resp.Text)
	if content == "" {
		content = fmt.Sprintf("Decided to call %s.", names[0])
	}
	meta := map[string]any{"toolCalls": names}
	if len(names) > 1 {
		meta["skipped"] = names[1:]
		a.logger.Warn("model requested several tool calls; executing the first",
			zap.Strings("tools", names),
		)
	}

	step := entities.TraceStep{
		Name:      "Agent Reasoning",
		Type:      entities.StepReasoning,
		Content:   content,
		LatencyMs: int64Ptr(latency),
		Metadata:  meta,
	}
	if resp.Tokens > 0 {
		step.Tokens = int32Ptr(resp.Tokens)
	}
	a.trace.Record(step)
}

// executeTool runs one call and records the paired trace steps. Model mistakes
// (unknown tool, bad arguments) are returned to the model as error payloads;
// transport failures are returned as errors.
func (a *Agent) executeTool(ctx context.Context, ts *turnState, call ports.FunctionCall) (map[string]any, error) {
	a.setActiveNode(nodeForTool(call.Name))
	a.trace.Record(entities.TraceStep{
		Name:     call.Name,
		Type:     entities.StepToolExecution,
		Content:  renderJSON(call.Args),
		Metadata: map[string]any{"tool": call.Name, "args": call.Args},
	})

	start := time.Now()
	result, err := a.tools.DispatchNamed(ctx, ts.cfg, call.Name, call.Args)
	latency := time.Since(start).Milliseconds()
	a.observer.ToolExecuted(call.Name, latency, err)

	if err != nil && (errors.Is(err, entities.ErrUnknownTool) || errors.Is(err, entities.ErrInvalidToolArgs)) {
		a.logger.Warn("invalid tool call from model", zap.String("tool", call.Name), zap.Error(err))
		result, err = entities.ToolErrorResult{Message: err.Error()}, nil
	}
	if err != nil {
		a.trace.Record(entities.TraceStep{
			Name:      call.Name,
			Type:      entities.StepToolResult,
			Content:   renderJSON(entities.ToolErrorResult{Message: err.Error()}.Payload()),
			LatencyMs: int64Ptr(latency),
			Metadata:  map[string]any{"tool": call.Name, "error": true},
		})
		return nil, fmt.Errorf("tool %s: %w", call.Name, err)
	}

	if web, ok := result.(entities.SearchWebResult); ok {
		ts.sources = mergeSources(ts.sources, web.Sources)
	}

	payload := result.Payload()
	a.trace.Record(entities.TraceStep{
		Name:      call.Name,
		Type:      entities.StepToolResult,
		Content:   renderJSON(payload),
		LatencyMs: int64Ptr(latency),
		Metadata:  map[string]any{"tool": call.Name},
	})
	return payload, nil
}

func (a *Agent) answer(ts *turnState, resp ports.ModelResponse, latency int64) entities.ChatMessage {
	a.setActiveNode(entities.NodeSummarizer)

	step := entities.TraceStep{
		Name:      "Final Answer",
		Type:      entities.StepOutput,
		Content:   resp.Text,
		LatencyMs: int64Ptr(latency),
	}
	if resp.Tokens > 0 {
		step.Tokens = int32Ptr(resp.Tokens)
	}
	if len(ts.sources) > 0 {
		step.Metadata = map[string]any{"sources": len(ts.sources)}
	}
	a.trace.Record(step)

	a.observer.TurnFinished(ports.OutcomeAnswered, ts.steps, time.Since(ts.started).Milliseconds())
	return a.appendMessage(entities.RoleAssistant, resp.Text, false, ts.sources)
}

func (a *Agent) halt(ts *turnState, resp ports.ModelResponse) entities.ChatMessage {
	executed := ts.steps - 1
	a.trace.Record(entities.TraceStep{
		Name:    "Safety Limit",
		Type:    entities.StepReasoning,
		Content: fmt.Sprintf("Safety limit reached: stopped after %d tool steps (maxSteps=%d).", executed, ts.cfg.MaxSteps),
		Metadata: map[string]any{
			entities.MetaHalted: true,
			"steps":             executed,
			"maxSteps":          ts.cfg.MaxSteps,
		},
	})
	a.logger.Warn("turn halted at step limit", zap.Int("max_steps", ts.cfg.MaxSteps))

	content := strings.TrimSpace(resp.Text)
	if content == "" {
		content = fmt.Sprintf("I stopped after %d research steps without reaching a final answer. Try a narrower question or raise maxSteps.", executed)
	}

	a.observer.TurnFinished(ports.OutcomeHalted, executed, time.Since(ts.started).Milliseconds())
	return a.appendMessage(entities.RoleAssistant, content, false, ts.sources)
}

func (a *Agent) fail(ctx context.Context, ts *turnState, err error) entities.ChatMessage {
	a.logger.Error("turn failed", zap.Error(err))
	a.trace.Record(entities.TraceStep{
		Name:    "Error",
		Type:    entities.StepError,
		Content: err.Error(),
	})
	a.applySessionEvent(SessionEvent{Kind: EventTurnFailed, Used: ts.session})

	a.settle(ctx, ts, EventFailed)
	a.observer.TurnFinished(ports.OutcomeFailed, ts.steps, time.Since(ts.started).Milliseconds())
	return a.appendMessage(entities.RoleAssistant, userFacingError(err), true, nil)
}

// settle moves an unfinished turn to its terminal state.
func (a *Agent) settle(ctx context.Context, ts *turnState, event string) {
	if ts.machine.finished() {
		return
	}
	if err := ts.machine.fire(ctx, event); err != nil {
		a.logger.Error("settling turn", zap.Error(err))
	}
}

// userFacingError turns a failure into chat text. Credential problems get their own remedy.
func userFacingError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return timeoutMessage
	}
	if IsAuthError(err) {
		return authErrorMessage
	}
	return "Something went wrong while answering: " + err.Error()
}

// IsAuthError reports whether err looks like a rejected credential.
func IsAuthError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, p := range authErrorPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

func nodeForTool(name string) entities.ActiveNode {
	if name == entities.ToolRetrieveChunks {
		return entities.NodeVectorDB
	}
	return entities.NodeRetriever
}

func (a *Agent) appendMessage(role entities.Role, content string, isError bool, sources []entities.GroundingSource) entities.ChatMessage {
	msg := entities.ChatMessage{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		IsError:   isError,
		Sources:   append([]entities.GroundingSource(nil), sources...),
		Timestamp: time.Now(),
	}
	a.mu.Lock()
	a.messages = append(a.messages, msg)
	a.mu.Unlock()
	return msg
}

func (a *Agent) setActiveNode(node entities.ActiveNode) {
	a.mu.Lock()
	a.activeNode = node
	a.mu.Unlock()
}

func mergeSources(dst, src []entities.GroundingSource) []entities.GroundingSource {
	for _, s := range src {
		dup := false
		for _, d := range dst {
			if d.URL == s.URL {
				dup = true
				break
			}
		}
		if !dup {
			dst = append(dst, s)
		}
	}
	return dst
}

func renderJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
