package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xcro3dile/ragtutor/internal/domain/entities"
	"github.com/0xcro3dile/ragtutor/internal/domain/usecases"
)

// fakeAgent implements ChatAgent.
type fakeAgent struct {
	sendErr  error
	resetErr error
	lastText string
	messages []entities.ChatMessage
}

func (f *fakeAgent) SendMessage(ctx context.Context, text string) (entities.ChatMessage, error) {
	if f.sendErr != nil {
		return entities.ChatMessage{}, f.sendErr
	}
	f.lastText = text
	msg := entities.ChatMessage{ID: "m1", Role: entities.RoleAssistant, Content: "answer"}
	f.messages = append(f.messages, msg)
	return msg, nil
}

func (f *fakeAgent) Messages() []entities.ChatMessage { return f.messages }

func (f *fakeAgent) Trace() []entities.TraceStep {
	return []entities.TraceStep{{ID: "s1", Type: entities.StepInput}, {ID: "s2", Type: entities.StepOutput}}
}

func (f *fakeAgent) ActiveNode() entities.ActiveNode { return entities.NodeObservability }
func (f *fakeAgent) Phase() string                   { return "done" }
func (f *fakeAgent) Busy() bool                      { return false }
func (f *fakeAgent) HasSession() bool                { return true }
func (f *fakeAgent) Reset() error                    { return f.resetErr }

func newTestServer(t *testing.T, agent *fakeAgent, apiKey string) (*httptest.Server, *usecases.ConfigStore) {
	t.Helper()
	cfg, err := usecases.NewConfigStoreFromPreset(usecases.PresetSenior)
	require.NoError(t, err)

	srv := NewServer(Options{
		Agent:         agent,
		Config:        cfg,
		Metrics:       http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("# metrics")) }),
		KnowledgeSize: func() int { return 10 },
		APIKey:        apiKey,
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, cfg
}

func doJSON(t *testing.T, method, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	if resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp, out
}

func TestServer_Chat(t *testing.T) {
	agent := &fakeAgent{}
	ts, _ := newTestServer(t, agent, "")

	resp, body := doJSON(t, http.MethodPost, ts.URL+"/api/chat", `{"message":"What is RAG?"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "What is RAG?", agent.lastText)
	assert.Equal(t, "answer", body["message"].(map[string]any)["content"])
	assert.Len(t, body["trace"], 2)
	assert.Equal(t, "observability", body["activeNode"])

	resp, body = doJSON(t, http.MethodGet, ts.URL+"/api/messages", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["messages"], 1)
}

func TestServer_ChatErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		body   string
		status int
	}{
		{"bad json", nil, `{`, http.StatusBadRequest},
		{"empty", usecases.ErrEmptyMessage, `{"message":""}`, http.StatusBadRequest},
		{"busy", usecases.ErrTurnInProgress, `{"message":"hi"}`, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts, _ := newTestServer(t, &fakeAgent{sendErr: tt.err}, "")
			resp, body := doJSON(t, http.MethodPost, ts.URL+"/api/chat", tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestServer_Config(t *testing.T) {
	ts, store := newTestServer(t, &fakeAgent{}, "")

	resp, body := doJSON(t, http.MethodGet, ts.URL+"/api/config", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "parent-doc", body["retrievalStrategy"])

	resp, body = doJSON(t, http.MethodPatch, ts.URL+"/api/config", `{"topK":7,"toolsEnabled":{"deepResearch":true}}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 7.0, body["topK"])
	assert.Equal(t, 7, store.Get().TopK)
	assert.True(t, store.Get().ToolsEnabled.DeepResearch)
	assert.True(t, store.Get().ToolsEnabled.WebSearch, "unpatched tool flags are kept")

	resp, _ = doJSON(t, http.MethodPatch, ts.URL+"/api/config", `{"maxSteps":0}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, 7, store.Get().TopK, "rejected patch leaves config unchanged")

	resp, _ = doJSON(t, http.MethodPatch, ts.URL+"/api/config", `{"bogus":1}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = doJSON(t, http.MethodPost, ts.URL+"/api/config/presets/junior", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "naive", body["retrievalStrategy"])

	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/api/config/presets/intern", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = doJSON(t, http.MethodGet, ts.URL+"/api/config/presets", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []any{"junior", "senior", "superego"}, body["presets"])
}

func TestServer_StatusTracesReset(t *testing.T) {
	ts, _ := newTestServer(t, &fakeAgent{}, "")

	resp, body := doJSON(t, http.MethodGet, ts.URL+"/api/status", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 10.0, body["knowledgeChunks"])
	assert.Equal(t, true, body["hasSession"])
	assert.Equal(t, "done", body["phase"])

	resp, body = doJSON(t, http.MethodGet, ts.URL+"/api/traces", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["steps"], 2)

	resp, _ = doJSON(t, http.MethodDelete, ts.URL+"/api/messages", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	busy, _ := newTestServer(t, &fakeAgent{resetErr: usecases.ErrTurnInProgress}, "")
	resp, _ = doJSON(t, http.MethodDelete, busy.URL+"/api/messages", "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestServer_BearerAuth(t *testing.T) {
	ts, _ := newTestServer(t, &fakeAgent{}, "secret")

	resp, _ := doJSON(t, http.MethodGet, ts.URL+"/api/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode, "health is public")

	resp, _ = doJSON(t, http.MethodGet, ts.URL+"/api/config", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/config", nil)
	req.Header.Set("Authorization", "Bearer secret")
	authed, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	authed.Body.Close()
	assert.Equal(t, http.StatusOK, authed.StatusCode)
}

func TestServer_MetricsAndCORS(t *testing.T) {
	ts, _ := newTestServer(t, &fakeAgent{}, "secret")

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/api/chat", nil)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}
