package usecases

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xcro3dile/ragtutor/internal/domain/entities"
)

func TestTraceRecorder_RecordStampsAndOrders(t *testing.T) {
	fixed := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	r := NewTraceRecorder()
	r.now = func() time.Time { return fixed }

	first := r.Record(entities.TraceStep{Type: entities.StepInput, Content: "hi"})
	second := r.Record(entities.TraceStep{Type: entities.StepOutput, Content: "bye"})

	assert.NotEmpty(t, first.ID)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, fixed, first.Timestamp)

	steps := r.Steps()
	require.Len(t, steps, 2)
	assert.Equal(t, entities.StepInput, steps[0].Type)
	assert.Equal(t, entities.StepOutput, steps[1].Type)
	assert.Equal(t, 2, r.Len())
}

func TestTraceRecorder_CopiesAreIsolated(t *testing.T) {
	r := NewTraceRecorder()
	meta := map[string]any{"tool": "retrieve_chunks"}
	r.Record(entities.TraceStep{Type: entities.StepToolExecution, Metadata: meta})

	meta["tool"] = "changed"
	steps := r.Steps()
	assert.Equal(t, "retrieve_chunks", steps[0].Metadata["tool"])

	steps[0].Content = "mutated"
	assert.Empty(t, r.Steps()[0].Content)
}

func TestTraceRecorder_Clear(t *testing.T) {
	r := NewTraceRecorder()
	r.Record(entities.TraceStep{Type: entities.StepInput})
	r.Clear()
	assert.Zero(t, r.Len())
	assert.Empty(t, r.Steps())
}
