package usecases

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/0xcro3dile/ragtutor/internal/domain/entities"
)

// TraceRecorder is the append-only log of the current turn.
// The agent is the only writer; readers get copies.
type TraceRecorder struct {
	mu    sync.RWMutex
	steps []entities.TraceStep
	now   func() time.Time
}

// NewTraceRecorder creates an empty recorder.
func NewTraceRecorder() *TraceRecorder {
	return &TraceRecorder{now: time.Now}
}

// Record stamps step with an ID and timestamp and appends it.
func (r *TraceRecorder) Record(step entities.TraceStep) entities.TraceStep {
	step.ID = uuid.NewString()
	step.Timestamp = r.now()
	if step.Metadata != nil {
		step.Metadata = copyMetadata(step.Metadata)
	}

	r.mu.Lock()
	r.steps = append(r.steps, step)
	r.mu.Unlock()
	return step
}

// Clear drops all steps.
func (r *TraceRecorder) Clear() {
	r.mu.Lock()
	r.steps = nil
	r.mu.Unlock()
}

// Steps returns a copy of the recorded steps in order.
func (r *TraceRecorder) Steps() []entities.TraceStep {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]entities.TraceStep, len(r.steps))
	copy(out, r.steps)
	return out
}

// Len returns the number of recorded steps.
func (r *TraceRecorder) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.steps)
}

func copyMetadata(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func int64Ptr(v int64) *int64 { return &v }
func int32Ptr(v int32) *int32 { return &v }
