package usecases

import (
	"github.com/0xcro3dile/ragtutor/internal/domain/ports"
)

// SessionState is either absent or holds a live chat session.
// The zero value is absent.
type SessionState struct {
	handle *sessionHandle
}

// sessionHandle identifies one created session. Handles compare by pointer.
type sessionHandle struct {
	chat ports.ChatSession
	cfg  ports.SessionConfig
}

// Absent is the state with no live session.
var Absent = SessionState{}

// Active wraps a live session.
func Active(chat ports.ChatSession, cfg ports.SessionConfig) SessionState {
	return SessionState{handle: &sessionHandle{chat: chat, cfg: cfg}}
}

// IsActive reports whether a session is live.
func (s SessionState) IsActive() bool { return s.handle != nil }

// Chat returns the live session, or nil when absent.
func (s SessionState) Chat() ports.ChatSession {
	if s.handle == nil {
		return nil
	}
	return s.handle.chat
}

// Same reports whether two states refer to the same session.
func (s SessionState) Same(other SessionState) bool {
	return s.handle != nil && s.handle == other.handle
}

// SessionEventKind classifies events that may end a session.
type SessionEventKind int

const (
	// EventConfigChanged is a configuration update.
	EventConfigChanged SessionEventKind = iota
	// EventTurnFailed is a model or transport failure during a turn.
	EventTurnFailed
)

// SessionEvent drives session transitions.
type SessionEvent struct {
	Kind   SessionEventKind
	Change ConfigChange // for EventConfigChanged
	Used   SessionState // for EventTurnFailed: the session the failed turn ran on
}

// NextSessionState is the pure session transition function.
// Session-relevant config changes discard the session; a failed turn discards
// it only if it is still the one the turn used.
func NextSessionState(state SessionState, ev SessionEvent) SessionState {
	switch ev.Kind {
	case EventConfigChanged:
		if ev.Change.SessionRelevant() {
			return Absent
		}
	case EventTurnFailed:
		if state.Same(ev.Used) {
			return Absent
		}
	}
	return state
}
