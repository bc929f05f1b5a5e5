package bus

import "time"

// EventType is the closed set of event kinds a consumer can subscribe to
// (spec §6.3).
type EventType string

const (
	AudioChunk        EventType = "AUDIO_CHUNK"
	Transcript        EventType = "TRANSCRIPT"
	DocumentProcessed EventType = "DOCUMENT_PROCESSED"
	Assistance        EventType = "ASSISTANCE"
	ToolUse           EventType = "TOOL_USE"
	ContextUpdate     EventType = "CONTEXT_UPDATE"
	MessageSent       EventType = "MESSAGE_SENT"
	ResponseReceived  EventType = "RESPONSE_RECEIVED"
	DocumentAdded     EventType = "DOCUMENT_ADDED"
	ErrorEvent        EventType = "ERROR"
	Metrics           EventType = "METRICS"
)

// Role scopes event delivery to a subscriber-declared set of roles (e.g.
// "interviewer", "support_agent"). An empty Role matches every filter.
type Role string

// Event is an immutable unit of traffic on the bus.
type Event struct {
	Type      EventType
	Data      map[string]any
	Timestamp time.Time
	Role      Role
	Metadata  map[string]any
	// SessionID scopes the event to a session; empty means process-scoped.
	SessionID string
}

// New builds an Event with Timestamp set to now.
func New(typ EventType, data map[string]any) Event {
	return Event{Type: typ, Data: data, Timestamp: time.Now()}
}

// WithSession returns a copy of e scoped to sessionID.
func (e Event) WithSession(sessionID string) Event {
	e.SessionID = sessionID
	return e
}

// WithRole returns a copy of e restricted to role.
func (e Event) WithRole(role Role) Event {
	e.Role = role
	return e
}
