package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/lokutor-ai/assist-core/pkg/analysis"
	"github.com/lokutor-ai/assist-core/pkg/bus"
	ctxstore "github.com/lokutor-ai/assist-core/pkg/context"
	"github.com/lokutor-ai/assist-core/pkg/logging"
	"github.com/lokutor-ai/assist-core/pkg/response"
	"github.com/lokutor-ai/assist-core/pkg/transcription"
)

// Manager owns the process-wide collaborators (context store, analysis
// engine, response generator, event bus) and the sessions table, handing
// each session its own Pipeline (spec.md §5 "Session creation and
// teardown occur under a sessions-table lock", grounded on the teacher's
// Orchestrator, which plays the equivalent role for ManagedStreams).
type Manager struct {
	transport transcription.Transport
	deps      Deps
	logger    logging.Logger

	mu       sync.RWMutex
	sessions map[string]*Pipeline
}

// NewManager wires a Manager from the shared engine/store/generator that
// cmd/assistant constructs once at startup.
func NewManager(transport transcription.Transport, ctxStore *ctxstore.Store, engine *analysis.Engine, gen *response.Generator, eventBus *bus.Bus, logger logging.Logger) *Manager {
	if logger == nil {
		logger = logging.NoOp{}
	}
	return &Manager{
		transport: transport,
		deps: Deps{
			ContextStore: ctxStore,
			Engine:       engine,
			Generator:    gen,
			Bus:          eventBus,
			Logger:       logger,
		},
		logger:   logger,
		sessions: make(map[string]*Pipeline),
	}
}

// StartSession creates a new Pipeline under sessionID (one is generated
// when empty) and registers it in the sessions table. It is an error to
// start a session id that already exists.
func (m *Manager) StartSession(ctx context.Context, sessionID string, cfg Config) (*Pipeline, error) {
	if sessionID == "" {
		sessionID = newSessionID()
	}

	m.mu.Lock()
	if _, exists := m.sessions[sessionID]; exists {
		m.mu.Unlock()
		return nil, fmt.Errorf("session %s already active", sessionID)
	}
	m.mu.Unlock()

	p, err := NewPipeline(ctx, sessionID, cfg, m.transport, m.deps)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.sessions[sessionID] = p
	m.mu.Unlock()
	return p, nil
}

// Session returns the active Pipeline for sessionID, if any.
func (m *Manager) Session(sessionID string) (*Pipeline, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.sessions[sessionID]
	return p, ok
}

// EndSession cascades Close to the named session's Pipeline and removes
// it from the sessions table (spec.md §5 cancellation cascade; the table
// mutation and the Pipeline teardown are independent locks, matching the
// spec's "ring buffer mutation is serialized per channel... session
// creation and teardown occur under a sessions-table lock" split).
func (m *Manager) EndSession(sessionID string) error {
	m.mu.Lock()
	p, ok := m.sessions[sessionID]
	if ok {
		delete(m.sessions, sessionID)
	}
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("session %s not found", sessionID)
	}
	p.Close()
	return nil
}

// ActiveSessions returns the ids currently registered.
func (m *Manager) ActiveSessions() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Shutdown ends every active session, used on process exit.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	sessions := make([]*Pipeline, 0, len(m.sessions))
	for _, p := range m.sessions {
		sessions = append(sessions, p)
	}
	m.sessions = make(map[string]*Pipeline)
	m.mu.Unlock()

	for _, p := range sessions {
		p.Close()
	}
}
