// Package session coordinates one conversation end to end: it owns a
// session's ring buffer and transcription client, feeds stable results
// into the shared context store and analysis engine, and runs the
// response generator over whatever the analysis turns up. Nothing here
// is itself C1-C9; it is the supplementary coordinator
// original_source/src/realtime/processor.py and
// original_source/src/conversation/manager.py show but the distilled
// spec dropped (spec.md §13, grounded on the teacher's
// pkg/orchestrator.ManagedStream).
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lokutor-ai/assist-core/pkg/analysis"
	"github.com/lokutor-ai/assist-core/pkg/audio"
	"github.com/lokutor-ai/assist-core/pkg/bus"
	ctxstore "github.com/lokutor-ai/assist-core/pkg/context"
	"github.com/lokutor-ai/assist-core/pkg/logging"
	"github.com/lokutor-ai/assist-core/pkg/response"
	"github.com/lokutor-ai/assist-core/pkg/transcription"
)

// Config bundles the per-session knobs a Pipeline needs; everything else
// (store/engine/generator) is shared process-wide and injected by Manager.
type Config struct {
	Audio           audio.Config
	Transcription   transcription.Config
	RetryPolicy     transcription.RetryPolicy
	AnalysisConfig  analysis.Pipeline
	ResponseConfig  response.Config
	Role            string
}

// Pipeline is one session's coordinating goroutine tree: a RingBuffer,
// a transcription Client, and the submissions it makes into the shared
// context Store, analysis Engine, and response Generator. Generalized
// from ManagedStream, it never enters a TTS/"isSpeaking" state since this
// system has no audio-out leg (spec.md §13).
type Pipeline struct {
	id     string
	cfg    Config
	ctx    context.Context
	cancel context.CancelFunc

	ring   *audio.RingBuffer
	stt    *transcription.Client
	tstore *transcription.Store

	ctxStore *ctxstore.Store
	engine   *analysis.Engine
	gen      *response.Generator

	bus    *bus.Bus
	logger logging.Logger

	mu          sync.Mutex
	analysisGen int // invalidates stale async analysis/response callbacks after an interrupt
	interrupted bool

	events    chan Event
	closeOnce sync.Once
}

// Event is a lifecycle/result notification emitted on Pipeline.Events()
// (spec §6.3 bus events, scoped to one session).
type Event struct {
	Type      string
	SessionID string
	Data      any
}

const (
	EventTranscript = "transcript"
	EventAnalysis   = "analysis"
	EventResponse   = "response"
	EventInterrupt  = "interrupt"
	EventError      = "error"
)

// Deps are the process-wide collaborators a Pipeline submits work to;
// Manager constructs one set and shares it across every session.
type Deps struct {
	ContextStore *ctxstore.Store
	Engine       *analysis.Engine
	Generator    *response.Generator
	Bus          *bus.Bus
	Logger       logging.Logger
}

// NewPipeline constructs a Pipeline bound to sessionID and starts its
// transcription stream. Callers must call Close when the session ends.
func NewPipeline(parent context.Context, sessionID string, cfg Config, transport transcription.Transport, deps Deps) (*Pipeline, error) {
	if deps.Logger == nil {
		deps.Logger = logging.NoOp{}
	}
	pctx, cancel := context.WithCancel(parent)

	p := &Pipeline{
		id:       sessionID,
		cfg:      cfg,
		ctx:      pctx,
		cancel:   cancel,
		ring:     audio.NewRingBuffer(cfg.Audio, audio.WithBus(deps.Bus), audio.WithLogger(deps.Logger)),
		stt:      transcription.NewClient(transport, cfg.Transcription, cfg.RetryPolicy, deps.Bus, deps.Logger),
		tstore:   transcription.NewStore(),
		ctxStore: deps.ContextStore,
		engine:   deps.Engine,
		gen:      deps.Generator,
		bus:      deps.Bus,
		logger:   deps.Logger,
		events:   make(chan Event, 256),
	}

	p.tstore.OpenSession(sessionID, cfg.Transcription)
	p.stt.OnResult(p.handleTranscript)

	if err := p.stt.StartStream(pctx, sessionID); err != nil {
		cancel()
		return nil, fmt.Errorf("session %s: start transcription stream: %w", sessionID, err)
	}
	return p, nil
}

// ID returns the session identifier this Pipeline was created with.
func (p *Pipeline) ID() string { return p.id }

// Events returns the channel of outbound notifications for this session.
func (p *Pipeline) Events() <-chan Event { return p.events }

// WriteAudio pushes one raw chunk into the ring buffer and, once enough
// has accumulated, forwards it to the transcription client (spec §4.2/
// §4.4, the capture→transcription leg of the chain).
func (p *Pipeline) WriteAudio(chunk []byte, channel audio.Channel) error {
	if err := p.ring.Write(chunk, channel); err != nil {
		return err
	}
	frame, ok := p.ring.Read(0, channel)
	if !ok {
		return nil
	}
	if err := p.stt.ProcessAudio(p.ctx, frame); err != nil {
		p.emit(Event{Type: EventError, SessionID: p.id, Data: err.Error()})
		return err
	}
	return nil
}

// handleTranscript is the transcription.Client callback: every result is
// ingested into the per-session store and emitted as a transcript event;
// stable results are also folded into the shared context store and
// kicked off into analysis (spec §4.5/§4.6).
func (p *Pipeline) handleTranscript(result transcription.Result) {
	if err := p.tstore.IngestResult(result); err != nil {
		p.logger.Warn("transcript ingest failed", "session", p.id, "error", err)
	}
	p.emit(Event{Type: EventTranscript, SessionID: p.id, Data: result})

	if result.IsPartial {
		return
	}

	p.mu.Lock()
	gen := p.analysisGen
	p.mu.Unlock()

	entry, err := p.ctxStore.Add(transcriptText(result), ctxstore.Metadata{
		Source: ctxstore.SourceConversation,
		Level:  ctxstore.LevelRelevant,
		Tags:   map[string]struct{}{"session:" + p.id: {}},
	})
	if err != nil {
		p.logger.Warn("context add failed", "session", p.id, "error", err)
		return
	}

	go p.runAnalysisAndRespond(gen, entry, result)
}

// runAnalysisAndRespond submits the stable transcript to the analysis
// engine and, once a result arrives, generates a response candidate set.
// It checks analysisGen before acting on either result so a session
// interrupt silently drops work started before it (mirrors
// ManagedStream.internalInterrupt's sttGeneration fencing).
func (p *Pipeline) runAnalysisAndRespond(startGen int, entry *ctxstore.Entry, transcript transcription.Result) {
	if p.engine == nil {
		return
	}
	resultCh, err := p.engine.SubmitRequest(p.ctx, analysis.Request{
		SessionID: p.id,
		Content:   map[string]any{"text": transcriptText(transcript)},
		Context:   entry,
		Pipeline:  p.cfg.AnalysisConfig,
	})
	if err != nil {
		p.emit(Event{Type: EventError, SessionID: p.id, Data: err.Error()})
		return
	}

	var last analysis.Result
	for r := range resultCh {
		last = r
	}

	if p.stale(startGen) {
		return
	}
	p.emit(Event{Type: EventAnalysis, SessionID: p.id, Data: last})

	if p.gen == nil {
		return
	}
	respCfg := p.cfg.ResponseConfig
	result := p.gen.Generate(p.ctx, response.Request{
		Query:        transcriptText(transcript),
		Role:         p.cfg.Role,
		ContextEntry: entry,
		Analysis:     &last,
		Config:       &respCfg,
	})
	if p.stale(startGen) {
		return
	}
	p.emit(Event{Type: EventResponse, SessionID: p.id, Data: result})
}

func (p *Pipeline) stale(generation int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return generation != p.analysisGen
}

// Interrupt cancels the session's in-flight analysis and discards any
// analysis or response result started before it, without tearing the
// session down: the transcription stream keeps running and a new
// utterance can start immediately after (spec.md §5 "Canceling a session cascades to
// its audio streams, transcription session, pending and active analysis
// tasks"; grounded on ManagedStream.internalInterrupt, minus the TTS/
// echo-suppressor legs this system has no equivalent of).
func (p *Pipeline) Interrupt() {
	p.mu.Lock()
	p.analysisGen++
	p.interrupted = true
	p.mu.Unlock()

	if p.engine != nil {
		p.engine.CancelAnalysis(p.id)
	}
	p.emit(Event{Type: EventInterrupt, SessionID: p.id, Data: nil})
}

func (p *Pipeline) emit(ev Event) {
	select {
	case <-p.ctx.Done():
		return
	default:
	}
	select {
	case p.events <- ev:
	default:
		p.logger.Warn("session event queue full, dropping", "session", p.id, "type", ev.Type)
	}
}

// Close cancels every goroutine this Pipeline started and frees its
// per-session state. It is safe to call more than once (spec.md §5
// "Cancellation never leaves a session in a half-drained state: buffers
// and indexes are freed by cleanup_session").
func (p *Pipeline) Close() {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.analysisGen++
		p.mu.Unlock()

		stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer stopCancel()
		_ = p.stt.StopStream(stopCtx)

		p.cancel()
		p.ring.Close()
		p.tstore.CleanupSession(p.id)
		if p.engine != nil {
			p.engine.CancelAnalysis(p.id)
		}
		close(p.events)
	})
}

// transcriptText concatenates every segment's transcript, mirroring how
// the original builds the text handed to analysis/response from a
// TranscriptionResult.
func transcriptText(r transcription.Result) string {
	var out string
	for i, seg := range r.Segments {
		if i > 0 {
			out += " "
		}
		out += seg.Transcript
	}
	return out
}

// newSessionID generates a session identifier when the caller doesn't
// supply one (Manager.StartSession).
func newSessionID() string { return uuid.New().String() }
