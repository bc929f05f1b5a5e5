package analysis

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/lokutor-ai/assist-core/pkg/bus"
	"github.com/lokutor-ai/assist-core/pkg/logging"
)

type workItem struct {
	ctx          context.Context
	sessionID    string
	content      map[string]any
	contextEntry any
	task         Task
	resultCh     chan taskOutcome
}

type taskOutcome struct {
	result Result
	err    error
}

type pipelineRun struct {
	currentStage int32 // -1 is the terminal cancellation sentinel
	cancel       context.CancelFunc
}

// engineMetrics holds the prometheus collectors the engine updates as each
// task runs; there is no periodic emit loop. No HTTP exporter is wired here,
// callers register reg with their own exposition path.
type engineMetrics struct {
	tasksCompleted *prometheus.CounterVec
	tasksFailed    *prometheus.CounterVec
	taskDuration   *prometheus.HistogramVec
	activeTasks    prometheus.Gauge
}

func newEngineMetrics(reg prometheus.Registerer) *engineMetrics {
	m := &engineMetrics{
		tasksCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "analysis_tasks_completed_total",
			Help: "Total analysis tasks that completed successfully, by analyzer type.",
		}, []string{"type"}),
		tasksFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "analysis_tasks_failed_total",
			Help: "Total analysis tasks that failed, by analyzer type.",
		}, []string{"type"}),
		taskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "analysis_task_duration_seconds",
			Help:    "Analysis task execution duration, by analyzer type.",
			Buckets: prometheus.DefBuckets,
		}, []string{"type"}),
		activeTasks: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "analysis_active_tasks",
			Help: "Number of analysis tasks currently executing.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.tasksCompleted, m.tasksFailed, m.taskDuration, m.activeTasks)
	}
	return m
}

// Engine runs AnalysisRequests through dependency/stage-ordered pipelines
// using a fixed worker pool (spec §4.8, grounded on
// original_source/src/analysis/engine.py AnalysisEngine and the pack's
// channel-based worker-pool idiom in internal/pipeline/queue.go).
type Engine struct {
	registry   *Registry
	deps       Dependencies
	aggregator *Aggregator
	config     Config
	bus        *bus.Bus
	logger     logging.Logger
	metrics    *engineMetrics

	queue chan workItem
	wg    sync.WaitGroup

	mu       sync.Mutex
	active   int
	sessions map[string]*pipelineRun

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewEngine constructs an Engine and starts its worker pool. A nil
// eventBus/logger/registerer disables publishing/logging/metrics
// respectively.
func NewEngine(registry *Registry, deps Dependencies, config Config, eventBus *bus.Bus, logger logging.Logger, reg prometheus.Registerer) *Engine {
	if logger == nil {
		logger = logging.NoOp{}
	}
	if config.MaxConcurrentTasks <= 0 {
		config.MaxConcurrentTasks = 10
	}

	e := &Engine{
		registry:   registry,
		deps:       deps,
		aggregator: NewAggregator(eventBus),
		config:     config,
		bus:        eventBus,
		logger:     logger,
		metrics:    newEngineMetrics(reg),
		queue:      make(chan workItem, config.MaxConcurrentTasks*4),
		sessions:   make(map[string]*pipelineRun),
		stopCh:     make(chan struct{}),
	}

	for i := 0; i < config.MaxConcurrentTasks; i++ {
		e.wg.Add(1)
		go e.worker()
	}
	return e
}

// Aggregator exposes the engine's result aggregator for GetSummary callers.
func (e *Engine) Aggregator() *Aggregator { return e.aggregator }

func (e *Engine) worker() {
	defer e.wg.Done()
	for {
		select {
		case item, ok := <-e.queue:
			if !ok {
				return
			}
			e.runTask(item)
		case <-e.stopCh:
			return
		}
	}
}

func (e *Engine) runTask(item workItem) {
	e.metrics.activeTasks.Inc()
	defer e.metrics.activeTasks.Dec()

	start := time.Now()
	analyzer, err := e.registry.Get(item.task.Type, e.deps, item.task.Config)
	if err != nil {
		e.metrics.tasksFailed.WithLabelValues(string(item.task.Type)).Inc()
		item.resultCh <- taskOutcome{err: err}
		return
	}

	insights, err := analyzer.Analyze(item.ctx, item.content, item.contextEntry, item.task.Config)
	duration := time.Since(start)
	e.metrics.taskDuration.WithLabelValues(string(item.task.Type)).Observe(duration.Seconds())

	if err != nil {
		e.metrics.tasksFailed.WithLabelValues(string(item.task.Type)).Inc()
		item.resultCh <- taskOutcome{err: err}
		return
	}

	result := Result{
		TaskID:     item.task.ID,
		Type:       item.task.Type,
		Insights:   insights,
		Confidence: weightedConfidence(insights),
		Duration:   duration,
		Timestamp:  time.Now(),
	}
	e.metrics.tasksCompleted.WithLabelValues(string(item.task.Type)).Inc()
	e.aggregator.AddResult(item.sessionID, result)
	item.resultCh <- taskOutcome{result: result}
}

// weightedConfidence computes Σ(w_t × c_t) / Σw_t over insights using the
// fixed per-type weight table (spec §4.8).
func weightedConfidence(insights []Insight) float64 {
	var num, den float64
	for _, ins := range insights {
		w := weightFor(ins.Type)
		num += w * ins.Confidence
		den += w
	}
	if den == 0 {
		return 0
	}
	return num / den
}

// SubmitRequest runs req's pipeline and streams each completed task's
// Result on the returned channel, closing it when the pipeline finishes,
// fails (ErrorHandlingFail), or is canceled. Individual tasks fail with
// ErrResourceExhausted once MaxConcurrentTasks tasks are already active
// across the engine, and the whole request is rejected up front with
// ErrAnalyzerDisabled if any task's Type is not enabled (spec §4.8
// Resource guards).
func (e *Engine) SubmitRequest(ctx context.Context, req Request) (<-chan Result, error) {
	select {
	case <-e.stopCh:
		return nil, ErrEngineStopped
	default:
	}

	for _, stage := range req.Pipeline.Stages {
		for _, task := range stage.Tasks {
			if !e.config.EnabledAnalyzers[task.Type] {
				return nil, ErrAnalyzerDisabled
			}
		}
	}

	e.mu.Lock()
	runCtx, cancel := context.WithCancel(ctx)
	run := &pipelineRun{cancel: cancel}
	e.sessions[req.SessionID] = run
	e.mu.Unlock()

	out := make(chan Result)
	go func() {
		defer close(out)
		defer func() {
			e.mu.Lock()
			delete(e.sessions, req.SessionID)
			e.mu.Unlock()
		}()
		e.runPipeline(runCtx, req, run, out)
	}()
	return out, nil
}

func (e *Engine) runPipeline(ctx context.Context, req Request, run *pipelineRun, out chan<- Result) {
	completed := make(map[string]struct{})

	for stageIdx, stage := range req.Pipeline.Stages {
		if atomic.LoadInt32(&run.currentStage) == -1 {
			return
		}
		atomic.StoreInt32(&run.currentStage, int32(stageIdx))

		runnable := make([]Task, 0, len(stage.Tasks))
		for _, task := range stage.Tasks {
			if dependenciesMet(task, completed) {
				runnable = append(runnable, task)
			}
		}

		if req.Pipeline.ParallelStages {
			if !e.runStageParallel(ctx, req.SessionID, req.Content, req.Context, runnable, completed, req.Pipeline.ErrorHandling, out) {
				return
			}
		} else {
			if !e.runStageSequential(ctx, req.SessionID, req.Content, req.Context, runnable, completed, req.Pipeline.ErrorHandling, out) {
				return
			}
		}
	}
}

func dependenciesMet(task Task, completed map[string]struct{}) bool {
	for _, dep := range task.Dependencies {
		if _, ok := completed[dep]; !ok {
			return false
		}
	}
	return true
}

func (e *Engine) runStageSequential(ctx context.Context, sessionID string, content map[string]any, contextEntry any, tasks []Task, completed map[string]struct{}, onError ErrorHandling, out chan<- Result) bool {
	for _, task := range tasks {
		outcome := e.submitTask(ctx, sessionID, content, contextEntry, task)
		if outcome.err != nil {
			if onError == ErrorHandlingFail {
				return false
			}
			continue
		}
		completed[task.ID] = struct{}{}
		select {
		case out <- outcome.result:
		case <-ctx.Done():
			return false
		}
	}
	return true
}

func (e *Engine) runStageParallel(ctx context.Context, sessionID string, content map[string]any, contextEntry any, tasks []Task, completed map[string]struct{}, onError ErrorHandling, out chan<- Result) bool {
	type indexed struct {
		idx     int
		outcome taskOutcome
	}
	results := make(chan indexed, len(tasks))

	var wg sync.WaitGroup
	for i, task := range tasks {
		wg.Add(1)
		go func(i int, task Task) {
			defer wg.Done()
			results <- indexed{idx: i, outcome: e.submitTask(ctx, sessionID, content, contextEntry, task)}
		}(i, task)
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	ok := true
	for r := range results {
		if r.outcome.err != nil {
			if onError == ErrorHandlingFail {
				ok = false
			}
			continue
		}
		completed[tasks[r.idx].ID] = struct{}{}
		select {
		case out <- r.outcome.result:
		case <-ctx.Done():
			ok = false
		}
	}
	return ok
}

// submitTask enqueues a single task, enforcing the engine-wide
// MaxConcurrentTasks resource guard per task rather than per request
// (spec §4.8 Resource guards: "rejects new requests when active_tasks ≥
// max_concurrent_tasks"; original_source/src/analysis/engine.py counts
// and checks resource_usage["tasks"] around each task's execution, not
// once per submitted pipeline).
func (e *Engine) submitTask(ctx context.Context, sessionID string, content map[string]any, contextEntry any, task Task) taskOutcome {
	e.mu.Lock()
	if e.active >= e.config.MaxConcurrentTasks {
		e.mu.Unlock()
		return taskOutcome{err: ErrResourceExhausted}
	}
	e.active++
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.active--
		e.mu.Unlock()
	}()

	timeout := task.Timeout
	if timeout <= 0 {
		timeout = e.config.DefaultTimeout
	}

	taskCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		taskCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	resultCh := make(chan taskOutcome, 1)
	item := workItem{ctx: taskCtx, sessionID: sessionID, content: content, contextEntry: contextEntry, task: task, resultCh: resultCh}

	select {
	case e.queue <- item:
	case <-ctx.Done():
		return taskOutcome{err: ErrPipelineCanceled}
	}

	select {
	case outcome := <-resultCh:
		return outcome
	case <-taskCtx.Done():
		return taskOutcome{err: ErrTaskTimeout}
	}
}

// CancelAnalysis marks sessionID's pipeline run canceled: its current
// stage is set to the terminal -1 sentinel, its context is canceled
// (interrupting in-flight analyzer work at its next suspension point),
// and a cancellation event is published (spec §4.8 Cancellation).
func (e *Engine) CancelAnalysis(sessionID string) {
	e.mu.Lock()
	run, ok := e.sessions[sessionID]
	e.mu.Unlock()
	if !ok {
		return
	}

	atomic.StoreInt32(&run.currentStage, -1)
	run.cancel()

	if e.bus != nil {
		e.bus.Publish(bus.New(bus.Assistance, map[string]any{
			"session_id": sessionID,
			"status":     "canceled",
		}))
	}
}

// Stop drains the worker pool. In-flight tasks are allowed to finish;
// SubmitRequest rejects with ErrEngineStopped afterward.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		close(e.stopCh)
		e.wg.Wait()
	})
}
