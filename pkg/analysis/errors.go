package analysis

import "errors"

var (
	// ErrAnalyzerNotFound is returned by the registry for an unregistered Type.
	ErrAnalyzerNotFound = errors.New("analysis: analyzer not found")

	// ErrAnalyzerDisabled is returned when a task requests a Type not in
	// Config.EnabledAnalyzers.
	ErrAnalyzerDisabled = errors.New("analysis: analyzer not enabled")

	// ErrResourceExhausted fails an individual task submitted while the
	// engine already has MaxConcurrentTasks tasks active (spec §4.8 Resource
	// guards); SubmitRequest itself does not return it.
	ErrResourceExhausted = errors.New("analysis: max concurrent tasks reached")

	// ErrTaskTimeout marks a task that exceeded its timeout.
	ErrTaskTimeout = errors.New("analysis: task timed out")

	// ErrPipelineFailed names a pipeline aborted under ErrorHandlingFail. The
	// engine does not return or deliver it: an aborted pipeline only closes
	// its result channel.
	ErrPipelineFailed = errors.New("analysis: pipeline aborted on task failure")

	// ErrPipelineCanceled is returned for work belonging to a canceled session.
	ErrPipelineCanceled = errors.New("analysis: pipeline canceled")

	// ErrEngineStopped is returned by SubmitRequest after Stop has run.
	ErrEngineStopped = errors.New("analysis: engine stopped")
)
