package es

import "github.com/codewandler/evsrc-go/core/metrics"

// Metrics defines the instrumentation hooks of the engine. All methods
// return Timer or increment counters; implementations must be thread-safe.
type Metrics interface {
	// Store operations
	StoreLoadDuration(aggType string) metrics.Timer
	StoreAppendDuration(aggType string) metrics.Timer
	EventsAppended(aggType string, count int)

	// Repository operations
	RepoLoadDuration(aggType string) metrics.Timer
	RepoSaveDuration(aggType string) metrics.Timer
	ConcurrencyConflict(aggType string)

	// Dispatch
	DispatchDuration(commandKind string) metrics.Timer
	CommandRetry(commandKind string)
	CommandFailed(commandKind string)

	// Publication
	SummariesPublished(count int)
	PublicationFailed()
}

// nopMetrics is a no-op implementation of Metrics.
type nopMetrics struct{}

func (nopMetrics) StoreLoadDuration(string) metrics.Timer   { return metrics.NopTimer() }
func (nopMetrics) StoreAppendDuration(string) metrics.Timer { return metrics.NopTimer() }
func (nopMetrics) EventsAppended(string, int)               {}

func (nopMetrics) RepoLoadDuration(string) metrics.Timer { return metrics.NopTimer() }
func (nopMetrics) RepoSaveDuration(string) metrics.Timer { return metrics.NopTimer() }
func (nopMetrics) ConcurrencyConflict(string)            {}

func (nopMetrics) DispatchDuration(string) metrics.Timer { return metrics.NopTimer() }
func (nopMetrics) CommandRetry(string)                   {}
func (nopMetrics) CommandFailed(string)                  {}

func (nopMetrics) SummariesPublished(int) {}
func (nopMetrics) PublicationFailed()     {}

// NopMetrics returns a no-op Metrics implementation.
func NopMetrics() Metrics { return nopMetrics{} }

// MetricsOption sets the metrics for engine components.
type MetricsOption struct{ m Metrics }

// WithMetrics sets the metrics implementation for engine components.
func WithMetrics(m Metrics) MetricsOption { return MetricsOption{m: m} }

func (o MetricsOption) applyToEnv(e *envOptions)               { e.metrics = o.m }
func (o MetricsOption) applyToDispatcher(d *dispatcherOptions) { d.metrics = o.m }
