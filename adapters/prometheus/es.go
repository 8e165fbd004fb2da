package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/codewandler/evsrc-go/core/es"
	"github.com/codewandler/evsrc-go/core/metrics"
)

// esMetrics implements es.Metrics using Prometheus.
type esMetrics struct {
	// Store metrics
	storeLoadDuration   *prometheus.HistogramVec
	storeAppendDuration *prometheus.HistogramVec
	eventsAppended      *prometheus.CounterVec

	// Repository metrics
	repoLoadDuration     *prometheus.HistogramVec
	repoSaveDuration     *prometheus.HistogramVec
	concurrencyConflicts *prometheus.CounterVec

	// Dispatch metrics
	dispatchDuration *prometheus.HistogramVec
	commandRetries   *prometheus.CounterVec
	commandsFailed   *prometheus.CounterVec

	// Publication metrics
	summariesPublished prometheus.Counter
	publicationErrors  prometheus.Counter
}

// NewMetrics creates a new Prometheus implementation of es.Metrics.
func NewMetrics(reg prometheus.Registerer) es.Metrics {
	m := &esMetrics{
		storeLoadDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "evsrc_store_load_duration_seconds",
			Help:    "Event store load latency in seconds",
			Buckets: defaultBuckets,
		}, []string{"aggregate_type"}),

		storeAppendDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "evsrc_store_append_duration_seconds",
			Help:    "Event store append latency in seconds",
			Buckets: defaultBuckets,
		}, []string{"aggregate_type"}),

		eventsAppended: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "evsrc_events_appended_total",
			Help: "Total number of events appended",
		}, []string{"aggregate_type"}),

		repoLoadDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "evsrc_repo_load_duration_seconds",
			Help:    "Repository load latency in seconds",
			Buckets: defaultBuckets,
		}, []string{"aggregate_type"}),

		repoSaveDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "evsrc_repo_save_duration_seconds",
			Help:    "Repository save latency in seconds",
			Buckets: defaultBuckets,
		}, []string{"aggregate_type"}),

		concurrencyConflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "evsrc_concurrency_conflicts_total",
			Help: "Total number of optimistic lock failures",
		}, []string{"aggregate_type"}),

		dispatchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "evsrc_dispatch_duration_seconds",
			Help:    "Command dispatch latency in seconds",
			Buckets: defaultBuckets,
		}, []string{"command_kind"}),

		commandRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "evsrc_command_retries_total",
			Help: "Total number of command retry attempts",
		}, []string{"command_kind"}),

		commandsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "evsrc_commands_failed_total",
			Help: "Total number of failed commands",
		}, []string{"command_kind"}),

		summariesPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "evsrc_summaries_published_total",
			Help: "Total number of event summaries published",
		}),

		publicationErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "evsrc_publication_failures_total",
			Help: "Total number of summary publication failures",
		}),
	}

	reg.MustRegister(
		m.storeLoadDuration,
		m.storeAppendDuration,
		m.eventsAppended,
		m.repoLoadDuration,
		m.repoSaveDuration,
		m.concurrencyConflicts,
		m.dispatchDuration,
		m.commandRetries,
		m.commandsFailed,
		m.summariesPublished,
		m.publicationErrors,
	)

	return m
}

func (m *esMetrics) StoreLoadDuration(aggType string) metrics.Timer {
	return newTimer(m.storeLoadDuration.WithLabelValues(aggType))
}

func (m *esMetrics) StoreAppendDuration(aggType string) metrics.Timer {
	return newTimer(m.storeAppendDuration.WithLabelValues(aggType))
}

func (m *esMetrics) EventsAppended(aggType string, count int) {
	m.eventsAppended.WithLabelValues(aggType).Add(float64(count))
}

func (m *esMetrics) RepoLoadDuration(aggType string) metrics.Timer {
	return newTimer(m.repoLoadDuration.WithLabelValues(aggType))
}

func (m *esMetrics) RepoSaveDuration(aggType string) metrics.Timer {
	return newTimer(m.repoSaveDuration.WithLabelValues(aggType))
}

func (m *esMetrics) ConcurrencyConflict(aggType string) {
	m.concurrencyConflicts.WithLabelValues(aggType).Inc()
}

func (m *esMetrics) DispatchDuration(commandKind string) metrics.Timer {
	return newTimer(m.dispatchDuration.WithLabelValues(commandKind))
}

func (m *esMetrics) CommandRetry(commandKind string) {
	m.commandRetries.WithLabelValues(commandKind).Inc()
}

func (m *esMetrics) CommandFailed(commandKind string) {
	m.commandsFailed.WithLabelValues(commandKind).Inc()
}

func (m *esMetrics) SummariesPublished(count int) {
	m.summariesPublished.Add(float64(count))
}

func (m *esMetrics) PublicationFailed() {
	m.publicationErrors.Inc()
}

var _ es.Metrics = (*esMetrics)(nil)
