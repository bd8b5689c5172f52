package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Environment metrics
	EnvironmentsAllocated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "see_environments_allocated_total",
			Help: "Total number of environments allocated by driver and outcome",
		},
		[]string{"driver", "outcome"},
	)

	EnvironmentsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "see_environments_active",
			Help: "Number of currently allocated environments",
		},
	)

	EnvironmentAllocateDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "see_environment_allocate_duration_seconds",
			Help:    "Time taken to allocate an environment, by driver",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"driver"},
	)

	EnvironmentDeallocateDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "see_environment_deallocate_duration_seconds",
			Help:    "Time taken to deallocate an environment, by driver",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"driver"},
	)

	// Event bus metrics
	EventsTriggeredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "see_events_triggered_total",
			Help: "Total number of events triggered by event name",
		},
		[]string{"event"},
	)

	HandlerFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "see_handler_failures_total",
			Help: "Total number of handler invocations that raised an error, by event and dispatch mode",
		},
		[]string{"event", "mode"},
	)

	HandlerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "see_handler_duration_seconds",
			Help:    "Handler execution duration in seconds, by event and dispatch mode",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"event", "mode"},
	)

	// Context/lifecycle metrics
	TransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "see_transitions_total",
			Help: "Total number of lifecycle verb invocations by verb and outcome",
		},
		[]string{"verb", "outcome"},
	)

	TransitionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "see_transition_duration_seconds",
			Help:    "Time taken to execute a lifecycle verb, by verb",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"verb"},
	)

	ShutdownTimeoutsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "see_shutdown_timeouts_total",
			Help: "Total number of shutdown invocations that exceeded their deadline",
		},
	)

	// Hook metrics
	HooksConstructedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "see_hooks_constructed_total",
			Help: "Total number of hook construction attempts by name and outcome",
		},
		[]string{"hook", "outcome"},
	)

	HooksCleanupFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "see_hooks_cleanup_failures_total",
			Help: "Total number of hook cleanup calls that raised an error (fail-soft)",
		},
		[]string{"hook"},
	)

	// Resource driver metrics
	ResourceAllocationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "see_resource_allocations_total",
			Help: "Total number of resource allocate() calls by driver and outcome",
		},
		[]string{"driver", "outcome"},
	)

	DomainCreateDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "see_domain_create_duration_seconds",
			Help:    "Time taken to create a domain/container, by driver",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"driver"},
	)

	NetworkAddressAttempts = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "see_network_address_allocation_attempts",
			Help:    "Number of attempts needed to allocate a dynamic network address",
			Buckets: []float64{1, 2, 3, 4, 5, 10},
		},
	)

	NetworkAddressExhaustedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "see_network_address_exhausted_total",
			Help: "Total number of dynamic network address allocations that exhausted all attempts",
		},
	)

	// Image provider metrics
	ImageResolutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "see_image_resolutions_total",
			Help: "Total number of image resolutions by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	ImageDownloadDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "see_image_download_duration_seconds",
			Help:    "Time taken to download an image, by provider",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"provider"},
	)

	ImageChecksumMismatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "see_image_checksum_mismatch_total",
			Help: "Total number of image downloads that failed checksum verification",
		},
		[]string{"provider"},
	)
)

func init() {
	prometheus.MustRegister(EnvironmentsAllocated)
	prometheus.MustRegister(EnvironmentsActive)
	prometheus.MustRegister(EnvironmentAllocateDuration)
	prometheus.MustRegister(EnvironmentDeallocateDuration)

	prometheus.MustRegister(EventsTriggeredTotal)
	prometheus.MustRegister(HandlerFailuresTotal)
	prometheus.MustRegister(HandlerDuration)

	prometheus.MustRegister(TransitionsTotal)
	prometheus.MustRegister(TransitionDuration)
	prometheus.MustRegister(ShutdownTimeoutsTotal)

	prometheus.MustRegister(HooksConstructedTotal)
	prometheus.MustRegister(HooksCleanupFailuresTotal)

	prometheus.MustRegister(ResourceAllocationsTotal)
	prometheus.MustRegister(DomainCreateDuration)
	prometheus.MustRegister(NetworkAddressAttempts)
	prometheus.MustRegister(NetworkAddressExhaustedTotal)

	prometheus.MustRegister(ImageResolutionsTotal)
	prometheus.MustRegister(ImageDownloadDuration)
	prometheus.MustRegister(ImageChecksumMismatchTotal)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
