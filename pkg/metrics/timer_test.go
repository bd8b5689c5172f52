package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTimerStartsImmediately(t *testing.T) {
	timer := NewTimer()

	require.NotNil(t, timer)
	assert.False(t, timer.start.IsZero())
	assert.Less(t, time.Since(timer.start), time.Second)
}

func TestTimerDurationTracksElapsedTime(t *testing.T) {
	timer := NewTimer()

	sleepDuration := 100 * time.Millisecond
	time.Sleep(sleepDuration)

	duration := timer.Duration()

	assert.GreaterOrEqual(t, duration, sleepDuration)
	assert.Less(t, duration, 2*sleepDuration)
}

func TestTimerObserveDurationRecordsToHistogram(t *testing.T) {
	histogram := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "see_test_domain_create_seconds",
		Help:    "allocation latency for a single test domain",
		Buckets: prometheus.DefBuckets,
	})

	timer := NewTimer()
	time.Sleep(50 * time.Millisecond)

	assert.NotPanics(t, func() { timer.ObserveDuration(histogram) })
	assert.NotZero(t, timer.Duration())
}

func TestTimerObserveDurationVecRecordsToLabeledHistogram(t *testing.T) {
	histogramVec := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "see_test_domain_create_by_driver_seconds",
			Help:    "allocation latency for a single test domain, labeled by driver",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"driver"},
	)

	timer := NewTimer()
	time.Sleep(50 * time.Millisecond)

	assert.NotPanics(t, func() { timer.ObserveDurationVec(histogramVec, "qemu") })
	assert.NotZero(t, timer.Duration())
}

func TestTimerDurationIsMonotonicallyIncreasing(t *testing.T) {
	timer := NewTimer()

	var last time.Duration
	for i := 0; i < 5; i++ {
		time.Sleep(10 * time.Millisecond)
		current := timer.Duration()
		assert.Greater(t, current, last, "iteration %d", i)
		last = current
	}
}

func TestIndependentTimersTrackIndependently(t *testing.T) {
	timer1 := NewTimer()
	time.Sleep(50 * time.Millisecond)
	timer2 := NewTimer()
	time.Sleep(50 * time.Millisecond)

	duration1 := timer1.Duration()
	duration2 := timer2.Duration()

	assert.Greater(t, duration1, duration2)
	assert.NotZero(t, duration1)
	assert.NotZero(t, duration2)
}

func TestTimerDurationImmediatelyIsSmall(t *testing.T) {
	timer := NewTimer()

	duration := timer.Duration()

	assert.GreaterOrEqual(t, duration, time.Duration(0))
	assert.Less(t, duration, time.Millisecond)
}
