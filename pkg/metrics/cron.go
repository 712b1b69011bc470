package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const OutcomeFailure = "failure"

// CronJobMetrics records cron-worker job runs.
type CronJobMetrics struct {
	runs        *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	lastSuccess *prometheus.GaugeVec
	now         func() time.Time
}

// NewCronJobMetrics registers the cron job metrics. A nil registerer yields a
// no-op recorder.
func NewCronJobMetrics(reg prometheus.Registerer) *CronJobMetrics {
	if reg == nil {
		return &CronJobMetrics{}
	}
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "library_cron_job_runs_total",
		Help: "Cron job runs by outcome.",
	}, []string{"job", "outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "library_cron_job_duration_seconds",
		Help:    "Cron job run time in seconds.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
	}, []string{"job"})
	lastSuccess := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "library_cron_job_last_success_timestamp_seconds",
		Help: "Unix time of the last successful run per job.",
	}, []string{"job"})
	reg.MustRegister(runs, duration, lastSuccess)
	return &CronJobMetrics{
		runs:        runs,
		duration:    duration,
		lastSuccess: lastSuccess,
		now:         time.Now,
	}
}

// ObserveRun records one run of job. A nil err counts as success and bumps the
// last-success timestamp.
func (c *CronJobMetrics) ObserveRun(job string, took time.Duration, err error) {
	if c == nil || c.runs == nil {
		return
	}
	job = normalizeLabel(job)
	c.duration.WithLabelValues(job).Observe(took.Seconds())
	if err != nil {
		c.runs.WithLabelValues(job, OutcomeFailure).Inc()
		return
	}
	c.runs.WithLabelValues(job, OutcomeSuccess).Inc()
	c.lastSuccess.WithLabelValues(job).Set(float64(c.now().Unix()))
}

func normalizeLabel(job string) string {
	if job == "" {
		return "unknown"
	}
	return job
}
