// Copyright 2025 Arcade Team
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package metrics

import (
	"time"

	"github.com/go-arcade/flagforge/pkg/cron"
	"github.com/prometheus/client_golang/prometheus"
)

// CronMetricsRecorder implements cron.MetricsRecorder
type CronMetricsRecorder struct {
	runs     *prometheus.CounterVec
	errors   *prometheus.CounterVec
	duration *prometheus.HistogramVec
	lastRun  *prometheus.GaugeVec
	nextRun  *prometheus.GaugeVec
	jobs     prometheus.Gauge
}

var _ cron.MetricsRecorder = (*CronMetricsRecorder)(nil)

// NewCronMetricsRecorder 创建并注册 cron 指标
func NewCronMetricsRecorder(reg prometheus.Registerer) *CronMetricsRecorder {
	r := &CronMetricsRecorder{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cron_job_runs_total",
			Help: "Total number of cron job runs",
		}, []string{"job_name"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cron_job_errors_total",
			Help: "Total number of cron job errors",
		}, []string{"job_name"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cron_job_run_duration_seconds",
			Help:    "Duration of cron job runs in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms ~ 32s
		}, []string{"job_name"}),
		lastRun: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cron_job_last_run_time_seconds",
			Help: "Last run time of cron job in seconds since epoch",
		}, []string{"job_name"}),
		nextRun: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cron_job_next_run_time_seconds",
			Help: "Next scheduled run time of cron job in seconds since epoch",
		}, []string{"job_name"}),
		jobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cron_jobs_total",
			Help: "Total number of registered cron jobs",
		}),
	}
	reg.MustRegister(r.runs, r.errors, r.duration, r.lastRun, r.nextRun, r.jobs)
	return r
}

func (r *CronMetricsRecorder) RecordJobRun(jobName string, duration time.Duration, err error) {
	if err != nil {
		r.errors.WithLabelValues(jobName).Inc()
	}
	r.runs.WithLabelValues(jobName).Inc()
	r.duration.WithLabelValues(jobName).Observe(duration.Seconds())
	r.lastRun.WithLabelValues(jobName).SetToCurrentTime()
}

func (r *CronMetricsRecorder) UpdateNextRun(jobName string, nextRun time.Time) {
	if !nextRun.IsZero() {
		r.nextRun.WithLabelValues(jobName).Set(float64(nextRun.Unix()))
	}
}

func (r *CronMetricsRecorder) UpdateJobsCount(count int) {
	r.jobs.Set(float64(count))
}
