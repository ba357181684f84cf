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

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "flagforge"

// EvaluationMetrics 评估链路指标，nil 接收者上的方法是空操作
type EvaluationMetrics struct {
	evaluations   *prometheus.CounterVec
	duration      prometheus.Histogram
	snapshotCache *prometheus.CounterVec
	indexRebuilds prometheus.Counter
	storeReads    *prometheus.CounterVec
}

// NewEvaluationMetrics 创建并注册评估指标
func NewEvaluationMetrics(reg prometheus.Registerer) *EvaluationMetrics {
	m := &EvaluationMetrics{
		evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluations_total",
			Help:      "Flag evaluations by reason",
		}, []string{"reason"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "evaluation_duration_seconds",
			Help:      "Latency of a single flag evaluation",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 16), // 100µs ~ 3s
		}),
		snapshotCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_cache_total",
			Help:      "Snapshot cache lookups by result",
		}, []string{"result"}),
		indexRebuilds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "killswitch_index_rebuilds_total",
			Help:      "Kill-switch reverse index rebuilds from the store",
		}),
		storeReads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_reads_total",
			Help:      "Configuration store reads by operation",
		}, []string{"op"}),
	}
	reg.MustRegister(m.evaluations, m.duration, m.snapshotCache, m.indexRebuilds, m.storeReads)
	return m
}

func (m *EvaluationMetrics) ObserveEvaluation(reason string, d time.Duration) {
	if m == nil {
		return
	}
	m.evaluations.WithLabelValues(reason).Inc()
	m.duration.Observe(d.Seconds())
}

func (m *EvaluationMetrics) SnapshotCache(result string) {
	if m == nil {
		return
	}
	m.snapshotCache.WithLabelValues(result).Inc()
}

func (m *EvaluationMetrics) IndexRebuild() {
	if m == nil {
		return
	}
	m.indexRebuilds.Inc()
}

func (m *EvaluationMetrics) StoreRead(op string) {
	if m == nil {
		return
	}
	m.storeReads.WithLabelValues(op).Inc()
}
