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
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluationMetrics(t *testing.T) {
	s := NewServer(Conf{Enable: true})
	m := ProvideEvaluationMetrics(s)

	m.ObserveEvaluation("matched", time.Millisecond)
	m.ObserveEvaluation("matched", time.Millisecond)
	m.ObserveEvaluation("disabled", time.Millisecond)
	m.SnapshotCache("hit")
	m.IndexRebuild()
	m.StoreRead("get_flag")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.evaluations.WithLabelValues("matched")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.evaluations.WithLabelValues("disabled")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.indexRebuilds))

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "flagforge_evaluations_total")
	assert.Contains(t, string(body), "flagforge_store_reads_total")
}

func TestEvaluationMetrics_NilSafe(t *testing.T) {
	var m *EvaluationMetrics
	assert.NotPanics(t, func() {
		m.ObserveEvaluation("matched", time.Millisecond)
		m.SnapshotCache("miss")
		m.IndexRebuild()
		m.StoreRead("get_flag")
	})
}

func TestCronMetricsRecorder(t *testing.T) {
	s := NewServer(Conf{})
	r := ProvideCronMetrics(s)

	r.RecordJobRun("reconcile", time.Second, nil)
	r.RecordJobRun("reconcile", time.Second, errors.New("boom"))
	r.UpdateJobsCount(2)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.runs.WithLabelValues("reconcile")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.errors.WithLabelValues("reconcile")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.jobs))
}
