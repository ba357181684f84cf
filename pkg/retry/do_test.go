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

package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTemp = errors.New("temporary error")

func TestDo_RetryUntilSuccess(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errTemp
		}
		return nil
	}, WithMaxAttempts(3), WithBackoff(Fixed(0)))
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestDo_ReturnsLastErrorAfterMaxAttempts(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), func(context.Context) error {
		attempts++
		return fmt.Errorf("attempt %d: %w", attempts, errTemp)
	}, WithMaxAttempts(4), WithBackoff(Fixed(time.Millisecond)))
	require.ErrorIs(t, err, errTemp)
	assert.Contains(t, err.Error(), "attempt 4")
	assert.Equal(t, 4, attempts)
}

func TestDo_NonPositiveMaxAttemptsKeepsDefault(t *testing.T) {
	for _, n := range []int{0, -1} {
		attempts := 0
		_ = Do(context.Background(), func(context.Context) error {
			attempts++
			return errTemp
		}, WithMaxAttempts(n), WithBackoff(Fixed(0)))
		assert.Equal(t, 3, attempts)
	}
}

func TestDo_Permanent(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), func(context.Context) error {
		attempts++
		return Permanent(errTemp)
	}, WithBackoff(Fixed(0)))
	assert.Same(t, errTemp, err)
	assert.Equal(t, 1, attempts)
	assert.NoError(t, Permanent(nil))
}

func TestDo_CustomRetryIf(t *testing.T) {
	stop := errors.New("stop")
	attempts := 0
	err := Do(context.Background(), func(context.Context) error {
		attempts++
		if attempts == 2 {
			return stop
		}
		return errTemp
	}, WithMaxAttempts(5), WithBackoff(Fixed(0)), WithRetryIf(func(err error) bool {
		return !errors.Is(err, stop)
	}))
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 2, attempts)
}

func TestDo_OnRetry(t *testing.T) {
	var seen []int
	_ = Do(context.Background(), func(context.Context) error {
		return errTemp
	}, WithMaxAttempts(3), WithBackoff(Fixed(0)), WithOnRetry(func(attempt int, err error, _ time.Duration) {
		assert.ErrorIs(t, err, errTemp)
		seen = append(seen, attempt)
	}))
	assert.Equal(t, []int{1, 2}, seen)
}

func TestDo_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := Do(ctx, func(context.Context) error {
		return errTemp
	}, WithMaxAttempts(10), WithBackoff(Fixed(time.Second)))
	assert.ErrorIs(t, err, errTemp)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestDo_PreCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err := Do(ctx, func(context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestDo_MaxElapsedTime(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), func(context.Context) error {
		attempts++
		return errTemp
	}, WithMaxAttempts(100), WithBackoff(Fixed(20*time.Millisecond)), WithMaxElapsedTime(50*time.Millisecond))
	assert.ErrorIs(t, err, errTemp)
	assert.Less(t, attempts, 100)
}

func TestIsRetryableError(t *testing.T) {
	assert.False(t, IsRetryableError(nil))
	assert.False(t, IsRetryableError(context.Canceled))
	assert.False(t, IsRetryableError(fmt.Errorf("wrap: %w", context.DeadlineExceeded)))
	assert.True(t, IsRetryableError(errTemp))
}

func TestBackoff(t *testing.T) {
	tests := []struct {
		name    string
		backoff Backoff
		want    []time.Duration
	}{
		{"fixed", Fixed(10 * time.Millisecond), []time.Duration{10 * time.Millisecond, 10 * time.Millisecond, 10 * time.Millisecond}},
		{"linear", Linear(10*time.Millisecond, 25*time.Millisecond), []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 25 * time.Millisecond}},
		{"exponential", Exponential(10 * time.Millisecond), []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 40 * time.Millisecond}},
		{"exponential capped", Exponential(10*time.Millisecond, 15*time.Millisecond), []time.Duration{10 * time.Millisecond, 15 * time.Millisecond, 15 * time.Millisecond}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for i, want := range tt.want {
				assert.Equal(t, want, tt.backoff.Next(i))
			}
		})
	}
}

func TestJitter(t *testing.T) {
	d := 100 * time.Millisecond
	assert.Equal(t, d, NoJitter(d))
	assert.Zero(t, FullJitter(0))
	for i := 0; i < 50; i++ {
		assert.Less(t, FullJitter(d), d)
		j := EqualJitter(d)
		assert.GreaterOrEqual(t, j, d/2)
		assert.Less(t, j, d)
	}
}
