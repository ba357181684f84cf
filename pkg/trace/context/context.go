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

// Package context binds a context.Context to the current goroutine so that code
// without a ctx parameter (log cores, gorm callbacks) can still find the active span.
package context

import (
	"context"
	"sync"

	"github.com/timandy/routine"
	"go.opentelemetry.io/otel/trace"
)

const bucketsSize = 128

type contextBucket struct {
	lock sync.RWMutex
	data map[uint64]context.Context
}

var buckets [bucketsSize]*contextBucket

func init() {
	for i := range buckets {
		buckets[i] = &contextBucket{data: make(map[uint64]context.Context)}
	}
}

func bucketFor(goid uint64) *contextBucket {
	return buckets[goid%bucketsSize]
}

// GetContext returns the context bound to the calling goroutine, or nil.
func GetContext() context.Context {
	goid := routine.Goid()
	b := bucketFor(goid)
	b.lock.RLock()
	ctx := b.data[goid]
	b.lock.RUnlock()
	return ctx
}

// SetContext binds ctx to the calling goroutine.
func SetContext(ctx context.Context) {
	goid := routine.Goid()
	b := bucketFor(goid)
	b.lock.Lock()
	b.data[goid] = ctx
	b.lock.Unlock()
}

// ClearContext removes the binding of the calling goroutine.
func ClearContext() {
	goid := routine.Goid()
	b := bucketFor(goid)
	b.lock.Lock()
	delete(b.data, goid)
	b.lock.Unlock()
}

// RunWithContext binds ctx for the duration of fn.
func RunWithContext(ctx context.Context, fn func(ctx context.Context)) {
	SetContext(ctx)
	defer ClearContext()
	fn(ctx)
}

// ContextWithSpan copies the goroutine-bound span into ctx when ctx carries none.
func ContextWithSpan(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if trace.SpanContextFromContext(ctx).IsValid() {
		return ctx
	}
	if bound := GetContext(); bound != nil {
		if span := trace.SpanFromContext(bound); span.SpanContext().IsValid() {
			return trace.ContextWithSpan(ctx, span)
		}
	}
	return ctx
}
