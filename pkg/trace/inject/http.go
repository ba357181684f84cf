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

package inject

import (
	"context"
	"time"

	"github.com/go-arcade/flagforge/pkg/trace"
	tracectx "github.com/go-arcade/flagforge/pkg/trace/context"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// HTTPRequest 对出站 HTTP 请求埋点
// fn 返回状态码、响应大小和错误
func HTTPRequest(ctx context.Context, method, url string, fn func(ctx context.Context) (int, int64, error)) (int, int64, error) {
	ctx, span := trace.StartSpan(ctx, "http.request", oteltrace.WithSpanKind(oteltrace.SpanKindClient))
	defer span.End()

	start := time.Now()
	span.SetAttributes(
		attribute.String("http.method", method),
		attribute.String("http.url", url),
	)

	statusCode, size, err := fn(ctx)
	span.SetAttributes(
		attribute.Int("http.status_code", statusCode),
		attribute.Int64("http.response.size", size),
		attribute.Int64("http.duration_ms", time.Since(start).Milliseconds()),
	)
	finishHTTPSpan(span, statusCode, err)
	return statusCode, size, err
}

// HTTPServerRequest 对入站请求埋点
// span 所在的 ctx 会绑定到当前 goroutine，由调用方在请求结束时 ClearContext，
// 这样 access log 仍能拿到 trace_id
func HTTPServerRequest(ctx context.Context, method, route string, fn func(ctx context.Context) (int, error)) (int, error) {
	ctx, span := trace.StartSpan(ctx, "http.server.request", oteltrace.WithSpanKind(oteltrace.SpanKindServer))
	defer span.End()
	tracectx.SetContext(ctx)

	start := time.Now()
	span.SetAttributes(
		attribute.String("http.method", method),
		attribute.String("http.route", route),
	)

	statusCode, err := fn(ctx)
	span.SetAttributes(
		attribute.Int("http.status_code", statusCode),
		attribute.Int64("http.duration_ms", time.Since(start).Milliseconds()),
	)
	finishHTTPSpan(span, statusCode, err)
	return statusCode, err
}

func finishHTTPSpan(span oteltrace.Span, statusCode int, err error) {
	switch {
	case err != nil:
		trace.RecordError(span, err)
	case statusCode >= 500:
		span.SetStatus(codes.Error, "")
	default:
		span.SetStatus(codes.Ok, "")
	}
}
