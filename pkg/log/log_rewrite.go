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

package log

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// WithContext returns the global logger annotated with the span carried by ctx.
func WithContext(ctx context.Context) *zap.SugaredLogger {
	l := GetLogger()
	if ctx == nil {
		return l
	}
	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.IsValid() {
		return l
	}
	return l.With("trace_id", spanCtx.TraceID().String(), "span_id", spanCtx.SpanID().String())
}

func Debug(args ...any) { GetLogger().Debug(args...) }

func Debugf(format string, args ...any) { GetLogger().Debugf(format, args...) }

func Debugw(msg string, keysAndValues ...any) { GetLogger().Debugw(msg, keysAndValues...) }

func Info(args ...any) { GetLogger().Info(args...) }

func Infof(format string, args ...any) { GetLogger().Infof(format, args...) }

func Infow(msg string, keysAndValues ...any) { GetLogger().Infow(msg, keysAndValues...) }

func Warn(args ...any) { GetLogger().Warn(args...) }

func Warnf(format string, args ...any) { GetLogger().Warnf(format, args...) }

func Warnw(msg string, keysAndValues ...any) { GetLogger().Warnw(msg, keysAndValues...) }

func Error(args ...any) { GetLogger().Error(args...) }

func Errorf(format string, args ...any) { GetLogger().Errorf(format, args...) }

func Errorw(msg string, keysAndValues ...any) { GetLogger().Errorw(msg, keysAndValues...) }

func Fatal(args ...any) { GetLogger().Fatal(args...) }

func Fatalf(format string, args ...any) { GetLogger().Fatalf(format, args...) }
