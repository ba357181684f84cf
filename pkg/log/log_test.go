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
	"os"
	"path/filepath"
	"testing"

	tracectx "github.com/go-arcade/flagforge/pkg/trace/context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestSetDefaults(t *testing.T) {
	conf := SetDefaults()
	assert.Equal(t, "stdout", conf.Output)
	assert.Equal(t, "INFO", conf.Level)
	assert.Equal(t, 7, conf.KeepHours)
}

func TestConf_Validate(t *testing.T) {
	tests := []struct {
		name    string
		conf    *Conf
		wantErr bool
	}{
		{name: "stdout", conf: &Conf{Output: "stdout", Level: "INFO"}},
		{name: "file", conf: &Conf{Output: "file", Path: "/tmp/logs", Level: "DEBUG", KeepHours: 7, RotateSize: 100, RotateNum: 10}},
		{name: "file without path", conf: &Conf{Output: "file", Level: "INFO"}, wantErr: true},
		// 未设置轮转参数时自动修正
		{name: "file with defaults", conf: &Conf{Output: "file", Path: "/tmp/logs", Level: "INFO"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.conf.Validate()
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.conf.Output == "file" {
				assert.Positive(t, tt.conf.RotateSize)
				assert.Positive(t, tt.conf.RotateNum)
				assert.Positive(t, tt.conf.KeepHours)
				assert.NotEmpty(t, tt.conf.Filename)
			}
		})
	}
}

func TestNewLog_File(t *testing.T) {
	tmpDir := t.TempDir()
	l, err := NewLog(&Conf{
		Output:     "file",
		Path:       tmpDir,
		Filename:   "test.log",
		Level:      "INFO",
		KeepHours:  1,
		RotateSize: 1,
		RotateNum:  3,
	})
	require.NoError(t, err)
	require.NotNil(t, l)

	l.Info("test message")
	_ = l.Sync()

	_, err = os.Stat(filepath.Join(tmpDir, "test.log"))
	assert.NoError(t, err)
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLogLevel("debug"))
	assert.Equal(t, zapcore.WarnLevel, parseLogLevel(" Warning "))
	assert.Equal(t, zapcore.ErrorLevel, parseLogLevel("ERROR"))
	assert.Equal(t, zapcore.InfoLevel, parseLogLevel("verbose"))
}

func TestGetLevel(t *testing.T) {
	require.NoError(t, Init(&Conf{Output: "stdout", Level: "WARN"}))
	assert.Equal(t, zapcore.WarnLevel, GetLevel())
}

func TestTraceCore_AddsSpanFields(t *testing.T) {
	obsCore, logs := observer.New(zapcore.DebugLevel)
	l := zap.New(wrapCoreWithTrace(obsCore))

	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	tracectx.RunWithContext(ctx, func(context.Context) {
		l.Info("inside span")
	})
	l.Info("outside span")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, span.SpanContext().TraceID().String(), entries[0].ContextMap()["trace_id"])
	assert.NotContains(t, entries[1].ContextMap(), "trace_id")
}

func TestWithContext(t *testing.T) {
	obsCore, logs := observer.New(zapcore.DebugLevel)
	replace(zap.New(obsCore))
	t.Cleanup(func() { replace(zap.NewNop()) })

	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	WithContext(ctx).Infow("evaluated", "flag", "checkout-v2")
	WithContext(context.Background()).Infow("plain")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, span.SpanContext().SpanID().String(), entries[0].ContextMap()["span_id"])
	assert.Equal(t, "checkout-v2", entries[0].ContextMap()["flag"])
	assert.NotContains(t, entries[1].ContextMap(), "span_id")
}
