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
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-arcade/flagforge/pkg/trace"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// RedisHook 为 go-redis v9 客户端添加 span
type RedisHook struct {
	// WithArgs 记录命令参数（可能包含业务数据，默认关闭）
	WithArgs bool
}

var _ redis.Hook = (*RedisHook)(nil)

func (h *RedisHook) DialHook(next redis.DialHook) redis.DialHook {
	return next
}

func (h *RedisHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		ctx, span := trace.StartSpan(ctx, "redis."+cmd.Name(), oteltrace.WithSpanKind(oteltrace.SpanKindClient))
		defer span.End()
		start := time.Now()

		span.SetAttributes(
			attribute.String("db.system", "redis"),
			attribute.String("db.operation", cmd.Name()),
		)
		if h.WithArgs {
			span.SetAttributes(attribute.String("db.statement", argsString(cmd.Args())))
		}

		err := next(ctx, cmd)
		span.SetAttributes(attribute.Int64("db.redis.duration_ms", time.Since(start).Milliseconds()))
		switch {
		case err == nil:
			span.SetStatus(codes.Ok, "")
		case errors.Is(err, redis.Nil):
			span.SetAttributes(attribute.Bool("db.redis.nil", true))
			span.SetStatus(codes.Ok, "")
		default:
			trace.RecordError(span, err)
		}
		return err
	}
}

func (h *RedisHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		ctx, span := trace.StartSpan(ctx, "redis.pipeline", oteltrace.WithSpanKind(oteltrace.SpanKindClient))
		defer span.End()

		names := make([]string, 0, len(cmds))
		for _, cmd := range cmds {
			names = append(names, cmd.Name())
		}
		span.SetAttributes(
			attribute.String("db.system", "redis"),
			attribute.String("db.operation", "pipeline"),
			attribute.StringSlice("db.redis.pipeline.commands", names),
		)

		err := next(ctx, cmds)
		failed := 0
		for _, cmd := range cmds {
			if cerr := cmd.Err(); cerr != nil && !errors.Is(cerr, redis.Nil) {
				failed++
			}
		}
		if failed > 0 || err != nil {
			span.SetAttributes(attribute.Int("db.redis.pipeline.errors", failed))
			span.SetStatus(codes.Error, fmt.Sprintf("%d commands failed", failed))
		} else {
			span.SetStatus(codes.Ok, "")
		}
		return err
	}
}

func argsString(args []any) string {
	parts := make([]string, 0, len(args))
	for _, a := range args {
		switch v := a.(type) {
		case string:
			parts = append(parts, v)
		case []byte:
			parts = append(parts, string(v))
		default:
			parts = append(parts, fmt.Sprint(v))
		}
	}
	return strings.Join(parts, " ")
}

// RegisterRedisHook 注册 trace hook
func RegisterRedisHook(client redis.UniversalClient, withArgs bool) {
	client.AddHook(&RedisHook{WithArgs: withArgs})
}
