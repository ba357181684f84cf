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
	"time"

	"github.com/go-arcade/flagforge/pkg/trace"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

const (
	gormSpanKey  = "flagforge:otel_span"
	gormStartKey = "flagforge:otel_start"
)

// GormPlugin 为 gorm 的 CRUD 回调添加 span
type GormPlugin struct {
	WithQuery bool
	WithRows  bool
}

var _ gorm.Plugin = (*GormPlugin)(nil)

func (p *GormPlugin) Name() string {
	return "flagforge:opentelemetry"
}

func (p *GormPlugin) Initialize(db *gorm.DB) error {
	cb := db.Callback()
	if err := cb.Create().Before("gorm:create").Register("otel:before_create", p.before("create")); err != nil {
		return err
	}
	if err := cb.Create().After("gorm:create").Register("otel:after_create", p.after); err != nil {
		return err
	}
	if err := cb.Query().Before("gorm:query").Register("otel:before_query", p.before("query")); err != nil {
		return err
	}
	if err := cb.Query().After("gorm:query").Register("otel:after_query", p.after); err != nil {
		return err
	}
	if err := cb.Update().Before("gorm:update").Register("otel:before_update", p.before("update")); err != nil {
		return err
	}
	if err := cb.Update().After("gorm:update").Register("otel:after_update", p.after); err != nil {
		return err
	}
	if err := cb.Delete().Before("gorm:delete").Register("otel:before_delete", p.before("delete")); err != nil {
		return err
	}
	if err := cb.Delete().After("gorm:delete").Register("otel:after_delete", p.after); err != nil {
		return err
	}
	if err := cb.Raw().Before("gorm:raw").Register("otel:before_raw", p.before("raw")); err != nil {
		return err
	}
	return cb.Raw().After("gorm:raw").Register("otel:after_raw", p.after)
}

func (p *GormPlugin) before(operation string) func(*gorm.DB) {
	return func(db *gorm.DB) {
		if db.Statement == nil {
			return
		}
		ctx, span := trace.StartSpan(db.Statement.Context, "gorm."+operation,
			oteltrace.WithSpanKind(oteltrace.SpanKindClient))
		db.Statement.Context = ctx

		attrs := []attribute.KeyValue{
			attribute.String("db.system", db.Dialector.Name()),
			attribute.String("db.operation", operation),
		}
		if db.Statement.Table != "" {
			attrs = append(attrs, attribute.String("db.sql.table", db.Statement.Table))
		}
		span.SetAttributes(attrs...)

		db.InstanceSet(gormSpanKey, span)
		db.InstanceSet(gormStartKey, time.Now())
	}
}

func (p *GormPlugin) after(db *gorm.DB) {
	v, ok := db.InstanceGet(gormSpanKey)
	if !ok {
		return
	}
	span, ok := v.(oteltrace.Span)
	if !ok {
		return
	}
	defer span.End()

	if v, ok := db.InstanceGet(gormStartKey); ok {
		if start, ok := v.(time.Time); ok {
			span.SetAttributes(attribute.Int64("db.duration_ms", time.Since(start).Milliseconds()))
		}
	}
	if p.WithQuery {
		if sql := db.Statement.SQL.String(); sql != "" {
			span.SetAttributes(attribute.String("db.statement", sql))
		}
	}
	if p.WithRows {
		span.SetAttributes(attribute.Int64("db.rows_affected", db.Statement.RowsAffected))
	}

	// ErrRecordNotFound 是正常的业务结果
	if db.Error != nil && db.Error != gorm.ErrRecordNotFound {
		trace.RecordError(span, db.Error)
		return
	}
	span.SetStatus(codes.Ok, "")
}

// RegisterGormPlugin 注册 trace 插件
func RegisterGormPlugin(db *gorm.DB, withQuery, withRows bool) error {
	return db.Use(&GormPlugin{WithQuery: withQuery, WithRows: withRows})
}
