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

package targeting

import (
	"reflect"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/go-arcade/flagforge/internal/pkg/flag"
	"github.com/hashicorp/go-version"
)

// Result 单个条件的结果，Unsupported 按 false 处理，但会被上报为配置错误
type Result int

const (
	Fail Result = iota
	Pass
	Unsupported
)

func (r Result) String() string {
	switch r {
	case Pass:
		return "pass"
	case Unsupported:
		return "unsupported"
	default:
		return "fail"
	}
}

func of(ok bool) Result {
	if ok {
		return Pass
	}
	return Fail
}

// Validate 用 userCtx 中的属性评估一个条件
// 属性缺失时只看运算符：否定类运算符为 true，其余为 false
func Validate(cond flag.Condition, userCtx map[string]any) Result {
	actual, ok := userCtx[cond.AttributeName]
	if !ok || actual == nil {
		return of(cond.Operator.Negative())
	}

	switch cond.AttributeType {
	case flag.AttrString:
		return evalString(cond.Operator, actual, cond.ExpectedValues)
	case flag.AttrNumber:
		return evalNumber(cond.Operator, actual, cond.ExpectedValues)
	case flag.AttrBoolean:
		return evalBoolean(cond.Operator, actual)
	case flag.AttrDate:
		return evalDate(cond.Operator, actual, cond.ExpectedValues)
	case flag.AttrSemver:
		return evalSemver(cond.Operator, actual, cond.ExpectedValues)
	case flag.AttrArray:
		return evalArray(cond.Operator, actual, cond.ExpectedValues)
	default:
		return Unsupported
	}
}

func lower(v any) string {
	return strings.ToLower(flag.Stringify(v))
}

func anyExpected(expected []any, match func(string) bool) bool {
	for _, e := range expected {
		if match(lower(e)) {
			return true
		}
	}
	return false
}

func evalString(op flag.Operator, actual any, expected []any) Result {
	raw := flag.Stringify(actual)
	s := strings.ToLower(raw)
	switch op {
	case flag.OpEquals, flag.OpIsOneOf:
		return of(anyExpected(expected, func(e string) bool { return s == e }))
	case flag.OpNotEquals, flag.OpIsNotOneOf:
		return of(!anyExpected(expected, func(e string) bool { return s == e }))
	case flag.OpContains:
		return of(anyExpected(expected, func(e string) bool { return strings.Contains(s, e) }))
	case flag.OpNotContains:
		return of(!anyExpected(expected, func(e string) bool { return strings.Contains(s, e) }))
	case flag.OpStartsWith:
		return of(anyExpected(expected, func(e string) bool { return strings.HasPrefix(s, e) }))
	case flag.OpEndsWith:
		return of(anyExpected(expected, func(e string) bool { return strings.HasSuffix(s, e) }))
	case flag.OpMatchRegex:
		for _, e := range expected {
			if re := compileRegex(flag.Stringify(e)); re != nil && re.MatchString(raw) {
				return Pass
			}
		}
		return Fail
	default:
		return Unsupported
	}
}

func firstFloat(expected []any) (float64, bool) {
	if len(expected) == 0 {
		return 0, false
	}
	return flag.ToFloat(expected[0])
}

func evalNumber(op flag.Operator, actual any, expected []any) Result {
	switch op {
	case flag.OpEquals, flag.OpNotEquals, flag.OpGreaterThan, flag.OpGreaterThanEqual, flag.OpLessThan, flag.OpLessThanEqual:
	default:
		return Unsupported
	}
	a, ok := flag.ToFloat(actual)
	if !ok {
		return Fail
	}
	e, ok := firstFloat(expected)
	if !ok {
		return Fail
	}
	switch op {
	case flag.OpEquals:
		return of(a == e)
	case flag.OpNotEquals:
		return of(a != e)
	case flag.OpGreaterThan:
		return of(a > e)
	case flag.OpGreaterThanEqual:
		return of(a >= e)
	case flag.OpLessThan:
		return of(a < e)
	default:
		return of(a <= e)
	}
}

func toBool(v any) (bool, bool) {
	switch x := v.(type) {
	case bool:
		return x, true
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "true":
			return true, true
		case "false":
			return false, true
		}
	}
	return false, false
}

func evalBoolean(op flag.Operator, actual any) Result {
	switch op {
	case flag.OpIsTrue, flag.OpIsFalse:
	default:
		return Unsupported
	}
	b, ok := toBool(actual)
	if !ok {
		return Fail
	}
	if op == flag.OpIsTrue {
		return of(b)
	}
	return of(!b)
}

var dateLayouts = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"}

// parseDate 支持 RFC3339、2006-01-02 和毫秒时间戳（数字或数字字符串）
func parseDate(v any) (int64, bool) {
	switch x := v.(type) {
	case time.Time:
		return x.UnixMilli(), true
	case *time.Time:
		if x == nil {
			return 0, false
		}
		return x.UnixMilli(), true
	case string:
		s := strings.TrimSpace(x)
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UnixMilli(), true
			}
		}
	}
	if f, ok := flag.ToFloat(v); ok {
		return int64(f), true
	}
	return 0, false
}

func evalDate(op flag.Operator, actual any, expected []any) Result {
	switch op {
	case flag.OpEquals, flag.OpNotEquals, flag.OpBefore, flag.OpAfter, flag.OpBeforeOrEqual, flag.OpAfterOrEqual:
	default:
		return Unsupported
	}
	a, ok := parseDate(actual)
	if !ok || len(expected) == 0 {
		return Fail
	}
	e, ok := parseDate(expected[0])
	if !ok {
		return Fail
	}
	switch op {
	case flag.OpEquals:
		return of(a == e)
	case flag.OpNotEquals:
		return of(a != e)
	case flag.OpBefore:
		return of(a < e)
	case flag.OpAfter:
		return of(a > e)
	case flag.OpBeforeOrEqual:
		return of(a <= e)
	default:
		return of(a >= e)
	}
}

func evalSemver(op flag.Operator, actual any, expected []any) Result {
	switch op {
	case flag.OpEquals, flag.OpNotEquals, flag.OpGreaterThan, flag.OpGreaterThanEqual, flag.OpLessThan, flag.OpLessThanEqual:
	default:
		return Unsupported
	}
	if len(expected) == 0 {
		return Fail
	}
	a, err := version.NewSemver(strings.TrimSpace(flag.Stringify(actual)))
	if err != nil {
		return Fail
	}
	e, err := version.NewSemver(strings.TrimSpace(flag.Stringify(expected[0])))
	if err != nil {
		return Fail
	}
	c := a.Compare(e)
	switch op {
	case flag.OpEquals:
		return of(c == 0)
	case flag.OpNotEquals:
		return of(c != 0)
	case flag.OpGreaterThan:
		return of(c > 0)
	case flag.OpGreaterThanEqual:
		return of(c >= 0)
	case flag.OpLessThan:
		return of(c < 0)
	default:
		return of(c <= 0)
	}
}

// toSlice 任意 slice/array 转 []any，string 和 []byte 不算数组
func toSlice(v any) ([]any, bool) {
	if xs, ok := v.([]any); ok {
		return xs, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	if rv.Type().Elem().Kind() == reflect.Uint8 {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func evalArray(op flag.Operator, actual any, expected []any) Result {
	switch op {
	case flag.OpContainsAny, flag.OpContainsAll, flag.OpHasLength, flag.OpIsEmpty, flag.OpIsNotEmpty:
	default:
		return Unsupported
	}
	items, ok := toSlice(actual)
	if !ok {
		return Fail
	}

	switch op {
	case flag.OpIsEmpty:
		return of(len(items) == 0)
	case flag.OpIsNotEmpty:
		return of(len(items) > 0)
	case flag.OpHasLength:
		n, ok := firstFloat(expected)
		return of(ok && float64(len(items)) == n)
	}

	if len(expected) == 0 {
		return Fail
	}
	have := mapset.NewThreadUnsafeSetWithSize[string](len(items))
	for _, it := range items {
		have.Add(lower(it))
	}
	want := mapset.NewThreadUnsafeSetWithSize[string](len(expected))
	for _, e := range expected {
		want.Add(lower(e))
	}
	if op == flag.OpContainsAny {
		return of(have.ContainsAny(want.ToSlice()...))
	}
	return of(want.IsSubset(have))
}
