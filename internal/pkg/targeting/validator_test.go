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
	"encoding/json"
	"testing"
	"time"

	"github.com/go-arcade/flagforge/internal/pkg/flag"
	"github.com/stretchr/testify/assert"
)

func cond(attr string, typ flag.AttributeType, op flag.Operator, expected ...any) flag.Condition {
	return flag.Condition{AttributeName: attr, AttributeType: typ, Operator: op, ExpectedValues: expected}
}

type validateCase struct {
	name   string
	cond   flag.Condition
	ctx    map[string]any
	expect Result
}

func runCases(t *testing.T, cases []validateCase) {
	t.Helper()
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, Validate(tt.cond, tt.ctx))
		})
	}
}

func TestValidate_MissingAttribute(t *testing.T) {
	empty := map[string]any{}
	withNil := map[string]any{"country": nil}

	negatives := []flag.Operator{flag.OpNotEquals, flag.OpNotContains, flag.OpIsNotOneOf, flag.OpIsEmpty}
	positives := []flag.Operator{flag.OpEquals, flag.OpContains, flag.OpIsOneOf, flag.OpStartsWith, flag.OpGreaterThan, flag.OpIsTrue, flag.OpIsNotEmpty, "bogus"}

	types := []flag.AttributeType{flag.AttrString, flag.AttrNumber, flag.AttrArray, flag.AttrDate, "UNKNOWN"}
	for _, typ := range types {
		for _, op := range negatives {
			assert.Equal(t, Pass, Validate(cond("country", typ, op, "US"), empty), "%s %s", typ, op)
			assert.Equal(t, Pass, Validate(cond("country", typ, op, "US"), withNil), "%s %s nil", typ, op)
		}
		for _, op := range positives {
			assert.Equal(t, Fail, Validate(cond("country", typ, op, "US"), empty), "%s %s", typ, op)
		}
	}
}

func TestValidate_String(t *testing.T) {
	ctx := map[string]any{"country": "US", "email": "Alice@Example.com", "plan": 42}
	runCases(t, []validateCase{
		{"equals case-insensitive", cond("country", flag.AttrString, flag.OpEquals, "us"), ctx, Pass},
		{"equals any expected", cond("country", flag.AttrString, flag.OpEquals, "FR", "US"), ctx, Pass},
		{"equals miss", cond("country", flag.AttrString, flag.OpEquals, "FR"), ctx, Fail},
		{"not_equals none match", cond("country", flag.AttrString, flag.OpNotEquals, "FR", "DE"), ctx, Pass},
		{"not_equals one match", cond("country", flag.AttrString, flag.OpNotEquals, "FR", "us"), ctx, Fail},
		{"contains", cond("email", flag.AttrString, flag.OpContains, "@EXAMPLE"), ctx, Pass},
		{"not_contains", cond("email", flag.AttrString, flag.OpNotContains, "gmail"), ctx, Pass},
		{"not_contains hit", cond("email", flag.AttrString, flag.OpNotContains, "gmail", "example"), ctx, Fail},
		{"starts_with", cond("email", flag.AttrString, flag.OpStartsWith, "alice"), ctx, Pass},
		{"ends_with", cond("email", flag.AttrString, flag.OpEndsWith, ".COM"), ctx, Pass},
		{"ends_with miss", cond("email", flag.AttrString, flag.OpEndsWith, ".org"), ctx, Fail},
		{"regex", cond("email", flag.AttrString, flag.OpMatchRegex, `^alice@.+\.com$`), ctx, Pass},
		{"regex miss", cond("email", flag.AttrString, flag.OpMatchRegex, `^bob@`), ctx, Fail},
		{"invalid regex is false", cond("email", flag.AttrString, flag.OpMatchRegex, `([`), ctx, Fail},
		{"is_one_of", cond("country", flag.AttrString, flag.OpIsOneOf, "CA", "us"), ctx, Pass},
		{"is_not_one_of", cond("country", flag.AttrString, flag.OpIsNotOneOf, "CA", "MX"), ctx, Pass},
		{"number stringified", cond("plan", flag.AttrString, flag.OpEquals, "42"), ctx, Pass},
		{"unknown operator", cond("country", flag.AttrString, flag.OpGreaterThan, "US"), ctx, Unsupported},
	})
}

func TestValidate_InvalidRegexNeverPanics(t *testing.T) {
	ctx := map[string]any{"path": "/a"}
	for i := 0; i < 3; i++ {
		assert.NotPanics(t, func() {
			assert.Equal(t, Fail, Validate(cond("path", flag.AttrString, flag.OpMatchRegex, `(?P<`), ctx))
		})
	}
	assert.Nil(t, compileRegex(`(?P<`))
	assert.NotNil(t, compileRegex(`^/a$`))
}

func TestValidate_Number(t *testing.T) {
	ctx := map[string]any{"age": 30, "score": "7.5", "n": json.Number("12"), "name": "bob"}
	runCases(t, []validateCase{
		{"equals int", cond("age", flag.AttrNumber, flag.OpEquals, 30), ctx, Pass},
		{"equals string expected", cond("age", flag.AttrNumber, flag.OpEquals, "30"), ctx, Pass},
		{"not_equals", cond("age", flag.AttrNumber, flag.OpNotEquals, 31), ctx, Pass},
		{"greater_than", cond("age", flag.AttrNumber, flag.OpGreaterThan, 18), ctx, Pass},
		{"greater_than_equal", cond("age", flag.AttrNumber, flag.OpGreaterThanEqual, 30), ctx, Pass},
		{"less_than", cond("score", flag.AttrNumber, flag.OpLessThan, 8), ctx, Pass},
		{"less_than_equal", cond("score", flag.AttrNumber, flag.OpLessThanEqual, 7.4), ctx, Fail},
		{"json.Number", cond("n", flag.AttrNumber, flag.OpEquals, 12), ctx, Pass},
		{"non-numeric context", cond("name", flag.AttrNumber, flag.OpEquals, 1), ctx, Fail},
		{"non-numeric expected", cond("age", flag.AttrNumber, flag.OpEquals, "thirty"), ctx, Fail},
		{"not_equals non-numeric is false", cond("name", flag.AttrNumber, flag.OpNotEquals, 1), ctx, Fail},
		{"no expected", cond("age", flag.AttrNumber, flag.OpEquals), ctx, Fail},
		{"unknown operator", cond("age", flag.AttrNumber, flag.OpContains, 3), ctx, Unsupported},
	})
}

func TestValidate_Boolean(t *testing.T) {
	ctx := map[string]any{"beta": true, "s": "FALSE", "n": 1, "x": "yes"}
	runCases(t, []validateCase{
		{"is_true", cond("beta", flag.AttrBoolean, flag.OpIsTrue), ctx, Pass},
		{"is_false", cond("beta", flag.AttrBoolean, flag.OpIsFalse), ctx, Fail},
		{"string false", cond("s", flag.AttrBoolean, flag.OpIsFalse), ctx, Pass},
		{"number is not bool", cond("n", flag.AttrBoolean, flag.OpIsTrue), ctx, Fail},
		{"yes is not bool", cond("x", flag.AttrBoolean, flag.OpIsTrue), ctx, Fail},
		{"unknown operator", cond("beta", flag.AttrBoolean, flag.OpEquals, true), ctx, Unsupported},
	})
}

func TestValidate_Date(t *testing.T) {
	signup := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	ctx := map[string]any{
		"rfc":   signup.Format(time.RFC3339),
		"day":   "2025-06-01",
		"ms":    signup.UnixMilli(),
		"msStr": "1748779200000",
		"bad":   "yesterday",
	}
	runCases(t, []validateCase{
		{"equals rfc3339 vs epoch", cond("rfc", flag.AttrDate, flag.OpEquals, signup.UnixMilli()), ctx, Pass},
		{"equals epoch string", cond("msStr", flag.AttrDate, flag.OpEquals, signup.Format(time.RFC3339)), ctx, Pass},
		{"not_equals", cond("ms", flag.AttrDate, flag.OpNotEquals, "2025-06-02"), ctx, Pass},
		{"before", cond("day", flag.AttrDate, flag.OpBefore, "2025-06-01T12:00:00Z"), ctx, Pass},
		{"after", cond("rfc", flag.AttrDate, flag.OpAfter, "2025-06-01"), ctx, Pass},
		{"before_or_equal", cond("rfc", flag.AttrDate, flag.OpBeforeOrEqual, signup.Format(time.RFC3339)), ctx, Pass},
		{"after_or_equal", cond("day", flag.AttrDate, flag.OpAfterOrEqual, "2025-06-02"), ctx, Fail},
		{"unparseable context", cond("bad", flag.AttrDate, flag.OpBefore, "2025-06-02"), ctx, Fail},
		{"unparseable expected", cond("rfc", flag.AttrDate, flag.OpBefore, "soon"), ctx, Fail},
		{"unknown operator", cond("rfc", flag.AttrDate, flag.OpGreaterThan, "2025-01-01"), ctx, Unsupported},
	})
}

func TestValidate_Semver(t *testing.T) {
	ctx := map[string]any{"app": "2.10.0", "pre": "v1.0.0-beta.1", "bad": "two"}
	runCases(t, []validateCase{
		{"equals", cond("app", flag.AttrSemver, flag.OpEquals, "2.10.0"), ctx, Pass},
		{"numeric compare not lexical", cond("app", flag.AttrSemver, flag.OpGreaterThan, "2.9.9"), ctx, Pass},
		{"greater_than_equal", cond("app", flag.AttrSemver, flag.OpGreaterThanEqual, "2.10.0"), ctx, Pass},
		{"less_than", cond("app", flag.AttrSemver, flag.OpLessThan, "3.0.0"), ctx, Pass},
		{"prerelease less than release", cond("pre", flag.AttrSemver, flag.OpLessThan, "1.0.0"), ctx, Pass},
		{"less_than_equal", cond("app", flag.AttrSemver, flag.OpLessThanEqual, "2.1.0"), ctx, Fail},
		{"not_equals", cond("app", flag.AttrSemver, flag.OpNotEquals, "2.10.1"), ctx, Pass},
		{"invalid context", cond("bad", flag.AttrSemver, flag.OpNotEquals, "1.0.0"), ctx, Fail},
		{"invalid expected", cond("app", flag.AttrSemver, flag.OpGreaterThan, "latest"), ctx, Fail},
		{"unknown operator", cond("app", flag.AttrSemver, flag.OpContains, "2"), ctx, Unsupported},
	})
}

func TestValidate_Array(t *testing.T) {
	ctx := map[string]any{
		"roles":  []any{"Admin", "editor"},
		"ids":    []int{1, 2, 3},
		"tags":   []string{},
		"scalar": "admin",
	}
	runCases(t, []validateCase{
		{"contains_any", cond("roles", flag.AttrArray, flag.OpContainsAny, "viewer", "ADMIN"), ctx, Pass},
		{"contains_any miss", cond("roles", flag.AttrArray, flag.OpContainsAny, "viewer"), ctx, Fail},
		{"contains_all", cond("roles", flag.AttrArray, flag.OpContainsAll, "admin", "Editor"), ctx, Pass},
		{"contains_all partial", cond("roles", flag.AttrArray, flag.OpContainsAll, "admin", "owner"), ctx, Fail},
		{"typed slice", cond("ids", flag.AttrArray, flag.OpContainsAny, 3), ctx, Pass},
		{"has_length", cond("ids", flag.AttrArray, flag.OpHasLength, 3), ctx, Pass},
		{"has_length mismatch", cond("roles", flag.AttrArray, flag.OpHasLength, "3"), ctx, Fail},
		{"is_empty", cond("tags", flag.AttrArray, flag.OpIsEmpty), ctx, Pass},
		{"is_not_empty", cond("roles", flag.AttrArray, flag.OpIsNotEmpty), ctx, Pass},
		{"is_empty on non-array", cond("scalar", flag.AttrArray, flag.OpIsEmpty), ctx, Fail},
		{"contains_any on non-array", cond("scalar", flag.AttrArray, flag.OpContainsAny, "admin"), ctx, Fail},
		{"unknown operator", cond("roles", flag.AttrArray, flag.OpEquals, "admin"), ctx, Unsupported},
	})
}

func TestValidate_UnknownType(t *testing.T) {
	ctx := map[string]any{"x": "1"}
	assert.Equal(t, Unsupported, Validate(cond("x", "GEO", flag.OpEquals, "1"), ctx))
}
