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

package flag

import (
	"strings"
)

type FlagType string

const (
	FlagTypeBoolean      FlagType = "BOOLEAN"
	FlagTypeString       FlagType = "STRING"
	FlagTypeNumber       FlagType = "NUMBER"
	FlagTypeJSON         FlagType = "JSON"
	FlagTypeABTest       FlagType = "AB_TEST"
	FlagTypeMultivariate FlagType = "MULTIVARIATE"
)

// FlagTypes 全部 flag 类型
var FlagTypes = []FlagType{
	FlagTypeBoolean, FlagTypeString, FlagTypeNumber, FlagTypeJSON, FlagTypeABTest, FlagTypeMultivariate,
}

func (t FlagType) Valid() bool {
	switch t {
	case FlagTypeBoolean, FlagTypeString, FlagTypeNumber, FlagTypeJSON, FlagTypeABTest, FlagTypeMultivariate:
		return true
	}
	return false
}

// HasVariants AB_TEST 和 MULTIVARIATE 的值是一组 variant
func (t FlagType) HasVariants() bool {
	return t == FlagTypeABTest || t == FlagTypeMultivariate
}

// ParseFlagType 不区分大小写
func ParseFlagType(s string) (FlagType, bool) {
	t := FlagType(strings.ToUpper(strings.TrimSpace(s)))
	return t, t.Valid()
}

type Environment string

const (
	EnvDev     Environment = "DEV"
	EnvStaging Environment = "STAGING"
	EnvProd    Environment = "PROD"
	EnvTest    Environment = "TEST"
)

// Environments 固定的环境集合，kill switch 的空环境列表展开成它
var Environments = []Environment{EnvDev, EnvStaging, EnvProd, EnvTest}

func (e Environment) Valid() bool {
	switch e {
	case EnvDev, EnvStaging, EnvProd, EnvTest:
		return true
	}
	return false
}

// ParseEnvironment 不区分大小写
func ParseEnvironment(s string) (Environment, bool) {
	e := Environment(strings.ToUpper(strings.TrimSpace(s)))
	return e, e.Valid()
}

// ValidKey org slug、flag key、kill switch key 都会拼进 cache key，不能为空也不能包含分隔符 ':'
func ValidKey(s string) bool {
	return strings.TrimSpace(s) != "" && !strings.Contains(s, ":")
}

type Flag struct {
	ID       string   `json:"id"`
	OrgSlug  string   `json:"orgSlug"`
	Key      string   `json:"key"`
	Type     FlagType `json:"type"`
	IsActive bool     `json:"isActive"`
	Tags     []string `json:"tags,omitempty"`
}

// EnvironmentConfig 一个 flag 在一个环境下的配置
type EnvironmentConfig struct {
	FlagID       string      `json:"flagId"`
	Environment  Environment `json:"environment"`
	Value        any         `json:"value"`
	DefaultValue any         `json:"defaultValue"`
	IsEnabled    bool        `json:"isEnabled"`
	// Rules 按创建顺序
	Rules   []Rule   `json:"rules,omitempty"`
	Rollout *Rollout `json:"rollout,omitempty"`
	// Malformed 存储中无法解析的部分，非空时评估降级为默认值
	Malformed string `json:"malformed,omitempty"`
}

type Rule struct {
	ID         string      `json:"id,omitempty"`
	Name       string      `json:"name"`
	IsEnabled  bool        `json:"isEnabled"`
	Conditions []Condition `json:"conditions"`
}

type Condition struct {
	AttributeName  string        `json:"attributeName"`
	AttributeType  AttributeType `json:"attributeType"`
	Operator       Operator      `json:"operator"`
	ExpectedValues []any         `json:"expectedValues,omitempty"`
}

type AttributeType string

const (
	AttrString  AttributeType = "STRING"
	AttrNumber  AttributeType = "NUMBER"
	AttrBoolean AttributeType = "BOOLEAN"
	AttrDate    AttributeType = "DATE"
	AttrSemver  AttributeType = "SEMVER"
	AttrArray   AttributeType = "ARRAY"
)

type Operator string

const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "not_equals"
	OpContains    Operator = "contains"
	OpNotContains Operator = "not_contains"
	OpStartsWith  Operator = "starts_with"
	OpEndsWith    Operator = "ends_with"
	OpMatchRegex  Operator = "matches_regex"
	OpIsOneOf     Operator = "is_one_of"
	OpIsNotOneOf  Operator = "is_not_one_of"

	OpGreaterThan      Operator = "greater_than"
	OpGreaterThanEqual Operator = "greater_than_equal"
	OpLessThan         Operator = "less_than"
	OpLessThanEqual    Operator = "less_than_equal"

	OpIsTrue  Operator = "is_true"
	OpIsFalse Operator = "is_false"

	OpBefore        Operator = "before"
	OpAfter         Operator = "after"
	OpBeforeOrEqual Operator = "before_or_equal"
	OpAfterOrEqual  Operator = "after_or_equal"

	OpContainsAny Operator = "contains_any"
	OpContainsAll Operator = "contains_all"
	OpHasLength   Operator = "has_length"
	OpIsEmpty     Operator = "is_empty"
	OpIsNotEmpty  Operator = "is_not_empty"
)

// Negative 缺失属性时为 true 的运算符
func (o Operator) Negative() bool {
	switch o {
	case OpNotEquals, OpNotContains, OpIsNotOneOf, OpIsEmpty:
		return true
	}
	return false
}
