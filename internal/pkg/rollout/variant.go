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

package rollout

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/bytedance/sonic"
	"github.com/cespare/xxhash/v2"
	"github.com/go-arcade/flagforge/internal/pkg/flag"
)

// variantSeed 与分桶 hash 区分开，避免 bucket 和 variant 相关
const variantSeed uint64 = 0x9e3779b97f4a7c15

type Variant struct {
	ID    string
	Value any
}

// Variants 从 flag 的值中提取 variant 列表
// object: 按 key 升序；array: 按下标，元素形如 {"key"|"id": ..., "value": ...} 时使用自带的 id
func Variants(value any) ([]Variant, error) {
	switch v := value.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make([]Variant, 0, len(keys))
		for _, k := range keys {
			out = append(out, Variant{ID: k, Value: v[k]})
		}
		if len(out) > 0 {
			return out, nil
		}
	case []any:
		out := make([]Variant, 0, len(v))
		for i, item := range v {
			out = append(out, arrayVariant(i, item))
		}
		if len(out) > 0 {
			return out, nil
		}
	}
	return nil, fmt.Errorf("%w: value %T has no variants", flag.ErrInvalidConfiguration, value)
}

func arrayVariant(i int, item any) Variant {
	if m, ok := item.(map[string]any); ok {
		val, hasValue := m["value"]
		for _, idKey := range []string{"key", "id"} {
			if id, ok := m[idKey]; ok && hasValue {
				if s := flag.Stringify(id); s != "" {
					return Variant{ID: s, Value: val}
				}
			}
		}
	}
	return Variant{ID: strconv.Itoa(i), Value: item}
}

// CanonicalJSON map key 排序后的 JSON
func CanonicalJSON(value any) ([]byte, error) {
	return sonic.ConfigStd.Marshal(value)
}

// VariantHash 与 Bucket 使用不同的 seed，并且混入了值本身
func VariantHash(identity string, value any) (uint64, error) {
	canonical, err := CanonicalJSON(value)
	if err != nil {
		return 0, fmt.Errorf("%w: value is not serializable: %v", flag.ErrInvalidConfiguration, err)
	}
	d := xxhash.NewWithSeed(variantSeed)
	_, _ = d.WriteString(identity)
	_, _ = d.WriteString("|")
	_, _ = d.Write(canonical)
	return d.Sum64(), nil
}

// SelectVariant 相同的 identity 与 variant 集合总是得到同一个 variant
func SelectVariant(identity string, value any) (Variant, error) {
	variants, err := Variants(value)
	if err != nil {
		return Variant{}, err
	}
	h, err := VariantHash(identity, value)
	if err != nil {
		return Variant{}, err
	}
	return variants[h%uint64(len(variants))], nil
}
