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

import "github.com/go-arcade/flagforge/internal/pkg/flag"

// MatchResult Rule 为 nil 表示没有命中
// Unsupported 统计求值过程中遇到的 Unsupported 条件数
type MatchResult struct {
	Rule        *flag.Rule
	Unsupported int
}

// Match 按顺序遍历规则，跳过禁用和没有条件的规则
// 规则内条件 AND，遇到第一个不通过的条件即停止；第一个全部通过的规则胜出
func Match(rules []flag.Rule, userCtx map[string]any) MatchResult {
	var res MatchResult
	for i := range rules {
		rule := &rules[i]
		if !rule.IsEnabled || len(rule.Conditions) == 0 {
			continue
		}
		matched := true
		for _, cond := range rule.Conditions {
			r := Validate(cond, userCtx)
			if r == Pass {
				continue
			}
			if r == Unsupported {
				res.Unsupported++
			}
			matched = false
			break
		}
		if matched {
			res.Rule = rule
			return res
		}
	}
	return res
}
