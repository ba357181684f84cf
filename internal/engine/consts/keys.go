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

package consts

import (
	"fmt"

	"github.com/go-arcade/flagforge/internal/pkg/flag"
)

// cache key 布局
//
//	flags:{org}:{env}:{flagKey}        snapshot
//	killswitch:record:{org}:{key}      kill switch 正向记录
//	killswitch:flag:{org}:{flagKey}    flag -> kill switch key 的反向索引 (set)
const (
	SnapshotPrefix         = "flags"
	KillSwitchRecordPrefix = "killswitch:record"
	KillSwitchIndexPrefix  = "killswitch:flag"

	// IndexSentinel 反向索引的占位成员，用来区分“已索引但为空”和“未缓存”
	IndexSentinel = "~"
)

func SnapshotKey(org string, env flag.Environment, flagKey string) string {
	return fmt.Sprintf("%s:%s:%s:%s", SnapshotPrefix, org, env, flagKey)
}

// OrgSnapshotPattern 组织下所有 snapshot 的 glob
func OrgSnapshotPattern(org string) string {
	return fmt.Sprintf("%s:%s:*", SnapshotPrefix, escapeGlob(org))
}

func KillSwitchRecordKey(org, key string) string {
	return fmt.Sprintf("%s:%s:%s", KillSwitchRecordPrefix, org, key)
}

func KillSwitchIndexKey(org, flagKey string) string {
	return fmt.Sprintf("%s:%s:%s", KillSwitchIndexPrefix, org, flagKey)
}

func escapeGlob(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '*', '?', '[', ']', '\\':
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}
