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
	"regexp"

	"github.com/jellydator/ttlcache/v3"
)

const regexCacheCapacity = 1024

type compiled struct {
	re *regexp.Regexp
}

// 编译结果按 pattern 缓存，非法 pattern 缓存为 nil，避免每次请求重复编译
var regexCache = ttlcache.New(
	ttlcache.WithCapacity[string, compiled](regexCacheCapacity),
	ttlcache.WithDisableTouchOnHit[string, compiled](),
)

var regexLoader = ttlcache.LoaderFunc[string, compiled](
	func(c *ttlcache.Cache[string, compiled], pattern string) *ttlcache.Item[string, compiled] {
		re, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			re = nil
		}
		return c.Set(pattern, compiled{re: re}, ttlcache.NoTTL)
	},
)

// compileRegex 大小写不敏感，非法 pattern 返回 nil
func compileRegex(pattern string) *regexp.Regexp {
	item := regexCache.Get(pattern, ttlcache.WithLoader[string, compiled](regexLoader))
	if item == nil {
		return nil
	}
	return item.Value().re
}
