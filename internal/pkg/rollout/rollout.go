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
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/go-arcade/flagforge/internal/pkg/flag"
)

// AnonymousIdentity 上下文里既没有 userId 也没有 email 时使用
const AnonymousIdentity = "anonymous"

// Buckets 分桶数，bucket 取值 [0, Buckets)
const Buckets = 100

var identityAttributes = []string{"userId", "email"}

type Decision struct {
	Included bool
	Bucket   int
	// 只有 AB_TEST / MULTIVARIATE 且命中时才有 variant
	HasVariant bool
	VariantID  string
	Variant    any
}

// Identity userId -> email -> anonymous，取第一个非空值
func Identity(userCtx map[string]any) string {
	for _, attr := range identityAttributes {
		v, ok := userCtx[attr]
		if !ok || v == nil {
			continue
		}
		if s := flag.Stringify(v); s != "" {
			return s
		}
	}
	return AnonymousIdentity
}

// Bucket 只由 identity 决定，同一 identity 总是落在同一个桶
func Bucket(identity string) int {
	return int(xxhash.Sum64String(identity) % Buckets)
}

// Decide 判断 userCtx 是否在 rollout 内，命中且 flag 有 variant 时选出 variant
// r 为 nil 表示全量；配置错误返回 flag.ErrInvalidConfiguration
// 阶段由外部推进，这里只读取当前阶段
func Decide(r *flag.Rollout, userCtx map[string]any, flagType flag.FlagType, value any, now time.Time) (Decision, error) {
	if err := r.Validate(); err != nil {
		return Decision{}, err
	}

	identity := Identity(userCtx)
	d := Decision{Bucket: Bucket(identity)}
	d.Included = included(r, d.Bucket, now)
	if !d.Included || !flagType.HasVariants() {
		return d, nil
	}

	v, err := SelectVariant(identity, value)
	if err != nil {
		return Decision{}, err
	}
	d.HasVariant = true
	d.VariantID = v.ID
	d.Variant = v.Value
	return d, nil
}

func included(r *flag.Rollout, bucket int, now time.Time) bool {
	if r == nil {
		return true
	}
	b := float64(bucket)
	switch r.Type {
	case flag.RolloutPercentage:
		p := r.Percentage
		if p.StartDate != nil && now.Before(*p.StartDate) {
			return false
		}
		if p.EndDate != nil && now.After(*p.EndDate) {
			return false
		}
		return b < p.Percentage
	case flag.RolloutProgressive:
		return b < r.Progressive.CurrentStage.Percentage
	case flag.RolloutCustomProgressive:
		return b < r.CustomProgressive.CurrentStage.Percentage
	default:
		return false
	}
}
