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

type Reason string

const (
	ReasonMatched              Reason = "matched"
	ReasonDisabled             Reason = "disabled"
	ReasonNoRuleMatched        Reason = "no rule matched"
	ReasonRolloutExcluded      Reason = "rollout excluded"
	ReasonInvalidConfiguration Reason = "invalid configuration"
)

// Reasons 用于预先初始化指标的 label
var Reasons = []Reason{
	ReasonMatched, ReasonDisabled, ReasonNoRuleMatched, ReasonRolloutExcluded, ReasonInvalidConfiguration,
}
