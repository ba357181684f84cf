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
	"fmt"
	"time"
)

type RolloutType string

const (
	RolloutPercentage        RolloutType = "PERCENTAGE"
	RolloutProgressive       RolloutType = "PROGRESSIVE_ROLLOUT"
	RolloutCustomProgressive RolloutType = "CUSTOM_PROGRESSIVE_ROLLOUT"
)

// Rollout 按 Type 区分的联合体，只有与 Type 对应的那个字段非空
type Rollout struct {
	Type              RolloutType               `json:"rolloutType"`
	Percentage        *PercentageRollout        `json:"percentage,omitempty"`
	Progressive       *ProgressiveRollout       `json:"progressive,omitempty"`
	CustomProgressive *CustomProgressiveRollout `json:"customProgressive,omitempty"`
}

type PercentageRollout struct {
	Percentage float64 `json:"percentage"`
	// nil 表示不限制
	StartDate *time.Time `json:"startDate,omitempty"`
	EndDate   *time.Time `json:"endDate,omitempty"`
}

type ProgressiveRollout struct {
	StartPercentage float64       `json:"startPercentage"`
	Increment       float64       `json:"increment"`
	MaxPercentage   float64       `json:"maxPercentage"`
	Cadence         string        `json:"cadence"`
	CurrentStage    *CurrentStage `json:"currentStage,omitempty"`
}

type CustomProgressiveRollout struct {
	Stages       []Stage       `json:"stages"`
	CurrentStage *CurrentStage `json:"currentStage,omitempty"`
}

type Stage struct {
	Percentage float64   `json:"percentage"`
	ActivateAt time.Time `json:"activateAt"`
}

// CurrentStage 由外部的阶段推进任务维护，percentage 只增不减
type CurrentStage struct {
	Percentage     float64    `json:"percentage"`
	NextProgressAt *time.Time `json:"nextProgressAt,omitempty"`
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfiguration, fmt.Sprintf(format, args...))
}

func validPercentage(p float64) bool {
	return p >= 0 && p <= 100
}

// Validate 检查联合体的形状和取值，错误都包装 ErrInvalidConfiguration
func (r *Rollout) Validate() error {
	if r == nil {
		return nil
	}
	set := 0
	for _, ok := range []bool{r.Percentage != nil, r.Progressive != nil, r.CustomProgressive != nil} {
		if ok {
			set++
		}
	}
	if set > 1 {
		return invalid("rollout %s carries %d payloads", r.Type, set)
	}

	switch r.Type {
	case RolloutPercentage:
		p := r.Percentage
		if p == nil {
			return invalid("percentage rollout without payload")
		}
		if !validPercentage(p.Percentage) {
			return invalid("percentage %v out of [0,100]", p.Percentage)
		}
		if p.StartDate != nil && p.EndDate != nil && p.EndDate.Before(*p.StartDate) {
			return invalid("end date %s before start date %s", p.EndDate.Format(time.RFC3339), p.StartDate.Format(time.RFC3339))
		}
	case RolloutProgressive:
		p := r.Progressive
		if p == nil {
			return invalid("progressive rollout without payload")
		}
		if !validPercentage(p.StartPercentage) || !validPercentage(p.MaxPercentage) {
			return invalid("progressive percentages out of [0,100]")
		}
		if p.Increment < 0 {
			return invalid("progressive increment %v is negative", p.Increment)
		}
		return validateStage(p.CurrentStage)
	case RolloutCustomProgressive:
		p := r.CustomProgressive
		if p == nil {
			return invalid("custom progressive rollout without payload")
		}
		for i, s := range p.Stages {
			if !validPercentage(s.Percentage) {
				return invalid("stage %d percentage %v out of [0,100]", i, s.Percentage)
			}
		}
		return validateStage(p.CurrentStage)
	default:
		return invalid("unknown rollout type %q", r.Type)
	}
	return nil
}

func validateStage(s *CurrentStage) error {
	if s == nil {
		return invalid("missing current stage")
	}
	if !validPercentage(s.Percentage) {
		return invalid("current stage percentage %v out of [0,100]", s.Percentage)
	}
	return nil
}
