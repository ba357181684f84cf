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

package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-arcade/flagforge/internal/pkg/flag"
	"github.com/go-arcade/flagforge/internal/pkg/rollout"
	"github.com/go-arcade/flagforge/internal/pkg/targeting"
	"github.com/go-arcade/flagforge/pkg/log"
	"github.com/go-arcade/flagforge/pkg/metrics"
	"github.com/go-arcade/flagforge/pkg/safe"
	"github.com/go-arcade/flagforge/pkg/trace"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

// 请求校验错误，都包装 flag.ErrInvalidRequest
var (
	ErrOrgSlugEmpty       = fmt.Errorf("org slug is empty: %w", flag.ErrInvalidRequest)
	ErrFlagKeyEmpty       = fmt.Errorf("flag key is empty: %w", flag.ErrInvalidRequest)
	ErrInvalidEnvironment = fmt.Errorf("environment must be one of DEV, STAGING, PROD, TEST: %w", flag.ErrInvalidRequest)
	ErrOrgSlugInvalid     = fmt.Errorf("org slug must not contain ':': %w", flag.ErrInvalidRequest)
	ErrFlagKeyInvalid     = fmt.Errorf("flag key must not contain ':': %w", flag.ErrInvalidRequest)
	ErrEmptyBatch         = fmt.Errorf("flag keys are empty: %w", flag.ErrInvalidRequest)
	ErrBatchTooLarge      = fmt.Errorf("too many flag keys: %w", flag.ErrInvalidRequest)
)

type EvaluationRequest struct {
	OrgSlug     string         `json:"orgSlug"`
	FlagKey     string         `json:"flagKey"`
	Environment string         `json:"environment"`
	UserContext map[string]any `json:"userContext"`
}

type EvaluationResult struct {
	FlagKey      string           `json:"flagKey"`
	Environment  flag.Environment `json:"environment"`
	Value        any              `json:"value"`
	DefaultValue any              `json:"defaultValue"`
	// Enabled 当且仅当 Reason 为 matched
	Enabled     bool        `json:"enabled"`
	RuleMatched string      `json:"ruleMatched,omitempty"`
	Reason      flag.Reason `json:"reason"`
	VariantID   string      `json:"variantId,omitempty"`
}

type BatchRequest struct {
	OrgSlug     string         `json:"orgSlug"`
	Environment string         `json:"environment"`
	FlagKeys    []string       `json:"flagKeys"`
	UserContext map[string]any `json:"userContext"`
}

// BatchItem 单个 flag 的结果，失败时只有 Error
type BatchItem struct {
	FlagKey string            `json:"flagKey"`
	Result  *EvaluationResult `json:"result,omitempty"`
	Error   string            `json:"error,omitempty"`
	// Err 原始错误，供调用方映射错误码
	Err error `json:"-"`
}

// EvaluationService 评估入口：快照 -> kill switch -> 规则 -> rollout -> 结果
type EvaluationService struct {
	settings     *Settings
	snapshots    *SnapshotService
	killSwitches *KillSwitchService
	metrics      *metrics.EvaluationMetrics
	now          func() time.Time
}

func NewEvaluationService(settings *Settings, snapshots *SnapshotService, killSwitches *KillSwitchService, m *metrics.EvaluationMetrics) *EvaluationService {
	return &EvaluationService{
		settings:     settings,
		snapshots:    snapshots,
		killSwitches: killSwitches,
		metrics:      m,
		now:          time.Now,
	}
}

func parseTarget(org, flagKey, environment string) (flag.Environment, error) {
	if strings.TrimSpace(org) == "" {
		return "", ErrOrgSlugEmpty
	}
	if strings.TrimSpace(flagKey) == "" {
		return "", ErrFlagKeyEmpty
	}
	if !flag.ValidKey(org) {
		return "", ErrOrgSlugInvalid
	}
	if !flag.ValidKey(flagKey) {
		return "", ErrFlagKeyInvalid
	}
	env, ok := flag.ParseEnvironment(environment)
	if !ok {
		return "", ErrInvalidEnvironment
	}
	return env, nil
}

// Evaluate 返回的错误只有三类：ErrInvalidRequest、ErrNotFound、ErrStoreUnavailable
// 配置错误、kill switch 读取失败、panic 都会降级为默认值
func (s *EvaluationService) Evaluate(ctx context.Context, req *EvaluationRequest) (*EvaluationResult, error) {
	env, err := parseTarget(req.OrgSlug, req.FlagKey, req.Environment)
	if err != nil {
		return nil, err
	}
	return s.evaluate(ctx, req.OrgSlug, env, req.FlagKey, req.UserContext)
}

func (s *EvaluationService) evaluate(ctx context.Context, org string, env flag.Environment, flagKey string, userCtx map[string]any) (*EvaluationResult, error) {
	start := time.Now()
	ctx, span := trace.StartSpan(ctx, "flag.evaluate")
	defer span.End()
	span.SetAttributes(
		attribute.String("flag.org", org),
		attribute.String("flag.environment", string(env)),
		attribute.String("flag.key", flagKey),
	)

	snap, err := s.snapshots.Get(ctx, org, env, flagKey)
	if err != nil {
		trace.RecordError(span, err)
		switch {
		case errors.Is(err, flag.ErrNotFound):
			return nil, err
		case errors.Is(err, flag.ErrInvalidConfiguration):
			// 存储实现没有给出快照，连默认值都拿不到
			log.WithContext(ctx).Warnw("unreadable flag configuration", "org", org, "flagKey", flagKey, "environment", env, "error", err)
			res := &EvaluationResult{FlagKey: flagKey, Environment: env, Reason: flag.ReasonInvalidConfiguration}
			s.metrics.ObserveEvaluation(string(res.Reason), time.Since(start))
			return res, nil
		case errors.Is(err, flag.ErrStoreUnavailable):
			return nil, err
		default:
			return nil, fmt.Errorf("%w: %v", flag.ErrStoreUnavailable, err)
		}
	}

	var res *EvaluationResult
	err = safe.DoWithRecover(func() error {
		var err error
		res, err = s.decide(ctx, snap, userCtx)
		return err
	})
	if err != nil {
		log.WithContext(ctx).Errorw("evaluation failed, serving default value",
			"org", org, "flagKey", flagKey, "environment", env, "error", err)
		trace.RecordError(span, err)
		res = finish(snap, flag.ReasonDisabled)
	}

	span.SetAttributes(attribute.String("flag.reason", string(res.Reason)))
	s.metrics.ObserveEvaluation(string(res.Reason), time.Since(start))
	return res, nil
}

// finish 非 matched 的结果，值为默认值
func finish(snap *flag.Snapshot, reason flag.Reason) *EvaluationResult {
	return &EvaluationResult{
		FlagKey:      snap.FlagKey,
		Environment:  snap.Environment,
		Value:        snap.DefaultValue,
		DefaultValue: snap.DefaultValue,
		Enabled:      reason == flag.ReasonMatched,
		Reason:       reason,
	}
}

func (s *EvaluationService) decide(ctx context.Context, snap *flag.Snapshot, userCtx map[string]any) (*EvaluationResult, error) {
	if !snap.FlagActive || !snap.EnvEnabled {
		return finish(snap, flag.ReasonDisabled), nil
	}

	active, err := s.killSwitches.IsActive(ctx, snap.OrgSlug, snap.FlagKey, snap.Environment)
	if err != nil {
		// 无法确认开关状态时按已激活处理
		log.WithContext(ctx).Warnw("kill switch check failed, treating as active",
			"org", snap.OrgSlug, "flagKey", snap.FlagKey, "error", err)
		return finish(snap, flag.ReasonDisabled), nil
	}
	if active {
		return finish(snap, flag.ReasonDisabled), nil
	}
	if snap.Malformed != "" {
		log.WithContext(ctx).Warnw("malformed flag configuration, serving default value",
			"org", snap.OrgSlug, "flagKey", snap.FlagKey, "environment", snap.Environment, "detail", snap.Malformed)
		return finish(snap, flag.ReasonInvalidConfiguration), nil
	}

	match := targeting.Match(snap.Rules, userCtx)
	if match.Rule == nil {
		if match.Unsupported > 0 {
			return finish(snap, flag.ReasonInvalidConfiguration), nil
		}
		return finish(snap, flag.ReasonNoRuleMatched), nil
	}

	decision, err := rollout.Decide(snap.Rollout, userCtx, snap.FlagType, snap.Value, s.now())
	switch {
	case errors.Is(err, flag.ErrInvalidConfiguration):
		log.WithContext(ctx).Warnw("invalid rollout configuration",
			"org", snap.OrgSlug, "flagKey", snap.FlagKey, "environment", snap.Environment, "error", err)
		return finish(snap, flag.ReasonInvalidConfiguration), nil
	case err != nil:
		return nil, err
	case !decision.Included:
		return finish(snap, flag.ReasonRolloutExcluded), nil
	}

	res := finish(snap, flag.ReasonMatched)
	res.RuleMatched = match.Rule.Name
	res.Value = snap.Value
	if decision.HasVariant {
		res.Value = decision.Variant
		res.VariantID = decision.VariantID
	}
	return res, nil
}

// EvaluateBatch 并发评估多个 flag，单个 flag 的错误写在对应的 BatchItem 里
func (s *EvaluationService) EvaluateBatch(ctx context.Context, req *BatchRequest) ([]BatchItem, error) {
	if strings.TrimSpace(req.OrgSlug) == "" {
		return nil, ErrOrgSlugEmpty
	}
	if !flag.ValidKey(req.OrgSlug) {
		return nil, ErrOrgSlugInvalid
	}
	env, ok := flag.ParseEnvironment(req.Environment)
	if !ok {
		return nil, ErrInvalidEnvironment
	}
	cfg := s.settings.Load()
	switch {
	case len(req.FlagKeys) == 0:
		return nil, ErrEmptyBatch
	case len(req.FlagKeys) > cfg.MaxBatchSize:
		return nil, fmt.Errorf("%d > %d: %w", len(req.FlagKeys), cfg.MaxBatchSize, ErrBatchTooLarge)
	}

	ctx, span := trace.StartSpan(ctx, "flag.evaluate_batch")
	defer span.End()
	span.SetAttributes(attribute.Int("flag.count", len(req.FlagKeys)))

	items := make([]BatchItem, len(req.FlagKeys))
	var g errgroup.Group
	g.SetLimit(cfg.BatchConcurrency)
	for i, flagKey := range req.FlagKeys {
		g.Go(func() error {
			item := BatchItem{FlagKey: flagKey}
			var res *EvaluationResult
			err := safe.DoWithRecover(func() error {
				if strings.TrimSpace(flagKey) == "" {
					return ErrFlagKeyEmpty
				}
				if !flag.ValidKey(flagKey) {
					return ErrFlagKeyInvalid
				}
				var err error
				res, err = s.evaluate(ctx, req.OrgSlug, env, flagKey, req.UserContext)
				return err
			})
			if err != nil {
				item.Err = err
				item.Error = err.Error()
			} else {
				item.Result = res
			}
			items[i] = item
			return nil
		})
	}
	_ = g.Wait()
	return items, nil
}
