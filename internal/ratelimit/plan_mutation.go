package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/planforge/internal/config"
)

const keyPlanMutationOrg = "plan:mutate:org:%s"

// PlanMutationLimiter throttles plan writes per organization and serializes
// concurrent saves of the same plan with a redis lock. A nil limiter means
// rate limiting is disabled; all checks pass.
type PlanMutationLimiter struct {
	enabled bool

	bucket   *TokenBucket
	saveLock *SaveLock

	rate  float64
	burst int
}

func NewPlanMutationLimiter(cfg config.Config) (*PlanMutationLimiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return nil, nil
	}

	addr := strings.TrimSpace(limitCfg.RedisAddr)
	if addr == "" {
		return nil, errors.New("rate limit redis addr is required")
	}
	if limitCfg.PlanMutationRate <= 0 || limitCfg.PlanMutationBurst <= 0 {
		return nil, errors.New("plan mutation rate limit must be positive")
	}
	if limitCfg.PlanSaveLockTTLSeconds <= 0 {
		return nil, errors.New("plan save lock ttl must be positive")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(limitCfg.RedisPassword),
		DB:       limitCfg.RedisDB,
	})

	return &PlanMutationLimiter{
		enabled:  true,
		bucket:   NewTokenBucket(client),
		saveLock: NewSaveLock(client, time.Duration(limitCfg.PlanSaveLockTTLSeconds)*time.Second),
		rate:     limitCfg.PlanMutationRate,
		burst:    limitCfg.PlanMutationBurst,
	}, nil
}

func (l *PlanMutationLimiter) Enabled() bool {
	return l != nil && l.enabled
}

func (l *PlanMutationLimiter) AllowMutation(ctx context.Context, orgID string) (*Result, error) {
	if !l.Enabled() {
		return &Result{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyPlanMutationOrg, strings.TrimSpace(orgID)), l.rate, l.burst)
}

func (l *PlanMutationLimiter) TryLockPlan(ctx context.Context, orgID, planID string) (string, bool, error) {
	if !l.Enabled() {
		return "", true, nil
	}
	return l.saveLock.Acquire(ctx, orgID, planID)
}

func (l *PlanMutationLimiter) ReleasePlan(ctx context.Context, orgID, planID, token string) error {
	if !l.Enabled() {
		return nil
	}
	return l.saveLock.Release(ctx, orgID, planID, token)
}
