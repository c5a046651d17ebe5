package server

import (
	"context"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/planforge/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/planforge/internal/observability/metrics"
	"github.com/smallbiznis/planforge/internal/orgcontext"
	"go.uber.org/zap"
)

const (
	rateLimitReasonOrgRate      = "org-rate"
	rateLimitReasonSaveInFlight = "save-in-flight"
)

// PlanMutationRateLimit throttles plan writes per organization and, when the
// route addresses a single plan, holds a redis lock for the duration of the
// save so concurrent edits of the same plan cannot interleave.
func (s *Server) PlanMutationRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.planLimiter == nil || !s.planLimiter.Enabled() {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		orgID, ok := orgcontext.OrgIDFromContext(ctx)
		if !ok || orgID == 0 {
			AbortWithError(c, ErrOrgRequired)
			return
		}

		endpoint := normalizeRateLimitEndpoint(c)

		result, err := s.planLimiter.AllowMutation(ctx, orgID.String())
		if err != nil {
			logger.FromContext(ctx).Warn("plan mutation rate limit check failed", zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}
		if !result.Allowed {
			if result.RetryAfter > 0 {
				c.Header("Retry-After", strconv.Itoa(int(result.RetryAfter.Seconds())+1))
			}
			denyPlanMutation(c, endpoint, rateLimitReasonOrgRate, s.obsMetrics)
			return
		}

		if planID := strings.TrimSpace(c.Param("id")); planID != "" {
			token, acquired, err := s.planLimiter.TryLockPlan(ctx, orgID.String(), planID)
			if err != nil {
				logger.FromContext(ctx).Warn("plan save lock failed", zap.Error(err))
				AbortWithError(c, ErrServiceUnavailable)
				return
			}
			if !acquired {
				denyPlanMutation(c, endpoint, rateLimitReasonSaveInFlight, s.obsMetrics)
				return
			}
			defer func() {
				if err := s.planLimiter.ReleasePlan(ctx, orgID.String(), planID, token); err != nil {
					logger.FromContext(ctx).Warn("plan save unlock failed", zap.Error(err))
				}
			}()
		}

		recordRateLimitAllowed(ctx, endpoint, s.obsMetrics)
		c.Next()
	}
}

func denyPlanMutation(c *gin.Context, endpoint, reason string, metrics *obsmetrics.Metrics) {
	ctx := c.Request.Context()
	logger.FromContext(ctx).Warn("plan mutation rate limit exceeded",
		zap.String("reason", reason),
		zap.String("endpoint", endpoint),
	)
	if metrics != nil {
		metrics.RecordRateLimitDenied(ctx, endpoint, reason)
	}

	c.Header("X-Rate-Limited-Reason", reason)
	AbortWithError(c, ErrRateLimited)
}

func recordRateLimitAllowed(ctx context.Context, endpoint string, metrics *obsmetrics.Metrics) {
	if metrics == nil {
		return
	}
	metrics.RecordRateLimitAllowed(ctx, endpoint)
}

func normalizeRateLimitEndpoint(c *gin.Context) string {
	if c == nil {
		return "unknown"
	}
	endpoint := strings.TrimSpace(c.FullPath())
	if endpoint == "" {
		endpoint = strings.TrimSpace(c.Request.URL.Path)
	}
	if endpoint == "" {
		endpoint = "unknown"
	}
	return endpoint
}
