package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"interior/internal/metrics"

	"github.com/sirupsen/logrus"
)

// Policy is a fixed-window quota: MaxRequests per Window per identity within Scope.
type Policy struct {
	MaxRequests int
	Window      time.Duration
	Scope       string
}

// Decision is the structured answer of a check. A rejected check is not an error.
type Decision struct {
	Success    bool
	RetryAfter time.Duration
	Remaining  int
}

// Limiter counts requests per key in fixed windows.
type Limiter interface {
	Allow(ctx context.Context, key string, policy Policy) (Decision, error)
}

func normalizePolicy(policy Policy) Policy {
	if policy.MaxRequests <= 0 {
		policy.MaxRequests = 1
	}
	if policy.Window <= 0 {
		policy.Window = 24 * time.Hour
	}
	if strings.TrimSpace(policy.Scope) == "" {
		policy.Scope = "default"
	}
	return policy
}

func bucketKey(scope, identity string) string {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		identity = "unknown"
	}
	return fmt.Sprintf("%s:%s", scope, identity)
}

// Checker wraps a Limiter and always yields a Decision. Backend errors deny
// the request for one window so a broken store cannot open the trial up.
type Checker struct {
	limiter Limiter
}

func NewChecker(limiter Limiter) *Checker {
	if limiter == nil {
		limiter = NewLocalLimiter(nil)
	}
	return &Checker{limiter: limiter}
}

// CheckRateLimit counts one request by clientIdentity against policy.
func (c *Checker) CheckRateLimit(ctx context.Context, clientIdentity string, policy Policy) Decision {
	policy = normalizePolicy(policy)
	decision, err := c.limiter.Allow(ctx, bucketKey(policy.Scope, clientIdentity), policy)
	if err != nil {
		logrus.WithError(err).WithField("scope", policy.Scope).Error("rate limiter backend unavailable, denying request")
		decision = Decision{Success: false, RetryAfter: policy.Window}
	}
	metrics.RateLimitDecisions.WithLabelValues(policy.Scope, fmt.Sprint(decision.Success)).Inc()
	return decision
}

// RetryAfterSeconds renders a Retry-After header value, never below 1.
func RetryAfterSeconds(d time.Duration) int {
	if d <= 0 {
		return 1
	}
	seconds := int(d.Round(time.Second).Seconds())
	if seconds <= 0 {
		seconds = 1
	}
	return seconds
}
