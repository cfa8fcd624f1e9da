package llm

import (
	"context"
	"errors"
	"strings"
	"time"

	"interior/internal/metrics"

	"github.com/sirupsen/logrus"
)

const defaultAttemptTimeout = 15 * time.Second

// TimedOutMessage 轮询超过上限时写入的失败原因。
const TimedOutMessage = "generation timed out waiting for the provider"

// GuardScopeTrial 匿名试用轮询使用的守卫作用域。
const GuardScopeTrial = "trial"

// Adapter puts the poll guard and the managed/REST fallback in front of a
// FalQueue.
type Adapter struct {
	queue   *FalQueue
	guard   *PollGuard
	timeout time.Duration
	// scope 为空时使用 request id 本身作为守卫键
	scope string
}

func NewAdapter(queue *FalQueue, guard *PollGuard, attemptTimeout time.Duration) (*Adapter, error) {
	if queue == nil {
		return nil, errors.New("fal queue client is nil")
	}
	if guard == nil {
		guard = NewPollGuard(GuardOptions{})
	}
	if attemptTimeout <= 0 {
		attemptTimeout = defaultAttemptTimeout
	}
	return &Adapter{queue: queue, guard: guard, timeout: attemptTimeout}, nil
}

var _ Provider = (*Adapter)(nil)

// Scoped 返回共享客户端和守卫、但轮询计数独立的 Adapter。
// 同一个 request id 在不同作用域下各有一份预算。
func (a *Adapter) Scoped(scope string) *Adapter {
	scoped := *a
	scoped.scope = strings.TrimSpace(scope)
	return &scoped
}

func (a *Adapter) guardKey(requestID string) string {
	if a.scope == "" {
		return requestID
	}
	return a.scope + ":" + requestID
}

func (a *Adapter) Submit(ctx context.Context, spec JobSpec) (string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	return a.queue.Submit(attemptCtx, spec)
}

// PollStatus never fails: the guard may force a failure, transport errors on
// both paths read as processing.
func (a *Adapter) PollStatus(ctx context.Context, requestID string) PollResult {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return failed("missing request id")
	}
	logger := providerLogger(ctx, a.queue.model, requestID)

	key := a.guardKey(requestID)
	if reason := a.guard.Observe(key); reason != "" {
		metrics.PollGuardTrips.WithLabelValues(reason).Inc()
		metrics.ProviderPolls.WithLabelValues(string(pollPathGuard), string(StatusFailed)).Inc()
		logger.WithField("reason", reason).Warn("falai_poll_guard_tripped")
		return failed(TimedOutMessage)
	}

	start := time.Now()
	outcome := a.attempt(ctx, a.queue.pollManaged, requestID)
	if outcome.kind == outcomeTransportError {
		logger.WithError(outcome.err).Warn("falai_poll_managed_failed_fallback_rest")
		outcome = a.attempt(ctx, a.queue.pollREST, requestID)
		if outcome.kind == outcomeTransportError {
			logger.WithError(outcome.err).Warn("falai_poll_rest_failed")
		}
	}
	metrics.ProviderLatency.WithLabelValues("poll").Observe(time.Since(start).Seconds())

	result := outcome.normalize()
	metrics.ProviderPolls.WithLabelValues(string(outcome.path), string(result.Status)).Inc()
	if result.Status.IsTerminal() {
		a.guard.Clear(key)
		logger.WithFields(logrus.Fields{
			"path":   outcome.path,
			"status": result.Status,
			"error":  result.Error,
		}).Info("falai_poll_terminal")
	} else {
		logger.WithFields(logrus.Fields{
			"path":       outcome.path,
			"raw_status": outcome.rawStatus,
		}).Debug("falai_poll_pending")
	}
	return result
}

func (a *Adapter) attempt(ctx context.Context, poll func(context.Context, string) pollOutcome, requestID string) pollOutcome {
	attemptCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	return poll(attemptCtx, requestID)
}
