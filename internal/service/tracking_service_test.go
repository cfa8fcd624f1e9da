package service

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"interior/internal/entity"
	"interior/internal/llm"
	"interior/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// awaitingGeneration 模拟已扣费并提交成功的记录。
func (h *harness) awaitingGeneration(t *testing.T, userID uint, requestID string) *entity.DbGeneration {
	t.Helper()
	ctx := context.Background()
	gen := &entity.DbGeneration{UserID: userID, StyleSlug: "modern", RoomType: "bedroom", Prompt: "p"}
	require.NoError(t, h.repo.CreateGeneration(ctx, gen))
	_, err := h.ledger.Debit(ctx, userID, GenerationCreditCost, debitReason, strconv.FormatUint(uint64(gen.ID), 10))
	require.NoError(t, err)
	pending := entity.GenerationStatusPending
	_, err = h.repo.UpdateGeneration(ctx, gen.ID, entity.GenerationUpdates{Status: &pending, ProviderRequestID: &requestID})
	require.NoError(t, err)
	gen.ProviderRequestID = &requestID
	return gen
}

func TestPollGenerationProviderFailure(t *testing.T) {
	for _, refund := range []bool{false, true} {
		t.Run("refund="+strconv.FormatBool(refund), func(t *testing.T) {
			h := newHarness(t)
			ctx := context.Background()
			userID := h.user(t, "fail@example.com", 1)
			gen := h.awaitingGeneration(t, userID, "req-fail")
			h.provider.script = []llm.PollResult{{Status: llm.StatusFailed, Error: "nsfw content detected"}}
			tracker := h.trackingService(TrackingOptions{RefundFailed: refund})

			status, err := tracker.PollGeneration(ctx, userID, gen.ID)
			require.NoError(t, err)
			assert.Equal(t, entity.GenerationStatusFailed, status.Status)
			assert.Equal(t, "nsfw content detected", status.Error)

			// 重复轮询不会重复退款
			_, err = tracker.PollGeneration(ctx, userID, gen.ID)
			require.NoError(t, err)
			assert.Equal(t, 1, h.provider.polls)

			want := int64(0)
			if refund {
				want = 1
			}
			assert.Equal(t, want, h.balance(t, userID))
			drift, err := h.ledger.Reconcile(ctx, userID)
			require.NoError(t, err)
			assert.True(t, drift.Consistent())
		})
	}
}

func TestPollGenerationNotAwaiting(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	userID := h.user(t, "na@example.com", 0)
	gen := &entity.DbGeneration{UserID: userID, StyleSlug: "modern", RoomType: "bedroom", Status: entity.GenerationStatusProcessing}
	require.NoError(t, h.repo.CreateGeneration(ctx, gen))

	status, err := h.trackingService(TrackingOptions{}).PollGeneration(ctx, userID, gen.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.GenerationStatusProcessing, status.Status)
	assert.Zero(t, h.provider.polls, "no request id means nothing to poll")
}

func TestPollGenerationOwnership(t *testing.T) {
	h := newHarness(t)
	owner := h.user(t, "o@example.com", 1)
	other := h.user(t, "x@example.com", 0)
	gen := h.awaitingGeneration(t, owner, "req-own")

	_, err := h.trackingService(TrackingOptions{}).PollGeneration(context.Background(), other, gen.ID)
	assert.ErrorIs(t, err, ErrGenerationNotFound)
	assert.Zero(t, h.provider.polls)
}

func TestPollGenerationRehostsOutput(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	userID := h.user(t, "rehost@example.com", 1)
	gen := h.awaitingGeneration(t, userID, "req-rehost")
	h.provider.script = []llm.PollResult{{Status: llm.StatusCompleted, OutputURL: "https://fal.media/files/x.png"}}

	status, err := h.trackingService(TrackingOptions{RehostOutputs: true}).PollGeneration(ctx, userID, gen.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.GenerationStatusCompleted, status.Status)
	assert.Equal(t, []string{"https://fal.media/files/x.png"}, h.uploader.fromURL)
	assert.Contains(t, status.ImageURL, "https://cdn.example.com/outputs/")
}

func TestSweep(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	userID := h.user(t, "sweep@example.com", 3)
	first := h.awaitingGeneration(t, userID, "req-a")
	h.awaitingGeneration(t, userID, "req-b")
	h.awaitingGeneration(t, userID, "req-c")
	h.provider.script = []llm.PollResult{
		{Status: llm.StatusCompleted, OutputURL: "https://fal.media/a.png"},
		{Status: llm.StatusFailed, Error: "boom"},
		{Status: llm.StatusProcessing},
	}

	report, err := h.trackingService(TrackingOptions{}).Sweep(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, SweepReport{Checked: 3, Completed: 1, Failed: 1, Pending: 1}, report)

	gen, err := h.repo.GetGeneration(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.GenerationStatusCompleted, gen.Status)

	awaiting, err := h.repo.ListAwaitingGenerations(ctx, 10)
	require.NoError(t, err)
	require.Len(t, awaiting, 1)
	assert.Equal(t, "req-c", *awaiting[0].ProviderRequestID)
}

func TestSweepFailsGenerationsPastWaitCeiling(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	userID := h.user(t, "wedged@example.com", 1)
	wedged := h.awaitingGeneration(t, userID, "req-stuck")
	h.provider.script = []llm.PollResult{{Status: llm.StatusProcessing}}

	t.Run("未超时照常轮询", func(t *testing.T) {
		tracker := h.trackingService(TrackingOptions{
			MaxAwait: 180 * time.Second,
			Now:      func() time.Time { return time.Now().Add(170 * time.Second) },
		})
		report, err := tracker.Sweep(ctx, 10)
		require.NoError(t, err)
		assert.Equal(t, SweepReport{Checked: 1, Pending: 1}, report)
		assert.Equal(t, 1, h.provider.polls)
	})

	t.Run("超时后每次新建的服务都会判定失败", func(t *testing.T) {
		// 每次 cron 都是新进程，只能依赖库里的提交时间
		tracker := h.trackingService(TrackingOptions{
			RefundFailed: true,
			MaxAwait:     180 * time.Second,
			Now:          func() time.Time { return time.Now().Add(10 * time.Minute) },
		})
		report, err := tracker.Sweep(ctx, 10)
		require.NoError(t, err)
		assert.Equal(t, SweepReport{Checked: 1, Failed: 1}, report)
		assert.Equal(t, 1, h.provider.polls, "overdue generation must not reach the provider")

		gen, err := h.repo.GetGeneration(ctx, wedged.ID)
		require.NoError(t, err)
		assert.Equal(t, entity.GenerationStatusFailed, gen.Status)
		assert.Equal(t, llm.TimedOutMessage, gen.ErrorMessage)
		assert.Equal(t, int64(1), h.balance(t, userID), "refund applies to the forced failure")

		again, err := tracker.Sweep(ctx, 10)
		require.NoError(t, err)
		assert.Zero(t, again.Checked)
	})
}

// unreadableRepo 读取生成记录时总是返回数据库错误。
type unreadableRepo struct {
	model.Repository
}

func (unreadableRepo) GetGeneration(context.Context, uint) (*entity.DbGeneration, error) {
	return nil, errors.New("database is locked")
}

func TestPollGenerationReadErrorReportsProcessing(t *testing.T) {
	h := newHarness(t)
	userID := h.user(t, "dbdown@example.com", 1)
	tracker := NewTrackingService(unreadableRepo{h.repo}, h.ledger, h.provider, h.uploader, TrackingOptions{})

	status, err := tracker.PollGeneration(context.Background(), userID, 1)
	require.NoError(t, err)
	assert.Equal(t, entity.GenerationStatusProcessing, status.Status)
	assert.Zero(t, h.provider.polls)
}
