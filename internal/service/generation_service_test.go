package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"

	"interior/internal/entity"
	"interior/internal/ledger"
	"interior/internal/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateDesignInsufficientCredits(t *testing.T) {
	h := newHarness(t)
	userID := h.user(t, "broke@example.com", 0)

	_, err := h.generationService(GenerationOptions{}).GenerateDesign(context.Background(), userID, designRequest())

	var insufficient *InsufficientCreditsError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, int64(0), insufficient.Current)
	assert.Equal(t, int64(1), insufficient.Required)
	assert.ErrorIs(t, err, ledger.ErrInsufficientBalance)

	assert.Equal(t, int64(0), h.countGenerations(t, userID))
	assert.Equal(t, 0, h.uploader.uploads, "image must not be stored")
	assert.Empty(t, h.provider.submits)
}

func TestGenerateDesignValidation(t *testing.T) {
	h := newHarness(t)
	userID := h.user(t, "v@example.com", 1)
	svc := h.generationService(GenerationOptions{})

	cases := []struct {
		name  string
		mut   func(*entity.GenerateDesignRequest)
		field string
	}{
		{"未知风格", func(r *entity.GenerateDesignRequest) { r.StyleSlug = "baroque-space" }, "style_slug"},
		{"未知房间", func(r *entity.GenerateDesignRequest) { r.RoomType = "garage" }, "room_type"},
		{"缺少图片", func(r *entity.GenerateDesignRequest) { r.Image = "  " }, "image"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := designRequest()
			tc.mut(&req)
			_, err := svc.GenerateDesign(context.Background(), userID, req)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.field, verr.Field)
		})
	}
	assert.Equal(t, int64(1), h.balance(t, userID))
	assert.Equal(t, int64(0), h.countGenerations(t, userID))
}

func TestGenerateDesignUploadFailure(t *testing.T) {
	h := newHarness(t)
	userID := h.user(t, "up@example.com", 1)
	h.uploader.err = errors.New("bucket unavailable")

	_, err := h.generationService(GenerationOptions{}).GenerateDesign(context.Background(), userID, designRequest())

	var genErr *ImageGenerationError
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, StageUpload, genErr.Stage)
	assert.Equal(t, int64(1), h.balance(t, userID))
	assert.Equal(t, int64(0), h.countGenerations(t, userID))
}

func TestGenerateDesignRollsBackOnDebitFailure(t *testing.T) {
	h := newHarness(t)
	userID := h.user(t, "rollback@example.com", 1)
	storeErr := errors.New("deadlock detected")
	h.ledger = ledger.New(failingDebitStore{Store: h.repo, err: storeErr})

	_, err := h.generationService(GenerationOptions{}).GenerateDesign(context.Background(), userID, designRequest())
	require.ErrorIs(t, err, storeErr)

	assert.Equal(t, int64(0), h.countGenerations(t, userID), "generation must be deleted")
	assert.Equal(t, int64(1), h.balance(t, userID))
	assert.Empty(t, h.provider.submits)
}

func TestGenerateDesignSubmitFailure(t *testing.T) {
	for _, refund := range []bool{false, true} {
		t.Run("refund="+strconv.FormatBool(refund), func(t *testing.T) {
			h := newHarness(t)
			userID := h.user(t, "submit@example.com", 1)
			h.provider.submitErr = errors.New("provider 503")

			_, err := h.generationService(GenerationOptions{RefundFailed: refund}).GenerateDesign(context.Background(), userID, designRequest())
			var genErr *ImageGenerationError
			require.ErrorAs(t, err, &genErr)
			assert.Equal(t, StageSubmit, genErr.Stage)
			require.NotZero(t, genErr.GenerationID)

			gen, err := h.repo.GetGeneration(context.Background(), genErr.GenerationID)
			require.NoError(t, err)
			assert.Equal(t, entity.GenerationStatusFailed, gen.Status)
			assert.Nil(t, gen.ProviderRequestID)

			want := int64(0)
			if refund {
				want = 1
			}
			assert.Equal(t, want, h.balance(t, userID))
		})
	}
}

// 余额 1 → 0，轮询 5 次 processing 后 completed，URL 落库，余额仍为 0。
func TestGenerateAndPollToCompletion(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	userID := h.user(t, "happy@example.com", 1)
	outputURL := "https://fal.media/files/out.png"
	h.provider.requestID = "req-happy"
	h.provider.script = []llm.PollResult{
		{Status: llm.StatusProcessing},
		{Status: llm.StatusProcessing},
		{Status: llm.StatusProcessing},
		{Status: llm.StatusProcessing},
		{Status: llm.StatusProcessing},
		{Status: llm.StatusCompleted, OutputURL: outputURL},
	}

	resp, err := h.generationService(GenerationOptions{}).GenerateDesign(ctx, userID, designRequest())
	require.NoError(t, err)
	assert.Equal(t, "req-happy", resp.ProviderRequestID)
	assert.Equal(t, entity.GenerationStatusPending, resp.Status)
	assert.Equal(t, int64(0), h.balance(t, userID))

	require.Len(t, h.provider.submits, 1)
	assert.Contains(t, h.provider.submits[0].Prompt, "living room")
	assert.True(t, strings.HasPrefix(h.provider.submits[0].ImageURL, "https://cdn.example.com/uploads/"), "provider gets the stored image url")

	used, err := h.ledger.HasTransaction(ctx, entity.CreditTypeUsage, strconv.FormatUint(uint64(resp.GenerationID), 10))
	require.NoError(t, err)
	assert.True(t, used, "debit must be tagged with the generation id")

	tracker := h.trackingService(TrackingOptions{})
	for i := 0; i < 5; i++ {
		status, err := tracker.PollGeneration(ctx, userID, resp.GenerationID)
		require.NoError(t, err)
		assert.Equal(t, entity.GenerationStatusProcessing, status.Status)
	}
	status, err := tracker.PollGeneration(ctx, userID, resp.GenerationID)
	require.NoError(t, err)
	assert.Equal(t, entity.GenerationStatusCompleted, status.Status)
	assert.Equal(t, outputURL, status.ImageURL)

	gen, err := h.repo.GetGeneration(ctx, resp.GenerationID)
	require.NoError(t, err)
	assert.Equal(t, entity.GenerationStatusCompleted, gen.Status)
	require.NotNil(t, gen.OutputImageURL)
	assert.Equal(t, outputURL, *gen.OutputImageURL)
	assert.Equal(t, int64(0), h.balance(t, userID))

	// 终态后不再请求服务商
	polls := h.provider.polls
	status, err = tracker.PollGeneration(ctx, userID, resp.GenerationID)
	require.NoError(t, err)
	assert.Equal(t, entity.GenerationStatusCompleted, status.Status)
	assert.Equal(t, polls, h.provider.polls)
}

func TestConcurrentGenerationsNeverOverspend(t *testing.T) {
	h := newHarness(t)
	userID := h.user(t, "race@example.com", 2)
	svc := h.generationService(GenerationOptions{})

	results := make(chan error, 5)
	for i := 0; i < 5; i++ {
		go func() {
			_, err := svc.GenerateDesign(context.Background(), userID, designRequest())
			results <- err
		}()
	}
	ok, insufficient := 0, 0
	for i := 0; i < 5; i++ {
		err := <-results
		var ice *InsufficientCreditsError
		switch {
		case err == nil:
			ok++
		case errors.As(err, &ice):
			insufficient++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 2, ok)
	assert.Equal(t, 3, insufficient)
	assert.Equal(t, int64(0), h.balance(t, userID))
	assert.Equal(t, int64(2), h.countGenerations(t, userID))

	drift, err := h.ledger.Reconcile(context.Background(), userID)
	require.NoError(t, err)
	assert.True(t, drift.Consistent())
}

func TestGetGenerationOwnership(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	owner := h.user(t, "owner@example.com", 1)
	other := h.user(t, "other@example.com", 0)
	svc := h.generationService(GenerationOptions{})

	resp, err := svc.GenerateDesign(ctx, owner, designRequest())
	require.NoError(t, err)

	gen, err := svc.GetGeneration(ctx, owner, resp.GenerationID)
	require.NoError(t, err)
	assert.Equal(t, "modern", gen.StyleSlug)

	_, err = svc.GetGeneration(ctx, other, resp.GenerationID)
	assert.ErrorIs(t, err, ErrGenerationNotFound)
	_, err = svc.GetGeneration(ctx, owner, 9999)
	assert.ErrorIs(t, err, ErrGenerationNotFound)

	list, err := svc.ListGenerations(ctx, other, entity.GenerationQuery{})
	require.NoError(t, err)
	assert.Empty(t, list.Generations)
	list, err = svc.ListGenerations(ctx, owner, entity.GenerationQuery{})
	require.NoError(t, err)
	assert.Len(t, list.Generations, 1)
}
