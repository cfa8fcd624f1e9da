package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"interior/internal/entity"
	"interior/internal/llm"
	"interior/internal/ratelimit"
	"interior/internal/utils"

	"github.com/sirupsen/logrus"
)

const trialScope = "trial"

// RateLimitedError 试用额度已用完。
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

// TrialService 匿名试用：限流后直接提交服务商，不触碰账本和生成记录。
type TrialService struct {
	provider llm.Provider
	limiter  *ratelimit.Checker
	policy   ratelimit.Policy
}

func NewTrialService(provider llm.Provider, limiter *ratelimit.Checker, maxRequests int, window time.Duration) *TrialService {
	return &TrialService{
		provider: provider,
		limiter:  limiter,
		policy: ratelimit.Policy{
			MaxRequests: maxRequests,
			Window:      window,
			Scope:       trialScope,
		},
	}
}

func (s *TrialService) Submit(ctx context.Context, clientIdentity string, req entity.TrialGenerateRequest) (*entity.TrialGenerateResponse, error) {
	design := entity.GenerateDesignRequest{
		StyleSlug: req.StyleSlug,
		RoomType:  req.RoomType,
		Image:     req.Image,
		Prompt:    req.Prompt,
	}
	if err := validateDesignRequest(&design); err != nil {
		return nil, err
	}

	decision := s.limiter.CheckRateLimit(ctx, clientIdentity, s.policy)
	if !decision.Success {
		logrus.WithFields(logrus.Fields{
			"client":      clientIdentity,
			"retry_after": decision.RetryAfter.String(),
		}).Info("trial request rate limited")
		return nil, &RateLimitedError{RetryAfter: decision.RetryAfter}
	}

	prompt, err := llm.BuildPrompt(design.StyleSlug, design.RoomType, design.Prompt)
	if err != nil {
		return nil, &ValidationError{Field: "style_slug", Message: err.Error()}
	}
	imageURL := design.Image
	if !utils.IsRemoteURL(imageURL) {
		_, mimeType, _, err := utils.DecodeImagePayload(imageURL)
		if err != nil {
			return nil, &ValidationError{Field: "image", Message: err.Error()}
		}
		imageURL = utils.EnsureDataURL(imageURL, mimeType)
	}

	requestID, err := s.provider.Submit(ctx, llm.JobSpec{ImageURL: imageURL, Prompt: prompt})
	if err != nil {
		logrus.WithError(err).WithField("client", clientIdentity).Error("failed to submit trial generation")
		return nil, &ImageGenerationError{Stage: StageSubmit, Err: err}
	}
	return &entity.TrialGenerateResponse{RequestID: requestID, Status: entity.GenerationStatusPending}, nil
}

// Poll 试用轮询，直接返回服务商归一化的结果。
func (s *TrialService) Poll(ctx context.Context, requestID string) *entity.GenerationStatusResponse {
	requestID = strings.TrimSpace(requestID)
	result := s.provider.PollStatus(ctx, requestID)
	switch result.Status {
	case llm.StatusCompleted:
		return &entity.GenerationStatusResponse{Status: entity.GenerationStatusCompleted, ImageURL: result.OutputURL}
	case llm.StatusFailed:
		return &entity.GenerationStatusResponse{Status: entity.GenerationStatusFailed, Error: result.Error}
	default:
		return &entity.GenerationStatusResponse{Status: entity.GenerationStatusProcessing}
	}
}
