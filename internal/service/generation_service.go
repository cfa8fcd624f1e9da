package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"interior/internal/entity"
	"interior/internal/ledger"
	"interior/internal/llm"
	"interior/internal/metrics"
	"interior/internal/model"
	"interior/internal/storage"
	"interior/internal/utils"

	"github.com/sirupsen/logrus"
)

// GenerationCreditCost 每次生成扣除的积分。
const GenerationCreditCost int64 = 1

const (
	uploadBucket  = "uploads"
	outputsBucket = "outputs"
	debitReason   = "generation"
)

// ImageUploader 把用户上传的图片或服务商输出转存到对象存储。
type ImageUploader interface {
	Upload(ctx context.Context, payload string, opts storage.UploadOptions) (*storage.UploadResult, error)
	UploadFromURL(ctx context.Context, rawURL string, opts storage.UploadOptions) (*storage.UploadResult, error)
}

// GenerationOptions 生成流程的策略开关。
type GenerationOptions struct {
	// RefundFailed 为 true 时，提交失败或服务商失败的生成退回一次积分
	RefundFailed bool
}

// GenerationService 负责扣费并把生成任务提交给服务商。
type GenerationService struct {
	repo     model.Repository
	ledger   *ledger.Ledger
	uploader ImageUploader
	provider llm.Provider
	opts     GenerationOptions
	now      func() time.Time
}

// NewGenerationService 创建生成服务实例
func NewGenerationService(repo model.Repository, l *ledger.Ledger, uploader ImageUploader, provider llm.Provider, opts GenerationOptions) *GenerationService {
	return &GenerationService{
		repo:     repo,
		ledger:   l,
		uploader: uploader,
		provider: provider,
		opts:     opts,
		now:      time.Now,
	}
}

func validateDesignRequest(req *entity.GenerateDesignRequest) error {
	req.StyleSlug = strings.ToLower(strings.TrimSpace(req.StyleSlug))
	req.RoomType = strings.ToLower(strings.TrimSpace(req.RoomType))
	req.Image = strings.TrimSpace(req.Image)
	req.Prompt = strings.TrimSpace(req.Prompt)

	if _, ok := llm.LookupStyle(req.StyleSlug); !ok {
		return &ValidationError{Field: "style_slug", Message: fmt.Sprintf("unknown style %q", req.StyleSlug)}
	}
	if !llm.ValidRoomType(req.RoomType) {
		return &ValidationError{Field: "room_type", Message: fmt.Sprintf("unknown room type %q", req.RoomType)}
	}
	if req.Image == "" {
		return &ValidationError{Field: "image", Message: "image is required"}
	}
	if len(req.Prompt) > 1000 {
		return &ValidationError{Field: "prompt", Message: "prompt exceeds 1000 characters"}
	}
	return nil
}

// GenerateDesign 检查余额、保存原图、建记录、扣费、提交服务商。
// 扣费失败时删除刚建的记录；提交失败时记录置为 failed，默认不退款。
func (s *GenerationService) GenerateDesign(ctx context.Context, userID uint, req entity.GenerateDesignRequest) (*entity.GenerateDesignResponse, error) {
	if err := validateDesignRequest(&req); err != nil {
		return nil, err
	}
	logger := logrus.WithFields(logrus.Fields{
		"user_id": userID,
		"style":   req.StyleSlug,
		"room":    req.RoomType,
	})

	balance, err := s.ledger.GetBalance(ctx, userID)
	if err != nil {
		return nil, mapLedgerError(err)
	}
	if balance < GenerationCreditCost {
		return nil, &InsufficientCreditsError{Current: balance, Required: GenerationCreditCost}
	}

	upload, err := s.uploader.Upload(ctx, req.Image, storage.UploadOptions{
		Bucket:   uploadBucket,
		FileName: fmt.Sprintf("u%d-%d", userID, s.now().UnixNano()),
	})
	if err != nil {
		logger.WithError(err).Warn("failed to store source image")
		return nil, &ImageGenerationError{Stage: StageUpload, Err: err}
	}

	prompt, err := llm.BuildPrompt(req.StyleSlug, req.RoomType, req.Prompt)
	if err != nil {
		return nil, &ValidationError{Field: "style_slug", Message: err.Error()}
	}

	gen := &entity.DbGeneration{
		UserID:         userID,
		StyleSlug:      req.StyleSlug,
		RoomType:       req.RoomType,
		InputImageURL:  upload.URL,
		InputImagePath: upload.Path,
		Prompt:         prompt,
		Status:         entity.GenerationStatusPending,
	}
	if err := s.repo.CreateGeneration(ctx, gen); err != nil {
		logger.WithError(err).Error("failed to create generation")
		return nil, fmt.Errorf("create generation: %w", err)
	}
	genRef := strconv.FormatUint(uint64(gen.ID), 10)
	logger = logger.WithField("generation_id", gen.ID)

	if _, err := s.ledger.Debit(ctx, userID, GenerationCreditCost, debitReason, genRef); err != nil {
		logger.WithError(err).Warn("failed to debit credits, removing generation")
		if delErr := s.repo.DeleteGeneration(ctx, gen.ID); delErr != nil {
			logger.WithError(delErr).WithField("reconcile", true).Error("failed to delete generation after debit failure")
		}
		if errors.Is(err, ledger.ErrInsufficientBalance) {
			current, balErr := s.ledger.GetBalance(ctx, userID)
			if balErr != nil {
				current = 0
			}
			return nil, &InsufficientCreditsError{Current: current, Required: GenerationCreditCost, err: err}
		}
		return nil, mapLedgerError(err)
	}

	processing := entity.GenerationStatusProcessing
	if _, err := s.repo.UpdateGeneration(ctx, gen.ID, entity.GenerationUpdates{Status: &processing}); err != nil {
		logger.WithError(err).WithField("reconcile", true).Error("credits debited but generation status update failed")
	}

	requestID, err := s.provider.Submit(ctx, llm.JobSpec{
		ImageURL: providerImageURL(req.Image, upload),
		Prompt:   prompt,
	})
	if err != nil {
		metrics.GenerationsSubmitted.WithLabelValues("error").Inc()
		logger.WithError(err).Error("failed to submit generation to provider")
		s.markFailed(ctx, gen, "submit failed: "+err.Error())
		return nil, &ImageGenerationError{Stage: StageSubmit, GenerationID: gen.ID, Err: err}
	}
	metrics.GenerationsSubmitted.WithLabelValues("ok").Inc()

	pending := entity.GenerationStatusPending
	if _, err := s.repo.UpdateGeneration(ctx, gen.ID, entity.GenerationUpdates{
		Status:            &pending,
		ProviderRequestID: &requestID,
	}); err != nil {
		logger.WithError(err).WithFields(logrus.Fields{
			"request_id": requestID,
			"reconcile":  true,
		}).Error("generation submitted but request id was not persisted")
	}

	logger.WithField("request_id", requestID).Info("generation submitted")
	return &entity.GenerateDesignResponse{
		GenerationID:      gen.ID,
		ProviderRequestID: requestID,
		Status:            entity.GenerationStatusPending,
	}, nil
}

// markFailed 置为 failed，按策略退款。
func (s *GenerationService) markFailed(ctx context.Context, gen *entity.DbGeneration, message string) {
	failed := entity.GenerationStatusFailed
	applied, err := s.repo.UpdateGeneration(ctx, gen.ID, entity.GenerationUpdates{Status: &failed, ErrorMessage: &message})
	if err != nil {
		logrus.WithError(err).WithField("generation_id", gen.ID).Error("failed to mark generation failed")
		return
	}
	if applied && s.opts.RefundFailed {
		refundGeneration(ctx, s.ledger, gen)
	}
}

// GetGeneration 只返回属于 userID 的记录。
func (s *GenerationService) GetGeneration(ctx context.Context, userID, id uint) (*entity.DbGeneration, error) {
	gen, err := s.repo.GetGeneration(ctx, id)
	if err != nil {
		return nil, mapNotFound(err, ErrGenerationNotFound)
	}
	if gen.UserID != userID {
		return nil, ErrGenerationNotFound
	}
	return gen, nil
}

func (s *GenerationService) ListGenerations(ctx context.Context, userID uint, params entity.GenerationQuery) (*entity.GenerationListResponse, error) {
	params.UserID = userID
	if params.PageSize > 100 {
		params.PageSize = 100
	}
	gens, meta, err := s.repo.ListGenerations(ctx, &params)
	if err != nil {
		return nil, fmt.Errorf("list generations: %w", err)
	}
	if gens == nil {
		gens = []entity.DbGeneration{}
	}
	return &entity.GenerationListResponse{Generations: gens, Meta: meta}, nil
}

// refundGeneration 对同一生成只退一次。
func refundGeneration(ctx context.Context, l *ledger.Ledger, gen *entity.DbGeneration) {
	ref := strconv.FormatUint(uint64(gen.ID), 10)
	logger := logrus.WithFields(logrus.Fields{"generation_id": gen.ID, "user_id": gen.UserID})
	exists, err := l.HasTransaction(ctx, entity.CreditTypeRefund, ref)
	if err != nil {
		logger.WithError(err).Error("failed to check refund")
		return
	}
	if exists {
		return
	}
	_, err = l.CreditOnce(ctx, gen.UserID, GenerationCreditCost, entity.CreditTypeRefund, ref)
	if errors.Is(err, ledger.ErrDuplicateTransaction) {
		return
	}
	if err != nil {
		logger.WithError(err).WithField("reconcile", true).Error("failed to refund generation")
		return
	}
	logger.Info("refunded failed generation")
}

// providerImageURL 服务商需要能访问的地址：远程 URL 直接用，本地存储则回退为 data URL。
func providerImageURL(original string, upload *storage.UploadResult) string {
	if upload != nil && utils.IsRemoteURL(upload.URL) {
		return upload.URL
	}
	if utils.IsRemoteURL(original) {
		return original
	}
	contentType := ""
	if upload != nil {
		contentType = upload.ContentType
	}
	return utils.EnsureDataURL(original, contentType)
}
