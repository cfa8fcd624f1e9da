package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"interior/internal/entity"
	"interior/internal/ledger"
	"interior/internal/llm"
	"interior/internal/metrics"
	"interior/internal/model"
	"interior/internal/storage"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// TrackingOptions 轮询路径上的策略。
type TrackingOptions struct {
	RefundFailed bool
	// RehostOutputs 为 true 时把服务商输出图转存到自有存储
	RehostOutputs bool
	// MaxAwait 提交后等待服务商的上限，超过后不再轮询直接判定失败。
	// 与进程内的 PollGuard 不同，它以库中的提交时间为准，cron 每次新建进程也能生效。
	MaxAwait time.Duration
	Now      func() time.Time
}

// TrackingService 通过 Provider 轮询生成任务，是唯一写入终态的路径。
type TrackingService struct {
	repo     model.Repository
	ledger   *ledger.Ledger
	provider llm.Provider
	uploader ImageUploader
	opts     TrackingOptions
}

func NewTrackingService(repo model.Repository, l *ledger.Ledger, provider llm.Provider, uploader ImageUploader, opts TrackingOptions) *TrackingService {
	if opts.MaxAwait <= 0 {
		opts.MaxAwait = llm.DefaultPollMaxElapsed
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &TrackingService{repo: repo, ledger: l, provider: provider, uploader: uploader, opts: opts}
}

// PollGeneration 查询 userID 名下的生成状态。服务商异常一律表现为 processing。
func (s *TrackingService) PollGeneration(ctx context.Context, userID, id uint) (*entity.GenerationStatusResponse, error) {
	gen, err := s.repo.GetGeneration(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrGenerationNotFound
	}
	if err != nil {
		// 读库失败不影响任务本身，客户端继续轮询即可
		logrus.WithError(err).WithField("generation_id", id).Error("failed to load generation for polling")
		return &entity.GenerationStatusResponse{Status: entity.GenerationStatusProcessing}, nil
	}
	if gen.UserID != userID {
		return nil, ErrGenerationNotFound
	}
	return s.poll(ctx, gen), nil
}

func (s *TrackingService) poll(ctx context.Context, gen *entity.DbGeneration) *entity.GenerationStatusResponse {
	if gen.Status.IsTerminal() || !gen.AwaitingProvider() {
		return storedStatus(gen)
	}

	requestID := *gen.ProviderRequestID
	logger := logrus.WithFields(logrus.Fields{
		"generation_id": gen.ID,
		"request_id":    requestID,
	})
	var result llm.PollResult
	if s.overdue(gen) {
		metrics.PollGuardTrips.WithLabelValues(llm.GuardReasonAge).Inc()
		logger.WithField("submitted_at", gen.UpdatedAt).Warn("generation exceeded provider wait ceiling")
		result = llm.PollResult{Status: llm.StatusFailed, Error: llm.TimedOutMessage}
	} else {
		result = s.provider.PollStatus(ctx, requestID)
	}

	switch result.Status {
	case llm.StatusCompleted:
		outputURL := s.rehost(ctx, gen, result.OutputURL)
		completed := entity.GenerationStatusCompleted
		applied, err := s.repo.UpdateGeneration(ctx, gen.ID, entity.GenerationUpdates{
			Status:         &completed,
			OutputImageURL: &outputURL,
		})
		if err != nil {
			logger.WithError(err).Error("failed to persist completed generation")
			return &entity.GenerationStatusResponse{Status: entity.GenerationStatusProcessing}
		}
		if !applied {
			return s.reload(ctx, gen)
		}
		logger.Info("generation completed")
		return &entity.GenerationStatusResponse{Status: completed, ImageURL: outputURL}

	case llm.StatusFailed:
		message := strings.TrimSpace(result.Error)
		if message == "" {
			message = "generation failed"
		}
		failed := entity.GenerationStatusFailed
		applied, err := s.repo.UpdateGeneration(ctx, gen.ID, entity.GenerationUpdates{
			Status:       &failed,
			ErrorMessage: &message,
		})
		if err != nil {
			logger.WithError(err).Error("failed to persist failed generation")
			return &entity.GenerationStatusResponse{Status: entity.GenerationStatusProcessing}
		}
		if !applied {
			return s.reload(ctx, gen)
		}
		logger.WithField("error", message).Warn("generation failed")
		if s.opts.RefundFailed {
			refundGeneration(ctx, s.ledger, gen)
		}
		return &entity.GenerationStatusResponse{Status: failed, Error: message}

	default:
		return &entity.GenerationStatusResponse{Status: entity.GenerationStatusProcessing}
	}
}

// overdue 以最后一次状态变更（即提交服务商）的时间判断是否等待过久。
func (s *TrackingService) overdue(gen *entity.DbGeneration) bool {
	submitted := gen.UpdatedAt
	if submitted.IsZero() {
		submitted = gen.CreatedAt
	}
	if submitted.IsZero() {
		return false
	}
	return s.opts.Now().Sub(submitted) > s.opts.MaxAwait
}

// reload 并发轮询已经写入终态时，以库里的结果为准。
func (s *TrackingService) reload(ctx context.Context, gen *entity.DbGeneration) *entity.GenerationStatusResponse {
	fresh, err := s.repo.GetGeneration(ctx, gen.ID)
	if err != nil {
		return &entity.GenerationStatusResponse{Status: entity.GenerationStatusProcessing}
	}
	return storedStatus(fresh)
}

func (s *TrackingService) rehost(ctx context.Context, gen *entity.DbGeneration, outputURL string) string {
	if !s.opts.RehostOutputs || s.uploader == nil {
		return outputURL
	}
	res, err := s.uploader.UploadFromURL(ctx, outputURL, storage.UploadOptions{
		Bucket:   outputsBucket,
		FileName: fmt.Sprintf("generation-%d", gen.ID),
	})
	if err != nil {
		logrus.WithError(err).WithField("generation_id", gen.ID).Warn("failed to rehost output, keeping provider url")
		return outputURL
	}
	return res.URL
}

// storedStatus 把库中状态转换为客户端返回。未终态一律报告 processing。
func storedStatus(gen *entity.DbGeneration) *entity.GenerationStatusResponse {
	switch gen.Status {
	case entity.GenerationStatusCompleted:
		resp := &entity.GenerationStatusResponse{Status: gen.Status}
		if gen.OutputImageURL != nil {
			resp.ImageURL = *gen.OutputImageURL
		}
		return resp
	case entity.GenerationStatusFailed:
		return &entity.GenerationStatusResponse{Status: gen.Status, Error: gen.ErrorMessage}
	default:
		return &entity.GenerationStatusResponse{Status: entity.GenerationStatusProcessing}
	}
}

// SweepReport 一次批量轮询的统计。
type SweepReport struct {
	Checked   int `json:"checked"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Pending   int `json:"pending"`
}

// Sweep 按创建顺序轮询最多 limit 条等待中的生成。
func (s *TrackingService) Sweep(ctx context.Context, limit int) (SweepReport, error) {
	var report SweepReport
	gens, err := s.repo.ListAwaitingGenerations(ctx, limit)
	if err != nil {
		return report, fmt.Errorf("list awaiting generations: %w", err)
	}
	for i := range gens {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		resp := s.poll(ctx, &gens[i])
		report.Checked++
		switch resp.Status {
		case entity.GenerationStatusCompleted:
			report.Completed++
		case entity.GenerationStatusFailed:
			report.Failed++
		default:
			report.Pending++
		}
	}
	logrus.WithFields(logrus.Fields{
		"checked":   report.Checked,
		"completed": report.Completed,
		"failed":    report.Failed,
		"pending":   report.Pending,
	}).Info("generation sweep finished")
	return report, nil
}
