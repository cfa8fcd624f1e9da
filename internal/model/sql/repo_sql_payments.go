package sql

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"interior/internal/entity"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CreatePaymentEvent journals a webhook event. It reports false when the
// (provider, provider_event_id) pair was already recorded and processed.
func (r *GormRepository) CreatePaymentEvent(ctx context.Context, event *entity.DbPaymentEvent) (bool, error) {
	if err := r.ready(); err != nil {
		return false, err
	}
	if event == nil || strings.TrimSpace(event.ProviderEventID) == "" {
		return false, fmt.Errorf("payment event id is empty")
	}

	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(event)
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected > 0 {
		return true, nil
	}

	// 已存在：未处理成功的事件允许重放
	var existing entity.DbPaymentEvent
	err := r.db.WithContext(ctx).
		Where("provider = ? AND provider_event_id = ?", event.Provider, event.ProviderEventID).
		First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, fmt.Errorf("payment event %s vanished after conflict", event.ProviderEventID)
	}
	if err != nil {
		return false, err
	}
	*event = existing
	return existing.ProcessedAt == nil || existing.ProcessingError != "", nil
}

// MarkPaymentEventProcessed stamps the processing result of a journaled event.
func (r *GormRepository) MarkPaymentEventProcessed(ctx context.Context, id uint, processingErr string) error {
	if err := r.ready(); err != nil {
		return err
	}
	if id == 0 {
		return fmt.Errorf("invalid payment event id")
	}
	now := time.Now()
	return r.db.WithContext(ctx).
		Model(&entity.DbPaymentEvent{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"processed_at":     &now,
			"processing_error": processingErr,
		}).Error
}
