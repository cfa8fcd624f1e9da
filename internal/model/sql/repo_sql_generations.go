package sql

import (
	"context"
	"fmt"
	"strings"

	"interior/internal/entity"

	"gorm.io/gorm"
)

// CreateGeneration inserts a new generation record.
func (r *GormRepository) CreateGeneration(ctx context.Context, gen *entity.DbGeneration) error {
	if err := r.ready(); err != nil {
		return err
	}
	if gen == nil {
		return fmt.Errorf("generation is nil")
	}
	if gen.Status == "" {
		gen.Status = entity.GenerationStatusPending
	}
	return r.db.WithContext(ctx).Create(gen).Error
}

// GetGeneration loads a generation by ID.
func (r *GormRepository) GetGeneration(ctx context.Context, id uint) (*entity.DbGeneration, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	if id == 0 {
		return nil, fmt.Errorf("invalid generation id")
	}
	var gen entity.DbGeneration
	if err := r.db.WithContext(ctx).First(&gen, id).Error; err != nil {
		return nil, err
	}
	return &gen, nil
}

// GetGenerationByRequestID loads a generation by its provider request id.
func (r *GormRepository) GetGenerationByRequestID(ctx context.Context, requestID string) (*entity.DbGeneration, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	trimmed := strings.TrimSpace(requestID)
	if trimmed == "" {
		return nil, fmt.Errorf("request id is empty")
	}
	var gen entity.DbGeneration
	if err := r.db.WithContext(ctx).Where("provider_request_id = ?", trimmed).First(&gen).Error; err != nil {
		return nil, err
	}
	return &gen, nil
}

// UpdateGeneration applies the provided fields. Terminal records are left
// untouched so a late poll cannot overwrite a completed result; applied is
// false in that case.
func (r *GormRepository) UpdateGeneration(ctx context.Context, id uint, updates entity.GenerationUpdates) (bool, error) {
	if err := r.ready(); err != nil {
		return false, err
	}
	if id == 0 {
		return false, fmt.Errorf("invalid generation id")
	}
	if updates.IsEmpty() {
		return false, fmt.Errorf("no updates provided")
	}
	result := r.db.WithContext(ctx).
		Model(&entity.DbGeneration{}).
		Where("id = ? AND status NOT IN ?", id, []string{string(entity.GenerationStatusCompleted), string(entity.GenerationStatusFailed)}).
		Updates(updates.ToMap())
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected == 0 {
		var count int64
		if err := r.db.WithContext(ctx).Model(&entity.DbGeneration{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return false, err
		}
		if count == 0 {
			return false, gorm.ErrRecordNotFound
		}
		return false, nil
	}
	return true, nil
}

// DeleteGeneration removes a generation by ID.
func (r *GormRepository) DeleteGeneration(ctx context.Context, id uint) error {
	if err := r.ready(); err != nil {
		return err
	}
	if id == 0 {
		return fmt.Errorf("invalid generation id")
	}
	result := r.db.WithContext(ctx).Delete(&entity.DbGeneration{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ListGenerations returns paginated generations, newest first.
func (r *GormRepository) ListGenerations(ctx context.Context, params *entity.GenerationQuery) ([]entity.DbGeneration, *entity.Meta, error) {
	if err := r.ready(); err != nil {
		return nil, nil, err
	}
	if params == nil {
		params = &entity.GenerationQuery{}
	}

	query := r.db.WithContext(ctx).Model(&entity.DbGeneration{})
	if params.UserID > 0 {
		query = query.Where("user_id = ?", params.UserID)
	}
	if status := strings.ToLower(strings.TrimSpace(params.Status)); status != "" && status != "all" {
		query = query.Where("status = ?", status)
	}
	return paginate[entity.DbGeneration](query, params.BaseParams)
}

// ListAwaitingGenerations returns submitted, non-terminal generations, oldest first.
func (r *GormRepository) ListAwaitingGenerations(ctx context.Context, limit int) ([]entity.DbGeneration, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}
	var gens []entity.DbGeneration
	err := r.db.WithContext(ctx).
		Where("provider_request_id IS NOT NULL AND provider_request_id <> ''").
		Where("status IN ?", []string{string(entity.GenerationStatusPending), string(entity.GenerationStatusProcessing)}).
		Order("id ASC").
		Limit(limit).
		Find(&gens).Error
	if err != nil {
		return nil, err
	}
	return gens, nil
}

// MarkGenerationHDUnlocked flips hd_unlocked once. It reports false when the
// flag was already set.
func (r *GormRepository) MarkGenerationHDUnlocked(ctx context.Context, id uint, sessionID string) (bool, error) {
	if err := r.ready(); err != nil {
		return false, err
	}
	if id == 0 {
		return false, fmt.Errorf("invalid generation id")
	}
	result := r.db.WithContext(ctx).
		Model(&entity.DbGeneration{}).
		Where("id = ? AND hd_unlocked = ?", id, false).
		Updates(map[string]interface{}{
			"hd_unlocked":   true,
			"hd_session_id": sessionID,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
