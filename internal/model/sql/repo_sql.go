package sql

import (
	"errors"

	"interior/internal/entity"

	"gorm.io/gorm"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

var errNotInitialised = errors.New("repository not initialised")

// GormRepository 基于 GORM 的 model.Repository 实现，同时支持 sqlite/mysql/postgres。
type GormRepository struct {
	db *gorm.DB
}

func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

func (r *GormRepository) ready() error {
	if r == nil || r.db == nil {
		return errNotInitialised
	}
	return nil
}

// pageWindow 归一化分页参数：page 从 1 开始，pageSize 限制在 [1, maxPageSize]。
func pageWindow(params entity.BaseParams) (page, pageSize int) {
	page, pageSize = int(params.Page), int(params.PageSize)
	if page <= 0 {
		page = 1
	}
	switch {
	case pageSize <= 0:
		pageSize = defaultPageSize
	case pageSize > maxPageSize:
		pageSize = maxPageSize
	}
	return page, pageSize
}

// paginate 先计数再按 id 倒序取当前页。
func paginate[T any](query *gorm.DB, params entity.BaseParams) ([]T, *entity.Meta, error) {
	page, pageSize := pageWindow(params)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, nil, err
	}
	var rows []T
	if err := query.Order("id DESC").Offset((page - 1) * pageSize).Limit(pageSize).Find(&rows).Error; err != nil {
		return nil, nil, err
	}
	return rows, &entity.Meta{Total: total, Page: int64(page), PageSize: int64(pageSize)}, nil
}
