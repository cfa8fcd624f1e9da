package model

import (
	"context"

	"interior/internal/entity"
	"interior/internal/ledger"
)

// Repository 定义数据库操作接口
type Repository interface {
	// 用户管理
	CreateUser(ctx context.Context, user *entity.DbUser) error
	GetUserByEmail(ctx context.Context, email string) (*entity.DbUser, error)
	GetUserByID(ctx context.Context, id uint) (*entity.DbUser, error)
	ListUserIDs(ctx context.Context) ([]uint, error)
	CountUsers(ctx context.Context) (int64, error)

	// 积分账本
	ledger.Store
	ListCreditTransactions(ctx context.Context, params *entity.CreditTransactionQuery) ([]entity.DbCreditTransaction, *entity.Meta, error)

	// 生成记录
	CreateGeneration(ctx context.Context, gen *entity.DbGeneration) error
	GetGeneration(ctx context.Context, id uint) (*entity.DbGeneration, error)
	GetGenerationByRequestID(ctx context.Context, requestID string) (*entity.DbGeneration, error)
	UpdateGeneration(ctx context.Context, id uint, updates entity.GenerationUpdates) (bool, error)
	DeleteGeneration(ctx context.Context, id uint) error
	ListGenerations(ctx context.Context, params *entity.GenerationQuery) ([]entity.DbGeneration, *entity.Meta, error)
	ListAwaitingGenerations(ctx context.Context, limit int) ([]entity.DbGeneration, error)
	MarkGenerationHDUnlocked(ctx context.Context, id uint, sessionID string) (bool, error)

	// 支付事件
	CreatePaymentEvent(ctx context.Context, event *entity.DbPaymentEvent) (bool, error)
	MarkPaymentEventProcessed(ctx context.Context, id uint, processingErr string) error
}
