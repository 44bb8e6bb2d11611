package repository

import (
	"context"

	"investsystem/internal/model"

	"gorm.io/gorm"
)

type InvestmentRepository struct {
	db *gorm.DB
}

func NewInvestmentRepository(db *gorm.DB) *InvestmentRepository {
	return &InvestmentRepository{db: db}
}

func (r *InvestmentRepository) Create(ctx context.Context, tx *gorm.DB, investment *model.Investment) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(investment).Error
}

func (r *InvestmentRepository) ListByUserUID(ctx context.Context, userUID string) ([]*model.Investment, error) {
	var investments []*model.Investment
	err := r.db.WithContext(ctx).
		Where("user_uid = ?", userUID).
		Order("created_at DESC").
		Find(&investments).Error
	return investments, err
}

// ListActive 分页遍历全部 active 持仓（分红任务用）
func (r *InvestmentRepository) ListActive(ctx context.Context, offset, limit int) ([]*model.Investment, error) {
	var investments []*model.Investment
	err := r.db.WithContext(ctx).
		Where("status = ?", model.InvestmentStatusActive).
		Order("id ASC").
		Offset(offset).
		Limit(limit).
		Find(&investments).Error
	return investments, err
}
