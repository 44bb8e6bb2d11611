package repository

import (
	"context"
	"errors"

	"investsystem/internal/model"

	"gorm.io/gorm"
)

// ErrDuplicateTxRef 幂等键冲突：该交易引用已经入账
var ErrDuplicateTxRef = errors.New("交易引用已存在")

type TransactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Create 写入一条流水
//
// 【关键点】tx_ref 上的唯一索引是"至多一次"的最终防线：
// 并发重复投递时即便前置检查全部漏过，这里的唯一约束冲突也会让整个
// 事务回滚，不会产生任何半套账
func (r *TransactionRepository) Create(ctx context.Context, tx *gorm.DB, trans *model.PaymentTransaction) error {
	if tx == nil {
		tx = r.db
	}
	err := tx.WithContext(ctx).Create(trans).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateTxRef
		}
		return err
	}
	return nil
}

// ExistsByTxRef 幂等预检：该交易引用是否已经入账
// 这只是避免重复计算的优化，不是正确性依据（见 Create）
func (r *TransactionRepository) ExistsByTxRef(ctx context.Context, txRef string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.PaymentTransaction{}).
		Where("tx_ref = ?", txRef).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *TransactionRepository) GetByTxRef(ctx context.Context, txRef string) (*model.PaymentTransaction, error) {
	var trans model.PaymentTransaction
	err := r.db.WithContext(ctx).Where("tx_ref = ?", txRef).First(&trans).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &trans, nil
}

func (r *TransactionRepository) ListByUserUID(ctx context.Context, userUID string, page, pageSize int) ([]*model.PaymentTransaction, int64, error) {
	var transactions []*model.PaymentTransaction
	var total int64

	query := r.db.WithContext(ctx).
		Model(&model.PaymentTransaction{}).
		Where("user_uid = ?", userUID)

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&transactions).Error

	return transactions, total, err
}

// ListByUserUIDAndPurpose 按类型过滤的用户流水（推荐奖励页用）
func (r *TransactionRepository) ListByUserUIDAndPurpose(ctx context.Context, userUID, purpose string) ([]*model.PaymentTransaction, error) {
	var transactions []*model.PaymentTransaction
	err := r.db.WithContext(ctx).
		Where("user_uid = ? AND purpose = ?", userUID, purpose).
		Order("created_at DESC").
		Find(&transactions).Error
	return transactions, err
}
