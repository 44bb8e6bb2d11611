package repository

import (
	"context"
	"errors"

	"investsystem/internal/model"

	"gorm.io/gorm"
)

var (
	ErrUserNotFound  = errors.New("用户不存在")
	ErrUserExists    = errors.New("用户已存在")
	ErrUserNotActive = errors.New("用户未激活")
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, user *model.User) error {
	err := r.db.WithContext(ctx).Create(user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrUserExists
		}
		return err
	}
	return nil
}

func (r *UserRepository) GetByUID(ctx context.Context, uid string) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).Where("uid = ?", uid).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// Activate 将用户置为已激活
// 幂等：重复激活不报错（provider 重发同一事件时批次已被幂等键挡住，
// 这里的 RowsAffected==0 只可能是用户不存在）
func (r *UserRepository) Activate(ctx context.Context, tx *gorm.DB, uid string) error {
	if tx == nil {
		tx = r.db
	}

	result := tx.WithContext(ctx).
		Model(&model.User{}).
		Where("uid = ?", uid).
		Update("is_active", true)

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}

	return nil
}

// CreditWallet 给用户钱包入账
//
// 【关键点】用原子自增而不是读-改-写，配合 RowsAffected 校验目标用户存在，
// 任何失败都会让外层事务整体回滚
func (r *UserRepository) CreditWallet(ctx context.Context, tx *gorm.DB, uid string, amount int64) error {
	if tx == nil {
		tx = r.db
	}

	result := tx.WithContext(ctx).
		Model(&model.User{}).
		Where("uid = ?", uid).
		UpdateColumn("wallet_balance", gorm.Expr("wallet_balance + ?", amount))

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}

	return nil
}

// ListByReferrer 查询某个用户推荐的所有用户
func (r *UserRepository) ListByReferrer(ctx context.Context, referrerUID string) ([]*model.User, error) {
	var users []*model.User
	err := r.db.WithContext(ctx).
		Where("referrer_uid = ?", referrerUID).
		Order("joined_at DESC").
		Find(&users).Error
	return users, err
}
