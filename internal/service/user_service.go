package service

import (
	"context"
	"fmt"

	"investsystem/internal/model"
	"investsystem/internal/repository"

	"gorm.io/gorm"
)

type UserService struct {
	db              *gorm.DB
	userRepo        *repository.UserRepository
	transactionRepo *repository.TransactionRepository
}

func NewUserService(db *gorm.DB) *UserService {
	return &UserService{
		db:              db,
		userRepo:        repository.NewUserRepository(db),
		transactionRepo: repository.NewTransactionRepository(db),
	}
}

type RegisterRequest struct {
	UID         string // 身份服务分配，不由本系统生成
	Email       string
	Phone       string
	ReferrerUID string
}

// Register 创建用户档案
// 用户此时未激活，激活要等激活费支付回调对账成功
func (s *UserService) Register(ctx context.Context, req *RegisterRequest) (*model.User, error) {
	if req.ReferrerUID != "" {
		// 推荐人必须真实存在，否则激活时奖励入账会让整个批次回滚
		if _, err := s.userRepo.GetByUID(ctx, req.ReferrerUID); err != nil {
			return nil, fmt.Errorf("推荐人无效: %w", err)
		}
	}

	user := &model.User{
		UID:         req.UID,
		Email:       req.Email,
		Phone:       req.Phone,
		ReferrerUID: req.ReferrerUID,
		IsActive:    false,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}

	return user, nil
}

func (s *UserService) GetUser(ctx context.Context, uid string) (*model.User, error) {
	return s.userRepo.GetByUID(ctx, uid)
}

type ReferralSummary struct {
	ReferredUsers []*model.User               `json:"referred_users"`
	BonusRecords  []*model.PaymentTransaction `json:"bonus_records"`
	TotalBonus    int64                       `json:"total_bonus"`
}

// GetReferralSummary 推荐页数据：我推荐的用户 + 我收到的奖励流水
func (s *UserService) GetReferralSummary(ctx context.Context, uid string) (*ReferralSummary, error) {
	users, err := s.userRepo.ListByReferrer(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("查询被推荐用户失败: %w", err)
	}

	bonuses, err := s.transactionRepo.ListByUserUIDAndPurpose(ctx, uid, model.PaymentPurposeReferralBonus)
	if err != nil {
		return nil, fmt.Errorf("查询奖励流水失败: %w", err)
	}

	var total int64
	for _, b := range bonuses {
		total += b.Amount
	}

	return &ReferralSummary{
		ReferredUsers: users,
		BonusRecords:  bonuses,
		TotalBonus:    total,
	}, nil
}

func (s *UserService) ListTransactions(ctx context.Context, uid string, page, pageSize int) ([]*model.PaymentTransaction, int64, error) {
	return s.transactionRepo.ListByUserUID(ctx, uid, page, pageSize)
}
