package model

import (
	"time"
)

// ============================================================================
// 支付类型常量
// ============================================================================

const (
	PaymentPurposeRegFee        = "reg_fee"        // 激活费（注册费）
	PaymentPurposeInvestment    = "investment"     // 项目投资
	PaymentPurposeReferralBonus = "referral_bonus" // 推荐奖励
	PaymentPurposeDividend      = "dividend"       // 月度分红
)

const (
	TransactionStatusCompleted = "completed"
	TransactionStatusPending   = "pending"
	TransactionStatusFailed    = "failed"
)

// ============================================================================
// 支付流水实体
// ============================================================================

// PaymentTransaction 支付流水表
// 记录每一笔已完成的资金事件，是对账的核心依据
//
// 【重要】流水表设计原则：
// 1. 只追加，不修改，不删除 —— 保证审计可追溯
// 2. TxRef 是支付渠道的交易引用，作为天然主键（唯一索引）
//    —— 它同时就是幂等键：同一个 TxRef 的第二次写入会触发唯一约束冲突，
//       使整个批次原子回滚，这才是"至多一次"的真正保证
// 3. 推荐奖励的 TxRef 由原始引用确定性派生（bonus_ 前缀），因此同样幂等
type PaymentTransaction struct {
	ID            int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	TxRef         string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"tx_ref"` // 渠道交易引用（幂等键）
	UserUID       string    `gorm:"type:varchar(64);index;not null" json:"user_uid"`
	Amount        int64     `gorm:"not null" json:"amount"`                   // 金额（最小货币单位）
	Purpose       string    `gorm:"type:varchar(20);not null" json:"purpose"` // 支付类型
	Status        string    `gorm:"type:varchar(16);not null" json:"status"`  // 本系统只落 completed
	FlutterwaveID int64     `gorm:"default:0" json:"flutterwave_id"`          // 渠道侧关联ID
	ProjectID     string    `gorm:"type:varchar(64);index" json:"project_id"` // 投资类流水关联的项目
	CreatedAt     time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (PaymentTransaction) TableName() string {
	return "payment_transaction"
}
