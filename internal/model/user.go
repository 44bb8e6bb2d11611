package model

import (
	"time"
)

// User 用户表
// UID 由外部身份服务（Firebase Auth）分配，平台内只做存储和关联
//
// 【重要】钱包余额设计原则：
// 1. wallet_balance 以最小货币单位（UGX 分）存储，全程 int64，不用浮点
// 2. 余额只能通过对账引擎 / 分红任务在事务内变更，不提供直接改余额的接口
// 3. referrer_uid 是非拥有型的自引用：用户不拥有自己的推荐人
type User struct {
	ID            int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UID           string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"uid"` // 身份服务分配的用户标识
	Email         string    `gorm:"type:varchar(128);not null" json:"email"`
	Phone         string    `gorm:"type:varchar(32)" json:"phone"`
	ReferrerUID   string    `gorm:"type:varchar(64);index" json:"referrer_uid"` // 推荐人UID，可为空
	IsActive      bool      `gorm:"not null;default:false" json:"is_active"`    // 激活费支付后置为 true
	WalletBalance int64     `gorm:"not null;default:0" json:"wallet_balance"`   // 钱包余额（最小货币单位）
	IsAdmin       bool      `gorm:"not null;default:false" json:"is_admin"`
	JoinedAt      time.Time `gorm:"autoCreateTime" json:"joined_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (User) TableName() string {
	return "user"
}
