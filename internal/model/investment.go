package model

import (
	"time"
)

const (
	InvestmentStatusActive    = "active"
	InvestmentStatusCompleted = "completed"
	InvestmentStatusCancelled = "cancelled"
)

// Investment 用户持仓表
// 每笔投资支付对账成功后恰好创建一条；本系统内只产生 active 状态
type Investment struct {
	ID            int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	InvestmentNo  string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"investment_no"` // 平台持仓编号
	UserUID       string    `gorm:"type:varchar(64);index;not null" json:"user_uid"`
	ProjectID     string    `gorm:"type:varchar(64);index;not null" json:"project_id"`
	SlotsOwned    int       `gorm:"not null" json:"slots_owned"`    // 持有份额（正整数）
	TotalInvested int64     `gorm:"not null" json:"total_invested"` // 累计投入金额
	Status        string    `gorm:"type:varchar(16);index;not null" json:"status"`
	CreatedAt     time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Investment) TableName() string {
	return "investment"
}
