package model

import (
	"time"
)

const (
	ProjectStatusOpen   = "open"
	ProjectStatusClosed = "closed"
)

// Project 投资项目表
//
// 【关键点】slots_available 是共享库存：
// 1. 只允许通过条件更新（WHERE slots_available >= ?）扣减，永不为负
// 2. amount_raised 单调递增，只在投资对账成功时累加
// 3. 管理员可以重置份额/关闭项目，但这走管理接口，不经过对账引擎
type Project struct {
	ID             int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ProjectID      string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"project_id"` // 对外项目标识
	Title          string    `gorm:"type:varchar(128);not null" json:"title"`
	Description    string    `gorm:"type:text" json:"description"`
	Location       string    `gorm:"type:varchar(128)" json:"location"`
	ImageURL       string    `gorm:"type:varchar(256)" json:"image_url"`
	TargetAmount   int64     `gorm:"not null" json:"target_amount"`            // 募集目标（最小货币单位）
	AmountRaised   int64     `gorm:"not null;default:0" json:"amount_raised"`  // 已募集金额
	SlotsAvailable int       `gorm:"not null" json:"slots_available"`          // 剩余可投份额
	SlotPrice      int64     `gorm:"not null" json:"slot_price"`               // 单份价格
	ROIPercentage  float64   `gorm:"not null" json:"roi_percentage"`           // 月化收益率（百分数）
	Status         string    `gorm:"type:varchar(16);index;not null" json:"status"`
	AdminVerified  bool      `gorm:"not null;default:false" json:"admin_verified"`
	CreatedAt      time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Project) TableName() string {
	return "project"
}
