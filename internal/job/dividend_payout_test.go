package job

import (
	"context"
	"testing"
	"time"

	"investsystem/internal/config"
	"investsystem/internal/model"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestJob(t *testing.T) (*DividendPayoutJob, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&model.User{},
		&model.Project{},
		&model.PaymentTransaction{},
		&model.Investment{},
		&model.OutboxMessage{},
	))

	cfg := &config.Config{
		Business: config.BusinessConfig{DividendBatchSize: 100, MaxRetryCount: 3},
		Kafka: config.KafkaConfig{
			Topic: config.KafkaTopicConfig{DividendPaid: "dividend_paid"},
		},
	}

	return NewDividendPayoutJob(db, nil, cfg), db
}

func seedInvestment(t *testing.T, db *gorm.DB, no string, createdAt time.Time) *model.Investment {
	t.Helper()

	require.NoError(t, db.Create(&model.User{UID: "investor-1", Email: "i@example.com", IsActive: true}).Error)
	require.NoError(t, db.Create(&model.Project{
		ProjectID:      "proj-1",
		Title:          "p",
		TargetAmount:   1000000,
		SlotsAvailable: 10,
		SlotPrice:      20000,
		ROIPercentage:  5,
		Status:         model.ProjectStatusOpen,
	}).Error)

	inv := &model.Investment{
		InvestmentNo:  no,
		UserUID:       "investor-1",
		ProjectID:     "proj-1",
		SlotsOwned:    2,
		TotalInvested: 40000,
		Status:        model.InvestmentStatusActive,
	}
	require.NoError(t, db.Create(inv).Error)
	// autoCreateTime 会盖掉传入值，落库后再调
	require.NoError(t, db.Model(inv).UpdateColumn("created_at", createdAt).Error)
	inv.CreatedAt = createdAt
	return inv
}

func TestPayInvestment(t *testing.T) {
	j, db := newTestJob(t)
	lastMonth := time.Now().AddDate(0, -1, 0)
	inv := seedInvestment(t, db, "INV-TEST-1", lastMonth)

	period := time.Now().Format("200601")

	paid, err := j.payInvestment(context.Background(), inv, period)
	require.NoError(t, err)
	require.True(t, paid)

	// 40000 × 5% = 2000
	var user model.User
	require.NoError(t, db.Where("uid = ?", "investor-1").First(&user).Error)
	require.Equal(t, int64(2000), user.WalletBalance)

	var trans model.PaymentTransaction
	require.NoError(t, db.Where("tx_ref = ?", "dividend_INV-TEST-1_"+period).First(&trans).Error)
	require.Equal(t, model.PaymentPurposeDividend, trans.Purpose)
}

// 同一周期重复派发被流水唯一索引挡掉，余额不变
func TestPayInvestment_IdempotentPerPeriod(t *testing.T) {
	j, db := newTestJob(t)
	lastMonth := time.Now().AddDate(0, -1, 0)
	inv := seedInvestment(t, db, "INV-TEST-2", lastMonth)

	period := time.Now().Format("200601")

	paid, err := j.payInvestment(context.Background(), inv, period)
	require.NoError(t, err)
	require.True(t, paid)

	paid, err = j.payInvestment(context.Background(), inv, period)
	require.NoError(t, err)
	require.False(t, paid, "重跑必须跳过")

	var user model.User
	require.NoError(t, db.Where("uid = ?", "investor-1").First(&user).Error)
	require.Equal(t, int64(2000), user.WalletBalance)

	var n int64
	require.NoError(t, db.Model(&model.PaymentTransaction{}).
		Where("purpose = ?", model.PaymentPurposeDividend).Count(&n).Error)
	require.Equal(t, int64(1), n)
}

// 购入当月不分红
func TestPayInvestment_SkipsPurchaseMonth(t *testing.T) {
	j, db := newTestJob(t)
	inv := seedInvestment(t, db, "INV-TEST-3", time.Now())

	paid, err := j.payInvestment(context.Background(), inv, time.Now().Format("200601"))
	require.NoError(t, err)
	require.False(t, paid)

	var n int64
	require.NoError(t, db.Model(&model.PaymentTransaction{}).Count(&n).Error)
	require.Equal(t, int64(0), n)
}
