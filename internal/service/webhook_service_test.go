package service

import (
	"context"
	"fmt"
	"testing"

	"investsystem/internal/config"
	"investsystem/internal/model"
	"investsystem/internal/repository"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB 用内存 SQLite 替代 MySQL 跑事务语义
// 限制单连接，保证内存库在整个用例里是同一个
func newTestDB(t *testing.T) *gorm.DB {
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

	return db
}

func testConfig() *config.Config {
	return &config.Config{
		Business: config.BusinessConfig{
			RegistrationFee:    20000,
			ReferralBonusRate:  0.1,
			StoreTimeoutSecond: 5,
			MaxRetryCount:      3,
		},
		Kafka: config.KafkaConfig{
			Topic: config.KafkaTopicConfig{
				PaymentReconciled: "payment_reconciled",
				DividendPaid:      "dividend_paid",
			},
		},
	}
}

func newTestService(t *testing.T) (*WebhookService, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	// Redis 缓存层在测试里关闭，幂等预检走数据库路径
	return NewWebhookService(db, nil, testConfig()), db
}

func seedUser(t *testing.T, db *gorm.DB, uid, referrerUID string) {
	t.Helper()
	require.NoError(t, db.Create(&model.User{
		UID:         uid,
		Email:       uid + "@example.com",
		ReferrerUID: referrerUID,
	}).Error)
}

func seedProject(t *testing.T, db *gorm.DB, projectID string, slots int) {
	t.Helper()
	require.NoError(t, db.Create(&model.Project{
		ProjectID:      projectID,
		Title:          "测试项目",
		TargetAmount:   1000000,
		SlotsAvailable: slots,
		SlotPrice:      20000,
		ROIPercentage:  5,
		Status:         model.ProjectStatusOpen,
	}).Error)
}

func countTransactions(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&model.PaymentTransaction{}).Count(&n).Error)
	return n
}

func getUser(t *testing.T, db *gorm.DB, uid string) *model.User {
	t.Helper()
	var user model.User
	require.NoError(t, db.Where("uid = ?", uid).First(&user).Error)
	return &user
}

func getProject(t *testing.T, db *gorm.DB, projectID string) *model.Project {
	t.Helper()
	var project model.Project
	require.NoError(t, db.Where("project_id = ?", projectID).First(&project).Error)
	return &project
}

// 场景A：无推荐人的激活费支付
func TestProcessEvent_ActivationWithoutReferrer(t *testing.T) {
	svc, db := newTestService(t)
	seedUser(t, db, "user-1", "")

	err := svc.ProcessEvent(context.Background(), &PaymentEvent{
		TxRef:   "FLW-REG-001",
		UserUID: "user-1",
		Amount:  20000,
		Purpose: model.PaymentPurposeRegFee,
	})
	require.NoError(t, err)

	user := getUser(t, db, "user-1")
	require.True(t, user.IsActive)
	require.Equal(t, int64(0), user.WalletBalance)
	require.Equal(t, int64(1), countTransactions(t, db))

	// 出站消息同事务落库
	var outbox int64
	require.NoError(t, db.Model(&model.OutboxMessage{}).
		Where("event_type = ?", model.OutboxEventPaymentReconciled).Count(&outbox).Error)
	require.Equal(t, int64(1), outbox)
}

// 场景B：有推荐人的激活，推荐人拿 10% 奖励，两条流水
func TestProcessEvent_ActivationWithReferrer(t *testing.T) {
	svc, db := newTestService(t)
	seedUser(t, db, "referrer-1", "")
	seedUser(t, db, "user-1", "referrer-1")

	err := svc.ProcessEvent(context.Background(), &PaymentEvent{
		TxRef:       "FLW-REG-002",
		UserUID:     "user-1",
		Amount:      20000,
		Purpose:     model.PaymentPurposeRegFee,
		ReferrerUID: "referrer-1",
	})
	require.NoError(t, err)

	require.True(t, getUser(t, db, "user-1").IsActive)

	referrer := getUser(t, db, "referrer-1")
	require.Equal(t, int64(2000), referrer.WalletBalance)
	require.False(t, referrer.IsActive, "推荐人的激活状态不应被触碰")

	require.Equal(t, int64(2), countTransactions(t, db))

	// 奖励引用由原引用确定性派生
	var bonus model.PaymentTransaction
	require.NoError(t, db.Where("tx_ref = ?", "bonus_FLW-REG-002").First(&bonus).Error)
	require.Equal(t, model.PaymentPurposeReferralBonus, bonus.Purpose)
	require.Equal(t, "referrer-1", bonus.UserUID)
}

// 奖励基数是配置的激活费，不跟着回调上报的金额走
func TestProcessEvent_BonusIgnoresReportedAmount(t *testing.T) {
	svc, db := newTestService(t)
	seedUser(t, db, "referrer-1", "")
	seedUser(t, db, "user-1", "referrer-1")

	err := svc.ProcessEvent(context.Background(), &PaymentEvent{
		TxRef:       "FLW-REG-003",
		UserUID:     "user-1",
		Amount:      999999, // 被构造的金额
		Purpose:     model.PaymentPurposeRegFee,
		ReferrerUID: "referrer-1",
	})
	require.NoError(t, err)

	require.Equal(t, int64(2000), getUser(t, db, "referrer-1").WalletBalance)
}

// 场景D：正常投资
func TestProcessEvent_Investment(t *testing.T) {
	svc, db := newTestService(t)
	seedUser(t, db, "user-1", "")
	seedProject(t, db, "proj-1", 3)

	err := svc.ProcessEvent(context.Background(), &PaymentEvent{
		TxRef:     "FLW-INV-001",
		UserUID:   "user-1",
		Amount:    40000,
		Purpose:   model.PaymentPurposeInvestment,
		ProjectID: "proj-1",
		Slots:     2,
	})
	require.NoError(t, err)

	project := getProject(t, db, "proj-1")
	require.Equal(t, 1, project.SlotsAvailable)
	require.Equal(t, int64(40000), project.AmountRaised)

	var investment model.Investment
	require.NoError(t, db.Where("user_uid = ?", "user-1").First(&investment).Error)
	require.Equal(t, 2, investment.SlotsOwned)
	require.Equal(t, int64(40000), investment.TotalInvested)
	require.Equal(t, model.InvestmentStatusActive, investment.Status)

	require.Equal(t, int64(1), countTransactions(t, db))
}

// 场景C：份额不足，整体拒绝，零写入
func TestProcessEvent_InsufficientSlots(t *testing.T) {
	svc, db := newTestService(t)
	seedUser(t, db, "user-1", "")
	seedProject(t, db, "proj-1", 3)

	err := svc.ProcessEvent(context.Background(), &PaymentEvent{
		TxRef:     "FLW-INV-002",
		UserUID:   "user-1",
		Amount:    100000,
		Purpose:   model.PaymentPurposeInvestment,
		ProjectID: "proj-1",
		Slots:     5,
	})
	require.ErrorIs(t, err, repository.ErrInsufficientSlots)
	require.True(t, IsDomainRejection(err))

	project := getProject(t, db, "proj-1")
	require.Equal(t, 3, project.SlotsAvailable, "项目状态必须原样")
	require.Equal(t, int64(0), project.AmountRaised)
	require.Equal(t, int64(0), countTransactions(t, db), "不允许留下半套账")
}

func TestProcessEvent_ProjectNotFound(t *testing.T) {
	svc, db := newTestService(t)
	seedUser(t, db, "user-1", "")

	err := svc.ProcessEvent(context.Background(), &PaymentEvent{
		TxRef:     "FLW-INV-003",
		UserUID:   "user-1",
		Amount:    20000,
		Purpose:   model.PaymentPurposeInvestment,
		ProjectID: "ghost",
		Slots:     1,
	})
	require.ErrorIs(t, err, repository.ErrProjectNotFound)
	require.True(t, IsDomainRejection(err))
	require.Equal(t, int64(0), countTransactions(t, db))
}

// 场景E / 幂等性：同一事件两次投递，第二次零变更
func TestProcessEvent_Idempotent(t *testing.T) {
	svc, db := newTestService(t)
	seedUser(t, db, "referrer-1", "")
	seedUser(t, db, "user-1", "referrer-1")

	event := &PaymentEvent{
		TxRef:       "FLW-REG-004",
		UserUID:     "user-1",
		Amount:      20000,
		Purpose:     model.PaymentPurposeRegFee,
		ReferrerUID: "referrer-1",
	}

	require.NoError(t, svc.ProcessEvent(context.Background(), event))
	require.ErrorIs(t, svc.ProcessEvent(context.Background(), event), ErrAlreadyProcessed)

	// 第二次投递不产生任何新流水，奖励不翻倍
	require.Equal(t, int64(2), countTransactions(t, db))
	require.Equal(t, int64(2000), getUser(t, db, "referrer-1").WalletBalance)
}

// 原子性：奖励入账失败（推荐人档案不存在）时，前面的写入全部回滚
func TestProcessEvent_AtomicRollback(t *testing.T) {
	svc, db := newTestService(t)
	seedUser(t, db, "user-1", "ghost-referrer")

	err := svc.ProcessEvent(context.Background(), &PaymentEvent{
		TxRef:       "FLW-REG-005",
		UserUID:     "user-1",
		Amount:      20000,
		Purpose:     model.PaymentPurposeRegFee,
		ReferrerUID: "ghost-referrer",
	})
	require.Error(t, err)

	// 批次里靠前的激活流水和激活标记都不可见
	require.Equal(t, int64(0), countTransactions(t, db))
	require.False(t, getUser(t, db, "user-1").IsActive)
}

// 份额守恒：一串超卖压力事件打完，扣减总量不超过初始份额，且永不为负
func TestProcessEvent_SlotConservation(t *testing.T) {
	svc, db := newTestService(t)
	seedProject(t, db, "proj-1", 3)

	succeeded := 0
	slotsBought := 0
	for i := 0; i < 6; i++ {
		uid := fmt.Sprintf("user-%d", i)
		seedUser(t, db, uid, "")

		err := svc.ProcessEvent(context.Background(), &PaymentEvent{
			TxRef:     fmt.Sprintf("FLW-INV-S%d", i),
			UserUID:   uid,
			Amount:    40000,
			Purpose:   model.PaymentPurposeInvestment,
			ProjectID: "proj-1",
			Slots:     2,
		})
		if err == nil {
			succeeded++
			slotsBought += 2
		} else {
			require.ErrorIs(t, err, repository.ErrInsufficientSlots)
		}
	}

	project := getProject(t, db, "proj-1")
	require.GreaterOrEqual(t, project.SlotsAvailable, 0, "份额永不为负")
	require.Equal(t, 3-slotsBought, project.SlotsAvailable)
	require.Equal(t, 1, succeeded, "3 份库存只能成交一笔 2 份的投资")

	// 尾量 1 份仍可成交
	seedUser(t, db, "user-last", "")
	require.NoError(t, svc.ProcessEvent(context.Background(), &PaymentEvent{
		TxRef:     "FLW-INV-LAST",
		UserUID:   "user-last",
		Amount:    20000,
		Purpose:   model.PaymentPurposeInvestment,
		ProjectID: "proj-1",
		Slots:     1,
	}))
	require.Equal(t, 0, getProject(t, db, "proj-1").SlotsAvailable)
}

// 激活的目标用户不存在：业务性拒绝，无写入
func TestProcessEvent_UserNotFound(t *testing.T) {
	svc, db := newTestService(t)

	err := svc.ProcessEvent(context.Background(), &PaymentEvent{
		TxRef:   "FLW-REG-006",
		UserUID: "ghost",
		Amount:  20000,
		Purpose: model.PaymentPurposeRegFee,
	})
	require.ErrorIs(t, err, repository.ErrUserNotFound)
	require.True(t, IsDomainRejection(err))
	require.Equal(t, int64(0), countTransactions(t, db))
}
