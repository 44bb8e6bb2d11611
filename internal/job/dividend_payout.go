package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"investsystem/internal/config"
	"investsystem/internal/infrastructure/lock"
	"investsystem/internal/model"
	"investsystem/internal/repository"
	"investsystem/pkg/idgen"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// DividendPayoutJob 月度分红任务
//
// 每个结算周期（自然月）给每笔 active 持仓派发一次分红：
//   amount = total_invested × roi_percentage / 100
//
// 【关键点】派发的幂等性和 webhook 对账用的是同一套机制：
// 分红流水引用由持仓编号 + 周期确定性派生（dividend_<No>_<YYYYMM>），
// tx_ref 唯一索引保证同一持仓同一周期至多入账一次，任务重跑/多实例
// 竞争都不会重复派发。分布式锁只是避免多实例做无用功
type DividendPayoutJob struct {
	db              *gorm.DB
	redisClient     *redis.Client
	cfg             *config.Config
	investmentRepo  *repository.InvestmentRepository
	projectRepo     *repository.ProjectRepository
	transactionRepo *repository.TransactionRepository
	userRepo        *repository.UserRepository
	outboxRepo      *repository.OutboxRepository
	instanceID      string
	stopCh          chan struct{}
	interval        time.Duration
}

func NewDividendPayoutJob(db *gorm.DB, redisClient *redis.Client, cfg *config.Config) *DividendPayoutJob {
	return &DividendPayoutJob{
		db:              db,
		redisClient:     redisClient,
		cfg:             cfg,
		investmentRepo:  repository.NewInvestmentRepository(db),
		projectRepo:     repository.NewProjectRepository(db),
		transactionRepo: repository.NewTransactionRepository(db),
		userRepo:        repository.NewUserRepository(db),
		outboxRepo:      repository.NewOutboxRepository(db),
		instanceID:      fmt.Sprintf("%d", idgen.NextID()),
		stopCh:          make(chan struct{}),
		interval:        time.Hour,
	}
}

func (j *DividendPayoutJob) Start(ctx context.Context) {
	log.Println("[DividendPayout] 分红任务启动")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[DividendPayout] 收到停止信号，任务退出")
			return
		case <-j.stopCh:
			log.Println("[DividendPayout] 任务停止")
			return
		case <-ticker.C:
			j.runPayout(ctx)
		}
	}
}

func (j *DividendPayoutJob) Stop() {
	close(j.stopCh)
}

func (j *DividendPayoutJob) runPayout(ctx context.Context) {
	period := time.Now().Format("200601")

	// 同一周期只要一个实例在派发
	payoutLock := lock.NewDividendLock(j.redisClient, period, j.instanceID)
	acquired, err := payoutLock.TryLock(ctx)
	if err != nil {
		log.Printf("[DividendPayout] 获取执行锁失败: %v", err)
		return
	}
	if !acquired {
		return
	}
	defer payoutLock.Unlock(ctx)

	batchSize := j.cfg.Business.DividendBatchSize
	if batchSize <= 0 {
		batchSize = 100
	}

	paid, skipped := 0, 0
	for offset := 0; ; offset += batchSize {
		investments, err := j.investmentRepo.ListActive(ctx, offset, batchSize)
		if err != nil {
			log.Printf("[DividendPayout] 查询持仓失败: %v", err)
			return
		}
		if len(investments) == 0 {
			break
		}

		for _, inv := range investments {
			ok, err := j.payInvestment(ctx, inv, period)
			if err != nil {
				log.Printf("[DividendPayout] 派发失败: investmentNo=%s, err=%v", inv.InvestmentNo, err)
				continue
			}
			if ok {
				paid++
			} else {
				skipped++
			}
		}
	}

	if paid > 0 {
		log.Printf("[DividendPayout] 周期 %s 派发完成: 成功=%d, 跳过=%d", period, paid, skipped)
	}
}

// payInvestment 给单笔持仓派发本周期分红
// 返回 (true, nil) 表示实际派发，(false, nil) 表示本周期已派发或不满足条件
func (j *DividendPayoutJob) payInvestment(ctx context.Context, inv *model.Investment, period string) (bool, error) {
	// 购入当月不分红
	if inv.CreatedAt.Format("200601") == period {
		return false, nil
	}

	project, err := j.projectRepo.GetByProjectID(ctx, inv.ProjectID)
	if err != nil {
		return false, fmt.Errorf("查询项目失败: %w", err)
	}

	amount := int64(float64(inv.TotalInvested) * project.ROIPercentage / 100)
	if amount <= 0 {
		return false, nil
	}

	txRef := fmt.Sprintf("dividend_%s_%s", inv.InvestmentNo, period)

	err = j.db.Transaction(func(tx *gorm.DB) error {
		trans := &model.PaymentTransaction{
			TxRef:     txRef,
			UserUID:   inv.UserUID,
			Amount:    amount,
			Purpose:   model.PaymentPurposeDividend,
			Status:    model.TransactionStatusCompleted,
			ProjectID: inv.ProjectID,
		}
		if err := j.transactionRepo.Create(ctx, tx, trans); err != nil {
			return err
		}

		if err := j.userRepo.CreditWallet(ctx, tx, inv.UserUID, amount); err != nil {
			return fmt.Errorf("分红入账失败: %w", err)
		}

		payload, _ := json.Marshal(map[string]interface{}{
			"tx_ref":        txRef,
			"user_uid":      inv.UserUID,
			"project_id":    inv.ProjectID,
			"investment_no": inv.InvestmentNo,
			"amount":        amount,
			"period":        period,
		})
		msg := &model.OutboxMessage{
			MessageKey: txRef,
			EventType:  model.OutboxEventDividendPaid,
			Topic:      j.cfg.Kafka.Topic.DividendPaid,
			Payload:    string(payload),
		}
		return j.outboxRepo.Create(ctx, tx, msg)
	})

	if err != nil {
		if errors.Is(err, repository.ErrDuplicateTxRef) {
			// 本周期已派发过
			return false, nil
		}
		return false, err
	}

	return true, nil
}
