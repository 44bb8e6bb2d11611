package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"investsystem/internal/config"
	"investsystem/internal/model"
	"investsystem/internal/repository"
	"investsystem/pkg/idgen"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// ErrAlreadyProcessed 该交易引用已经入账
// 不是故障：对渠道回"成功"，让它停止重试
var ErrAlreadyProcessed = errors.New("交易已处理")

// processedKeyTTL 已处理引用在 Redis 里的缓存时长
// 渠道的重试窗口远小于 24 小时，过期后还有数据库预检和唯一索引兜底
const processedKeyTTL = 24 * time.Hour

// WebhookService 支付回调对账引擎
//
// 【关键点】整条链路的正确性分层：
//  1. Redis 已处理缓存     —— 纯优化，挡掉重试风暴的大头，出错可忽略
//  2. 流水表存在性预检     —— 优化 + 少算一次，仍不是正确性依据
//  3. tx_ref 唯一索引      —— 真正的"至多一次"：第二次写入让整个事务回滚
//  4. 条件扣减份额         —— WHERE slots_available >= ? 保证库存永不为负
// 所有账务写入都发生在一个 db.Transaction 里，要么全部提交要么全部回滚，
// 不依赖任何进程内锁（Dispatcher 可以多实例部署）
type WebhookService struct {
	db              *gorm.DB
	redisClient     *redis.Client
	cfg             *config.Config
	userRepo        *repository.UserRepository
	projectRepo     *repository.ProjectRepository
	transactionRepo *repository.TransactionRepository
	investmentRepo  *repository.InvestmentRepository
	outboxRepo      *repository.OutboxRepository
}

func NewWebhookService(db *gorm.DB, redisClient *redis.Client, cfg *config.Config) *WebhookService {
	return &WebhookService{
		db:              db,
		redisClient:     redisClient,
		cfg:             cfg,
		userRepo:        repository.NewUserRepository(db),
		projectRepo:     repository.NewProjectRepository(db),
		transactionRepo: repository.NewTransactionRepository(db),
		investmentRepo:  repository.NewInvestmentRepository(db),
		outboxRepo:      repository.NewOutboxRepository(db),
	}
}

// ProcessEvent 对账一条支付成功事件
//
// 返回值约定：
//   - nil                        -> 入账成功
//   - ErrAlreadyProcessed        -> 幂等命中，视为成功
//   - IsDomainRejection(err)     -> 业务性拒绝，无任何写入，渠道不必重试
//   - 其余                       -> 基础设施故障，渠道应重试（重试是安全的）
func (s *WebhookService) ProcessEvent(ctx context.Context, event *PaymentEvent) error {
	// 数据库是唯一的外部悬挂点，必须有界超时
	timeout := time.Duration(s.cfg.Business.StoreTimeoutSecond) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// 幂等预检（快路径）
	processed, err := s.alreadyProcessed(ctx, event.TxRef)
	if err != nil {
		return fmt.Errorf("幂等预检失败: %w", err)
	}
	if processed {
		return ErrAlreadyProcessed
	}

	// 原子应用：计算出的所有账务变更在一个事务内提交
	err = s.db.Transaction(func(tx *gorm.DB) error {
		return s.applyMutations(ctx, tx, event)
	})

	if err != nil {
		if errors.Is(err, repository.ErrDuplicateTxRef) {
			// 并发重复投递输掉了唯一索引竞争，等价于已处理
			return ErrAlreadyProcessed
		}
		return err
	}

	s.markProcessed(ctx, event.TxRef)

	log.Printf("[Webhook] 对账成功: txRef=%s, purpose=%s, userUID=%s, amount=%d",
		event.TxRef, event.Purpose, event.UserUID, event.Amount)

	return nil
}

// applyMutations 在事务 tx 内构建并执行该事件的全部账务变更
func (s *WebhookService) applyMutations(ctx context.Context, tx *gorm.DB, event *PaymentEvent) error {
	trans := &model.PaymentTransaction{
		TxRef:         event.TxRef,
		UserUID:       event.UserUID,
		Amount:        event.Amount,
		Purpose:       event.Purpose,
		Status:        model.TransactionStatusCompleted,
		FlutterwaveID: event.FlutterwaveID,
		ProjectID:     event.ProjectID,
	}
	if err := s.transactionRepo.Create(ctx, tx, trans); err != nil {
		return err
	}

	switch event.Purpose {
	case model.PaymentPurposeRegFee:
		if err := s.applyActivation(ctx, tx, event); err != nil {
			return err
		}

	case model.PaymentPurposeInvestment:
		if err := s.applyInvestment(ctx, tx, event); err != nil {
			return err
		}

	default:
		// 解析层已经挡过一次，这里兜底
		return fmt.Errorf("%w: %s", ErrUnsupportedPurpose, event.Purpose)
	}

	return s.enqueueReconciledMessage(ctx, tx, event)
}

// applyActivation 激活费入账：激活账号，有推荐人则追加奖励
func (s *WebhookService) applyActivation(ctx context.Context, tx *gorm.DB, event *PaymentEvent) error {
	if event.Amount != s.cfg.Business.RegistrationFee {
		// 金额异常只告警不拒绝：奖励按配置费率算，金额造不成资损
		log.Printf("[Webhook] 激活费金额异常: txRef=%s, 上报=%d, 配置=%d",
			event.TxRef, event.Amount, s.cfg.Business.RegistrationFee)
	}

	if err := s.userRepo.Activate(ctx, tx, event.UserUID); err != nil {
		return fmt.Errorf("激活用户失败: %w", err)
	}

	if event.ReferrerUID == "" {
		return nil
	}

	// 【关键点】奖励基数是配置的激活费，不是回调上报的金额
	bonusAmount := s.cfg.Business.ReferralBonusAmount()

	bonusTrans := &model.PaymentTransaction{
		// 确定性派生引用：原始事件重放时这条也会命中唯一索引，保持幂等
		TxRef:   "bonus_" + event.TxRef,
		UserUID: event.ReferrerUID,
		Amount:  bonusAmount,
		Purpose: model.PaymentPurposeReferralBonus,
		Status:  model.TransactionStatusCompleted,
	}
	if err := s.transactionRepo.Create(ctx, tx, bonusTrans); err != nil {
		return fmt.Errorf("记录推荐奖励流水失败: %w", err)
	}

	if err := s.userRepo.CreditWallet(ctx, tx, event.ReferrerUID, bonusAmount); err != nil {
		return fmt.Errorf("推荐奖励入账失败: %w", err)
	}

	return nil
}

// applyInvestment 投资入账：扣份额、加募集额、建持仓
func (s *WebhookService) applyInvestment(ctx context.Context, tx *gorm.DB, event *PaymentEvent) error {
	if err := s.projectRepo.DeductSlots(ctx, tx, event.ProjectID, event.Slots, event.Amount); err != nil {
		return err
	}

	investment := &model.Investment{
		InvestmentNo:  idgen.GenerateInvestmentNo(),
		UserUID:       event.UserUID,
		ProjectID:     event.ProjectID,
		SlotsOwned:    event.Slots,
		TotalInvested: event.Amount,
		Status:        model.InvestmentStatusActive,
	}
	if err := s.investmentRepo.Create(ctx, tx, investment); err != nil {
		return fmt.Errorf("创建持仓失败: %w", err)
	}

	return nil
}

// enqueueReconciledMessage 出站消息与账务同事务落库
func (s *WebhookService) enqueueReconciledMessage(ctx context.Context, tx *gorm.DB, event *PaymentEvent) error {
	payload, _ := json.Marshal(map[string]interface{}{
		"tx_ref":     event.TxRef,
		"user_uid":   event.UserUID,
		"purpose":    event.Purpose,
		"amount":     event.Amount,
		"project_id": event.ProjectID,
		"slots":      event.Slots,
	})

	msg := &model.OutboxMessage{
		MessageKey: event.TxRef,
		EventType:  model.OutboxEventPaymentReconciled,
		Topic:      s.cfg.Kafka.Topic.PaymentReconciled,
		Payload:    string(payload),
	}
	if err := s.outboxRepo.Create(ctx, tx, msg); err != nil {
		return fmt.Errorf("写入出站消息失败: %w", err)
	}
	return nil
}

// alreadyProcessed 幂等预检：先查 Redis 缓存，未命中再查流水表
func (s *WebhookService) alreadyProcessed(ctx context.Context, txRef string) (bool, error) {
	if s.redisClient != nil {
		val, err := s.redisClient.Get(ctx, processedKey(txRef)).Result()
		if err == nil && val != "" {
			return true, nil
		}
		if err != nil && err != redis.Nil {
			// 缓存故障不阻断对账，降级到数据库预检
			log.Printf("[Webhook] 幂等缓存读取失败（降级）: txRef=%s, err=%v", txRef, err)
		}
	}

	return s.transactionRepo.ExistsByTxRef(ctx, txRef)
}

// markProcessed 提交后写入已处理缓存，失败只记日志
func (s *WebhookService) markProcessed(ctx context.Context, txRef string) {
	if s.redisClient == nil {
		return
	}
	if err := s.redisClient.Set(ctx, processedKey(txRef), "1", processedKeyTTL).Err(); err != nil {
		log.Printf("[Webhook] 幂等缓存写入失败: txRef=%s, err=%v", txRef, err)
	}
}

func processedKey(txRef string) string {
	return "webhook:processed:" + txRef
}

// IsDomainRejection 业务性拒绝：状态未被改动，渠道不必重试
func IsDomainRejection(err error) bool {
	return errors.Is(err, repository.ErrProjectNotFound) ||
		errors.Is(err, repository.ErrInsufficientSlots) ||
		errors.Is(err, repository.ErrUserNotFound) ||
		errors.Is(err, ErrUnsupportedPurpose) ||
		errors.Is(err, ErrMalformedEvent)
}
