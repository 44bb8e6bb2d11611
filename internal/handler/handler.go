package handler

import (
	"log"
	"net/http"
	"strconv"

	"investsystem/internal/config"
	"investsystem/internal/model"
	"investsystem/internal/repository"
	"investsystem/internal/service"
	"investsystem/pkg/response"
	"investsystem/pkg/signature"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// Handler 统一处理器，包含所有服务依赖
type Handler struct {
	cfg            *config.Config
	webhookService *service.WebhookService
	userService    *service.UserService
	projectService *service.ProjectService
}

// NewHandler 创建处理器实例
func NewHandler(db *gorm.DB, rdb *redis.Client, cfg *config.Config) *Handler {
	return &Handler{
		cfg:            cfg,
		webhookService: service.NewWebhookService(db, rdb, cfg),
		userService:    service.NewUserService(db),
		projectService: service.NewProjectService(db),
	}
}

// ============================================================
// 支付回调（系统唯一的写入口）
// ============================================================

// HandleFlutterwaveWebhook 接收渠道支付回调
// POST /api/v1/webhooks/flutterwave
//
// 【关键点】响应码约定直接决定渠道的重试行为：
//   - 401          签名不合法，不处理
//   - 2xx          终态（成功 / 幂等命中 / 业务性拒绝），渠道停止重试
//   - 5xx          基础设施故障，请渠道重试（对账是幂等的，重试安全）
// 回调是渠道侧接口，响应体遵循渠道习惯的 message 格式，不走平台统一信封
func (h *Handler) HandleFlutterwaveWebhook(c *gin.Context) {
	// 必须拿原始字节做签名校验，重新序列化的载荷是另一个载荷
	rawBody, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "unable to read body"})
		return
	}

	sig := c.GetHeader("verif-hash")
	if !signature.Verify(h.cfg.Flutterwave.SecretHash, rawBody, sig) {
		log.Printf("[Webhook] 签名校验失败: ip=%s", c.ClientIP())
		c.JSON(http.StatusUnauthorized, gin.H{"message": "invalid signature"})
		return
	}

	event, err := service.ParsePaymentEvent(rawBody)
	if err != nil {
		switch {
		case err == service.ErrEventIgnored:
			c.JSON(http.StatusOK, gin.H{"message": "event ignored"})
		case service.IsDomainRejection(err):
			// 业务性拒绝也回 2xx：重试不会改变结果，只会制造重试风暴
			log.Printf("[Webhook] 事件被拒绝: %v", err)
			c.JSON(http.StatusOK, gin.H{"message": "event rejected"})
		default:
			log.Printf("[Webhook] 事件解析失败: %v", err)
			c.JSON(http.StatusOK, gin.H{"message": "event rejected"})
		}
		return
	}

	err = h.webhookService.ProcessEvent(c.Request.Context(), event)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"message": "webhook processed"})
	case err == service.ErrAlreadyProcessed:
		c.JSON(http.StatusOK, gin.H{"message": "transaction already processed"})
	case service.IsDomainRejection(err):
		log.Printf("[Webhook] 对账被拒绝: txRef=%s, err=%v", event.TxRef, err)
		c.JSON(http.StatusOK, gin.H{"message": "event rejected"})
	default:
		// 基础设施故障：5xx 请渠道重试
		log.Printf("[Webhook] 对账失败: txRef=%s, err=%v", event.TxRef, err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "internal error, please retry"})
	}
}

// ============================================================
// 用户相关接口
// ============================================================

// RegisterRequest 创建用户档案请求
type RegisterRequest struct {
	UID         string `json:"uid" binding:"required"` // 身份服务分配
	Email       string `json:"email" binding:"required,email"`
	Phone       string `json:"phone"`
	ReferrerUID string `json:"referrer_uid"`
}

// Register 创建用户档案（身份服务注册成功后调用）
// POST /api/v1/users/create
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	user, err := h.userService.Register(c.Request.Context(), &service.RegisterRequest{
		UID:         req.UID,
		Email:       req.Email,
		Phone:       req.Phone,
		ReferrerUID: req.ReferrerUID,
	})
	if err != nil {
		if err == repository.ErrUserExists {
			response.BusinessError(c, response.CodeUserExists, "用户已存在")
			return
		}
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, user)
}

// GetProfile 查询当前用户档案
// GET /api/v1/users/me
func (h *Handler) GetProfile(c *gin.Context) {
	user := CurrentUser(c)
	response.Success(c, user)
}

// GetWallet 查询钱包余额
// GET /api/v1/users/wallet
func (h *Handler) GetWallet(c *gin.Context) {
	user := CurrentUser(c)
	response.Success(c, gin.H{
		"uid":            user.UID,
		"wallet_balance": user.WalletBalance,
		"is_active":      user.IsActive,
	})
}

// GetReferrals 查询推荐概览
// GET /api/v1/users/referrals
func (h *Handler) GetReferrals(c *gin.Context) {
	user := CurrentUser(c)

	summary, err := h.userService.GetReferralSummary(c.Request.Context(), user.UID)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, summary)
}

// ListTransactions 查询当前用户流水
// GET /api/v1/transactions?page=1&page_size=20
func (h *Handler) ListTransactions(c *gin.Context) {
	user := CurrentUser(c)
	page, pageSize := pagination(c)

	transactions, total, err := h.userService.ListTransactions(c.Request.Context(), user.UID, page, pageSize)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, gin.H{
		"list":      transactions,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// ListInvestments 查询当前用户持仓
// GET /api/v1/investments
func (h *Handler) ListInvestments(c *gin.Context) {
	user := CurrentUser(c)

	investments, err := h.projectService.ListUserInvestments(c.Request.Context(), user.UID)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, gin.H{"list": investments})
}

// ============================================================
// 项目相关接口
// ============================================================

// ListProjects 项目列表
// GET /api/v1/projects?status=open&page=1&page_size=20
func (h *Handler) ListProjects(c *gin.Context) {
	status := c.Query("status")
	if status != "" && status != model.ProjectStatusOpen && status != model.ProjectStatusClosed {
		response.ParamError(c, "status 参数错误")
		return
	}
	page, pageSize := pagination(c)

	projects, total, err := h.projectService.ListProjects(c.Request.Context(), status, page, pageSize)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, gin.H{
		"list":      projects,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// GetProject 项目详情
// GET /api/v1/projects/detail?project_id=xxx
func (h *Handler) GetProject(c *gin.Context) {
	projectID := c.Query("project_id")
	if projectID == "" {
		response.ParamError(c, "project_id 参数不能为空")
		return
	}

	project, err := h.projectService.GetProject(c.Request.Context(), projectID)
	if err != nil {
		if err == repository.ErrProjectNotFound {
			response.BusinessError(c, response.CodeProjectNotFound, "项目不存在")
			return
		}
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, project)
}

// ============================================================
// 管理端接口
// ============================================================

// CreateProjectRequest 创建项目请求
type CreateProjectRequest struct {
	ProjectID      string  `json:"project_id" binding:"required"`
	Title          string  `json:"title" binding:"required"`
	Description    string  `json:"description" binding:"required"`
	Location       string  `json:"location" binding:"required"`
	ImageURL       string  `json:"image_url"`
	TargetAmount   int64   `json:"target_amount" binding:"required,gt=0"`
	SlotsAvailable int     `json:"slots_available" binding:"required,gt=0"`
	SlotPrice      int64   `json:"slot_price" binding:"required,gt=0"`
	ROIPercentage  float64 `json:"roi_percentage" binding:"required,gt=0"`
}

// CreateProject 管理员创建项目
// POST /api/v1/admin/projects/create
func (h *Handler) CreateProject(c *gin.Context) {
	var req CreateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	project, err := h.projectService.CreateProject(c.Request.Context(), &service.CreateProjectRequest{
		ProjectID:      req.ProjectID,
		Title:          req.Title,
		Description:    req.Description,
		Location:       req.Location,
		ImageURL:       req.ImageURL,
		TargetAmount:   req.TargetAmount,
		SlotsAvailable: req.SlotsAvailable,
		SlotPrice:      req.SlotPrice,
		ROIPercentage:  req.ROIPercentage,
	})
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, project)
}

// UpdateProjectRequest 更新项目请求
type UpdateProjectRequest struct {
	ProjectID string                 `json:"project_id" binding:"required"`
	Updates   map[string]interface{} `json:"updates" binding:"required"`
}

// UpdateProject 管理员更新项目（份额重置、状态流转等）
// POST /api/v1/admin/projects/update
func (h *Handler) UpdateProject(c *gin.Context) {
	var req UpdateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	err := h.projectService.UpdateProject(c.Request.Context(), req.ProjectID, req.Updates)
	if err != nil {
		if err == repository.ErrProjectNotFound {
			response.BusinessError(c, response.CodeProjectNotFound, "项目不存在")
			return
		}
		response.ParamError(c, err.Error())
		return
	}

	response.Success(c, gin.H{"message": "项目已更新"})
}

func pagination(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize
}
