package handler

import (
	"investsystem/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// SetupRouter 配置路由
func SetupRouter(db *gorm.DB, rdb *redis.Client, cfg *config.Config) *gin.Engine {
	// 设置 gin 为发布模式（减少日志输出）
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	// 注册中间件
	r.Use(RecoveryMiddleware())
	r.Use(LoggerMiddleware())
	r.Use(CORSMiddleware())

	// 创建处理器
	h := NewHandler(db, rdb, cfg)

	// API 路由组
	api := r.Group("/api/v1")
	{
		// 支付回调：渠道直连，签名即认证，不走用户鉴权
		api.POST("/webhooks/flutterwave", h.HandleFlutterwaveWebhook)

		// 用户档案创建：身份服务注册成功后回调
		api.POST("/users/create", h.Register)

		// 项目只读接口（公开）
		projects := api.Group("/projects")
		{
			projects.GET("", h.ListProjects)
			projects.GET("/detail", h.GetProject)
		}

		// 登录用户接口
		authed := api.Group("", AuthMiddleware(db))
		{
			user := authed.Group("/users")
			{
				user.GET("/me", h.GetProfile)
				user.GET("/wallet", h.GetWallet)
				user.GET("/referrals", h.GetReferrals)
			}

			authed.GET("/transactions", h.ListTransactions)
			authed.GET("/investments", h.ListInvestments)
		}

		// 管理端接口
		admin := api.Group("/admin", AuthMiddleware(db), AdminMiddleware())
		{
			admin.POST("/projects/create", h.CreateProject)
			admin.POST("/projects/update", h.UpdateProject)
		}
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
