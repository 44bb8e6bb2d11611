package handler

import (
	"log"
	"time"

	"investsystem/internal/model"
	"investsystem/internal/repository"
	"investsystem/pkg/response"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const ctxKeyCurrentUser = "current_user"

// AuthMiddleware 认证中间件
//
// 身份校验本身在上游网关完成（外部身份服务验证 token 后注入 X-User-UID），
// 这里只负责把 UID 解析成平台用户档案并挂到请求上下文
func AuthMiddleware(db *gorm.DB) gin.HandlerFunc {
	userRepo := repository.NewUserRepository(db)

	return func(c *gin.Context) {
		uid := c.GetHeader("X-User-UID")
		if uid == "" {
			response.Error(c, response.CodeUnauthorized, "未认证")
			c.Abort()
			return
		}

		user, err := userRepo.GetByUID(c.Request.Context(), uid)
		if err != nil {
			response.Error(c, response.CodeUnauthorized, "未认证")
			c.Abort()
			return
		}

		c.Set(ctxKeyCurrentUser, user)
		c.Next()
	}
}

// AdminMiddleware 管理员校验，必须在 AuthMiddleware 之后
func AdminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := CurrentUser(c)
		if user == nil || !user.IsAdmin {
			response.Error(c, response.CodeForbidden, "无权限")
			c.Abort()
			return
		}
		c.Next()
	}
}

// CurrentUser 取当前请求的用户档案（AuthMiddleware 保证存在）
func CurrentUser(c *gin.Context) *model.User {
	if v, ok := c.Get(ctxKeyCurrentUser); ok {
		if user, ok := v.(*model.User); ok {
			return user
		}
	}
	return nil
}

// LoggerMiddleware 日志中间件
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		// 处理请求
		c.Next()

		// 记录日志
		latency := time.Since(start)
		status := c.Writer.Status()

		if query != "" {
			path = path + "?" + query
		}

		log.Printf("[HTTP] %d | %13v | %15s | %-7s %s",
			status,
			latency,
			c.ClientIP(),
			c.Request.Method,
			path,
		)
	}
}

// RecoveryMiddleware 恢复中间件，防止 panic 导致服务崩溃
func RecoveryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				log.Printf("[PANIC] %v", err)
				c.AbortWithStatusJSON(500, gin.H{
					"code":    500,
					"message": "服务器内部错误",
				})
			}
		}()
		c.Next()
	}
}

// CORSMiddleware 跨域中间件
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization, X-Request-ID, X-User-UID")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
