// Package api 组装参考后端的 gin 路由与中间件。
package api

import (
	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/d60-Lab/postsync/config"
	_ "github.com/d60-Lab/postsync/docs"
	"github.com/d60-Lab/postsync/internal/api/handler"
	"github.com/d60-Lab/postsync/pkg/logger"
)

// NewRouter 创建 gin 引擎并注册 posts 路由
func NewRouter(cfg *config.Config, h *handler.Handler) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.Sentry.DSN != "" {
		r.Use(sentrygin.New(sentrygin.Options{Repanic: true}))
	}
	r.Use(RequestID())
	r.Use(logger.GinLogger())
	r.Use(CORS(cfg.Server.AllowOrigins))
	if cfg.Server.Gzip {
		r.Use(gzip.Gzip(gzip.DefaultCompression))
	}
	if cfg.Tracing.Enabled {
		r.Use(otelgin.Middleware(cfg.Tracing.ServiceName))
	}

	r.GET("/healthz", h.Health)
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	posts := r.Group("/api/posts")
	posts.Use(RateLimit(cfg.Server.RateLimit, cfg.Server.RateBurst))
	{
		posts.GET("", h.ListPosts)
		posts.POST("", h.CreatePost)
		posts.PUT("", h.UpdatePost)
		posts.DELETE("", h.DeletePost)
	}
	return r
}
