package handler

import (
	"github.com/gin-gonic/gin"

	"pcconv-go/internal/middleware"
	"pcconv-go/internal/service"
	"pcconv-go/pkg/token"
)

// NewRouter 创建路由引擎并注册全部路由。
func NewRouter(batchService service.BatchService, hub *service.ProgressHub, jwtManager *token.JWTManager) *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestLogger(), gin.Recovery())

	r.GET("/health", Health)

	apiV1 := r.Group("/api/v1")
	{
		batches := apiV1.Group("/batches")
		batches.Use(middleware.AuthMiddleware(jwtManager))
		{
			h := NewBatchHandler(batchService)
			batches.POST("", h.Submit)
			batches.GET("", h.List)
			batches.GET("/:id", h.Get)
		}

		// WebSocket 无法携带授权头，token 放在路径中
		apiV1.GET("/events/:token", NewEventsHandler(hub, jwtManager).Handle)
	}
	return r
}
