package api

import (
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"textnovel/internal/config"
	"textnovel/internal/service"
)

// Services 汇总路由需要的应用服务。
type Services struct {
	Events *service.EventService
	Texts  *service.TextService
	Images *service.ImageService
}

// RegisterRoutes 在 /api 下注册全部接口。redisClient 为 nil 时不提供 WebSocket 与上传限流。
func RegisterRoutes(router *gin.Engine, cfg *config.Config, svc Services, redisClient *redis.Client) {
	eventHandler := NewEventHandler(svc.Events)
	textHandler := NewTextHandler(svc.Texts)
	imageHandler := NewImageHandler(svc.Images, cfg.Upload.MaxBytes, redisClient, cfg.Upload.RatePerMinute)

	apiGroup := router.Group("/api")
	{
		events := apiGroup.Group("/events")
		{
			events.GET("", eventHandler.ListEvents)
			events.POST("", eventHandler.CreateEvent)
			events.GET("/:id", eventHandler.GetEvent)
			events.PUT("/:id", eventHandler.UpdateEvent)
			events.DELETE("/:id", eventHandler.DeleteEvent)

			events.GET("/:id/texts", textHandler.ListTexts)
			events.POST("/:id/texts", textHandler.CreateText)
			events.PUT("/:id/texts/reorder", textHandler.ReorderEventTexts)

			if redisClient != nil {
				wsHandler := NewWsHandler(redisClient, svc.Events, cfg.API.AllowedOrigins)
				events.GET("/:id/ws", wsHandler.HandleConnection)
			}
		}

		texts := apiGroup.Group("/texts")
		{
			texts.PUT("/reorder", textHandler.ReorderTexts)
			texts.PUT("/:id", textHandler.UpdateText)
			texts.DELETE("/:id", textHandler.DeleteText)
		}

		images := apiGroup.Group("/images")
		{
			images.POST("/upload", imageHandler.UploadImage)
			images.GET("/:id", imageHandler.GetImage)
			images.DELETE("/:id", imageHandler.DeleteImage)
		}
	}
}
