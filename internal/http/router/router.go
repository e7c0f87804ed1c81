package router

import (
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"basegraph.app/counsel/internal/http/handler"
	"basegraph.app/counsel/internal/service"
)

type RouterConfig struct {
	StatusStreamPrefix string
}

func SetupRoutes(router *gin.Engine, services *service.Services, redisClient *redis.Client, cfg RouterConfig) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")
	{
		sessionHandler := handler.NewSessionHandler(services.Conversations())
		statusHandler := handler.NewSessionStatusHandler(redisClient, cfg.StatusStreamPrefix)
		SessionRouter(v1.Group("/sessions"), sessionHandler, statusHandler)
	}
}
