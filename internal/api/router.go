// internal/api/router.go
package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Corphon/FateWeaverMCP/internal/config"
	"github.com/Corphon/FateWeaverMCP/internal/di"
	"github.com/Corphon/FateWeaverMCP/internal/services"
)

// SetupRouter 配置HTTP路由
func SetupRouter() (*gin.Engine, error) {
	cfg := config.GetCurrentConfig()

	// 只从容器获取服务，不创建新实例
	container := di.GetContainer()

	sim, ok := container.Get("sim").(*services.SimService)
	if !ok {
		return nil, fmt.Errorf("模拟服务未正确初始化")
	}

	hub := NewLogHub()
	sim.SetOnAppend(hub.Broadcast)

	handler := NewHandler(sim, hub)

	if !cfg.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()

	// 启用CORS
	r.Use(corsMiddleware())

	// WebSocket 实时日志推送
	r.GET("/ws/logs", hub.HandleLogsWS)

	// ===============================
	// API路由组
	// ===============================
	api := r.Group("/api")
	{
		// 世界快照与时间倍率
		worldGroup := api.Group("/world")
		{
			worldGroup.GET("", handler.GetWorld)
			worldGroup.POST("/time-scale", handler.SetTimeScale)
		}

		// 角色
		charactersGroup := api.Group("/characters")
		{
			charactersGroup.GET("", handler.ListCharacters)
			charactersGroup.POST("", handler.CreateCharacter)
			charactersGroup.GET("/:id", handler.GetCharacter)
			charactersGroup.GET("/:id/memories", handler.GetCharacterMemories)
			charactersGroup.POST("/:id/memories/summarize", handler.SummarizeCharacterMemories)
		}

		// 地点
		locationsGroup := api.Group("/locations")
		{
			locationsGroup.GET("", handler.ListLocations)
			locationsGroup.POST("", handler.CreateLocation)
		}

		// 事件
		eventsGroup := api.Group("/events")
		{
			eventsGroup.GET("", handler.ListEvents)
			eventsGroup.POST("", handler.CreateEvent)
		}

		// 模拟控制
		simulateGroup := api.Group("/simulate")
		{
			simulateGroup.POST("/step", handler.SimulateStep)
			simulateGroup.POST("/start", handler.SimulateStart)
			simulateGroup.POST("/stop", handler.SimulateStop)
		}

		// 结果日志
		api.GET("/logs/tail", handler.GetLogsTail)

		// 场景
		scenesGroup := api.Group("/scenes")
		{
			scenesGroup.POST("", handler.CreateScene)
			scenesGroup.GET("/:id", handler.GetScene)
			scenesGroup.POST("/:id/step", handler.StepScene)
		}

		// 时间线
		timelinesGroup := api.Group("/timelines")
		{
			timelinesGroup.POST("", handler.CreateTimeline)
			timelinesGroup.GET("/active", handler.GetActiveTimeline)
			timelinesGroup.GET("/:id", handler.GetTimeline)
			timelinesGroup.POST("/:id/advance", handler.AdvanceTimeline)
		}

		// 多世界管理
		worldsGroup := api.Group("/worlds")
		{
			worldsGroup.GET("", handler.ListWorlds)
			worldsGroup.POST("", handler.CreateWorld)
			worldsGroup.POST("/select", handler.SelectWorld)
		}
	}

	return r, nil
}

// corsMiddleware 处理跨域请求
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
