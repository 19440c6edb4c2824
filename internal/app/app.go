// internal/app/app.go
package app

import (
	"fmt"
	"log"

	"github.com/Corphon/FateWeaverMCP/internal/config"
	"github.com/Corphon/FateWeaverMCP/internal/di"
	"github.com/Corphon/FateWeaverMCP/internal/llm"
	"github.com/Corphon/FateWeaverMCP/internal/services"
)

// InitServices 按依赖顺序初始化所有服务并注册到容器。
// 路由层只从容器获取服务，不自行创建。
func InitServices() error {
	cfg := config.GetCurrentConfig()
	if cfg == nil {
		return fmt.Errorf("配置系统尚未初始化")
	}

	container := di.GetContainer()

	// 1. LLM生成器（未配置时进入降级模式，所有生成走占位文本）
	var generator llm.Generator
	client, err := llm.NewChatClient(cfg.LLMConfig)
	if err != nil {
		log.Printf("警告: LLM未配置，生成内容将使用占位文本: %v", err)
		generator = llm.Unconfigured()
	} else {
		generator = client
	}
	container.Register("llm", generator)

	// 2. 模拟内核（世界存储、时钟、命运引擎、剧情服务）
	sim, err := services.NewSimService(cfg.DataDir, generator, cfg)
	if err != nil {
		return fmt.Errorf("初始化模拟服务失败: %w", err)
	}
	container.Register("sim", sim)

	return nil
}
