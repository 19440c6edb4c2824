// internal/config/config.go
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/joho/godotenv"
)

// 当前配置的单例实例
var (
	currentConfig *AppConfig
	configMutex   sync.RWMutex
	configFile    string
)

// AppConfig 包含应用程序的所有配置
type AppConfig struct {
	// 基础配置
	Port      string `json:"port"`
	DataDir   string `json:"data_dir"`
	LogDir    string `json:"log_dir"`
	DebugMode bool   `json:"debug_mode"`

	// 模拟内核配置
	TickSeconds      float64 `json:"tick_seconds"`      // 每个tick的基准真实秒数
	TimeScale        float64 `json:"time_scale"`        // 时间倍率
	MemoryCap        int     `json:"memory_cap"`        // 每角色记忆上限
	SummaryThreshold int     `json:"summary_threshold"` // 触发总结的未总结事件数
	DefaultWorld     string  `json:"default_world"`     // 启动时加载的世界ID

	// 生成服务配置
	LLMConfig map[string]string `json:"llm_config"`
}

// Load 从环境变量加载配置
func Load() (*AppConfig, error) {
	// 尝试加载.env文件（可选）
	godotenv.Load()

	config := &AppConfig{
		Port:             getEnv("PORT", "8080"),
		DataDir:          getEnvPath("DATA_DIR", "data"),
		LogDir:           getEnvPath("LOG_DIR", "logs"),
		DebugMode:        getEnvBool("DEBUG_MODE", true),
		TickSeconds:      getEnvFloat("TICK_SECONDS", 1.0),
		TimeScale:        getEnvFloat("TIME_SCALE", 1.0),
		MemoryCap:        getEnvInt("MEMORY_CAP", 100),
		SummaryThreshold: getEnvInt("SUMMARY_THRESHOLD", 5),
		DefaultWorld:     getEnv("DEFAULT_WORLD", "default"),
		LLMConfig: map[string]string{
			"endpoint":   getEnv("WORLD_LLM_ENDPOINT", "http://localhost:3001/v1/chat/completions"),
			"model":      getEnv("WORLD_LLM_MODEL", ""),
			"timeout":    getEnv("WORLD_LLM_TIMEOUT", "15"),
			"max_tokens": getEnv("WORLD_LLM_MAX_TOKENS", "256"),
		},
	}

	if prompt := os.Getenv("WORLD_LLM_SYSTEM_PROMPT"); prompt != "" {
		config.LLMConfig["system_prompt"] = prompt
	}

	return config, nil
}

// getEnv 获取环境变量，如果不存在则返回默认值
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvPath 获取环境变量表示的路径，如果不存在则返回默认值
func getEnvPath(key, defaultValue string) string {
	path := getEnv(key, defaultValue)

	// 确保目录存在
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.MkdirAll(path, 0755); err != nil {
			fmt.Printf("警告: 创建目录失败 %s: %v\n", path, err)
		}
	}

	return path
}

// getEnvBool 获取布尔类型环境变量
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes"
}

// getEnvFloat 获取浮点类型环境变量
func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return f
}

// getEnvInt 获取整数类型环境变量
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

// InitConfig 初始化配置管理器：环境配置与已保存的config.json合并
func InitConfig(dataDir string) error {
	configFile = filepath.Join(dataDir, "config.json")

	baseConfig, err := Load()
	if err != nil {
		return err
	}

	configMutex.Lock()
	defer configMutex.Unlock()

	currentConfig = baseConfig

	// 尝试从文件加载已保存的配置，保留其中的生成服务设置
	if data, err := os.ReadFile(configFile); err == nil {
		var savedConfig AppConfig
		if json.Unmarshal(data, &savedConfig) == nil {
			savedConfig.Port = baseConfig.Port
			savedConfig.DataDir = baseConfig.DataDir
			savedConfig.LogDir = baseConfig.LogDir
			savedConfig.DebugMode = baseConfig.DebugMode
			if savedConfig.LLMConfig == nil {
				savedConfig.LLMConfig = baseConfig.LLMConfig
			}
			if savedConfig.MemoryCap <= 0 {
				savedConfig.MemoryCap = baseConfig.MemoryCap
			}
			if savedConfig.SummaryThreshold <= 0 {
				savedConfig.SummaryThreshold = baseConfig.SummaryThreshold
			}
			if savedConfig.TickSeconds <= 0 {
				savedConfig.TickSeconds = baseConfig.TickSeconds
			}
			if savedConfig.TimeScale <= 0 {
				savedConfig.TimeScale = baseConfig.TimeScale
			}
			if savedConfig.DefaultWorld == "" {
				savedConfig.DefaultWorld = baseConfig.DefaultWorld
			}
			currentConfig = &savedConfig
		}
	}

	return saveConfigLocked()
}

// GetCurrentConfig 返回当前配置的副本
func GetCurrentConfig() *AppConfig {
	configMutex.RLock()
	defer configMutex.RUnlock()

	if currentConfig == nil {
		baseConfig, _ := Load()
		return baseConfig
	}

	configCopy := *currentConfig
	return &configCopy
}

// UpdateLLMConfig 更新生成服务配置
func UpdateLLMConfig(llmConfig map[string]string) error {
	configMutex.Lock()
	defer configMutex.Unlock()

	if currentConfig == nil {
		return fmt.Errorf("配置系统未初始化")
	}

	currentConfig.LLMConfig = llmConfig
	return saveConfigLocked()
}

// SaveConfig 保存当前配置到文件
func SaveConfig() error {
	configMutex.Lock()
	defer configMutex.Unlock()
	return saveConfigLocked()
}

func saveConfigLocked() error {
	if currentConfig == nil {
		return fmt.Errorf("没有配置可保存")
	}

	dir := filepath.Dir(configFile)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("创建配置目录失败: %w", err)
		}
	}

	data, err := json.MarshalIndent(currentConfig, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化配置失败: %w", err)
	}

	return os.WriteFile(configFile, data, 0644)
}
