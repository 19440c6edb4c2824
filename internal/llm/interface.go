// internal/llm/interface.go
package llm

import (
	"context"
	"errors"
)

// 错误定义
var ErrNotConfigured = errors.New("文本生成服务未配置")

// ParticipantSketch 是传给生成器的角色摘要
type ParticipantSketch struct {
	ID              string             `json:"id"`
	Name            string             `json:"name"`
	Language        string             `json:"language,omitempty"`
	Comprehension   map[string]float64 `json:"comprehension,omitempty"`
	Traits          map[string]float64 `json:"traits,omitempty"`
	States          map[string]float64 `json:"states,omitempty"`
	MemorySummaries []string           `json:"memory_summaries,omitempty"`
}

// EventContext 是叙述事件时的完整上下文
type EventContext struct {
	Type                 string              `json:"type"`
	LocationID           string              `json:"location_id,omitempty"`
	Payload              map[string]any      `json:"payload,omitempty"`
	DefaultLanguage      string              `json:"world_default_language"`
	ForceDefaultLanguage bool                `json:"force_default_language"`
	Participants         []ParticipantSketch `json:"participants"`
}

// IncidentResult 是插曲生成的结构化结果
type IncidentResult struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// unconfiguredGenerator 在LLM未配置时占位，所有调用返回ErrNotConfigured
type unconfiguredGenerator struct{}

func (unconfiguredGenerator) DescribeEvent(context.Context, EventContext) (string, error) {
	return "", ErrNotConfigured
}

func (unconfiguredGenerator) GenerateIncident(context.Context, string, []ParticipantSketch) (IncidentResult, error) {
	return IncidentResult{}, ErrNotConfigured
}

func (unconfiguredGenerator) SummarizeMemories(context.Context, []string, int) (string, error) {
	return "", ErrNotConfigured
}

// Unconfigured 返回降级模式的生成器
func Unconfigured() Generator {
	return unconfiguredGenerator{}
}

// Generator 定义内核消费的三种生成能力。
// 三者都是尽力而为：调用方必须容忍失败并以占位文本降级。
type Generator interface {
	// DescribeEvent 为事件生成叙述文本（对话）
	DescribeEvent(ctx context.Context, ec EventContext) (string, error)

	// GenerateIncident 为事件类型合成一段插曲
	GenerateIncident(ctx context.Context, eventType string, participants []ParticipantSketch) (IncidentResult, error)

	// SummarizeMemories 把若干条记忆压缩成一段回顾
	SummarizeMemories(ctx context.Context, summaries []string, maxItems int) (string, error)
}
