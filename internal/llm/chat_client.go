// internal/llm/chat_client.go
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// 推理模型可能输出思维链，统一剥离
var thinkPattern = regexp.MustCompile(`(?is)<think>.*?</think>`)

// ChatClient 通过 chat-completions 风格的HTTP端点实现 Generator
type ChatClient struct {
	endpoint     string
	model        string
	temperature  float64
	systemPrompt string
	stopTokens   []string
	maxTokens    int
	client       *http.Client
}

// NewChatClient 按配置创建客户端。
// 必须提供 endpoint；其余配置有默认值。
func NewChatClient(config map[string]string) (*ChatClient, error) {
	endpoint, exists := config["endpoint"]
	if !exists || endpoint == "" {
		return nil, errors.New("生成服务端点未提供")
	}

	c := &ChatClient{
		endpoint:     endpoint,
		model:        config["model"],
		temperature:  0.7,
		systemPrompt: "请用简体中文回答，禁止输出<think>或思维链，只给最终简洁描述。",
		stopTokens:   []string{"<think>", "</think>"},
		maxTokens:    256,
	}

	if v, exists := config["temperature"]; exists && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.temperature = f
		}
	}
	if v, exists := config["system_prompt"]; exists && v != "" {
		c.systemPrompt = v
	}
	if v, exists := config["stop"]; exists && v != "" {
		c.stopTokens = strings.Split(v, ",")
	}
	if v, exists := config["max_tokens"]; exists && v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.maxTokens = n
		}
	}

	timeout := 15 * time.Second
	if v, exists := config["timeout"]; exists && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			timeout = time.Duration(f * float64(time.Second))
		}
	}
	c.client = &http.Client{Timeout: timeout}

	return c, nil
}

// chatMessage 与 chatRequest 对应 chat-completions 协议
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model,omitempty"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	Stream      bool          `json:"stream"`
	Stop        []string      `json:"stop,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// complete 发送一次补全请求并返回清理后的文本
func (c *ChatClient) complete(ctx context.Context, prompt string) (string, error) {
	reqBody := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: c.systemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: c.temperature,
		Stream:      false,
		Stop:        c.stopTokens,
		MaxTokens:   c.maxTokens,
	}

	data, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("序列化请求失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("生成请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("生成服务返回错误(%d): %s", resp.StatusCode, string(body))
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("解析生成响应失败: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", errors.New("生成响应为空")
	}

	return stripThink(parsed.Choices[0].Message.Content), nil
}

// stripThink 去掉思维链标记并裁剪空白
func stripThink(text string) string {
	return strings.TrimSpace(thinkPattern.ReplaceAllString(text, ""))
}

// DescribeEvent 为事件生成叙述文本
func (c *ChatClient) DescribeEvent(ctx context.Context, ec EventContext) (string, error) {
	text, err := c.complete(ctx, buildEventReactionPrompt(ec))
	if err != nil {
		return "", err
	}
	if text == "" {
		return "", errors.New("生成结果为空")
	}
	return text, nil
}

// GenerateIncident 合成插曲。
// 结构化输出解析失败时退化为纯文本包装，不作为错误上报。
func (c *ChatClient) GenerateIncident(ctx context.Context, eventType string, participants []ParticipantSketch) (IncidentResult, error) {
	text, err := c.complete(ctx, buildIncidentPrompt(eventType, participants))
	if err != nil {
		return IncidentResult{}, err
	}

	var incident IncidentResult
	if jsonErr := json.Unmarshal([]byte(text), &incident); jsonErr == nil && incident.Description != "" {
		return incident, nil
	}
	return IncidentResult{Title: "incident", Description: text}, nil
}

// SummarizeMemories 压缩一组记忆摘要
func (c *ChatClient) SummarizeMemories(ctx context.Context, summaries []string, maxItems int) (string, error) {
	text, err := c.complete(ctx, buildMemorySummaryPrompt(summaries, maxItems))
	if err != nil {
		return "", err
	}
	if text == "" {
		return "", errors.New("生成结果为空")
	}
	return text, nil
}
