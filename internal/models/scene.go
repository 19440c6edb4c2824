// internal/models/scene.go
package models

import "time"

// 场景与时间线共享的状态：active -> completed（单向）
const (
	StoryActive    = "active"
	StoryCompleted = "completed"
)

// SceneTurn 表示场景中的一次发言
type SceneTurn struct {
	Speaker   string    `json:"speaker"` // 角色ID
	Utterance string    `json:"utterance"`
	Timestamp time.Time `json:"timestamp"`
}

// Scene 表示一场有界的多角色轮流对话
type Scene struct {
	ID             string      `json:"id"`
	Title          string      `json:"title"`
	Participants   []string    `json:"participants"` // 角色ID，有序
	LocationID     string      `json:"location_id,omitempty"`
	BackgroundTags []string    `json:"background_tags"`
	MaxTurns       int         `json:"max_turns"`
	Turns          []SceneTurn `json:"turns"`
	Status         string      `json:"status"`
}

// NextSpeaker 确定性轮询：第 len(turns) mod N 位参与者发言
func (s *Scene) NextSpeaker() string {
	idx := len(s.Turns) % len(s.Participants)
	return s.Participants[idx]
}

// AddTurn 追加一次发言；达到上限时场景转为completed。
// 已完成的场景不再接受发言。
func (s *Scene) AddTurn(speaker, utterance string) bool {
	if s.Status != StoryActive {
		return false
	}
	s.Turns = append(s.Turns, SceneTurn{
		Speaker:   speaker,
		Utterance: utterance,
		Timestamp: time.Now(),
	})
	if len(s.Turns) >= s.MaxTurns {
		s.Status = StoryCompleted
	}
	return true
}

// Timeline 表示把多个场景串成长线剧情的状态机
type Timeline struct {
	ID             string   `json:"id"`
	Title          string   `json:"title"`
	SceneIDs       []string `json:"scene_ids"`
	CurrentIdx     int      `json:"current_scene_idx"`
	Status         string   `json:"status"`
	Participants   []string `json:"participants"`
	BackgroundTags []string `json:"background_tags"`
	MaxScenes      int      `json:"max_scenes"`
}
