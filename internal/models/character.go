// internal/models/character.go
package models

// Character 表示世界中的一个角色
//
// attributes/traits/states 三个映射与 relationships 都是开放键空间，
// 缺失的键按 0.0 处理。
type Character struct {
	ID            string             `json:"id"`
	Name          string             `json:"name"`
	Age           int                `json:"age"`
	Role          string             `json:"role"`
	Language      string             `json:"language"`
	Comprehension map[string]float64 `json:"comprehension"` // 语种 -> 理解度 0~1
	Attributes    map[string]float64 `json:"attributes"`
	Traits        map[string]float64 `json:"traits"`
	States        map[string]float64 `json:"states"`
	Relationships map[string]float64 `json:"relationships"` // 对方角色ID -> 好感度
	MemoryIDs     []string           `json:"memory_ids"`    // 按时间顺序追加
	Goals         []string           `json:"goals"`
	Flags         map[string]bool    `json:"flags"`
	LocationID    string             `json:"location_id,omitempty"`
}

// EnsureMaps 初始化可能为nil的映射（反序列化后调用）
func (c *Character) EnsureMaps() {
	if c.Comprehension == nil {
		c.Comprehension = make(map[string]float64)
	}
	if c.Attributes == nil {
		c.Attributes = make(map[string]float64)
	}
	if c.Traits == nil {
		c.Traits = make(map[string]float64)
	}
	if c.States == nil {
		c.States = make(map[string]float64)
	}
	if c.Relationships == nil {
		c.Relationships = make(map[string]float64)
	}
	if c.Flags == nil {
		c.Flags = make(map[string]bool)
	}
}

// Memory 表示角色的一条记忆
//
// salience 与 decay_rate 目前仅做记录，不参与淘汰策略。
type Memory struct {
	ID        string   `json:"id"`
	OwnerID   string   `json:"owner_id"`
	Summary   string   `json:"summary"`
	Salience  float64  `json:"salience"`
	Tags      []string `json:"tags"`
	CreatedAt int      `json:"created_at"`
	DecayRate float64  `json:"decay_rate"`
}

// IsSummary 判断是否为记忆总结（summarize产物）
func (m *Memory) IsSummary() bool {
	for _, tag := range m.Tags {
		if tag == "summary" {
			return true
		}
	}
	return false
}
