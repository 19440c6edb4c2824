// internal/models/result.go
package models

// AppliedEffect 记录一条已应用效果的前后值，用于观测
type AppliedEffect struct {
	Target string  `json:"target"`
	Field  string  `json:"field"`
	Before float64 `json:"before"`
	After  float64 `json:"after"`
}

// DriftRecord 记录一次关系漂移
type DriftRecord struct {
	A         string  `json:"a"`
	B         string  `json:"b"`
	Magnitude float64 `json:"magnitude"`
}

// FateResult 是事件结算后写入结果日志的结构化条目
type FateResult struct {
	Type       string          `json:"type"` // 日志条目类型，固定为 "fate_event"
	EventID    string          `json:"event_id"`
	EventType  string          `json:"event_type"`
	Actors     []string        `json:"actors"`
	LocationID string          `json:"location_id,omitempty"`
	Tick       int             `json:"tick"`
	Incident   *Incident       `json:"incident,omitempty"`
	Dialogue   string          `json:"dialogue"`
	Effects    []AppliedEffect `json:"effects,omitempty"`
	Drift      []DriftRecord   `json:"drift,omitempty"`
	MemoryIDs  []string        `json:"memory_ids,omitempty"`
	Summaries  []string        `json:"summaries,omitempty"` // 触发了记忆总结的角色ID
}
