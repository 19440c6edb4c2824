// internal/models/event.go
package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// 事件状态机：scheduled -> ready -> resolved
const (
	EventScheduled = "scheduled"
	EventReady     = "ready"
	EventResolved  = "resolved"
)

// FieldKind 标识效果作用于角色的哪一类标量映射
type FieldKind string

const (
	FieldState FieldKind = "state"
	FieldTrait FieldKind = "trait"
	FieldRel   FieldKind = "rel"
	FieldAttr  FieldKind = "attr"
)

// EffectField 是封闭的效果目标描述：映射类别 + 键名
type EffectField struct {
	Kind FieldKind `json:"kind"`
	Key  string    `json:"key"`
}

// ParseFieldSpec 在事件创建时解析 "state:energy" 形式的字段描述。
// 无前缀或未知前缀时退化为 states 映射，键名取字面值。
func ParseFieldSpec(spec string) EffectField {
	prefix, key, ok := strings.Cut(spec, ":")
	if ok {
		switch FieldKind(prefix) {
		case FieldState, FieldTrait, FieldRel, FieldAttr:
			return EffectField{Kind: FieldKind(prefix), Key: key}
		}
	}
	return EffectField{Kind: FieldState, Key: spec}
}

// String 还原为 "kind:key" 形式，便于日志展示
func (f EffectField) String() string {
	return fmt.Sprintf("%s:%s", f.Kind, f.Key)
}

// UnmarshalJSON 同时接受 "state:energy" 字符串形式与结构体形式，
// 手动创建事件的API因此可以直接提交字符串字段描述
func (f *EffectField) UnmarshalJSON(data []byte) error {
	var spec string
	if err := json.Unmarshal(data, &spec); err == nil {
		*f = ParseFieldSpec(spec)
		return nil
	}

	type plain EffectField
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*f = EffectField(p)
	return nil
}

// EventEffect 表示一条事件效果。
// Delta 为增量叠加，Set 为绝对覆盖；两者都为空时该效果为空操作。
type EventEffect struct {
	Target string      `json:"target"` // 目标角色ID
	Field  EffectField `json:"field"`
	Delta  *float64    `json:"delta,omitempty"`
	Set    *float64    `json:"set,omitempty"`
}

// Incident 表示事件落地时生成的插曲结构
type Incident struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Event 表示一个待命运引擎结算的事件
type Event struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"`
	CreatedAt    int            `json:"created_at"`
	ScheduledFor int            `json:"scheduled_for"`
	LocationID   string         `json:"location_id,omitempty"`
	Actors       []string       `json:"actors"`
	Payload      map[string]any `json:"payload"`
	Origin       string         `json:"origin"`
	Status       string         `json:"status"`
	Effects      []EventEffect  `json:"effects"`
}

// EnsurePayload 初始化可能为nil的payload
func (e *Event) EnsurePayload() {
	if e.Payload == nil {
		e.Payload = make(map[string]any)
	}
}

// IncidentFromPayload 取出已缓存的插曲（若尚未生成则返回nil）
func (e *Event) IncidentFromPayload() *Incident {
	raw, ok := e.Payload["incident"]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case *Incident:
		return v
	case Incident:
		return &v
	case map[string]any:
		inc := &Incident{}
		if title, ok := v["title"].(string); ok {
			inc.Title = title
		}
		if desc, ok := v["description"].(string); ok {
			inc.Description = desc
		}
		return inc
	}
	return nil
}
