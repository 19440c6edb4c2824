// internal/models/event_test.go
package models

import (
	"encoding/json"
	"testing"
)

func TestParseFieldSpec(t *testing.T) {
	cases := []struct {
		spec string
		want EffectField
	}{
		{"state:mood", EffectField{Kind: FieldState, Key: "mood"}},
		{"trait:勇敢", EffectField{Kind: FieldTrait, Key: "勇敢"}},
		{"rel:bob", EffectField{Kind: FieldRel, Key: "bob"}},
		{"attr:luck", EffectField{Kind: FieldAttr, Key: "luck"}},
		// 无前缀与未知前缀都退化为states，键名取字面值
		{"mood", EffectField{Kind: FieldState, Key: "mood"}},
		{"magic:fire", EffectField{Kind: FieldState, Key: "magic:fire"}},
	}
	for _, c := range cases {
		if got := ParseFieldSpec(c.spec); got != c.want {
			t.Errorf("ParseFieldSpec(%q) = %+v，期望 %+v", c.spec, got, c.want)
		}
	}
}

func TestEffectFieldUnmarshalStringForm(t *testing.T) {
	var effect EventEffect
	if err := json.Unmarshal([]byte(`{"target":"alice","field":"rel:bob","delta":0.1}`), &effect); err != nil {
		t.Fatalf("字符串形式字段解析失败: %v", err)
	}
	if effect.Field != (EffectField{Kind: FieldRel, Key: "bob"}) {
		t.Errorf("字符串形式字段解析错误: %+v", effect.Field)
	}

	// 结构体形式（world.json落盘格式）同样可解析
	if err := json.Unmarshal([]byte(`{"target":"alice","field":{"kind":"attr","key":"luck"},"set":0.5}`), &effect); err != nil {
		t.Fatalf("结构体形式字段解析失败: %v", err)
	}
	if effect.Field != (EffectField{Kind: FieldAttr, Key: "luck"}) {
		t.Errorf("结构体形式字段解析错误: %+v", effect.Field)
	}

	if err := json.Unmarshal([]byte(`{"target":"alice","field":42}`), &effect); err == nil {
		t.Error("非法字段形态应返回错误")
	}
}

func TestIncidentFromPayload(t *testing.T) {
	event := &Event{}
	event.EnsurePayload()
	if event.IncidentFromPayload() != nil {
		t.Error("未缓存插曲时应返回nil")
	}

	// JSON反序列化会把插曲还原成map形态
	event.Payload["incident"] = map[string]any{"title": "巧遇", "description": "井边碰面。"}
	incident := event.IncidentFromPayload()
	if incident == nil || incident.Title != "巧遇" || incident.Description != "井边碰面。" {
		t.Errorf("map形态插曲解析错误: %+v", incident)
	}

	event.Payload["incident"] = &Incident{Title: "直接引用"}
	if got := event.IncidentFromPayload(); got == nil || got.Title != "直接引用" {
		t.Errorf("指针形态插曲解析错误: %+v", got)
	}
}
