// internal/models/world.go
package models

// Location 表示世界中的一个地点
type Location struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Kind        string   `json:"kind"`
	Connections []string `json:"connections"`
	Tags        []string `json:"tags"`
}

// World 表示一个完整的模拟世界（聚合根）
type World struct {
	ID                   string                `json:"id"`
	Name                 string                `json:"name"`
	Background           string                `json:"background"`
	Epoch                int                   `json:"epoch"`
	TimeScale            float64               `json:"time_scale"`
	DefaultLanguage      string                `json:"default_language"`
	ForceDefaultLanguage bool                  `json:"force_default_language"`
	EnvState             map[string]any        `json:"env_state"`
	Locations            map[string]*Location  `json:"locations"`
	Characters           map[string]*Character `json:"characters"`
	Memories             map[string]*Memory    `json:"memories"`
	Events               map[string]*Event     `json:"events"`
}

// NewWorld 创建一个带默认地点的空世界
func NewWorld(id, name, background string) *World {
	if name == "" {
		name = id
	}
	return &World{
		ID:                   id,
		Name:                 name,
		Background:           background,
		TimeScale:            1.0,
		DefaultLanguage:      "zh-CN",
		ForceDefaultLanguage: true,
		EnvState:             make(map[string]any),
		Locations: map[string]*Location{
			"loc-1": {ID: "loc-1", Name: "Square", Kind: "center"},
		},
		Characters: make(map[string]*Character),
		Memories:   make(map[string]*Memory),
		Events:     make(map[string]*Event),
	}
}
