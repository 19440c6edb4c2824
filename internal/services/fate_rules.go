// internal/services/fate_rules.go
package services

import (
	"math/rand"
	"sort"

	"github.com/Corphon/FateWeaverMCP/internal/models"
)

// 默认规则集。顺序即注册顺序，属于契约的一部分。
func BuildDefaultRules() []Rule {
	return []Rule{
		&MorningGreetingRule{},
		&RandomEncounterRule{chance: 0.15},
		&BadLuckRule{chance: 0.05},
	}
}

// sortedCharacterIDs 返回按ID排序的角色列表，保证规则行为可复现
func sortedCharacterIDs(store *WorldService) []string {
	world := store.World()
	ids := make([]string, 0, len(world.Characters))
	for id := range world.Characters {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func floatPtr(v float64) *float64 { return &v }

// ---------------------------------------------------
// MorningGreetingRule 在每个世界日的清晨让同地点的两位角色互相问候
type MorningGreetingRule struct{}

func (r *MorningGreetingRule) ID() string      { return "morning_greeting" }
func (r *MorningGreetingRule) Trigger() string { return "tick" }
func (r *MorningGreetingRule) Weight() float64 { return 1.0 }

func (r *MorningGreetingRule) Matches(store *WorldService) bool {
	// 一个世界日24个纪元，第8个纪元视为清晨
	if store.World().Epoch%24 != 8 {
		return false
	}
	return len(r.colocatedPair(store)) == 2
}

func (r *MorningGreetingRule) Materialize(store *WorldService, tick int) []*models.Event {
	pair := r.colocatedPair(store)
	if len(pair) != 2 {
		return nil
	}
	first, _ := store.Character(pair[0])
	return []*models.Event{{
		ID:           store.NewEventID(),
		Type:         "morning_greeting",
		CreatedAt:    tick,
		ScheduledFor: tick,
		LocationID:   first.LocationID,
		Actors:       pair,
		Origin:       "system",
		Status:       models.EventScheduled,
		Effects: []models.EventEffect{
			{Target: pair[0], Field: models.EffectField{Kind: models.FieldState, Key: "mood"}, Delta: floatPtr(0.1)},
			{Target: pair[1], Field: models.EffectField{Kind: models.FieldState, Key: "mood"}, Delta: floatPtr(0.1)},
		},
	}}
}

// colocatedPair 找到第一对处于同一地点的角色
func (r *MorningGreetingRule) colocatedPair(store *WorldService) []string {
	byLocation := make(map[string][]string)
	for _, id := range sortedCharacterIDs(store) {
		character, _ := store.Character(id)
		if character.LocationID == "" {
			continue
		}
		byLocation[character.LocationID] = append(byLocation[character.LocationID], id)
		if len(byLocation[character.LocationID]) == 2 {
			return byLocation[character.LocationID]
		}
	}
	return nil
}

// ---------------------------------------------------
// RandomEncounterRule 以固定概率让两位随机角色偶遇
type RandomEncounterRule struct {
	chance float64
}

func (r *RandomEncounterRule) ID() string      { return "random_encounter" }
func (r *RandomEncounterRule) Trigger() string { return "tick" }
func (r *RandomEncounterRule) Weight() float64 { return 1.0 }

func (r *RandomEncounterRule) Matches(store *WorldService) bool {
	if len(store.World().Characters) < 2 {
		return false
	}
	return rand.Float64() < r.chance
}

func (r *RandomEncounterRule) Materialize(store *WorldService, tick int) []*models.Event {
	ids := sortedCharacterIDs(store)
	if len(ids) < 2 {
		return nil
	}
	i := rand.Intn(len(ids))
	j := rand.Intn(len(ids) - 1)
	if j >= i {
		j++
	}
	a, _ := store.Character(ids[i])
	return []*models.Event{{
		ID:           store.NewEventID(),
		Type:         "random_encounter",
		CreatedAt:    tick,
		ScheduledFor: tick + 1,
		LocationID:   a.LocationID,
		Actors:       []string{ids[i], ids[j]},
		Origin:       "system",
		Status:       models.EventScheduled,
		Effects: []models.EventEffect{
			{Target: ids[i], Field: models.EffectField{Kind: models.FieldState, Key: "energy"}, Delta: floatPtr(-0.05)},
			{Target: ids[j], Field: models.EffectField{Kind: models.FieldState, Key: "energy"}, Delta: floatPtr(-0.05)},
		},
	}}
}

// ---------------------------------------------------
// BadLuckRule 以小概率给一位随机角色降下霉运
type BadLuckRule struct {
	chance float64
}

func (r *BadLuckRule) ID() string      { return "bad_luck" }
func (r *BadLuckRule) Trigger() string { return "tick" }
func (r *BadLuckRule) Weight() float64 { return 0.5 }

func (r *BadLuckRule) Matches(store *WorldService) bool {
	if len(store.World().Characters) == 0 {
		return false
	}
	return rand.Float64() < r.chance
}

func (r *BadLuckRule) Materialize(store *WorldService, tick int) []*models.Event {
	ids := sortedCharacterIDs(store)
	if len(ids) == 0 {
		return nil
	}
	victim := ids[rand.Intn(len(ids))]
	character, _ := store.Character(victim)
	return []*models.Event{{
		ID:           store.NewEventID(),
		Type:         "bad_luck",
		CreatedAt:    tick,
		ScheduledFor: tick + 1,
		LocationID:   character.LocationID,
		Actors:       []string{victim},
		Origin:       "system",
		Status:       models.EventScheduled,
		Effects: []models.EventEffect{
			{Target: victim, Field: models.EffectField{Kind: models.FieldState, Key: "mood"}, Delta: floatPtr(-0.2)},
			{Target: victim, Field: models.EffectField{Kind: models.FieldAttr, Key: "luck"}, Delta: floatPtr(-0.1)},
		},
	}}
}
