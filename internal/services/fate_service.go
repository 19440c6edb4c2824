// internal/services/fate_service.go
package services

import (
	"context"
	"time"

	"github.com/Corphon/FateWeaverMCP/internal/llm"
	"github.com/Corphon/FateWeaverMCP/internal/models"
)

// 生成失败时的占位文本（与生成服务的降级口径一致）
const (
	dialogueFallback = "（两人简短地聊了几句，彼此点头示意。）"
	incidentFallback = "一个平凡的小插曲发生了。"
)

// driftTable 把事件类型映射到关系漂移幅度。
// 未列出的类型幅度为0，整个漂移步骤跳过。
var driftTable = map[string]float64{
	"morning_greeting": 0.1,
	"random_encounter": 0.1,
	"bad_luck":         -0.05,
}

// Rule 是命运规则的能力集合。
// 注册顺序是契约的一部分：同一tick内先注册的规则先求值，
// 且前面规则的副作用对后面规则可见。
type Rule interface {
	ID() string
	Trigger() string // 当前只有 "tick" 被调度器消费
	Weight() float64 // 保留配置，不参与选择
	Matches(store *WorldService) bool
	Materialize(store *WorldService, tick int) []*models.Event
}

// FateService 持有规则表与到期队列，按tick驱动事件的生成与结算
type FateService struct {
	store     *WorldService
	generator llm.Generator

	rules      []Rule
	queue      map[string]*models.Event
	queueOrder []string // 保持入队顺序

	summaryThreshold int
	summaryWindow    int
	callTimeout      time.Duration
}

// NewFateService 创建命运引擎
func NewFateService(store *WorldService, generator llm.Generator, summaryThreshold int) *FateService {
	if summaryThreshold <= 0 {
		summaryThreshold = 5
	}
	return &FateService{
		store:            store,
		generator:        generator,
		queue:            make(map[string]*models.Event),
		summaryThreshold: summaryThreshold,
		summaryWindow:    20,
		callTimeout:      20 * time.Second,
	}
}

// RegisterRule 追加一条规则到有序规则表
func (f *FateService) RegisterRule(rule Rule) {
	f.rules = append(f.rules, rule)
}

// RegisterRules 按序追加多条规则
func (f *FateService) RegisterRules(rules []Rule) {
	for _, rule := range rules {
		f.RegisterRule(rule)
	}
}

// enqueue 把事件同时放入世界事件表和到期队列
func (f *FateService) enqueue(event *models.Event) {
	event.EnsurePayload()
	f.store.AddEvent(event)
	if _, exists := f.queue[event.ID]; !exists {
		f.queueOrder = append(f.queueOrder, event.ID)
	}
	f.queue[event.ID] = event
}

// OnTick 按注册顺序求值所有tick规则，入队新事件并返回。
// 条件在实时状态上求值，前序规则的产物对后序规则可见。
func (f *FateService) OnTick(tick int) []*models.Event {
	var newEvents []*models.Event
	for _, rule := range f.rules {
		if rule.Trigger() != "tick" {
			continue
		}
		if !rule.Matches(f.store) {
			continue
		}
		for _, event := range rule.Materialize(f.store, tick) {
			f.enqueue(event)
			newEvents = append(newEvents, event)
		}
	}
	return newEvents
}

// PopDueEvents 取出所有到期且仍为scheduled的事件。
// 出队顺序遵循入队顺序，不按scheduled_for排序；
// 取出的事件转为ready并从队列移除，不会被重复返回。
func (f *FateService) PopDueEvents(currentTick int) []*models.Event {
	var due []*models.Event
	remaining := f.queueOrder[:0]
	for _, id := range f.queueOrder {
		event, ok := f.queue[id]
		if !ok {
			continue
		}
		if event.ScheduledFor <= currentTick && event.Status == models.EventScheduled {
			event.Status = models.EventReady
			due = append(due, event)
			delete(f.queue, id)
			continue
		}
		remaining = append(remaining, id)
	}
	f.queueOrder = remaining
	return due
}

// ProcessDueEvents 对所有到期事件依次执行结算管线。
// 单个事件的生成失败只降级为占位文本，不影响后续事件。
func (f *FateService) ProcessDueEvents(currentTick int) []*models.FateResult {
	var results []*models.FateResult
	for _, event := range f.PopDueEvents(currentTick) {
		results = append(results, f.resolveEvent(event, currentTick))
	}
	return results
}

// resolveEvent 执行事件结算管线：
// 插曲生成 -> 叙述 -> 状态转移 -> 效果应用 -> 关系漂移 -> 记忆记录 -> 按需总结 -> 写日志
func (f *FateService) resolveEvent(event *models.Event, currentTick int) *models.FateResult {
	// 1. 插曲只生成一次，缓存进payload，重试结算不会重新生成
	incident := event.IncidentFromPayload()
	if incident == nil {
		incident = f.generateIncident(event)
		event.Payload["incident"] = incident
	}

	// 2. 叙述文本
	dialogue := f.describeEvent(event)

	// 3. 状态转移
	event.Status = models.EventResolved

	// 4. 效果应用
	applied := f.applyEffects(event)

	// 5. 关系漂移
	drift := f.applyDrift(event)

	// 6. 记忆记录
	memoryIDs, touched := f.recordMemories(event, dialogue)

	// 7. 达到阈值的角色触发记忆总结
	var summarized []string
	for _, actorID := range touched {
		if f.store.UnsummarizedCount(actorID) >= f.summaryThreshold {
			if _, err := f.store.SummarizeMemories(f.generator, actorID, f.summaryWindow); err == nil {
				summarized = append(summarized, actorID)
			}
		}
	}

	// 8. 结构化结果入日志
	result := &models.FateResult{
		Type:       "fate_event",
		EventID:    event.ID,
		EventType:  event.Type,
		Actors:     event.Actors,
		LocationID: event.LocationID,
		Tick:       currentTick,
		Incident:   incident,
		Dialogue:   dialogue,
		Effects:    applied,
		Drift:      drift,
		MemoryIDs:  memoryIDs,
		Summaries:  summarized,
	}
	f.store.AppendLog(result)

	return result
}

// generateIncident 请求插曲，失败时使用占位插曲
func (f *FateService) generateIncident(event *models.Event) *models.Incident {
	if f.generator == nil {
		return &models.Incident{Title: "incident", Description: incidentFallback}
	}

	ctx, cancel := context.WithTimeout(context.Background(), f.callTimeout)
	defer cancel()

	result, err := f.generator.GenerateIncident(ctx, event.Type, f.participantSketches(event.Actors, false))
	if err != nil || result.Description == "" {
		return &models.Incident{Title: "incident", Description: incidentFallback}
	}
	return &models.Incident{Title: result.Title, Description: result.Description}
}

// describeEvent 请求叙述文本，失败时使用占位叙述
func (f *FateService) describeEvent(event *models.Event) string {
	if f.generator == nil {
		return dialogueFallback
	}

	ctx, cancel := context.WithTimeout(context.Background(), f.callTimeout)
	defer cancel()

	world := f.store.World()
	text, err := f.generator.DescribeEvent(ctx, llm.EventContext{
		Type:                 event.Type,
		LocationID:           event.LocationID,
		Payload:              event.Payload,
		DefaultLanguage:      world.DefaultLanguage,
		ForceDefaultLanguage: world.ForceDefaultLanguage,
		Participants:         f.participantSketches(event.Actors, true),
	})
	if err != nil || text == "" {
		return dialogueFallback
	}
	return text
}

// participantSketches 为生成器构建事件参与者摘要
func (f *FateService) participantSketches(actorIDs []string, withStates bool) []llm.ParticipantSketch {
	sketches := make([]llm.ParticipantSketch, 0, len(actorIDs))
	for _, id := range actorIDs {
		character, ok := f.store.Character(id)
		if !ok {
			continue
		}
		sketch := llm.ParticipantSketch{
			ID:              character.ID,
			Name:            character.Name,
			Traits:          character.Traits,
			MemorySummaries: f.store.SummarySnippetsOf(id, 3),
		}
		if withStates {
			sketch.Language = character.Language
			sketch.Comprehension = character.Comprehension
			sketch.States = character.States
		}
		sketches = append(sketches, sketch)
	}
	return sketches
}

// applyEffects 应用事件效果并记录前后值。
// 目标角色不存在的效果静默跳过，单条坏效果不影响整体结算。
func (f *FateService) applyEffects(event *models.Event) []models.AppliedEffect {
	var applied []models.AppliedEffect
	for _, effect := range event.Effects {
		target, ok := f.store.Character(effect.Target)
		if !ok {
			continue
		}

		mapping := f.selectMapping(target, effect.Field.Kind)
		before := mapping[effect.Field.Key]

		var after float64
		switch {
		case effect.Set != nil:
			after = *effect.Set
		case effect.Delta != nil:
			after = before + *effect.Delta
		default:
			continue // 空操作
		}
		mapping[effect.Field.Key] = after

		applied = append(applied, models.AppliedEffect{
			Target: effect.Target,
			Field:  effect.Field.String(),
			Before: before,
			After:  after,
		})
	}
	return applied
}

// selectMapping 按效果字段类别选择角色的标量映射
func (f *FateService) selectMapping(character *models.Character, kind models.FieldKind) map[string]float64 {
	switch kind {
	case models.FieldTrait:
		return character.Traits
	case models.FieldRel:
		return character.Relationships
	case models.FieldAttr:
		return character.Attributes
	default:
		return character.States
	}
}

// applyDrift 按事件类型对每对参与者做对称的关系漂移
func (f *FateService) applyDrift(event *models.Event) []models.DriftRecord {
	magnitude := driftTable[event.Type]
	if magnitude == 0 {
		return nil
	}

	var records []models.DriftRecord
	for i := 0; i < len(event.Actors); i++ {
		for j := i + 1; j < len(event.Actors); j++ {
			a, okA := f.store.Character(event.Actors[i])
			b, okB := f.store.Character(event.Actors[j])
			if !okA || !okB {
				continue
			}
			a.Relationships[b.ID] += magnitude
			b.Relationships[a.ID] += magnitude
			records = append(records, models.DriftRecord{A: a.ID, B: b.ID, Magnitude: magnitude})
		}
	}
	return records
}

// recordMemories 为每位在场角色写入一条事件记忆。
// 返回新记忆ID与得到记忆的角色ID。
func (f *FateService) recordMemories(event *models.Event, dialogue string) ([]string, []string) {
	var memoryIDs, touched []string
	for _, actorID := range event.Actors {
		if _, ok := f.store.Character(actorID); !ok {
			continue
		}
		memory := &models.Memory{
			ID:        f.store.newMemoryID(),
			OwnerID:   actorID,
			Summary:   truncateRunes(dialogue, 200),
			Salience:  1.0,
			Tags:      []string{event.Type},
			CreatedAt: event.CreatedAt,
		}
		f.store.AddMemory(memory)
		memoryIDs = append(memoryIDs, memory.ID)
		touched = append(touched, actorID)
	}
	return memoryIDs, touched
}

// truncateRunes 按字符截断（叙述多为中文，不能按字节截）
func truncateRunes(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}
