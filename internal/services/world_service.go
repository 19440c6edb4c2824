// internal/services/world_service.go
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/Corphon/FateWeaverMCP/internal/llm"
	"github.com/Corphon/FateWeaverMCP/internal/models"
	"github.com/Corphon/FateWeaverMCP/internal/storage"
)

// 记忆总结失败时的占位文本
const memorySummaryFallback = "（最近几条记忆被简要整理。）"

// WorldService 持有当前世界的全部实体集合与结果日志。
// 实体集合由本服务独占；命运引擎与剧情服务只保留引用，不复制状态。
type WorldService struct {
	BaseDir string // 世界数据根目录，例如 data/worlds

	world        *models.World
	fileStorage  *storage.FileStorage
	eventLog     *storage.EventLog
	memoryCap    int
	unsummarized map[string]int // 角色ID -> 未总结事件数

	// 内存中的结果日志（持久化失败时的兜底来源）
	logBuffer []map[string]any

	// 每次追加日志后的回调（用于实时推送），可为nil
	onAppend func(entry map[string]any)
}

// NewWorldService 加载（或创建）指定世界并准备日志sink
func NewWorldService(baseDir, worldID string, memoryCap int) (*WorldService, error) {
	if memoryCap <= 0 {
		memoryCap = 100
	}

	fileStorage, err := storage.NewFileStorage(baseDir)
	if err != nil {
		return nil, fmt.Errorf("初始化世界存储失败: %w", err)
	}

	s := &WorldService{
		BaseDir:      baseDir,
		fileStorage:  fileStorage,
		memoryCap:    memoryCap,
		unsummarized: make(map[string]int),
	}

	if err := s.loadWorld(worldID); err != nil {
		return nil, err
	}
	return s, nil
}

// loadWorld 读取world.json，不存在时创建默认世界
func (s *WorldService) loadWorld(worldID string) error {
	var world models.World
	if err := s.fileStorage.LoadJSONFile(worldID, "world.json", &world); err != nil {
		world = *models.NewWorld(worldID, worldID, "A new world")
	} else {
		normalizeWorld(&world)
	}

	s.world = &world
	s.eventLog = storage.NewEventLog(filepath.Join(s.BaseDir, worldID))

	// 立即落盘，保证世界目录存在
	if err := s.Save(); err != nil {
		log.Printf("警告: 保存世界快照失败: %v", err)
	}
	return nil
}

// normalizeWorld 反序列化后补齐所有可能为nil的集合
func normalizeWorld(world *models.World) {
	if world.EnvState == nil {
		world.EnvState = make(map[string]any)
	}
	if world.Locations == nil {
		world.Locations = make(map[string]*models.Location)
	}
	if world.Characters == nil {
		world.Characters = make(map[string]*models.Character)
	}
	if world.Memories == nil {
		world.Memories = make(map[string]*models.Memory)
	}
	if world.Events == nil {
		world.Events = make(map[string]*models.Event)
	}
	if world.TimeScale <= 0 {
		world.TimeScale = 1.0
	}
	for _, c := range world.Characters {
		c.EnsureMaps()
	}
	for _, e := range world.Events {
		e.EnsurePayload()
	}
}

// World 返回当前世界（调用方不得越过服务直接持久化）
func (s *WorldService) World() *models.World {
	return s.world
}

// Save 把世界快照写入world.json。运行期日志不进入快照。
func (s *WorldService) Save() error {
	return s.fileStorage.SaveJSONFile(s.world.ID, "world.json", s.world)
}

// AddLocation 按ID插入地点，同ID覆盖
func (s *WorldService) AddLocation(location *models.Location) {
	s.world.Locations[location.ID] = location
}

// AddCharacter 按ID插入角色，同ID覆盖
func (s *WorldService) AddCharacter(character *models.Character) {
	character.EnsureMaps()
	s.world.Characters[character.ID] = character
}

// AddEvent 按ID插入事件，同ID覆盖
func (s *WorldService) AddEvent(event *models.Event) {
	event.EnsurePayload()
	s.world.Events[event.ID] = event
}

// Character 查找角色
func (s *WorldService) Character(id string) (*models.Character, bool) {
	c, ok := s.world.Characters[id]
	return c, ok
}

// AddMemory 插入记忆并挂到所属角色。
// 角色记忆超过上限时按FIFO淘汰最旧的，列表与记忆表同步删除。
func (s *WorldService) AddMemory(memory *models.Memory) {
	s.world.Memories[memory.ID] = memory

	owner, ok := s.world.Characters[memory.OwnerID]
	if !ok {
		return
	}
	owner.MemoryIDs = append(owner.MemoryIDs, memory.ID)
	s.unsummarized[owner.ID]++

	for len(owner.MemoryIDs) > s.memoryCap {
		oldest := owner.MemoryIDs[0]
		owner.MemoryIDs = owner.MemoryIDs[1:]
		delete(s.world.Memories, oldest)
	}
}

// UnsummarizedCount 返回角色自上次总结以来累计的事件数
func (s *WorldService) UnsummarizedCount(characterID string) int {
	return s.unsummarized[characterID]
}

// AdvanceEpoch 推进世界纪元计数并返回新值，每个tick调用一次
func (s *WorldService) AdvanceEpoch() int {
	s.world.Epoch++
	return s.world.Epoch
}

// SetOnAppend 设置日志追加回调
func (s *WorldService) SetOnAppend(fn func(entry map[string]any)) {
	s.onAppend = fn
}

// AppendLog 把结构化结果写入内存日志并转发到持久sink。
// sink写入是尽力而为的，失败不会中断模拟。
func (s *WorldService) AppendLog(entry any) {
	flat, err := toLogEntry(entry)
	if err != nil {
		log.Printf("警告: 无法序列化日志条目: %v", err)
		return
	}

	s.logBuffer = append(s.logBuffer, flat)
	s.eventLog.Append(flat)

	if s.onAppend != nil {
		s.onAppend(flat)
	}
}

// toLogEntry 将任意结构体打平为map，统一两种日志来源的形态
func toLogEntry(entry any) (map[string]any, error) {
	if m, ok := entry.(map[string]any); ok {
		return m, nil
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return nil, err
	}
	var flat map[string]any
	if err := json.Unmarshal(data, &flat); err != nil {
		return nil, err
	}
	return flat, nil
}

// GetLogsTail 返回最近limit条结果。
// 优先读持久sink（跨进程可见），为空时回退到内存缓冲。
func (s *WorldService) GetLogsTail(limit int) []map[string]any {
	if limit <= 0 {
		return nil
	}
	if tail := s.eventLog.Tail(limit); len(tail) > 0 {
		return tail
	}
	if len(s.logBuffer) <= limit {
		return append([]map[string]any(nil), s.logBuffer...)
	}
	return append([]map[string]any(nil), s.logBuffer[len(s.logBuffer)-limit:]...)
}

// MemoriesOf 返回角色最近limit条记忆（按时间顺序）
func (s *WorldService) MemoriesOf(characterID string, limit int) ([]*models.Memory, error) {
	character, ok := s.world.Characters[characterID]
	if !ok {
		return nil, fmt.Errorf("角色不存在: %s", characterID)
	}

	memories := make([]*models.Memory, 0, len(character.MemoryIDs))
	for _, mid := range character.MemoryIDs {
		if mem, ok := s.world.Memories[mid]; ok {
			memories = append(memories, mem)
		}
	}
	if limit > 0 && len(memories) > limit {
		memories = memories[len(memories)-limit:]
	}
	return memories, nil
}

// SummarizeMemories 把角色最近limit条记忆压缩为一条"summary"标签记忆。
// 新记忆通过AddMemory插入（同样参与淘汰），并把未总结计数清零。
// 角色没有任何记忆时返回nil。
func (s *WorldService) SummarizeMemories(generator llm.Generator, characterID string, limit int) (*models.Memory, error) {
	if generator == nil {
		return nil, llm.ErrNotConfigured
	}
	character, ok := s.world.Characters[characterID]
	if !ok {
		return nil, fmt.Errorf("角色不存在: %s", characterID)
	}
	if len(character.MemoryIDs) == 0 {
		return nil, nil
	}

	ids := character.MemoryIDs
	if limit > 0 && len(ids) > limit {
		ids = ids[len(ids)-limit:]
	}
	summaries := make([]string, 0, len(ids))
	for _, mid := range ids {
		if mem, ok := s.world.Memories[mid]; ok {
			summaries = append(summaries, mem.Summary)
		}
	}

	text, err := generator.SummarizeMemories(context.Background(), summaries, 5)
	if errors.Is(err, llm.ErrNotConfigured) {
		// 配置缺失上报给调用方；管线侧会容忍这个错误继续结算
		return nil, err
	}
	if err != nil || text == "" {
		text = memorySummaryFallback
	}

	summary := &models.Memory{
		ID:        s.newMemoryID(),
		OwnerID:   characterID,
		Summary:   text,
		Salience:  1.0,
		Tags:      []string{"summary"},
		CreatedAt: s.world.Epoch,
	}
	s.AddMemory(summary)
	s.unsummarized[characterID] = 0

	return summary, nil
}

// SummarySnippetsOf 返回角色最近的总结类记忆文本，供生成器做上下文
func (s *WorldService) SummarySnippetsOf(characterID string, limit int) []string {
	character, ok := s.world.Characters[characterID]
	if !ok {
		return nil
	}
	var snippets []string
	for _, mid := range character.MemoryIDs {
		if mem, ok := s.world.Memories[mid]; ok && mem.IsSummary() {
			snippets = append(snippets, mem.Summary)
		}
	}
	if limit > 0 && len(snippets) > limit {
		snippets = snippets[len(snippets)-limit:]
	}
	return snippets
}

// newMemoryID 生成唯一记忆ID
func (s *WorldService) newMemoryID() string {
	for {
		id := fmt.Sprintf("mem_%d", time.Now().UnixNano())
		if _, exists := s.world.Memories[id]; !exists {
			return id
		}
		time.Sleep(time.Microsecond)
	}
}

// NewEventID 生成唯一事件ID
func (s *WorldService) NewEventID() string {
	for {
		id := fmt.Sprintf("evt_%d", time.Now().UnixNano())
		if _, exists := s.world.Events[id]; !exists {
			return id
		}
		time.Sleep(time.Microsecond)
	}
}
