// internal/services/sim_service.go
package services

import (
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/Corphon/FateWeaverMCP/internal/config"
	"github.com/Corphon/FateWeaverMCP/internal/llm"
	"github.com/Corphon/FateWeaverMCP/internal/models"
	"github.com/Corphon/FateWeaverMCP/internal/storage"
)

// SimService 是模拟内核的入口：持有当前世界的存储、时钟、
// 命运引擎与剧情服务，并用一把互斥锁串行化所有对存储的修改。
// 锁粒度是"整个tick"或"一次请求处理"，保证结算管线的逐步不变式。
type SimService struct {
	mu sync.Mutex

	baseDir   string
	cfg       *config.AppConfig
	generator llm.Generator

	currentWorldID string
	clock          *ClockService
	store          *WorldService
	engine         *FateService
	story          *StoryService

	// 新世界装配时透传给存储的日志回调
	onAppend func(entry map[string]any)
}

// NewSimService 加载默认世界并装配模拟内核
func NewSimService(baseDir string, generator llm.Generator, cfg *config.AppConfig) (*SimService, error) {
	s := &SimService{
		baseDir:   baseDir,
		cfg:       cfg,
		generator: generator,
	}
	if err := s.assembleWorld(cfg.DefaultWorld); err != nil {
		return nil, err
	}
	return s, nil
}

// assembleWorld 为指定世界重建存储/时钟/引擎/剧情服务
func (s *SimService) assembleWorld(worldID string) error {
	store, err := NewWorldService(s.baseDir, worldID, s.cfg.MemoryCap)
	if err != nil {
		return err
	}
	if s.onAppend != nil {
		store.SetOnAppend(s.onAppend)
	}

	engine := NewFateService(store, s.generator, s.cfg.SummaryThreshold)
	engine.RegisterRules(BuildDefaultRules())

	s.currentWorldID = worldID
	s.store = store
	s.engine = engine
	s.story = NewStoryService(store, s.generator)
	s.clock = NewClockService(s.cfg.TickSeconds, s.cfg.TimeScale)
	return nil
}

// SetOnAppend 设置结果日志回调（需在启动前调用）
func (s *SimService) SetOnAppend(fn func(entry map[string]any)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onAppend = fn
	s.store.SetOnAppend(fn)
}

// tickUnit 是一个tick的完整工作单元：推进纪元、求值规则、结算到期事件。
// 整个单元持锁执行，外部请求不会看到中间状态。
func (s *SimService) tickUnit(tick int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.store.AdvanceEpoch()
	s.engine.OnTick(tick)
	s.engine.ProcessDueEvents(tick)
}

// currentClock 在锁内取出时钟指针。时钟的Step/Stop会等待tick回调，
// 回调又要拿s.mu，所以这两条路径必须先取指针再在锁外调用。
func (s *SimService) currentClock() *ClockService {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clock
}

// Step 手动单步推进并落盘快照
func (s *SimService) Step() (tick, epoch int) {
	clock := s.currentClock()
	clock.Step(func(t int) {
		s.tickUnit(t)

		s.mu.Lock()
		if err := s.store.Save(); err != nil {
			log.Printf("警告: 保存世界快照失败: %v", err)
		}
		s.mu.Unlock()
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	return clock.Tick(), s.store.World().Epoch
}

// Start 启动连续模拟（幂等）。持锁启动，
// 保证启动的一定是切换后的当前时钟。
func (s *SimService) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock.Start(s.tickUnit)
}

// Stop 停止连续模拟并落盘
func (s *SimService) Stop() {
	s.currentClock().Stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.Save(); err != nil {
		log.Printf("警告: 保存世界快照失败: %v", err)
	}
}

// Clock 返回时钟（只读用途：tick数、运行状态）
func (s *SimService) Clock() *ClockService {
	return s.currentClock()
}

// SetTimeScale 更新时间倍率并同步到世界快照
func (s *SimService) SetTimeScale(scale float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock.SetTimeScale(scale)
	s.store.World().TimeScale = s.clock.TimeScale()
	return s.store.World().TimeScale
}

// WorldSnapshot 返回当前世界（调用方只读）
func (s *SimService) WorldSnapshot() *models.World {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.World()
}

// ---------------------------------------------------
// 实体操作（全部在锁内执行）

// CreateCharacter 创建或覆盖角色并落盘
func (s *SimService) CreateCharacter(character *models.Character) error {
	if character.ID == "" {
		return fmt.Errorf("角色ID不能为空")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if character.Language == "" {
		character.Language = s.store.World().DefaultLanguage
	}
	s.store.AddCharacter(character)
	return s.store.Save()
}

// Characters 返回按ID排序的全部角色
func (s *SimService) Characters() []*models.Character {
	s.mu.Lock()
	defer s.mu.Unlock()

	world := s.store.World()
	ids := make([]string, 0, len(world.Characters))
	for id := range world.Characters {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	characters := make([]*models.Character, 0, len(ids))
	for _, id := range ids {
		characters = append(characters, world.Characters[id])
	}
	return characters
}

// Character 查找角色
func (s *SimService) Character(id string) (*models.Character, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	character, ok := s.store.Character(id)
	if !ok {
		return nil, fmt.Errorf("角色不存在: %s", id)
	}
	return character, nil
}

// CreateLocation 创建或覆盖地点并落盘
func (s *SimService) CreateLocation(location *models.Location) error {
	if location.ID == "" {
		return fmt.Errorf("地点ID不能为空")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.store.AddLocation(location)
	return s.store.Save()
}

// Locations 返回按ID排序的全部地点
func (s *SimService) Locations() []*models.Location {
	s.mu.Lock()
	defer s.mu.Unlock()

	world := s.store.World()
	ids := make([]string, 0, len(world.Locations))
	for id := range world.Locations {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	locations := make([]*models.Location, 0, len(ids))
	for _, id := range ids {
		locations = append(locations, world.Locations[id])
	}
	return locations
}

// CreateEvent 手动创建事件。scheduled状态的事件进入到期队列，
// 由内核的调度路径结算；其他状态只落入事件表。
func (s *SimService) CreateEvent(event *models.Event) error {
	if event.ID == "" {
		return fmt.Errorf("事件ID不能为空")
	}
	if event.Status == "" {
		event.Status = models.EventScheduled
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if event.Status == models.EventScheduled {
		s.engine.enqueue(event)
	} else {
		s.store.AddEvent(event)
	}
	return nil
}

// Events 返回最多limit个事件（按ID排序），可按状态过滤
func (s *SimService) Events(status string, limit int) []*models.Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	world := s.store.World()
	ids := make([]string, 0, len(world.Events))
	for id := range world.Events {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var events []*models.Event
	for _, id := range ids {
		event := world.Events[id]
		if status != "" && event.Status != status {
			continue
		}
		events = append(events, event)
	}
	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}
	return events
}

// LogsTail 返回最近的结果日志
func (s *SimService) LogsTail(limit int) []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.GetLogsTail(limit)
}

// MemoriesOf 返回角色最近的记忆
func (s *SimService) MemoriesOf(characterID string, limit int) ([]*models.Memory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.MemoriesOf(characterID, limit)
}

// SummarizeMemories 按需触发一次记忆总结
func (s *SimService) SummarizeMemories(characterID string, limit int) (*models.Memory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.SummarizeMemories(s.generator, characterID, limit)
}

// ---------------------------------------------------
// 场景与时间线（委托剧情服务，统一持锁）

func (s *SimService) CreateScene(title string, participants []string, locationID string, tags []string, maxTurns int) (*models.Scene, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.story.CreateScene(title, participants, locationID, tags, maxTurns)
}

func (s *SimService) Scene(id string) (*models.Scene, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.story.Scene(id)
}

func (s *SimService) StepScene(id string) (*models.SceneTurn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.story.StepScene(id)
}

func (s *SimService) CreateTimeline(title string, participants []string, tags []string, maxScenes int) (*models.Timeline, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.story.CreateTimeline(title, participants, tags, maxScenes)
}

func (s *SimService) Timeline(id string) (*models.Timeline, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.story.Timeline(id)
}

func (s *SimService) AdvanceTimeline(id string) (*models.Timeline, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.story.AdvanceTimeline(id)
}

func (s *SimService) ActiveTimeline() *models.Timeline {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.story.ActiveTimeline()
}

// ---------------------------------------------------
// 多世界管理

// CurrentWorldID 返回当前世界ID
func (s *SimService) CurrentWorldID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentWorldID
}

// ListWorlds 列出数据目录下的全部世界
func (s *SimService) ListWorlds() ([]string, error) {
	fileStorage, err := storage.NewFileStorage(s.baseDir)
	if err != nil {
		return nil, err
	}
	return fileStorage.ListDirs("")
}

// CreateWorld 创建新世界并落盘（不切换当前世界）
func (s *SimService) CreateWorld(id, name, background, defaultLanguage string, forceDefaultLanguage bool) error {
	if id == "" {
		return fmt.Errorf("世界ID不能为空")
	}

	world := models.NewWorld(id, name, background)
	if defaultLanguage != "" {
		world.DefaultLanguage = defaultLanguage
	}
	world.ForceDefaultLanguage = forceDefaultLanguage

	fileStorage, err := storage.NewFileStorage(s.baseDir)
	if err != nil {
		return err
	}
	return fileStorage.SaveJSONFile(id, "world.json", world)
}

// SelectWorld 切换当前世界：停掉时钟，重建存储与引擎。
// 整个切换在锁内完成，请求方不会看到半装配状态。
func (s *SimService) SelectWorld(worldID string) error {
	worlds, err := s.ListWorlds()
	if err != nil {
		return err
	}
	found := false
	for _, w := range worlds {
		if w == worldID {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("世界不存在: %s", worldID)
	}

	s.currentClock().Stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.assembleWorld(worldID)
}
