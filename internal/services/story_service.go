// internal/services/story_service.go
package services

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/Corphon/FateWeaverMCP/internal/llm"
	"github.com/Corphon/FateWeaverMCP/internal/models"
	"github.com/Corphon/FateWeaverMCP/internal/storage"
)

// StoryService 驱动场景内的轮流发言和时间线上的场景推进。
// 角色与地点数据来自世界存储，自身只保存场景/时间线状态与剧情日志。
type StoryService struct {
	store     *WorldService
	generator llm.Generator
	storyLog  *storage.StoryLog

	scenes        map[string]*models.Scene
	timelines     map[string]*models.Timeline
	timelineOrder []string          // 创建顺序，用于"当前活跃时间线"
	sceneOwner    map[string]string // 场景ID -> 时间线ID
}

// NewStoryService 创建剧情服务，剧情日志写入当前世界目录
func NewStoryService(store *WorldService, generator llm.Generator) *StoryService {
	return &StoryService{
		store:      store,
		generator:  generator,
		storyLog:   storage.NewStoryLog(filepath.Join(store.BaseDir, store.World().ID)),
		scenes:     make(map[string]*models.Scene),
		timelines:  make(map[string]*models.Timeline),
		sceneOwner: make(map[string]string),
	}
}

// CreateScene 创建一个多角色对话场景
func (s *StoryService) CreateScene(title string, participants []string, locationID string, tags []string, maxTurns int) (*models.Scene, error) {
	if len(participants) < 2 {
		return nil, fmt.Errorf("场景至少需要两位参与者")
	}
	for _, id := range participants {
		if _, ok := s.store.Character(id); !ok {
			return nil, fmt.Errorf("角色不存在: %s", id)
		}
	}
	if maxTurns <= 0 {
		maxTurns = 6
	}

	scene := &models.Scene{
		ID:             s.newSceneID(),
		Title:          title,
		Participants:   participants,
		LocationID:     locationID,
		BackgroundTags: tags,
		MaxTurns:       maxTurns,
		Status:         models.StoryActive,
	}
	s.scenes[scene.ID] = scene
	return scene, nil
}

// Scene 查找场景
func (s *StoryService) Scene(id string) (*models.Scene, error) {
	scene, ok := s.scenes[id]
	if !ok {
		return nil, fmt.Errorf("场景不存在: %s", id)
	}
	return scene, nil
}

// StepScene 推进场景一轮：确定发言者、生成发言、落剧情日志。
// 场景因为这次发言而完成时，所属时间线立即推进。
func (s *StoryService) StepScene(sceneID string) (*models.SceneTurn, error) {
	scene, err := s.Scene(sceneID)
	if err != nil {
		return nil, err
	}
	if scene.Status != models.StoryActive {
		return nil, fmt.Errorf("场景已完成: %s", sceneID)
	}

	speaker := scene.NextSpeaker()
	utterance := s.generateUtterance(scene, speaker)
	if !scene.AddTurn(speaker, utterance) {
		return nil, fmt.Errorf("场景已完成: %s", sceneID)
	}

	turn := &scene.Turns[len(scene.Turns)-1]
	s.storyLog.Append(storage.StoryTurnEntry{
		SceneID:   scene.ID,
		Speaker:   turn.Speaker,
		Utterance: turn.Utterance,
		Timestamp: turn.Timestamp,
	})

	if scene.Status == models.StoryCompleted {
		if timelineID, ok := s.sceneOwner[scene.ID]; ok {
			if timeline, exists := s.timelines[timelineID]; exists {
				s.advanceTimeline(timeline)
			}
		}
	}
	return turn, nil
}

// generateUtterance 请求生成器给出发言，失败时降级为占位文本
func (s *StoryService) generateUtterance(scene *models.Scene, speakerID string) string {
	if s.generator == nil {
		return dialogueFallback
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	speaker, _ := s.store.Character(speakerID)
	world := s.store.World()

	var recent []string
	for i := max(0, len(scene.Turns)-3); i < len(scene.Turns); i++ {
		recent = append(recent, scene.Turns[i].Speaker+": "+scene.Turns[i].Utterance)
	}

	participants := make([]llm.ParticipantSketch, 0, 1)
	if speaker != nil {
		participants = append(participants, llm.ParticipantSketch{
			ID:              speaker.ID,
			Name:            speaker.Name,
			Language:        speaker.Language,
			Comprehension:   speaker.Comprehension,
			Traits:          speaker.Traits,
			States:          speaker.States,
			MemorySummaries: s.store.SummarySnippetsOf(speaker.ID, 3),
		})
	}

	text, err := s.generator.DescribeEvent(ctx, llm.EventContext{
		Type:       "scene_turn",
		LocationID: scene.LocationID,
		Payload: map[string]any{
			"scene_title":     scene.Title,
			"background_tags": scene.BackgroundTags,
			"recent_turns":    recent,
		},
		DefaultLanguage:      world.DefaultLanguage,
		ForceDefaultLanguage: world.ForceDefaultLanguage,
		Participants:         participants,
	})
	if err != nil || text == "" {
		return dialogueFallback
	}
	return text
}

// CreateTimeline 创建时间线并生成第一幕场景
func (s *StoryService) CreateTimeline(title string, participants []string, tags []string, maxScenes int) (*models.Timeline, error) {
	if maxScenes <= 0 {
		maxScenes = 3
	}

	scene, err := s.CreateScene(fmt.Sprintf("%s · 第1幕", title), participants, "", tags, 0)
	if err != nil {
		return nil, err
	}

	timeline := &models.Timeline{
		ID:             s.newTimelineID(),
		Title:          title,
		SceneIDs:       []string{scene.ID},
		Status:         models.StoryActive,
		Participants:   participants,
		BackgroundTags: tags,
		MaxScenes:      maxScenes,
	}
	s.timelines[timeline.ID] = timeline
	s.timelineOrder = append(s.timelineOrder, timeline.ID)
	s.sceneOwner[scene.ID] = timeline.ID
	return timeline, nil
}

// Timeline 查找时间线
func (s *StoryService) Timeline(id string) (*models.Timeline, error) {
	timeline, ok := s.timelines[id]
	if !ok {
		return nil, fmt.Errorf("时间线不存在: %s", id)
	}
	return timeline, nil
}

// ActiveTimeline 返回创建顺序上第一条仍活跃的时间线
func (s *StoryService) ActiveTimeline() *models.Timeline {
	for _, id := range s.timelineOrder {
		if t := s.timelines[id]; t != nil && t.Status == models.StoryActive {
			return t
		}
	}
	return nil
}

// AdvanceTimeline 手动推进时间线（当前场景必须已完成）
func (s *StoryService) AdvanceTimeline(id string) (*models.Timeline, error) {
	timeline, err := s.Timeline(id)
	if err != nil {
		return nil, err
	}
	if timeline.Status != models.StoryActive {
		return timeline, nil
	}
	current := s.scenes[timeline.SceneIDs[timeline.CurrentIdx]]
	if current == nil || current.Status != models.StoryCompleted {
		return nil, fmt.Errorf("当前场景尚未完成")
	}
	s.advanceTimeline(timeline)
	return timeline, nil
}

// advanceTimeline 当前场景完成后的推进：
// 未达上限时追加新场景并移动游标，达到上限则时间线完成。
func (s *StoryService) advanceTimeline(timeline *models.Timeline) {
	if timeline.Status != models.StoryActive {
		return
	}
	if len(timeline.SceneIDs) >= timeline.MaxScenes {
		timeline.Status = models.StoryCompleted
		return
	}

	title := s.nextSceneTitle(timeline, len(timeline.SceneIDs)+1)
	scene, err := s.CreateScene(title, timeline.Participants, "", timeline.BackgroundTags, 0)
	if err != nil {
		// 参与者在此期间被移除属于调用方问题，时间线直接完结
		timeline.Status = models.StoryCompleted
		return
	}
	timeline.SceneIDs = append(timeline.SceneIDs, scene.ID)
	timeline.CurrentIdx++
	s.sceneOwner[scene.ID] = timeline.ID

	if timeline.CurrentIdx >= len(timeline.SceneIDs) {
		timeline.Status = models.StoryCompleted
	}
}

// nextSceneTitle 请求生成器拟下一幕标题，失败时用编号标题
func (s *StoryService) nextSceneTitle(timeline *models.Timeline, index int) string {
	fallback := fmt.Sprintf("%s · 第%d幕", timeline.Title, index)
	if s.generator == nil {
		return fallback
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	text, err := s.generator.DescribeEvent(ctx, llm.EventContext{
		Type: "next_scene_title",
		Payload: map[string]any{
			"timeline_title":  timeline.Title,
			"scene_index":     index,
			"background_tags": timeline.BackgroundTags,
		},
		DefaultLanguage:      s.store.World().DefaultLanguage,
		ForceDefaultLanguage: s.store.World().ForceDefaultLanguage,
	})
	if err != nil || text == "" {
		return fallback
	}
	return truncateRunes(text, 40)
}

// newSceneID 生成唯一场景ID
func (s *StoryService) newSceneID() string {
	for {
		id := fmt.Sprintf("scene_%d", time.Now().UnixNano())
		if _, exists := s.scenes[id]; !exists {
			return id
		}
		time.Sleep(time.Microsecond)
	}
}

// newTimelineID 生成唯一时间线ID
func (s *StoryService) newTimelineID() string {
	for {
		id := fmt.Sprintf("timeline_%d", time.Now().UnixNano())
		if _, exists := s.timelines[id]; !exists {
			return id
		}
		time.Sleep(time.Microsecond)
	}
}
