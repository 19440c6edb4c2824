// internal/services/story_service_test.go
package services

import (
	"testing"

	"github.com/Corphon/FateWeaverMCP/internal/models"
)

func newTestStoryService(t *testing.T) (*StoryService, *WorldService) {
	t.Helper()

	store := newTestWorldService(t, 10)
	store.AddCharacter(&models.Character{ID: "carol", Name: "卡罗尔", LocationID: "loc-1"})
	return NewStoryService(store, nil), store
}

func TestCreateSceneValidation(t *testing.T) {
	story, _ := newTestStoryService(t)

	if _, err := story.CreateScene("独角戏", []string{"alice"}, "", nil, 4); err == nil {
		t.Error("少于两位参与者应被拒绝")
	}
	if _, err := story.CreateScene("幽灵", []string{"alice", "ghost"}, "", nil, 4); err == nil {
		t.Error("不存在的参与者应被拒绝")
	}

	scene, err := story.CreateScene("对谈", []string{"alice", "bob"}, "", nil, 0)
	if err != nil {
		t.Fatalf("创建场景失败: %v", err)
	}
	if scene.MaxTurns != 6 {
		t.Errorf("未指定上限时应默认6轮，实际为 %d", scene.MaxTurns)
	}
	if scene.Status != models.StoryActive {
		t.Errorf("新场景应为active，实际为 %s", scene.Status)
	}
}

func TestSceneRoundRobin(t *testing.T) {
	story, _ := newTestStoryService(t)

	scene, err := story.CreateScene("圆桌", []string{"alice", "bob", "carol"}, "loc-1", nil, 4)
	if err != nil {
		t.Fatalf("创建场景失败: %v", err)
	}

	want := []string{"alice", "bob", "carol", "alice"}
	for i, speaker := range want {
		turn, err := story.StepScene(scene.ID)
		if err != nil {
			t.Fatalf("第%d轮推进失败: %v", i+1, err)
		}
		if turn.Speaker != speaker {
			t.Errorf("第%d轮发言者应为 %s，实际为 %s", i+1, speaker, turn.Speaker)
		}
		if turn.Utterance != dialogueFallback {
			t.Errorf("无生成器时发言应为占位文本，实际为 %s", turn.Utterance)
		}
	}

	if scene.Status != models.StoryCompleted {
		t.Errorf("达到轮数上限后场景应完成，实际为 %s", scene.Status)
	}
	if _, err := story.StepScene(scene.ID); err == nil {
		t.Error("已完成的场景不应接受推进")
	}
	if len(scene.Turns) != 4 {
		t.Errorf("发言数应停在4，实际为 %d", len(scene.Turns))
	}
}

func TestStepUnknownScene(t *testing.T) {
	story, _ := newTestStoryService(t)
	if _, err := story.StepScene("scene_ghost"); err == nil {
		t.Error("推进不存在的场景应返回错误")
	}
}

func TestTimelineLifecycle(t *testing.T) {
	story, _ := newTestStoryService(t)

	timeline, err := story.CreateTimeline("双幕剧", []string{"alice", "bob"}, []string{"黄昏"}, 2)
	if err != nil {
		t.Fatalf("创建时间线失败: %v", err)
	}
	if len(timeline.SceneIDs) != 1 || timeline.CurrentIdx != 0 {
		t.Fatalf("新时间线应带第一幕场景: %+v", timeline)
	}

	// 当前场景未完成时不允许手动推进
	if _, err := story.AdvanceTimeline(timeline.ID); err == nil {
		t.Error("场景未完成时手动推进应被拒绝")
	}

	// 打完第一幕的6轮，时间线自动推进到第二幕
	first, _ := story.Scene(timeline.SceneIDs[0])
	for i := 0; i < first.MaxTurns; i++ {
		if _, err := story.StepScene(first.ID); err != nil {
			t.Fatalf("第一幕推进失败: %v", err)
		}
	}
	if len(timeline.SceneIDs) != 2 {
		t.Fatalf("第一幕完成后应追加第二幕，实际场景数为 %d", len(timeline.SceneIDs))
	}
	if timeline.CurrentIdx != 1 {
		t.Errorf("游标应移到第二幕，实际为 %d", timeline.CurrentIdx)
	}
	if timeline.Status != models.StoryActive {
		t.Errorf("未达上限的时间线应保持active，实际为 %s", timeline.Status)
	}

	second, _ := story.Scene(timeline.SceneIDs[1])
	if second.Title != "双幕剧 · 第2幕" {
		t.Errorf("无生成器时第二幕应用编号标题，实际为 %s", second.Title)
	}

	// 打完第二幕，时间线到达上限并完结
	for i := 0; i < second.MaxTurns; i++ {
		if _, err := story.StepScene(second.ID); err != nil {
			t.Fatalf("第二幕推进失败: %v", err)
		}
	}
	if timeline.Status != models.StoryCompleted {
		t.Errorf("达到场景上限后时间线应完成，实际为 %s", timeline.Status)
	}
	if len(timeline.SceneIDs) != 2 {
		t.Errorf("完结后不应再生成场景，实际为 %d", len(timeline.SceneIDs))
	}

	// 完结的时间线上手动推进是无害的空操作
	got, err := story.AdvanceTimeline(timeline.ID)
	if err != nil {
		t.Fatalf("完结时间线的推进不应报错: %v", err)
	}
	if got.Status != models.StoryCompleted {
		t.Error("完结状态不应被改变")
	}
}

func TestActiveTimeline(t *testing.T) {
	story, _ := newTestStoryService(t)

	if story.ActiveTimeline() != nil {
		t.Error("没有时间线时应返回nil")
	}

	first, _ := story.CreateTimeline("先", []string{"alice", "bob"}, nil, 2)
	second, _ := story.CreateTimeline("后", []string{"alice", "bob"}, nil, 2)

	if got := story.ActiveTimeline(); got == nil || got.ID != first.ID {
		t.Errorf("应返回创建顺序上第一条活跃时间线，实际为 %+v", got)
	}

	// 第一条完结后轮到第二条
	first.Status = models.StoryCompleted
	if got := story.ActiveTimeline(); got == nil || got.ID != second.ID {
		t.Errorf("第一条完结后应返回第二条，实际为 %+v", got)
	}
}
