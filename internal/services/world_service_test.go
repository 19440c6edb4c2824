// internal/services/world_service_test.go
package services

import (
	"errors"
	"fmt"
	"testing"

	"github.com/Corphon/FateWeaverMCP/internal/llm"
	"github.com/Corphon/FateWeaverMCP/internal/models"
)

// newTestWorldService 在临时目录创建一个带两位角色的测试世界
func newTestWorldService(t *testing.T, memoryCap int) *WorldService {
	t.Helper()

	store, err := NewWorldService(t.TempDir(), "test-world", memoryCap)
	if err != nil {
		t.Fatalf("创建世界服务失败: %v", err)
	}

	store.AddCharacter(&models.Character{ID: "alice", Name: "爱丽丝", LocationID: "loc-1"})
	store.AddCharacter(&models.Character{ID: "bob", Name: "鲍勃", LocationID: "loc-1"})
	return store
}

func TestNewWorldServiceCreatesDefaultWorld(t *testing.T) {
	store, err := NewWorldService(t.TempDir(), "fresh", 0)
	if err != nil {
		t.Fatalf("创建世界服务失败: %v", err)
	}

	world := store.World()
	if world.ID != "fresh" {
		t.Errorf("世界ID应为fresh，实际为 %s", world.ID)
	}
	if _, ok := world.Locations["loc-1"]; !ok {
		t.Error("默认世界应包含初始地点loc-1")
	}
	if world.DefaultLanguage != "zh-CN" {
		t.Errorf("默认语言应为zh-CN，实际为 %s", world.DefaultLanguage)
	}
}

func TestAddMemoryFIFOEviction(t *testing.T) {
	store := newTestWorldService(t, 3)

	for i := 1; i <= 5; i++ {
		store.AddMemory(&models.Memory{
			ID:      fmt.Sprintf("m%d", i),
			OwnerID: "alice",
			Summary: fmt.Sprintf("记忆%d", i),
		})
	}

	alice, _ := store.Character("alice")
	if len(alice.MemoryIDs) != 3 {
		t.Fatalf("记忆列表应被截到3条，实际为 %d", len(alice.MemoryIDs))
	}
	for i, want := range []string{"m3", "m4", "m5"} {
		if alice.MemoryIDs[i] != want {
			t.Errorf("记忆顺序错误: 第%d条应为 %s，实际为 %s", i, want, alice.MemoryIDs[i])
		}
	}

	// 被淘汰的记忆必须同时从记忆表删除，不留孤儿
	for _, evicted := range []string{"m1", "m2"} {
		if _, ok := store.World().Memories[evicted]; ok {
			t.Errorf("被淘汰的记忆 %s 仍留在记忆表中", evicted)
		}
	}
	if _, ok := store.World().Memories["m5"]; !ok {
		t.Error("最新的记忆m5不应被淘汰")
	}
}

func TestAddMemoryUnknownOwner(t *testing.T) {
	store := newTestWorldService(t, 10)

	store.AddMemory(&models.Memory{ID: "mx", OwnerID: "ghost", Summary: "无主记忆"})

	// 记忆进表但不挂到任何角色
	if _, ok := store.World().Memories["mx"]; !ok {
		t.Error("记忆应进入记忆表")
	}
	if store.UnsummarizedCount("ghost") != 0 {
		t.Error("不存在的角色不应累计未总结计数")
	}
}

func TestGetLogsTail(t *testing.T) {
	store := newTestWorldService(t, 10)

	for i := 1; i <= 5; i++ {
		store.AppendLog(map[string]any{"n": fmt.Sprintf("e%d", i)})
	}

	tail := store.GetLogsTail(3)
	if len(tail) != 3 {
		t.Fatalf("应返回3条日志，实际为 %d", len(tail))
	}
	for i, want := range []string{"e3", "e4", "e5"} {
		if got, _ := tail[i]["n"].(string); got != want {
			t.Errorf("日志顺序错误: 第%d条应为 %s，实际为 %v", i, want, tail[i]["n"])
		}
	}

	if got := store.GetLogsTail(0); got != nil {
		t.Errorf("limit<=0应返回空，实际为 %v", got)
	}
}

func TestSummarizeMemoriesFallback(t *testing.T) {
	store := newTestWorldService(t, 10)

	store.AddMemory(&models.Memory{ID: "m1", OwnerID: "alice", Summary: "早上遇见了鲍勃"})
	store.AddMemory(&models.Memory{ID: "m2", OwnerID: "alice", Summary: "一起喝了茶"})
	if store.UnsummarizedCount("alice") != 2 {
		t.Fatalf("未总结计数应为2，实际为 %d", store.UnsummarizedCount("alice"))
	}

	// 生成器失败时必须降级为占位文本，而不是中断
	summary, err := store.SummarizeMemories(&fakeGenerator{fail: true}, "alice", 10)
	if err != nil {
		t.Fatalf("总结不应返回错误: %v", err)
	}
	if summary == nil {
		t.Fatal("应生成一条总结记忆")
	}
	if summary.Summary != memorySummaryFallback {
		t.Errorf("降级文本错误: %s", summary.Summary)
	}
	if !summary.IsSummary() {
		t.Error("总结记忆应带summary标签")
	}
	if store.UnsummarizedCount("alice") != 0 {
		t.Errorf("总结后计数应清零，实际为 %d", store.UnsummarizedCount("alice"))
	}

	// 总结记忆本身也挂在角色名下
	alice, _ := store.Character("alice")
	if alice.MemoryIDs[len(alice.MemoryIDs)-1] != summary.ID {
		t.Error("总结记忆应追加到角色记忆列表末尾")
	}
}

func TestSummarizeMemoriesNotConfigured(t *testing.T) {
	store := newTestWorldService(t, 10)
	store.AddMemory(&models.Memory{ID: "m1", OwnerID: "alice", Summary: "早上遇见了鲍勃"})

	if _, err := store.SummarizeMemories(llm.Unconfigured(), "alice", 10); !errors.Is(err, llm.ErrNotConfigured) {
		t.Errorf("生成器未配置应上报ErrNotConfigured，实际为 %v", err)
	}
	if store.UnsummarizedCount("alice") != 1 {
		t.Error("失败的总结不应清零计数")
	}
}

func TestSummarizeMemoriesEmpty(t *testing.T) {
	store := newTestWorldService(t, 10)

	summary, err := store.SummarizeMemories(&fakeGenerator{}, "bob", 10)
	if err != nil {
		t.Fatalf("空记忆总结不应返回错误: %v", err)
	}
	if summary != nil {
		t.Error("没有记忆时不应生成总结")
	}
}

func TestMemoriesOfUnknownCharacter(t *testing.T) {
	store := newTestWorldService(t, 10)

	if _, err := store.MemoriesOf("ghost", 10); err == nil {
		t.Error("查询不存在的角色应返回错误")
	}
}
