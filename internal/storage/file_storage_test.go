// internal/storage/file_storage_test.go
package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSaveAndLoadJSONFile(t *testing.T) {
	fs, err := NewFileStorage(t.TempDir())
	if err != nil {
		t.Fatalf("创建文件存储失败: %v", err)
	}

	type snapshot struct {
		ID    string `json:"id"`
		Epoch int    `json:"epoch"`
	}

	saved := snapshot{ID: "w1", Epoch: 42}
	if err := fs.SaveJSONFile("w1", "world.json", saved); err != nil {
		t.Fatalf("保存失败: %v", err)
	}
	if !fs.FileExists("w1", "world.json") {
		t.Fatal("保存后文件应存在")
	}

	var loaded snapshot
	if err := fs.LoadJSONFile("w1", "world.json", &loaded); err != nil {
		t.Fatalf("读取失败: %v", err)
	}
	if loaded != saved {
		t.Errorf("往返数据不一致: %+v != %+v", loaded, saved)
	}

	// 覆盖写应留下新内容且没有残余临时文件
	saved.Epoch = 43
	if err := fs.SaveJSONFile("w1", "world.json", saved); err != nil {
		t.Fatalf("覆盖保存失败: %v", err)
	}
	entries, _ := os.ReadDir(filepath.Join(fs.BaseDir, "w1"))
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".tmp") {
			t.Errorf("不应残留临时文件: %s", entry.Name())
		}
	}
}

func TestLoadJSONFileMissing(t *testing.T) {
	fs, err := NewFileStorage(t.TempDir())
	if err != nil {
		t.Fatalf("创建文件存储失败: %v", err)
	}

	var v map[string]any
	if err := fs.LoadJSONFile("nowhere", "world.json", &v); err == nil {
		t.Error("读取不存在的文件应返回错误")
	}
}

func TestListDirs(t *testing.T) {
	fs, err := NewFileStorage(t.TempDir())
	if err != nil {
		t.Fatalf("创建文件存储失败: %v", err)
	}

	fs.SaveJSONFile("w1", "world.json", map[string]any{})
	fs.SaveJSONFile("w2", "world.json", map[string]any{})
	os.WriteFile(filepath.Join(fs.BaseDir, "stray.txt"), []byte("x"), 0644)

	dirs, err := fs.ListDirs("")
	if err != nil {
		t.Fatalf("列目录失败: %v", err)
	}
	if len(dirs) != 2 {
		t.Fatalf("应只列出2个世界目录，实际为 %v", dirs)
	}

	// 不存在的目录视为空
	dirs, err = fs.ListDirs("nowhere")
	if err != nil || dirs != nil {
		t.Errorf("不存在的目录应返回空: %v / %v", dirs, err)
	}
}

func TestStoryLogAppend(t *testing.T) {
	dir := t.TempDir()
	log := NewStoryLog(dir)

	log.Append(StoryTurnEntry{SceneID: "scene_1", Speaker: "alice", Utterance: "你好。"})

	jsonData, err := os.ReadFile(filepath.Join(dir, "story.json"))
	if err != nil {
		t.Fatalf("story.json应被创建: %v", err)
	}
	if !strings.Contains(string(jsonData), `"speaker":"alice"`) {
		t.Errorf("story.json内容错误: %s", jsonData)
	}

	textData, err := os.ReadFile(filepath.Join(dir, "story.log"))
	if err != nil {
		t.Fatalf("story.log应被创建: %v", err)
	}
	if !strings.Contains(string(textData), "scene=scene_1 speaker=alice | 你好。") {
		t.Errorf("story.log内容错误: %s", textData)
	}
}
