// internal/storage/story_log.go
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// StoryTurnEntry 是写入剧情日志的一条发言记录
type StoryTurnEntry struct {
	SceneID   string    `json:"scene_id"`
	Speaker   string    `json:"speaker"`
	Utterance string    `json:"utterance"`
	Timestamp time.Time `json:"ts"`
}

// StoryLog 把场景发言同时写入 story.json（NDJSON）和 story.log（纯文本）。
// 与事件日志一样是尽力而为的追加写。
type StoryLog struct {
	jsonPath string
	textPath string
	mu       sync.Mutex
}

// NewStoryLog 在指定世界目录下创建剧情日志
func NewStoryLog(worldDir string) *StoryLog {
	return &StoryLog{
		jsonPath: filepath.Join(worldDir, "story.json"),
		textPath: filepath.Join(worldDir, "story.log"),
	}
}

// Append 追加一条发言记录
func (l *StoryLog) Append(entry StoryTurnEntry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.jsonPath), 0755); err != nil {
		return
	}

	if data, err := json.Marshal(entry); err == nil {
		if f, err := os.OpenFile(l.jsonPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644); err == nil {
			fmt.Fprintln(f, string(data))
			f.Close()
		}
	}

	if f, err := os.OpenFile(l.textPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644); err == nil {
		fmt.Fprintf(f, "[%d] scene=%s speaker=%s | %s\n",
			entry.Timestamp.Unix(), entry.SceneID, entry.Speaker, entry.Utterance)
		f.Close()
	}
}
