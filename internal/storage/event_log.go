// internal/storage/event_log.go
package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// EventLog 是NDJSON格式的事件结果日志（追加写，跨进程可读）
type EventLog struct {
	path string
	mu   sync.Mutex
}

// NewEventLog 在指定世界目录下创建事件日志
func NewEventLog(worldDir string) *EventLog {
	return &EventLog{path: filepath.Join(worldDir, "event.log")}
}

// Append 追加一条日志。尽力而为：任何失败都被吞掉，
// 避免日志故障中断模拟循环。
func (l *EventLog) Append(entry any) {
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return
	}
	defer f.Close()
	fmt.Fprintln(f, string(data))
}

// Tail 返回最近limit条日志，跳过无法解析的行。
// 文件不存在或limit<=0时返回空。
func (l *EventLog) Tail(limit int) []map[string]any {
	if limit <= 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if err != nil {
		return nil
	}
	defer f.Close()

	// 环形缓冲保留末尾limit条
	buf := make([]map[string]any, 0, limit)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry map[string]any
		if err := json.Unmarshal(line, &entry); err != nil {
			continue
		}
		if len(buf) == limit {
			copy(buf, buf[1:])
			buf = buf[:limit-1]
		}
		buf = append(buf, entry)
	}
	return buf
}
