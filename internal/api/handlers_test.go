// internal/api/handlers_test.go
package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/Corphon/FateWeaverMCP/internal/config"
	"github.com/Corphon/FateWeaverMCP/internal/llm"
	"github.com/Corphon/FateWeaverMCP/internal/services"
)

// newTestRouter 装配一个不经过全局容器的最小测试路由
func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.AppConfig{
		DataDir:          t.TempDir(),
		TickSeconds:      1.0,
		TimeScale:        1.0,
		MemoryCap:        10,
		SummaryThreshold: 5,
		DefaultWorld:     "default",
	}
	sim, err := services.NewSimService(cfg.DataDir, llm.Unconfigured(), cfg)
	if err != nil {
		t.Fatalf("创建模拟服务失败: %v", err)
	}
	handler := NewHandler(sim, NewLogHub())

	r := gin.New()
	r.GET("/api/world", handler.GetWorld)
	r.POST("/api/world/time-scale", handler.SetTimeScale)
	r.POST("/api/characters", handler.CreateCharacter)
	r.GET("/api/characters/:id", handler.GetCharacter)
	r.POST("/api/events", handler.CreateEvent)
	r.POST("/api/simulate/step", handler.SimulateStep)
	r.GET("/api/logs/tail", handler.GetLogsTail)
	return r
}

func doRequest(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestGetWorldEndpoint(t *testing.T) {
	r := newTestRouter(t)

	w := doRequest(r, http.MethodGet, "/api/world", "")
	if w.Code != http.StatusOK {
		t.Fatalf("状态码应为200，实际为 %d", w.Code)
	}

	var world map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &world); err != nil {
		t.Fatalf("响应应为JSON: %v", err)
	}
	if world["id"] != "default" {
		t.Errorf("世界ID应为default，实际为 %v", world["id"])
	}
}

func TestCharacterEndpoints(t *testing.T) {
	r := newTestRouter(t)

	w := doRequest(r, http.MethodPost, "/api/characters",
		`{"id":"alice","name":"爱丽丝","location_id":"loc-1"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("创建角色应成功，实际状态码 %d: %s", w.Code, w.Body.String())
	}

	w = doRequest(r, http.MethodGet, "/api/characters/alice", "")
	if w.Code != http.StatusOK {
		t.Fatalf("查询角色应成功，实际状态码 %d", w.Code)
	}
	var character map[string]any
	json.Unmarshal(w.Body.Bytes(), &character)
	if character["name"] != "爱丽丝" {
		t.Errorf("角色名错误: %v", character["name"])
	}

	w = doRequest(r, http.MethodGet, "/api/characters/ghost", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("不存在的角色应返回404，实际为 %d", w.Code)
	}

	// 缺少ID的请求被拒绝
	w = doRequest(r, http.MethodPost, "/api/characters", `{"name":"无名氏"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("缺少ID应返回400，实际为 %d", w.Code)
	}
}

// 手动创建事件时效果字段可以用 "state:energy" 字符串形式提交
func TestCreateEventStringEffectField(t *testing.T) {
	r := newTestRouter(t)

	doRequest(r, http.MethodPost, "/api/characters",
		`{"id":"alice","name":"爱丽丝","location_id":"loc-1"}`)

	w := doRequest(r, http.MethodPost, "/api/events",
		`{"id":"evt_api","type":"chat","scheduled_for":1,"actors":["alice"],"origin":"api",
		  "effects":[{"target":"alice","field":"state:mood","delta":0.3}]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("创建事件应成功，实际状态码 %d: %s", w.Code, w.Body.String())
	}

	doRequest(r, http.MethodPost, "/api/simulate/step", "")

	w = doRequest(r, http.MethodGet, "/api/characters/alice", "")
	var character struct {
		States map[string]float64 `json:"states"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &character); err != nil {
		t.Fatalf("响应应为JSON: %v", err)
	}
	if got := character.States["mood"]; got < 0.29 || got > 0.31 {
		t.Errorf("效果结算后mood应为0.3，实际为 %f", got)
	}
}

func TestSimulateStepEndpoint(t *testing.T) {
	r := newTestRouter(t)

	w := doRequest(r, http.MethodPost, "/api/simulate/step", "")
	if w.Code != http.StatusOK {
		t.Fatalf("步进应成功，实际状态码 %d", w.Code)
	}

	var resp map[string]any
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["tick"] != float64(1) || resp["epoch"] != float64(1) {
		t.Errorf("首次步进tick/epoch应为1/1，实际为 %v", resp)
	}
}

func TestSetTimeScaleEndpoint(t *testing.T) {
	r := newTestRouter(t)

	w := doRequest(r, http.MethodPost, "/api/world/time-scale", `{"scale":0.01}`)
	if w.Code != http.StatusOK {
		t.Fatalf("设置倍率应成功，实际状态码 %d", w.Code)
	}
	var resp map[string]any
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["time_scale"] != 0.1 {
		t.Errorf("过小的倍率应被钳制到0.1，实际为 %v", resp["time_scale"])
	}

	w = doRequest(r, http.MethodPost, "/api/world/time-scale", `{}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("缺少scale应返回400，实际为 %d", w.Code)
	}
}
