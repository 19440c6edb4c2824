// internal/api/handlers.go
package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Corphon/FateWeaverMCP/internal/llm"
	"github.com/Corphon/FateWeaverMCP/internal/models"
	"github.com/Corphon/FateWeaverMCP/internal/services"
)

// Handler 持有模拟内核和日志推送中心，承接全部HTTP请求
type Handler struct {
	Sim *services.SimService
	Hub *LogHub
}

// NewHandler 创建API处理器
func NewHandler(sim *services.SimService, hub *LogHub) *Handler {
	return &Handler{Sim: sim, Hub: hub}
}

// ---------------------------------------------------
// 世界

// GetWorld 返回当前世界快照
func (h *Handler) GetWorld(c *gin.Context) {
	c.JSON(http.StatusOK, h.Sim.WorldSnapshot())
}

// SetTimeScale 更新时间倍率（小于0.1会被钳制）
func (h *Handler) SetTimeScale(c *gin.Context) {
	var req struct {
		Scale float64 `json:"scale" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求格式错误: " + err.Error()})
		return
	}

	applied := h.Sim.SetTimeScale(req.Scale)
	c.JSON(http.StatusOK, gin.H{"time_scale": applied})
}

// ---------------------------------------------------
// 角色

// CreateCharacter 创建角色
func (h *Handler) CreateCharacter(c *gin.Context) {
	var character models.Character
	if err := c.ShouldBindJSON(&character); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求格式错误: " + err.Error()})
		return
	}

	if err := h.Sim.CreateCharacter(&character); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, &character)
}

// ListCharacters 返回全部角色
func (h *Handler) ListCharacters(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"characters": h.Sim.Characters()})
}

// GetCharacter 返回单个角色
func (h *Handler) GetCharacter(c *gin.Context) {
	character, err := h.Sim.Character(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, character)
}

// GetCharacterMemories 返回角色最近的记忆
func (h *Handler) GetCharacterMemories(c *gin.Context) {
	limit := queryInt(c, "limit", 20)
	memories, err := h.Sim.MemoriesOf(c.Param("id"), limit)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"memories": memories})
}

// SummarizeCharacterMemories 按需触发一次记忆总结
func (h *Handler) SummarizeCharacterMemories(c *gin.Context) {
	limit := queryInt(c, "limit", 20)
	summary, err := h.Sim.SummarizeMemories(c.Param("id"), limit)
	if err != nil {
		status := http.StatusNotFound
		if errors.Is(err, llm.ErrNotConfigured) {
			status = http.StatusInternalServerError
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	if summary == nil {
		c.JSON(http.StatusOK, gin.H{"summary": nil, "message": "没有可总结的记忆"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"summary": summary})
}

// ---------------------------------------------------
// 地点与事件

// CreateLocation 创建地点
func (h *Handler) CreateLocation(c *gin.Context) {
	var location models.Location
	if err := c.ShouldBindJSON(&location); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求格式错误: " + err.Error()})
		return
	}

	if err := h.Sim.CreateLocation(&location); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, &location)
}

// ListLocations 返回全部地点
func (h *Handler) ListLocations(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"locations": h.Sim.Locations()})
}

// CreateEvent 手动创建事件（scheduled状态会进入到期队列）
func (h *Handler) CreateEvent(c *gin.Context) {
	var event models.Event
	if err := c.ShouldBindJSON(&event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求格式错误: " + err.Error()})
		return
	}

	if err := h.Sim.CreateEvent(&event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, &event)
}

// ListEvents 返回事件列表，可按状态过滤
func (h *Handler) ListEvents(c *gin.Context) {
	status := c.Query("status")
	limit := queryInt(c, "limit", 50)
	c.JSON(http.StatusOK, gin.H{"events": h.Sim.Events(status, limit)})
}

// ---------------------------------------------------
// 模拟控制

// SimulateStep 手动推进一个tick
func (h *Handler) SimulateStep(c *gin.Context) {
	tick, epoch := h.Sim.Step()
	c.JSON(http.StatusOK, gin.H{"tick": tick, "epoch": epoch})
}

// SimulateStart 启动连续模拟
func (h *Handler) SimulateStart(c *gin.Context) {
	h.Sim.Start()
	c.JSON(http.StatusOK, gin.H{"running": true, "tick": h.Sim.Clock().Tick()})
}

// SimulateStop 停止连续模拟
func (h *Handler) SimulateStop(c *gin.Context) {
	h.Sim.Stop()
	c.JSON(http.StatusOK, gin.H{"running": false, "tick": h.Sim.Clock().Tick()})
}

// GetLogsTail 返回最近的结果日志
func (h *Handler) GetLogsTail(c *gin.Context) {
	limit := queryInt(c, "limit", 50)
	c.JSON(http.StatusOK, gin.H{"logs": h.Sim.LogsTail(limit)})
}

// ---------------------------------------------------
// 场景与时间线

// CreateScene 创建场景
func (h *Handler) CreateScene(c *gin.Context) {
	var req struct {
		Title        string   `json:"title"`
		Participants []string `json:"participants" binding:"required"`
		LocationID   string   `json:"location_id"`
		Tags         []string `json:"tags"`
		MaxTurns     int      `json:"max_turns"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求格式错误: " + err.Error()})
		return
	}

	scene, err := h.Sim.CreateScene(req.Title, req.Participants, req.LocationID, req.Tags, req.MaxTurns)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, scene)
}

// GetScene 返回场景状态
func (h *Handler) GetScene(c *gin.Context) {
	scene, err := h.Sim.Scene(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, scene)
}

// StepScene 推进场景一轮发言
func (h *Handler) StepScene(c *gin.Context) {
	turn, err := h.Sim.StepScene(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, turn)
}

// CreateTimeline 创建时间线（自动生成第一幕场景）
func (h *Handler) CreateTimeline(c *gin.Context) {
	var req struct {
		Title        string   `json:"title"`
		Participants []string `json:"participants" binding:"required"`
		Tags         []string `json:"tags"`
		MaxScenes    int      `json:"max_scenes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求格式错误: " + err.Error()})
		return
	}

	timeline, err := h.Sim.CreateTimeline(req.Title, req.Participants, req.Tags, req.MaxScenes)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, timeline)
}

// GetTimeline 返回时间线状态
func (h *Handler) GetTimeline(c *gin.Context) {
	timeline, err := h.Sim.Timeline(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, timeline)
}

// AdvanceTimeline 手动推进时间线到下一幕
func (h *Handler) AdvanceTimeline(c *gin.Context) {
	timeline, err := h.Sim.AdvanceTimeline(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, timeline)
}

// GetActiveTimeline 返回最近仍在进行的时间线
func (h *Handler) GetActiveTimeline(c *gin.Context) {
	timeline := h.Sim.ActiveTimeline()
	if timeline == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "没有进行中的时间线"})
		return
	}
	c.JSON(http.StatusOK, timeline)
}

// ---------------------------------------------------
// 多世界

// ListWorlds 列出全部世界
func (h *Handler) ListWorlds(c *gin.Context) {
	worlds, err := h.Sim.ListWorlds()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"worlds": worlds, "current": h.Sim.CurrentWorldID()})
}

// CreateWorld 创建新世界
func (h *Handler) CreateWorld(c *gin.Context) {
	var req struct {
		ID                   string `json:"id" binding:"required"`
		Name                 string `json:"name"`
		Background           string `json:"background"`
		DefaultLanguage      string `json:"default_language"`
		ForceDefaultLanguage bool   `json:"force_default_language"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求格式错误: " + err.Error()})
		return
	}

	if err := h.Sim.CreateWorld(req.ID, req.Name, req.Background, req.DefaultLanguage, req.ForceDefaultLanguage); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": req.ID})
}

// SelectWorld 切换当前世界
func (h *Handler) SelectWorld(c *gin.Context) {
	var req struct {
		ID string `json:"id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求格式错误: " + err.Error()})
		return
	}

	if err := h.Sim.SelectWorld(req.ID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"current": h.Sim.CurrentWorldID()})
}

// queryInt 解析查询参数中的整数，解析失败返回默认值
func queryInt(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}
