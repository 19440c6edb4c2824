// internal/services/clock_service.go
package services

import (
	"sync"
	"time"
)

// ClockService 控制tick节奏与时间倍率。
// 状态机：stopped -> running -> stopped。
type ClockService struct {
	mu          sync.Mutex
	tickSeconds float64
	timeScale   float64
	tick        int
	running     bool
	stopCh      chan struct{}
	done        chan struct{}
}

// NewClockService 创建时钟，tickSeconds为每tick基准真实秒数
func NewClockService(tickSeconds, timeScale float64) *ClockService {
	if tickSeconds <= 0 {
		tickSeconds = 1.0
	}
	c := &ClockService{tickSeconds: tickSeconds, timeScale: 1.0}
	c.SetTimeScale(timeScale)
	return c
}

// Tick 返回当前tick计数
func (c *ClockService) Tick() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tick
}

// IsRunning 返回时钟是否在连续运行
func (c *ClockService) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// SetTimeScale 更新时间倍率，下一轮睡眠生效。
// 倍率下限0.1，防止零间隔空转。
func (c *ClockService) SetTimeScale(scale float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if scale < 0.1 {
		scale = 0.1
	}
	c.timeScale = scale
}

// TimeScale 返回当前时间倍率
func (c *ClockService) TimeScale() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timeScale
}

// Step 同步推进一个tick并调用回调，可单独用于手动步进
func (c *ClockService) Step(onTick func(tick int)) {
	c.mu.Lock()
	c.tick++
	tick := c.tick
	c.mu.Unlock()

	onTick(tick)
}

// Start 启动后台连续tick。幂等：已在运行时再次调用是空操作。
func (c *ClockService) Start(onTick func(tick int)) {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return
	}
	c.running = true
	c.stopCh = make(chan struct{})
	c.done = make(chan struct{})
	stopCh, done := c.stopCh, c.done
	c.mu.Unlock()

	go c.loop(onTick, stopCh, done)
}

// loop 连续tick：执行回调、度量耗时、按剩余间隔睡眠。
// 回调超时不补tick，只是不睡眠。
func (c *ClockService) loop(onTick func(tick int), stopCh <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	for {
		select {
		case <-stopCh:
			return
		default:
		}

		start := time.Now()
		c.Step(onTick)
		elapsed := time.Since(start)

		interval := time.Duration(c.tickSeconds / c.TimeScale() * float64(time.Second))
		sleepFor := interval - elapsed
		if sleepFor <= 0 {
			continue
		}

		select {
		case <-stopCh:
			return
		case <-time.After(sleepFor):
		}
	}
}

// Stop 通知循环在当前一轮结束后退出，并等待其收尾
func (c *ClockService) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	close(c.stopCh)
	done := c.done
	c.mu.Unlock()

	// 给循环一个有界的收尾窗口
	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
	}
}
