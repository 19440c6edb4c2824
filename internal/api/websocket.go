// internal/api/websocket.go
package api

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// WebSocket 升级器配置
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// 在生产环境中应该进行更严格的检查
		return true
	},
}

// logClient 表示一个订阅结果日志的 WebSocket 连接
type logClient struct {
	conn *websocket.Conn
	send chan []byte
}

// LogHub 把结算产生的结果日志实时广播给所有连接的客户端。
// 广播是尽力而为的：慢客户端的消息会被丢弃，不会阻塞结算管线。
type LogHub struct {
	clients    map[*logClient]bool
	broadcast  chan []byte
	register   chan *logClient
	unregister chan *logClient
}

// NewLogHub 创建并启动日志推送中心
func NewLogHub() *LogHub {
	hub := &LogHub{
		clients:    make(map[*logClient]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *logClient, 16),
		unregister: make(chan *logClient, 16),
	}
	go hub.run()
	return hub
}

func (h *LogHub) run() {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
		case message := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// 客户端消费不过来就放弃这条消息
				}
			}
		}
	}
}

// Broadcast 推送一条结果日志（序列化失败则丢弃）
func (h *LogHub) Broadcast(entry map[string]any) {
	data, err := json.Marshal(entry)
	if err != nil {
		log.Printf("警告: 序列化日志推送失败: %v", err)
		return
	}
	select {
	case h.broadcast <- data:
	default:
	}
}

// HandleLogsWS 处理 /ws/logs 的连接升级
func (h *LogHub) HandleLogsWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("警告: WebSocket升级失败: %v", err)
		return
	}

	client := &logClient{conn: conn, send: make(chan []byte, 64)}
	h.register <- client

	go client.writeLoop()
	go client.readLoop(h)
}

func (c *logClient) writeLoop() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readLoop 只负责消费控制帧并在连接断开时注销客户端
func (c *logClient) readLoop(h *LogHub) {
	defer func() {
		h.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
