package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/qs3c/devhance_server/internal/pkg/logger"
	"github.com/qs3c/devhance_server/internal/pkg/pubsub"
)

const writeWait = 5 * time.Second

// Hub 按用户维护 websocket 连接，用于推送案例生成进度
type Hub struct {
	// 同一用户可能开多个标签页
	clients map[int64]map[*Client]struct{}
	mu      sync.RWMutex
	log     logger.Logger
}

type Client struct {
	UserID int64
	Conn   *websocket.Conn
	mu     sync.Mutex // 写锁，gorilla 连接不支持并发写
}

type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

func NewHub(log logger.Logger) *Hub {
	if log == nil {
		log = logger.Nop()
	}
	return &Hub{
		clients: make(map[int64]map[*Client]struct{}),
		log:     log,
	}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	if h.clients[client.UserID] == nil {
		h.clients[client.UserID] = make(map[*Client]struct{})
	}
	h.clients[client.UserID][client] = struct{}{}
	n := len(h.clients[client.UserID])
	h.mu.Unlock()

	h.log.Info(context.Background(), "websocket connected", "user_id", client.UserID, "user_conns", n)
}

// Unregister 可重复调用
func (h *Hub) Unregister(client *Client) {
	if !h.remove(client) {
		return
	}
	h.log.Info(context.Background(), "websocket disconnected", "user_id", client.UserID)
}

func (h *Hub) remove(client *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns, ok := h.clients[client.UserID]
	if !ok {
		return false
	}
	if _, ok := conns[client]; !ok {
		return false
	}
	delete(conns, client)
	if len(conns) == 0 {
		delete(h.clients, client.UserID)
	}
	return true
}

func (h *Hub) snapshot(userID int64) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	conns := h.clients[userID]
	out := make([]*Client, 0, len(conns))
	for c := range conns {
		out = append(out, c)
	}
	return out
}

// SendToUser 向用户的所有连接发送消息，返回成功送达的连接数。
// 写失败的连接会被关闭并移除，读协程随后退出。
func (h *Hub) SendToUser(userID int64, msg *Message) (int, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return 0, err
	}

	delivered := 0
	for _, c := range h.snapshot(userID) {
		c.mu.Lock()
		_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
		err := c.Conn.WriteMessage(websocket.TextMessage, data)
		c.mu.Unlock()
		if err != nil {
			h.log.Warn(context.Background(), "websocket write failed, dropping connection", "user_id", userID, "error", err)
			h.remove(c)
			c.Conn.Close()
			continue
		}
		delivered++
	}
	return delivered, nil
}

// Relay 把进度消息转发给对应用户，作为 Subscriber 的回调
func (h *Hub) Relay(msg *pubsub.ProgressMessage) {
	if _, err := h.SendToUser(msg.UserID, &Message{Type: msg.Type, Data: msg}); err != nil {
		h.log.Error(context.Background(), "encode progress message failed", "user_id", msg.UserID, "error", err)
	}
}

// CloseAll 关闭所有连接，服务退出时调用
func (h *Hub) CloseAll() {
	h.mu.Lock()
	all := h.clients
	h.clients = make(map[int64]map[*Client]struct{})
	h.mu.Unlock()

	for _, conns := range all {
		for c := range conns {
			c.mu.Lock()
			_ = c.Conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"),
				time.Now().Add(time.Second))
			c.mu.Unlock()
			c.Conn.Close()
		}
	}
}

func (h *Hub) IsOnline(userID int64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID]) > 0
}

func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	total := 0
	for _, conns := range h.clients {
		total += len(conns)
	}
	return total
}
