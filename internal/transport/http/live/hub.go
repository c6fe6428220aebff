package livehttp

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"faillog/internal/dispatch"
	"faillog/internal/logger"
)

const (
	wsSendBuffer = 32
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingEvery  = 50 * time.Second
)

// FeedMessage 是推送给 websocket 客户端的一条消息。
type FeedMessage struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
}

type wsClient struct {
	id   string
	conn *websocket.Conn
	send chan FeedMessage
}

// Hub 把故障记录广播给所有已连接的 websocket 客户端，同时作为 dispatch.Sink 挂到分发器上。
type Hub struct {
	mu       sync.RWMutex
	clients  map[string]*wsClient
	upgrader websocket.Upgrader
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*wsClient),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

func (h *Hub) Name() string { return "websocket" }

// Publish broadcasts r; slow clients miss the message instead of blocking the worker.
func (h *Hub) Publish(_ context.Context, r dispatch.Record) error {
	h.Broadcast(FeedMessage{Type: "failure", Timestamp: r.Event.DetectedAt, Data: r})
	return nil
}

func (h *Hub) Broadcast(msg FeedMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		select {
		case c.send <- msg:
		default:
			logger.Tracef(5, "[ws] client %s send buffer full", c.id)
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) serve(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warnf("[ws] upgrade failed ip=%s err=%v", c.ClientIP(), err)
		return
	}
	client := &wsClient{id: uuid.NewString(), conn: conn, send: make(chan FeedMessage, wsSendBuffer)}
	h.mu.Lock()
	h.clients[client.id] = client
	total := len(h.clients)
	h.mu.Unlock()
	logger.Infof("[ws] client connected: %s (total: %d)", client.id, total)

	client.send <- FeedMessage{Type: "hello", Timestamp: time.Now().UTC()}
	go h.writePump(client)
	h.readPump(client)
}

func (h *Hub) remove(client *wsClient) {
	h.mu.Lock()
	if _, ok := h.clients[client.id]; ok {
		delete(h.clients, client.id)
		close(client.send)
	}
	total := len(h.clients)
	h.mu.Unlock()
	logger.Infof("[ws] client disconnected: %s (total: %d)", client.id, total)
}

// readPump only services control frames; the feed is one-way.
func (h *Hub) readPump(client *wsClient) {
	defer func() {
		h.remove(client)
		_ = client.conn.Close()
	}()
	client.conn.SetReadLimit(4096)
	_ = client.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(client *wsClient) {
	ticker := time.NewTicker(wsPingEvery)
	defer func() {
		ticker.Stop()
		_ = client.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-client.send:
			_ = client.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				_ = client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			data, err := json.Marshal(msg)
			if err != nil {
				logger.Errorf("[ws] marshal %s: %v", msg.Type, err)
				continue
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = client.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		close(c.send)
		delete(h.clients, id)
	}
}
