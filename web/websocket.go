package web

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/stuKim0221/smart-lotto/logger"
	"github.com/stuKim0221/smart-lotto/services"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// WSMessage WebSocket消息结构
type WSMessage struct {
	Type      string          `json:"type"`
	Topic     string          `json:"topic,omitempty"`
	Round     int             `json:"round,omitempty"`
	Timestamp int64           `json:"timestamp,omitempty"`
	Event     json.RawMessage `json:"event,omitempty"`
	Data      interface{}     `json:"data,omitempty"`
}

// Client WebSocket客户端
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	mu     sync.Mutex
	topics map[string]bool // 事件主题过滤器
}

func newClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, 256),
		topics: make(map[string]bool),
	}
}

// Hub fans sync events out to connected websocket clients.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan *WSMessage
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
}

// NewHub 创建新的Hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan *WSMessage, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run 运行Hub until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			logger.Printf("[WS] Client registered. Total clients: %d", total)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			logger.Printf("[WS] Client unregistered. Total clients: %d", total)

		case message := <-h.broadcast:
			data := h.marshalMessage(message)
			h.mu.Lock()
			for client := range h.clients {
				if !client.shouldReceive(message) {
					continue
				}
				select {
				case client.send <- data:
				default:
					// slow consumer
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// join registers client. It reports false once the hub has stopped.
func (h *Hub) join(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast queues a message for every interested client. It drops the
// message when the hub is backed up.
func (h *Hub) Broadcast(message *WSMessage) {
	select {
	case h.broadcast <- message:
	default:
		logger.Errorf("[WS] Broadcast queue full, dropping %s message", message.Topic)
	}
}

// Forward relays every message published on topics by broker to the hub
// until ctx is done or the broker closes.
func (h *Hub) Forward(ctx context.Context, broker services.MessageBroker, topics ...string) error {
	var wg sync.WaitGroup
	for _, topic := range topics {
		ch, err := broker.Consume(topic)
		if err != nil {
			return err
		}
		wg.Add(1)
		go func(ch <-chan services.BrokerMessage) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case msg, ok := <-ch:
					if !ok {
						return
					}
					h.Broadcast(fromBrokerMessage(msg))
				}
			}
		}(ch)
	}
	go func() {
		wg.Wait()
		logger.Println("[WS] Event forwarding stopped")
	}()
	return nil
}

func fromBrokerMessage(msg services.BrokerMessage) *WSMessage {
	out := &WSMessage{
		Type:      "event",
		Topic:     msg.Topic,
		Timestamp: time.Now().Unix(),
		Event:     json.RawMessage(msg.Value),
	}
	var event services.SyncEvent
	if err := json.Unmarshal(msg.Value, &event); err == nil {
		out.Round = event.Round
		if !event.Timestamp.IsZero() {
			out.Timestamp = event.Timestamp.Unix()
		}
	} else {
		out.Event = nil
		out.Data = string(msg.Value)
	}
	return out
}

// marshalMessage 序列化消息
func (h *Hub) marshalMessage(message *WSMessage) []byte {
	data, err := json.Marshal(message)
	if err != nil {
		logger.Errorf("[WS] Failed to marshal message: %v", err)
		return []byte("{}")
	}
	return data
}

// shouldReceive 检查客户端是否应该接收消息
func (c *Client) shouldReceive(message *WSMessage) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.topics) == 0 || message.Topic == "" {
		return true
	}
	return c.topics[message.Topic]
}

// readPump 读取客户端消息
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Errorf("[WS] WebSocket error: %v", err)
			}
			break
		}

		// 处理客户端消息(设置过滤器等)
		c.handleMessage(message)
	}
}

// writePump 向客户端写入消息
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

type clientCommand struct {
	Type   string   `json:"type"`
	Topics []string `json:"topics"`
}

// handleMessage 处理客户端发送的消息
func (c *Client) handleMessage(message []byte) {
	var cmd clientCommand
	if err := json.Unmarshal(message, &cmd); err != nil {
		logger.Errorf("[WS] Failed to unmarshal client message: %v", err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	switch cmd.Type {
	case "subscribe":
		// 订阅特定事件主题, "draw.applied" 与 "lotto.draw.applied" 均可
		c.topics = make(map[string]bool, len(cmd.Topics))
		for _, t := range cmd.Topics {
			if !strings.HasPrefix(t, "lotto.") {
				t = services.GetTopicName(services.SyncEventType(t))
			}
			c.topics[t] = true
		}
		logger.Printf("[WS] Client subscribed to %v", cmd.Topics)

	case "unsubscribe":
		c.topics = make(map[string]bool)
		logger.Println("[WS] Client unsubscribed")
	}
}
