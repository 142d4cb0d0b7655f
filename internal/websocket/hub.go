package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"tempmail/client/internal/auth"
	"tempmail/client/internal/inbox"
	"tempmail/client/internal/monitoring"
	"tempmail/client/internal/notify"
)

const (
	pingInterval = 30 * time.Second
	readTimeout  = 60 * time.Second
	writeTimeout = 10 * time.Second
	sendBuffer   = 64
)

// upgraderFactory 创建带有 Origin 验证的 WebSocket 升级器
func upgraderFactory(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			for _, origin := range allowedOrigins {
				if origin == "*" {
					return true
				}
			}

			requestOrigin := r.Header.Get("Origin")
			if requestOrigin == "" {
				return true
			}
			for _, origin := range allowedOrigins {
				if requestOrigin == origin {
					return true
				}
			}
			return false
		},
	}
}

// Topic 事件主题
type Topic string

const (
	TopicNotifications Topic = "notifications"
	TopicInbox         Topic = "inbox"
	TopicAuth          Topic = "auth"
)

var allTopics = []Topic{TopicNotifications, TopicInbox, TopicAuth}

func validTopic(t Topic) bool {
	for _, known := range allTopics {
		if t == known {
			return true
		}
	}
	return false
}

// MessageType 定义WebSocket消息类型
type MessageType string

const (
	MessageTypeNotification MessageType = "notification"
	MessageTypeInboxUpdate  MessageType = "inbox_update"
	MessageTypeAuthStatus   MessageType = "auth_status"
	MessageTypePing         MessageType = "ping"
	MessageTypePong         MessageType = "pong"
	MessageTypeSubscribe    MessageType = "subscribe"
	MessageTypeUnsubscribe  MessageType = "unsubscribe"
	MessageTypeSubscribed   MessageType = "subscribed"
	MessageTypeUnsubscribed MessageType = "unsubscribed"
	MessageTypeError        MessageType = "error"
)

// Message 定义WebSocket消息结构
type Message struct {
	Type      MessageType     `json:"type"`
	Topic     Topic           `json:"topic,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Client 代表一个WebSocket客户端连接，默认订阅全部主题
type Client struct {
	ID     string
	conn   *websocket.Conn
	send   chan []byte
	hub    *Hub
	log    *zap.Logger
	mu     sync.Mutex
	topics map[Topic]bool
	closed bool
}

// Hub 管理本地界面的 WebSocket 连接，把通知、收件箱更新和登录状态推送给它们
type Hub struct {
	clients        map[string]*Client
	register       chan *Client
	unregister     chan *Client
	broadcast      chan *broadcastMessage
	done           chan struct{}
	mu             sync.RWMutex
	log            *zap.Logger
	metrics        *monitoring.Metrics
	allowedOrigins []string
}

type broadcastMessage struct {
	topic Topic
	data  []byte
}

// NewHub 创建WebSocket Hub
func NewHub(allowedOrigins []string, log *zap.Logger, metrics *monitoring.Metrics) *Hub {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Hub{
		clients:        make(map[string]*Client),
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		broadcast:      make(chan *broadcastMessage, 256),
		done:           make(chan struct{}),
		log:            log,
		metrics:        metrics,
		allowedOrigins: allowedOrigins,
	}
}

// Run 启动Hub，ctx 取消后关闭所有连接
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.log.Info("websocket hub stopped")
			h.closeAllClients()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			count := len(h.clients)
			h.mu.Unlock()
			h.metrics.UpdateWebsocketClients(count)
			h.log.Info("client registered", zap.String("id", client.ID))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.ID]; ok {
				delete(h.clients, client.ID)
				client.closeSend()
				h.log.Info("client unregistered", zap.String("id", client.ID))
			}
			count := len(h.clients)
			h.mu.Unlock()
			h.metrics.UpdateWebsocketClients(count)

		case msg := <-h.broadcast:
			h.broadcastToTopic(msg)

		case <-ticker.C:
			h.pingAllClients()
		}
	}
}

// ClientCount 返回当前连接数
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Notify 实现 notify.Sink，把通知推送给订阅了 notifications 的客户端
func (h *Hub) Notify(n notify.Notification) {
	h.publish(TopicNotifications, MessageTypeNotification, n)
}

// PublishInbox 推送收件箱更新
func (h *Hub) PublishInbox(u inbox.Update) {
	data := struct {
		inbox.Update
		Error string `json:"error,omitempty"`
	}{Update: u}
	if u.Err != nil {
		data.Error = u.Err.Error()
	}
	h.publish(TopicInbox, MessageTypeInboxUpdate, data)
}

// PublishAuthStatus 推送登录状态变化
func (h *Hub) PublishAuthStatus(status auth.Status) {
	h.publish(TopicAuth, MessageTypeAuthStatus, map[string]auth.Status{"status": status})
}

func (h *Hub) publish(topic Topic, typ MessageType, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.log.Error("failed to marshal event payload", zap.String("type", string(typ)), zap.Error(err))
		return
	}
	raw, err := json.Marshal(&Message{Type: typ, Topic: topic, Data: data, Timestamp: time.Now()})
	if err != nil {
		h.log.Error("failed to marshal message", zap.Error(err))
		return
	}

	select {
	case h.broadcast <- &broadcastMessage{topic: topic, data: raw}:
	default:
		h.log.Warn("broadcast queue full, dropping event", zap.String("type", string(typ)))
	}
}

// broadcastToTopic 向订阅了主题的客户端广播消息
func (h *Hub) broadcastToTopic(msg *broadcastMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.clients {
		if !client.subscribed(msg.topic) {
			continue
		}
		if !client.enqueue(msg.data) {
			h.log.Warn("client channel blocked, skipping", zap.String("clientID", client.ID))
		}
	}
}

// pingAllClients 向所有客户端发送ping
func (h *Hub) pingAllClients() {
	data, err := json.Marshal(&Message{Type: MessageTypePing, Timestamp: time.Now()})
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		client.enqueue(data)
	}
}

// closeAllClients 关闭所有客户端连接
func (h *Hub) closeAllClients() {
	h.mu.Lock()
	for _, client := range h.clients {
		client.closeSend()
	}
	h.clients = make(map[string]*Client)
	h.mu.Unlock()
	h.metrics.UpdateWebsocketClients(0)
}

// Handler 返回处理 WebSocket 升级的 gin 处理器
func (h *Hub) Handler() gin.HandlerFunc {
	upgrader := upgraderFactory(h.allowedOrigins)

	return func(c *gin.Context) {
		select {
		case <-h.done:
			c.JSON(http.StatusServiceUnavailable, gin.H{"code": http.StatusServiceUnavailable, "msg": "event stream is shutting down"})
			return
		default:
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			h.log.Warn("failed to upgrade connection",
				zap.Error(err),
				zap.String("origin", c.Request.Header.Get("Origin")),
				zap.String("remote_addr", c.ClientIP()))
			return
		}

		client := &Client{
			ID:     uuid.NewString(),
			conn:   conn,
			send:   make(chan []byte, sendBuffer),
			hub:    h,
			log:    h.log,
			topics: make(map[Topic]bool, len(allTopics)),
		}
		for _, t := range allTopics {
			client.topics[t] = true
		}

		select {
		case h.register <- client:
		case <-h.done:
			_ = conn.Close()
			return
		}

		go client.writePump()
		go client.readPump()
	}
}

func (c *Client) subscribed(t Topic) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.topics[t]
}

// enqueue 非阻塞地写入发送队列，连接已关闭或队列已满时返回 false
func (c *Client) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// readPump 处理客户端消息
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		_ = c.conn.Close()
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			var syntaxErr *json.SyntaxError
			if errors.As(err, &syntaxErr) {
				c.sendError("malformed message")
				continue
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn("websocket error", zap.String("clientID", c.ID), zap.Error(err))
			}
			return
		}
		c.handleMessage(&msg)
	}
}

// writePump 发送消息给客户端
func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage 处理接收到的消息
func (c *Client) handleMessage(msg *Message) {
	switch msg.Type {
	case MessageTypeSubscribe, MessageTypeUnsubscribe:
		c.setSubscription(msg.Topic, msg.Type == MessageTypeSubscribe)
	case MessageTypePing:
		c.sendMessage(&Message{Type: MessageTypePong, Timestamp: time.Now()})
	case MessageTypePong:
		_ = c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	default:
		c.log.Debug("unknown message type", zap.String("type", string(msg.Type)))
		c.sendError("unknown message type: " + string(msg.Type))
	}
}

func (c *Client) setSubscription(t Topic, on bool) {
	if !validTopic(t) {
		c.sendError("unknown topic: " + string(t))
		return
	}

	c.mu.Lock()
	c.topics[t] = on
	c.mu.Unlock()

	ack := MessageTypeSubscribed
	if !on {
		ack = MessageTypeUnsubscribed
	}
	c.log.Debug("subscription changed", zap.String("clientID", c.ID), zap.String("topic", string(t)), zap.Bool("on", on))
	c.sendMessage(&Message{Type: ack, Topic: t, Timestamp: time.Now()})
}

// sendError 发送错误消息给客户端
func (c *Client) sendError(errMsg string) {
	c.sendMessage(&Message{Type: MessageTypeError, Error: errMsg, Timestamp: time.Now()})
}

// sendMessage 发送消息给客户端
func (c *Client) sendMessage(msg *Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.log.Error("failed to marshal message", zap.Error(err))
		return
	}
	if !c.enqueue(data) {
		c.log.Warn("client channel blocked", zap.String("clientID", c.ID))
	}
}
