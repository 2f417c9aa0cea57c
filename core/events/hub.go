package events

import (
	"encoding/json"
	"time"

	"echowall/logger"

	"github.com/gorilla/websocket"
)

// Type 事件类型
type Type string

const (
	ClipAdded     Type = "clip_added"
	ClipRemoved   Type = "clip_removed"
	CatalogReset  Type = "catalog_reset"
	StreamStarted Type = "stream_started"
)

// Event 推送给已连接客户端的目录/播放事件
type Event struct {
	Type   Type      `json:"type"`
	ClipID string    `json:"clipId,omitempty"`
	At     time.Time `json:"at"`
}

const (
	writeWait      = 10 * time.Second
	pingPeriod     = 54 * time.Second
	sendBufferSize = 16
)

// Client 一个已连接的websocket订阅者
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// Hub 向所有订阅者广播事件。客户端收不过来就直接断开，
// 事件只是刷新提示，丢了无所谓。
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	stop       chan struct{}
}

// NewHub 创建事件中心
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 64),
		stop:       make(chan struct{}),
	}
}

// Run 运行事件循环，直到Stop被调用
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
			logger.Debug("事件订阅者接入", logger.Int("clients", len(h.clients)))

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
					// 发送缓冲满，踢掉慢客户端
					delete(h.clients, client)
					close(client.send)
				}
			}

		case <-h.stop:
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			return
		}
	}
}

// Stop 停止事件循环并断开所有订阅者
func (h *Hub) Stop() {
	close(h.stop)
}

// Publish 向所有订阅者广播一个事件，非阻塞
func (h *Hub) Publish(event Event) {
	if event.At.IsZero() {
		event.At = time.Now()
	}
	data, err := json.Marshal(event)
	if err != nil {
		logger.Error("事件序列化失败", logger.ErrorField(err))
		return
	}
	select {
	case h.broadcast <- data:
	default:
		logger.Warn("事件广播队列已满，事件被丢弃", logger.String("type", string(event.Type)))
	}
}

// Subscribe 把一个websocket连接注册为订阅者并启动读写协程
func (h *Hub) Subscribe(conn *websocket.Conn) *Client {
	client := &Client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}
	h.register <- client

	go client.writePump()
	go client.readPump()

	return client
}

// writePump 把广播消息写给客户端，定期发ping
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

// readPump 只为感知对端关闭，收到的内容一律丢弃
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
