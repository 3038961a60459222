// Package ws 通过 WebSocket 向订阅方推送已接收的行情
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/wyfcoding/cryptoquote/internal/cryptoquote/domain"
	"github.com/wyfcoding/cryptoquote/pkg/logger"
	"github.com/wyfcoding/cryptoquote/pkg/metrics"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 64
)

type client struct {
	id   string
	pair string // 为空时接收全部交易对
	conn *websocket.Conn
	send chan []byte
}

// Hub 行情推送中心，实现 domain.CryptoQuotePublisher
type Hub struct {
	upgrader websocket.Upgrader
	metrics  *metrics.Metrics

	mu      sync.Mutex
	clients map[*client]struct{}
}

// NewHub 创建推送中心，m 可为 nil
func NewHub(m *metrics.Metrics) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		metrics: m,
		clients: make(map[*client]struct{}),
	}
}

// Subscribers 当前连接数
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Publish 推送行情给订阅该交易对的连接
// 发送缓冲已满的连接会被断开
func (h *Hub) Publish(ctx context.Context, quote *domain.CryptoQuote) error {
	data, err := json.Marshal(quote)
	if err != nil {
		return fmt.Errorf("failed to marshal crypto quote: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if c.pair != "" && c.pair != quote.Pair {
			continue
		}
		select {
		case c.send <- data:
		default:
			logger.Warn(ctx, "Dropping slow stream subscriber", "client_id", c.id, "pair", c.pair)
			h.removeLocked(c)
		}
	}
	return nil
}

// HandleStream 处理 GET /stream?pair= 的 WebSocket 升级
func (h *Hub) HandleStream(c *gin.Context) {
	ctx := c.Request.Context()
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn(ctx, "WebSocket upgrade failed", "error", err)
		return
	}

	cl := &client{
		id:   uuid.New().String(),
		pair: c.Query("pair"),
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
	h.add(cl)
	logger.Info(ctx, "Stream subscriber connected", "client_id", cl.id, "pair", cl.pair)

	go h.writePump(cl)
	h.readPump(cl)

	logger.Info(ctx, "Stream subscriber disconnected", "client_id", cl.id)
}

// Close 断开全部连接
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		h.removeLocked(c)
	}
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
	if h.metrics != nil {
		h.metrics.StreamSubscribers.Inc()
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *Hub) removeLocked(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	if h.metrics != nil {
		h.metrics.StreamSubscribers.Dec()
	}
}

// readPump 只处理控制帧，连接关闭时注销
func (h *Hub) readPump(c *client) {
	defer func() {
		h.remove(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
