package v1

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/campus-loyalty/points-api/internal/api/handler/v1/response"
	"github.com/campus-loyalty/points-api/internal/domain"
	"github.com/campus-loyalty/points-api/internal/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	sendBufferSize = 32
)

type Client struct {
	conn   *websocket.Conn
	send   chan []byte
	userID uint
}

// NotificationHub fans notifications out to every open websocket of the
// addressed user. Delivery is best effort: a slow client loses messages
// rather than blocking the ledger.
type NotificationHub struct {
	upgrader   websocket.Upgrader
	clients    map[uint]map[*Client]bool
	deliver    chan domain.Notification
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
}

func NewNotificationHub(allowedOrigins []string) *NotificationHub {
	origins := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = true
	}

	return &NotificationHub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || origins["*"] || origins[origin]
			},
		},
		clients:    make(map[uint]map[*Client]bool),
		deliver:    make(chan domain.Notification, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Notify queues n for delivery without blocking.
func (h *NotificationHub) Notify(n domain.Notification) {
	select {
	case h.deliver <- n:
	default:
		zap.L().Warn("notification dropped", zap.Uint("userID", n.UserID), zap.String("type", string(n.Type)))
	}
}

func (h *NotificationHub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			for _, set := range h.clients {
				for c := range set {
					close(c.send)
				}
			}
			h.clients = make(map[uint]map[*Client]bool)
			return
		case c := <-h.register:
			if h.clients[c.userID] == nil {
				h.clients[c.userID] = make(map[*Client]bool)
			}
			h.clients[c.userID][c] = true
			metrics.WSClients.Inc()
		case c := <-h.unregister:
			h.remove(c)
		case n := <-h.deliver:
			msg, err := json.Marshal(n)
			if err != nil {
				zap.L().Warn("notification not encodable", zap.Error(err))
				continue
			}
			for c := range h.clients[n.UserID] {
				select {
				case c.send <- msg:
				default:
					h.remove(c)
				}
			}
		}
	}
}

func (h *NotificationHub) remove(c *Client) {
	set, ok := h.clients[c.userID]
	if !ok || !set[c] {
		return
	}

	delete(set, c)
	if len(set) == 0 {
		delete(h.clients, c.userID)
	}
	close(c.send)
	metrics.WSClients.Dec()
}

// HandleWebSocket godoc
// @Summary      Subscribe to live notifications
// @Description  Pushes points_changed, redemption_processed and raffle_drawn messages for the caller.
// @Tags         notifications
// @Param        token  query     string  true  "bearer token"
// @Success      101    {string}  string  "Switching Protocols"
// @Failure      401    {object}  response.Err
// @Router       /ws [get]
func (h *NotificationHub) HandleWebSocket(ctx *gin.Context) {
	user, respErr := getUserFromContext(ctx)
	if respErr != nil {
		response.RenderErr(ctx, respErr)
		return
	}

	conn, err := h.upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		zap.L().Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &Client{
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		userID: user.ID,
	}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump(h)
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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

// readPump only drains control frames. Clients never send data.
func (c *Client) readPump(h *NotificationHub) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				zap.L().Debug("websocket closed", zap.Uint("userID", c.userID), zap.Error(err))
			}
			return
		}
	}
}
