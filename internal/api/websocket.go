package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"fund-ledger/internal/auth"
	"fund-ledger/internal/events"
	"fund-ledger/internal/logging"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// origins are already filtered by the CORS middleware
		return true
	},
}

// streamFilter narrows a connection to some event types and one fund.
// The zero value lets everything through.
type streamFilter struct {
	types  map[events.EventType]bool
	fundID int64
}

// parseStreamFilter reads ?types=FUND_CLOSED,FUND_REVALUED&fund_id=7
func parseStreamFilter(c *gin.Context) (streamFilter, error) {
	var f streamFilter
	if raw := c.Query("types"); raw != "" {
		f.types = make(map[events.EventType]bool)
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				f.types[events.EventType(strings.ToUpper(t))] = true
			}
		}
	}
	if raw := c.Query("fund_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			return streamFilter{}, fmt.Errorf("invalid fund_id %q", raw)
		}
		f.fundID = id
	}
	return f, nil
}

func (f streamFilter) matches(e events.Event) bool {
	if len(f.types) > 0 && !f.types[e.Type] {
		return false
	}
	if f.fundID != 0 {
		id, ok := e.Data["fund_id"].(int64)
		return ok && id == f.fundID
	}
	return true
}

// outbound is one encoded event on its way to the connections
type outbound struct {
	event events.Event
	data  []byte
}

// streamClient is one websocket connection
type streamClient struct {
	conn   *websocket.Conn
	send   chan []byte
	hub    *WSHub
	userID int64
	filter streamFilter
	done   chan struct{}
}

// WSHub fans fund events out to websocket connections
type WSHub struct {
	mu         sync.RWMutex
	clients    map[*streamClient]struct{}
	broadcast  chan outbound
	register   chan *streamClient
	unregister chan *streamClient
	logger     *logging.Logger
}

// NewWSHub creates a hub; Run must be started before clients connect
func NewWSHub() *WSHub {
	return &WSHub{
		clients:    make(map[*streamClient]struct{}),
		broadcast:  make(chan outbound, 1024),
		register:   make(chan *streamClient),
		unregister: make(chan *streamClient),
		logger:     logging.WithComponent("websocket"),
	}
}

// Run owns the client set
func (h *WSHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			h.mu.Unlock()
			h.logger.Debug("Event stream opened", "user_id", client.userID, "fund_id", client.filter.fundID)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.RLock()
			var slow []*streamClient
			for client := range h.clients {
				if !client.filter.matches(msg.event) {
					continue
				}
				select {
				case client.send <- msg.data:
				default:
					slow = append(slow, client)
				}
			}
			h.mu.RUnlock()
			// Slow consumers are dropped; unregister is handled by this loop.
			for _, client := range slow {
				go func(c *streamClient) { h.unregister <- c }(client)
			}
		}
	}
}

// BroadcastEvent queues an event for every matching connection
func (h *WSHub) BroadcastEvent(event events.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.WithError(err).Warn("Failed to marshal event", "type", event.Type)
		return
	}

	select {
	case h.broadcast <- outbound{event: event, data: data}:
	default:
		h.logger.Warn("Broadcast channel full, dropping event", "type", event.Type)
	}
}

// GetClientCount returns the number of open streams
func (h *WSHub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (c *streamClient) writePump() {
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
				c.hub.logger.Debug("Event stream write failed", "error", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			return
		}
	}
}

// readPump only services control frames; the stream is one-way
func (c *streamClient) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
		close(c.done)
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Debug("Event stream read failed", "error", err)
			}
			return
		}
	}
}

// InitWebSocket starts a hub and subscribes it to every event of the bus
func InitWebSocket(eventBus *events.EventBus) *WSHub {
	hub := NewWSHub()
	go hub.Run()

	eventBus.SubscribeAll(hub.BroadcastEvent)

	hub.logger.Info("WebSocket hub initialized")
	return hub
}

// handleWebSocket streams fund events to the caller
func (s *Server) handleWebSocket(c *gin.Context) {
	if s.hub == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "EVENTS_DISABLED",
			"message": "event stream is not available",
		})
		return
	}
	filter, err := parseStreamFilter(c)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to upgrade connection")
		return
	}

	client := &streamClient{
		conn:   conn,
		send:   make(chan []byte, 256),
		hub:    s.hub,
		userID: auth.GetUserID(c),
		filter: filter,
		done:   make(chan struct{}),
	}

	// Queued before register so the hub cannot have closed send yet
	if data, err := json.Marshal(gin.H{
		"type":      "CONNECTED",
		"fund_id":   filter.fundID,
		"timestamp": time.Now(),
	}); err == nil {
		client.send <- data
	}

	s.hub.register <- client

	go client.writePump()
	go client.readPump()
}
