package api

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"mt5-gateway/internal/events"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const (
	wsWriteWait  = 10 * time.Second
	wsOutBuffer  = 256
	quoteBacklog = 64
)

// wsMessage is the client -> gateway control frame.
type wsMessage struct {
	Action    string   `json:"action"` // "subscribe" or "unsubscribe"
	AccountID string   `json:"account_id"`
	Symbols   []string `json:"symbols"`
}

// wsEvent is the gateway -> client frame.
type wsEvent struct {
	Type      string `json:"type"`
	AccountID string `json:"account_id,omitempty"`
	Symbol    string `json:"symbol,omitempty"`
	Data      any    `json:"data,omitempty"`
	Message   string `json:"message,omitempty"`
}

// wsClient is one websocket connection with its active quote
// subscriptions. Each subscription pairs a bus listener with a stream
// engine refcount; both are released together.
type wsClient struct {
	id   string
	conn *websocket.Conn
	out  chan wsEvent
	done chan struct{}

	mu   sync.Mutex
	subs map[string]func() // accountID+"/"+symbol -> teardown
}

func (s *Server) websocket(c *gin.Context) {
	token := c.Query("token")
	if _, err := parseToken(s.JWTSecret, token); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{
			"success": false,
			"error":   gin.H{"kind": "UNAUTHORIZED", "message": "invalid token"},
		})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("ws: upgrade failed: %v", err)
		return
	}

	client := &wsClient{
		id:   uuid.NewString(),
		conn: conn,
		out:  make(chan wsEvent, wsOutBuffer),
		done: make(chan struct{}),
		subs: make(map[string]func()),
	}
	log.Printf("ws: client %s connected", client.id)

	go client.writeLoop()
	s.readLoop(client)
}

func (c *wsClient) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case ev := <-c.out:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteJSON(ev); err != nil {
				return
			}
		}
	}
}

// send enqueues without blocking; a slow client loses events rather
// than stalling the forwarders.
func (c *wsClient) send(ev wsEvent) {
	select {
	case c.out <- ev:
	default:
	}
}

func (s *Server) readLoop(client *wsClient) {
	defer func() {
		close(client.done)
		client.teardownAll()
		client.conn.Close()
		log.Printf("ws: client %s disconnected", client.id)
	}()

	for {
		var msg wsMessage
		if err := client.conn.ReadJSON(&msg); err != nil {
			return
		}

		switch msg.Action {
		case "subscribe":
			s.wsSubscribe(client, msg)
		case "unsubscribe":
			s.wsUnsubscribe(client, msg)
		default:
			client.send(wsEvent{Type: "error", Message: "unknown action " + msg.Action})
		}
	}
}

func (s *Server) wsSubscribe(client *wsClient, msg wsMessage) {
	if msg.AccountID == "" || len(msg.Symbols) == 0 {
		client.send(wsEvent{Type: "error", Message: "subscribe requires account_id and symbols"})
		return
	}

	h, found := s.Registry.Lookup(msg.AccountID)
	if !found || !h.Session.Connected() {
		client.send(wsEvent{Type: "error", AccountID: msg.AccountID, Message: "account not connected"})
		return
	}

	for _, symbol := range msg.Symbols {
		key := msg.AccountID + "/" + symbol

		client.mu.Lock()
		if _, exists := client.subs[key]; exists {
			client.mu.Unlock()
			continue
		}

		ch, unsubBus := s.Bus.Subscribe(events.QuoteTopic(msg.AccountID, symbol), quoteBacklog)
		h.Streams.Subscribe(symbol, client.id)

		accountID, sym := msg.AccountID, symbol
		client.subs[key] = func() {
			h.Streams.Unsubscribe(sym, client.id)
			unsubBus()
		}
		client.mu.Unlock()

		go func() {
			for payload := range ch {
				client.send(wsEvent{Type: "quote", AccountID: accountID, Symbol: sym, Data: payload})
			}
		}()

		client.send(wsEvent{Type: "subscribed", AccountID: accountID, Symbol: sym})
	}
}

func (s *Server) wsUnsubscribe(client *wsClient, msg wsMessage) {
	for _, symbol := range msg.Symbols {
		key := msg.AccountID + "/" + symbol

		client.mu.Lock()
		teardown, exists := client.subs[key]
		if exists {
			delete(client.subs, key)
		}
		client.mu.Unlock()

		if exists {
			teardown()
			client.send(wsEvent{Type: "unsubscribed", AccountID: msg.AccountID, Symbol: symbol})
		}
	}
}

func (c *wsClient) teardownAll() {
	c.mu.Lock()
	subs := c.subs
	c.subs = make(map[string]func())
	c.mu.Unlock()

	for _, teardown := range subs {
		teardown()
	}
}
