package game

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pingPeriod     = 25 * time.Second
	maxMessageSize = 4096
	sendBuffer     = 64
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true }, // observers are anonymous
}

// ClientConn is one observer. The hub writes into send without blocking;
// the writer goroutine owns the socket writes.
type ClientConn struct {
	id   string
	ws   *websocket.Conn
	send chan []byte

	closed    chan struct{}
	closeOnce sync.Once
}

func newClientConn(ws *websocket.Conn) *ClientConn {
	return &ClientConn{
		id:     uuid.NewString(),
		ws:     ws,
		send:   make(chan []byte, sendBuffer),
		closed: make(chan struct{}),
	}
}

func (c *ClientConn) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		if c.ws != nil {
			_ = c.ws.Close()
		}
	})
}

// trySend queues b unless the connection is closed or its buffer is full.
func (c *ClientConn) trySend(b []byte) bool {
	select {
	case <-c.closed:
		return false
	default:
	}
	select {
	case c.send <- b:
		return true
	default:
		return false
	}
}

func (c *ClientConn) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.closed:
			return
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.Close()
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		}
	}
}

// handleWS attaches an observer. Every text frame is parsed into a Message;
// malformed or unknown frames are dropped without a reply.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	ws.SetReadLimit(maxMessageSize)

	cc := newClientConn(ws)
	if err := s.hub.Attach(r.Context(), cc); err != nil {
		cc.Close()
		return
	}
	go cc.writeLoop()

	for {
		kind, data, err := ws.ReadMessage()
		if err != nil {
			break
		}
		if kind != websocket.TextMessage {
			continue
		}

		msg, err := ParseMessage(data)
		if err != nil {
			s.log.Debug("frame ignored", "conn", cc.id, "err", err)
			continue
		}
		if err := s.hub.Dispatch(r.Context(), cc, msg); err != nil {
			break
		}
	}

	s.hub.Detach(cc)
	cc.Close()
}
