package rtc

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/dkeye/Meet/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Signaling message types.
const (
	MsgJoin         = "join"
	MsgLeave        = "leave"
	MsgOffer        = "offer"
	MsgAnswer       = "answer"
	MsgCandidate    = "candidate"
	MsgPing         = "ping"
	MsgPong         = "pong"
	MsgRoomState    = "room_state"
	MsgMemberJoined = "member_joined"
	MsgMemberLeft   = "member_left"
	MsgError        = "error"
)

const (
	writeWait      = 5 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 32
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

// Message is the JSON envelope on the signaling socket.
type Message struct {
	Type string        `json:"type"`
	Room domain.RoomID `json:"room,omitempty"`
	User domain.UserID `json:"user,omitempty"`
	Name string        `json:"name,omitempty"`
	Role string        `json:"role,omitempty"`
	// Token is the calling access token, sent with join.
	Token         string  `json:"token,omitempty"`
	SDP           string  `json:"sdp,omitempty"`
	Candidate     string  `json:"candidate,omitempty"`
	SDPMid        *string `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
	Count         int     `json:"count,omitempty"`
	Error         string  `json:"error,omitempty"`
}

// SignalConn is one websocket speaking Message envelopes. WritePump owns
// every write; TrySend only queues.
type SignalConn struct {
	conn *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	closed bool
}

func NewSignalConn(ws *websocket.Conn) *SignalConn {
	ws.SetReadLimit(maxMessageSize)
	return &SignalConn{conn: ws, send: make(chan []byte, sendBuffer)}
}

func (c *SignalConn) TrySend(m Message) error {
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- b:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *SignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	c.mu.Unlock()
}

// WritePump owns every write on the socket and closes it on exit. After
// Close it flushes what is queued, then sends a close frame.
func (c *SignalConn) WritePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "rtc.signal").Msg("WritePump write error")
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Warn().Err(err).Str("module", "rtc.signal").Msg("ping failed")
				return
			}
		}
	}
}

// ReadPump decodes messages until the socket fails and reports why.
func (c *SignalConn) ReadPump(handle func(Message)) error {
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return err
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		var m Message
		if err := json.Unmarshal(data, &m); err != nil {
			log.Error().Err(err).Str("module", "rtc.signal").Msg("bad json")
			continue
		}
		handle(m)
	}
}
