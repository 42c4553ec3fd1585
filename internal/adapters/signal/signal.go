// Package signal is the call signaling endpoint. It admits approved
// participants, answers their offers and tells room mates who is in the
// call. Media is terminated here and never forwarded.
package signal

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/Meet/internal/adapters/rtc"
	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Error values sent in MsgError envelopes.
const (
	ErrCodeBadPayload    = "bad_payload"
	ErrCodeInvalidToken  = "invalid_token"
	ErrCodeNotApproved   = "not_approved"
	ErrCodeJoinFirst     = "join_first"
	ErrCodeAlreadyJoined = "already_joined"
	ErrCodeBadOffer      = "bad_offer"
	ErrCodeRoomEnded     = "room_ended"
	ErrCodeUnknownType   = "unknown_type"
)

// MembershipChecker is the slice of the room session service the relay
// needs to decide admission.
type MembershipChecker interface {
	CheckUserStatus(ctx context.Context, roomID domain.RoomID, userID domain.UserID) (core.UserStatus, error)
}

// TokenVerifier returns the identity a calling token was issued to.
type TokenVerifier func(token string) (domain.UserID, error)

type SignalWSController struct {
	Rooms MembershipChecker
	// Verify is optional. Without it the user field of join is trusted.
	Verify     TokenVerifier
	ICEServers []string

	mu    sync.Mutex
	calls map[domain.RoomID]map[domain.UserID]*client
}

// client is the state of one socket. Only its read loop touches room, user,
// name and pc after admission.
type client struct {
	conn *rtc.SignalConn
	room domain.RoomID
	user domain.UserID
	name string
	pc   *rtc.PeerConnection
}

func NewSignalWSController(rooms MembershipChecker, verify TokenVerifier, iceServers []string) *SignalWSController {
	return &SignalWSController{
		Rooms:      rooms,
		Verify:     verify,
		ICEServers: iceServers,
		calls:      make(map[domain.RoomID]map[domain.UserID]*client),
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal serves one signaling socket until it closes.
func (ctl *SignalWSController) HandleSignal(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	log.Info().Str("module", "signal").Str("ct", c.GetString("client_token")).Msg("new WS connection")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conn := rtc.NewSignalConn(ws)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		conn.WritePump(ctx)
	}()

	cl := &client{conn: conn}
	err = conn.ReadPump(func(m rtc.Message) { ctl.handle(ctx, cl, m) })
	log.Info().Err(err).Str("module", "signal").Str("user", string(cl.user)).Msg("WS connection closed")

	ctl.leave(cl)
	conn.Close()
	select {
	case <-writerDone:
	case <-time.After(time.Second):
	}
}

func (ctl *SignalWSController) handle(ctx context.Context, cl *client, m rtc.Message) {
	switch m.Type {
	case rtc.MsgJoin:
		ctl.handleJoin(ctx, cl, m)
	case rtc.MsgOffer:
		ctl.handleOffer(ctx, cl, m)
	case rtc.MsgCandidate:
		ctl.handleCandidate(cl, m)
	case rtc.MsgLeave:
		ctl.leave(cl)
	case rtc.MsgPing:
		send(cl.conn, rtc.Message{Type: rtc.MsgPong})
	case rtc.MsgPong:
	default:
		log.Warn().Str("module", "signal").Str("type", m.Type).Msg("unknown message type")
		sendError(cl.conn, ErrCodeUnknownType)
	}
}

// EndRoom disconnects everyone in the room's call. It is meant to run after
// the room is gone from the registry.
func (ctl *SignalWSController) EndRoom(roomID domain.RoomID) {
	ctl.mu.Lock()
	members := ctl.calls[roomID]
	delete(ctl.calls, roomID)
	ctl.mu.Unlock()

	for _, cl := range members {
		sendError(cl.conn, ErrCodeRoomEnded)
		cl.conn.Close()
	}
	if len(members) > 0 {
		log.Info().Str("module", "signal").Str("room", string(roomID)).Int("members", len(members)).Msg("call ended with room")
	}
}

// Close disconnects every call, for server shutdown.
func (ctl *SignalWSController) Close() {
	ctl.mu.Lock()
	rooms := make([]domain.RoomID, 0, len(ctl.calls))
	for id := range ctl.calls {
		rooms = append(rooms, id)
	}
	ctl.mu.Unlock()
	for _, id := range rooms {
		ctl.EndRoom(id)
	}
}

// MemberCount reports how many sockets are in the room's call.
func (ctl *SignalWSController) MemberCount(roomID domain.RoomID) int {
	ctl.mu.Lock()
	defer ctl.mu.Unlock()
	return len(ctl.calls[roomID])
}

func send(conn *rtc.SignalConn, m rtc.Message) {
	if err := conn.TrySend(m); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("type", m.Type).Msg("send failed")
	}
}

func sendError(conn *rtc.SignalConn, code string) {
	send(conn, rtc.Message{Type: rtc.MsgError, Error: code})
}

func broadcast(to []*client, m rtc.Message) {
	for _, cl := range to {
		send(cl.conn, m)
	}
}
