package signal

import (
	"context"
	"errors"

	"github.com/dkeye/Meet/internal/adapters/rtc"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleJoin(ctx context.Context, cl *client, m rtc.Message) {
	if cl.room != "" {
		sendError(cl.conn, ErrCodeAlreadyJoined)
		return
	}
	if m.Room == "" || m.User == "" {
		sendError(cl.conn, ErrCodeBadPayload)
		return
	}
	if ctl.Verify != nil {
		sub, err := ctl.Verify(m.Token)
		if err != nil || sub != m.User {
			log.Warn().Err(err).Str("module", "signal").Str("user", string(m.User)).Msg("join with bad token")
			sendError(cl.conn, ErrCodeInvalidToken)
			return
		}
	}

	name, code := ctl.admitted(ctx, m.Room, m.User)
	if code != "" {
		sendError(cl.conn, code)
		return
	}
	cl.room, cl.user, cl.name = m.Room, m.User, name

	ctl.mu.Lock()
	members := ctl.calls[cl.room]
	if members == nil {
		members = make(map[domain.UserID]*client)
		ctl.calls[cl.room] = members
	}
	prev := members[cl.user]
	members[cl.user] = cl
	count := len(members)
	others := roomMates(members, cl.user)
	ctl.mu.Unlock()

	if prev != nil {
		// Same identity reconnected; the old socket loses its seat.
		prev.conn.Close()
	}

	// The room may have ended between the status check and the insert, in
	// which case EndRoom already ran and missed us.
	if _, again := ctl.admitted(ctx, cl.room, cl.user); again == ErrCodeRoomEnded {
		ctl.leave(cl)
		sendError(cl.conn, ErrCodeRoomEnded)
		cl.conn.Close()
		return
	}

	log.Info().Str("module", "signal").Str("room", string(m.Room)).Str("user", string(m.User)).Int("count", count).Msg("join call")
	send(cl.conn, rtc.Message{Type: rtc.MsgRoomState, Room: cl.room, Count: count})
	broadcast(others, rtc.Message{Type: rtc.MsgMemberJoined, Room: cl.room, User: cl.user, Name: cl.name, Count: count})
}

// admitted returns the participant's name, or the error code refusing it.
func (ctl *SignalWSController) admitted(ctx context.Context, roomID domain.RoomID, userID domain.UserID) (string, string) {
	st, err := ctl.Rooms.CheckUserStatus(ctx, roomID, userID)
	switch {
	case errors.Is(err, domain.ErrRoomNotFound):
		return "", ErrCodeRoomEnded
	case err != nil:
		log.Error().Err(err).Str("module", "signal").Msg("check user status")
		return "", ErrCodeNotApproved
	case st.State != domain.StateApproved || st.Participant == nil:
		return "", ErrCodeNotApproved
	}
	return st.Participant.Name, ""
}

func roomMates(members map[domain.UserID]*client, except domain.UserID) []*client {
	out := make([]*client, 0, len(members))
	for id, cl := range members {
		if id != except {
			out = append(out, cl)
		}
	}
	return out
}

// leave takes cl out of its call and drops its media. Safe to call twice.
func (ctl *SignalWSController) leave(cl *client) {
	if cl.pc != nil {
		cl.pc.Close()
		cl.pc = nil
	}
	if cl.room == "" {
		return
	}
	room, user := cl.room, cl.user
	cl.room = ""

	ctl.mu.Lock()
	members := ctl.calls[room]
	if members[user] != cl {
		ctl.mu.Unlock()
		return
	}
	delete(members, user)
	count := len(members)
	if count == 0 {
		delete(ctl.calls, room)
	}
	others := roomMates(members, user)
	ctl.mu.Unlock()

	log.Info().Str("module", "signal").Str("room", string(room)).Str("user", string(user)).Int("count", count).Msg("leave call")
	broadcast(others, rtc.Message{Type: rtc.MsgMemberLeft, Room: room, User: user, Name: cl.name, Count: count})
}
