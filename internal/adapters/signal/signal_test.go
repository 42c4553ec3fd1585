package signal

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/Meet/internal/adapters/identity"
	"github.com/dkeye/Meet/internal/adapters/rtc"
	"github.com/dkeye/Meet/internal/app"
	"github.com/dkeye/Meet/internal/app/orch"
	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	orch *orch.Orchestrator
	ctl  *SignalWSController
	url  string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	idp, err := identity.NewProvider(identity.Options{Secret: []byte("signal-test-secret-0123456789abc")})
	require.NoError(t, err)
	o := &orch.Orchestrator{Registry: app.NewRegistry(), Identity: idp}
	ctl := NewSignalWSController(o, func(tok string) (domain.UserID, error) {
		c, err := idp.Verify(tok)
		if err != nil {
			return "", err
		}
		return c.Subject, nil
	}, nil)
	o.OnRoomEnded = ctl.EndRoom

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/ws", ctl.HandleSignal)
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		ctl.Close()
		srv.Close()
	})
	return &fixture{orch: o, ctl: ctl, url: "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"}
}

func (f *fixture) session(userID domain.UserID, token string) *rtc.Session {
	return rtc.NewSession(rtc.Options{SignalURL: f.url, UserID: userID, Token: token})
}

func nextEvent(t *testing.T, s *rtc.Session, typ core.CallEventType) core.CallEvent {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-s.Events():
			require.True(t, ok, "events closed while waiting for %s", typ)
			if ev.Type == typ {
				return ev
			}
		case <-timeout:
			t.Fatalf("no %s event", typ)
			return core.CallEvent{}
		}
	}
}

// dialRaw joins with a bare websocket and returns the first reply.
func dialRaw(t *testing.T, url string, join rtc.Message) rtc.Message {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer ws.Close()
	require.NoError(t, ws.WriteJSON(join))
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	var reply rtc.Message
	require.NoError(t, ws.ReadJSON(&reply))
	return reply
}

func TestApprovedMembersShareACall(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.orch.CreateRoom(ctx, "Alice")
	require.NoError(t, err)
	joined, err := f.orch.JoinRoom(ctx, created.RoomID, "Bob", false)
	require.NoError(t, err)
	_, err = f.orch.ApproveUser(ctx, created.RoomID, joined.UserIdentity)
	require.NoError(t, err)

	host := f.session(created.HostIdentity, created.HostToken)
	require.NoError(t, host.Start(ctx, created.RoomID, core.LocalMedia{}))
	assert.Equal(t, 1, nextEvent(t, host, core.CallRoomState).Members)

	guest := f.session(joined.UserIdentity, joined.UserToken)
	require.NoError(t, guest.Join(ctx, created.RoomID, core.LocalMedia{}))
	assert.Equal(t, 2, nextEvent(t, guest, core.CallRoomState).Members)

	ev := nextEvent(t, host, core.CallMemberJoined)
	assert.Equal(t, joined.UserIdentity, ev.UserID)
	assert.Equal(t, "Bob", ev.Name)
	assert.Equal(t, 2, ev.Members)

	require.NoError(t, guest.End(ctx))
	left := nextEvent(t, host, core.CallMemberLeft)
	assert.Equal(t, joined.UserIdentity, left.UserID)
	assert.Equal(t, 1, left.Members)

	require.NoError(t, f.orch.EndRoom(ctx, created.RoomID))
	assert.Equal(t, ErrCodeRoomEnded, nextEvent(t, host, core.CallError).Err)
	assert.Zero(t, f.ctl.MemberCount(created.RoomID))
	require.NoError(t, host.End(ctx))
}

func TestJoinRefusedUnlessApproved(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.orch.CreateRoom(ctx, "Alice")
	require.NoError(t, err)
	joined, err := f.orch.JoinRoom(ctx, created.RoomID, "Bob", false)
	require.NoError(t, err)

	reply := dialRaw(t, f.url, rtc.Message{Type: rtc.MsgJoin, Room: created.RoomID, User: joined.UserIdentity, Token: joined.UserToken})
	assert.Equal(t, rtc.MsgError, reply.Type)
	assert.Equal(t, ErrCodeNotApproved, reply.Error)

	reply = dialRaw(t, f.url, rtc.Message{Type: rtc.MsgJoin, Room: created.RoomID, User: created.HostIdentity, Token: joined.UserToken})
	assert.Equal(t, ErrCodeInvalidToken, reply.Error)

	reply = dialRaw(t, f.url, rtc.Message{Type: rtc.MsgJoin, Room: "missing", User: created.HostIdentity, Token: created.HostToken})
	assert.Equal(t, ErrCodeRoomEnded, reply.Error)

	reply = dialRaw(t, f.url, rtc.Message{Type: rtc.MsgOffer, SDP: "v=0"})
	assert.Equal(t, ErrCodeJoinFirst, reply.Error)

	reply = dialRaw(t, f.url, rtc.Message{Type: rtc.MsgJoin, Room: created.RoomID, User: created.HostIdentity, Token: created.HostToken})
	assert.Equal(t, rtc.MsgRoomState, reply.Type)
	assert.Equal(t, 1, reply.Count)
	assert.Zero(t, f.ctl.MemberCount("missing"))
}

func TestReconnectTakesOverSeat(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, err := f.orch.CreateRoom(ctx, "Alice")
	require.NoError(t, err)

	first := f.session(created.HostIdentity, created.HostToken)
	require.NoError(t, first.Start(ctx, created.RoomID, core.LocalMedia{}))
	nextEvent(t, first, core.CallRoomState)

	second := f.session(created.HostIdentity, created.HostToken)
	require.NoError(t, second.Start(ctx, created.RoomID, core.LocalMedia{}))
	assert.Equal(t, 1, nextEvent(t, second, core.CallRoomState).Members)

	assert.Equal(t, "signaling closed", nextEvent(t, first, core.CallError).Err)
	assert.Equal(t, 1, f.ctl.MemberCount(created.RoomID))
	require.NoError(t, second.End(ctx))
	require.NoError(t, first.End(ctx))
}
