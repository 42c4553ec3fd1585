package reconcile

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	httpadapter "github.com/dkeye/Meet/internal/adapters/http"
	"github.com/dkeye/Meet/internal/adapters/identity"
	"github.com/dkeye/Meet/internal/app"
	"github.com/dkeye/Meet/internal/app/orch"
	"github.com/dkeye/Meet/internal/config"
	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T) (*Client, *orch.Orchestrator) {
	t.Helper()
	idp, err := identity.NewProvider(identity.Options{Secret: []byte("reconcile-test-secret-0123456789")})
	require.NoError(t, err)
	o := &orch.Orchestrator{Registry: app.NewRegistry(), Identity: idp}
	cfg := &config.Config{Mode: "test", Secret: "cookie"}
	srv := httptest.NewServer(httpadapter.SetupRouter(cfg, o, httpadapter.NewJoinLimiter(100, time.Minute), nil))
	t.Cleanup(srv.Close)
	return NewClient(srv.URL), o
}

func fastPoller(c *Client) *Poller {
	return &Poller{Client: c, Interval: 10 * time.Millisecond}
}

func TestAwaitAdmissionApproved(t *testing.T) {
	c, _ := newServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	room, err := c.CreateRoom(ctx, "Alice")
	require.NoError(t, err)
	joined, err := c.JoinRoom(ctx, room.RoomID, "Bob", false)
	require.NoError(t, err)
	require.True(t, joined.IsInWaitingRoom)

	go func() {
		time.Sleep(50 * time.Millisecond)
		_, _ = c.ApproveUser(ctx, room.RoomID, joined.UserIdentity)
	}()

	adm, err := fastPoller(c).AwaitAdmission(ctx, room.RoomID, joined.UserIdentity)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApproved, adm.Outcome)
	require.NotNil(t, adm.User)
	assert.Equal(t, "Bob", adm.User.Name)
}

func TestAwaitAdmissionRoomEnded(t *testing.T) {
	c, _ := newServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	room, err := c.CreateRoom(ctx, "Alice")
	require.NoError(t, err)
	joined, err := c.JoinRoom(ctx, room.RoomID, "Bob", false)
	require.NoError(t, err)

	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = c.EndRoom(ctx, room.RoomID)
	}()

	adm, err := fastPoller(c).AwaitAdmission(ctx, room.RoomID, joined.UserIdentity)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRoomEnded, adm.Outcome)
}

func TestAwaitAdmissionRemovedWhileRoomActive(t *testing.T) {
	c, _ := newServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	room, err := c.CreateRoom(ctx, "Alice")
	require.NoError(t, err)
	joined, err := c.JoinRoom(ctx, room.RoomID, "Bob", false)
	require.NoError(t, err)
	require.NoError(t, c.LeaveRoom(ctx, room.RoomID, joined.UserIdentity))

	adm, err := fastPoller(c).AwaitAdmission(ctx, room.RoomID, joined.UserIdentity)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRemoved, adm.Outcome)
}

func TestAwaitAdmissionCancelLeaves(t *testing.T) {
	c, o := newServer(t)
	ctx := context.Background()
	room, err := c.CreateRoom(ctx, "Alice")
	require.NoError(t, err)
	joined, err := c.JoinRoom(ctx, room.RoomID, "Bob", false)
	require.NoError(t, err)

	p := fastPoller(c)
	p.LeaveOnCancel = true
	waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = p.AwaitAdmission(waitCtx, room.RoomID, joined.UserIdentity)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	st, err := o.CheckUserStatus(ctx, room.RoomID, joined.UserIdentity)
	require.NoError(t, err)
	assert.Equal(t, domain.StateRemoved, st.State)
}

func TestAwaitAdmissionRetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"isApproved":true,"isInRoom":true,"user":{"id":"u1","name":"Bob"}}`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	adm, err := fastPoller(NewClient(srv.URL)).AwaitAdmission(ctx, "r1", "u1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeApproved, adm.Outcome)
	assert.Equal(t, int32(3), calls.Load())
}

func TestWatchWaitingListUntilRoomEnds(t *testing.T) {
	c, _ := newServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	room, err := c.CreateRoom(ctx, "Alice")
	require.NoError(t, err)
	_, err = c.JoinRoom(ctx, room.RoomID, "Bob", false)
	require.NoError(t, err)

	var snapshots int
	err = fastPoller(c).WatchWaitingList(ctx, room.RoomID, func(list []domain.Participant) error {
		snapshots++
		if len(list) == 1 {
			// Host sees Bob, then ends the room.
			return c.EndRoom(ctx, room.RoomID)
		}
		return nil
	})
	assert.ErrorIs(t, err, ErrRoomEnded)
	assert.Equal(t, 1, snapshots)
}

func TestWatchWaitingListStopsOnCallbackError(t *testing.T) {
	c, _ := newServer(t)
	ctx := context.Background()
	room, err := c.CreateRoom(ctx, "Alice")
	require.NoError(t, err)

	stop := errors.New("stop")
	err = fastPoller(c).WatchWaitingList(ctx, room.RoomID, func([]domain.Participant) error { return stop })
	assert.ErrorIs(t, err, stop)
}

func TestClientErrors(t *testing.T) {
	c, _ := newServer(t)
	ctx := context.Background()

	_, err := c.RoomStatus(ctx, "missing")
	require.Error(t, err)
	assert.True(t, IsRoomNotFound(err))
	assert.False(t, IsTransient(err))

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)

	room, err := c.CreateRoom(ctx, "Alice")
	require.NoError(t, err)
	_, err = c.UserStatus(ctx, room.RoomID, "ghost")
	assert.True(t, IsUserRemoved(err))

	muted := true
	p, err := c.UpdateMedia(ctx, room.RoomID, room.HostIdentity, core.MediaRequest{IsMuted: &muted})
	require.NoError(t, err)
	assert.True(t, p.IsMuted)

	loc, err := c.Locate(ctx, room.RoomID, room.HostIdentity)
	require.NoError(t, err)
	assert.True(t, loc.Found)

	rooms, err := c.ListRooms(ctx)
	require.NoError(t, err)
	assert.Len(t, rooms, 1)

	parts, err := c.Participants(ctx, room.RoomID)
	require.NoError(t, err)
	assert.Len(t, parts, 1)
}

func TestClientListsDecodeBodies(t *testing.T) {
	c, _ := newServer(t)
	ctx := context.Background()

	room, err := c.CreateRoom(ctx, "Alice")
	require.NoError(t, err)
	joined, err := c.JoinRoom(ctx, room.RoomID, "Bob", false)
	require.NoError(t, err)

	waiting, err := c.WaitingList(ctx, room.RoomID)
	require.NoError(t, err)
	require.Len(t, waiting, 1)
	assert.Equal(t, joined.UserIdentity, waiting[0].ID)

	parts, err := c.Participants(ctx, room.RoomID)
	require.NoError(t, err)
	require.Len(t, parts, 1)
	assert.Equal(t, "Alice", parts[0].Name)

	rooms, err := c.ListRooms(ctx)
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, 1, rooms[0].WaitingCount)
}

func TestWatchRoom(t *testing.T) {
	c, _ := newServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	room, err := c.CreateRoom(ctx, "Alice")
	require.NoError(t, err)

	seen := 0
	err = fastPoller(c).WatchRoom(ctx, room.RoomID, func(st core.RoomStatus) {
		seen++
		if seen == 2 {
			_ = c.EndRoom(ctx, room.RoomID)
		}
	})
	assert.ErrorIs(t, err, ErrRoomEnded)
	assert.Equal(t, 2, seen)
}
