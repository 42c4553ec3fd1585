package orch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dkeye/Meet/internal/app"
	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/core/mocks"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"golang.org/x/sync/errgroup"
)

type fixture struct {
	orch     *Orchestrator
	identity *mocks.MockIdentityProvider
	clock    *time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	idp := mocks.NewMockIdentityProvider(ctrl)

	var seq atomic.Int64
	idp.EXPECT().CreateIdentity(gomock.Any()).DoAndReturn(func(context.Context) (domain.UserID, error) {
		return domain.UserID(fmt.Sprintf("user-%d", seq.Add(1))), nil
	}).AnyTimes()
	idp.EXPECT().IssueToken(gomock.Any(), gomock.Any(), []string{"voip"}).DoAndReturn(
		func(_ context.Context, id domain.UserID, _ []string) (core.AccessToken, error) {
			return core.AccessToken{Token: "token-" + string(id)}, nil
		}).AnyTimes()

	now := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	f := &fixture{identity: idp, clock: &now}
	f.orch = &Orchestrator{
		Registry: app.NewRegistry(),
		Identity: idp,
		Policy:   app.HostBypassPolicy{},
		Now:      func() time.Time { return *f.clock },
		RoomTTL:  time.Hour,
	}
	return f
}

func assertDisjoint(t *testing.T, o *Orchestrator, roomID domain.RoomID) {
	t.Helper()
	room, err := o.Registry.Get(roomID)
	require.NoError(t, err)
	for id := range room.WaitingList {
		assert.NotContainsf(t, room.Participants, id, "user %s in both collections", id)
	}
	assert.Contains(t, room.Participants, room.HostID)
	assert.NotContains(t, room.WaitingList, room.HostID)
}

func TestScenarioCreateJoinApproveEnd(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	o := f.orch

	// A: create
	created, err := o.CreateRoom(ctx, "Alice")
	require.NoError(t, err)
	assert.Equal(t, "token-"+string(created.HostIdentity), created.HostToken)
	room, err := o.Registry.Get(created.RoomID)
	require.NoError(t, err)
	assert.True(t, room.IsActive)
	require.Len(t, room.Participants, 1)
	assert.True(t, room.Participants[created.HostIdentity].IsHost)
	assert.Empty(t, room.WaitingList)

	// B: join
	joined, err := o.JoinRoom(ctx, created.RoomID, "Bob", false)
	require.NoError(t, err)
	assert.True(t, joined.IsInWaitingRoom)
	waiting, err := o.WaitingList(ctx, created.RoomID)
	require.NoError(t, err)
	require.Len(t, waiting, 1)
	assert.Equal(t, joined.UserIdentity, waiting[0].ID)
	assert.Equal(t, "Bob", waiting[0].Name)
	st, err := o.RoomStatus(ctx, created.RoomID)
	require.NoError(t, err)
	assert.Equal(t, 1, st.ParticipantCount)
	assert.Equal(t, 1, st.WaitingCount)
	us, err := o.CheckUserStatus(ctx, created.RoomID, joined.UserIdentity)
	require.NoError(t, err)
	assert.Equal(t, domain.StateWaiting, us.State)

	// C: approve
	bob, err := o.ApproveUser(ctx, created.RoomID, joined.UserIdentity)
	require.NoError(t, err)
	assert.True(t, bob.IsApproved)
	require.NotNil(t, bob.ApprovedAt)
	waiting, err = o.WaitingList(ctx, created.RoomID)
	require.NoError(t, err)
	assert.Empty(t, waiting)
	us, err = o.CheckUserStatus(ctx, created.RoomID, joined.UserIdentity)
	require.NoError(t, err)
	assert.Equal(t, domain.StateApproved, us.State)
	assert.True(t, us.Participant.IsApproved)
	assertDisjoint(t, o, created.RoomID)

	// D: end
	require.NoError(t, o.EndRoom(ctx, created.RoomID))
	_, err = o.RoomStatus(ctx, created.RoomID)
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
}

func TestEveryOperationNotFoundAfterEnd(t *testing.T) {
	ctx := context.Background()
	o := newFixture(t).orch
	created, err := o.CreateRoom(ctx, "Alice")
	require.NoError(t, err)
	joined, err := o.JoinRoom(ctx, created.RoomID, "Bob", false)
	require.NoError(t, err)
	require.NoError(t, o.EndRoom(ctx, created.RoomID))

	id, uid := created.RoomID, joined.UserIdentity
	ops := map[string]func() error{
		"join":    func() error { _, err := o.JoinRoom(ctx, id, "Carol", false); return err },
		"status":  func() error { _, err := o.RoomStatus(ctx, id); return err },
		"approve": func() error { _, err := o.ApproveUser(ctx, id, uid); return err },
		"check":   func() error { _, err := o.CheckUserStatus(ctx, id, uid); return err },
		"waiting": func() error { _, err := o.WaitingList(ctx, id); return err },
		"leave":   func() error { return o.LeaveRoom(ctx, id, uid) },
		"end":     func() error { return o.EndRoom(ctx, id) },
		"media":   func() error { _, err := o.UpdateMedia(ctx, id, uid, nil, nil); return err },
	}
	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, op(), domain.ErrRoomNotFound)
		})
	}
}

func TestApproveRejectsNonWaiting(t *testing.T) {
	ctx := context.Background()
	o := newFixture(t).orch
	created, err := o.CreateRoom(ctx, "Alice")
	require.NoError(t, err)
	joined, err := o.JoinRoom(ctx, created.RoomID, "Bob", false)
	require.NoError(t, err)

	_, err = o.ApproveUser(ctx, created.RoomID, "stranger")
	assert.ErrorIs(t, err, domain.ErrUserNotWaiting)
	_, err = o.ApproveUser(ctx, created.RoomID, created.HostIdentity)
	assert.ErrorIs(t, err, domain.ErrUserNotWaiting)

	_, err = o.ApproveUser(ctx, created.RoomID, joined.UserIdentity)
	require.NoError(t, err)
	_, err = o.ApproveUser(ctx, created.RoomID, joined.UserIdentity)
	assert.ErrorIs(t, err, domain.ErrUserNotWaiting)
}

func TestConcurrentApproveExactlyOneWins(t *testing.T) {
	ctx := context.Background()
	o := newFixture(t).orch
	created, err := o.CreateRoom(ctx, "Alice")
	require.NoError(t, err)
	joined, err := o.JoinRoom(ctx, created.RoomID, "Bob", false)
	require.NoError(t, err)

	const racers = 8
	var ok, rejected atomic.Int32
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := o.ApproveUser(ctx, created.RoomID, joined.UserIdentity)
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, domain.ErrUserNotWaiting):
				rejected.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), ok.Load())
	assert.Equal(t, int32(racers-1), rejected.Load())
	assertDisjoint(t, o, created.RoomID)
}

func TestLeaveIsIdempotent(t *testing.T) {
	ctx := context.Background()
	o := newFixture(t).orch
	created, err := o.CreateRoom(ctx, "Alice")
	require.NoError(t, err)
	joined, err := o.JoinRoom(ctx, created.RoomID, "Bob", false)
	require.NoError(t, err)

	require.NoError(t, o.LeaveRoom(ctx, created.RoomID, joined.UserIdentity))
	require.NoError(t, o.LeaveRoom(ctx, created.RoomID, joined.UserIdentity))

	us, err := o.CheckUserStatus(ctx, created.RoomID, joined.UserIdentity)
	require.NoError(t, err)
	assert.Equal(t, domain.StateRemoved, us.State)

	// Host stays a participant.
	require.NoError(t, o.LeaveRoom(ctx, created.RoomID, created.HostIdentity))
	assertDisjoint(t, o, created.RoomID)
}

func TestHostJoinBypassesWaitingList(t *testing.T) {
	ctx := context.Background()
	o := newFixture(t).orch
	created, err := o.CreateRoom(ctx, "Alice")
	require.NoError(t, err)

	res, err := o.JoinRoom(ctx, created.RoomID, "Alice again", true)
	require.NoError(t, err)
	assert.False(t, res.IsInWaitingRoom)
	us, err := o.CheckUserStatus(ctx, created.RoomID, res.UserIdentity)
	require.NoError(t, err)
	assert.Equal(t, domain.StateApproved, us.State)
	assert.False(t, us.Participant.IsHost)

	o.Policy = app.ModeratedPolicy{}
	res, err = o.JoinRoom(ctx, created.RoomID, "Mallory", true)
	require.NoError(t, err)
	assert.True(t, res.IsInWaitingRoom)
}

func TestRandomSequencesKeepInvariants(t *testing.T) {
	ctx := context.Background()
	o := newFixture(t).orch
	created, err := o.CreateRoom(ctx, "Alice")
	require.NoError(t, err)

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < 20; i++ {
		i := i
		g.Go(func() error {
			res, err := o.JoinRoom(ctx, created.RoomID, fmt.Sprintf("guest %d", i), i%5 == 0)
			if err != nil {
				return err
			}
			if i%2 == 0 {
				_, _ = o.ApproveUser(ctx, created.RoomID, res.UserIdentity)
			}
			if i%3 == 0 {
				return o.LeaveRoom(ctx, created.RoomID, res.UserIdentity)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assertDisjoint(t, o, created.RoomID)
}

func TestCreateRoomIdentityFailureStoresNothing(t *testing.T) {
	ctrl := gomock.NewController(t)
	idp := mocks.NewMockIdentityProvider(ctrl)
	o := &Orchestrator{Registry: app.NewRegistry(), Identity: idp}

	idp.EXPECT().CreateIdentity(gomock.Any()).Return(domain.UserID("u1"), nil)
	idp.EXPECT().IssueToken(gomock.Any(), domain.UserID("u1"), gomock.Any()).
		Return(core.AccessToken{}, errors.New("token service down"))

	_, err := o.CreateRoom(context.Background(), "Alice")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrIdentityProvider)
	assert.Equal(t, domain.KindUpstream, domain.KindOf(err))
	assert.Equal(t, 0, o.Registry.Len())
}

func TestJoinIdentityFailureLeavesRoomUnchanged(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	idp := mocks.NewMockIdentityProvider(ctrl)
	o := &Orchestrator{Registry: app.NewRegistry(), Identity: idp}

	gomock.InOrder(
		idp.EXPECT().CreateIdentity(gomock.Any()).Return(domain.UserID("host"), nil),
		idp.EXPECT().IssueToken(gomock.Any(), domain.UserID("host"), gomock.Any()).Return(core.AccessToken{Token: "t"}, nil),
		idp.EXPECT().CreateIdentity(gomock.Any()).Return(domain.UserID(""), errors.New("unavailable")),
	)

	created, err := o.CreateRoom(ctx, "Alice")
	require.NoError(t, err)
	_, err = o.JoinRoom(ctx, created.RoomID, "Bob", false)
	assert.ErrorIs(t, err, domain.ErrIdentityProvider)

	st, err := o.RoomStatus(ctx, created.RoomID)
	require.NoError(t, err)
	assert.Equal(t, 1, st.ParticipantCount)
	assert.Equal(t, 0, st.WaitingCount)
}

func TestJoinUnknownOrExpiredRoom(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	o := f.orch

	_, err := o.JoinRoom(ctx, "missing", "Bob", false)
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)

	created, err := o.CreateRoom(ctx, "Alice")
	require.NoError(t, err)
	*f.clock = f.clock.Add(2 * time.Hour)
	_, err = o.JoinRoom(ctx, created.RoomID, "Bob", false)
	assert.ErrorIs(t, err, domain.ErrRoomInactive)

	assert.Equal(t, 1, o.ExpireRooms(ctx))
	_, err = o.RoomStatus(ctx, created.RoomID)
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
}

func TestExpiredRoomRefusesMutationsBeforeJanitor(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	o := f.orch

	var ended []domain.RoomID
	o.OnRoomEnded = func(id domain.RoomID) { ended = append(ended, id) }

	created, err := o.CreateRoom(ctx, "Alice")
	require.NoError(t, err)
	joined, err := o.JoinRoom(ctx, created.RoomID, "Bob", false)
	require.NoError(t, err)

	*f.clock = f.clock.Add(2 * time.Hour)

	st, err := o.RoomStatus(ctx, created.RoomID)
	require.NoError(t, err)
	assert.False(t, st.IsActive)
	assert.False(t, o.ListRooms(ctx)[0].IsActive)

	_, err = o.ApproveUser(ctx, created.RoomID, joined.UserIdentity)
	assert.ErrorIs(t, err, domain.ErrRoomInactive)
	muted := true
	_, err = o.UpdateMedia(ctx, created.RoomID, created.HostIdentity, &muted, nil)
	assert.ErrorIs(t, err, domain.ErrRoomInactive)

	us, err := o.CheckUserStatus(ctx, created.RoomID, joined.UserIdentity)
	require.NoError(t, err)
	assert.Equal(t, domain.StateWaiting, us.State)

	require.NoError(t, o.LeaveRoom(ctx, created.RoomID, joined.UserIdentity))

	assert.Equal(t, 1, o.ExpireRooms(ctx))
	assert.Equal(t, []domain.RoomID{created.RoomID}, ended)
}

func TestJoinRejectsBadName(t *testing.T) {
	o := newFixture(t).orch
	created, err := o.CreateRoom(context.Background(), "Alice")
	require.NoError(t, err)
	_, err = o.JoinRoom(context.Background(), created.RoomID, "  ", false)
	assert.ErrorIs(t, err, domain.ErrNameEmpty)
	_, err = o.CreateRoom(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrNameEmpty)
}

func TestLocateAndMedia(t *testing.T) {
	ctx := context.Background()
	o := newFixture(t).orch
	created, err := o.CreateRoom(ctx, "Alice")
	require.NoError(t, err)
	joined, err := o.JoinRoom(ctx, created.RoomID, "Bob", false)
	require.NoError(t, err)

	loc, err := o.Locate(ctx, created.RoomID, joined.UserIdentity)
	require.NoError(t, err)
	assert.True(t, loc.Found)
	assert.Equal(t, "waiting", loc.Location)

	muted := true
	_, err = o.UpdateMedia(ctx, created.RoomID, joined.UserIdentity, &muted, nil)
	assert.ErrorIs(t, err, domain.ErrUserNotFound)

	_, err = o.ApproveUser(ctx, created.RoomID, joined.UserIdentity)
	require.NoError(t, err)
	p, err := o.UpdateMedia(ctx, created.RoomID, joined.UserIdentity, &muted, nil)
	require.NoError(t, err)
	assert.True(t, p.IsMuted)

	loc, err = o.Locate(ctx, created.RoomID, "nobody")
	require.NoError(t, err)
	assert.False(t, loc.Found)

	parts, err := o.Participants(ctx, created.RoomID)
	require.NoError(t, err)
	assert.Len(t, parts, 2)
	assert.Len(t, o.ListRooms(ctx), 1)
}

func TestRunJanitorStopsWithContext(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.orch.RunJanitor(ctx, time.Millisecond)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}
