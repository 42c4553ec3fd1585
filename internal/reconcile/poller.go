package reconcile

import (
	"context"
	"errors"
	"time"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/rs/zerolog/log"
)

const DefaultInterval = 2 * time.Second

// ErrRoomEnded stops a host watch once the room is gone.
var ErrRoomEnded = errors.New("room ended")

type Outcome int

const (
	OutcomeApproved Outcome = iota + 1
	OutcomeRoomEnded
	// OutcomeRemoved means the room is still active but no longer holds the
	// user, e.g. after leaving from another client.
	OutcomeRemoved
)

func (o Outcome) String() string {
	switch o {
	case OutcomeApproved:
		return "approved"
	case OutcomeRoomEnded:
		return "room_ended"
	case OutcomeRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

type Admission struct {
	Outcome Outcome
	User    *domain.Participant
}

// Poller drives the waiting and host loops over a Client.
type Poller struct {
	Client   *Client
	Interval time.Duration
	// LeaveOnCancel removes the waiting entry when AwaitAdmission is
	// cancelled. Without it the entry lingers until the room ends.
	LeaveOnCancel bool
}

func (p *Poller) interval() time.Duration {
	if p.Interval > 0 {
		return p.Interval
	}
	return DefaultInterval
}

// AwaitAdmission polls the user's status until it is decided. Waiting keeps
// the loop going; anything else resolves to exactly one Outcome.
func (p *Poller) AwaitAdmission(ctx context.Context, roomID domain.RoomID, userID domain.UserID) (Admission, error) {
	logger := log.With().Str("module", "reconcile").Str("room", string(roomID)).Str("user", string(userID)).Logger()

	t := time.NewTicker(p.interval())
	defer t.Stop()
	for {
		adm, done, err := p.checkOnce(ctx, roomID, userID)
		switch {
		case done:
			logger.Info().Stringer("outcome", adm.Outcome).Msg("admission decided")
			return adm, nil
		case ctx.Err() != nil:
		case err != nil && !IsTransient(err):
			return Admission{}, err
		case err != nil:
			logger.Warn().Err(err).Msg("status poll failed, retrying")
		}

		select {
		case <-ctx.Done():
			if p.LeaveOnCancel {
				p.abandon(roomID, userID)
			}
			return Admission{}, ctx.Err()
		case <-t.C:
		}
	}
}

func (p *Poller) checkOnce(ctx context.Context, roomID domain.RoomID, userID domain.UserID) (Admission, bool, error) {
	st, err := p.Client.UserStatus(ctx, roomID, userID)
	if err == nil {
		if st.IsApproved {
			return Admission{Outcome: OutcomeApproved, User: st.User}, true, nil
		}
		return Admission{}, false, nil
	}
	if !IsUserRemoved(err) && !IsRoomNotFound(err) {
		return Admission{}, false, err
	}

	// The user is in neither collection. Only the room status tells an
	// ended room apart from a removed user.
	room, err := p.Client.RoomStatus(ctx, roomID)
	switch {
	case IsRoomNotFound(err):
		return Admission{Outcome: OutcomeRoomEnded}, true, nil
	case err != nil:
		return Admission{}, false, err
	case !room.IsActive:
		return Admission{Outcome: OutcomeRoomEnded}, true, nil
	default:
		return Admission{Outcome: OutcomeRemoved}, true, nil
	}
}

func (p *Poller) abandon(roomID domain.RoomID, userID domain.UserID) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.Client.LeaveRoom(ctx, roomID, userID); err != nil && !IsRoomNotFound(err) {
		log.Warn().Err(err).Str("module", "reconcile").Str("room", string(roomID)).Msg("leave on cancel")
	}
}

// WatchWaitingList hands every waiting-list snapshot to fn until ctx is
// done, fn fails, or the room disappears (ErrRoomEnded).
func (p *Poller) WatchWaitingList(ctx context.Context, roomID domain.RoomID, fn func([]domain.Participant) error) error {
	logger := log.With().Str("module", "reconcile").Str("room", string(roomID)).Logger()

	t := time.NewTicker(p.interval())
	defer t.Stop()
	for {
		list, err := p.Client.WaitingList(ctx, roomID)
		switch {
		case IsRoomNotFound(err):
			logger.Info().Msg("room gone, stopping host watch")
			return ErrRoomEnded
		case err != nil && !IsTransient(err):
			return err
		case err != nil:
			logger.Warn().Err(err).Msg("waiting list poll failed, retrying")
		default:
			if err := fn(list); err != nil {
				return err
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}

// WatchRoom calls fn with each room status until the room is gone.
func (p *Poller) WatchRoom(ctx context.Context, roomID domain.RoomID, fn func(core.RoomStatus)) error {
	t := time.NewTicker(p.interval())
	defer t.Stop()
	for {
		st, err := p.Client.RoomStatus(ctx, roomID)
		switch {
		case IsRoomNotFound(err):
			return ErrRoomEnded
		case err != nil && !IsTransient(err):
			return err
		case err == nil:
			if !st.IsActive {
				return ErrRoomEnded
			}
			fn(*st)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}
