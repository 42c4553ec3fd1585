package orch

import (
	"context"
	"errors"

	"github.com/dkeye/Meet/internal/app"
	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/rs/zerolog/log"
)

func (o *Orchestrator) joinable(roomID domain.RoomID) error {
	now := o.now()
	return o.Registry.View(roomID, func(r *domain.Room) error {
		if !r.IsActive || r.Expired(now) {
			return domain.ErrRoomInactive
		}
		return nil
	})
}

// update runs fn under the room lock, refusing rooms past their validity
// window that the janitor has not ended yet.
func (o *Orchestrator) update(roomID domain.RoomID, fn func(r *domain.Room) error) error {
	now := o.now()
	return o.Registry.Update(roomID, func(r *domain.Room) error {
		if r.Expired(now) {
			return domain.ErrRoomInactive
		}
		return fn(r)
	})
}

// JoinRoom issues a fresh identity and places it in the waiting list, or
// directly among participants when the policy admits it.
func (o *Orchestrator) JoinRoom(ctx context.Context, roomID domain.RoomID, userName string, isHost bool) (*core.JoinResult, error) {
	name, err := domain.NormalizeName(userName)
	if err != nil {
		return nil, err
	}
	if err := o.joinable(roomID); err != nil {
		return nil, err
	}

	userID, tok, err := o.issue(ctx)
	if err != nil {
		log.Error().Err(err).Str("module", "app.orch").Str("room", string(roomID)).Msg("join room: identity")
		return nil, err
	}

	now := o.now()
	p, err := domain.NewParticipant(userID, name, false, now)
	if err != nil {
		return nil, err
	}

	res := &core.JoinResult{UserToken: tok.Token, UserIdentity: userID}
	err = o.update(roomID, func(r *domain.Room) error {
		res.RoomValidUntil = r.ValidUntil
		if o.policy().Admit(r, isHost) == app.AdmitDirect {
			return r.AddParticipant(p)
		}
		res.IsInWaitingRoom = true
		return r.AddWaiting(p)
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("module", "app.orch").
		Str("room", string(roomID)).
		Str("user", string(userID)).
		Bool("waiting", res.IsInWaitingRoom).
		Msg("user joined")
	return res, nil
}

// ApproveUser is the only way out of the waiting list.
func (o *Orchestrator) ApproveUser(_ context.Context, roomID domain.RoomID, userID domain.UserID) (*domain.Participant, error) {
	var approved *domain.Participant
	now := o.now()
	err := o.update(roomID, func(r *domain.Room) error {
		p, err := r.Approve(userID, now)
		approved = p
		return err
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("module", "app.orch").Str("room", string(roomID)).Str("user", string(userID)).Msg("user approved")
	return approved, nil
}

// CheckUserStatus reports StateRemoved when the room exists but holds no
// entry for userID. A missing room is ErrRoomNotFound.
func (o *Orchestrator) CheckUserStatus(_ context.Context, roomID domain.RoomID, userID domain.UserID) (core.UserStatus, error) {
	var st core.UserStatus
	err := o.Registry.View(roomID, func(r *domain.Room) error {
		st.State, st.Participant = r.StateOf(userID)
		return nil
	})
	return st, err
}

func (o *Orchestrator) WaitingList(_ context.Context, roomID domain.RoomID) ([]domain.Participant, error) {
	var out []domain.Participant
	err := o.Registry.View(roomID, func(r *domain.Room) error {
		out = r.WaitingSnapshot()
		return nil
	})
	return out, err
}

func (o *Orchestrator) Participants(_ context.Context, roomID domain.RoomID) ([]domain.Participant, error) {
	var out []domain.Participant
	err := o.Registry.View(roomID, func(r *domain.Room) error {
		out = r.ParticipantList()
		return nil
	})
	return out, err
}

func (o *Orchestrator) Locate(ctx context.Context, roomID domain.RoomID, userID domain.UserID) (core.ParticipantLocation, error) {
	st, err := o.CheckUserStatus(ctx, roomID, userID)
	if err != nil {
		return core.ParticipantLocation{}, err
	}
	switch st.State {
	case domain.StateApproved:
		return core.ParticipantLocation{Found: true, Location: "participants", User: st.Participant}, nil
	case domain.StateWaiting:
		return core.ParticipantLocation{Found: true, Location: "waiting", User: st.Participant}, nil
	default:
		return core.ParticipantLocation{}, nil
	}
}

// UpdateMedia records the client's own mute/video toggles.
func (o *Orchestrator) UpdateMedia(_ context.Context, roomID domain.RoomID, userID domain.UserID, muted, videoOn *bool) (*domain.Participant, error) {
	var out *domain.Participant
	err := o.update(roomID, func(r *domain.Room) error {
		p, err := r.SetMedia(userID, muted, videoOn)
		out = p
		return err
	})
	return out, err
}

// LeaveRoom is idempotent: an absent user is not an error. Leaving an
// expired room is still allowed since it only shrinks the room.
func (o *Orchestrator) LeaveRoom(_ context.Context, roomID domain.RoomID, userID domain.UserID) error {
	removed := false
	err := o.Registry.Update(roomID, func(r *domain.Room) error {
		removed = r.Remove(userID)
		return nil
	})
	if errors.Is(err, domain.ErrRoomInactive) {
		// Ended while we waited for the lock.
		return domain.ErrRoomNotFound
	}
	if err != nil {
		return err
	}
	log.Info().
		Str("module", "app.orch").
		Str("room", string(roomID)).
		Str("user", string(userID)).
		Bool("removed", removed).
		Msg("user left")
	return nil
}
