package orch

import (
	"context"
	"time"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// CreateRoom stores a new room with the host already admitted. Nothing is
// stored when the identity provider fails.
func (o *Orchestrator) CreateRoom(ctx context.Context, hostName string) (*core.CreateRoomResult, error) {
	name, err := domain.NormalizeName(hostName)
	if err != nil {
		return nil, err
	}
	hostID, tok, err := o.issue(ctx)
	if err != nil {
		log.Error().Err(err).Str("module", "app.orch").Msg("create room: identity")
		return nil, err
	}

	now := o.now()
	host, err := domain.NewParticipant(hostID, name, true, now)
	if err != nil {
		return nil, err
	}
	room := domain.NewRoom(domain.RoomID(uuid.NewString()), host, now, o.ttl())
	if err := o.Registry.Put(room); err != nil {
		return nil, err
	}

	log.Info().Str("module", "app.orch").Str("room", string(room.ID)).Str("host", string(hostID)).Msg("room created")
	return &core.CreateRoomResult{
		RoomID:       room.ID,
		HostToken:    tok.Token,
		HostIdentity: hostID,
		ValidFrom:    room.ValidFrom,
		ValidUntil:   room.ValidUntil,
	}, nil
}

func (o *Orchestrator) RoomStatus(_ context.Context, roomID domain.RoomID) (core.RoomStatus, error) {
	var st core.RoomStatus
	now := o.now()
	err := o.Registry.View(roomID, func(r *domain.Room) error {
		st = core.StatusOf(r, now)
		return nil
	})
	return st, err
}

func (o *Orchestrator) ListRooms(context.Context) []core.RoomStatus {
	rooms := o.Registry.List()
	now := o.now()
	out := make([]core.RoomStatus, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, core.StatusOf(r, now))
	}
	return out
}

// EndRoom makes the room terminal and forgets it. A second call reports
// ErrRoomNotFound, which callers treat as "already ended".
func (o *Orchestrator) EndRoom(_ context.Context, roomID domain.RoomID) error {
	final, err := o.Registry.End(roomID)
	if err != nil {
		return err
	}
	log.Info().
		Str("module", "app.orch").
		Str("room", string(roomID)).
		Int("participants", len(final.Participants)).
		Int("abandoned_waiting", len(final.WaitingList)).
		Msg("room ended")
	if o.OnRoomEnded != nil {
		o.OnRoomEnded(roomID)
	}
	return nil
}

// ExpireRooms ends every room past its validity window.
func (o *Orchestrator) ExpireRooms(ctx context.Context) int {
	now := o.now()
	n := 0
	for _, r := range o.Registry.List() {
		if !r.Expired(now) {
			continue
		}
		if err := o.EndRoom(ctx, r.ID); err == nil {
			n++
		}
	}
	return n
}

// RunJanitor expires rooms every interval until ctx is done.
func (o *Orchestrator) RunJanitor(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "app.orch").Msg("janitor stopped")
			return
		case <-t.C:
			if n := o.ExpireRooms(ctx); n > 0 {
				log.Info().Str("module", "app.orch").Int("expired", n).Msg("expired rooms ended")
			}
		}
	}
}
