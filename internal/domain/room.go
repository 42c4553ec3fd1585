package domain

import (
	"sort"
	"time"
)

type RoomID string

// Room is an ephemeral meeting. A user id is a key of at most one of
// Participants and WaitingList, and the host always stays in Participants.
type Room struct {
	ID         RoomID
	HostID     UserID
	HostName   string
	IsActive   bool
	CreatedAt  time.Time
	ValidFrom  time.Time
	ValidUntil time.Time

	Participants map[UserID]*Participant
	WaitingList  map[UserID]*Participant
}

func NewRoom(id RoomID, host *Participant, now time.Time, ttl time.Duration) *Room {
	host.IsHost = true
	r := &Room{
		ID:           id,
		HostID:       host.ID,
		HostName:     host.Name,
		IsActive:     true,
		CreatedAt:    now,
		ValidFrom:    now,
		ValidUntil:   now.Add(ttl),
		Participants: map[UserID]*Participant{host.ID: host},
		WaitingList:  make(map[UserID]*Participant),
	}
	return r
}

func (r *Room) has(id UserID) bool {
	_, inRoom := r.Participants[id]
	_, waiting := r.WaitingList[id]
	return inRoom || waiting
}

func (r *Room) AddParticipant(p *Participant) error {
	if r.has(p.ID) {
		return ErrAlreadyMember
	}
	r.Participants[p.ID] = p
	return nil
}

func (r *Room) AddWaiting(p *Participant) error {
	if r.has(p.ID) {
		return ErrAlreadyMember
	}
	r.WaitingList[p.ID] = p
	return nil
}

// Approve moves a waiting user into the participant set.
func (r *Room) Approve(id UserID, now time.Time) (*Participant, error) {
	p, ok := r.WaitingList[id]
	if !ok {
		return nil, ErrUserNotWaiting
	}
	delete(r.WaitingList, id)
	at := now
	p.IsApproved = true
	p.ApprovedAt = &at
	r.Participants[id] = p
	return p.clone(), nil
}

// Remove drops id from whichever collection holds it. The host entry is
// kept: a room loses its host only by ending.
func (r *Room) Remove(id UserID) bool {
	if id == r.HostID {
		return false
	}
	if _, ok := r.Participants[id]; ok {
		delete(r.Participants, id)
		return true
	}
	if _, ok := r.WaitingList[id]; ok {
		delete(r.WaitingList, id)
		return true
	}
	return false
}

func (r *Room) StateOf(id UserID) (MemberState, *Participant) {
	if p, ok := r.Participants[id]; ok {
		return StateApproved, p.clone()
	}
	if p, ok := r.WaitingList[id]; ok {
		return StateWaiting, p.clone()
	}
	return StateRemoved, nil
}

// SetMedia applies client-reported toggles. Nil leaves a flag untouched.
func (r *Room) SetMedia(id UserID, muted, videoOn *bool) (*Participant, error) {
	p, ok := r.Participants[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	if muted != nil {
		p.IsMuted = *muted
	}
	if videoOn != nil {
		p.IsVideoOn = *videoOn
	}
	return p.clone(), nil
}

func (r *Room) Deactivate() { r.IsActive = false }

func (r *Room) Expired(now time.Time) bool {
	return !r.ValidUntil.IsZero() && now.After(r.ValidUntil)
}

// Clone returns a deep copy safe to hand out after the room lock is released.
func (r *Room) Clone() *Room {
	cp := *r
	cp.Participants = make(map[UserID]*Participant, len(r.Participants))
	for id, p := range r.Participants {
		cp.Participants[id] = p.clone()
	}
	cp.WaitingList = make(map[UserID]*Participant, len(r.WaitingList))
	for id, p := range r.WaitingList {
		cp.WaitingList[id] = p.clone()
	}
	return &cp
}

func (r *Room) ParticipantList() []Participant { return sortedByJoin(r.Participants) }

func (r *Room) WaitingSnapshot() []Participant { return sortedByJoin(r.WaitingList) }

func sortedByJoin(m map[UserID]*Participant) []Participant {
	out := make([]Participant, 0, len(m))
	for _, p := range m {
		out = append(out, *p.clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].JoinedAt.Before(out[j].JoinedAt)
	})
	return out
}
