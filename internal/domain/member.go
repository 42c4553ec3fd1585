package domain

import "time"

// Participant is a user's entry in either the participant set or the
// waiting list of a room. IsMuted and IsVideoOn reflect what the client
// reported, not the actual media state of its call.
type Participant struct {
	ID         UserID     `json:"id"`
	Name       string     `json:"name"`
	IsHost     bool       `json:"isHost"`
	IsMuted    bool       `json:"isMuted"`
	IsVideoOn  bool       `json:"isVideoOn"`
	IsApproved bool       `json:"isApproved,omitempty"`
	ApprovedAt *time.Time `json:"approvedAt,omitempty"`
	JoinedAt   time.Time  `json:"joinedAt"`
}

// NewParticipant avoids raw literals in adapters and keeps construction obvious.
func NewParticipant(id UserID, name string, isHost bool, now time.Time) (*Participant, error) {
	name, err := NormalizeName(name)
	if err != nil {
		return nil, err
	}
	return &Participant{
		ID:        id,
		Name:      name,
		IsHost:    isHost,
		IsVideoOn: true,
		JoinedAt:  now,
	}, nil
}

func (p *Participant) clone() *Participant {
	cp := *p
	if p.ApprovedAt != nil {
		at := *p.ApprovedAt
		cp.ApprovedAt = &at
	}
	return &cp
}

// MemberState is where a user currently sits in a room.
type MemberState int

const (
	StateRemoved MemberState = iota
	StateWaiting
	StateApproved
)

func (s MemberState) String() string {
	switch s {
	case StateApproved:
		return "approved"
	case StateWaiting:
		return "waiting"
	default:
		return "removed"
	}
}
