package core

import (
	"context"
	"time"

	"github.com/dkeye/Meet/internal/domain"
)

//go:generate mockgen -source=interfaces.go -destination=mocks/interfaces_mock.go -package=mocks

// AccessToken is an opaque credential for the calling transport.
type AccessToken struct {
	Token     string    `json:"token"`
	ExpiresOn time.Time `json:"expiresOn"`
}

// IdentityProvider issues user handles and tokens for the calling transport.
// It holds no room state.
type IdentityProvider interface {
	CreateIdentity(ctx context.Context) (domain.UserID, error)
	IssueToken(ctx context.Context, id domain.UserID, scopes []string) (AccessToken, error)
}

type CreateRoomResult struct {
	RoomID       domain.RoomID `json:"roomId"`
	HostToken    string        `json:"hostToken"`
	HostIdentity domain.UserID `json:"hostIdentity"`
	ValidFrom    time.Time     `json:"validFrom"`
	ValidUntil   time.Time     `json:"validUntil"`
}

type JoinResult struct {
	UserToken       string        `json:"userToken"`
	UserIdentity    domain.UserID `json:"userIdentity"`
	IsInWaitingRoom bool          `json:"isInWaitingRoom"`
	RoomValidUntil  time.Time     `json:"roomValidUntil"`
}

// RoomStatus is a read-only view for APIs (no membership details).
type RoomStatus struct {
	ID               domain.RoomID `json:"id"`
	HostName         string        `json:"hostName"`
	ParticipantCount int           `json:"participantCount"`
	WaitingCount     int           `json:"waitingCount"`
	IsActive         bool          `json:"isActive"`
	CreatedAt        time.Time     `json:"createdAt"`
	ValidFrom        time.Time     `json:"validFrom"`
	ValidUntil       time.Time     `json:"validUntil"`
}

// StatusOf reports a room past its validity window as inactive even before
// the janitor ends it.
func StatusOf(r *domain.Room, now time.Time) RoomStatus {
	return RoomStatus{
		ID:               r.ID,
		HostName:         r.HostName,
		ParticipantCount: len(r.Participants),
		WaitingCount:     len(r.WaitingList),
		IsActive:         r.IsActive && !r.Expired(now),
		CreatedAt:        r.CreatedAt,
		ValidFrom:        r.ValidFrom,
		ValidUntil:       r.ValidUntil,
	}
}

type UserStatus struct {
	State       domain.MemberState
	Participant *domain.Participant
}

type ParticipantLocation struct {
	Found    bool                `json:"found"`
	Location string              `json:"location,omitempty"`
	User     *domain.Participant `json:"user,omitempty"`
}
