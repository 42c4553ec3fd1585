package core

import "github.com/dkeye/Meet/internal/domain"

// Stable error codes carried in ErrorResponse.Code.
const (
	CodeRoomNotFound        = "room_not_found"
	CodeRoomInactive        = "room_inactive"
	CodeUserNotWaiting      = "user_not_waiting"
	CodeUserRemoved         = "user_removed"
	CodeUserNotFound        = "user_not_found"
	CodeInvalidRequest      = "invalid_request"
	CodeIdentityUnavailable = "identity_unavailable"
	CodeRateLimited         = "rate_limited"
	CodeInternal            = "internal"
)

// Wire shapes shared by the HTTP surface and its clients.

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type CreateRoomRequest struct {
	HostName string `json:"hostName"`
}

type JoinRoomRequest struct {
	UserName string `json:"userName"`
	IsHost   bool   `json:"isHost"`
}

type MediaRequest struct {
	IsMuted   *bool `json:"isMuted,omitempty"`
	IsVideoOn *bool `json:"isVideoOn,omitempty"`
}

type ApproveResponse struct {
	Success bool                `json:"success"`
	Message string              `json:"message"`
	User    *domain.Participant `json:"user"`
}

type UserStatusResponse struct {
	IsApproved bool                `json:"isApproved"`
	IsInRoom   bool                `json:"isInRoom"`
	IsWaiting  bool                `json:"isWaiting,omitempty"`
	User       *domain.Participant `json:"user,omitempty"`
}

type SuccessResponse struct {
	Success bool `json:"success"`
}

type WhoAmIResponse struct {
	ClientToken string        `json:"clientToken"`
	RoomID      domain.RoomID `json:"roomId,omitempty"`
	Identity    domain.UserID `json:"identity,omitempty"`
}
