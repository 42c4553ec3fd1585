package core

import (
	"context"

	"github.com/dkeye/Meet/internal/domain"
	"github.com/pion/webrtc/v4"
)

// LocalMedia carries the tracks a client publishes. Nil tracks mean the
// session only receives.
type LocalMedia struct {
	Audio webrtc.TrackLocal
	Video webrtc.TrackLocal
}

type CallEventType string

const (
	CallMemberJoined CallEventType = "member_joined"
	CallMemberLeft   CallEventType = "member_left"
	CallRoomState    CallEventType = "room_state"
	CallTrackAdded   CallEventType = "track_added"
	CallError        CallEventType = "error"
	CallEnded        CallEventType = "ended"
)

type CallEvent struct {
	Type    CallEventType
	UserID  domain.UserID
	Name    string
	Kind    string
	Members int
	Err     string
}

// CallSession is an active audio/video connection for a room. It is
// started once a participant is approved and never touches room state.
type CallSession interface {
	Start(ctx context.Context, room domain.RoomID, media LocalMedia) error
	Join(ctx context.Context, room domain.RoomID, media LocalMedia) error
	Leave(ctx context.Context) error
	End(ctx context.Context) error
	Events() <-chan CallEvent
}

type MediaConnection interface {
	// Start configures internal callbacks and binds the connection lifetime to ctx.
	Start(ctx context.Context) error
	// Close should stop all underlying media resources.
	Close()
	// AddICECandidate applies a remote ICE candidate.
	AddICECandidate(webrtc.ICECandidateInit) error
	ApplyAnswer(webrtc.SessionDescription) error
	CreateAndSetOffer() (*webrtc.SessionDescription, error)
	ApplyOfferAndCreateAnswer(webrtc.SessionDescription) (*webrtc.SessionDescription, error)
	// OnTrack sets a callback that will be invoked when a new remote track arrives.
	OnTrack(func(ctx context.Context, track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver))
	// AddLocalTrack attaches a local track to the underlying PeerConnection.
	AddLocalTrack(track webrtc.TrackLocal) (*webrtc.RTPSender, error)
	// OnClosed sets a callback for cleanup media session.
	OnClosed(func())
}
