// Package rtc is the client side of the calling transport: a pion
// PeerConnection negotiated over a websocket signaling channel.
package rtc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrAlreadyStarted = errors.New("call session already started")
	ErrSessionEnded   = errors.New("call session ended")
)

const (
	roleHost  = "host"
	roleGuest = "guest"
)

type Options struct {
	SignalURL  string
	ICEServers []string
	UserID     domain.UserID
	Name       string
	// Token is the access token issued with the room identity.
	Token  string
	Dialer *websocket.Dialer
}

// Session implements core.CallSession. It knows nothing about the room
// registry; membership comes from the signaling server.
type Session struct {
	opts   Options
	logger zerolog.Logger

	mu         sync.Mutex
	room       domain.RoomID
	conn       *SignalConn
	pc         *PeerConnection
	cancel     context.CancelFunc
	writerDone chan struct{}
	ended      bool

	evMu   sync.RWMutex
	events chan core.CallEvent
	closed bool
}

var _ core.CallSession = (*Session)(nil)

func NewSession(opts Options) *Session {
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	return &Session{
		opts:   opts,
		logger: log.With().Str("module", "rtc").Str("user", string(opts.UserID)).Logger(),
		events: make(chan core.CallEvent, 64),
	}
}

func (s *Session) Events() <-chan core.CallEvent { return s.events }

// Start opens the call as the room host.
func (s *Session) Start(ctx context.Context, room domain.RoomID, media core.LocalMedia) error {
	return s.connect(ctx, room, roleHost, media)
}

// Join opens the call as an approved guest.
func (s *Session) Join(ctx context.Context, room domain.RoomID, media core.LocalMedia) error {
	return s.connect(ctx, room, roleGuest, media)
}

func (s *Session) connect(ctx context.Context, room domain.RoomID, role string, media core.LocalMedia) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.ended:
		return ErrSessionEnded
	case s.conn != nil:
		return ErrAlreadyStarted
	}

	ws, _, err := s.opts.Dialer.DialContext(ctx, s.opts.SignalURL, nil)
	if err != nil {
		return fmt.Errorf("dial signaling: %w", err)
	}

	pc, err := NewPeerConnection(WebRTCConfig(s.opts.ICEServers), s.opts.UserID)
	if err != nil {
		_ = ws.Close()
		return fmt.Errorf("peer connection: %w", err)
	}

	sessCtx, cancel := context.WithCancel(context.Background())
	pc.OnTrack(func(_ context.Context, track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		s.emit(core.CallEvent{Type: core.CallTrackAdded, Kind: track.Kind().String()})
	})
	pc.OnClosed(func() {
		s.logger.Info().Msg("peer connection closed")
	})
	if err := pc.Start(sessCtx); err != nil {
		cancel()
		pc.Close()
		_ = ws.Close()
		return err
	}
	if err := attachMedia(pc, media); err != nil {
		cancel()
		pc.Close()
		_ = ws.Close()
		return fmt.Errorf("attach media: %w", err)
	}

	conn := NewSignalConn(ws)
	s.room, s.conn, s.pc, s.cancel = room, conn, pc, cancel
	s.writerDone = make(chan struct{})

	go func(done chan struct{}) {
		defer close(done)
		conn.WritePump(sessCtx)
	}(s.writerDone)
	go s.read(conn)

	if err := conn.TrySend(Message{
		Type:  MsgJoin,
		Room:  room,
		User:  s.opts.UserID,
		Name:  s.opts.Name,
		Role:  role,
		Token: s.opts.Token,
	}); err != nil {
		s.teardownLocked()
		return fmt.Errorf("send join: %w", err)
	}

	offer, err := pc.CreateAndSetOffer()
	if err != nil {
		s.teardownLocked()
		return fmt.Errorf("create offer: %w", err)
	}
	if err := conn.TrySend(Message{Type: MsgOffer, SDP: offer.SDP}); err != nil {
		s.teardownLocked()
		return fmt.Errorf("send offer: %w", err)
	}

	s.logger.Info().Str("room", string(room)).Str("role", role).Msg("call session started")
	return nil
}

func attachMedia(pc *PeerConnection, media core.LocalMedia) error {
	if media.Audio != nil {
		if _, err := pc.AddLocalTrack(media.Audio); err != nil {
			return err
		}
	} else if err := pc.AddReceiveOnly(webrtc.RTPCodecTypeAudio); err != nil {
		return err
	}
	if media.Video != nil {
		if _, err := pc.AddLocalTrack(media.Video); err != nil {
			return err
		}
	} else if err := pc.AddReceiveOnly(webrtc.RTPCodecTypeVideo); err != nil {
		return err
	}
	return nil
}

func (s *Session) read(conn *SignalConn) {
	err := conn.ReadPump(func(m Message) { s.handle(conn, m) })

	s.mu.Lock()
	current := s.conn == conn
	var cancel context.CancelFunc
	if current {
		s.teardownLocked()
		cancel, s.cancel, s.writerDone = s.cancel, nil, nil
	}
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	if current {
		s.logger.Warn().Err(err).Msg("signaling closed")
		s.emit(core.CallEvent{Type: core.CallError, Err: "signaling closed"})
	}
}

func (s *Session) handle(conn *SignalConn, m Message) {
	switch m.Type {
	case MsgAnswer:
		s.mu.Lock()
		pc := s.pc
		s.mu.Unlock()
		if pc == nil {
			return
		}
		if err := pc.ApplyAnswer(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: m.SDP}); err != nil {
			s.logger.Error().Err(err).Msg("apply answer")
			s.emit(core.CallEvent{Type: core.CallError, Err: err.Error()})
		}
	case MsgCandidate:
		s.mu.Lock()
		pc := s.pc
		s.mu.Unlock()
		if pc == nil {
			return
		}
		ci := webrtc.ICECandidateInit{Candidate: m.Candidate, SDPMid: m.SDPMid, SDPMLineIndex: m.SDPMLineIndex}
		if err := pc.AddICECandidate(ci); err != nil {
			s.logger.Error().Err(err).Msg("add ice candidate")
		}
	case MsgPing:
		_ = conn.TrySend(Message{Type: MsgPong})
	case MsgPong:
	case MsgRoomState:
		s.emit(core.CallEvent{Type: core.CallRoomState, Members: m.Count})
	case MsgMemberJoined:
		s.emit(core.CallEvent{Type: core.CallMemberJoined, UserID: m.User, Name: m.Name, Members: m.Count})
	case MsgMemberLeft:
		s.emit(core.CallEvent{Type: core.CallMemberLeft, UserID: m.User, Name: m.Name, Members: m.Count})
	case MsgError:
		s.emit(core.CallEvent{Type: core.CallError, Err: m.Error})
	default:
		s.logger.Warn().Str("type", m.Type).Msg("unknown signal")
	}
}

// emit never blocks; a consumer that falls behind loses events.
func (s *Session) emit(ev core.CallEvent) {
	s.evMu.RLock()
	defer s.evMu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.events <- ev:
	default:
		s.logger.Warn().Str("event", string(ev.Type)).Msg("event dropped")
	}
}

// Leave tells the server and drops the connection. It is a no-op when the
// session is not connected.
func (s *Session) Leave(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	if err := s.conn.TrySend(Message{Type: MsgLeave, Room: s.room, User: s.opts.UserID}); err != nil {
		s.logger.Warn().Err(err).Msg("send leave")
	}
	s.teardownLocked()
	s.waitWriter(ctx)
	s.logger.Info().Str("room", string(s.room)).Msg("left call")
	return nil
}

// End leaves the call and closes Events after a final CallEnded.
func (s *Session) End(ctx context.Context) error {
	if err := s.Leave(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	already := s.ended
	s.ended = true
	s.mu.Unlock()
	if already {
		return nil
	}

	s.emit(core.CallEvent{Type: core.CallEnded})
	s.evMu.Lock()
	s.closed = true
	close(s.events)
	s.evMu.Unlock()
	return nil
}

func (s *Session) teardownLocked() {
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	if s.pc != nil {
		s.pc.Close()
		s.pc = nil
	}
}

// waitWriter gives the write pump a moment to flush leave before the
// session context goes away.
func (s *Session) waitWriter(ctx context.Context) {
	done, cancel := s.writerDone, s.cancel
	s.writerDone, s.cancel = nil, nil
	if done != nil {
		t := time.NewTimer(writeWait)
		select {
		case <-done:
		case <-ctx.Done():
		case <-t.C:
		}
		t.Stop()
	}
	if cancel != nil {
		cancel()
	}
}
