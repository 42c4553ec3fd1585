package signal

import (
	"context"

	"github.com/dkeye/Meet/internal/adapters/rtc"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

const rtpBufferSize = 1500

func (ctl *SignalWSController) handleOffer(ctx context.Context, cl *client, m rtc.Message) {
	if cl.room == "" {
		sendError(cl.conn, ErrCodeJoinFirst)
		return
	}
	if cl.pc != nil {
		cl.pc.Close()
		cl.pc = nil
	}

	pc, err := rtc.NewPeerConnection(rtc.WebRTCConfig(ctl.ICEServers), cl.user)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("webrtc new pc")
		sendError(cl.conn, ErrCodeBadOffer)
		return
	}
	pc.OnTrack(func(ctx context.Context, track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		go discard(ctx, track)
	})
	if err := pc.Start(ctx); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("webrtc start")
		pc.Close()
		sendError(cl.conn, ErrCodeBadOffer)
		return
	}

	answer, err := pc.ApplyOfferAndCreateAnswer(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: m.SDP})
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("user", string(cl.user)).Msg("webrtc apply offer")
		pc.Close()
		sendError(cl.conn, ErrCodeBadOffer)
		return
	}
	cl.pc = pc
	send(cl.conn, rtc.Message{Type: rtc.MsgAnswer, SDP: answer.SDP})
}

func (ctl *SignalWSController) handleCandidate(cl *client, m rtc.Message) {
	if cl.pc == nil {
		return
	}
	ci := webrtc.ICECandidateInit{Candidate: m.Candidate, SDPMid: m.SDPMid, SDPMLineIndex: m.SDPMLineIndex}
	if err := cl.pc.AddICECandidate(ci); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("user", string(cl.user)).Msg("add ice candidate")
	}
}

// discard reads a remote track so its buffers never fill.
func discard(ctx context.Context, track *webrtc.TrackRemote) {
	buf := make([]byte, rtpBufferSize)
	for ctx.Err() == nil {
		if _, _, err := track.Read(buf); err != nil {
			return
		}
	}
}
