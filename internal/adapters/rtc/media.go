package rtc

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"io"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

const (
	opusPayloadType = 111
	opusFrame       = 20 * time.Millisecond
	// 48 kHz clock, 20 ms per frame.
	opusSamplesPerFrame = 960
)

// opusSilence is a single Opus frame that decodes to silence.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

func NewAudioTrack(streamID string) (*webrtc.TrackLocalStaticRTP, error) {
	return webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
		"audio", streamID,
	)
}

// silencePackets yields consecutive RTP packets carrying Opus silence.
type silencePackets struct {
	seq uint16
	ts  uint32
}

func newSilencePackets() *silencePackets {
	var b [6]byte
	_, _ = rand.Read(b[:])
	return &silencePackets{
		seq: binary.BigEndian.Uint16(b[:2]),
		ts:  binary.BigEndian.Uint32(b[2:]),
	}
}

func (g *silencePackets) next() *rtp.Packet {
	pkt := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    opusPayloadType,
			SequenceNumber: g.seq,
			Timestamp:      g.ts,
		},
		Payload: opusSilence,
	}
	g.seq++
	g.ts += opusSamplesPerFrame
	return pkt
}

// PublishSilence keeps an audio track alive for clients without a
// microphone. It returns when ctx is done or the track is unbound.
func PublishSilence(ctx context.Context, track *webrtc.TrackLocalStaticRTP) error {
	gen := newSilencePackets()
	t := time.NewTicker(opusFrame)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if err := track.WriteRTP(gen.next()); err != nil {
				if errors.Is(err, io.ErrClosedPipe) {
					return nil
				}
				return err
			}
		}
	}
}
