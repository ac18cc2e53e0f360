// Package rtc establishes the bilateral audio/video call: pion peer
// connection lifecycle, offer/answer signaling over the room channel and a
// synthetic-media fallback for participants without a camera or microphone.
package rtc

import (
	"context"
	"errors"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

var ErrNoDevice = errors.New("no media device available")

// Acquirer obtains the local capture tracks. Browsers hand us real devices;
// headless peers and denied permissions end up in the synthetic fallback.
type Acquirer func(ctx context.Context) (*LocalMedia, error)

// NoDevices is the Acquirer for an environment with no capture hardware.
func NoDevices(ctx context.Context) (*LocalMedia, error) {
	return nil, ErrNoDevice
}

// LocalMedia is the pair of outgoing tracks. Both kinds are always present:
// negotiation is per transceiver, and a participant that sends nothing still
// has to advertise matching track types to receive the remote side's media.
type LocalMedia struct {
	Audio *webrtc.TrackLocalStaticRTP
	Video *webrtc.TrackLocalStaticRTP

	synthetic bool
	audioOn   atomic.Bool
	videoOn   atomic.Bool
	cancel    context.CancelFunc
}

func (m *LocalMedia) Synthetic() bool { return m.synthetic }

// SetAudioEnabled gates the audio writer. Disabling stops data without
// renegotiation, so resuming is instant.
func (m *LocalMedia) SetAudioEnabled(on bool) { m.audioOn.Store(on) }
func (m *LocalMedia) SetVideoEnabled(on bool) { m.videoOn.Store(on) }
func (m *LocalMedia) AudioEnabled() bool      { return m.audioOn.Load() }
func (m *LocalMedia) VideoEnabled() bool      { return m.videoOn.Load() }

func (m *LocalMedia) Close() {
	if m.cancel != nil {
		m.cancel()
	}
}

const (
	syntheticVideoInterval = time.Second
	syntheticAudioInterval = 100 * time.Millisecond

	videoClockRate = 90000
	audioClockRate = 48000
)

// opusSilence is a single DTX comfort-noise frame.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

// blankVP8 is an opaque minimal payload; it only needs to keep the
// transceiver negotiated, not to decode into a picture.
var blankVP8 = []byte{0x10, 0x00, 0x9d, 0x01, 0x2a, 0x01, 0x00, 0x01, 0x00}

// SyntheticMedia builds the fallback stream: a blank video track written at
// about one frame per second and a silent audio track. Tracks start
// disabled, mirroring a participant that joined muted.
func SyntheticMedia(ctx context.Context) (*LocalMedia, error) {
	video, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: videoClockRate},
		"video", "synthetic",
	)
	if err != nil {
		return nil, err
	}
	audio, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: audioClockRate, Channels: 2},
		"audio", "synthetic",
	)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	m := &LocalMedia{Audio: audio, Video: video, synthetic: true, cancel: cancel}

	go m.writeSynthetic(ctx, video, blankVP8, syntheticVideoInterval, videoClockRate, &m.videoOn)
	go m.writeSynthetic(ctx, audio, opusSilence, syntheticAudioInterval, audioClockRate, &m.audioOn)
	return m, nil
}

// writeSynthetic pushes one RTP packet per tick while the track is enabled.
func (m *LocalMedia) writeSynthetic(ctx context.Context, track *webrtc.TrackLocalStaticRTP, payload []byte, interval time.Duration, clockRate uint32, enabled *atomic.Bool) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	step := uint32(float64(clockRate) * interval.Seconds())
	pkt := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			Marker:         true,
			SequenceNumber: uint16(rand.Intn(1 << 16)),
			Timestamp:      rand.Uint32(),
			SSRC:           rand.Uint32(),
		},
		Payload: payload,
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pkt.Header.SequenceNumber++
			pkt.Header.Timestamp += step
			if !enabled.Load() {
				continue
			}
			if err := track.WriteRTP(pkt); err != nil {
				log.Debug().Err(err).Str("module", "rtc").Str("kind", track.Kind().String()).Msg("synthetic write")
			}
		}
	}
}
