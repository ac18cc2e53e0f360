package rtc

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/mistikoda/arcana/internal/domain"
)

// State is the call-establishment phase. The machine is strictly bilateral.
type State int32

const (
	StateNoPeer State = iota
	StatePeerKnown
	StateCalling
	StateInCall
)

func (s State) String() string {
	switch s {
	case StateNoPeer:
		return "no-peer"
	case StatePeerKnown:
		return "peer-known"
	case StateCalling:
		return "calling"
	case StateInCall:
		return "in-call"
	}
	return "unknown"
}

// Signaler carries SDP and ICE to the remote side. In this product it rides
// the room's event channel; there is no dedicated signaling server.
type Signaler interface {
	SendOffer(sdp string)
	SendAnswer(sdp string)
	SendCandidate(c webrtc.ICECandidateInit)
}

// DefaultConfig mirrors the STUN set the product has always shipped with.
func DefaultConfig() webrtc.Configuration {
	return ConfigFromURLs([]string{
		"stun:stun.l.google.com:19302",
		"stun:global.stun.twilio.com:3478",
	})
}

// ConfigFromURLs builds a peer connection configuration from the STUN list
// served at /api/rtc-config.
func ConfigFromURLs(urls []string) webrtc.Configuration {
	servers := make([]webrtc.ICEServer, 0, len(urls))
	for _, u := range urls {
		servers = append(servers, webrtc.ICEServer{URLs: []string{u}})
	}
	return webrtc.Configuration{ICEServers: servers}
}

// Manager owns one peer connection and walks it through the call state
// machine: learn the peer id from the membership broadcast, call or answer,
// exchange trickle ICE.
type Manager struct {
	mu  sync.Mutex
	pc  *webrtc.PeerConnection
	cfg webrtc.Configuration

	media   *LocalMedia
	acquire Acquirer
	sig     Signaler

	state atomic.Int32
	peer  domain.ParticipantID

	// Candidates that arrived before the remote description; flushed after
	// SetRemoteDescription.
	pending []webrtc.ICECandidateInit

	onRemoteTrack func(*webrtc.TrackRemote)
	cancel        context.CancelFunc
}

func NewManager(cfg webrtc.Configuration, sig Signaler, acquire Acquirer) *Manager {
	if acquire == nil {
		acquire = NoDevices
	}
	return &Manager{cfg: cfg, sig: sig, acquire: acquire}
}

// OnRemoteTrack sets the callback invoked for each inbound media track.
func (m *Manager) OnRemoteTrack(fn func(*webrtc.TrackRemote)) {
	m.onRemoteTrack = fn
}

// Start acquires local media, falling back to the synthetic stream when the
// devices are unavailable, and prepares the peer connection. Signaling can
// proceed even when acquisition failed: the call degrades, it does not die.
func (m *Manager) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	media, err := m.acquire(ctx)
	if err != nil {
		log.Warn().Err(err).Str("module", "rtc").Msg("media acquisition failed, using synthetic stream")
		media, err = SyntheticMedia(ctx)
		if err != nil {
			cancel()
			return err
		}
	}
	m.media = media

	pc, err := webrtc.NewPeerConnection(m.cfg)
	if err != nil {
		media.Close()
		cancel()
		return err
	}
	m.pc = pc

	if _, err := pc.AddTrack(media.Audio); err != nil {
		m.Close()
		return err
	}
	if _, err := pc.AddTrack(media.Video); err != nil {
		m.Close()
		return err
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c != nil {
			m.sig.SendCandidate(c.ToJSON())
		}
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		log.Info().Str("module", "rtc").Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).Msg("remote track")
		if m.onRemoteTrack != nil {
			m.onRemoteTrack(track)
		}
	})

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "rtc").Str("peer_connection_state", s.String()).Msg("peer state")
		switch s {
		case webrtc.PeerConnectionStateConnected:
			m.state.Store(int32(StateInCall))
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			cancel()
		}
	})

	return nil
}

func (m *Manager) State() State               { return State(m.state.Load()) }
func (m *Manager) Peer() domain.ParticipantID { return m.peer }
func (m *Manager) Media() *LocalMedia         { return m.media }

// PeerKnown records a peer already present at join time. The resident side
// will place the call when it learns about us, so we only wait.
func (m *Manager) PeerKnown(id domain.ParticipantID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.peer = id
	m.state.CompareAndSwap(int32(StateNoPeer), int32(StatePeerKnown))
}

// PeerJoined reacts to the membership broadcast: the participant who learns
// of the peer places the outbound call with its local stream attached.
func (m *Manager) PeerJoined(id domain.ParticipantID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.peer = id
	m.state.Store(int32(StatePeerKnown))

	offer, err := m.pc.CreateOffer(nil)
	if err != nil {
		return err
	}
	if err := m.pc.SetLocalDescription(offer); err != nil {
		return err
	}
	m.state.Store(int32(StateCalling))
	m.sig.SendOffer(offer.SDP)
	return nil
}

// HandleOffer answers an incoming call automatically with our own stream.
func (m *Manager) HandleOffer(sdp string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer, SDP: sdp,
	}); err != nil {
		return err
	}
	m.flushPendingLocked()

	answer, err := m.pc.CreateAnswer(nil)
	if err != nil {
		return err
	}
	if err := m.pc.SetLocalDescription(answer); err != nil {
		return err
	}
	m.state.Store(int32(StateCalling))
	m.sig.SendAnswer(answer.SDP)
	return nil
}

// HandleAnswer completes the handshake we initiated.
func (m *Manager) HandleAnswer(sdp string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer, SDP: sdp,
	}); err != nil {
		return err
	}
	m.flushPendingLocked()
	return nil
}

// HandleCandidate applies a remote ICE candidate, buffering it when the
// remote description has not landed yet.
func (m *Manager) HandleCandidate(c webrtc.ICECandidateInit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pc.RemoteDescription() == nil {
		m.pending = append(m.pending, c)
		return nil
	}
	return m.pc.AddICECandidate(c)
}

func (m *Manager) flushPendingLocked() {
	for _, c := range m.pending {
		if err := m.pc.AddICECandidate(c); err != nil {
			log.Warn().Err(err).Str("module", "rtc").Msg("buffered candidate")
		}
	}
	m.pending = nil
}

// PeerLeft resets the machine; the room survives and so do we, waiting for
// the next membership broadcast.
func (m *Manager) PeerLeft() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.peer = ""
	m.state.Store(int32(StateNoPeer))
}

// SetMuted toggles outbound audio without renegotiation.
func (m *Manager) SetMuted(muted bool) {
	if m.media != nil {
		m.media.SetAudioEnabled(!muted)
	}
}

// SetVideoOff toggles outbound video without renegotiation.
func (m *Manager) SetVideoOff(off bool) {
	if m.media != nil {
		m.media.SetVideoEnabled(!off)
	}
}

func (m *Manager) Close() {
	if m.cancel != nil {
		m.cancel()
	}
	if m.media != nil {
		m.media.Close()
	}
	if m.pc != nil {
		if err := m.pc.Close(); err != nil {
			log.Error().Err(err).Str("module", "rtc").Msg("close")
		}
	}
}
