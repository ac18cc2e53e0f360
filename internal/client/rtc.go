package client

import (
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/mistikoda/arcana/internal/domain"
	"github.com/mistikoda/arcana/internal/protocol"
	"github.com/mistikoda/arcana/internal/rtc"
)

// Signaler returns an rtc.Signaler that rides this connection's room channel.
// Offers, answers and candidates go out as ordinary room events and reach
// only the other member.
func (c *Conn) Signaler() rtc.Signaler { return connSignaler{c} }

type connSignaler struct{ c *Conn }

func (s connSignaler) SendOffer(sdp string) {
	s.c.emit(protocol.TypeRTCOffer, protocol.SessionDescription{SDP: sdp})
}

func (s connSignaler) SendAnswer(sdp string) {
	s.c.emit(protocol.TypeRTCAnswer, protocol.SessionDescription{SDP: sdp})
}

func (s connSignaler) SendCandidate(cand webrtc.ICECandidateInit) {
	s.c.emit(protocol.TypeRTCCandidate, protocol.ICECandidate{
		Candidate:     cand.Candidate,
		SDPMid:        cand.SDPMid,
		SDPMLineIndex: cand.SDPMLineIndex,
	})
}

// AttachCall drives a call manager from this connection's room events:
// membership broadcasts start or reset the call, relayed offers, answers and
// candidates feed the handshake.
func (c *Conn) AttachCall(m *rtc.Manager) {
	sess := c.sess

	sess.OnPeerJoined(func(id domain.ParticipantID) {
		if !sess.placesCall(id) {
			m.PeerKnown(id)
			return
		}
		if err := m.PeerJoined(id); err != nil {
			log.Error().Err(err).Str("module", "client").Str("peer", string(id)).Msg("place call")
		}
	})
	sess.OnPeerLeft(func(domain.ParticipantID) { m.PeerLeft() })

	sess.OnRTCOffer(func(sdp string) {
		if err := m.HandleOffer(sdp); err != nil {
			log.Error().Err(err).Str("module", "client").Msg("handle offer")
		}
	})
	sess.OnRTCAnswer(func(sdp string) {
		if err := m.HandleAnswer(sdp); err != nil {
			log.Error().Err(err).Str("module", "client").Msg("handle answer")
		}
	})
	sess.OnRTCCandidate(func(cand protocol.ICECandidate) {
		err := m.HandleCandidate(webrtc.ICECandidateInit{
			Candidate:     cand.Candidate,
			SDPMid:        cand.SDPMid,
			SDPMLineIndex: cand.SDPMLineIndex,
		})
		if err != nil {
			log.Warn().Err(err).Str("module", "client").Msg("handle candidate")
		}
	})
}

// placesCall decides which side dials. Both members learn about each other
// (one from the roster, one from the join broadcast), so the choice has to be
// deterministic or both would offer at once: the consultant calls, and a
// same-role pair falls back to comparing participant ids.
func (s *Session) placesCall(peer domain.ParticipantID) bool {
	s.mu.Lock()
	peerRole := s.peers[peer]
	s.mu.Unlock()
	if s.role != peerRole {
		return s.role == domain.RoleConsultant
	}
	return s.self > peer
}
