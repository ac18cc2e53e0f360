package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/mistikoda/arcana/internal/app"
	"github.com/mistikoda/arcana/internal/domain"
	"github.com/mistikoda/arcana/internal/protocol"
)

// roomMember is the connection's binding once its join has been accepted.
type roomMember struct {
	room domain.RoomID
	id   domain.ParticipantID
	role domain.Role
}

// handleJoin processes the first envelope of a connection. On success the
// joiner alone receives the state snapshot, the rest of the room hears
// participant-joined.
func (ctl *Controller) handleJoin(c *wsConn, data []byte) *roomMember {
	var env protocol.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "adapters.signal").Msg("bad join frame")
		ctl.sendError(c, "bad_frame")
		return nil
	}
	if env.Type != protocol.TypeJoinRoom || env.Room == "" {
		ctl.sendError(c, "join_required")
		return nil
	}

	payload, err := protocol.Decode(env)
	if err != nil {
		log.Warn().Err(err).Str("module", "adapters.signal").Msg("bad join payload")
		ctl.sendError(c, "bad_payload")
		return nil
	}
	join := payload.(protocol.JoinRoom)

	pid := join.ParticipantID
	role, err := domain.ParseRole(string(join.Role))
	if err != nil {
		ctl.sendError(c, "bad_role")
		return nil
	}

	snap, err := ctl.Store.Join(env.Room, pid, role, c)
	if err != nil {
		log.Warn().Err(err).Str("module", "adapters.signal").
			Str("room", string(env.Room)).Str("participant", string(pid)).Msg("join rejected")
		ctl.sendError(c, "room_full")
		return nil
	}
	log.Info().Str("module", "adapters.signal").Str("room", string(env.Room)).
		Str("participant", string(pid)).Str("role", string(role)).Msg("join")

	ctl.sendSnapshot(c, env.Room, snap)
	ctl.Relay.Broadcast(env.Room, pid, protocol.TypeParticipantJoined,
		protocol.Participant{ParticipantID: pid, Role: role})

	return &roomMember{room: env.Room, id: pid, role: role}
}

// sendSnapshot delivers the room state to the joiner only.
func (ctl *Controller) sendSnapshot(c *wsConn, room domain.RoomID, snap app.Snapshot) {
	ctl.sendEvent(c, protocol.TypeSyncState, room, protocol.Cards{Cards: snap.Cards})
	ctl.sendEvent(c, protocol.TypeSyncLogs, room, protocol.Logs{Entries: snap.Logs})
	ctl.sendEvent(c, protocol.TypeSyncMessages, room, protocol.Messages{Messages: snap.Messages})
	if snap.Profile != nil {
		ctl.sendEvent(c, protocol.TypeSyncProfile, room, protocol.ProfilePayload{Profile: *snap.Profile})
	}
	if snap.Aura != "" {
		ctl.sendEvent(c, protocol.TypeAuraUpdated, room, protocol.Aura{Aura: snap.Aura})
	}
	// Roster: existing members, so the joiner knows who to expect a call
	// from.
	for _, peer := range snap.Peers {
		ctl.sendEvent(c, protocol.TypeParticipantJoined, room,
			protocol.Participant{ParticipantID: peer.ID, Role: peer.Role})
	}
}

// disconnect runs membership cleanup after the transport drops. The room
// itself stays alive; only the departure is announced.
func (ctl *Controller) disconnect(m *roomMember) {
	if m == nil {
		return
	}
	ctl.Store.Leave(m.room, m.id)
	ctl.Relay.Broadcast(m.room, m.id, protocol.TypeParticipantLeft,
		protocol.Participant{ParticipantID: m.id})
}

func (ctl *Controller) sendEvent(c *wsConn, t protocol.Type, room domain.RoomID, payload any) {
	env, err := protocol.Marshal(t, room, "", payload)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.signal").Str("type", string(t)).Msg("marshal")
		return
	}
	ctl.sendJSON(c, env)
}

func (ctl *Controller) sendError(c *wsConn, msg string) {
	env, err := protocol.Marshal(protocol.TypeError, "", "", protocol.Error{Error: msg})
	if err != nil {
		return
	}
	ctl.sendJSON(c, env)
}
