package app

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/mistikoda/arcana/internal/core"
	"github.com/mistikoda/arcana/internal/domain"
	"github.com/mistikoda/arcana/internal/protocol"
)

// Relay routes each inbound event to its room mutation and fans the
// confirmed event out per the event's policy. The room mutex is held for the
// whole of Dispatch, so a room processes one event fully before the next.
//
// Every send is fire and forget: a frame a slow member cannot take is
// dropped, and convergence is restored only by a later full-state event.
type Relay struct {
	store *Store
}

func NewRelay(store *Store) *Relay {
	return &Relay{store: store}
}

// Dispatch decodes, applies and relays one client envelope. A failure is
// scoped to that event: the sender gets an error frame, the room is untouched.
func (rl *Relay) Dispatch(roomID domain.RoomID, sender domain.ParticipantID, conn core.SignalConnection, data []byte) {
	var env protocol.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "app.relay").Str("room", string(roomID)).Msg("bad frame")
		rl.sendError(conn, "bad_frame")
		return
	}
	env.Room = roomID
	env.Sender = sender

	payload, err := protocol.Decode(env)
	if err != nil {
		log.Warn().Err(err).Str("module", "app.relay").Str("room", string(roomID)).
			Str("type", string(env.Type)).Msg("rejected event")
		rl.sendError(conn, "bad_payload")
		return
	}

	if env.Type == protocol.TypePing {
		rl.send(conn, protocol.TypePong, roomID, "", nil)
		return
	}

	// Dispatch only runs for joined members, so the room must already exist;
	// never create one here.
	r, ok := rl.store.lookup(roomID)
	if !ok {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	out, ok := apply(r, env.Type, payload)
	if !ok {
		return
	}

	outType := protocol.Outbound(env.Type)
	frame, err := encodeFrame(outType, roomID, sender, out)
	if err != nil {
		log.Error().Err(err).Str("module", "app.relay").Str("type", string(outType)).Msg("encode")
		return
	}

	switch protocol.Fanout(env.Type) {
	case protocol.RouteAll:
		rl.fanout(r, "", frame)
	case protocol.RouteOthers:
		rl.fanout(r, sender, frame)
	}
}

// Broadcast sends a server-originated event to a room, minus exclude when
// set. Used by the transport adapter for membership announcements.
func (rl *Relay) Broadcast(roomID domain.RoomID, exclude domain.ParticipantID, t protocol.Type, payload any) {
	frame, err := encodeFrame(t, roomID, "", payload)
	if err != nil {
		log.Error().Err(err).Str("module", "app.relay").Str("type", string(t)).Msg("encode")
		return
	}
	r, ok := rl.store.lookup(roomID)
	if !ok {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	rl.fanout(r, exclude, frame)
}

// apply mutates room state for one decoded event and returns the payload to
// relay. ok is false when nothing should be broadcast (e.g. an update for a
// card this room has never seen).
func apply(r *roomState, t protocol.Type, payload any) (out any, ok bool) {
	switch t {
	case protocol.TypeAddCard:
		p := payload.(protocol.CardPayload)
		upsertCard(r, p.Card)
		return p, true
	case protocol.TypeUpdateCard:
		p := payload.(protocol.CardPayload)
		if !replaceCard(r, p.Card) {
			return nil, false
		}
		return p, true
	case protocol.TypeFlipCard:
		p := payload.(protocol.FlipCard)
		if !flipCard(r, p) {
			return nil, false
		}
		return p, true
	case protocol.TypeSyncAllCards:
		p := payload.(protocol.Cards)
		r.cards = append([]domain.Card(nil), p.Cards...)
		return protocol.Cards{Cards: p.Cards}, true
	case protocol.TypeClearTable:
		r.cards = nil
		return protocol.Cards{Cards: []domain.Card{}}, true
	case protocol.TypeActivityLog:
		p := payload.(protocol.ActivityLog)
		r.logs.Append(p.Entry)
		return p, true
	case protocol.TypeChatMessage:
		p := payload.(protocol.ChatMessage)
		r.chat.Append(p.Message)
		return p, true
	case protocol.TypeUpdateProfile:
		p := payload.(protocol.ProfilePayload)
		profile := p.Profile
		r.profile = &profile
		return p, true
	case protocol.TypeUpdateAura:
		p := payload.(protocol.Aura)
		r.aura = p.Aura
		return p, true
	case protocol.TypeCursorMove, protocol.TypeTyping,
		protocol.TypeRTCOffer, protocol.TypeRTCAnswer, protocol.TypeRTCCandidate:
		// Transient signals: relayed, never stored.
		return payload, true
	}
	return nil, false
}

// upsertCard replaces the whole card when the id is known and appends it
// otherwise. Re-applying an add is idempotent.
func upsertCard(r *roomState, c domain.Card) {
	for i := range r.cards {
		if r.cards[i].ID == c.ID {
			r.cards[i] = c
			return
		}
	}
	r.cards = append(r.cards, c)
}

// replaceCard is a whole-object write, never a field merge: concurrent
// updates to one card converge to whichever the relay processes last.
func replaceCard(r *roomState, c domain.Card) bool {
	for i := range r.cards {
		if r.cards[i].ID == c.ID {
			r.cards[i] = c
			return true
		}
	}
	return false
}

func flipCard(r *roomState, p protocol.FlipCard) bool {
	for i := range r.cards {
		if r.cards[i].ID == p.CardID {
			r.cards[i].IsReversed = p.IsReversed
			r.cards[i].IsFlipped = p.IsFlipped
			// Any flip event means an orientation has been assigned; a later
			// reveal by another member must reuse it, not roll again.
			r.cards[i].Oriented = true
			return true
		}
	}
	return false
}

func (rl *Relay) fanout(r *roomState, exclude domain.ParticipantID, frame core.Frame) {
	sent, dropped := 0, 0
	for pid, m := range r.members {
		if pid == exclude {
			continue
		}
		if err := m.conn.TrySend(frame); err != nil {
			dropped++
			continue
		}
		sent++
	}
	if dropped > 0 {
		log.Warn().Str("module", "app.relay").Str("room", string(r.id)).
			Int("sent", sent).Int("dropped", dropped).Msg("fanout dropped frames")
	}
}

func (rl *Relay) send(conn core.SignalConnection, t protocol.Type, room domain.RoomID, sender domain.ParticipantID, payload any) {
	frame, err := encodeFrame(t, room, sender, payload)
	if err != nil {
		log.Error().Err(err).Str("module", "app.relay").Str("type", string(t)).Msg("encode")
		return
	}
	_ = conn.TrySend(frame)
}

func (rl *Relay) sendError(conn core.SignalConnection, msg string) {
	rl.send(conn, protocol.TypeError, "", "", protocol.Error{Error: msg})
}

func encodeFrame(t protocol.Type, room domain.RoomID, sender domain.ParticipantID, payload any) (core.Frame, error) {
	env, err := protocol.Marshal(t, room, sender, payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(env)
}
