// Package client mirrors one participant's view of a room. Local mutations
// apply optimistically and go out fire-and-forget; remote events reconcile
// the mirror on receipt. There is no request/response correlation anywhere.
package client

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mistikoda/arcana/internal/domain"
	"github.com/mistikoda/arcana/internal/protocol"
	"github.com/mistikoda/arcana/internal/tabletop"
)

const (
	cursorThrottle = 50 * time.Millisecond
	logCapacity    = 50
	chatCapacity   = 100
)

// Emitter sends one event toward the room channel. Sends never block and are
// never acknowledged.
type Emitter interface {
	Emit(t protocol.Type, payload any)
}

// EmitterFunc adapts a function to the Emitter interface.
type EmitterFunc func(t protocol.Type, payload any)

func (f EmitterFunc) Emit(t protocol.Type, payload any) { f(t, payload) }

// Session is the per-client controller: a derived, possibly stale copy of
// the room reconciled only through relayed events.
type Session struct {
	mu sync.Mutex

	room domain.RoomID
	self domain.ParticipantID
	role domain.Role

	emit   Emitter
	engine *tabletop.Engine

	cards    []domain.Card
	logs     []domain.LogEntry
	messages []domain.ChatMessage
	cursors  map[domain.ParticipantID]domain.Cursor
	peers    map[domain.ParticipantID]domain.Role
	profile  *domain.Profile
	aura     string
	maxZ     int

	remoteTyping bool
	lastCursorAt time.Time

	// onPeer fires when a remote participant becomes known, so the call
	// layer can start dialing.
	onPeer func(domain.ParticipantID)
	onLeft func(domain.ParticipantID)

	// Call signaling relayed from the peer; see Conn.AttachCall.
	onOffer     func(string)
	onAnswer    func(string)
	onCandidate func(protocol.ICECandidate)
}

func NewSession(room domain.RoomID, self domain.ParticipantID, role domain.Role, emit Emitter, engine *tabletop.Engine) *Session {
	if engine == nil {
		engine = tabletop.New(nil)
	}
	return &Session{
		room:    room,
		self:    self,
		role:    role,
		emit:    emit,
		engine:  engine,
		cursors: make(map[domain.ParticipantID]domain.Cursor),
		peers:   make(map[domain.ParticipantID]domain.Role),
	}
}

func (s *Session) OnPeerJoined(fn func(domain.ParticipantID)) { s.onPeer = fn }
func (s *Session) OnPeerLeft(fn func(domain.ParticipantID))   { s.onLeft = fn }

func (s *Session) OnRTCOffer(fn func(string))                    { s.onOffer = fn }
func (s *Session) OnRTCAnswer(fn func(string))                   { s.onAnswer = fn }
func (s *Session) OnRTCCandidate(fn func(protocol.ICECandidate)) { s.onCandidate = fn }

func (s *Session) Self() domain.ParticipantID { return s.self }
func (s *Session) Room() domain.RoomID        { return s.room }
func (s *Session) Role() domain.Role          { return s.role }

// Cards returns a copy of the mirror's card list.
func (s *Session) Cards() []domain.Card {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Card(nil), s.cards...)
}

func (s *Session) Logs() []domain.LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.LogEntry(nil), s.logs...)
}

func (s *Session) Messages() []domain.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.ChatMessage(nil), s.messages...)
}

func (s *Session) Profile() *domain.Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profile
}

func (s *Session) Aura() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aura
}

func (s *Session) RemoteTyping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remoteTyping
}

func (s *Session) Cursor(pid domain.ParticipantID) (domain.Cursor, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cursors[pid]
	return c, ok
}

func (s *Session) Peers() map[domain.ParticipantID]domain.Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[domain.ParticipantID]domain.Role, len(s.peers))
	for k, v := range s.peers {
		out[k] = v
	}
	return out
}

// Local-origin mutations: apply to the mirror, then emit.

// DrawCard deals a single card optimistically and announces it.
func (s *Session) DrawCard(deck string) domain.Card {
	s.mu.Lock()
	card := s.engine.Draw(deck, s.maxZ)
	s.maxZ = card.ZIndex
	s.cards = append(s.cards, card)
	s.mu.Unlock()
	s.emit.Emit(protocol.TypeAddCard, protocol.CardPayload{Card: card})
	return card
}

// DealPackage lays out the spread requested by the stored client profile.
func (s *Session) DealPackage() []domain.Card {
	s.mu.Lock()
	profile := domain.Profile{}
	if s.profile != nil {
		profile = *s.profile
	}
	spread := s.engine.DealPackage(profile, s.maxZ)
	s.maxZ = tabletop.MaxZ(append(spread, s.cards...))
	s.cards = append(s.cards, spread...)
	s.mu.Unlock()
	for _, c := range spread {
		s.emit.Emit(protocol.TypeAddCard, protocol.CardPayload{Card: c})
	}
	return spread
}

// Grab raises a card at pointer-acquire time, before any drag commits.
func (s *Session) Grab(id domain.CardID) {
	s.mu.Lock()
	card, ok := s.mutate(id, func(c domain.Card) domain.Card {
		c = tabletop.Grab(c, s.maxZ)
		s.maxZ = c.ZIndex
		return c
	})
	s.mu.Unlock()
	if ok {
		s.emit.Emit(protocol.TypeUpdateCard, protocol.CardPayload{Card: card})
	}
}

// DragEnd commits a drag's final position.
func (s *Session) DragEnd(id domain.CardID, x, y float64) {
	s.mu.Lock()
	card, ok := s.mutate(id, func(c domain.Card) domain.Card {
		return tabletop.DragEnd(c, x, y)
	})
	s.mu.Unlock()
	if ok {
		s.emit.Emit(protocol.TypeUpdateCard, protocol.CardPayload{Card: card})
	}
}

// ToggleFlip reveals a face-down card or hides a face-up one.
func (s *Session) ToggleFlip(id domain.CardID) {
	s.mu.Lock()
	card, ok := s.mutate(id, s.engine.Toggle)
	s.mu.Unlock()
	if ok {
		s.emit.Emit(protocol.TypeFlipCard, protocol.FlipCard{
			CardID:     card.ID,
			IsReversed: card.IsReversed,
			IsFlipped:  card.IsFlipped,
		})
	}
}

// ClearTable empties the local table and asks the room to follow.
func (s *Session) ClearTable() {
	s.mu.Lock()
	s.cards = nil
	s.maxZ = 0
	s.mu.Unlock()
	s.emit.Emit(protocol.TypeClearTable, nil)
}

// ResyncAll pushes the local mirror as the room's full state. This is the
// only convergence mechanism after a silently dropped broadcast.
func (s *Session) ResyncAll() {
	s.mu.Lock()
	cards := append([]domain.Card(nil), s.cards...)
	s.mu.Unlock()
	s.emit.Emit(protocol.TypeSyncAllCards, protocol.Cards{Cards: cards})
}

// SendChat sends a text message.
func (s *Session) SendChat(text string) {
	s.sendMessage(domain.ChatMessage{
		ID:        newID(),
		Sender:    s.role,
		Text:      text,
		Timestamp: time.Now().Format("15:04"),
	})
}

// SendVoice sends a recorded voice message by reference.
func (s *Session) SendVoice(audioRef string) {
	s.sendMessage(domain.ChatMessage{
		ID:        newID(),
		Sender:    s.role,
		AudioRef:  audioRef,
		Timestamp: time.Now().Format("15:04"),
	})
}

func (s *Session) sendMessage(msg domain.ChatMessage) {
	if msg.Validate() != nil {
		return
	}
	s.mu.Lock()
	s.messages = appendBounded(s.messages, msg, chatCapacity)
	s.mu.Unlock()
	s.emit.Emit(protocol.TypeChatMessage, protocol.ChatMessage{Message: msg})
}

// AppendLog records an activity line and shares it with the room.
func (s *Session) AppendLog(message string) {
	entry := domain.LogEntry{
		ID:        newID(),
		Message:   message,
		Timestamp: time.Now().Format("15:04"),
		AuthorID:  string(s.self),
	}
	s.mu.Lock()
	s.logs = appendBounded(s.logs, entry, logCapacity)
	s.mu.Unlock()
	s.emit.Emit(protocol.TypeActivityLog, protocol.ActivityLog{Entry: entry})
}

// SetTyping reports the typing indicator.
func (s *Session) SetTyping(typing bool) {
	s.emit.Emit(protocol.TypeTyping, protocol.Typing{Typing: typing})
}

// MoveCursor shares the local pointer, throttled so drag streams do not
// flood the channel.
func (s *Session) MoveCursor(x, y float64) {
	s.mu.Lock()
	now := time.Now()
	if now.Sub(s.lastCursorAt) < cursorThrottle {
		s.mu.Unlock()
		return
	}
	s.lastCursorAt = now
	s.mu.Unlock()
	s.emit.Emit(protocol.TypeCursorMove, protocol.CursorMove{
		Cursor: domain.Cursor{ParticipantID: s.self, X: x, Y: y},
	})
}

// SetProfile stores the intake form locally and broadcasts it.
func (s *Session) SetProfile(p domain.Profile) {
	s.mu.Lock()
	s.profile = &p
	s.mu.Unlock()
	s.emit.Emit(protocol.TypeUpdateProfile, protocol.ProfilePayload{Profile: p})
}

// SetAura changes the table ambience.
func (s *Session) SetAura(aura string) {
	s.mu.Lock()
	s.aura = aura
	s.mu.Unlock()
	s.emit.Emit(protocol.TypeUpdateAura, protocol.Aura{Aura: aura})
}

// mutate applies fn to the card with the given id under the held lock.
func (s *Session) mutate(id domain.CardID, fn func(domain.Card) domain.Card) (domain.Card, bool) {
	for i := range s.cards {
		if s.cards[i].ID == id {
			s.cards[i] = fn(s.cards[i])
			return s.cards[i], true
		}
	}
	return domain.Card{}, false
}

// Remote-origin reconciliation.

// ApplySnapshot hydrates the mirror from a join snapshot.
func (s *Session) ApplySnapshot(cards []domain.Card, logs []domain.LogEntry, messages []domain.ChatMessage, profile *domain.Profile, aura string) {
	s.mu.Lock()
	s.cards = append([]domain.Card(nil), cards...)
	s.logs = append([]domain.LogEntry(nil), logs...)
	s.messages = append([]domain.ChatMessage(nil), messages...)
	s.profile = profile
	if aura != "" {
		s.aura = aura
	}
	s.maxZ = tabletop.MaxZ(s.cards)
	s.mu.Unlock()
}

// Apply reconciles one relayed server event into the mirror. Unknown or
// malformed events are dropped; they never disturb the rest of the state.
func (s *Session) Apply(env protocol.Envelope) {
	payload, err := protocol.DecodeServer(env)
	if err != nil {
		log.Warn().Err(err).Str("module", "client").Str("type", string(env.Type)).Msg("dropped event")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch env.Type {
	case protocol.TypeSyncState:
		p := payload.(protocol.Cards)
		s.cards = append([]domain.Card(nil), p.Cards...)
		s.maxZ = tabletop.MaxZ(s.cards)
	case protocol.TypeSyncLogs:
		p := payload.(protocol.Logs)
		s.logs = append([]domain.LogEntry(nil), p.Entries...)
	case protocol.TypeSyncMessages:
		p := payload.(protocol.Messages)
		s.messages = append([]domain.ChatMessage(nil), p.Messages...)
	case protocol.TypeCardAdded:
		p := payload.(protocol.CardPayload)
		// The locally originated add comes back on the echo-included
		// route; dedupe by id instead of growing a twin.
		for _, c := range s.cards {
			if c.ID == p.Card.ID {
				return
			}
		}
		s.cards = append(s.cards, p.Card)
		if p.Card.ZIndex > s.maxZ {
			s.maxZ = p.Card.ZIndex
		}
	case protocol.TypeCardUpdated:
		p := payload.(protocol.CardPayload)
		for i := range s.cards {
			if s.cards[i].ID == p.Card.ID {
				s.cards[i] = p.Card
				break
			}
		}
		if p.Card.ZIndex > s.maxZ {
			s.maxZ = p.Card.ZIndex
		}
	case protocol.TypeCardFlipped:
		p := payload.(protocol.FlipCard)
		for i := range s.cards {
			if s.cards[i].ID == p.CardID {
				s.cards[i].IsReversed = p.IsReversed
				s.cards[i].IsFlipped = p.IsFlipped
				s.cards[i].Oriented = true
				break
			}
		}
	case protocol.TypeActivityLog:
		p := payload.(protocol.ActivityLog)
		// Log and chat ride the echo-included route; our own optimistic
		// append already holds this entry.
		for _, e := range s.logs {
			if e.ID == p.Entry.ID {
				return
			}
		}
		s.logs = appendBounded(s.logs, p.Entry, logCapacity)
	case protocol.TypeChatMessage:
		p := payload.(protocol.ChatMessage)
		for _, m := range s.messages {
			if m.ID == p.Message.ID {
				return
			}
		}
		s.messages = appendBounded(s.messages, p.Message, chatCapacity)
	case protocol.TypeTyping:
		p := payload.(protocol.Typing)
		s.remoteTyping = p.Typing
	case protocol.TypeCursorMove:
		p := payload.(protocol.CursorMove)
		s.cursors[p.Cursor.ParticipantID] = p.Cursor
	case protocol.TypeSyncProfile, protocol.TypeProfileUpdated:
		p := payload.(protocol.ProfilePayload)
		profile := p.Profile
		s.profile = &profile
	case protocol.TypeAuraUpdated:
		p := payload.(protocol.Aura)
		s.aura = p.Aura
	case protocol.TypeParticipantJoined:
		p := payload.(protocol.Participant)
		if p.ParticipantID == s.self {
			return
		}
		s.peers[p.ParticipantID] = p.Role
		if s.onPeer != nil {
			fn, pid := s.onPeer, p.ParticipantID
			s.mu.Unlock()
			fn(pid)
			s.mu.Lock()
		}
	case protocol.TypeParticipantLeft:
		p := payload.(protocol.Participant)
		delete(s.peers, p.ParticipantID)
		delete(s.cursors, p.ParticipantID)
		s.remoteTyping = false
		if s.onLeft != nil {
			fn, pid := s.onLeft, p.ParticipantID
			s.mu.Unlock()
			fn(pid)
			s.mu.Lock()
		}
	case protocol.TypeRTCOffer:
		p := payload.(protocol.SessionDescription)
		if s.onOffer != nil {
			fn := s.onOffer
			s.mu.Unlock()
			fn(p.SDP)
			s.mu.Lock()
		}
	case protocol.TypeRTCAnswer:
		p := payload.(protocol.SessionDescription)
		if s.onAnswer != nil {
			fn := s.onAnswer
			s.mu.Unlock()
			fn(p.SDP)
			s.mu.Lock()
		}
	case protocol.TypeRTCCandidate:
		p := payload.(protocol.ICECandidate)
		if s.onCandidate != nil {
			fn := s.onCandidate
			s.mu.Unlock()
			fn(p)
			s.mu.Lock()
		}
	case protocol.TypeError:
		p := payload.(protocol.Error)
		log.Warn().Str("module", "client").Str("error", p.Error).Msg("server rejected event")
	}
}

func appendBounded[T any](items []T, v T, capacity int) []T {
	items = append(items, v)
	if len(items) > capacity {
		items = items[len(items)-capacity:]
	}
	return items
}

func newID() string { return uuid.NewString() }
