package app

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mistikoda/arcana/internal/core"
	"github.com/mistikoda/arcana/internal/domain"
)

const (
	logCapacity  = 50
	chatCapacity = 100
	maxMembers   = 2

	sweepInterval = time.Minute
)

// member pairs a participant's role with its transport endpoint.
type member struct {
	role domain.Role
	conn core.SignalConnection
}

// roomState is the canonical state of one session. Its mutex serializes
// every mutation and fan-out, so a handler never observes a torn write.
type roomState struct {
	mu      sync.Mutex
	id      domain.RoomID
	members map[domain.ParticipantID]member
	cards   []domain.Card
	logs    *ring[domain.LogEntry]
	chat    *ring[domain.ChatMessage]
	profile *domain.Profile
	aura    string

	// emptySince is set when the last member departs; the janitor evicts
	// rooms that stay empty past the TTL.
	emptySince time.Time
}

func newRoomState(id domain.RoomID) *roomState {
	return &roomState{
		id:      id,
		members: make(map[domain.ParticipantID]member),
		logs:    newRing[domain.LogEntry](logCapacity),
		chat:    newRing[domain.ChatMessage](chatCapacity),
	}
}

// Snapshot is the state handed to a joining participant, and only to it.
type Snapshot struct {
	Cards    []domain.Card
	Logs     []domain.LogEntry
	Messages []domain.ChatMessage
	Profile  *domain.Profile
	Aura     string
	Peers    []PeerInfo
}

// PeerInfo lists a member already present at join time.
type PeerInfo struct {
	ID   domain.ParticipantID
	Role domain.Role
}

// MemberInfo is a fan-out view of one connected member.
type MemberInfo struct {
	ID   domain.ParticipantID
	Role domain.Role
	Conn core.SignalConnection
}

// RoomInfo is the listing view for the debug endpoint.
type RoomInfo struct {
	ID          domain.RoomID `json:"id"`
	MemberCount int           `json:"member_count"`
	CardCount   int           `json:"card_count"`
}

// Store owns every room. It is an injected service, never a package-level
// singleton, and holds no persistence: a process restart empties it.
type Store struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]*roomState
	ttl   time.Duration
	now   func() time.Time
}

func NewStore(ttl time.Duration) *Store {
	return &Store{
		rooms: make(map[domain.RoomID]*roomState),
		ttl:   ttl,
		now:   time.Now,
	}
}

// lookup returns the state for id without creating it.
func (s *Store) lookup(id domain.RoomID) (*roomState, bool) {
	s.mu.RLock()
	r, ok := s.rooms[id]
	s.mu.RUnlock()
	return r, ok
}

// room returns the state for id, creating it lazily on first use.
func (s *Store) room(id domain.RoomID) *roomState {
	s.mu.RLock()
	r, ok := s.rooms[id]
	s.mu.RUnlock()
	if ok {
		return r
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok = s.rooms[id]; ok {
		return r
	}
	r = newRoomState(id)
	s.rooms[id] = r
	log.Info().Str("module", "app.store").Str("room", string(id)).Msg("room created")
	return r
}

// Join registers membership and returns the current state to the joiner.
// The session is strictly bilateral; a third participant is turned away.
func (s *Store) Join(id domain.RoomID, pid domain.ParticipantID, role domain.Role, conn core.SignalConnection) (Snapshot, error) {
	r := s.room(id)
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, rejoin := r.members[pid]; !rejoin && len(r.members) >= maxMembers {
		return Snapshot{}, domain.ErrRoomFull
	}

	snap := Snapshot{
		Cards:    append([]domain.Card(nil), r.cards...),
		Logs:     r.logs.Snapshot(),
		Messages: r.chat.Snapshot(),
		Profile:  r.profile,
		Aura:     r.aura,
	}
	for mid, m := range r.members {
		snap.Peers = append(snap.Peers, PeerInfo{ID: mid, Role: m.role})
	}

	r.members[pid] = member{role: role, conn: conn}
	r.emptySince = time.Time{}
	log.Info().Str("module", "app.store").Str("room", string(id)).
		Str("participant", string(pid)).Str("role", string(role)).Msg("joined")
	return snap, nil
}

// Leave removes membership. The room itself survives so a reconnecting
// participant finds its cards where it left them; the janitor reclaims it
// after the TTL.
func (s *Store) Leave(id domain.RoomID, pid domain.ParticipantID) {
	r, ok := s.lookup(id)
	if !ok {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.members[pid]; !ok {
		return
	}
	delete(r.members, pid)
	if len(r.members) == 0 {
		r.emptySince = s.now()
	}
	log.Info().Str("module", "app.store").Str("room", string(id)).
		Str("participant", string(pid)).Msg("left")
}

// Members returns the current fan-out targets of a room.
func (s *Store) Members(id domain.RoomID) []MemberInfo {
	r, ok := s.lookup(id)
	if !ok {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]MemberInfo, 0, len(r.members))
	for pid, m := range r.members {
		out = append(out, MemberInfo{ID: pid, Role: m.role, Conn: m.conn})
	}
	return out
}

// Cards returns a copy of a room's card list. A read never creates a room.
func (s *Store) Cards(id domain.RoomID) []domain.Card {
	r, ok := s.lookup(id)
	if !ok {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Card(nil), r.cards...)
}

// Logs returns a copy of a room's activity log.
func (s *Store) Logs(id domain.RoomID) []domain.LogEntry {
	r, ok := s.lookup(id)
	if !ok {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.logs.Snapshot()
}

// Messages returns a copy of a room's chat buffer.
func (s *Store) Messages(id domain.RoomID) []domain.ChatMessage {
	r, ok := s.lookup(id)
	if !ok {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.chat.Snapshot()
}

func (s *Store) List() []RoomInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]RoomInfo, 0, len(s.rooms))
	for id, r := range s.rooms {
		r.mu.Lock()
		out = append(out, RoomInfo{ID: id, MemberCount: len(r.members), CardCount: len(r.cards)})
		r.mu.Unlock()
	}
	return out
}

// Run sweeps rooms that have been empty longer than the TTL. It blocks until
// ctx is done.
func (s *Store) Run(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Store) sweep() {
	cutoff := s.now().Add(-s.ttl)
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, r := range s.rooms {
		r.mu.Lock()
		stale := len(r.members) == 0 && !r.emptySince.IsZero() && r.emptySince.Before(cutoff)
		r.mu.Unlock()
		if stale {
			delete(s.rooms, id)
			log.Info().Str("module", "app.store").Str("room", string(id)).Msg("room evicted")
		}
	}
}
