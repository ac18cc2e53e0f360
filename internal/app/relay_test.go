package app_test

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mistikoda/arcana/internal/app"
	"github.com/mistikoda/arcana/internal/core"
	"github.com/mistikoda/arcana/internal/domain"
	"github.com/mistikoda/arcana/internal/protocol"
)

// fakeConn records every frame it was handed.
type fakeConn struct {
	mu     sync.Mutex
	frames []protocol.Envelope
}

func (c *fakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var env protocol.Envelope
	if err := json.Unmarshal(f, &env); err != nil {
		return err
	}
	c.frames = append(c.frames, env)
	return nil
}

func (c *fakeConn) Close() {}

func (c *fakeConn) received() []protocol.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]protocol.Envelope(nil), c.frames...)
}

func (c *fakeConn) last(t *testing.T) protocol.Envelope {
	t.Helper()
	frames := c.received()
	require.NotEmpty(t, frames)
	return frames[len(frames)-1]
}

type fixture struct {
	store *app.Store
	relay *app.Relay
	a, b  *fakeConn
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store: app.NewStore(time.Minute),
		a:     &fakeConn{},
		b:     &fakeConn{},
	}
	f.relay = app.NewRelay(f.store)
	_, err := f.store.Join("r1", "a", domain.RoleConsultant, f.a)
	require.NoError(t, err)
	_, err = f.store.Join("r1", "b", domain.RoleClient, f.b)
	require.NoError(t, err)
	return f
}

func (f *fixture) dispatch(t *testing.T, sender domain.ParticipantID, typ protocol.Type, payload any) {
	t.Helper()
	env, err := protocol.Marshal(typ, "", sender, payload)
	require.NoError(t, err)
	data, err := json.Marshal(env)
	require.NoError(t, err)
	conn := f.a
	if sender == "b" {
		conn = f.b
	}
	f.relay.Dispatch("r1", sender, conn, data)
}

func TestAddCardEchoesToEveryone(t *testing.T) {
	f := newFixture(t)
	card := domain.Card{ID: "c1", Rank: 7, X: 50, Y: 80, ZIndex: 1}

	f.dispatch(t, "a", protocol.TypeAddCard, protocol.CardPayload{Card: card})

	require.Len(t, f.store.Cards("r1"), 1)
	for _, conn := range []*fakeConn{f.a, f.b} {
		env := conn.last(t)
		assert.Equal(t, protocol.TypeCardAdded, env.Type)
		assert.Equal(t, domain.ParticipantID("a"), env.Sender)
	}
}

func TestAddCardIsIdempotentPerID(t *testing.T) {
	f := newFixture(t)
	card := domain.Card{ID: "c1", Rank: 7}

	f.dispatch(t, "a", protocol.TypeAddCard, protocol.CardPayload{Card: card})
	card.X = 33
	f.dispatch(t, "a", protocol.TypeAddCard, protocol.CardPayload{Card: card})

	cards := f.store.Cards("r1")
	require.Len(t, cards, 1)
	assert.Equal(t, 33.0, cards[0].X)
}

func TestUpdateCardSkipsTheSender(t *testing.T) {
	f := newFixture(t)
	f.dispatch(t, "a", protocol.TypeAddCard, protocol.CardPayload{Card: domain.Card{ID: "c1", Rank: 7}})
	aBefore := len(f.a.received())

	f.dispatch(t, "a", protocol.TypeUpdateCard, protocol.CardPayload{Card: domain.Card{ID: "c1", Rank: 7, X: 12, Y: 34}})

	// The sender applied the move optimistically; no echo comes back.
	assert.Len(t, f.a.received(), aBefore)
	env := f.b.last(t)
	assert.Equal(t, protocol.TypeCardUpdated, env.Type)

	cards := f.store.Cards("r1")
	require.Len(t, cards, 1)
	assert.Equal(t, 12.0, cards[0].X)
}

func TestUpdateIsWholeObjectLastWriteWins(t *testing.T) {
	f := newFixture(t)
	f.dispatch(t, "a", protocol.TypeAddCard, protocol.CardPayload{Card: domain.Card{ID: "c1", Rank: 7, X: 10, ZIndex: 5}})

	// Two whole-object writes race; the one processed second wins every field.
	f.dispatch(t, "a", protocol.TypeUpdateCard, protocol.CardPayload{Card: domain.Card{ID: "c1", Rank: 7, X: 20, ZIndex: 6}})
	f.dispatch(t, "b", protocol.TypeUpdateCard, protocol.CardPayload{Card: domain.Card{ID: "c1", Rank: 7, X: 90, ZIndex: 5}})

	cards := f.store.Cards("r1")
	require.Len(t, cards, 1)
	assert.Equal(t, 90.0, cards[0].X)
	assert.Equal(t, 5, cards[0].ZIndex)
}

func TestUpdateUnknownCardIsDroppedSilently(t *testing.T) {
	f := newFixture(t)
	before := len(f.b.received())

	f.dispatch(t, "a", protocol.TypeUpdateCard, protocol.CardPayload{Card: domain.Card{ID: "ghost", Rank: 1}})

	assert.Len(t, f.b.received(), before)
	assert.Empty(t, f.store.Cards("r1"))
}

func TestFlipMergesOnlyTheTwoFlags(t *testing.T) {
	f := newFixture(t)
	f.dispatch(t, "a", protocol.TypeAddCard, protocol.CardPayload{Card: domain.Card{ID: "c1", Rank: 7, X: 42, ZIndex: 3}})

	f.dispatch(t, "a", protocol.TypeFlipCard, protocol.FlipCard{CardID: "c1", IsReversed: true, IsFlipped: true})

	cards := f.store.Cards("r1")
	require.Len(t, cards, 1)
	assert.True(t, cards[0].IsFlipped)
	assert.True(t, cards[0].IsReversed)
	assert.True(t, cards[0].Oriented)
	assert.Equal(t, 42.0, cards[0].X)
	assert.Equal(t, 3, cards[0].ZIndex)

	env := f.b.last(t)
	assert.Equal(t, protocol.TypeCardFlipped, env.Type)
}

func TestClearTableBroadcastsEmptyState(t *testing.T) {
	f := newFixture(t)
	f.dispatch(t, "a", protocol.TypeAddCard, protocol.CardPayload{Card: domain.Card{ID: "c1", Rank: 7}})

	f.dispatch(t, "b", protocol.TypeClearTable, nil)

	assert.Empty(t, f.store.Cards("r1"))
	for _, conn := range []*fakeConn{f.a, f.b} {
		env := conn.last(t)
		require.Equal(t, protocol.TypeSyncState, env.Type)
		var p protocol.Cards
		require.NoError(t, json.Unmarshal(env.Payload, &p))
		assert.Empty(t, p.Cards)
	}

	// Clearing an empty table is a no-op broadcast, not an error.
	f.dispatch(t, "b", protocol.TypeClearTable, nil)
	assert.Equal(t, protocol.TypeSyncState, f.a.last(t).Type)
}

func TestSyncAllCardsReplacesState(t *testing.T) {
	f := newFixture(t)
	f.dispatch(t, "a", protocol.TypeAddCard, protocol.CardPayload{Card: domain.Card{ID: "old", Rank: 1}})

	f.dispatch(t, "a", protocol.TypeSyncAllCards, protocol.Cards{Cards: []domain.Card{
		{ID: "n1", Rank: 2}, {ID: "n2", Rank: 3},
	}})

	cards := f.store.Cards("r1")
	require.Len(t, cards, 2)
	assert.Equal(t, domain.CardID("n1"), cards[0].ID)
	assert.Equal(t, protocol.TypeSyncState, f.a.last(t).Type)
}

func TestChatAndLogsAreEchoedAndStored(t *testing.T) {
	f := newFixture(t)

	f.dispatch(t, "b", protocol.TypeChatMessage, protocol.ChatMessage{
		Message: domain.ChatMessage{ID: "m1", Sender: domain.RoleClient, Text: "hi", Timestamp: "12:00"},
	})
	f.dispatch(t, "a", protocol.TypeActivityLog, protocol.ActivityLog{
		Entry: domain.LogEntry{ID: "l1", Message: "revealed The Tower", Timestamp: "12:01", AuthorID: "a"},
	})

	assert.Len(t, f.store.Messages("r1"), 1)
	assert.Len(t, f.store.Logs("r1"), 1)

	// Both land on the sender too; the server copy is the confirmed one.
	bTypes := eventTypes(f.b.received())
	assert.Contains(t, bTypes, protocol.TypeChatMessage)
	assert.Contains(t, bTypes, protocol.TypeActivityLog)
	aTypes := eventTypes(f.a.received())
	assert.Contains(t, aTypes, protocol.TypeChatMessage)
	assert.Contains(t, aTypes, protocol.TypeActivityLog)
}

func TestTransientSignalsAreRelayedNotStored(t *testing.T) {
	f := newFixture(t)
	aBefore := len(f.a.received())

	f.dispatch(t, "a", protocol.TypeCursorMove, protocol.CursorMove{
		Cursor: domain.Cursor{ParticipantID: "a", X: 10, Y: 20},
	})
	f.dispatch(t, "a", protocol.TypeTyping, protocol.Typing{Typing: true})
	f.dispatch(t, "a", protocol.TypeRTCOffer, protocol.SessionDescription{SDP: "v=0"})

	assert.Len(t, f.a.received(), aBefore)
	bTypes := eventTypes(f.b.received())
	assert.Contains(t, bTypes, protocol.TypeCursorMove)
	assert.Contains(t, bTypes, protocol.TypeTyping)
	assert.Contains(t, bTypes, protocol.TypeRTCOffer)
}

func TestProfileAndAuraReachEveryoneAndSurviveInSnapshot(t *testing.T) {
	f := newFixture(t)

	f.dispatch(t, "b", protocol.TypeUpdateProfile, protocol.ProfilePayload{
		Profile: domain.Profile{Name: "Ayşe", PackageID: "celtic", CardCount: 10},
	})
	f.dispatch(t, "a", protocol.TypeUpdateAura, protocol.Aura{Aura: "mystic"})

	assert.Equal(t, protocol.TypeAuraUpdated, f.a.last(t).Type)
	bTypes := eventTypes(f.b.received())
	assert.Contains(t, bTypes, protocol.TypeProfileUpdated)

	// A later joiner inherits both through the snapshot.
	f.store.Leave("r1", "a")
	c := &fakeConn{}
	snap, err := f.store.Join("r1", "c", domain.RoleConsultant, c)
	require.NoError(t, err)
	require.NotNil(t, snap.Profile)
	assert.Equal(t, "Ayşe", snap.Profile.Name)
	assert.Equal(t, "mystic", snap.Aura)
}

func TestPingIsAnsweredDirectly(t *testing.T) {
	f := newFixture(t)
	bBefore := len(f.b.received())

	f.dispatch(t, "a", protocol.TypePing, nil)

	assert.Equal(t, protocol.TypePong, f.a.last(t).Type)
	assert.Len(t, f.b.received(), bBefore)
}

func TestBadEventErrorsOnlyTheSender(t *testing.T) {
	f := newFixture(t)
	bBefore := len(f.b.received())

	env, err := protocol.Marshal(protocol.TypeAddCard, "", "a", protocol.Cards{})
	require.NoError(t, err)
	data, err := json.Marshal(env)
	require.NoError(t, err)
	f.relay.Dispatch("r1", "a", f.a, data)

	assert.Equal(t, protocol.TypeError, f.a.last(t).Type)
	assert.Len(t, f.b.received(), bBefore)
	assert.Empty(t, f.store.Cards("r1"))

	f.relay.Dispatch("r1", "a", f.a, []byte("{not json"))
	assert.Equal(t, protocol.TypeError, f.a.last(t).Type)
}

func TestBroadcastCanExcludeOneMember(t *testing.T) {
	f := newFixture(t)
	aBefore := len(f.a.received())

	f.relay.Broadcast("r1", "a", protocol.TypeParticipantLeft,
		protocol.Participant{ParticipantID: "x"})

	assert.Len(t, f.a.received(), aBefore)
	assert.Equal(t, protocol.TypeParticipantLeft, f.b.last(t).Type)
}

func eventTypes(envs []protocol.Envelope) []protocol.Type {
	out := make([]protocol.Type, 0, len(envs))
	for _, e := range envs {
		out = append(out, e.Type)
	}
	return out
}
