package protocol_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mistikoda/arcana/internal/domain"
	"github.com/mistikoda/arcana/internal/protocol"
)

func env(t protocol.Type, payload string) protocol.Envelope {
	e := protocol.Envelope{Type: t, Room: "room-1"}
	if payload != "" {
		e.Payload = json.RawMessage(payload)
	}
	return e
}

func TestDecodeAcceptsValidEvents(t *testing.T) {
	tests := []struct {
		name    string
		env     protocol.Envelope
		wantTyp any
	}{
		{
			name:    "join",
			env:     env(protocol.TypeJoinRoom, `{"participantId":"p1","role":"consultant"}`),
			wantTyp: protocol.JoinRoom{},
		},
		{
			name:    "add card",
			env:     env(protocol.TypeAddCard, `{"card":{"id":"c1","cardIndex":12,"x":50,"y":80}}`),
			wantTyp: protocol.CardPayload{},
		},
		{
			name:    "flip",
			env:     env(protocol.TypeFlipCard, `{"cardId":"c1","isReversed":true,"isFlipped":true}`),
			wantTyp: protocol.FlipCard{},
		},
		{
			name:    "sync all",
			env:     env(protocol.TypeSyncAllCards, `{"cards":[{"id":"c1","cardIndex":0}]}`),
			wantTyp: protocol.Cards{},
		},
		{
			name:    "cursor",
			env:     env(protocol.TypeCursorMove, `{"cursor":{"userId":"p1","x":10,"y":20}}`),
			wantTyp: protocol.CursorMove{},
		},
		{
			name:    "chat text",
			env:     env(protocol.TypeChatMessage, `{"message":{"id":"m1","sender":"client","text":"hi","timestamp":"12:00"}}`),
			wantTyp: protocol.ChatMessage{},
		},
		{
			name:    "chat voice",
			env:     env(protocol.TypeChatMessage, `{"message":{"id":"m2","sender":"client","audioUrl":"blob:abc","timestamp":"12:01"}}`),
			wantTyp: protocol.ChatMessage{},
		},
		{
			name:    "aura",
			env:     env(protocol.TypeUpdateAura, `{"aura":"mystic"}`),
			wantTyp: protocol.Aura{},
		},
		{
			name:    "offer",
			env:     env(protocol.TypeRTCOffer, `{"sdp":"v=0..."}`),
			wantTyp: protocol.SessionDescription{},
		},
		{
			name:    "candidate",
			env:     env(protocol.TypeRTCCandidate, `{"candidate":"candidate:1 1 udp ..."}`),
			wantTyp: protocol.ICECandidate{},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := protocol.Decode(tc.env)
			require.NoError(t, err)
			assert.IsType(t, tc.wantTyp, got)
		})
	}
}

func TestDecodePayloadlessEvents(t *testing.T) {
	for _, typ := range []protocol.Type{protocol.TypeClearTable, protocol.TypePing} {
		got, err := protocol.Decode(env(typ, ""))
		require.NoError(t, err)
		assert.Nil(t, got)
	}
}

func TestDecodeRejectsBadEvents(t *testing.T) {
	tests := []struct {
		name    string
		env     protocol.Envelope
		wantErr error
	}{
		{
			name:    "unknown type",
			env:     env("teleport-card", `{}`),
			wantErr: protocol.ErrUnknownType,
		},
		{
			name:    "empty type",
			env:     env("", `{}`),
			wantErr: protocol.ErrUnknownType,
		},
		{
			name:    "missing payload",
			env:     env(protocol.TypeAddCard, ""),
			wantErr: protocol.ErrBadPayload,
		},
		{
			name:    "malformed json",
			env:     env(protocol.TypeAddCard, `{"card":`),
			wantErr: protocol.ErrBadPayload,
		},
		{
			name:    "card without id",
			env:     env(protocol.TypeAddCard, `{"card":{"cardIndex":5}}`),
			wantErr: protocol.ErrBadPayload,
		},
		{
			name:    "rank above deck",
			env:     env(protocol.TypeAddCard, `{"card":{"id":"c1","cardIndex":78}}`),
			wantErr: protocol.ErrBadPayload,
		},
		{
			name:    "negative rank in sync",
			env:     env(protocol.TypeSyncAllCards, `{"cards":[{"id":"c1","cardIndex":-1}]}`),
			wantErr: protocol.ErrBadPayload,
		},
		{
			name:    "flip without card id",
			env:     env(protocol.TypeFlipCard, `{"isFlipped":true}`),
			wantErr: protocol.ErrBadPayload,
		},
		{
			name:    "chat with neither text nor audio",
			env:     env(protocol.TypeChatMessage, `{"message":{"id":"m1","sender":"client","timestamp":"12:00"}}`),
			wantErr: protocol.ErrBadPayload,
		},
		{
			name:    "chat with both text and audio",
			env:     env(protocol.TypeChatMessage, `{"message":{"id":"m1","sender":"client","text":"hi","audioUrl":"blob:x","timestamp":"12:00"}}`),
			wantErr: protocol.ErrBadPayload,
		},
		{
			name:    "empty aura",
			env:     env(protocol.TypeUpdateAura, `{"aura":""}`),
			wantErr: protocol.ErrBadPayload,
		},
		{
			name:    "offer without sdp",
			env:     env(protocol.TypeRTCOffer, `{"sdp":""}`),
			wantErr: protocol.ErrBadPayload,
		},
		{
			name:    "join without participant",
			env:     env(protocol.TypeJoinRoom, `{"role":"client"}`),
			wantErr: protocol.ErrBadPayload,
		},
		{
			name:    "empty log message",
			env:     env(protocol.TypeActivityLog, `{"entry":{"id":"l1","message":""}}`),
			wantErr: protocol.ErrBadPayload,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := protocol.Decode(tc.env)
			require.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestFanoutRoutes(t *testing.T) {
	others := []protocol.Type{
		protocol.TypeUpdateCard, protocol.TypeFlipCard, protocol.TypeCursorMove,
		protocol.TypeTyping, protocol.TypeRTCOffer, protocol.TypeRTCAnswer,
		protocol.TypeRTCCandidate,
	}
	all := []protocol.Type{
		protocol.TypeAddCard, protocol.TypeClearTable, protocol.TypeSyncAllCards,
		protocol.TypeChatMessage, protocol.TypeActivityLog,
		protocol.TypeUpdateProfile, protocol.TypeUpdateAura,
	}
	for _, typ := range others {
		assert.Equal(t, protocol.RouteOthers, protocol.Fanout(typ), string(typ))
	}
	for _, typ := range all {
		assert.Equal(t, protocol.RouteAll, protocol.Fanout(typ), string(typ))
	}
	assert.Equal(t, protocol.RouteNone, protocol.Fanout(protocol.TypeJoinRoom))
	assert.Equal(t, protocol.RouteNone, protocol.Fanout(protocol.TypePing))
}

func TestOutboundMapping(t *testing.T) {
	tests := map[protocol.Type]protocol.Type{
		protocol.TypeAddCard:       protocol.TypeCardAdded,
		protocol.TypeUpdateCard:    protocol.TypeCardUpdated,
		protocol.TypeFlipCard:      protocol.TypeCardFlipped,
		protocol.TypeClearTable:    protocol.TypeSyncState,
		protocol.TypeSyncAllCards:  protocol.TypeSyncState,
		protocol.TypeUpdateProfile: protocol.TypeProfileUpdated,
		protocol.TypeUpdateAura:    protocol.TypeAuraUpdated,
		// Transient signals keep their type on the way out.
		protocol.TypeCursorMove:   protocol.TypeCursorMove,
		protocol.TypeRTCOffer:     protocol.TypeRTCOffer,
		protocol.TypeChatMessage:  protocol.TypeChatMessage,
		protocol.TypeActivityLog:  protocol.TypeActivityLog,
	}
	for in, want := range tests {
		assert.Equal(t, want, protocol.Outbound(in), string(in))
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	card := domain.Card{ID: "c1", Rank: 21, X: 50, Y: 45, ZIndex: 3}
	e, err := protocol.Marshal(protocol.TypeAddCard, "room-1", "p1", protocol.CardPayload{Card: card})
	require.NoError(t, err)

	wire, err := json.Marshal(e)
	require.NoError(t, err)

	var back protocol.Envelope
	require.NoError(t, json.Unmarshal(wire, &back))
	got, err := protocol.Decode(back)
	require.NoError(t, err)
	assert.Equal(t, card, got.(protocol.CardPayload).Card)
}

func TestCardWireFieldNames(t *testing.T) {
	raw, err := json.Marshal(domain.Card{ID: "c1", Rank: 7, Deck: "rumi"})
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	assert.Contains(t, m, "cardIndex")
	assert.Contains(t, m, "deckType")
	assert.Contains(t, m, "isFlipped")
	assert.Contains(t, m, "isReversed")
	assert.Contains(t, m, "zIndex")
}
