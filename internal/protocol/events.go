// Package protocol defines the typed event set carried on a room channel.
// Every inbound frame is decoded against this closed union at the transport
// boundary; anything that does not match is rejected, not trusted.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mistikoda/arcana/internal/domain"
)

var (
	ErrUnknownType = errors.New("unknown event type")
	ErrBadPayload  = errors.New("bad event payload")
)

type Type string

// Client -> server.
const (
	TypeJoinRoom      Type = "join-room"
	TypeAddCard       Type = "add-card"
	TypeUpdateCard    Type = "update-card"
	TypeFlipCard      Type = "flip-card"
	TypeSyncAllCards  Type = "sync-all-cards"
	TypeClearTable    Type = "clear-table"
	TypeCursorMove    Type = "cursor-move"
	TypeActivityLog   Type = "activity-log"
	TypeChatMessage   Type = "chat-message"
	TypeTyping        Type = "typing"
	TypeUpdateProfile Type = "update-client-profile"
	TypeUpdateAura    Type = "update-aura"
	TypePing          Type = "ping"
	TypeRTCOffer      Type = "rtc-offer"
	TypeRTCAnswer     Type = "rtc-answer"
	TypeRTCCandidate  Type = "rtc-candidate"
)

// Server -> client.
const (
	TypeSyncState         Type = "sync-state"
	TypeSyncLogs          Type = "sync-logs"
	TypeSyncMessages      Type = "sync-messages"
	TypeSyncProfile       Type = "sync-client-profile"
	TypeParticipantJoined Type = "participant-joined"
	TypeParticipantLeft   Type = "participant-left"
	TypeCardAdded         Type = "card-added"
	TypeCardUpdated       Type = "card-updated"
	TypeCardFlipped       Type = "card-flipped"
	TypeProfileUpdated    Type = "client-profile-updated"
	TypeAuraUpdated       Type = "aura-updated"
	TypePong              Type = "pong"
	TypeError             Type = "error"
)

// Envelope is the wire frame: a type tag, the room it belongs to and a
// payload whose shape depends on the tag.
type Envelope struct {
	Type    Type                 `json:"type"`
	Room    domain.RoomID        `json:"room,omitempty"`
	Sender  domain.ParticipantID `json:"sender,omitempty"`
	Payload json.RawMessage      `json:"payload,omitempty"`
}

// Payload shapes. One struct per event type; events with no payload
// (clear-table, ping, pong) have none.

type JoinRoom struct {
	ParticipantID domain.ParticipantID `json:"participantId"`
	Role          domain.Role          `json:"role"`
}

type CardPayload struct {
	Card domain.Card `json:"card"`
}

type FlipCard struct {
	CardID     domain.CardID `json:"cardId"`
	IsReversed bool          `json:"isReversed"`
	IsFlipped  bool          `json:"isFlipped"`
}

type Cards struct {
	Cards []domain.Card `json:"cards"`
}

type CursorMove struct {
	Cursor domain.Cursor `json:"cursor"`
}

type ActivityLog struct {
	Entry domain.LogEntry `json:"entry"`
}

type Logs struct {
	Entries []domain.LogEntry `json:"entries"`
}

type ChatMessage struct {
	Message domain.ChatMessage `json:"message"`
}

type Messages struct {
	Messages []domain.ChatMessage `json:"messages"`
}

type Typing struct {
	Typing bool `json:"typing"`
}

type ProfilePayload struct {
	Profile domain.Profile `json:"profile"`
}

type Aura struct {
	Aura string `json:"aura"`
}

type Participant struct {
	ParticipantID domain.ParticipantID `json:"participantId"`
	Role          domain.Role          `json:"role,omitempty"`
}

type SessionDescription struct {
	SDP string `json:"sdp"`
}

type ICECandidate struct {
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
}

type Error struct {
	Error string `json:"error"`
}

// Decode validates a client envelope and returns its typed payload.
// The result is nil for payload-less events.
func Decode(env Envelope) (any, error) {
	switch env.Type {
	case TypeJoinRoom:
		var p JoinRoom
		if err := unmarshal(env.Payload, &p); err != nil {
			return nil, err
		}
		if p.ParticipantID == "" {
			return nil, fmt.Errorf("%w: missing participantId", ErrBadPayload)
		}
		return p, nil
	case TypeAddCard, TypeUpdateCard:
		var p CardPayload
		if err := unmarshal(env.Payload, &p); err != nil {
			return nil, err
		}
		if p.Card.ID == "" {
			return nil, fmt.Errorf("%w: missing card id", ErrBadPayload)
		}
		if err := p.Card.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
		}
		return p, nil
	case TypeFlipCard:
		var p FlipCard
		if err := unmarshal(env.Payload, &p); err != nil {
			return nil, err
		}
		if p.CardID == "" {
			return nil, fmt.Errorf("%w: missing cardId", ErrBadPayload)
		}
		return p, nil
	case TypeSyncAllCards:
		var p Cards
		if err := unmarshal(env.Payload, &p); err != nil {
			return nil, err
		}
		for _, c := range p.Cards {
			if err := c.Validate(); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
			}
		}
		return p, nil
	case TypeCursorMove:
		var p CursorMove
		if err := unmarshal(env.Payload, &p); err != nil {
			return nil, err
		}
		return p, nil
	case TypeActivityLog:
		var p ActivityLog
		if err := unmarshal(env.Payload, &p); err != nil {
			return nil, err
		}
		if p.Entry.Message == "" {
			return nil, fmt.Errorf("%w: empty log message", ErrBadPayload)
		}
		return p, nil
	case TypeChatMessage:
		var p ChatMessage
		if err := unmarshal(env.Payload, &p); err != nil {
			return nil, err
		}
		if err := p.Message.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
		}
		return p, nil
	case TypeTyping:
		var p Typing
		if err := unmarshal(env.Payload, &p); err != nil {
			return nil, err
		}
		return p, nil
	case TypeUpdateProfile:
		var p ProfilePayload
		if err := unmarshal(env.Payload, &p); err != nil {
			return nil, err
		}
		return p, nil
	case TypeUpdateAura:
		var p Aura
		if err := unmarshal(env.Payload, &p); err != nil {
			return nil, err
		}
		if p.Aura == "" {
			return nil, fmt.Errorf("%w: empty aura", ErrBadPayload)
		}
		return p, nil
	case TypeRTCOffer, TypeRTCAnswer:
		var p SessionDescription
		if err := unmarshal(env.Payload, &p); err != nil {
			return nil, err
		}
		if p.SDP == "" {
			return nil, fmt.Errorf("%w: empty sdp", ErrBadPayload)
		}
		return p, nil
	case TypeRTCCandidate:
		var p ICECandidate
		if err := unmarshal(env.Payload, &p); err != nil {
			return nil, err
		}
		if p.Candidate == "" {
			return nil, fmt.Errorf("%w: empty candidate", ErrBadPayload)
		}
		return p, nil
	case TypeClearTable, TypePing:
		return nil, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
}

func unmarshal(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: missing payload", ErrBadPayload)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	return nil
}

// Marshal builds an envelope with the given payload.
func Marshal(t Type, room domain.RoomID, sender domain.ParticipantID, payload any) (Envelope, error) {
	env := Envelope{Type: t, Room: room, Sender: sender}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Envelope{}, err
		}
		env.Payload = raw
	}
	return env, nil
}
