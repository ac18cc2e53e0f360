package protocol

import "fmt"

// DecodeServer validates a server envelope on the receiving client and
// returns its typed payload, nil for payload-less events.
func DecodeServer(env Envelope) (any, error) {
	switch env.Type {
	case TypeSyncState:
		var p Cards
		if err := unmarshal(env.Payload, &p); err != nil {
			return nil, err
		}
		return p, nil
	case TypeSyncLogs:
		var p Logs
		if err := unmarshal(env.Payload, &p); err != nil {
			return nil, err
		}
		return p, nil
	case TypeSyncMessages:
		var p Messages
		if err := unmarshal(env.Payload, &p); err != nil {
			return nil, err
		}
		return p, nil
	case TypeSyncProfile, TypeProfileUpdated:
		var p ProfilePayload
		if err := unmarshal(env.Payload, &p); err != nil {
			return nil, err
		}
		return p, nil
	case TypeParticipantJoined, TypeParticipantLeft:
		var p Participant
		if err := unmarshal(env.Payload, &p); err != nil {
			return nil, err
		}
		if p.ParticipantID == "" {
			return nil, fmt.Errorf("%w: missing participantId", ErrBadPayload)
		}
		return p, nil
	case TypeCardAdded, TypeCardUpdated:
		var p CardPayload
		if err := unmarshal(env.Payload, &p); err != nil {
			return nil, err
		}
		if p.Card.ID == "" {
			return nil, fmt.Errorf("%w: missing card id", ErrBadPayload)
		}
		return p, nil
	case TypeCardFlipped:
		var p FlipCard
		if err := unmarshal(env.Payload, &p); err != nil {
			return nil, err
		}
		return p, nil
	case TypeActivityLog:
		var p ActivityLog
		if err := unmarshal(env.Payload, &p); err != nil {
			return nil, err
		}
		return p, nil
	case TypeChatMessage:
		var p ChatMessage
		if err := unmarshal(env.Payload, &p); err != nil {
			return nil, err
		}
		return p, nil
	case TypeTyping:
		var p Typing
		if err := unmarshal(env.Payload, &p); err != nil {
			return nil, err
		}
		return p, nil
	case TypeCursorMove:
		var p CursorMove
		if err := unmarshal(env.Payload, &p); err != nil {
			return nil, err
		}
		return p, nil
	case TypeAuraUpdated:
		var p Aura
		if err := unmarshal(env.Payload, &p); err != nil {
			return nil, err
		}
		return p, nil
	case TypeRTCOffer, TypeRTCAnswer:
		var p SessionDescription
		if err := unmarshal(env.Payload, &p); err != nil {
			return nil, err
		}
		return p, nil
	case TypeRTCCandidate:
		var p ICECandidate
		if err := unmarshal(env.Payload, &p); err != nil {
			return nil, err
		}
		return p, nil
	case TypeError:
		var p Error
		if err := unmarshal(env.Payload, &p); err != nil {
			return nil, err
		}
		return p, nil
	case TypePong:
		return nil, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
}
