package protocol

// Route is the fan-out mode of an event once it has been applied.
type Route int

const (
	// RouteNone never leaves the server (join-room is handled at the
	// transport boundary, ping is answered directly).
	RouteNone Route = iota
	// RouteOthers relays to the room minus the sender: the sender already
	// applied the change optimistically and does not need its own echo.
	RouteOthers
	// RouteAll relays to the whole room including the sender: log-like and
	// profile-like facts stay server-confirmed on every timeline, and
	// re-applying them on the sender is idempotent.
	RouteAll
)

// Fanout returns the route for a client event type.
func Fanout(t Type) Route {
	switch t {
	case TypeUpdateCard, TypeFlipCard, TypeCursorMove, TypeTyping,
		TypeRTCOffer, TypeRTCAnswer, TypeRTCCandidate:
		return RouteOthers
	case TypeAddCard, TypeClearTable, TypeSyncAllCards, TypeChatMessage,
		TypeActivityLog, TypeUpdateProfile, TypeUpdateAura:
		return RouteAll
	}
	return RouteNone
}

// Outbound maps a client event type to the server event type broadcast for it.
func Outbound(t Type) Type {
	switch t {
	case TypeAddCard:
		return TypeCardAdded
	case TypeUpdateCard:
		return TypeCardUpdated
	case TypeFlipCard:
		return TypeCardFlipped
	case TypeClearTable, TypeSyncAllCards:
		return TypeSyncState
	case TypeUpdateProfile:
		return TypeProfileUpdated
	case TypeUpdateAura:
		return TypeAuraUpdated
	}
	return t
}
