// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"

	"github.com/google/uuid"
)

// DeckSize is the number of ranks in the full tarot deck (0..77).
const DeckSize = 78

var ErrBadRank = errors.New("card rank out of range")

type CardID string

func NewCardID() CardID { return CardID(uuid.NewString()) }

// Card is the runtime instance of one dealt card on the shared tabletop.
// X and Y are percentages of the tabletop container, not pixels, so the
// layout stays valid across viewport sizes.
type Card struct {
	ID         CardID  `json:"id"`
	Rank       int     `json:"cardIndex"`
	Deck       string  `json:"deckType,omitempty"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	IsFlipped  bool    `json:"isFlipped"`
	IsReversed bool    `json:"isReversed"`
	// Oriented marks that IsReversed has been assigned. It happens once, at
	// the card's first reveal; later reveals reuse the stored orientation.
	Oriented bool `json:"oriented,omitempty"`
	ZIndex   int  `json:"zIndex"`
}

func (c Card) Validate() error {
	if c.Rank < 0 || c.Rank >= DeckSize {
		return ErrBadRank
	}
	return nil
}
