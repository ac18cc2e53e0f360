// Package tabletop models the shared card table: percentage coordinates,
// the face-down/face-up lifecycle and stacking order.
package tabletop

import (
	"math/rand"
	"time"

	"github.com/mistikoda/arcana/internal/domain"
)

// Engine holds the randomness source so orientation and dealing stay
// reproducible under a seeded source in tests.
type Engine struct {
	rnd *rand.Rand
}

func New(rnd *rand.Rand) *Engine {
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Engine{rnd: rnd}
}

// ClampPercent keeps a coordinate inside the table.
func ClampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// CenterPercent converts a card's pixel center into a percentage of the
// container dimension.
func CenterPercent(centerPx, containerPx float64) float64 {
	if containerPx <= 0 {
		return 0
	}
	return ClampPercent(100 * centerPx / containerPx)
}

// PixelOffset converts a stored percentage back to the card's top-left pixel
// offset for a given container and card size. Recomputing after any number
// of resizes yields the same position for the same container size: the
// stored percentage is never rewritten on the consumer side.
func PixelOffset(percent, containerPx, cardPx float64) float64 {
	return percent/100*containerPx - cardPx/2
}

// Draw deals one card from the aether to the bottom center of the table,
// face down. Orientation is not decided here; see Reveal.
func (e *Engine) Draw(deck string, maxZ int) domain.Card {
	return domain.Card{
		ID:     domain.NewCardID(),
		Rank:   e.rnd.Intn(domain.DeckSize),
		Deck:   deck,
		X:      50,
		Y:      80 + e.rnd.Float64()*5,
		ZIndex: maxZ + 1,
	}
}

// Reveal turns a face-down card face up. Orientation is rolled at the card's
// first reveal, not at deal time and not again afterwards: hiding and
// re-revealing the same card reproduces the same reading. Revealing an
// already face-up card is a no-op.
func (e *Engine) Reveal(c domain.Card) domain.Card {
	if c.IsFlipped {
		return c
	}
	if !c.Oriented {
		c.IsReversed = e.rnd.Intn(2) == 0
		c.Oriented = true
	}
	c.IsFlipped = true
	return c
}

// Hide turns a face-up card back down. Orientation is retained.
func Hide(c domain.Card) domain.Card {
	c.IsFlipped = false
	return c
}

// Toggle flips between the two states the way a double-click on the table
// does.
func (e *Engine) Toggle(c domain.Card) domain.Card {
	if c.IsFlipped {
		return Hide(c)
	}
	return e.Reveal(c)
}

// Grab raises a card above its siblings at pointer-acquire time, whether or
// not the drag that follows ever commits a position.
func Grab(c domain.Card, maxZ int) domain.Card {
	c.ZIndex = maxZ + 1
	return c
}

// DragEnd commits a new position, clamped to the table.
func DragEnd(c domain.Card, x, y float64) domain.Card {
	c.X = ClampPercent(x)
	c.Y = ClampPercent(y)
	return c
}

// MaxZ returns the highest stacking order among cards, at least zero.
func MaxZ(cards []domain.Card) int {
	max := 0
	for _, c := range cards {
		if c.ZIndex > max {
			max = c.ZIndex
		}
	}
	return max
}
