package tabletop

import "github.com/mistikoda/arcana/internal/domain"

// Spread package identifiers from the intake form.
const (
	PackageStandard = "standard"
	PackageSynastry = "synastry"
	PackageCeltic   = "celtic"
	PackageRelation = "relation"
)

const relationDeckSize = 54

// DealPackage lays out the spread requested by the client profile. Ranks
// within one deal are drawn without replacement: no spread repeats a card.
// All cards come out face down; orientation waits for Reveal.
func (e *Engine) DealPackage(p domain.Profile, maxZ int) []domain.Card {
	if p.PackageID == PackageRelation {
		deck := "eril"
		if p.Gender == "Kadın" {
			deck = "disil"
		}
		return []domain.Card{{
			ID:     domain.NewCardID(),
			Rank:   1 + e.rnd.Intn(relationDeckSize),
			Deck:   deck,
			X:      50,
			Y:      45,
			ZIndex: maxZ + 1,
		}}
	}

	count := p.CardCount
	if count <= 0 {
		count = 3
	}
	if count > domain.DeckSize {
		count = domain.DeckSize
	}

	ranks := e.sampleRanks(count)
	spread := make([]domain.Card, 0, count)
	for i := 0; i < count; i++ {
		x, y := e.position(p.PackageID, i, count)
		spread = append(spread, domain.Card{
			ID:     domain.NewCardID(),
			Rank:   ranks[i],
			X:      x,
			Y:      y,
			ZIndex: maxZ + i + 1,
		})
	}
	return spread
}

// sampleRanks draws n distinct ranks from the full deck.
func (e *Engine) sampleRanks(n int) []int {
	perm := e.rnd.Perm(domain.DeckSize)
	return perm[:n]
}

func (e *Engine) position(pkg string, i, count int) (x, y float64) {
	switch pkg {
	case PackageStandard:
		if count == 1 {
			return 50, 45
		}
		return 15 + 70*float64(i)/float64(count-1), 45
	case PackageSynastry:
		switch {
		case i < 3:
			x = 30
		case i < 6:
			x = 70
		default:
			x = 50
		}
		return x, 30 + float64(i%3)*20
	case PackageCeltic:
		crossX := []float64{50, 50, 50, 50, 35, 65}
		crossY := []float64{45, 45, 25, 65, 45, 45}
		pillarX := []float64{85, 85, 85, 85}
		pillarY := []float64{75, 55, 35, 15}
		if i < len(crossX) {
			return crossX[i], crossY[i]
		}
		j := (i - len(crossX)) % len(pillarX)
		return pillarX[j], pillarY[j]
	}
	return 15 + e.rnd.Float64()*70, 20 + e.rnd.Float64()*50
}
