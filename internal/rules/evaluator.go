package rules

import (
	"fmt"

	"github.com/paulhankin/poker"
)

// HandRank orders hands; a larger value is a stronger hand.
type HandRank int64

type HandEvaluator interface {
	Evaluate(hand []string) (HandRank, error)
}

// PokerEvaluator ranks 3, 5 or 7 card hands as poker hands.
type PokerEvaluator struct{}

func (PokerEvaluator) Evaluate(hand []string) (HandRank, error) {
	cards, err := ParseHand(hand)
	if err != nil {
		return 0, err
	}
	pcs := make([]poker.Card, len(cards))
	for i, c := range cards {
		pc, err := toPoker(c)
		if err != nil {
			return 0, err
		}
		pcs[i] = pc
	}
	switch len(pcs) {
	case 3:
		var a [3]poker.Card
		copy(a[:], pcs)
		return HandRank(poker.Eval3(&a)), nil
	case 5:
		var a [5]poker.Card
		copy(a[:], pcs)
		return HandRank(poker.Eval5(&a)), nil
	case 7:
		var a [7]poker.Card
		copy(a[:], pcs)
		return HandRank(poker.Eval7(&a)), nil
	default:
		return 0, fmt.Errorf("cannot evaluate %d card hand", len(pcs))
	}
}

func toPoker(c Card) (poker.Card, error) {
	var s poker.Suit
	switch c.Suit {
	case Clubs:
		s = poker.Club
	case Diamonds:
		s = poker.Diamond
	case Hearts:
		s = poker.Heart
	default:
		s = poker.Spade
	}
	// the library numbers ranks 1..13 with the ace low
	r := poker.Rank(c.Rank)
	if c.Rank == Ace {
		r = poker.Rank(1)
	}
	return poker.MakeCard(s, r)
}

// Compare returns 1 when a beats b, -1 when b beats a and 0 on equal rank.
func Compare(a, b HandRank) int {
	switch {
	case a > b:
		return 1
	case a < b:
		return -1
	default:
		return 0
	}
}
