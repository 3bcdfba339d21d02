package rules

import (
	"fmt"
	"math/rand"
	"strings"
)

type Suit int

type Rank int

const (
	Spades Suit = iota
	Hearts
	Diamonds
	Clubs
)

const (
	Two   Rank = 2
	Ten   Rank = 10
	Jack  Rank = 11
	Queen Rank = 12
	King  Rank = 13
	Ace   Rank = 14
)

const (
	rankChars = "23456789TJQKA"
	suitChars = "shdc"
)

type Card struct {
	Rank Rank
	Suit Suit
}

// String renders the two-character code used on the wire and in active
// state, e.g. "As", "Td", "2c".
func (c Card) String() string {
	return string(rankChars[c.Rank-Two]) + string(suitChars[c.Suit])
}

func ParseCard(code string) (Card, error) {
	if len(code) != 2 {
		return Card{}, fmt.Errorf("bad card %q", code)
	}
	r := strings.IndexByte(rankChars, code[0])
	s := strings.IndexByte(suitChars, code[1])
	if r < 0 || s < 0 {
		return Card{}, fmt.Errorf("bad card %q", code)
	}
	return Card{Rank: Two + Rank(r), Suit: Suit(s)}, nil
}

func ParseHand(codes []string) ([]Card, error) {
	out := make([]Card, 0, len(codes))
	seen := make(map[string]bool, len(codes))
	for _, code := range codes {
		if seen[code] {
			return nil, fmt.Errorf("duplicate card %q", code)
		}
		seen[code] = true
		c, err := ParseCard(code)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// NewDeck returns the 52 card codes shuffled with rnd.
func NewDeck(rnd *rand.Rand) []string {
	cards := make([]string, 0, 52)
	for s := Spades; s <= Clubs; s++ {
		for r := Two; r <= Ace; r++ {
			cards = append(cards, Card{Rank: r, Suit: s}.String())
		}
	}
	rnd.Shuffle(len(cards), func(i, j int) {
		cards[i], cards[j] = cards[j], cards[i]
	})
	return cards
}

// Deal takes n cards off the top of deck.
func Deal(deck []string, n int) (hand, rest []string, err error) {
	if n > len(deck) {
		return nil, deck, fmt.Errorf("deck has %d cards, need %d", len(deck), n)
	}
	hand = append([]string(nil), deck[:n]...)
	return hand, deck[n:], nil
}
