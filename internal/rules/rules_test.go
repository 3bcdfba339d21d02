package rules

import (
	"math/rand"
	"testing"
)

func TestCardCodesRoundTrip(t *testing.T) {
	for _, code := range []string{"As", "Td", "2c", "Kh", "9s"} {
		c, err := ParseCard(code)
		if err != nil {
			t.Fatalf("parse %s: %v", code, err)
		}
		if c.String() != code {
			t.Fatalf("String() = %s, want %s", c.String(), code)
		}
	}
	for _, bad := range []string{"", "A", "1s", "Ax", "Asd"} {
		if _, err := ParseCard(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestDeckIsCompleteAndDeals(t *testing.T) {
	deck := NewDeck(rand.New(rand.NewSource(7)))
	if len(deck) != 52 {
		t.Fatalf("deck size = %d", len(deck))
	}
	if _, err := ParseHand(deck); err != nil {
		t.Fatalf("deck has invalid or duplicate cards: %v", err)
	}
	hand, rest, err := Deal(deck, 5)
	if err != nil {
		t.Fatalf("deal: %v", err)
	}
	if len(hand) != 5 || len(rest) != 47 || hand[0] != deck[0] {
		t.Fatalf("unexpected deal: hand=%v rest=%d", hand, len(rest))
	}
	if _, _, err := Deal(rest[:3], 5); err == nil {
		t.Fatal("expected error dealing from a short deck")
	}
}

func TestPokerEvaluatorOrdersDistinctHands(t *testing.T) {
	ev := PokerEvaluator{}
	royal, err := ev.Evaluate([]string{"As", "Ks", "Qs", "Js", "Ts"})
	if err != nil {
		t.Fatalf("evaluate royal: %v", err)
	}
	junk, err := ev.Evaluate([]string{"2c", "7d", "9h", "Js", "4s"})
	if err != nil {
		t.Fatalf("evaluate junk: %v", err)
	}
	if royal == junk {
		t.Fatal("distinct hands ranked equal")
	}
	same, err := ev.Evaluate([]string{"2d", "7c", "9s", "Jh", "4c"})
	if err != nil {
		t.Fatalf("evaluate same shape: %v", err)
	}
	if Compare(junk, same) != 0 {
		t.Fatal("hands differing only by suit should tie")
	}
}

func TestPokerEvaluatorRejectsBadHands(t *testing.T) {
	ev := PokerEvaluator{}
	if _, err := ev.Evaluate([]string{"As", "Ks", "Qs", "Js"}); err == nil {
		t.Fatal("expected error for four card hand")
	}
	if _, err := ev.Evaluate([]string{"As", "As", "Qs", "Js", "Ts"}); err == nil {
		t.Fatal("expected error for duplicate card")
	}
	if _, err := ev.Evaluate([]string{"As", "Zz", "Qs", "Js", "Ts"}); err == nil {
		t.Fatal("expected error for unknown card")
	}
}

func TestCatalogResolve(t *testing.T) {
	cat := DefaultCatalog()
	a, err := cat.Resolve("shield")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if _, ok := a.Effect.(ShieldEffect); !ok {
		t.Fatalf("shield resolved to %T", a.Effect)
	}
	if _, err := cat.Resolve("fireball"); err == nil {
		t.Fatal("expected unknown ability error")
	}
}
