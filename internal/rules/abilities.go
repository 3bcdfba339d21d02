package rules

import "fmt"

// Effect is the closed set of ability effects the round engine understands.
type Effect interface {
	effect()
}

// RedrawEffect replaces the whole hand from the deck.
type RedrawEffect struct{}

// ShieldEffect turns a lost round into a push for the shielded side.
type ShieldEffect struct{}

func (RedrawEffect) effect() {}
func (ShieldEffect) effect() {}

type Ability struct {
	Name     string
	Effect   Effect
	Cooldown int
}

type AbilityResolver interface {
	Resolve(name string) (Ability, error)
}

type Catalog map[string]Ability

// DefaultCatalog is the built-in ability set.
func DefaultCatalog() Catalog {
	return Catalog{
		"mulligan": {Name: "mulligan", Effect: RedrawEffect{}, Cooldown: 2},
		"shield":   {Name: "shield", Effect: ShieldEffect{}, Cooldown: 3},
	}
}

func (c Catalog) Resolve(name string) (Ability, error) {
	a, ok := c[name]
	if !ok {
		return Ability{}, fmt.Errorf("unknown ability %q", name)
	}
	return a, nil
}
