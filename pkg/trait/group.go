package trait

import (
	"errors"
	"fmt"
)

var ErrSealed = errors.New("group is sealed")

// Group is a named set of traits, the schema of a model or of a nested
// object. Once a model is created over a group, or the group is nested in or
// mixed into another group, it is sealed and no more traits can be defined.
type Group struct {
	name        string
	traits      []*Trait
	traitsByID  map[string]*Trait
	contributor map[string]string
	sealed      bool
}

func NewGroup(name string, traits ...*Trait) (*Group, error) {
	g := &Group{
		name:        name,
		traits:      make([]*Trait, 0, len(traits)),
		traitsByID:  make(map[string]*Trait, len(traits)),
		contributor: make(map[string]string, len(traits)),
	}

	for _, t := range traits {
		if err := g.Define(t); err != nil {
			return nil, err
		}
	}

	return g, nil
}

// MustGroup is like NewGroup but panics if a trait cannot be defined. It is
// meant for package level schema variables.
func MustGroup(name string, traits ...*Trait) *Group {
	g, err := NewGroup(name, traits...)
	if err != nil {
		panic(err)
	}

	return g
}

// Define adds a trait to the group. Defining a second trait with an id that is
// already taken is a *SchemaConflictError.
func (g *Group) Define(t *Trait) error {
	return g.define(t, g.name)
}

func (g *Group) define(t *Trait, contributor string) error {
	if g.sealed {
		return fmt.Errorf(`failed to define trait "%s" on "%s": %w`, t.id, g.name, ErrSealed)
	}

	if existing, ok := g.traitsByID[t.id]; ok {
		if existing == t {
			return nil
		}

		return &SchemaConflictError{
			Schema: g.name,
			Field:  t.id,
			Groups: [2]string{g.contributor[t.id], contributor},
		}
	}

	if err := t.validate(); err != nil {
		return fmt.Errorf(`invalid trait in "%s": %w`, g.name, err)
	}

	if t.typ != nil {
		t.typ.Seal()
	}

	if len(t.origin) == 0 {
		t.origin = g.name
	}

	g.traits = append(g.traits, t)
	g.traitsByID[t.id] = t
	g.contributor[t.id] = contributor

	return nil
}

func (g *Group) Name() string { return g.name }

// Traits returns all traits of the group, mixed in ones included, in
// definition order.
func (g *Group) Traits() []*Trait {
	out := make([]*Trait, len(g.traits))
	copy(out, g.traits)
	return out
}

func (g *Group) Trait(id string) (*Trait, bool) {
	t, ok := g.traitsByID[id]
	return t, ok
}

func (g *Group) Len() int { return len(g.traits) }

func (g *Group) Seal()        { g.sealed = true }
func (g *Group) Sealed() bool { return g.sealed }

func (g *Group) String() string { return g.name }
