package model

import (
	"fmt"
	"strconv"

	"github.com/koskimas/strata/internal/match"
	"github.com/koskimas/strata/pkg/trait"
)

// bag holds the values one stratum sets for the traits of a group. Values are
// normalised primitives, plain data for `any` traits, *bag for objects and
// []*entry for object arrays. Unset traits have no key.
type bag struct {
	group  *trait.Group
	values map[string]any
}

func newBag(group *trait.Group) *bag {
	return &bag{
		group:  group,
		values: make(map[string]any),
	}
}

// bagFromPlain builds a bag from plain data already normalised by the match
// package.
func bagFromPlain(group *trait.Group, plain map[string]any) *bag {
	b := newBag(group)

	for id, v := range plain {
		if v == nil {
			continue
		}

		t, ok := group.Trait(id)
		if !ok {
			continue
		}

		b.values[id] = rawFromPlain(t, v)
	}

	return b
}

func rawFromPlain(t *trait.Trait, v any) any {
	switch t.Kind() {
	case trait.KindObject:
		return bagFromPlain(t.Type(), v.(map[string]any))
	case trait.KindObjectArray:
		return entriesFromPlain(t, v.([]map[string]any))
	}

	return v
}

func entriesFromPlain(t *trait.Trait, plain []map[string]any) []*entry {
	list := make([]*entry, 0, len(plain))

	for _, p := range plain {
		list = append(list, entryFromPlain(t, p))
	}

	return list
}

func entryFromPlain(t *trait.Trait, p map[string]any) *entry {
	e := &entry{}

	if removed, ok := p[match.RemovedKey].(bool); ok && removed {
		e.removed = true
		e.bag = newBag(t.Type())
		if id, ok := p[t.IDProperty()]; ok && id != nil {
			e.bag.values[t.IDProperty()] = id
		}

		return e
	}

	e.bag = bagFromPlain(t.Type(), p)
	return e
}

func (b *bag) plain() map[string]any {
	out := make(map[string]any, len(b.values))

	for id, v := range b.values {
		t, _ := b.group.Trait(id)
		out[id] = rawToPlain(t, v)
	}

	return out
}

func rawToPlain(t *trait.Trait, v any) any {
	switch t.Kind() {
	case trait.KindObject:
		return v.(*bag).plain()
	case trait.KindObjectArray:
		return entriesToPlain(v.([]*entry))
	}

	return match.Copy(v)
}

func entriesToPlain(list []*entry) []any {
	out := make([]any, 0, len(list))

	for _, e := range list {
		p := e.bag.plain()
		if e.removed {
			p[match.RemovedKey] = true
		}

		out = append(out, p)
	}

	return out
}

func (b *bag) clone() *bag {
	clone := newBag(b.group)

	for id, v := range b.values {
		switch x := v.(type) {
		case *bag:
			clone.values[id] = x.clone()
		case []*entry:
			clone.values[id] = entriesClone(x)
		default:
			clone.values[id] = match.Copy(x)
		}
	}

	return clone
}

func (b *bag) empty() bool {
	return len(b.values) == 0
}

// identityOf formats an identity value, a string or a number, the way paths
// address it.
func identityOf(v any) (string, bool) {
	switch id := v.(type) {
	case string:
		return id, len(id) > 0
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64), true
	}

	return "", false
}

// identityValue converts an identity from a path to the kind of the id
// property of the object array trait `t`.
func identityValue(t *trait.Trait, id string) (any, error) {
	idt, _ := t.Type().Trait(t.IDProperty())

	if idt.Kind() == trait.KindNumber {
		n, err := strconv.ParseFloat(id, 64)
		if err != nil {
			return nil, fmt.Errorf(`identity "%s" of "%s" is not a number`, id, t.ID())
		}

		return n, nil
	}

	return id, nil
}

// canonicalIdentity converts an identity from a path to the form identityOf
// returns for the stored value, like `1` for `1.0` or `01`.
func canonicalIdentity(t *trait.Trait, identity string) (string, error) {
	v, err := identityValue(t, identity)
	if err != nil {
		return "", err
	}

	id, ok := identityOf(v)
	if !ok {
		return "", fmt.Errorf(`empty identity for "%s"`, t.ID())
	}

	return id, nil
}
