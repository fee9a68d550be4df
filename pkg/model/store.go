package model

import (
	"fmt"

	"github.com/koskimas/strata/internal/match"
	"github.com/koskimas/strata/internal/ref"
	"github.com/koskimas/strata/pkg/trait"
	"go.uber.org/zap"
)

// Set writes `value` for `path` into `stratum`. The value is plain data
// matching the trait at the end of the path: a string, number or bool for
// primitives, anything for `any` traits, a map for objects and object array
// elements (`items[x]`), and a list of maps or []Entry for object arrays.
// Objects and entries missing on the way are created. A nil value clears the
// path.
func (m *Model) Set(stratum, path string, value any) error {
	if value == nil {
		return m.Clear(stratum, path)
	}

	sp, err := m.writePath(stratum, path)
	if err != nil {
		return err
	}

	raw, err := m.rawValue(sp, value)
	if err != nil {
		return err
	}

	parent, err := m.parentBag(m.stratum(stratum, true), sp, true)
	if err != nil {
		return err
	}

	last := sp.Path[len(sp.Path)-1]
	t := sp.Last()

	if sp.Element() {
		e := raw.(*entry)
		list, _ := parent.values[t.ID()].([]*entry)
		parent.values[t.ID()] = putEntry(list, t, last.ID, e)
	} else {
		parent.values[t.ID()] = raw
	}

	m.touch(sp.Path.Root())
	return nil
}

// Clear removes the value `stratum` sets for `path`. Clearing an object array
// element drops the entry from the stratum; it does not hide the element in
// other strata, use Remove for that.
func (m *Model) Clear(stratum, path string) error {
	sp, err := m.writePath(stratum, path)
	if err != nil {
		return err
	}

	root := m.stratum(stratum, false)
	if root == nil {
		return nil
	}

	parent, err := m.parentBag(root, sp, false)
	if err != nil || parent == nil {
		return err
	}

	last := sp.Path[len(sp.Path)-1]
	t := sp.Last()

	if sp.Element() {
		list, _ := parent.values[t.ID()].([]*entry)
		parent.values[t.ID()] = dropEntry(list, t, last.ID)
	} else {
		delete(parent.values, t.ID())
	}

	m.touch(sp.Path.Root())
	return nil
}

// Remove writes a tombstone for the element `identity` of the object array at
// `path` into `stratum`. The element disappears from the resolved array
// unless a stratum of higher precedence sets it again. Values `stratum`
// itself set for the element are discarded.
func (m *Model) Remove(stratum, path, identity string) error {
	sp, err := m.writePath(stratum, path)
	if err != nil {
		return err
	}

	t := sp.Last()
	if t.Kind() != trait.KindObjectArray || sp.Element() {
		return &ref.PathError{Path: path, Message: "remove needs a path to an object array"}
	}

	identity, err = canonicalIdentity(t, identity)
	if err != nil {
		return err
	}

	id, err := identityValue(t, identity)
	if err != nil {
		return err
	}

	parent, err := m.parentBag(m.stratum(stratum, true), sp, true)
	if err != nil {
		return err
	}

	tomb := &entry{removed: true, bag: newBag(t.Type())}
	tomb.bag.values[t.IDProperty()] = id

	list, _ := parent.values[t.ID()].([]*entry)
	parent.values[t.ID()] = putEntry(list, t, identity, tomb)

	m.touch(sp.Path.Root())
	return nil
}

// StratumValue returns the value `stratum` itself sets for `path` as plain
// data, without looking at other strata.
func (m *Model) StratumValue(stratum, path string) (any, bool, error) {
	sp, err := m.writePath(stratum, path)
	if err != nil {
		return nil, false, err
	}

	root := m.stratum(stratum, false)
	if root == nil {
		return nil, false, nil
	}

	parent, err := m.parentBag(root, sp, false)
	if err != nil || parent == nil {
		return nil, false, err
	}

	last := sp.Path[len(sp.Path)-1]
	t := sp.Last()

	v, ok := parent.values[t.ID()]
	if !ok {
		return nil, false, nil
	}

	if sp.Element() {
		e := findEntry(v.([]*entry), t, last.ID)
		if e == nil {
			return nil, false, nil
		}

		return entriesToPlain([]*entry{e})[0], true, nil
	}

	return rawToPlain(t, v), true, nil
}

// Export returns everything `stratum` sets as plain data. Object array
// tombstones are exported as maps holding the identity and `"$removed": true`.
func (m *Model) Export(stratum string) (map[string]any, error) {
	if err := m.checkStratum(stratum); err != nil {
		return nil, err
	}

	b := m.stratum(stratum, false)
	if b == nil {
		return map[string]any{}, nil
	}

	return b.plain(), nil
}

// Import replaces `stratum` with plain data in the form Export returns.
func (m *Model) Import(stratum string, data map[string]any) error {
	if err := m.checkStratum(stratum); err != nil {
		return err
	}

	plain, err := match.Object(m.group, data)
	if err != nil {
		return fmt.Errorf(`failed to import stratum "%s" of model "%s": %w`, stratum, m.id, err)
	}

	next := bagFromPlain(m.group, plain)
	prev := m.stratum(stratum, true)
	m.strata[stratum] = next

	m.log.Debug("imported stratum", zap.String("stratum", stratum), zap.Int("traits", len(next.values)))

	return m.Batch(func() error {
		for id := range prev.values {
			m.touch(id)
		}

		for id := range next.values {
			m.touch(id)
		}

		return nil
	})
}

func (m *Model) writePath(stratum, path string) (*ref.SchemaPath, error) {
	if err := m.checkStratum(stratum); err != nil {
		return nil, err
	}

	return m.resolvePath(path)
}

// rawValue checks `value` against the end of the path and converts it to its
// stored form.
func (m *Model) rawValue(sp *ref.SchemaPath, value any) (any, error) {
	t := sp.Last()
	last := sp.Path[len(sp.Path)-1]

	if sp.Element() {
		e, err := m.entryValue(t, last.ID, value)
		if err != nil {
			return nil, err
		}

		return e, nil
	}

	if idt := identityTrait(sp); idt != nil && idt == t {
		return nil, &ref.PathError{Path: sp.Path.String(), Message: "the identity of an element cannot be set"}
	}

	if entries, ok := value.([]Entry); ok && t.Kind() == trait.KindObjectArray {
		list := make([]any, 0, len(entries))

		for _, e := range entries {
			p, err := e.plain(t.IDProperty(), func(id string) (any, error) { return identityValue(t, id) })
			if err != nil {
				return nil, err
			}

			list = append(list, p)
		}

		value = list
	}

	plain, err := match.Value(t, value)
	if err != nil {
		return nil, err
	}

	return rawFromPlain(t, plain), nil
}

func (m *Model) entryValue(t *trait.Trait, identity string, value any) (*entry, error) {
	id, err := identityValue(t, identity)
	if err != nil {
		return nil, err
	}

	var p map[string]any

	switch v := value.(type) {
	case Entry:
		v.ID = identity
		p, err = v.plain(t.IDProperty(), func(string) (any, error) { return id, nil })
		if err != nil {
			return nil, err
		}
	case map[string]any:
		p = make(map[string]any, len(v)+1)
		for k, x := range v {
			p[k] = x
		}
	default:
		return nil, &ref.PathError{Path: fmt.Sprintf("%s[%s]", t.ID(), identity), Message: fmt.Sprintf("expected a map or an Entry, got %T", value)}
	}

	norm, err := match.Entry(t, p)
	if err != nil {
		return nil, err
	}

	if norm[t.IDProperty()] == nil {
		norm[t.IDProperty()] = id
	}

	if other, ok := identityOf(norm[t.IDProperty()]); !ok || other != identity {
		return nil, &ref.PathError{Path: fmt.Sprintf("%s[%s]", t.ID(), identity), Message: "the identity of an element cannot be changed"}
	}

	return entryFromPlain(t, norm), nil
}

// identityTrait returns the id property trait when the path ends right at the
// identity of an element, like `items[x].id`.
func identityTrait(sp *ref.SchemaPath) *trait.Trait {
	n := len(sp.Path)
	if n < 2 || !sp.Path[n-2].HasID {
		return nil
	}

	arr := sp.Traits[n-2]
	idt, _ := arr.Type().Trait(arr.IDProperty())
	return idt
}

// parentBag walks `sp` from `root` down to the bag holding the last segment.
// With `create`, missing objects and elements are created and removed
// elements are brought back; otherwise nil is returned when the way is
// missing.
func (m *Model) parentBag(root *bag, sp *ref.SchemaPath, create bool) (*bag, error) {
	b := root

	for i, seg := range sp.Path[:len(sp.Path)-1] {
		t := sp.Traits[i]

		switch t.Kind() {
		case trait.KindObject:
			child, ok := b.values[t.ID()].(*bag)
			if !ok {
				if !create {
					return nil, nil
				}

				child = newBag(t.Type())
				b.values[t.ID()] = child
			}

			b = child
		case trait.KindObjectArray:
			list, _ := b.values[t.ID()].([]*entry)

			e := findEntry(list, t, seg.ID)
			if e == nil {
				if !create {
					return nil, nil
				}

				id, err := identityValue(t, seg.ID)
				if err != nil {
					return nil, err
				}

				e = &entry{bag: newBag(t.Type())}
				e.bag.values[t.IDProperty()] = id
				b.values[t.ID()] = append(list, e)
			} else if e.removed && create {
				e.removed = false
			}

			b = e.bag
		}
	}

	return b, nil
}

// findEntry returns the last entry of `list` with identity `identity`.
func findEntry(list []*entry, t *trait.Trait, identity string) *entry {
	for i := len(list) - 1; i >= 0; i-- {
		if id, ok := list[i].identity(t.IDProperty()); ok && id == identity {
			return list[i]
		}
	}

	return nil
}

// putEntry replaces the entries of `identity` in `list` with `e`, keeping the
// position of the first one, or appends `e`.
func putEntry(list []*entry, t *trait.Trait, identity string, e *entry) []*entry {
	out := make([]*entry, 0, len(list)+1)
	placed := false

	for _, x := range list {
		if id, ok := x.identity(t.IDProperty()); ok && id == identity {
			if !placed {
				out = append(out, e)
				placed = true
			}

			continue
		}

		out = append(out, x)
	}

	if !placed {
		out = append(out, e)
	}

	return out
}

func dropEntry(list []*entry, t *trait.Trait, identity string) []*entry {
	out := make([]*entry, 0, len(list))

	for _, x := range list {
		if id, ok := x.identity(t.IDProperty()); ok && id == identity {
			continue
		}

		out = append(out, x)
	}

	return out
}
