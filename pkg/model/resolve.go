package model

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/koskimas/strata/internal/match"
	"github.com/koskimas/strata/internal/ref"
	"github.com/koskimas/strata/pkg/trait"
)

// Object is the resolved value of an object trait or of one object array
// element. Objects are immutable snapshots; a write to the model produces new
// objects on the next read.
type Object struct {
	group    *trait.Group
	identity string
	values   map[string]any
}

func (o *Object) Group() *trait.Group { return o.group }

// Identity returns the identity of an object array element, or "" for plain
// objects.
func (o *Object) Identity() string { return o.identity }

// Get returns the resolved value of trait `id`: a primitive, plain data, an
// *Object or a []*Object. Unknown traits resolve to nil. The returned value
// is a copy the caller may modify.
func (o *Object) Get(id string) any {
	return detach(o.values[id])
}

// Plain returns the object as plain data. Traits that resolve to nil are
// left out.
func (o *Object) Plain() map[string]any {
	out := make(map[string]any, len(o.values))

	for _, t := range o.group.Traits() {
		if v := Plain(o.values[t.ID()]); v != nil {
			out[t.ID()] = v
		}
	}

	return out
}

// Plain converts a resolved value to plain data made of maps, slices and
// scalars.
func Plain(v any) any {
	switch x := v.(type) {
	case *Object:
		if x == nil {
			return nil
		}

		return x.Plain()
	case []*Object:
		if x == nil {
			return nil
		}

		out := make([]any, len(x))
		for i, o := range x {
			out[i] = o.Plain()
		}

		return out
	}

	return match.Copy(v)
}

// detach copies a resolved value so that callers can't modify the cached
// resolution. Objects keep their values private and are shared.
func detach(v any) any {
	switch x := v.(type) {
	case *Object:
		return x
	case []*Object:
		return slices.Clone(x)
	}

	return match.Copy(v)
}

func equal(a, b any) bool {
	return reflect.DeepEqual(a, b)
}

type layer struct {
	stratum string
	value   any
}

type resolution struct {
	value any
	errs  []*trait.MalformedEntryError
}

// Get returns the resolved value at `path`. Values nobody set resolve to the
// trait default, or nil. Paths are trait ids separated by dots, object array
// elements are addressed by identity: `items[x].title`.
//
// Errors are structural only: a *trait.UnknownFieldError for paths the schema
// does not have, and *trait.MalformedEntryError for object array entries
// without identity under `path`. Malformed entries are skipped and the rest of
// the value is still returned along with the error.
func (m *Model) Get(path string) (any, error) {
	sp, err := m.resolvePath(path)
	if err != nil {
		return nil, err
	}

	return m.get(sp)
}

// resolvePath resolves `path` against the schema of the model and rewrites
// element identities to the form identityOf produces, so that `waypoints[1.0]`
// and `waypoints[1]` address the same element.
func (m *Model) resolvePath(path string) (*ref.SchemaPath, error) {
	sp, err := ref.ResolveString(m.group, path)
	if err != nil {
		return nil, err
	}

	for i, seg := range sp.Path {
		if !seg.HasID {
			continue
		}

		id, err := canonicalIdentity(sp.Traits[i], seg.ID)
		if err != nil {
			return nil, err
		}

		sp.Path[i].ID = id
	}

	return sp, nil
}

func (m *Model) get(sp *ref.SchemaPath) (any, error) {
	r := m.field(sp.Path.Root())
	v := r.value

	for i, seg := range sp.Path {
		if i > 0 {
			o, ok := v.(*Object)
			if !ok || o == nil {
				v = nil
				break
			}

			v = o.values[seg.Trait]
		}

		if seg.HasID {
			v = findObject(v, seg.ID)
		}
	}

	return detach(v), r.errorsUnder(sp.Path.String())
}

func findObject(v any, identity string) any {
	list, _ := v.([]*Object)

	for _, o := range list {
		if o.identity == identity {
			return o
		}
	}

	return nil
}

// Resolved returns every trait of the model resolved to plain data. Traits
// that resolve to nil are left out.
func (m *Model) Resolved() (map[string]any, error) {
	out := make(map[string]any, m.group.Len())
	errs := make([]error, 0)

	for _, t := range m.group.Traits() {
		r := m.field(t.ID())

		if v := Plain(r.value); v != nil {
			out[t.ID()] = v
		}

		for _, e := range r.errs {
			errs = append(errs, e)
		}
	}

	return out, errors.Join(errs...)
}

// field returns the cached resolution of the top level trait `id`, resolving
// it when a write invalidated it.
func (m *Model) field(id string) *resolution {
	if r, ok := m.resolved[id]; ok {
		return r
	}

	t, _ := m.group.Trait(id)

	r := &resolution{}
	r.value = resolveTrait(t, m.layers(id), id, &r.errs)
	m.resolved[id] = r

	return r
}

func (m *Model) invalidate(id string) {
	delete(m.resolved, id)
}

func (r *resolution) errorsUnder(path string) error {
	errs := make([]error, 0)

	for _, e := range r.errs {
		if covers(path, e.Field) {
			errs = append(errs, e)
		}
	}

	return errors.Join(errs...)
}

// covers reports whether `path` addresses `field` or something that contains
// it.
func covers(path, field string) bool {
	if !strings.HasPrefix(field, path) {
		return false
	}

	rest := field[len(path):]
	return len(rest) == 0 || rest[0] == '.' || rest[0] == '['
}

// resolveTrait combines the values set for `t` by `layers`, which are ordered
// from the lowest to the highest precedence.
func resolveTrait(t *trait.Trait, layers []layer, path string, errs *[]*trait.MalformedEntryError) any {
	switch t.Kind() {
	case trait.KindObject:
		if len(layers) == 0 {
			return nil
		}

		return resolveObject(t.Type(), layers, path, errs)
	case trait.KindObjectArray:
		if len(layers) == 0 {
			return nil
		}

		return resolveObjectArray(t, layers, path, errs)
	}

	if len(layers) == 0 {
		return match.Copy(t.Default())
	}

	return match.Copy(layers[len(layers)-1].value)
}

// resolveObject resolves every trait of `group` on its own across the bags in
// `layers`, so one stratum can set `inner.foo` while another sets `inner.bar`.
func resolveObject(group *trait.Group, layers []layer, path string, errs *[]*trait.MalformedEntryError) *Object {
	o := &Object{
		group:  group,
		values: make(map[string]any, group.Len()),
	}

	for _, t := range group.Traits() {
		sub := make([]layer, 0, len(layers))

		for _, l := range layers {
			if v, ok := l.value.(*bag).values[t.ID()]; ok {
				sub = append(sub, layer{stratum: l.stratum, value: v})
			}
		}

		o.values[t.ID()] = resolveTrait(t, sub, path+"."+t.ID(), errs)
	}

	return o
}

// resolveObjectArray merges the entries of all layers by identity. An
// identity survives when its highest precedence mention is a presence rather
// than a removal, and only entries above its highest removal contribute
// values. Survivors keep the order in which they first contribute, scanning
// from the lowest precedence up.
func resolveObjectArray(t *trait.Trait, layers []layer, path string, errs *[]*trait.MalformedEntryError) []*Object {
	idProperty := t.IDProperty()
	removedAt := make(map[string]int)
	presentAt := make(map[string]int)

	for rank, l := range layers {
		for i, e := range l.value.([]*entry) {
			id, ok := e.identity(idProperty)
			if !ok {
				*errs = append(*errs, &trait.MalformedEntryError{
					Field:      path,
					Stratum:    l.stratum,
					Index:      i,
					IDProperty: idProperty,
				})
				continue
			}

			if e.removed {
				removedAt[id] = rank
			} else {
				presentAt[id] = rank
			}
		}
	}

	order := make([]string, 0, len(presentAt))
	bags := make(map[string][]layer, len(presentAt))

	for rank, l := range layers {
		for _, e := range l.value.([]*entry) {
			id, ok := e.identity(idProperty)
			if !ok || e.removed || !survives(id, rank, presentAt, removedAt) {
				continue
			}

			if _, seen := bags[id]; !seen {
				order = append(order, id)
			}

			bags[id] = append(bags[id], layer{stratum: l.stratum, value: e.bag})
		}
	}

	out := make([]*Object, 0, len(order))
	for _, id := range order {
		o := resolveObject(t.Type(), bags[id], fmt.Sprintf("%s[%s]", path, id), errs)
		o.identity = id
		out = append(out, o)
	}

	return out
}

// survives reports whether the entry for `id` at `rank` contributes to the
// resolved array.
func survives(id string, rank int, presentAt, removedAt map[string]int) bool {
	removed, ok := removedAt[id]
	if !ok {
		return true
	}

	return presentAt[id] > removed && rank > removed
}
