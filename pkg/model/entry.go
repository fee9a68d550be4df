package model

import "github.com/koskimas/strata/internal/match"

// Entry is one element of an object array as written to a stratum. It either
// holds the values of the element or marks its identity as removed.
type Entry struct {
	ID      string
	Removed bool
	Values  map[string]any
}

// Present returns an entry setting `values` for the element with identity
// `id`.
func Present(id string, values map[string]any) Entry {
	return Entry{
		ID:     id,
		Values: values,
	}
}

// Removed returns a tombstone for the element with identity `id`. It hides
// the element from strata of lower precedence.
func Removed(id string) Entry {
	return Entry{
		ID:      id,
		Removed: true,
	}
}

func (e Entry) plain(idProperty string, idValue func(string) (any, error)) (map[string]any, error) {
	out := make(map[string]any, len(e.Values)+2)

	for k, v := range e.Values {
		out[k] = v
	}

	if len(e.ID) > 0 {
		id, err := idValue(e.ID)
		if err != nil {
			return nil, err
		}

		out[idProperty] = id
	}

	if e.Removed {
		out[match.RemovedKey] = true
	}

	return out, nil
}

// entry is the stored form of an Entry. The identity lives in the bag under
// the id property of the array trait.
type entry struct {
	removed bool
	bag     *bag
}

func (e *entry) clone() *entry {
	return &entry{
		removed: e.removed,
		bag:     e.bag.clone(),
	}
}

func (e *entry) identity(idProperty string) (string, bool) {
	return identityOf(e.bag.values[idProperty])
}

func entriesClone(list []*entry) []*entry {
	out := make([]*entry, len(list))

	for i, e := range list {
		out[i] = e.clone()
	}

	return out
}
