package trait

// Mix composes groups into a new group named `name` holding the union of their
// traits in argument order. Traits are shared, not copied, so defaults and
// kinds stay exactly as the constituent groups defined them. A trait id
// contributed by two groups is a *SchemaConflictError, unless both contribute
// the very same trait (a group mixed in through two paths).
//
// The returned group is open: more traits can be defined on it before it is
// used.
func Mix(name string, groups ...*Group) (*Group, error) {
	mixed, err := NewGroup(name)
	if err != nil {
		return nil, err
	}

	for _, g := range groups {
		g.Seal()

		for _, t := range g.traits {
			if err := mixed.define(t, g.name); err != nil {
				return nil, err
			}
		}
	}

	return mixed, nil
}

func MustMix(name string, groups ...*Group) *Group {
	g, err := Mix(name, groups...)
	if err != nil {
		panic(err)
	}

	return g
}
