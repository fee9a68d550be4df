package trait

import "fmt"

// Registry maps schema names to groups.
type Registry struct {
	groups       []*Group
	groupsByName map[string]*Group
}

func NewRegistry() *Registry {
	return &Registry{
		groups:       make([]*Group, 0),
		groupsByName: make(map[string]*Group),
	}
}

func (r *Registry) Add(g *Group) error {
	if existing, ok := r.groupsByName[g.name]; ok && existing != g {
		return fmt.Errorf(`schema "%s" is already registered`, g.name)
	} else if ok {
		return nil
	}

	r.groups = append(r.groups, g)
	r.groupsByName[g.name] = g
	return nil
}

func (r *Registry) Get(name string) (*Group, bool) {
	g, ok := r.groupsByName[name]
	return g, ok
}

// Groups returns the registered groups in registration order.
func (r *Registry) Groups() []*Group {
	out := make([]*Group, len(r.groups))
	copy(out, r.groups)
	return out
}

func (r *Registry) Len() int { return len(r.groups) }
