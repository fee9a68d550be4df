package model

import (
	"fmt"
	"slices"

	"github.com/koskimas/strata/pkg/trait"
)

// Collection owns models by id. All models of a collection share one
// precedence.
type Collection struct {
	precedence Precedence
	opts       []Option
	models     map[string]*Model
	ids        []string
}

func NewCollection(precedence Precedence, opts ...Option) (*Collection, error) {
	if err := precedence.Validate(); err != nil {
		return nil, fmt.Errorf("invalid precedence for collection: %w", err)
	}

	return &Collection{
		precedence: precedence.Clone(),
		opts:       opts,
		models:     make(map[string]*Model),
		ids:        make([]string, 0),
	}, nil
}

// New creates a model of schema `group` and adds it to the collection.
func (c *Collection) New(group *trait.Group, id string) (*Model, error) {
	if _, ok := c.models[id]; ok && len(id) > 0 {
		return nil, fmt.Errorf(`model "%s" already exists`, id)
	}

	m, err := New(group, id, c.precedence, c.opts...)
	if err != nil {
		return nil, err
	}

	if err := c.Add(m); err != nil {
		return nil, err
	}

	return m, nil
}

func (c *Collection) Add(m *Model) error {
	if _, ok := c.models[m.id]; ok {
		return fmt.Errorf(`model "%s" already exists`, m.id)
	}

	if !slices.Equal(c.precedence, m.precedence) {
		return fmt.Errorf(`model "%s" has a different precedence than the collection`, m.id)
	}

	c.models[m.id] = m
	c.ids = append(c.ids, m.id)
	return nil
}

func (c *Collection) Get(id string) (*Model, bool) {
	m, ok := c.models[id]
	return m, ok
}

// Remove discards the model `id`. It reports whether the model existed.
func (c *Collection) Remove(id string) bool {
	if _, ok := c.models[id]; !ok {
		return false
	}

	delete(c.models, id)
	c.ids = slices.DeleteFunc(c.ids, func(x string) bool { return x == id })
	return true
}

// IDs returns the ids of all models in the order they were added.
func (c *Collection) IDs() []string {
	return slices.Clone(c.ids)
}

func (c *Collection) Len() int { return len(c.ids) }

func (c *Collection) Precedence() Precedence { return c.precedence.Clone() }
