package trait

import "fmt"

// Trait describes one field of a group: its kind, which decides how values
// set by different strata are combined, and its default.
type Trait struct {
	id          string
	name        string
	description string
	kind        Kind
	def         any
	hasDefault  bool
	typ         *Group
	idProperty  string
	origin      string
}

type Option func(*Trait)

func Default(v any) Option {
	return func(t *Trait) {
		t.def = v
		t.hasDefault = true
	}
}

// Name sets the human readable name of the trait.
func Name(name string) Option {
	return func(t *Trait) {
		t.name = name
	}
}

func Description(description string) Option {
	return func(t *Trait) {
		t.description = description
	}
}

func String(id string, opts ...Option) *Trait {
	return newTrait(id, KindString, opts)
}

func Number(id string, opts ...Option) *Trait {
	return newTrait(id, KindNumber, opts)
}

func Bool(id string, opts ...Option) *Trait {
	return newTrait(id, KindBool, opts)
}

// Any creates a trait holding opaque structured data. Values are overridden as
// a whole, never merged.
func Any(id string, opts ...Option) *Trait {
	return newTrait(id, KindAny, opts)
}

// Object creates a trait whose value is a nested object of group `typ`. Each
// trait of the nested object is resolved on its own across strata.
func Object(id string, typ *Group, opts ...Option) *Trait {
	t := newTrait(id, KindObject, opts)
	t.typ = typ
	return t
}

// ObjectArray creates a trait whose value is a list of nested objects of group
// `typ`. Entries are identified by the value of their `idProperty` trait.
func ObjectArray(id string, typ *Group, idProperty string, opts ...Option) *Trait {
	t := newTrait(id, KindObjectArray, opts)
	t.typ = typ
	t.idProperty = idProperty
	return t
}

func newTrait(id string, kind Kind, opts []Option) *Trait {
	t := &Trait{
		id:   id,
		kind: kind,
	}

	for _, o := range opts {
		o(t)
	}

	if t.kind == KindNumber && t.hasDefault {
		if n, ok := ToNumber(t.def); ok {
			t.def = n
		}
	}

	return t
}

func (t *Trait) ID() string { return t.id }

// Name returns the display name, falling back to the id.
func (t *Trait) Name() string {
	if t.name == "" {
		return t.id
	}

	return t.name
}

func (t *Trait) Description() string { return t.description }
func (t *Trait) Kind() Kind          { return t.kind }

// Default returns the value the trait resolves to when no stratum sets it.
func (t *Trait) Default() any { return t.def }

func (t *Trait) HasDefault() bool { return t.hasDefault }

// Type returns the nested group of object and object array traits.
func (t *Trait) Type() *Group { return t.typ }

func (t *Trait) IDProperty() string { return t.idProperty }

// Origin returns the name of the group that defined the trait first.
func (t *Trait) Origin() string { return t.origin }

func (t *Trait) String() string {
	return fmt.Sprintf("%s %s", t.id, t.kind)
}

func (t *Trait) validate() error {
	if len(t.id) == 0 {
		return fmt.Errorf("empty trait id")
	}

	if !t.kind.Valid() {
		return fmt.Errorf(`trait "%s" has unknown kind "%s"`, t.id, t.kind)
	}

	if t.kind.Nested() {
		if t.typ == nil {
			return fmt.Errorf(`%s trait "%s" has no nested group`, t.kind, t.id)
		}

		if t.hasDefault {
			return fmt.Errorf(`%s trait "%s" cannot have a default`, t.kind, t.id)
		}
	}

	if t.kind == KindObjectArray {
		idt, ok := t.typ.Trait(t.idProperty)
		if !ok {
			return fmt.Errorf(`id property "%s" of trait "%s" is not a trait of "%s"`, t.idProperty, t.id, t.typ.Name())
		}

		if idt.kind != KindString && idt.kind != KindNumber {
			return fmt.Errorf(`id property "%s" of trait "%s" must be a string or number, got %s`, t.idProperty, t.id, idt.kind)
		}
	}

	if t.hasDefault && t.def != nil {
		if err := checkDefault(t); err != nil {
			return err
		}
	}

	return nil
}

func checkDefault(t *Trait) error {
	var ok bool

	switch t.kind {
	case KindString:
		_, ok = t.def.(string)
	case KindNumber:
		_, ok = t.def.(float64)
	case KindBool:
		_, ok = t.def.(bool)
	case KindAny:
		ok = true
	}

	if !ok {
		return fmt.Errorf(`default %v of trait "%s" is not a %s`, t.def, t.id, t.kind)
	}

	return nil
}
