package pg

import (
	"fmt"

	"github.com/koskimas/strata/pkg/trait"
)

// Column represents a table column. `Default` holds the column default when
// it is a constant, converted to the kind of the column.
type Column struct {
	Name    string
	Type    DataType
	Default any
	Comment string
}

func (c *Column) Clone() *Column {
	return &Column{
		Name:    c.Name,
		Type:    c.Type.Clone(),
		Default: c.Default,
		Comment: c.Comment,
	}
}

// Trait returns the trait of the column.
func (c *Column) Trait() *trait.Trait {
	opts := make([]trait.Option, 0, 2)

	if len(c.Comment) > 0 {
		opts = append(opts, trait.Description(c.Comment))
	}

	if c.Default != nil {
		opts = append(opts, trait.Default(c.Default))
	}

	switch c.Type.Kind() {
	case trait.KindNumber:
		return trait.Number(c.Name, opts...)
	case trait.KindBool:
		return trait.Bool(c.Name, opts...)
	case trait.KindAny:
		return trait.Any(c.Name, opts...)
	}

	return trait.String(c.Name, opts...)
}

// setDefault keeps `v` as the default when it fits the kind of the column.
func (c *Column) setDefault(v any) {
	c.Default = nil

	switch c.Type.Kind() {
	case trait.KindNumber:
		if n, ok := trait.ToNumber(v); ok {
			c.Default = n
		}
	case trait.KindBool:
		if b, ok := v.(bool); ok {
			c.Default = b
		}
	case trait.KindString:
		if s, ok := v.(string); ok {
			c.Default = s
		}
	}
}

func (c *Column) writeString(s *stringBuilder) {
	s.WriteString(c.Name)
	s.WriteString(" ")
	c.Type.writeString(s)

	if c.Default != nil {
		s.WriteString(fmt.Sprintf(" default %v", c.Default))
	}
}

func (c *Column) String() string {
	var s stringBuilder
	c.writeString(&s)
	return s.String()
}
