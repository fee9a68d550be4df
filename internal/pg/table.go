package pg

import (
	"slices"
	"strings"
	"unicode"

	"github.com/koskimas/strata/pkg/trait"
)

type Table struct {
	Name          *TableName
	Columns       []*Column
	ColumnsByName map[string]*Column
}

type TableName struct {
	Name   string
	Schema string
}

func NewTable(name ...TableName) *Table {
	t := &Table{
		Columns:       make([]*Column, 0),
		ColumnsByName: make(map[string]*Column),
	}

	if len(name) > 0 {
		t.Name = &name[0]
	}

	return t
}

func (t *Table) AddColumn(col *Column) {
	t.ColumnsByName[col.Name] = col
	t.Columns = append(t.Columns, col)
}

func (t *Table) RemoveColumn(name string) {
	delete(t.ColumnsByName, name)
	t.Columns = slices.DeleteFunc(t.Columns, func(c *Column) bool { return c.Name == name })
}

func (t *Table) RenameColumn(name string, newName string) {
	c := t.ColumnsByName[name]
	delete(t.ColumnsByName, name)

	c.Name = newName
	t.ColumnsByName[newName] = c
}

func (t *Table) Clone() *Table {
	clone := NewTable()

	if t.Name != nil {
		clone.Name = t.Name.Clone()
	}

	for _, c := range t.Columns {
		clone.AddColumn(c.Clone())
	}

	return clone
}

// Group returns the trait group of the table. Traits are in column order.
func (t *Table) Group() (*trait.Group, error) {
	traits := make([]*trait.Trait, 0, len(t.Columns))

	for _, c := range t.Columns {
		traits = append(traits, c.Trait())
	}

	return trait.NewGroup(GroupName(*t.Name), traits...)
}

func (t *Table) writeString(s *stringBuilder) {
	if t.Name != nil {
		t.Name.string(s)
		s.WriteString(" ")
	}

	s.block("(", ")", func() {
		for i, c := range t.Columns {
			c.writeString(s)

			if i != len(t.Columns)-1 {
				s.WriteString(",")
			}

			s.newLine()
		}
	})
}

func (t *Table) String() string {
	var s stringBuilder
	t.writeString(&s)
	return s.String()
}

func NewTableName(name string, schema ...string) TableName {
	var t TableName

	t.Name = name
	if len(schema) > 0 && schema[0] != "public" {
		t.Schema = schema[0]
	}

	return t
}

func (n *TableName) HasSchema() bool {
	return len(n.Schema) != 0
}

func (n *TableName) Clone() *TableName {
	return &TableName{
		Name:   n.Name,
		Schema: n.Schema,
	}
}

func (n *TableName) string(s *stringBuilder) {
	if n.HasSchema() {
		s.WriteString(n.Schema + ".")
	}

	s.WriteString(n.Name)
}

func (n *TableName) String() string {
	var s stringBuilder
	n.string(&s)
	return s.String()
}

// GroupName converts a table name like `audit.catalog_items` into a group
// name like `AuditCatalogItems`.
func GroupName(n TableName) string {
	var s strings.Builder

	if n.HasSchema() {
		s.WriteString(pascalCase(n.Schema))
	}

	s.WriteString(pascalCase(n.Name))
	return s.String()
}

func pascalCase(name string) string {
	var s strings.Builder

	for _, part := range strings.FieldsFunc(name, func(r rune) bool { return r == '_' || r == '-' }) {
		runes := []rune(part)
		runes[0] = unicode.ToUpper(runes[0])
		s.WriteString(string(runes))
	}

	return s.String()
}
