package pg

import (
	"fmt"
	"slices"

	"github.com/koskimas/strata/pkg/trait"
)

// DB is the schema state produced by applying migrations in order.
type DB struct {
	Tables       []*Table
	TablesByName map[TableName]*Table
}

func NewDB() *DB {
	return &DB{
		Tables:       make([]*Table, 0),
		TablesByName: make(map[TableName]*Table),
	}
}

func (db *DB) Clone() *DB {
	clone := NewDB()

	for _, t := range db.Tables {
		clone.AddTable(t.Clone())
	}

	return clone
}

func (db *DB) Table(name string, schema ...string) (*Table, bool) {
	t, ok := db.TablesByName[NewTableName(name, schema...)]
	return t, ok
}

func (db *DB) AddTable(table *Table) {
	db.TablesByName[*table.Name] = table
	db.Tables = append(db.Tables, table)
}

func (db *DB) RemoveTable(name TableName) {
	delete(db.TablesByName, name)
	db.Tables = slices.DeleteFunc(db.Tables, func(t *Table) bool { return *t.Name == name })
}

func (db *DB) RenameTable(name TableName, newName TableName) {
	t := db.TablesByName[name]
	delete(db.TablesByName, name)

	t.Name = &newName
	db.TablesByName[newName] = t
}

// Groups converts every table into a trait group named by GroupName. Each
// column becomes a trait of the kind given by its data type.
func (db *DB) Groups() ([]*trait.Group, error) {
	groups := make([]*trait.Group, 0, len(db.Tables))

	for _, t := range db.Tables {
		g, err := t.Group()
		if err != nil {
			return nil, fmt.Errorf(`failed to convert table "%s": %w`, t.Name, err)
		}

		groups = append(groups, g)
	}

	return groups, nil
}

// String lists the tables as `CREATE TABLE` like blocks, mainly for debugging
// migrations.
func (db *DB) String() string {
	var s stringBuilder

	for _, t := range db.Tables {
		t.writeString(&s)
		s.WriteString(";")
		s.newLine()
	}

	return s.String()
}
