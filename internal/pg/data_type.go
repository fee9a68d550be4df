package pg

import "github.com/koskimas/strata/pkg/trait"

// DataTypeKinds maps postgres type names, as the parser reports them, to
// trait kinds. Types not listed here become strings.
var DataTypeKinds = map[string]trait.Kind{
	"text":    trait.KindString,
	"varchar": trait.KindString,
	"bpchar":  trait.KindString,
	"char":    trait.KindString,
	"name":    trait.KindString,
	"citext":  trait.KindString,
	"uuid":    trait.KindString,

	"int2":      trait.KindNumber,
	"int4":      trait.KindNumber,
	"int8":      trait.KindNumber,
	"smallint":  trait.KindNumber,
	"integer":   trait.KindNumber,
	"bigint":    trait.KindNumber,
	"serial":    trait.KindNumber,
	"serial2":   trait.KindNumber,
	"serial4":   trait.KindNumber,
	"serial8":   trait.KindNumber,
	"bigserial": trait.KindNumber,
	"float4":    trait.KindNumber,
	"float8":    trait.KindNumber,
	"real":      trait.KindNumber,
	"numeric":   trait.KindNumber,
	"decimal":   trait.KindNumber,
	"money":     trait.KindNumber,

	"bool":    trait.KindBool,
	"boolean": trait.KindBool,

	"json":  trait.KindAny,
	"jsonb": trait.KindAny,
}

// DataType represents a postgres data type.
type DataType struct {
	Name    string
	Schema  *string
	NotNull bool

	// Array is true if the type is a postgres array. For example `INT[]`
	// would produce a DataType `{ Name: "int4", Array: true }`.
	Array bool
}

// Kind returns the trait kind values of the type resolve to. Arrays are
// opaque.
func (d *DataType) Kind() trait.Kind {
	if d.Array {
		return trait.KindAny
	}

	if k, ok := DataTypeKinds[d.Name]; ok {
		return k
	}

	return trait.KindString
}

func (d *DataType) Clone() DataType {
	return DataType{
		Name:    d.Name,
		NotNull: d.NotNull,
		Array:   d.Array,
		Schema:  d.Schema,
	}
}

func (d *DataType) writeString(s *stringBuilder) {
	if d.Schema != nil {
		s.WriteString(*d.Schema + ".")
	}

	s.WriteString(d.Name)

	if d.Array {
		s.WriteString("[]")
	}

	if d.NotNull {
		s.WriteString(" not null")
	}
}

func (d *DataType) String() string {
	var s stringBuilder
	d.writeString(&s)
	return s.String()
}
