package gen

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/dave/jennifer/jen"
	"github.com/koskimas/strata/pkg/trait"
)

const (
	modelPackage = "github.com/koskimas/strata/pkg/model"

	idParamPlain = "p"
	idParamModel = "m"
	idVarOutput  = "out"
	idVarValue   = "v"
	idVarElement = "e"
	idVarMap     = "em"
	idVarErr     = "err"

	fromPlainSuffix = "FromPlain"
	resolvePrefix   = "Resolve"
)

// GenerateCode generates a Go file of package `pkgName` holding a struct for
// every group of `groups` and every group nested in them, a function decoding
// resolved plain data into the struct, and for the top level groups a
// function resolving a model into the struct.
func GenerateCode(pkgName string, groups []*trait.Group) *jen.File {
	f := jen.NewFile(pkgName)
	f.HeaderComment("Code generated by strata. DO NOT EDIT.")

	names := newTypeNames()
	for _, g := range groups {
		names.collect(g)
	}

	for _, g := range names.groups {
		genStruct(f, g, names)
		genFieldConstants(f, g, names)
		genFromPlain(f, g, names)
	}

	for _, g := range groups {
		genResolve(f, g, names)
	}

	return f
}

// WriteToFile renders `f` into `filePath`, creating missing directories.
func WriteToFile(f *jen.File, filePath string) error {
	var buf bytes.Buffer
	if err := f.Render(&buf); err != nil {
		return fmt.Errorf(`failed to render "%s": %w`, filePath, err)
	}

	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return err
	}

	return os.WriteFile(filePath, buf.Bytes(), 0644)
}

func genStruct(f *jen.File, g *trait.Group, names *typeNames) {
	f.Commentf("%s holds the resolved traits of %s.", names.of(g), g.Name())
	f.Type().Id(names.of(g)).StructFunc(func(s *jen.Group) {
		for _, t := range g.Traits() {
			s.Id(names.field(g, t)).Add(fieldType(t, names)).Tag(map[string]string{"json": t.ID() + ",omitempty"})
		}
	})
	f.Empty()
}

// genFieldConstants generates constants of the trait ids, usable as model
// paths.
func genFieldConstants(f *jen.File, g *trait.Group, names *typeNames) {
	if g.Len() == 0 {
		return
	}

	f.Const().DefsFunc(func(d *jen.Group) {
		for _, t := range g.Traits() {
			d.Id(names.constant(g, t)).Op("=").Lit(t.ID())
		}
	})
	f.Empty()
}

func fieldType(t *trait.Trait, names *typeNames) *jen.Statement {
	switch t.Kind() {
	case trait.KindString:
		return jen.String()
	case trait.KindNumber:
		return jen.Float64()
	case trait.KindBool:
		return jen.Bool()
	case trait.KindObject:
		return jen.Op("*").Id(names.of(t.Type()))
	case trait.KindObjectArray:
		return jen.Index().Id(names.of(t.Type()))
	}

	return jen.Id("any")
}

func genFromPlain(f *jen.File, g *trait.Group, names *typeNames) {
	name := names.of(g)

	f.Commentf("%s%s decodes plain data as returned by model.Plain.", name, fromPlainSuffix)
	f.Func().Id(name+fromPlainSuffix).Params(
		jen.Id(idParamPlain).Map(jen.String()).Id("any"),
	).Id(name).BlockFunc(func(b *jen.Group) {
		b.Var().Id(idVarOutput).Id(name)

		for _, t := range g.Traits() {
			genDecodeField(b, g, t, names)
		}

		b.Return(jen.Id(idVarOutput))
	})
	f.Empty()
}

func genDecodeField(b *jen.Group, g *trait.Group, t *trait.Trait, names *typeNames) {
	field := jen.Id(idVarOutput).Dot(names.field(g, t))
	value := jen.Id(idParamPlain).Index(jen.Lit(t.ID()))

	switch t.Kind() {
	case trait.KindString, trait.KindNumber, trait.KindBool:
		b.List(field, jen.Id("_")).Op("=").Add(value).Assert(fieldType(t, names))
	case trait.KindObject:
		b.If(
			jen.List(jen.Id(idVarValue), jen.Id("ok")).Op(":=").Add(value).Assert(jen.Map(jen.String()).Id("any")),
			jen.Id("ok"),
		).Block(
			jen.Id(idVarElement).Op(":=").Id(names.of(t.Type())+fromPlainSuffix).Call(jen.Id(idVarValue)),
			field.Clone().Op("=").Op("&").Id(idVarElement),
		)
	case trait.KindObjectArray:
		b.If(
			jen.List(jen.Id(idVarValue), jen.Id("ok")).Op(":=").Add(value).Assert(jen.Index().Id("any")),
			jen.Id("ok"),
		).Block(
			jen.For(jen.List(jen.Id("_"), jen.Id(idVarElement)).Op(":=").Range().Id(idVarValue)).Block(
				jen.If(
					jen.List(jen.Id(idVarMap), jen.Id("ok")).Op(":=").Id(idVarElement).Assert(jen.Map(jen.String()).Id("any")),
					jen.Id("ok"),
				).Block(
					field.Clone().Op("=").Append(field.Clone(), jen.Id(names.of(t.Type())+fromPlainSuffix).Call(jen.Id(idVarMap))),
				),
			),
		)
	default:
		b.Add(field).Op("=").Add(value)
	}
}

func genResolve(f *jen.File, g *trait.Group, names *typeNames) {
	name := names.of(g)

	f.Commentf("%s%s resolves all traits of a model of %s. Malformed object array entries are reported in the error and left out.", resolvePrefix, name, g.Name())
	f.Func().Id(resolvePrefix+name).Params(
		jen.Id(idParamModel).Op("*").Qual(modelPackage, "Model"),
	).Params(jen.Id(name), jen.Error()).Block(
		jen.List(jen.Id(idParamPlain), jen.Id(idVarErr)).Op(":=").Id(idParamModel).Dot("Resolved").Call(),
		jen.Return(jen.Id(name+fromPlainSuffix).Call(jen.Id(idParamPlain)), jen.Id(idVarErr)),
	)
	f.Empty()
}

// typeNames assigns unique Go type names to groups in the order they are
// first seen, unique field names within each group and unique names for the
// field constants. Types and constants share one namespace.
type typeNames struct {
	groups    []*trait.Group
	names     map[*trait.Group]string
	fields    map[*trait.Group]map[string]string
	constants map[*trait.Group]map[string]string
	taken     map[string]bool
}

func newTypeNames() *typeNames {
	return &typeNames{
		groups:    make([]*trait.Group, 0),
		names:     make(map[*trait.Group]string),
		fields:    make(map[*trait.Group]map[string]string),
		constants: make(map[*trait.Group]map[string]string),
		taken:     make(map[string]bool),
	}
}

// unique returns `base`, or `base` with the first numeric suffix from 2 on
// that `taken` doesn't hold, and marks it taken.
func unique(base string, taken map[string]bool) string {
	name := base
	for i := 2; taken[name]; i++ {
		name = fmt.Sprintf("%s%d", base, i)
	}

	taken[name] = true
	return name
}

func (n *typeNames) collect(g *trait.Group) {
	if _, ok := n.names[g]; ok {
		return
	}

	name := unique(typeName(g.Name()), n.taken)
	n.names[g] = name
	n.groups = append(n.groups, g)

	fields := make(map[string]string, g.Len())
	constants := make(map[string]string, g.Len())
	fieldsTaken := make(map[string]bool, g.Len())

	for _, t := range g.Traits() {
		fields[t.ID()] = unique(fieldName(t.ID()), fieldsTaken)
		constants[t.ID()] = unique(name+fields[t.ID()]+"Field", n.taken)
	}

	n.fields[g] = fields
	n.constants[g] = constants

	for _, t := range g.Traits() {
		if t.Type() != nil {
			n.collect(t.Type())
		}
	}
}

func (n *typeNames) of(g *trait.Group) string {
	return n.names[g]
}

func (n *typeNames) field(g *trait.Group, t *trait.Trait) string {
	return n.fields[g][t.ID()]
}

func (n *typeNames) constant(g *trait.Group, t *trait.Trait) string {
	return n.constants[g][t.ID()]
}

// typeName converts a group name like `Layered.style` into a Go identifier
// like `LayeredStyle`.
func typeName(name string) string {
	return identifier(name)
}

func fieldName(id string) string {
	return identifier(id)
}

// identifier drops the characters of `s` that can't appear in a Go
// identifier and upper cases the letters following them.
func identifier(s string) string {
	var b strings.Builder
	upper := true

	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			upper = true
			continue
		}

		if b.Len() == 0 && unicode.IsDigit(r) {
			b.WriteString("X")
		}

		if upper {
			r = unicode.ToUpper(r)
			upper = false
		}

		b.WriteRune(r)
	}

	if b.Len() == 0 {
		return "X"
	}

	return b.String()
}
