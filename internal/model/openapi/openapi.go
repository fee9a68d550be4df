package openapi

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/koskimas/strata/internal/maps"
	"github.com/koskimas/strata/internal/ptr"
	"github.com/koskimas/strata/pkg/trait"
	"gopkg.in/yaml.v3"
)

// DefaultIDProperty is the id property of object arrays that don't set
// `x-id-property`.
const DefaultIDProperty = "id"

const maxRefDepth = 32

type File struct {
	Components Components `yaml:"components"`
}

type Components struct {
	Schemas map[string]Schema `yaml:"schemas"`
}

type Schema struct {
	Type        string            `yaml:"type"`
	Ref         *string           `yaml:"$ref"`
	AllOf       []Schema          `yaml:"allOf"`
	Properties  map[string]Schema `yaml:"properties"`
	Items       *Schema           `yaml:"items"`
	Title       string            `yaml:"title"`
	Description string            `yaml:"description"`
	Default     any               `yaml:"default"`
	IDProperty  string            `yaml:"x-id-property"`
}

type AbsoluteFilePath = string
type GroupName = string

type context struct {
	Files map[AbsoluteFilePath]*fileContext
}

type fileContext struct {
	File      *File
	Groups    map[GroupName]*trait.Group
	resolving map[GroupName]bool
}

// ReadGroups reads trait groups from the `components.schemas` of OpenAPI
// files. Every object schema, and every schema built with `allOf`, becomes a
// group named after the schema. Other schemas are only used through `$ref`.
func ReadGroups(filePaths []AbsoluteFilePath) (map[AbsoluteFilePath]map[GroupName]*trait.Group, error) {
	ctx := &context{
		Files: make(map[AbsoluteFilePath]*fileContext),
	}

	for _, p := range filePaths {
		if err := resolveFile(ctx, p); err != nil {
			return nil, err
		}
	}

	groups := make(map[AbsoluteFilePath]map[GroupName]*trait.Group)
	for path, f := range ctx.Files {
		groups[path] = f.Groups
	}

	return groups, nil
}

func resolveFile(ctx *context, filePath AbsoluteFilePath) error {
	if _, ok := ctx.Files[filePath]; ok {
		return nil
	}

	fileData, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf(`failed to read OpenAPI file "%s": %w`, filePath, err)
	}

	var file File
	if err := yaml.Unmarshal(fileData, &file); err != nil {
		return fmt.Errorf(`failed to unmarshal OpenAPI file "%s": %w`, filePath, err)
	}

	fileCtx := &fileContext{
		File:      &file,
		Groups:    make(map[GroupName]*trait.Group),
		resolving: make(map[GroupName]bool),
	}

	ctx.Files[filePath] = fileCtx

	for _, name := range maps.SortedKeys(file.Components.Schemas) {
		if !isGroup(file.Components.Schemas[name]) {
			continue
		}

		if _, err := resolveRootGroup(ctx, filePath, name); err != nil {
			return fmt.Errorf(`in OpenAPI file "%s": %w`, filePath, err)
		}
	}

	return nil
}

func resolveRootGroup(ctx *context, filePath AbsoluteFilePath, name GroupName) (*trait.Group, error) {
	fileCtx := ctx.Files[filePath]

	if g, ok := fileCtx.Groups[name]; ok {
		return g, nil
	}

	if fileCtx.resolving[name] {
		return nil, fmt.Errorf(`circular reference to schema "%s"`, name)
	}

	schema, ok := fileCtx.File.Components.Schemas[name]
	if !ok {
		return nil, fmt.Errorf(`schema "%s" not found in "%s"`, name, filePath)
	}

	fileCtx.resolving[name] = true
	defer delete(fileCtx.resolving, name)

	g, err := resolveGroup(ctx, schema, filePath, name)
	if err != nil {
		return nil, err
	}

	fileCtx.Groups[name] = g
	return g, nil
}

func resolveGroup(ctx *context, schema Schema, filePath AbsoluteFilePath, name GroupName) (*trait.Group, error) {
	if schema.Ref != nil {
		refFile, refName, err := resolveReference(ctx, *schema.Ref, filePath)
		if err != nil {
			return nil, err
		}

		return resolveRootGroup(ctx, refFile, refName)
	}

	if len(schema.AllOf) == 0 {
		return resolveProperties(ctx, schema, filePath, name)
	}

	groups := make([]*trait.Group, 0, len(schema.AllOf)+1)

	for i, s := range schema.AllOf {
		g, err := resolveGroup(ctx, s, filePath, fmt.Sprintf("%s.allOf[%d]", name, i))
		if err != nil {
			return nil, err
		}

		groups = append(groups, g)
	}

	if len(schema.Properties) > 0 {
		own, err := resolveProperties(ctx, schema, filePath, name+".properties")
		if err != nil {
			return nil, err
		}

		groups = append(groups, own)
	}

	return trait.Mix(name, groups...)
}

func resolveProperties(ctx *context, schema Schema, filePath AbsoluteFilePath, name GroupName) (*trait.Group, error) {
	traits := make([]*trait.Trait, 0, len(schema.Properties))

	for _, pn := range maps.SortedKeys(schema.Properties) {
		t, err := resolveTrait(ctx, pn, schema.Properties[pn], filePath, name)
		if err != nil {
			return nil, fmt.Errorf(`property "%s" of "%s": %w`, pn, name, err)
		}

		traits = append(traits, t)
	}

	return trait.NewGroup(name, traits...)
}

func resolveTrait(ctx *context, id string, schema Schema, filePath AbsoluteFilePath, parent GroupName) (*trait.Trait, error) {
	// Follow references to non-object schemas, letting the referring schema
	// override title, description and default.
	for depth := 0; schema.Ref != nil; depth++ {
		if depth == maxRefDepth {
			return nil, fmt.Errorf(`reference chain through "%s" is too deep`, *schema.Ref)
		}

		refFile, refName, err := resolveReference(ctx, *schema.Ref, filePath)
		if err != nil {
			return nil, err
		}

		target, ok := ctx.Files[refFile].File.Components.Schemas[refName]
		if !ok {
			return nil, fmt.Errorf(`schema "%s" not found in "%s"`, refName, refFile)
		}

		if isGroup(target) {
			g, err := resolveRootGroup(ctx, refFile, refName)
			if err != nil {
				return nil, err
			}

			return trait.Object(id, g, nestedOptions(schema)...), nil
		}

		schema = overlay(target, schema)
		filePath = refFile
	}

	kind, err := parseKind(schema)
	if err != nil {
		return nil, err
	}

	switch *kind {
	case trait.KindString:
		return trait.String(id, options(schema)...), nil
	case trait.KindNumber:
		return trait.Number(id, options(schema)...), nil
	case trait.KindBool:
		return trait.Bool(id, options(schema)...), nil
	case trait.KindObject:
		if !isGroup(schema) {
			return trait.Any(id, options(schema)...), nil
		}

		g, err := resolveGroup(ctx, schema, filePath, parent+"."+id)
		if err != nil {
			return nil, err
		}

		return trait.Object(id, g, nestedOptions(schema)...), nil
	case trait.KindObjectArray:
		g, err := itemsGroup(ctx, schema, filePath, parent+"."+id)
		if err != nil {
			return nil, err
		}

		if g == nil {
			return trait.Any(id, options(schema)...), nil
		}

		idProperty := schema.IDProperty
		if len(idProperty) == 0 {
			idProperty = DefaultIDProperty
		}

		return trait.ObjectArray(id, g, idProperty, nestedOptions(schema)...), nil
	}

	return trait.Any(id, options(schema)...), nil
}

// itemsGroup returns the group of the items of an array schema, or nil when
// the items are not objects.
func itemsGroup(ctx *context, schema Schema, filePath AbsoluteFilePath, name GroupName) (*trait.Group, error) {
	if schema.Items == nil {
		return nil, nil
	}

	items := *schema.Items

	if items.Ref != nil {
		refFile, refName, err := resolveReference(ctx, *items.Ref, filePath)
		if err != nil {
			return nil, err
		}

		target, ok := ctx.Files[refFile].File.Components.Schemas[refName]
		if !ok {
			return nil, fmt.Errorf(`schema "%s" not found in "%s"`, refName, refFile)
		}

		if !isGroup(target) {
			return nil, nil
		}

		return resolveRootGroup(ctx, refFile, refName)
	}

	if !isGroup(items) {
		return nil, nil
	}

	return resolveGroup(ctx, items, filePath, name)
}

// resolveReference loads the file a `$ref` points to and returns the file
// and the schema name.
func resolveReference(ctx *context, ref string, filePath AbsoluteFilePath) (AbsoluteFilePath, GroupName, error) {
	const refPath = "#/components/schemas/"

	parts := strings.Split(ref, refPath)
	if len(parts) != 2 {
		return "", "", fmt.Errorf(`couldn't parse reference "%s"`, ref)
	}

	if len(parts[0]) == 0 {
		return filePath, parts[1], nil
	}

	refFilePath := filepath.Join(filepath.Dir(filePath), parts[0])

	if err := resolveFile(ctx, refFilePath); err != nil {
		return "", "", err
	}

	return refFilePath, parts[1], nil
}

func isGroup(schema Schema) bool {
	return len(schema.AllOf) > 0 || (len(schema.Properties) > 0 && (schema.Type == "object" || schema.Type == ""))
}

// overlay returns `target` with the title, description and default of
// `referrer` where it sets them.
func overlay(target, referrer Schema) Schema {
	out := target

	if len(referrer.Title) > 0 {
		out.Title = referrer.Title
	}

	if len(referrer.Description) > 0 {
		out.Description = referrer.Description
	}

	if referrer.Default != nil {
		out.Default = referrer.Default
	}

	return out
}

func options(schema Schema) []trait.Option {
	opts := nestedOptions(schema)

	if schema.Default != nil {
		opts = append(opts, trait.Default(schema.Default))
	}

	return opts
}

// nestedOptions are the options of object and object array traits, which
// can't have defaults.
func nestedOptions(schema Schema) []trait.Option {
	opts := make([]trait.Option, 0, 3)

	if len(schema.Title) > 0 {
		opts = append(opts, trait.Name(schema.Title))
	}

	if len(schema.Description) > 0 {
		opts = append(opts, trait.Description(schema.Description))
	}

	return opts
}

func parseKind(schema Schema) (*trait.Kind, error) {
	switch schema.Type {
	case "object", "":
		return ptr.V(trait.KindObject), nil
	case "array":
		return ptr.V(trait.KindObjectArray), nil
	case "string":
		return ptr.V(trait.KindString), nil
	case "integer", "number":
		return ptr.V(trait.KindNumber), nil
	case "boolean":
		return ptr.V(trait.KindBool), nil
	}

	return nil, fmt.Errorf(`unsupported OpenAPI schema type "%s"`, schema.Type)
}
