package openapi

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/koskimas/strata/pkg/trait"
	assert "github.com/stretchr/testify/require"
)

func readGroups(t *testing.T, files ...string) map[AbsoluteFilePath]map[GroupName]*trait.Group {
	paths := make([]AbsoluteFilePath, 0, len(files))
	for _, f := range files {
		p, err := filepath.Abs(filepath.Join("testdata", f))
		assert.NoError(t, err)
		paths = append(paths, p)
	}

	groups, err := ReadGroups(paths)
	assert.NoError(t, err)
	return groups
}

func traitIDs(g *trait.Group) []string {
	ids := make([]string, 0, g.Len())
	for _, t := range g.Traits() {
		ids = append(ids, t.ID())
	}
	return ids
}

func lookup(t *testing.T, g *trait.Group, id string) *trait.Trait {
	tr, ok := g.Trait(id)
	assert.True(t, ok, id)
	return tr
}

func TestReadGroups(t *testing.T) {
	groups := readGroups(t, "catalog.yaml")
	assert.Len(t, groups, 2)

	catalog, err := filepath.Abs("testdata/catalog.yaml")
	assert.NoError(t, err)
	common, err := filepath.Abs("testdata/common.yaml")
	assert.NoError(t, err)

	assert.ElementsMatch(t, []string{"CatalogItem", "Layered", "Layer"}, keys(groups[catalog]))
	assert.ElementsMatch(t, []string{"Named", "Point", "Path"}, keys(groups[common]))

	item := groups[catalog]["CatalogItem"]
	assert.Equal(t, []string{
		"description", "title",
		"extra", "layers", "opacity", "show", "style", "tags",
		"url",
	}, traitIDs(item))

	title := lookup(t, item, "title")
	assert.Equal(t, trait.KindString, title.Kind())
	assert.Equal(t, "Title", title.Name())
	assert.Equal(t, "Untitled", title.Default())
	assert.Equal(t, "Named", title.Origin())

	url := lookup(t, item, "url")
	assert.Equal(t, "Address of the service.", url.Description())
	assert.Equal(t, "CatalogItem.properties", url.Origin())

	opacity := lookup(t, item, "opacity")
	assert.Equal(t, trait.KindNumber, opacity.Kind())
	assert.Equal(t, 1.0, opacity.Default())

	assert.Equal(t, true, lookup(t, item, "show").Default())
	assert.Equal(t, trait.KindAny, lookup(t, item, "tags").Kind())
	assert.Equal(t, trait.KindAny, lookup(t, item, "extra").Kind())

	layers := lookup(t, item, "layers")
	assert.Equal(t, trait.KindObjectArray, layers.Kind())
	assert.Equal(t, "name", layers.IDProperty())
	assert.Same(t, groups[catalog]["Layer"], layers.Type())

	style := lookup(t, item, "style")
	assert.Equal(t, trait.KindObject, style.Kind())
	assert.Equal(t, "Layered.style", style.Type().Name())

	color := lookup(t, style.Type(), "color")
	assert.Equal(t, trait.KindString, color.Kind())
	assert.Equal(t, "#ffffff", color.Default())
	assert.Equal(t, "CSS color.", color.Description())

	outline := lookup(t, style.Type(), "outline")
	assert.Equal(t, "#000000", outline.Default())
	assert.Equal(t, "CSS color.", outline.Description())
}

func TestReadGroupsNumericIdentity(t *testing.T) {
	groups := readGroups(t, "common.yaml")

	for _, g := range groups {
		path, ok := g["Path"]
		if !ok {
			continue
		}

		points := lookup(t, path, "points")
		assert.Equal(t, "index", points.IDProperty())
		assert.Equal(t, trait.KindNumber, lookup(t, points.Type(), "index").Kind())
		return
	}

	t.Fatal("Path not found")
}

func TestReadGroupsErrors(t *testing.T) {
	tests := []struct {
		file  string
		check func(t *testing.T, err error)
	}{
		{"circular.yaml", func(t *testing.T, err error) {
			assert.ErrorContains(t, err, "circular reference")
		}},
		{"conflict.yaml", func(t *testing.T, err error) {
			var conflict *trait.SchemaConflictError
			assert.True(t, errors.As(err, &conflict))
			assert.Equal(t, "C", conflict.Schema)
			assert.Equal(t, "title", conflict.Field)
			assert.Equal(t, [2]string{"A", "B"}, conflict.Groups)
		}},
		{"invalid.yaml", func(t *testing.T, err error) {
			assert.ErrorContains(t, err, `unsupported OpenAPI schema type "date"`)
		}},
		{"missing_id.yaml", func(t *testing.T, err error) {
			assert.ErrorContains(t, err, `id property "id"`)
		}},
		{"nope.yaml", func(t *testing.T, err error) {
			assert.ErrorContains(t, err, "failed to read OpenAPI file")
		}},
	}

	for _, test := range tests {
		t.Run(test.file, func(t *testing.T) {
			_, err := ReadGroups([]AbsoluteFilePath{filepath.Join("testdata", test.file)})
			assert.Error(t, err)
			test.check(t, err)
		})
	}
}

func keys(m map[GroupName]*trait.Group) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
