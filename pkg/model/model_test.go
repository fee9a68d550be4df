package model

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/koskimas/strata/internal/match"
	"github.com/koskimas/strata/internal/ref"
	"github.com/koskimas/strata/pkg/trait"
	assert "github.com/stretchr/testify/require"
)

var (
	innerTraits = trait.MustGroup("InnerTraits",
		trait.String("foo", trait.Name("Foo")),
		trait.Number("bar", trait.Name("Bar")),
		trait.Bool("baz", trait.Name("Baz"), trait.Default(false)),
	)

	itemTraits = trait.MustGroup("ItemTraits",
		trait.String("id"),
		trait.String("title"),
		trait.Number("order"),
		trait.Object("inner", innerTraits),
	)

	waypointTraits = trait.MustGroup("WaypointTraits",
		trait.Number("index"),
		trait.Number("longitude"),
	)

	outerTraits = trait.MustGroup("OuterTraits",
		trait.String("title", trait.Default("Untitled")),
		trait.Object("inner", innerTraits),
		trait.ObjectArray("items", itemTraits, "id"),
		trait.ObjectArray("waypoints", waypointTraits, "index"),
		trait.Any("data"),
	)
)

func newModel(t *testing.T) *Model {
	m, err := New(outerTraits, "test", CommonStrata)
	assert.NoError(t, err)
	return m
}

func get(t *testing.T, m *Model, path string) any {
	v, err := m.Get(path)
	assert.NoError(t, err, path)
	return v
}

func TestPrimitiveOverride(t *testing.T) {
	m := newModel(t)

	assert.Equal(t, "Untitled", get(t, m, "title"))

	assert.NoError(t, m.Set(Definition, "title", "A"))
	assert.Equal(t, "A", get(t, m, "title"))

	assert.NoError(t, m.Set(User, "title", "B"))
	assert.Equal(t, "B", get(t, m, "title"))

	assert.NoError(t, m.Set(Definition, "title", "C"))
	assert.Equal(t, "B", get(t, m, "title"))

	assert.NoError(t, m.DeleteStratum(User))
	assert.Equal(t, "C", get(t, m, "title"))

	assert.NoError(t, m.Clear(Definition, "title"))
	assert.Equal(t, "Untitled", get(t, m, "title"))
}

func TestPrecedenceIsNotInsertionOrder(t *testing.T) {
	m := newModel(t)

	assert.NoError(t, m.Set(Runtime, "title", "runtime"))
	assert.NoError(t, m.Set(Definition, "title", "definition"))

	assert.Equal(t, "runtime", get(t, m, "title"))
	assert.Equal(t, []string{Runtime, Definition}, m.Strata())
}

func TestObjectUndefined(t *testing.T) {
	m := newModel(t)

	assert.NoError(t, m.Set(Definition, "title", "a"))
	assert.NoError(t, m.Set(User, "title", "b"))

	assert.Nil(t, get(t, m, "inner"))
	assert.Nil(t, get(t, m, "inner.foo"))
	assert.Nil(t, get(t, m, "items"))
}

func TestObjectCombinesStrata(t *testing.T) {
	m := newModel(t)

	assert.NoError(t, m.Set(Definition, "inner.foo", "a"))
	assert.NoError(t, m.Set(Definition, "inner.bar", 1))
	assert.NoError(t, m.Set(User, "inner.bar", 2))
	assert.NoError(t, m.Set(User, "inner.baz", true))

	inner, ok := get(t, m, "inner").(*Object)
	assert.True(t, ok)
	assert.Equal(t, "a", inner.Get("foo"))
	assert.Equal(t, 2.0, inner.Get("bar"))
	assert.Equal(t, true, inner.Get("baz"))
}

func TestObjectUnsetFieldsKeepDefaults(t *testing.T) {
	m := newModel(t)

	assert.NoError(t, m.Set(Definition, "inner.foo", "a"))
	assert.NoError(t, m.Set(User, "inner.bar", 2))

	inner := get(t, m, "inner").(*Object)
	assert.Equal(t, "a", inner.Get("foo"))
	assert.Equal(t, 2.0, inner.Get("bar"))
	assert.Equal(t, false, inner.Get("baz"))
}

func TestObjectUpdatesAfterEvaluation(t *testing.T) {
	m := newModel(t)

	assert.NoError(t, m.Set(Definition, "inner", map[string]any{"foo": "a", "bar": 1}))
	assert.NoError(t, m.Set(User, "inner", map[string]any{}))

	assert.Equal(t, 1.0, get(t, m, "inner.bar"))
	assert.Equal(t, false, get(t, m, "inner.baz"))

	assert.NoError(t, m.Set(User, "inner.bar", 2))
	assert.Equal(t, 2.0, get(t, m, "inner.bar"))

	assert.NoError(t, m.DeleteStratum(User))
	assert.Equal(t, 1.0, get(t, m, "inner.bar"))
}

func TestResolveIsCached(t *testing.T) {
	m := newModel(t)

	assert.NoError(t, m.Set(Definition, "inner.foo", "a"))
	assert.NoError(t, m.Set(Definition, "items[x].title", "X"))

	first := get(t, m, "inner")
	assert.Same(t, first, get(t, m, "inner"))
	assert.Same(t, get(t, m, "items[x]"), get(t, m, "items[x]"))

	assert.NoError(t, m.Set(User, "inner.foo", "b"))

	second := get(t, m, "inner")
	assert.NotSame(t, first, second)
	assert.Equal(t, "a", first.(*Object).Get("foo"))
	assert.Equal(t, "b", second.(*Object).Get("foo"))
}

func TestObjectArrayMergesByIdentity(t *testing.T) {
	m := newModel(t)

	assert.NoError(t, m.Set(Definition, "items", []any{
		map[string]any{"id": "a", "title": "A", "order": 1},
	}))
	assert.NoError(t, m.Set(User, "items[a].title", "A-user"))
	assert.NoError(t, m.Set(User, "items[a].inner.foo", "f"))

	items := get(t, m, "items").([]*Object)
	assert.Len(t, items, 1)
	assert.Equal(t, "a", items[0].Identity())
	assert.Equal(t, "A-user", items[0].Get("title"))
	assert.Equal(t, 1.0, items[0].Get("order"))
	assert.Equal(t, "f", get(t, m, "items[a].inner.foo"))
	assert.Nil(t, get(t, m, "items[b]"))
	assert.Nil(t, get(t, m, "items[b].title"))
}

func TestScenario(t *testing.T) {
	m := newModel(t)

	assert.NoError(t, m.Set(Definition, "items", []any{
		map[string]any{"id": "x", "title": "X"},
	}))
	assert.NoError(t, m.Set(User, "items", []any{
		map[string]any{"id": "x", "title": "X-user"},
		map[string]any{"id": "y", "title": "Y"},
	}))

	want := []any{
		map[string]any{"id": "x", "title": "X-user"},
		map[string]any{"id": "y", "title": "Y"},
	}

	if diff := cmp.Diff(want, Plain(get(t, m, "items"))); diff != "" {
		t.Errorf("items mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, "Untitled", get(t, m, "title"))
}

func TestTombstone(t *testing.T) {
	m := newModel(t)

	assert.NoError(t, m.Set(Definition, "items", []any{
		map[string]any{"id": "a", "title": "A", "order": 1},
		map[string]any{"id": "b", "title": "B"},
	}))
	assert.NoError(t, m.Remove(User, "items", "a"))

	items := get(t, m, "items").([]*Object)
	assert.Len(t, items, 1)
	assert.Equal(t, "b", items[0].Identity())
	assert.Nil(t, get(t, m, "items[a]"))

	assert.NoError(t, m.Set(Runtime, "items[a].title", "again"))

	items = get(t, m, "items").([]*Object)
	assert.Len(t, items, 2)
	assert.Equal(t, "b", items[0].Identity())
	assert.Equal(t, "a", items[1].Identity())
	assert.Equal(t, "again", items[1].Get("title"))
	assert.Nil(t, items[1].Get("order"))

	assert.NoError(t, m.DeleteStratum(Runtime))
	assert.NoError(t, m.DeleteStratum(User))

	items = get(t, m, "items").([]*Object)
	assert.Len(t, items, 2)
	assert.Equal(t, "a", items[0].Identity())
	assert.Equal(t, 1.0, items[0].Get("order"))
}

func TestTombstoneBelowPresence(t *testing.T) {
	m := newModel(t)

	assert.NoError(t, m.Remove(Definition, "items", "a"))
	assert.NoError(t, m.Set(User, "items[a].title", "U"))

	assert.Equal(t, "U", get(t, m, "items[a].title"))
}

func TestTombstoneWithEntries(t *testing.T) {
	m := newModel(t)

	assert.NoError(t, m.Set(Definition, "items", []Entry{
		Present("a", map[string]any{"title": "A"}),
		Present("b", map[string]any{"title": "B"}),
	}))
	assert.NoError(t, m.Set(User, "items", []Entry{
		Removed("b"),
		Present("c", map[string]any{"title": "C"}),
	}))

	want := []any{
		map[string]any{"id": "a", "title": "A"},
		map[string]any{"id": "c", "title": "C"},
	}

	if diff := cmp.Diff(want, Plain(get(t, m, "items"))); diff != "" {
		t.Errorf("items mismatch (-want +got):\n%s", diff)
	}

	exported, err := m.Export(User)
	assert.NoError(t, err)
	assert.Equal(t, []any{
		map[string]any{"id": "b", match.RemovedKey: true},
		map[string]any{"id": "c", "title": "C"},
	}, exported["items"])
}

func TestWritingIntoTombstoneRestoresIt(t *testing.T) {
	m := newModel(t)

	assert.NoError(t, m.Set(Definition, "items[a].title", "A"))
	assert.NoError(t, m.Remove(User, "items", "a"))
	assert.Nil(t, get(t, m, "items[a]"))

	assert.NoError(t, m.Set(User, "items[a].order", 2))
	assert.Equal(t, 2.0, get(t, m, "items[a].order"))
	assert.Equal(t, "A", get(t, m, "items[a].title"))
}

func TestObjectArrayOrderIsStable(t *testing.T) {
	m := newModel(t)

	assert.NoError(t, m.Set(Definition, "items", []any{
		map[string]any{"id": "x"},
		map[string]any{"id": "y"},
	}))
	assert.NoError(t, m.Set(User, "items", []any{
		map[string]any{"id": "y", "title": "Y"},
		map[string]any{"id": "x", "title": "X"},
	}))

	ids := func() []string {
		out := make([]string, 0)
		for _, o := range get(t, m, "items").([]*Object) {
			out = append(out, o.Identity())
		}
		return out
	}

	assert.Equal(t, []string{"x", "y"}, ids())

	assert.NoError(t, m.Set(User, "items[y].title", "Y2"))
	assert.NoError(t, m.Set(Runtime, "items[x].title", "X2"))
	assert.Equal(t, []string{"x", "y"}, ids())
}

func TestNumericIdentity(t *testing.T) {
	m := newModel(t)

	assert.NoError(t, m.Set(Definition, "waypoints", []any{
		map[string]any{"index": 1, "longitude": 24},
		map[string]any{"index": 2.5, "longitude": 25},
	}))
	assert.NoError(t, m.Set(User, "waypoints[1].longitude", 30))

	assert.Equal(t, 30.0, get(t, m, "waypoints[1].longitude"))
	assert.Equal(t, 25.0, get(t, m, "waypoints[2.5].longitude"))
	assert.Equal(t, 1.0, get(t, m, "waypoints[1].index"))

	err := m.Set(User, "waypoints[one].longitude", 1)
	assert.Error(t, err)
}

func TestNonCanonicalNumericIdentity(t *testing.T) {
	m := newModel(t)

	assert.NoError(t, m.Set(User, "waypoints[1].longitude", 24))
	assert.Equal(t, 24.0, get(t, m, "waypoints[01].longitude"))
	assert.Equal(t, 24.0, get(t, m, "waypoints[1.0].longitude"))

	assert.NoError(t, m.Remove(User, "waypoints", "1.0"))

	data, err := m.Export(User)
	assert.NoError(t, err)
	assert.Equal(t, []any{
		map[string]any{"index": 1.0, "$removed": true},
	}, data["waypoints"])

	assert.NoError(t, m.Set(User, "waypoints[01].longitude", 25))
	assert.NoError(t, m.Set(User, "waypoints[1].longitude", 26))

	data, err = m.Export(User)
	assert.NoError(t, err)
	assert.Equal(t, []any{
		map[string]any{"index": 1.0, "longitude": 26.0},
	}, data["waypoints"])

	assert.NoError(t, m.Clear(User, "waypoints[1.00]"))

	data, err = m.Export(User)
	assert.NoError(t, err)
	assert.Empty(t, data["waypoints"])
}

func TestGetReturnsCopy(t *testing.T) {
	m := newModel(t)

	assert.NoError(t, m.Set(User, "data", map[string]any{"color": "red"}))
	assert.NoError(t, m.Set(User, "items[x].title", "X"))
	assert.NoError(t, m.Set(User, "items[y].title", "Y"))

	data := get(t, m, "data").(map[string]any)
	data["color"] = "blue"
	assert.Equal(t, map[string]any{"color": "red"}, get(t, m, "data"))

	list := get(t, m, "items").([]*Object)
	list[0], list[1] = list[1], list[0]

	list = get(t, m, "items").([]*Object)
	assert.Equal(t, "x", list[0].Identity())
	assert.Equal(t, "y", list[1].Identity())

	outer, err := New(outerTraits, "outer", CommonStrata)
	assert.NoError(t, err)
	assert.NoError(t, outer.Set(User, "inner.foo", "a"))

	inner := get(t, outer, "inner").(*Object)
	assert.Equal(t, "a", inner.Get("foo"))

	var changes []Change
	_, err = m.OnChange("data", func(ch Change) { changes = append(changes, ch) })
	assert.NoError(t, err)

	get(t, m, "data").(map[string]any)["color"] = "green"
	assert.NoError(t, m.Set(User, "data", map[string]any{"color": "red"}))
	assert.Empty(t, changes)
}

func TestMalformedEntry(t *testing.T) {
	m := newModel(t)

	assert.NoError(t, m.Import(Definition, map[string]any{
		"title": "T",
		"items": []any{
			map[string]any{"title": "no id"},
			map[string]any{"id": "b", "title": "B"},
		},
	}))

	v, err := m.Get("items")

	var malformed *trait.MalformedEntryError
	assert.True(t, errors.As(err, &malformed))
	assert.Equal(t, "items", malformed.Field)
	assert.Equal(t, Definition, malformed.Stratum)
	assert.Equal(t, 0, malformed.Index)
	assert.Equal(t, "id", malformed.IDProperty)

	items := v.([]*Object)
	assert.Len(t, items, 1)
	assert.Equal(t, "b", items[0].Identity())

	assert.Equal(t, "B", get(t, m, "items[b].title"))
	assert.Equal(t, "T", get(t, m, "title"))

	resolved, err := m.Resolved()
	assert.True(t, errors.As(err, &malformed))
	assert.Equal(t, "T", resolved["title"])
}

func TestUnknownField(t *testing.T) {
	m := newModel(t)

	var unknown *trait.UnknownFieldError

	err := m.Set(Definition, "subtitle", "x")
	assert.True(t, errors.As(err, &unknown))
	assert.Equal(t, "subtitle", unknown.Field)

	_, err = m.Get("inner.qux")
	assert.True(t, errors.As(err, &unknown))
	assert.Equal(t, "InnerTraits", unknown.Schema)

	err = m.Import(User, map[string]any{"inner": map[string]any{"qux": 1}})
	assert.True(t, errors.As(err, &unknown))

	_, err = m.OnChange("nope", func(Change) {})
	assert.True(t, errors.As(err, &unknown))

	var pathErr *ref.PathError
	_, err = m.Get("items.title")
	assert.True(t, errors.As(err, &pathErr))
}

func TestUnknownStratum(t *testing.T) {
	m := newModel(t)

	var unknown *UnknownStratumError

	err := m.Set("override", "title", "x")
	assert.True(t, errors.As(err, &unknown))
	assert.Equal(t, "override", unknown.Stratum)

	err = m.DeleteStratum("override")
	assert.True(t, errors.As(err, &unknown))

	_, err = m.Export("override")
	assert.True(t, errors.As(err, &unknown))
}

func TestValueMismatch(t *testing.T) {
	m := newModel(t)

	var mismatch *match.MatchError

	assert.True(t, errors.As(m.Set(Definition, "title", 3), &mismatch))
	assert.True(t, errors.As(m.Set(Definition, "inner.baz", "yes"), &mismatch))
	assert.True(t, errors.As(m.Set(Definition, "inner", "x"), &mismatch))
	assert.True(t, errors.As(m.Set(Definition, "items", map[string]any{}), &mismatch))

	var pathErr *ref.PathError
	assert.True(t, errors.As(m.Set(Definition, "items[a].id", "b"), &pathErr))
	assert.True(t, errors.As(m.Set(Definition, "items[a]", map[string]any{"id": "b"}), &pathErr))
	assert.True(t, errors.As(m.Set(Definition, "items[a]", "x"), &pathErr))
	assert.True(t, errors.As(m.Remove(Definition, "title", "a"), &pathErr))

	assert.Empty(t, m.Strata())
}

func TestSetElement(t *testing.T) {
	m := newModel(t)

	assert.NoError(t, m.Set(Definition, "items[a]", map[string]any{"title": "A", "order": 1}))
	assert.NoError(t, m.Set(User, "items[a]", Present("a", map[string]any{"title": "A-user"})))

	a := get(t, m, "items[a]").(*Object)
	assert.Equal(t, "A-user", a.Get("title"))
	assert.Equal(t, 1.0, a.Get("order"))
	assert.Equal(t, "a", a.Get("id"))

	assert.NoError(t, m.Set(User, "items[a]", Removed("a")))
	assert.Nil(t, get(t, m, "items[a]"))

	assert.NoError(t, m.Clear(User, "items[a]"))
	assert.Equal(t, "A", get(t, m, "items[a].title"))
}

func TestStratumValue(t *testing.T) {
	m := newModel(t)

	assert.NoError(t, m.Set(Definition, "inner.foo", "a"))
	assert.NoError(t, m.Set(Definition, "items[x].title", "X"))

	v, ok, err := m.StratumValue(Definition, "inner")
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, map[string]any{"foo": "a"}, v)

	v, ok, err = m.StratumValue(Definition, "items[x]")
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, map[string]any{"id": "x", "title": "X"}, v)

	_, ok, err = m.StratumValue(User, "inner.foo")
	assert.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = m.StratumValue(Definition, "inner.bar")
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestAnyIsCopied(t *testing.T) {
	m := newModel(t)

	data := map[string]any{"colors": []any{"red"}}
	assert.NoError(t, m.Set(Definition, "data", data))
	data["colors"].([]any)[0] = "blue"

	got := get(t, m, "data").(map[string]any)
	assert.Equal(t, []any{"red"}, got["colors"])

	got["colors"] = nil
	exported, err := m.Export(Definition)
	assert.NoError(t, err)
	assert.Equal(t, map[string]any{"colors": []any{"red"}}, exported["data"])
}

func TestExportImport(t *testing.T) {
	m := newModel(t)

	assert.NoError(t, m.Set(Definition, "title", "T"))
	assert.NoError(t, m.Set(Definition, "inner.foo", "a"))
	assert.NoError(t, m.Set(Definition, "items[a].inner.bar", 1))
	assert.NoError(t, m.Set(User, "items[b].title", "B"))
	assert.NoError(t, m.Remove(User, "items", "a"))
	assert.NoError(t, m.Set(User, "data", map[string]any{"k": "v"}))

	other, err := New(outerTraits, "", CommonStrata)
	assert.NoError(t, err)

	for _, s := range m.Strata() {
		data, err := m.Export(s)
		assert.NoError(t, err)
		assert.NoError(t, other.Import(s, data))
	}

	want, err := m.Resolved()
	assert.NoError(t, err)
	got, err := other.Resolved()
	assert.NoError(t, err)

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Resolved() mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, map[string]any{
		"title": "T",
		"inner": map[string]any{"baz": false, "foo": "a"},
		"items": []any{map[string]any{"id": "b", "title": "B"}},
		"data":  map[string]any{"k": "v"},
	}, got)
}

func TestImportReplacesStratum(t *testing.T) {
	m := newModel(t)

	assert.NoError(t, m.Set(User, "title", "old"))
	assert.NoError(t, m.Set(User, "inner.foo", "old"))

	assert.NoError(t, m.Import(User, map[string]any{"inner": map[string]any{"bar": 3}}))

	assert.Equal(t, "Untitled", get(t, m, "title"))
	assert.Nil(t, get(t, m, "inner.foo"))
	assert.Equal(t, 3.0, get(t, m, "inner.bar"))
}

func TestClone(t *testing.T) {
	m := newModel(t)
	assert.NoError(t, m.Set(Definition, "inner.foo", "a"))

	clone, err := m.Clone("copy")
	assert.NoError(t, err)
	assert.Equal(t, "copy", clone.ID())

	assert.NoError(t, clone.Set(Definition, "inner.foo", "b"))
	assert.Equal(t, "a", get(t, m, "inner.foo"))
	assert.Equal(t, "b", get(t, clone, "inner.foo"))
}

func TestNew(t *testing.T) {
	m, err := New(outerTraits, "", CommonStrata)
	assert.NoError(t, err)

	_, err = uuid.Parse(m.ID())
	assert.NoError(t, err)
	assert.True(t, outerTraits.Sealed())

	_, err = New(outerTraits, "x", Precedence{})
	assert.Error(t, err)

	_, err = New(outerTraits, "x", Precedence{User, User})
	assert.Error(t, err)
}
