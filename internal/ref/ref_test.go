package ref

import (
	"errors"
	"testing"

	"github.com/koskimas/strata/pkg/trait"
	assert "github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		ref  string
		want Path
	}{
		{"title", Path{{Trait: "title"}}},
		{"inner.foo", Path{{Trait: "inner"}, {Trait: "foo"}}},
		{"items[x]", Path{{Trait: "items", ID: "x", HasID: true}}},
		{"items[x].title", Path{{Trait: "items", ID: "x", HasID: true}, {Trait: "title"}}},
		{"items[a.b].sub[1].z", Path{
			{Trait: "items", ID: "a.b", HasID: true},
			{Trait: "sub", ID: "1", HasID: true},
			{Trait: "z"},
		}},
	}

	for _, test := range tests {
		got, err := Parse(test.ref)
		assert.NoError(t, err, test.ref)
		assert.Equal(t, test.want, got, test.ref)
		assert.Equal(t, test.ref, got.String())
	}
}

func TestParseErrors(t *testing.T) {
	for _, ref := range []string{"", ".", "a.", "a..b", "a[", "a[]", "a[x]b", "[x]"} {
		_, err := Parse(ref)

		var pathErr *PathError
		assert.True(t, errors.As(err, &pathErr), ref)
	}
}

func TestResolve(t *testing.T) {
	inner := trait.MustGroup("InnerTraits", trait.String("foo"), trait.Number("bar"))
	item := trait.MustGroup("ItemTraits", trait.String("id"), trait.String("title"))
	outer := trait.MustGroup("OuterTraits",
		trait.String("title"),
		trait.Object("inner", inner),
		trait.ObjectArray("items", item, "id"),
	)

	sp, err := ResolveString(outer, "inner.bar")
	assert.NoError(t, err)
	assert.Equal(t, "bar", sp.Last().ID())
	assert.Len(t, sp.Traits, 2)
	assert.False(t, sp.Element())

	sp, err = ResolveString(outer, "items[x]")
	assert.NoError(t, err)
	assert.Equal(t, "items", sp.Last().ID())
	assert.True(t, sp.Element())

	sp, err = ResolveString(outer, "items[x].title")
	assert.NoError(t, err)
	assert.Equal(t, "title", sp.Last().ID())

	var unknown *trait.UnknownFieldError
	_, err = ResolveString(outer, "inner.baz")
	assert.True(t, errors.As(err, &unknown))
	assert.Equal(t, "baz", unknown.Field)
	assert.Equal(t, "InnerTraits", unknown.Schema)

	_, err = ResolveString(outer, "title.length")
	assert.True(t, errors.As(err, &unknown))
	assert.Equal(t, "length", unknown.Field)

	var pathErr *PathError
	_, err = ResolveString(outer, "items.title")
	assert.True(t, errors.As(err, &pathErr))

	_, err = ResolveString(outer, "inner[x]")
	assert.True(t, errors.As(err, &pathErr))
}
