package pgstore

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/koskimas/strata/pkg/model"
	"github.com/koskimas/strata/pkg/trait"
	assert "github.com/stretchr/testify/require"
)

var (
	itemTraits = trait.MustGroup("Item",
		trait.String("id"),
		trait.String("title"),
	)

	layerTraits = trait.MustGroup("Layer",
		trait.String("title", trait.Default("Untitled")),
		trait.Number("opacity"),
		trait.ObjectArray("items", itemTraits, "id"),
	)
)

// connect returns a store on a fresh table of the database in
// STRATA_TEST_DATABASE_URL and skips the test when it isn't set.
func connect(t *testing.T) *Store {
	dsn := os.Getenv("STRATA_TEST_DATABASE_URL")
	if len(dsn) == 0 {
		t.Skip("STRATA_TEST_DATABASE_URL is not set")
	}

	ctx := context.Background()
	table := "strata_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")

	s, pool, err := Open(ctx, dsn, WithTable(table))
	assert.NoError(t, err)

	t.Cleanup(func() {
		_, _ = pool.Exec(ctx, "DROP TABLE IF EXISTS "+s.ident())
		pool.Close()
	})

	assert.NoError(t, s.Migrate(ctx))
	return s
}

func newModel(t *testing.T, id string) *model.Model {
	m, err := model.New(layerTraits, id, model.CommonStrata)
	assert.NoError(t, err)
	return m
}

func TestSaveLoad(t *testing.T) {
	s := connect(t)
	ctx := context.Background()

	m := newModel(t, "rivers")
	assert.NoError(t, m.Set(model.Definition, "title", "Rivers"))
	assert.NoError(t, m.Set(model.Definition, "items[a].title", "A"))
	assert.NoError(t, m.Set(model.User, "opacity", 0.5))
	assert.NoError(t, m.Remove(model.User, "items", "a"))
	assert.NoError(t, s.Save(ctx, m))

	loaded := newModel(t, "rivers")
	assert.NoError(t, loaded.Set(model.Runtime, "title", "stale"))
	assert.NoError(t, s.Load(ctx, loaded))

	want, err := m.Resolved()
	assert.NoError(t, err)
	got, err := loaded.Resolved()
	assert.NoError(t, err)
	assert.Equal(t, want, got)
	assert.False(t, loaded.HasStratum(model.Runtime))

	assert.NoError(t, m.DeleteStratum(model.User))
	assert.NoError(t, s.Save(ctx, m))
	assert.NoError(t, s.Load(ctx, loaded))
	assert.False(t, loaded.HasStratum(model.User))
}

func TestSaveAll(t *testing.T) {
	s := connect(t)
	ctx := context.Background()

	c, err := model.NewCollection(model.CommonStrata)
	assert.NoError(t, err)

	for _, id := range []string{"a", "b", "c"} {
		m, err := c.New(layerTraits, id)
		assert.NoError(t, err)
		assert.NoError(t, m.Set(model.User, "title", strings.ToUpper(id)))
	}

	assert.NoError(t, s.SaveAll(ctx, c))

	ids, err := s.ModelIDs(ctx)
	assert.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids)

	b := newModel(t, "b")
	assert.NoError(t, s.Load(ctx, b))

	title, err := b.Get("title")
	assert.NoError(t, err)
	assert.Equal(t, "B", title)

	assert.NoError(t, s.Delete(ctx, "b"))

	ids, err = s.ModelIDs(ctx)
	assert.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, ids)
}

func TestLoadUnknownStratum(t *testing.T) {
	s := connect(t)
	ctx := context.Background()

	m, err := model.New(layerTraits, "x", model.Precedence{"base", "override"})
	assert.NoError(t, err)
	assert.NoError(t, m.Set("override", "title", "X"))
	assert.NoError(t, s.Save(ctx, m))

	err = s.Load(ctx, newModel(t, "x"))

	var unknown *model.UnknownStratumError
	assert.True(t, errors.As(err, &unknown))
}

func TestOpenInvalidDSN(t *testing.T) {
	_, _, err := Open(context.Background(), "postgres://%zz")
	assert.Error(t, err)
}

var _ DB = (*pgxpool.Pool)(nil)
