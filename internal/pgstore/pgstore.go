package pgstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/koskimas/strata/internal/maps"
	"github.com/koskimas/strata/pkg/model"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const DefaultTable = "strata"

// DB is the part of *pgxpool.Pool and *pgx.Conn the store uses. SaveAll
// needs a DB that is safe for concurrent use, like a pool.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store persists the strata of models in a postgres table with one row per
// model and stratum. Stratum data is stored as jsonb in the form
// Model.Export returns.
type Store struct {
	db          DB
	table       string
	log         *zap.Logger
	concurrency int
}

type Option func(*Store)

func WithTable(table string) Option {
	return func(s *Store) {
		s.table = table
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.log = logger
		}
	}
}

// WithConcurrency limits how many models SaveAll saves at once.
func WithConcurrency(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

func New(db DB, opts ...Option) *Store {
	s := &Store{
		db:          db,
		table:       DefaultTable,
		log:         zap.NewNop(),
		concurrency: 4,
	}

	for _, o := range opts {
		o(s)
	}

	return s
}

// Open connects a pool to `dsn` and returns a store using it along with the
// pool, which the caller closes.
func Open(ctx context.Context, dsn string, opts ...Option) (*Store, *pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	return New(pool, opts...), pool, nil
}

func (s *Store) ident() string {
	return pgx.Identifier{s.table}.Sanitize()
}

// Migrate creates the table when it doesn't exist.
func (s *Store) Migrate(ctx context.Context) error {
	sql := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
  model_id text NOT NULL,
  stratum text NOT NULL,
  data jsonb NOT NULL,
  updated_at timestamptz NOT NULL DEFAULT now(),
  PRIMARY KEY (model_id, stratum)
)`, s.ident())

	if _, err := s.db.Exec(ctx, sql); err != nil {
		return fmt.Errorf(`failed to create table "%s": %w`, s.table, err)
	}

	return nil
}

// Save replaces the stored strata of `m` with the strata the model holds.
func (s *Store) Save(ctx context.Context, m *model.Model) error {
	strata := m.Strata()
	data := make(map[string]map[string]any, len(strata))

	for _, st := range strata {
		d, err := m.Export(st)
		if err != nil {
			return err
		}

		data[st] = d
	}

	upsert := fmt.Sprintf(`
INSERT INTO %s (model_id, stratum, data, updated_at) VALUES ($1, $2, $3, now())
ON CONFLICT (model_id, stratum) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`, s.ident())

	prune := fmt.Sprintf(`DELETE FROM %s WHERE model_id = $1 AND NOT (stratum = ANY($2))`, s.ident())

	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		for _, st := range strata {
			if _, err := tx.Exec(ctx, upsert, m.ID(), st, data[st]); err != nil {
				return fmt.Errorf(`failed to save stratum "%s": %w`, st, err)
			}
		}

		if _, err := tx.Exec(ctx, prune, m.ID(), strata); err != nil {
			return fmt.Errorf("failed to delete old strata: %w", err)
		}

		return nil
	})

	if err != nil {
		return fmt.Errorf(`failed to save model "%s": %w`, m.ID(), err)
	}

	s.log.Debug("saved model", zap.String("model", m.ID()), zap.Strings("strata", strata))
	return nil
}

// SaveAll saves every model of `c`, several at once.
func (s *Store) SaveAll(ctx context.Context, c *model.Collection) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for _, id := range c.IDs() {
		m, _ := c.Get(id)

		g.Go(func() error {
			return s.Save(ctx, m)
		})
	}

	return g.Wait()
}

// Load replaces the strata of `m` with the stored ones. Strata that are not
// stored are deleted from the model. Subscribers are notified once.
func (s *Store) Load(ctx context.Context, m *model.Model) error {
	stored, err := s.read(ctx, m.ID())
	if err != nil {
		return err
	}

	err = m.Batch(func() error {
		for _, st := range m.Strata() {
			if _, ok := stored[st]; !ok {
				if err := m.DeleteStratum(st); err != nil {
					return err
				}
			}
		}

		for _, st := range maps.SortedKeys(stored) {
			if err := m.Import(st, stored[st]); err != nil {
				return err
			}
		}

		return nil
	})

	if err != nil {
		return fmt.Errorf(`failed to load model "%s": %w`, m.ID(), err)
	}

	s.log.Debug("loaded model", zap.String("model", m.ID()))
	return nil
}

func (s *Store) read(ctx context.Context, modelID string) (map[string]map[string]any, error) {
	rows, err := s.db.Query(ctx, fmt.Sprintf(`SELECT stratum, data FROM %s WHERE model_id = $1`, s.ident()), modelID)
	if err != nil {
		return nil, fmt.Errorf(`failed to read model "%s": %w`, modelID, err)
	}

	stored := make(map[string]map[string]any)

	var stratum string
	var data map[string]any

	_, err = pgx.ForEachRow(rows, []any{&stratum, &data}, func() error {
		stored[stratum] = data
		data = nil
		return nil
	})

	if err != nil {
		return nil, fmt.Errorf(`failed to read model "%s": %w`, modelID, err)
	}

	return stored, nil
}

// ModelIDs returns the ids of all stored models.
func (s *Store) ModelIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, fmt.Sprintf(`SELECT DISTINCT model_id FROM %s ORDER BY model_id`, s.ident()))
	if err != nil {
		return nil, fmt.Errorf("failed to read model ids: %w", err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to read model ids: %w", err)
	}

	return ids, nil
}

// Delete removes all stored strata of the model `modelID`.
func (s *Store) Delete(ctx context.Context, modelID string) error {
	if _, err := s.db.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE model_id = $1`, s.ident()), modelID); err != nil {
		return fmt.Errorf(`failed to delete model "%s": %w`, modelID, err)
	}

	return nil
}
