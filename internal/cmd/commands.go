package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/koskimas/strata/internal/pgstore"
	"github.com/koskimas/strata/internal/stratum"
	"github.com/koskimas/strata/internal/watch"
	"github.com/koskimas/strata/pkg/model"
	"github.com/koskimas/strata/pkg/trait"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

func newResolveCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve [model] [path]",
		Short: "Print resolved traits",
		Long: `Prints the resolved traits of a model as YAML. Without a model every
model of the workspace is printed. A path like "items[a].title" selects a
single value.

Malformed object array entries are logged and left out.`,
		Args: cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := a.workspace()
			if err != nil {
				return err
			}

			if len(args) == 0 {
				out := make(map[string]any, ws.Models.Len())

				for _, id := range ws.Models.IDs() {
					m, _ := ws.Models.Get(id)

					resolved, err := m.Resolved()
					if err := a.checkResolved(m, err); err != nil {
						return err
					}

					out[id] = resolved
				}

				return writeYAML(cmd.OutOrStdout(), out)
			}

			m, err := ws.Model(args[0])
			if err != nil {
				return err
			}

			var out any
			if len(args) == 1 {
				out, err = m.Resolved()
			} else {
				var v any
				v, err = m.Get(args[1])
				out = model.Plain(v)
			}

			if err := a.checkResolved(m, err); err != nil {
				return err
			}

			return writeYAML(cmd.OutOrStdout(), out)
		},
	}
}

// checkResolved logs malformed entries and returns any other error.
func (a *app) checkResolved(m *model.Model, err error) error {
	if err == nil {
		return nil
	}

	var malformed []*trait.MalformedEntryError
	var other []error

	for _, e := range unwrapJoined(err) {
		var me *trait.MalformedEntryError
		if errors.As(e, &me) {
			malformed = append(malformed, me)
		} else {
			other = append(other, e)
		}
	}

	for _, me := range malformed {
		a.logger.Warn("skipped malformed entry",
			zap.String("model", m.ID()),
			zap.String("stratum", me.Stratum),
			zap.String("field", me.Field),
			zap.Int("index", me.Index),
		)
	}

	return errors.Join(other...)
}

func unwrapJoined(err error) []error {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		return joined.Unwrap()
	}

	return []error{err}
}

func newExportCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "export <model> <stratum>",
		Short: "Print the raw contents of one stratum",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := a.workspace()
			if err != nil {
				return err
			}

			m, err := ws.Model(args[0])
			if err != nil {
				return err
			}

			data, err := m.Export(args[1])
			if err != nil {
				return err
			}

			return writeYAML(cmd.OutOrStdout(), data)
		},
	}
}

func newSetCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "set <model> <stratum> <path> <value>",
		Short: "Set a value on a stratum and save the stratum file",
		Long: `Sets the value at a path on one stratum of a model. The value is parsed
as YAML, so objects and lists can be given inline:

  strata set wms user items[a] '{title: A}'
  strata set wms user opacity 0.5`,
		Args: cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			var value any
			if err := yaml.Unmarshal([]byte(args[3]), &value); err != nil {
				return fmt.Errorf("invalid value: %w", err)
			}

			return a.write(args[0], args[1], func(m *model.Model) error {
				return m.Set(args[1], args[2], value)
			})
		},
	}
}

func newRemoveCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <model> <stratum> <path> <id>",
		Short: "Remove an object array element on a stratum and save the stratum file",
		Long: `Marks the element <id> of the object array at <path> removed on one
stratum. The element disappears from the resolved model even if strata of
lower precedence define it.`,
		Args: cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.write(args[0], args[1], func(m *model.Model) error {
				return m.Remove(args[1], args[2], args[3])
			})
		},
	}
}

// write applies `fn` to a model and saves the changed stratum to its file.
func (a *app) write(modelID, stratumID string, fn func(*model.Model) error) error {
	ws, err := a.workspace()
	if err != nil {
		return err
	}

	m, err := ws.Model(modelID)
	if err != nil {
		return err
	}

	f, ok := ws.File(modelID, stratumID)
	if !ok {
		return fmt.Errorf(`stratum "%s" of model "%s" has no file in %s`, stratumID, modelID, configFile)
	}

	if err := fn(m); err != nil {
		return err
	}

	if err := stratum.Save(m, f); err != nil {
		return err
	}

	a.logger.Info("saved stratum", zap.Stringer("file", f))
	return nil
}

func newGenCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "gen",
		Short: "Generate Go types and resolvers for the schemas",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return Run(a.settings())
		},
	}
}

func newWatchCommand(a *app) *cobra.Command {
	var debounce time.Duration

	c := &cobra.Command{
		Use:   "watch",
		Short: "Reload stratum files on change and log resolved changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := a.workspace()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return a.watch(ctx, ws, debounce)
		},
	}

	c.Flags().DurationVar(&debounce, "debounce", 300*time.Millisecond, "How long a file must stay unchanged before it is reloaded")

	return c
}

func (a *app) watch(ctx context.Context, ws *Workspace, debounce time.Duration) error {
	w, err := watch.New(ws.Models, ws.Files,
		watch.WithLogger(a.logger),
		watch.WithDebounce(debounce),
		watch.OnReload(func(f stratum.File, err error) {
			if err != nil {
				a.logger.Error("failed to reload stratum", zap.Stringer("file", f), zap.Error(err))
			}
		}),
	)
	if err != nil {
		return err
	}
	defer w.Stop()

	err = w.Do(func(c *model.Collection) error {
		for _, id := range c.IDs() {
			m, _ := c.Get(id)

			for _, t := range m.Group().Traits() {
				_, err := m.OnChange(t.ID(), func(ch model.Change) {
					a.logger.Info("resolved value changed",
						zap.String("model", m.ID()),
						zap.String("path", ch.Path),
						zap.Any("old", ch.Old),
						zap.Any("new", ch.New),
					)
				})
				if err != nil {
					return err
				}
			}
		}

		return nil
	})
	if err != nil {
		return err
	}

	if err := w.Start(ctx); err != nil {
		return err
	}

	a.logger.Info("watching stratum files", zap.Int("files", len(ws.Files)))
	<-ctx.Done()

	return nil
}

func newPushCommand(a *app) *cobra.Command {
	var dsn string
	var table string

	c := &cobra.Command{
		Use:   "push",
		Short: "Store the strata of every model in postgres",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := a.workspace()
			if err != nil {
				return err
			}

			store, closeStore, err := a.openStore(cmd.Context(), dsn, table)
			if err != nil {
				return err
			}
			defer closeStore()

			if err := store.Migrate(cmd.Context()); err != nil {
				return err
			}

			if err := store.SaveAll(cmd.Context(), ws.Models); err != nil {
				return err
			}

			a.logger.Info("pushed models", zap.Int("models", ws.Models.Len()))
			return nil
		},
	}

	c.Flags().StringVar(&dsn, "dsn", "", "Postgres connection string (default $"+databaseURLEnv+")")
	c.Flags().StringVar(&table, "table", "", "Table holding the strata")

	return c
}

func newPullCommand(a *app) *cobra.Command {
	var dsn string
	var table string

	c := &cobra.Command{
		Use:   "pull [model...]",
		Short: "Load strata from postgres and write them to the stratum files",
		Long: `Replaces the strata of the given models (all models by default) with
the ones stored in postgres and writes every stratum that has a file in
strata.yaml.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := a.workspace()
			if err != nil {
				return err
			}

			ids := args
			if len(ids) == 0 {
				ids = ws.Models.IDs()
			}

			store, closeStore, err := a.openStore(cmd.Context(), dsn, table)
			if err != nil {
				return err
			}
			defer closeStore()

			for _, id := range ids {
				m, err := ws.Model(id)
				if err != nil {
					return err
				}

				if err := store.Load(cmd.Context(), m); err != nil {
					return err
				}

				for _, f := range ws.Files {
					if f.Model != id {
						continue
					}

					if err := stratum.Save(m, f); err != nil {
						return err
					}
				}
			}

			a.logger.Info("pulled models", zap.Strings("models", ids))
			return nil
		},
	}

	c.Flags().StringVar(&dsn, "dsn", "", "Postgres connection string (default $"+databaseURLEnv+")")
	c.Flags().StringVar(&table, "table", "", "Table holding the strata")

	return c
}

func (a *app) openStore(ctx context.Context, dsnFlag, table string) (*pgstore.Store, func(), error) {
	dsn, err := databaseURL(dsnFlag)
	if err != nil {
		return nil, nil, err
	}

	opts := []pgstore.Option{pgstore.WithLogger(a.logger)}
	if table != "" {
		opts = append(opts, pgstore.WithTable(table))
	}

	store, pool, err := pgstore.Open(ctx, dsn, opts...)
	if err != nil {
		return nil, nil, err
	}

	return store, pool.Close, nil
}
