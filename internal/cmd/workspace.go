package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/koskimas/strata/internal/config"
	"github.com/koskimas/strata/internal/maps"
	"github.com/koskimas/strata/internal/model/openapi"
	"github.com/koskimas/strata/internal/pg"
	"github.com/koskimas/strata/internal/stratum"
	"github.com/koskimas/strata/pkg/model"
	"github.com/koskimas/strata/pkg/trait"
	"go.uber.org/zap"
)

const configFile = "strata.yaml"

type Settings struct {
	WorkingDir string
	Logger     *zap.Logger
}

func (s Settings) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}

	return s.Logger
}

// Workspace is everything `strata.yaml` describes: the schemas read from
// OpenAPI files and migrations, and the models with their strata loaded from
// stratum files.
type Workspace struct {
	Settings Settings
	Config   *config.Config
	Groups   *trait.Registry
	Models   *model.Collection
	Files    []stratum.File
}

func LoadWorkspace(s Settings) (*Workspace, error) {
	cfg, err := config.Read(filepath.Join(s.WorkingDir, configFile))
	if err != nil {
		return nil, err
	}

	ws := &Workspace{
		Settings: s,
		Config:   cfg,
		Groups:   trait.NewRegistry(),
	}

	if err := ws.readGroups(); err != nil {
		return nil, err
	}

	if err := ws.createModels(); err != nil {
		return nil, err
	}

	for _, f := range ws.Files {
		m, _ := ws.Models.Get(f.Model)

		if err := stratum.Load(m, f); err != nil {
			return nil, err
		}
	}

	s.logger().Debug("loaded workspace",
		zap.String("dir", s.WorkingDir),
		zap.Int("schemas", ws.Groups.Len()),
		zap.Int("models", ws.Models.Len()),
	)

	return ws, nil
}

// Model returns the model `id` of the workspace.
func (ws *Workspace) Model(id string) (*model.Model, error) {
	m, ok := ws.Models.Get(id)
	if !ok {
		return nil, fmt.Errorf(`unknown model "%s"`, id)
	}

	return m, nil
}

// File returns the stratum file bound to `stratum` of the model `modelID`.
func (ws *Workspace) File(modelID, stratumID string) (stratum.File, bool) {
	for _, f := range ws.Files {
		if f.Model == modelID && f.Stratum == stratumID {
			return f, true
		}
	}

	return stratum.File{}, false
}

func (ws *Workspace) readGroups() error {
	openApiFiles, err := ws.glob(schemaPaths(ws.Config))
	if err != nil {
		return err
	}

	groups, err := openapi.ReadGroups(openApiFiles)
	if err != nil {
		return fmt.Errorf("failed to read OpenAPI schemas: %w", err)
	}

	for _, filePath := range maps.SortedKeys(groups) {
		for _, name := range maps.SortedKeys(groups[filePath]) {
			if err := ws.Groups.Add(groups[filePath][name]); err != nil {
				return fmt.Errorf(`in OpenAPI file "%s": %w`, filePath, err)
			}
		}
	}

	db, err := ws.migrate()
	if err != nil {
		return err
	}

	tableGroups, err := db.Groups()
	if err != nil {
		return err
	}

	for _, g := range tableGroups {
		if err := ws.Groups.Add(g); err != nil {
			return fmt.Errorf("in migrations: %w", err)
		}
	}

	return nil
}

func (ws *Workspace) migrate() (*pg.DB, error) {
	db := pg.NewDB()

	files, err := ws.glob(migrationPaths(ws.Config))
	if err != nil {
		return nil, err
	}

	for _, mf := range files {
		if err := pg.MigrateFile(db, mf); err != nil {
			return nil, err
		}
	}

	return db, nil
}

func (ws *Workspace) createModels() error {
	models, err := model.NewCollection(ws.Config.Precedence, model.WithLogger(ws.Settings.logger()))
	if err != nil {
		return err
	}

	ws.Models = models
	ws.Files = make([]stratum.File, 0)

	for _, mc := range ws.Config.Models {
		g, ok := ws.Groups.Get(mc.Schema)
		if !ok {
			return fmt.Errorf(`unknown schema "%s" for model "%s"`, mc.Schema, mc.ID)
		}

		if _, err := models.New(g, mc.ID); err != nil {
			return err
		}

		// Files are loaded in precedence order so notifications and logs
		// are stable.
		for _, s := range ws.Config.Precedence {
			p, ok := mc.Strata[s]
			if !ok {
				continue
			}

			ws.Files = append(ws.Files, stratum.File{
				Model:   mc.ID,
				Stratum: s,
				Path:    filepath.Join(ws.Settings.WorkingDir, p),
			})
		}
	}

	return nil
}

// glob resolves glob patterns relative to the working directory. Files are
// returned in lexical order per pattern.
func (ws *Workspace) glob(patterns []string) ([]string, error) {
	files := make([]string, 0)

	for _, p := range patterns {
		matches, err := filepath.Glob(filepath.Join(ws.Settings.WorkingDir, p))
		if err != nil {
			return nil, fmt.Errorf(`failed to resolve files using glob "%s": %w`, p, err)
		}

		files = append(files, matches...)
	}

	return files, nil
}

func schemaPaths(cfg *config.Config) []string {
	out := make([]string, 0, len(cfg.Schemas))
	for _, s := range cfg.Schemas {
		out = append(out, s.OpenApi.Path)
	}
	return out
}

func migrationPaths(cfg *config.Config) []string {
	out := make([]string, 0, len(cfg.Migrations))
	for _, m := range cfg.Migrations {
		out = append(out, m.Path)
	}
	return out
}
