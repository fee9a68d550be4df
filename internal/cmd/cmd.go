package cmd

import (
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/koskimas/strata/internal/gen"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

const databaseURLEnv = "STRATA_DATABASE_URL"

type app struct {
	dir     string
	verbose bool
	logger  *zap.Logger
}

func (a *app) settings() Settings {
	return Settings{
		WorkingDir: a.dir,
		Logger:     a.logger,
	}
}

func (a *app) workspace() (*Workspace, error) {
	return LoadWorkspace(a.settings())
}

// NewRootCommand creates the `strata` command and its subcommands.
func NewRootCommand() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "strata",
		Short: "Resolve layered model configuration",
		Long: `strata resolves models whose traits are set on layered strata
(definition, inherited, user, runtime...). The workspace is described by
strata.yaml in the working directory.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			config := zap.NewProductionConfig()
			if a.verbose {
				config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
			}

			logger, err := config.Build()
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}

			a.logger = logger

			dir, err := filepath.Abs(a.dir)
			if err != nil {
				return fmt.Errorf("failed to determine working directory: %w", err)
			}

			a.dir = dir
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	root.PersistentFlags().StringVarP(&a.dir, "dir", "C", ".", "Workspace directory")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(
		newResolveCommand(a),
		newExportCommand(a),
		newSetCommand(a),
		newRemoveCommand(a),
		newGenCommand(a),
		newWatchCommand(a),
		newPushCommand(a),
		newPullCommand(a),
	)

	return root
}

// Run generates the typed accessors of the workspace into the configured
// output file.
func Run(s Settings) error {
	ws, err := LoadWorkspace(s)
	if err != nil {
		return err
	}

	return generate(ws)
}

func generate(ws *Workspace) error {
	cfg := ws.Config
	if cfg.Output.Path == "" {
		return fmt.Errorf("output.path is not set in %s", configFile)
	}

	outPath := filepath.Join(ws.Settings.WorkingDir, cfg.Output.Path)

	pkgName := path.Base(cfg.Package.Path)
	if cfg.Package.Path == "" {
		pkgName = filepath.Base(filepath.Dir(outPath))
	}

	f := gen.GenerateCode(pkgName, ws.Groups.Groups())
	if err := gen.WriteToFile(f, outPath); err != nil {
		return err
	}

	ws.Settings.logger().Info("generated code",
		zap.String("package", pkgName),
		zap.String("path", outPath),
		zap.Int("groups", ws.Groups.Len()),
	)

	return nil
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)

	if err := enc.Encode(v); err != nil {
		return err
	}

	return enc.Close()
}

func databaseURL(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}

	if dsn := os.Getenv(databaseURLEnv); dsn != "" {
		return dsn, nil
	}

	return "", fmt.Errorf("database url not given: use --dsn or %s", databaseURLEnv)
}
