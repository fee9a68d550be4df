package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/koskimas/strata/pkg/model"
	"gopkg.in/yaml.v3"
)

const Version = 1

type Config struct {
	Version    int              `yaml:"version"`
	Package    Package          `yaml:"package"`
	Precedence model.Precedence `yaml:"precedence"`
	Schemas    []Schema         `yaml:"schemas"`
	Migrations []Migration      `yaml:"migrations"`
	Models     []Model          `yaml:"models"`
	Output     Output           `yaml:"output"`
}

type Package struct {
	Path string `yaml:"path"`
}

type Schema struct {
	OpenApi OpenApi `yaml:"openApi"`
}

type OpenApi struct {
	Path string `yaml:"path"`
}

type Migration struct {
	Path string `yaml:"path"`
}

// Model binds a model id to a schema and to the files holding its strata.
// The keys of `Strata` are stratum ids.
type Model struct {
	ID     string            `yaml:"id"`
	Schema string            `yaml:"schema"`
	Strata map[string]string `yaml:"strata"`
}

type Output struct {
	Path string `yaml:"path"`
}

func Read(configPath string) (*Config, error) {
	fileData, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf(`failed to read config file "%s": %w`, configPath, err)
	}

	config, err := Parse(fileData)
	if err != nil {
		return nil, fmt.Errorf(`invalid config file "%s": %w`, configPath, err)
	}

	return config, nil
}

func Parse(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if len(config.Precedence) == 0 {
		config.Precedence = model.CommonStrata.Clone()
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Version != Version {
		return fmt.Errorf("unsupported config version %d", c.Version)
	}

	if err := c.Precedence.Validate(); err != nil {
		return err
	}

	errs := make([]error, 0)
	ids := make(map[string]bool, len(c.Models))

	for i, m := range c.Models {
		if len(m.ID) == 0 {
			errs = append(errs, fmt.Errorf("models[%d]: missing id", i))
		} else if ids[m.ID] {
			errs = append(errs, fmt.Errorf(`models[%d]: duplicate id "%s"`, i, m.ID))
		}

		ids[m.ID] = true

		if len(m.Schema) == 0 {
			errs = append(errs, fmt.Errorf("models[%d]: missing schema", i))
		}

		for s := range m.Strata {
			if !c.HasStratum(s) {
				errs = append(errs, fmt.Errorf(`models[%d]: stratum "%s" is not in the precedence`, i, s))
			}
		}
	}

	return errors.Join(errs...)
}

func (c *Config) HasStratum(id string) bool {
	for _, s := range c.Precedence {
		if s == id {
			return true
		}
	}

	return false
}

// Model returns the model config with id `id`.
func (c *Config) Model(id string) (Model, bool) {
	for _, m := range c.Models {
		if m.ID == id {
			return m, true
		}
	}

	return Model{}, false
}
