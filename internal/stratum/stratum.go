package stratum

import (
	"errors"
	"fmt"
	"os"

	"github.com/koskimas/strata/pkg/model"
	"gopkg.in/yaml.v3"
)

// File binds one stratum of a model to a YAML file holding the stratum in
// the form Model.Export returns.
type File struct {
	Model   string
	Stratum string
	Path    string
}

func (f File) String() string {
	return fmt.Sprintf("%s/%s (%s)", f.Model, f.Stratum, f.Path)
}

// Read reads plain stratum data from a YAML file. An empty file holds an
// empty stratum.
func Read(path string) (map[string]any, error) {
	fileData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf(`failed to read stratum file "%s": %w`, path, err)
	}

	data, err := Unmarshal(fileData)
	if err != nil {
		return nil, fmt.Errorf(`failed to unmarshal stratum file "%s": %w`, path, err)
	}

	return data, nil
}

func Unmarshal(fileData []byte) (map[string]any, error) {
	var data map[string]any
	if err := yaml.Unmarshal(fileData, &data); err != nil {
		return nil, err
	}

	if data == nil {
		data = make(map[string]any)
	}

	return data, nil
}

// Load replaces the stratum `f.Stratum` of `m` with the contents of the file.
// A missing file deletes the stratum.
func Load(m *model.Model, f File) error {
	data, err := Read(f.Path)
	if errors.Is(err, os.ErrNotExist) {
		return m.DeleteStratum(f.Stratum)
	}

	if err != nil {
		return err
	}

	if err := m.Import(f.Stratum, data); err != nil {
		return fmt.Errorf(`failed to load stratum file "%s": %w`, f.Path, err)
	}

	return nil
}

// Save writes the stratum `f.Stratum` of `m` to the file.
func Save(m *model.Model, f File) error {
	data, err := m.Export(f.Stratum)
	if err != nil {
		return err
	}

	fileData, err := yaml.Marshal(data)
	if err != nil {
		return fmt.Errorf(`failed to marshal stratum "%s" of model "%s": %w`, f.Stratum, m.ID(), err)
	}

	if err := os.WriteFile(f.Path, fileData, 0644); err != nil {
		return fmt.Errorf(`failed to write stratum file "%s": %w`, f.Path, err)
	}

	return nil
}
