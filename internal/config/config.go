// Package config materializes the viper-backed YAML configuration into
// one typed struct that commands pass down.
package config

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/spf13/viper"

	"github.com/minghe/poetry-annotator/internal/llm"
	"github.com/minghe/poetry-annotator/internal/store"
	"github.com/minghe/poetry-annotator/internal/util"
)

// DatasetConfig names the directory holding one dataset's three store
// files. Paths derive from the dataset name: <name>-raw.db,
// <name>-annotations.db, plus the shared taxonomy.db.
type DatasetConfig struct {
	Dir string `mapstructure:"dir"`
}

// Config is the full application configuration
type Config struct {
	DefaultDataset    string                     `mapstructure:"default_dataset"`
	Datasets          map[string]DatasetConfig   `mapstructure:"datasets"`
	Models            map[string]llm.ModelConfig `mapstructure:"models"`
	MaxModelPipelines int                        `mapstructure:"max_model_pipelines"`
	LogDir            string                     `mapstructure:"log_dir"`
	TaxonomyFile      string                     `mapstructure:"taxonomy_file"`
}

// Load unmarshals the active viper state into a Config and applies
// defaults
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", util.ErrInvalidConfig, err)
	}

	if cfg.LogDir == "" {
		cfg.LogDir = "logs"
	}
	if cfg.TaxonomyFile == "" {
		cfg.TaxonomyFile = "configs/taxonomy.yaml"
	}
	if cfg.MaxModelPipelines <= 0 {
		cfg.MaxModelPipelines = 2
	}

	// The identifier is the map key; a mismatching inline identifier
	// would silently record annotations under the wrong name
	for id, m := range cfg.Models {
		if m.Identifier == "" {
			m.Identifier = id
		} else if m.Identifier != id {
			return nil, fmt.Errorf("%w: model %q declares identifier %q",
				util.ErrInvalidConfig, id, m.Identifier)
		}
		cfg.Models[id] = m
	}

	return &cfg, nil
}

// Dataset resolves a dataset name to its three store paths. An empty
// name selects the configured default.
func (c *Config) Dataset(name string) (store.DatasetPaths, error) {
	if name == "" {
		name = c.DefaultDataset
	}
	if name == "" {
		return store.DatasetPaths{}, fmt.Errorf("%w: no dataset given and no default_dataset configured",
			util.ErrDatasetNotFound)
	}

	ds, ok := c.Datasets[name]
	if !ok {
		return store.DatasetPaths{}, fmt.Errorf("%w: %q (configured: %v)",
			util.ErrDatasetNotFound, name, c.DatasetNames())
	}

	dir := ds.Dir
	if dir == "" {
		dir = "data"
	}
	return store.DatasetPaths{
		Raw:        filepath.Join(dir, name+"-raw.db"),
		Annotation: filepath.Join(dir, name+"-annotations.db"),
		Taxonomy:   filepath.Join(dir, "taxonomy.db"),
	}, nil
}

// Model looks up one model configuration by identifier
func (c *Config) Model(id string) (llm.ModelConfig, error) {
	m, ok := c.Models[id]
	if !ok {
		return llm.ModelConfig{}, fmt.Errorf("%w: unknown model %q (configured: %v)",
			util.ErrInvalidConfig, id, c.ModelIdentifiers())
	}
	return m, nil
}

// DatasetNames returns the configured dataset names, sorted
func (c *Config) DatasetNames() []string {
	names := make([]string, 0, len(c.Datasets))
	for name := range c.Datasets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ModelIdentifiers returns the configured model identifiers, sorted
func (c *Config) ModelIdentifiers() []string {
	ids := make([]string, 0, len(c.Models))
	for id := range c.Models {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
