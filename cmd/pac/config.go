package main

import (
	"github.com/spf13/viper"

	"github.com/minghe/poetry-annotator/internal/config"
	"github.com/minghe/poetry-annotator/internal/store"
)

// loadConfig materializes the active viper state into a typed Config
func loadConfig() (*config.Config, error) {
	return config.Load(viper.GetViper())
}

// openDataset resolves the --dataset flag (or the configured default)
// and opens its three stores. createSchema is true only for init-db.
func openDataset(cfg *config.Config, createSchema bool) (*store.Stores, error) {
	paths, err := cfg.Dataset(viper.GetString("dataset"))
	if err != nil {
		return nil, err
	}
	return store.OpenStores(paths, &store.OpenOptions{CreateSchema: createSchema})
}
