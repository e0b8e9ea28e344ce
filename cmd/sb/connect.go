package main

import (
	"fmt"

	"github.com/davisfield/switchboard/internal/config"
	"github.com/davisfield/switchboard/internal/db"
	"github.com/davisfield/switchboard/internal/directory"
	"github.com/davisfield/switchboard/internal/store"
)

// defaultConfigPath is the config file commands look for when --config is
// not given.
const defaultConfigPath = "switchboard.yaml"

// openStore loads the config, connects to the message store and builds the
// agent directory. Most commands start here.
func openStore(configPath string) (*config.Config, *store.Store, *directory.Directory, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, err
	}

	gormDB, err := db.Connect(cfg.Store)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect to store: %w", err)
	}

	dir, err := directory.New(cfg.Agents)
	if err != nil {
		return nil, nil, nil, err
	}

	st, err := store.New(gormDB, dir)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, st, dir, nil
}
